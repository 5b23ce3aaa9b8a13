package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"
)

// TransferForm holds the hidden fields for the bank-transfer provider's
// redirect form. This provider has no JSON API and no callback: the
// guardian POSTs a classic HTML form at their bank and later confirms
// manually.
type TransferForm struct {
	Action string            `json:"action"`
	Fields map[string]string `json:"fields"`
}

// BuildTransferForm assembles the hidden-field set for one transaction.
// The token binds transaction id and amount so the form cannot be
// replayed with an altered amount.
func BuildTransferForm(endpoint, email, secret, transactionID string, amount decimal.Decimal) TransferForm {
	amountStr := amount.StringFixed(0)
	return TransferForm{
		Action: endpoint,
		Fields: map[string]string{
			"email":          email,
			"subject":        fmt.Sprintf("Pago pedido casino %s", transactionID),
			"transaction_id": transactionID,
			"amount":         amountStr,
			"token":          transferToken(secret, transactionID, amountStr),
		},
	}
}

func transferToken(secret, transactionID, amount string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(transactionID))
	mac.Write([]byte(":"))
	mac.Write([]byte(amount))
	return hex.EncodeToString(mac.Sum(nil))
}
