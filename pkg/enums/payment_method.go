package enums

import "strings"

// PaymentMethod is how the buyer settles an order. Capture happens with the
// payment provider; the engine only records the choice.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodWallet         PaymentMethod = "wallet"
	PaymentMethodBankTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool {
	switch p {
	case PaymentMethodCard, PaymentMethodWallet, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// NormalizePaymentMethod folds client input ("Bank-Transfer ", "CARD") onto
// the stored spelling. The result may still be invalid.
func NormalizePaymentMethod(raw string) PaymentMethod {
	s := strings.ToLower(strings.TrimSpace(raw))
	return PaymentMethod(strings.ReplaceAll(s, "-", "_"))
}
