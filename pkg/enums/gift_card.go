package enums

import "fmt"

// GiftCardStatus tracks whether a card can still be redeemed.
type GiftCardStatus string

const (
	GiftCardStatusActive   GiftCardStatus = "active"
	GiftCardStatusRedeemed GiftCardStatus = "redeemed"
	GiftCardStatusExpired  GiftCardStatus = "expired"
)

var validGiftCardStatuses = []GiftCardStatus{
	GiftCardStatusActive,
	GiftCardStatusRedeemed,
	GiftCardStatusExpired,
}

func (s GiftCardStatus) String() string {
	return string(s)
}

func (s GiftCardStatus) IsValid() bool {
	for _, candidate := range validGiftCardStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseGiftCardStatus(value string) (GiftCardStatus, error) {
	for _, candidate := range validGiftCardStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gift card status %q", value)
}

// GiftCardTransactionType classifies a gift card balance change.
type GiftCardTransactionType string

const (
	GiftCardTxnPurchase GiftCardTransactionType = "purchase"
	GiftCardTxnRedeem   GiftCardTransactionType = "redeem"
	GiftCardTxnRefund   GiftCardTransactionType = "refund"
)

var validGiftCardTransactionTypes = []GiftCardTransactionType{
	GiftCardTxnPurchase,
	GiftCardTxnRedeem,
	GiftCardTxnRefund,
}

func (t GiftCardTransactionType) String() string {
	return string(t)
}

func (t GiftCardTransactionType) IsValid() bool {
	for _, candidate := range validGiftCardTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}
