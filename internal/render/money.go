package render

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money rounds to cents, half away from zero. The float is read by its
// shortest decimal representation, so 12.005 rounds to 12.01.
func Money(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

// Tender values accepted by the partner API
const (
	TenderCash           = "Cash"
	TenderCreditCard     = "CreditCard"
	TenderDebitCard      = "DebitCard"
	TenderAccountPayment = "AccountPayment"
	TenderOther          = "Other"
)

// MapTender normalizes a POS tender description
func MapTender(description string) string {
	d := strings.ToUpper(strings.TrimSpace(description))
	switch {
	case strings.Contains(d, "CASH"):
		return TenderCash
	case strings.Contains(d, "VISA"), strings.Contains(d, "MASTERCARD"),
		strings.Contains(d, "AMEX"), strings.Contains(d, "DISCOVER"):
		return TenderCreditCard
	case strings.Contains(d, "DEBIT"):
		return TenderDebitCard
	case strings.HasPrefix(d, "ACCT#"), strings.HasPrefix(d, "ACCOUNT"):
		return TenderAccountPayment
	default:
		return TenderOther
	}
}
