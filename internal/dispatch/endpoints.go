package dispatch

import (
	"fmt"

	"github.com/issac1998/pos-relay/internal/transaction"
)

// Endpoints maps each classification to its partner URL
type Endpoints struct {
	CashOperations string
	Transactions   string
	Refunds        string
}

// For returns the URL a transaction of class c is posted to
func (e Endpoints) For(c transaction.Classification) (string, error) {
	var url string
	switch c {
	case transaction.CashOperation:
		url = e.CashOperations
	case transaction.Refund:
		url = e.Refunds
	case transaction.StandardSale:
		url = e.Transactions
	default:
		return "", fmt.Errorf("no endpoint for classification %q", c)
	}
	if url == "" {
		return "", fmt.Errorf("endpoint for %s is not configured", c)
	}
	return url, nil
}
