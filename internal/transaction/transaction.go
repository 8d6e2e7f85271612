package transaction

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Classification is the single category assigned to a closed transaction
type Classification string

const (
	CashOperation Classification = "cash-operation"
	Refund        Classification = "refund"
	StandardSale  Classification = "standard-sale"
)

// UTCLayout is the second-resolution layout used for GUID derivation
const UTCLayout = "2006-01-02T15:04:05"

// Item is one cart line. Voids use the same shape with IsVoid set.
type Item struct {
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	IsVoid    bool    `json:"is_void"`
}

// Payment is one tender line from a payment summary
type Payment struct {
	Amount            float64  `json:"amount"`
	TenderDescription string   `json:"tender_description"`
	IsCash            bool     `json:"is_cash"`
	ChangeAmount      *float64 `json:"change_amount,omitempty"`
}

// Transaction is a closed cycle. It is built once by the assembler and
// not modified afterwards; copies share no slices with the buffer it
// came from.
type Transaction struct {
	GUID                string         `json:"guid"`
	Sequence            string         `json:"sequence"`
	Store               string         `json:"store"`
	LocationDescription string         `json:"location_description"`
	Terminal            string         `json:"terminal"`
	Channel             string         `json:"channel"`
	TimestampLocal      string         `json:"timestamp_local"`
	TimestampUTC        time.Time      `json:"timestamp_utc"`
	OperatorID          string         `json:"operator_id"`
	OperatorName        string         `json:"operator_name"`
	Classification      Classification `json:"classification"`
	Operation           string         `json:"operation"`
	Amount              float64        `json:"amount"`
	Items               []Item         `json:"items"`
	Voids               []Item         `json:"voids"`
	Payments            []Payment      `json:"payments"`
	Summary             SummaryMap     `json:"summary"`
}

// Key is the file stem used for snapshots and archive entries
func (t *Transaction) Key() string {
	return fmt.Sprintf("%s_%s", t.Sequence, t.GUID)
}

// BusinessDate is the UTC calendar date of the transaction, YYYYMMDD
func (t *Transaction) BusinessDate() string {
	return t.TimestampUTC.UTC().Format("20060102")
}

// GUID derives the deterministic transaction id from its identifying fields
func GUID(store, terminal, sequence string, tsUTC time.Time) string {
	name := fmt.Sprintf("%s-%s-%s-%s", store, terminal, sequence, tsUTC.UTC().Format(UTCLayout))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

var cashOperationTags = map[string]bool{
	"nosale":   true,
	"paidout":  true,
	"paidin":   true,
	"cashdrop": true,
	"drop":     true,
}

// IsCashOperationTag reports whether an operation tag names a drawer operation
func IsCashOperationTag(tag string) bool {
	return cashOperationTags[strings.ToLower(strings.TrimSpace(tag))]
}

// Classify picks the classification of a closing cycle. An explicit
// cash tag wins, then any refund signal, then standard-sale.
func Classify(operationTag, transactionType string, items []Item) Classification {
	if IsCashOperationTag(operationTag) {
		return CashOperation
	}
	if strings.EqualFold(operationTag, "refund") || strings.EqualFold(transactionType, "refund") {
		return Refund
	}
	for _, it := range items {
		if it.UnitPrice < 0 {
			return Refund
		}
	}
	return StandardSale
}
