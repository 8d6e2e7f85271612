package protocol

import "time"

// Kind identifies the variant carried by a Record
type Kind int

const (
	KindCycleStart Kind = iota
	KindCycleEnd
	KindCashCommand
	KindMeta
	KindCartChange
	KindPaymentSummary
	KindTransactionSummary
)

func (k Kind) String() string {
	switch k {
	case KindCycleStart:
		return "cycle-start"
	case KindCycleEnd:
		return "cycle-end"
	case KindCashCommand:
		return "cash-command"
	case KindMeta:
		return "meta"
	case KindCartChange:
		return "cart-change"
	case KindPaymentSummary:
		return "payment-summary"
	case KindTransactionSummary:
		return "transaction-summary"
	default:
		return "unknown"
	}
}

// Command names carried in the CMD key
const (
	CmdStartTransaction = "StartTransaction"
	CmdEndTransaction   = "EndTransaction"
	CmdNoSale           = "NoSale"
	CmdPaidOut          = "PaidOut"
	CmdCashDrop         = "CashDrop"
)

// Record is one parsed upstream message
type Record interface {
	Kind() Kind
}

// Envelope pairs a record with the channel it arrived on
type Envelope struct {
	Channel    string
	Record     Record
	ReceivedAt time.Time
}

// CycleStart opens a transaction cycle. Operation is the optional
// top-level operation tag.
type CycleStart struct {
	Operation string
}

func (CycleStart) Kind() Kind { return KindCycleStart }

type CycleEnd struct{}

func (CycleEnd) Kind() Kind { return KindCycleEnd }

// CashCommand is a standalone drawer operation (NoSale, PaidOut, CashDrop).
// Empty strings mean the field was absent.
type CashCommand struct {
	Name         string
	Operator     string
	OperatorName string
	Terminal     string
	Sequence     string
	DateTime     string
	Amount       float64
}

func (CashCommand) Kind() Kind { return KindCashCommand }

// Meta carries transaction header fields. Values are stringified.
type Meta struct {
	Fields map[string]string
}

func (Meta) Kind() Kind { return KindMeta }

// Well-known metaData keys
const (
	MetaOperatorID      = "operatorId"
	MetaOperatorName    = "operatorName"
	MetaTerminalID      = "terminalId"
	MetaSequenceNumber  = "sequenceNumber"
	MetaStoreID         = "storeId"
	MetaTimeStamp       = "timeStamp"
	MetaOperation       = "operation"
	MetaTransactionType = "transactionType"
)

// EventVoidLineItem marks a cart line as a void
const EventVoidLineItem = "voidLineItem"

type CartLine struct {
	EventType string
	ItemName  string
	Price     float64
	Quantity  int
}

// IsVoid reports whether the line voids an earlier item
func (c CartLine) IsVoid() bool {
	return c.EventType == EventVoidLineItem
}

type CartChange struct {
	Lines []CartLine
}

func (CartChange) Kind() Kind { return KindCartChange }

// SummaryLine is a description/details pair from a payment or
// transaction summary
type SummaryLine struct {
	Description string
	Details     string
}

type PaymentSummary struct {
	Lines []SummaryLine
}

func (PaymentSummary) Kind() Kind { return KindPaymentSummary }

// TransactionSummary closes a cycle. Timestamp is the record-level
// timestamp, used when metaData has none.
type TransactionSummary struct {
	Lines     []SummaryLine
	Timestamp string
}

func (TransactionSummary) Kind() Kind { return KindTransactionSummary }
