package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/issac1998/pos-relay/internal/transaction"
)

// Annotation refines a standard sale for logging
type Annotation string

const (
	AnnotationFullVoid    Annotation = "full-void"
	AnnotationPartialVoid Annotation = "partial-void"
	AnnotationPromotion   Annotation = "promotion"
	AnnotationPlain       Annotation = "plain"
)

const (
	stateAdded    = "Added"
	stateVoided   = "Voided"
	stateClosed   = "Closed"
	typeSale      = "Sale"
	typeRefund    = "Refund"
	typeNew       = "New"
	typeUpdate    = "Update"
	categoryGen   = "General"
	categoryPromo = "Promotion"
	statusOK      = "Accepted"
	statusDenied  = "Denied"
	taxLabel      = "Sales Tax"
)

// Render maps a transaction to its outbound payload. It reads nothing
// but tx, so the same transaction always renders the same payload.
func Render(tx *transaction.Transaction) (*Payload, error) {
	switch tx.Classification {
	case transaction.CashOperation:
		return &Payload{Model: ModelCashOperation, Event: cashOperation(tx)}, nil
	case transaction.Refund:
		return &Payload{Model: ModelRefund, Event: refund(tx)}, nil
	case transaction.StandardSale:
		return &Payload{Model: ModelTransaction, Event: sale(tx)}, nil
	default:
		return nil, fmt.Errorf("unknown classification %q", tx.Classification)
	}
}

// Annotate returns the standard-sale refinement, or "" for other classes
func Annotate(tx *transaction.Transaction) Annotation {
	if tx.Classification != transaction.StandardSale {
		return ""
	}
	switch {
	case len(tx.Voids) > 0 && len(tx.Items) == 0:
		return AnnotationFullVoid
	case len(tx.Voids) > 0:
		return AnnotationPartialVoid
	}
	for _, it := range tx.Items {
		if isPromo(it) {
			return AnnotationPromotion
		}
	}
	return AnnotationPlain
}

// CashOperationType maps an operation tag to the partner's drawer type
func CashOperationType(operation string) string {
	switch strings.ToLower(operation) {
	case "paidout":
		return "PaidOut"
	case "paidin":
		return "PaidIn"
	case "cashdrop", "drop":
		return "Drop"
	default:
		return "NoSale"
	}
}

func header(tx *transaction.Transaction, txType string) Header {
	employeeName := tx.OperatorName
	if employeeName == "" {
		employeeName = tx.OperatorID
	}
	return Header{
		TransactionGUID:          tx.GUID,
		TransactionDateTimeStamp: timestamp(tx),
		TransactionType:          txType,
		BusinessDate:             tx.BusinessDate(),
		Location: Location{
			LocationID:  tx.Store,
			Description: tx.LocationDescription,
		},
		TransactionDevice: Device{
			DeviceID:          tx.Terminal,
			DeviceDescription: "POS Terminal " + tx.Terminal,
		},
		Employee: Employee{
			EmployeeID:       tx.OperatorID,
			EmployeeFullName: employeeName,
		},
	}
}

func timestamp(tx *transaction.Transaction) string {
	return tx.TimestampUTC.UTC().Format(transaction.UTCLayout)
}

func cashOperation(tx *transaction.Transaction) *CashOperationEvent {
	evt := &CashOperationEvent{Header: header(tx, typeNew)}
	evt.EventTypeCashOperation.CashOperation = CashOperationBody{
		CashOperationType: Value{Value: CashOperationType(tx.Operation)},
		Amount:            Money(tx.Amount),
	}
	return evt
}

func sale(tx *transaction.Transaction) *TransactionEvent {
	sm := tx.Summary
	subtotal, _ := sm.Get(transaction.KeySubtotal)
	discount, _ := sm.Get(transaction.KeyDiscounts)
	tax, _ := sm.FirstWithPrefix(transaction.PrefixTax)

	totalDue := cents(subtotal).Add(cents(discount)).Add(cents(tax))
	if v, ok := sm.Get(transaction.KeyTotalDue); ok {
		totalDue = cents(v)
	}
	netItem := cents(subtotal).Add(cents(discount))
	taxAmount := cents(tax)

	ts := timestamp(tx)
	lines := make([]OrderItem, 0, len(tx.Items)+len(tx.Voids))
	idx := 1
	for _, group := range [][]transaction.Item{tx.Items, tx.Voids} {
		for _, it := range group {
			lines = append(lines, saleLine(tx.Sequence, idx, it, ts))
			idx++
		}
	}

	payments := salePayments(tx, totalDue, ts)
	if len(payments) == 0 && totalDue.IsPositive() {
		payments = append(payments, Payment{
			Timestamp:  ts,
			Status:     statusOK,
			Amount:     totalDue.InexactFloat64(),
			TenderType: Value{Value: TenderCash},
		})
	}

	taxes := []Tax{}
	if taxAmount.IsPositive() {
		taxes = append(taxes, Tax{Amount: taxAmount.InexactFloat64(), Description: taxLabel})
	}

	orderState := stateClosed
	if len(tx.Voids) > 0 && len(tx.Items) == 0 {
		orderState = stateVoided
	}
	txType := typeNew
	if len(tx.Voids) > 0 {
		txType = typeUpdate
	}

	evt := &TransactionEvent{Header: header(tx, txType)}
	evt.EventTypeOrder.Order = Order{
		OrderID:        tx.GUID,
		OrderNumber:    orderNumber(tx.Sequence),
		OrderTime:      ts,
		OrderState:     orderState,
		OrderItem:      lines,
		Total:          Total{ItemPrice: netItem.InexactFloat64(), Tax: taxes},
		OrderItemCount: len(lines),
		Payment:        payments,
	}
	return evt
}

func saleLine(seq string, idx int, it transaction.Item, ts string) OrderItem {
	pid := fmt.Sprintf("PID%s_%d", seq, idx)
	state, itemType, category := stateAdded, typeSale, categoryGen
	price := cents(it.UnitPrice)

	if it.IsVoid {
		state, itemType = stateVoided, stateVoided
	} else if isPromo(it) {
		category = categoryPromo
		price = price.Abs().Neg()
	}
	return orderItem(pid, it, state, itemType, category, price, ts)
}

func salePayments(tx *transaction.Transaction, totalDue decimal.Decimal, ts string) []Payment {
	reported := false
	paid := decimal.Zero
	for _, p := range tx.Payments {
		if p.ChangeAmount != nil {
			reported = true
		}
		if p.Amount > 0 {
			paid = paid.Add(cents(p.Amount))
		}
	}
	computed := paid.Sub(totalDue)

	payments := make([]Payment, 0, len(tx.Payments))
	for _, p := range tx.Payments {
		amount := cents(p.Amount)
		if amount.IsZero() {
			continue
		}

		change := decimal.Zero
		switch {
		case reported && p.ChangeAmount != nil:
			change = cents(*p.ChangeAmount)
		case !reported && len(payments) == 0 && computed.IsPositive():
			change = computed
		}

		status := statusOK
		if amount.IsNegative() {
			status = statusDenied
		}
		payments = append(payments, Payment{
			Timestamp:  ts,
			Status:     status,
			Amount:     amount.InexactFloat64(),
			Change:     change.InexactFloat64(),
			TenderType: Value{Value: MapTender(p.TenderDescription)},
		})
	}
	return payments
}

func refund(tx *transaction.Transaction) *RefundEvent {
	ts := timestamp(tx)
	lines := make([]OrderItem, 0, len(tx.Items))
	subtotal := decimal.Zero
	for i, it := range tx.Items {
		pid := fmt.Sprintf("%s_%d", tx.Sequence, i+1)
		price := cents(it.UnitPrice)
		lines = append(lines, orderItem(pid, it, stateAdded, typeRefund, typeRefund, price, ts))
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	total := decimal.Zero
	payments := make([]Payment, 0, len(tx.Payments))
	for _, p := range tx.Payments {
		amount := cents(p.Amount)
		total = total.Add(amount)
		if amount.IsZero() {
			continue
		}
		payments = append(payments, Payment{
			Timestamp:  ts,
			Status:     statusOK,
			Amount:     amount.InexactFloat64(),
			TenderType: Value{Value: MapTender(p.TenderDescription)},
		})
	}

	evt := &RefundEvent{Header: header(tx, typeNew)}
	evt.EventTypeRefund.Refund.RefundTotal = total.Round(2).InexactFloat64()
	evt.EventTypeRefund.Refund.RefundTransactionType.Order = Order{
		OrderID:        tx.GUID,
		OrderNumber:    orderNumber(tx.Sequence),
		OrderTime:      ts,
		OrderState:     stateClosed,
		OrderItem:      lines,
		Total:          Total{ItemPrice: subtotal.Round(2).InexactFloat64(), Tax: []Tax{}},
		OrderItemCount: len(lines),
		Payment:        payments,
	}
	return evt
}

func orderItem(pid string, it transaction.Item, state, itemType, category string, price decimal.Decimal, ts string) OrderItem {
	sku := SKU{ProductName: it.Name, ProductCode: pid}
	return OrderItem{
		OrderItemState: []ItemState{{ItemState: Value{Value: state}, Timestamp: ts}},
		MenuProduct: MenuProduct{
			MenuProductID: pid,
			Name:          it.Name,
			MenuItem: []MenuItem{{
				ItemType:    itemType,
				Category:    category,
				ID:          pid + "_MI",
				Description: it.Name,
				Pricing:     []Pricing{{Tax: []Tax{}, ItemPrice: price.InexactFloat64(), Quantity: it.Quantity}},
				SKU:         sku,
			}},
			SKU: sku,
		},
	}
}

func isPromo(it transaction.Item) bool {
	return strings.Contains(strings.ToUpper(it.Name), "PROMO") || it.UnitPrice < 0
}

func orderNumber(seq string) int {
	n, err := strconv.Atoi(strings.TrimSpace(seq))
	if err != nil {
		return 0
	}
	return n
}
