package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issac1998/pos-relay/internal/transaction"
)

func baseTx(class transaction.Classification) *transaction.Transaction {
	return &transaction.Transaction{
		GUID:                "0d4b6c1e-7f00-5a2b-9c3d-112233445566",
		Sequence:            "42",
		Store:               "1001",
		LocationDescription: "Main St",
		Terminal:            "3",
		TimestampUTC:        time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
		OperatorID:          "OP5",
		OperatorName:        "Operator Five",
		Classification:      class,
	}
}

func summary(pairs ...any) transaction.SummaryMap {
	var m transaction.SummaryMap
	for i := 0; i < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1].(float64))
	}
	return m
}

func change(v float64) *float64 { return &v }

func TestMoneyRounding(t *testing.T) {
	assert.Equal(t, 12.01, Money(12.005))
	assert.Equal(t, 12.0, Money(12.004))
	assert.Equal(t, -12.01, Money(-12.005))
	assert.Equal(t, 0.3, Money(0.1+0.2))
}

func TestMapTender(t *testing.T) {
	tests := map[string]string{
		"CASH":       TenderCash,
		"cash":       TenderCash,
		"VISA ****1": TenderCreditCard,
		"MasterCard": TenderCreditCard,
		"AMEX":       TenderCreditCard,
		"DISCOVER":   TenderCreditCard,
		"DEBIT":      TenderDebitCard,
		"ACCT#1234":  TenderAccountPayment,
		"ACCOUNT 77": TenderAccountPayment,
		"GIFT CARD":  TenderOther,
		"":           TenderOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapTender(in), in)
	}
}

func TestRenderSingleCashSale(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{{Name: "Coffee", UnitPrice: 2.00, Quantity: 1}}
	tx.Payments = []transaction.Payment{{Amount: 2.00, TenderDescription: "CASH", IsCash: true}}
	tx.Summary = summary("SUBTOTAL", 2.00, "TOTAL DUE", 2.00)

	payload, err := Render(tx)
	require.NoError(t, err)
	assert.Equal(t, ModelTransaction, payload.Model)

	evt := payload.Event.(*TransactionEvent)
	order := evt.EventTypeOrder.Order
	assert.Equal(t, "New", evt.TransactionType)
	assert.Equal(t, "20240301", evt.BusinessDate)
	assert.Equal(t, "2024-03-01T15:00:00", evt.TransactionDateTimeStamp)
	assert.Equal(t, "POS Terminal 3", evt.TransactionDevice.DeviceDescription)
	assert.Equal(t, "Closed", order.OrderState)
	assert.Equal(t, 42, order.OrderNumber)
	require.Len(t, order.OrderItem, 1)
	assert.Equal(t, 1, order.OrderItemCount)
	assert.Equal(t, "PID42_1", order.OrderItem[0].MenuProduct.MenuProductID)
	assert.Equal(t, "PID42_1_MI", order.OrderItem[0].MenuProduct.MenuItem[0].ID)
	assert.Equal(t, "General", order.OrderItem[0].MenuProduct.MenuItem[0].Category)
	assert.Equal(t, 2.0, order.Total.ItemPrice)
	assert.Empty(t, order.Total.Tax)

	require.Len(t, order.Payment, 1)
	assert.Equal(t, Payment{
		Timestamp:  "2024-03-01T15:00:00",
		Status:     "Accepted",
		Amount:     2.00,
		Change:     0,
		TenderType: Value{Value: "Cash"},
	}, order.Payment[0])
	assert.Equal(t, AnnotationPlain, Annotate(tx))
}

func TestRenderAllVoided(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Voids = []transaction.Item{{Name: "Coffee", UnitPrice: 2.00, Quantity: 1, IsVoid: true}}
	tx.Summary = summary("TOTAL DUE", 0.0)

	payload, err := Render(tx)
	require.NoError(t, err)
	evt := payload.Event.(*TransactionEvent)
	order := evt.EventTypeOrder.Order

	assert.Equal(t, "Voided", order.OrderState)
	assert.Equal(t, "Update", evt.TransactionType)
	require.Len(t, order.OrderItem, 1)
	assert.Equal(t, "Voided", order.OrderItem[0].OrderItemState[0].ItemState.Value)
	assert.Equal(t, "Voided", order.OrderItem[0].MenuProduct.MenuItem[0].ItemType)
	assert.Empty(t, order.Payment)
	assert.Equal(t, AnnotationFullVoid, Annotate(tx))
}

func TestRenderPartialVoid(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{{Name: "Tea", UnitPrice: 1.50, Quantity: 1}}
	tx.Voids = []transaction.Item{{Name: "Coffee", UnitPrice: 2.00, Quantity: 1, IsVoid: true}}
	tx.Payments = []transaction.Payment{{Amount: 1.50, TenderDescription: "VISA"}}
	tx.Summary = summary("SUBTOTAL", 1.50, "TOTAL DUE", 1.50)

	payload, err := Render(tx)
	require.NoError(t, err)
	evt := payload.Event.(*TransactionEvent)
	order := evt.EventTypeOrder.Order

	assert.Equal(t, "Closed", order.OrderState)
	assert.Equal(t, "Update", evt.TransactionType)
	require.Len(t, order.OrderItem, 2)
	assert.Equal(t, "PID42_2", order.OrderItem[1].MenuProduct.MenuProductID)
	assert.Equal(t, "CreditCard", order.Payment[0].TenderType.Value)
	assert.Equal(t, AnnotationPartialVoid, Annotate(tx))
}

func TestRenderSyntheticPayment(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{{Name: "Sandwich", UnitPrice: 5.00, Quantity: 1}}
	tx.Summary = summary("TOTAL DUE", 5.00)

	payload, err := Render(tx)
	require.NoError(t, err)
	order := payload.Event.(*TransactionEvent).EventTypeOrder.Order

	require.Len(t, order.Payment, 1)
	assert.Equal(t, 5.0, order.Payment[0].Amount)
	assert.Equal(t, 0.0, order.Payment[0].Change)
	assert.Equal(t, "Cash", order.Payment[0].TenderType.Value)
	assert.Equal(t, "Accepted", order.Payment[0].Status)
}

func TestRenderTaxDiscountAndComputedChange(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{{Name: "Lunch", UnitPrice: 10.00, Quantity: 1}}
	tx.Payments = []transaction.Payment{
		{Amount: 0, TenderDescription: "VISA"},
		{Amount: 20.00, TenderDescription: "CASH", IsCash: true},
	}
	tx.Summary = summary("SUBTOTAL", 10.00, "DISCOUNT(S)", -1.00, "TAX 6%", 0.545, "TAX 2", 9.0)

	payload, err := Render(tx)
	require.NoError(t, err)
	order := payload.Event.(*TransactionEvent).EventTypeOrder.Order

	assert.Equal(t, 9.0, order.Total.ItemPrice)
	require.Len(t, order.Total.Tax, 1)
	assert.Equal(t, Tax{Amount: 0.55, Description: "Sales Tax"}, order.Total.Tax[0])

	require.Len(t, order.Payment, 1)
	assert.Equal(t, 20.0, order.Payment[0].Amount)
	assert.Equal(t, 10.45, order.Payment[0].Change)
}

func TestRenderReportedChangeWins(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{{Name: "Gum", UnitPrice: 1.25, Quantity: 1}}
	tx.Payments = []transaction.Payment{
		{Amount: 1.00, TenderDescription: "VISA"},
		{Amount: 5.00, TenderDescription: "CASH", IsCash: true, ChangeAmount: change(4.75)},
	}
	tx.Summary = summary("TOTAL DUE", 1.25)

	payload, err := Render(tx)
	require.NoError(t, err)
	order := payload.Event.(*TransactionEvent).EventTypeOrder.Order

	require.Len(t, order.Payment, 2)
	assert.Equal(t, 0.0, order.Payment[0].Change)
	assert.Equal(t, 4.75, order.Payment[1].Change)
}

func TestRenderNegativePaymentDenied(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{{Name: "Gum", UnitPrice: 1.00, Quantity: 1}}
	tx.Payments = []transaction.Payment{{Amount: -1.00, TenderDescription: "DEBIT"}}
	tx.Summary = summary("TOTAL DUE", 1.00)

	payload, err := Render(tx)
	require.NoError(t, err)
	order := payload.Event.(*TransactionEvent).EventTypeOrder.Order
	require.Len(t, order.Payment, 1)
	assert.Equal(t, "Denied", order.Payment[0].Status)
	assert.Equal(t, "DebitCard", order.Payment[0].TenderType.Value)
}

func TestRenderPromotion(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{
		{Name: "Soda", UnitPrice: 2.50, Quantity: 2},
		{Name: "Soda Promo", UnitPrice: 0.50, Quantity: 1},
	}
	tx.Summary = summary("SUBTOTAL", 4.50, "TOTAL DUE", 4.50)

	payload, err := Render(tx)
	require.NoError(t, err)
	order := payload.Event.(*TransactionEvent).EventTypeOrder.Order

	promo := order.OrderItem[1].MenuProduct.MenuItem[0]
	assert.Equal(t, "Promotion", promo.Category)
	assert.Equal(t, -0.50, promo.Pricing[0].ItemPrice)
	assert.Equal(t, 2, order.OrderItem[0].MenuProduct.MenuItem[0].Pricing[0].Quantity)
	assert.Equal(t, AnnotationPromotion, Annotate(tx))
}

func TestRenderRefund(t *testing.T) {
	tx := baseTx(transaction.Refund)
	tx.Items = []transaction.Item{
		{Name: "Coffee", UnitPrice: -2.00, Quantity: 2},
		{Name: "Bag", UnitPrice: -0.105, Quantity: 1},
	}
	tx.Voids = []transaction.Item{{Name: "Tea", UnitPrice: 1, Quantity: 1, IsVoid: true}}
	tx.Payments = []transaction.Payment{
		{Amount: -4.11, TenderDescription: "CASH", IsCash: true},
		{Amount: 0, TenderDescription: "VISA"},
	}

	payload, err := Render(tx)
	require.NoError(t, err)
	assert.Equal(t, ModelRefund, payload.Model)

	evt := payload.Event.(*RefundEvent)
	refund := evt.EventTypeRefund.Refund
	order := refund.RefundTransactionType.Order

	assert.Equal(t, "New", evt.TransactionType)
	assert.Equal(t, -4.11, refund.RefundTotal)
	assert.Equal(t, "Closed", order.OrderState)
	require.Len(t, order.OrderItem, 2)
	assert.Equal(t, "42_1", order.OrderItem[0].MenuProduct.MenuProductID)
	assert.Equal(t, "Refund", order.OrderItem[0].MenuProduct.MenuItem[0].ItemType)
	assert.Equal(t, "Refund", order.OrderItem[0].MenuProduct.MenuItem[0].Category)
	assert.Equal(t, -0.11, order.OrderItem[1].MenuProduct.MenuItem[0].Pricing[0].ItemPrice)
	assert.Equal(t, -4.11, order.Total.ItemPrice)
	require.Len(t, order.Payment, 1)
	assert.Equal(t, "Accepted", order.Payment[0].Status)
	assert.Equal(t, "", string(Annotate(tx)))
}

func TestRenderCashOperation(t *testing.T) {
	tests := []struct {
		operation string
		want      string
	}{
		{"paidout", "PaidOut"},
		{"cashdrop", "Drop"},
		{"drop", "Drop"},
		{"paidin", "PaidIn"},
		{"nosale", "NoSale"},
		{"", "NoSale"},
	}

	for _, tt := range tests {
		tx := baseTx(transaction.CashOperation)
		tx.Operation = tt.operation
		tx.Amount = 50.005

		payload, err := Render(tx)
		require.NoError(t, err)
		assert.Equal(t, ModelCashOperation, payload.Model)

		body := payload.Event.(*CashOperationEvent).EventTypeCashOperation.CashOperation
		assert.Equal(t, tt.want, body.CashOperationType.Value, tt.operation)
		assert.Equal(t, 50.01, body.Amount)
	}
}

func TestRenderDeterministicJSON(t *testing.T) {
	tx := baseTx(transaction.StandardSale)
	tx.Items = []transaction.Item{{Name: "Coffee", UnitPrice: 2.00, Quantity: 1}}
	tx.Summary = summary("SUBTOTAL", 2.00, "TOTAL DUE", 2.00)

	a, err := Render(tx)
	require.NoError(t, err)
	b, err := Render(tx)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
	assert.Contains(t, string(ja), `"model":"Transaction","Event":{"TransactionGUID":`)
}

func TestRenderUnknownClassification(t *testing.T) {
	_, err := Render(baseTx("mystery"))
	assert.Error(t, err)
}
