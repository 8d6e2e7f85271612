package render

// Payload models accepted by the partner API
const (
	ModelCashOperation = "CashOperation"
	ModelTransaction   = "Transaction"
	ModelRefund        = "RefundTransaction"
)

// Payload is the outbound request body. Event holds one of
// *CashOperationEvent, *TransactionEvent or *RefundEvent.
type Payload struct {
	Model string `json:"model"`
	Event any    `json:"Event"`
}

type Location struct {
	LocationID  string `json:"LocationID"`
	Description string `json:"Description"`
}

type Device struct {
	DeviceID          string `json:"DeviceID"`
	DeviceDescription string `json:"DeviceDescription"`
}

type Employee struct {
	EmployeeID       string `json:"EmployeeID"`
	EmployeeFullName string `json:"EmployeeFullName"`
}

// Header is embedded in every event
type Header struct {
	TransactionGUID          string   `json:"TransactionGUID"`
	TransactionDateTimeStamp string   `json:"TransactionDateTimeStamp"`
	TransactionType          string   `json:"TransactionType"`
	BusinessDate             string   `json:"BusinessDate"`
	Location                 Location `json:"Location"`
	TransactionDevice        Device   `json:"TransactionDevice"`
	Employee                 Employee `json:"Employee"`
}

type Value struct {
	Value string `json:"value"`
}

type CashOperationEvent struct {
	Header
	EventTypeCashOperation struct {
		CashOperation CashOperationBody `json:"CashOperation"`
	} `json:"EventTypeCashOperation"`
}

type CashOperationBody struct {
	CashOperationType Value   `json:"CashOperationType"`
	Amount            float64 `json:"Amount"`
}

type TransactionEvent struct {
	Header
	EventTypeOrder struct {
		Order Order `json:"Order"`
	} `json:"EventTypeOrder"`
}

type RefundEvent struct {
	Header
	EventTypeRefund struct {
		Refund RefundBody `json:"Refund"`
	} `json:"EventTypeRefund"`
}

type RefundBody struct {
	RefundTotal           float64 `json:"RefundTotal"`
	RefundTransactionType struct {
		Order Order `json:"Order"`
	} `json:"RefundTransactionType"`
}

type Order struct {
	OrderID        string      `json:"OrderID"`
	OrderNumber    int         `json:"OrderNumber"`
	OrderTime      string      `json:"OrderTime"`
	OrderState     string      `json:"OrderState"`
	OrderItem      []OrderItem `json:"OrderItem"`
	Total          Total       `json:"Total"`
	OrderItemCount int         `json:"OrderItemCount"`
	Payment        []Payment   `json:"Payment"`
}

type OrderItem struct {
	OrderItemState []ItemState `json:"OrderItemState"`
	MenuProduct    MenuProduct `json:"MenuProduct"`
}

type ItemState struct {
	ItemState Value  `json:"ItemState"`
	Timestamp string `json:"Timestamp"`
}

type MenuProduct struct {
	MenuProductID string     `json:"menuProductID"`
	Name          string     `json:"name"`
	MenuItem      []MenuItem `json:"MenuItem"`
	SKU           SKU        `json:"SKU"`
}

type MenuItem struct {
	ItemType    string    `json:"ItemType"`
	Category    string    `json:"Category"`
	ID          string    `json:"iD"`
	Description string    `json:"Description"`
	Pricing     []Pricing `json:"Pricing"`
	SKU         SKU       `json:"SKU"`
}

type Pricing struct {
	Tax       []Tax   `json:"Tax"`
	ItemPrice float64 `json:"ItemPrice"`
	Quantity  int     `json:"Quantity"`
}

type SKU struct {
	ProductName string `json:"productName"`
	ProductCode string `json:"productCode"`
}

type Tax struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"Description"`
}

type Total struct {
	ItemPrice float64 `json:"ItemPrice"`
	Tax       []Tax   `json:"Tax"`
}

type Payment struct {
	Timestamp  string  `json:"Timestamp"`
	Status     string  `json:"Status"`
	Amount     float64 `json:"Amount"`
	Change     float64 `json:"Change"`
	TenderType Value   `json:"TenderType"`
}
