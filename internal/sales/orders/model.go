package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks fulfillment progress. Transitions are one-directional:
// received -> in_process -> shipped.
type OrderStatus string

const (
	OrderStatusReceived  OrderStatus = "received"
	OrderStatusInProcess OrderStatus = "in_process"
	OrderStatusShipped   OrderStatus = "shipped"
)

// PaymentStatus tracks how much of the order total has been settled.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusDebt    PaymentStatus = "debt"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type Order struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	CompanyID     int64           `json:"company_id"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	Status        OrderStatus     `json:"status"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Lines         []OrderLine     `json:"lines,omitempty"`
}

// OrderLine references one product with the unit price captured at order
// time. At most one line exists per distinct product on a persisted order.
type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}
