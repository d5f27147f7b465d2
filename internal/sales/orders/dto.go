package orders

import "github.com/shopspring/decimal"

type CreateOrderRequest struct {
	CompanyID  int64                `json:"company_id" validate:"required,gt=0"`
	CustomerID *int64               `json:"customer_id,omitempty" validate:"omitempty,gt=0"`
	Items      []CreateOrderItemReq `json:"items" validate:"required,min=1,dive"`
}

type CreateOrderItemReq struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

// Wire values accepted by the status-update operation.
const (
	WireStatusUnshipped = "sin_enviar"
	WireStatusShipped   = "enviado"
)

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=sin_enviar enviado"`
}

// ConfirmResult is returned when an order passes confirmation.
type ConfirmResult struct {
	OrderCode string          `json:"order_code"`
	Total     decimal.Decimal `json:"total"`
	Summary   string          `json:"summary"`
}

type ListOrdersRequest struct {
	CompanyID int64
	Status    *OrderStatus
	Limit     int
	Offset    int
}
