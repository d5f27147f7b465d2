package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a sellable item with a price and a stock counter.
type Product struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListFilters narrows product listings.
type ListFilters struct {
	CompanyID int64
	Search    string
	IsActive  *bool
	Limit     int
	Offset    int
}
