package customers

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer belongs to one company and carries two running balances.
// Debt is what the customer owes; credit is what the company owes the
// customer. The ledger is the only writer of either balance.
type Customer struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Name      string          `json:"name"`
	Email     *string         `json:"email,omitempty"`
	Phone     *string         `json:"phone,omitempty"`
	TaxID     *string         `json:"tax_id,omitempty"`
	Debt      decimal.Decimal `json:"debt"`
	Credit    decimal.Decimal `json:"credit"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
