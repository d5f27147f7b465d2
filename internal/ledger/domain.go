// Package ledger reconciles customer payments against orders, customer
// balances, and the income ledger inside a single transaction.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Income category for customer installment payments.
const IncomeCategoryInstallment = "abono"

var (
	// ErrInvalidAmount indicates a zero or negative payment amount.
	ErrInvalidAmount = errors.New("ledger: payment amount must be positive")
	// ErrAmountExceedsDebt indicates an order-linked payment above the customer's debt.
	ErrAmountExceedsDebt = errors.New("ledger: amount exceeds customer debt")
	// ErrAmountExceedsOrderBalance indicates a payment above the order's remaining balance.
	ErrAmountExceedsOrderBalance = errors.New("ledger: amount exceeds order remaining balance")
	// ErrOrderCustomerMismatch indicates the order does not belong to the paying customer.
	ErrOrderCustomerMismatch = errors.New("ledger: order does not belong to customer")
	// ErrIncomeDuplicate indicates a concurrent insert hit the (invoice_number, company_id) unique index.
	ErrIncomeDuplicate = errors.New("ledger: duplicate income entry")
)

// Payment is an immutable record of one applied customer payment.
// BalanceAfter captures the customer's remaining debt at apply time.
type Payment struct {
	ID           int64           `json:"id"`
	CompanyID    int64           `json:"company_id"`
	CustomerID   int64           `json:"customer_id"`
	OrderID      *int64          `json:"order_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method,omitempty"`
	Note         string          `json:"note,omitempty"`
	Evidence     *string         `json:"evidence,omitempty"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	PaidAt       time.Time       `json:"paid_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// IncomeEntry is one row of the income ledger. Entries carrying an invoice
// number are unique per (invoice_number, company_id).
type IncomeEntry struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	OrderID       *int64          `json:"order_id,omitempty"`
	InvoiceNumber *string         `json:"invoice_number,omitempty"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	CreatedAt     time.Time       `json:"created_at"`
}

// CustomerAccount is the ledger's view of a customer's balance pair. Debt
// and credit are both non-negative; the update rule in applyBalances keeps
// at most one of them non-zero.
type CustomerAccount struct {
	ID        int64
	CompanyID int64
	Debt      decimal.Decimal
	Credit    decimal.Decimal
}

// ApplyPaymentInput carries everything applyPayment needs. PaidAt zero
// means "now".
type ApplyPaymentInput struct {
	CustomerID int64
	Amount     decimal.Decimal
	OrderID    *int64
	Method     string
	Note       string
	Evidence   *string
	PaidAt     time.Time
	ActorID    int64
}
