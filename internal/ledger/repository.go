package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/comercia-app/comercia/internal/platform/db"
	"github.com/comercia-app/comercia/internal/sales/orders"
	"github.com/comercia-app/comercia/internal/shared"
)

// Repository provides ledger persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListPayments(ctx context.Context, customerID int64, limit, offset int) ([]Payment, error)
}

// TxRepository exposes the transactional operations applyPayment uses.
// Every method runs on the same underlying transaction.
type TxRepository interface {
	GetCustomerForUpdate(ctx context.Context, id int64) (CustomerAccount, error)
	UpdateCustomerBalance(ctx context.Context, id int64, debt, credit decimal.Decimal) error
	GetOrderWithLines(ctx context.Context, id int64) (*orders.Order, error)
	SumOrderPayments(ctx context.Context, orderID int64) (decimal.Decimal, error)
	InsertPayment(ctx context.Context, p Payment) (int64, error)
	FindIncomeForUpdate(ctx context.Context, invoiceNumber string, companyID int64) (*IncomeEntry, error)
	LinkIncomeToOrder(ctx context.Context, incomeID, orderID int64) error
	InsertIncome(ctx context.Context, entry IncomeEntry) (int64, error)
	UpdateOrderPaymentState(ctx context.Context, orderID int64, paid, balanceAfter decimal.Decimal, status orders.PaymentStatus) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction. The customer row
// lock taken by GetCustomerForUpdate lives until commit or rollback, which
// serializes concurrent payments against the same customer.
func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const paymentColumns = `id, company_id, customer_id, order_id, amount, method, note, evidence, balance_after, paid_at, created_at`

func (r *repository) ListPayments(ctx context.Context, customerID int64, limit, offset int) ([]Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE customer_id = $1
		ORDER BY paid_at DESC, id DESC
		LIMIT $2 OFFSET $3`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.CustomerID, &p.OrderID, &p.Amount, &p.Method, &p.Note, &p.Evidence, &p.BalanceAfter, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (t *txRepo) GetCustomerForUpdate(ctx context.Context, id int64) (CustomerAccount, error) {
	var acct CustomerAccount
	err := t.tx.QueryRow(ctx, `
		SELECT id, company_id, debt, credit
		FROM customers
		WHERE id = $1
		FOR UPDATE`, id).Scan(&acct.ID, &acct.CompanyID, &acct.Debt, &acct.Credit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CustomerAccount{}, fmt.Errorf("%w: customer %d", shared.ErrNotFound, id)
		}
		return CustomerAccount{}, err
	}
	return acct, nil
}

func (t *txRepo) UpdateCustomerBalance(ctx context.Context, id int64, debt, credit decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE customers SET debt = $1, credit = $2, updated_at = now()
		WHERE id = $3`, debt, credit, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) GetOrderWithLines(ctx context.Context, id int64) (*orders.Order, error) {
	var o orders.Order
	err := t.tx.QueryRow(ctx, `
		SELECT id, code, company_id, customer_id, status, paid_amount, balance_after, payment_status, created_at, updated_at
		FROM sales_orders
		WHERE id = $1`, id).Scan(&o.ID, &o.Code, &o.CompanyID, &o.CustomerID, &o.Status, &o.PaidAmount, &o.BalanceAfter, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %d", shared.ErrNotFound, id)
		}
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price
		FROM sales_order_lines
		WHERE order_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line orders.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *txRepo) SumOrderPayments(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1`, orderID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO payments (company_id, customer_id, order_id, amount, method, note, evidence, balance_after, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING id`,
		p.CompanyID, p.CustomerID, p.OrderID, p.Amount, p.Method, p.Note, p.Evidence, p.BalanceAfter, p.PaidAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert payment: %w", err)
	}
	return id, nil
}

func (t *txRepo) FindIncomeForUpdate(ctx context.Context, invoiceNumber string, companyID int64) (*IncomeEntry, error) {
	var entry IncomeEntry
	err := t.tx.QueryRow(ctx, `
		SELECT id, company_id, customer_id, order_id, invoice_number, category, amount, date, created_at
		FROM income_entries
		WHERE invoice_number = $1 AND company_id = $2
		FOR UPDATE`, invoiceNumber, companyID).
		Scan(&entry.ID, &entry.CompanyID, &entry.CustomerID, &entry.OrderID, &entry.InvoiceNumber, &entry.Category, &entry.Amount, &entry.Date, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (t *txRepo) LinkIncomeToOrder(ctx context.Context, incomeID, orderID int64) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE income_entries SET order_id = $1 WHERE id = $2 AND order_id IS NULL`, orderID, incomeID)
	return err
}

func (t *txRepo) InsertIncome(ctx context.Context, entry IncomeEntry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO income_entries (company_id, customer_id, order_id, invoice_number, category, amount, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id`,
		entry.CompanyID, entry.CustomerID, entry.OrderID, entry.InvoiceNumber, entry.Category, entry.Amount, entry.Date).Scan(&id)
	if err != nil {
		// The unique index on (invoice_number, company_id) backs up the
		// FOR UPDATE dedup check against races outside the customer lock.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrIncomeDuplicate
		}
		return 0, fmt.Errorf("ledger: insert income: %w", err)
	}
	return id, nil
}

func (t *txRepo) UpdateOrderPaymentState(ctx context.Context, orderID int64, paid, balanceAfter decimal.Decimal, status orders.PaymentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sales_orders
		SET paid_amount = $1, balance_after = $2, payment_status = $3, updated_at = now()
		WHERE id = $4`, paid, balanceAfter, status, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
