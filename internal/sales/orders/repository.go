package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comercia-app/comercia/internal/platform/db"
	"github.com/comercia-app/comercia/internal/shared"
)

// ErrCodeTaken reports an order-code collision with a concurrent insert.
// The unique index on (company_id, code) raises it; callers retry with a
// freshly generated code.
var ErrCodeTaken = errors.New("orders: code already taken")

// Repository persists orders in PostgreSQL.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id int64, status OrderStatus) error
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	GenerateCode(ctx context.Context, companyID int64) (string, error)
	Insert(ctx context.Context, order Order) (int64, error)
	InsertLines(ctx context.Context, orderID int64, lines []OrderLine) error
	DeleteLines(ctx context.Context, orderID int64) error
	UpdateStatus(ctx context.Context, id int64, status OrderStatus) error
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

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const orderColumns = `id, code, company_id, customer_id, status, paid_amount, balance_after, payment_status, created_at, updated_at`

type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Code, &o.CompanyID, &o.CustomerID, &o.Status, &o.PaidAmount, &o.BalanceAfter, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func loadLines(ctx context.Context, q rowQuerier, orderID int64) ([]OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price
		FROM sales_order_lines
		WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func getOrder(ctx context.Context, q rowQuerier, id int64, lock bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Order, error) {
	return getOrder(ctx, r.pool, id, false)
}

func (r *repository) List(ctx context.Context, req ListOrdersRequest) ([]Order, int, error) {
	query := `SELECT ` + orderColumns + ` FROM sales_orders WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM sales_orders WHERE company_id = $1`
	args := []interface{}{req.CompanyID}
	argCount := 1

	if req.Status != nil {
		argCount++
		clause := ` AND status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, *req.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Code, &o.CompanyID, &o.CustomerID, &o.Status, &o.PaidAmount, &o.BalanceAfter, &o.PaymentStatus, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status OrderStatus) error {
	return updateStatus(ctx, r.pool, id, status)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (*Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

// GenerateCode produces a human-readable order code, sequential per
// company and month: ORD-2603-0042. The count is only a hint; the unique
// index on (company_id, code) is what enforces uniqueness, and Insert
// reports a collision as ErrCodeTaken.
func (t *txRepo) GenerateCode(ctx context.Context, companyID int64) (string, error) {
	now := time.Now().UTC()
	prefix := fmt.Sprintf("ORD-%s-", now.Format("0601"))
	var seq int64
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) + 1 FROM sales_orders
		WHERE company_id = $1 AND code LIKE $2`, companyID, prefix+"%").Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

func (t *txRepo) Insert(ctx context.Context, order Order) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales_orders (code, company_id, customer_id, status, paid_amount, balance_after, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id`,
		order.Code, order.CompanyID, order.CustomerID, order.Status,
		order.PaidAmount, order.BalanceAfter, order.PaymentStatus).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: %s", ErrCodeTaken, order.Code)
		}
		return 0, fmt.Errorf("orders: insert: %w", err)
	}
	return id, nil
}

func (t *txRepo) InsertLines(ctx context.Context, orderID int64, lines []OrderLine) error {
	for _, line := range lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO sales_order_lines (order_id, product_id, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("orders: insert line: %w", err)
		}
	}
	return nil
}

func (t *txRepo) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM sales_order_lines WHERE order_id = $1`, orderID)
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status OrderStatus) error {
	return updateStatus(ctx, t.tx, id, status)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func updateStatus(ctx context.Context, db execer, id int64, status OrderStatus) error {
	tag, err := db.Exec(ctx, `UPDATE sales_orders SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
