package customers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comercia-app/comercia/internal/shared"
)

var ErrNotFound = errors.New("customers: not found")

type Repository interface {
	Get(ctx context.Context, id int64) (*Customer, error)
	List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error)
	Create(ctx context.Context, customer Customer) (int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const customerColumns = `id, company_id, name, email, phone, tax_id, debt, credit, is_active, created_at, updated_at`

func scanCustomer(row pgx.Row) (*Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.TaxID, &c.Debt, &c.Credit, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Customer, error) {
	return scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM customers WHERE company_id = $1`
	args := []interface{}{req.CompanyID}
	argCount := 1

	if req.Search != "" {
		argCount++
		clause := ` AND name ILIKE $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, "%"+req.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}
	argCount++
	query += ` ORDER BY name LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *c)
	}
	return items, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, customer Customer) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO customers (company_id, name, email, phone, tax_id, debt, credit, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, 0, $6, NOW(), NOW()) RETURNING id`,
		customer.CompanyID, customer.Name, customer.Email, customer.Phone, customer.TaxID, customer.IsActive,
	).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE customers SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"name", "email", "phone", "tax_id", "is_active"} {
		if v, ok := updates[col]; ok {
			query += ", " + col + " = $" + strconv.Itoa(argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += " WHERE id = $" + strconv.Itoa(argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
