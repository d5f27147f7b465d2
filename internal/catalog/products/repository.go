package products

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comercia-app/comercia/internal/shared"
)

// ErrStockDepleted indicates a decrement would drive stock below zero.
var ErrStockDepleted = errors.New("products: insufficient stock for decrement")

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	ListByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
	AdjustStock(ctx context.Context, id int64, delta int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, company_id, code, name, price, stock, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.Price, &p.Stock, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE company_id = $1`
	countQuery := `SELECT COUNT(*) FROM products WHERE company_id = $1`
	args := []interface{}{filters.CompanyID}
	argCount := 1

	if filters.Search != "" {
		argCount++
		clause := ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		query += clause
		countQuery += clause
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		argCount++
		clause := ` AND is_active = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, filters.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *repository) ListByIDs(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO products (company_id, code, name, price, stock, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW()) RETURNING id, created_at, updated_at`,
		product.CompanyID, product.Code, product.Name, product.Price, product.Stock, product.IsActive,
	).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

func (r *repository) Update(ctx context.Context, id int64, product Product) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET code=$1, name=$2, price=$3, is_active=$4, updated_at=NOW() WHERE id=$5`,
		product.Code, product.Name, product.Price, product.IsActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AdjustStock applies a signed stock delta. Decrements that would drive the
// counter negative are rejected without modifying the row.
func (r *repository) AdjustStock(ctx context.Context, id int64, delta int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2 AND stock + $1 >= 0`, delta, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		return ErrStockDepleted
	}
	return nil
}
