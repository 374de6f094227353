package stock

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/stockroom/internal/platform/db"
	"github.com/odyssey-erp/stockroom/internal/platform/httpx"
	"github.com/odyssey-erp/stockroom/internal/shared"
)

//go:embed schema.sql
var schemaSQL string

// Repository persists stock records.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Stock, int, error)
	Statistics(ctx context.Context) (Statistics, error)
	Categories(ctx context.Context) ([]string, error)
	Get(ctx context.Context, id int64) (Stock, error)
	Create(ctx context.Context, in Input) (Stock, error)
	Update(ctx context.Context, id int64, in Input) (Stock, error)
	Delete(ctx context.Context, id int64) error
	All(ctx context.Context) ([]Stock, error)
	Upsert(ctx context.Context, rows []Input) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// Migrate creates the stocks table when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("stock: migrate: %w", err)
	}
	return nil
}

const stockColumns = `id, product_code, product_name, category, quantity, unit, price::float8, location, description, created_at, updated_at`

type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Stock, int, error) {
	w := &where{}
	if filters.Search != "" {
		w.add(`(product_code ILIKE ? OR product_name ILIKE ? OR description ILIKE ?)`, "%"+escapeLike(filters.Search)+"%")
	}
	if filters.Category != "" {
		w.add(`category = ?`, filters.Category)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stocks`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("stock: count: %w", err)
	}

	query := `SELECT ` + stockColumns + ` FROM stocks` + w.String() +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.SortOrder) +
		` LIMIT $` + strconv.Itoa(len(w.args)+1) + ` OFFSET $` + strconv.Itoa(len(w.args)+2)
	page := shared.NewPagination(filters.Page, filters.Limit, total)
	args := append(w.args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("stock: list: %w", err)
	}
	stocks, err := pgx.CollectRows(rows, scanStock)
	if err != nil {
		return nil, 0, fmt.Errorf("stock: list: %w", err)
	}
	return stocks, total, nil
}

func (r *repository) Statistics(ctx context.Context) (Statistics, error) {
	var s Statistics
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(quantity * price), 0)::float8,
		       COUNT(*) FILTER (WHERE quantity > 0 AND quantity < $1),
		       COUNT(*) FILTER (WHERE quantity = 0)
		FROM stocks`, LowStockThreshold).Scan(&s.TotalItems, &s.TotalValue, &s.LowStockItems, &s.OutOfStockItems)
	if err != nil {
		return Statistics{}, fmt.Errorf("stock: statistics: %w", err)
	}
	return s, nil
}

func (r *repository) Categories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM stocks ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("stock: categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("stock: categories: %w", err)
	}
	return categories, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Stock, error) {
	rows, _ := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks WHERE id = $1`, id)
	s, err := pgx.CollectExactlyOneRow(rows, scanStock)
	if err != nil {
		return Stock{}, mapError(fmt.Sprintf("stock %d", id), err)
	}
	return s, nil
}

func (r *repository) Create(ctx context.Context, in Input) (Stock, error) {
	rows, _ := r.pool.Query(ctx, `
		INSERT INTO stocks (product_code, product_name, category, quantity, unit, price, location, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING `+stockColumns,
		in.ProductCode, in.ProductName, in.Category, in.Quantity, in.Unit, in.Price, in.Location, in.Description, time.Now())
	s, err := pgx.CollectExactlyOneRow(rows, scanStock)
	if err != nil {
		return Stock{}, mapError("product code "+in.ProductCode, err)
	}
	return s, nil
}

func (r *repository) Update(ctx context.Context, id int64, in Input) (Stock, error) {
	rows, _ := r.pool.Query(ctx, `
		UPDATE stocks SET product_code = $1, product_name = $2, category = $3, quantity = $4, unit = $5,
		       price = $6, location = $7, description = $8, updated_at = $9
		WHERE id = $10
		RETURNING `+stockColumns,
		in.ProductCode, in.ProductName, in.Category, in.Quantity, in.Unit, in.Price, in.Location, in.Description, time.Now(), id)
	s, err := pgx.CollectExactlyOneRow(rows, scanStock)
	if err != nil {
		return Stock{}, mapError(fmt.Sprintf("stock %d", id), err)
	}
	return s, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stocks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("stock: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock %d: %w", id, httpx.ErrNotFound)
	}
	return nil
}

func (r *repository) All(ctx context.Context) ([]Stock, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+stockColumns+` FROM stocks ORDER BY product_code`)
	if err != nil {
		return nil, fmt.Errorf("stock: all: %w", err)
	}
	stocks, err := pgx.CollectRows(rows, scanStock)
	if err != nil {
		return nil, fmt.Errorf("stock: all: %w", err)
	}
	return stocks, nil
}

// Upsert writes rows keyed by product code in a single transaction.
func (r *repository) Upsert(ctx context.Context, rows []Input) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	now := time.Now()
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, in := range rows {
			batch.Queue(`
				INSERT INTO stocks (product_code, product_name, category, quantity, unit, price, location, description, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
				ON CONFLICT (product_code) DO UPDATE SET
				    product_name = EXCLUDED.product_name,
				    category = EXCLUDED.category,
				    quantity = EXCLUDED.quantity,
				    unit = EXCLUDED.unit,
				    price = EXCLUDED.price,
				    location = EXCLUDED.location,
				    description = EXCLUDED.description,
				    updated_at = EXCLUDED.updated_at`,
				in.ProductCode, in.ProductName, in.Category, in.Quantity, in.Unit, in.Price, in.Location, in.Description, now)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return 0, fmt.Errorf("stock: upsert: %w", err)
	}
	return len(rows), nil
}

func scanStock(row pgx.CollectableRow) (Stock, error) {
	var s Stock
	err := row.Scan(&s.ID, &s.ProductCode, &s.ProductName, &s.Category, &s.Quantity, &s.Unit, &s.Price, &s.Location, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func mapError(subject string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", subject, httpx.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%s already exists: %w", subject, httpx.ErrDuplicate)
	}
	return fmt.Errorf("stock: %w", err)
}

func sortOrder(sortBy, sortOrder string) string {
	dir := "ASC"
	if sortOrder == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "product_code", "product_name", "category", "quantity", "price", "location", "updated_at":
		return sortBy + " " + dir + ", id " + dir
	default:
		return "updated_at " + dir + ", id " + dir
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
