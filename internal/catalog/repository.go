package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_storefront/internal/apperr"
	"github.com/lib/pq"
)

var ErrProductNotFound = apperr.New(apperr.ErrNotFound, "product not found")

type Repository interface {
	ListProducts(ctx context.Context) ([]*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetStock(ctx context.Context, id string) (StockInfo, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const productColumns = `
	p.id, p.name, p.description, p.price, p.image_url,
	p.category_id, c.name, c.slug, p.stock, p.created_at`

func (r *PostgresRepository) ListProducts(ctx context.Context) ([]*Product, error) {
	query := `SELECT` + productColumns + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		ORDER BY p.created_at, p.id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.attachSizes(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*Product, error) {
	query := `SELECT` + productColumns + `
		FROM products p
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := r.attachSizes(ctx, []*Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) GetStock(ctx context.Context, id string) (StockInfo, error) {
	p := &Product{ID: id}
	err := r.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return StockInfo{}, ErrProductNotFound
	}
	if err != nil {
		return StockInfo{}, fmt.Errorf("query stock: %w", err)
	}

	if err := r.attachSizes(ctx, []*Product{p}); err != nil {
		return StockInfo{}, err
	}
	return p.StockInfo(), nil
}

func (r *PostgresRepository) attachSizes(ctx context.Context, products []*Product) error {
	if len(products) == 0 {
		return nil
	}
	byID := make(map[string]*Product, len(products))
	ids := make([]string, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, size, stock
		FROM product_sizes
		WHERE product_id = ANY($1)
		ORDER BY product_id, sort_order, size`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query sizes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var s SizeStock
		if err := rows.Scan(&productID, &s.Size, &s.Stock); err != nil {
			return fmt.Errorf("failed to scan size: %w", err)
		}
		if p, ok := byID[productID]; ok {
			p.Sizes = append(p.Sizes, s)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	p := &Product{}
	var categoryID, categoryName, categorySlug sql.NullString
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.ImageURL,
		&categoryID,
		&categoryName,
		&categorySlug,
		&p.Stock,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.Category = resolveCategory(categoryID, categoryName, categorySlug)
	return p, nil
}

// resolveCategory turns the joined columns into one Category shape. A
// category id without a matching row stays a bare reference.
func resolveCategory(id, name, slug sql.NullString) Category {
	switch {
	case !id.Valid || id.String == "":
		return nil
	case name.Valid:
		return CategoryRecord{ID: id.String, Name: name.String, Slug: slug.String}
	default:
		return CategoryRef{ID: id.String}
	}
}
