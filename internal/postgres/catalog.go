package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/jackc/pgx/v5"
)

const productColumns = `id, name, unit, unit_price, discount_fraction, available_quantity, in_stock, updated_at`

func scanProduct(row pgx.CollectableRow) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Unit, &p.UnitPrice, &p.DiscountFraction, &p.AvailableQuantity, &p.InStock, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]orders.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	out := make(map[string]orders.Product, len(list))
	for _, p := range list {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return list, nil
}

func (s *Store) LowStock(ctx context.Context, threshold, limit int) ([]orders.Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE in_stock AND available_quantity > 0 AND available_quantity <= $1
		ORDER BY available_quantity, id
		LIMIT $2`, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("low stock: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return list, nil
}

// UpsertProduct is used by seeding and catalog imports.
func (s *Store) UpsertProduct(ctx context.Context, p orders.Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, unit, unit_price, discount_fraction, available_quantity, in_stock, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, unit = EXCLUDED.unit, unit_price = EXCLUDED.unit_price,
			discount_fraction = EXCLUDED.discount_fraction, available_quantity = EXCLUDED.available_quantity,
			in_stock = EXCLUDED.in_stock, updated_at = now()`,
		p.ID, p.Name, p.Unit, p.UnitPrice, p.DiscountFraction, p.AvailableQuantity, p.InStock,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}
