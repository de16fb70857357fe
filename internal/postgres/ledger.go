package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/jackc/pgx/v5"
)

type ledger struct{ q pgx.Tx }

// lockStock locks the product rows in id order and returns their quantities.
func (l ledger) lockStock(ctx context.Context, items []inventory.Item) (map[string]int, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	rows, err := l.q.Query(ctx, `
		SELECT id, available_quantity FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock stock: %w", err)
	}
	defer rows.Close()

	stock := make(map[string]int, len(items))
	for rows.Next() {
		var (
			id  string
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		stock[id] = qty
	}
	return stock, rows.Err()
}

func (l ledger) Reserve(ctx context.Context, items []inventory.Item) error {
	items = inventory.Normalize(items)
	if err := inventory.Validate(items); err != nil {
		return err
	}
	stock, err := l.lockStock(ctx, items)
	if err != nil {
		return err
	}

	var shortages []inventory.Shortage
	for _, it := range items {
		if avail := stock[it.ProductID]; avail < it.Qty {
			shortages = append(shortages, inventory.Shortage{ProductID: it.ProductID, Required: it.Qty, Available: avail})
		}
	}
	if len(shortages) > 0 {
		return inventory.InsufficientStock(shortages)
	}

	for _, it := range items {
		ct, err := l.q.Exec(ctx, `
			UPDATE products SET available_quantity = available_quantity - $2, updated_at = now()
			WHERE id = $1 AND available_quantity >= $2`, it.ProductID, it.Qty)
		if err != nil {
			return fmt.Errorf("decrement stock %s: %w", it.ProductID, err)
		}
		if ct.RowsAffected() != 1 {
			return inventory.InsufficientStock([]inventory.Shortage{{ProductID: it.ProductID, Required: it.Qty, Available: stock[it.ProductID]}})
		}
	}
	return nil
}

func (l ledger) Release(ctx context.Context, items []inventory.Item) error {
	items = inventory.Normalize(items)
	if len(items) == 0 {
		return nil
	}
	if _, err := l.lockStock(ctx, items); err != nil {
		return err
	}
	// products deleted since checkout simply match no row
	for _, it := range items {
		if _, err := l.q.Exec(ctx, `
			UPDATE products SET available_quantity = available_quantity + $2, updated_at = now()
			WHERE id = $1`, it.ProductID, it.Qty); err != nil {
			return fmt.Errorf("restock %s: %w", it.ProductID, err)
		}
	}
	return nil
}

func (l ledger) SetAvailable(ctx context.Context, productID string, qty int) (int, error) {
	var prev int
	err := l.q.QueryRow(ctx, `SELECT available_quantity FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, inventory.ErrUnknownProduct
	}
	if err != nil {
		return 0, fmt.Errorf("lock stock %s: %w", productID, err)
	}
	if _, err := l.q.Exec(ctx, `
		UPDATE products SET available_quantity = $2, updated_at = now()
		WHERE id = $1`, productID, qty); err != nil {
		return 0, fmt.Errorf("set stock %s: %w", productID, err)
	}
	return prev, nil
}
