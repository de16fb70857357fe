package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, order_number, customer_id, customer_name, customer_phone, customer_address, customer_email,
	merchandise_total, shipping_fee, discount_amount, final_amount,
	status, payment_method, payment_status, note, stock_released,
	created_at, confirmed_at, shipped_at, delivered_at, cancelled_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*orders.Order, error) {
	var (
		o          orders.Order
		customerID *string
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &customerID, &o.Customer.Name, &o.Customer.Phone, &o.Customer.Address, &o.Customer.Email,
		&o.Totals.MerchandiseTotal, &o.Totals.ShippingFee, &o.Totals.DiscountAmount, &o.Totals.FinalAmount,
		(*string)(&o.Status), (*string)(&o.PaymentMethod), (*string)(&o.PaymentStatus), &o.Note, &o.StockReleased,
		&o.Timestamps.CreatedAt, &o.Timestamps.ConfirmedAt, &o.Timestamps.ShippedAt, &o.Timestamps.DeliveredAt, &o.Timestamps.CancelledAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID != nil {
		o.Customer.CustomerID = *customerID
	}
	return &o, nil
}

func loadOrder(ctx context.Context, q querier, id string, forUpdate bool) (*orders.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	o, err := scanOrder(q.QueryRow(ctx, query, id))
	if isNoRows(err) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	list := []orders.Order{*o}
	if err := attachItems(ctx, q, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func attachItems(ctx context.Context, q querier, list []orders.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	index := make(map[string]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		index[o.ID] = i
	}
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, name, unit_price, discount_fraction, quantity, line_subtotal
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			li      orders.LineItem
		)
		if err := rows.Scan(&orderID, &li.ProductID, &li.Name, &li.UnitPrice, &li.DiscountFraction, &li.Quantity, &li.LineSubtotal); err != nil {
			return err
		}
		i := index[orderID]
		list[i].Items = append(list[i].Items, li)
	}
	return rows.Err()
}

type orderRepo struct{ q pgx.Tx }

func (r orderRepo) Insert(ctx context.Context, o *orders.Order) error {
	ts := o.Timestamps
	_, err := r.q.Exec(ctx, `
		INSERT INTO orders(`+orderColumns+`)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		o.ID, o.OrderNumber, o.Customer.CustomerID, o.Customer.Name, o.Customer.Phone, o.Customer.Address, o.Customer.Email,
		o.Totals.MerchandiseTotal, o.Totals.ShippingFee, o.Totals.DiscountAmount, o.Totals.FinalAmount,
		string(o.Status), string(o.PaymentMethod), string(o.PaymentStatus), o.Note, o.StockReleased,
		ts.CreatedAt, ts.ConfirmedAt, ts.ShippedAt, ts.DeliveredAt, ts.CancelledAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, li := range o.Items {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO order_items(order_id, position, product_id, name, unit_price, discount_fraction, quantity, line_subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, i, li.ProductID, li.Name, li.UnitPrice, li.DiscountFraction, li.Quantity, li.LineSubtotal,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r orderRepo) GetForUpdate(ctx context.Context, id string) (*orders.Order, error) {
	return loadOrder(ctx, r.q, id, true)
}

// Update writes the mutable lifecycle columns. Line items and totals are never rewritten.
func (r orderRepo) Update(ctx context.Context, o *orders.Order, expected orders.Status) error {
	ts := o.Timestamps
	ct, err := r.q.Exec(ctx, `
		UPDATE orders SET
			status = $3, payment_status = $4, note = $5, stock_released = $6,
			confirmed_at = $7, shipped_at = $8, delivered_at = $9, cancelled_at = $10, updated_at = $11
		WHERE id = $1 AND status = $2`,
		o.ID, string(expected),
		string(o.Status), string(o.PaymentStatus), o.Note, o.StockReleased,
		ts.ConfirmedAt, ts.ShippedAt, ts.DeliveredAt, ts.CancelledAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if ct.RowsAffected() != 1 {
		return orders.ErrStaleOrder
	}
	return nil
}
