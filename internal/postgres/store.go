// Package postgres is the production order store. Stock rows are locked with
// SELECT ... FOR UPDATE in product id order, and order status writes are
// conditional on the status the caller read.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct{ DB *pgxpool.Pool }

func NewStore(pool *pgxpool.Pool) *Store { return &Store{DB: pool} }

type tx struct{ q pgx.Tx }

func (t tx) Ledger() inventory.Ledger { return ledger{t.q} }
func (t tx) Orders() orders.TxOrders  { return orderRepo{t.q} }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	pgtx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(ctx, tx{pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) NextOrderSequence(ctx context.Context) (int64, error) {
	var n int64
	if err := s.DB.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("next order sequence: %w", err)
	}
	return n, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	return loadOrder(ctx, s.DB, id, false)
}

func (s *Store) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, int, error) {
	where, args := listWhere(f)

	var total int
	if err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + where + ` ORDER BY created_at DESC, order_number DESC`
	if f.Limit > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		args = append(args, f.Limit, (page-1)*f.Limit)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.Order, error) {
		o, err := scanOrder(row)
		if err != nil {
			return orders.Order{}, err
		}
		return *o, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan orders: %w", err)
	}
	if err := attachItems(ctx, s.DB, out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// listWhere builds the filter clause shared by the count and the page query.
func listWhere(f orders.ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("created_at <= $%d", *f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) Summarize(ctx context.Context, customerID string) (orders.Summary, error) {
	query := `SELECT status, COUNT(*), COALESCE(SUM(final_amount), 0) FROM orders`
	var args []any
	if customerID != "" {
		query += ` WHERE customer_id = $1`
		args = append(args, customerID)
	}
	query += ` GROUP BY status`

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return orders.Summary{}, fmt.Errorf("summarize orders: %w", err)
	}
	defer rows.Close()

	sum := orders.Summary{ByStatus: map[orders.Status]int{}, Revenue: decimal.Zero}
	for rows.Next() {
		var (
			status string
			n      int
			amount decimal.Decimal
		)
		if err := rows.Scan(&status, &n, &amount); err != nil {
			return orders.Summary{}, err
		}
		sum.Total += n
		sum.ByStatus[orders.Status(status)] = n
		if orders.Status(status) != orders.StatusCancelled {
			sum.Revenue = sum.Revenue.Add(amount)
		}
	}
	return sum, rows.Err()
}

func (s *Store) MonthlyRevenue(ctx context.Context, year int) ([]orders.MonthTotal, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT EXTRACT(MONTH FROM created_at AT TIME ZONE 'UTC')::int AS month,
			COUNT(*)::int, COALESCE(SUM(final_amount), 0)
		FROM orders
		WHERE status <> 'cancelled' AND EXTRACT(YEAR FROM created_at AT TIME ZONE 'UTC')::int = $1
		GROUP BY month ORDER BY month`, year)
	if err != nil {
		return nil, fmt.Errorf("monthly revenue: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (orders.MonthTotal, error) {
		var t orders.MonthTotal
		err := row.Scan(&t.Month, &t.Orders, &t.Revenue)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan monthly revenue: %w", err)
	}
	return out, nil
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
