// Package memstore is an in-process implementation of the order store, the catalog
// and the inventory ledger. Row locks are held until the unit of work ends and writes
// are staged until commit, so it gives the same isolation the postgres store gets
// from SELECT ... FOR UPDATE.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/shopspring/decimal"
)

var ErrDuplicateOrder = errors.New("memstore: order id or number already exists")

// rowLock is a mutex that gives up when the context is done.
type rowLock chan struct{}

func newRowLock() rowLock { return make(rowLock, 1) }

func (l rowLock) lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l rowLock) unlock() { <-l }

type Store struct {
	locksMu    sync.Mutex
	productLks map[string]rowLock
	orderLks   map[string]rowLock

	mu       sync.RWMutex
	products map[string]orders.Product
	orders   map[string]*orders.Order
	numbers  map[string]string

	seq atomic.Int64
}

func New() *Store {
	return &Store{
		productLks: map[string]rowLock{},
		orderLks:   map[string]rowLock{},
		products:   map[string]orders.Product{},
		orders:     map[string]*orders.Order{},
		numbers:    map[string]string{},
	}
}

// PutProduct inserts or replaces a catalog entry.
func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// Available reports the committed available quantity of a product.
func (s *Store) Available(productID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	return p.AvailableQuantity, ok
}

func (s *Store) GetProducts(_ context.Context, ids []string) (map[string]orders.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) ListProducts(context.Context) ([]orders.Product, error) {
	s.mu.RLock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) LowStock(_ context.Context, threshold, limit int) ([]orders.Product, error) {
	s.mu.RLock()
	out := make([]orders.Product, 0)
	for _, p := range s.products {
		if p.InStock && p.AvailableQuantity > 0 && p.AvailableQuantity <= threshold {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvailableQuantity != out[j].AvailableQuantity {
			return out[i].AvailableQuantity < out[j].AvailableQuantity
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) NextOrderSequence(context.Context) (int64, error) {
	return s.seq.Add(1), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, int, error) {
	s.mu.RLock()
	matched := make([]orders.Order, 0)
	for _, o := range s.orders {
		if matches(o, f) {
			matched = append(matched, *o.Clone())
		}
	}
	s.mu.RUnlock()

	orders.SortNewestFirst(matched)
	total := len(matched)
	if f.Limit <= 0 {
		return matched, total, nil
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * f.Limit
	if start >= total {
		return []orders.Order{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matches(o *orders.Order, f orders.ListFilter) bool {
	if f.CustomerID != "" && o.Customer.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	created := o.Timestamps.CreatedAt
	if f.From != nil && created.Before(*f.From) {
		return false
	}
	if f.To != nil && created.After(*f.To) {
		return false
	}
	return true
}

func (s *Store) Summarize(_ context.Context, customerID string) (orders.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := orders.Summary{ByStatus: map[orders.Status]int{}, Revenue: decimal.Zero}
	for _, o := range s.orders {
		if customerID != "" && o.Customer.CustomerID != customerID {
			continue
		}
		sum.Total++
		sum.ByStatus[o.Status]++
		if o.Status != orders.StatusCancelled {
			sum.Revenue = sum.Revenue.Add(o.Totals.FinalAmount)
		}
	}
	return sum, nil
}

func (s *Store) MonthlyRevenue(_ context.Context, year int) ([]orders.MonthTotal, error) {
	s.mu.RLock()
	byMonth := map[int]*orders.MonthTotal{}
	for _, o := range s.orders {
		created := o.Timestamps.CreatedAt.UTC()
		if o.Status == orders.StatusCancelled || created.Year() != year {
			continue
		}
		m := int(created.Month())
		t, ok := byMonth[m]
		if !ok {
			t = &orders.MonthTotal{Month: m, Revenue: decimal.Zero}
			byMonth[m] = t
		}
		t.Orders++
		t.Revenue = t.Revenue.Add(o.Totals.FinalAmount)
	}
	s.mu.RUnlock()

	out := make([]orders.MonthTotal, 0, len(byMonth))
	for _, t := range byMonth {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	t := &tx{
		s:       s,
		held:    map[string]rowLock{},
		stock:   map[string]int{},
		staged:  map[string]*orders.Order{},
		expects: map[string]orders.Status{},
	}
	defer t.unlockAll()
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

func (s *Store) lockFor(table map[string]rowLock, key string) rowLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := table[key]
	if !ok {
		l = newRowLock()
		table[key] = l
	}
	return l
}
