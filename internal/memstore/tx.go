package memstore

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
)

type tx struct {
	s    *Store
	held map[string]rowLock
	// stock holds staged absolute quantities of locked products.
	stock   map[string]int
	inserts []*orders.Order
	staged  map[string]*orders.Order
	expects map[string]orders.Status
}

func (t *tx) Ledger() inventory.Ledger { return ledger{t} }
func (t *tx) Orders() orders.TxOrders  { return orderRepo{t} }

func (t *tx) acquire(ctx context.Context, key string, table map[string]rowLock) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	l := t.s.lockFor(table, key)
	if err := l.lock(ctx); err != nil {
		return err
	}
	t.held[key] = l
	return nil
}

func (t *tx) unlockAll() {
	for k, l := range t.held {
		l.unlock()
		delete(t.held, k)
	}
}

func (t *tx) quantity(productID string) (int, bool) {
	if q, ok := t.stock[productID]; ok {
		return q, true
	}
	return t.s.Available(productID)
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range t.inserts {
		if _, dup := s.orders[o.ID]; dup {
			return ErrDuplicateOrder
		}
		if _, dup := s.numbers[o.OrderNumber]; dup {
			return ErrDuplicateOrder
		}
	}
	for id, expected := range t.expects {
		cur, ok := s.orders[id]
		if !ok || cur.Status != expected {
			return orders.ErrStaleOrder
		}
	}

	for id, qty := range t.stock {
		p := s.products[id]
		p.AvailableQuantity = qty
		s.products[id] = p
	}
	for _, o := range t.inserts {
		s.orders[o.ID] = o
		s.numbers[o.OrderNumber] = o.ID
	}
	for id, o := range t.staged {
		s.orders[id] = o
	}
	return nil
}

type ledger struct{ t *tx }

func (l ledger) Reserve(ctx context.Context, items []inventory.Item) error {
	items = inventory.Normalize(items)
	if err := inventory.Validate(items); err != nil {
		return err
	}
	for _, it := range items {
		if err := l.t.acquire(ctx, "p:"+it.ProductID, l.t.s.productLks); err != nil {
			return err
		}
	}

	var shortages []inventory.Shortage
	for _, it := range items {
		avail, ok := l.t.quantity(it.ProductID)
		if !ok || avail < it.Qty {
			shortages = append(shortages, inventory.Shortage{ProductID: it.ProductID, Required: it.Qty, Available: avail})
		}
	}
	if len(shortages) > 0 {
		return inventory.InsufficientStock(shortages)
	}
	for _, it := range items {
		avail, _ := l.t.quantity(it.ProductID)
		l.t.stock[it.ProductID] = avail - it.Qty
	}
	return nil
}

func (l ledger) Release(ctx context.Context, items []inventory.Item) error {
	items = inventory.Normalize(items)
	for _, it := range items {
		if err := l.t.acquire(ctx, "p:"+it.ProductID, l.t.s.productLks); err != nil {
			return err
		}
	}
	for _, it := range items {
		avail, ok := l.t.quantity(it.ProductID)
		if !ok {
			// product removed from the catalog since the order was placed
			continue
		}
		l.t.stock[it.ProductID] = avail + it.Qty
	}
	return nil
}

func (l ledger) SetAvailable(ctx context.Context, productID string, qty int) (int, error) {
	if err := l.t.acquire(ctx, "p:"+productID, l.t.s.productLks); err != nil {
		return 0, err
	}
	prev, ok := l.t.quantity(productID)
	if !ok {
		return 0, inventory.ErrUnknownProduct
	}
	l.t.stock[productID] = qty
	return prev, nil
}

type orderRepo struct{ t *tx }

func (r orderRepo) Insert(_ context.Context, o *orders.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("memstore: order id is required")
	}
	r.t.inserts = append(r.t.inserts, o.Clone())
	return nil
}

func (r orderRepo) GetForUpdate(ctx context.Context, id string) (*orders.Order, error) {
	if err := r.t.acquire(ctx, "o:"+id, r.t.s.orderLks); err != nil {
		return nil, err
	}
	if o, ok := r.t.staged[id]; ok {
		return o.Clone(), nil
	}
	return r.t.s.GetOrder(ctx, id)
}

func (r orderRepo) Update(ctx context.Context, o *orders.Order, expected orders.Status) error {
	if _, ok := r.t.expects[o.ID]; !ok {
		cur, err := r.t.s.GetOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if cur.Status != expected {
			return orders.ErrStaleOrder
		}
		r.t.expects[o.ID] = expected
	}
	r.t.staged[o.ID] = o.Clone()
	return nil
}
