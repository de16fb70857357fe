package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/shopspring/decimal"
)

// Catalog is the read side of the product catalog.
type Catalog interface {
	// GetProducts returns the products that exist, keyed by id. Missing ids are simply absent.
	GetProducts(ctx context.Context, ids []string) (map[string]Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	// LowStock lists in-stock products with 0 < available <= threshold, lowest first.
	LowStock(ctx context.Context, threshold, limit int) ([]Product, error)
}

// TxOrders is the order repository as seen inside a unit of work.
type TxOrders interface {
	Insert(ctx context.Context, o *Order) error
	// GetForUpdate loads the order and holds it against concurrent writers until the unit ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// Update persists o only if the stored status is still expected. Otherwise it returns ErrStaleOrder.
	Update(ctx context.Context, o *Order, expected Status) error
}

type Tx interface {
	Ledger() inventory.Ledger
	Orders() TxOrders
}

type ListFilter struct {
	CustomerID string
	Status     Status
	From, To   *time.Time
	Page       int
	Limit      int
}

type Summary struct {
	Total    int             `json:"total"`
	ByStatus map[Status]int  `json:"by_status"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type MonthTotal struct {
	Month   int             `json:"month"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Store is the persistence boundary of the order core.
type Store interface {
	// RunInTx commits when fn returns nil and rolls back every effect otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	NextOrderSequence(ctx context.Context) (int64, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, int, error)
	// Summarize counts orders per status and sums final amounts of non-cancelled ones.
	Summarize(ctx context.Context, customerID string) (Summary, error)
	// MonthlyRevenue totals non-cancelled orders created in year (UTC), one entry per
	// month that has any. Months are 1-based.
	MonthlyRevenue(ctx context.Context, year int) ([]MonthTotal, error)
}

// Notifier is the fire-and-forget outbound event sink.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
}

// ShippingQuoter supplies the shipping fee for a checkout.
type ShippingQuoter interface {
	Quote(ctx context.Context, c Customer, items []CartLine) (decimal.Decimal, error)
}

// FlatShipping charges the same fee for every order.
type FlatShipping struct {
	Fee decimal.Decimal
}

func (f FlatShipping) Quote(context.Context, Customer, []CartLine) (decimal.Decimal, error) {
	return f.Fee, nil
}
