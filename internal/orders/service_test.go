package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/ariefcatur/go-fresh-orders/internal/memstore"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fixtures
// ============================================================================

type recordingNotifier struct {
	mu     sync.Mutex
	events []orders.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, ev orders.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type failingCatalog struct{ orders.Catalog }

func (failingCatalog) GetProducts(context.Context, []string) (map[string]orders.Product, error) {
	return nil, errors.New("catalog timeout")
}

type fixture struct {
	store    *memstore.Store
	notifier *recordingNotifier
	svc      *orders.Service
}

var (
	admin  = orders.Actor{ID: "admin-1", Role: orders.RoleAdmin}
	system = orders.Actor{ID: "gateway", Role: orders.RoleSystem}
	lan    = orders.Actor{ID: "cust-lan", Role: orders.RoleCustomer}
	minh   = orders.Actor{ID: "cust-minh", Role: orders.RoleCustomer}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.PutProduct(orders.Product{
		ID: "spinach", Name: "Rau bina", Unit: "bó",
		UnitPrice: decimal.NewFromInt(25000), DiscountFraction: decimal.RequireFromString("0.2"),
		AvailableQuantity: 10, InStock: true,
	})
	store.PutProduct(orders.Product{
		ID: "tomato", Name: "Cà chua", Unit: "kg",
		UnitPrice: decimal.NewFromInt(30000), AvailableQuantity: 5, InStock: true,
	})
	store.PutProduct(orders.Product{
		ID: "durian", Name: "Sầu riêng", Unit: "kg",
		UnitPrice: decimal.NewFromInt(120000), AvailableQuantity: 3, InStock: false,
	})
	n := &recordingNotifier{}
	clock := &stepClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	svc, err := orders.NewService(orders.ServiceDeps{
		Store:               store,
		Catalog:             store,
		Notifier:            n,
		FallbackShippingFee: decimal.NewFromInt(20000),
		Clock:               clock.Now,
	})
	require.NoError(t, err)
	return &fixture{store: store, notifier: n, svc: svc}
}

func customer(id string) orders.Customer {
	return orders.Customer{CustomerID: id, Name: "Nguyễn Lan", Phone: "0901234567", Address: "12 Lê Lợi, Q1", Email: "lan@example.com"}
}

func (f *fixture) create(t *testing.T, owner string, lines ...orders.CartLine) *orders.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), orders.CreateOrderInput{Customer: customer(owner), Items: lines})
	require.NoError(t, err)
	return o
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	q, ok := f.store.Available(id)
	require.True(t, ok)
	return q
}

func line(id string, qty int) orders.CartLine { return orders.CartLine{ProductID: id, Quantity: qty} }

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperr.CodeOf(err), err.Error())
}

// ============================================================================
// CreateOrder
// ============================================================================

func TestCreateOrderReservesStockAndPrices(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, lan.ID, line("spinach", 3))

	require.Len(t, o.Items, 1)
	assert.True(t, decimal.NewFromInt(60000).Equal(o.Items[0].LineSubtotal))
	assert.Equal(t, "Rau bina", o.Items[0].Name)
	assert.True(t, decimal.NewFromInt(60000).Equal(o.Totals.MerchandiseTotal))
	assert.True(t, decimal.NewFromInt(20000).Equal(o.Totals.ShippingFee))
	assert.True(t, decimal.NewFromInt(80000).Equal(o.Totals.FinalAmount))
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, orders.PaymentCOD, o.PaymentMethod)
	assert.Equal(t, "ORD-20261016-000001", o.OrderNumber)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, 7, f.stock(t, "spinach"))
	assert.Equal(t, []string{orders.EventOrderCreated}, f.notifier.types())
}

func TestCreateOrderSubtotalsSumToMerchandiseTotal(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, lan.ID, line("spinach", 2), line("tomato", 4))

	sum := decimal.Zero
	for _, li := range o.Items {
		sum = sum.Add(li.LineSubtotal)
	}
	assert.True(t, sum.Equal(o.Totals.MerchandiseTotal))
	assert.Equal(t, 8, f.stock(t, "spinach"))
	assert.Equal(t, 1, f.stock(t, "tomato"))
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, lan.ID, line("tomato", 1), line("spinach", 1), line("tomato", 2))

	require.Len(t, o.Items, 2)
	assert.Equal(t, "tomato", o.Items[0].ProductID)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, 2, f.stock(t, "tomato"))
}

func TestCreateOrderShortageChangesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), orders.CreateOrderInput{
		Customer: customer(lan.ID),
		Items:    []orders.CartLine{line("spinach", 2), line("tomato", 6)},
	})

	requireCode(t, err, apperr.CodeInsufficientStock)
	assert.Equal(t, []inventory.Shortage{{ProductID: "tomato", Required: 6, Available: 5}}, inventory.ShortagesOf(err))
	assert.Equal(t, 10, f.stock(t, "spinach"))
	assert.Equal(t, 5, f.stock(t, "tomato"))
	assert.Empty(t, f.notifier.types())

	page, err := f.svc.ListOrders(context.Background(), orders.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		in   orders.CreateOrderInput
		code apperr.Code
	}{
		{"no items", orders.CreateOrderInput{Customer: customer("")}, apperr.CodeValidation},
		{"zero quantity", orders.CreateOrderInput{Customer: customer(""), Items: []orders.CartLine{line("spinach", 0)}}, apperr.CodeValidation},
		{"blank phone", orders.CreateOrderInput{Customer: orders.Customer{Name: "Lan", Address: "Q1"}, Items: []orders.CartLine{line("spinach", 1)}}, apperr.CodeValidation},
		{"unknown product", orders.CreateOrderInput{Customer: customer(""), Items: []orders.CartLine{line("mango", 1)}}, apperr.CodeValidation},
		{"out of stock flag", orders.CreateOrderInput{Customer: customer(""), Items: []orders.CartLine{line("durian", 1)}}, apperr.CodeInsufficientStock},
		{"payment method", orders.CreateOrderInput{Customer: customer(""), Items: []orders.CartLine{line("spinach", 1)}, PaymentMethod: "crypto"}, apperr.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), tc.in)
			requireCode(t, err, tc.code)
			assert.Equal(t, 10, f.stock(t, "spinach"))
			assert.Equal(t, 3, f.stock(t, "durian"))
		})
	}
}

func TestCreateOrderNotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")

	o := f.create(t, "", line("spinach", 1))

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, 9, f.stock(t, "spinach"))
}

func TestCreateOrderCatalogFaultIsInternal(t *testing.T) {
	store := memstore.New()
	svc, err := orders.NewService(orders.ServiceDeps{Store: store, Catalog: failingCatalog{}})
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), orders.CreateOrderInput{Customer: customer(""), Items: []orders.CartLine{line("spinach", 1)}})
	requireCode(t, err, apperr.CodeInternal)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture(t)
		start := make(chan struct{})
		errs := make([]error, 2)
		var wg sync.WaitGroup
		for j, qty := range []int{3, 4} {
			wg.Add(1)
			go func(j, qty int) {
				defer wg.Done()
				<-start
				_, errs[j] = f.svc.CreateOrder(context.Background(), orders.CreateOrderInput{
					Customer: customer(""),
					Items:    []orders.CartLine{line("tomato", qty)},
				})
			}(j, qty)
		}
		close(start)
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			requireCode(t, err, apperr.CodeInsufficientStock)
		}
		require.Equal(t, 1, ok)
		left := f.stock(t, "tomato")
		assert.Contains(t, []int{1, 2}, left)
	}
}

// ============================================================================
// Transitions
// ============================================================================

func TestCancelRestoresStockExactlyOnce(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("spinach", 3))
	require.Equal(t, 7, f.stock(t, "spinach"))

	cancelled, err := f.svc.CancelOrder(context.Background(), o.ID, "đổi ý", lan)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.Timestamps.CancelledAt)
	assert.Contains(t, cancelled.Note, "đổi ý")
	assert.Equal(t, 10, f.stock(t, "spinach"))

	_, err = f.svc.CancelOrder(context.Background(), o.ID, "again", lan)
	requireCode(t, err, apperr.CodeInvalidTransition)
	assert.Equal(t, 10, f.stock(t, "spinach"))
}

func TestConcurrentCancelsReleaseOnce(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("tomato", 4))

	const n = 8
	start := make(chan struct{})
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.CancelOrder(context.Background(), o.ID, "", admin)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var ok int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		requireCode(t, err, apperr.CodeInvalidTransition)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 5, f.stock(t, "tomato"))
}

func TestFullLifecycleStampsAndSettles(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("spinach", 2))
	created := o.Totals

	for _, st := range []orders.Status{orders.StatusConfirmed, orders.StatusShipping, orders.StatusDelivered} {
		var err error
		o, err = f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: o.ID, Target: st, Actor: admin})
		require.NoError(t, err)
		assert.Equal(t, st, o.Status)
	}

	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	ts := o.Timestamps
	require.NotNil(t, ts.ConfirmedAt)
	require.NotNil(t, ts.ShippedAt)
	require.NotNil(t, ts.DeliveredAt)
	assert.Nil(t, ts.CancelledAt)
	assert.True(t, ts.ConfirmedAt.After(ts.CreatedAt))
	assert.True(t, ts.ShippedAt.After(*ts.ConfirmedAt))
	assert.True(t, ts.DeliveredAt.After(*ts.ShippedAt))

	stored, err := f.svc.GetOrder(context.Background(), o.ID, admin)
	require.NoError(t, err)
	assert.True(t, created.MerchandiseTotal.Equal(stored.Totals.MerchandiseTotal))
	assert.True(t, created.FinalAmount.Equal(stored.Totals.FinalAmount))
	assert.Equal(t, 8, f.stock(t, "spinach"))
	assert.Len(t, f.notifier.types(), 4)
}

func TestTerminalOrdersNeverMove(t *testing.T) {
	f := newFixture(t)
	delivered := f.create(t, lan.ID, line("spinach", 1))
	for _, st := range []orders.Status{orders.StatusConfirmed, orders.StatusShipping, orders.StatusDelivered} {
		_, err := f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: delivered.ID, Target: st, Actor: admin})
		require.NoError(t, err)
	}
	cancelled := f.create(t, lan.ID, line("spinach", 1))
	_, err := f.svc.CancelOrder(context.Background(), cancelled.ID, "", lan)
	require.NoError(t, err)

	for _, id := range []string{delivered.ID, cancelled.ID} {
		for _, st := range orders.AllStatuses {
			_, err := f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: id, Target: st, Actor: admin})
			requireCode(t, err, apperr.CodeInvalidTransition)
		}
	}
}

func TestPendingToDeliveredRejected(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("spinach", 1))

	_, err := f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: o.ID, Target: orders.StatusDelivered, Actor: admin})
	requireCode(t, err, apperr.CodeInvalidTransition)

	stored, err := f.svc.GetOrder(context.Background(), o.ID, lan)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
	assert.Nil(t, stored.Timestamps.DeliveredAt)
	assert.Equal(t, orders.PaymentUnpaid, stored.PaymentStatus)
}

func TestTransitionPermissions(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("spinach", 1))
	guest := f.create(t, "", line("spinach", 1))

	_, err := f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: o.ID, Target: orders.StatusConfirmed, Actor: lan})
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.svc.CancelOrder(context.Background(), o.ID, "", minh)
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.svc.CancelOrder(context.Background(), guest.ID, "", lan)
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: o.ID, Target: orders.StatusShipping, Actor: system})
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: "missing", Target: orders.StatusConfirmed, Actor: admin})
	requireCode(t, err, apperr.CodeNotFound)

	_, err = f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: o.ID, Target: "lost", Actor: admin})
	requireCode(t, err, apperr.CodeValidation)

	assert.Equal(t, 8, f.stock(t, "spinach"))
}

func TestCustomerCannotCancelShippedOrder(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("tomato", 2))
	for _, st := range []orders.Status{orders.StatusConfirmed, orders.StatusShipping} {
		_, err := f.svc.TransitionStatus(context.Background(), orders.TransitionInput{OrderID: o.ID, Target: st, Actor: admin})
		require.NoError(t, err)
	}

	_, err := f.svc.CancelOrder(context.Background(), o.ID, "too slow", lan)
	requireCode(t, err, apperr.CodeInvalidTransition)
	assert.Equal(t, 3, f.stock(t, "tomato"))
}

// ============================================================================
// Payments
// ============================================================================

func TestMarkPaidConfirmsPendingOrder(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("spinach", 1))

	paid, err := f.svc.MarkPaid(context.Background(), o.ID, system)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, orders.StatusConfirmed, paid.Status)
	require.NotNil(t, paid.Timestamps.ConfirmedAt)

	again, err := f.svc.MarkPaid(context.Background(), o.ID, system)
	require.NoError(t, err)
	assert.Equal(t, *paid.Timestamps.ConfirmedAt, *again.Timestamps.ConfirmedAt)
	assert.Equal(t, []string{orders.EventOrderCreated, orders.EventOrderStatusChanged}, f.notifier.types())
}

func TestMarkPaidRejections(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("spinach", 1))

	_, err := f.svc.MarkPaid(context.Background(), o.ID, lan)
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.svc.CancelOrder(context.Background(), o.ID, "", lan)
	require.NoError(t, err)
	_, err = f.svc.MarkPaid(context.Background(), o.ID, system)
	requireCode(t, err, apperr.CodeInvalidTransition)
}

// ============================================================================
// Reads
// ============================================================================

func TestGetOrderOwnership(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, lan.ID, line("spinach", 1))

	_, err := f.svc.GetOrder(context.Background(), o.ID, minh)
	requireCode(t, err, apperr.CodeForbidden)

	_, err = f.svc.GetOrder(context.Background(), "missing", admin)
	requireCode(t, err, apperr.CodeNotFound)

	tl, err := f.svc.Timeline(context.Background(), o.ID, lan)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, tl.OrderNumber)
	require.NotEmpty(t, tl.Entries)
	assert.Equal(t, orders.EventCreated, tl.Entries[0].Event)
}

func TestStatsExcludeCancelledRevenue(t *testing.T) {
	f := newFixture(t)
	keep := f.create(t, lan.ID, line("spinach", 1))
	drop := f.create(t, lan.ID, line("tomato", 1))
	f.create(t, minh.ID, line("tomato", 2))
	_, err := f.svc.CancelOrder(context.Background(), drop.ID, "", lan)
	require.NoError(t, err)

	stats, err := f.svc.CustomerStats(context.Background(), lan.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalOrders)
	assert.Equal(t, 1, stats.ByStatus[orders.StatusCancelled])
	assert.Equal(t, 1, stats.ByStatus[orders.StatusPending])
	assert.Zero(t, stats.ByStatus[orders.StatusDelivered])
	assert.True(t, keep.Totals.FinalAmount.Equal(stats.TotalSpent))
	require.Len(t, stats.RecentOrders, 2)
	assert.Equal(t, drop.ID, stats.RecentOrders[0].ID)

	overview, err := f.svc.AdminOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, overview.TotalOrders)
	// 40000 + (60000 + 20000)
	assert.True(t, decimal.NewFromInt(120000).Equal(overview.Revenue), overview.Revenue.String())
}

func TestListOrdersValidatesPaging(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.create(t, lan.ID, line("spinach", 1))
	}

	page, err := f.svc.ListOrders(context.Background(), orders.ListFilter{CustomerID: lan.ID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Equal(t, 1, page.Page)
	assert.Len(t, page.Orders, 2)

	_, err = f.svc.ListOrders(context.Background(), orders.ListFilter{Limit: 101})
	requireCode(t, err, apperr.CodeValidation)

	_, err = f.svc.ListOrders(context.Background(), orders.ListFilter{Page: -1})
	requireCode(t, err, apperr.CodeValidation)
}
