package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrOrderNotFound is returned by stores when no order has the id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrStaleOrder is returned by TxOrders.Update when the stored status moved underneath the caller.
	ErrStaleOrder = errors.New("order status changed concurrently")
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	recentOrderCount = 5

	defaultCancelReason = "cancelled by customer"
)

type ServiceDeps struct {
	Store    Store
	Catalog  Catalog
	Notifier Notifier
	Shipping ShippingQuoter
	// FallbackShippingFee is charged when the quoter fails.
	FallbackShippingFee decimal.Decimal
	Precision           int32
	Logger              *logger.Logger
	Metrics             *metrics.OrderMetrics
	Clock               func() time.Time
	NewID               func() string
}

// Service is the order lifecycle manager. Every state change goes through Plan and
// commits together with its stock effect in one Store unit of work.
type Service struct {
	store       Store
	catalog     Catalog
	notifier    Notifier
	shipping    ShippingQuoter
	fallbackFee decimal.Decimal
	precision   int32
	log         *logger.Logger
	metrics     *metrics.OrderMetrics
	now         func() time.Time
	newID       func() string
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("orders: store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("orders: catalog is required")
	}
	if deps.FallbackShippingFee.IsNegative() {
		return nil, errors.New("orders: fallback shipping fee must not be negative")
	}
	s := &Service{
		store:       deps.Store,
		catalog:     deps.Catalog,
		notifier:    deps.Notifier,
		shipping:    deps.Shipping,
		fallbackFee: deps.FallbackShippingFee,
		precision:   deps.Precision,
		log:         deps.Logger,
		metrics:     deps.Metrics,
		now:         deps.Clock,
		newID:       deps.NewID,
	}
	if s.shipping == nil {
		s.shipping = FlatShipping{Fee: deps.FallbackShippingFee}
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// CreateOrder validates the cart, reserves stock and persists a pending order as one unit.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	const op = "create"
	started := s.now()

	lines, err := mergeCart(in.Items)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	customer, err := validateCustomer(in.Customer)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}
	method := in.PaymentMethod
	if method == "" {
		method = PaymentCOD
	}
	if !method.Valid() {
		return nil, s.reject(ctx, op, apperr.Newf(apperr.CodeValidation, "unsupported payment method %q", method).
			WithDetails(map[string]any{"field": "payment_method"}))
	}

	priced, err := s.resolve(ctx, lines)
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	fee, err := s.shipping.Quote(ctx, customer, lines)
	if err != nil || fee.IsNegative() {
		s.log.Warn(ctx, "order.shipping_quote.fallback", err)
		fee = s.fallbackFee
	}

	items, totals, err := Price(PriceInput{
		Lines:       priced,
		ShippingFee: fee,
		Precision:   s.precision,
	})
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	seq, err := s.store.NextOrderSequence(ctx)
	if err != nil {
		return nil, s.reject(ctx, op, apperr.Internal(err, "allocate order number"))
	}

	now := s.now().UTC()
	order := &Order{
		ID:            s.newID(),
		OrderNumber:   formatOrderNumber(now, seq),
		Customer:      customer,
		Items:         items,
		Totals:        totals,
		Status:        StatusPending,
		PaymentMethod: method,
		PaymentStatus: PaymentUnpaid,
		Timestamps:    Timestamps{CreatedAt: now},
		Note:          strings.TrimSpace(in.Note),
		UpdatedAt:     now,
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Ledger().Reserve(ctx, order.ReservedItems()); err != nil {
			return err
		}
		return tx.Orders().Insert(ctx, order)
	})
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.metrics.OrderCreated(s.now().Sub(started))
	ctx = s.log.WithFields(ctx, map[string]any{"order_id": order.ID, "order_number": order.OrderNumber})
	s.log.Info(ctx, "order.created")
	s.publish(ctx, createdEvent(order))
	return order.Clone(), nil
}

type TransitionInput struct {
	OrderID string
	Target  Status
	Actor   Actor
	// Reason is appended to the order note.
	Reason string
}

// TransitionStatus moves an order to Target and applies the transition's effects atomically.
func (s *Service) TransitionStatus(ctx context.Context, in TransitionInput) (*Order, error) {
	const op = "transition"
	if !in.Target.Valid() {
		return nil, s.reject(ctx, op, apperr.Newf(apperr.CodeValidation, "unknown status %q", in.Target).
			WithDetails(map[string]any{"field": "status"}))
	}
	if err := authorizeTransition(in.Actor, in.Target); err != nil {
		return nil, s.reject(ctx, op, err)
	}

	var (
		prev     Status
		released bool
		updated  *Order
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadForUpdate(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}
		if err := authorizeAccess(in.Actor, o); err != nil {
			return err
		}
		t, err := Plan(o.Status, in.Target, o.StockReleased)
		if err != nil {
			return err
		}
		prev = o.Status
		if t.Effects.ReleaseStock {
			if err := tx.Ledger().Release(ctx, o.ReservedItems()); err != nil {
				return err
			}
			o.StockReleased = true
			released = true
		}
		applyTransition(o, t, s.now().UTC())
		appendNote(o, in.Target, in.Reason)
		if err := tx.Orders().Update(ctx, o, prev); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	s.metrics.Transitioned(string(prev), string(updated.Status))
	if released {
		s.metrics.StockReleased()
	}
	ctx = s.log.WithFields(ctx, map[string]any{
		"order_id": updated.ID,
		"from":     prev,
		"to":       updated.Status,
		"actor":    in.Actor.Role,
	})
	s.log.Info(ctx, "order.status_changed")
	s.publish(ctx, statusChangedEvent(updated, prev, in.Actor, in.Reason, released))
	return updated.Clone(), nil
}

// CancelOrder is the customer-facing cancellation. Admins may cancel any order.
func (s *Service) CancelOrder(ctx context.Context, orderID, reason string, actor Actor) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" && actor.Role == RoleCustomer {
		reason = defaultCancelReason
	}
	return s.TransitionStatus(ctx, TransitionInput{
		OrderID: orderID,
		Target:  StatusCancelled,
		Actor:   actor,
		Reason:  reason,
	})
}

// MarkPaid records a settled payment. A pending order is confirmed in the same unit.
func (s *Service) MarkPaid(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	const op = "mark_paid"
	if actor.Role != RoleSystem && actor.Role != RoleAdmin {
		return nil, s.reject(ctx, op, apperr.Newf(apperr.CodeForbidden, "role %q may not settle payments", actor.Role))
	}

	var (
		prev    Status
		changed bool
		updated *Order
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusCancelled {
			return apperr.New(apperr.CodeInvalidTransition, "cancelled orders cannot be paid").WithDetails(map[string]any{
				"from":   o.Status,
				"action": "mark_paid",
			})
		}
		prev = o.Status
		if o.PaymentStatus == PaymentPaid && o.Status != StatusPending {
			updated = o
			return nil
		}
		now := s.now().UTC()
		o.PaymentStatus = PaymentPaid
		o.UpdatedAt = now
		if o.Status == StatusPending {
			t, err := Plan(o.Status, StatusConfirmed, o.StockReleased)
			if err != nil {
				return err
			}
			applyTransition(o, t, now)
			changed = true
		}
		if err := tx.Orders().Update(ctx, o, prev); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, op, err)
	}

	if changed {
		s.metrics.Transitioned(string(prev), string(updated.Status))
		s.publish(ctx, statusChangedEvent(updated, prev, actor, "payment received", false))
	}
	return updated.Clone(), nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, s.reject(ctx, "get", notFound(err, orderID))
	}
	if err := authorizeAccess(actor, o); err != nil {
		return nil, s.reject(ctx, "get", err)
	}
	return o, nil
}

func (s *Service) Timeline(ctx context.Context, orderID string, actor Actor) (Timeline, error) {
	o, err := s.GetOrder(ctx, orderID, actor)
	if err != nil {
		return Timeline{}, err
	}
	return ProjectTimeline(o), nil
}

type OrderPage struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
	Pages  int     `json:"pages"`
}

func (s *Service) ListOrders(ctx context.Context, f ListFilter) (OrderPage, error) {
	f, err := normalizeFilter(f)
	if err != nil {
		return OrderPage{}, s.reject(ctx, "list", err)
	}
	list, total, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return OrderPage{}, s.reject(ctx, "list", apperr.Internal(err, "list orders"))
	}
	if list == nil {
		list = []Order{}
	}
	return OrderPage{
		Orders: list,
		Total:  total,
		Page:   f.Page,
		Limit:  f.Limit,
		Pages:  (total + f.Limit - 1) / f.Limit,
	}, nil
}

type CustomerStats struct {
	TotalOrders  int             `json:"total_orders"`
	ByStatus     map[Status]int  `json:"by_status"`
	TotalSpent   decimal.Decimal `json:"total_spent"`
	RecentOrders []Order         `json:"recent_orders"`
}

func (s *Service) CustomerStats(ctx context.Context, customerID string) (CustomerStats, error) {
	if strings.TrimSpace(customerID) == "" {
		return CustomerStats{}, s.reject(ctx, "customer_stats", apperr.New(apperr.CodeValidation, "customer id is required"))
	}
	sum, err := s.store.Summarize(ctx, customerID)
	if err != nil {
		return CustomerStats{}, s.reject(ctx, "customer_stats", apperr.Internal(err, "summarize customer orders"))
	}
	recent, _, err := s.store.ListOrders(ctx, ListFilter{CustomerID: customerID, Page: 1, Limit: recentOrderCount})
	if err != nil {
		return CustomerStats{}, s.reject(ctx, "customer_stats", apperr.Internal(err, "list recent orders"))
	}
	if recent == nil {
		recent = []Order{}
	}
	return CustomerStats{
		TotalOrders:  sum.Total,
		ByStatus:     withAllStatuses(sum.ByStatus),
		TotalSpent:   sum.Revenue,
		RecentOrders: recent,
	}, nil
}

type Overview struct {
	TotalOrders int             `json:"total_orders"`
	ByStatus    map[Status]int  `json:"by_status"`
	Revenue     decimal.Decimal `json:"revenue"`
}

func (s *Service) AdminOverview(ctx context.Context) (Overview, error) {
	sum, err := s.store.Summarize(ctx, "")
	if err != nil {
		return Overview{}, s.reject(ctx, "overview", apperr.Internal(err, "summarize orders"))
	}
	return Overview{
		TotalOrders: sum.Total,
		ByStatus:    withAllStatuses(sum.ByStatus),
		Revenue:     sum.Revenue,
	}, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	list, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, s.reject(ctx, "list_products", apperr.Internal(err, "list products"))
	}
	return list, nil
}

func (s *Service) loadForUpdate(ctx context.Context, tx Tx, id string) (*Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.New(apperr.CodeValidation, "order id is required")
	}
	o, err := tx.Orders().GetForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return o, nil
}

func (s *Service) resolve(ctx context.Context, lines []CartLine) ([]PricedLine, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "load catalog")
	}

	priced := make([]PricedLine, 0, len(lines))
	var outOfStock []inventory.Shortage
	for i, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, apperr.Newf(apperr.CodeValidation, "product %s does not exist", l.ProductID).
				WithDetails(map[string]any{"field": fmt.Sprintf("items[%d].product_id", i), "product_id": l.ProductID})
		}
		if !p.InStock {
			outOfStock = append(outOfStock, inventory.Shortage{ProductID: p.ID, Required: l.Quantity, Available: 0})
			continue
		}
		priced = append(priced, PricedLine{
			ProductID:        p.ID,
			Name:             p.Name,
			UnitPrice:        p.UnitPrice,
			DiscountFraction: p.DiscountFraction,
			Quantity:         l.Quantity,
		})
	}
	if len(outOfStock) > 0 {
		return nil, inventory.InsufficientStock(outOfStock)
	}
	return priced, nil
}

// reject normalizes err into an apperr, counts it and logs unexpected faults with full detail.
func (s *Service) reject(ctx context.Context, op string, err error) error {
	if errors.Is(err, ErrStaleOrder) {
		err = apperr.Wrap(apperr.CodeInvalidTransition, err, "order was modified concurrently, reload and retry")
	}
	typed := apperr.As(err)
	if typed == nil {
		typed = apperr.Internal(err, op+" order")
	}
	s.metrics.Rejected(op, string(typed.Code()))
	if typed.Code() == apperr.CodeInternal {
		ctx = s.log.WithField(ctx, "error_dump", apperr.Dump(err))
		s.log.Error(ctx, "order."+op+".failed", err)
	}
	return typed
}

// publish hands ev to the notifier. Failures never reach the caller.
func (s *Service) publish(ctx context.Context, ev Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.metrics.NotificationFailed()
		s.log.Warn(s.log.WithField(ctx, "event_type", ev.Type), "order.notify.failed", err)
	}
}

func notFound(err error, id string) error {
	if errors.Is(err, ErrOrderNotFound) {
		return apperr.Newf(apperr.CodeNotFound, "order %s not found", id)
	}
	return err
}

// mergeCart rejects bad lines and folds duplicate product ids into the first occurrence.
func mergeCart(items []CartLine) ([]CartLine, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "order must contain at least one item").
			WithDetails(map[string]any{"field": "items"})
	}
	out := make([]CartLine, 0, len(items))
	pos := make(map[string]int, len(items))
	for i, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, apperr.Newf(apperr.CodeValidation, "items[%d]: product id is required", i).
				WithDetails(map[string]any{"field": fmt.Sprintf("items[%d].product_id", i)})
		}
		if it.Quantity < 1 {
			return nil, apperr.Newf(apperr.CodeValidation, "items[%d]: quantity must be at least 1", i).
				WithDetails(map[string]any{"field": fmt.Sprintf("items[%d].quantity", i), "product_id": id})
		}
		if j, ok := pos[id]; ok {
			out[j].Quantity += it.Quantity
			continue
		}
		pos[id] = len(out)
		out = append(out, CartLine{ProductID: id, Quantity: it.Quantity})
	}
	return out, nil
}

func validateCustomer(c Customer) (Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.Email = strings.TrimSpace(c.Email)
	c.CustomerID = strings.TrimSpace(c.CustomerID)

	var missing []string
	if c.Name == "" {
		missing = append(missing, "customer.name")
	}
	if c.Phone == "" {
		missing = append(missing, "customer.phone")
	}
	if c.Address == "" {
		missing = append(missing, "customer.address")
	}
	if len(missing) > 0 {
		return Customer{}, apperr.New(apperr.CodeValidation, "missing customer fields: "+strings.Join(missing, ", ")).
			WithDetails(map[string]any{"fields": missing})
	}
	return c, nil
}

// applyTransition sets the status and stamps the entry timestamp once. Stamps never go
// backwards even if the clock does.
func applyTransition(o *Order, t Transition, now time.Time) {
	if latest := o.Timestamps.latest(); now.Before(latest) {
		now = latest
	}
	ts := &o.Timestamps
	switch t.Effects.Stamp {
	case StampConfirmed:
		setOnce(&ts.ConfirmedAt, now)
	case StampShipped:
		setOnce(&ts.ShippedAt, now)
	case StampDelivered:
		setOnce(&ts.DeliveredAt, now)
	case StampCancelled:
		setOnce(&ts.CancelledAt, now)
	}
	if t.Effects.MarkPaid {
		o.PaymentStatus = PaymentPaid
	}
	o.Status = t.To
	o.UpdatedAt = now
}

func setOnce(field **time.Time, now time.Time) {
	if *field != nil {
		return
	}
	v := now
	*field = &v
}

func (ts Timestamps) latest() time.Time {
	latest := ts.CreatedAt
	for _, t := range []*time.Time{ts.ConfirmedAt, ts.ShippedAt, ts.DeliveredAt, ts.CancelledAt} {
		if t != nil && t.After(latest) {
			latest = *t
		}
	}
	return latest
}

func appendNote(o *Order, target Status, reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	line := string(target) + ": " + reason
	if o.Note == "" {
		o.Note = line
		return
	}
	o.Note += "\n" + line
}

func formatOrderNumber(now time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), seq)
}

func normalizeFilter(f ListFilter) (ListFilter, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = defaultPageLimit
	}
	if f.Page < 1 {
		return f, apperr.New(apperr.CodeValidation, "page must be at least 1").WithDetails(map[string]any{"field": "page"})
	}
	if f.Limit < 1 || f.Limit > maxPageLimit {
		return f, apperr.Newf(apperr.CodeValidation, "limit must be between 1 and %d", maxPageLimit).
			WithDetails(map[string]any{"field": "limit"})
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, apperr.Newf(apperr.CodeValidation, "unknown status %q", f.Status).WithDetails(map[string]any{"field": "status"})
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, apperr.New(apperr.CodeValidation, "date range is inverted").WithDetails(map[string]any{"field": "to"})
	}
	return f, nil
}

func withAllStatuses(in map[Status]int) map[Status]int {
	out := make(map[Status]int, len(AllStatuses))
	for _, st := range AllStatuses {
		out[st] = in[st]
	}
	return out
}

// SortNewestFirst orders by creation time descending, then by order number, the order every listing uses.
func SortNewestFirst(list []Order) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Timestamps.CreatedAt, list[j].Timestamps.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return list[i].OrderNumber > list[j].OrderNumber
	})
}
