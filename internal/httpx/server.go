package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// OrderService is the order core as the HTTP layer uses it.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (*orders.Order, error)
	TransitionStatus(ctx context.Context, in orders.TransitionInput) (*orders.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string, actor orders.Actor) (*orders.Order, error)
	MarkPaid(ctx context.Context, orderID string, actor orders.Actor) (*orders.Order, error)
	GetOrder(ctx context.Context, orderID string, actor orders.Actor) (*orders.Order, error)
	Timeline(ctx context.Context, orderID string, actor orders.Actor) (orders.Timeline, error)
	ListOrders(ctx context.Context, f orders.ListFilter) (orders.OrderPage, error)
	CustomerStats(ctx context.Context, customerID string) (orders.CustomerStats, error)
	AdminOverview(ctx context.Context) (orders.Overview, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
	SetStock(ctx context.Context, productID string, qty int, actor orders.Actor) (orders.Product, error)
	LowStock(ctx context.Context, threshold int) ([]orders.Product, error)
	RevenueReport(ctx context.Context, year int) (orders.RevenueReport, error)
}

// IdempotencyStore claims checkout idempotency keys.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, fingerprint string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, fingerprint, orderID string) error
	Release(ctx context.Context, key string) error
}

type RouterDeps struct {
	Orders      OrderService
	Tokens      TokenParser
	Idempotency IdempotencyStore
	Metrics     http.Handler
	Logger      *logger.Logger
	Timeout     time.Duration
}

func NewRouter(deps RouterDeps) *chi.Mux {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	h := &OrdersHandler{svc: deps.Orders, idem: deps.Idempotency, log: log}
	r.Group(func(r chi.Router) {
		r.Use(authenticate(deps.Tokens, log))
		h.Register(r)
	})
	return r
}
