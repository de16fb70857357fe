package httpx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/ariefcatur/go-fresh-orders/internal/logger"
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/ariefcatur/go-fresh-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
)

const headerIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	svc  OrderService
	idem IdempotencyStore
	log  *logger.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Post("/orders", h.createOrder)

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(h.log))
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/timeline", h.timeline)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(requireRole(h.log, orders.RoleCustomer))
		r.Get("/me/orders", h.myOrders)
		r.Get("/me/orders/stats", h.myStats)
	})
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireRole(h.log, orders.RoleAdmin))
		r.Get("/orders", h.adminListOrders)
		r.Put("/orders/{id}/status", h.adminSetStatus)
		r.Get("/stats/overview", h.adminOverview)
		r.Get("/stats/revenue", h.adminRevenue)
		r.Get("/products/low-stock", h.adminLowStock)
		r.Put("/products/{id}/quantity", h.adminSetQuantity)
	})
	r.With(requireRole(h.log, orders.RoleSystem, orders.RoleAdmin)).Post("/payments/{id}/paid", h.markPaid)
}

type customerRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"required,max=32"`
	Address string `json:"address" validate:"required,max=500"`
	Email   string `json:"email" validate:"omitempty,email"`
}

type cartLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type createOrderRequest struct {
	Customer      customerRequest   `json:"customer"`
	Items         []cartLineRequest `json:"items" validate:"required,min=1,max=100,dive"`
	Note          string            `json:"note" validate:"max=1000"`
	PaymentMethod string            `json:"payment_method" validate:"omitempty,oneof=cod bank_transfer wallet"`
}

func (req createOrderRequest) input(customerID string) orders.CreateOrderInput {
	lines := make([]orders.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, orders.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return orders.CreateOrderInput{
		Customer: orders.Customer{
			CustomerID: customerID,
			Name:       req.Customer.Name,
			Phone:      req.Customer.Phone,
			Address:    req.Customer.Address,
			Email:      req.Customer.Email,
		},
		Items:         lines,
		Note:          req.Note,
		PaymentMethod: orders.PaymentMethod(req.PaymentMethod),
	}
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(ctx, h.log, w, err)
		return
	}

	actor, authenticated := actorFrom(ctx)
	var customerID string
	if authenticated && actor.Role == orders.RoleCustomer {
		customerID = actor.ID
	}

	fingerprint := checkoutFingerprint(customerID, req)
	claimKey, replayID, err := h.claim(ctx, customerID, r.Header.Get(headerIdempotencyKey), fingerprint)
	if err != nil {
		writeError(ctx, h.log, w, err)
		return
	}
	if replayID != "" {
		if !authenticated {
			// guests cannot read orders; the matching fingerprint proves this caller
			// sent the same customer details as the original checkout
			actor = orders.Actor{Role: orders.RoleSystem}
		}
		o, err := h.svc.GetOrder(ctx, replayID, actor)
		if err != nil {
			writeError(ctx, h.log, w, err)
			return
		}
		w.Header().Set("Idempotent-Replayed", "true")
		writeData(w, http.StatusOK, o)
		return
	}

	o, err := h.svc.CreateOrder(ctx, req.input(customerID))
	if err != nil {
		if claimKey != "" {
			if rerr := h.idem.Release(context.WithoutCancel(ctx), claimKey); rerr != nil {
				h.log.Warn(ctx, "idempotency.release.failed", rerr)
			}
		}
		writeError(ctx, h.log, w, err)
		return
	}
	if claimKey != "" {
		if cerr := h.idem.Complete(context.WithoutCancel(ctx), claimKey, fingerprint, o.ID); cerr != nil {
			h.log.Warn(ctx, "idempotency.complete.failed", cerr)
		}
	}
	writeData(w, http.StatusCreated, o)
}

// claim returns the claimed key, or the order id of an earlier completed request with
// the same key and body. Without a store or key it is a no-op; a store outage degrades to no-op.
func (h *OrdersHandler) claim(ctx context.Context, scope, key, fingerprint string) (claimKey, replayID string, err error) {
	key = strings.TrimSpace(key)
	if key == "" || h.idem == nil {
		return "", "", nil
	}
	if len(key) > 128 {
		return "", "", apperr.New(apperr.CodeValidation, "idempotency key is too long").
			WithDetails(map[string]any{"field": headerIdempotencyKey})
	}
	full := redisx.IdemOrderCreateKey(scope, key)
	existing, claimed, err := h.idem.Claim(ctx, full, fingerprint)
	switch {
	case errors.Is(err, redisx.ErrInFlight):
		return "", "", apperr.New(apperr.CodeConflict, "a request with this idempotency key is still in progress")
	case errors.Is(err, redisx.ErrKeyReused):
		return "", "", apperr.New(apperr.CodeConflict, "idempotency key was already used for a different request")
	case err != nil:
		h.log.Warn(ctx, "idempotency.claim.failed", err)
		return "", "", nil
	case claimed:
		return full, "", nil
	}
	return "", existing, nil
}

// checkoutFingerprint hashes the decoded checkout together with the customer it is
// placed for. A key only replays when both match.
func checkoutFingerprint(customerID string, req createOrderRequest) string {
	b, _ := json.Marshal(struct {
		CustomerID string             `json:"customer_id"`
		Request    createOrderRequest `json:"request"`
	}{customerID, req})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	o, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) timeline(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	tl, err := h.svc.Timeline(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, tl)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			writeError(r.Context(), h.log, w, err)
			return
		}
	}
	actor, _ := actorFrom(r.Context())
	o, err := h.svc.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason, actor)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	f, err := listFilterFrom(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	f.CustomerID = actor.ID
	h.writePage(w, r, f)
}

func (h *OrdersHandler) myStats(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	stats, err := h.svc.CustomerStats(r.Context(), actor.ID)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (h *OrdersHandler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := listFilterFrom(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	f.CustomerID = strings.TrimSpace(r.URL.Query().Get("customer_id"))
	h.writePage(w, r, f)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed shipping delivered cancelled"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *OrdersHandler) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	actor, _ := actorFrom(r.Context())
	o, err := h.svc.TransitionStatus(r.Context(), orders.TransitionInput{
		OrderID: chi.URLParam(r, "id"),
		Target:  orders.Status(req.Status),
		Actor:   actor,
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) adminOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.AdminOverview(r.Context())
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, overview)
}

func (h *OrdersHandler) adminRevenue(w http.ResponseWriter, r *http.Request) {
	year, err := parseQueryInt(r, "year", time.Now().UTC().Year(), 2000, 9999)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	report, err := h.svc.RevenueReport(r.Context(), year)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (h *OrdersHandler) adminLowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := parseQueryInt(r, "threshold", 10, 1, 1_000_000)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	list, err := h.svc.LowStock(r.Context(), threshold)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

func (h *OrdersHandler) adminSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	actor, _ := actorFrom(r.Context())
	p, err := h.svc.SetStock(r.Context(), chi.URLParam(r, "id"), *req.Quantity, actor)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

func (h *OrdersHandler) markPaid(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	o, err := h.svc.MarkPaid(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, o)
}

func (h *OrdersHandler) writePage(w http.ResponseWriter, r *http.Request, f orders.ListFilter) {
	page, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func listFilterFrom(r *http.Request) (orders.ListFilter, error) {
	var f orders.ListFilter
	var err error
	if f.Page, err = parseQueryInt(r, "page", 1, 1, 1_000_000); err != nil {
		return f, err
	}
	if f.Limit, err = parseQueryInt(r, "limit", 10, 1, 100); err != nil {
		return f, err
	}
	if f.From, err = parseQueryTime(r, "from", false); err != nil {
		return f, err
	}
	if f.To, err = parseQueryTime(r, "to", true); err != nil {
		return f, err
	}
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		f.Status = orders.Status(s)
	}
	return f, nil
}
