package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/shopspring/decimal"
)

const (
	defaultLowStockThreshold = 10
	lowStockLimit            = 20
)

// SetStock overwrites a product's available quantity. It runs under the same product
// lock as checkout and cancel, so it never interleaves with a reservation.
func (s *Service) SetStock(ctx context.Context, productID string, qty int, actor Actor) (Product, error) {
	if actor.Role != RoleAdmin {
		return Product{}, s.reject(ctx, "set_stock", apperr.New(apperr.CodeForbidden, "only admins may adjust stock"))
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, s.reject(ctx, "set_stock", apperr.New(apperr.CodeValidation, "product id is required"))
	}
	if qty < 0 {
		return Product{}, s.reject(ctx, "set_stock", apperr.New(apperr.CodeValidation, "quantity must not be negative").
			WithDetails(map[string]any{"field": "quantity"}))
	}

	var prev int
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		prev, err = tx.Ledger().SetAvailable(ctx, productID, qty)
		return err
	})
	if errors.Is(err, inventory.ErrUnknownProduct) {
		return Product{}, s.reject(ctx, "set_stock", apperr.Newf(apperr.CodeNotFound, "product %s not found", productID))
	}
	if err != nil {
		return Product{}, s.reject(ctx, "set_stock", err)
	}

	products, err := s.catalog.GetProducts(ctx, []string{productID})
	if err != nil {
		return Product{}, s.reject(ctx, "set_stock", apperr.Internal(err, "reload product"))
	}
	ctx = s.log.WithFields(ctx, map[string]any{"product_id": productID, "previous": prev, "quantity": qty})
	s.log.Info(ctx, "inventory.adjusted")
	return products[productID], nil
}

// LowStock lists in-stock products that are about to run out. A non-positive threshold
// falls back to 10.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]Product, error) {
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}
	list, err := s.catalog.LowStock(ctx, threshold, lowStockLimit)
	if err != nil {
		return nil, s.reject(ctx, "low_stock", apperr.Internal(err, "list low stock"))
	}
	if list == nil {
		list = []Product{}
	}
	return list, nil
}

type RevenueReport struct {
	Year   int          `json:"year"`
	Months []MonthTotal `json:"months"`
}

// RevenueReport returns twelve months of non-cancelled order totals for year, with
// empty months zero-filled.
func (s *Service) RevenueReport(ctx context.Context, year int) (RevenueReport, error) {
	if year < 1 || year > 9999 {
		return RevenueReport{}, s.reject(ctx, "revenue", apperr.New(apperr.CodeValidation, "year is out of range").
			WithDetails(map[string]any{"field": "year"}))
	}
	totals, err := s.store.MonthlyRevenue(ctx, year)
	if err != nil {
		return RevenueReport{}, s.reject(ctx, "revenue", apperr.Internal(err, "monthly revenue"))
	}
	months := make([]MonthTotal, 12)
	for i := range months {
		months[i] = MonthTotal{Month: i + 1, Revenue: decimal.Zero}
	}
	for _, t := range totals {
		if t.Month >= 1 && t.Month <= 12 {
			months[t.Month-1] = t
		}
	}
	return RevenueReport{Year: year, Months: months}, nil
}
