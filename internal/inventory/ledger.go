package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
)

// ErrUnknownProduct is returned when a stock adjustment names no catalog product.
var ErrUnknownProduct = errors.New("unknown product")

// Item is one product quantity to reserve or release.
type Item struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Shortage describes a product that could not cover the requested quantity.
type Shortage struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// Ledger owns per-product available quantity. Implementations run inside the caller's
// unit of work, so a failed Reserve leaves no decrement behind once the unit rolls back.
type Ledger interface {
	// Reserve decrements every item or none of them.
	Reserve(ctx context.Context, items []Item) error
	// Release adds the quantities back. It never fails on business grounds.
	Release(ctx context.Context, items []Item) error
	// SetAvailable overwrites the available quantity of one product and returns the
	// previous value. It takes the same row lock as Reserve and Release.
	SetAvailable(ctx context.Context, productID string, qty int) (previous int, err error)
}

// Normalize merges duplicate product ids and sorts by product id, which is the lock
// order every ledger implementation uses.
func Normalize(items []Item) []Item {
	byID := make(map[string]int, len(items))
	for _, it := range items {
		byID[it.ProductID] += it.Qty
	}
	out := make([]Item, 0, len(byID))
	for id, qty := range byID {
		out = append(out, Item{ProductID: id, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Validate rejects blank product ids and non-positive quantities.
func Validate(items []Item) error {
	if len(items) == 0 {
		return apperr.New(apperr.CodeValidation, "no items to reserve")
	}
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return apperr.New(apperr.CodeValidation, "product id is required")
		}
		if it.Qty <= 0 {
			return apperr.Newf(apperr.CodeValidation, "invalid qty for product %s", it.ProductID)
		}
	}
	return nil
}

// InsufficientStock builds the error returned when any shortage blocks a reservation.
func InsufficientStock(shortages []Shortage) error {
	msg := "insufficient stock"
	if len(shortages) == 1 {
		msg = fmt.Sprintf("insufficient stock for product %s", shortages[0].ProductID)
	}
	return apperr.New(apperr.CodeInsufficientStock, msg).WithDetails(map[string]any{"shortages": shortages})
}

// ShortagesOf extracts the shortages carried by an InsufficientStock error.
func ShortagesOf(err error) []Shortage {
	typed := apperr.As(err)
	if typed == nil || typed.Code() != apperr.CodeInsufficientStock {
		return nil
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return nil
	}
	out, _ := details["shortages"].([]Shortage)
	return out
}
