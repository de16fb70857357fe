package orders

import (
	"fmt"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/shopspring/decimal"
)

// PricedLine is a cart line resolved against the catalog.
type PricedLine struct {
	ProductID        string
	Name             string
	UnitPrice        decimal.Decimal
	DiscountFraction decimal.Decimal
	Quantity         int
}

type PriceInput struct {
	Lines          []PricedLine
	ShippingFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	// Precision is the number of minor-unit digits of the currency (0 for VND).
	Precision int32
}

var one = decimal.NewFromInt(1)

// Price computes line subtotals and order totals. Rounding is half-up and happens once,
// on the totals, so per-line rounding never compounds.
func Price(in PriceInput) ([]LineItem, Totals, error) {
	if in.ShippingFee.IsNegative() {
		return nil, Totals{}, apperr.New(apperr.CodeValidation, "shipping fee must not be negative")
	}
	if in.DiscountAmount.IsNegative() {
		return nil, Totals{}, apperr.New(apperr.CodeValidation, "discount amount must not be negative")
	}

	items := make([]LineItem, 0, len(in.Lines))
	sum := decimal.Zero
	for i, l := range in.Lines {
		if err := validateLine(i, l); err != nil {
			return nil, Totals{}, err
		}
		subtotal := l.UnitPrice.Mul(one.Sub(l.DiscountFraction)).Mul(decimal.NewFromInt(int64(l.Quantity)))
		sum = sum.Add(subtotal)
		items = append(items, LineItem{
			ProductID:        l.ProductID,
			Name:             l.Name,
			UnitPrice:        l.UnitPrice,
			DiscountFraction: l.DiscountFraction,
			Quantity:         l.Quantity,
			LineSubtotal:     subtotal,
		})
	}

	merch := roundHalfUp(sum, in.Precision)
	final := roundHalfUp(merch.Add(in.ShippingFee).Sub(in.DiscountAmount), in.Precision)
	if final.IsNegative() {
		return nil, Totals{}, apperr.New(apperr.CodeValidation, "discount amount exceeds order value")
	}
	return items, Totals{
		MerchandiseTotal: merch,
		ShippingFee:      in.ShippingFee,
		DiscountAmount:   in.DiscountAmount,
		FinalAmount:      final,
	}, nil
}

func validateLine(i int, l PricedLine) error {
	field := fmt.Sprintf("items[%d]", i)
	switch {
	case l.Quantity < 0:
		return apperr.Newf(apperr.CodeValidation, "%s: quantity must not be negative", field).
			WithDetails(map[string]any{"field": field + ".quantity", "product_id": l.ProductID})
	case l.UnitPrice.IsNegative():
		return apperr.Newf(apperr.CodeValidation, "%s: unit price must not be negative", field).
			WithDetails(map[string]any{"field": field + ".unit_price", "product_id": l.ProductID})
	case l.DiscountFraction.IsNegative() || l.DiscountFraction.GreaterThanOrEqual(one):
		return apperr.Newf(apperr.CodeValidation, "%s: discount fraction must be in [0,1)", field).
			WithDetails(map[string]any{"field": field + ".discount_fraction", "product_id": l.ProductID})
	}
	return nil
}

// roundHalfUp rounds non-negative amounts half up; decimal.Round rounds half away
// from zero, which is the same thing for the values priced here.
func roundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
