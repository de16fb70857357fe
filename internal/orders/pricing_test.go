package orders

import (
	"testing"

	"github.com/ariefcatur/go-fresh-orders/internal/apperr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPriceDiscountedLine(t *testing.T) {
	items, totals, err := Price(PriceInput{
		Lines: []PricedLine{
			{ProductID: "P", Name: "Dragon fruit", UnitPrice: dec("25000"), DiscountFraction: dec("0.2"), Quantity: 3},
		},
		ShippingFee: dec("20000"),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.True(t, items[0].LineSubtotal.Equal(dec("60000")), items[0].LineSubtotal.String())
	assert.True(t, totals.MerchandiseTotal.Equal(dec("60000")))
	assert.True(t, totals.FinalAmount.Equal(dec("80000")))
	assert.True(t, totals.DiscountAmount.IsZero())
}

func TestPriceSumOfLinesEqualsMerchandiseTotal(t *testing.T) {
	items, totals, err := Price(PriceInput{
		Lines: []PricedLine{
			{ProductID: "A", UnitPrice: dec("12000"), DiscountFraction: dec("0.1"), Quantity: 2},
			{ProductID: "B", UnitPrice: dec("35000"), DiscountFraction: dec("0"), Quantity: 1},
			{ProductID: "C", UnitPrice: dec("8500"), DiscountFraction: dec("0.5"), Quantity: 4},
		},
	})
	require.NoError(t, err)

	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(li.LineSubtotal)
	}
	assert.True(t, sum.Equal(totals.MerchandiseTotal), "%s != %s", sum, totals.MerchandiseTotal)
}

func TestPriceRoundsOnceAtTheTotal(t *testing.T) {
	// 3 lines of 0.5 each: rounding per line would give 3, rounding the total gives 2.
	line := PricedLine{UnitPrice: dec("1"), DiscountFraction: dec("0.5"), Quantity: 1}
	items, totals, err := Price(PriceInput{Lines: []PricedLine{line, line, line}})
	require.NoError(t, err)

	assert.True(t, items[0].LineSubtotal.Equal(dec("0.5")))
	assert.True(t, totals.MerchandiseTotal.Equal(dec("2")), totals.MerchandiseTotal.String())
}

func TestPriceRoundHalfUp(t *testing.T) {
	_, totals, err := Price(PriceInput{
		Lines:     []PricedLine{{UnitPrice: dec("10.125"), DiscountFraction: dec("0"), Quantity: 1}},
		Precision: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "10.13", totals.MerchandiseTotal.StringFixed(2))
}

func TestPriceOrderDiscountAmount(t *testing.T) {
	_, totals, err := Price(PriceInput{
		Lines:          []PricedLine{{UnitPrice: dec("50000"), DiscountFraction: dec("0"), Quantity: 2}},
		ShippingFee:    dec("20000"),
		DiscountAmount: dec("15000"),
	})
	require.NoError(t, err)
	assert.True(t, totals.FinalAmount.Equal(dec("105000")))

	_, _, err = Price(PriceInput{
		Lines:          []PricedLine{{UnitPrice: dec("1000"), DiscountFraction: dec("0"), Quantity: 1}},
		DiscountAmount: dec("5000"),
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestPriceValidation(t *testing.T) {
	cases := map[string]PriceInput{
		"discount one":      {Lines: []PricedLine{{UnitPrice: dec("1"), DiscountFraction: dec("1"), Quantity: 1}}},
		"discount negative": {Lines: []PricedLine{{UnitPrice: dec("1"), DiscountFraction: dec("-0.1"), Quantity: 1}}},
		"negative qty":      {Lines: []PricedLine{{UnitPrice: dec("1"), DiscountFraction: dec("0"), Quantity: -1}}},
		"negative price":    {Lines: []PricedLine{{UnitPrice: dec("-1"), DiscountFraction: dec("0"), Quantity: 1}}},
		"negative shipping": {ShippingFee: dec("-1")},
		"negative discount": {DiscountAmount: dec("-1")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Price(in)
			assert.True(t, apperr.IsCode(err, apperr.CodeValidation), "got %v", err)
		})
	}
}
