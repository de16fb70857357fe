// Package seed holds the demo catalog loaded into the memory store and by
// `migrate -cmd seed`.
package seed

import (
	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/shopspring/decimal"
)

func Products() []orders.Product {
	return []orders.Product{
		{ID: "veg-spinach", Name: "Rau bina Đà Lạt", Unit: "bó 300g", UnitPrice: decimal.NewFromInt(25000), DiscountFraction: decimal.RequireFromString("0.10"), AvailableQuantity: 120, InStock: true},
		{ID: "veg-tomato", Name: "Cà chua beef", Unit: "kg", UnitPrice: decimal.NewFromInt(42000), AvailableQuantity: 80, InStock: true},
		{ID: "veg-cabbage", Name: "Bắp cải tím", Unit: "cái", UnitPrice: decimal.NewFromInt(28000), AvailableQuantity: 40, InStock: true},
		{ID: "fruit-mango", Name: "Xoài cát Hòa Lộc", Unit: "kg", UnitPrice: decimal.NewFromInt(85000), DiscountFraction: decimal.RequireFromString("0.15"), AvailableQuantity: 35, InStock: true},
		{ID: "fruit-durian", Name: "Sầu riêng Ri6", Unit: "kg", UnitPrice: decimal.NewFromInt(135000), AvailableQuantity: 0, InStock: false},
		{ID: "herb-basil", Name: "Húng quế", Unit: "bó 100g", UnitPrice: decimal.NewFromInt(8000), AvailableQuantity: 200, InStock: true},
	}
}
