package orders

import (
	"time"

	"github.com/ariefcatur/go-fresh-orders/internal/inventory"
	"github.com/shopspring/decimal"
)

// Product is the catalog view the order core reads: price, discount and stock flags.
type Product struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Unit              string          `json:"unit,omitempty"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	DiscountFraction  decimal.Decimal `json:"discount_fraction"`
	AvailableQuantity int             `json:"available_quantity"`
	InStock           bool            `json:"in_stock"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "cod"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentWallet       PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentBankTransfer, PaymentWallet:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Customer is copied into the order at creation; later profile edits never reach it.
type Customer struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	Email      string `json:"email,omitempty"`
}

type LineItem struct {
	ProductID        string          `json:"product_id"`
	Name             string          `json:"name"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountFraction decimal.Decimal `json:"discount_fraction"`
	Quantity         int             `json:"quantity"`
	LineSubtotal     decimal.Decimal `json:"line_subtotal"`
}

type Totals struct {
	MerchandiseTotal decimal.Decimal `json:"merchandise_total"`
	ShippingFee      decimal.Decimal `json:"shipping_fee"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	FinalAmount      decimal.Decimal `json:"final_amount"`
}

// Timestamps are set once each. CancelledAt excludes any later timestamp.
type Timestamps struct {
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type Order struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number"`
	Customer      Customer      `json:"customer"`
	Items         []LineItem    `json:"items"`
	Totals        Totals        `json:"totals"`
	Status        Status        `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Timestamps    Timestamps    `json:"timestamps"`
	Note          string        `json:"note,omitempty"`
	// StockReleased is flipped exactly once, by the cancellation that restocks the items.
	StockReleased bool      `json:"-"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ReservedItems is what the ledger decremented for this order.
func (o *Order) ReservedItems() []inventory.Item {
	items := make([]inventory.Item, 0, len(o.Items))
	for _, li := range o.Items {
		items = append(items, inventory.Item{ProductID: li.ProductID, Qty: li.Quantity})
	}
	return inventory.Normalize(items)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.Timestamps.ConfirmedAt = cloneTime(o.Timestamps.ConfirmedAt)
	c.Timestamps.ShippedAt = cloneTime(o.Timestamps.ShippedAt)
	c.Timestamps.DeliveredAt = cloneTime(o.Timestamps.DeliveredAt)
	c.Timestamps.CancelledAt = cloneTime(o.Timestamps.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CartLine is a checkout request line before catalog resolution.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderInput struct {
	Customer      Customer
	Items         []CartLine
	Note          string
	PaymentMethod PaymentMethod
}
