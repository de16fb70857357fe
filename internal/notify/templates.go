package notify

import (
	"fmt"
	"strings"

	"github.com/ariefcatur/go-fresh-orders/internal/orders"
	"github.com/shopspring/decimal"
)

type Message struct {
	OrderID string
	To      string
	Subject string
	Body    string
}

func createdMessage(p orders.OrderCreatedPayload) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nThanks for your order %s.\n\n", p.Customer.Name, p.OrderNumber)
	for _, li := range p.Items {
		fmt.Fprintf(&b, "  %-24s x%-3d %s\n", li.Name, li.Quantity, formatAmount(li.LineSubtotal))
	}
	fmt.Fprintf(&b, "\nTotal: %s (%s)\n", formatAmount(p.FinalAmount), p.PaymentMethod)
	fmt.Fprintf(&b, "Delivery to: %s\n", p.Customer.Address)
	return Message{
		OrderID: p.OrderID,
		To:      p.Customer.Email,
		Subject: fmt.Sprintf("Order %s received", p.OrderNumber),
		Body:    b.String(),
	}
}

var statusHeadline = map[orders.Status]string{
	orders.StatusConfirmed: "has been confirmed and is being prepared",
	orders.StatusShipping:  "is on its way",
	orders.StatusDelivered: "has been delivered",
	orders.StatusCancelled: "has been cancelled",
}

func statusMessage(p orders.OrderStatusChangedPayload) Message {
	headline, ok := statusHeadline[p.CurrentStatus]
	if !ok {
		headline = "is now " + string(p.CurrentStatus)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYour order %s %s.\n", p.Customer.Name, p.OrderNumber, headline)
	if p.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", p.Reason)
	}
	if p.CurrentStatus == orders.StatusDelivered {
		b.WriteString("Payment has been settled. Enjoy your groceries!\n")
	}
	return Message{
		OrderID: p.OrderID,
		To:      p.Customer.Email,
		Subject: fmt.Sprintf("Order %s %s", p.OrderNumber, p.CurrentStatus),
		Body:    b.String(),
	}
}

// formatAmount renders whole currency units with comma separators. Fractions are kept as is.
func formatAmount(d decimal.Decimal) string {
	s := d.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	var out strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		out.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if out.Len() > 0 {
			out.WriteByte(',')
		}
		out.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		out.WriteString("." + frac)
	}
	return sign + out.String()
}
