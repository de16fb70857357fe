package orders

import "github.com/ariefcatur/go-fresh-orders/internal/apperr"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
	// RoleSystem is the payment gateway callback.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCustomer, RoleSystem:
		return true
	}
	return false
}

// Actor is the caller of a lifecycle operation. ID is the customer id for customers.
type Actor struct {
	ID   string
	Role Role
}

var allowedTargets = map[Role]map[Status]bool{
	// admins may request anything; Plan decides what is legal
	RoleAdmin: {
		StatusPending:   true,
		StatusConfirmed: true,
		StatusShipping:  true,
		StatusDelivered: true,
		StatusCancelled: true,
	},
	RoleCustomer: {StatusCancelled: true},
	RoleSystem:   {StatusConfirmed: true},
}

func authorizeTransition(actor Actor, target Status) error {
	if !allowedTargets[actor.Role][target] {
		return apperr.Newf(apperr.CodeForbidden, "role %q may not move orders to %s", actor.Role, target)
	}
	return nil
}

// authorizeAccess lets admins and the system through and restricts customers to their own orders.
// Guest orders carry no customer id and are never visible to a customer token.
func authorizeAccess(actor Actor, o *Order) error {
	switch actor.Role {
	case RoleAdmin, RoleSystem:
		return nil
	case RoleCustomer:
		if actor.ID != "" && o.Customer.CustomerID == actor.ID {
			return nil
		}
	}
	return apperr.New(apperr.CodeForbidden, "order belongs to another customer")
}
