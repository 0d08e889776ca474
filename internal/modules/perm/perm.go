// README: Permission checks, evaluated per request kind before any mutation.
package perm

import (
	"cartpool/internal/modules/market"
	"cartpool/internal/types"
)

// Request is the closed set of guarded operations. Each kind carries
// the ids its rule needs; Checker.Allowed dispatches on the concrete
// type.
type Request interface {
	permRequest()
}

type AddRide struct{}

type GetRide struct{ RideID types.ID }

type CancelRide struct{ RideID types.ID }

type AddOrder struct{}

type AcceptOrder struct{ OrderID types.ID }

type DeclineOrder struct{ OrderID types.ID }

type MarkDeliveredOrder struct{ OrderID types.ID }

type RateShopper struct{ OrderID types.ID }

type GetShoppingRequests struct{ RideID types.ID }

type GetShoppingList struct{ ListID types.ID }

func (AddRide) permRequest()             {}
func (GetRide) permRequest()             {}
func (CancelRide) permRequest()          {}
func (AddOrder) permRequest()            {}
func (AcceptOrder) permRequest()         {}
func (DeclineOrder) permRequest()        {}
func (MarkDeliveredOrder) permRequest()  {}
func (RateShopper) permRequest()         {}
func (GetShoppingRequests) permRequest() {}
func (GetShoppingList) permRequest()     {}

// Checker answers "may this user run this request". The rules are
// ownership-based: ride operations need the acting user to own the
// ride, resolving someone's order needs the acting user to NOT own it
// (the shopper acts on a requester's order), rating needs ownership
// (the requester rates their own order). Shopping lists only need to
// exist.
type Checker struct {
	store *market.Store
}

func NewChecker(store *market.Store) *Checker {
	return &Checker{store: store}
}

// Allowed evaluates the rule for req. Unknown entities fail closed.
func (c *Checker) Allowed(actingUser types.UserID, req Request) bool {
	allowed := false
	c.store.WithLock(func() {
		switch r := req.(type) {
		case AddRide, AddOrder:
			allowed = true
		case GetRide:
			allowed = c.rideOwnedLocked(r.RideID, actingUser, true)
		case CancelRide:
			allowed = c.rideOwnedLocked(r.RideID, actingUser, true)
		case AcceptOrder:
			allowed = c.orderOwnedLocked(r.OrderID, actingUser, false)
		case DeclineOrder:
			allowed = c.orderOwnedLocked(r.OrderID, actingUser, false)
		case MarkDeliveredOrder:
			allowed = c.orderOwnedLocked(r.OrderID, actingUser, false)
		case RateShopper:
			allowed = c.orderOwnedLocked(r.OrderID, actingUser, true)
		case GetShoppingRequests:
			allowed = c.rideOwnedLocked(r.RideID, actingUser, true)
		case GetShoppingList:
			allowed = c.store.FindShoppingListLocked(r.ListID) != nil
		}
	})
	return allowed
}

func (c *Checker) rideOwnedLocked(rideID types.ID, actingUser types.UserID, shouldOwn bool) bool {
	ride := c.store.FindRideLocked(rideID)
	if ride == nil {
		return false
	}
	return (ride.Attrib.UserID == actingUser) == shouldOwn
}

func (c *Checker) orderOwnedLocked(orderID types.ID, actingUser types.UserID, shouldOwn bool) bool {
	order := c.store.FindOrderLocked(orderID)
	if order == nil {
		return false
	}
	return (order.Attrib.UserID == actingUser) == shouldOwn
}
