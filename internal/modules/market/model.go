// README: Market entities (Ride, Order, ShoppingList) and their state machines.
package market

import (
	"fmt"
	"sort"
	"time"

	"cartpool/internal/types"
)

// Attribution is the identity/ownership/creation triple embedded in
// every entity. Set once at construction, never mutated.
type Attribution struct {
	ID        types.ID     `json:"id"`
	UserID    types.UserID `json:"user_id"`
	CreatedAt time.Time    `json:"created_at"`
}

func newAttribution(id types.ID, userID types.UserID) Attribution {
	return Attribution{ID: id, UserID: userID, CreatedAt: time.Now().UTC()}
}

type RideResolution string

const (
	RideResolutionUndef              RideResolution = "undef"
	RideResolutionCancelled          RideResolution = "cancelled"
	RideResolutionExpiredOrCompleted RideResolution = "expired_or_completed"
)

type OrderState string

const (
	OrderStateIdleWaitingAcceptance    OrderState = "idle_waiting_acceptance"
	OrderStateAcceptedWaitingDelivery  OrderState = "accepted_waiting_delivery"
	OrderStateDeliveredWaitingFeedback OrderState = "delivered_waiting_feedback"
)

type OrderResolution string

const (
	OrderResolutionUndef             OrderResolution = "undef"
	OrderResolutionRideCancelled     OrderResolution = "ride_cancelled"
	OrderResolutionDeclinedByShopper OrderResolution = "declined_by_shopper"
	OrderResolutionDelivered         OrderResolution = "delivered"
)

// RideSummary is the requester-supplied description of an offered
// delivery slot. DeliveryTime is the wall-clock time in the owner's
// timezone; the UTC instant lives on the Ride itself.
type RideSummary struct {
	Position     types.GeoPosition `json:"position"`
	DeliveryTime time.Time         `json:"delivery_time"`
	MaxWeight    float64           `json:"max_weight"`
}

// Ride is an offered delivery slot, optionally matched to one accepted
// order. Rides hold no lock of their own; every mutation happens under
// the store's lock. The methods only guard their structural
// preconditions and panic when the store's orchestration broke them.
type Ride struct {
	Attrib          Attribution
	Summary         RideSummary
	DeliveryTimeUTC time.Time
	IsOpen          bool
	AcceptedOrderID types.ID
	Resolution      RideResolution
	ShopperName     string

	pending map[types.ID]struct{}
}

func newRide(id types.ID, owner types.UserID, summary RideSummary, deliveryTimeUTC time.Time, shopperName string) *Ride {
	return &Ride{
		Attrib:          newAttribution(id, owner),
		Summary:         summary,
		DeliveryTimeUTC: deliveryTimeUTC,
		IsOpen:          true,
		Resolution:      RideResolutionUndef,
		ShopperName:     shopperName,
		pending:         make(map[types.ID]struct{}),
	}
}

// AddPendingOrder inserts orderID into the pending set. Duplicate
// inserts are a no-op.
func (r *Ride) AddPendingOrder(orderID types.ID) {
	r.pending[orderID] = struct{}{}
}

func (r *Ride) HasPendingOrder(orderID types.ID) bool {
	_, ok := r.pending[orderID]
	return ok
}

// PendingOrderIDs returns the pending order ids in ascending order.
func (r *Ride) PendingOrderIDs() []types.ID {
	ids := make([]types.ID, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AcceptOrder resolves the pending order orderID. The ride must be
// open, must not have accepted an order yet, and orderID must be
// pending; the store verifies all of that before calling, so a
// violation here means the maps are inconsistent.
func (r *Ride) AcceptOrder(orderID types.ID, shouldAccept bool) {
	if !r.IsOpen {
		panic(fmt.Sprintf("market: accept order %d on closed ride %d", orderID, r.Attrib.ID))
	}
	if r.AcceptedOrderID != 0 {
		panic(fmt.Sprintf("market: ride %d already accepted order %d", r.Attrib.ID, r.AcceptedOrderID))
	}
	if !r.HasPendingOrder(orderID) {
		panic(fmt.Sprintf("market: order %d is not pending on ride %d", orderID, r.Attrib.ID))
	}
	delete(r.pending, orderID)
	if shouldAccept {
		r.AcceptedOrderID = orderID
	}
}

// MarkDelivered closes the ride after its accepted order was delivered.
func (r *Ride) MarkDelivered() {
	if !r.IsOpen {
		panic(fmt.Sprintf("market: mark delivered on closed ride %d", r.Attrib.ID))
	}
	if r.AcceptedOrderID == 0 {
		panic(fmt.Sprintf("market: mark delivered on ride %d without accepted order", r.Attrib.ID))
	}
	r.IsOpen = false
	r.Resolution = RideResolutionExpiredOrCompleted
}

// Cancel closes the ride. Cancelling the linked accepted order, if any,
// is the store's job and happens before this call.
func (r *Ride) Cancel() {
	if !r.IsOpen {
		panic(fmt.Sprintf("market: cancel closed ride %d", r.Attrib.ID))
	}
	r.IsOpen = false
	r.Resolution = RideResolutionCancelled
}

// OrderCache is the snapshot of computed totals captured at order
// creation time. Never recomputed.
type OrderCache struct {
	Sum             float64   `json:"sum"`
	Earning         float64   `json:"earning"`
	Weight          float64   `json:"weight"`
	DeliveryTimeUTC time.Time `json:"delivery_time_utc"`
	ShopperName     string    `json:"shopper_name"`
}

// Order is a shopping request submitted against a ride. The lifecycle
// is linear: idle -> accepted -> delivered -> closed, with terminal
// closures recorded in Resolution. Once closed, State freezes.
type Order struct {
	Attrib          Attribution
	RideID          types.ID
	ShoppingListID  types.ID
	DeliveryAddress types.Address
	IsOpen          bool
	State           OrderState
	Resolution      OrderResolution
	Cache           OrderCache
}

func newOrder(id types.ID, owner types.UserID, rideID, shoppingListID types.ID, deliveryAddress types.Address, cache OrderCache) *Order {
	return &Order{
		Attrib:          newAttribution(id, owner),
		RideID:          rideID,
		ShoppingListID:  shoppingListID,
		DeliveryAddress: deliveryAddress,
		IsOpen:          true,
		State:           OrderStateIdleWaitingAcceptance,
		Resolution:      OrderResolutionUndef,
		Cache:           cache,
	}
}

// CancelRide closes the order because its ride is being cancelled.
// Unlike the other transitions this reports recoverable errors: a
// cancelled ride whose order is delivered but not yet rated is a caller
// mistake, not a corrupted store.
func (o *Order) CancelRide() error {
	if !o.IsOpen {
		return fmt.Errorf("%w: cannot cancel ride, order %d is already closed", ErrAlreadyClosed, o.Attrib.ID)
	}
	switch o.State {
	case OrderStateIdleWaitingAcceptance, OrderStateAcceptedWaitingDelivery:
		o.close(OrderResolutionRideCancelled)
		return nil
	case OrderStateDeliveredWaitingFeedback:
		return fmt.Errorf("%w: cannot cancel ride, accepted order %d was already delivered", ErrInvalidState, o.Attrib.ID)
	}
	return fmt.Errorf("%w: unexpected order %d state %q", ErrInvalidState, o.Attrib.ID, o.State)
}

// AcceptOrder advances an idle order to accepted, or closes it as
// declined. Precondition (guarded by the store): open and idle.
func (o *Order) AcceptOrder(shouldAccept bool) {
	if !o.IsOpen || o.State != OrderStateIdleWaitingAcceptance {
		panic(fmt.Sprintf("market: accept on order %d in state %q (open=%v)", o.Attrib.ID, o.State, o.IsOpen))
	}
	if shouldAccept {
		o.State = OrderStateAcceptedWaitingDelivery
	} else {
		o.close(OrderResolutionDeclinedByShopper)
	}
}

// MarkDelivered advances an accepted order to delivered-awaiting-feedback.
func (o *Order) MarkDelivered() {
	if !o.IsOpen || o.State != OrderStateAcceptedWaitingDelivery {
		panic(fmt.Sprintf("market: mark delivered on order %d in state %q (open=%v)", o.Attrib.ID, o.State, o.IsOpen))
	}
	o.State = OrderStateDeliveredWaitingFeedback
}

// RateShopper closes a delivered order. The stars value is accepted as
// given; validation is the transport's concern and no aggregate rating
// is kept.
func (o *Order) RateShopper(stars int) {
	if !o.IsOpen || o.State != OrderStateDeliveredWaitingFeedback {
		panic(fmt.Sprintf("market: rate shopper on order %d in state %q (open=%v)", o.Attrib.ID, o.State, o.IsOpen))
	}
	_ = stars
	o.close(OrderResolutionDelivered)
}

func (o *Order) close(resolution OrderResolution) {
	if !o.IsOpen {
		panic(fmt.Sprintf("market: close already closed order %d", o.Attrib.ID))
	}
	o.IsOpen = false
	o.Resolution = resolution
}

// ShoppingItem is one (product, amount) line of a shopping list.
type ShoppingItem struct {
	ProductID types.ID `json:"product_id"`
	Amount    uint32   `json:"amount"`
}

// ShoppingList is the immutable list of items attached to an order.
type ShoppingList struct {
	Attrib Attribution
	Items  []ShoppingItem
}
