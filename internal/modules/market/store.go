// README: Store is the transactional in-memory database owning rides, orders and shopping lists.
package market

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cartpool/internal/types"
)

// plzFitThreshold bounds the postal-code distance between a shopper and
// a candidate ride. positionsFit is the single swap-in point for a real
// geographic metric.
const plzFitThreshold = 1000

// Store owns every Ride, Order and ShoppingList for the process
// lifetime. One mutex guards the maps and the id counter; operations
// are short in-memory map mutations, so no finer-grained locking is
// attempted. Methods with the Locked suffix assume the caller holds the
// lock through WithLock, everything else locks internally.
type Store struct {
	mu  sync.Mutex
	log zerolog.Logger

	lastID        types.ID
	rides         map[types.ID]*Ride
	orders        map[types.ID]*Order
	shoppingLists map[types.ID]*ShoppingList
	ordersByUser  map[types.UserID]map[types.ID]struct{}
}

func NewStore(log zerolog.Logger) *Store {
	return &Store{
		log:           log.With().Str("module", "market").Logger(),
		rides:         make(map[types.ID]*Ride),
		orders:        make(map[types.ID]*Order),
		shoppingLists: make(map[types.ID]*ShoppingList),
		ordersByUser:  make(map[types.UserID]map[types.ID]struct{}),
	}
}

// WithLock runs fn while holding the store lock. Collaborators use it
// to compose several Locked calls into one atomic read/validate/write
// sequence. fn must not call the locking entry points.
func (s *Store) WithLock(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// NextID hands out the next id from the sequence shared by all entity
// kinds.
func (s *Store) NextID() types.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() types.ID {
	s.lastID++
	return s.lastID
}

// CreateRide allocates an id, constructs the ride and inserts it.
func (s *Store) CreateRide(summary RideSummary, deliveryTimeUTC time.Time, shopperName string, owner types.UserID) (types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextIDLocked()
	if err := s.addRideLocked(id, newRide(id, owner, summary, deliveryTimeUTC, shopperName)); err != nil {
		return 0, err
	}
	s.log.Info().
		Int64("ride_id", int64(id)).
		Int64("user_id", int64(owner)).
		Uint32("plz", summary.Position.Plz).
		Msg("ride created")
	return id, nil
}

// CreateOrder is the locking wrapper around CreateOrderLocked.
func (s *Store) CreateOrder(rideID types.ID, items []ShoppingItem, deliveryAddress types.Address, sum, weight, earning float64, deliveryTimeUTC time.Time, shopperName string, owner types.UserID) (types.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CreateOrderLocked(rideID, items, deliveryAddress, sum, weight, earning, deliveryTimeUTC, shopperName, owner)
}

// CreateOrderLocked allocates a shopping list and an order, caches the
// precomputed totals and wires the order into the ride's pending set.
// All three steps share one critical section. When the linking step
// rejects the order (missing ride, or requester ordering against their
// own ride) the already inserted shopping list and order stay in the
// maps, unlinked from any ride; the ride itself is never touched on
// that path.
func (s *Store) CreateOrderLocked(rideID types.ID, items []ShoppingItem, deliveryAddress types.Address, sum, weight, earning float64, deliveryTimeUTC time.Time, shopperName string, owner types.UserID) (types.ID, error) {
	listID := s.nextIDLocked()
	list := &ShoppingList{Attrib: newAttribution(listID, owner), Items: items}
	if err := s.addShoppingListLocked(listID, list); err != nil {
		return 0, err
	}

	orderID := s.nextIDLocked()
	cache := OrderCache{
		Sum:             sum,
		Weight:          weight,
		Earning:         earning,
		DeliveryTimeUTC: deliveryTimeUTC,
		ShopperName:     shopperName,
	}
	if err := s.addOrderLocked(orderID, newOrder(orderID, owner, rideID, listID, deliveryAddress, cache)); err != nil {
		return 0, err
	}

	if err := s.addPendingOrderLocked(orderID, rideID, owner); err != nil {
		return 0, err
	}

	s.log.Info().
		Int64("order_id", int64(orderID)).
		Int64("ride_id", int64(rideID)).
		Int64("shopping_list_id", int64(listID)).
		Int64("user_id", int64(owner)).
		Msg("order created")
	return orderID, nil
}

// CancelRide closes the ride and, when one was accepted, its order.
// Ownership filtering is the permission layer's job; structural state
// is still re-validated here. Pending orders are not touched: a ride
// with an accepted order has already declined the competitors, and
// without one there is nothing to cancel.
func (s *Store) CancelRide(rideID types.ID, actingUser types.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return fmt.Errorf("%w: ride %d", ErrNotFound, rideID)
	}
	if !ride.IsOpen {
		return fmt.Errorf("%w: ride %d", ErrAlreadyClosed, rideID)
	}
	if ride.AcceptedOrderID != 0 {
		order, ok := s.orders[ride.AcceptedOrderID]
		if !ok {
			panic(fmt.Sprintf("market: ride %d references missing order %d", rideID, ride.AcceptedOrderID))
		}
		if err := order.CancelRide(); err != nil {
			return err
		}
	}
	ride.Cancel()

	s.log.Info().
		Int64("ride_id", int64(rideID)).
		Int64("user_id", int64(actingUser)).
		Int64("accepted_order_id", int64(ride.AcceptedOrderID)).
		Msg("ride cancelled")
	return nil
}

// AcceptOrder resolves a pending order on one of actingUser's open
// rides. Accepting it also declines every other order still pending on
// that ride, so a ride can only ever accept one order.
func (s *Store) AcceptOrder(orderID types.ID, actingUser types.UserID, shouldAccept bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rides := s.openRidesWithoutAcceptedOrderLocked(actingUser)
	if len(rides) == 0 {
		return fmt.Errorf("%w: no offered rides found for user %d", ErrNotFound, actingUser)
	}

	for _, ride := range rides {
		if !ride.HasPendingOrder(orderID) {
			continue
		}
		ride.AcceptOrder(orderID, shouldAccept)
		s.resolvePendingOrderLocked(orderID, shouldAccept)

		if shouldAccept {
			competing := ride.PendingOrderIDs()
			s.log.Debug().
				Int64("order_id", int64(orderID)).
				Int64("ride_id", int64(ride.Attrib.ID)).
				Int("declined", len(competing)).
				Msg("declining competing pending orders")
			for _, id := range competing {
				s.resolvePendingOrderLocked(id, false)
			}
		}

		s.log.Info().
			Int64("order_id", int64(orderID)).
			Int64("ride_id", int64(ride.Attrib.ID)).
			Bool("accepted", shouldAccept).
			Msg("order resolved")
		return nil
	}

	return fmt.Errorf("%w: no pending order %d found for user %d", ErrNotFound, orderID, actingUser)
}

func (s *Store) resolvePendingOrderLocked(orderID types.ID, shouldAccept bool) {
	order, ok := s.orders[orderID]
	if !ok {
		panic(fmt.Sprintf("market: pending order %d does not exist", orderID))
	}
	order.AcceptOrder(shouldAccept)
}

// MarkDelivered records the delivery of the accepted order on one of
// actingUser's open rides, closing the ride and advancing the order to
// the feedback stage.
func (s *Store) MarkDelivered(orderID types.ID, actingUser types.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride := s.rideWithAcceptedOrderLocked(orderID, actingUser)
	if ride == nil {
		return fmt.Errorf("%w: no ride with accepted order %d found for user %d", ErrNotFound, orderID, actingUser)
	}
	order, ok := s.orders[orderID]
	if !ok {
		panic(fmt.Sprintf("market: ride %d references missing order %d", ride.Attrib.ID, orderID))
	}

	switch order.State {
	case OrderStateAcceptedWaitingDelivery:
		ride.MarkDelivered()
		order.MarkDelivered()
		s.log.Info().
			Int64("order_id", int64(orderID)).
			Int64("ride_id", int64(ride.Attrib.ID)).
			Msg("order delivered")
		return nil
	case OrderStateDeliveredWaitingFeedback:
		return fmt.Errorf("%w: order %d is already marked as delivered", ErrInvalidState, orderID)
	}
	return fmt.Errorf("%w: delivery not possible for order %d in state %q", ErrInvalidState, orderID, order.State)
}

// RateShopper closes a delivered order. The permission layer has
// already established that the order exists and belongs to actingUser,
// so a missing order here is a fault, not an error.
func (s *Store) RateShopper(orderID types.ID, stars int, actingUser types.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		panic(fmt.Sprintf("market: rate shopper on missing order %d", orderID))
	}
	if !order.IsOpen {
		return fmt.Errorf("%w: order %d", ErrAlreadyClosed, orderID)
	}

	switch order.State {
	case OrderStateIdleWaitingAcceptance:
		return fmt.Errorf("%w: order %d is not accepted yet", ErrInvalidState, orderID)
	case OrderStateAcceptedWaitingDelivery:
		return fmt.Errorf("%w: order %d is not delivered yet", ErrInvalidState, orderID)
	case OrderStateDeliveredWaitingFeedback:
		order.RateShopper(stars)
		s.log.Info().
			Int64("order_id", int64(orderID)).
			Int64("user_id", int64(actingUser)).
			Int("stars", stars).
			Msg("shopper rated")
		return nil
	}
	return fmt.Errorf("%w: rating not possible for order %d in state %q", ErrInvalidState, orderID, order.State)
}

// InfoForShopperLocked returns the rides owned by userID plus, for each
// ride with an accepted order, that order. Read-only.
func (s *Store) InfoForShopperLocked(userID types.UserID) ([]*Ride, []*Order) {
	rides := s.ridesForUserLocked(userID, true)

	var orders []*Order
	for _, ride := range rides {
		if ride.AcceptedOrderID == 0 {
			continue
		}
		order, ok := s.orders[ride.AcceptedOrderID]
		if !ok {
			panic(fmt.Sprintf("market: ride %d references missing order %d", ride.Attrib.ID, ride.AcceptedOrderID))
		}
		orders = append(orders, order)
	}
	return rides, orders
}

// InfoForUserLocked returns the candidate rides near position (open,
// not owned by userID, no accepted order yet) plus all of userID's own
// orders. Read-only.
func (s *Store) InfoForUserLocked(position types.GeoPosition, userID types.UserID) ([]*Ride, []*Order) {
	var candidates []*Ride
	for _, ride := range s.ridesForUserLocked(userID, false) {
		if ride.IsOpen && ride.AcceptedOrderID == 0 && positionsFit(ride.Summary.Position, position) {
			candidates = append(candidates, ride)
		}
	}
	return candidates, s.ordersForUserLocked(userID)
}

// ShoppingRequestInfo is one pending order's offer summary, shown to
// the ride owner when choosing which order to accept.
type ShoppingRequestInfo struct {
	OrderID         types.ID      `json:"order_id"`
	Sum             float64       `json:"sum"`
	Earning         float64       `json:"earning"`
	Weight          float64       `json:"weight"`
	DeliveryAddress types.Address `json:"delivery_address"`
}

// ShoppingRequests lists one entry per order pending on the ride, in
// ascending order-id order.
func (s *Store) ShoppingRequests(rideID types.ID, actingUser types.UserID) ([]ShoppingRequestInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return nil, fmt.Errorf("%w: ride %d", ErrNotFound, rideID)
	}

	pending := ride.PendingOrderIDs()
	infos := make([]ShoppingRequestInfo, 0, len(pending))
	for _, id := range pending {
		order, ok := s.orders[id]
		if !ok {
			panic(fmt.Sprintf("market: ride %d lists missing pending order %d", rideID, id))
		}
		infos = append(infos, ShoppingRequestInfo{
			OrderID:         id,
			Sum:             order.Cache.Sum,
			Earning:         order.Cache.Earning,
			Weight:          order.Cache.Weight,
			DeliveryAddress: order.DeliveryAddress,
		})
	}

	s.log.Debug().
		Int64("ride_id", int64(rideID)).
		Int64("user_id", int64(actingUser)).
		Int("pending", len(infos)).
		Msg("shopping requests listed")
	return infos, nil
}

// FindRideLocked returns the ride or nil. Caller holds the lock.
func (s *Store) FindRideLocked(rideID types.ID) *Ride {
	return s.rides[rideID]
}

// FindOrderLocked returns the order or nil. Caller holds the lock.
func (s *Store) FindOrderLocked(orderID types.ID) *Order {
	return s.orders[orderID]
}

// FindShoppingListLocked returns the list or nil. Caller holds the lock.
func (s *Store) FindShoppingListLocked(listID types.ID) *ShoppingList {
	return s.shoppingLists[listID]
}

// FindUserIDByOrderID resolves an order's owner.
func (s *Store) FindUserIDByOrderID(orderID types.ID) (types.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return 0, false
	}
	return order.Attrib.UserID, true
}

func (s *Store) addRideLocked(id types.ID, ride *Ride) error {
	if _, ok := s.rides[id]; ok {
		return fmt.Errorf("%w: ride %d", ErrAlreadyExists, id)
	}
	s.rides[id] = ride
	return nil
}

func (s *Store) addShoppingListLocked(id types.ID, list *ShoppingList) error {
	if _, ok := s.shoppingLists[id]; ok {
		return fmt.Errorf("%w: shopping list %d", ErrAlreadyExists, id)
	}
	s.shoppingLists[id] = list
	return nil
}

func (s *Store) addOrderLocked(id types.ID, order *Order) error {
	if _, ok := s.orders[id]; ok {
		return fmt.Errorf("%w: order %d", ErrAlreadyExists, id)
	}
	s.orders[id] = order

	byUser := s.ordersByUser[order.Attrib.UserID]
	if byUser == nil {
		byUser = make(map[types.ID]struct{})
		s.ordersByUser[order.Attrib.UserID] = byUser
	}
	byUser[id] = struct{}{}
	return nil
}

func (s *Store) addPendingOrderLocked(orderID, rideID types.ID, owner types.UserID) error {
	ride, ok := s.rides[rideID]
	if !ok {
		return fmt.Errorf("%w: ride %d", ErrNotFound, rideID)
	}
	if owner == ride.Attrib.UserID {
		return fmt.Errorf("%w: order by user %d targets their own ride %d", ErrOwnershipConflict, owner, rideID)
	}
	ride.AddPendingOrder(orderID)
	return nil
}

// ridesForUserLocked collects rides by ownership, ascending by id.
// match selects owned (true) or foreign (false) rides.
func (s *Store) ridesForUserLocked(userID types.UserID, match bool) []*Ride {
	var res []*Ride
	for _, ride := range s.rides {
		if (ride.Attrib.UserID == userID) == match {
			res = append(res, ride)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Attrib.ID < res[j].Attrib.ID })
	return res
}

func (s *Store) ordersForUserLocked(userID types.UserID) []*Order {
	ids := make([]types.ID, 0, len(s.ordersByUser[userID]))
	for id := range s.ordersByUser[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	orders := make([]*Order, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, s.orders[id])
	}
	return orders
}

func (s *Store) openRidesWithoutAcceptedOrderLocked(userID types.UserID) []*Ride {
	var res []*Ride
	for _, ride := range s.ridesForUserLocked(userID, true) {
		if ride.IsOpen && ride.AcceptedOrderID == 0 {
			res = append(res, ride)
		}
	}
	return res
}

func (s *Store) rideWithAcceptedOrderLocked(orderID types.ID, userID types.UserID) *Ride {
	for _, ride := range s.ridesForUserLocked(userID, true) {
		if ride.IsOpen && ride.AcceptedOrderID == orderID {
			return ride
		}
	}
	return nil
}

// positionsFit reports whether two positions are close enough to match.
// The metric is the absolute postal-code difference, which approximates
// proximity inside one region; it is symmetric and threshold-based. A
// haversine distance over GeoPosition.Lat/Lng would slot in here.
func positionsFit(a, b types.GeoPosition) bool {
	delta := int64(a.Plz) - int64(b.Plz)
	if delta < 0 {
		delta = -delta
	}
	return delta < plzFitThreshold
}
