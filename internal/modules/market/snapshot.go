// README: Snapshot DTOs and (de)hydration for status persistence.
package market

import (
	"sort"
	"time"

	"cartpool/internal/types"
)

// Snapshot is the full serializable state of a Store. The pending sets
// are flattened to sorted id slices so the encoding is deterministic.
type Snapshot struct {
	LastID        types.ID             `json:"last_id"`
	Rides         []RideRecord         `json:"rides"`
	Orders        []OrderRecord        `json:"orders"`
	ShoppingLists []ShoppingListRecord `json:"shopping_lists"`
	TakenAt       time.Time            `json:"taken_at"`
}

type RideRecord struct {
	Attrib          Attribution    `json:"attrib"`
	Summary         RideSummary    `json:"summary"`
	DeliveryTimeUTC time.Time      `json:"delivery_time_utc"`
	IsOpen          bool           `json:"is_open"`
	AcceptedOrderID types.ID       `json:"accepted_order_id"`
	Resolution      RideResolution `json:"resolution"`
	ShopperName     string         `json:"shopper_name"`
	PendingOrderIDs []types.ID     `json:"pending_order_ids"`
}

type OrderRecord struct {
	Attrib          Attribution     `json:"attrib"`
	RideID          types.ID        `json:"ride_id"`
	ShoppingListID  types.ID        `json:"shopping_list_id"`
	DeliveryAddress types.Address   `json:"delivery_address"`
	IsOpen          bool            `json:"is_open"`
	State           OrderState      `json:"state"`
	Resolution      OrderResolution `json:"resolution"`
	Cache           OrderCache      `json:"cache"`
}

type ShoppingListRecord struct {
	Attrib Attribution    `json:"attrib"`
	Items  []ShoppingItem `json:"items"`
}

// Snapshot captures the whole store under the lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		LastID:  s.lastID,
		TakenAt: time.Now().UTC(),
	}

	for _, id := range sortedRideIDsLocked(s.rides) {
		ride := s.rides[id]
		snap.Rides = append(snap.Rides, RideRecord{
			Attrib:          ride.Attrib,
			Summary:         ride.Summary,
			DeliveryTimeUTC: ride.DeliveryTimeUTC,
			IsOpen:          ride.IsOpen,
			AcceptedOrderID: ride.AcceptedOrderID,
			Resolution:      ride.Resolution,
			ShopperName:     ride.ShopperName,
			PendingOrderIDs: ride.PendingOrderIDs(),
		})
	}
	for _, id := range sortedOrderIDsLocked(s.orders) {
		order := s.orders[id]
		snap.Orders = append(snap.Orders, OrderRecord{
			Attrib:          order.Attrib,
			RideID:          order.RideID,
			ShoppingListID:  order.ShoppingListID,
			DeliveryAddress: order.DeliveryAddress,
			IsOpen:          order.IsOpen,
			State:           order.State,
			Resolution:      order.Resolution,
			Cache:           order.Cache,
		})
	}
	for _, id := range sortedListIDsLocked(s.shoppingLists) {
		list := s.shoppingLists[id]
		items := make([]ShoppingItem, len(list.Items))
		copy(items, list.Items)
		snap.ShoppingLists = append(snap.ShoppingLists, ShoppingListRecord{
			Attrib: list.Attrib,
			Items:  items,
		})
	}
	return snap
}

// Restore replaces the store contents with the snapshot. Meant for
// startup before the store is shared, but safe under the lock anyway.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID = snap.LastID
	s.rides = make(map[types.ID]*Ride, len(snap.Rides))
	s.orders = make(map[types.ID]*Order, len(snap.Orders))
	s.shoppingLists = make(map[types.ID]*ShoppingList, len(snap.ShoppingLists))
	s.ordersByUser = make(map[types.UserID]map[types.ID]struct{})

	for _, rec := range snap.Rides {
		ride := &Ride{
			Attrib:          rec.Attrib,
			Summary:         rec.Summary,
			DeliveryTimeUTC: rec.DeliveryTimeUTC,
			IsOpen:          rec.IsOpen,
			AcceptedOrderID: rec.AcceptedOrderID,
			Resolution:      rec.Resolution,
			ShopperName:     rec.ShopperName,
			pending:         make(map[types.ID]struct{}, len(rec.PendingOrderIDs)),
		}
		for _, id := range rec.PendingOrderIDs {
			ride.pending[id] = struct{}{}
		}
		s.rides[rec.Attrib.ID] = ride
	}
	for _, rec := range snap.Orders {
		order := &Order{
			Attrib:          rec.Attrib,
			RideID:          rec.RideID,
			ShoppingListID:  rec.ShoppingListID,
			DeliveryAddress: rec.DeliveryAddress,
			IsOpen:          rec.IsOpen,
			State:           rec.State,
			Resolution:      rec.Resolution,
			Cache:           rec.Cache,
		}
		s.orders[rec.Attrib.ID] = order

		byUser := s.ordersByUser[order.Attrib.UserID]
		if byUser == nil {
			byUser = make(map[types.ID]struct{})
			s.ordersByUser[order.Attrib.UserID] = byUser
		}
		byUser[order.Attrib.ID] = struct{}{}
	}
	for _, rec := range snap.ShoppingLists {
		items := make([]ShoppingItem, len(rec.Items))
		copy(items, rec.Items)
		s.shoppingLists[rec.Attrib.ID] = &ShoppingList{Attrib: rec.Attrib, Items: items}
	}

	s.log.Info().
		Int("rides", len(snap.Rides)).
		Int("orders", len(snap.Orders)).
		Int("shopping_lists", len(snap.ShoppingLists)).
		Int64("last_id", int64(snap.LastID)).
		Msg("store restored from snapshot")
}

func sortIDs(ids []types.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortedRideIDsLocked(m map[types.ID]*Ride) []types.ID {
	ids := make([]types.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortedOrderIDsLocked(m map[types.ID]*Order) []types.ID {
	ids := make([]types.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sortedListIDsLocked(m map[types.ID]*ShoppingList) []types.ID {
	ids := make([]types.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}
