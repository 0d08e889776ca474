// README: Concurrency tests for the store (run with -race).
package market

import (
	"errors"
	"sync"
	"testing"
	"time"

	"cartpool/internal/types"
)

// TestConcurrentAcceptSameRide races several accepts of different
// pending orders on one ride. Exactly one may win; the rest must fail
// cleanly because the cascade already declined them.
func TestConcurrentAcceptSameRide(t *testing.T) {
	s := newTestStore(t)
	shopper := types.UserID(7)
	rideID := mustCreateRide(t, s, shopper, 10115)

	orderIDs := make([]types.ID, 0, 8)
	for i := 0; i < 8; i++ {
		orderIDs = append(orderIDs, mustCreateOrder(t, s, types.UserID(100+i), rideID))
	}

	start := make(chan struct{})
	errs := make(chan error, len(orderIDs))
	var wg sync.WaitGroup

	for _, id := range orderIDs {
		wg.Add(1)
		go func(orderID types.ID) {
			defer wg.Done()
			<-start
			errs <- s.AcceptOrder(orderID, shopper, true)
		}(id)
	}

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful accept, got %d", success)
	}

	ride := rideState(t, s, rideID)
	if ride.AcceptedOrderID == 0 {
		t.Fatal("no order accepted")
	}
	accepted, declined := 0, 0
	for _, id := range orderIDs {
		o := orderState(t, s, id)
		switch {
		case o.IsOpen && o.State == OrderStateAcceptedWaitingDelivery:
			accepted++
		case !o.IsOpen && o.Resolution == OrderResolutionDeclinedByShopper:
			declined++
		default:
			t.Fatalf("order %d: open=%v state=%s resolution=%s", id, o.IsOpen, o.State, o.Resolution)
		}
	}
	if accepted != 1 || declined != len(orderIDs)-1 {
		t.Fatalf("accepted=%d declined=%d", accepted, declined)
	}
}

// TestConcurrentAcceptVsCancel races an accept against a ride cancel.
func TestConcurrentAcceptVsCancel(t *testing.T) {
	s := newTestStore(t)
	shopper := types.UserID(7)
	rideID := mustCreateRide(t, s, shopper, 10115)
	orderID := mustCreateOrder(t, s, 8, rideID)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- s.AcceptOrder(orderID, shopper, true)
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- s.CancelRide(rideID, shopper)
	}()

	wg.Wait()
	close(errs)

	for err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAlreadyClosed) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ride := rideState(t, s, rideID)
	o := orderState(t, s, orderID)
	switch {
	case ride.IsOpen:
		// accept won, cancel lost the race entirely
		if o.State != OrderStateAcceptedWaitingDelivery {
			t.Fatalf("open ride but order state %s", o.State)
		}
	case ride.Resolution == RideResolutionCancelled:
		// cancel won; the order is either still idle (accept never ran)
		// or closed as ride_cancelled (accept ran first)
		if o.IsOpen && o.State != OrderStateIdleWaitingAcceptance {
			t.Fatalf("cancelled ride but open order in state %s", o.State)
		}
		if !o.IsOpen && o.Resolution != OrderResolutionRideCancelled {
			t.Fatalf("cancelled ride but order resolution %s", o.Resolution)
		}
	default:
		t.Fatalf("unexpected ride end state: open=%v resolution=%s", ride.IsOpen, ride.Resolution)
	}
}

// TestConcurrentCreates hammers creation from many goroutines and
// checks the id sequence stays gapless.
func TestConcurrentCreates(t *testing.T) {
	s := newTestStore(t)
	rideID := mustCreateRide(t, s, 7, 10115)

	const n = 32
	var wg sync.WaitGroup
	ids := make(chan types.ID, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(owner types.UserID) {
			defer wg.Done()
			id, err := s.CreateOrder(rideID, nil, types.Address{}, 13, 1, 1.5, time.Now().UTC(), "Alice", owner)
			if err != nil {
				t.Errorf("create order: %v", err)
				return
			}
			ids <- id
		}(types.UserID(100 + i))
	}
	wg.Wait()
	close(ids)

	seen := make(map[types.ID]bool, n)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate order id %d", id)
		}
		seen[id] = true
	}
	// ride took id 1; each order creation burns two ids (list + order)
	if next := s.NextID(); next != types.ID(1+2*n+1) {
		t.Fatalf("next id = %d, want %d", next, 1+2*n+1)
	}
}
