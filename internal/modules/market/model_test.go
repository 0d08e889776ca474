// README: Entity state-machine tests (transition table + panics on broken preconditions).
package market

import (
	"errors"
	"testing"
	"time"

	"cartpool/internal/types"
)

func testRide(t *testing.T, id types.ID, owner types.UserID) *Ride {
	t.Helper()
	return newRide(id, owner, RideSummary{
		Position:     types.GeoPosition{Plz: 10115},
		DeliveryTime: time.Date(2024, 5, 11, 18, 0, 0, 0, time.UTC),
		MaxWeight:    12,
	}, time.Date(2024, 5, 11, 16, 0, 0, 0, time.UTC), "Alice")
}

func testOrder(t *testing.T, id types.ID, owner types.UserID, rideID types.ID) *Order {
	t.Helper()
	return newOrder(id, owner, rideID, id+1, types.Address{Street: "Torstr.", HouseNumber: "12", City: "Berlin", Plz: 10119, Country: "Germany"}, OrderCache{Sum: 26.0, Earning: 3.0, Weight: 4.2})
}

func TestOrderHappyPath(t *testing.T) {
	o := testOrder(t, 2, 7, 1)
	if !o.IsOpen || o.State != OrderStateIdleWaitingAcceptance || o.Resolution != OrderResolutionUndef {
		t.Fatalf("fresh order in unexpected state: open=%v state=%s resolution=%s", o.IsOpen, o.State, o.Resolution)
	}

	o.AcceptOrder(true)
	if o.State != OrderStateAcceptedWaitingDelivery || !o.IsOpen {
		t.Fatalf("after accept: open=%v state=%s", o.IsOpen, o.State)
	}

	o.MarkDelivered()
	if o.State != OrderStateDeliveredWaitingFeedback || !o.IsOpen {
		t.Fatalf("after delivery: open=%v state=%s", o.IsOpen, o.State)
	}

	o.RateShopper(5)
	if o.IsOpen || o.Resolution != OrderResolutionDelivered {
		t.Fatalf("after rating: open=%v resolution=%s", o.IsOpen, o.Resolution)
	}
	if o.State != OrderStateDeliveredWaitingFeedback {
		t.Fatalf("state must freeze at close, got %s", o.State)
	}
}

func TestOrderDecline(t *testing.T) {
	o := testOrder(t, 2, 7, 1)
	o.AcceptOrder(false)
	if o.IsOpen || o.Resolution != OrderResolutionDeclinedByShopper {
		t.Fatalf("after decline: open=%v resolution=%s", o.IsOpen, o.Resolution)
	}
}

func TestOrderCancelRide(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		o := testOrder(t, 2, 7, 1)
		if err := o.CancelRide(); err != nil {
			t.Fatalf("cancel idle order: %v", err)
		}
		if o.IsOpen || o.Resolution != OrderResolutionRideCancelled {
			t.Fatalf("open=%v resolution=%s", o.IsOpen, o.Resolution)
		}
	})

	t.Run("accepted", func(t *testing.T) {
		o := testOrder(t, 2, 7, 1)
		o.AcceptOrder(true)
		if err := o.CancelRide(); err != nil {
			t.Fatalf("cancel accepted order: %v", err)
		}
		if o.IsOpen || o.Resolution != OrderResolutionRideCancelled {
			t.Fatalf("open=%v resolution=%s", o.IsOpen, o.Resolution)
		}
	})

	t.Run("delivered", func(t *testing.T) {
		o := testOrder(t, 2, 7, 1)
		o.AcceptOrder(true)
		o.MarkDelivered()
		err := o.CancelRide()
		if !errors.Is(err, ErrInvalidState) {
			t.Fatalf("want ErrInvalidState, got %v", err)
		}
		if !o.IsOpen {
			t.Fatal("failed cancel must not close the order")
		}
	})

	t.Run("closed", func(t *testing.T) {
		o := testOrder(t, 2, 7, 1)
		o.AcceptOrder(false)
		if err := o.CancelRide(); !errors.Is(err, ErrAlreadyClosed) {
			t.Fatalf("want ErrAlreadyClosed, got %v", err)
		}
	})
}

func TestOrderTransitionPanics(t *testing.T) {
	cases := []struct {
		name string
		prep func(o *Order)
		call func(o *Order)
	}{
		{"accept twice", func(o *Order) { o.AcceptOrder(true) }, func(o *Order) { o.AcceptOrder(true) }},
		{"accept declined", func(o *Order) { o.AcceptOrder(false) }, func(o *Order) { o.AcceptOrder(true) }},
		{"deliver idle", func(o *Order) {}, func(o *Order) { o.MarkDelivered() }},
		{"deliver twice", func(o *Order) { o.AcceptOrder(true); o.MarkDelivered() }, func(o *Order) { o.MarkDelivered() }},
		{"rate idle", func(o *Order) {}, func(o *Order) { o.RateShopper(4) }},
		{"rate accepted", func(o *Order) { o.AcceptOrder(true) }, func(o *Order) { o.RateShopper(4) }},
		{"rate twice", func(o *Order) { o.AcceptOrder(true); o.MarkDelivered(); o.RateShopper(4) }, func(o *Order) { o.RateShopper(4) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := testOrder(t, 2, 7, 1)
			tc.prep(o)
			assertPanics(t, func() { tc.call(o) })
		})
	}
}

func TestRidePendingSet(t *testing.T) {
	r := testRide(t, 1, 7)

	r.AddPendingOrder(5)
	r.AddPendingOrder(3)
	r.AddPendingOrder(5) // duplicate is a no-op
	r.AddPendingOrder(9)

	if !r.HasPendingOrder(3) || r.HasPendingOrder(4) {
		t.Fatal("pending membership wrong")
	}
	got := r.PendingOrderIDs()
	want := []types.ID{3, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("pending ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pending ids = %v, want %v", got, want)
		}
	}
}

func TestRideAcceptOrder(t *testing.T) {
	r := testRide(t, 1, 7)
	r.AddPendingOrder(3)
	r.AddPendingOrder(5)

	r.AcceptOrder(3, false)
	if r.AcceptedOrderID != 0 {
		t.Fatalf("decline must not set accepted id, got %d", r.AcceptedOrderID)
	}
	if r.HasPendingOrder(3) {
		t.Fatal("declined order must leave the pending set")
	}

	r.AcceptOrder(5, true)
	if r.AcceptedOrderID != 5 {
		t.Fatalf("accepted id = %d, want 5", r.AcceptedOrderID)
	}
	if r.HasPendingOrder(5) {
		t.Fatal("accepted order must leave the pending set")
	}
}

func TestRideTransitionPanics(t *testing.T) {
	t.Run("accept not pending", func(t *testing.T) {
		r := testRide(t, 1, 7)
		assertPanics(t, func() { r.AcceptOrder(3, true) })
	})
	t.Run("accept twice", func(t *testing.T) {
		r := testRide(t, 1, 7)
		r.AddPendingOrder(3)
		r.AddPendingOrder(5)
		r.AcceptOrder(3, true)
		assertPanics(t, func() { r.AcceptOrder(5, true) })
	})
	t.Run("deliver without accepted order", func(t *testing.T) {
		r := testRide(t, 1, 7)
		assertPanics(t, func() { r.MarkDelivered() })
	})
	t.Run("cancel closed", func(t *testing.T) {
		r := testRide(t, 1, 7)
		r.Cancel()
		assertPanics(t, func() { r.Cancel() })
	})
	t.Run("deliver closed", func(t *testing.T) {
		r := testRide(t, 1, 7)
		r.AddPendingOrder(3)
		r.AcceptOrder(3, true)
		r.MarkDelivered()
		assertPanics(t, func() { r.MarkDelivered() })
	})
}

func TestRideClosures(t *testing.T) {
	r := testRide(t, 1, 7)
	r.Cancel()
	if r.IsOpen || r.Resolution != RideResolutionCancelled {
		t.Fatalf("open=%v resolution=%s", r.IsOpen, r.Resolution)
	}

	r = testRide(t, 1, 7)
	r.AddPendingOrder(3)
	r.AcceptOrder(3, true)
	r.MarkDelivered()
	if r.IsOpen || r.Resolution != RideResolutionExpiredOrCompleted {
		t.Fatalf("open=%v resolution=%s", r.IsOpen, r.Resolution)
	}
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	fn()
}
