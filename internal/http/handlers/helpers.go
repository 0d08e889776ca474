// README: Shared handler utilities (JSON views, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cartpool/internal/modules/market"
	"cartpool/internal/modules/users"
	"cartpool/internal/timeadj"
	"cartpool/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg})
}

// writeStoreError maps the store's sentinel errors to status codes.
// Anything unclassified is a 500 with the detail kept out of the
// response body.
func writeStoreError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, market.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrAlreadyClosed),
		errors.Is(err, market.ErrInvalidState),
		errors.Is(err, market.ErrOwnershipConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("unclassified store error")
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// idParam parses the numeric :id path segment.
func idParam(c *gin.Context) (types.ID, bool) {
	var id int64
	for _, ch := range c.Param("id") {
		if ch < '0' || ch > '9' {
			writeError(c, http.StatusBadRequest, "invalid id")
			return 0, false
		}
		id = id*10 + int64(ch-'0')
	}
	if id == 0 {
		writeError(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return types.ID(id), true
}

// localizer returns a conversion from UTC instants to the user's
// wall-clock time.
func localizer(dir *users.Directory, adj *timeadj.Adjuster, userID types.UserID) (func(time.Time) time.Time, error) {
	tz, err := dir.Timezone(userID)
	if err != nil {
		return nil, err
	}
	return func(t time.Time) time.Time {
		local, err := adj.ToLocal(t, tz)
		if err != nil {
			return t
		}
		return local
	}, nil
}

// rideView is the wire representation of a ride. Delivery time is
// rendered in the viewer's timezone.
type rideView struct {
	ID              types.ID              `json:"id"`
	Position        types.GeoPosition     `json:"position"`
	DeliveryTime    time.Time             `json:"delivery_time"`
	MaxWeight       float64               `json:"max_weight"`
	ShopperName     string                `json:"shopper_name"`
	IsOpen          bool                  `json:"is_open"`
	Resolution      market.RideResolution `json:"resolution"`
	AcceptedOrderID types.ID              `json:"accepted_order_id,omitempty"`
	PendingOrderIDs []types.ID            `json:"pending_order_ids,omitempty"`
}

func toRideView(r *market.Ride, localize func(time.Time) time.Time) rideView {
	return rideView{
		ID:              r.Attrib.ID,
		Position:        r.Summary.Position,
		DeliveryTime:    localize(r.DeliveryTimeUTC),
		MaxWeight:       r.Summary.MaxWeight,
		ShopperName:     r.ShopperName,
		IsOpen:          r.IsOpen,
		Resolution:      r.Resolution,
		AcceptedOrderID: r.AcceptedOrderID,
		PendingOrderIDs: r.PendingOrderIDs(),
	}
}

type orderView struct {
	ID              types.ID               `json:"id"`
	RideID          types.ID               `json:"ride_id"`
	ShoppingListID  types.ID               `json:"shopping_list_id"`
	State           market.OrderState      `json:"state"`
	IsOpen          bool                   `json:"is_open"`
	Resolution      market.OrderResolution `json:"resolution"`
	Sum             float64                `json:"sum"`
	Earning         float64                `json:"earning"`
	Weight          float64                `json:"weight"`
	DeliveryTime    time.Time              `json:"delivery_time"`
	ShopperName     string                 `json:"shopper_name"`
	DeliveryAddress types.Address          `json:"delivery_address"`
}

func toOrderView(o *market.Order, localize func(time.Time) time.Time) orderView {
	return orderView{
		ID:              o.Attrib.ID,
		RideID:          o.RideID,
		ShoppingListID:  o.ShoppingListID,
		State:           o.State,
		IsOpen:          o.IsOpen,
		Resolution:      o.Resolution,
		Sum:             o.Cache.Sum,
		Earning:         o.Cache.Earning,
		Weight:          o.Cache.Weight,
		DeliveryTime:    localize(o.Cache.DeliveryTimeUTC),
		ShopperName:     o.Cache.ShopperName,
		DeliveryAddress: o.DeliveryAddress,
	}
}
