// README: Ride handlers (offer, get, cancel, pending requests).
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cartpool/internal/geocode"
	"cartpool/internal/http/middleware"
	"cartpool/internal/modules/market"
	"cartpool/internal/modules/perm"
	"cartpool/internal/modules/users"
	"cartpool/internal/observability"
	"cartpool/internal/timeadj"
	"cartpool/internal/types"
)

type RideHandler struct {
	store    *market.Store
	perm     *perm.Checker
	users    *users.Directory
	timeadj  *timeadj.Adjuster
	geocoder *geocode.Geocoder // nil disables coordinate resolution
	log      zerolog.Logger
}

func NewRideHandler(store *market.Store, checker *perm.Checker, dir *users.Directory, adj *timeadj.Adjuster, geocoder *geocode.Geocoder, log zerolog.Logger) *RideHandler {
	return &RideHandler{
		store:    store,
		perm:     checker,
		users:    dir,
		timeadj:  adj,
		geocoder: geocoder,
		log:      log,
	}
}

type addRideReq struct {
	Plz          uint32    `json:"plz"`
	DeliveryTime time.Time `json:"delivery_time"`
	MaxWeight    float64   `json:"max_weight"`
}

func (h *RideHandler) Add(c *gin.Context) {
	userID := middleware.UserID(c)

	var req addRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Plz == 0 || req.MaxWeight <= 0 {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}

	profile, err := h.users.Find(userID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "cannot obtain user's timezone")
		return
	}

	deliveryUTC, err := h.timeadj.ToUTC(req.DeliveryTime, profile.Timezone)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "cannot obtain user's timezone")
		return
	}
	if now := time.Now().UTC(); !deliveryUTC.After(now) {
		writeError(c, http.StatusBadRequest, fmt.Sprintf(
			"delivery time lies in the past (%s UTC < %s UTC)",
			deliveryUTC.Format(time.RFC3339), now.Format(time.RFC3339)))
		return
	}

	position := types.GeoPosition{Plz: req.Plz}
	if h.geocoder != nil {
		if err := h.geocoder.ResolvePlz(c.Request.Context(), &position); err != nil {
			h.log.Warn().Err(err).Uint32("plz", req.Plz).Msg("geocoding failed")
		}
	}

	id, err := h.store.CreateRide(market.RideSummary{
		Position:     position,
		DeliveryTime: req.DeliveryTime,
		MaxWeight:    req.MaxWeight,
	}, deliveryUTC, profile.DisplayName(), userID)
	if err != nil {
		writeStoreError(c, h.log, err)
		return
	}

	observability.RidesCreatedTotal.Inc()
	c.JSON(http.StatusCreated, gin.H{"ride_id": id})
}

func (h *RideHandler) Get(c *gin.Context) {
	userID := middleware.UserID(c)
	rideID, ok := idParam(c)
	if !ok {
		return
	}
	if !h.perm.Allowed(userID, perm.GetRide{RideID: rideID}) {
		writeError(c, http.StatusForbidden, "not allowed")
		return
	}

	localize, err := localizer(h.users, h.timeadj, userID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "cannot obtain user's timezone")
		return
	}

	var view rideView
	found := false
	h.store.WithLock(func() {
		if ride := h.store.FindRideLocked(rideID); ride != nil {
			view = toRideView(ride, localize)
			found = true
		}
	})
	if !found {
		writeError(c, http.StatusNotFound, fmt.Sprintf("ride %d not found", rideID))
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	userID := middleware.UserID(c)
	rideID, ok := idParam(c)
	if !ok {
		return
	}
	if !h.perm.Allowed(userID, perm.CancelRide{RideID: rideID}) {
		writeError(c, http.StatusForbidden, "not allowed")
		return
	}

	if err := h.store.CancelRide(rideID, userID); err != nil {
		writeStoreError(c, h.log, err)
		return
	}
	observability.RidesCancelled.Inc()
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *RideHandler) ShoppingRequests(c *gin.Context) {
	userID := middleware.UserID(c)
	rideID, ok := idParam(c)
	if !ok {
		return
	}
	if !h.perm.Allowed(userID, perm.GetShoppingRequests{RideID: rideID}) {
		writeError(c, http.StatusForbidden, "not allowed")
		return
	}

	infos, err := h.store.ShoppingRequests(rideID, userID)
	if err != nil {
		writeStoreError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": infos})
}
