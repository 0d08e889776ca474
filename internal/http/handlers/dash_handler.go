// README: Dashboard handlers for the requester and shopper screens.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cartpool/internal/http/middleware"
	"cartpool/internal/modules/market"
	"cartpool/internal/modules/users"
	"cartpool/internal/timeadj"
	"cartpool/internal/types"
)

type DashHandler struct {
	store   *market.Store
	users   *users.Directory
	timeadj *timeadj.Adjuster
	log     zerolog.Logger
}

func NewDashHandler(store *market.Store, dir *users.Directory, adj *timeadj.Adjuster, log zerolog.Logger) *DashHandler {
	return &DashHandler{store: store, users: dir, timeadj: adj, log: log}
}

// User renders the requester dashboard: rides offered near the given
// postal code plus the user's own orders.
func (h *DashHandler) User(c *gin.Context) {
	userID := middleware.UserID(c)

	plz, err := strconv.ParseUint(c.Query("plz"), 10, 32)
	if err != nil || plz == 0 {
		writeError(c, http.StatusBadRequest, "invalid plz")
		return
	}

	localize, err := localizer(h.users, h.timeadj, userID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "cannot obtain user's timezone")
		return
	}

	var rideViews []rideView
	var orderViews []orderView
	h.store.WithLock(func() {
		rides, orders := h.store.InfoForUserLocked(types.GeoPosition{Plz: uint32(plz)}, userID)
		for _, r := range rides {
			rideViews = append(rideViews, toRideView(r, localize))
		}
		for _, o := range orders {
			orderViews = append(orderViews, toOrderView(o, localize))
		}
	})

	c.JSON(http.StatusOK, gin.H{"rides": rideViews, "orders": orderViews})
}

// Shopper renders the shopper dashboard: every ride the user offers
// plus the accepted orders on them.
func (h *DashHandler) Shopper(c *gin.Context) {
	userID := middleware.UserID(c)

	localize, err := localizer(h.users, h.timeadj, userID)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "cannot obtain user's timezone")
		return
	}

	var rideViews []rideView
	var orderViews []orderView
	h.store.WithLock(func() {
		rides, orders := h.store.InfoForShopperLocked(userID)
		for _, r := range rides {
			rideViews = append(rideViews, toRideView(r, localize))
		}
		for _, o := range orders {
			orderViews = append(orderViews, toOrderView(o, localize))
		}
	})

	c.JSON(http.StatusOK, gin.H{"rides": rideViews, "orders": orderViews})
}
