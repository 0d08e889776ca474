// README: Order handlers (place, accept, decline, deliver, rate).
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cartpool/internal/http/middleware"
	"cartpool/internal/modules/catalog"
	"cartpool/internal/modules/market"
	"cartpool/internal/modules/perm"
	"cartpool/internal/observability"
	"cartpool/internal/types"
)

// Earning formula: the basket total carries a 30% service markup, the
// shopper receives 15% of the net value.
const (
	serviceMarkup = 1.30
	earningShare  = 0.15
)

func computeEarning(sum float64) float64 {
	return (sum / serviceMarkup) * earningShare
}

type OrderHandler struct {
	store        *market.Store
	catalog      *catalog.Catalog
	perm         *perm.Checker
	minBasketSum float64
	log          zerolog.Logger
}

func NewOrderHandler(store *market.Store, cat *catalog.Catalog, checker *perm.Checker, minBasketSum float64, log zerolog.Logger) *OrderHandler {
	return &OrderHandler{
		store:        store,
		catalog:      cat,
		perm:         checker,
		minBasketSum: minBasketSum,
		log:          log,
	}
}

type addOrderReq struct {
	RideID          types.ID              `json:"ride_id"`
	Items           []market.ShoppingItem `json:"items"`
	DeliveryAddress types.Address         `json:"delivery_address"`
}

func (h *OrderHandler) Add(c *gin.Context) {
	userID := middleware.UserID(c)

	var req addOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RideID == 0 || len(req.Items) == 0 {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}

	if err := h.catalog.Validate(req.Items); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	sum, weight := h.catalog.PriceWeight(req.Items)
	if sum < h.minBasketSum {
		writeError(c, http.StatusBadRequest, fmt.Sprintf(
			"basket size is smaller than minimal size (%.2f < %.2f)", sum, h.minBasketSum))
		return
	}
	earning := computeEarning(sum)

	// Ride lookup and order creation share one critical section so the
	// cached delivery time and shopper name cannot go stale in between.
	var (
		orderID   types.ID
		createErr error
	)
	h.store.WithLock(func() {
		ride := h.store.FindRideLocked(req.RideID)
		if ride == nil {
			createErr = fmt.Errorf("%w: ride %d", market.ErrNotFound, req.RideID)
			return
		}
		orderID, createErr = h.store.CreateOrderLocked(req.RideID, req.Items, req.DeliveryAddress,
			sum, weight, earning, ride.DeliveryTimeUTC, ride.ShopperName, userID)
	})
	if createErr != nil {
		writeStoreError(c, h.log, createErr)
		return
	}

	observability.OrdersCreatedTotal.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"order_id": orderID,
		"sum":      sum,
		"weight":   weight,
		"earning":  earning,
	})
}

func (h *OrderHandler) Accept(c *gin.Context) {
	h.resolve(c, true)
}

func (h *OrderHandler) Decline(c *gin.Context) {
	h.resolve(c, false)
}

func (h *OrderHandler) resolve(c *gin.Context, shouldAccept bool) {
	userID := middleware.UserID(c)
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	var req perm.Request
	if shouldAccept {
		req = perm.AcceptOrder{OrderID: orderID}
	} else {
		req = perm.DeclineOrder{OrderID: orderID}
	}
	if !h.perm.Allowed(userID, req) {
		writeError(c, http.StatusForbidden, "not allowed")
		return
	}

	if err := h.store.AcceptOrder(orderID, userID, shouldAccept); err != nil {
		writeStoreError(c, h.log, err)
		return
	}

	if shouldAccept {
		observability.OrdersAccepted.Inc()
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	} else {
		observability.OrdersDeclined.Inc()
		c.JSON(http.StatusOK, gin.H{"status": "declined"})
	}
}

func (h *OrderHandler) MarkDelivered(c *gin.Context) {
	userID := middleware.UserID(c)
	orderID, ok := idParam(c)
	if !ok {
		return
	}
	if !h.perm.Allowed(userID, perm.MarkDeliveredOrder{OrderID: orderID}) {
		writeError(c, http.StatusForbidden, "not allowed")
		return
	}

	if err := h.store.MarkDelivered(orderID, userID); err != nil {
		writeStoreError(c, h.log, err)
		return
	}
	observability.OrdersDelivered.Inc()
	c.JSON(http.StatusOK, gin.H{"status": "delivered"})
}

type rateShopperReq struct {
	Stars int `json:"stars"`
}

func (h *OrderHandler) Rate(c *gin.Context) {
	userID := middleware.UserID(c)
	orderID, ok := idParam(c)
	if !ok {
		return
	}

	var req rateShopperReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Stars < 1 || req.Stars > 5 {
		writeError(c, http.StatusBadRequest, "stars must be between 1 and 5")
		return
	}

	if !h.perm.Allowed(userID, perm.RateShopper{OrderID: orderID}) {
		writeError(c, http.StatusForbidden, "not allowed")
		return
	}

	if err := h.store.RateShopper(orderID, req.Stars, userID); err != nil {
		writeStoreError(c, h.log, err)
		return
	}
	observability.ShopperRatings.Observe(float64(req.Stars))
	c.JSON(http.StatusOK, gin.H{"status": "rated"})
}
