// README: Catalog handlers (product listing, shopping list details).
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
)

type CatalogHandler struct {
	catalog *catalog.Catalog
	store   *market.Store
	perm    *perm.Checker
	log     zerolog.Logger
}

func NewCatalogHandler(cat *catalog.Catalog, store *market.Store, checker *perm.Checker, log zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cat, store: store, perm: checker, log: log}
}

func (h *CatalogHandler) Products(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.catalog.All()})
}

// ShoppingList returns the list joined with product data plus the
// price/weight totals.
func (h *CatalogHandler) ShoppingList(c *gin.Context) {
	userID := middleware.UserID(c)
	listID, ok := idParam(c)
	if !ok {
		return
	}
	if !h.perm.Allowed(userID, perm.GetShoppingList{ListID: listID}) {
		writeError(c, http.StatusForbidden, "not allowed")
		return
	}

	var items []market.ShoppingItem
	found := false
	h.store.WithLock(func() {
		if list := h.store.FindShoppingListLocked(listID); list != nil {
			items = append(items, list.Items...)
			found = true
		}
	})
	if !found {
		writeError(c, http.StatusNotFound, fmt.Sprintf("shopping list %d not found", listID))
		return
	}

	detailed, price, weight := h.catalog.Detailed(items)
	c.JSON(http.StatusOK, gin.H{
		"id":     listID,
		"items":  detailed,
		"price":  price,
		"weight": weight,
	})
}
