// README: Lead registration handler (public endpoint).
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cartpool/internal/modules/lead"
	"cartpool/internal/observability"
)

type LeadHandler struct {
	leads *lead.Store
	log   zerolog.Logger
}

func NewLeadHandler(leads *lead.Store, log zerolog.Logger) *LeadHandler {
	return &LeadHandler{leads: leads, log: log}
}

// Register accepts a registration lead without authentication; leads
// from the public site carry no session.
func (h *LeadHandler) Register(c *gin.Context) {
	var req lead.Lead
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.FirstName == "" || req.LastName == "" || !strings.Contains(req.Email, "@") {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}

	id := h.leads.Register(req, 0)
	observability.LeadsRegistered.Inc()
	c.JSON(http.StatusCreated, gin.H{"lead_id": id})
}
