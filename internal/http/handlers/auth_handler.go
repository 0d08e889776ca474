// README: Login/logout handlers issuing session tokens.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cartpool/internal/http/middleware"
	"cartpool/internal/modules/users"
	"cartpool/internal/types"
)

// SessionStore is the session manager surface the auth handler needs.
type SessionStore interface {
	Create(ctx context.Context, userID types.UserID) (string, error)
	Delete(ctx context.Context, token string) error
}

type AuthHandler struct {
	users    *users.Directory
	sessions SessionStore
	log      zerolog.Logger
}

func NewAuthHandler(dir *users.Directory, sessions SessionStore, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{users: dir, sessions: sessions, log: log}
}

type loginReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Login == "" || req.Password == "" {
		writeError(c, http.StatusBadRequest, "missing credentials")
		return
	}

	profile, err := h.users.Authenticate(req.Login, req.Password)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.sessions.Create(c.Request.Context(), profile.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", int64(profile.ID)).Msg("session create failed")
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	h.log.Info().Int64("user_id", int64(profile.ID)).Msg("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": profile.ID,
		"name":    profile.DisplayName(),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.Token(c)
	if err := h.sessions.Delete(c.Request.Context(), token); err != nil {
		h.log.Error().Err(err).Msg("session delete failed")
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

func (h *AuthHandler) UserInfo(c *gin.Context) {
	userID := middleware.UserID(c)
	profile, err := h.users.Find(userID)
	if err != nil {
		writeError(c, http.StatusNotFound, "unknown user")
		return
	}
	c.JSON(http.StatusOK, profile)
}
