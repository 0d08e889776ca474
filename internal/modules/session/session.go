// README: Session manager backed by Redis (token -> user id with TTL).
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cartpool/internal/types"
)

const keyPrefix = "session:"

var ErrNoSession = errors.New("no session for token")

// Manager issues opaque session tokens and resolves them back to user
// ids. Tokens expire after TTL; every successful Resolve refreshes the
// expiry, so sessions stay alive while in use.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewManager(redis *redis.Client, ttl time.Duration) *Manager {
	return &Manager{redis: redis, ttl: ttl}
}

// Create issues a fresh token for userID.
func (m *Manager) Create(ctx context.Context, userID types.UserID) (string, error) {
	token := uuid.NewString()
	err := m.redis.Set(ctx, keyPrefix+token, int64(userID), m.ttl).Err()
	if err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Resolve maps a token to its user id and slides the expiry window.
func (m *Manager) Resolve(ctx context.Context, token string) (types.UserID, error) {
	val, err := m.redis.GetEx(ctx, keyPrefix+token, m.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoSession
	}
	if err != nil {
		return 0, fmt.Errorf("resolve session: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt session value %q: %w", val, err)
	}
	return types.UserID(id), nil
}

// Delete drops the session. Deleting an unknown token is a no-op.
func (m *Manager) Delete(ctx context.Context, token string) error {
	if err := m.redis.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
