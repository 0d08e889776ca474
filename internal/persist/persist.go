// README: Snapshot persistence backed by PostgreSQL (jsonb status rows).
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"cartpool/internal/modules/market"
)

var ErrNoSnapshot = errors.New("no snapshot stored")

// StatusStore writes full market snapshots to Postgres and loads the
// latest one at startup. Each save is one append-only jsonb row; old
// rows beyond keepRows are pruned on save.
type StatusStore struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

const keepRows = 10

func NewStatusStore(db *pgxpool.Pool, log zerolog.Logger) *StatusStore {
	return &StatusStore{db: db, log: log.With().Str("module", "persist").Logger()}
}

// Init creates the status table if it does not exist.
func (s *StatusStore) Init(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS market_status (
			id       BIGSERIAL PRIMARY KEY,
			taken_at TIMESTAMPTZ NOT NULL,
			snapshot JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create market_status table: %w", err)
	}
	return nil
}

// Save stores one snapshot row and prunes the history.
func (s *StatusStore) Save(ctx context.Context, snap market.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO market_status (taken_at, snapshot) VALUES ($1, $2)`,
		snap.TakenAt, raw)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		DELETE FROM market_status
		WHERE id NOT IN (SELECT id FROM market_status ORDER BY id DESC LIMIT $1)`,
		keepRows)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	s.log.Debug().
		Time("taken_at", snap.TakenAt).
		Int("rides", len(snap.Rides)).
		Int("orders", len(snap.Orders)).
		Msg("snapshot saved")
	return nil
}

// LoadLatest returns the most recent snapshot.
func (s *StatusStore) LoadLatest(ctx context.Context) (market.Snapshot, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT snapshot FROM market_status ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return market.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var snap market.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return market.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// RunSaver snapshots the store every interval until ctx is cancelled,
// then takes one final snapshot so a clean shutdown loses nothing.
func (s *StatusStore) RunSaver(ctx context.Context, store *market.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Save(shutdownCtx, store.Snapshot()); err != nil {
				s.log.Error().Err(err).Msg("final snapshot save failed")
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Save(ctx, store.Snapshot()); err != nil {
				s.log.Error().Err(err).Msg("periodic snapshot save failed")
			}
		}
	}
}
