// README: Geocoder resolving postal codes to coordinates, with a Redis cache.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"cartpool/internal/types"
)

const (
	cacheKeyPrefix = "geocode:"
	// Postal code centroids do not move; 30 days keeps the cache warm
	// without growing unbounded.
	cacheTTL = 30 * 24 * time.Hour
)

var ErrNoResult = errors.New("no geocoding result")

// Geocoder resolves free-form address queries to coordinates through
// the Google Geocoding API. Results are cached in Redis keyed by the
// query string. A nil redis client disables caching, a nil Geocoder is
// a valid no-op for deployments without an API key.
type Geocoder struct {
	client *maps.Client
	redis  *redis.Client
	log    zerolog.Logger
}

func New(apiKey string, redis *redis.Client, log zerolog.Logger) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &Geocoder{
		client: client,
		redis:  redis,
		log:    log.With().Str("module", "geocode").Logger(),
	}, nil
}

type cachedPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Resolve geocodes query to a coordinate pair.
func (g *Geocoder) Resolve(ctx context.Context, query string) (lat, lng float64, err error) {
	if g.redis != nil {
		if p, ok := g.cached(ctx, query); ok {
			return p.Lat, p.Lng, nil
		}
	}

	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %q: %w", query, err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("%w for %q", ErrNoResult, query)
	}

	loc := results[0].Geometry.Location
	if g.redis != nil {
		g.store(ctx, query, cachedPoint{Lat: loc.Lat, Lng: loc.Lng})
	}
	return loc.Lat, loc.Lng, nil
}

// ResolvePlz geocodes a German postal code and fills the Lat/Lng of
// pos in place.
func (g *Geocoder) ResolvePlz(ctx context.Context, pos *types.GeoPosition) error {
	lat, lng, err := g.Resolve(ctx, fmt.Sprintf("%05d, Germany", pos.Plz))
	if err != nil {
		return err
	}
	pos.Lat = lat
	pos.Lng = lng
	return nil
}

func (g *Geocoder) cached(ctx context.Context, query string) (cachedPoint, bool) {
	val, err := g.redis.Get(ctx, cacheKeyPrefix+query).Result()
	if errors.Is(err, redis.Nil) {
		return cachedPoint{}, false
	}
	if err != nil {
		g.log.Warn().Err(err).Str("query", query).Msg("geocode cache read failed")
		return cachedPoint{}, false
	}
	var p cachedPoint
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		g.log.Warn().Err(err).Str("query", query).Msg("corrupt geocode cache entry")
		return cachedPoint{}, false
	}
	return p, true
}

func (g *Geocoder) store(ctx context.Context, query string, p cachedPoint) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := g.redis.Set(ctx, cacheKeyPrefix+query, raw, cacheTTL).Err(); err != nil {
		g.log.Warn().Err(err).Str("query", query).Msg("geocode cache write failed")
	}
}
