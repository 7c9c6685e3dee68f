package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/commute-score/config"
	"github.com/theoremus-urban-solutions/commute-score/utils"
)

const (
	keyPrefix = "commute-score:geocode:"
	// stored for addresses the service could not find
	notFoundValue = "N/A"
)

// NewRedisCache creates a shared result cache backed by Redis
func NewRedisCache(client *redis.Client, ttl time.Duration) *cache.Cache[string] {
	return cache.New[string](redisstore.NewRedis(client, store.WithExpiration(ttl)))
}

// Cached resolves addresses through, in order: pinned known locations, an
// in-process map, an optional shared cache, and finally the wrapped geocoder
type Cached struct {
	inner  Geocoder
	known  map[string]utils.Coordinate
	local  sync.Map // normalized address -> cachedResult
	shared *cache.Cache[string]
}

type cachedResult struct {
	coord utils.Coordinate
	found bool
}

// NewCached wraps inner. shared may be nil.
func NewCached(inner Geocoder, known []config.KnownLocation, shared *cache.Cache[string]) *Cached {
	c := &Cached{inner: inner, known: make(map[string]utils.Coordinate, len(known)), shared: shared}
	for _, k := range known {
		c.known[normalize(k.Address)] = utils.Coordinate{Lat: k.Lat, Lon: k.Lon}
	}
	return c
}

// normalize folds case and whitespace so trivially different spellings share an entry
func normalize(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

// Resolve implements Geocoder
func (c *Cached) Resolve(ctx context.Context, address string) (utils.Coordinate, error) {
	key := normalize(address)
	if key == "" {
		return utils.Coordinate{}, fmt.Errorf("%w: empty address", ErrNotFound)
	}
	if coord, ok := c.known[key]; ok {
		return coord, nil
	}
	if v, ok := c.local.Load(key); ok {
		return v.(cachedResult).result(address)
	}
	if r, ok := c.fromShared(ctx, key); ok {
		c.local.Store(key, r)
		return r.result(address)
	}

	coord, err := c.inner.Resolve(ctx, address)
	switch {
	case err == nil:
		c.remember(ctx, key, cachedResult{coord: coord, found: true})
		return coord, nil
	case errors.Is(err, ErrNotFound):
		c.remember(ctx, key, cachedResult{})
	}
	return utils.Coordinate{}, err
}

func (r cachedResult) result(address string) (utils.Coordinate, error) {
	if !r.found {
		return utils.Coordinate{}, fmt.Errorf("geocode %q: %w", address, ErrNotFound)
	}
	return r.coord, nil
}

func (c *Cached) fromShared(ctx context.Context, key string) (cachedResult, bool) {
	if c.shared == nil {
		return cachedResult{}, false
	}
	v, err := c.shared.Get(ctx, keyPrefix+key)
	if err != nil {
		return cachedResult{}, false
	}
	if v == notFoundValue {
		return cachedResult{}, true
	}
	coord, err := decodeCoordinate(v)
	if err != nil {
		log.Debug().Err(err).Str("address", key).Msg("Ignoring malformed cached geocode")
		return cachedResult{}, false
	}
	return cachedResult{coord: coord, found: true}, true
}

func (c *Cached) remember(ctx context.Context, key string, r cachedResult) {
	c.local.Store(key, r)
	if c.shared == nil {
		return
	}
	value := notFoundValue
	if r.found {
		value = encodeCoordinate(r.coord)
	}
	if err := c.shared.Set(ctx, keyPrefix+key, value); err != nil {
		log.Warn().Err(err).Str("address", key).Msg("Failed to store geocode in shared cache")
	}
}

func encodeCoordinate(c utils.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'f', -1, 64)
}

func decodeCoordinate(s string) (utils.Coordinate, error) {
	lat, lon, ok := strings.Cut(s, ",")
	if !ok {
		return utils.Coordinate{}, fmt.Errorf("no separator in %q", s)
	}
	var c utils.Coordinate
	var err error
	if c.Lat, err = strconv.ParseFloat(lat, 64); err != nil {
		return utils.Coordinate{}, err
	}
	if c.Lon, err = strconv.ParseFloat(lon, 64); err != nil {
		return utils.Coordinate{}, err
	}
	return c, nil
}

// FromConfig builds the configured geocoder chain. The returned close
// function releases the Redis connection, if any.
func FromConfig(cfg config.GeocoderConfig) (*Cached, func() error) {
	nominatim := NewNominatim(NominatimOptions{
		URL:        cfg.URL,
		UserAgent:  cfg.UserAgent,
		Timeout:    time.Duration(cfg.TimeoutMS) * time.Millisecond,
		MaxRetries: cfg.MaxRetries,
	})
	if cfg.RedisAddress == "" {
		return NewCached(nominatim, cfg.KnownLocations, nil), func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
	shared := NewRedisCache(client, time.Duration(cfg.CacheTTLHours)*time.Hour)
	return NewCached(nominatim, cfg.KnownLocations, shared), client.Close
}
