package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/theoremus-urban-solutions/commute-score/utils"
)

// ErrNotFound is returned when the service knows no such address
var ErrNotFound = errors.New("address not found")

// Geocoder resolves a free-form address
type Geocoder interface {
	Resolve(ctx context.Context, address string) (utils.Coordinate, error)
}

// NominatimOptions configures the HTTP client
type NominatimOptions struct {
	URL           string
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// Nominatim queries an OpenStreetMap Nominatim search endpoint
type Nominatim struct {
	opts   NominatimOptions
	client *http.Client
}

// NewNominatim creates a client
func NewNominatim(opts NominatimOptions) *Nominatim {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	return &Nominatim{opts: opts, client: &http.Client{Timeout: opts.Timeout}}
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve returns the best match for address. Server errors and rate
// limiting are retried with exponential backoff.
func (n *Nominatim) Resolve(ctx context.Context, address string) (utils.Coordinate, error) {
	var coord utils.Coordinate
	op := func() error {
		c, err := n.search(ctx, address)
		if err != nil {
			return err
		}
		coord = c
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = n.opts.RetryInterval
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(n.opts.MaxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("address", address).Dur("retry_in", wait).Msg("Geocoder request failed")
	}
	if err := backoff.RetryNotify(op, retry, notify); err != nil {
		return utils.Coordinate{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	return coord, nil
}

func (n *Nominatim) search(ctx context.Context, address string) (utils.Coordinate, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.opts.URL+"?"+q.Encode(), nil)
	if err != nil {
		return utils.Coordinate{}, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", n.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return utils.Coordinate{}, backoff.Permanent(ctx.Err())
		}
		return utils.Coordinate{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return utils.Coordinate{}, fmt.Errorf("geocoder returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return utils.Coordinate{}, backoff.Permanent(fmt.Errorf("geocoder returned %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.Coordinate{}, err
	}
	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return utils.Coordinate{}, backoff.Permanent(fmt.Errorf("decode geocoder response: %w", err))
	}
	if len(results) == 0 {
		return utils.Coordinate{}, backoff.Permanent(ErrNotFound)
	}
	return parseResult(results[0])
}

func parseResult(r searchResult) (utils.Coordinate, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return utils.Coordinate{}, backoff.Permanent(fmt.Errorf("bad latitude %q: %w", r.Lat, err))
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return utils.Coordinate{}, backoff.Permanent(fmt.Errorf("bad longitude %q: %w", r.Lon, err))
	}
	c := utils.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return utils.Coordinate{}, backoff.Permanent(fmt.Errorf("coordinate out of range: %s", c))
	}
	return c, nil
}
