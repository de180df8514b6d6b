// Package nominatim is a minimal client for the OSM Nominatim reverse
// geocoding API. Calls are rate limited to honor the service usage policy;
// share one Client across concurrent ingestions.
package nominatim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultMinDelay is the minimum spacing between requests required by
	// the public instance's usage policy.
	DefaultMinDelay = 2 * time.Second
)

// ErrNoResult reports that the service has no location at all for a
// coordinate. Callers must abort ingestion rather than fabricate place data.
var ErrNoResult = eris.New("nominatim: no result for coordinate")

// Address is the raw address field set returned by a reverse lookup.
type Address struct {
	Leisure       string `json:"leisure"`
	Amenity       string `json:"amenity"`
	Tourism       string `json:"tourism"`
	Building      string `json:"building"`
	Road          string `json:"road"`
	HouseNumber   string `json:"house_number"`
	Hamlet        string `json:"hamlet"`
	Village       string `json:"village"`
	Municipality  string `json:"municipality"`
	Town          string `json:"town"`
	City          string `json:"city"`
	StateDistrict string `json:"state_district"`
	Province      string `json:"province"`
	State         string `json:"state"`
	Country       string `json:"country"`
}

// Client performs reverse geocoding lookups.
type Client interface {
	// Reverse resolves a coordinate to its address fields.
	Reverse(ctx context.Context, latitude, longitude float64) (*Address, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL points the client at a non-default Nominatim instance.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithUserAgent sets the User-Agent header, required by the usage policy.
func WithUserAgent(ua string) Option {
	return func(c *client) { c.userAgent = ua }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithMinDelay sets the minimum spacing between requests.
func WithMinDelay(d time.Duration) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

type client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a reverse geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    DefaultBaseURL,
		userAgent:  "STARS4ALL project",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(DefaultMinDelay), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type reverseResponse struct {
	Error   string  `json:"error"`
	Address Address `json:"address"`
}

func (c *client) Reverse(ctx context.Context, latitude, longitude float64) (*Address, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "nominatim: rate limit")
	}

	params := url.Values{
		"lat":             {strconv.FormatFloat(latitude, 'f', -1, 64)},
		"lon":             {strconv.FormatFloat(longitude, 'f', -1, 64)},
		"format":          {"jsonv2"},
		"accept-language": {"en"},
	}
	reqURL := c.baseURL + "/reverse?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoResult
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("nominatim: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "nominatim: read body")
	}
	var rr reverseResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, eris.Wrap(err, "nominatim: parse response")
	}
	if rr.Error != "" || rr.Address == (Address{}) {
		return nil, ErrNoResult
	}
	return &rr.Address, nil
}
