package nominatim

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(srvURL string) Client {
	return NewClient(
		WithBaseURL(srvURL),
		WithMinDelay(time.Millisecond),
		WithUserAgent("test-agent"),
	)
}

func TestReverse_DecodesAddress(t *testing.T) {
	var gotQuery map[string]string
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = map[string]string{
			"lat":    r.URL.Query().Get("lat"),
			"lon":    r.URL.Query().Get("lon"),
			"format": r.URL.Query().Get("format"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"address": {
				"leisure": "Parque de las Estrellas",
				"village": "Villaverde",
				"state_district": "Guadalajara",
				"state": "Castilla-La Mancha",
				"country": "Spain"
			}
		}`)
	}))
	defer srv.Close()

	addr, err := testClient(srv.URL).Reverse(context.Background(), 41.0022, -2.504)
	require.NoError(t, err)

	assert.Equal(t, "Parque de las Estrellas", addr.Leisure)
	assert.Equal(t, "Villaverde", addr.Village)
	assert.Equal(t, "Guadalajara", addr.StateDistrict)
	assert.Equal(t, "Spain", addr.Country)

	assert.Equal(t, "test-agent", gotUA)
	assert.Equal(t, "41.0022", gotQuery["lat"])
	assert.Equal(t, "-2.504", gotQuery["lon"])
	assert.Equal(t, "jsonv2", gotQuery["format"])
}

func TestReverse_NoResult(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"404": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
		"error field": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"error":"Unable to geocode"}`)
		},
		"empty address": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, `{"address":{}}`)
		},
	}
	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, err := testClient(srv.URL).Reverse(context.Background(), 0, 0)
			assert.ErrorIs(t, err, ErrNoResult)
		})
	}
}

func TestReverse_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Reverse(context.Background(), 0, 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoResult)
}

func TestReverse_RateLimitSpacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"address":{"country":"Spain"}}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithMinDelay(50*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Reverse(context.Background(), 40.0, -3.0)
		require.NoError(t, err)
	}
	// First call is free, the next two wait for the limiter.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
