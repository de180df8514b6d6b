package main

import (
	"context"
	"time"

	"github.com/ringsaturn/tzf"
	"github.com/rotisserie/eris"

	"github.com/stars4all/nixnox-cli/internal/geo"
	"github.com/stars4all/nixnox-cli/internal/store"
	"github.com/stars4all/nixnox-cli/pkg/nominatim"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "nixnox.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initResolver builds the shared geolocation resolver. The Nominatim client
// carries the rate limiter, so one instance must be shared across all
// concurrent ingestions.
func initResolver() (geo.Resolver, error) {
	client := nominatim.NewClient(
		nominatim.WithBaseURL(cfg.Nominatim.BaseURL),
		nominatim.WithUserAgent(cfg.Nominatim.UserAgent),
		nominatim.WithMinDelay(time.Duration(cfg.Nominatim.MinDelaySecs)*time.Second),
	)
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, eris.Wrap(err, "init timezone finder")
	}
	return geo.NewResolver(client, finder), nil
}
