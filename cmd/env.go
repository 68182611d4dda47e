package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/seattlelisted/listing-cli/internal/resilience"
	"github.com/seattlelisted/listing-cli/internal/resolver"
	"github.com/seattlelisted/listing-cli/internal/store"
	"github.com/seattlelisted/listing-cli/pkg/places"
)

// env bundles the wired dependencies of one command invocation.
type env struct {
	store    store.Store
	places   places.Client
	resolver *resolver.Resolver
}

func (e *env) Close() {
	_ = e.store.Close()
}

// initEnv validates config for the given mode and wires store, provider
// client, and resolver.
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	pc := newPlacesClient(st)
	r := resolver.New(st, pc, resolverConfig())

	return &env{store: st, places: pc, resolver: r}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "listings.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newPlacesClient(logger places.CallLogger) places.Client {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Places.MaxRetries + 1

	return places.NewClient(cfg.Places.Key,
		places.WithBaseURLs(cfg.Places.PlacesBaseURL, cfg.Places.GeocodeBaseURL),
		places.WithRegion(cfg.Places.Region),
		places.WithRateLimit(cfg.Places.RateLimitPerSec),
		places.WithRetry(retry),
		places.WithCallLogger(logger),
		places.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Places.RequestTimeoutSecs) * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: time.Duration(cfg.Places.ConnectTimeoutSecs) * time.Second,
				}).DialContext,
			},
		}),
	)
}

func resolverConfig() resolver.Config {
	return resolver.Config{
		FreshnessTTL:       time.Duration(cfg.Resolver.FreshnessTTLHours) * time.Hour,
		CacheMatchScore:    cfg.Resolver.CacheMatchScore,
		CandidateGateScore: cfg.Resolver.CandidateGateScore,
		RecentScanLimit:    cfg.Resolver.RecentScanLimit,
		NearCandidateLimit: cfg.Resolver.NearCandidateLimit,
	}
}
