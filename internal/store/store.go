// Package store persists canonical addresses, listings, provider call logs,
// and parcel jobs behind a driver-agnostic interface with Postgres and
// SQLite implementations.
package store

import (
	"context"
	"time"

	"github.com/seattlelisted/listing-cli/internal/model"
)

// Store defines the persistence interface for listing resolution.
type Store interface {
	// Canonical addresses
	GetCanonicalByPlaceID(ctx context.Context, placeID string) (*model.CanonicalAddress, error)
	InsertCanonical(ctx context.Context, rec model.CanonicalAddress) (*model.CanonicalAddress, error)
	RefreshCanonical(ctx context.Context, rec model.CanonicalAddress) error
	SearchCanonicalByPayload(ctx context.Context, fragment string, limit int) ([]model.CanonicalAddress, error)
	RecentCanonical(ctx context.Context, since time.Time, limit int) ([]model.CanonicalAddress, error)
	BackfillCanonicalCoords(ctx context.Context, id int64, lat, lng float64) error

	// Listings
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	FindListingsByAddressPrefix(ctx context.Context, prefix string, limit int) ([]model.Listing, error)
	InsertListing(ctx context.Context, l model.Listing) (*model.Listing, error)
	UpdateListing(ctx context.Context, l model.Listing) error
	LinkListing(ctx context.Context, listingID, canonicalID int64, placeID string) error
	RecordPriceChange(ctx context.Context, pc model.PriceChange) error

	// Provider call log
	LogCall(ctx context.Context, entry model.CallLogEntry) error
	CallStats(ctx context.Context) (*model.CallStats, error)

	// Parcel jobs
	EnsureParcelJob(ctx context.Context, sourceTable string, sourceID int64, addressHint string) (bool, error)
	ClaimParcelJobs(ctx context.Context, limit int) ([]model.ParcelJob, error)
	CompleteParcelJob(ctx context.Context, id int64, status model.ParcelJobStatus, parcelID *int64) error
	ParcelJobCounts(ctx context.Context) (map[model.ParcelJobStatus]int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
