package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seattlelisted/listing-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testCanonical(placeID string) model.CanonicalAddress {
	lat, lng := 47.6, -122.33
	rating := 4.2
	count := 57
	name := "Main Street Apartments"
	return model.CanonicalAddress{
		PlaceID:      placeID,
		Source:       model.SourcePlaces,
		BuildingName: &name,
		Latitude:     &lat,
		Longitude:    &lng,
		Rating:       &rating,
		RatingCount:  &count,
		Payload:      []byte(`{"result":{"formatted_address":"123 Main St, Seattle, WA 98101, USA","geometry":{"location":{"lat":47.6,"lng":-122.33}}}}`),
	}
}

// --- Canonical addresses ---

func TestSQLite_Canonical_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.InsertCanonical(ctx, testCanonical("ChIJabc"))
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))
	assert.False(t, created.RefreshedAt.IsZero())

	got, err := st.GetCanonicalByPlaceID(ctx, "ChIJabc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, model.SourcePlaces, got.Source)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 47.6, *got.Latitude, 0.001)
	assert.Equal(t, "123 Main St, Seattle, WA 98101, USA", got.FormattedAddress())
}

func TestSQLite_Canonical_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCanonicalByPlaceID(context.Background(), "ChIJnope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Canonical_InsertConflictReturnsExisting(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.InsertCanonical(ctx, testCanonical("ChIJdup"))
	require.NoError(t, err)

	second, err := st.InsertCanonical(ctx, testCanonical("ChIJdup"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Only one row exists.
	rows, err := st.SearchCanonicalByPayload(ctx, "123 Main St", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLite_Canonical_ConcurrentInsertKeepsOneRow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Two racing inserts for one place must converge on the same row.
	type outcome struct {
		rec *model.CanonicalAddress
		err error
	}
	results := make(chan outcome, 2)
	for range 2 {
		go func() {
			rec, err := st.InsertCanonical(ctx, testCanonical("ChIJrace"))
			results <- outcome{rec, err}
		}()
	}

	var ids []int64
	for range 2 {
		out := <-results
		require.NoError(t, out.err)
		ids = append(ids, out.rec.ID)
	}
	assert.Equal(t, ids[0], ids[1])

	rows, err := st.SearchCanonicalByPayload(ctx, "123 Main St", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSQLite_Canonical_Refresh(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.InsertCanonical(ctx, testCanonical("ChIJref"))
	require.NoError(t, err)

	updated := *created
	newRating := 4.8
	updated.Rating = &newRating
	updated.Payload = []byte(`{"result":{"formatted_address":"123 Main Street, Seattle, WA 98101, USA"}}`)
	require.NoError(t, st.RefreshCanonical(ctx, updated))

	got, err := st.GetCanonicalByPlaceID(ctx, "ChIJref")
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	assert.InDelta(t, 4.8, *got.Rating, 0.001)
	assert.True(t, got.RefreshedAt.After(created.RefreshedAt) || got.RefreshedAt.Equal(created.RefreshedAt))
}

func TestSQLite_Canonical_RefreshMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	rec := testCanonical("ChIJgone")
	rec.ID = 9999
	err := st.RefreshCanonical(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_Canonical_RecentWindow(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertCanonical(ctx, testCanonical("ChIJnew"))
	require.NoError(t, err)

	old := testCanonical("ChIJold")
	old.RefreshedAt = time.Now().UTC().Add(-48 * time.Hour)
	_, err = st.InsertCanonical(ctx, old)
	require.NoError(t, err)

	recent, err := st.RecentCanonical(ctx, time.Now().UTC().Add(-24*time.Hour), 500)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "ChIJnew", recent[0].PlaceID)
}

func TestSQLite_Canonical_BackfillCoords(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := testCanonical("ChIJcoords")
	rec.Latitude = nil
	rec.Longitude = nil
	created, err := st.InsertCanonical(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, st.BackfillCanonicalCoords(ctx, created.ID, 47.6, -122.33))

	got, err := st.GetCanonicalByPlaceID(ctx, "ChIJcoords")
	require.NoError(t, err)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 47.6, *got.Latitude, 0.001)

	// A second backfill must not overwrite populated coordinates.
	require.NoError(t, st.BackfillCanonicalCoords(ctx, created.ID, 0, 0))
	got, err = st.GetCanonicalByPlaceID(ctx, "ChIJcoords")
	require.NoError(t, err)
	assert.InDelta(t, 47.6, *got.Latitude, 0.001)
}

// --- Listings ---

func testListing(addr string) model.Listing {
	price := 1850
	unit := "12"
	return model.Listing{
		FullAddress: addr,
		UnitNumber:  &unit,
		Price:       &price,
		ImageURLs:   []string{"https://img.example.com/1.jpg"},
		Active:      true,
	}
}

func TestSQLite_Listing_InsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.InsertListing(ctx, testListing("456 Oak Ave #12, Portland, OR"))
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))

	got, err := st.GetListing(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "456 Oak Ave #12, Portland, OR", got.FullAddress)
	require.NotNil(t, got.Price)
	assert.Equal(t, 1850, *got.Price)
	assert.Equal(t, []string{"https://img.example.com/1.jpg"}, got.ImageURLs)
	assert.True(t, got.Active)
	assert.Nil(t, got.CanonicalAddressID)
}

func TestSQLite_Listing_FindByPrefix(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.InsertListing(ctx, testListing("456 Oak Ave #12, Portland, OR"))
	require.NoError(t, err)
	_, err = st.InsertListing(ctx, testListing("789 Pine St, Portland, OR"))
	require.NoError(t, err)

	found, err := st.FindListingsByAddressPrefix(ctx, "456 Oak Ave", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "456 Oak Ave #12, Portland, OR", found[0].FullAddress)
}

func TestSQLite_Listing_LinkAndPriceChange(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	canonical, err := st.InsertCanonical(ctx, testCanonical("ChIJlink"))
	require.NoError(t, err)

	listing, err := st.InsertListing(ctx, testListing("123 Main St, Seattle, WA"))
	require.NoError(t, err)

	require.NoError(t, st.LinkListing(ctx, listing.ID, canonical.ID, canonical.PlaceID))

	got, err := st.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CanonicalAddressID)
	assert.Equal(t, canonical.ID, *got.CanonicalAddressID)
	require.NotNil(t, got.PlaceID)
	assert.Equal(t, "ChIJlink", *got.PlaceID)

	require.NoError(t, st.RecordPriceChange(ctx, model.PriceChange{
		ListingID: listing.ID,
		OldPrice:  1850,
		NewPrice:  1900,
	}))
}

func TestSQLite_Listing_UpdateMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	l := testListing("1 Nowhere Ln")
	l.ID = 424242
	err := st.UpdateListing(context.Background(), l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Call log ---

func TestSQLite_CallLogAndStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ok := "OK"
	require.NoError(t, st.LogCall(ctx, model.CallLogEntry{
		Endpoint: "textsearch",
		Status:   &ok,
		URL:      "https://maps.googleapis.com/maps/api/place/textsearch/json?key=REDACTED&query=x",
	}))
	require.NoError(t, st.LogCall(ctx, model.CallLogEntry{
		Endpoint:  "geocode",
		URL:       "https://maps.googleapis.com/maps/api/geocode/json?key=REDACTED",
		CreatedAt: time.Now().UTC().Add(-10 * 24 * time.Hour),
	}))

	stats, err := st.CallStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Today)
	assert.Equal(t, 1, stats.LastWeek)
	assert.Equal(t, 2, stats.LastMonth)
}

// --- Parcel jobs ---

func TestSQLite_ParcelJob_EnsureIsIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	created, err := st.EnsureParcelJob(ctx, "canonical_addresses", 1, "123 Main St")
	require.NoError(t, err)
	assert.True(t, created)

	// Same source row while queued: no second job.
	created, err = st.EnsureParcelJob(ctx, "canonical_addresses", 1, "123 Main St")
	require.NoError(t, err)
	assert.False(t, created)

	// Different source row: new job.
	created, err = st.EnsureParcelJob(ctx, "canonical_addresses", 2, "456 Oak Ave")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSQLite_ParcelJob_ClaimAndComplete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.EnsureParcelJob(ctx, "canonical_addresses", 1, "123 Main St")
	require.NoError(t, err)
	_, err = st.EnsureParcelJob(ctx, "canonical_addresses", 2, "456 Oak Ave")
	require.NoError(t, err)

	jobs, err := st.ClaimParcelJobs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.ParcelJobRunning, jobs[0].Status)

	// The claimed job is running, so a second claim gets the other one.
	rest, err := st.ClaimParcelJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.NotEqual(t, jobs[0].ID, rest[0].ID)

	parcelID := int64(77)
	require.NoError(t, st.CompleteParcelJob(ctx, jobs[0].ID, model.ParcelJobDone, &parcelID))

	counts, err := st.ParcelJobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.ParcelJobDone])
	assert.Equal(t, 1, counts[model.ParcelJobRunning])

	// Once done, the same source row can be enqueued again.
	created, err := st.EnsureParcelJob(ctx, jobs[0].SourceTable, jobs[0].SourceID, "123 Main St")
	require.NoError(t, err)
	assert.True(t, created)
}

func TestSQLite_ParcelJob_ClaimEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)

	jobs, err := st.ClaimParcelJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
