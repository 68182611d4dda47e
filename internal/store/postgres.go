package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/seattlelisted/listing-cli/internal/db"
	"github.com/seattlelisted/listing-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations. The resolver hits
// get_canonical and insert_call_log on nearly every request.
var preparedStatements = map[string]string{
	"get_canonical":     `SELECT id, place_id, source, building_name, latitude, longitude, rating, rating_count, payload, refreshed_at FROM canonical_addresses WHERE place_id = $1`,
	"insert_call_log":   `INSERT INTO api_call_log (endpoint, status, url, address, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"link_listing":      `UPDATE listings SET canonical_address_id = $2, place_id = $3, updated_at = $4 WHERE id = $1`,
	"recent_canonical":  `SELECT id, place_id, source, building_name, latitude, longitude, rating, rating_count, payload, refreshed_at FROM canonical_addresses WHERE refreshed_at > $1 ORDER BY refreshed_at DESC LIMIT $2`,
	"get_listing":       `SELECT id, full_address, building_name, street, city, state, unit_number, bedrooms, bathrooms, sqft, price, available_date, listing_url, img_urls, canonical_address_id, place_id, active, created_at, updated_at FROM listings WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk ingest).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS canonical_addresses (
	id            BIGSERIAL PRIMARY KEY,
	place_id      TEXT NOT NULL UNIQUE,
	source        TEXT NOT NULL,
	building_name TEXT,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	rating        DOUBLE PRECISION,
	rating_count  INTEGER,
	payload       JSONB,
	refreshed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_canonical_refreshed_at ON canonical_addresses(refreshed_at DESC);

CREATE TABLE IF NOT EXISTS listings (
	id                   BIGSERIAL PRIMARY KEY,
	full_address         TEXT NOT NULL,
	building_name        TEXT,
	street               TEXT,
	city                 TEXT,
	state                TEXT,
	unit_number          TEXT,
	bedrooms             TEXT,
	bathrooms            TEXT,
	sqft                 INTEGER,
	price                INTEGER,
	available_date       TEXT,
	listing_url          TEXT,
	img_urls             JSONB,
	canonical_address_id BIGINT REFERENCES canonical_addresses(id),
	place_id             TEXT,
	active               BOOLEAN NOT NULL DEFAULT true,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_listings_full_address ON listings(full_address);
CREATE INDEX IF NOT EXISTS idx_listings_canonical ON listings(canonical_address_id);

CREATE TABLE IF NOT EXISTS price_changes (
	id         BIGSERIAL PRIMARY KEY,
	listing_id BIGINT NOT NULL REFERENCES listings(id),
	old_price  INTEGER NOT NULL,
	new_price  INTEGER NOT NULL,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_price_changes_listing ON price_changes(listing_id);

CREATE TABLE IF NOT EXISTS api_call_log (
	id         BIGSERIAL PRIMARY KEY,
	endpoint   TEXT NOT NULL,
	status     TEXT,
	url        TEXT NOT NULL,
	address    TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_api_call_log_created_at ON api_call_log(created_at);

CREATE TABLE IF NOT EXISTS parcel_jobs (
	id           BIGSERIAL PRIMARY KEY,
	source_table TEXT NOT NULL,
	source_id    BIGINT NOT NULL,
	address_hint TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'queued',
	priority     INTEGER NOT NULL DEFAULT 0,
	parcel_id    BIGINT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_parcel_jobs_status ON parcel_jobs(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_parcel_jobs_pending ON parcel_jobs(source_table, source_id) WHERE status IN ('queued', 'running');

CREATE TABLE IF NOT EXISTS parcels (
	id            BIGSERIAL PRIMARY KEY,
	parcel_number TEXT NOT NULL UNIQUE,
	situs_address TEXT NOT NULL,
	latitude      DOUBLE PRECISION,
	longitude     DOUBLE PRECISION,
	loaded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_parcels_situs_address ON parcels(situs_address text_pattern_ops);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const canonicalColumns = `id, place_id, source, building_name, latitude, longitude, rating, rating_count, payload, refreshed_at`

func scanCanonical(row pgx.Row) (*model.CanonicalAddress, error) {
	var a model.CanonicalAddress
	var payload []byte
	err := row.Scan(&a.ID, &a.PlaceID, &a.Source, &a.BuildingName, &a.Latitude, &a.Longitude,
		&a.Rating, &a.RatingCount, &payload, &a.RefreshedAt)
	if err != nil {
		return nil, err
	}
	a.Payload = json.RawMessage(payload)
	return &a, nil
}

// GetCanonicalByPlaceID returns the canonical record for a place ID, or nil
// when none exists.
func (s *PostgresStore) GetCanonicalByPlaceID(ctx context.Context, placeID string) (*model.CanonicalAddress, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_addresses WHERE place_id = $1`, placeID)
	a, err := scanCanonical(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get canonical %s", placeID)
	}
	return a, nil
}

// InsertCanonical inserts a new canonical address. When another writer got
// there first the existing row wins and is returned unchanged.
func (s *PostgresStore) InsertCanonical(ctx context.Context, rec model.CanonicalAddress) (*model.CanonicalAddress, error) {
	now := time.Now().UTC()
	if rec.RefreshedAt.IsZero() {
		rec.RefreshedAt = now
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO canonical_addresses (place_id, source, building_name, latitude, longitude, rating, rating_count, payload, refreshed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (place_id) DO NOTHING
		 RETURNING id`,
		rec.PlaceID, string(rec.Source), rec.BuildingName, rec.Latitude, rec.Longitude,
		rec.Rating, rec.RatingCount, []byte(rec.Payload), rec.RefreshedAt,
	)

	var id int64
	err := row.Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race; the row that beat us is the answer.
		existing, getErr := s.GetCanonicalByPlaceID(ctx, rec.PlaceID)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, eris.Errorf("postgres: canonical %s vanished after conflict", rec.PlaceID)
		}
		return existing, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert canonical %s", rec.PlaceID)
	}

	rec.ID = id
	return &rec, nil
}

// RefreshCanonical replaces the provider-derived fields of an existing
// record and bumps refreshed_at.
func (s *PostgresStore) RefreshCanonical(ctx context.Context, rec model.CanonicalAddress) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE canonical_addresses SET source = $2, building_name = $3, latitude = $4, longitude = $5, rating = $6, rating_count = $7, payload = $8, refreshed_at = $9 WHERE id = $1`,
		rec.ID, string(rec.Source), rec.BuildingName, rec.Latitude, rec.Longitude,
		rec.Rating, rec.RatingCount, []byte(rec.Payload), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: refresh canonical %d", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("canonical address not found: %d", rec.ID)
	}
	return nil
}

// SearchCanonicalByPayload finds records whose stored payload contains the
// given fragment, freshest first.
func (s *PostgresStore) SearchCanonicalByPayload(ctx context.Context, fragment string, limit int) ([]model.CanonicalAddress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_addresses WHERE payload::text ILIKE '%' || $1 || '%' ORDER BY refreshed_at DESC LIMIT $2`,
		fragment, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search canonical")
	}
	defer rows.Close()
	return collectCanonical(rows)
}

// RecentCanonical returns records refreshed after the given instant.
func (s *PostgresStore) RecentCanonical(ctx context.Context, since time.Time, limit int) ([]model.CanonicalAddress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_addresses WHERE refreshed_at > $1 ORDER BY refreshed_at DESC LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent canonical")
	}
	defer rows.Close()
	return collectCanonical(rows)
}

func collectCanonical(rows pgx.Rows) ([]model.CanonicalAddress, error) {
	var out []model.CanonicalAddress
	for rows.Next() {
		a, err := scanCanonical(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan canonical")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate canonical")
}

// BackfillCanonicalCoords fills in missing coordinates without touching
// refreshed_at; the data is no newer, just re-derived from the payload.
func (s *PostgresStore) BackfillCanonicalCoords(ctx context.Context, id int64, lat, lng float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE canonical_addresses SET latitude = $2, longitude = $3 WHERE id = $1 AND (latitude IS NULL OR longitude IS NULL)`,
		id, lat, lng,
	)
	return eris.Wrapf(err, "postgres: backfill coords %d", id)
}

const listingColumns = `id, full_address, building_name, street, city, state, unit_number, bedrooms, bathrooms, sqft, price, available_date, listing_url, img_urls, canonical_address_id, place_id, active, created_at, updated_at`

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var imgJSON []byte
	err := row.Scan(&l.ID, &l.FullAddress, &l.BuildingName, &l.Street, &l.City, &l.State,
		&l.UnitNumber, &l.Bedrooms, &l.Bathrooms, &l.Sqft, &l.Price, &l.AvailableDate,
		&l.ListingURL, &imgJSON, &l.CanonicalAddressID, &l.PlaceID, &l.Active,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(imgJSON) > 0 {
		if err := json.Unmarshal(imgJSON, &l.ImageURLs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal img_urls")
		}
	}
	return &l, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get listing %d", id)
	}
	return l, nil
}

func (s *PostgresStore) FindListingsByAddressPrefix(ctx context.Context, prefix string, limit int) ([]model.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE full_address ILIKE $1 || '%' ORDER BY updated_at DESC LIMIT $2`,
		prefix, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find listings")
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

func (s *PostgresStore) InsertListing(ctx context.Context, l model.Listing) (*model.Listing, error) {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	imgJSON, err := json.Marshal(l.ImageURLs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal img_urls")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO listings (full_address, building_name, street, city, state, unit_number, bedrooms, bathrooms, sqft, price, available_date, listing_url, img_urls, canonical_address_id, place_id, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 RETURNING id`,
		l.FullAddress, l.BuildingName, l.Street, l.City, l.State, l.UnitNumber,
		l.Bedrooms, l.Bathrooms, l.Sqft, l.Price, l.AvailableDate, l.ListingURL,
		imgJSON, l.CanonicalAddressID, l.PlaceID, l.Active, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert listing")
	}
	return &l, nil
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l model.Listing) error {
	imgJSON, err := json.Marshal(l.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal img_urls")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET full_address = $2, building_name = $3, street = $4, city = $5, state = $6, unit_number = $7, bedrooms = $8, bathrooms = $9, sqft = $10, price = $11, available_date = $12, listing_url = $13, img_urls = $14, active = $15, updated_at = $16 WHERE id = $1`,
		l.ID, l.FullAddress, l.BuildingName, l.Street, l.City, l.State, l.UnitNumber,
		l.Bedrooms, l.Bathrooms, l.Sqft, l.Price, l.AvailableDate, l.ListingURL,
		imgJSON, l.Active, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update listing %d", l.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("listing not found: %d", l.ID)
	}
	return nil
}

// LinkListing points a listing at a canonical address. Callers must never
// use it to clear an existing link.
func (s *PostgresStore) LinkListing(ctx context.Context, listingID, canonicalID int64, placeID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET canonical_address_id = $2, place_id = $3, updated_at = $4 WHERE id = $1`,
		listingID, canonicalID, placeID, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: link listing %d", listingID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("listing not found: %d", listingID)
	}
	return nil
}

func (s *PostgresStore) RecordPriceChange(ctx context.Context, pc model.PriceChange) error {
	changedAt := pc.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_changes (listing_id, old_price, new_price, changed_at) VALUES ($1, $2, $3, $4)`,
		pc.ListingID, pc.OldPrice, pc.NewPrice, changedAt,
	)
	return eris.Wrapf(err, "postgres: record price change for listing %d", pc.ListingID)
}

func (s *PostgresStore) LogCall(ctx context.Context, entry model.CallLogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_call_log (endpoint, status, url, address, created_at) VALUES ($1, $2, $3, $4, $5)`,
		entry.Endpoint, entry.Status, entry.URL, entry.Address, createdAt,
	)
	return eris.Wrap(err, "postgres: log call")
}

func (s *PostgresStore) CallStats(ctx context.Context) (*model.CallStats, error) {
	var stats model.CallStats
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', now())),
			COUNT(*) FILTER (WHERE created_at >= now() - interval '7 days'),
			COUNT(*) FILTER (WHERE created_at >= now() - interval '30 days')
		 FROM api_call_log`,
	).Scan(&stats.Today, &stats.LastWeek, &stats.LastMonth)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: call stats")
	}
	return &stats, nil
}

// EnsureParcelJob enqueues a parcel lookup unless one is already queued or
// running for the same source row. Returns whether a new job was created.
func (s *PostgresStore) EnsureParcelJob(ctx context.Context, sourceTable string, sourceID int64, addressHint string) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO parcel_jobs (source_table, source_id, address_hint, status, created_at, updated_at)
		 SELECT $1, $2, $3, 'queued', $4, $4
		 WHERE NOT EXISTS (
			SELECT 1 FROM parcel_jobs WHERE source_table = $1 AND source_id = $2 AND status IN ('queued', 'running')
		 )`,
		sourceTable, sourceID, addressHint, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: ensure parcel job %s/%d", sourceTable, sourceID)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimParcelJobs atomically moves up to limit queued jobs to running and
// returns them. SKIP LOCKED keeps concurrent workers from double-claiming.
func (s *PostgresStore) ClaimParcelJobs(ctx context.Context, limit int) ([]model.ParcelJob, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE parcel_jobs SET status = 'running', updated_at = now()
		 WHERE id IN (
			SELECT id FROM parcel_jobs WHERE status = 'queued'
			ORDER BY priority DESC, created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, source_table, source_id, address_hint, status, priority, created_at, updated_at`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim parcel jobs")
	}
	defer rows.Close()

	var jobs []model.ParcelJob
	for rows.Next() {
		var j model.ParcelJob
		if err := rows.Scan(&j.ID, &j.SourceTable, &j.SourceID, &j.AddressHint, &j.Status, &j.Priority, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parcel job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate parcel jobs")
}

func (s *PostgresStore) CompleteParcelJob(ctx context.Context, id int64, status model.ParcelJobStatus, parcelID *int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE parcel_jobs SET status = $2, parcel_id = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), parcelID, time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete parcel job %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("parcel job not found: %d", id)
	}
	return nil
}

func (s *PostgresStore) ParcelJobCounts(ctx context.Context) (map[model.ParcelJobStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM parcel_jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parcel job counts")
	}
	defer rows.Close()

	counts := make(map[model.ParcelJobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parcel job count")
		}
		counts[model.ParcelJobStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: iterate parcel job counts")
}
