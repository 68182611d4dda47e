package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/seattlelisted/listing-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS canonical_addresses (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	place_id      TEXT NOT NULL UNIQUE,
	source        TEXT NOT NULL,
	building_name TEXT,
	latitude      REAL,
	longitude     REAL,
	rating        REAL,
	rating_count  INTEGER,
	payload       TEXT,
	refreshed_at  DATETIME NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_canonical_refreshed_at ON canonical_addresses(refreshed_at DESC);

CREATE TABLE IF NOT EXISTS listings (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
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
	img_urls             TEXT,
	canonical_address_id INTEGER REFERENCES canonical_addresses(id),
	place_id             TEXT,
	active               INTEGER NOT NULL DEFAULT 1,
	created_at           DATETIME NOT NULL,
	updated_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_listings_full_address ON listings(full_address);
CREATE INDEX IF NOT EXISTS idx_listings_canonical ON listings(canonical_address_id);

CREATE TABLE IF NOT EXISTS price_changes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id INTEGER NOT NULL REFERENCES listings(id),
	old_price  INTEGER NOT NULL,
	new_price  INTEGER NOT NULL,
	changed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_changes_listing ON price_changes(listing_id);

CREATE TABLE IF NOT EXISTS api_call_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint   TEXT NOT NULL,
	status     TEXT,
	url        TEXT NOT NULL,
	address    TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_api_call_log_created_at ON api_call_log(created_at);

CREATE TABLE IF NOT EXISTS parcel_jobs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_table TEXT NOT NULL,
	source_id    INTEGER NOT NULL,
	address_hint TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'queued',
	priority     INTEGER NOT NULL DEFAULT 0,
	parcel_id    INTEGER,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parcel_jobs_status ON parcel_jobs(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_parcel_jobs_pending ON parcel_jobs(source_table, source_id) WHERE status IN ('queued', 'running');
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteRow interface {
	Scan(dest ...any) error
}

func scanCanonicalSQLite(row sqliteRow) (*model.CanonicalAddress, error) {
	var a model.CanonicalAddress
	var payload sql.NullString
	err := row.Scan(&a.ID, &a.PlaceID, &a.Source, &a.BuildingName, &a.Latitude, &a.Longitude,
		&a.Rating, &a.RatingCount, &payload, &a.RefreshedAt)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		a.Payload = json.RawMessage(payload.String)
	}
	return &a, nil
}

func (s *SQLiteStore) GetCanonicalByPlaceID(ctx context.Context, placeID string) (*model.CanonicalAddress, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_addresses WHERE place_id = ?`, placeID)
	a, err := scanCanonicalSQLite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get canonical %s", placeID)
	}
	return a, nil
}

func (s *SQLiteStore) InsertCanonical(ctx context.Context, rec model.CanonicalAddress) (*model.CanonicalAddress, error) {
	if rec.RefreshedAt.IsZero() {
		rec.RefreshedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO canonical_addresses (place_id, source, building_name, latitude, longitude, rating, rating_count, payload, refreshed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (place_id) DO NOTHING`,
		rec.PlaceID, string(rec.Source), rec.BuildingName, rec.Latitude, rec.Longitude,
		rec.Rating, rec.RatingCount, nullableJSON(rec.Payload), rec.RefreshedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert canonical %s", rec.PlaceID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		existing, getErr := s.GetCanonicalByPlaceID(ctx, rec.PlaceID)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, eris.Errorf("sqlite: canonical %s vanished after conflict", rec.PlaceID)
		}
		return existing, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	rec.ID = id
	return &rec, nil
}

func (s *SQLiteStore) RefreshCanonical(ctx context.Context, rec model.CanonicalAddress) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE canonical_addresses SET source = ?, building_name = ?, latitude = ?, longitude = ?, rating = ?, rating_count = ?, payload = ?, refreshed_at = ? WHERE id = ?`,
		string(rec.Source), rec.BuildingName, rec.Latitude, rec.Longitude,
		rec.Rating, rec.RatingCount, nullableJSON(rec.Payload), time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: refresh canonical %d", rec.ID)
	}
	return checkRowsAffected(res, "canonical address", rec.ID)
}

func (s *SQLiteStore) SearchCanonicalByPayload(ctx context.Context, fragment string, limit int) ([]model.CanonicalAddress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_addresses WHERE payload LIKE '%' || ? || '%' ORDER BY refreshed_at DESC LIMIT ?`,
		fragment, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search canonical")
	}
	defer rows.Close()
	return collectCanonicalSQLite(rows)
}

func (s *SQLiteStore) RecentCanonical(ctx context.Context, since time.Time, limit int) ([]model.CanonicalAddress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_addresses WHERE refreshed_at > ? ORDER BY refreshed_at DESC LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent canonical")
	}
	defer rows.Close()
	return collectCanonicalSQLite(rows)
}

func collectCanonicalSQLite(rows *sql.Rows) ([]model.CanonicalAddress, error) {
	var out []model.CanonicalAddress
	for rows.Next() {
		a, err := scanCanonicalSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan canonical")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate canonical")
}

func (s *SQLiteStore) BackfillCanonicalCoords(ctx context.Context, id int64, lat, lng float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE canonical_addresses SET latitude = ?, longitude = ? WHERE id = ? AND (latitude IS NULL OR longitude IS NULL)`,
		lat, lng, id,
	)
	return eris.Wrapf(err, "sqlite: backfill coords %d", id)
}

func scanListingSQLite(row sqliteRow) (*model.Listing, error) {
	var l model.Listing
	var imgJSON sql.NullString
	err := row.Scan(&l.ID, &l.FullAddress, &l.BuildingName, &l.Street, &l.City, &l.State,
		&l.UnitNumber, &l.Bedrooms, &l.Bathrooms, &l.Sqft, &l.Price, &l.AvailableDate,
		&l.ListingURL, &imgJSON, &l.CanonicalAddressID, &l.PlaceID, &l.Active,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if imgJSON.Valid && imgJSON.String != "" {
		if err := json.Unmarshal([]byte(imgJSON.String), &l.ImageURLs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal img_urls")
		}
	}
	return &l, nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListingSQLite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get listing %d", id)
	}
	return l, nil
}

func (s *SQLiteStore) FindListingsByAddressPrefix(ctx context.Context, prefix string, limit int) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE full_address LIKE ? || '%' ORDER BY updated_at DESC LIMIT ?`,
		prefix, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find listings")
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		l, err := scanListingSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

func (s *SQLiteStore) InsertListing(ctx context.Context, l model.Listing) (*model.Listing, error) {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	imgJSON, err := json.Marshal(l.ImageURLs)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal img_urls")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO listings (full_address, building_name, street, city, state, unit_number, bedrooms, bathrooms, sqft, price, available_date, listing_url, img_urls, canonical_address_id, place_id, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.FullAddress, l.BuildingName, l.Street, l.City, l.State, l.UnitNumber,
		l.Bedrooms, l.Bathrooms, l.Sqft, l.Price, l.AvailableDate, l.ListingURL,
		string(imgJSON), l.CanonicalAddressID, l.PlaceID, l.Active, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert listing")
	}

	l.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	return &l, nil
}

func (s *SQLiteStore) UpdateListing(ctx context.Context, l model.Listing) error {
	imgJSON, err := json.Marshal(l.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal img_urls")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET full_address = ?, building_name = ?, street = ?, city = ?, state = ?, unit_number = ?, bedrooms = ?, bathrooms = ?, sqft = ?, price = ?, available_date = ?, listing_url = ?, img_urls = ?, active = ?, updated_at = ? WHERE id = ?`,
		l.FullAddress, l.BuildingName, l.Street, l.City, l.State, l.UnitNumber,
		l.Bedrooms, l.Bathrooms, l.Sqft, l.Price, l.AvailableDate, l.ListingURL,
		string(imgJSON), l.Active, time.Now().UTC(), l.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update listing %d", l.ID)
	}
	return checkRowsAffected(res, "listing", l.ID)
}

func (s *SQLiteStore) LinkListing(ctx context.Context, listingID, canonicalID int64, placeID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET canonical_address_id = ?, place_id = ?, updated_at = ? WHERE id = ?`,
		canonicalID, placeID, time.Now().UTC(), listingID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link listing %d", listingID)
	}
	return checkRowsAffected(res, "listing", listingID)
}

func (s *SQLiteStore) RecordPriceChange(ctx context.Context, pc model.PriceChange) error {
	changedAt := pc.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO price_changes (listing_id, old_price, new_price, changed_at) VALUES (?, ?, ?, ?)`,
		pc.ListingID, pc.OldPrice, pc.NewPrice, changedAt,
	)
	return eris.Wrapf(err, "sqlite: record price change for listing %d", pc.ListingID)
}

func (s *SQLiteStore) LogCall(ctx context.Context, entry model.CallLogEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_call_log (endpoint, status, url, address, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.Endpoint, entry.Status, entry.URL, entry.Address, createdAt,
	)
	return eris.Wrap(err, "sqlite: log call")
}

func (s *SQLiteStore) CallStats(ctx context.Context) (*model.CallStats, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var stats model.CallStats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM api_call_log WHERE created_at >= ?),
			(SELECT COUNT(*) FROM api_call_log WHERE created_at >= ?),
			(SELECT COUNT(*) FROM api_call_log WHERE created_at >= ?)`,
		dayStart, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30),
	).Scan(&stats.Today, &stats.LastWeek, &stats.LastMonth)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: call stats")
	}
	return &stats, nil
}

func (s *SQLiteStore) EnsureParcelJob(ctx context.Context, sourceTable string, sourceID int64, addressHint string) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO parcel_jobs (source_table, source_id, address_hint, status, created_at, updated_at)
		 SELECT ?, ?, ?, 'queued', ?, ?
		 WHERE NOT EXISTS (
			SELECT 1 FROM parcel_jobs WHERE source_table = ? AND source_id = ? AND status IN ('queued', 'running')
		 )`,
		sourceTable, sourceID, addressHint, now, now, sourceTable, sourceID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: ensure parcel job %s/%d", sourceTable, sourceID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ClaimParcelJobs(ctx context.Context, limit int) ([]model.ParcelJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim parcel jobs begin")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT id, source_table, source_id, address_hint, status, priority, created_at, updated_at
		 FROM parcel_jobs WHERE status = 'queued'
		 ORDER BY priority DESC, created_at LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: claim parcel jobs select")
	}

	var jobs []model.ParcelJob
	var ids []string
	var args []any
	for rows.Next() {
		var j model.ParcelJob
		if err := rows.Scan(&j.ID, &j.SourceTable, &j.SourceID, &j.AddressHint, &j.Status, &j.Priority, &j.CreatedAt, &j.UpdatedAt); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan parcel job")
		}
		j.Status = model.ParcelJobRunning
		jobs = append(jobs, j)
		ids = append(ids, "?")
		args = append(args, j.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, eris.Wrap(err, "sqlite: iterate parcel jobs")
	}
	rows.Close()

	if len(jobs) == 0 {
		return nil, tx.Commit()
	}

	args = append([]any{time.Now().UTC()}, args...)
	if _, err := tx.ExecContext(ctx,
		`UPDATE parcel_jobs SET status = 'running', updated_at = ? WHERE id IN (`+strings.Join(ids, ", ")+`)`,
		args...,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim parcel jobs update")
	}

	return jobs, eris.Wrap(tx.Commit(), "sqlite: claim parcel jobs commit")
}

func (s *SQLiteStore) CompleteParcelJob(ctx context.Context, id int64, status model.ParcelJobStatus, parcelID *int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE parcel_jobs SET status = ?, parcel_id = ?, updated_at = ? WHERE id = ?`,
		string(status), parcelID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete parcel job %d", id)
	}
	return checkRowsAffected(res, "parcel job", id)
}

func (s *SQLiteStore) ParcelJobCounts(ctx context.Context) (map[model.ParcelJobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM parcel_jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parcel job counts")
	}
	defer rows.Close()

	counts := make(map[model.ParcelJobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parcel job count")
		}
		counts[model.ParcelJobStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: iterate parcel job counts")
}

// nullableJSON maps empty payloads to NULL instead of an empty string.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func checkRowsAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", kind, id)
	}
	return nil
}
