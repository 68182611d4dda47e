// Package parcel loads a county parcel extract into Postgres and matches
// canonical addresses against it. The dataset is reference data: a missing or
// empty parcels table only means jobs complete without a linkage.
package parcel

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seattlelisted/listing-cli/internal/db"
)

const loadBatchSize = 5000

var parcelColumns = []string{"parcel_number", "situs_address", "latitude", "longitude"}

// Record is one parsed parcel row.
type Record struct {
	ParcelNumber string
	SitusAddress string
	Latitude     *float64
	Longitude    *float64
}

// ParseCSV reads a parcel extract: header row, then
// parcel_number,situs_address,latitude,longitude. Latitude and longitude may
// be empty. Rows without a parcel number or address are skipped with a warn.
func ParseCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "parcel: read csv header")
	}
	if len(header) < 2 {
		return nil, eris.New("parcel: csv needs at least parcel_number and situs_address columns")
	}

	var out []Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "parcel: read csv line %d", line+1)
		}
		line++

		rec := Record{
			ParcelNumber: strings.TrimSpace(row[0]),
		}
		if len(row) > 1 {
			rec.SitusAddress = strings.TrimSpace(row[1])
		}
		if rec.ParcelNumber == "" || rec.SitusAddress == "" {
			zap.L().Warn("parcel: skipping incomplete row", zap.Int("line", line))
			continue
		}
		if len(row) > 2 {
			rec.Latitude = parseCoord(row[2])
		}
		if len(row) > 3 {
			rec.Longitude = parseCoord(row[3])
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseCoord(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// Load writes records into the parcels table. When replace is set the table
// is truncated and re-filled with COPY; otherwise records are upserted on
// parcel_number so repeated extracts converge.
func Load(ctx context.Context, pool db.Pool, recs []Record, replace bool) (int64, error) {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{r.ParcelNumber, r.SitusAddress, r.Latitude, r.Longitude}
	}

	if replace {
		if _, err := pool.Exec(ctx, "TRUNCATE parcels"); err != nil {
			return 0, eris.Wrap(err, "parcel: truncate parcels")
		}
		var total int64
		for i := 0; i < len(rows); i += loadBatchSize {
			end := i + loadBatchSize
			if end > len(rows) {
				end = len(rows)
			}
			n, err := db.CopyFrom(ctx, pool, "parcels", parcelColumns, rows[i:end])
			if err != nil {
				return total, err
			}
			total += n
		}
		return total, nil
	}

	return db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "parcels",
		Columns:      parcelColumns,
		ConflictKeys: []string{"parcel_number"},
	}, rows)
}
