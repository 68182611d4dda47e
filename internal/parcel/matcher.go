package parcel

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/seattlelisted/listing-cli/internal/address"
	"github.com/seattlelisted/listing-cli/internal/db"
)

const (
	// matchThreshold is the minimum similarity for a parcel linkage. County
	// situs addresses omit city and state, so this stays below the resolver's
	// cache threshold.
	matchThreshold = 85
	scanLimit      = 25
)

// Parcel is one stored parcel row.
type Parcel struct {
	ID           int64
	ParcelNumber string
	SitusAddress string
	Latitude     *float64
	Longitude    *float64
}

// Matcher finds the parcel for an address hint.
type Matcher struct {
	pool db.Pool
}

// NewMatcher creates a Matcher over a Postgres pool.
func NewMatcher(pool db.Pool) *Matcher {
	return &Matcher{pool: pool}
}

// Match returns the best parcel for the hint, or nil when nothing scores at
// or above the match threshold. County extracts carry only the street line,
// so the hint is reduced to its street segment before comparison.
func (m *Matcher) Match(ctx context.Context, hint string) (*Parcel, error) {
	street := hint
	if i := strings.Index(street, ","); i >= 0 {
		street = street[:i]
	}
	street = address.StripUnit(strings.TrimSpace(street))
	if street == "" {
		return nil, nil
	}

	rows, err := m.pool.Query(ctx,
		`SELECT id, parcel_number, situs_address, latitude, longitude
		 FROM parcels WHERE situs_address ILIKE $1 || '%' LIMIT $2`,
		street, scanLimit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "parcel: match query")
	}
	defer rows.Close()

	var best *Parcel
	bestScore := 0
	for rows.Next() {
		var p Parcel
		if err := rows.Scan(&p.ID, &p.ParcelNumber, &p.SitusAddress, &p.Latitude, &p.Longitude); err != nil {
			return nil, eris.Wrap(err, "parcel: scan parcel")
		}
		score := address.Similarity(street, p.SitusAddress)
		if score >= matchThreshold && score > bestScore {
			cp := p
			best = &cp
			bestScore = score
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "parcel: iterate parcels")
	}
	return best, nil
}
