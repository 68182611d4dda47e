// Package listing deduplicates scraped apartment listings into listing rows:
// a re-scrape of a known unit updates the existing row instead of inserting a
// duplicate, recording price movement along the way.
package listing

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seattlelisted/listing-cli/internal/address"
	"github.com/seattlelisted/listing-cli/internal/model"
	"github.com/seattlelisted/listing-cli/internal/store"
)

// matchScanLimit bounds the candidate scan for one upsert.
const matchScanLimit = 500

// UpsertResult reports what one upsert did.
type UpsertResult struct {
	Listing      *model.Listing `json:"listing"`
	Created      bool           `json:"created"`
	PriceChanged bool           `json:"price_changed"`
}

// Upserter writes scraped listings through the dedup rules.
type Upserter struct {
	store store.Store
}

// NewUpserter creates an Upserter.
func NewUpserter(st store.Store) *Upserter {
	return &Upserter{store: st}
}

// matchKey is the identity of one listing row: the normalized building
// address plus the unit number. Normalization strips unit markers from the
// address text, so the unit has to be carried separately or two units in one
// building would merge.
func matchKey(fullAddress string, unit *string) string {
	key := address.NormalizeExact(fullAddress)
	if unit != nil {
		key += "|" + strings.ToLower(strings.TrimSpace(*unit))
	}
	return key
}

// scanPrefix is the LIKE prefix used to pull match candidates. Stored rows
// keep the scraped spelling, which drifts between scrapes ("Ave" vs
// "Avenue", "N" vs "North"), so the prefix is just the leading token after
// unit markers are removed. That is the house number for almost every
// address, and it is the one token no scrape respells. matchKey does the
// precise filtering.
func scanPrefix(fullAddress string) string {
	seg := fullAddress
	if i := strings.Index(seg, ","); i >= 0 {
		seg = seg[:i]
	}
	fields := strings.Fields(address.StripUnit(strings.TrimSpace(seg)))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Upsert writes one scraped listing. An existing row with the same match key
// is updated in place; otherwise a new row is inserted. When canon is set the
// row is linked to it; an existing link is never cleared.
func (u *Upserter) Upsert(ctx context.Context, raw model.Listing, canon *model.CanonicalAddress) (*UpsertResult, error) {
	addr := strings.TrimSpace(raw.FullAddress)
	if addr == "" {
		return nil, eris.New("listing: full address required")
	}
	raw.FullAddress = addr
	raw.Active = true

	want := matchKey(addr, raw.UnitNumber)

	candidates, err := u.store.FindListingsByAddressPrefix(ctx, scanPrefix(addr), matchScanLimit)
	if err != nil {
		return nil, err
	}

	var existing *model.Listing
	for i := range candidates {
		c := &candidates[i]
		if matchKey(c.FullAddress, c.UnitNumber) == want {
			existing = c
			break
		}
	}

	if existing == nil {
		if canon != nil {
			raw.CanonicalAddressID = &canon.ID
			pid := canon.PlaceID
			raw.PlaceID = &pid
		}
		created, err := u.store.InsertListing(ctx, raw)
		if err != nil {
			return nil, err
		}
		return &UpsertResult{Listing: created, Created: true}, nil
	}

	priceChanged := false
	if raw.Price != nil && existing.Price != nil && *raw.Price != *existing.Price {
		if err := u.store.RecordPriceChange(ctx, model.PriceChange{
			ListingID: existing.ID,
			OldPrice:  *existing.Price,
			NewPrice:  *raw.Price,
		}); err != nil {
			return nil, err
		}
		priceChanged = true
		zap.L().Info("listing: price change",
			zap.Int64("listing_id", existing.ID),
			zap.Int("old_price", *existing.Price),
			zap.Int("new_price", *raw.Price))
	}

	merged := mergeListing(*existing, raw)
	if err := u.store.UpdateListing(ctx, merged); err != nil {
		return nil, err
	}

	if canon != nil && (merged.CanonicalAddressID == nil || *merged.CanonicalAddressID != canon.ID) {
		if err := u.store.LinkListing(ctx, merged.ID, canon.ID, canon.PlaceID); err != nil {
			return nil, err
		}
		merged.CanonicalAddressID = &canon.ID
		pid := canon.PlaceID
		merged.PlaceID = &pid
	}

	return &UpsertResult{Listing: &merged, Created: false, PriceChanged: priceChanged}, nil
}

// mergeListing lays the newly scraped values over the stored row. Scraped
// fields win when present; absent fields keep their stored values, so a
// sparse re-scrape never erases data.
func mergeListing(existing, raw model.Listing) model.Listing {
	out := existing
	out.FullAddress = raw.FullAddress
	out.Active = true

	if raw.BuildingName != nil {
		out.BuildingName = raw.BuildingName
	}
	if raw.Street != nil {
		out.Street = raw.Street
	}
	if raw.City != nil {
		out.City = raw.City
	}
	if raw.State != nil {
		out.State = raw.State
	}
	if raw.UnitNumber != nil {
		out.UnitNumber = raw.UnitNumber
	}
	if raw.Bedrooms != nil {
		out.Bedrooms = raw.Bedrooms
	}
	if raw.Bathrooms != nil {
		out.Bathrooms = raw.Bathrooms
	}
	if raw.Sqft != nil {
		out.Sqft = raw.Sqft
	}
	if raw.Price != nil {
		out.Price = raw.Price
	}
	if raw.AvailableDate != nil {
		out.AvailableDate = raw.AvailableDate
	}
	if raw.ListingURL != nil {
		out.ListingURL = raw.ListingURL
	}
	if len(raw.ImageURLs) > 0 {
		out.ImageURLs = raw.ImageURLs
	}
	return out
}
