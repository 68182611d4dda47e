// Package resolver orchestrates address resolution: normalize the input,
// try the local tables, then the Places API, then the geocoder, creating or
// refreshing canonical address rows along the way.
package resolver

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/seattlelisted/listing-cli/internal/address"
	"github.com/seattlelisted/listing-cli/internal/model"
	"github.com/seattlelisted/listing-cli/internal/store"
	"github.com/seattlelisted/listing-cli/pkg/places"
)

// Request is one resolution request. Either Address or PlaceID must be set;
// ListingID, when present, is back-linked to the accepted canonical row.
type Request struct {
	Address   string `json:"address"`
	PlaceID   string `json:"place_id,omitempty"`
	Region    string `json:"region,omitempty"`
	ListingID *int64 `json:"listing_id,omitempty"`
}

// Config tunes the resolution pipeline.
type Config struct {
	FreshnessTTL       time.Duration
	CacheMatchScore    int
	CandidateGateScore int
	RecentScanLimit    int
	NearCandidateLimit int
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		FreshnessTTL:       24 * time.Hour,
		CacheMatchScore:    90,
		CandidateGateScore: 95,
		RecentScanLimit:    500,
		NearCandidateLimit: 10,
	}
}

// Resolver runs the resolution pipeline against a store and a provider.
type Resolver struct {
	store  store.Store
	places places.Client
	cfg    Config
	now    func() time.Time
}

// New creates a Resolver.
func New(st store.Store, pc places.Client, cfg Config) *Resolver {
	if cfg.FreshnessTTL <= 0 {
		cfg.FreshnessTTL = 24 * time.Hour
	}
	if cfg.RecentScanLimit <= 0 {
		cfg.RecentScanLimit = 500
	}
	if cfg.NearCandidateLimit <= 0 {
		cfg.NearCandidateLimit = 10
	}
	return &Resolver{store: st, places: pc, cfg: cfg, now: time.Now}
}

// queryVariant is one provider search phrasing tried in order.
type queryVariant struct {
	name  string
	query string
}

// queryVariants builds the search phrasings for an address, most specific
// first. Apartment buildings usually surface as establishments, so those
// variants run before the bare address.
func queryVariants(addr string) []queryVariant {
	return []queryVariant{
		{"establishment", addr + " apartments"},
		{"property_management", addr + " property management"},
		{"business", addr + " business"},
		{"address", addr},
		{"premise", addr + " building"},
	}
}

// firstSegment returns the part of an address before the first comma, used
// as the LIKE prefix for local candidate lookups.
func firstSegment(addr string) string {
	if i := strings.Index(addr, ","); i >= 0 {
		return strings.TrimSpace(addr[:i])
	}
	return strings.TrimSpace(addr)
}

// Resolve runs the full pipeline for one request.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*model.Resolution, error) {
	addr := strings.TrimSpace(req.Address)

	if addr == "" && req.PlaceID == "" {
		return &model.Resolution{OK: false, Error: "address or place_id required"}, nil
	}

	if req.PlaceID != "" {
		return r.resolveByPlaceID(ctx, req)
	}

	if res, err := r.exactMatch(ctx, addr, &req); res != nil || err != nil {
		return res, err
	}

	if res, err := r.freshCacheMatch(ctx, addr, req); res != nil || err != nil {
		return res, err
	}

	if res, err := r.providerSearch(ctx, addr, req); res != nil || err != nil {
		return res, err
	}

	if res, err := r.geocodeFallback(ctx, addr, req); res != nil || err != nil {
		return res, err
	}

	return r.noMatch(ctx, addr)
}

// ManualMatch links a listing to the canonical row for a hand-picked place
// ID, creating or refreshing the row as needed. Rows created this way are
// tagged as manually matched.
func (r *Resolver) ManualMatch(ctx context.Context, listingID int64, placeID string) (*model.Resolution, error) {
	if placeID == "" {
		return &model.Resolution{OK: false, Error: "place_id required"}, nil
	}
	l, err := r.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return &model.Resolution{OK: false, Error: "unknown listing"}, nil
	}

	rec, err := r.ensureCanonical(ctx, placeID, model.SourceManualMatch, nil)
	if err != nil {
		return nil, err
	}
	req := Request{PlaceID: placeID, ListingID: &listingID}
	return r.accept(ctx, rec, req, 100, "manual_match", false)
}

// resolveByPlaceID is the direct path: an explicit place ID skips all
// searching. Fresh rows are served as-is, stale rows are refreshed via
// Details, unknown IDs are fetched and inserted.
func (r *Resolver) resolveByPlaceID(ctx context.Context, req Request) (*model.Resolution, error) {
	rec, err := r.store.GetCanonicalByPlaceID(ctx, req.PlaceID)
	if err != nil {
		return nil, err
	}

	if rec != nil && rec.Fresh(r.now(), r.cfg.FreshnessTTL) {
		return r.accept(ctx, rec, req, 100, "place_id", true)
	}

	p, perr := r.places.Details(ctx, req.PlaceID)
	if perr != nil || p == nil {
		if rec != nil {
			// Provider unavailable or ID gone: stale data beats none.
			if perr != nil {
				zap.L().Warn("resolver: details refresh failed, serving stale",
					zap.String("place_id", req.PlaceID), zap.Error(perr))
			}
			return r.accept(ctx, rec, req, 100, "place_id", true)
		}
		if perr != nil {
			zap.L().Warn("resolver: details fetch failed",
				zap.String("place_id", req.PlaceID), zap.Error(perr))
			return &model.Resolution{OK: false, Error: "place details unavailable"}, nil
		}
		return &model.Resolution{OK: false, Error: "unknown place_id"}, nil
	}

	if rec != nil {
		updated := canonicalFromPlace(p, model.SourcePlaces)
		updated.ID = rec.ID
		if err := r.store.RefreshCanonical(ctx, updated); err != nil {
			return nil, err
		}
		updated.RefreshedAt = r.now()
		return r.accept(ctx, &updated, req, 100, "place_id", false)
	}

	created, err := r.store.InsertCanonical(ctx, canonicalFromPlace(p, model.SourcePlaces))
	if err != nil {
		return nil, err
	}
	return r.accept(ctx, created, req, 100, "place_id", false)
}

// exactMatch checks local tables for a row whose normalized address equals
// the input's. Returns nil when nothing matched and the pipeline continues.
func (r *Resolver) exactMatch(ctx context.Context, addr string, req *Request) (*model.Resolution, error) {
	want := address.NormalizeExact(addr)

	// Listing rows first: an exact listing hit that is already linked
	// resolves through its canonical address without any API traffic.
	listings, err := r.store.FindListingsByAddressPrefix(ctx, firstSegment(addr), r.cfg.RecentScanLimit)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		l := &listings[i]
		if address.NormalizeExact(l.FullAddress) != want {
			continue
		}
		if l.PlaceID != nil && *l.PlaceID != "" {
			rec, err := r.store.GetCanonicalByPlaceID(ctx, *l.PlaceID)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				if req.ListingID == nil {
					req.ListingID = &l.ID
				}
				return r.accept(ctx, rec, *req, 100, "exact_db", true)
			}
		}
		// Unlinked exact listing: remember it so a later stage back-links it.
		if req.ListingID == nil {
			req.ListingID = &l.ID
		}
		break
	}

	// Canonical rows by stored formatted address.
	recs, err := r.store.SearchCanonicalByPayload(ctx, firstSegment(addr), r.cfg.RecentScanLimit)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		rec := &recs[i]
		fa := rec.FormattedAddress()
		if fa == "" {
			continue
		}
		if address.NormalizeExact(fa) == want {
			return r.accept(ctx, rec, *req, 100, "exact_db", true)
		}
	}

	return nil, nil
}

// freshCacheMatch is the two-pass fuzzy lookup over recently refreshed
// canonical rows: payload prefix LIKE first, then a bounded scan of the
// freshest rows. Rows pass the gate at or above the cache threshold; among
// the passers the freshest is served.
func (r *Resolver) freshCacheMatch(ctx context.Context, addr string, req Request) (*model.Resolution, error) {
	now := r.now()
	since := now.Add(-r.cfg.FreshnessTTL)

	pass1, err := r.store.SearchCanonicalByPayload(ctx, firstSegment(addr), r.cfg.RecentScanLimit)
	if err != nil {
		return nil, err
	}
	pass2, err := r.store.RecentCanonical(ctx, since, r.cfg.RecentScanLimit)
	if err != nil {
		return nil, err
	}

	var best *model.CanonicalAddress
	bestScore := 0
	seen := make(map[int64]bool)
	for _, batch := range [][]model.CanonicalAddress{pass1, pass2} {
		for i := range batch {
			rec := &batch[i]
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			if !rec.Fresh(now, r.cfg.FreshnessTTL) {
				continue
			}
			fa := rec.FormattedAddress()
			if fa == "" || address.HardConflict(addr, fa) {
				continue
			}
			score := address.Similarity(addr, fa)
			if score < r.cfg.CacheMatchScore {
				continue
			}
			if best == nil || rec.RefreshedAt.After(best.RefreshedAt) ||
				(rec.RefreshedAt.Equal(best.RefreshedAt) && score > bestScore) {
				cp := *rec
				best = &cp
				bestScore = score
			}
		}
	}

	if best == nil {
		return nil, nil
	}
	return r.accept(ctx, best, req, bestScore, "fresh_cache", true)
}

// providerSearch walks the query variants against the Places API, gates
// candidates on similarity, and accepts the best-scored survivor. Variants
// after the first one that produces acceptable candidates are skipped.
func (r *Resolver) providerSearch(ctx context.Context, addr string, req Request) (*model.Resolution, error) {
	var accepted []model.Candidate
	var lastErr error
	anySucceeded := false

	for _, v := range queryVariants(addr) {
		cands, err := r.places.TextSearch(ctx, v.query)
		if err != nil {
			lastErr = err
			zap.L().Warn("resolver: variant search failed",
				zap.String("variant", v.name), zap.Error(err))
			continue
		}
		anySucceeded = true
		for rank := range cands {
			c := cands[rank]
			c.Variant = v.name
			c.RankInVariant = rank
			if address.HardConflict(addr, c.FormattedAddress) {
				continue
			}
			sim := address.Similarity(addr, c.FormattedAddress)
			if sim < r.cfg.CandidateGateScore {
				continue
			}
			c.Similarity = sim
			c.Score = ScoreCandidate(c)
			accepted = append(accepted, c)
		}
		if len(accepted) > 0 {
			break
		}
	}

	if len(accepted) == 0 {
		if !anySucceeded && lastErr != nil {
			// Search endpoint down across every variant. The geocoder may
			// still answer, so keep going.
			zap.L().Warn("resolver: all search variants failed", zap.Error(lastErr))
		}
		return nil, nil
	}

	rankCandidates(accepted)
	winner := accepted[0]

	seed := canonicalFromCandidate(winner, model.SourcePlaces)
	rec, err := r.ensureCanonical(ctx, winner.PlaceID, model.SourcePlaces, &seed)
	if err != nil {
		return nil, err
	}
	res, err := r.accept(ctx, rec, req, winner.Similarity, winner.Variant, false)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// geocodeFallback accepts any geocoder hit for the address. Geocode results
// carry no business signal, so presence is the acceptance test.
func (r *Resolver) geocodeFallback(ctx context.Context, addr string, req Request) (*model.Resolution, error) {
	p, err := r.places.Geocode(ctx, addr)
	if err != nil {
		zap.L().Warn("resolver: geocode fallback failed", zap.Error(err))
		return nil, nil
	}
	if p == nil || p.PlaceID == "" {
		return nil, nil
	}

	seed := canonicalFromPlace(p, model.SourceGeocode)
	rec, err := r.ensureCanonical(ctx, p.PlaceID, model.SourceGeocode, &seed)
	if err != nil {
		return nil, err
	}
	sim := address.Similarity(addr, p.FormattedAddress)
	return r.accept(ctx, rec, req, sim, "geocode", false)
}

// ensureCanonical returns the canonical row for a place ID, refreshing a
// stale one or creating a missing one from a Details fetch. When Details is
// unavailable, seed (when present) provides the row instead.
func (r *Resolver) ensureCanonical(ctx context.Context, placeID string, source model.AddressSource, seed *model.CanonicalAddress) (*model.CanonicalAddress, error) {
	existing, err := r.store.GetCanonicalByPlaceID(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Fresh(r.now(), r.cfg.FreshnessTTL) {
		return existing, nil
	}

	p, perr := r.places.Details(ctx, placeID)
	if perr != nil {
		zap.L().Warn("resolver: details fetch failed", zap.String("place_id", placeID), zap.Error(perr))
	}

	var rec model.CanonicalAddress
	switch {
	case p != nil:
		rec = canonicalFromPlace(p, source)
	case seed != nil:
		rec = *seed
	case existing != nil:
		return existing, nil
	default:
		if perr != nil {
			return nil, perr
		}
		return nil, eris.Errorf("resolver: no data for place %s", placeID)
	}

	if existing != nil {
		rec.ID = existing.ID
		if err := r.store.RefreshCanonical(ctx, rec); err != nil {
			return nil, err
		}
		rec.RefreshedAt = r.now()
		return &rec, nil
	}
	return r.store.InsertCanonical(ctx, rec)
}

// noMatch builds the manual-review answer: ranked fuzzy candidates from both
// local tables, nothing written.
func (r *Resolver) noMatch(ctx context.Context, addr string) (*model.Resolution, error) {
	var near []model.NearCandidate

	listings, err := r.store.FindListingsByAddressPrefix(ctx, firstSegment(addr), r.cfg.RecentScanLimit)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		score := address.Similarity(addr, listings[i].FullAddress)
		if score <= 0 {
			continue
		}
		near = append(near, model.NearCandidate{
			Source:  "listing",
			ID:      listings[i].ID,
			Address: listings[i].FullAddress,
			Score:   score,
		})
	}

	recs, err := r.store.SearchCanonicalByPayload(ctx, firstSegment(addr), r.cfg.RecentScanLimit)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		fa := recs[i].FormattedAddress()
		if fa == "" {
			continue
		}
		score := address.Similarity(addr, fa)
		if score <= 0 {
			continue
		}
		near = append(near, model.NearCandidate{
			Source:  "canonical_address",
			ID:      recs[i].ID,
			Address: fa,
			Score:   score,
		})
	}

	sort.SliceStable(near, func(i, j int) bool { return near[i].Score > near[j].Score })
	if len(near) > r.cfg.NearCandidateLimit {
		near = near[:r.cfg.NearCandidateLimit]
	}

	return &model.Resolution{
		OK:             false,
		Error:          "no acceptable match",
		NearCandidates: near,
	}, nil
}

// accept finalizes a resolution on a canonical row: opportunistic payload and
// coordinate backfill, idempotent parcel-job enqueue, listing back-link, and
// the response payload. Backfill and enqueue failures are logged, not fatal.
func (r *Resolver) accept(ctx context.Context, rec *model.CanonicalAddress, req Request, sim int, variant string, skipped bool) (*model.Resolution, error) {
	now := r.now()

	// A row with no usable payload is invisible to the exact and cache
	// stages. Repair it from Details while we have the place ID in hand.
	if rec.FormattedAddress() == "" && rec.PlaceID != "" {
		if p, perr := r.places.Details(ctx, rec.PlaceID); perr != nil {
			zap.L().Warn("resolver: payload backfill failed", zap.Int64("id", rec.ID), zap.Error(perr))
		} else if p != nil {
			upd := canonicalFromPlace(p, rec.Source)
			upd.ID = rec.ID
			if err := r.store.RefreshCanonical(ctx, upd); err != nil {
				zap.L().Warn("resolver: payload backfill failed", zap.Int64("id", rec.ID), zap.Error(err))
			} else {
				upd.RefreshedAt = now
				*rec = upd
			}
		}
	}

	if rec.Latitude == nil || rec.Longitude == nil {
		if lat, lng := rec.Coordinates(); lat != nil && lng != nil {
			if err := r.store.BackfillCanonicalCoords(ctx, rec.ID, *lat, *lng); err != nil {
				zap.L().Warn("resolver: coordinate backfill failed", zap.Int64("id", rec.ID), zap.Error(err))
			} else {
				rec.Latitude, rec.Longitude = lat, lng
			}
		}
	}

	hint := rec.FormattedAddress()
	if hint == "" {
		hint = strings.TrimSpace(req.Address)
	}
	if _, err := r.store.EnsureParcelJob(ctx, "canonical_addresses", rec.ID, hint); err != nil {
		zap.L().Warn("resolver: parcel enqueue failed", zap.Int64("id", rec.ID), zap.Error(err))
	}

	ids := model.FinalIDs{CanonicalAddressID: &rec.ID}
	if req.ListingID != nil {
		linked, err := r.backLink(ctx, *req.ListingID, rec)
		if err != nil {
			return nil, err
		}
		if linked {
			ids.ListingID = req.ListingID
		}
	}

	name := rec.BuildingName
	return &model.Resolution{
		OK: true,
		Result: &model.ResolvedPlace{
			Source:           model.ResolvedCanonical,
			ID:               rec.ID,
			PlaceID:          rec.PlaceID,
			Name:             name,
			FormattedAddress: rec.FormattedAddress(),
			Latitude:         rec.Latitude,
			Longitude:        rec.Longitude,
			Rating:           rec.Rating,
			RatingCount:      rec.RatingCount,
			DataFresh:        rec.Fresh(now, r.cfg.FreshnessTTL),
			DataAgeHours:     rec.Age(now).Hours(),
			SimilarityScore:  sim,
			QueryVariant:     variant,
		},
		FinalIDs:        ids,
		SkippedAPICalls: skipped,
	}, nil
}

// backLink points a listing at the accepted canonical row. A listing already
// linked to the same row is a success; an existing link is never cleared.
func (r *Resolver) backLink(ctx context.Context, listingID int64, rec *model.CanonicalAddress) (bool, error) {
	l, err := r.store.GetListing(ctx, listingID)
	if err != nil {
		return false, err
	}
	if l == nil {
		zap.L().Warn("resolver: back-link target missing", zap.Int64("listing_id", listingID))
		return false, nil
	}
	if l.CanonicalAddressID != nil && *l.CanonicalAddressID == rec.ID {
		return true, nil
	}
	if err := r.store.LinkListing(ctx, listingID, rec.ID, rec.PlaceID); err != nil {
		return false, err
	}
	return true, nil
}

// canonicalFromPlace maps a provider record onto a canonical address row.
func canonicalFromPlace(p *places.Place, source model.AddressSource) model.CanonicalAddress {
	var name *string
	if p.Name != "" {
		n := p.Name
		name = &n
	}
	return model.CanonicalAddress{
		PlaceID:      p.PlaceID,
		Source:       source,
		BuildingName: name,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Rating:       p.Rating,
		RatingCount:  p.RatingCount,
		Payload:      json.RawMessage(p.Raw),
	}
}

// canonicalFromCandidate builds a row from search data alone, used when the
// Details endpoint is unavailable. The payload is synthesized in the Details
// envelope shape so FormattedAddress keeps working.
func canonicalFromCandidate(c model.Candidate, source model.AddressSource) model.CanonicalAddress {
	payload := map[string]any{
		"result": map[string]any{
			"place_id":          c.PlaceID,
			"name":              c.Name,
			"formatted_address": c.FormattedAddress,
			"geometry": map[string]any{
				"location": map[string]any{"lat": c.Latitude, "lng": c.Longitude},
			},
		},
	}
	raw, _ := json.Marshal(payload)

	var name *string
	if c.Name != "" {
		n := c.Name
		name = &n
	}
	return model.CanonicalAddress{
		PlaceID:      c.PlaceID,
		Source:       source,
		BuildingName: name,
		Latitude:     c.Latitude,
		Longitude:    c.Longitude,
		Rating:       c.Rating,
		RatingCount:  c.RatingCount,
		Payload:      raw,
	}
}
