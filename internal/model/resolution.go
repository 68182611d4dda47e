package model

// ResolvedKind names where a resolution answer came from.
type ResolvedKind string

const (
	// ResolvedCanonical means an existing or newly created canonical address
	// answered the request.
	ResolvedCanonical ResolvedKind = "canonical_address"
	// ResolvedListing means an existing listing row matched the input exactly.
	ResolvedListing ResolvedKind = "listing"
	// ResolvedNearMatch means nothing was accepted automatically; near
	// candidates are returned for manual review.
	ResolvedNearMatch ResolvedKind = "near_match"
)

// Candidate is one provider find-place result under consideration. It lives
// only for the duration of a single resolution request.
type Candidate struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name,omitempty"`
	FormattedAddress string   `json:"formatted_address,omitempty"`
	Latitude         *float64 `json:"lat,omitempty"`
	Longitude        *float64 `json:"lng,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	RatingCount      *int     `json:"user_ratings_total,omitempty"`
	Types            []string `json:"types,omitempty"`

	// Derived during ranking.
	Variant       string `json:"variant,omitempty"`
	RankInVariant int    `json:"-"`
	Score         int    `json:"score,omitempty"`
	Similarity    int    `json:"similarity,omitempty"`
}

// NearCandidate is a fuzzy, non-accepted match surfaced for human review.
type NearCandidate struct {
	Source  string `json:"source"`
	ID      int64  `json:"id"`
	Address string `json:"address"`
	Score   int    `json:"score"`
}

// ResolvedPlace describes the accepted answer of a resolution.
type ResolvedPlace struct {
	Source           ResolvedKind `json:"source"`
	ID               int64        `json:"id"`
	PlaceID          string       `json:"place_id,omitempty"`
	Name             *string      `json:"name,omitempty"`
	FormattedAddress string       `json:"formatted_address,omitempty"`
	Latitude         *float64     `json:"lat,omitempty"`
	Longitude        *float64     `json:"lng,omitempty"`
	Rating           *float64     `json:"rating,omitempty"`
	RatingCount      *int         `json:"user_ratings_total,omitempty"`
	DataFresh        bool         `json:"data_fresh"`
	DataAgeHours     float64      `json:"data_age_hours"`
	SimilarityScore  int          `json:"similarity_score"`
	QueryVariant     string       `json:"query_variant_used,omitempty"`
}

// FinalIDs carries every row id a resolution touched or produced.
type FinalIDs struct {
	CanonicalAddressID *int64 `json:"canonical_address_id"`
	ListingID          *int64 `json:"listing_id"`
	ParcelID           *int64 `json:"external_parcel_id"`
}

// Resolution is the full response contract for one resolution request.
type Resolution struct {
	OK              bool            `json:"ok"`
	Result          *ResolvedPlace  `json:"result,omitempty"`
	FinalIDs        FinalIDs        `json:"final_ids"`
	NearCandidates  []NearCandidate `json:"near_candidates,omitempty"`
	SkippedAPICalls bool            `json:"skipped_api_calls,omitempty"`
	Error           string          `json:"error,omitempty"`
}
