// Package model defines the shared domain types for listing ingestion and
// address resolution.
package model

import (
	"encoding/json"
	"time"
)

// AddressSource tags how a canonical address record was obtained.
type AddressSource string

const (
	// SourcePlaces means the record came from a Places find-place search.
	SourcePlaces AddressSource = "places"
	// SourceGeocode means the record came from the geocoding fallback.
	SourceGeocode AddressSource = "geocode"
	// SourceManualMatch means a human linked the record during triage.
	SourceManualMatch AddressSource = "manual_match"
)

// CanonicalAddress is a deduplicated, provider-backed record representing one
// physical place. The raw provider payload is kept verbatim so formatted
// address and coordinates can be re-derived without another API call.
type CanonicalAddress struct {
	ID           int64           `json:"id"`
	PlaceID      string          `json:"place_id"`
	Source       AddressSource   `json:"source"`
	BuildingName *string         `json:"building_name,omitempty"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	Rating       *float64        `json:"rating,omitempty"`
	RatingCount  *int            `json:"rating_count,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	RefreshedAt  time.Time       `json:"refreshed_at"`
}

// Age returns how long ago the record was last refreshed.
func (a *CanonicalAddress) Age(now time.Time) time.Duration {
	d := now.Sub(a.RefreshedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Fresh reports whether the record is younger than ttl.
func (a *CanonicalAddress) Fresh(now time.Time, ttl time.Duration) bool {
	return a.Age(now) < ttl
}

// payloadEnvelope covers both payload shapes we store: a Place Details
// response ({"status":..,"result":{...}}) and a bare Geocode result.
type payloadEnvelope struct {
	Result *payloadResult `json:"result"`
	payloadResult
}

type payloadResult struct {
	Name             string   `json:"name"`
	FormattedAddress string   `json:"formatted_address"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	Geometry         struct {
		Location struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

// FormattedAddress extracts the provider-formatted address from the stored
// payload, or "" when the payload is missing or unparseable.
func (a *CanonicalAddress) FormattedAddress() string {
	r := a.payloadResultView()
	if r == nil {
		return ""
	}
	return r.FormattedAddress
}

// Coordinates extracts lat/lng from the stored payload when present.
func (a *CanonicalAddress) Coordinates() (lat, lng *float64) {
	r := a.payloadResultView()
	if r == nil {
		return nil, nil
	}
	return r.Geometry.Location.Lat, r.Geometry.Location.Lng
}

func (a *CanonicalAddress) payloadResultView() *payloadResult {
	if len(a.Payload) == 0 {
		return nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(a.Payload, &env); err != nil {
		return nil
	}
	if env.Result != nil {
		return env.Result
	}
	return &env.payloadResult
}
