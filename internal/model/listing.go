package model

import "time"

// Listing is one scraped apartment listing row. A canonical address may serve
// many listings (multiple units in one building), so the link lives here.
type Listing struct {
	ID                 int64      `json:"id"`
	FullAddress        string     `json:"full_address"`
	BuildingName       *string    `json:"building_name,omitempty"`
	Street             *string    `json:"street,omitempty"`
	City               *string    `json:"city,omitempty"`
	State              *string    `json:"state,omitempty"`
	UnitNumber         *string    `json:"unit_number,omitempty"`
	Bedrooms           *string    `json:"bedrooms,omitempty"`
	Bathrooms          *string    `json:"bathrooms,omitempty"`
	Sqft               *int       `json:"sqft,omitempty"`
	Price              *int       `json:"price,omitempty"`
	AvailableDate      *string    `json:"available_date,omitempty"`
	ListingURL         *string    `json:"listing_url,omitempty"`
	ImageURLs          []string   `json:"img_urls,omitempty"`
	CanonicalAddressID *int64     `json:"canonical_address_id,omitempty"`
	PlaceID            *string    `json:"place_id,omitempty"`
	Active             bool       `json:"active"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PriceChange records a listing price moving between two scrapes.
type PriceChange struct {
	ID        int64     `json:"id"`
	ListingID int64     `json:"listing_id"`
	OldPrice  int       `json:"old_price"`
	NewPrice  int       `json:"new_price"`
	ChangedAt time.Time `json:"changed_at"`
}
