package places

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"
)

// geocodeResponse is the JSON response from the Geocoding API.
type geocodeResponse struct {
	Results []json.RawMessage `json:"results"`
	Status  string            `json:"status"`
}

// geocodeResult is the subset of a geocode record the client surfaces as
// structured fields; the raw record is kept alongside.
type geocodeResult struct {
	PlaceID          string `json:"place_id"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Types []string `json:"types"`
}

// Geocode resolves an address through the Geocoding API, used as a fallback
// when Places search produces nothing acceptable. ZERO_RESULTS returns nil
// with no error.
func (c *client) Geocode(ctx context.Context, address string) (*Place, error) {
	params := url.Values{
		"address": {address},
		"region":  {c.region},
		"key":     {c.key},
	}
	reqURL := c.geocodeBase + "/json?" + params.Encode()

	body, _, err := c.get(ctx, reqURL, "geocode", strPtr(address))
	if err != nil {
		return nil, err
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logCall(ctx, "geocode", reqURL, nil, strPtr(address))
		return nil, eris.Wrap(err, "places: geocode parse response")
	}

	c.logCall(ctx, "geocode", reqURL, strPtr(resp.Status), strPtr(address))

	if resp.Status != statusOK || len(resp.Results) == 0 {
		return nil, nil
	}

	raw := resp.Results[0]
	var r geocodeResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrap(err, "places: geocode parse result")
	}

	lat, lng := r.Geometry.Location.Lat, r.Geometry.Location.Lng
	return &Place{
		PlaceID:          r.PlaceID,
		FormattedAddress: r.FormattedAddress,
		Latitude:         &lat,
		Longitude:        &lng,
		Types:            r.Types,
		Raw:              raw,
	}, nil
}
