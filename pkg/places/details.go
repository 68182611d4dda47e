package places

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"
)

// detailsFields is the field mask requested from the Details endpoint. The
// full response body is persisted as the canonical-address payload, so this
// list defines what downstream consumers can read back.
const detailsFields = "place_id,name,formatted_address,geometry,rating,user_ratings_total,type,business_status,website,formatted_phone_number,address_component"

// detailsResponse is the JSON response from the Place Details API.
type detailsResponse struct {
	Result *searchResult `json:"result"`
	Status string        `json:"status"`
}

// Details fetches the full record for a place ID. A NOT_FOUND or otherwise
// non-OK status returns nil with no error.
func (c *client) Details(ctx context.Context, placeID string) (*Place, error) {
	params := url.Values{
		"place_id": {placeID},
		"fields":   {detailsFields},
		"key":      {c.key},
	}
	reqURL := c.placesBase + "/details/json?" + params.Encode()

	body, _, err := c.get(ctx, reqURL, "details", nil)
	if err != nil {
		return nil, err
	}

	var resp detailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logCall(ctx, "details", reqURL, nil, nil)
		return nil, eris.Wrap(err, "places: details parse response")
	}

	c.logCall(ctx, "details", reqURL, strPtr(resp.Status), nil)

	if resp.Status != statusOK || resp.Result == nil {
		return nil, nil
	}

	r := resp.Result
	lat, lng := r.Geometry.Location.Lat, r.Geometry.Location.Lng
	return &Place{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		FormattedAddress: r.FormattedAddress,
		Latitude:         &lat,
		Longitude:        &lng,
		Rating:           r.Rating,
		RatingCount:      r.UserRatingsTotal,
		Types:            r.Types,
		Raw:              body,
	}, nil
}
