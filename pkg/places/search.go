package places

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/rotisserie/eris"

	"github.com/seattlelisted/listing-cli/internal/model"
)

// textSearchResponse is the JSON response from the Places Text Search API.
type textSearchResponse struct {
	Results []searchResult `json:"results"`
	Status  string         `json:"status"`
}

type searchResult struct {
	PlaceID          string `json:"place_id"`
	Name             string `json:"name"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	Types            []string `json:"types"`
}

// TextSearch runs a Places text search. ZERO_RESULTS and other non-OK
// statuses come back as an empty slice: the resolver treats a variant with
// no candidates as a miss, not a failure.
func (c *client) TextSearch(ctx context.Context, query string) ([]model.Candidate, error) {
	params := url.Values{
		"query":  {query},
		"region": {c.region},
		"key":    {c.key},
	}
	reqURL := c.placesBase + "/textsearch/json?" + params.Encode()

	body, _, err := c.get(ctx, reqURL, "textsearch", strPtr(query))
	if err != nil {
		return nil, err
	}

	var resp textSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logCall(ctx, "textsearch", reqURL, nil, strPtr(query))
		return nil, eris.Wrap(err, "places: textsearch parse response")
	}

	c.logCall(ctx, "textsearch", reqURL, strPtr(resp.Status), strPtr(query))

	if resp.Status != statusOK {
		return nil, nil
	}

	out := make([]model.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		lat, lng := r.Geometry.Location.Lat, r.Geometry.Location.Lng
		out = append(out, model.Candidate{
			PlaceID:          r.PlaceID,
			Name:             r.Name,
			FormattedAddress: r.FormattedAddress,
			Latitude:         &lat,
			Longitude:        &lng,
			Rating:           r.Rating,
			RatingCount:      r.UserRatingsTotal,
			Types:            r.Types,
		})
	}
	return out, nil
}
