// Package places wraps the Google Places and Geocoding APIs behind a small
// client used by the address resolver. Every outbound call is appended to a
// call log with the API key redacted.
package places

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/seattlelisted/listing-cli/internal/model"
	"github.com/seattlelisted/listing-cli/internal/resilience"
)

const (
	defaultPlacesBaseURL  = "https://maps.googleapis.com/maps/api/place"
	defaultGeocodeBaseURL = "https://maps.googleapis.com/maps/api/geocode"

	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// Client is the provider surface the resolver depends on.
type Client interface {
	// TextSearch runs a Places text search for the given query. A non-OK
	// provider status yields an empty candidate list, not an error.
	TextSearch(ctx context.Context, query string) ([]model.Candidate, error)

	// Details fetches the full place record for a place ID. Returns nil
	// (no error) when the provider does not know the ID.
	Details(ctx context.Context, placeID string) (*Place, error)

	// Geocode resolves a free-text address via the Geocoding API. Returns
	// nil (no error) when nothing matches.
	Geocode(ctx context.Context, address string) (*Place, error)
}

// Place is one provider record in either Places or Geocoding shape. Raw
// holds the provider response body verbatim so callers can persist it.
type Place struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Latitude         *float64
	Longitude        *float64
	Rating           *float64
	RatingCount      *int
	Types            []string
	Raw              []byte
}

// CallLogger records one provider call. Implementations must tolerate being
// called with a failed request (nil status).
type CallLogger interface {
	LogCall(ctx context.Context, entry model.CallLogEntry) error
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURLs overrides the Places and Geocoding API base URLs.
func WithBaseURLs(placesBase, geocodeBase string) Option {
	return func(c *client) {
		if placesBase != "" {
			c.placesBase = placesBase
		}
		if geocodeBase != "" {
			c.geocodeBase = geocodeBase
		}
	}
}

// WithRegion sets the region bias passed on search and geocode requests.
func WithRegion(region string) Option {
	return func(c *client) {
		c.region = region
	}
}

// WithRateLimit sets the requests-per-second limit across all endpoints.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCallLogger attaches a call-log sink. Logging failures are swallowed:
// a broken log table must never fail a resolution.
func WithCallLogger(cl CallLogger) Option {
	return func(c *client) {
		c.callLog = cl
	}
}

// WithRetry overrides the retry policy for transient provider errors.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) {
		c.retry = cfg
	}
}

type client struct {
	key         string
	placesBase  string
	geocodeBase string
	region      string
	httpClient  *http.Client
	limiter     *rate.Limiter
	callLog     CallLogger
	retry       resilience.RetryConfig
}

// NewClient creates a Places client with the given API key and options.
func NewClient(key string, opts ...Option) Client {
	c := &client{
		key:         key,
		placesBase:  defaultPlacesBaseURL,
		geocodeBase: defaultGeocodeBaseURL,
		region:      "us",
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
			},
		},
		limiter: rate.NewLimiter(10, 10),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs one rate-limited, retried GET and returns the body. endpoint
// and address are only used for call logging.
func (c *client) get(ctx context.Context, reqURL, endpoint string, address *string) ([]byte, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", eris.Wrap(err, "places: rate limit")
	}

	type result struct {
		body   []byte
		status string
	}

	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return result{}, eris.Wrapf(err, "places: build %s request", endpoint)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return result{}, eris.Wrapf(err, "places: %s request", endpoint)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return result{}, resilience.NewTransientError(
				eris.Errorf("places: %s returned status %d", endpoint, resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return result{}, eris.Errorf("places: %s returned status %d", endpoint, resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, eris.Wrapf(err, "places: %s read body", endpoint)
		}
		return result{body: body, status: resp.Status}, nil
	})

	if err != nil {
		c.logCall(ctx, endpoint, reqURL, nil, address)
		return nil, "", err
	}
	return res.body, res.status, nil
}

// logCall appends one call-log row, redacting the API key. Failures are
// logged and dropped.
func (c *client) logCall(ctx context.Context, endpoint, reqURL string, status, address *string) {
	if c.callLog == nil {
		return
	}
	entry := model.CallLogEntry{
		Endpoint: endpoint,
		Status:   status,
		URL:      redactKey(reqURL),
		Address:  address,
	}
	if err := c.callLog.LogCall(ctx, entry); err != nil {
		zap.L().Warn("places: call log write failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
}

// redactKey replaces the key query parameter so logged URLs never leak
// credentials.
func redactKey(reqURL string) string {
	u, err := url.Parse(reqURL)
	if err != nil {
		return reqURL
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func strPtr(s string) *string { return &s }
