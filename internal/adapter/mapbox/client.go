package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/google/go-querystring/query"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// reverseTypes limits reverse lookups to the administrative levels the zone
// resolver can use.
const reverseTypes = "district,place,region"

// reverseParams is the query string of a reverse lookup. English names keep
// results matchable against the district table.
type reverseParams struct {
	AccessToken string `url:"access_token"`
	Types       string `url:"types"`
	Language    string `url:"language,omitempty"`
}

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// ReverseGeocode converts coordinates to the administrative areas that
// contain them. An empty result means Mapbox knew nothing about the point.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := fmt.Sprintf("%.6f,%.6f", lon, lat)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params, err := query.Values(reverseParams{
		AccessToken: c.token,
		Types:       reverseTypes,
		Language:    "en",
	})
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("encode query parameters: %w", err)
	}

	start := time.Now()
	result, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		c.logger.Debug("reverse geocode failed", "lat", lat, "lon", lon, "error", err)
	case result.FormattedAddress == "":
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
	default:
		c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode response: %w", err)
	}
	return mapboxResp.result(), nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID        string        `json:"id"` // e.g. "district.123"
	PlaceName string        `json:"place_name"`
	Text      string        `json:"text"`
	Relevance float64       `json:"relevance"`
	Context   []contextItem `json:"context"`
}

type contextItem struct {
	ID   string `json:"id"` // e.g. "region.456"
	Text string `json:"text"`
}

// result folds every feature and its context into one GeocodingResult. The
// first feature is the most specific and supplies the address.
func (r response) result() domain.GeocodingResult {
	if len(r.Features) == 0 {
		return domain.GeocodingResult{}
	}

	first := r.Features[0]
	out := domain.GeocodingResult{
		FormattedAddress: first.PlaceName,
		Confidence:       first.Relevance,
	}
	for _, f := range r.Features {
		assign(&out, f.ID, f.Text)
		for _, item := range f.Context {
			assign(&out, item.ID, item.Text)
		}
	}
	return out
}

// assign stores text in the field matching the Mapbox id prefix, keeping
// the first value seen for each level.
func assign(out *domain.GeocodingResult, id, text string) {
	kind, _, _ := strings.Cut(id, ".")
	var field *string
	switch kind {
	case "district":
		field = &out.District
	case "place":
		field = &out.City
	case "region":
		field = &out.Region
	default:
		return
	}
	if *field == "" {
		*field = text
	}
}
