package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/incident-triage-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// munnarResponse mimics a Mapbox reverse lookup inside Idukki district.
func munnarResponse() response {
	return response{
		Features: []feature{
			{
				ID:        "place.1234",
				PlaceName: "Munnar, Idukki, Kerala, India",
				Text:      "Munnar",
				Relevance: 1,
				Context: []contextItem{
					{ID: "district.5678", Text: "Idukki"},
					{ID: "region.91", Text: "Kerala"},
					{ID: "country.1", Text: "India"},
				},
			},
			{ID: "district.5678", PlaceName: "Idukki, Kerala, India", Text: "Idukki", Relevance: 1},
			{ID: "region.91", PlaceName: "Kerala, India", Text: "Kerala", Relevance: 1},
		},
	}
}

func TestClient_ReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "77.059700,10.088900", "lon,lat order")
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))
		assert.Equal(t, reverseTypes, r.URL.Query().Get("types"))
		assert.Equal(t, "en", r.URL.Query().Get("language"))

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(munnarResponse()))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ReverseGeocode(context.Background(), 10.0889, 77.0597)
	require.NoError(t, err)

	assert.Equal(t, "Munnar, Idukki, Kerala, India", result.FormattedAddress)
	assert.Equal(t, "Idukki", result.District)
	assert.Equal(t, "Munnar", result.City)
	assert.Equal(t, "Kerala", result.Region)
	assert.Empty(t, result.County)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("success")))
}

func TestClient_ReverseGeocode_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.ReverseGeocode(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, result.FormattedAddress)
	assert.Empty(t, result.District)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("empty")))
}

func TestClient_ReverseGeocode_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.token = "bad-token"

	_, err := c.ReverseGeocode(context.Background(), 9.9312, 76.2673)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.GeocodeRequests.WithLabelValues("error")))
}

func TestClient_ReverseGeocode_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.ReverseGeocode(context.Background(), 9.9312, 76.2673)
	require.Error(t, err)
}

func TestClient_ReverseGeocode_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features": [`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), 9.9312, 76.2673)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestResponse_ResultKeepsMostSpecificValues(t *testing.T) {
	r := response{
		Features: []feature{
			{
				ID: "place.1", PlaceName: "Fort Kochi, Ernakulam, Kerala, India", Text: "Fort Kochi",
				Context: []contextItem{{ID: "district.2", Text: "Ernakulam"}},
			},
			{ID: "place.3", Text: "Kochi"},
			{ID: "district.4", Text: "Should not override"},
		},
	}
	got := r.result()
	assert.Equal(t, "Fort Kochi", got.City)
	assert.Equal(t, "Ernakulam", got.District)
}
