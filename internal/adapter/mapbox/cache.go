// Package mapbox reverse geocodes report coordinates through the Mapbox
// Geocoding API.
package mapbox

import (
	"container/list"
	"context"
	"math"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
	"github.com/couchcryptid/incident-triage-service/internal/observability"
)

// gridScale snaps coordinates to 1e-4 degrees (about 11 m) so reports from
// the same spot share a cell.
const gridScale = 1e4

// cell is a snapped coordinate pair.
type cell struct {
	lat, lng int32
}

func cellOf(lat, lng float64) cell {
	return cell{
		lat: int32(math.Round(lat * gridScale)),
		lng: int32(math.Round(lng * gridScale)),
	}
}

func (c cell) String() string {
	return strconv.Itoa(int(c.lat)) + ":" + strconv.Itoa(int(c.lng))
}

// CachedGeocoder remembers place names per grid cell. During a flood many
// reports arrive from the same few spots at once, so concurrent misses on
// one cell share a single upstream request.
type CachedGeocoder struct {
	inner   domain.Geocoder
	metrics *observability.Metrics
	calls   singleflight.Group

	mu    sync.Mutex
	limit int
	order *list.List // front is most recently used
	cells map[cell]*list.Element
}

type cached struct {
	at     cell
	result domain.GeocodingResult
}

// NewCachedGeocoder creates a cache decorator around a geocoder holding at
// most maxEntries cells.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		metrics: metrics,
		limit:   max(maxEntries, 1),
		order:   list.New(),
		cells:   make(map[cell]*list.Element),
	}
}

// ReverseGeocode answers from the cache when the cell is known. Only
// results naming an administrative area are kept; an empty answer or an
// error is asked again next time.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (domain.GeocodingResult, error) {
	at := cellOf(lat, lng)
	if result, ok := c.lookup(at); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	ch := c.calls.DoChan(at.String(), func() (any, error) {
		// Detached so one caller giving up does not fail the others waiting.
		result, err := c.inner.ReverseGeocode(context.WithoutCancel(ctx), lat, lng)
		if err == nil && placeNamed(result) {
			c.store(at, result)
		}
		return result, err
	})

	select {
	case <-ctx.Done():
		return domain.GeocodingResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.GeocodeCache.WithLabelValues("shared").Inc()
		}
		result, _ := res.Val.(domain.GeocodingResult)
		return result, res.Err
	}
}

// Len reports how many cells are cached.
func (c *CachedGeocoder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func placeNamed(r domain.GeocodingResult) bool {
	return r.District != "" || r.County != "" || r.City != ""
}

func (c *CachedGeocoder) lookup(at cell) (domain.GeocodingResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.cells[at]
	if !ok {
		return domain.GeocodingResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cached).result, true
}

func (c *CachedGeocoder) store(at cell, result domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.cells[at]; ok {
		el.Value.(*cached).result = result
		c.order.MoveToFront(el)
		return
	}
	c.cells[at] = c.order.PushFront(&cached{at: at, result: result})

	for c.order.Len() > c.limit {
		oldest := c.order.Back()
		delete(c.cells, oldest.Value.(*cached).at)
		c.order.Remove(oldest)
	}
}
