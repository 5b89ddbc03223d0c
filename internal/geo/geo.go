package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-hailing/internal/models"
)

// SearchRadiusM bounds Nearby lookups for every backend.
const SearchRadiusM = 5000.0

// Geo mirrors driver locations for nearby lookups. It is never consulted by
// the matcher; availability lives in the entity store.
//
// Writes are ordered per driver by their timestamp: an Upsert or Remove older
// than the last applied write for that driver is dropped, so writes that
// arrive out of order cannot resurrect an offline driver.
type Geo interface {
	Upsert(ctx context.Context, loc models.DriverLocation) error
	Remove(ctx context.Context, driverID string, at time.Time) error
	Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.DriverLocation, error)
}

type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.DriverLocation
	// last applied write per driver, kept after Remove
	seen map[string]time.Time
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.DriverLocation), seen: make(map[string]time.Time)}
}

func (g *Index) Upsert(_ context.Context, loc models.DriverLocation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if loc.Updated.IsZero() {
		loc.Updated = time.Now()
	}
	if !g.advance(loc.DriverID, loc.Updated) {
		return nil
	}
	g.drivers[loc.DriverID] = loc
	return nil
}

func (g *Index) Remove(_ context.Context, driverID string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if at.IsZero() {
		at = time.Now()
	}
	if !g.advance(driverID, at) {
		return nil
	}
	delete(g.drivers, driverID)
	return nil
}

// advance records at as the driver's latest write unless a newer one was
// already applied. Caller holds g.mu.
func (g *Index) advance(driverID string, at time.Time) bool {
	if prev, ok := g.seen[driverID]; ok && at.Before(prev) {
		return false
	}
	g.seen[driverID] = at
	return true
}

// Nearby returns online drivers within SearchRadiusM of the point, closest
// first. Equal distances are ordered by driver id.
func (g *Index) Nearby(_ context.Context, lat, lon float64, limit int) ([]models.DriverLocation, error) {
	g.mu.RLock()
	type pair struct {
		loc  models.DriverLocation
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, l := range g.drivers {
		if !l.Online {
			continue
		}
		dist := Haversine(lat, lon, l.Loc.Lat, l.Loc.Lon)
		if dist > SearchRadiusM {
			continue
		}
		arr = append(arr, pair{l, dist})
	}
	g.mu.RUnlock()

	sort.Slice(arr, func(i, j int) bool {
		if arr[i].dist != arr[j].dist {
			return arr[i].dist < arr[j].dist
		}
		return arr[i].loc.DriverID < arr[j].loc.DriverID
	})
	n := limit
	if n <= 0 || n > len(arr) {
		n = len(arr)
	}
	out := make([]models.DriverLocation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, arr[i].loc)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
