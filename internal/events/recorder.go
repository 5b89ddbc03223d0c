package events

import (
	"context"
	"sync"

	"github.com/example/ride-hailing/internal/models"
)

// Recorder keeps published events in memory. Tests use it to assert on what
// the services emitted.
type Recorder struct {
	mu        sync.Mutex
	locations []models.DriverLocation
	trips     []models.TripEvent
}

func (r *Recorder) PublishLocation(_ context.Context, loc models.DriverLocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations = append(r.locations, loc)
	return nil
}

func (r *Recorder) PublishTrip(_ context.Context, ev models.TripEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips = append(r.trips, ev)
	return nil
}

// TripEvents returns a copy of the recorded trip events.
func (r *Recorder) TripEvents() []models.TripEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TripEvent(nil), r.trips...)
}

func (r *Recorder) LocationEvents() []models.DriverLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.DriverLocation(nil), r.locations...)
}
