// Package history answers read-only trip queries per rider and per driver.
package history

import (
	"context"
	"sort"

	"github.com/example/ride-hailing/internal/models"
)

type Store interface {
	GetRider(id string) (models.Rider, error)
	GetDriver(id string) (models.Driver, error)
	Trips(keep func(models.Trip) bool) []models.Trip
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// TripsForRider returns the rider's trips oldest first, read from a single
// consistent snapshot of the store.
func (s *Service) TripsForRider(_ context.Context, riderID string) ([]models.Trip, error) {
	if _, err := s.store.GetRider(riderID); err != nil {
		return nil, err
	}
	return s.query(func(t models.Trip) bool { return t.RiderID == riderID }), nil
}

func (s *Service) TripsForDriver(_ context.Context, driverID string) ([]models.Trip, error) {
	if _, err := s.store.GetDriver(driverID); err != nil {
		return nil, err
	}
	return s.query(func(t models.Trip) bool { return t.DriverID == driverID }), nil
}

func (s *Service) query(keep func(models.Trip) bool) []models.Trip {
	out := s.store.Trips(keep)
	// stable keeps insertion order for equal timestamps
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if out == nil {
		out = []models.Trip{}
	}
	return out
}
