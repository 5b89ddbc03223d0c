package matcher

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
)

// Store is the part of the entity store the matcher needs.
type Store interface {
	Drivers() []models.Driver
	UpdateDriver(id string, fn func(*models.Driver) error) (models.Driver, error)
	InsertTripWithDriver(driverID string, t models.Trip, fn func(*models.Driver, *models.Trip) error) (models.Driver, models.Trip, error)
}

var errIneligible = errors.New("driver no longer eligible")

type Service struct {
	Store  Store
	Logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Logger: logger}
}

// candidates returns eligible drivers from one snapshot, earliest registered
// first. Eligibility is checked again under each driver's lock.
func (s *Service) candidates(class models.CarClass) []models.Driver {
	all := s.Store.Drivers()
	out := all[:0]
	for _, d := range all {
		if d.Eligible(class) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Reserve moves the first eligible driver of class to reserved. ok is false
// when no driver could be reserved; that is not an error.
//
// The reservation is bound to no trip. The caller owns it and must either
// call Release or bind the driver to a trip through the store; nothing else
// returns the driver to matching. Trip requests use ReserveFor, which binds
// the trip in the same step.
func (s *Service) Reserve(class models.CarClass) (d models.Driver, ok bool, err error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	for _, c := range s.candidates(class) {
		d, err = s.Store.UpdateDriver(c.ID, func(d *models.Driver) error {
			return reserve(d, class, "", time.Now())
		})
		if errors.Is(err, errIneligible) {
			continue
		}
		if err != nil {
			return models.Driver{}, false, err
		}
		observability.MatchesTotal.Inc()
		return d, true, nil
	}
	observability.MatchMisses.Inc()
	return models.Driver{}, false, nil
}

// ReserveFor reserves a driver for t.CarClass and inserts t, assigned to that
// driver, in the same atomic step. When ok is false nothing was inserted.
func (s *Service) ReserveFor(t models.Trip) (d models.Driver, trip models.Trip, ok bool, err error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	for _, c := range s.candidates(t.CarClass) {
		d, trip, err = s.Store.InsertTripWithDriver(c.ID, t, func(d *models.Driver, tr *models.Trip) error {
			if !models.CanTransition(tr.Status, models.StatusAssigned) {
				return models.ErrInvalidState
			}
			now := time.Now()
			if err := reserve(d, tr.CarClass, tr.ID, now); err != nil {
				return err
			}
			tr.DriverID = d.ID
			tr.Status = models.StatusAssigned
			tr.AssignedAt = &now
			tr.UpdatedAt = now
			return nil
		})
		if errors.Is(err, errIneligible) {
			s.Logger.Debug("candidate taken before reservation", "driver_id", c.ID, "trip_id", t.ID)
			continue
		}
		if err != nil {
			return models.Driver{}, models.Trip{}, false, err
		}
		observability.MatchesTotal.Inc()
		return d, trip, true, nil
	}
	observability.MatchMisses.Inc()
	return models.Driver{}, models.Trip{}, false, nil
}

// Release returns a reserved or on-trip driver to available, or to offline
// when the driver went offline while holding the trip.
func (s *Service) Release(driverID string) (models.Driver, error) {
	return s.Store.UpdateDriver(driverID, func(d *models.Driver) error {
		if d.Availability != models.AvailReserved && d.Availability != models.AvailOnTrip {
			return models.ErrInvalidState
		}
		d.Release(time.Now())
		return nil
	})
}

func reserve(d *models.Driver, class models.CarClass, tripID string, now time.Time) error {
	if !d.Eligible(class) {
		return errIneligible
	}
	d.Availability = models.AvailReserved
	d.CurrentTripID = tripID
	d.UpdatedAt = now
	return nil
}
