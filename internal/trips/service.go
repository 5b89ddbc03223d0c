// Package trips owns the trip state machine: request, accept, start, end and
// cancel, each validated against the actor and the transition table and
// committed atomically with the driver it affects.
package trips

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-hailing/internal/events"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
	"github.com/example/ride-hailing/internal/storage"
)

type Store interface {
	GetRider(id string) (models.Rider, error)
	GetTrip(id string) (models.Trip, error)
	InsertTrip(t models.Trip) error
	UpdateTrip(id string, fn func(*models.Trip) error) (models.Trip, error)
	UpdateDriverTrip(driverID, tripID string, fn func(*models.Driver, *models.Trip) error) (models.Driver, models.Trip, error)
}

type Matcher interface {
	ReserveFor(t models.Trip) (models.Driver, models.Trip, bool, error)
}

type Fares interface {
	Distance(distanceKm float64) float64
	Estimate(class models.CarClass, distanceKm float64) float64
}

type Deps struct {
	Store   Store
	Matcher Matcher
	Fares   Fares
	Archive storage.TripArchive
	Events  events.Publisher
	Logger  *slog.Logger
}

type Service struct {
	store   Store
	matcher Matcher
	fares   Fares
	archive storage.TripArchive
	events  events.Publisher
	logger  *slog.Logger
	newID   func() string
}

func NewService(d Deps) *Service {
	s := &Service{
		store:   d.Store,
		matcher: d.Matcher,
		fares:   d.Fares,
		archive: d.Archive,
		events:  d.Events,
		logger:  d.Logger,
		newID:   uuid.NewString,
	}
	if s.events == nil {
		s.events = events.Discard{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// errDriverAssigned is returned by a trip-only update that finds a driver was
// assigned after the trip was read; the caller re-resolves once.
var errDriverAssigned = errors.New("driver assigned concurrently")

type RequestCommand struct {
	RiderID     string
	Pickup      models.Place
	Drop        models.Place
	CarClass    models.CarClass
	PaymentMode models.PaymentMode
	// DistanceKm <= 0 means unknown.
	DistanceKm float64
}

type RequestResult struct {
	Trip   models.Trip
	Driver *models.Driver
}

type AcceptCommand struct {
	TripID   string
	DriverID string
}

type StartCommand struct {
	TripID   string
	DriverID string
}

type EndCommand struct {
	TripID   string
	DriverID string
	// FinalFare overrides the estimate when set and positive.
	FinalFare *float64
}

type CancelCommand struct {
	TripID  string
	ActorID string
}

func (s *Service) RequestTrip(ctx context.Context, cmd RequestCommand) (RequestResult, error) {
	if _, err := s.store.GetRider(cmd.RiderID); err != nil {
		return RequestResult{}, err
	}

	now := time.Now()
	km := s.fares.Distance(cmd.DistanceKm)
	t := models.Trip{
		ID:            s.newID(),
		RiderID:       cmd.RiderID,
		Status:        models.StatusNone,
		Pickup:        cmd.Pickup,
		Drop:          cmd.Drop,
		CarClass:      cmd.CarClass,
		PaymentMode:   cmd.PaymentMode,
		DistanceKm:    km,
		EstimatedFare: s.fares.Estimate(cmd.CarClass, km),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	d, trip, ok, err := s.matcher.ReserveFor(t)
	if err != nil {
		return RequestResult{}, fmt.Errorf("reserve driver for trip %s: %w", t.ID, err)
	}
	res := RequestResult{Trip: trip}
	if ok {
		res.Driver = &d
	} else {
		t.Status = models.StatusSearching
		if err := s.store.InsertTrip(t); err != nil {
			return RequestResult{}, err
		}
		res.Trip = t
	}
	s.committed(ctx, models.StatusNone, res.Trip, cmd.RiderID)
	return res, nil
}

// AcceptTrip lets an online, available driver take a trip that is still searching.
func (s *Service) AcceptTrip(ctx context.Context, cmd AcceptCommand) (models.Trip, error) {
	_, t, err := s.store.UpdateDriverTrip(cmd.DriverID, cmd.TripID, func(d *models.Driver, t *models.Trip) error {
		if t.Status != models.StatusSearching || !models.CanTransition(t.Status, models.StatusAssigned) {
			return fmt.Errorf("accept trip in %s: %w", t.Status, models.ErrInvalidState)
		}
		if !d.Online {
			return models.ErrDriverOffline
		}
		if d.Availability != models.AvailAvailable {
			return fmt.Errorf("driver is %s: %w", d.Availability, models.ErrInvalidState)
		}
		now := time.Now()
		d.Availability = models.AvailReserved
		d.CurrentTripID = t.ID
		d.UpdatedAt = now
		t.DriverID = d.ID
		t.Status = models.StatusAssigned
		t.AssignedAt = &now
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Trip{}, err
	}
	s.committed(ctx, models.StatusSearching, t, cmd.DriverID)
	return t, nil
}

func (s *Service) StartTrip(ctx context.Context, cmd StartCommand) (models.Trip, error) {
	return s.driverStep(ctx, cmd.TripID, cmd.DriverID, models.StatusAssigned, models.StatusOngoing,
		func(d *models.Driver, t *models.Trip, now time.Time) {
			d.Availability = models.AvailOnTrip
			d.UpdatedAt = now
			t.StartedAt = &now
		})
}

func (s *Service) EndTrip(ctx context.Context, cmd EndCommand) (models.Trip, error) {
	return s.driverStep(ctx, cmd.TripID, cmd.DriverID, models.StatusOngoing, models.StatusCompleted,
		func(d *models.Driver, t *models.Trip, now time.Time) {
			fare := t.EstimatedFare
			if cmd.FinalFare != nil && *cmd.FinalFare > 0 {
				fare = *cmd.FinalFare
			}
			t.FinalFare = &fare
			t.CompletedAt = &now
			d.Release(now)
		})
}

// driverStep runs a transition that only the trip's assigned driver may make.
func (s *Service) driverStep(ctx context.Context, tripID, driverID string, from, to models.TripStatus, apply func(*models.Driver, *models.Trip, time.Time)) (models.Trip, error) {
	cur, err := s.store.GetTrip(tripID)
	if err != nil {
		return models.Trip{}, err
	}
	// the driver reference never changes once set, so this check holds without a lock
	if cur.DriverID != "" && cur.DriverID != driverID {
		return models.Trip{}, models.ErrForbidden
	}

	_, t, err := s.store.UpdateDriverTrip(driverID, tripID, func(d *models.Driver, t *models.Trip) error {
		if t.DriverID != d.ID {
			if t.DriverID == "" {
				return fmt.Errorf("%s trip has no driver: %w", t.Status, models.ErrInvalidState)
			}
			return models.ErrForbidden
		}
		if t.Status != from || !models.CanTransition(t.Status, to) {
			return fmt.Errorf("%s -> %s: %w", t.Status, to, models.ErrInvalidState)
		}
		now := time.Now()
		apply(d, t, now)
		t.Status = to
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Trip{}, err
	}
	s.committed(ctx, from, t, driverID)
	return t, nil
}

// CancelTrip cancels a searching or assigned trip on behalf of its rider or
// its assigned driver, releasing the driver if one was reserved.
func (s *Service) CancelTrip(ctx context.Context, cmd CancelCommand) (models.Trip, error) {
	for attempt := 0; ; attempt++ {
		cur, err := s.store.GetTrip(cmd.TripID)
		if err != nil {
			return models.Trip{}, err
		}
		if !canCancel(cur, cmd.ActorID) {
			return models.Trip{}, models.ErrForbidden
		}
		if !models.CanTransition(cur.Status, models.StatusCancelled) {
			return models.Trip{}, fmt.Errorf("cancel trip in %s: %w", cur.Status, models.ErrInvalidState)
		}

		var t models.Trip
		if cur.DriverID == "" {
			t, err = s.store.UpdateTrip(cmd.TripID, func(t *models.Trip) error {
				if t.DriverID != "" {
					return errDriverAssigned
				}
				return cancel(t, cmd.ActorID, time.Now())
			})
			if errors.Is(err, errDriverAssigned) && attempt == 0 {
				continue
			}
		} else {
			_, t, err = s.store.UpdateDriverTrip(cur.DriverID, cmd.TripID, func(d *models.Driver, t *models.Trip) error {
				now := time.Now()
				if err := cancel(t, cmd.ActorID, now); err != nil {
					return err
				}
				if d.CurrentTripID == t.ID {
					d.Release(now)
				}
				return nil
			})
		}
		if err != nil {
			return models.Trip{}, err
		}
		s.committed(ctx, cur.Status, t, cmd.ActorID)
		return t, nil
	}
}

func canCancel(t models.Trip, actorID string) bool {
	if actorID == "" {
		return false
	}
	return actorID == t.RiderID || (t.DriverID != "" && actorID == t.DriverID)
}

func cancel(t *models.Trip, actorID string, now time.Time) error {
	if !canCancel(*t, actorID) {
		return models.ErrForbidden
	}
	if !models.CanTransition(t.Status, models.StatusCancelled) {
		return fmt.Errorf("cancel trip in %s: %w", t.Status, models.ErrInvalidState)
	}
	t.Status = models.StatusCancelled
	t.CancelledAt = &now
	t.CancelledBy = actorID
	t.UpdatedAt = now
	return nil
}

func (s *Service) Get(_ context.Context, tripID string) (models.Trip, error) {
	return s.store.GetTrip(tripID)
}

// committed runs the side effects of a transition after the store commit:
// metrics, log line, archive write and event publish.
func (s *Service) committed(ctx context.Context, from models.TripStatus, t models.Trip, actorID string) {
	log := logging.FromContext(ctx, s.logger)
	observability.TripTransitions.WithLabelValues(string(t.Status)).Inc()
	log.Info("trip transition",
		"trip_id", t.ID,
		"rider_id", t.RiderID,
		"driver_id", t.DriverID,
		"from", from,
		"status", t.Status,
		"actor_id", actorID,
	)

	if s.archive != nil {
		if err := s.archive.SaveTrip(ctx, t); err != nil {
			observability.ArchiveErrors.Inc()
			log.Error("archive trip failed", "trip_id", t.ID, "error", err)
		}
	}

	fare := t.EstimatedFare
	if t.FinalFare != nil {
		fare = *t.FinalFare
	}
	ev := models.TripEvent{
		TripID:     t.ID,
		RiderID:    t.RiderID,
		DriverID:   t.DriverID,
		FromStatus: from,
		ToStatus:   t.Status,
		ActorID:    actorID,
		Fare:       fare,
		At:         t.UpdatedAt,
	}
	if err := s.events.PublishTrip(ctx, ev); err != nil {
		observability.PublishErrors.WithLabelValues("trips").Inc()
		log.Error("publish trip event failed", "trip_id", t.ID, "error", err)
	}
}
