// Package accounts handles rider and driver login by phone number and driver
// online/location status updates.
package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-hailing/internal/events"
	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/models"
	"github.com/example/ride-hailing/internal/observability"
)

type Store interface {
	FindOrCreateRider(phone string, build func() models.Rider) (models.Rider, bool, error)
	FindOrCreateDriver(phone string, build func() models.Driver) (models.Driver, bool, error)
	UpdateRider(id string, fn func(*models.Rider) error) (models.Rider, error)
	UpdateDriver(id string, fn func(*models.Driver) error) (models.Driver, error)
}

type Deps struct {
	Store  Store
	Geo    geo.Geo
	Events events.Publisher
	Logger *slog.Logger
}

type Service struct {
	store  Store
	geo    geo.Geo
	events events.Publisher
	logger *slog.Logger
	newID  func() string
}

func NewService(d Deps) *Service {
	s := &Service{store: d.Store, geo: d.Geo, events: d.Events, logger: d.Logger, newID: uuid.NewString}
	if s.events == nil {
		s.events = events.Discard{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

type RiderLogin struct {
	Phone string
	Name  string
}

type DriverLogin struct {
	Phone    string
	Name     string
	CarClass models.CarClass
	Vehicle  models.Vehicle
}

type StatusUpdate struct {
	DriverID string
	Online   bool
	// Location is left unchanged when nil.
	Location *models.Coord
}

// LoginRider returns the rider registered under the phone number, creating it
// on first login. A differing non-empty name replaces the stored one.
func (s *Service) LoginRider(ctx context.Context, in RiderLogin) (models.Rider, bool, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return models.Rider{}, false, fmt.Errorf("phone is required: %w", models.ErrValidation)
	}
	r, created, err := s.store.FindOrCreateRider(phone, func() models.Rider {
		return models.Rider{ID: s.newID(), Name: in.Name, CreatedAt: time.Now()}
	})
	if err != nil {
		return models.Rider{}, false, err
	}
	if !created && in.Name != "" && in.Name != r.Name {
		r, err = s.store.UpdateRider(r.ID, func(r *models.Rider) error {
			r.Name = in.Name
			return nil
		})
		if err != nil {
			return models.Rider{}, false, err
		}
	}
	if created {
		logging.FromContext(ctx, s.logger).Info("rider registered", "rider_id", r.ID)
	}
	return r, created, nil
}

// LoginDriver is the driver counterpart of LoginRider. The car class is fixed
// at registration; later logins do not change it.
func (s *Service) LoginDriver(ctx context.Context, in DriverLogin) (models.Driver, bool, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return models.Driver{}, false, fmt.Errorf("phone is required: %w", models.ErrValidation)
	}
	if !in.CarClass.Valid() {
		return models.Driver{}, false, fmt.Errorf("car class %q: %w", in.CarClass, models.ErrValidation)
	}
	d, created, err := s.store.FindOrCreateDriver(phone, func() models.Driver {
		now := time.Now()
		return models.Driver{
			ID:           s.newID(),
			Name:         in.Name,
			CarClass:     in.CarClass,
			Vehicle:      in.Vehicle,
			Availability: models.AvailOffline,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	})
	if err != nil {
		return models.Driver{}, false, err
	}
	if !created && in.Name != "" && in.Name != d.Name {
		d, err = s.store.UpdateDriver(d.ID, func(d *models.Driver) error {
			d.Name = in.Name
			d.UpdatedAt = time.Now()
			return nil
		})
		if err != nil {
			return models.Driver{}, false, err
		}
	}
	if created {
		logging.FromContext(ctx, s.logger).Info("driver registered", "driver_id", d.ID, "car_class", d.CarClass)
	}
	return d, created, nil
}

// UpdateDriverStatus sets the driver's online flag and location. Going online
// makes an offline driver available and going offline takes an available
// driver out of matching; a reserved or on-trip driver keeps its trip.
func (s *Service) UpdateDriverStatus(ctx context.Context, in StatusUpdate) (models.Driver, error) {
	var wasOnline bool
	d, err := s.store.UpdateDriver(in.DriverID, func(d *models.Driver) error {
		wasOnline = d.Online
		d.Online = in.Online
		if in.Location != nil {
			loc := *in.Location
			d.Location = &loc
		}
		switch {
		case in.Online && d.Availability == models.AvailOffline:
			d.Availability = models.AvailAvailable
		case !in.Online && d.Availability == models.AvailAvailable:
			d.Availability = models.AvailOffline
		}
		// geo writes are ordered by this timestamp, so it must advance per driver
		now := time.Now()
		if !now.After(d.UpdatedAt) {
			now = d.UpdatedAt.Add(time.Nanosecond)
		}
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Driver{}, err
	}

	switch {
	case d.Online && !wasOnline:
		observability.DriversOnline.Inc()
	case !d.Online && wasOnline:
		observability.DriversOnline.Dec()
	}
	logging.FromContext(ctx, s.logger).Info("driver status", "driver_id", d.ID, "online", d.Online, "availability", d.Availability)
	s.mirrorLocation(ctx, d)
	return d, nil
}

func (s *Service) mirrorLocation(ctx context.Context, d models.Driver) {
	if d.Location == nil {
		return
	}
	log := logging.FromContext(ctx, s.logger)
	loc := models.DriverLocation{DriverID: d.ID, CarClass: d.CarClass, Loc: *d.Location, Online: d.Online, Updated: d.UpdatedAt}
	if s.geo != nil {
		var err error
		if d.Online {
			err = s.geo.Upsert(ctx, loc)
		} else {
			err = s.geo.Remove(ctx, d.ID, loc.Updated)
		}
		if err != nil {
			log.Error("geo update failed", "driver_id", d.ID, "error", err)
		}
	}
	if err := s.events.PublishLocation(ctx, loc); err != nil {
		observability.PublishErrors.WithLabelValues("locations").Inc()
		log.Error("publish location failed", "driver_id", d.ID, "error", err)
	}
}
