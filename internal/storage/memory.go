package storage

import (
	"fmt"
	"strings"
	"sync"

	"github.com/example/ride-hailing/internal/models"
)

// Store is the in-memory entity store for riders, drivers and trips.
//
// Lock order: phone index, driver row, trip row, commit gate, table map.
// Mutations work on copies and publish them under the commit gate (shared),
// so a snapshot taken with the gate held exclusively never sees a torn state.
type Store struct {
	gate sync.RWMutex

	riders  *table[models.Rider]
	drivers *table[models.Driver]
	trips   *table[models.Trip]

	phoneMu      sync.Mutex
	riderPhones  map[string]string
	driverPhones map[string]string
}

func NewMemoryStore() *Store {
	return &Store{
		riders:       newTable[models.Rider](nil),
		drivers:      newTable(models.Driver.Clone),
		trips:        newTable(models.Trip.Clone),
		riderPhones:  make(map[string]string),
		driverPhones: make(map[string]string),
	}
}

func normalizePhone(p string) string { return strings.TrimSpace(p) }

func (s *Store) GetRider(id string) (models.Rider, error) {
	return s.riders.get(id, models.ErrRiderNotFound)
}

func (s *Store) GetDriver(id string) (models.Driver, error) {
	return s.drivers.get(id, models.ErrDriverNotFound)
}

func (s *Store) GetTrip(id string) (models.Trip, error) {
	return s.trips.get(id, models.ErrTripNotFound)
}

func (s *Store) FindRiderByPhone(phone string) (models.Rider, bool) {
	s.phoneMu.Lock()
	id, ok := s.riderPhones[normalizePhone(phone)]
	s.phoneMu.Unlock()
	if !ok {
		return models.Rider{}, false
	}
	r, err := s.GetRider(id)
	return r, err == nil
}

func (s *Store) FindDriverByPhone(phone string) (models.Driver, bool) {
	s.phoneMu.Lock()
	id, ok := s.driverPhones[normalizePhone(phone)]
	s.phoneMu.Unlock()
	if !ok {
		return models.Driver{}, false
	}
	d, err := s.GetDriver(id)
	return d, err == nil
}

// FindOrCreateRider returns the rider registered under phone, creating it
// with build when absent. created reports which of the two happened.
func (s *Store) FindOrCreateRider(phone string, build func() models.Rider) (r models.Rider, created bool, err error) {
	phone = normalizePhone(phone)
	s.phoneMu.Lock()
	defer s.phoneMu.Unlock()
	if id, ok := s.riderPhones[phone]; ok {
		r, err = s.GetRider(id)
		return r, false, err
	}
	r = build()
	r.Phone = phone
	s.gate.RLock()
	err = s.riders.add(r.ID, r)
	s.gate.RUnlock()
	if err != nil {
		return models.Rider{}, false, fmt.Errorf("insert rider %s: %w", r.ID, err)
	}
	s.riderPhones[phone] = r.ID
	return r, true, nil
}

func (s *Store) FindOrCreateDriver(phone string, build func() models.Driver) (d models.Driver, created bool, err error) {
	phone = normalizePhone(phone)
	s.phoneMu.Lock()
	defer s.phoneMu.Unlock()
	if id, ok := s.driverPhones[phone]; ok {
		d, err = s.GetDriver(id)
		return d, false, err
	}
	d = build()
	d.Phone = phone
	s.gate.RLock()
	err = s.drivers.add(d.ID, d.Clone())
	s.gate.RUnlock()
	if err != nil {
		return models.Driver{}, false, fmt.Errorf("insert driver %s: %w", d.ID, err)
	}
	s.driverPhones[phone] = d.ID
	return d, true, nil
}

func (s *Store) InsertTrip(t models.Trip) error {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if err := s.trips.add(t.ID, t.Clone()); err != nil {
		return fmt.Errorf("insert trip %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) UpdateRider(id string, fn func(*models.Rider) error) (models.Rider, error) {
	return update(s, s.riders, id, models.ErrRiderNotFound, fn)
}

func (s *Store) UpdateDriver(id string, fn func(*models.Driver) error) (models.Driver, error) {
	return update(s, s.drivers, id, models.ErrDriverNotFound, fn)
}

func (s *Store) UpdateTrip(id string, fn func(*models.Trip) error) (models.Trip, error) {
	return update(s, s.trips, id, models.ErrTripNotFound, fn)
}

func update[T any](s *Store, tbl *table[T], id string, notFound error, fn func(*T) error) (T, error) {
	var zero T
	r, ok := tbl.row(id)
	if !ok {
		return zero, notFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v := tbl.clone(r.val)
	if err := fn(&v); err != nil {
		return zero, err
	}
	s.gate.RLock()
	r.val = v
	s.gate.RUnlock()
	return tbl.clone(v), nil
}

// UpdateDriverTrip mutates a driver and a trip as one step. Both rows stay
// locked (driver first) until the pair is committed or fn fails.
func (s *Store) UpdateDriverTrip(driverID, tripID string, fn func(*models.Driver, *models.Trip) error) (models.Driver, models.Trip, error) {
	tr, ok := s.trips.row(tripID)
	if !ok {
		return models.Driver{}, models.Trip{}, models.ErrTripNotFound
	}
	dr, ok := s.drivers.row(driverID)
	if !ok {
		return models.Driver{}, models.Trip{}, models.ErrDriverNotFound
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	tr.mu.Lock()
	defer tr.mu.Unlock()

	d, t := dr.val.Clone(), tr.val.Clone()
	if err := fn(&d, &t); err != nil {
		return models.Driver{}, models.Trip{}, err
	}
	s.gate.RLock()
	dr.val, tr.val = d, t
	s.gate.RUnlock()
	return d.Clone(), t.Clone(), nil
}

// InsertTripWithDriver mutates a driver and inserts a new trip as one step,
// e.g. reserving the driver while creating the trip it is reserved for.
func (s *Store) InsertTripWithDriver(driverID string, trip models.Trip, fn func(*models.Driver, *models.Trip) error) (models.Driver, models.Trip, error) {
	dr, ok := s.drivers.row(driverID)
	if !ok {
		return models.Driver{}, models.Trip{}, models.ErrDriverNotFound
	}
	dr.mu.Lock()
	defer dr.mu.Unlock()

	d, t := dr.val.Clone(), trip.Clone()
	if err := fn(&d, &t); err != nil {
		return models.Driver{}, models.Trip{}, err
	}
	s.gate.RLock()
	defer s.gate.RUnlock()
	if err := s.trips.add(t.ID, t); err != nil {
		return models.Driver{}, models.Trip{}, fmt.Errorf("insert trip %s: %w", t.ID, err)
	}
	dr.val = d
	return d.Clone(), t.Clone(), nil
}

// Drivers returns a consistent copy of every driver in registration order.
func (s *Store) Drivers() []models.Driver {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.drivers.values(nil)
}

// Trips returns a consistent copy of the trips accepted by keep, in creation order.
func (s *Store) Trips(keep func(models.Trip) bool) []models.Trip {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.trips.values(keep)
}
