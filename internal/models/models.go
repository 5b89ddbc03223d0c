package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type CarClass string

const (
	CarMini  CarClass = "mini"
	CarSedan CarClass = "sedan"
	CarSUV   CarClass = "suv"
)

func (c CarClass) Valid() bool {
	switch c {
	case CarMini, CarSedan, CarSUV:
		return true
	}
	return false
}

type PaymentMode string

const (
	PayCash   PaymentMode = "cash"
	PayCard   PaymentMode = "card"
	PayWallet PaymentMode = "wallet"
)

func (p PaymentMode) Valid() bool {
	switch p {
	case PayCash, PayCard, PayWallet:
		return true
	}
	return false
}

// Availability is owned by the matcher and the trip lifecycle; status updates
// from the driver only toggle Online.
type Availability string

const (
	AvailOffline   Availability = "offline"
	AvailAvailable Availability = "available"
	AvailReserved  Availability = "reserved"
	AvailOnTrip    Availability = "on_trip"
)

type Rider struct {
	ID        string    `json:"id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Vehicle struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Plate string `json:"plate,omitempty"`
	Color string `json:"color,omitempty"`
}

type Driver struct {
	ID            string       `json:"id"`
	Phone         string       `json:"phone"`
	Name          string       `json:"name"`
	CarClass      CarClass     `json:"car_class"`
	Vehicle       Vehicle      `json:"vehicle"`
	Online        bool         `json:"online"`
	Location      *Coord       `json:"location,omitempty"`
	Availability  Availability `json:"availability"`
	CurrentTripID string       `json:"current_trip_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Eligible reports whether the driver can be matched to a request for class.
func (d Driver) Eligible(class CarClass) bool {
	return d.Online && d.Availability == AvailAvailable && d.CarClass == class
}

// Release frees the driver from its current trip. A driver that went offline
// while holding a trip lands in offline instead of available.
func (d *Driver) Release(now time.Time) {
	if d.Online {
		d.Availability = AvailAvailable
	} else {
		d.Availability = AvailOffline
	}
	d.CurrentTripID = ""
	d.UpdatedAt = now
}

type Place struct {
	Address string `json:"address"`
	Coord   *Coord `json:"coord,omitempty"`
}

type Trip struct {
	ID            string      `json:"id"`
	RiderID       string      `json:"rider_id"`
	DriverID      string      `json:"driver_id,omitempty"`
	Status        TripStatus  `json:"status"`
	Pickup        Place       `json:"pickup"`
	Drop          Place       `json:"drop"`
	CarClass      CarClass    `json:"car_class"`
	PaymentMode   PaymentMode `json:"payment_mode"`
	DistanceKm    float64     `json:"distance_km"`
	EstimatedFare float64     `json:"estimated_fare"`
	FinalFare     *float64    `json:"final_fare,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	AssignedAt    *time.Time  `json:"assigned_at,omitempty"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	CancelledAt   *time.Time  `json:"cancelled_at,omitempty"`
	CancelledBy   string      `json:"cancelled_by,omitempty"`
}

// Clone returns a deep copy so callers never share pointer fields with the store.
func (t Trip) Clone() Trip {
	c := t
	c.Pickup.Coord = cloneCoord(t.Pickup.Coord)
	c.Drop.Coord = cloneCoord(t.Drop.Coord)
	if t.FinalFare != nil {
		v := *t.FinalFare
		c.FinalFare = &v
	}
	c.AssignedAt = cloneTime(t.AssignedAt)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.CancelledAt = cloneTime(t.CancelledAt)
	return c
}

func (d Driver) Clone() Driver {
	c := d
	c.Location = cloneCoord(d.Location)
	return c
}

func cloneCoord(c *Coord) *Coord {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// DriverLocation is the location record mirrored into the geo index and the
// driver-location stream.
type DriverLocation struct {
	DriverID string    `json:"driver_id"`
	CarClass CarClass  `json:"car_class"`
	Loc      Coord     `json:"loc"`
	Online   bool      `json:"online"`
	Updated  time.Time `json:"updated"`
}

// TripEvent describes one committed lifecycle transition.
type TripEvent struct {
	TripID     string     `json:"trip_id"`
	RiderID    string     `json:"rider_id"`
	DriverID   string     `json:"driver_id,omitempty"`
	FromStatus TripStatus `json:"from_status"`
	ToStatus   TripStatus `json:"to_status"`
	ActorID    string     `json:"actor_id,omitempty"`
	Fare       float64    `json:"fare"`
	At         time.Time  `json:"at"`
}
