package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/models"
)

// TripArchive receives a copy of every committed trip state. It is written
// after the in-memory commit and is never read back by the lifecycle.
type TripArchive interface {
	SaveTrip(ctx context.Context, t models.Trip) error
}

type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresArchive{db: db}, nil
}

const upsertTripSQL = `INSERT INTO trips(
	id, rider_id, driver_id, status, car_class, payment_mode,
	pickup_address, pickup_lat, pickup_lon, drop_address, drop_lat, drop_lon,
	distance_km, estimated_fare, final_fare, cancelled_by, created_at, updated_at)
VALUES($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NULLIF($16,''),$17,$18)
ON CONFLICT (id) DO UPDATE SET
	driver_id = EXCLUDED.driver_id,
	status = EXCLUDED.status,
	final_fare = EXCLUDED.final_fare,
	cancelled_by = EXCLUDED.cancelled_by,
	updated_at = EXCLUDED.updated_at
WHERE trips.updated_at <= EXCLUDED.updated_at`

func (p *PostgresArchive) SaveTrip(ctx context.Context, t models.Trip) error {
	pickupLat, pickupLon := coordArgs(t.Pickup.Coord)
	dropLat, dropLon := coordArgs(t.Drop.Coord)
	var finalFare sql.NullFloat64
	if t.FinalFare != nil {
		finalFare = sql.NullFloat64{Float64: *t.FinalFare, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, upsertTripSQL,
		t.ID, t.RiderID, t.DriverID, string(t.Status), string(t.CarClass), string(t.PaymentMode),
		t.Pickup.Address, pickupLat, pickupLon, t.Drop.Address, dropLat, dropLon,
		t.DistanceKm, t.EstimatedFare, finalFare, t.CancelledBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (p *PostgresArchive) Close() error { return p.db.Close() }

func coordArgs(c *models.Coord) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lon, Valid: true}
}
