package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-hailing/internal/geo"
	"github.com/example/ride-hailing/internal/models"
)

// fakeSink implements LocationSink for tests
type fakeSink struct {
	failUpsert  int // number of times to fail Upsert before succeeding
	failRemove  int
	upsertCalls int
	removeCalls int
	removedAt   time.Time
}

func (f *fakeSink) Upsert(ctx context.Context, loc models.DriverLocation) error {
	f.upsertCalls++
	if f.upsertCalls <= f.failUpsert {
		return errors.New("geo fail")
	}
	return nil
}

func (f *fakeSink) Remove(ctx context.Context, driverID string, at time.Time) error {
	f.removeCalls++
	f.removedAt = at
	if f.removeCalls <= f.failRemove {
		return errors.New("remove fail")
	}
	return nil
}

func TestApplyWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeSink{failUpsert: 2}
	loc := models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 1, Lon: 2}, Online: true}
	start := time.Now()
	if err := applyWithRetry(context.Background(), f, loc, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.upsertCalls != 3 || f.removeCalls != 0 {
		t.Fatalf("expected 3 upserts, got upsert=%d remove=%d", f.upsertCalls, f.removeCalls)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected exponential backoff between attempts")
	}
}

func TestApplyWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeSink{failUpsert: 5}
	loc := models.DriverLocation{DriverID: "d1", Online: true}
	if err := applyWithRetry(context.Background(), f, loc, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.upsertCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.upsertCalls)
	}
}

func TestApplyWithRetry_OfflineRemoves(t *testing.T) {
	f := &fakeSink{failRemove: 1}
	loc := models.DriverLocation{DriverID: "d1", Online: false}
	if err := applyWithRetry(context.Background(), f, loc, 3, time.Millisecond); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.removeCalls != 2 || f.upsertCalls != 0 {
		t.Fatalf("unexpected calls upsert=%d remove=%d", f.upsertCalls, f.removeCalls)
	}
}

func TestApplyWithRetry_StopsOnCancel(t *testing.T) {
	f := &fakeSink{failUpsert: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := applyWithRetry(ctx, f, models.DriverLocation{DriverID: "d1", Online: true}, 5, time.Second); err == nil {
		t.Fatal("expected error")
	}
	if f.upsertCalls != 1 {
		t.Fatalf("expected a single attempt after cancel, got %d", f.upsertCalls)
	}
}

func TestDecodeLocation(t *testing.T) {
	loc, err := decodeLocation([]byte(`{"driver_id":"d1","car_class":"suv","loc":{"lat":1,"lon":2},"online":true}`))
	if err != nil || loc.DriverID != "d1" || loc.CarClass != models.CarSUV || loc.Loc.Lon != 2 {
		t.Fatalf("unexpected decode %+v err=%v", loc, err)
	}
	if _, err := decodeLocation([]byte(`{"online":true}`)); !errors.Is(err, errMissingDriverID) {
		t.Fatalf("expected errMissingDriverID, got %v", err)
	}
	if _, err := decodeLocation([]byte(`nope`)); err == nil {
		t.Fatal("expected json error")
	}
}

func TestApplyWithRetry_RemovePassesRecordTime(t *testing.T) {
	f := &fakeSink{}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := applyWithRetry(context.Background(), f, models.DriverLocation{DriverID: "d1", Updated: at}, 1, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if !f.removedAt.Equal(at) {
		t.Fatalf("expected remove at %v, got %v", at, f.removedAt)
	}
}

func TestApplyWithRetry_ReplayedOnlineAfterOffline(t *testing.T) {
	ctx := context.Background()
	idx := geo.NewIndex()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	online := models.DriverLocation{DriverID: "d1", Loc: models.Coord{Lat: 12.97, Lon: 77.59}, Online: true, Updated: t0}
	offline := online
	offline.Online = false
	offline.Updated = t0.Add(time.Second)

	for _, loc := range []models.DriverLocation{online, offline, online} {
		if err := applyWithRetry(ctx, idx, loc, 1, time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	if near, _ := idx.Nearby(ctx, 12.97, 77.59, 10); len(near) != 0 {
		t.Fatalf("replayed online record re-listed the driver: %+v", near)
	}
}
