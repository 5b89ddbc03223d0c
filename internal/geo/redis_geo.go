package geo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-hailing/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands plus a metadata hash per
// driver. The hash keeps the timestamp of the last applied write, and outlives
// a Remove for tombstoneTTL so late writes can still be compared against it.
type RedisGeo struct {
	client *redis.Client
	key    string
}

const tombstoneTTL = time.Hour

// Write times are stored as zero-padded unix nanos and compared as strings,
// which keeps full precision inside Lua.
//
// KEYS: geo set, meta hash. ARGV: lon, lat, driver id, updated, car class, online.
var upsertScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[2], 'updated_ns') or ''
if ARGV[4] < prev then return 0 end
redis.call('GEOADD', KEYS[1], ARGV[1], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[2], 'car_class', ARGV[5], 'online', ARGV[6], 'updated_ns', ARGV[4])
redis.call('PERSIST', KEYS[2])
return 1
`)

// KEYS: geo set, meta hash. ARGV: driver id, removed at, ttl seconds.
var removeScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[2], 'updated_ns') or ''
if ARGV[2] < prev then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', KEYS[2], 'online', 'false', 'updated_ns', ARGV[2])
redis.call('EXPIRE', KEYS[2], ARGV[3])
return 1
`)

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

func (r *RedisGeo) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisGeo) Close() error { return r.client.Close() }

func (r *RedisGeo) Upsert(ctx context.Context, loc models.DriverLocation) error {
	if loc.Updated.IsZero() {
		loc.Updated = time.Now()
	}
	return upsertScript.Run(ctx, r.client, []string{r.key, metaKey(loc.DriverID)},
		loc.Loc.Lon, loc.Loc.Lat, loc.DriverID, stamp(loc.Updated),
		string(loc.CarClass), strconv.FormatBool(loc.Online),
	).Err()
}

func (r *RedisGeo) Remove(ctx context.Context, driverID string, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	return removeScript.Run(ctx, r.client, []string{r.key, metaKey(driverID)},
		driverID, stamp(at), int(tombstoneTTL.Seconds()),
	).Err()
}

// Nearby returns online drivers within SearchRadiusM, closest first.
func (r *RedisGeo) Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.DriverLocation, error) {
	return pageOnline(func(count int) ([]models.DriverLocation, error) {
		return r.radius(ctx, lat, lon, count)
	}, limit)
}

// radius runs one GEORADIUS query of up to count members (all when count <= 0)
// and joins each member with its metadata hash in a single pipeline.
func (r *RedisGeo) radius(ctx context.Context, lat, lon float64, count int) ([]models.DriverLocation, error) {
	q := &redis.GeoRadiusQuery{Radius: SearchRadiusM, Unit: "m", WithCoord: true, WithDist: true, Sort: "ASC"}
	if count > 0 {
		q.Count = count
	}
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, q).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}

	metas := make([]*redis.MapStringStringCmd, len(res))
	if _, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, g := range res {
			metas[i] = p.HGetAll(ctx, metaKey(g.Name))
		}
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]models.DriverLocation, 0, len(res))
	for i, g := range res {
		m := metas[i].Val()
		loc := models.DriverLocation{
			DriverID: g.Name,
			CarClass: models.CarClass(m["car_class"]),
			Loc:      models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			Online:   m["online"] == "true",
		}
		if ns, err := strconv.ParseInt(m["updated_ns"], 10, 64); err == nil {
			loc.Updated = time.Unix(0, ns)
		}
		out = append(out, loc)
	}
	return out, nil
}

// pageOnline fills a page of up to limit online drivers from fetch, doubling
// the fetch size while offline entries leave the page short and the radius
// still has members to give.
func pageOnline(fetch func(count int) ([]models.DriverLocation, error), limit int) ([]models.DriverLocation, error) {
	count := limit
	for {
		res, err := fetch(count)
		if err != nil {
			return nil, err
		}
		out := make([]models.DriverLocation, 0, len(res))
		for _, loc := range res {
			if !loc.Online {
				continue
			}
			out = append(out, loc)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if limit <= 0 || len(res) < count {
			return out, nil
		}
		count *= 2
	}
}

func metaKey(id string) string { return "driver:meta:" + id }

func stamp(t time.Time) string { return fmt.Sprintf("%019d", t.UnixNano()) }
