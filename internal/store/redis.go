package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"roadsense-edge/internal/observability"
	"roadsense-edge/internal/pipeline"
)

// Espejo local best-effort del último estado del device, para diagnóstico en
// el propio equipo. Sin Redis configurado todo es no-op; un error de escritura
// sólo incrementa el contador.

var ctx = context.Background()
var rdb *redis.Client

const ttl = 10 * time.Minute

// Init conecta al Redis local. addr vacío deja el espejo deshabilitado.
func Init(addr string, db int) error {
	if addr == "" {
		return nil
	}
	rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb = nil
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func Enabled() bool {
	return rdb != nil
}

func SaveStatusSafe(deviceID string, status pipeline.DeviceStatus) {
	setJSONSafe("edge:"+deviceID+":status", status)
}

func SaveFixSafe(deviceID string, gps pipeline.GPSPoint) {
	setJSONSafe("edge:"+deviceID+":fix", gps)
}

func IncrDetectionsSafe(deviceID string, n int) {
	if rdb == nil || n == 0 {
		return
	}
	key := "edge:" + deviceID + ":detections"
	if err := rdb.IncrBy(ctx, key, int64(n)).Err(); err != nil {
		observability.RedisSetErrors.Inc()
		return
	}
	_ = rdb.Expire(ctx, key, ttl).Err()
}

// GetStatus lee el último status espejado (tests y diagnóstico).
func GetStatus(deviceID string) (pipeline.DeviceStatus, bool) {
	var status pipeline.DeviceStatus
	if rdb == nil {
		return status, false
	}
	raw, err := rdb.Get(ctx, "edge:"+deviceID+":status").Result()
	if err != nil {
		return status, false
	}
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return status, false
	}
	return status, true
}

func GetDetectionCount(deviceID string) (int, bool) {
	if rdb == nil {
		return 0, false
	}
	n, err := rdb.Get(ctx, "edge:"+deviceID+":detections").Int()
	if err != nil {
		return 0, false
	}
	return n, true
}

func setJSONSafe(key string, value any) {
	if rdb == nil {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		observability.RedisSetErrors.Inc()
		return
	}
	if err := rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		observability.RedisSetErrors.Inc()
	}
}
