package consumer

import (
	"context"
	"testing"
	"time"

	"safeindustech-ingest/internal/config"
	"safeindustech-ingest/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	return mr, client
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.MQTT.QoS = 1
	cfg.Ingest.Topic = "iot_safeindustech/sensors/#"
	cfg.Ingest.Threshold = 70
	cfg.Ingest.Cache.LatestKeyPrefix = "safeindustech:datastream:"
	cfg.Ingest.Cache.LatestSuffix = ":latest"
	cfg.Ingest.Cache.LatestTTL = 300
	cfg.Ingest.Cache.ZoneKeyPrefix = "safeindustech:datastream:"
	cfg.Ingest.Cache.ZoneSuffix = ":zone"
	cfg.Ingest.Cache.ZoneTTL = 300
	cfg.Sweep.DatastreamID = "11111111-1111-1111-1111-111111111111"
	cfg.Sweep.Interval = 10
	return cfg
}

func TestLatestReading_RoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	cm := NewCacheManager(newTestConfig(), client, zap.NewNop())
	ctx := context.Background()

	datastreamID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	reading := &models.SensorReading{
		DatastreamID: datastreamID,
		Value:        21.7,
		Unit:         "°C",
		ObservedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, cm.SetLatestReading(ctx, reading))

	// 键格式与TTL
	key := "safeindustech:datastream:" + datastreamID.String() + ":latest"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 300*time.Second, mr.TTL(key))

	got, err := cm.GetLatestReading(ctx, datastreamID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, reading.Value, got.Value)
	assert.Equal(t, reading.Unit, got.Unit)
	assert.True(t, reading.ObservedAt.Equal(got.ObservedAt))
}

func TestLatestReading_StaleWriteIgnored(t *testing.T) {
	_, client := setupTestRedis(t)
	cm := NewCacheManager(newTestConfig(), client, zap.NewNop())
	ctx := context.Background()

	datastreamID := uuid.New()
	newer := &models.SensorReading{
		DatastreamID: datastreamID,
		Value:        85,
		Unit:         "°C",
		ObservedAt:   time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC),
	}
	older := &models.SensorReading{
		DatastreamID: datastreamID,
		Value:        60,
		Unit:         "°C",
		ObservedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, cm.SetLatestReading(ctx, newer))
	// 迟到的旧读数不覆盖缓存
	require.NoError(t, cm.SetLatestReading(ctx, older))

	got, err := cm.GetLatestReading(ctx, datastreamID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 85.0, got.Value)
	assert.True(t, newer.ObservedAt.Equal(got.ObservedAt))
}

func TestLatestReading_EqualTimestampOverwrites(t *testing.T) {
	_, client := setupTestRedis(t)
	cm := NewCacheManager(newTestConfig(), client, zap.NewNop())
	ctx := context.Background()

	datastreamID := uuid.New()
	observedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &models.SensorReading{DatastreamID: datastreamID, Value: 60, Unit: "°C", ObservedAt: observedAt}
	redelivered := &models.SensorReading{DatastreamID: datastreamID, Value: 85, Unit: "°C", ObservedAt: observedAt}

	require.NoError(t, cm.SetLatestReading(ctx, first))
	require.NoError(t, cm.SetLatestReading(ctx, redelivered))

	got, err := cm.GetLatestReading(ctx, datastreamID)
	require.NoError(t, err)
	assert.Equal(t, 85.0, got.Value)
}

func TestLatestReading_CacheMiss(t *testing.T) {
	_, client := setupTestRedis(t)
	cm := NewCacheManager(newTestConfig(), client, zap.NewNop())

	got, err := cm.GetLatestReading(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestZoneBinding_RoundTrip(t *testing.T) {
	mr, client := setupTestRedis(t)
	cm := NewCacheManager(newTestConfig(), client, zap.NewNop())
	ctx := context.Background()

	datastreamID := uuid.New()
	ref := &models.ZoneRef{
		ID:   uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Name: "Zone Z1",
	}

	require.NoError(t, cm.SetZoneBinding(ctx, datastreamID, ref))

	key := "safeindustech:datastream:" + datastreamID.String() + ":zone"
	assert.True(t, mr.Exists(key))

	got, err := cm.GetZoneBinding(ctx, datastreamID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ref.ID, got.ID)
	assert.Equal(t, "Zone Z1", got.Name)
}

func TestZoneBinding_CacheMiss(t *testing.T) {
	_, client := setupTestRedis(t)
	cm := NewCacheManager(newTestConfig(), client, zap.NewNop())

	got, err := cm.GetZoneBinding(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestZoneBinding_Expiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	cfg := newTestConfig()
	cfg.Ingest.Cache.ZoneTTL = 60
	cm := NewCacheManager(cfg, client, zap.NewNop())
	ctx := context.Background()

	datastreamID := uuid.New()
	require.NoError(t, cm.SetZoneBinding(ctx, datastreamID, &models.ZoneRef{ID: uuid.New(), Name: "Z"}))

	mr.FastForward(61 * time.Second)

	got, err := cm.GetZoneBinding(ctx, datastreamID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
