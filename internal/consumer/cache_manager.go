package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"safeindustech-ingest/internal/config"
	"safeindustech-ingest/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CacheManager Redis 缓存管理器
// 缓存两类数据：数据流最新读数（巡检路径优先读缓存，减少DB压力）、
// 数据流→区域绑定（绑定关系变化缓慢，短TTL缓存）
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// latestKey 构建最新读数缓存键
func (c *CacheManager) latestKey(datastreamID uuid.UUID) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Ingest.Cache.LatestKeyPrefix,
		datastreamID.String(),
		c.config.Ingest.Cache.LatestSuffix,
	)
}

// zoneKey 构建区域绑定缓存键
func (c *CacheManager) zoneKey(datastreamID uuid.UUID) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Ingest.Cache.ZoneKeyPrefix,
		datastreamID.String(),
		c.config.Ingest.Cache.ZoneSuffix,
	)
}

// SetLatestReading 写入数据流最新读数缓存（带TTL）
// 按 observed_at 门控：迟到的旧消息不覆盖缓存，保证巡检路径读到的缓存
// 与数据库按 phenomenon_time 取最新的结果一致（相同时间允许覆盖，和对账语义一致）
func (c *CacheManager) SetLatestReading(ctx context.Context, reading *models.SensorReading) error {
	existing, err := c.GetLatestReading(ctx, reading.DatastreamID)
	if err == nil && existing != nil && existing.ObservedAt.After(reading.ObservedAt) {
		return nil
	}

	jsonData, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	key := c.latestKey(reading.DatastreamID)
	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Ingest.Cache.LatestTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set latest reading cache: %w", err)
	}

	return nil
}

// GetLatestReading 读取数据流最新读数缓存
// 缓存未命中返回 (nil, nil)，调用方回退到数据库
func (c *CacheManager) GetLatestReading(ctx context.Context, datastreamID uuid.UUID) (*models.SensorReading, error) {
	val, err := c.redisClient.Get(ctx, c.latestKey(datastreamID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest reading cache: %w", err)
	}

	var reading models.SensorReading
	if err := json.Unmarshal([]byte(val), &reading); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached reading: %w", err)
	}

	return &reading, nil
}

// SetZoneBinding 写入数据流→区域绑定缓存（带TTL）
func (c *CacheManager) SetZoneBinding(ctx context.Context, datastreamID uuid.UUID, ref *models.ZoneRef) error {
	jsonData, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to marshal zone binding: %w", err)
	}

	key := c.zoneKey(datastreamID)
	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Ingest.Cache.ZoneTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set zone binding cache: %w", err)
	}

	c.logger.Debug("Cached zone binding",
		zap.String("datastream_id", datastreamID.String()),
		zap.String("zone_id", ref.ID.String()),
	)

	return nil
}

// GetZoneBinding 读取数据流→区域绑定缓存
// 缓存未命中返回 (nil, nil)，调用方回退到数据库
func (c *CacheManager) GetZoneBinding(ctx context.Context, datastreamID uuid.UUID) (*models.ZoneRef, error) {
	val, err := c.redisClient.Get(ctx, c.zoneKey(datastreamID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get zone binding cache: %w", err)
	}

	var ref models.ZoneRef
	if err := json.Unmarshal([]byte(val), &ref); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached zone binding: %w", err)
	}

	return &ref, nil
}
