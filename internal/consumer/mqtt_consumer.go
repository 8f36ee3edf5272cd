package consumer

import (
	"context"
	"errors"
	"fmt"

	"safeindustech-ingest/internal/config"
	"safeindustech-ingest/internal/decoder"
	"safeindustech-ingest/internal/evaluator"
	"safeindustech-ingest/internal/models"
	"safeindustech-ingest/internal/reconciler"
	"safeindustech-ingest/internal/repository"

	mqttcommon "safeindustech-ingest/pkg/mqtt"

	"go.uber.org/zap"
)

// MQTTConsumer 传感器消息消费者
// 每条消息走 解码→入库→归属解析→阈值评估→区域对账 管道；
// 单条消息的任何失败只丢弃该消息，不中断订阅循环
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqttcommon.Client
	cache      *CacheManager
	obsRepo    *repository.ObservationRepository
	zoneRepo   *repository.ZoneRepository
	reconciler *reconciler.Reconciler
	logger     *zap.Logger
	stats      *IngestStats
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	cache *CacheManager,
	obsRepo *repository.ObservationRepository,
	zoneRepo *repository.ZoneRepository,
	rec *reconciler.Reconciler,
	logger *zap.Logger,
	stats *IngestStats,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		cache:      cache,
		obsRepo:    obsRepo,
		zoneRepo:   zoneRepo,
		reconciler: rec,
		logger:     logger,
		stats:      stats,
	}
}

// Start 启动消费者（订阅后阻塞到上下文取消）
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.Ingest.Topic, c.config.MQTT.QoS, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.config.Ingest.Topic),
		zap.Float64("threshold", c.config.Ingest.Threshold),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
// 连接已断开时跳过取消订阅（对死连接发Unsubscribe只会报错）
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if c.mqttClient.IsConnected() {
		if err := c.mqttClient.Unsubscribe(c.config.Ingest.Topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// HandleMessage 处理单条传感器消息
// 解码失败和区域未绑定在这里记录后吞掉（重试无意义）；
// 存储/对账失败返回错误由上层记录，该条消息随之丢弃
func (c *MQTTConsumer) HandleMessage(topic string, payload []byte) error {
	c.stats.Received.Add(1)
	ctx := context.Background()

	// 1. 解码
	reading, err := decoder.Decode(payload)
	if err != nil {
		c.stats.DecodeFailed.Add(1)
		c.logger.Warn("Dropping malformed sensor message",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return nil
	}

	// 2. 入库（无条件，先于报警逻辑，保证历史数据不丢失）
	obsID, err := c.obsRepo.Insert(ctx, reading)
	if err != nil {
		c.stats.PersistFailed.Add(1)
		return fmt.Errorf("failed to persist observation: %w", err)
	}
	c.stats.Persisted.Add(1)

	// 最新读数缓存（尽力而为，失败不影响管道）
	if err := c.cache.SetLatestReading(ctx, reading); err != nil {
		c.logger.Warn("Failed to cache latest reading", zap.Error(err))
	}

	// 3. 解析区域归属（缓存优先，未命中回DB）
	zone, err := c.resolveZone(ctx, reading)
	if err != nil {
		return err
	}
	if zone == nil {
		c.stats.ResolutionMiss.Add(1)
		c.logger.Info("No zone bound to datastream, reading persisted only",
			zap.String("datastream_id", reading.DatastreamID.String()),
			zap.String("observation_id", obsID.String()),
		)
		return nil
	}

	// 4. 阈值评估 + 5. 区域对账
	delta := evaluator.Evaluate(reading.Value, c.config.Ingest.Threshold)

	applied, err := c.reconciler.Apply(ctx, zone.ID, delta, reading.ObservedAt)
	if err != nil {
		c.stats.ReconcileFailed.Add(1)
		if errors.Is(err, repository.ErrZoneNotFound) {
			return fmt.Errorf("zone row missing during reconciliation: %w", err)
		}
		return fmt.Errorf("failed to reconcile zone state: %w", err)
	}

	if !applied {
		c.stats.ReconcileSkipped.Add(1)
		return nil
	}
	c.stats.Reconciled.Add(1)

	if delta.Kind == evaluator.SetAlert {
		c.logger.Warn("ALERT: temperature exceeds threshold",
			zap.String("zone_id", zone.ID.String()),
			zap.String("zone_name", zone.Name),
			zap.Float64("value", reading.Value),
			zap.Float64("threshold", c.config.Ingest.Threshold),
		)
	} else {
		c.logger.Debug("Zone state updated",
			zap.String("zone_name", zone.Name),
			zap.Float64("value", reading.Value),
		)
	}

	return nil
}

// resolveZone 解析数据流归属的区域（缓存→DB）
// 返回 (nil, nil) 表示数据流未绑定区域
func (c *MQTTConsumer) resolveZone(ctx context.Context, reading *models.SensorReading) (*models.ZoneRef, error) {
	zone, err := c.cache.GetZoneBinding(ctx, reading.DatastreamID)
	if err != nil {
		c.logger.Warn("Zone binding cache read failed", zap.Error(err))
	}
	if zone != nil {
		return zone, nil
	}

	zone, err = c.zoneRepo.ResolveZone(ctx, reading.DatastreamID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve zone: %w", err)
	}
	if zone == nil {
		return nil, nil
	}

	if err := c.cache.SetZoneBinding(ctx, reading.DatastreamID, zone); err != nil {
		c.logger.Warn("Failed to cache zone binding", zap.Error(err))
	}

	return zone, nil
}
