package service

import (
	"context"
	"database/sql"
	"fmt"

	"safeindustech-ingest/internal/config"
	"safeindustech-ingest/internal/consumer"
	"safeindustech-ingest/internal/reconciler"
	"safeindustech-ingest/internal/repository"

	"safeindustech-ingest/pkg/database"
	mqttcommon "safeindustech-ingest/pkg/mqtt"
	rediscommon "safeindustech-ingest/pkg/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// IngestService 采集服务（整合各层）
// 进程级资源（数据库、Redis、MQTT连接）在这里获取，停机时统一释放
type IngestService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client

	stats      *consumer.IngestStats
	consumer   *consumer.MQTTConsumer
	sweep      *consumer.SweepRunner
	reconciler *reconciler.Reconciler
}

// NewIngestService 创建采集服务
func NewIngestService(cfg *config.Config, logger *zap.Logger) (*IngestService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		rediscommon.Close(redisClient)
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 4. 创建 Repository 层
	obsRepo := repository.NewObservationRepository(db, logger)
	zoneRepo := repository.NewZoneRepository(db, logger)

	// 5. 创建对账器（区域状态存储用PostgreSQL实现）
	rec := reconciler.NewReconciler(zoneRepo, logger)

	// 6. 创建 Consumer 层
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)
	stats := &consumer.IngestStats{}

	mqttConsumer := consumer.NewMQTTConsumer(
		cfg,
		mqttClient,
		cacheManager,
		obsRepo,
		zoneRepo,
		rec,
		logger,
		stats,
	)

	sweep, err := consumer.NewSweepRunner(cfg, cacheManager, obsRepo, zoneRepo, rec, logger)
	if err != nil {
		mqttClient.Disconnect()
		rediscommon.Close(redisClient)
		database.Close(db)
		return nil, fmt.Errorf("failed to create sweep runner: %w", err)
	}

	return &IngestService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		stats:      stats,
		consumer:   mqttConsumer,
		sweep:      sweep,
		reconciler: rec,
	}, nil
}

// Start 启动服务（阻塞到上下文取消）
func (s *IngestService) Start(ctx context.Context) error {
	s.logger.Info("Starting ingest service components")

	// 巡检在独立 goroutine 按自己的节奏运行
	go func() {
		if err := s.sweep.Start(ctx); err != nil {
			s.logger.Error("Sweep runner exited with error", zap.Error(err))
		}
	}()

	// MQTT消费者阻塞到上下文取消
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *IngestService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ingest service")

	// 先取消订阅，停止新消息进入
	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redis != nil {
		if err := rediscommon.Close(s.redis); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}

	s.logger.Info("Ingest service stopped", s.stats.Fields()...)
	return nil
}
