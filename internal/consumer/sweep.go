package consumer

import (
	"context"
	"fmt"
	"time"

	"safeindustech-ingest/internal/config"
	"safeindustech-ingest/internal/evaluator"
	"safeindustech-ingest/internal/models"
	"safeindustech-ingest/internal/reconciler"
	"safeindustech-ingest/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SweepRunner 周期巡检（兜底路径）
// 定期重读指定数据流的最新观测记录，重跑评估+对账；
// 实时路径漏掉消息（如服务重启）时由巡检补齐区域状态。
// 存储层按传感器时间门控，和实时路径并发执行会收敛，不会来回抖动
type SweepRunner struct {
	config       *config.Config
	cache        *CacheManager
	obsRepo      *repository.ObservationRepository
	zoneRepo     *repository.ZoneRepository
	reconciler   *reconciler.Reconciler
	logger       *zap.Logger
	datastreamID uuid.UUID
}

// NewSweepRunner 创建巡检器
func NewSweepRunner(
	cfg *config.Config,
	cache *CacheManager,
	obsRepo *repository.ObservationRepository,
	zoneRepo *repository.ZoneRepository,
	rec *reconciler.Reconciler,
	logger *zap.Logger,
) (*SweepRunner, error) {
	datastreamID, err := uuid.Parse(cfg.Sweep.DatastreamID)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep datastream id %q: %w", cfg.Sweep.DatastreamID, err)
	}

	return &SweepRunner{
		config:       cfg,
		cache:        cache,
		obsRepo:      obsRepo,
		zoneRepo:     zoneRepo,
		reconciler:   rec,
		logger:       logger,
		datastreamID: datastreamID,
	}, nil
}

// Start 启动巡检循环
func (s *SweepRunner) Start(ctx context.Context) error {
	s.logger.Info("Sweep runner started",
		zap.String("datastream_id", s.datastreamID.String()),
		zap.Int("interval_seconds", s.config.Sweep.Interval),
	)

	ticker := time.NewTicker(time.Duration(s.config.Sweep.Interval) * time.Second)
	defer ticker.Stop()

	// 启动时立即执行一次
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Sweep failed on startup", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweep runner stopped")
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Sweep failed", zap.Error(err))
				// 继续下一轮，不中断
			}
		}
	}
}

// RunOnce 执行一轮巡检
func (s *SweepRunner) RunOnce(ctx context.Context) error {
	reading, err := s.latestReading(ctx)
	if err != nil {
		return err
	}
	if reading == nil {
		s.logger.Debug("No observation yet for sweep datastream",
			zap.String("datastream_id", s.datastreamID.String()),
		)
		return nil
	}

	zone, err := s.zoneRepo.ResolveZone(ctx, reading.DatastreamID)
	if err != nil {
		return fmt.Errorf("failed to resolve zone: %w", err)
	}
	if zone == nil {
		s.logger.Debug("Sweep datastream has no zone binding",
			zap.String("datastream_id", reading.DatastreamID.String()),
		)
		return nil
	}

	delta := evaluator.Evaluate(reading.Value, s.config.Ingest.Threshold)

	applied, err := s.reconciler.Apply(ctx, zone.ID, delta, reading.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to reconcile zone state: %w", err)
	}

	if applied && delta.Kind == evaluator.SetAlert {
		s.logger.Warn("Sweep ALERT: temperature exceeds threshold",
			zap.String("zone_name", zone.Name),
			zap.Float64("value", reading.Value),
			zap.Float64("threshold", s.config.Ingest.Threshold),
		)
	}

	return nil
}

// latestReading 获取巡检数据流的最新读数（缓存优先，未命中回DB）
func (s *SweepRunner) latestReading(ctx context.Context) (*models.SensorReading, error) {
	reading, err := s.cache.GetLatestReading(ctx, s.datastreamID)
	if err != nil {
		s.logger.Warn("Latest reading cache read failed", zap.Error(err))
	}
	if reading != nil {
		return reading, nil
	}

	obs, err := s.obsRepo.GetLatestObservation(ctx, s.datastreamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest observation: %w", err)
	}
	if obs == nil {
		return nil, nil
	}

	return obs.Reading(), nil
}
