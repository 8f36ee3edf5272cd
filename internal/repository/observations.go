package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"safeindustech-ingest/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ObservationRepository 观测记录仓库（仅追加）
// 入库与下游区域对账解耦：插入成功即保证历史数据不丢失
type ObservationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewObservationRepository 创建观测记录仓库
func NewObservationRepository(db *sql.DB, logger *zap.Logger) *ObservationRepository {
	return &ObservationRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 插入观测记录，返回生成的记录ID
// created_at 由服务端赋值，与传感器侧的 phenomenon_time 区分
// 不做去重：重复消息产生重复记录，下游按 phenomenon_time 取最新
func (r *ObservationRepository) Insert(ctx context.Context, reading *models.SensorReading) (uuid.UUID, error) {
	if reading == nil {
		return uuid.Nil, fmt.Errorf("reading is required")
	}

	resultJSON, err := json.Marshal(models.ObservationResult{
		Value: reading.Value,
		Unit:  reading.Unit,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	id := uuid.New()

	query := `
		INSERT INTO observation (id, datastream_id, phenomenon_time, result, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	_, err = r.db.ExecContext(ctx, query, id, reading.DatastreamID, reading.ObservedAt, resultJSON)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert observation: %w", err)
	}

	r.logger.Debug("Observation persisted",
		zap.String("observation_id", id.String()),
		zap.String("datastream_id", reading.DatastreamID.String()),
		zap.Float64("value", reading.Value),
	)

	return id, nil
}

// GetLatestObservation 获取数据流最新的观测记录（按 phenomenon_time 排序）
// 没有记录时返回 (nil, nil)
func (r *ObservationRepository) GetLatestObservation(ctx context.Context, datastreamID uuid.UUID) (*models.Observation, error) {
	query := `
		SELECT id, datastream_id, phenomenon_time, result, created_at
		FROM observation
		WHERE datastream_id = $1
		ORDER BY phenomenon_time DESC
		LIMIT 1
	`

	var obs models.Observation
	var resultJSON []byte

	err := r.db.QueryRowContext(ctx, query, datastreamID).Scan(
		&obs.ID,
		&obs.DatastreamID,
		&obs.PhenomenonTime,
		&resultJSON,
		&obs.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 数据流还没有观测记录
		}
		return nil, fmt.Errorf("failed to query latest observation: %w", err)
	}

	if err := json.Unmarshal(resultJSON, &obs.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal observation result: %w", err)
	}

	return &obs, nil
}
