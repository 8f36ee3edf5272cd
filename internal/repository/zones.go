package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"safeindustech-ingest/internal/evaluator"
	"safeindustech-ingest/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrZoneNotFound 区域行不存在（被并发删除），对账失败且不可重试
var ErrZoneNotFound = errors.New("zone not found")

// ZoneRepository 区域仓库
// 解析数据流归属 + 原子合并区域属性；区域本身由外部系统创建，本管道只改 properties
type ZoneRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewZoneRepository 创建区域仓库
func NewZoneRepository(db *sql.DB, logger *zap.Logger) *ZoneRepository {
	return &ZoneRepository{
		db:     db,
		logger: logger,
	}
}

// ResolveZone 解析数据流归属的区域（通过 feature_of_interest 关联）
// 没有区域认领该数据流时返回 (nil, nil)，这是合法状态而非错误
func (r *ZoneRepository) ResolveZone(ctx context.Context, datastreamID uuid.UUID) (*models.ZoneRef, error) {
	query := `
		SELECT z.id, z.name
		FROM zone z
		JOIN datastream d ON d.feature_of_interest_id = z.feature_of_interest_id
		WHERE d.id = $1
		LIMIT 1
	`

	var ref models.ZoneRef
	err := r.db.QueryRowContext(ctx, query, datastreamID).Scan(&ref.ID, &ref.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 数据流未绑定区域（如已退役或测试流）
		}
		return nil, fmt.Errorf("failed to resolve zone: %w", err)
	}

	return &ref, nil
}

// MergeProperties 把状态增量合并进区域属性（单条SQL完成读-改-写，行级原子）
// properties 可能携带其他服务的键，只合并本管道拥有的键，其余透传
// 按 last_observed_at 做时序门控：更旧的读数不会回退区域状态
// 返回 (false, nil) 表示读数过期被跳过；区域行不存在时返回 ErrZoneNotFound
func (r *ZoneRepository) MergeProperties(ctx context.Context, zoneID uuid.UUID, delta evaluator.Delta, observedAt time.Time) (bool, error) {
	if delta.Kind == evaluator.Unchanged {
		return false, nil
	}

	observedAtText := observedAt.UTC().Format(time.RFC3339Nano)

	var query string
	var args []interface{}

	switch delta.Kind {
	case evaluator.SetAlert:
		query = `
			UPDATE zone
			SET properties = COALESCE(properties, '{}'::jsonb)
				|| jsonb_build_object(
					'current_temp', $2::numeric,
					'alert', $3::text,
					'last_observed_at', $4::text
				)
			WHERE id = $1
			  AND COALESCE((properties->>'last_observed_at')::timestamptz, '-infinity'::timestamptz) <= $4::timestamptz
		`
		args = []interface{}{zoneID, delta.Value, evaluator.AlertMessage, observedAtText}

	case evaluator.ClearAlert:
		query = `
			UPDATE zone
			SET properties = (COALESCE(properties, '{}'::jsonb)
				|| jsonb_build_object(
					'current_temp', $2::numeric,
					'last_observed_at', $3::text
				)) - 'alert'
			WHERE id = $1
			  AND COALESCE((properties->>'last_observed_at')::timestamptz, '-infinity'::timestamptz) <= $3::timestamptz
		`
		args = []interface{}{zoneID, delta.Value, observedAtText}

	default:
		return false, fmt.Errorf("unknown delta kind: %d", delta.Kind)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to merge zone properties: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		r.logger.Debug("Zone properties merged",
			zap.String("zone_id", zoneID.String()),
			zap.Time("observed_at", observedAt),
		)
		return true, nil
	}

	// 0行受影响：区分区域已删除和读数过期
	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM zone WHERE id = $1)`,
		zoneID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check zone existence: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("%w: zone_id=%s", ErrZoneNotFound, zoneID)
	}

	// 区域存在但读数更旧，跳过即可
	return false, nil
}
