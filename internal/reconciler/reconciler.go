package reconciler

import (
	"context"
	"sync"
	"time"

	"safeindustech-ingest/internal/evaluator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ZoneStore 区域状态存储接口
// MergeProperties 合并状态增量；返回 (false, nil) 表示读数过期被跳过
type ZoneStore interface {
	MergeProperties(ctx context.Context, zoneID uuid.UUID, delta evaluator.Delta, observedAt time.Time) (bool, error)
}

// Reconciler 区域状态对账器
// 同一区域的并发对账串行化（按区域加锁），不同区域互不阻塞；
// 存储层的条件更新再按传感器时间门控，实时路径和巡检路径可以安全并发
type Reconciler struct {
	store  ZoneStore
	logger *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewReconciler 创建对账器
func NewReconciler(store ZoneStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// Apply 把状态增量应用到区域（读-改-写期间持有区域锁）
// 返回 applied=false 表示无需变更或读数过期；错误由调用方决定是否上报
func (r *Reconciler) Apply(ctx context.Context, zoneID uuid.UUID, delta evaluator.Delta, observedAt time.Time) (bool, error) {
	if delta.Kind == evaluator.Unchanged {
		return false, nil
	}

	lock := r.lockFor(zoneID)
	lock.Lock()
	defer lock.Unlock()

	applied, err := r.store.MergeProperties(ctx, zoneID, delta, observedAt)
	if err != nil {
		return false, err
	}

	if !applied {
		r.logger.Debug("Skipped stale reading during reconciliation",
			zap.String("zone_id", zoneID.String()),
			zap.Time("observed_at", observedAt),
		)
	}

	return applied, nil
}

// lockFor 获取区域对应的互斥锁（懒创建）
func (r *Reconciler) lockFor(zoneID uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[zoneID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[zoneID] = lock
	}
	return lock
}
