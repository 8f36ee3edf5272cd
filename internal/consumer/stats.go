package consumer

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// IngestStats 采集管道计数器
// ResolutionMiss 是信息性计数（未绑定区域的数据流属于合法状态），不计入错误
type IngestStats struct {
	Received         atomic.Int64 // 收到的消息数
	DecodeFailed     atomic.Int64 // 解码失败（丢弃）
	Persisted        atomic.Int64 // 成功入库的观测记录数
	PersistFailed    atomic.Int64 // 入库失败（丢弃）
	ResolutionMiss   atomic.Int64 // 未绑定区域（丢弃，信息性）
	Reconciled       atomic.Int64 // 成功对账的区域更新数
	ReconcileFailed  atomic.Int64 // 对账失败（丢弃）
	ReconcileSkipped atomic.Int64 // 过期读数跳过
}

// Fields 输出为zap日志字段（停机时汇总打印）
func (s *IngestStats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("received", s.Received.Load()),
		zap.Int64("decode_failed", s.DecodeFailed.Load()),
		zap.Int64("persisted", s.Persisted.Load()),
		zap.Int64("persist_failed", s.PersistFailed.Load()),
		zap.Int64("resolution_miss", s.ResolutionMiss.Load()),
		zap.Int64("reconciled", s.Reconciled.Load()),
		zap.Int64("reconcile_failed", s.ReconcileFailed.Load()),
		zap.Int64("reconcile_skipped", s.ReconcileSkipped.Load()),
	}
}
