package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"safeindustech-ingest/internal/evaluator"
	"safeindustech-ingest/internal/models"

	"github.com/google/uuid"
)

// MemoryZoneStore 内存区域存储（用于测试和本地开发，无需PostgreSQL）
// 与 ZoneRepository.MergeProperties 遵循相同的合并语义和时序门控
type MemoryZoneStore struct {
	mu    sync.RWMutex
	zones map[uuid.UUID]*models.ZoneProperties
}

// NewMemoryZoneStore 创建内存区域存储
func NewMemoryZoneStore() *MemoryZoneStore {
	return &MemoryZoneStore{
		zones: make(map[uuid.UUID]*models.ZoneProperties),
	}
}

// AddZone 预置区域（区域由外部系统创建，这里模拟预置）
func (s *MemoryZoneStore) AddZone(zoneID uuid.UUID, props models.ZoneProperties) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[zoneID] = &props
}

// GetProperties 读取区域属性副本
func (s *MemoryZoneStore) GetProperties(zoneID uuid.UUID) (models.ZoneProperties, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	props, ok := s.zones[zoneID]
	if !ok {
		return models.ZoneProperties{}, false
	}
	return *props, true
}

// MergeProperties 合并状态增量（语义与SQL实现一致）
func (s *MemoryZoneStore) MergeProperties(ctx context.Context, zoneID uuid.UUID, delta evaluator.Delta, observedAt time.Time) (bool, error) {
	if delta.Kind == evaluator.Unchanged {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	props, ok := s.zones[zoneID]
	if !ok {
		return false, fmt.Errorf("%w: zone_id=%s", ErrZoneNotFound, zoneID)
	}

	// 时序门控：更旧的读数不覆盖
	if props.LastObservedAt != nil && observedAt.Before(*props.LastObservedAt) {
		return false, nil
	}

	value := delta.Value
	props.CurrentTemp = &value
	observedAtUTC := observedAt.UTC()
	props.LastObservedAt = &observedAtUTC

	switch delta.Kind {
	case evaluator.SetAlert:
		alert := evaluator.AlertMessage
		props.Alert = &alert
	case evaluator.ClearAlert:
		props.Alert = nil
	}

	return true, nil
}
