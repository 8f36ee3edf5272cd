package models

import (
	"time"

	"github.com/google/uuid"
)

// SensorReading 解码后的传感器读数（解码后不可变）
type SensorReading struct {
	DatastreamID uuid.UUID `json:"datastream_id"` // 数据流ID
	Value        float64   `json:"value"`         // 测量值（有限数）
	Unit         string    `json:"unit"`          // 单位，如 "°C"
	ObservedAt   time.Time `json:"observed_at"`   // 传感器侧观测时间
}

// ObservationResult 观测结果（observation.result JSONB 字段）
type ObservationResult struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Observation 观测记录（仅追加，本管道不更新不删除）
type Observation struct {
	ID             uuid.UUID         // 观测记录ID
	DatastreamID   uuid.UUID         // 数据流ID
	PhenomenonTime time.Time         // 传感器侧观测时间
	Result         ObservationResult // 观测结果
	CreatedAt      time.Time         // 服务端入库时间
}

// Reading 从观测记录还原传感器读数（巡检路径复用实时路径的评估逻辑）
func (o *Observation) Reading() *SensorReading {
	return &SensorReading{
		DatastreamID: o.DatastreamID,
		Value:        o.Result.Value,
		Unit:         o.Result.Unit,
		ObservedAt:   o.PhenomenonTime,
	}
}
