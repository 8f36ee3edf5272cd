package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"safeindustech-ingest/internal/models"

	"github.com/google/uuid"
)

// 解码失败分类（用 errors.Is 判断）
var (
	ErrMalformedEncoding = errors.New("malformed payload encoding")
	ErrMissingField      = errors.New("missing required field")
	ErrInvalidIdentifier = errors.New("invalid datastream identifier")
	ErrInvalidValue      = errors.New("invalid reading value")
)

// wireMessage 传感器消息的线上格式
// {"datastream_id": "...", "sensor_type": "...", "observed_at": "...", "result": {"value": 21.7, "unit": "°C"}}
type wireMessage struct {
	DatastreamID string      `json:"datastream_id"`
	SensorType   string      `json:"sensor_type"`
	ObservedAt   string      `json:"observed_at"`
	Result       *wireResult `json:"result"`
}

type wireResult struct {
	Value json.RawMessage `json:"value"`
	Unit  string          `json:"unit"`
}

// Decode 解析原始消息载荷为传感器读数
// 对任意字节序列都只返回分类错误，不会panic
func Decode(payload []byte) (*models.SensorReading, error) {
	var msg wireMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}

	if msg.DatastreamID == "" {
		return nil, fmt.Errorf("%w: datastream_id", ErrMissingField)
	}
	if msg.Result == nil {
		return nil, fmt.Errorf("%w: result", ErrMissingField)
	}
	if len(msg.Result.Value) == 0 || string(msg.Result.Value) == "null" {
		return nil, fmt.Errorf("%w: result.value", ErrMissingField)
	}

	datastreamID, err := uuid.Parse(msg.DatastreamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, msg.DatastreamID)
	}

	var value float64
	if err := json.Unmarshal(msg.Result.Value, &value); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidValue, msg.Result.Value)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%w: not a finite number", ErrInvalidValue)
	}

	// 传感器侧时间可选，缺省取接收时间
	observedAt := time.Now().UTC()
	if msg.ObservedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, msg.ObservedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: observed_at %q", ErrInvalidValue, msg.ObservedAt)
		}
		observedAt = t.UTC()
	}

	return &models.SensorReading{
		DatastreamID: datastreamID,
		Value:        value,
		Unit:         msg.Result.Unit,
		ObservedAt:   observedAt,
	}, nil
}
