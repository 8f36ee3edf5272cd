package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ZoneRef 区域引用（解析数据流归属时返回）
type ZoneRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ZoneProperties 区域属性（zone.properties JSONB 字段的类型化视图）
// 本管道只拥有 current_temp / alert / last_observed_at 三个键，
// 其余键原样保留在 Extra 中，序列化时透传回去
type ZoneProperties struct {
	CurrentTemp    *float64   // 最近一次温度值
	Alert          *string    // 报警描述（仅超阈值时存在）
	LastObservedAt *time.Time // 最近一次生效读数的观测时间（用于时序门控）

	Extra map[string]json.RawMessage // 其他服务写入的键，透传
}

const (
	propCurrentTemp    = "current_temp"
	propAlert          = "alert"
	propLastObservedAt = "last_observed_at"
)

// UnmarshalJSON 解析属性，已知键类型化，未知键进入 Extra
func (p *ZoneProperties) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = ZoneProperties{}

	if v, ok := raw[propCurrentTemp]; ok {
		var temp float64
		if err := json.Unmarshal(v, &temp); err != nil {
			return err
		}
		p.CurrentTemp = &temp
		delete(raw, propCurrentTemp)
	}
	if v, ok := raw[propAlert]; ok {
		var alert string
		if err := json.Unmarshal(v, &alert); err != nil {
			return err
		}
		p.Alert = &alert
		delete(raw, propAlert)
	}
	if v, ok := raw[propLastObservedAt]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		p.LastObservedAt = &t
		delete(raw, propLastObservedAt)
	}

	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// MarshalJSON 序列化属性，Extra 中的键透传
func (p ZoneProperties) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extra)+3)
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.CurrentTemp != nil {
		out[propCurrentTemp] = *p.CurrentTemp
	}
	if p.Alert != nil {
		out[propAlert] = *p.Alert
	}
	if p.LastObservedAt != nil {
		out[propLastObservedAt] = p.LastObservedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(out)
}
