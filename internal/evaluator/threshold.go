package evaluator

// AlertMessage 超阈值时写入区域属性的报警描述
const AlertMessage = "Temperature exceeds threshold"

// DeltaKind 区域状态增量类型
type DeltaKind int

const (
	// Unchanged 无需变更
	Unchanged DeltaKind = iota
	// SetAlert 设置报警（温度超过阈值）
	SetAlert
	// ClearAlert 清除报警（温度不超过阈值）
	ClearAlert
)

// Delta 区域状态增量（阈值评估的结果）
type Delta struct {
	Kind  DeltaKind
	Value float64 // 当前温度值，写入 current_temp
}

// Evaluate 阈值评估（纯函数，对所有有限数值不会失败）
// value > threshold 设置报警；value <= threshold 清除报警（边界值不报警）
func Evaluate(value, threshold float64) Delta {
	if value > threshold {
		return Delta{Kind: SetAlert, Value: value}
	}
	return Delta{Kind: ClearAlert, Value: value}
}
