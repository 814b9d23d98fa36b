package execution

import "time"

// Phase 执行阶段，封闭枚举。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRampingUp
	PhaseSustained
	PhaseRampingDown
	PhaseCompleted
	PhaseAborted
)

var phaseNames = [...]string{
	PhaseIdle:        "idle",
	PhaseRampingUp:   "ramping_up",
	PhaseSustained:   "sustained",
	PhaseRampingDown: "ramping_down",
	PhaseCompleted:   "completed",
	PhaseAborted:     "aborted",
}

// String 返回阶段名称。
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText 以名称序列化。
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePhase 解析阶段名称，未知名称返回 PhaseIdle 和 false。
func ParsePhase(s string) (Phase, bool) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), true
		}
	}
	return PhaseIdle, false
}

// Terminal 是否为终止阶段。
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAborted
}

// Transition 一次阶段切换。
type Transition struct {
	From Phase     `json:"from"`
	To   Phase     `json:"to"`
	At   time.Time `json:"at"`
}

// RampSchedule 返回 ramp-up 每一步的目标 worker 数。
// 每步增加 ceil(target/steps)，结果单调不减且最后一项等于 target。
func RampSchedule(target, steps int) []int {
	if target <= 0 {
		return nil
	}
	if steps <= 0 {
		steps = 1
	}
	if steps > target {
		steps = target
	}
	perStep := (target + steps - 1) / steps
	schedule := make([]int, 0, steps)
	for i := 1; i <= steps; i++ {
		want := min(i*perStep, target)
		schedule = append(schedule, want)
		if want == target {
			break
		}
	}
	return schedule
}
