package life

import (
	"math"
	"time"

	xerrors "Empleaido-Core/internal/errors"
)

const (
	XPPerLevel = 100
	MaxLevel   = 50
	MaxEnergy  = 100
	MinEnergy  = 0
	MaxTrust   = 1.0
	MinTrust   = 0.0

	// RestThreshold 以下的能量不能执行技能。
	RestThreshold = 10

	// 每经过 RegenInterval 恢复 RegenAmount 点能量。
	RegenInterval = 10 * time.Minute
	RegenAmount   = 10
)

// Activity 是会影响成长数值的行为。
type Activity string

const (
	ActivityTaskCompleted Activity = "task_completed"
	ActivitySession       Activity = "session"
	ActivityError         Activity = "error"
	ActivityIdle          Activity = "idle"
)

type deltas struct {
	xp     int
	trust  float64
	energy int
}

var activityDeltas = map[Activity]deltas{
	ActivityTaskCompleted: {xp: 20, trust: 0.02, energy: -10},
	ActivitySession:       {xp: 5, trust: 0.01, energy: -5},
	ActivityError:         {xp: -5, trust: -0.03, energy: -15},
	ActivityIdle:          {xp: 0, trust: -0.01, energy: 5},
}

// Valid 判断行为是否已定义。
func (a Activity) Valid() bool {
	_, ok := activityDeltas[a]
	return ok
}

// CodeInsufficientEnergy 表示智能体能量不足，需要休息。
const CodeInsufficientEnergy xerrors.Code = "INSUFFICIENT_ENERGY"

func init() {
	xerrors.Register(CodeInsufficientEnergy, xerrors.Attributes{
		Message:   "empleaido needs rest, energy too low",
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
	})
}

// Stats 是一个激活的成长数值。
type Stats struct {
	Level      int     `json:"level"`
	Experience int     `json:"experience"`
	Trust      float64 `json:"trust"`
	Energy     int     `json:"energy"`
}

// Initial 返回新激活的初始数值。
func Initial() Stats {
	return Stats{Level: 1, Experience: 0, Trust: 0.6, Energy: MaxEnergy}
}

// Apply 返回应用行为后的新数值，未定义的行为不改变数值。
func (s Stats) Apply(a Activity) Stats {
	d, ok := activityDeltas[a]
	if !ok {
		return s
	}
	xp := s.Experience + d.xp
	if xp < 0 {
		xp = 0
	}
	return Stats{
		Level:      LevelFor(xp),
		Experience: xp,
		Trust:      round2(clampFloat(s.Trust+d.trust, MinTrust, MaxTrust)),
		Energy:     clampInt(s.Energy+d.energy, MinEnergy, MaxEnergy),
	}
}

// CanPerform 判断剩余能量是否足以完成该行为。
func (s Stats) CanPerform(a Activity) bool {
	d, ok := activityDeltas[a]
	if !ok {
		return false
	}
	cost := d.energy
	if cost < 0 {
		cost = -cost
	}
	return s.Energy >= cost
}

// NeedsRest 判断能量是否低于执行阈值。
func (s Stats) NeedsRest() bool {
	return s.Energy < RestThreshold
}

// Regenerate 恢复能量，不超过上限。
func (s Stats) Regenerate(amount int) Stats {
	s.Energy = clampInt(s.Energy+amount, MinEnergy, MaxEnergy)
	return s
}

// Recover 按 last 到 now 之间经过的完整间隔恢复能量。
func (s Stats) Recover(last, now time.Time) Stats {
	if last.IsZero() || !now.After(last) {
		return s
	}
	steps := int64(now.Sub(last) / RegenInterval)
	if steps <= 0 {
		return s
	}
	if steps > MaxEnergy {
		steps = MaxEnergy
	}
	return s.Regenerate(int(steps) * RegenAmount)
}

// XPForNextLevel 返回升到下一级还需要的经验，满级时为 0。
func (s Stats) XPForNextLevel() int {
	level := LevelFor(s.Experience)
	if level >= MaxLevel {
		return 0
	}
	return level*XPPerLevel - s.Experience
}

// Progress 返回当前等级内的进度百分比。
func (s Stats) Progress() int {
	return int(math.Round(float64(s.Experience%XPPerLevel) / XPPerLevel * 100))
}

// LevelFor 根据经验值计算等级。
func LevelFor(xp int) int {
	level := xp/XPPerLevel + 1
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
