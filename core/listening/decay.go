package listening

import "time"

// DecayState 曲目的衰退状态
type DecayState string

const (
	DecayVisible  DecayState = "visible"
	DecayFading   DecayState = "fading"
	DecayArchived DecayState = "archived"
)

// 衰退窗口：从 decayStartAt 起 30 天后进入归档
const decayWindowDays = 30.0

// ComputeDecay 根据归档标记与衰退起点计算曲目的衰退状态
// 纯函数，不落库，每次读取时重新计算
//   - isArchived 为真 → archived，无条件且永久
//   - 未设置衰退起点 → visible
//   - 衰退未开始（起点在未来）→ visible
//   - 不足 30 天 → fading；满 30 天（含）→ archived
func ComputeDecay(isArchived bool, decayStartAt *time.Time, now time.Time) DecayState {
	if isArchived {
		return DecayArchived
	}
	if decayStartAt == nil {
		return DecayVisible
	}

	daysSince := now.Sub(*decayStartAt).Seconds() / 86400
	switch {
	case daysSince < 0:
		return DecayVisible
	case daysSince < decayWindowDays:
		return DecayFading
	default:
		return DecayArchived
	}
}
