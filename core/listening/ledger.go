package listening

import (
	"time"

	"RoomFM/model"
)

// RequiredUnlockSeconds 返回解锁该曲目所需的累计收听秒数
// 归档态曲目（管理员归档或衰退到期）需要时长的 80%（向下取整）；其余为 0，始终可播
func RequiredUnlockSeconds(track *model.Track, now time.Time) int {
	if ComputeDecay(track.IsArchived, track.DecayStartAt, now) != DecayArchived {
		return 0
	}
	// 整数运算避免浮点取整误差
	return track.Duration * 4 / 5
}

// IsUnlocked 判断曲目对给定累计秒数是否解锁
// 累计秒数只增不减，因此解锁一旦成立便不会回退
func IsUnlocked(track *model.Track, accumulatedSeconds int64, now time.Time) bool {
	required := RequiredUnlockSeconds(track, now)
	return required == 0 || accumulatedSeconds >= int64(required)
}
