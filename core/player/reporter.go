package player

import (
	"context"
	"sync"
	"time"

	"RoomFM/core/listening"
	"RoomFM/logger"
	"RoomFM/model"
)

// State 播放状态
type State string

const (
	StateStopped State = "stopped"
	StatePlaying State = "playing"
	StatePaused  State = "paused"
)

// 每隔多少个整秒把本地计数落账一次
const flushEverySeconds = 10

// Flusher 上报目标：收听账本与会话位置
// listening.Registry 实现了该接口；测试注入假实现
type Flusher interface {
	RecordListenTime(ctx context.Context, sessionID, trackID, deltaSeconds int64) (int64, error)
	UpdatePosition(ctx context.Context, sessionID, trackID int64, position int) error
}

// Reporter 播放上报器
// 每秒 Tick 一次把整秒计入本地计数器，每 10 秒或在暂停/切歌/曲目结束时落账
// 落账失败时保留本地计数、下个 Tick 重试，避免丢失收听积分
type Reporter struct {
	mu sync.Mutex

	flusher   Flusher
	sessionID int64
	tracks    []*model.Track // 房间曲目，按编排顺序
	totals    map[int64]int64

	state      State
	currentIdx int
	position   int             // 当前播放位置（秒）
	pending    map[int64]int64 // 曲目ID -> 尚未落账的整秒数；落账失败后跨切歌保留
	sinceFlush int             // 距上次成功落账的整秒数

	now func() time.Time
}

// NewReporter 创建播放上报器
// totals 是该会话已有的账本快照 (trackID -> 秒)，用于解锁判定；可为 nil
func NewReporter(flusher Flusher, sessionID int64, tracks []*model.Track, totals map[int64]int64) *Reporter {
	if totals == nil {
		totals = make(map[int64]int64)
	}
	return &Reporter{
		flusher:    flusher,
		sessionID:  sessionID,
		tracks:     tracks,
		totals:     totals,
		state:      StateStopped,
		currentIdx: -1,
		pending:    make(map[int64]int64),
		now:        time.Now,
	}
}

// State 当前状态
func (r *Reporter) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current 当前曲目，未播放时为 nil
func (r *Reporter) Current() *model.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentIdx < 0 || r.currentIdx >= len(r.tracks) {
		return nil
	}
	return r.tracks[r.currentIdx]
}

// Position 当前播放位置（秒）
func (r *Reporter) Position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// Play 从头播放指定曲目
// 选中仍然锁定的归档曲目是空操作，返回 false，播放不会开始
func (r *Reporter) Play(ctx context.Context, trackID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, t := range r.tracks {
		if t.ID == trackID {
			idx = i
			break
		}
	}
	if idx < 0 || !r.playable(r.tracks[idx]) {
		return false
	}

	// 切歌前把旧曲目的计数落账
	if r.state == StatePlaying && r.currentIdx != idx {
		r.flushLocked(ctx)
	}

	if r.currentIdx != idx {
		r.position = 0
	}
	r.currentIdx = idx
	r.state = StatePlaying
	return true
}

// Resume 从暂停恢复播放
func (r *Reporter) Resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePaused || r.currentIdx < 0 {
		return false
	}
	r.state = StatePlaying
	return true
}

// Pause 暂停并立即落账
func (r *Reporter) Pause(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePlaying {
		return
	}
	r.state = StatePaused
	r.flushLocked(ctx)
}

// Stop 停止并立即落账
func (r *Reporter) Stop(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateStopped {
		return
	}
	r.flushLocked(ctx)
	r.state = StateStopped
}

// Tick 整秒回调：累计本地计数，按周期落账
// 上次落账失败时每个 Tick 都会重试
func (r *Reporter) Tick(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePlaying || r.currentIdx < 0 {
		return
	}

	track := r.tracks[r.currentIdx]
	r.position++
	r.pending[track.ID]++
	r.sinceFlush++

	if r.position >= track.Duration {
		r.trackEndedLocked(ctx)
		return
	}

	if r.sinceFlush >= flushEverySeconds {
		r.flushLocked(ctx)
	}
}

// Run 以 1 秒节拍驱动 Tick，直到 ctx 取消；退出前尽力再落账一次
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close(context.Background())
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Close 卸载前的最后一次尽力落账
// 失败只会损失一点计时精度，不会破坏状态
func (r *Reporter) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked(ctx)
}

// trackEndedLocked 曲目播完：落账后顺延到下一首可播曲目，没有则停止
func (r *Reporter) trackEndedLocked(ctx context.Context) {
	r.flushLocked(ctx)

	for i := r.currentIdx + 1; i < len(r.tracks); i++ {
		if r.playable(r.tracks[i]) {
			r.currentIdx = i
			r.position = 0
			r.state = StatePlaying
			return
		}
	}

	r.state = StateStopped
	r.currentIdx = -1
	r.position = 0
}

// playable 曲目可播：未归档，或已用收听积分解锁
func (r *Reporter) playable(track *model.Track) bool {
	now := r.now()
	if listening.ComputeDecay(track.IsArchived, track.DecayStartAt, now) != listening.DecayArchived {
		return true
	}
	return listening.IsUnlocked(track, r.totals[track.ID], now)
}

// flushLocked 把本地计数与位置上报
// 计数按各自累计的曲目落账：落账失败后切了歌，欠账仍记在原曲目名下，
// 重试时不会串到新曲目。失败的条目保留，下个 Tick 重试；位置上报失败直接吞掉
func (r *Reporter) flushLocked(ctx context.Context) {
	failed := false
	for trackID, seconds := range r.pending {
		if seconds <= 0 {
			delete(r.pending, trackID)
			continue
		}
		total, err := r.flusher.RecordListenTime(ctx, r.sessionID, trackID, seconds)
		if err != nil {
			// 保留计数，下个 Tick 重试
			logger.Warn("listen time flush failed, retrying on next tick",
				logger.ErrorField(err),
				logger.Int64("sessionId", r.sessionID),
				logger.Int64("trackId", trackID))
			failed = true
			continue
		}
		r.totals[trackID] = total
		delete(r.pending, trackID)
	}
	if failed {
		r.sinceFlush = flushEverySeconds
		return
	}
	r.sinceFlush = 0

	if r.currentIdx < 0 {
		return
	}
	track := r.tracks[r.currentIdx]
	if err := r.flusher.UpdatePosition(ctx, r.sessionID, track.ID, r.position); err != nil {
		logger.Warn("position flush failed",
			logger.ErrorField(err),
			logger.Int64("sessionId", r.sessionID),
			logger.Int64("trackId", track.ID))
	}
}
