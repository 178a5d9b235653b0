package player

import (
	"context"
	"errors"
	"testing"
	"time"

	"RoomFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flushCall 一次账本上报
type flushCall struct {
	trackID int64
	delta   int64
}

type fakeFlusher struct {
	calls     []flushCall
	totals    map[int64]int64
	positions map[int64]int
	err       error
}

func newFakeFlusher() *fakeFlusher {
	return &fakeFlusher{
		totals:    make(map[int64]int64),
		positions: make(map[int64]int),
	}
}

func (f *fakeFlusher) RecordListenTime(_ context.Context, _ int64, trackID, delta int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.calls = append(f.calls, flushCall{trackID: trackID, delta: delta})
	f.totals[trackID] += delta
	return f.totals[trackID], nil
}

func (f *fakeFlusher) UpdatePosition(_ context.Context, _ int64, trackID int64, position int) error {
	f.positions[trackID] = position
	return nil
}

func tick(r *Reporter, n int) {
	for i := 0; i < n; i++ {
		r.Tick(context.Background())
	}
}

func TestReporterTickAccruesAndFlushesEveryTen(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{{ID: 10, Duration: 100}}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	assert.Equal(t, StatePlaying, r.State())

	tick(r, 9)
	assert.Equal(t, 9, r.Position())
	assert.Empty(t, flusher.calls) // 未满 10 秒不落账

	tick(r, 1)
	require.Len(t, flusher.calls, 1)
	assert.Equal(t, flushCall{trackID: 10, delta: 10}, flusher.calls[0])
	assert.Equal(t, 10, flusher.positions[10])

	tick(r, 10)
	require.Len(t, flusher.calls, 2)
	assert.Equal(t, flushCall{trackID: 10, delta: 10}, flusher.calls[1])
}

func TestReporterPauseFlushesImmediately(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{{ID: 10, Duration: 100}}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 3)
	r.Pause(context.Background())

	assert.Equal(t, StatePaused, r.State())
	require.Len(t, flusher.calls, 1)
	assert.Equal(t, int64(3), flusher.calls[0].delta)

	// 暂停期间 Tick 不计时
	tick(r, 5)
	assert.Equal(t, 3, r.Position())

	require.True(t, r.Resume())
	tick(r, 2)
	assert.Equal(t, 5, r.Position())
}

func TestReporterStopFlushes(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{{ID: 10, Duration: 100}}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 4)
	r.Stop(context.Background())

	assert.Equal(t, StateStopped, r.State())
	require.Len(t, flusher.calls, 1)
	assert.Equal(t, int64(4), flusher.calls[0].delta)
}

func TestReporterSwitchFlushesOldTrack(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{
		{ID: 10, Duration: 100},
		{ID: 11, Duration: 100},
	}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 4)
	require.True(t, r.Play(context.Background(), 11))

	// 切歌前旧曲目的 4 秒已落账，新曲目从头开始
	require.Len(t, flusher.calls, 1)
	assert.Equal(t, flushCall{trackID: 10, delta: 4}, flusher.calls[0])
	assert.Equal(t, 0, r.Position())
	assert.Equal(t, int64(11), r.Current().ID)
}

func TestReporterFlushFailureRetainsAndRetries(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{{ID: 10, Duration: 100}}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	flusher.err = errors.New("connection refused")
	tick(r, 10)
	assert.Empty(t, flusher.calls) // 落账失败，本地计数保留

	// 失败后每个 Tick 都重试
	tick(r, 1)
	assert.Empty(t, flusher.calls)

	flusher.err = nil
	tick(r, 1)
	require.Len(t, flusher.calls, 1)
	// 12 个整秒一个不少
	assert.Equal(t, int64(12), flusher.calls[0].delta)
}

func TestReporterFailedFlushStaysOnOriginalTrack(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{
		{ID: 10, Duration: 100},
		{ID: 11, Duration: 100},
	}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 3)

	// 切歌时落账失败：欠账留在曲目 10 名下，切歌照常进行
	flusher.err = errors.New("connection refused")
	require.True(t, r.Play(context.Background(), 11))
	assert.Empty(t, flusher.calls)
	assert.Equal(t, int64(11), r.Current().ID)

	flusher.err = nil
	tick(r, 1)

	// 重试时各记各的：曲目 10 补上 3 秒，新曲目 11 记自己的 1 秒
	assert.Equal(t, int64(3), flusher.totals[10])
	assert.Equal(t, int64(1), flusher.totals[11])
	assert.Empty(t, r.pending)
}

func TestReporterTrackEndAdvances(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{
		{ID: 10, Duration: 3},
		{ID: 11, Duration: 100},
	}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 3)

	// 播完落账并顺延到下一首
	require.Len(t, flusher.calls, 1)
	assert.Equal(t, flushCall{trackID: 10, delta: 3}, flusher.calls[0])
	assert.Equal(t, StatePlaying, r.State())
	assert.Equal(t, int64(11), r.Current().ID)
	assert.Equal(t, 0, r.Position())
}

func TestReporterTrackEndSkipsLocked(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{
		{ID: 10, Duration: 3},
		{ID: 11, Duration: 100, IsArchived: true}, // 锁定：无收听积分
		{ID: 12, Duration: 100},
	}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 3)

	assert.Equal(t, int64(12), r.Current().ID)
	assert.Equal(t, StatePlaying, r.State())
}

func TestReporterStopsWhenNothingPlayable(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{
		{ID: 10, Duration: 3},
		{ID: 11, Duration: 100, IsArchived: true},
	}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 3)

	assert.Equal(t, StateStopped, r.State())
	assert.Nil(t, r.Current())
}

func TestReporterPlayLockedIsNoop(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{{ID: 11, Duration: 100, IsArchived: true}}
	r := NewReporter(flusher, 1, tracks, nil)

	assert.False(t, r.Play(context.Background(), 11))
	assert.Equal(t, StateStopped, r.State())
	assert.Nil(t, r.Current())
}

func TestReporterUnlockedArchivedIsPlayable(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{{ID: 11, Duration: 100, IsArchived: true}} // 需要 80 秒
	r := NewReporter(flusher, 1, tracks, map[int64]int64{11: 80})

	assert.True(t, r.Play(context.Background(), 11))
	assert.Equal(t, StatePlaying, r.State())
}

func TestReporterPlayUnknownTrack(t *testing.T) {
	flusher := newFakeFlusher()
	r := NewReporter(flusher, 1, []*model.Track{{ID: 10, Duration: 100}}, nil)

	assert.False(t, r.Play(context.Background(), 999))
}

func TestReporterCloseFlushesPending(t *testing.T) {
	flusher := newFakeFlusher()
	tracks := []*model.Track{{ID: 10, Duration: 100}}
	r := NewReporter(flusher, 1, tracks, nil)

	require.True(t, r.Play(context.Background(), 10))
	tick(r, 6)
	r.Close(context.Background())

	require.Len(t, flusher.calls, 1)
	assert.Equal(t, int64(6), flusher.calls[0].delta)
}

func TestReporterDecayedTrackLocks(t *testing.T) {
	flusher := newFakeFlusher()
	start := time.Now().Add(-31 * 24 * time.Hour)
	tracks := []*model.Track{{ID: 10, Duration: 100, DecayStartAt: &start}}
	r := NewReporter(flusher, 1, tracks, nil)

	// 衰退到期的曲目与管理员归档同等对待
	assert.False(t, r.Play(context.Background(), 10))
}
