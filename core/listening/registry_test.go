package listening

import (
	"context"
	"errors"
	"testing"
	"time"

	"RoomFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========== 内存假仓库 ==========

type fakeRoomRepo struct {
	rooms  map[int64]*model.Room
	tracks map[int64][]*model.Track
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:  make(map[int64]*model.Room),
		tracks: make(map[int64][]*model.Track),
	}
}

func (f *fakeRoomRepo) GetBySlug(_ context.Context, slug string) (*model.Room, error) {
	for _, room := range f.rooms {
		if room.Slug == slug && room.IsActive {
			return room, nil
		}
	}
	return nil, nil
}

func (f *fakeRoomRepo) GetByID(_ context.Context, id int64) (*model.Room, error) {
	return f.rooms[id], nil
}

func (f *fakeRoomRepo) ListTracks(_ context.Context, roomID int64) ([]*model.Track, error) {
	return f.tracks[roomID], nil
}

func (f *fakeRoomRepo) GetTrack(_ context.Context, trackID int64) (*model.Track, error) {
	for _, tracks := range f.tracks {
		for _, track := range tracks {
			if track.ID == trackID {
				return track, nil
			}
		}
	}
	return nil, nil
}

type fakeSessionRepo struct {
	sessions     map[int64]*model.ListeningSession
	nextID       int64
	createErr    error
	lookupMisses int // 前 N 次按令牌查找强制未命中，用于模拟并发创建竞争
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[int64]*model.ListeningSession), nextID: 1}
}

func (f *fakeSessionRepo) GetByRoomAndToken(_ context.Context, roomID int64, clientToken string) (*model.ListeningSession, error) {
	if f.lookupMisses > 0 {
		f.lookupMisses--
		return nil, nil
	}
	for _, s := range f.sessions {
		if s.RoomID == roomID && s.ClientToken == clientToken {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id int64) (*model.ListeningSession, error) {
	return f.sessions[id], nil
}

func (f *fakeSessionRepo) Create(_ context.Context, session *model.ListeningSession) error {
	if f.createErr != nil {
		return f.createErr
	}
	session.ID = f.nextID
	f.nextID++
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeSessionRepo) CountByRoom(_ context.Context, roomID int64) (int64, error) {
	var count int64
	for _, s := range f.sessions {
		if s.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

func (f *fakeSessionRepo) Touch(_ context.Context, id int64, at time.Time) error {
	if s, ok := f.sessions[id]; ok {
		s.LastActiveAt = at
	}
	return nil
}

func (f *fakeSessionRepo) UpdatePosition(_ context.Context, id int64, trackID int64, position int, at time.Time) (bool, error) {
	s, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	s.CurrentTrack = &trackID
	s.Position = position
	s.LastActiveAt = at
	return true, nil
}

type fakeLedgerRepo struct {
	totals map[[2]int64]int64 // (sessionID, trackID) -> seconds
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{totals: make(map[[2]int64]int64)}
}

func (f *fakeLedgerRepo) IncrementSeconds(_ context.Context, sessionID, trackID, delta int64) (int64, error) {
	key := [2]int64{sessionID, trackID}
	f.totals[key] += delta
	return f.totals[key], nil
}

func (f *fakeLedgerRepo) GetSeconds(_ context.Context, sessionID, trackID int64) (int64, error) {
	return f.totals[[2]int64{sessionID, trackID}], nil
}

func (f *fakeLedgerRepo) GetSecondsBySession(_ context.Context, sessionID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for key, seconds := range f.totals {
		if key[0] == sessionID {
			out[key[1]] = seconds
		}
	}
	return out, nil
}

func newTestRegistry() (*Registry, *fakeRoomRepo, *fakeSessionRepo, *fakeLedgerRepo) {
	rooms := newFakeRoomRepo()
	sessions := newFakeSessionRepo()
	ledger := newFakeLedgerRepo()
	rooms.rooms[1] = &model.Room{ID: 1, Slug: "night-drive", Title: "Night Drive", IsActive: true}
	return NewRegistry(rooms, sessions, ledger, nil), rooms, sessions, ledger
}

// ========== 测试 ==========

func TestGetOrCreateSessionRejectsEmptyToken(t *testing.T) {
	registry, _, _, _ := newTestRegistry()

	_, err := registry.GetOrCreateSession(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = registry.GetOrCreateSession(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGetOrCreateSessionUnknownRoom(t *testing.T) {
	registry, _, _, _ := newTestRegistry()

	_, err := registry.GetOrCreateSession(context.Background(), 99, "tok-a")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestGetOrCreateSessionResumesSameToken(t *testing.T) {
	registry, _, _, _ := newTestRegistry()
	ctx := context.Background()

	first, err := registry.GetOrCreateSession(ctx, 1, "tok-a")
	require.NoError(t, err)
	require.NotNil(t, first)

	// 同一令牌再次进入：恢复同一会话，化名不变
	second, err := registry.GetOrCreateSession(ctx, 1, "tok-a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Pseudonym, second.Pseudonym)
}

func TestGetOrCreateSessionDistinctTokens(t *testing.T) {
	registry, _, _, _ := newTestRegistry()
	ctx := context.Background()

	a, err := registry.GetOrCreateSession(ctx, 1, "tok-a")
	require.NoError(t, err)
	b, err := registry.GetOrCreateSession(ctx, 1, "tok-b")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	// 序号随房间已有会话数递增
	assert.Contains(t, a.Pseudonym, "#0")
	assert.Contains(t, b.Pseudonym, "#1")
}

func TestGetOrCreateSessionConcurrentCreateFallsBack(t *testing.T) {
	registry, _, sessions, _ := newTestRegistry()
	ctx := context.Background()

	// 模拟并发抢先：首次按令牌查找未命中，Create 报唯一键冲突，回读能找到既有会话
	existing := &model.ListeningSession{ID: 42, RoomID: 1, ClientToken: "tok-race", Pseudonym: "Quiet Fox #0"}
	sessions.sessions[42] = existing
	sessions.lookupMisses = 1
	sessions.createErr = errors.New("Duplicate entry 'tok-race' for key 'idx_room_token'")

	got, err := registry.GetOrCreateSession(ctx, 1, "tok-race")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
}

func TestUpdatePositionClampsNegative(t *testing.T) {
	registry, _, sessions, _ := newTestRegistry()
	ctx := context.Background()

	s, err := registry.GetOrCreateSession(ctx, 1, "tok-a")
	require.NoError(t, err)

	require.NoError(t, registry.UpdatePosition(ctx, s.ID, 10, -5))
	assert.Equal(t, 0, sessions.sessions[s.ID].Position)

	require.NoError(t, registry.UpdatePosition(ctx, s.ID, 10, 37))
	assert.Equal(t, 37, sessions.sessions[s.ID].Position)
	require.NotNil(t, sessions.sessions[s.ID].CurrentTrack)
	assert.Equal(t, int64(10), *sessions.sessions[s.ID].CurrentTrack)
}

func TestUpdatePositionUnknownSession(t *testing.T) {
	registry, _, _, _ := newTestRegistry()
	err := registry.UpdatePosition(context.Background(), 999, 10, 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRecordListenTimeAccumulates(t *testing.T) {
	registry, _, _, _ := newTestRegistry()
	ctx := context.Background()

	total, err := registry.RecordListenTime(ctx, 1, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	total, err = registry.RecordListenTime(ctx, 1, 10, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
}

func TestRecordListenTimeIgnoresNonPositiveDelta(t *testing.T) {
	registry, _, _, ledger := newTestRegistry()
	ctx := context.Background()

	_, err := registry.RecordListenTime(ctx, 1, 10, 8)
	require.NoError(t, err)

	// 零或负增量是空操作，返回当前累计值
	total, err := registry.RecordListenTime(ctx, 1, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)

	total, err = registry.RecordListenTime(ctx, 1, 10, -3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), total)
	assert.Equal(t, int64(8), ledger.totals[[2]int64{1, 10}])
}

func TestBuildRoomViewUnlockInfo(t *testing.T) {
	registry, rooms, _, ledger := newTestRegistry()
	ctx := context.Background()

	rooms.tracks[1] = []*model.Track{
		{ID: 10, RoomID: 1, Position: 0, Title: "Opener", Duration: 200},
		{ID: 11, RoomID: 1, Position: 1, Title: "Deep Cut", Duration: 100, IsArchived: true},
	}
	ledger.totals[[2]int64{5, 11}] = 90

	view, err := registry.BuildRoomView(ctx, rooms.rooms[1], 5)
	require.NoError(t, err)
	require.Len(t, view.Tracks, 2)

	assert.Equal(t, string(DecayVisible), view.Tracks[0].DecayState)
	assert.Equal(t, 0, view.Tracks[0].RequiredSeconds)
	assert.True(t, view.Tracks[0].Unlocked)

	assert.Equal(t, string(DecayArchived), view.Tracks[1].DecayState)
	assert.Equal(t, 80, view.Tracks[1].RequiredSeconds)
	assert.Equal(t, int64(90), view.Tracks[1].ListenedSeconds)
	assert.True(t, view.Tracks[1].Unlocked)
}

func TestBuildRoomViewWithoutSession(t *testing.T) {
	registry, rooms, _, ledger := newTestRegistry()
	ctx := context.Background()

	rooms.tracks[1] = []*model.Track{
		{ID: 11, RoomID: 1, Duration: 100, IsArchived: true},
	}
	ledger.totals[[2]int64{5, 11}] = 90

	// sessionID 为 0：不读账本，归档曲目显示为锁定
	view, err := registry.BuildRoomView(ctx, rooms.rooms[1], 0)
	require.NoError(t, err)
	require.Len(t, view.Tracks, 1)
	assert.Equal(t, int64(0), view.Tracks[0].ListenedSeconds)
	assert.False(t, view.Tracks[0].Unlocked)
}

func TestGetRoomBySlug(t *testing.T) {
	registry, _, _, _ := newTestRegistry()
	ctx := context.Background()

	room, err := registry.GetRoomBySlug(ctx, "night-drive")
	require.NoError(t, err)
	assert.Equal(t, int64(1), room.ID)

	_, err = registry.GetRoomBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}
