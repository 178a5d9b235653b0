package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"RoomFM/core/listening"
	"RoomFM/logger"
	"RoomFM/model"

	"github.com/gorilla/mux"
)

// SessionHandler 会话与收听上报接口
type SessionHandler struct {
	registry *listening.Registry
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(registry *listening.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// EnterRoomRequest 进入房间请求
// clientToken 是客户端自带的不透明令牌，同一令牌在同一房间永远对应同一会话
type EnterRoomRequest struct {
	ClientToken string `json:"clientToken"`
}

// EnterRoomResponse 进入房间响应
type EnterRoomResponse struct {
	Session *model.ListeningSession `json:"session"`
}

// EnterRoomHandler 建立或恢复会话
// 会话引导失败时整个房间都无法工作，这里的错误直接暴露给客户端
func (h *SessionHandler) EnterRoomHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	slug := vars["slug"]

	var req EnterRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	room, err := h.registry.GetRoomBySlug(ctx, slug)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	session, err := h.registry.GetOrCreateSession(ctx, room.ID, req.ClientToken)
	if err != nil {
		logger.Warn("会话引导失败",
			logger.ErrorField(err),
			logger.String("slug", slug))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &EnterRoomResponse{Session: session})
}

// UpdatePositionRequest 位置上报请求
type UpdatePositionRequest struct {
	TrackID  int64 `json:"trackId"`
	Position int   `json:"position"` // 秒
}

// UpdatePositionHandler 覆写会话的当前曲目与播放位置
func (h *SessionHandler) UpdatePositionHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req UpdatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	if err := h.registry.UpdatePosition(ctx, sessionID, req.TrackID, req.Position); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// ListenTimeRequest 收听时长上报请求
type ListenTimeRequest struct {
	TrackID int64 `json:"trackId"`
	Seconds int64 `json:"seconds"`
}

// ListenTimeResponse 收听时长上报响应
type ListenTimeResponse struct {
	TotalSeconds    int64 `json:"totalSeconds"`
	RequiredSeconds int   `json:"requiredSeconds"`
	Unlocked        bool  `json:"unlocked"`
}

// ListenTimeHandler 原子累加收听秒数，返回新的累计值与解锁状态
// 非正的秒数按空操作处理，不报错，避免客户端时钟漂移污染账本
func (h *SessionHandler) ListenTimeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var req ListenTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	if _, err := h.registry.GetSession(ctx, sessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	track, err := h.registry.GetTrack(ctx, req.TrackID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	total, err := h.registry.RecordListenTime(ctx, sessionID, req.TrackID, req.Seconds)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	now := time.Now()
	writeJSON(w, http.StatusOK, &ListenTimeResponse{
		TotalSeconds:    total,
		RequiredSeconds: listening.RequiredUnlockSeconds(track, now),
		Unlocked:        listening.IsUnlocked(track, total, now),
	})
}

// parseSessionID 解析路径里的会话ID
func parseSessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	sessionID, err := strconv.ParseInt(vars["session_id"], 10, 64)
	if err != nil || sessionID <= 0 {
		http.Error(w, "无效的会话ID", http.StatusBadRequest)
		return 0, false
	}
	return sessionID, true
}
