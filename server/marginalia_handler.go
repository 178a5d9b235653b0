package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"RoomFM/core/auth"
	"RoomFM/core/marginalia"
	"RoomFM/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// MarginaliaHandler 旁注的 HTTP 与 WebSocket 接口
type MarginaliaHandler struct {
	store         *marginalia.Store
	hub           *marginalia.Hub
	authenticator *auth.ArtistAuthenticator
	upgrader      websocket.Upgrader
}

// NewMarginaliaHandler 创建旁注处理器
func NewMarginaliaHandler(store *marginalia.Store, hub *marginalia.Hub, authenticator *auth.ArtistAuthenticator) *MarginaliaHandler {
	return &MarginaliaHandler{
		store:         store,
		hub:           hub,
		authenticator: authenticator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ListHandler 获取曲目的旁注列表（按播放位置排序，回复挂在各自父节点下）
// 艺术家可以看到已淡出的条目
func (h *MarginaliaHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	trackID, ok := parseTrackID(w, r)
	if !ok {
		return
	}

	includeArtist := isArtistRequest(r, h.authenticator)
	threads, err := h.store.List(ctx, trackID, includeArtist)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, threads)
}

// CreateMarginaliaRequest 创建旁注请求
type CreateMarginaliaRequest struct {
	SessionID int64  `json:"sessionId"`
	Content   string `json:"content"`
	Timestamp int    `json:"timestamp"` // 播放位置（秒）
	ParentID  *int64 `json:"parentId,omitempty"`
}

// CreateHandler 创建旁注
// 创建/删除失败必须让调用方看到（不存在静默重试），由前端保留草稿
func (h *MarginaliaHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	trackID, ok := parseTrackID(w, r)
	if !ok {
		return
	}

	var req CreateMarginaliaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	view, err := h.store.Create(ctx, marginalia.CreateInput{
		TrackID:   trackID,
		SessionID: req.SessionID,
		Content:   req.Content,
		Timestamp: req.Timestamp,
		ParentID:  req.ParentID,
		IsArtist:  isArtistRequest(r, h.authenticator),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// DeleteHandler 艺术家专属的硬删除
func (h *MarginaliaHandler) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	trackID, ok := parseTrackID(w, r)
	if !ok {
		return
	}
	marginaliaID, ok := parseMarginaliaID(w, r)
	if !ok {
		return
	}

	err := h.store.Delete(ctx, trackID, marginaliaID, isArtistRequest(r, h.authenticator))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "已删除"})
}

// FadeRequest 淡出开关请求
type FadeRequest struct {
	Faded bool `json:"faded"`
}

// FadeHandler 艺术家专属的淡出开关
func (h *MarginaliaHandler) FadeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	trackID, ok := parseTrackID(w, r)
	if !ok {
		return
	}
	marginaliaID, ok := parseMarginaliaID(w, r)
	if !ok {
		return
	}

	var req FadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	err := h.store.SetFaded(ctx, trackID, marginaliaID, req.Faded, isArtistRequest(r, h.authenticator))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// WebSocketHandler 订阅曲目的实时旁注事件
// 连接建立即订阅路径中的曲目，之后可通过 subscribe/unsubscribe 消息调整
func (h *MarginaliaHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	trackID, ok := parseTrackID(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket 升级失败", logger.ErrorField(err))
		return
	}

	client := marginalia.NewClient(h.hub, conn)
	h.hub.Subscribe(trackID, client)

	go client.WritePump()
	go client.ReadPump(context.Background())

	logger.Info("marginalia subscriber connected",
		logger.Int64("trackId", trackID),
		logger.String("client", client.ID))
}

// parseTrackID 解析路径里的曲目ID
func parseTrackID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	trackID, err := strconv.ParseInt(vars["track_id"], 10, 64)
	if err != nil || trackID <= 0 {
		http.Error(w, "无效的曲目ID", http.StatusBadRequest)
		return 0, false
	}
	return trackID, true
}

// parseMarginaliaID 解析路径里的旁注ID
func parseMarginaliaID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "无效的旁注ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
