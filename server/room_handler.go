package server

import (
	"net/http"
	"strconv"

	"RoomFM/core/listening"
	"RoomFM/model"

	"github.com/gorilla/mux"
)

// RoomHandler 房间只读接口
type RoomHandler struct {
	registry *listening.Registry
}

// NewRoomHandler 创建房间处理器
func NewRoomHandler(registry *listening.Registry) *RoomHandler {
	return &RoomHandler{registry: registry}
}

// RoomResponse 房间响应：曲目附衰退状态与解锁信息
type RoomResponse struct {
	*model.RoomView
	OnlineCount int64 `json:"onlineCount"`
}

// GetRoomHandler 按 slug 获取房间及曲目
// 可选的 session 查询参数用于附带该会话的账本与解锁状态
func (h *RoomHandler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	slug := vars["slug"]

	if slug == "" {
		http.Error(w, "房间标识不能为空", http.StatusBadRequest)
		return
	}

	room, err := h.registry.GetRoomBySlug(ctx, slug)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var sessionID int64
	if s := r.URL.Query().Get("session"); s != "" {
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil && parsed > 0 {
			sessionID = parsed
		}
	}

	view, err := h.registry.BuildRoomView(ctx, room, sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, &RoomResponse{
		RoomView:    view,
		OnlineCount: h.registry.OnlineCount(ctx, room.ID),
	})
}
