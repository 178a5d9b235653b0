package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"RoomFM/core/listening"
	"RoomFM/core/marginalia"
)

// writeJSON 输出 JSON 响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError 把业务错误映射为 HTTP 状态码
// not-found / 校验 / 授权错误各自独立，调用方能区分“参数不合法”和“对象不存在”
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, listening.ErrRoomNotFound),
		errors.Is(err, listening.ErrSessionNotFound),
		errors.Is(err, listening.ErrTrackNotFound),
		errors.Is(err, marginalia.ErrNotFound),
		errors.Is(err, marginalia.ErrTrackNotFound),
		errors.Is(err, marginalia.ErrSessionNotFound),
		errors.Is(err, marginalia.ErrParentNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)

	case errors.Is(err, marginalia.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)

	case errors.Is(err, listening.ErrInvalidToken),
		errors.Is(err, marginalia.ErrContentLength),
		errors.Is(err, marginalia.ErrBadTimestamp),
		errors.Is(err, marginalia.ErrSessionNotInRoom),
		errors.Is(err, marginalia.ErrParentMismatch),
		errors.Is(err, marginalia.ErrReplyTooDeep):
		http.Error(w, err.Error(), http.StatusBadRequest)

	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
