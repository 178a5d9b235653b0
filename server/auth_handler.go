package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"RoomFM/core/auth"
	"RoomFM/logger"
)

// AuthHandler 艺术家登录处理器
type AuthHandler struct {
	authenticator *auth.ArtistAuthenticator
}

// NewAuthHandler 创建登录处理器
func NewAuthHandler(authenticator *auth.ArtistAuthenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// ArtistLoginRequest 艺术家登录请求
type ArtistLoginRequest struct {
	Password string `json:"password"`
}

// ArtistLoginResponse 艺术家登录响应
type ArtistLoginResponse struct {
	Token string `json:"token"`
}

// ArtistLoginHandler 校验口令并签发艺术家 token
func (h *AuthHandler) ArtistLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req ArtistLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "无效的请求", http.StatusBadRequest)
		return
	}

	token, err := h.authenticator.Login(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) || errors.Is(err, auth.ErrNotConfigured) {
			http.Error(w, "口令不正确", http.StatusUnauthorized)
			return
		}
		logger.Error("艺术家登录失败", logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, &ArtistLoginResponse{Token: token})
}
