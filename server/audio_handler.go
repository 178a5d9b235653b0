package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"RoomFM/config"
	"RoomFM/logger"
	"RoomFM/storage"
)

// AudioHandler 音频对象的只读代理
// 曲目的 audioPath 指向对象存储中的路径，由这里流式转发给播放器
func AudioHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		objectPath := strings.TrimPrefix(r.URL.Path, "/audio/")
		if objectPath == "" || strings.Contains(objectPath, "..") {
			http.Error(w, "无效的路径", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		object, err := storage.GetAudioObject(ctx, cfg.MinioBucket, objectPath)
		if err != nil {
			http.Error(w, "文件不存在", http.StatusNotFound)
			return
		}
		defer object.Close()

		var contentType string
		switch {
		case strings.HasSuffix(objectPath, ".mp3"):
			contentType = "audio/mpeg"
		case strings.HasSuffix(objectPath, ".ogg"):
			contentType = "audio/ogg"
		case strings.HasSuffix(objectPath, ".flac"):
			contentType = "audio/flac"
		default:
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=31536000") // 缓存一年

		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("音频转发中断", logger.ErrorField(err))
		}
	}
}
