package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"RoomFM/cache"
	"RoomFM/config"
	"RoomFM/core/auth"
	"RoomFM/core/listening"
	"RoomFM/core/marginalia"
	"RoomFM/db"
	"RoomFM/logger"
	"RoomFM/model"
	"RoomFM/repository"
	"RoomFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: 5,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	})

	// Connect to the database
	if err := db.Connect(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.Close()

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	// Initialize database schema
	if err := db.AutoMigrateModels(
		&model.Room{},
		&model.Track{},
		&model.ListeningSession{},
		&model.ListenTimeEntry{},
		&model.Marginalia{},
	); err != nil {
		logger.Fatal("Failed to migrate database", logger.ErrorField(err))
	}

	// MinIO 不可用时仅禁用音频代理，引擎其余部分照常工作
	audioEnabled := true
	if err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO unavailable, audio proxy disabled", logger.ErrorField(err))
		audioEnabled = false
	}

	// 组装仓库与业务组件
	roomRepo := repository.NewGormRoomRepository(db.DB)
	sessionRepo := repository.NewGormSessionRepository(db.DB)
	ledgerRepo := repository.NewGormLedgerRepository(db.DB)
	marginaliaRepo := repository.NewGormMarginaliaRepository(db.DB)

	sessionCache := cache.NewSessionCache()
	registry := listening.NewRegistry(roomRepo, sessionRepo, ledgerRepo, sessionCache)

	hub := marginalia.NewHub()
	store := marginalia.NewStore(marginaliaRepo, sessionRepo, roomRepo, hub)

	authenticator := auth.NewArtistAuthenticator(cfg.JWTSecret, cfg.ArtistPasswordHash)

	roomHandler := NewRoomHandler(registry)
	sessionHandler := NewSessionHandler(registry)
	marginaliaHandler := NewMarginaliaHandler(store, hub, authenticator)
	authHandler := NewAuthHandler(authenticator)

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	// 艺术家认证
	router.HandleFunc("/api/auth/artist/login", authHandler.ArtistLoginHandler).Methods(http.MethodPost)

	// 房间与会话
	router.HandleFunc("/api/rooms/{slug}", roomHandler.GetRoomHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/rooms/{slug}/session", sessionHandler.EnterRoomHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/session/{session_id}/position", sessionHandler.UpdatePositionHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/session/{session_id}/listen-time", sessionHandler.ListenTimeHandler).Methods(http.MethodPost)

	// 旁注
	router.HandleFunc("/api/tracks/{track_id}/marginalia", marginaliaHandler.ListHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{track_id}/marginalia", marginaliaHandler.CreateHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_id}/marginalia/{id}", marginaliaHandler.DeleteHandler).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{track_id}/marginalia/{id}/fade", marginaliaHandler.FadeHandler).Methods(http.MethodPost)

	// WebSocket 订阅
	router.HandleFunc("/ws/track/{track_id}", marginaliaHandler.WebSocketHandler)

	// 音频代理
	if audioEnabled {
		router.PathPrefix("/audio/").HandlerFunc(AudioHandler(cfg))
	}

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 在goroutine中启动服务器
	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ServerAddr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("shutting down server")

	// 优雅关闭，5秒超时
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}
