package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"Lifeline/internal/auth"
	"Lifeline/internal/geo"
	handlers "Lifeline/internal/handler"
	"Lifeline/internal/models"
	"Lifeline/internal/presence"
	"Lifeline/internal/sos"
	"Lifeline/pkg/backup"
	"Lifeline/pkg/config"
	"Lifeline/pkg/logger"
	"Lifeline/pkg/middleware"
	"Lifeline/pkg/scheduler"
	"Lifeline/pkg/websocket"
)

func main() {
	if err := config.Load(); err != nil {
		logger.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	logger.Init(cfg.Log)
	defer logger.Sync()

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := models.InitDB(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Fatalf("init database: %v", err)
	}

	geoIndex, err := geo.NewIndex(cfg.GeoBackend, geo.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       int(cfg.RedisDB),
		Key:      "lifeline:geo:users",
	})
	if err != nil {
		logger.Fatalf("init geo index: %v", err)
	}
	defer geoIndex.Close()

	// 实时通道与在线登记表
	hub := websocket.NewHub(websocket.LoadConfigFromEnv())
	registry := presence.NewRegistry()
	hub.OnHelperRegister = func(identityID string, conn *websocket.Connection) {
		registry.Register(identityID, conn)
	}
	hub.OnDisconnect = func(conn *websocket.Connection) {
		registry.Unregister(conn)
	}
	defer hub.Close()

	tokens := auth.NewManager(cfg.JWTSecret, time.Duration(cfg.TokenExpireHours)*time.Hour)
	gate := auth.NewGate(tokens, db)

	svc := sos.NewService(db, geoIndex, hub,
		sos.WithIdentityChangeHook(gate.InvalidateCache))

	// 冷却窗口过后恢复触发资格
	cooldown := time.Duration(cfg.SOSCooldownMinutes) * time.Minute
	cr := scheduler.NewCron(nil)
	if _, err := cr.Add("@every 1m", sos.NewCooldownSweeper(db, cooldown, gate.InvalidateCache)); err != nil {
		logger.Fatalf("schedule cooldown sweeper: %v", err)
	}
	if err := backup.Schedule(cr, cfg.BackupSchedule, backup.Config{
		Driver: cfg.DBDriver,
		DSN:    cfg.DSN,
		Path:   cfg.BackupPath,
	}); err != nil {
		logger.Fatalf("schedule backup: %v", err)
	}
	cr.Start()
	defer cr.Stop()

	if cfg.RateLimit != "" {
		rlCfg := middleware.GetRateLimiterConfig()
		rlCfg.Rate = cfg.RateLimit
		middleware.SetRateLimiterConfig(rlCfg)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	h := handlers.New(db, svc, gate, tokens, hub, registry)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("lifeline listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
