package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rivaldorose/konsensi-workspace/internal/api"
	"github.com/rivaldorose/konsensi-workspace/internal/auth"
	"github.com/rivaldorose/konsensi-workspace/internal/chat"
	"github.com/rivaldorose/konsensi-workspace/internal/config"
	"github.com/rivaldorose/konsensi-workspace/internal/database"
	"github.com/rivaldorose/konsensi-workspace/internal/gateway"
	"github.com/rivaldorose/konsensi-workspace/internal/querycache"
	"github.com/rivaldorose/konsensi-workspace/internal/realtime"
	redisclient "github.com/rivaldorose/konsensi-workspace/internal/redis"
	"github.com/rivaldorose/konsensi-workspace/internal/service"
	"github.com/rivaldorose/konsensi-workspace/internal/snowflake"
	"github.com/rivaldorose/konsensi-workspace/internal/storage"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	ctx := context.Background()

	// --- Infrastructure ---

	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("postgres", err)
	}
	defer pool.Close()

	rdb, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		fatal("redis", err)
	}
	defer rdb.Close()

	sf, err := snowflake.NewGenerator(cfg.NodeID)
	if err != nil {
		fatal("snowflake", err)
	}
	tokenSvc := auth.NewTokenService(cfg.JWTSecret)
	bus := realtime.NewRedisBus(rdb)
	cache := querycache.New(querycache.WithStaleTime(cfg.CacheStaleTime))

	var files service.FileStorage
	if cfg.StorageEnabled() {
		mc, err := storage.NewMinIOClient(ctx, storage.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.MinIOPublicURL,
		})
		if err != nil {
			fatal("minio", err)
		}
		files = mc
	} else {
		slog.Warn("object storage not configured, uploads disabled")
	}

	// --- Repositories ---

	users := database.NewUserRepository(pool)
	channels := database.NewChannelRepository(pool)
	members := database.NewMemberRepository(pool)
	messages := database.NewMessageRepository(pool)

	// --- Domain ---

	directory := chat.NewDirectory(channels, members, cache)
	messageSvc := service.NewMessageService(messages, channels, members, sf, bus, cache)
	composer := chat.NewComposer(messageSvc, cache)

	gwManager := gateway.NewManager(gateway.Options{
		Tokens:    tokenSvc,
		Directory: directory,
		Members:   members,
		Messages:  messages,
		Bus:       bus,
		Cache:     cache,
		Composer:  composer,
		Location:  cfg.Location,

		AllowedOrigins: cfg.AllowedOrigins,
	})

	channelSvc := service.NewChannelService(channels, members, users, directory, sf, gwManager)

	// --- Handlers ---

	deps := &api.Dependencies{
		Auth:         api.NewAuthHandler(service.NewAuthService(users, tokenSvc, rdb, sf)),
		Users:        api.NewUserHandler(service.NewUserService(users, files)),
		Channels:     api.NewChannelHandler(channelSvc),
		Members:      api.NewMemberHandler(channelSvc),
		Messages:     api.NewMessageHandler(messageSvc, composer, cfg.Location),
		Reactions:    api.NewReactionHandler(messageSvc),
		Uploads:      api.NewUploadHandler(service.NewUploadService(members, sf, files)),
		Gateway:      gwManager,
		TokenService: tokenSvc,
		RateLimiter:  rdb,
	}

	// --- Echo ---

	e := echo.New()
	e.HidePort = true
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	corsOrigins := []string{"*"}
	if len(cfg.AllowedOrigins) > 0 {
		corsOrigins = cfg.AllowedOrigins
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.SetupRouter(e, deps)

	// --- Start ---

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("workspace starting", "addr", cfg.ServerAddr, "timezone", cfg.Location.String())
		if err := e.Start(cfg.ServerAddr); err != nil && err != http.ErrServerClosed {
			fatal("server", err)
		}
	}()

	<-sigCtx.Done()
	slog.Info("shutting down")
	gwManager.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
}

func fatal(component string, err error) {
	slog.Error("startup failed", "component", component, "error", err)
	os.Exit(1)
}
