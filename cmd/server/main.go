package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"studyroom/backend/internal/config"
	"studyroom/backend/internal/db"
	"studyroom/backend/internal/gateway"
	"studyroom/backend/internal/handler"
	"studyroom/backend/internal/logging"
	"studyroom/backend/internal/middleware"
	"studyroom/backend/internal/repository"
	"studyroom/backend/internal/router"
	"studyroom/backend/internal/service"
	"studyroom/backend/internal/studyroom"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	if err := db.RunMigrations(database, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userRepo := repository.NewUserRepository(database)
	roomRepo := repository.NewRoomRepository(database)
	taskRepo := repository.NewTaskRepository(database)

	hub := gateway.NewHub()
	rooms := studyroom.NewEngine(roomRepo, taskRepo, hub, cfg.Room)
	defer rooms.Close()

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	roomService := service.NewRoomService(roomRepo, rooms.Registry())

	authHandler := handler.NewAuthHandler(authService)
	roomHandler := handler.NewRoomHandler(roomService, authService)
	origins := middleware.NewOriginPolicy(cfg.CORSOrigins)
	socketHandler := gateway.NewHandler(
		hub,
		rooms,
		gateway.NewIPRateLimiter(ctx, cfg.Gateway.RateLimitPerIP),
		cfg.Gateway,
		origins,
	)

	engine := router.New(authService, authHandler, roomHandler, socketHandler, origins, cfg.Gateway.RequireAuth)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
}
