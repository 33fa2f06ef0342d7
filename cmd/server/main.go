package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ValeryJL/InsanusChat-Backend/internal/models"
	"github.com/ValeryJL/InsanusChat-Backend/internal/tools"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/config"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/di"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/observability"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/router"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := config.New()

	appLogger := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.Format == "json",
	})
	logger.SetGlobal(appLogger)

	db, err := config.NewDB()
	if err != nil {
		appLogger.Error("database connection failed", "error", err.Error())
		os.Exit(1)
	}

	if err := db.AutoMigrate(&models.Chat{}, &models.Message{}, &tools.Entry{}); err != nil {
		appLogger.Error("migration failed", "error", err.Error())
		os.Exit(1)
	}

	shutdownTracing := observability.SetupTracing("insanuschat-backend")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	container, err := di.New(db, cfg, appLogger)
	if err != nil {
		appLogger.Error("dependency wiring failed", "error", err.Error())
		os.Exit(1)
	}
	defer container.Close()

	r := router.New(container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r.Engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: 0, // websocket responses outlive any fixed write budget
	}

	go func() {
		appLogger.Info("server listening", "port", cfg.Server.Port, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server stopped", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("graceful shutdown failed", "error", err.Error())
	}
}
