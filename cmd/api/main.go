package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"energy-mca/internal/api"
	"energy-mca/internal/config"
	"energy-mca/internal/data"
	"energy-mca/pkg/logger"
	"energy-mca/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func main() {
	settingsPath := flag.String("settings", "", "Path to a YAML settings file (default $MCA_SETTINGS)")
	flag.Parse()

	settings, err := config.LoadSettings(*settingsPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if err := logger.Init(logger.Options{Format: settings.LogFormat, Level: settings.LogLevel}); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	lg := logger.Named("server")
	ctx := context.Background()

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	cache := data.NewResultCache(settings.CacheTTL, time.Minute)
	defer cache.Close()

	var origins []string
	if o := os.Getenv("CORS_ORIGINS"); o != "" {
		origins = strings.Split(o, ",")
	}

	router := api.NewRouter(api.Options{
		Settings:     settings.Settings,
		Cache:        cache,
		ModelDir:     os.Getenv("MODEL_DIR"),
		MaxBodyBytes: settings.MaxBodyBytes,
		Origins:      origins,
		Logger:       logger.Named("http"),
		Metrics:      metrics.Default(),
	})

	srv := &http.Server{
		Addr:              settings.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info(ctx, "starting API server", logger.String("addr", settings.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error(ctx, "shutdown", logger.Error(err))
	}
}
