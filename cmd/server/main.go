package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"nps-sync-service/internal/api"
	"nps-sync-service/internal/config"
	"nps-sync-service/internal/database"
	"nps-sync-service/internal/logger"
	"nps-sync-service/internal/nps"
	"nps-sync-service/internal/store"
	"nps-sync-service/internal/surveymonkey"
	"nps-sync-service/internal/sync"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting NPS Sync Service", zap.String("driver", cfg.Database.Driver))

	// Init Store
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	st := store.NewGormStore(db)
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		logger.Log.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Init Sync Manager
	client := surveymonkey.NewClient(cfg.Remote)
	syncer := sync.NewSyncer(client, st, sync.NewNPSClassifier(cfg.NPS))
	syncManager := sync.NewManager(st, syncer, cfg.Scheduler.Workers)

	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)
	if err := scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Init API
	handler := api.NewHandler(st, syncManager, nps.NewEngine(st), cfg.Server)
	router := handler.Routes()

	// Start Server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}
