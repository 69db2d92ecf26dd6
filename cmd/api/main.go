package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/database"
	"github.com/argus-sec/argus/internal/geoip"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/server"
	"github.com/argus-sec/argus/internal/services"
	"github.com/argus-sec/argus/internal/sweep"
	"github.com/argus-sec/argus/internal/version"
)

func main() {
	logDir := os.Getenv("ARGUS_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join("data", "logs")
	}
	_ = os.MkdirAll(logDir, 0o755)

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "argus.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Environment == "development", io.MultiWriter(os.Stdout, rotator))
	log := logger.Log()

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	// Operational argv commands, run-and-exit.
	if len(os.Args) > 1 && os.Args[1] == "gen-operator-token" {
		token, err := services.NewTokenService(db).Generate()
		if err != nil {
			log.Fatalf("generate operator token: %v", err)
		}
		fmt.Printf("Operator token (shown once, store it safely):\n%s\n", token)
		return
	}

	log.Infof("starting %s %s on port %s", version.Name, version.Full(), cfg.HTTPPort)

	srv, err := server.New(db, cfg)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	events := services.NewEventService(db)
	lists := services.NewIPListService(db)
	alerts := services.NewAlertService(db)
	abuse := services.NewAbuseService(events, lists, cfg.Thresholds)
	responder := services.NewResponseService(lists, events, alerts, cfg.Thresholds)

	var resolver geoip.Resolver
	if cfg.Thresholds.GeoFilterEnabled {
		resolver = geoip.NewHTTPResolver(cfg.GeoAPIBaseURL)
	}
	ddos := services.NewDDoSService(events, lists, cfg.Thresholds, alerts, resolver)

	sweeper := sweep.New(events, abuse, ddos, responder, cfg.Thresholds)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("start sweeper: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infof("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			log.Errorf("server stopped: %v", err)
		}
	}

	sweeper.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
}
