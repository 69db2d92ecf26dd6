package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/api/handlers"
	"github.com/argus-sec/argus/internal/api/middleware"
	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// Register wires up API routes and performs automatic migrations.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) error {
	if err := db.AutoMigrate(
		&models.SecurityEvent{},
		&models.IPListEntry{},
		&models.Alert{},
		&models.AlertChannel{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	events := services.NewEventService(db)
	lists := services.NewIPListService(db)
	alerts := services.NewAlertService(db)
	tokens := services.NewTokenService(db)
	limiter := services.NewRateLimitService(events, lists, cfg.Thresholds)
	abuse := services.NewAbuseService(events, lists, cfg.Thresholds)
	responder := services.NewResponseService(lists, events, alerts, cfg.Thresholds)

	gate := handlers.NewGateHandler(limiter, abuse, lists, responder)
	ipLists := handlers.NewIPListHandler(lists, events)
	alertH := handlers.NewAlertHandler(alerts)
	health := handlers.NewHealthHandler(db)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	router.GET("/healthz", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	operator := middleware.RequireOperator(cfg.JWTSecret, tokens)

	v1 := router.Group("/api/v1")
	{
		g := v1.Group("/gate")
		g.POST("/check", gate.Check)
		g.POST("/record", gate.Record)
		g.GET("/stats/:ip", gate.Stats)
		g.POST("/analyze", gate.Analyze)
		g.POST("/reset", operator, gate.Reset)
		g.POST("/block", operator, gate.Block)
		g.POST("/unblock", operator, gate.Unblock)

		l := v1.Group("/lists")
		l.GET("", ipLists.List)
		l.POST("/whitelist", operator, ipLists.AddWhitelist)
		l.POST("/blacklist", operator, ipLists.AddBlacklist)
		l.DELETE("/:type/:ip", operator, ipLists.Remove)

		v1.GET("/events", ipLists.RecentEvents)

		a := v1.Group("/alerts")
		a.GET("", alertH.List)
		a.GET("/channels", alertH.ListChannels)
		a.POST("/channels", operator, alertH.CreateChannel)
		a.DELETE("/channels/:uuid", operator, alertH.DeleteChannel)
	}

	return nil
}
