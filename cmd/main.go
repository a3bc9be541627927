package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taproom/internal/api"
	"taproom/internal/auth"
	"taproom/internal/broadcast"
	"taproom/internal/catalog"
	"taproom/internal/config"
	"taproom/internal/database"
	"taproom/internal/models"
	"taproom/internal/monitoring"
	"taproom/internal/orders"
	"taproom/internal/pricing"
	"taproom/internal/routing"
	"taproom/internal/stock"
	"taproom/internal/workspace"
)

var (
	port        = flag.Int("port", 0, "API server port (overrides config)")
	metricsPort = flag.Int("metrics-port", 0, "Metrics server port (overrides config)")
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *metricsPort != 0 {
		cfg.Server.MetricsPort = *metricsPort
	}

	if err := database.InitDB(cfg.Database.Dialect, cfg.Database.DSN); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()
	db := database.GetDB()

	// Seed the reservation overlay from the durable stock baseline.
	store := catalog.NewStore(db)
	snapshot, err := store.Snapshot()
	if err != nil {
		log.Fatalf("Failed to snapshot catalog stock: %v", err)
	}
	tracker := stock.NewTracker(store, cfg.Stock.LowWater)
	tracker.Initialize(snapshot)

	pricer := pricing.Resolver{HappyHour: pricing.Window{
		Start: cfg.Pricing.HappyHour.Start,
		End:   cfg.Pricing.HappyHour.End,
	}}
	hub := broadcast.NewHub()
	drafts := workspace.NewManager(store, tracker, pricer)
	ordersSvc := orders.NewService(db, store, tracker, routing.NewEngine(store), hub, drafts, cfg.Pricing.TaxRate)
	checker := auth.NewChecker(cfg.Auth.Secret, cfg.Auth.PrivilegedRoles)

	seedGauges(db)

	apiServer := api.NewServer(drafts, ordersSvc, tracker, checker, hub)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router,
	}

	go startMetricsServer(cfg.Server.MetricsPort)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down servers...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}()

	log.Printf("Starting API server on port %d", cfg.Server.Port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("API server error: %v", err)
	}
}

// seedGauges initializes level metrics from durable state on startup
func seedGauges(db *gorm.DB) {
	var open int
	if err := db.Model(&models.TabSession{}).
		Where("status = ?", models.SessionStatusOpen).
		Count(&open).Error; err != nil {
		log.Printf("Failed to count open sessions: %v", err)
		return
	}
	monitoring.OpenSessions.Set(float64(open))
}

func startMetricsServer(port int) {
	metricsRouter := gin.Default()
	metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: metricsRouter,
	}

	log.Printf("Starting metrics server on port %d", port)
	if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Printf("Metrics server error: %v", err)
	}
}
