package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptovision_backend/config"
	"cryptovision_backend/middleware"
	"cryptovision_backend/models"
	"cryptovision_backend/routes"
	"cryptovision_backend/scheduler"
	"cryptovision_backend/security"
	"cryptovision_backend/services"
	"cryptovision_backend/services/feed"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	log.Println("==============================================")
	log.Println("  CryptoVision Backend API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	// Run database migrations
	log.Println("Running database migrations...")
	if err := runMigrations(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if cfg.EnableTimescaleDB {
		models.SetupHypertables(db, cfg.ChunkTimeInterval, cfg.EnableCompression)
	}
	log.Println("Database migrations completed successfully")

	// Seed default superuser on an empty database
	if err := models.SeedDefaultSuperuser(db, cfg.FirstSuperuserEmail, cfg.FirstSuperuserPassword); err != nil {
		log.Printf("Warning: Could not seed superuser: %v", err)
	}

	// Initialize shared services
	tokens := security.NewTokenMaker(cfg.JWTSecret, cfg.AccessTokenExpire, cfg.RefreshTokenExpire)
	limiter := middleware.NewLoginRateLimiter(5, 15*time.Minute, 15*time.Minute)
	prices := services.NewPriceService(db, cfg.EnableTimescaleDB)
	modelSvc := services.NewModelService(db)

	archive, err := services.NewArchiveService(cfg.MongoURI)
	if err != nil {
		log.Printf("Alert event archive unavailable: %v", err)
	}

	ticks, err := services.NewTickStore(cfg.TickStorePath)
	if err != nil {
		log.Printf("Tick archive unavailable: %v", err)
	}

	alerts := services.NewAlertService(db, archive)

	// Create Gin router
	router := gin.New()
	// symbols like BTC/USDT arrive percent-encoded in path params
	router.UseRawPath = true
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(requestLogger())

	setupHealthEndpoints(router, db)

	routes.SetupRoutes(router, routes.Deps{
		DB:      db,
		Tokens:  tokens,
		Limiter: limiter,
		Prices:  prices,
		Alerts:  alerts,
		Models:  modelSvc,
	})

	// Start market data feed if configured
	var consumer *feed.Consumer
	if cfg.FeedURL != "" {
		consumer = feed.NewConsumer(cfg.FeedURL, alerts, ticks)
		consumer.Start()
	} else {
		log.Println("MARKET_FEED_URL not set, market feed disabled")
	}

	// Start background scheduler
	jobScheduler := scheduler.NewScheduler(db, alerts, ticks, cfg.PriceRetentionDays)
	go jobScheduler.Start()

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	gracefulShutdown(server, db, jobScheduler, consumer, ticks, archive)
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := models.MigrateUserModels(db); err != nil {
		return err
	}
	if err := models.MigrateCryptoModels(db); err != nil {
		return err
	}
	return models.MigrateAlertModels(db)
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine, db *gorm.DB) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "CryptoVision Backend API",
			"version": "1.0.0",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// corsMiddleware returns a CORS middleware restricted to the configured
// origins
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown drains the HTTP server, then stops the background
// workers and closes the optional stores
func gracefulShutdown(server *http.Server, db *gorm.DB, jobScheduler *scheduler.Scheduler, consumer *feed.Consumer, ticks *services.TickStore, archive *services.ArchiveService) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if consumer != nil {
		consumer.Stop()
	}
	jobScheduler.Stop()

	if ticks != nil {
		if err := ticks.Close(); err != nil {
			log.Printf("Tick archive close error: %v", err)
		}
	}
	if archive != nil {
		archive.Close()
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Println("Shutdown complete")
}
