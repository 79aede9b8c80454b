// internal/router/router.go
package router

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/database"
	"github.com/javajoker/imi-ownership/internal/handlers"
	"github.com/javajoker/imi-ownership/internal/middleware"
	"github.com/javajoker/imi-ownership/internal/services"
	"github.com/javajoker/imi-ownership/internal/utils"
)

// App is the HTTP engine plus the background work that must be drained on shutdown.
type App struct {
	Engine        *gin.Engine
	Notifications *services.NotificationService
	limiter       *middleware.RateLimiter
}

// Close stops the rate limiter janitor and waits for in-flight notifications.
func (a *App) Close() {
	a.limiter.Stop()
	a.Notifications.Wait()
}

func Initialize(db *gorm.DB, cfg *config.Config) (*App, error) {
	// Initialize services
	store := database.NewLedgerStore(db)
	notificationService := services.NewNotificationService(db, nil)
	lineageService := services.NewLineageService(store, cfg)
	assetService := services.NewAssetService(store, cfg, lineageService)
	ownershipService := services.NewOwnershipService(store, cfg)
	disputeService := services.NewDisputeService(store, cfg, notificationService)
	transferService := services.NewTransferService(store, cfg, notificationService)
	exportService, err := services.NewExportService(store, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize export service: %w", err)
	}

	// Initialize handlers
	assetHandler := handlers.NewAssetHandler(assetService, lineageService)
	ownershipHandler := handlers.NewOwnershipHandler(ownershipService, transferService, exportService)
	disputeHandler := handlers.NewDisputeHandler(disputeService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	adminHandler := handlers.NewAdminHandler(disputeService, lineageService, ownershipService, notificationService)

	// Set JWT verification config
	utils.SetJWTConfig(cfg.JWT.SecretKey, cfg.JWT.Issuer)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestContext())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": "1.0.0",
		})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(limiter.Middleware())
	{
		// Asset routes
		assets := v1.Group("/assets")
		{
			assets.GET("/:id", assetHandler.GetAsset)
			assets.GET("/:id/lineage", assetHandler.GetLineage)
			assets.GET("/:id/descendants", assetHandler.GetDescendants)
			assets.GET("/:id/owners", ownershipHandler.GetOwners)
			assets.GET("/:id/ownership/summary", ownershipHandler.GetOwnershipSummary)
			assets.GET("/:id/ownership/history", ownershipHandler.GetOwnershipHistory)

			// Authenticated routes
			protected := assets.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("/confirm", assetHandler.ConfirmAsset)
				protected.POST("/derivatives", assetHandler.CreateDerivative)
				protected.DELETE("/:id", assetHandler.RetireAsset)
				protected.PUT("/:id/permissions", assetHandler.UpdatePermissions)
				protected.POST("/:id/transfers", ownershipHandler.Transfer)
				protected.POST("/:id/export", ownershipHandler.ExportSnapshot)
			}
		}

		// Ownership routes
		ownership := v1.Group("/ownership")
		{
			ownership.POST("/validate", ownershipHandler.ValidateOwnership)
			ownership.POST("/:id/dispute", middleware.AuthRequired(), disputeHandler.FlagDispute)
			ownership.PUT("/:id/resolve", middleware.AuthRequired(), middleware.AdminRequired(), disputeHandler.ResolveDispute)
		}

		// Creator routes
		v1.GET("/creators/:id/assets", ownershipHandler.GetCreatorAssets)

		// Notification routes
		notifications := v1.Group("/notifications")
		notifications.Use(middleware.AuthRequired())
		{
			notifications.GET("", notificationHandler.GetNotifications)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.GET("/disputes", adminHandler.GetDisputes)
			admin.GET("/notifications", adminHandler.GetNotifications)
			admin.GET("/ledgers/audit", adminHandler.AuditLedgers)

			adminAssets := admin.Group("/assets")
			{
				adminAssets.PUT("/:id/parent", adminHandler.AttachParent)
				adminAssets.POST("/:id/lineage/recompute", adminHandler.RecomputeLineage)
				adminAssets.GET("/:id/audit/verify", adminHandler.VerifyAuditChain)
			}
		}
	}

	return &App{Engine: r, Notifications: notificationService, limiter: limiter}, nil
}
