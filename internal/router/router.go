// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/gateway"
	"github.com/javajoker/vendormatch-backend/internal/handlers"
	"github.com/javajoker/vendormatch-backend/internal/inference"
	"github.com/javajoker/vendormatch-backend/internal/middleware"
	"github.com/javajoker/vendormatch-backend/internal/models"
	"github.com/javajoker/vendormatch-backend/internal/services"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

// Dependencies are the external collaborators. Tests substitute fakes.
type Dependencies struct {
	Gateway   gateway.Gateway
	Inference inference.Client
	Notifier  services.Notifier
	Storage   *services.StorageService
}

type Services struct {
	Catalog       *services.CatalogService
	Notifications *services.NotificationService
	Storage       *services.StorageService
	Unlocks       *services.UnlockService
	Payments      *services.PaymentService
	Matches       *services.MatchService
	Similarity    *services.SimilarityService
	Batches       *services.BatchService
	Admin         *services.AdminService
}

// DefaultDependencies builds the production collaborators from configuration.
func DefaultDependencies(cfg *config.Config) (Dependencies, error) {
	client, err := inference.NewClient(cfg.Inference)
	if err != nil {
		return Dependencies{}, err
	}
	storage, err := services.NewStorageService(cfg)
	if err != nil {
		return Dependencies{}, err
	}
	return Dependencies{
		Gateway:   gateway.NewStripeGateway(cfg.Payment),
		Inference: client,
		Notifier:  services.NewSMTPNotifier(cfg.Email),
		Storage:   storage,
	}, nil
}

func NewServices(db *gorm.DB, cfg *config.Config, deps Dependencies) *Services {
	catalogService := services.NewCatalogService(db, cfg)
	notificationService := services.NewNotificationService(deps.Notifier, cfg)
	unlockService := services.NewUnlockService(db, cfg, catalogService, notificationService)
	paymentService := services.NewPaymentService(db, cfg, deps.Gateway, catalogService, unlockService, notificationService)

	return &Services{
		Catalog:       catalogService,
		Notifications: notificationService,
		Storage:       deps.Storage,
		Unlocks:       unlockService,
		Payments:      paymentService,
		Matches:       services.NewMatchService(db, cfg, catalogService, deps.Inference),
		Similarity:    services.NewSimilarityService(db, cfg, catalogService, paymentService, deps.Inference),
		Batches:       services.NewBatchService(db, cfg, catalogService, deps.Storage, deps.Inference),
		Admin:         services.NewAdminService(db, catalogService),
	}
}

func Initialize(db *gorm.DB, cfg *config.Config) (*gin.Engine, error) {
	deps, err := DefaultDependencies(cfg)
	if err != nil {
		return nil, err
	}
	return New(db, cfg, NewServices(db, cfg, deps)), nil
}

func New(db *gorm.DB, cfg *config.Config, svc *Services) *gin.Engine {
	// Initialize handlers
	transactionHandler := handlers.NewTransactionHandler(svc.Matches, svc.Unlocks, svc.Payments)
	similarityHandler := handlers.NewSimilarityHandler(svc.Similarity)
	webhookHandler := handlers.NewWebhookHandler(svc.Payments)
	batchHandler := handlers.NewBatchHandler(svc.Batches, svc.Storage)
	adminHandler := handlers.NewAdminHandler(svc.Admin, svc.Catalog, svc.Unlocks)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics())
	r.Use(cors.New(corsConfig(cfg)))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := "healthy"
		code := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": "1.0.0",
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway notifications carry their own signature.
	r.POST("/webhooks/payments", middleware.WebhookRateLimit(), webhookHandler.HandlePayment)

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(middleware.GeneralRateLimit())
	{
		v1.GET("/taxonomy", getTaxonomyHandler)

		// Transaction routes
		transactions := v1.Group("/transactions")
		{
			transactions.POST("", middleware.InferenceRateLimit(), transactionHandler.CreateTransaction)
			transactions.GET("/:id", transactionHandler.GetTransaction)
			transactions.PUT("/:id/selection", transactionHandler.SelectOfferings)
			transactions.POST("/:id/rematch", middleware.InferenceRateLimit(), transactionHandler.Rematch)
			transactions.POST("/:id/checkout", transactionHandler.CreateCheckout)
			transactions.GET("/:id/payment-status", transactionHandler.CheckPaymentStatus)
			transactions.POST("/:id/offerings/:offering_id/rating", transactionHandler.RateOffering)

			// Similar offerings
			transactions.POST("/:id/similar", middleware.InferenceRateLimit(), similarityHandler.Generate)
			transactions.POST("/:id/similar/checkout", similarityHandler.CreateCheckout)
			transactions.POST("/:id/similar/feedback", similarityHandler.RecordFeedback)
		}

		// Session lookups
		sessions := v1.Group("/sessions")
		{
			sessions.GET("/:session_id/transaction", transactionHandler.GetTransactionBySession)
			sessions.GET("/:session_id/payment-status", transactionHandler.CheckPaymentStatusBySession)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.OperatorRequired())
		admin.Use(middleware.AdminRequired())
		admin.Use(middleware.AuditLogMiddleware(db))
		{
			admin.GET("/dashboard/stats", adminHandler.GetDashboardStats)
			admin.GET("/webhook-events", adminHandler.GetWebhookEvents)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)

			// Transaction management
			adminTransactions := admin.Group("/transactions")
			{
				adminTransactions.GET("", adminHandler.GetTransactions)
				adminTransactions.POST("/:id/additional", adminHandler.ApproveAdditional)
			}

			// Catalog moderation
			adminOfferings := admin.Group("/offerings")
			{
				adminOfferings.GET("/pending", adminHandler.GetPendingOfferings)
				adminOfferings.PUT("/:id/activate", adminHandler.ActivateOffering)
				adminOfferings.POST("/dedup", adminHandler.RunDedupPass)
			}

			// Batch enrichment
			batchJobs := admin.Group("/batch-jobs")
			{
				batchJobs.POST("", batchHandler.CreateJob)
				batchJobs.POST("/upload", middleware.UploadRateLimit(), batchHandler.UploadJob)
				batchJobs.GET("", batchHandler.ListJobs)
				batchJobs.GET("/:id", batchHandler.GetJob)
				batchJobs.POST("/:id/advance", batchHandler.Advance)
				batchJobs.POST("/:id/resume", batchHandler.Resume)
				batchJobs.GET("/:id/stuck", batchHandler.StuckRows)
				batchJobs.POST("/:id/rows/:row_id/requeue", batchHandler.RequeueRow)
			}
		}
	}

	return r
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	if cfg.Environment == "development" || cfg.Frontend.BaseURL == "" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.Frontend.BaseURL}
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "Accept-Language")
	corsCfg.ExposeHeaders = []string{"Retry-After", "X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"}
	corsCfg.MaxAge = 12 * time.Hour
	return corsCfg
}

// Helper handlers for simple endpoints
func getTaxonomyHandler(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"categories":      models.Categories,
		"verticals":       models.Verticals,
		"business_models": models.BusinessModels,
	})
}
