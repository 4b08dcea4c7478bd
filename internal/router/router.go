package router

import (
	"github.com/blues/fps/internal/config"
	"github.com/blues/fps/internal/escrow"
	"github.com/blues/fps/internal/handler"
	"github.com/blues/fps/internal/ledger"
	"github.com/blues/fps/internal/logic"
	"github.com/blues/fps/internal/support"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(db *gorm.DB, chain escrow.Client, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "freelance-payment-service",
		})
	})

	store := ledger.NewDatabase(db)
	reconciler := logic.NewReconcileLogic(store, chain)
	milestoneLogic := logic.NewMilestoneLogic(store)
	sink := support.NewSink(cfg.Support)

	jobHandler := handler.NewJobHandler(
		logic.NewJobLogic(store, chain),
		milestoneLogic,
		reconciler,
		logic.NewCancellationLogic(store, chain, reconciler, sink),
	)
	milestoneHandler := handler.NewMilestoneHandler(
		milestoneLogic,
		logic.NewApprovalLogic(store, chain, reconciler),
		logic.NewClaimLogic(store, chain, reconciler),
	)

	// API版本组
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.GetJobs)
			jobs.GET("/:id", jobHandler.GetJob)
			jobs.PUT("/:id/freelancer", jobHandler.AssignFreelancer)
			jobs.POST("/:id/fund", jobHandler.FundJob)
			jobs.POST("/:id/reconcile", jobHandler.ReconcileJob)
			jobs.GET("/:id/cancellation", jobHandler.EvaluateCancellation)
			jobs.POST("/:id/cancel", jobHandler.CancelJob)
			jobs.GET("/:id/transactions", jobHandler.GetTransactions)

			jobs.POST("/:id/milestones/:stage/start", milestoneHandler.StartMilestone)
			jobs.POST("/:id/milestones/:stage/submit", milestoneHandler.SubmitMilestone)
			jobs.POST("/:id/milestones/:stage/revision", milestoneHandler.RequestRevision)
			jobs.POST("/:id/milestones/:stage/approve", milestoneHandler.ApproveMilestone)
			jobs.POST("/:id/milestones/:stage/claim", milestoneHandler.ClaimMilestone)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Wallet-Address")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
