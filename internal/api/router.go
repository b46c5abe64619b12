package api

import (
	"context"
	"crowdfunding-platform/config"
	"crowdfunding-platform/internal/api/campaign"
	"crowdfunding-platform/internal/api/donation"
	"crowdfunding-platform/internal/api/user"
	"crowdfunding-platform/internal/metrics"
	"crowdfunding-platform/internal/middleware"
	"crowdfunding-platform/internal/model"
	"crowdfunding-platform/internal/util"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger 健康检查依赖，*sql.DB 满足该接口
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers 路由使用的全部处理器
type Handlers struct {
	Auth     *user.AuthHandler
	Campaign *campaign.CampaignHandler
	Donation *donation.DonationHandler
}

// NewRouter 组装中间件与路由
func NewRouter(cfg config.Config, h Handlers, revocations middleware.RevocationChecker, db Pinger) *gin.Engine {
	util.RegisterValidators()

	r := gin.New()
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorMonitorMiddleware())
	r.Use(middleware.RecoveryMiddleware())
	r.Use(metrics.Instrument())

	// 配置 CORS
	corsConfig := cors.DefaultConfig()
	if cfg.FrontendURL != "" {
		corsConfig.AllowOrigins = []string{cfg.FrontendURL}
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
		"X-Request-ID",
	}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Request-ID"}
	r.Use(cors.New(corsConfig))

	r.GET("/health", health(db))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := middleware.AuthMiddleware(revocations)
	creatorOrAdmin := middleware.RequireRoles(model.RoleCreator, model.RoleAdmin)
	adminOnly := middleware.AdminOnly()
	donationLimiter := middleware.NewIPRateLimiter(cfg.DonationRatePerSec, cfg.DonationRateBurst)

	api := r.Group("/api")
	{
		authRoutes := api.Group("/auth")
		authRoutes.POST("/register", h.Auth.Register)
		authRoutes.POST("/login", h.Auth.Login)
		authRoutes.GET("/me", auth, h.Auth.Me)
		authRoutes.POST("/logout", auth, h.Auth.Logout)
		authRoutes.POST("/refresh-token", auth, h.Auth.RefreshToken)
		authRoutes.GET("/users", auth, adminOnly, h.Auth.ListUsers)

		campaigns := api.Group("/campaigns")
		campaigns.GET("", h.Campaign.ListCampaigns)
		campaigns.POST("", auth, creatorOrAdmin, h.Campaign.CreateCampaign)
		campaigns.GET("/creator/my-campaigns", auth, creatorOrAdmin, h.Campaign.MyCampaigns)
		campaigns.GET("/creator/analytics", auth, creatorOrAdmin, h.Campaign.Analytics)
		campaigns.GET("/:id", h.Campaign.GetCampaign)
		campaigns.PUT("/:id", auth, h.Campaign.UpdateCampaign)
		campaigns.DELETE("/:id", auth, h.Campaign.DeleteCampaign)
		campaigns.PUT("/:id/approve", auth, adminOnly, h.Campaign.ApproveCampaign)
		campaigns.PUT("/:id/reject", auth, adminOnly, h.Campaign.RejectCampaign)
		campaigns.POST("/:id/rate", auth, h.Campaign.RateCampaign)

		donations := api.Group("/donations", auth)
		donations.POST("", donationLimiter.Middleware(), h.Donation.CreateDonation)
		donations.GET("/my-donations", h.Donation.MyDonations)
		donations.POST("/refund/request", h.Donation.RequestRefund)
		donations.POST("/refund/process", adminOnly, h.Donation.ProcessRefund)
		donations.GET("/refund/pending", adminOnly, h.Donation.PendingRefunds)
		donations.GET("/suspicious", adminOnly, h.Donation.SuspiciousDonations)

		api.GET("/users/:userId/donations", auth, middleware.OwnerOrAdmin("userId"), h.Donation.UserDonations)
	}

	return r
}

func health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				util.Logger.Warn("健康检查失败", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	}
}
