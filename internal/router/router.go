// internal/router/router.go
package router

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/cache"
	"github.com/javajoker/wildlife-licensing/internal/config"
	"github.com/javajoker/wildlife-licensing/internal/handlers"
	"github.com/javajoker/wildlife-licensing/internal/metrics"
	"github.com/javajoker/wildlife-licensing/internal/middleware"
	"github.com/javajoker/wildlife-licensing/internal/services"
	"github.com/javajoker/wildlife-licensing/internal/utils"
)

const Version = "1.0.0"

// Infrastructure carries the connections opened by the caller. Redis, Transport
// and Directory are optional; Storage and Registry are required.
type Infrastructure struct {
	Redis     *redis.Client
	Storage   *services.StorageService
	Registry  *prometheus.Registry
	Transport services.Transport
	Directory services.Directory
	Clock     func() time.Time
}

func Initialize(ctx context.Context, db *gorm.DB, cfg *config.Config, infra Infrastructure) *gin.Engine {
	m := metrics.New(infra.Registry)

	// Initialize services
	notificationService := services.NewNotificationService(db, cfg, m)
	if infra.Transport != nil {
		notificationService.SetTransport(infra.Transport)
	}
	directory := infra.Directory
	if directory == nil {
		directory = services.NewDirectoryService(cfg.Directory)
	}
	groupCache := cache.NewGroupCache(infra.Redis, time.Duration(cfg.Redis.TTL)*time.Second)

	auditService := services.NewAuditService(db)
	authorizationService := services.NewAuthorizationService(groupCache, m)
	groupService := services.NewGroupService(db, authorizationService, auditService)
	complianceService := services.NewComplianceService(db, authorizationService, auditService, m)
	documentService := services.NewDocumentService(infra.Storage)
	proposalService := services.NewProposalService(db, cfg, authorizationService, auditService, notificationService, documentService, complianceService, m)
	referralService := services.NewReferralService(db, authorizationService, auditService, directory, notificationService, m)
	requirementService := services.NewRequirementService(db, authorizationService, auditService)
	approvalService := services.NewApprovalService(db, infra.Storage)
	userService := services.NewUserService(db)
	if infra.Clock != nil {
		proposalService.SetClock(infra.Clock)
		complianceService.SetClock(infra.Clock)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(db, infra.Redis, Version)
	proposalHandler := handlers.NewProposalHandler(proposalService, auditService)
	referralHandler := handlers.NewReferralHandler(referralService)
	requirementHandler := handlers.NewRequirementHandler(requirementService)
	groupHandler := handlers.NewGroupHandler(groupService)
	complianceHandler := handlers.NewComplianceHandler(complianceService, approvalService)
	userHandler := handlers.NewUserHandler(userService)

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	utils.SetJWTIssuer(cfg.JWT.Issuer)

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
	go limiter.Run(ctx)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Frontend.BaseURL))
	r.Use(middleware.I18nMiddleware())

	r.GET("/health", healthHandler.Health)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(infra.Registry, promhttp.HandlerOpts{})))
	}

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(limiter.Middleware(), middleware.AuthRequired(db))
	{
		v1.GET("/users/me", userHandler.GetMe)
		v1.PUT("/users/me", userHandler.UpdateProfile)

		proposals := v1.Group("/proposals")
		{
			proposals.POST("", proposalHandler.CreateProposal)
			proposals.GET("", proposalHandler.GetProposals)
			proposals.GET("/:id", proposalHandler.GetProposal)
			proposals.PUT("/:id", proposalHandler.SaveDraft)
			proposals.POST("/:id/submit", proposalHandler.SubmitProposal)
			proposals.POST("/:id/discard", proposalHandler.Discard)

			// Department officers only
			officer := proposals.Group("")
			officer.Use(middleware.StaffRequired())
			{
				officer.POST("/:id/assign_to", proposalHandler.AssignTo)
				officer.POST("/:id/assign_request_user", proposalHandler.AssignRequestUser)
				officer.POST("/:id/unassign", proposalHandler.Unassign)
				officer.POST("/:id/switch_status", proposalHandler.SwitchStatus)
				officer.POST("/:id/proposed_decline", proposalHandler.ProposedDecline)
				officer.POST("/:id/final_decline", proposalHandler.FinalDecline)
				officer.POST("/:id/proposed_approval", proposalHandler.ProposedApproval)
				officer.POST("/:id/final_approval", proposalHandler.FinalApproval)
				officer.POST("/:id/reissue_approval", proposalHandler.ReissueApproval)
				officer.POST("/:id/amendment_request", proposalHandler.RequestAmendment)
				officer.GET("/:id/assessors", proposalHandler.GetAllowedAssessors)
				officer.GET("/:id/assessor_mode", proposalHandler.GetAssessorMode)
				officer.GET("/:id/action_log", proposalHandler.GetActionLog)
				officer.GET("/:id/referrals", referralHandler.GetReferrals)
				officer.POST("/:id/referrals", referralHandler.SendReferral)
				officer.GET("/:id/requirements", requirementHandler.GetRequirements)
				officer.POST("/:id/requirements", requirementHandler.CreateRequirement)
			}
		}

		referrals := v1.Group("/referrals")
		referrals.Use(middleware.StaffRequired())
		{
			referrals.POST("/:id/send_referral", referralHandler.ForwardReferral)
			referrals.POST("/:id/complete", referralHandler.Complete)
			referrals.POST("/:id/recall", referralHandler.Recall)
			referrals.POST("/:id/remind", referralHandler.Remind)
			referrals.POST("/:id/resend", referralHandler.Resend)
		}

		requirements := v1.Group("/requirements")
		requirements.Use(middleware.StaffRequired())
		{
			requirements.POST("/:id/move_up", requirementHandler.MoveUp)
			requirements.POST("/:id/move_down", requirementHandler.MoveDown)
		}
		v1.GET("/standard_requirements", middleware.StaffRequired(), requirementHandler.GetStandardRequirements)

		groups := v1.Group("/groups")
		groups.Use(middleware.StaffRequired())
		{
			groups.GET("", groupHandler.GetGroups)
			groups.GET("/:id", groupHandler.GetGroup)
			groups.POST("", groupHandler.CreateGroup)
			groups.PUT("/:id", groupHandler.UpdateGroup)
		}

		approvals := v1.Group("/approvals")
		{
			approvals.GET("/:id", middleware.StaffRequired(), complianceHandler.GetApproval)
			approvals.GET("/:id/licence", middleware.StaffRequired(), complianceHandler.GetLicence)
			approvals.GET("/:id/compliances", complianceHandler.GetCompliances)
		}

		compliances := v1.Group("/compliances")
		{
			compliances.POST("/:id/submit", complianceHandler.SubmitCompliance)
			compliances.POST("/:id/accept", middleware.StaffRequired(), complianceHandler.AcceptCompliance)
		}
	}

	return r
}
