package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/gigescrow/internal/api/handler"
	"github.com/timmy/gigescrow/internal/api/middleware"
	"github.com/timmy/gigescrow/internal/config"
	"github.com/timmy/gigescrow/internal/logger"
	"github.com/timmy/gigescrow/internal/repository"
	"github.com/timmy/gigescrow/internal/service"
)

// Services bundles everything the HTTP layer calls into.
type Services struct {
	Store         *repository.Store
	Jobs          *service.JobService
	Confirmation  *service.ConfirmationService
	Acceptance    *service.AcceptanceService
	Escrow        *service.EscrowService
	Proposals     *service.ProposalService
	Users         *service.UserService
	Notifications *service.NotificationService
	SavedJobs     *service.SavedJobService
	Chat          *service.ChatService
	Sweep         *service.SweepService
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg *config.Config, log *logger.Logger) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.Server.CORS))
	r.Use(middleware.Auth(cfg.Auth))

	healthHandler := handler.NewHealthHandler(svc.Store, cfg.Chain.ChainName, cfg.Chain.Enabled())
	jobHandler := handler.NewJobHandler(svc.Jobs, svc.Confirmation, svc.Acceptance, svc.Escrow, svc.SavedJobs)
	proposalHandler := handler.NewProposalHandler(svc.Proposals, svc.Acceptance)
	userHandler := handler.NewUserHandler(svc.Users, svc.Notifications)
	chatHandler := handler.NewChatHandler(svc.Chat)

	r.GET("/health", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		jobs.POST("", jobHandler.CreateJob)
		jobs.GET("", jobHandler.ListJobs)
		jobs.GET("/search", jobHandler.SearchJobs)
		jobs.GET("/client/:addr", jobHandler.ListClientJobs)
		jobs.GET("/freelancer/:addr", jobHandler.ListFreelancerJobs)
		jobs.GET("/saved/:addr", jobHandler.ListSavedJobs)
		jobs.GET("/escrow/check", jobHandler.ListEscrowJobs)
		jobs.GET("/:id", jobHandler.GetJob)
		jobs.PUT("/:id", jobHandler.UpdateJob)
		jobs.DELETE("/:id", jobHandler.DeleteJob)
		jobs.POST("/:id/blockchain/prepare", jobHandler.PrepareCreateTx)
		jobs.POST("/:id/blockchain/link", jobHandler.LinkBlockchainJob)
		jobs.POST("/:id/accept", jobHandler.DirectAccept)
		jobs.POST("/:id/submit", jobHandler.SubmitWork)
		jobs.POST("/:id/deliverable", jobHandler.UploadDeliverable)
		jobs.POST("/:id/cancel", jobHandler.CancelJob)
		jobs.POST("/:id/confirm-completion", jobHandler.ConfirmCompletion)
		jobs.POST("/:id/repair", jobHandler.RepairAssignment)
		jobs.POST("/:id/escrow/release", jobHandler.ReleaseAsEscrow)
		jobs.POST("/:id/escrow/revert", jobHandler.RevertAsEscrow)
		jobs.POST("/:id/save", jobHandler.SaveJob)
		jobs.DELETE("/:id/save", jobHandler.UnsaveJob)

		search := v1.Group("/search")
		search.GET("/jobs", jobHandler.SearchJobs)
		search.GET("/tags", jobHandler.SearchTags)

		proposals := v1.Group("/proposals")
		proposals.POST("", proposalHandler.CreateProposal)
		proposals.GET("/job/:id", proposalHandler.ListJobProposals)
		proposals.GET("/freelancer/:addr", proposalHandler.ListFreelancerProposals)
		proposals.GET("/:id", proposalHandler.GetProposal)
		proposals.PUT("/:id/accept", proposalHandler.AcceptProposal)
		proposals.PUT("/:id/reject", proposalHandler.RejectProposal)
		proposals.PUT("/:id/withdraw", proposalHandler.WithdrawProposal)

		users := v1.Group("/users")
		users.POST("", userHandler.CreateUser)
		users.GET("/:addr", userHandler.GetUser)
		users.PUT("/:addr", userHandler.UpdateUser)
		users.GET("/:addr/stats", userHandler.GetStats)

		notifications := v1.Group("/notifications")
		notifications.GET("", userHandler.ListNotifications)
		notifications.GET("/count", userHandler.CountNotifications)
		notifications.PUT("/read-all", userHandler.MarkAllNotificationsRead)
		notifications.PUT("/:id/read", userHandler.MarkNotificationRead)

		chat := v1.Group("/chat/conversations")
		chat.GET("", chatHandler.ListConversations)
		chat.POST("", chatHandler.OpenConversation)
		chat.GET("/:id/messages", chatHandler.ListMessages)
		chat.POST("/:id/messages", chatHandler.SendMessage)
		chat.POST("/:id/attachments", chatHandler.SendAttachment)

		v1.GET("/transactions/:hash", jobHandler.TransactionStatus)

		if svc.Sweep != nil {
			adminHandler := handler.NewAdminHandler(svc.Sweep)
			admin := v1.Group("/admin", middleware.AdminOnly(cfg.Auth.AdminToken))
			admin.POST("/reconcile", adminHandler.TriggerSweep)
			admin.GET("/reconcile/status", adminHandler.GetSweepStatus)
		}
	}

	return r
}
