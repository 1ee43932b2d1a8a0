package routes

import (
	"time"

	controller "adveri/controllers"
	"adveri/middleware"
	"adveri/models"
	"adveri/services"
	"adveri/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const dashboardCacheTTL = 30 * time.Second

// Deps is everything the HTTP layer needs from main.
type Deps struct {
	DB         *gorm.DB
	Accounts   *services.AccountService
	Campaigns  *services.CampaignService
	Requests   *services.AdRequestService
	Moderation *services.ModerationService
	Hub        *utils.EventHub

	// Storage backs the rate limiter and the dashboard cache. Nil means
	// fiber's in-memory store.
	Storage        fiber.Storage
	LoginRateLimit int
}

func SetupRoutes(app *fiber.App, deps Deps) {
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "running",
			"version": "1.0.0",
		})
	})

	SetupAuthRoutes(app, deps)
	SetupSponsorRoutes(app, deps)
	SetupInfluencerRoutes(app, deps)
	SetupAdminRoutes(app, deps)
	// Registered last: /:campaign_id would otherwise shadow the groups above.
	SetupRequestRoutes(app, deps)

	logrus.WithField("component", "routes").Info("Routes initialized successfully")
}

func SetupAuthRoutes(app *fiber.App, deps Deps) {
	authController := controller.NewAuthController(deps.Accounts)
	limit := middleware.AuthRateLimiter(deps.LoginRateLimit, deps.Storage)

	// Public auth endpoints (no authentication required)
	app.Post("/register", limit, authController.Register)
	app.Post("/login", limit, authController.Login)

	// Protected auth endpoints (require valid JWT)
	protected := middleware.Protected(deps.DB)
	app.Post("/logout", protected, authController.Logout)
	app.Get("/me", protected, authController.Me)
}

func SetupSponsorRoutes(app *fiber.App, deps Deps) {
	campaignController := controller.NewCampaignController(deps.Campaigns)
	requestController := controller.NewRequestController(deps.Requests)
	influencerController := controller.NewInfluencerController(deps.Accounts)

	sponsor := app.Group("/sponsor", middleware.Protected(deps.DB), middleware.RequireRole(models.RoleSponsor))
	sponsor.Post("/create_campaign", campaignController.CreateCampaign)
	sponsor.Get("/campaigns", campaignController.GetCampaigns)
	sponsor.Get("/edit_campaign/:id", campaignController.GetCampaign)
	sponsor.Put("/edit_campaign/:id", campaignController.UpdateCampaign)
	sponsor.Delete("/edit_campaign/:id", campaignController.DeleteCampaign)
	sponsor.Post("/send_request", requestController.SendBatch)
	sponsor.Get("/influencers", influencerController.BrowseInfluencers)
}

func SetupInfluencerRoutes(app *fiber.App, deps Deps) {
	campaignController := controller.NewCampaignController(deps.Campaigns)
	influencerController := controller.NewInfluencerController(deps.Accounts)

	influencer := app.Group("/influencer", middleware.Protected(deps.DB), middleware.RequireRole(models.RoleInfluencer))
	influencer.Get("/campaigns", campaignController.BrowseCampaigns)
	influencer.Get("/campaigns/:id", campaignController.GetCampaign)
	influencer.Get("/profile", influencerController.Profile)
	influencer.Put("/platforms", influencerController.UpdatePlatforms)
}

func SetupAdminRoutes(app *fiber.App, deps Deps) {
	adminController := controller.NewAdminController(deps.Moderation)

	admin := app.Group("/admin", middleware.Protected(deps.DB), middleware.RequireRole(models.RoleAdmin))
	admin.Get("/dashboard", middleware.DashboardCache(dashboardCacheTTL, deps.Storage), adminController.Dashboard)

	admin.Get("/sponsor_applications", adminController.SponsorApplications)
	admin.Put("/approve_sponsor/:id", adminController.ApproveSponsor)
	admin.Delete("/approve_sponsor/:id", adminController.RejectSponsor)

	users := admin.Group("/users")
	users.Get("/", adminController.ListUsers)
	users.Put("/:id/flag", adminController.FlagUser)
	users.Delete("/:id/flag", adminController.UnflagUser)
	users.Delete("/:id", adminController.DeleteUser)

	campaigns := admin.Group("/campaigns")
	campaigns.Get("/", adminController.ListCampaigns)
	campaigns.Put("/:id/flag", adminController.FlagCampaign)
	campaigns.Delete("/:id/flag", adminController.UnflagCampaign)
	campaigns.Delete("/:id", adminController.DeleteCampaign)

	admin.Get("/flagged", adminController.Flagged)
}

func SetupRequestRoutes(app *fiber.App, deps Deps) {
	requestController := controller.NewRequestController(deps.Requests)
	protected := middleware.Protected(deps.DB)

	// WebSocket route for live request events
	app.Get("/ws/requests", protected, controller.RequireUpgrade, controller.RequestEventsWS(deps.Hub))

	app.Get("/requests", protected, requestController.ListRequests)
	app.Get("/edit_request/:id", protected, requestController.GetRequest)
	app.Put("/edit_request/:id", protected, requestController.EditRequest)
	app.Delete("/edit_request/:id", protected, requestController.DeleteRequest)
	app.Put("/negotiate_payment_amount/:id", protected, requestController.NegotiateRequest)
	app.Post("/:campaign_id/send_request", protected, requestController.SendRequest)
}
