package routes

import (
	"log"
	"os"

	controller "dripmail/controllers"
	"dripmail/middleware"
	"dripmail/scheduler"
	"dripmail/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// Deps carries the shared components the route handlers need.
type Deps struct {
	DB       *gorm.DB
	Loop     *scheduler.Loop
	Reporter *scheduler.StatusReporter
	Hub      *controller.ProgressHub
	Contacts *store.ContactStore
	History  *store.HistoryStore
}

func SetupRoutes(app *fiber.App, deps Deps) {
	routeLogger := log.New(os.Stdout, "API: ", log.Ldate|log.Ltime|log.Lshortfile)

	campaignController := controller.NewCampaignController(deps.DB, deps.Contacts, routeLogger)
	sequenceController := controller.NewSequenceController(deps.DB, routeLogger)
	leadController := controller.NewLeadController(deps.DB, routeLogger)
	senderController := controller.NewSenderController(deps.DB, routeLogger)
	templateController := controller.NewTemplateController(deps.DB, routeLogger)
	trackingController := controller.NewTrackingController(deps.History, routeLogger)
	schedulerController := controller.NewSchedulerController(deps.DB, deps.Loop, deps.Reporter, deps.Hub, routeLogger)

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Campaigns
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Put("/:id", campaignController.UpdateCampaign)
	campaign.Delete("/:id", campaignController.DeleteCampaign)
	campaign.Post("/:id/activate", campaignController.ActivateCampaign)
	campaign.Post("/:id/pause", campaignController.PauseCampaign)
	campaign.Post("/:id/contacts", campaignController.AddContacts)
	campaign.Post("/:id/contacts/backfill", campaignController.BackfillContacts)
	campaign.Post("/:id/replies", campaignController.HandleReplyWebhook)
	campaign.Post("/:id/sequences", sequenceController.CreateSequence)
	campaign.Get("/:id/sending-status", schedulerController.GetSendingStatus)

	// Sequences
	sequence := api.Group("/sequences")
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)

	// Leads
	lead := api.Group("/leads")
	lead.Post("/", leadController.CreateLead)
	lead.Post("/import", leadController.ImportLeads)
	lead.Get("/", leadController.GetLeads)
	lead.Post("/:id/unsubscribe", leadController.Unsubscribe)

	// Senders
	sender := api.Group("/senders")
	sender.Post("/", senderController.CreateSender)
	sender.Get("/", senderController.GetSenders)
	sender.Put("/:id", senderController.UpdateSender)
	sender.Delete("/:id", senderController.DeleteSender)
	sender.Post("/:id/test", senderController.TestSender)

	// Templates
	template := api.Group("/templates")
	template.Post("/", templateController.CreateTemplate)
	template.Get("/", templateController.GetTemplates)
	template.Get("/:id", templateController.GetTemplate)
	template.Put("/:id", templateController.UpdateTemplate)
	template.Delete("/:id", templateController.DeleteTemplate)

	// Scheduler control, rate limited because passes are expensive
	api.Post("/scheduler/run", middleware.TriggerRateLimiter(), schedulerController.TriggerPass)

	// Live pass summaries for the dashboard
	app.Get("/api/v1/scheduler/progress", websocket.New(deps.Hub.Handle))

	// Tracking endpoints live outside /api/v1 so links stay short
	app.Get("/track/open/:messageID/:token", trackingController.TrackOpen)
	app.Get("/track/click/:messageID/:token", trackingController.TrackClick)

	routeLogger.Println("Routes initialized successfully")
}
