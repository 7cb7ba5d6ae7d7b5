package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"

	"ticketgate/config"
	"ticketgate/internal/handlers"
	"ticketgate/internal/services"
	_ "ticketgate/migrations"
	"ticketgate/monitoring"
	"ticketgate/security"
	"ticketgate/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub for the realtime gate feed
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		pn = pubnub.NewPubNub(pnConfig)
	}

	// Initialize services
	codec, err := services.NewCodecService(cfg.TicketSecret, cfg.PayloadMaxAge)
	if err != nil {
		return err
	}
	qr := services.NewQRService(cfg.QRSize)
	inventory := services.NewInventoryService(app)
	audit := services.NewAuditService(app)
	tickets := services.NewTicketService(app, codec, inventory, audit, pn, cfg.DefaultCurrency)
	notify := services.NewNotificationService(cfg.MailerSendAPIKey, cfg.MailFromName, cfg.MailFromEmail)

	// Initialize handlers
	tierHandler := handlers.NewTierHandler(app, inventory)
	ticketHandler := handlers.NewTicketHandler(app, tickets, qr, notify)
	validationHandler := handlers.NewValidationHandler(app, tickets, audit)
	scanLimiter := security.NewScanLimiter(redisClient, cfg.ScanRateLimit)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown for background tasks
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Background tasks
		go tickets.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)
		if cfg.EnableMetrics {
			go monitoring.NewMonitor(app).Run(ctx, 30*time.Second)
			go serveMetrics(cfg.MetricsPort)
		}

		// Tier endpoints
		e.Router.GET("/api/v1/events/{eventId}/tiers", tierHandler.ListTiers)

		// Ticket endpoints
		e.Router.POST("/api/v1/tickets", ticketHandler.Issue).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/tickets/mine", ticketHandler.MyTickets).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/tickets/{ticketId}/qr", ticketHandler.TicketQR).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/events/{eventId}/tickets", ticketHandler.EventTickets).Bind(apis.RequireSuperuserAuth())
		e.Router.POST("/api/v1/tickets/{ticketId}/cancel", ticketHandler.Cancel).Bind(apis.RequireSuperuserAuth())

		// Gate endpoints
		e.Router.POST("/api/v1/validation/scan", validationHandler.Scan).
			Bind(apis.RequireAuth()).
			BindFunc(scanLimiter.Guard)
		e.Router.POST("/api/v1/tickets/{ticketId}/consume", validationHandler.Consume).Bind(apis.RequireAuth())
		e.Router.GET("/api/v1/tickets/{ticketId}/attempts", validationHandler.Attempts).Bind(apis.RequireSuperuserAuth())

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics listener stopped", "error", err)
	}
}

// handleShutdown handles graceful shutdown of the background tasks
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
