package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raffle-system/config"
	"raffle-system/handlers"
	"raffle-system/internal/bankfeed"
	"raffle-system/models"
	"raffle-system/monitoring"
	"raffle-system/security"
	"raffle-system/services"
	"raffle-system/utils"

	"github.com/google/uuid"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub for operator notifications
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pnConfig.UUID = cfg.PubNubUUID

		pn = pubnub.NewPubNub(pnConfig)
	} else {
		log.Println("PubNub keys not set, operator notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	notify := services.NewNotifyService(pn, cfg.OpsChannel)
	reserve := services.NewReservationService(app, cfg, notify)
	flow := services.NewConversationFlow(cfg)
	dispatch := services.NewDispatchService(app, cfg, redisClient, reserve, flow, notify)
	scheduler := services.NewSchedulerService(cfg, reserve, dispatch)
	limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(app, cfg, dispatch, limiter)
	opsHandler := handlers.NewOpsHandler(app, reserve)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	registerCommands(app, reserve)

	var bankFeed *bankfeed.Feed
	var opsServer *monitoring.OpsServer

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		// Chat webhook endpoints
		se.Router.GET("/api/chat/webhook", webhookHandler.Verify)
		se.Router.POST("/api/chat/webhook", webhookHandler.Receive).BindFunc(limiter.SenderRateLimit())

		// Operator endpoints
		ops := se.Router.Group("/api/ops")
		ops.BindFunc(security.RequireOperator(cfg.OperatorTokenHash))
		ops.GET("/raffles/{raffleId}/availability", opsHandler.GetAvailability)
		ops.POST("/raffles/{raffleId}/draw", opsHandler.DrawWinner)
		ops.GET("/orders/pending", opsHandler.ListPendingOrders)
		ops.POST("/orders/{orderId}/confirm-payment", opsHandler.ConfirmPayment)
		ops.POST("/orders/{orderId}/cancel", opsHandler.CancelOrder)
		ops.POST("/sweep", opsHandler.RunSweep)
		ops.GET("/payment-alerts", opsHandler.ListPaymentAlerts)
		ops.POST("/payment-alerts/{alertId}/match", opsHandler.MatchPaymentAlert)

		// Test endpoint to drive the flow without a chat provider
		if cfg.Environment == "development" {
			se.Router.POST("/api/chat/simulate", func(e *core.RequestEvent) error {
				var req struct {
					From string `json:"from"`
					Text string `json:"text"`
				}
				if err := e.BindBody(&req); err != nil || req.From == "" {
					return apis.NewBadRequestError("from and text are required", err)
				}
				outcome, err := dispatch.Dispatch(e.Request.Context(), &models.InboundMessage{
					ProviderMessageID: "sim-" + uuid.NewString(),
					From:              req.From,
					Kind:              models.KindText,
					Text:              req.Text,
				})
				if err != nil {
					return apis.NewBadRequestError("dispatch failed", err)
				}
				return e.JSON(200, outcome)
			})
		}

		// Health check
		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupRaffleHooks(app, reserve)

		if err := scheduler.Start(); err != nil {
			return err
		}

		if cfg.EnableMetrics {
			monitoring.NewMonitor(app, redisClient)
			opsServer = monitoring.NewOpsServer(cfg.MetricsPort, redisClient)
			go func() {
				log.Printf("Metrics server listening on :%s", cfg.MetricsPort)
				if err := opsServer.Start(); err != nil {
					slog.Error("metrics server stopped", "error", err)
				}
			}()
		}

		feed, err := bankfeed.New(ctx, cfg, app, reserve, notify)
		if err != nil {
			return err
		}
		bankFeed = feed

		return se.Next()
	})

	app.OnTerminate().BindFunc(func(te *core.TerminateEvent) error {
		scheduler.Stop()
		if bankFeed != nil {
			bankFeed.Stop()
		}
		if opsServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := opsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown", "error", err)
			}
		}
		cancel()
		return te.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// setupRaffleHooks keeps every raffle's ticket pool in step with its number
// range. Generation is additive, so re-running after an edit only fills gaps.
func setupRaffleHooks(app *pocketbase.PocketBase, reserve *services.ReservationService) {
	generate := func(raffleID string) {
		if _, err := reserve.GenerateTickets(context.Background(), raffleID); err != nil {
			slog.Error("ticket pool generation failed", "raffle", raffleID, "error", err)
		}
	}

	app.OnRecordCreateRequest("raffles").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		go generate(e.Record.Id)
		return nil
	})

	app.OnRecordUpdateRequest("raffles").BindFunc(func(e *core.RecordRequestEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		go generate(e.Record.Id)
		return nil
	})
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
