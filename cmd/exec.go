package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"circle-system/config"
	"circle-system/internal/handlers"
	"circle-system/internal/repository"
	"circle-system/internal/services/bank"
	"circle-system/internal/services/bank/online"
	"circle-system/internal/services/bank/transfer"
	"circle-system/internal/services/creation"
	"circle-system/internal/services/hashid"
	"circle-system/internal/services/notify"
	"circle-system/internal/services/submission"
	"circle-system/internal/services/voucher"
	_ "circle-system/migrations"
	"circle-system/models"
	"circle-system/monitoring"
	"circle-system/security"
	"circle-system/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := monitoring.NewMonitor(redisClient)

	// Payment gateways
	registry := bank.NewRegistry(monitor, utils.Settings{
		FailureRatio: cfg.BreakerFailureRatio,
		Timeout:      cfg.BreakerTimeout,
	})
	defer func() {
		if err := registry.Close(context.Background()); err != nil {
			slog.Error("registry.Close()", "error", err)
		}
	}()

	transferGateway, err := transfer.New(transfer.Config{
		BankName:        cfg.BankName,
		Branch:          cfg.BankBranch,
		AccountNumber:   cfg.BankAccountNumber,
		AccountHolder:   cfg.BankAccountHolder,
		InstructionsURL: cfg.TransferInstructions,
		PaymentDeadline: cfg.TransferPaymentWindow,
	})
	if err != nil {
		return err
	}
	if err := registry.Register(models.MethodBankTransfer, transferGateway); err != nil {
		return err
	}

	if cfg.OnlineCheckoutEnabled() {
		onlineGateway, err := online.New(ctx, online.Config{
			BaseURL:        cfg.CheckoutBaseURL,
			AccessTokenURL: cfg.CheckoutTokenURL,
			ClientID:       cfg.CheckoutClientID,
			ClientSecret:   cfg.CheckoutClientSecret,
			MerchantID:     cfg.CheckoutMerchantID,
			KeyID:          cfg.CheckoutKeyID,
			HMACKey:        cfg.CheckoutHMACKey,
			ReturnURL:      cfg.CheckoutReturnURL,
			Currency:       cfg.Currency,
			SessionTTL:     cfg.CheckoutSessionTTL,
		}, nil)
		if err != nil {
			return err
		}
		if err := registry.Register(models.MethodOnline, onlineGateway); err != nil {
			return err
		}
	} else {
		slog.Warn("online checkout is not configured; card payments are disabled")
	}

	// Initialize PubNub
	var notifier *notify.Notifier
	if cfg.PubNubEnabled() {
		notifier = notify.NewNotifier(notify.NewPubNubPublisher(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUUID))
	}

	// Initialize services
	store := repository.NewPBStore(app)
	hashes := hashid.NewService(hashid.NewCachedStore(store, redisClient, cfg.HashCacheTTL), cfg.HashIDLength)
	vouchers := voucher.NewResolver(hashes, store)

	creationService := creation.NewService(creation.Dependencies{
		Store:        store,
		Hashes:       hashes,
		Checkouts:    registry,
		Transactions: registry,
		Guard:        creation.NewGuard(redisClient, cfg.SubmissionGuardTTL),
		Idem:         creation.NewIdempotencyCache(redisClient, cfg.IdempotencyTTL),
		Notifier:     notifier,
		Monitor:      monitor,
	}, creation.Config{
		TransferCodeLength: cfg.TransferCodeLength,
		Currency:           cfg.Currency,
	})
	orchestrator := submission.NewOrchestrator(store, creationService, vouchers, transferGateway)

	// Initialize handlers
	submissionHandler := handlers.NewSubmissionHandler(orchestrator, creationService, vouchers, store)
	ownerHandler := handlers.NewOwnerHandler(creationService)
	paymentHandler := handlers.NewPaymentHandler(creationService, cfg.CheckoutWebhookKey)
	adminHandler := handlers.NewAdminHandler(creationService)

	limiter := security.NewRateLimiter(redisClient)
	antiBot := limiter.AntiBot(cfg.AntiBotPerMinute)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Start background tasks
	if cfg.EnableMetrics {
		go monitor.Run(ctx, cfg.MetricsInterval)
	}

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Submission endpoints
		e.Router.POST("/api/v1/submissions", submissionHandler.Submit).
			BindFunc(antiBot, limiter.Limit("submit", cfg.SubmitRateLimit, cfg.RateLimitWindow))
		e.Router.POST("/api/v1/applications", submissionHandler.CreateApplication).
			BindFunc(antiBot, limiter.Limit("submit", cfg.SubmitRateLimit, cfg.RateLimitWindow))
		e.Router.POST("/api/v1/tickets", submissionHandler.CreateTicket).
			BindFunc(antiBot, limiter.Limit("submit", cfg.SubmitRateLimit, cfg.RateLimitWindow))
		e.Router.GET("/api/v1/vouchers/resolve", submissionHandler.ResolveVoucher).
			BindFunc(antiBot)

		// Owner endpoints
		e.Router.GET("/api/v1/applications/{hashId}", ownerHandler.GetApplication)
		e.Router.GET("/api/v1/tickets/{hashId}", ownerHandler.GetTicket)
		e.Router.POST("/api/v1/tickets/{hashId}/claim", ownerHandler.ClaimTicket).
			BindFunc(antiBot, limiter.Limit("claim", cfg.ClaimRateLimit, cfg.RateLimitWindow))

		// Payment endpoints
		e.Router.GET("/api/v1/payments", paymentHandler.ListPayments)
		e.Router.GET("/api/v1/payments/{hashId}", paymentHandler.GetPayment)
		e.Router.POST("/api/v1/payments/{hashId}/complete", paymentHandler.CompleteCheckout)
		e.Router.POST("/api/v1/webhooks/checkout", paymentHandler.CheckoutWebhook)

		// Admin endpoints
		e.Router.POST("/api/v1/admin/transfers/import", adminHandler.ImportTransfers).
			Bind(apis.RequireSuperuserAuth())

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

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		log.Println("Server routes registered")
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
