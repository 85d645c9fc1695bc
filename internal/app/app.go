// Package app wires the visa desk service together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/visadesk/internal/api"
	"github.com/garyellow/visadesk/internal/archive"
	"github.com/garyellow/visadesk/internal/bot"
	"github.com/garyellow/visadesk/internal/buildinfo"
	"github.com/garyellow/visadesk/internal/config"
	"github.com/garyellow/visadesk/internal/dashboard"
	"github.com/garyellow/visadesk/internal/faq"
	"github.com/garyellow/visadesk/internal/genai"
	"github.com/garyellow/visadesk/internal/identity"
	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/maintenance"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/modules/appointment"
	"github.com/garyellow/visadesk/internal/modules/documents"
	"github.com/garyellow/visadesk/internal/modules/status"
	"github.com/garyellow/visadesk/internal/modules/timeline"
	"github.com/garyellow/visadesk/internal/modules/urgency"
	"github.com/garyellow/visadesk/internal/notify"
	"github.com/garyellow/visadesk/internal/r2client"
	"github.com/garyellow/visadesk/internal/ratelimit"
	"github.com/garyellow/visadesk/internal/sentry"
	"github.com/garyellow/visadesk/internal/storage"
	"github.com/garyellow/visadesk/internal/warmup"
	"github.com/garyellow/visadesk/internal/webhook"
)

// scheduleKey is the R2 object holding shared job timestamps.
const scheduleKey = "maintenance/schedule.json"

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg      *config.Config
	logger   *logger.Logger
	db       *storage.DB
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	processor      *bot.Processor
	notifier       *notify.Service
	dispatcher     *notify.Dispatcher
	scheduler      maintenance.Scheduler
	webhookHandler *webhook.Handler
	intentParser   genai.IntentParser
	faqIndex       *faq.Index
	limiters       []*ratelimit.KeyedLimiter
	sessionLimiter *ratelimit.KeyedLimiter

	router         *gin.Engine
	server         *http.Server
	readinessState *warmup.ReadinessState
	wg             sync.WaitGroup
}

// Initialize creates and initializes a new application with all dependencies.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})
	log = log.WithField("service", cfg.ServerName)
	if id := instanceID(cfg); id != "" {
		log = log.WithField("instance_id", id)
	}
	slog.SetDefault(log.Logger)

	log.Info("Initializing application...")

	if cfg.SentryEnabled {
		if err := sentry.Initialize(sentry.Config{
			DSN:         cfg.SentryDSN,
			Environment: cfg.SentryEnvironment,
			Release:     release(cfg),
			SampleRate:  cfg.SentrySampleRate,
		}); err != nil {
			log.WithError(err).Warn("Sentry initialization failed")
		} else {
			log.WithField("environment", cfg.SentryEnvironment).Info("Sentry enabled")
		}
	}

	db, err := storage.New(ctx, cfg.SQLitePath(), cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	log.WithField("path", cfg.SQLitePath()).WithField("session_ttl", cfg.SessionTTL).Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)
	metrics.InitGlobal(m)

	app := &Application{
		cfg:            cfg,
		logger:         log,
		db:             db,
		metrics:        m,
		registry:       registry,
		readinessState: warmup.NewReadinessState(cfg.WarmupGracePeriod),
	}

	if err := app.initChat(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := app.initNotifications(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.WithFields(map[string]any{
		"line":        cfg.LineEnabled(),
		"nlu":         app.processor.NLUEnabled(),
		"faq_entries": app.faqCount(),
		"dispatcher":  app.dispatcher != nil,
		"staff_auth":  cfg.StaffAuthEnabled(),
	}).Info("Application initialized")
	return app, nil
}

// initChat builds the dialogue pipeline shared by the web chat and LINE.
func (a *Application) initChat(ctx context.Context) error {
	cfg := a.cfg

	chatLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "chat",
		Burst:         cfg.Chat.ChatRateBurst,
		RefillRate:    cfg.Chat.ChatRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       a.metrics,
	})
	verifyLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "verify",
		Burst:         cfg.Chat.VerifyRateBurst,
		RefillRate:    cfg.Chat.VerifyRateRefill,
		DailyLimit:    cfg.Chat.VerifyRateDaily,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       a.metrics,
	})
	clientVerifyLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "verify_client",
		Burst:         cfg.Chat.VerifyClientBurst,
		RefillRate:    cfg.Chat.VerifyClientRefill,
		DailyLimit:    cfg.Chat.VerifyClientDaily,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       a.metrics,
	})
	a.sessionLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "session_create",
		Burst:         cfg.Chat.SessionCreateBurst,
		RefillRate:    cfg.Chat.SessionCreateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       a.metrics,
	})
	a.limiters = append(a.limiters, chatLimiter, verifyLimiter, clientVerifyLimiter, a.sessionLimiter)

	var llmLimiter *ratelimit.KeyedLimiter
	if cfg.HasLLMProvider() {
		parser, err := genai.CreateIntentParser(ctx, buildLLMConfig(cfg), a.metrics)
		if err != nil {
			a.logger.WithError(err).Warn("Intent parser initialization failed")
		}
		if parser != nil {
			a.intentParser = parser
			llmLimiter = ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
				Name:          "llm",
				Burst:         cfg.Chat.LLMRateBurst,
				RefillRate:    cfg.Chat.LLMRateRefill / 3600,
				DailyLimit:    cfg.Chat.LLMRateDaily,
				CleanupPeriod: config.RateLimiterCleanupInterval,
				Metrics:       a.metrics,
			})
			a.limiters = append(a.limiters, llmLimiter)
			a.logger.WithField("provider", parser.Provider()).Info("NLU intent parser enabled")
		}
	}

	index, err := faq.Load(cfg.Chat.FAQMinScore, a.logger)
	if err != nil {
		// FAQ is optional; the pipeline falls through to NLU and the default reply.
		a.logger.WithError(err).Warn("FAQ index unavailable")
	}
	a.faqIndex = index

	registry := bot.NewRegistry()
	registry.Register(
		status.NewHandler(a.logger),
		documents.NewHandler(a.logger),
		timeline.NewHandler(a.logger),
		urgency.NewHandler(a.logger),
		appointment.NewHandler(a.logger),
	)
	// The urgency quick action also contains the documents keyword "need".
	registry.Route(bot.QuickUrgent, urgency.ModuleName)

	verifier := identity.NewVerifier(a.db, verifyLimiter, a.metrics, a.logger.Logger,
		identity.WithClientLimiter(clientVerifyLimiter),
		identity.WithFailureBudget(cfg.Chat.VerifyFailureLimit, cfg.Chat.VerifyFailureWindow))

	pc := bot.ProcessorConfig{
		Registry:         registry,
		Sessions:         a.db,
		Applications:     a.db,
		Verifier:         verifier,
		IntentParser:     a.intentParser,
		ChatLimiter:      chatLimiter,
		LLMLimiter:       llmLimiter,
		Logger:           a.logger,
		Metrics:          a.metrics,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		Timeout:          config.ChatProcessing,
	}
	if index != nil {
		pc.FAQ = index
	}
	a.processor = bot.NewProcessor(pc)
	return nil
}

// initNotifications builds the outbox service, the delivery dispatcher and
// the job scheduler. R2 backs the archive, the leader lock and the schedule
// when enabled.
func (a *Application) initNotifications(ctx context.Context) error {
	cfg := a.cfg
	a.notifier = notify.NewService(a.db, a.db, a.logger, a.metrics)

	var sender notify.Sender
	if cfg.Notify.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(cfg.Notify.SendGridAPIKey, cfg.Notify.FromName, cfg.Notify.FromAddress)
	} else {
		sender = notify.NewLogSender(a.logger)
		a.logger.Info("SendGrid not configured, letters are logged instead of sent")
	}

	dc := notify.DispatcherConfig{
		Store:        a.db,
		Sender:       sender,
		Logger:       a.logger,
		Metrics:      a.metrics,
		PollInterval: cfg.Notify.PollInterval,
		Workers:      cfg.Notify.Workers,
		MaxAttempts:  cfg.Notify.MaxAttempts,
	}

	a.scheduler = maintenance.NewLocalSchedule()
	if cfg.R2Enabled {
		client, err := r2client.New(ctx, r2client.Config{
			Endpoint:    cfg.R2Endpoint,
			AccessKeyID: cfg.R2AccessKeyID,
			SecretKey:   cfg.R2SecretAccessKey,
			BucketName:  cfg.R2BucketName,
		})
		if err != nil {
			return fmt.Errorf("r2 client: %w", err)
		}
		// The outbox and the documents live in this instance's SQLite file, so
		// the lock and the schedule only coordinate processes sharing that file.
		storeID, err := a.db.StoreID(ctx)
		if err != nil {
			return fmt.Errorf("store id: %w", err)
		}
		dc.Archive = archive.New(client, cfg.Notify.ArchivePrefix, a.metrics)
		dc.Lock = r2client.NewDistributedLock(client,
			r2client.ScopedKey(cfg.Notify.DispatchLockKey, storeID), cfg.Notify.DispatchLockTTL)

		schedule, err := maintenance.NewR2ScheduleStore(client, r2client.ScopedKey(scheduleKey, storeID), config.ArchiveRequest)
		if err != nil {
			return fmt.Errorf("maintenance schedule: %w", err)
		}
		a.scheduler = schedule
		a.logger.WithFields(map[string]any{
			"bucket":   cfg.R2BucketName,
			"store_id": storeID,
		}).Info("R2 archive and leader election enabled")
	}

	if !cfg.Notify.DispatchDisabled {
		a.dispatcher = notify.NewDispatcher(dc)
	}
	return nil
}

// initHTTP builds the router and server.
func (a *Application) initHTTP() error {
	cfg := a.cfg
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := api.NewEngine(a.logger, a.metrics)
	// Client addresses key the verification and session limits.
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)
	router.GET("/metrics",
		api.BasicAuth("metrics", cfg.MetricsAuthEnabled, cfg.MetricsUsername, cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry})))

	gated := router.Group("", a.readinessMiddleware())
	api.New(api.Config{
		Processor:            a.processor,
		Store:                a.db,
		Dashboard:            dashboard.NewBuilder(a.db),
		Notifier:             a.notifier,
		SessionLimiter:       a.sessionLimiter,
		Logger:               a.logger,
		Metrics:              a.metrics,
		NotifyOnStatusChange: cfg.Notify.OnStatusChange,
		StaffUsername:        cfg.StaffUsername,
		StaffPassword:        cfg.StaffPassword,
	}).Register(gated)

	if cfg.LineEnabled() {
		h, err := webhook.NewHandler(webhook.HandlerConfig{
			ChannelSecret: cfg.LineChannelSecret,
			ChannelToken:  cfg.LineChannelToken,
			Processor:     a.processor,
			Logger:        a.logger,
			Metrics:       a.metrics,
			GlobalRateRPS: cfg.Chat.GlobalRateRPS,
		}, webhook.WithTimeout(config.WebhookProcessing))
		if err != nil {
			return fmt.Errorf("webhook handler: %w", err)
		}
		a.webhookHandler = h
		gated.POST("/webhook", h.Handle)
	}

	a.router = router
	a.server = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.HTTPRead,
		WriteTimeout: config.HTTPWrite,
		IdleTimeout:  config.HTTPIdle,
	}
	return nil
}

func buildLLMConfig(cfg *config.Config) genai.LLMConfig {
	llmCfg := genai.DefaultLLMConfig()
	llmCfg.Gemini.APIKey = cfg.GeminiAPIKey
	llmCfg.OpenAI.APIKey = cfg.OpenAIAPIKey
	llmCfg.OpenAI.Endpoint = cfg.OpenAIEndpoint
	if len(cfg.GeminiIntentModels) > 0 {
		llmCfg.Gemini.IntentModels = cfg.GeminiIntentModels
	}
	if len(cfg.OpenAIIntentModels) > 0 {
		llmCfg.OpenAI.IntentModels = cfg.OpenAIIntentModels
	}
	if len(cfg.LLMProviders) > 0 {
		providers := make([]genai.Provider, 0, len(cfg.LLMProviders))
		for _, p := range cfg.LLMProviders {
			providers = append(providers, genai.Provider(p))
		}
		llmCfg.Providers = providers
	}
	return llmCfg
}

func instanceID(cfg *config.Config) string {
	if cfg.InstanceID != "" {
		return cfg.InstanceID
	}
	host, _ := os.Hostname()
	return host
}

func release(cfg *config.Config) string {
	if cfg.SentryRelease != "" {
		return cfg.SentryRelease
	}
	return buildinfo.Version
}

func (a *Application) faqCount() int {
	if a.faqIndex == nil {
		return 0
	}
	return a.faqIndex.Count()
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if !a.readinessState.IsReady() {
		status := a.readinessState.Status()
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": status.Reason,
			"progress": gin.H{
				"elapsed_seconds": status.ElapsedSeconds,
				"timeout_seconds": status.TimeoutSeconds,
			},
		})
		return
	}

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}

	counts, err := a.db.CountApplicationsByStatus(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to count applications for readiness")
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"database":     "connected",
		"applications": counts,
		"features": gin.H{
			"line":       a.webhookHandler != nil,
			"nlu":        a.processor.NLUEnabled(),
			"faq":        a.faqCount() > 0,
			"dispatcher": a.dispatcher != nil,
			"leader":     a.dispatcher != nil && a.dispatcher.Leading(),
		},
	})
}

// readinessMiddleware rejects requests with 503 until warmup completes.
func (a *Application) readinessMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.readinessState.IsReady() {
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "not_ready",
				"message": a.readinessState.Status().Reason,
			})
			return
		}
		c.Next()
	}
}

// Handler exposes the router, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.router
}

// Run starts the HTTP server and background jobs, then blocks until
// SIGINT or SIGTERM.
//
// Background jobs are stopped and awaited before any resource is closed so
// a cleanup or dispatch round never runs against a closed database.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	errCh := a.startHTTPServer()

	select {
	case sig := <-a.waitForShutdownSignal():
		a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-errCh:
		a.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		cancel()
		a.wg.Wait()
		_ = a.shutdown()
		return err
	}

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

func (a *Application) startHTTPServer() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

func (a *Application) waitForShutdownSignal() <-chan os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return quit
}

// shutdown closes the server and resources. Call it after background jobs
// have stopped.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	if a.webhookHandler != nil {
		a.logger.Info("Waiting for webhook events to complete...")
		if err := a.webhookHandler.Shutdown(shutdownCtx); err != nil {
			a.logger.WithError(err).Warn("Webhook handler shutdown timeout")
		}
	}

	a.logger.Info("Closing resources...")
	if a.intentParser != nil {
		if err := a.intentParser.Close(); err != nil {
			a.logger.WithError(err).WithField("component", "intent_parser").Error("Component close error")
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).WithField("component", "database").Error("Component close error")
	}
	for _, l := range a.limiters {
		l.Stop()
	}

	sentry.Flush(2 * time.Second)
	a.logger.Info("Shutdown complete")
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}
	return nil
}
