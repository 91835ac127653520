package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"salesboard/internal/adapter/amqp"
	adapthttp "salesboard/internal/adapter/http"
	"salesboard/internal/adapter/kafka"
	"salesboard/internal/adapter/sso"
	"salesboard/internal/adapter/svgchart"
	"salesboard/internal/app"
	"salesboard/internal/backend"
	"salesboard/internal/config"
	"salesboard/internal/domain"
	"salesboard/internal/log"
)

const (
	shutdownTimeout = 30 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.Load()

	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	logger := log.New(logCfg)
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	stores, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Cleanup(); err != nil {
			logger.Error("backend cleanup failed", log.FieldError, err)
		}
	}()

	authSvc := app.NewAuthService(stores.Users, stores.Sessions).WithSessionTTL(cfg.SessionTTL)

	var provider *sso.Provider
	if cfg.OIDCEnabled() {
		provider, err = sso.NewProvider(ctx, sso.Config{
			Issuer:       cfg.OIDCIssuer,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			return err
		}
	}

	verifiers := []domain.TokenVerifier{authSvc}
	switch cfg.IdentityProvider {
	case "oidc":
		verifiers = append(verifiers, provider)
	case "firebase":
		verifiers = append(verifiers, stores.Firebase.NewVerifier())
	}

	var (
		publishers app.MultiPublisher
		amqpCli    *amqp.Client
	)
	if cfg.AMQPURL != "" {
		amqpCli, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer func() { _ = amqpCli.Close() }()
		publishers = append(publishers, amqpCli)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			return err
		}
		defer func() { _ = kp.Close() }()
		publishers = append(publishers, kp)
	}
	var events domain.EventPublisher
	if len(publishers) > 0 {
		events = publishers
	}

	renderer := svgchart.New(svgchart.Options{Format: func(k domain.MetricKind, v float64) string {
		return app.FormatValue(k, decimal.NewFromFloat(v))
	}})

	hub := app.NewHub(app.HubDeps{
		Config:     app.SessionConfig{Namespace: cfg.StoreNamespace},
		Identities: app.NewIdentityPolicy(authSvc, verifiers...),
		Store:      stores.Records,
		Renderer:   renderer,
		Events:     events,
		Logger:     logger,
	})
	defer hub.Close()

	handler := adapthttp.New(adapthttp.Options{
		Auth:             authSvc,
		Hub:              hub,
		SSO:              provider,
		WebDir:           cfg.WebDir,
		Logger:           logger,
		TrustForwardAuth: cfg.TrustForwardAuth,
		SessionTTL:       cfg.SessionTTL,
	}).Handler()

	// No write timeout: event streams stay open.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening",
			"addr", cfg.Addr,
			log.FieldBackend, cfg.DataBackend,
			"identity_provider", cfg.IdentityProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", log.FieldOperation, log.OpShutdown)
		// Close dashboards first so open event streams end.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := authSvc.PurgeExpired(gctx); err != nil {
					logger.Warn("purging expired sessions failed", log.FieldError, err)
				}
				hub.Prune(gctx)
			}
		}
	})

	if amqpCli != nil && cfg.AMQPAuditQueue != "" {
		audit := logger.WithComponent(log.ComponentAMQP)
		g.Go(func() error {
			err := amqpCli.ConsumeRecordEvents(gctx, cfg.AMQPAuditQueue, func(m *amqp.RecordEventMessage) error {
				audit.Info("record event",
					"type", m.Type,
					log.FieldIdentity, m.Identity,
					log.FieldRecordID, m.RecordID,
					"occurred_at", m.OccurredAt)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
