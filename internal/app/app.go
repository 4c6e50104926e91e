// Package app initializes and holds long-lived process services, acting as
// the dependency container for the role binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/oversift/trustwatch/internal/config"
	"github.com/oversift/trustwatch/internal/fetch"
	"github.com/oversift/trustwatch/internal/logging"
	"github.com/oversift/trustwatch/internal/mail"
	"github.com/oversift/trustwatch/internal/metrics"
	"github.com/oversift/trustwatch/internal/pdfparse"
	"github.com/oversift/trustwatch/internal/queue"
	"github.com/oversift/trustwatch/internal/store"
	"github.com/oversift/trustwatch/internal/trust"
)

// App holds the shared services for one process.
type App struct {
	Cfg     config.Config
	Logger  *zap.Logger
	Store   *store.Store
	Queue   *queue.Postgres
	Redis   *redis.Client
	Locker  *redislock.Client
	Fetcher trust.Fetcher
	Parser  trust.PDFParser
	Mailer  trust.Mailer
}

// New loads configuration and initializes every shared service. It fails
// fast when a critical dependency is unreachable.
func New(ctx context.Context, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	metrics.Init()

	logger.Info("connecting to postgres")
	st, err := store.Connect(ctx, cfg.DB.DSN, cfg.DB.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		st.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	a := &App{
		Cfg:    cfg,
		Logger: logger,
		Store:  st,
		Queue:  queue.NewPostgres(st.Pool()),
		Redis:  rdb,
		Locker: redislock.New(rdb),
		Parser: pdfparse.NewClient(pdfparse.Config{BaseURL: cfg.PDF.BaseURL, Timeout: cfg.ParseTimeout()}),
		Mailer: mail.NewClient(mail.Config{BaseURL: cfg.Mail.BaseURL, APIKey: cfg.Mail.APIKey, From: cfg.Mail.From}),
	}

	network := fetch.NewCollyFetcher(fetch.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	var demo trust.Fetcher
	if cfg.Demo.Enabled {
		demoFetcher := fetch.NewDemoFetcher(demoPages())
		demo = demoFetcher
		a.Parser = pdfparse.NewStub(demoDocuments())
		a.Mailer = mail.NewStub()
		if err := a.seedDemoUser(ctx); err != nil {
			st.Close()
			return nil, err
		}
	}
	router, err := fetch.NewRouter(network, demo, cfg.Demo.Enabled, cfg.Demo.Pattern)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.Fetcher = router

	logger.Info("services initialized")
	return a, nil
}

func (a *App) seedDemoUser(ctx context.Context) error {
	if a.Cfg.Demo.UserID == "" {
		return nil
	}
	return a.Store.CreateUser(ctx, trust.User{
		ID:        a.Cfg.Demo.UserID,
		Email:     "demo@trustwatch.local",
		Name:      "Demo",
		CreatedAt: time.Now().UTC(),
	})
}

// Close gracefully shuts down all services.
func (a *App) Close() {
	a.Logger.Info("shutting down services")
	if err := a.Redis.Close(); err != nil {
		a.Logger.Warn("close redis", zap.Error(err))
	}
	a.Store.Close()
	_ = a.Logger.Sync()
}

// demoPages is the demo-site table served when DEMO_MODE is on.
func demoPages() map[string]string {
	const base = "https://demo.acme.example"
	return map[string]string{
		base + "/security":   "We are SOC 2 Type II compliant and ISO 27001 certified. All data is encrypted with AES-256 at rest and TLS 1.3 in transit. Quarterly penetration testing covers every service. Our latest report is at https://demo.acme.example/soc2.pdf for review.",
		base + "/trust":      "We are audited annually by an independent firm. Accounts support multi-factor authentication. Nightly backups replicate across three regions.",
		base + "/compliance": "The platform is HIPAA compliant and GDPR ready. Payments flow through a PCI DSS certified processor.",
		base + "/privacy":    "We do not sell customer data. We safeguard your information at every layer.",
		base + "/terms":      "California residents have CCPA rights. We never share information with third parties without consent.",
		base + "/sla":        "We guarantee 99.99% uptime for all paid plans.",
		base + "/status":     "Current availability is 99.99% over the trailing ninety days for all regions.",
		base + "/pricing":    "Plans start at a flat monthly rate with no hidden fees for any tier.",
	}
}

func demoDocuments() map[string]trust.PDFDocument {
	return map[string]trust.PDFDocument{
		"https://demo.acme.example/soc2.pdf": {
			Text: "Independent Service Auditor's Report. This SOC 2 Type II examination was performed by Harwood & Vance LLP. " +
				"The review covers the period January 1, 2025 to June 30, 2025. Scope: the production platform and supporting infrastructure services.",
			Pages: map[int]string{1: "Independent Service Auditor's Report.", 2: "Control descriptions and test results."},
		},
	}
}
