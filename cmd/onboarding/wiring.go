package main

import (
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hkinc45/dev-kitchen-onboarding/analytics"
	"github.com/hkinc45/dev-kitchen-onboarding/auth"
	"github.com/hkinc45/dev-kitchen-onboarding/clients"
	"github.com/hkinc45/dev-kitchen-onboarding/config"
	"github.com/hkinc45/dev-kitchen-onboarding/consent"
	"github.com/hkinc45/dev-kitchen-onboarding/onboarding"
	"github.com/hkinc45/dev-kitchen-onboarding/schema"
	"github.com/hkinc45/dev-kitchen-onboarding/server"
)

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// engine holds the process-wide collaborators shared by every visitor.
type engine struct {
	cfg      *config.Config
	schema   *schema.Schema
	logger   *zap.Logger
	nats     *nats.Conn
	recorder onboarding.Recorder
	http     *http.Client
}

func newEngine(cfg *config.Config, logger *zap.Logger) (*engine, error) {
	s, err := schema.Build(cfg.Product)
	if err != nil {
		return nil, err
	}
	return &engine{
		cfg:    cfg,
		schema: s,
		logger: logger,
		http:   &http.Client{Timeout: cfg.Gateway.Timeout},
	}, nil
}

// connectNATS opens the analytics connection when the nats sink is selected.
func (e *engine) connectNATS() error {
	if e.cfg.Analytics.Sink != config.SinkNATS {
		return nil
	}
	nc, err := nats.Connect(e.cfg.Analytics.NATSURL, nats.Name("onboarding-analytics"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	e.nats = nc
	e.logger.Info("Connected to NATS", zap.String("url", e.cfg.Analytics.NATSURL))
	return nil
}

func (e *engine) close() {
	if e.nats != nil {
		e.nats.Close()
	}
}

func (e *engine) publisher(gw *clients.HTTPGateway) analytics.Publisher {
	switch e.cfg.Analytics.Sink {
	case config.SinkNone:
		return analytics.NopPublisher{}
	case config.SinkNATS:
		if e.nats != nil {
			return analytics.NewNATSPublisher(e.nats, e.cfg.Analytics.Subject)
		}
		return analytics.NopPublisher{}
	default:
		return analytics.GatewayPublisher{Gateway: gw}
	}
}

// newVisitor builds the gateway, scheduler and orchestrator of one session.
func (e *engine) newVisitor(sessionID string) *server.Visitor {
	gwOpts := []clients.HTTPOption{
		clients.WithHTTPClient(e.http),
		clients.WithLogger(e.logger),
	}
	if exchange := auth.NewExchanger(e.http, e.cfg.Gateway.TokenExchange); exchange != nil {
		gwOpts = append(gwOpts, clients.WithTokenExchanger(exchange))
	}
	gw := clients.NewHTTPGateway(e.cfg.Gateway.BaseURL, e.cfg.Gateway.Timeout, gwOpts...)

	sched := analytics.NewScheduler(e.publisher(gw), e.cfg.Analytics.Delay,
		analytics.WithLogger(e.logger),
		analytics.WithSessionID(sessionID))

	opts := []onboarding.Option{
		onboarding.WithLogger(e.logger),
		onboarding.WithScheduler(sched),
		onboarding.WithSessionID(sessionID),
		onboarding.WithConsentOptions(consent.Options{ConflictCheckFirst: e.cfg.Consent.ConflictCheckFirst}),
		onboarding.WithRedirectURL(e.cfg.Product.SSOInitURL),
	}
	if e.recorder != nil {
		opts = append(opts, onboarding.WithRecorder(e.recorder))
	}
	return &server.Visitor{
		Orchestrator: onboarding.New(gw, e.schema, opts...),
		SetBearer:    gw.SetBearerToken,
	}
}
