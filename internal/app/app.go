// Package app wires a workspace into a running engine: config, database,
// messaging provider, ranking backend and the active agency.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"staffline/internal/config"
	"staffline/internal/db"
	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/inbound"
	"staffline/internal/logger"
	"staffline/internal/messaging"
	"staffline/internal/migrate"
	"staffline/internal/scoring"
	"staffline/internal/scoring/gemini"
	"staffline/internal/scoring/ollama"
	"staffline/internal/secrets"
)

// Runtime is everything a command or the server needs for one workspace.
type Runtime struct {
	Config     *config.Config
	DB         *sql.DB
	Engine     engine.Engine
	Agency     domain.Agency
	Inbound    *inbound.Interpreter
	Signatures *messaging.SignatureValidator
	Log        *zap.Logger
}

// Open loads the workspace config, migrates the database, configures the
// providers and makes sure the active agency exists.
func Open(ctx context.Context, workspace, agencyOverride, actorID string, log *zap.Logger) (*Runtime, error) {
	log = logger.OrNop(log)
	cfg, err := config.Load(workspace, agencyOverride)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	st, err := migrate.Apply(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if st.Applied > 0 {
		log.Info("database migrated", zap.Int("applied", st.Applied), zap.Int("schema_version", st.Current))
	}
	rt, err := New(ctx, conn, cfg, actorID, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return rt, nil
}

// New builds a runtime over an open, migrated database.
func New(ctx context.Context, conn *sql.DB, cfg *config.Config, actorID string, log *zap.Logger) (*Runtime, error) {
	log = logger.OrNop(log)
	e := engine.New(conn, cfg)
	e.Log = log
	gw, sigs, err := Gateway(cfg, log)
	if err != nil {
		return nil, err
	}
	e.Gateway = gw
	scorer, err := Scorer(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	e.Scorer = scorer
	agency, err := ResolveAgency(ctx, e, cfg, actorID)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Config:     cfg,
		DB:         conn,
		Engine:     e,
		Agency:     agency,
		Inbound:    &inbound.Interpreter{Applier: e, CountryCode: cfg.Messaging.DefaultCountryCode, Log: log},
		Signatures: sigs,
		Log:        log,
	}, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// ResolveAgency returns the configured agency, creating it on first use.
// There is no implicit tenant: an empty agency id is an error.
func ResolveAgency(ctx context.Context, e engine.Engine, cfg *config.Config, actorID string) (domain.Agency, error) {
	if cfg == nil || strings.TrimSpace(cfg.Agency.ID) == "" {
		return domain.Agency{}, fmt.Errorf("agency not specified; set agency.id or use --agency")
	}
	return e.EnsureAgency(ctx, cfg.Agency.ID, cfg.Agency.Name, actorID)
}

// Gateway builds the messaging gateway. Without Twilio credentials every
// channel is log-only. The signature validator is nil unless enabled.
func Gateway(cfg *config.Config, log *zap.Logger) (*messaging.Gateway, *messaging.SignatureValidator, error) {
	tw := cfg.Messaging.Twilio
	token, err := secrets.Optional(secrets.Source{Name: "twilio auth token", Value: tw.AuthToken, File: tw.AuthTokenFile})
	if err != nil {
		return nil, nil, err
	}
	gw := messaging.NewLogGateway(log)
	gw.Timeout = time.Duration(cfg.Messaging.TimeoutSeconds) * time.Second
	gw.Concurrency = cfg.Messaging.Concurrency
	if strings.TrimSpace(tw.AccountSID) == "" || token == "" {
		if cfg.Messaging.ValidateSignatures {
			return nil, nil, fmt.Errorf("messaging.validate_signatures requires a twilio auth token")
		}
		return gw, nil, nil
	}
	client := messaging.NewTwilioClient(tw.AccountSID, token)
	if from := strings.TrimSpace(tw.SMSFrom); from != "" {
		gw.SMS = messaging.NewTwilioSMS(client, from)
	}
	if from := strings.TrimSpace(tw.WhatsAppFrom); from != "" {
		gw.WhatsApp = messaging.NewTwilioWhatsApp(client, from)
	}
	var sigs *messaging.SignatureValidator
	if cfg.Messaging.ValidateSignatures {
		sigs = messaging.NewSignatureValidator(token)
	}
	return gw, sigs, nil
}

// Scorer builds the scoring adapter for the configured provider. "none"
// yields an adapter that always takes the deterministic fallback.
func Scorer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*scoring.Adapter, error) {
	sc := cfg.Scoring
	timeout := time.Duration(sc.TimeoutSeconds) * time.Second
	switch provider := strings.ToLower(strings.TrimSpace(sc.Provider)); provider {
	case "gemini":
		key, err := secrets.Load(secrets.Source{Name: "gemini api key", Value: sc.APIKey, File: sc.APIKeyFile})
		if err != nil {
			return nil, err
		}
		gen, err := gemini.NewGenerator(ctx, key, sc.Model)
		if err != nil {
			return nil, err
		}
		return scoring.New(gen, provider, timeout, log), nil
	case "ollama":
		gen, err := ollama.NewGenerator(sc.OllamaHost, sc.Model)
		if err != nil {
			return nil, err
		}
		return scoring.New(gen, provider, timeout, log), nil
	default:
		return scoring.New(nil, "", timeout, log), nil
	}
}

// JWTSecret resolves the server's token signing secret, empty when unset.
func JWTSecret(cfg *config.Config) (string, error) {
	return secrets.Optional(secrets.Source{Name: "jwt secret", Value: cfg.Server.JWTSecret, File: cfg.Server.JWTSecretFile})
}
