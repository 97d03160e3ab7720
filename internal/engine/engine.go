package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jon4hz/chartwise/internal/api/auth"
	"github.com/jon4hz/chartwise/internal/apperr"
	"github.com/jon4hz/chartwise/internal/config"
	"github.com/jon4hz/chartwise/internal/database"
	"github.com/jon4hz/chartwise/internal/gravatar"
	"github.com/jon4hz/chartwise/internal/insight"
	"github.com/jon4hz/chartwise/internal/notify/email"
	"github.com/jon4hz/chartwise/internal/scheduler"
	"gorm.io/gorm"
)

// Summarizer produces a natural language summary of chart data.
type Summarizer interface {
	Summarize(ctx context.Context, req insight.Request) (string, error)
}

// Mailer delivers account emails.
type Mailer interface {
	SendPasswordReset(reset email.PasswordReset) error
}

// Engine implements the chartwise operations on top of the database.
// Every method returns *apperr.Error values for failures the client should see.
type Engine struct {
	cfg       *config.Config
	db        database.DB
	tokens    *auth.JWTProvider
	federated auth.IDTokenVerifier
	insight   Summarizer
	mailer    Mailer
	avatars   *gravatar.Resolver
	scheduler *scheduler.Scheduler
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSummarizer replaces the configured insight provider.
func WithSummarizer(s Summarizer) Option {
	return func(e *Engine) { e.insight = s }
}

// WithMailer replaces the SMTP mailer.
func WithMailer(m Mailer) Option {
	return func(e *Engine) { e.mailer = m }
}

// WithIDTokenVerifier enables federated login with the given verifier.
func WithIDTokenVerifier(v auth.IDTokenVerifier) Option {
	return func(e *Engine) { e.federated = v }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates a new Engine instance.
func New(ctx context.Context, cfg *config.Config, db database.DB, opts ...Option) (*Engine, error) {
	sched, err := scheduler.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	avatars, err := gravatar.New(cfg.Gravatar)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		db:        db,
		tokens:    auth.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		mailer:    email.New(cfg.Email),
		avatars:   avatars,
		scheduler: sched,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.insight == nil {
		requester, err := insight.New(cfg.Insight)
		if err != nil {
			return nil, err
		}
		e.insight = requester
	}

	if e.federated == nil && cfg.Auth.Federated != nil && cfg.Auth.Federated.Enabled {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.Federated)
		if err != nil {
			return nil, err
		}
		e.federated = verifier
	}

	if err := e.setupJobs(); err != nil {
		return nil, err
	}

	return e, nil
}

// Tokens returns the provider used to issue and verify bearer tokens.
func (e *Engine) Tokens() *auth.JWTProvider {
	return e.tokens
}

// Run starts the scheduler and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.scheduler.Start()
	<-ctx.Done()
	return nil
}

// Close stops the engine and cleans up resources.
func (e *Engine) Close() error {
	return e.scheduler.Stop()
}

// Jobs returns the state of the background jobs.
func (e *Engine) Jobs() []scheduler.JobInfo {
	return e.scheduler.Jobs()
}

// setupJobs configures all scheduled jobs.
func (e *Engine) setupJobs() error {
	if err := e.scheduler.AddSingletonJob(
		"reset_token_janitor",
		"Reset Token Janitor",
		"Clears expired password reset tokens",
		e.cfg.Janitor.Schedule,
		e.clearExpiredResetTokens,
		true,
	); err != nil {
		return fmt.Errorf("failed to add reset token janitor: %w", err)
	}
	return nil
}

// storeErr maps a database error to a client facing error. A missing record
// becomes NotFound with notFoundMsg, anything else a storage error.
func storeErr(err error, notFoundMsg, storageMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(notFoundMsg)
	}
	return apperr.Storage(storageMsg, err)
}
