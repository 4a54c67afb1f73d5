// Package botgate is the embedded SDK: the same quota ledger, model
// registry, and chat orchestration the HTTP server runs, wired in-process
// for Go bots that do not want a separate gateway deployment.
package botgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/clock"
	"github.com/botgate-io/botgate/internal/db"
	dbRedis "github.com/botgate-io/botgate/internal/db/redis"
	"github.com/botgate-io/botgate/internal/domain"
	domquota "github.com/botgate-io/botgate/internal/domain/quota"
	quotarepo "github.com/botgate-io/botgate/internal/repository/quota"
	openaiChat "github.com/botgate-io/botgate/internal/transport/openai"
	quotauc "github.com/botgate-io/botgate/internal/usecase/quota"
	"github.com/botgate-io/botgate/internal/usecase/quota/sweeper"
	"github.com/botgate-io/botgate/internal/usecase/registry"
	responduc "github.com/botgate-io/botgate/internal/usecase/respond"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultSweepInterval    = 5 * time.Minute
)

// Client is the botgate SDK entry point.
type Client struct {
	store      db.Store
	ledger     *quotauc.Ledger
	registry   *registry.Registry
	respondSvc *responduc.Service
	sweeper    *sweeper.Sweeper
}

// New creates a botgate Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		defaultLimit:  10,
		timezone:      "Asia/Tokyo",
		keyPrefix:     "botgate:",
		sweepInterval: defaultSweepInterval,
		logger:        zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("botgate: database address required (use WithRedis)")
	}
	if len(cfg.providers) == 0 {
		return nil, errors.New("botgate: at least one provider required (use WithProvider)")
	}
	if cfg.defaultProvider == "" {
		cfg.defaultProvider = cfg.providers[0].Key
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("botgate: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("botgate: database not ready: %w", err)
	}

	c, err := wireClient(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(store db.Store, cfg *clientConfig) (*Client, error) {
	periods, err := clock.NewPeriods(cfg.timezone)
	if err != nil {
		return nil, fmt.Errorf("botgate: timezone: %w", err)
	}
	clk := clock.System{}

	quotaStore := quotarepo.New(store, cfg.keyPrefix)
	ledger := quotauc.New(quotaStore, clk, periods, cfg.defaultLimit, cfg.adminUsers, cfg.logger)

	reg, err := registry.New(cfg.providers, cfg.models, cfg.defaultProvider, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("botgate: registry: %w", err)
	}

	responders := make(map[string]domain.Responder, len(cfg.providers))
	for _, p := range cfg.providers {
		if custom, ok := cfg.responders[p.Key]; ok {
			responders[p.Key] = &responderAdapter{inner: custom}
			continue
		}
		responders[p.Key] = openaiChat.NewResponder(&openaiChat.Config{
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Provider: p.Key,
			Logger:   cfg.logger,
		})
	}

	interval := cfg.sweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	return &Client{
		store:      store,
		ledger:     ledger,
		registry:   reg,
		respondSvc: responduc.New(ledger, reg, responders, cfg.logger),
		sweeper:    sweeper.New(quotaStore, clk, periods, interval, cfg.logger),
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// RunSweeper reclaims stale quota periods in the background until ctx is
// cancelled. Without it, a stale counter is only reconciled lazily when
// its user sends another request. Run it in its own goroutine:
//
//	go client.RunSweeper(ctx)
func (c *Client) RunSweeper(ctx context.Context) {
	c.sweeper.Run(ctx)
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Respond serves one chat command: quota check, model resolution, and the
// provider call.
func (c *Client) Respond(ctx context.Context, req Request) (Reply, error) {
	res, err := c.respondSvc.Handle(ctx, responduc.Request{
		UserID:      req.UserID,
		Command:     req.Command,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Instruction: req.Instruction,
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:        res.Reply.Text,
		Provider:    res.Reply.Provider,
		Model:       res.Reply.Model,
		TotalTokens: res.Reply.TotalTokens,
		Quota:       usageFrom(res.Usage),
	}, nil
}

// Quota returns the quota management service.
func (c *Client) Quota() *QuotaService {
	return &QuotaService{ledger: c.ledger}
}

// Providers returns the provider management service.
func (c *Client) Providers() *ProviderService {
	return &ProviderService{registry: c.registry}
}

// QuotaService exposes the ledger operations.
type QuotaService struct {
	ledger *quotauc.Ledger
}

// Usage returns the user's current quota position without charging it.
func (q *QuotaService) Usage(ctx context.Context, userID string) (Usage, error) {
	u, err := q.ledger.Usage(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	return usageFrom(u), nil
}

// Reset restores the user's full quota for the current period.
func (q *QuotaService) Reset(ctx context.Context, userID string) error {
	return q.ledger.Reset(ctx, userID)
}

// SetLimit overrides the daily limit for one user.
func (q *QuotaService) SetLimit(ctx context.Context, userID string, limit int) error {
	return q.ledger.SetLimit(ctx, userID, limit)
}

// SetDefaultLimit overrides the daily limit for all users without a
// per-user override.
func (q *QuotaService) SetDefaultLimit(ctx context.Context, limit int) error {
	return q.ledger.SetDefaultLimit(ctx, limit)
}

// ProviderService exposes the provider selection and model table.
type ProviderService struct {
	registry *registry.Registry
}

// Active returns the current provider key.
func (p *ProviderService) Active() string {
	return p.registry.ActiveProvider()
}

// SetActive switches the active provider. Unknown keys are rejected.
func (p *ProviderService) SetActive(key string) error {
	return p.registry.SetActiveProvider(key)
}

// Models returns every declared model entry in declaration order.
func (p *ProviderService) Models() []ModelEntry {
	all := p.registry.AllModels()
	out := make([]ModelEntry, len(all))
	for i, m := range all {
		out[i] = ModelEntry{Command: m.Command, Provider: m.Provider, Model: m.Name}
	}
	return out
}

func usageFrom(u domquota.Usage) Usage {
	return Usage{
		Used:      u.Used,
		Limit:     u.Limit,
		Remaining: u.Remaining,
		Unlimited: u.Unlimited,
		ResetsAt:  u.ResetsAt,
	}
}

// responderAdapter wraps a public Responder to satisfy domain.Responder.
type responderAdapter struct {
	inner Responder
}

func (a *responderAdapter) Respond(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error) {
	text, err := a.inner.Respond(ctx, req.Model, req.Instruction, req.Prompt)
	if err != nil {
		return domain.Reply{}, fmt.Errorf("respond: %w", err)
	}
	return domain.Reply{Text: text, Model: req.Model}, nil
}
