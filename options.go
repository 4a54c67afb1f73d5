package botgate

import (
	"time"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/domain/model"
)

type clientConfig struct {
	addrs    []string
	password string

	keyPrefix     string
	defaultLimit  int
	timezone      string
	adminUsers    []string
	sweepInterval time.Duration

	providers       []model.ProviderConfig
	models          []model.ModelConfig
	defaultProvider string
	responders      map[string]Responder

	logger *zap.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

// WithRedis connects to a Redis instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithKeyPrefix namespaces every stored key. Default "botgate:".
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) { c.keyPrefix = prefix }
}

// WithDefaultLimit sets the daily quota for users without an override.
// Default 10.
func WithDefaultLimit(limit int) Option {
	return func(c *clientConfig) { c.defaultLimit = limit }
}

// WithTimezone sets the IANA zone whose midnight resets quotas.
// Default "Asia/Tokyo".
func WithTimezone(tz string) Option {
	return func(c *clientConfig) { c.timezone = tz }
}

// WithAdminUsers exempts user IDs from quota enforcement.
func WithAdminUsers(ids ...string) Option {
	return func(c *clientConfig) { c.adminUsers = append(c.adminUsers, ids...) }
}

// WithSweepInterval sets how often RunSweeper reclaims stale quota
// periods. Default 5 minutes.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *clientConfig) { c.sweepInterval = interval }
}

// WithProvider declares a chat provider reachable through an
// OpenAI-compatible endpoint. The first declared provider becomes the
// default unless WithDefaultProvider says otherwise.
func WithProvider(key, label, apiKey, baseURL string) Option {
	return func(c *clientConfig) {
		c.providers = append(c.providers, model.ProviderConfig{
			Key:     key,
			Label:   label,
			APIKey:  apiKey,
			BaseURL: baseURL,
		})
	}
}

// WithDefaultProvider sets the initially active provider.
func WithDefaultProvider(key string) Option {
	return func(c *clientConfig) { c.defaultProvider = key }
}

// WithModel declares a model entry for a command scope.
func WithModel(command, provider, name string) Option {
	return func(c *clientConfig) {
		c.models = append(c.models, model.ModelConfig{
			Command:  command,
			Provider: provider,
			Name:     name,
		})
	}
}

// WithDefaultModel declares a model entry in the default scope, used by any
// command without its own entry.
func WithDefaultModel(provider, name string) Option {
	return WithModel(model.DefaultScope, provider, name)
}

// WithResponder replaces the built-in client for one provider with a custom
// backend. The provider must still be declared with WithProvider.
func WithResponder(provider string, r Responder) Option {
	return func(c *clientConfig) {
		if c.responders == nil {
			c.responders = make(map[string]Responder)
		}
		c.responders[provider] = r
	}
}

// WithLogger sets the SDK logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}
