// Package registry holds the configured providers, the model table, and the
// process-wide active-provider selection.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/domain"
	"github.com/botgate-io/botgate/internal/domain/model"
)

// modelTable is an immutable snapshot of the configured model entries.
// Reloads swap the whole table; resolutions never see a partial update.
type modelTable struct {
	// byScope: command scope -> provider key -> first-declared entry.
	byScope map[string]map[string]model.ModelConfig
	// entries keeps declaration order per scope for inspection and
	// explicit model selection.
	entries map[string][]model.ModelConfig
	// all keeps the full declaration order across scopes.
	all []model.ModelConfig
}

// Registry owns provider configuration and the active-provider setting.
// The model table is read on every request and written only on reload, so
// it lives behind an atomic pointer; the active provider is a single value
// behind a RWMutex.
type Registry struct {
	providers map[string]model.ProviderConfig
	table     atomic.Pointer[modelTable]
	logger    *zap.Logger

	mu     sync.RWMutex
	active string
}

// New creates a Registry. defaultProvider becomes the initial active
// provider and must be one of the configured providers.
func New(
	providers []model.ProviderConfig,
	models []model.ModelConfig,
	defaultProvider string,
	logger *zap.Logger,
) (*Registry, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}

	provs := make(map[string]model.ProviderConfig, len(providers))
	for _, p := range providers {
		if p.Key == "" {
			return nil, fmt.Errorf("provider key must not be empty")
		}
		if _, dup := provs[p.Key]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Key)
		}
		provs[p.Key] = p
	}

	r := &Registry{
		providers: provs,
		logger:    logger,
		active:    defaultProvider,
	}

	if _, ok := provs[defaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q: %w", defaultProvider, domain.ErrUnknownProvider)
	}

	table, err := r.buildTable(models)
	if err != nil {
		return nil, err
	}
	r.table.Store(table)

	return r, nil
}

// buildTable validates entries and indexes them by (scope, provider).
// Duplicate (scope, provider) pairs keep the first-declared entry; the rest
// are shadowed and reported as configuration warnings.
func (r *Registry) buildTable(models []model.ModelConfig) (*modelTable, error) {
	t := &modelTable{
		byScope: make(map[string]map[string]model.ModelConfig),
		entries: make(map[string][]model.ModelConfig),
	}

	for _, m := range models {
		if !m.Valid() {
			return nil, fmt.Errorf("model entry for scope %q is missing required fields", m.Command)
		}
		if _, ok := r.providers[m.Provider]; !ok {
			return nil, fmt.Errorf("model %q references provider %q: %w",
				m.Name, m.Provider, domain.ErrUnknownProvider)
		}

		scope := t.byScope[m.Command]
		if scope == nil {
			scope = make(map[string]model.ModelConfig)
			t.byScope[m.Command] = scope
		}
		if first, dup := scope[m.Provider]; dup {
			r.logger.Warn("Shadowed model entry",
				zap.String("command", m.Command),
				zap.String("provider", m.Provider),
				zap.String("kept", first.Name),
				zap.String("shadowed", m.Name),
			)
		} else {
			scope[m.Provider] = m
		}
		t.entries[m.Command] = append(t.entries[m.Command], m)
		t.all = append(t.all, m)
	}

	return t, nil
}

// Reload atomically replaces the model table.
func (r *Registry) Reload(models []model.ModelConfig) error {
	table, err := r.buildTable(models)
	if err != nil {
		return err
	}
	r.table.Store(table)
	r.logger.Info("Model table reloaded", zap.Int("entries", len(models)))
	return nil
}

// ActiveProvider returns the currently selected provider key.
func (r *Registry) ActiveProvider() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActiveProvider switches the process-wide provider selection.
// Unknown keys are rejected.
func (r *Registry) SetActiveProvider(key string) error {
	if _, ok := r.providers[key]; !ok {
		return fmt.Errorf("set active provider %q: %w", key, domain.ErrUnknownProvider)
	}
	r.mu.Lock()
	r.active = key
	r.mu.Unlock()
	r.logger.Info("Active provider changed", zap.String("provider", key))
	return nil
}

// ProviderLabel returns the display name of a provider key.
func (r *Registry) ProviderLabel(key string) (string, bool) {
	p, ok := r.providers[key]
	if !ok {
		return "", false
	}
	return p.Label, true
}

// Provider returns the full configuration of a provider key.
func (r *Registry) Provider(key string) (model.ProviderConfig, bool) {
	p, ok := r.providers[key]
	return p, ok
}

// Resolve picks the model entry for a command under the active provider.
func (r *Registry) Resolve(command string) (model.ModelConfig, error) {
	return r.ResolveFor(command, r.ActiveProvider())
}

// ResolveFor picks the model entry for a command under an explicit provider.
// Precedence is exact: a command-scoped entry for the provider, else a
// default-scoped entry for the provider, else a resolution error. An entry
// for a different provider is never used as a fallback.
func (r *Registry) ResolveFor(command, provider string) (model.ModelConfig, error) {
	t := r.table.Load()

	if m, ok := t.byScope[command][provider]; ok {
		return m, nil
	}
	if m, ok := t.byScope[model.DefaultScope][provider]; ok {
		return m, nil
	}
	return model.ModelConfig{}, domain.NewResolutionError(command, provider)
}

// ResolveModel honors an explicit model selection within the command scope,
// falling back to normal resolution when the name does not match any
// declared entry.
func (r *Registry) ResolveModel(command, modelName string) (model.ModelConfig, error) {
	if modelName != "" {
		t := r.table.Load()
		for _, m := range t.entries[command] {
			if m.Name == modelName {
				return m, nil
			}
		}
	}
	return r.Resolve(command)
}

// Models returns the declared entries for a command scope in declaration
// order, shadowed entries included.
func (r *Registry) Models(command string) []model.ModelConfig {
	t := r.table.Load()
	entries := t.entries[command]
	out := make([]model.ModelConfig, len(entries))
	copy(out, entries)
	return out
}

// AllModels returns every declared entry across scopes in declaration order.
func (r *Registry) AllModels() []model.ModelConfig {
	t := r.table.Load()
	out := make([]model.ModelConfig, len(t.all))
	copy(out, t.all)
	return out
}

// Providers returns the configured provider keys in sorted order.
func (r *Registry) Providers() []string {
	keys := make([]string, 0, len(r.providers))
	for k := range r.providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
