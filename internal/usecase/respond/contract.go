package respond

import (
	"context"

	"github.com/botgate-io/botgate/internal/domain/model"
	domquota "github.com/botgate-io/botgate/internal/domain/quota"
)

// Ledger is the quota contract consumed by the orchestrator.
type Ledger interface {
	CheckAndIncrement(ctx context.Context, userID string) (domquota.Usage, error)
	Refund(ctx context.Context, userID string) error
}

// Resolver picks the model configuration for a command, honoring an
// explicit model selection when one is given.
type Resolver interface {
	ResolveModel(command, modelName string) (model.ModelConfig, error)
}
