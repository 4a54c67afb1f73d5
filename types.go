package botgate

import (
	"context"
	"time"

	"github.com/botgate-io/botgate/internal/domain"
)

// Sentinel errors surfaced by Respond. Match with errors.Is.
var (
	ErrQuotaExceeded      = domain.ErrQuotaExceeded
	ErrNoModelForProvider = domain.ErrNoModelForProvider
	ErrUnknownProvider    = domain.ErrUnknownProvider
	ErrProviderFailure    = domain.ErrProviderFailure
	ErrStorageUnavailable = domain.ErrStorageUnavailable
)

// Request is one chat command to serve.
type Request struct {
	UserID      string
	Command     string
	Model       string // optional explicit model selection
	Prompt      string
	Instruction string
}

// Reply is a served chat response with quota provenance.
type Reply struct {
	Text        string
	Provider    string
	Model       string
	TotalTokens int
	Quota       Usage
}

// Usage is a user's quota position.
type Usage struct {
	Used      int
	Limit     int
	Remaining int
	Unlimited bool
	ResetsAt  time.Time
}

// ModelEntry is one declared model table row.
type ModelEntry struct {
	Command  string
	Provider string
	Model    string
}

// Responder is a custom chat backend. Use WithResponder to replace the
// built-in OpenAI-compatible client for a provider.
type Responder interface {
	Respond(ctx context.Context, model, instruction, prompt string) (string, error)
}
