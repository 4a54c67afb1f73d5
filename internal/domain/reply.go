package domain

import "context"

// Reply is the result of one external model call.
type Reply struct {
	Text             string
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Responder is the external provider client contract: one call, one reply.
type Responder interface {
	Respond(ctx context.Context, req ResponderRequest) (Reply, error)
}

// ResponderRequest carries everything a provider call needs.
type ResponderRequest struct {
	Model       string
	Instruction string
	Prompt      string
	MaxTokens   int
	Temperature float32
	TopP        float32
}
