package respond

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/domain"
	"github.com/botgate-io/botgate/internal/domain/model"
	domquota "github.com/botgate-io/botgate/internal/domain/quota"
)

func chatModel() model.ModelConfig {
	return model.ModelConfig{
		Command:  "chat",
		Provider: "openai",
		Name:     "gpt-4o-mini",
		Params:   model.Params{MaxTokens: 512, Temperature: 0.7},
	}
}

func newService(ledger *mockLedger, resolver *mockResolver, responder *mockResponder) *Service {
	return New(ledger, resolver, map[string]domain.Responder{"openai": responder}, zap.NewNop())
}

func TestHandle_Success(t *testing.T) {
	ledger := &mockLedger{
		checkFn: func(ctx context.Context, userID string) (domquota.Usage, error) {
			if userID != "42" {
				t.Errorf("expected user 42, got %q", userID)
			}
			return domquota.Usage{Used: 4, Limit: 10, Remaining: 6}, nil
		},
	}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			return chatModel(), nil
		},
	}
	responder := &mockResponder{
		respondFn: func(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error) {
			return domain.Reply{Text: "hello", Model: req.Model, TotalTokens: 21}, nil
		},
	}

	svc := newService(ledger, resolver, responder)
	res, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat", Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reply.Text != "hello" {
		t.Errorf("expected reply text %q, got %q", "hello", res.Reply.Text)
	}
	if res.Reply.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", res.Reply.Provider)
	}
	if res.Usage.Remaining != 6 {
		t.Errorf("expected 6 remaining, got %d", res.Usage.Remaining)
	}
	if responder.lastReq.Model != "gpt-4o-mini" {
		t.Errorf("expected resolved model on the request, got %q", responder.lastReq.Model)
	}
	if responder.lastReq.MaxTokens != 512 {
		t.Errorf("expected resolved params on the request, got max_tokens=%d", responder.lastReq.MaxTokens)
	}
	if ledger.refundCalls != 0 {
		t.Errorf("success must not refund, got %d refund calls", ledger.refundCalls)
	}
}

func TestHandle_ResolutionFailureCostsNoQuota(t *testing.T) {
	ledger := &mockLedger{}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			return model.ModelConfig{}, domain.NewResolutionError(command, "anthropic")
		},
	}
	responder := &mockResponder{}

	svc := newService(ledger, resolver, responder)
	_, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat"})
	if !errors.Is(err, domain.ErrNoModelForProvider) {
		t.Fatalf("expected ErrNoModelForProvider, got %v", err)
	}
	if ledger.checkCalls != 0 {
		t.Errorf("resolution failure must not touch the ledger, got %d check calls", ledger.checkCalls)
	}
	if responder.calls != 0 {
		t.Errorf("resolution failure must not reach the provider, got %d calls", responder.calls)
	}
}

func TestHandle_MissingClientIsResolutionError(t *testing.T) {
	ledger := &mockLedger{}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			m := chatModel()
			m.Provider = "google"
			return m, nil
		},
	}

	svc := newService(ledger, resolver, &mockResponder{})
	_, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat"})
	if !errors.Is(err, domain.ErrNoModelForProvider) {
		t.Fatalf("expected ErrNoModelForProvider, got %v", err)
	}
	if ledger.checkCalls != 0 {
		t.Errorf("missing client must not touch the ledger, got %d check calls", ledger.checkCalls)
	}
}

func TestHandle_QuotaExceededShortCircuits(t *testing.T) {
	ledger := &mockLedger{
		checkFn: func(ctx context.Context, userID string) (domquota.Usage, error) {
			return domquota.Usage{}, domquota.NewExceeded(10, 10, 4*time.Hour)
		},
	}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			return chatModel(), nil
		},
	}
	responder := &mockResponder{}

	svc := newService(ledger, resolver, responder)
	_, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat"})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	var exceeded *domquota.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %T", err)
	}
	if exceeded.RetryAfter != 4*time.Hour {
		t.Errorf("expected 4h retry-after, got %v", exceeded.RetryAfter)
	}
	if responder.calls != 0 {
		t.Errorf("exhausted quota must not reach the provider, got %d calls", responder.calls)
	}
	if ledger.refundCalls != 0 {
		t.Errorf("a rejected charge must not be refunded, got %d refund calls", ledger.refundCalls)
	}
}

func TestHandle_StorageErrorPropagates(t *testing.T) {
	ledger := &mockLedger{
		checkFn: func(ctx context.Context, userID string) (domquota.Usage, error) {
			return domquota.Usage{}, domain.ErrStorageUnavailable
		},
	}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			return chatModel(), nil
		},
	}
	responder := &mockResponder{}

	svc := newService(ledger, resolver, responder)
	_, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat"})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if responder.calls != 0 {
		t.Errorf("a failed check must not reach the provider, got %d calls", responder.calls)
	}
}

func TestHandle_ProviderFailureRefunds(t *testing.T) {
	ledger := &mockLedger{}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			return chatModel(), nil
		},
	}
	responder := &mockResponder{
		respondFn: func(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error) {
			return domain.Reply{}, domain.ErrProviderFailure
		},
	}

	svc := newService(ledger, resolver, responder)
	_, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected ErrProviderFailure, got %v", err)
	}
	if ledger.refundCalls != 1 {
		t.Errorf("expected exactly one refund, got %d", ledger.refundCalls)
	}
}

func TestHandle_CancellationRefunds(t *testing.T) {
	// The caller goes away mid-call. The refund must still be issuable:
	// it has to arrive on a live context even though the request context
	// is already cancelled.
	reqCtx, cancel := context.WithCancel(context.Background())

	ledger := &mockLedger{
		refundFn: func(ctx context.Context, userID string) error {
			if ctx.Err() != nil {
				t.Errorf("refund context already dead: %v", ctx.Err())
			}
			if deadline, ok := ctx.Deadline(); !ok {
				t.Error("refund context must carry its own deadline")
			} else if time.Until(deadline) <= 0 {
				t.Error("refund deadline already expired")
			}
			return nil
		},
	}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			return chatModel(), nil
		},
	}
	responder := &mockResponder{
		respondFn: func(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error) {
			cancel()
			return domain.Reply{}, ctx.Err()
		},
	}

	svc := newService(ledger, resolver, responder)
	_, err := svc.Handle(reqCtx, Request{UserID: "42", Command: "chat"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ledger.refundCalls != 1 {
		t.Errorf("cancellation must refund the charged unit, got %d refund calls", ledger.refundCalls)
	}
}

func TestHandle_RefundFailureDoesNotMaskProviderError(t *testing.T) {
	ledger := &mockLedger{
		refundFn: func(ctx context.Context, userID string) error {
			return domain.ErrStorageUnavailable
		},
	}
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			return chatModel(), nil
		},
	}
	responder := &mockResponder{
		respondFn: func(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error) {
			return domain.Reply{}, domain.ErrProviderFailure
		},
	}

	svc := newService(ledger, resolver, responder)
	_, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat"})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected the provider error, got %v", err)
	}
}

func TestHandle_ExplicitModelForwardedToResolver(t *testing.T) {
	var gotModel string
	resolver := &mockResolver{
		resolveFn: func(command, modelName string) (model.ModelConfig, error) {
			gotModel = modelName
			return chatModel(), nil
		},
	}

	svc := newService(&mockLedger{}, resolver, &mockResponder{})
	if _, err := svc.Handle(context.Background(), Request{UserID: "42", Command: "chat", Model: "gpt-4o"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotModel != "gpt-4o" {
		t.Errorf("expected explicit model forwarded, got %q", gotModel)
	}
}
