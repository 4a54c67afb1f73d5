package respond

import (
	"context"

	"github.com/botgate-io/botgate/internal/domain"
	"github.com/botgate-io/botgate/internal/domain/model"
	domquota "github.com/botgate-io/botgate/internal/domain/quota"
)

type mockLedger struct {
	checkFn  func(ctx context.Context, userID string) (domquota.Usage, error)
	refundFn func(ctx context.Context, userID string) error

	checkCalls  int
	refundCalls int
}

func (m *mockLedger) CheckAndIncrement(ctx context.Context, userID string) (domquota.Usage, error) {
	m.checkCalls++
	if m.checkFn != nil {
		return m.checkFn(ctx, userID)
	}
	return domquota.Usage{Used: 1, Limit: 10, Remaining: 9}, nil
}

func (m *mockLedger) Refund(ctx context.Context, userID string) error {
	m.refundCalls++
	if m.refundFn != nil {
		return m.refundFn(ctx, userID)
	}
	return nil
}

type mockResolver struct {
	resolveFn func(command, modelName string) (model.ModelConfig, error)
}

func (m *mockResolver) ResolveModel(command, modelName string) (model.ModelConfig, error) {
	if m.resolveFn != nil {
		return m.resolveFn(command, modelName)
	}
	return model.ModelConfig{}, domain.NewResolutionError(command, "")
}

type mockResponder struct {
	respondFn func(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error)

	calls   int
	lastReq domain.ResponderRequest
}

func (m *mockResponder) Respond(ctx context.Context, req domain.ResponderRequest) (domain.Reply, error) {
	m.calls++
	m.lastReq = req
	if m.respondFn != nil {
		return m.respondFn(ctx, req)
	}
	return domain.Reply{Text: "ok"}, nil
}
