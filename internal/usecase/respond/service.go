// Package respond sequences one chat request: quota check, model
// resolution, and the external provider call.
package respond

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/domain"
	domquota "github.com/botgate-io/botgate/internal/domain/quota"
	"github.com/botgate-io/botgate/internal/metrics"
)

// refundTimeout bounds the compensating refund after a failed provider
// call. The refund runs detached from the request context: a refund owed
// because the caller cancelled must still reach storage.
const refundTimeout = 5 * time.Second

// Request is one inbound chat command.
type Request struct {
	UserID      string
	Command     string
	Model       string // optional explicit model selection
	Prompt      string
	Instruction string
}

// Result is the outcome of a served request.
type Result struct {
	Reply domain.Reply
	Usage domquota.Usage
}

// Service is the response orchestrator.
//
// Resolution runs before the quota charge, so a configuration defect never
// costs a user a unit. The charge lands before the provider call to keep
// the ledger invariant under concurrency; when the call then fails or is
// cancelled, the unit is refunded — only successfully served requests
// count, matching the ledger's fairness contract.
type Service struct {
	ledger     Ledger
	resolver   Resolver
	responders map[string]domain.Responder
	logger     *zap.Logger
}

// New creates a Service. responders is keyed by provider key.
func New(ledger Ledger, resolver Resolver, responders map[string]domain.Responder, logger *zap.Logger) *Service {
	return &Service{
		ledger:     ledger,
		resolver:   resolver,
		responders: responders,
		logger:     logger,
	}
}

// Handle serves one request end to end.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	m, err := s.resolver.ResolveModel(req.Command, req.Model)
	if err != nil {
		s.logger.Warn("Model resolution failed",
			zap.String("command", req.Command),
			zap.String("user_id", req.UserID),
			zap.Error(err),
		)
		metrics.RespondRequestsTotal.WithLabelValues(req.Command, "resolution_error").Inc()
		return Result{}, fmt.Errorf("resolve %s: %w", req.Command, err)
	}

	responder, ok := s.responders[m.Provider]
	if !ok {
		// Known provider without a built client is still a configuration
		// defect, surfaced as a resolution failure.
		s.logger.Error("No client for resolved provider",
			zap.String("command", req.Command),
			zap.String("provider", m.Provider),
		)
		metrics.RespondRequestsTotal.WithLabelValues(req.Command, "resolution_error").Inc()
		return Result{}, domain.NewResolutionError(req.Command, m.Provider)
	}

	usage, err := s.ledger.CheckAndIncrement(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			metrics.QuotaRejectionsTotal.Inc()
			metrics.RespondRequestsTotal.WithLabelValues(req.Command, "quota_exceeded").Inc()
			return Result{}, err
		}
		metrics.RespondRequestsTotal.WithLabelValues(req.Command, "storage_error").Inc()
		return Result{}, err
	}

	reply, err := responder.Respond(ctx, domain.ResponderRequest{
		Model:       m.Name,
		Instruction: req.Instruction,
		Prompt:      req.Prompt,
		MaxTokens:   m.Params.MaxTokens,
		Temperature: m.Params.Temperature,
		TopP:        m.Params.TopP,
	})
	if err != nil {
		// Single-attempt semantics: no cross-provider retry. The charged
		// unit goes back, cancellation included, so an unserved request
		// never costs quota. The request context may already be dead here,
		// so the refund gets a detached context with its own deadline.
		refundCtx, cancelRefund := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
		if refundErr := s.ledger.Refund(refundCtx, req.UserID); refundErr != nil {
			s.logger.Error("Refund after failed provider call did not apply",
				zap.String("user_id", req.UserID),
				zap.Error(refundErr),
			)
		}
		cancelRefund()
		s.logger.Error("Provider call failed",
			zap.String("command", req.Command),
			zap.String("provider", m.Provider),
			zap.String("model", m.Name),
			zap.Error(err),
		)
		metrics.RespondRequestsTotal.WithLabelValues(req.Command, "provider_error").Inc()
		return Result{}, fmt.Errorf("respond %s via %s: %w", req.Command, m.Provider, err)
	}

	s.logger.Debug("Request served",
		zap.String("command", req.Command),
		zap.String("user_id", req.UserID),
		zap.String("provider", m.Provider),
		zap.String("model", m.Name),
		zap.Int("total_tokens", reply.TotalTokens),
	)
	metrics.RespondRequestsTotal.WithLabelValues(req.Command, "success").Inc()

	reply.Provider = m.Provider
	return Result{Reply: reply, Usage: usage}, nil
}
