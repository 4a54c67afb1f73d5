// Package chi is the HTTP transport for the bot gateway API.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/botgate-io/botgate/internal/domain"
	"github.com/botgate-io/botgate/internal/domain/model"
	domquota "github.com/botgate-io/botgate/internal/domain/quota"
	healthuc "github.com/botgate-io/botgate/internal/usecase/health"
	responduc "github.com/botgate-io/botgate/internal/usecase/respond"
)

// Responder serves one chat request end to end.
type Responder interface {
	Handle(ctx context.Context, req responduc.Request) (responduc.Result, error)
}

// Quota exposes the ledger operations the API surfaces.
type Quota interface {
	Usage(ctx context.Context, userID string) (domquota.Usage, error)
	Reset(ctx context.Context, userID string) error
	SetLimit(ctx context.Context, userID string, limit int) error
	SetDefaultLimit(ctx context.Context, limit int) error
}

// Registry exposes provider and model inspection plus the active-provider
// switch.
type Registry interface {
	ActiveProvider() string
	SetActiveProvider(key string) error
	ProviderLabel(key string) (string, bool)
	Providers() []string
	AllModels() []model.ModelConfig
}

// Health runs the component health checks.
type Health interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server routes the gateway HTTP API.
type Server struct {
	respond       Responder
	quota         Quota
	registry      Registry
	health        Health
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(respond Responder, quota Quota, registry Registry, health Health, logger *zap.Logger) *Server {
	s := &Server{
		respond:  respond,
		quota:    quota,
		registry: registry,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		quotaExceededHandler,
		resolutionHandler,
		sentinelHandler(domain.ErrUnknownProvider, http.StatusBadRequest, CodeUnknownProvider),
		sentinelHandler(domain.ErrProviderFailure, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrStorageUnavailable, http.StatusServiceUnavailable, CodeStorageUnavailable),
	}
	return s
}

// Routes builds the API router. adminAuth guards the /v1/admin subtree; nil
// leaves it open.
func (s *Server) Routes(adminAuth func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/respond", s.Respond)
		r.Get("/quota/{userID}", s.GetQuota)

		r.Route("/admin", func(r chi.Router) {
			if adminAuth != nil {
				r.Use(adminAuth)
			}
			r.Post("/quota/{userID}/reset", s.ResetQuota)
			r.Put("/quota/{userID}/limit", s.SetUserLimit)
			r.Put("/quota/limit", s.SetDefaultLimit)
			r.Get("/provider", s.GetProvider)
			r.Put("/provider", s.SetProvider)
			r.Get("/models", s.ListModels)
		})
	})

	return r
}

// Respond handles POST /v1/respond.
func (s *Server) Respond(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "user_id is required")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "command is required")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "prompt is required")
		return
	}

	res, err := s.respond.Handle(r.Context(), responduc.Request{
		UserID:      req.UserID,
		Command:     req.Command,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Instruction: req.Instruction,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RespondResponse{
		Text:             res.Reply.Text,
		Provider:         res.Reply.Provider,
		Model:            res.Reply.Model,
		PromptTokens:     res.Reply.PromptTokens,
		CompletionTokens: res.Reply.CompletionTokens,
		TotalTokens:      res.Reply.TotalTokens,
		Quota:            quotaStatus(res.Usage),
	})
}

// GetQuota handles GET /v1/quota/{userID}.
func (s *Server) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	usage, err := s.quota.Usage(r.Context(), userID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, quotaStatus(usage))
}

// ResetQuota handles POST /v1/admin/quota/{userID}/reset.
func (s *Server) ResetQuota(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := s.quota.Reset(r.Context(), userID); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetUserLimit handles PUT /v1/admin/quota/{userID}/limit.
func (s *Server) SetUserLimit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit, ok := decodeLimit(w, r)
	if !ok {
		return
	}

	if err := s.quota.SetLimit(r.Context(), userID, limit); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultLimit handles PUT /v1/admin/quota/limit.
func (s *Server) SetDefaultLimit(w http.ResponseWriter, r *http.Request) {
	limit, ok := decodeLimit(w, r)
	if !ok {
		return
	}

	if err := s.quota.SetDefaultLimit(r.Context(), limit); err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetProvider handles GET /v1/admin/provider.
func (s *Server) GetProvider(w http.ResponseWriter, r *http.Request) {
	active := s.registry.ActiveProvider()
	label, _ := s.registry.ProviderLabel(active)

	writeJSON(w, http.StatusOK, ProviderResponse{
		Active:    active,
		Label:     label,
		Available: s.registry.Providers(),
	})
}

// SetProvider handles PUT /v1/admin/provider.
func (s *Server) SetProvider(w http.ResponseWriter, r *http.Request) {
	var req SetProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "provider is required")
		return
	}

	if err := s.registry.SetActiveProvider(req.Provider); err != nil {
		s.handleDomainError(w, err)
		return
	}

	label, _ := s.registry.ProviderLabel(req.Provider)
	writeJSON(w, http.StatusOK, ProviderResponse{
		Active:    req.Provider,
		Label:     label,
		Available: s.registry.Providers(),
	})
}

// ListModels handles GET /v1/admin/models.
func (s *Server) ListModels(w http.ResponseWriter, r *http.Request) {
	models := s.registry.AllModels()

	items := make([]ModelEntry, len(models))
	for i, m := range models {
		items[i] = ModelEntry{
			Command:  m.Command,
			Provider: m.Provider,
			Model:    m.Name,
		}
	}

	writeJSON(w, http.StatusOK, ModelListResponse{Items: items})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func quotaStatus(u domquota.Usage) QuotaStatus {
	st := QuotaStatus{
		Used:      u.Used,
		Limit:     u.Limit,
		Remaining: u.Remaining,
		Unlimited: u.Unlimited,
	}
	if !u.ResetsAt.IsZero() {
		t := u.ResetsAt
		st.ResetsAt = &t
	}
	return st
}

func decodeLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req SetLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return 0, false
	}
	if req.Limit == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit is required")
		return 0, false
	}
	if *req.Limit < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be non-negative")
		return 0, false
	}
	return *req.Limit, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}

// quotaExceededHandler maps a spent quota to 429 with a Retry-After hint.
func quotaExceededHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		return false
	}
	var exceeded *domquota.ExceededError
	if errors.As(err, &exceeded) {
		sec := int(exceeded.RetryAfter.Seconds())
		if sec < 1 {
			sec = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(sec))
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Code:          CodeQuotaExceeded,
			Message:       domain.ErrQuotaExceeded.Error(),
			RetryAfterSec: &sec,
		})
		return true
	}
	writeError(w, http.StatusTooManyRequests, CodeQuotaExceeded, domain.ErrQuotaExceeded.Error())
	return true
}

// resolutionHandler maps a missing model entry to 503. The response stays
// generic; the command and provider coordinates go to the log only.
func resolutionHandler(w http.ResponseWriter, err error) bool {
	if !errors.Is(err, domain.ErrNoModelForProvider) {
		return false
	}
	writeError(w, http.StatusServiceUnavailable, CodeServiceMisconfigured, "service is not configured for this command")
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
