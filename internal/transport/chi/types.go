package chi

import "time"

// ErrorCode identifies an API error class.
type ErrorCode string

const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeQuotaExceeded        ErrorCode = "quota_exceeded"
	CodeUnknownProvider      ErrorCode = "unknown_provider"
	CodeServiceMisconfigured ErrorCode = "service_misconfigured"
	CodeProviderError        ErrorCode = "provider_error"
	CodeStorageUnavailable   ErrorCode = "storage_unavailable"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the error body shared by every endpoint.
type ErrorResponse struct {
	Code          ErrorCode `json:"code"`
	Message       string    `json:"message"`
	RetryAfterSec *int      `json:"retry_after_sec,omitempty"`
}

// RespondRequest is the body of POST /v1/respond.
type RespondRequest struct {
	UserID      string `json:"user_id"`
	Command     string `json:"command"`
	Model       string `json:"model,omitempty"`
	Prompt      string `json:"prompt"`
	Instruction string `json:"instruction,omitempty"`
}

// QuotaStatus reports a user's quota position.
type QuotaStatus struct {
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	Unlimited bool       `json:"unlimited,omitempty"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
}

// RespondResponse is the body of a successful POST /v1/respond.
type RespondResponse struct {
	Text             string      `json:"text"`
	Provider         string      `json:"provider"`
	Model            string      `json:"model"`
	PromptTokens     int         `json:"prompt_tokens,omitempty"`
	CompletionTokens int         `json:"completion_tokens,omitempty"`
	TotalTokens      int         `json:"total_tokens,omitempty"`
	Quota            QuotaStatus `json:"quota"`
}

// SetLimitRequest is the body of the admin limit endpoints.
type SetLimitRequest struct {
	Limit *int `json:"limit"`
}

// ProviderResponse is the body of GET /v1/admin/provider.
type ProviderResponse struct {
	Active    string   `json:"active"`
	Label     string   `json:"label,omitempty"`
	Available []string `json:"available"`
}

// SetProviderRequest is the body of PUT /v1/admin/provider.
type SetProviderRequest struct {
	Provider string `json:"provider"`
}

// ModelEntry is one row of GET /v1/admin/models.
type ModelEntry struct {
	Command  string `json:"command"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ModelListResponse is the body of GET /v1/admin/models.
type ModelListResponse struct {
	Items []ModelEntry `json:"items"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
