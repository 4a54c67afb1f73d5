package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded signals an exhausted daily usage quota.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNoModelForProvider signals that no model entry matches the active provider.
	ErrNoModelForProvider = errors.New("no model for active provider")
	// ErrUnknownProvider signals a provider key outside the configured set.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrProviderFailure signals a failure of the external model provider call.
	ErrProviderFailure = errors.New("provider call failed")
	// ErrStorageUnavailable signals that the quota store could not be reached.
	// Quota checks fail closed on this error, never open.
	ErrStorageUnavailable = errors.New("quota storage unavailable")
)

// ResolutionError wraps ErrNoModelForProvider with the miss coordinates.
// This is a configuration defect, not a transient failure: operators fix
// the model table, callers do not retry.
type ResolutionError struct {
	Command  string
	Provider string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: command %q, provider %q",
		ErrNoModelForProvider.Error(), e.Command, e.Provider)
}

func (e *ResolutionError) Unwrap() error { return ErrNoModelForProvider }

// NewResolutionError creates a resolution error.
func NewResolutionError(command, provider string) error {
	return &ResolutionError{Command: command, Provider: provider}
}
