package provider

import (
	"errors"
	"fmt"
)

// CredentialError means a provider cannot be called at all: a missing key,
// a rejected key, or a malformed request the API refused. Never retried.
type CredentialError struct {
	Provider string
	Reason   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s: credential error: %s", e.Provider, e.Reason)
}

// TransientError wraps a failure worth retrying: a timeout, a dropped
// connection, a 5xx.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProviderError is what a provider failure looks like after the retry
// budget is spent. The pipeline collects these per provider instead of
// aborting the whole search.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsCredential reports whether err is (or wraps) a CredentialError.
func IsCredential(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
