package mail

import (
	"errors"
	"fmt"
)

// ErrTransportNotInitialized is returned by Send when no transport has been
// configured. Sending with no transport is an error, never a silent no-op.
var ErrTransportNotInitialized = errors.New("mail transport not initialized")

// ConfigurationError reports a missing or invalid credential field for a
// provider. It is surfaced synchronously and never retried.
type ConfigurationError struct {
	Provider Provider
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("provider %s: missing required field %s", e.Provider, e.Field)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Reason)
}

// TokenExpiredError reports that the Gmail OAuth2 refresh token was rejected
// by the identity provider. The service falls back once to app-password mode
// when configured; otherwise the error is surfaced.
type TokenExpiredError struct {
	Err error
}

func (e *TokenExpiredError) Error() string {
	return fmt.Sprintf("oauth2 refresh token expired or revoked: %v", e.Err)
}

func (e *TokenExpiredError) Unwrap() error { return e.Err }

// CampaignLimitExceededError rejects a bulk campaign whose recipient count
// exceeds the provider's daily cap. Raised before any send occurs.
type CampaignLimitExceededError struct {
	Provider   Provider
	Limit      int
	Recipients int
}

func (e *CampaignLimitExceededError) Error() string {
	return fmt.Sprintf("campaign of %d recipients exceeds %s daily limit of %d",
		e.Recipients, e.Provider, e.Limit)
}
