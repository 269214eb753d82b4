package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

// Service owns the current provider and its active transport. One instance
// exists per process; it is the only component allowed to replace the
// transport. Replacement is not synchronized against in-flight sends, so a
// send racing a provider switch may fail and is logged as failed.
type Service struct {
	mu        sync.RWMutex
	creds     Credentials
	provider  Provider
	transport Transport

	// tokenExchange trades a Gmail refresh token for an access token.
	// Replaceable in tests.
	tokenExchange tokenExchangeFunc
}

type tokenExchangeFunc func(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error)

// ConnectionTestResult reports the outcome of a live connection test.
type ConnectionTestResult struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Provider Provider `json:"provider"`
}

// NewService creates a mail service with no active transport. Call Configure
// before sending.
func NewService(creds Credentials) *Service {
	if creds.GmailAuthMethod == "" {
		creds.GmailAuthMethod = GmailAuthAppPassword
	}
	return &Service{creds: creds, tokenExchange: gmailAccessToken}
}

// Configure validates the named provider's credentials, builds its transport
// and makes it current. For Gmail in oauth2 mode an expired refresh token
// triggers exactly one fallback to app-password mode when one is configured.
func (s *Service) Configure(ctx context.Context, providerName string, override *Credentials) error {
	provider, err := ParseProvider(providerName)
	if err != nil {
		return err
	}

	creds := s.effectiveCreds(override)
	if err := provider.Validate(creds); err != nil {
		return err
	}

	transport, err := s.buildTransport(ctx, provider, creds)
	if err != nil {
		var expired *TokenExpiredError
		if errors.As(err, &expired) && provider == ProviderGmail && creds.GmailAppPassword != "" {
			// Fallback stays local to this transport; stored credentials
			// keep oauth2 so a later reconfigure retries the exchange.
			logger.Warn("gmail oauth2 refresh token rejected, falling back to app password",
				"user", creds.GmailUser)
			transport = NewGmailTransport(creds.GmailUser, creds.GmailAppPassword)
		} else {
			return err
		}
	}

	s.mu.Lock()
	s.provider = provider
	s.creds = creds
	s.transport = transport
	s.mu.Unlock()

	logger.Info("mail transport configured", "provider", string(provider))
	return nil
}

// SwitchProvider validates and activates a new provider, then performs a live
// connection test. On test failure the error is returned but the new provider
// remains current; callers must not assume a rollback.
func (s *Service) SwitchProvider(ctx context.Context, providerName string, override *Credentials) (*ConnectionTestResult, error) {
	if err := s.Configure(ctx, providerName, override); err != nil {
		return nil, err
	}

	s.mu.RLock()
	transport := s.transport
	provider := s.provider
	s.mu.RUnlock()

	if err := transport.Probe(ctx); err != nil {
		return nil, fmt.Errorf("switched to %s but connection test failed: %w", provider, err)
	}

	return &ConnectionTestResult{
		Success:  true,
		Message:  fmt.Sprintf("connected to %s", provider),
		Provider: provider,
	}, nil
}

// TestConnection probes the active transport. It never returns an error;
// failures are reported inside the result.
func (s *Service) TestConnection(ctx context.Context) ConnectionTestResult {
	s.mu.RLock()
	transport := s.transport
	provider := s.provider
	s.mu.RUnlock()

	if transport == nil {
		return ConnectionTestResult{Success: false, Message: "no transport configured", Provider: provider}
	}
	if err := transport.Probe(ctx); err != nil {
		return ConnectionTestResult{Success: false, Message: err.Error(), Provider: provider}
	}
	return ConnectionTestResult{
		Success:  true,
		Message:  fmt.Sprintf("connected to %s", provider),
		Provider: provider,
	}
}

// CurrentProvider returns the provider the service is configured for.
func (s *Service) CurrentProvider() Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// CurrentLimits returns the sending policy of the current provider.
func (s *Service) CurrentLimits() Limits {
	return s.CurrentProvider().Limits()
}

// AppURL returns the configured application base URL used for unsubscribe
// links.
func (s *Service) AppURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AppURL
}

// Send delivers exactly one message through the active transport. The from
// address is resolved from configuration, a plain-text part is derived from
// the HTML when absent, and campaign messages get a List-Unsubscribe header.
// Transport-level failures are not retried here.
func (s *Service) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	s.mu.RLock()
	transport := s.transport
	provider := s.provider
	creds := s.creds
	s.mu.RUnlock()

	if transport == nil {
		return nil, ErrTransportNotInitialized
	}

	fromName, fromEmail, err := resolveFrom(provider, creds)
	if err != nil {
		return nil, err
	}

	out := *msg
	out.FromName = fromName
	out.FromEmail = fromEmail
	if out.Text == "" {
		out.Text = DerivePlainText(out.HTML)
	}

	headers := make(map[string]string, len(msg.Headers)+1)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if out.CampaignID != "" {
		headers["List-Unsubscribe"] = fmt.Sprintf("<%s>", UnsubscribeURL(creds.AppURL, out.To))
	}
	out.Headers = headers

	return transport.Send(ctx, &out)
}

// buildTransport constructs the transport for one provider variant. Each
// variant's credentials were validated before this is called.
func (s *Service) buildTransport(ctx context.Context, provider Provider, creds Credentials) (Transport, error) {
	switch provider {
	case ProviderGmail:
		if creds.GmailAuthMethod == GmailAuthOAuth2 {
			token, err := s.tokenExchange(ctx, creds.GmailClientID, creds.GmailClientSecret, creds.GmailRefreshToken)
			if err != nil {
				return nil, err
			}
			return NewGmailOAuth2Transport(creds.GmailUser, token), nil
		}
		return NewGmailTransport(creds.GmailUser, creds.GmailAppPassword), nil
	case ProviderSMTP:
		return NewSMTPTransport(creds.SMTPHost, creds.SMTPPort, creds.SMTPUser, creds.SMTPPass, creds.SMTPSecure), nil
	case ProviderSendGrid:
		return NewSendGridTransport(creds.SendGridAPIKey), nil
	case ProviderSES:
		return NewSESTransport(creds.AWSAccessKeyID, creds.AWSSecretAccessKey, creds.AWSRegion)
	case ProviderMailgun:
		return NewMailgunTransport(creds.MailgunUsername, creds.MailgunPassword), nil
	}
	return nil, &ConfigurationError{Provider: provider, Reason: "unsupported provider"}
}

// effectiveCreds overlays non-zero override fields on the service defaults.
func (s *Service) effectiveCreds(override *Credentials) Credentials {
	s.mu.RLock()
	creds := s.creds
	s.mu.RUnlock()
	if override == nil {
		return creds
	}

	o := *override
	if o.GmailUser != "" {
		creds.GmailUser = o.GmailUser
	}
	if o.GmailAppPassword != "" {
		creds.GmailAppPassword = o.GmailAppPassword
	}
	if o.GmailAuthMethod != "" {
		creds.GmailAuthMethod = o.GmailAuthMethod
	}
	if o.GmailClientID != "" {
		creds.GmailClientID = o.GmailClientID
	}
	if o.GmailClientSecret != "" {
		creds.GmailClientSecret = o.GmailClientSecret
	}
	if o.GmailRefreshToken != "" {
		creds.GmailRefreshToken = o.GmailRefreshToken
	}
	if o.SMTPHost != "" {
		creds.SMTPHost = o.SMTPHost
	}
	if o.SMTPPort != 0 {
		creds.SMTPPort = o.SMTPPort
	}
	if o.SMTPUser != "" {
		creds.SMTPUser = o.SMTPUser
	}
	if o.SMTPPass != "" {
		creds.SMTPPass = o.SMTPPass
	}
	if o.SMTPSecure {
		creds.SMTPSecure = true
	}
	if o.SendGridAPIKey != "" {
		creds.SendGridAPIKey = o.SendGridAPIKey
	}
	if o.AWSAccessKeyID != "" {
		creds.AWSAccessKeyID = o.AWSAccessKeyID
	}
	if o.AWSSecretAccessKey != "" {
		creds.AWSSecretAccessKey = o.AWSSecretAccessKey
	}
	if o.AWSRegion != "" {
		creds.AWSRegion = o.AWSRegion
	}
	if o.MailgunUsername != "" {
		creds.MailgunUsername = o.MailgunUsername
	}
	if o.MailgunPassword != "" {
		creds.MailgunPassword = o.MailgunPassword
	}
	if o.FromName != "" {
		creds.FromName = o.FromName
	}
	if o.FromEmail != "" {
		creds.FromEmail = o.FromEmail
	}
	if o.AppURL != "" {
		creds.AppURL = o.AppURL
	}
	return creds
}

// resolveFrom derives the from address from configuration, falling back to
// the provider's account identity when FROM_EMAIL is unset.
func resolveFrom(provider Provider, creds Credentials) (string, string, error) {
	email := creds.FromEmail
	if email == "" {
		switch provider {
		case ProviderGmail:
			email = creds.GmailUser
		case ProviderSMTP:
			if strings.Contains(creds.SMTPUser, "@") {
				email = creds.SMTPUser
			}
		case ProviderMailgun:
			if strings.Contains(creds.MailgunUsername, "@") {
				email = creds.MailgunUsername
			}
		}
	}
	if email == "" {
		return "", "", &ConfigurationError{Provider: provider, Field: "FROM_EMAIL"}
	}

	name := creds.FromName
	if name == "" {
		name = email
	}
	return name, email, nil
}
