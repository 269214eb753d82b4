// Package mail implements the CRM's outbound email delivery layer: the five
// supported providers, their transports, the active-transport service, and
// template merge helpers.
//
// Exactly one provider is current at any time. Validation of the provider's
// required credential fields happens before a transport is built, so a
// configured transport is always backed by a complete credential set.
package mail

import "fmt"

// Provider identifies one of the five supported email-sending services.
type Provider string

const (
	ProviderGmail    Provider = "gmail"
	ProviderSMTP     Provider = "smtp"
	ProviderSendGrid Provider = "sendgrid"
	ProviderSES      Provider = "aws_ses"
	ProviderMailgun  Provider = "mailgun"
)

// Gmail authentication sub-methods.
const (
	GmailAuthAppPassword = "app_password"
	GmailAuthOAuth2      = "oauth2"
)

// ParseProvider validates a provider name from configuration or an API call.
func ParseProvider(name string) (Provider, error) {
	switch Provider(name) {
	case ProviderGmail, ProviderSMTP, ProviderSendGrid, ProviderSES, ProviderMailgun:
		return Provider(name), nil
	}
	return "", &ConfigurationError{
		Provider: Provider(name),
		Reason:   fmt.Sprintf("unsupported provider %q (want gmail, smtp, sendgrid, aws_ses or mailgun)", name),
	}
}

// Limits is the per-provider sending policy: daily cap, nominal messages per
// second and provider-declared batch size. The bulk processor caps the batch
// size to 10 regardless of the declared value.
type Limits struct {
	DailyLimit    int
	RatePerSecond int
	BatchSize     int
}

// Limits returns the static sending policy for the provider.
func (p Provider) Limits() Limits {
	switch p {
	case ProviderGmail:
		return Limits{DailyLimit: 500, RatePerSecond: 10, BatchSize: 50}
	case ProviderSMTP:
		return Limits{DailyLimit: 1000, RatePerSecond: 14, BatchSize: 50}
	case ProviderSendGrid:
		return Limits{DailyLimit: 100, RatePerSecond: 100, BatchSize: 1000}
	case ProviderSES:
		return Limits{DailyLimit: 50000, RatePerSecond: 14, BatchSize: 50}
	case ProviderMailgun:
		return Limits{DailyLimit: 300, RatePerSecond: 10, BatchSize: 50}
	}
	return Limits{DailyLimit: 100, RatePerSecond: 1, BatchSize: 10}
}

// Credentials bundles every provider credential recognized from the
// environment. Only the fields for the current provider are validated.
type Credentials struct {
	GmailUser         string
	GmailAppPassword  string
	GmailAuthMethod   string // app_password (default) or oauth2
	GmailClientID     string
	GmailClientSecret string
	GmailRefreshToken string

	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPSecure bool

	SendGridAPIKey string

	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string

	MailgunUsername string
	MailgunPassword string

	FromName  string
	FromEmail string
	AppURL    string
}

// Validate checks that every required credential field for the provider is
// present. It reports the first missing field as a ConfigurationError.
func (p Provider) Validate(c Credentials) error {
	missing := func(field string) error {
		return &ConfigurationError{Provider: p, Field: field}
	}

	switch p {
	case ProviderGmail:
		if c.GmailUser == "" {
			return missing("GMAIL_USER")
		}
		if c.GmailAuthMethod == GmailAuthOAuth2 {
			if c.GmailClientID == "" {
				return missing("GMAIL_CLIENT_ID")
			}
			if c.GmailClientSecret == "" {
				return missing("GMAIL_CLIENT_SECRET")
			}
			if c.GmailRefreshToken == "" {
				return missing("GMAIL_REFRESH_TOKEN")
			}
			return nil
		}
		if c.GmailAppPassword == "" {
			return missing("GMAIL_APP_PASSWORD")
		}
	case ProviderSMTP:
		if c.SMTPHost == "" {
			return missing("SMTP_HOST")
		}
		if c.SMTPUser == "" {
			return missing("SMTP_USER")
		}
		if c.SMTPPass == "" {
			return missing("SMTP_PASS")
		}
	case ProviderSendGrid:
		if c.SendGridAPIKey == "" {
			return missing("SENDGRID_API_KEY")
		}
	case ProviderSES:
		if c.AWSAccessKeyID == "" {
			return missing("AWS_ACCESS_KEY_ID")
		}
		if c.AWSSecretAccessKey == "" {
			return missing("AWS_SECRET_ACCESS_KEY")
		}
	case ProviderMailgun:
		if c.MailgunUsername == "" {
			return missing("MAILGUN_USERNAME")
		}
		if c.MailgunPassword == "" {
			return missing("MAILGUN_PASSWORD")
		}
	default:
		return &ConfigurationError{Provider: p, Reason: "unsupported provider"}
	}
	return nil
}
