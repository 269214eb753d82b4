package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records the messages it receives.
type fakeTransport struct {
	sent     []*Message
	sendErr  error
	probeErr error
}

func (f *fakeTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, msg)
	return &SendResult{Success: true, MessageID: "msg-1", SentAt: time.Now()}, nil
}

func (f *fakeTransport) Probe(ctx context.Context) error { return f.probeErr }

func newTestService(creds Credentials, transport Transport) *Service {
	svc := NewService(creds)
	svc.provider = ProviderGmail
	svc.transport = transport
	return svc
}

func TestSendWithoutTransport(t *testing.T) {
	svc := NewService(Credentials{})
	_, err := svc.Send(context.Background(), &Message{To: "a@x.com", Subject: "hi"})
	require.ErrorIs(t, err, ErrTransportNotInitialized)
}

func TestSendResolvesFromAddress(t *testing.T) {
	ft := &fakeTransport{}
	svc := newTestService(Credentials{
		GmailUser: "sender@gmail.com",
		FromName:  "Sales",
		AppURL:    "https://crm.example.com",
	}, ft)

	_, err := svc.Send(context.Background(), &Message{To: "a@x.com", Subject: "hi", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	require.Len(t, ft.sent, 1)
	assert.Equal(t, "Sales", ft.sent[0].FromName)
	assert.Equal(t, "sender@gmail.com", ft.sent[0].FromEmail)
}

func TestSendFromEmailOverridesAccountIdentity(t *testing.T) {
	ft := &fakeTransport{}
	svc := newTestService(Credentials{
		GmailUser: "sender@gmail.com",
		FromEmail: "noreply@company.com",
		AppURL:    "https://crm.example.com",
	}, ft)

	_, err := svc.Send(context.Background(), &Message{To: "a@x.com", Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "noreply@company.com", ft.sent[0].FromEmail)
	// FromName falls back to the address when unset
	assert.Equal(t, "noreply@company.com", ft.sent[0].FromName)
}

func TestSendNoResolvableFrom(t *testing.T) {
	svc := newTestService(Credentials{}, &fakeTransport{})
	svc.provider = ProviderSendGrid

	_, err := svc.Send(context.Background(), &Message{To: "a@x.com", Subject: "hi"})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "FROM_EMAIL", cfgErr.Field)
}

func TestSendDerivesPlainText(t *testing.T) {
	ft := &fakeTransport{}
	svc := newTestService(Credentials{GmailUser: "s@gmail.com"}, ft)

	_, err := svc.Send(context.Background(), &Message{
		To: "a@x.com", Subject: "hi", HTML: "<p>Hello<br>there</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", ft.sent[0].Text)

	// explicit text part is preserved
	_, err = svc.Send(context.Background(), &Message{
		To: "a@x.com", Subject: "hi", HTML: "<p>Hello</p>", Text: "custom",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom", ft.sent[1].Text)
}

func TestSendInjectsListUnsubscribeForCampaigns(t *testing.T) {
	ft := &fakeTransport{}
	svc := newTestService(Credentials{
		GmailUser: "s@gmail.com",
		AppURL:    "https://crm.example.com",
	}, ft)

	_, err := svc.Send(context.Background(), &Message{
		To: "lead@x.com", Subject: "hi", HTML: "<p>hi</p>", CampaignID: "c-42",
	})
	require.NoError(t, err)
	assert.Equal(t,
		"<https://crm.example.com/unsubscribe?email=lead%40x.com>",
		ft.sent[0].Headers["List-Unsubscribe"])

	// transactional sends carry no unsubscribe header
	_, err = svc.Send(context.Background(), &Message{
		To: "lead@x.com", Subject: "hi", HTML: "<p>hi</p>",
	})
	require.NoError(t, err)
	_, present := ft.sent[1].Headers["List-Unsubscribe"]
	assert.False(t, present)
}

func TestSendTransportFailurePassesThrough(t *testing.T) {
	sendErr := errors.New("connection reset")
	svc := newTestService(Credentials{GmailUser: "s@gmail.com"}, &fakeTransport{sendErr: sendErr})

	_, err := svc.Send(context.Background(), &Message{To: "a@x.com", Subject: "hi"})
	require.ErrorIs(t, err, sendErr)
}

func TestConfigureValidatesCredentials(t *testing.T) {
	svc := NewService(Credentials{})

	err := svc.Configure(context.Background(), "gmail", nil)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "GMAIL_USER", cfgErr.Field)

	err = svc.Configure(context.Background(), "carrier-pigeon", nil)
	require.ErrorAs(t, err, &cfgErr)
}

func TestConfigureSMTP(t *testing.T) {
	svc := NewService(Credentials{
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
		SMTPUser: "user@example.com",
		SMTPPass: "pw",
	})

	require.NoError(t, svc.Configure(context.Background(), "smtp", nil))
	assert.Equal(t, ProviderSMTP, svc.CurrentProvider())
	assert.Equal(t, 1000, svc.CurrentLimits().DailyLimit)
}

func oauthCreds() Credentials {
	return Credentials{
		GmailUser:         "sender@gmail.com",
		GmailAuthMethod:   GmailAuthOAuth2,
		GmailClientID:     "cid",
		GmailClientSecret: "secret",
		GmailRefreshToken: "refresh",
	}
}

func TestConfigureOAuth2(t *testing.T) {
	svc := NewService(oauthCreds())
	calls := 0
	svc.tokenExchange = func(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error) {
		calls++
		assert.Equal(t, "cid", clientID)
		assert.Equal(t, "refresh", refreshToken)
		return "access-token", nil
	}

	require.NoError(t, svc.Configure(context.Background(), "gmail", nil))
	assert.Equal(t, 1, calls)

	st, ok := svc.transport.(*SMTPTransport)
	require.True(t, ok)
	_, ok = st.auth.(*xoauth2Auth)
	assert.True(t, ok)
}

func TestConfigureOAuth2FallsBackToAppPassword(t *testing.T) {
	creds := oauthCreds()
	creds.GmailAppPassword = "app-pw"
	svc := NewService(creds)

	calls := 0
	svc.tokenExchange = func(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error) {
		calls++
		return "", &TokenExpiredError{Err: errors.New("invalid_grant")}
	}

	require.NoError(t, svc.Configure(context.Background(), "gmail", nil))
	assert.Equal(t, 1, calls)

	st, ok := svc.transport.(*SMTPTransport)
	require.True(t, ok)
	_, ok = st.auth.(*plainAuth)
	assert.True(t, ok, "fallback builds an app-password transport")

	// stored credentials keep oauth2, so a reconfigure retries the exchange
	assert.Equal(t, GmailAuthOAuth2, svc.creds.GmailAuthMethod)
	require.NoError(t, svc.Configure(context.Background(), "gmail", nil))
	assert.Equal(t, 2, calls)
}

func TestConfigureOAuth2NoFallbackWithoutAppPassword(t *testing.T) {
	svc := NewService(oauthCreds())
	svc.tokenExchange = func(ctx context.Context, clientID, clientSecret, refreshToken string) (string, error) {
		return "", &TokenExpiredError{Err: errors.New("invalid_grant")}
	}

	err := svc.Configure(context.Background(), "gmail", nil)
	var expired *TokenExpiredError
	require.ErrorAs(t, err, &expired)
	assert.Nil(t, svc.transport)
}

func TestConfigureOverrideCredentials(t *testing.T) {
	svc := NewService(Credentials{})

	err := svc.Configure(context.Background(), "smtp", &Credentials{
		SMTPHost: "mail.example.com",
		SMTPUser: "u",
		SMTPPass: "p",
	})
	require.NoError(t, err)
	assert.Equal(t, ProviderSMTP, svc.CurrentProvider())
}

func TestTestConnection(t *testing.T) {
	svc := NewService(Credentials{})
	result := svc.TestConnection(context.Background())
	assert.False(t, result.Success)

	ft := &fakeTransport{}
	svc = newTestService(Credentials{}, ft)
	result = svc.TestConnection(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, ProviderGmail, result.Provider)

	ft.probeErr = errors.New("535 authentication failed")
	result = svc.TestConnection(context.Background())
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "535")
}

func TestSwitchProviderProbeFailure(t *testing.T) {
	svc := NewService(Credentials{
		SMTPHost: "127.0.0.1",
		SMTPPort: 1, // nothing listens here
		SMTPUser: "u",
		SMTPPass: "p",
	})

	_, err := svc.SwitchProvider(context.Background(), "smtp", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection test failed")
}
