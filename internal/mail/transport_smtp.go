package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

// SMTPTransport delivers mail over raw SMTP with STARTTLS. It backs three of
// the five providers: generic SMTP, Gmail in app-password or OAuth2 mode, and
// Mailgun (smtp.mailgun.org submission credentials).
type SMTPTransport struct {
	provider Provider
	host     string
	port     int
	auth     smtp.Auth
	// implicit TLS on connect (SMTPS, port 465) instead of STARTTLS
	implicitTLS bool
	timeout     time.Duration
}

// NewSMTPTransport creates a transport for a generic SMTP relay.
func NewSMTPTransport(host string, port int, username, password string, secure bool) *SMTPTransport {
	if port == 0 {
		port = 587
	}
	return &SMTPTransport{
		provider:    ProviderSMTP,
		host:        host,
		port:        port,
		auth:        &plainAuth{user: username, pass: password},
		implicitTLS: secure,
		timeout:     30 * time.Second,
	}
}

// NewGmailTransport creates a Gmail transport authenticated with an app
// password.
func NewGmailTransport(user, appPassword string) *SMTPTransport {
	return &SMTPTransport{
		provider: ProviderGmail,
		host:     "smtp.gmail.com",
		port:     587,
		auth:     &plainAuth{user: user, pass: appPassword},
		timeout:  30 * time.Second,
	}
}

// NewGmailOAuth2Transport creates a Gmail transport authenticated with an
// OAuth2 access token via SASL XOAUTH2.
func NewGmailOAuth2Transport(user, accessToken string) *SMTPTransport {
	return &SMTPTransport{
		provider: ProviderGmail,
		host:     "smtp.gmail.com",
		port:     587,
		auth:     &xoauth2Auth{user: user, token: accessToken},
		timeout:  30 * time.Second,
	}
}

// NewMailgunTransport creates a Mailgun transport using SMTP submission
// credentials (postmaster username and password).
func NewMailgunTransport(username, password string) *SMTPTransport {
	return &SMTPTransport{
		provider: ProviderMailgun,
		host:     "smtp.mailgun.org",
		port:     587,
		auth:     &plainAuth{user: username, pass: password},
		timeout:  30 * time.Second,
	}
}

// Send delivers a single email over SMTP as multipart/alternative.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (*SendResult, error) {
	if t.host == "" {
		return nil, fmt.Errorf("SMTP host not configured")
	}

	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), t.host)
	raw := buildMIMEMessage(msg, messageID)

	if err := t.transact(ctx, msg.FromEmail, msg.To, raw); err != nil {
		return &SendResult{Success: false, Error: err, Provider: t.provider}, nil
	}

	logger.Info("smtp send ok", "provider", string(t.provider), "to", msg.To, "message_id", messageID)
	return &SendResult{Success: true, MessageID: messageID, Provider: t.provider, SentAt: time.Now()}, nil
}

// Probe dials the relay, negotiates STARTTLS and authenticates, then quits
// without sending. A probe failure means the credentials or host are bad.
func (t *SMTPTransport) Probe(ctx context.Context) error {
	c, err := t.setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return c.Quit()
}

func (t *SMTPTransport) transact(ctx context.Context, from, to string, raw []byte) error {
	c, err := t.setup(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA close: %w", err)
	}
	return c.Quit()
}

func (t *SMTPTransport) setup(ctx context.Context) (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	dialer := &net.Dialer{Timeout: t.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("SMTP connect to %s: %w", addr, err)
	}
	if t.implicitTLS {
		conn = tls.Client(conn, &tls.Config{ServerName: t.host})
	}

	c, err := smtp.NewClient(conn, t.host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SMTP client: %w", err)
	}

	if !t.implicitTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: t.host}); err != nil {
				c.Close()
				return nil, fmt.Errorf("STARTTLS: %w", err)
			}
		}
	}

	if t.auth != nil {
		if err := c.Auth(t.auth); err != nil {
			c.Close()
			return nil, fmt.Errorf("SMTP auth: %w", err)
		}
	}
	return c, nil
}

// buildMIMEMessage renders headers and a multipart/alternative body.
func buildMIMEMessage(msg *Message, messageID string) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", msg.FromName, msg.FromEmail))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	buf.WriteString(fmt.Sprintf("Message-ID: <%s>\r\n", messageID))
	buf.WriteString("MIME-Version: 1.0\r\n")
	for k, v := range msg.Headers {
		buf.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}

	boundary := fmt.Sprintf("=_%s", uuid.New().String()[:16])
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	buf.WriteString("\r\n")

	if msg.Text != "" {
		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		buf.WriteString(msg.Text)
		buf.WriteString("\r\n")
	}
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	buf.WriteString(msg.HTML)
	buf.WriteString("\r\n")
	buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	return buf.Bytes()
}

// plainAuth implements SASL PLAIN without stdlib's TLS-hostname check, which
// rejects relays addressed by IP. The transport always negotiates STARTTLS
// before authenticating.
type plainAuth struct {
	user, pass string
}

func (a *plainAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	return "PLAIN", []byte("\x00" + a.user + "\x00" + a.pass), nil
}

func (a *plainAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	return nil, nil
}

// xoauth2Auth implements the SASL XOAUTH2 mechanism used by Gmail.
type xoauth2Auth struct {
	user, token string
}

func (a *xoauth2Auth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	resp := []byte("user=" + a.user + "\x01auth=Bearer " + a.token + "\x01\x01")
	return "XOAUTH2", resp, nil
}

func (a *xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	// Server sends a JSON error blob on failure; an empty response tells it
	// to finish the exchange so the error surfaces as an SMTP reply.
	if more {
		return []byte(""), nil
	}
	return nil, nil
}
