package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meridian-crm/mailer/internal/mail"
)

// TestConnection probes the active transport and reports the outcome.
// The response is always 200; failure is carried in the body.
//
//	GET /api/mailer/connection/test
func (h *Handlers) TestConnection(w http.ResponseWriter, r *http.Request) {
	result := h.svc.TestConnection(r.Context())
	respondJSON(w, http.StatusOK, result)
}

// SwitchProviderRequest is the body for POST /api/mailer/provider/switch.
// Credential fields are optional overrides; anything omitted falls back to
// the configured environment values.
type SwitchProviderRequest struct {
	Provider string `json:"provider"`

	GmailUser         string `json:"gmailUser,omitempty"`
	GmailAppPassword  string `json:"gmailAppPassword,omitempty"`
	GmailAuthMethod   string `json:"gmailAuthMethod,omitempty"`
	GmailClientID     string `json:"gmailClientId,omitempty"`
	GmailClientSecret string `json:"gmailClientSecret,omitempty"`
	GmailRefreshToken string `json:"gmailRefreshToken,omitempty"`

	SMTPHost   string `json:"smtpHost,omitempty"`
	SMTPPort   int    `json:"smtpPort,omitempty"`
	SMTPUser   string `json:"smtpUser,omitempty"`
	SMTPPass   string `json:"smtpPass,omitempty"`
	SMTPSecure bool   `json:"smtpSecure,omitempty"`

	SendGridAPIKey string `json:"sendgridApiKey,omitempty"`

	AWSAccessKeyID     string `json:"awsAccessKeyId,omitempty"`
	AWSSecretAccessKey string `json:"awsSecretAccessKey,omitempty"`
	AWSRegion          string `json:"awsRegion,omitempty"`

	MailgunUsername string `json:"mailgunUsername,omitempty"`
	MailgunPassword string `json:"mailgunPassword,omitempty"`

	FromName  string `json:"fromName,omitempty"`
	FromEmail string `json:"fromEmail,omitempty"`
}

// SwitchProvider validates and activates a new transport, then runs a live
// connection test. Validation failures leave the previous provider serving;
// a failed connection test is reported as an error with the new provider
// already current.
//
//	POST /api/mailer/provider/switch
func (h *Handlers) SwitchProvider(w http.ResponseWriter, r *http.Request) {
	var req SwitchProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" {
		respondError(w, http.StatusBadRequest, "provider is required")
		return
	}

	override := &mail.Credentials{
		GmailUser:         req.GmailUser,
		GmailAppPassword:  req.GmailAppPassword,
		GmailAuthMethod:   req.GmailAuthMethod,
		GmailClientID:     req.GmailClientID,
		GmailClientSecret: req.GmailClientSecret,
		GmailRefreshToken: req.GmailRefreshToken,

		SMTPHost:   req.SMTPHost,
		SMTPPort:   req.SMTPPort,
		SMTPUser:   req.SMTPUser,
		SMTPPass:   req.SMTPPass,
		SMTPSecure: req.SMTPSecure,

		SendGridAPIKey: req.SendGridAPIKey,

		AWSAccessKeyID:     req.AWSAccessKeyID,
		AWSSecretAccessKey: req.AWSSecretAccessKey,
		AWSRegion:          req.AWSRegion,

		MailgunUsername: req.MailgunUsername,
		MailgunPassword: req.MailgunPassword,

		FromName:  req.FromName,
		FromEmail: req.FromEmail,
	}

	result, err := h.svc.SwitchProvider(r.Context(), req.Provider, override)
	if err != nil {
		var cfgErr *mail.ConfigurationError
		if errors.As(err, &cfgErr) {
			respondError(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		// Transport built but the live test failed. The message is about
		// the caller's credentials or the provider, safe to return.
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}
