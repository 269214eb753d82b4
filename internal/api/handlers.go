package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/mail"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
	"github.com/meridian-crm/mailer/internal/queue"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	svc        *mail.Service
	dispatcher *queue.Dispatcher
	queue      queue.JobQueue
}

// NewHandlers creates the handler set.
func NewHandlers(svc *mail.Service, dispatcher *queue.Dispatcher, q queue.JobQueue) *Handlers {
	return &Handlers{svc: svc, dispatcher: dispatcher, queue: q}
}

// HealthCheck reports liveness plus the active provider and queue mode.
//
//	GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"provider":  string(h.svc.CurrentProvider()),
		"queueMode": h.queue.Available(),
	})
}

// SendEmailRequest is the body for POST /api/mailer/send.
type SendEmailRequest struct {
	To            string `json:"to"`
	Subject       string `json:"subject"`
	HTML          string `json:"html"`
	Text          string `json:"text,omitempty"`
	CampaignID    string `json:"campaignId,omitempty"`
	RecipientID   string `json:"recipientId,omitempty"`
	RecipientType string `json:"recipientType,omitempty"`
	FromName      string `json:"fromName,omitempty"`
	FromEmail     string `json:"fromEmail,omitempty"`
}

// SendEmail submits one email. With a broker available the message is
// queued and the job id returned; otherwise it is sent synchronously.
//
//	POST /api/mailer/send
func (h *Handlers) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req SendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" || req.Subject == "" {
		respondError(w, http.StatusBadRequest, "to and subject are required")
		return
	}

	msg := &mail.Message{
		To:            req.To,
		Subject:       req.Subject,
		HTML:          req.HTML,
		Text:          req.Text,
		CampaignID:    req.CampaignID,
		RecipientID:   req.RecipientID,
		RecipientType: req.RecipientType,
		FromName:      req.FromName,
		FromEmail:     req.FromEmail,
	}

	result, err := h.dispatcher.SendSingleEmail(r.Context(), msg)
	if err != nil {
		respondMailError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondMailError maps domain errors to status codes. Unknown errors are
// logged in full and returned as a generic message so transport internals
// never leak to clients.
func respondMailError(w http.ResponseWriter, err error) {
	var cfgErr *mail.ConfigurationError
	var limitErr *mail.CampaignLimitExceededError
	var depErr *campaign.DependencyMissingError

	switch {
	case errors.Is(err, mail.ErrTransportNotInitialized):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &cfgErr):
		respondError(w, http.StatusBadRequest, cfgErr.Error())
	case errors.As(err, &limitErr):
		respondError(w, http.StatusUnprocessableEntity, limitErr.Error())
	case errors.As(err, &depErr):
		respondError(w, http.StatusServiceUnavailable, depErr.Error())
	default:
		logger.Error("request failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "email delivery failed")
	}
}
