package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-crm/mailer/internal/campaign"
)

// SendCampaignRequest is the body for POST /api/mailer/campaigns/{campaignID}/send.
type SendCampaignRequest struct {
	Recipients     []campaign.Recipient `json:"recipients"`
	Subject        string               `json:"subject"`
	Body           string               `json:"body"`
	TemplateEngine string               `json:"templateEngine,omitempty"`
	RecipientType  string               `json:"recipientType,omitempty"`
}

// SendCampaign admits and submits a bulk campaign. Admission failures
// (recipient count above the provider's daily limit) are rejected here;
// once admitted the response describes how the campaign will run and
// per-recipient outcomes land in the email logs.
//
//	POST /api/mailer/campaigns/{campaignID}/send
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if campaignID == "" {
		respondError(w, http.StatusBadRequest, "campaign id is required")
		return
	}

	var req SendCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Recipients) == 0 {
		respondError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}
	if req.Subject == "" {
		respondError(w, http.StatusBadRequest, "subject is required")
		return
	}

	recipientType := req.RecipientType
	if recipientType == "" {
		recipientType = "contacts"
	}

	content := campaign.Content{
		Subject:        req.Subject,
		Body:           req.Body,
		TemplateEngine: req.TemplateEngine,
	}

	result, err := h.dispatcher.SendBulkCampaign(r.Context(), campaignID, req.Recipients, content, recipientType)
	if err != nil {
		respondMailError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, result)
}
