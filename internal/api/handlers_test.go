package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/config"
	"github.com/meridian-crm/mailer/internal/mail"
	"github.com/meridian-crm/mailer/internal/queue"
)

// newTestServer wires a server with a configured gmail transport, no
// database and no broker.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc := mail.NewService(mail.Credentials{
		GmailUser:        "sender@gmail.com",
		GmailAppPassword: "pw",
		AppURL:           "https://crm.example.com",
	})
	require.NoError(t, svc.Configure(context.Background(), "gmail", nil))

	q := queue.NewInlineQueue()
	processor := campaign.NewProcessor(campaign.NewStore(nil), svc, svc.CurrentLimits, svc.AppURL())
	dispatcher := queue.NewDispatcher(svc, q, processor)

	handlers := NewHandlers(svc, dispatcher, q)
	return NewServer(config.ServerConfig{Port: 8080, Host: "localhost"}, handlers)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "gmail", body["provider"])
	assert.Equal(t, false, body["queueMode"])
}

func TestSendEmailValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/mailer/send", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/mailer/send", map[string]string{"to": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/mailer/send", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestSendCampaignValidation(t *testing.T) {
	srv := newTestServer(t)

	// no recipients
	rec := doJSON(t, srv, http.MethodPost, "/api/mailer/campaigns/c-1/send", map[string]interface{}{
		"subject": "Hi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// no subject
	rec = doJSON(t, srv, http.MethodPost, "/api/mailer/campaigns/c-1/send", map[string]interface{}{
		"recipients": []map[string]string{{"email": "a@x.com"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendCampaignDailyLimit(t *testing.T) {
	srv := newTestServer(t)

	recipients := make([]map[string]string, 501)
	for i := range recipients {
		recipients[i] = map[string]string{"email": fmt.Sprintf("u%d@x.com", i)}
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/mailer/campaigns/c-1/send", map[string]interface{}{
		"recipients": recipients,
		"subject":    "Hi",
		"body":       "<p>Hi</p>",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "gmail")
}

func TestSendCampaignInlineResponse(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/mailer/campaigns/c-1/send", map[string]interface{}{
		"recipients": []map[string]string{{"email": "a@x.com"}},
		"subject":    "Hi",
		"body":       "<p>Hi</p>",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result queue.DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Nil(t, result.JobID)
	assert.Equal(t, "processing_sequential", result.Status)
	assert.False(t, result.QueueUsed)
}

func TestQueueStatusWithoutBroker(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/mailer/queue/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueueAdminWithoutBroker(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/api/mailer/queue/pause",
		"/api/mailer/queue/resume",
		"/api/mailer/queue/clear",
		"/api/mailer/queue/retry-failed",
	} {
		rec := doJSON(t, srv, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestSwitchProviderValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/mailer/provider/switch", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/mailer/provider/switch", map[string]string{
		"provider": "postal-service",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// known provider with incomplete credentials reports the missing field
	rec = doJSON(t, srv, http.MethodPost, "/api/mailer/provider/switch", map[string]string{
		"provider": "sendgrid",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "SENDGRID_API_KEY")
}
