package api

import (
	"errors"
	"net/http"

	"github.com/meridian-crm/mailer/internal/queue"
)

// QueueStatus reports counts by state. Like the other queue operations it
// fails with 503 when no broker is configured.
//
//	GET /api/mailer/queue/status
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.queue.Status(r.Context())
	if err != nil {
		respondQueueError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// QueuePause suspends job claiming. In-flight jobs finish their current
// recipient.
//
//	POST /api/mailer/queue/pause
func (h *Handlers) QueuePause(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Pause(r.Context()); err != nil {
		respondQueueError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// QueueResume re-enables job claiming.
//
//	POST /api/mailer/queue/resume
func (h *Handlers) QueueResume(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Resume(r.Context()); err != nil {
		respondQueueError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// QueueClear purges pending and delayed jobs and reports how many were
// removed. Failed jobs are untouched.
//
//	POST /api/mailer/queue/clear
func (h *Handlers) QueueClear(w http.ResponseWriter, r *http.Request) {
	removed, err := h.queue.Clear(r.Context())
	if err != nil {
		respondQueueError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "cleared",
		"removed": removed,
	})
}

// QueueRetryFailed re-submits failed jobs with fresh attempt counters.
//
//	POST /api/mailer/queue/retry-failed
func (h *Handlers) QueueRetryFailed(w http.ResponseWriter, r *http.Request) {
	retried, err := h.queue.RetryFailed(r.Context())
	if err != nil {
		respondQueueError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "retried",
		"retried": retried,
	})
}

func respondQueueError(w http.ResponseWriter, err error) {
	if errors.Is(err, queue.ErrQueueUnavailable) {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondMailError(w, err)
}
