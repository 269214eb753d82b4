// Package queue provides the durable job queue for email sends: a
// Redis-backed implementation with delayed retries, an inline fallback for
// processes without a broker, the worker loop, and the dispatcher that
// routes sends through whichever path is active.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/mail"
)

// ErrQueueUnavailable is returned by administrative operations when the
// queue was disabled at startup. The availability decision is permanent for
// the process lifetime.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// Retry policy. Backoff doubles per attempt.
const (
	MaxAttempts       = 3
	CampaignBackoff   = 10 * time.Second
	SingleBackoff     = 2 * time.Second
	SingleConcurrency = 5
)

// Job kinds carried in queue envelopes.
const (
	KindCampaign = "campaign"
	KindSingle   = "single"
)

// CampaignJob is a bulk send request: consumed exactly once by a worker,
// retried up to MaxAttempts, then parked in the failed list.
type CampaignJob struct {
	ID            string               `json:"id"`
	CampaignID    string               `json:"campaign_id"`
	Recipients    []campaign.Recipient `json:"recipients"`
	Content       campaign.Content     `json:"content"`
	RecipientType string               `json:"recipient_type"`
	Attempts      int                  `json:"attempts"`
	EnqueuedAt    time.Time            `json:"enqueued_at"`
}

// SingleJob is one queued single-email send.
type SingleJob struct {
	ID         string       `json:"id"`
	Message    mail.Message `json:"message"`
	Attempts   int          `json:"attempts"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// envelope wraps a job for the shared delayed and failed structures.
type envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Status reports queue counts by state.
type Status struct {
	Available        bool  `json:"available"`
	Paused           bool  `json:"paused"`
	PendingCampaigns int64 `json:"pending_campaigns"`
	PendingSingles   int64 `json:"pending_singles"`
	Delayed          int64 `json:"delayed"`
	Failed           int64 `json:"failed"`
}

// JobQueue is the capability interface for durable send queueing. The
// broker-backed implementation is RedisQueue; InlineQueue is the explicit
// no-broker fallback selected at startup.
type JobQueue interface {
	// Available reports whether jobs are actually routed through a broker.
	// Decided once at startup and immutable afterwards.
	Available() bool

	EnqueueCampaign(ctx context.Context, job *CampaignJob) (string, error)
	EnqueueSingle(ctx context.Context, job *SingleJob) (string, error)

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	// Clear purges pending and delayed jobs, returning how many were removed.
	Clear(ctx context.Context) (int64, error)
	// RetryFailed re-submits every failed job individually; one job's retry
	// failure does not abort the rest. Returns the number re-submitted.
	RetryFailed(ctx context.Context) (int, error)
	Status(ctx context.Context) (*Status, error)
}

// backoffFor returns the delay before the given attempt is retried.
// attempt is 1-based: the first retry of a campaign waits 10s, the second 20s.
func backoffFor(kind string, attempt int) time.Duration {
	base := CampaignBackoff
	if kind == KindSingle {
		base = SingleBackoff
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
