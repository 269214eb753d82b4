// Package campaign implements bulk campaign processing: the rate-limited
// batch send loop and the persisted per-recipient audit trail.
package campaign

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Log entry statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Campaign aggregate statuses.
const (
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// EmailLog is the persisted audit record of one recipient's send attempt.
// One row is written for every recipient, regardless of outcome.
type EmailLog struct {
	ID             string
	CampaignID     string
	RecipientID    string
	RecipientType  string
	RecipientEmail string
	Subject        string
	Status         string
	MessageID      string
	ErrorMessage   string
	SentAt         time.Time
}

// Store persists email logs and campaign aggregates in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InsertEmailLog writes one audit row.
func (s *Store) InsertEmailLog(ctx context.Context, e *EmailLog) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.SentAt.IsZero() {
		e.SentAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_logs (id, campaign_id, recipient_id, recipient_type, recipient_email,
			subject, status, message_id, error_message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.CampaignID, e.RecipientID, e.RecipientType, e.RecipientEmail,
		e.Subject, e.Status, nullable(e.MessageID), nullable(e.ErrorMessage), e.SentAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// FinalizeCampaign records the campaign's overall status and sent count.
// Called exactly once, after all recipients are processed.
func (s *Store) FinalizeCampaign(ctx context.Context, campaignID, status string, sentCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_campaigns
		SET status = $2, sent_count = $3, updated_at = NOW()
		WHERE id = $1
	`, campaignID, status, sentCount)
	if err != nil {
		return fmt.Errorf("finalize campaign %s: %w", campaignID, err)
	}
	return nil
}

// CampaignLogCounts returns sent/failed counts from the audit trail.
func (s *Store) CampaignLogCounts(ctx context.Context, campaignID string) (sent, failed int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM email_logs
		WHERE campaign_id = $1
	`, campaignID).Scan(&sent, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("campaign log counts: %w", err)
	}
	return sent, failed, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
