package queue

import (
	"context"

	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/mail"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

// DispatchResult tells the caller what happened to a submitted send:
// whether it was queued (and under which job id) or executed in-process.
type DispatchResult struct {
	JobID     *string `json:"jobId"`
	Status    string  `json:"status"`
	QueueUsed bool    `json:"queueUsed"`
	MessageID string  `json:"messageId,omitempty"`
}

// Dispatcher routes sends between the job queue and the in-process path.
// Admission control happens here, before anything is enqueued or sent.
type Dispatcher struct {
	svc       *mail.Service
	queue     JobQueue
	processor *campaign.Processor
}

func NewDispatcher(svc *mail.Service, q JobQueue, processor *campaign.Processor) *Dispatcher {
	return &Dispatcher{svc: svc, queue: q, processor: processor}
}

// SendBulkCampaign admits a campaign against the active provider's daily
// limit, then either enqueues it or kicks off sequential processing in the
// background. Past admission the caller always gets a result, never an
// error: delivery failures surface through email logs and campaign status.
func (d *Dispatcher) SendBulkCampaign(ctx context.Context, campaignID string, recipients []campaign.Recipient, content campaign.Content, recipientType string) (*DispatchResult, error) {
	limits := d.svc.CurrentLimits()
	if len(recipients) > limits.DailyLimit {
		return nil, &mail.CampaignLimitExceededError{
			Provider:   d.svc.CurrentProvider(),
			Limit:      limits.DailyLimit,
			Recipients: len(recipients),
		}
	}

	if d.queue.Available() {
		jobID, err := d.queue.EnqueueCampaign(ctx, &CampaignJob{
			CampaignID:    campaignID,
			Recipients:    recipients,
			Content:       content,
			RecipientType: recipientType,
		})
		if err == nil {
			logger.Info("campaign queued", "campaign_id", campaignID, "job_id", jobID, "recipients", len(recipients))
			return &DispatchResult{JobID: &jobID, Status: "queued", QueueUsed: true}, nil
		}
		logger.Warn("campaign enqueue failed, falling back to sequential", "campaign_id", campaignID, "error", err.Error())
	}

	// No broker: process in the background so the caller still gets an
	// immediate response.
	go func() {
		result, err := d.processor.Run(context.Background(), campaignID, recipients, content, recipientType)
		if err != nil {
			logger.Error("sequential campaign failed", "campaign_id", campaignID, "error", err.Error())
			return
		}
		logger.Info("sequential campaign complete", "campaign_id", campaignID, "sent", result.Sent, "failed", result.Failed)
	}()

	return &DispatchResult{Status: "processing_sequential", QueueUsed: false}, nil
}

// SendSingleEmail queues the message when a broker is present, otherwise
// sends it synchronously.
func (d *Dispatcher) SendSingleEmail(ctx context.Context, msg *mail.Message) (*DispatchResult, error) {
	if d.queue.Available() {
		jobID, err := d.queue.EnqueueSingle(ctx, &SingleJob{Message: *msg})
		if err == nil {
			return &DispatchResult{JobID: &jobID, Status: "queued", QueueUsed: true}, nil
		}
		logger.Warn("single enqueue failed, sending directly", "error", err.Error())
	}

	result, err := d.svc.Send(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Status: "sent", QueueUsed: false, MessageID: result.MessageID}, nil
}
