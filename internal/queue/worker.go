package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/mail"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

const (
	claimTimeout    = 2 * time.Second
	promoteInterval = time.Second
	pausePollDelay  = time.Second
)

// CampaignRunner executes one bulk campaign job to completion.
type CampaignRunner interface {
	Run(ctx context.Context, campaignID string, recipients []campaign.Recipient, content campaign.Content, recipientType string) (*campaign.Result, error)
}

// SingleSender delivers one message.
type SingleSender interface {
	Send(ctx context.Context, msg *mail.Message) (*mail.SendResult, error)
}

// Worker drains the job queue: one campaign stream (campaigns are paced
// internally, running them concurrently would defeat the rate policy) plus
// a small pool of single-send streams.
type Worker struct {
	queue     *RedisQueue
	processor CampaignRunner
	sender    SingleSender

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewWorker(q *RedisQueue, processor CampaignRunner, sender SingleSender) *Worker {
	return &Worker{queue: q, processor: processor, sender: sender}
}

// Start launches the claim loops. It returns immediately; use Stop for a
// graceful drain.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.campaignLoop(ctx)
	}()

	for i := 0; i < SingleConcurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.singleLoop(ctx)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.promoteLoop(ctx)
	}()

	logger.Info("worker started", "single_concurrency", SingleConcurrency)
}

// Stop cancels the loops and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logger.Info("worker stopped")
}

func (w *Worker) campaignLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if w.queue.paused(ctx) {
			sleep(ctx, pausePollDelay)
			continue
		}

		payload, err := w.queue.claim(ctx, keyCampaigns, claimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("campaign claim failed", "error", err.Error())
			sleep(ctx, pausePollDelay)
			continue
		}
		if payload == "" {
			continue
		}
		w.runCampaign(ctx, []byte(payload))
	}
}

func (w *Worker) runCampaign(ctx context.Context, payload []byte) {
	var job CampaignJob
	if err := json.Unmarshal(payload, &job); err != nil {
		logger.Error("dropping undecodable campaign job", "error", err.Error())
		return
	}

	logger.Info("campaign job claimed",
		"job_id", job.ID,
		"campaign_id", job.CampaignID,
		"recipients", len(job.Recipients),
		"attempt", job.Attempts+1)

	result, err := w.processor.Run(ctx, job.CampaignID, job.Recipients, job.Content, job.RecipientType)
	if err != nil {
		job.Attempts++
		data, merr := json.Marshal(&job)
		if merr != nil {
			logger.Error("campaign job lost, re-marshal failed", "job_id", job.ID, "error", merr.Error())
			return
		}
		if rerr := w.queue.retryOrFail(ctx, KindCampaign, data, job.Attempts); rerr != nil {
			logger.Error("campaign retry scheduling failed", "job_id", job.ID, "error", rerr.Error())
		}
		logger.Warn("campaign job failed", "job_id", job.ID, "attempt", job.Attempts, "error", err.Error())
		return
	}

	logger.Info("campaign job complete",
		"job_id", job.ID,
		"campaign_id", job.CampaignID,
		"sent", result.Sent,
		"failed", result.Failed)
}

func (w *Worker) singleLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if w.queue.paused(ctx) {
			sleep(ctx, pausePollDelay)
			continue
		}

		payload, err := w.queue.claim(ctx, keySingles, claimTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("single claim failed", "error", err.Error())
			sleep(ctx, pausePollDelay)
			continue
		}
		if payload == "" {
			continue
		}
		w.runSingle(ctx, []byte(payload))
	}
}

func (w *Worker) runSingle(ctx context.Context, payload []byte) {
	var job SingleJob
	if err := json.Unmarshal(payload, &job); err != nil {
		logger.Error("dropping undecodable single job", "error", err.Error())
		return
	}

	result, err := w.sender.Send(ctx, &job.Message)
	if err == nil && result != nil && result.Success {
		logger.Info("single job sent", "job_id", job.ID, "message_id", result.MessageID)
		return
	}

	job.Attempts++
	data, merr := json.Marshal(&job)
	if merr != nil {
		logger.Error("single job lost, re-marshal failed", "job_id", job.ID, "error", merr.Error())
		return
	}
	if rerr := w.queue.retryOrFail(ctx, KindSingle, data, job.Attempts); rerr != nil {
		logger.Error("single retry scheduling failed", "job_id", job.ID, "error", rerr.Error())
	}

	reason := "send unsuccessful"
	if err != nil {
		reason = err.Error()
	} else if result != nil && result.Error != nil {
		reason = result.Error.Error()
	}
	logger.Warn("single job failed", "job_id", job.ID, "attempt", job.Attempts, "error", reason)
}

func (w *Worker) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.promoteDelayed(ctx); err != nil && ctx.Err() == nil {
				logger.Error("delayed promotion failed", "error", err.Error())
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

