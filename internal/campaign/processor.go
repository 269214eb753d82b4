package campaign

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/meridian-crm/mailer/internal/mail"
	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

// Maximum recipients dispatched per pacing cycle, regardless of the
// provider-declared batch size.
const maxBatchSize = 10

// DependencyMissingError reports a required capability absent when bulk
// processing starts. Fatal; raised before any sends.
type DependencyMissingError struct {
	Dependency string
}

func (e *DependencyMissingError) Error() string {
	return fmt.Sprintf("required dependency missing: %s", e.Dependency)
}

// Recipient is one entry of a campaign's recipient list.
type Recipient struct {
	ID        string                 `json:"id"`
	Email     string                 `json:"email"`
	FirstName string                 `json:"first_name"`
	LastName  string                 `json:"last_name"`
	Company   string                 `json:"company"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// Content is the shared template for a campaign: subject and HTML body, with
// an optional template engine selector ("liquid" enables Liquid rendering
// before merge-token substitution).
type Content struct {
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	TemplateEngine string `json:"template_engine,omitempty"`
}

// Result summarizes one campaign run. LogErrors collects failures of the
// audit-log writes themselves; they never abort the loop.
type Result struct {
	Total     int     `json:"total"`
	Sent      int     `json:"sent"`
	Failed    int     `json:"failed"`
	LogErrors []error `json:"-"`
}

// Sender delivers one message. *mail.Service satisfies this.
type Sender interface {
	Send(ctx context.Context, msg *mail.Message) (*mail.SendResult, error)
}

// PolicyFunc returns the sending policy of the current provider at run time.
type PolicyFunc func() mail.Limits

// Processor executes a campaign send against a full recipient list:
// sequential batches, per-provider pacing, one persisted log row per
// recipient, and a single aggregate update at the end. Batches are
// intentionally not parallelized; provider rate limits apply per account,
// not per worker.
type Processor struct {
	store     *Store
	sender    Sender
	policy    PolicyFunc
	appURL    string
	templates *mail.TemplateService

	// OnProgress, when set, receives the completion percentage at the start
	// of each batch and 100 on completion (queue job progress).
	OnProgress func(pct int)

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewProcessor creates a campaign processor.
func NewProcessor(store *Store, sender Sender, policy PolicyFunc, appURL string) *Processor {
	return &Processor{
		store:     store,
		sender:    sender,
		policy:    policy,
		appURL:    appURL,
		templates: mail.NewTemplateService(),
		sleep:     sleepCtx,
	}
}

// Run processes every recipient in order and returns the outcome tally.
// Per-recipient send failures are recorded and do not stop the loop.
func (p *Processor) Run(ctx context.Context, campaignID string, recipients []Recipient, content Content, recipientType string) (*Result, error) {
	if p.store == nil || p.store.db == nil {
		return nil, &DependencyMissingError{Dependency: "database"}
	}

	limits := p.policy()
	batchSize := limits.BatchSize
	if batchSize > maxBatchSize || batchSize <= 0 {
		batchSize = maxBatchSize
	}
	delay := pacingDelay(limits.RatePerSecond)

	result := &Result{Total: len(recipients)}
	logType := singularize(recipientType)

	logger.Info("campaign processing started",
		"campaign_id", campaignID,
		"recipients", fmt.Sprintf("%d", len(recipients)),
		"batch_size", fmt.Sprintf("%d", batchSize))

	for start := 0; start < len(recipients); start += batchSize {
		p.reportProgress(start, len(recipients))

		end := start + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		for j, recipient := range recipients[start:end] {
			if j > 0 {
				p.sleep(ctx, delay)
			}
			p.processRecipient(ctx, campaignID, recipient, content, logType, result)
		}
	}

	if p.OnProgress != nil {
		p.OnProgress(100)
	}

	status := CampaignCompleted
	if result.Sent == 0 && result.Failed == result.Total && result.Total > 0 {
		status = CampaignFailed
	}
	if err := p.store.FinalizeCampaign(ctx, campaignID, status, result.Sent); err != nil {
		logger.Error("campaign finalize failed", "campaign_id", campaignID, "error", err.Error())
		result.LogErrors = append(result.LogErrors, err)
	}

	logger.Info("campaign processing finished",
		"campaign_id", campaignID,
		"status", status,
		"sent", fmt.Sprintf("%d", result.Sent),
		"failed", fmt.Sprintf("%d", result.Failed))

	return result, nil
}

// processRecipient renders, sends and logs one recipient. Failures of the
// log write itself are collected and never abort the campaign.
func (p *Processor) processRecipient(ctx context.Context, campaignID string, r Recipient, content Content, logType string, result *Result) {
	subject, body := p.render(r, content)

	msg := &mail.Message{
		To:            r.Email,
		Subject:       subject,
		HTML:          body,
		CampaignID:    campaignID,
		RecipientID:   r.ID,
		RecipientType: logType,
	}

	entry := &EmailLog{
		CampaignID:     campaignID,
		RecipientID:    r.ID,
		RecipientType:  logType,
		RecipientEmail: r.Email,
		Subject:        subject,
	}

	res, err := p.sender.Send(ctx, msg)
	switch {
	case err != nil:
		entry.Status = StatusFailed
		entry.ErrorMessage = err.Error()
		result.Failed++
	case !res.Success:
		entry.Status = StatusFailed
		if res.Error != nil {
			entry.ErrorMessage = res.Error.Error()
		} else {
			entry.ErrorMessage = "send rejected by provider"
		}
		result.Failed++
	default:
		entry.Status = StatusSent
		entry.MessageID = res.MessageID
		result.Sent++
	}

	if logErr := p.store.InsertEmailLog(ctx, entry); logErr != nil {
		logger.Error("email log write failed",
			"campaign_id", campaignID, "recipient_email", r.Email, "error", logErr.Error())
		result.LogErrors = append(result.LogErrors, logErr)
	}
}

// render applies the optional Liquid pass, then the merge tokens, to both
// subject and body.
func (p *Processor) render(r Recipient, content Content) (subject, body string) {
	subject, body = content.Subject, content.Body

	if strings.EqualFold(content.TemplateEngine, "liquid") && p.templates != nil {
		data := map[string]interface{}{
			"first_name":       r.FirstName,
			"last_name":        r.LastName,
			"email":            r.Email,
			"company":          r.Company,
			"full_name":        strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName)),
			"unsubscribe_link": mail.UnsubscribeAnchor(p.appURL, r.Email),
		}
		for k, v := range r.Attrs {
			data[k] = v
		}
		if rendered, err := p.templates.Render(body, data); err == nil {
			body = rendered
		} else {
			logger.Warn("liquid render failed, using raw body", "error", err.Error())
		}
		if rendered, err := p.templates.Render(subject, data); err == nil {
			subject = rendered
		}
	}

	merge := mail.MergeData{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Company:   r.Company,
	}
	subject = mail.ReplaceTemplateVariables(subject, p.appURL, merge)
	body = mail.ReplaceTemplateVariables(body, p.appURL, merge)
	return subject, body
}

func (p *Processor) reportProgress(done, total int) {
	if p.OnProgress == nil || total == 0 {
		return
	}
	p.OnProgress(done * 100 / total)
}

// pacingDelay is the inter-message delay within a batch: the nominal
// per-message interval with a 20% safety margin.
func pacingDelay(ratePerSecond int) time.Duration {
	if ratePerSecond <= 0 {
		return time.Second
	}
	ms := math.Ceil(1000.0/float64(ratePerSecond)) * 1.2
	return time.Duration(ms * float64(time.Millisecond))
}

// singularize strips the trailing "s" from a recipient type tag
// ("leads" → "lead").
func singularize(recipientType string) string {
	return strings.TrimSuffix(recipientType, "s")
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
