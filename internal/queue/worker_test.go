package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-crm/mailer/internal/campaign"
	"github.com/meridian-crm/mailer/internal/mail"
)

type recordingSender struct {
	mu   sync.Mutex
	errs map[string]error
	sent chan string
}

func newRecordingSender() *recordingSender {
	return &recordingSender{errs: map[string]error{}, sent: make(chan string, 16)}
}

func (s *recordingSender) Send(ctx context.Context, msg *mail.Message) (*mail.SendResult, error) {
	s.mu.Lock()
	err := s.errs[msg.To]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.sent <- msg.To
	return &mail.SendResult{Success: true, MessageID: "m-1"}, nil
}

type recordingRunner struct {
	runs chan string
	err  error
}

func (r *recordingRunner) Run(ctx context.Context, campaignID string, recipients []campaign.Recipient, content campaign.Content, recipientType string) (*campaign.Result, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.runs <- campaignID
	return &campaign.Result{Total: len(recipients), Sent: len(recipients)}, nil
}

func startTestWorker(t *testing.T, runner CampaignRunner, sender SingleSender) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := NewRedisQueue(context.Background(), client)
	require.True(t, q.Available())

	w := NewWorker(q, runner, sender)
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return q
}

func TestWorkerProcessesSingleJobs(t *testing.T) {
	sender := newRecordingSender()
	q := startTestWorker(t, &recordingRunner{runs: make(chan string, 1)}, sender)

	_, err := q.EnqueueSingle(context.Background(), &SingleJob{
		Message: mail.Message{To: "a@x.com", Subject: "Hi"},
	})
	require.NoError(t, err)

	select {
	case to := <-sender.sent:
		assert.Equal(t, "a@x.com", to)
	case <-time.After(5 * time.Second):
		t.Fatal("single job was not processed")
	}
}

func TestWorkerProcessesCampaignJobs(t *testing.T) {
	runner := &recordingRunner{runs: make(chan string, 1)}
	q := startTestWorker(t, runner, newRecordingSender())

	_, err := q.EnqueueCampaign(context.Background(), &CampaignJob{
		CampaignID: "camp-9",
		Recipients: []campaign.Recipient{{Email: "a@x.com"}},
	})
	require.NoError(t, err)

	select {
	case id := <-runner.runs:
		assert.Equal(t, "camp-9", id)
	case <-time.After(5 * time.Second):
		t.Fatal("campaign job was not processed")
	}
}

func TestWorkerRetriesFailedSingle(t *testing.T) {
	sender := newRecordingSender()
	sender.errs["bad@x.com"] = errors.New("connection refused")
	q := startTestWorker(t, &recordingRunner{runs: make(chan string, 1)}, sender)

	_, err := q.EnqueueSingle(context.Background(), &SingleJob{
		Message: mail.Message{To: "bad@x.com", Subject: "Hi"},
	})
	require.NoError(t, err)

	// the job lands in the delayed set with an incremented attempt counter
	require.Eventually(t, func() bool {
		status, err := q.Status(context.Background())
		return err == nil && status.Delayed == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerExhaustedJobGoesToFailedList(t *testing.T) {
	sender := newRecordingSender()
	sender.errs["bad@x.com"] = errors.New("connection refused")
	q := startTestWorker(t, &recordingRunner{runs: make(chan string, 1)}, sender)

	// already at the last attempt: next failure parks it permanently
	_, err := q.EnqueueSingle(context.Background(), &SingleJob{
		Message:  mail.Message{To: "bad@x.com", Subject: "Hi"},
		Attempts: MaxAttempts - 1,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := q.Status(context.Background())
		return err == nil && status.Failed == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerRespectsPause(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q := NewRedisQueue(context.Background(), client)
	require.True(t, q.Available())

	// paused before the worker ever claims
	require.NoError(t, q.Pause(context.Background()))

	sender := newRecordingSender()
	w := NewWorker(q, &recordingRunner{runs: make(chan string, 1)}, sender)
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	_, err := q.EnqueueSingle(context.Background(), &SingleJob{
		Message: mail.Message{To: "a@x.com", Subject: "Hi"},
	})
	require.NoError(t, err)

	select {
	case <-sender.sent:
		t.Fatal("job processed while paused")
	case <-time.After(1500 * time.Millisecond):
	}

	require.NoError(t, q.Resume(context.Background()))
	select {
	case to := <-sender.sent:
		assert.Equal(t, "a@x.com", to)
	case <-time.After(5 * time.Second):
		t.Fatal("job not processed after resume")
	}
}
