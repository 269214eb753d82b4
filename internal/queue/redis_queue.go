package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meridian-crm/mailer/internal/pkg/logger"
)

// Redis key layout.
const (
	keyCampaigns = "mailer:jobs:campaign"
	keySingles   = "mailer:jobs:single"
	keyDelayed   = "mailer:jobs:delayed"
	keyFailed    = "mailer:jobs:failed"
	keyPaused    = "mailer:queue:paused"
	keyProbe     = "mailer:queue:probe"
)

// RedisQueue is the broker-backed JobQueue. Pending jobs live in lists,
// retries in a sorted set scored by ready time, exhausted jobs in the failed
// list. If the broker is unreachable at startup the queue disables itself
// for the process lifetime and the system sends sequentially instead.
type RedisQueue struct {
	client    *redis.Client
	available bool
}

// NewRedisQueue connects and probes the broker. A nil client or failed probe
// yields a disabled (but non-nil) queue; the caller logs and continues.
func NewRedisQueue(ctx context.Context, client *redis.Client) *RedisQueue {
	q := &RedisQueue{client: client}
	if client == nil {
		logger.Warn("no redis client configured, queue disabled for process lifetime")
		return q
	}
	if err := q.probe(ctx); err != nil {
		logger.Warn("queue probe failed, falling back to sequential sending", "error", err.Error())
		return q
	}
	q.available = true
	logger.Info("job queue available")
	return q
}

// probe verifies broker round-trips: ping, then enqueue and remove a
// disposable test job.
func (q *RedisQueue) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	token := "probe-" + uuid.New().String()
	if err := q.client.LPush(ctx, keyProbe, token).Err(); err != nil {
		return fmt.Errorf("probe enqueue: %w", err)
	}
	removed, err := q.client.LRem(ctx, keyProbe, 1, token).Result()
	if err != nil {
		return fmt.Errorf("probe remove: %w", err)
	}
	if removed != 1 {
		return fmt.Errorf("probe job lost (removed %d)", removed)
	}
	return nil
}

// Available reports whether the broker path is active.
func (q *RedisQueue) Available() bool { return q.available }

// EnqueueCampaign pushes a bulk campaign job and returns its id immediately.
func (q *RedisQueue) EnqueueCampaign(ctx context.Context, job *CampaignJob) (string, error) {
	if !q.available {
		return "", ErrQueueUnavailable
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.EnqueuedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal campaign job: %w", err)
	}
	if err := q.client.LPush(ctx, keyCampaigns, data).Err(); err != nil {
		return "", fmt.Errorf("enqueue campaign job: %w", err)
	}
	return job.ID, nil
}

// EnqueueSingle pushes a single-send job and returns its id immediately.
func (q *RedisQueue) EnqueueSingle(ctx context.Context, job *SingleJob) (string, error) {
	if !q.available {
		return "", ErrQueueUnavailable
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.EnqueuedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal single job: %w", err)
	}
	if err := q.client.LPush(ctx, keySingles, data).Err(); err != nil {
		return "", fmt.Errorf("enqueue single job: %w", err)
	}
	return job.ID, nil
}

// Pause stops workers from claiming new jobs. Already-running jobs finish
// their current recipient first.
func (q *RedisQueue) Pause(ctx context.Context) error {
	if !q.available {
		return ErrQueueUnavailable
	}
	return q.client.Set(ctx, keyPaused, "1", 0).Err()
}

// Resume re-enables claiming.
func (q *RedisQueue) Resume(ctx context.Context) error {
	if !q.available {
		return ErrQueueUnavailable
	}
	return q.client.Del(ctx, keyPaused).Err()
}

// Clear purges pending and delayed jobs. Failed jobs are kept for manual
// retry.
func (q *RedisQueue) Clear(ctx context.Context) (int64, error) {
	if !q.available {
		return 0, ErrQueueUnavailable
	}

	var total int64
	for _, key := range []string{keyCampaigns, keySingles} {
		n, err := q.client.LLen(ctx, key).Result()
		if err != nil {
			return total, fmt.Errorf("count %s: %w", key, err)
		}
		total += n
	}
	n, err := q.client.ZCard(ctx, keyDelayed).Result()
	if err != nil {
		return total, fmt.Errorf("count delayed: %w", err)
	}
	total += n

	if err := q.client.Del(ctx, keyCampaigns, keySingles, keyDelayed).Err(); err != nil {
		return total, fmt.Errorf("clear queue: %w", err)
	}
	return total, nil
}

// RetryFailed re-submits every failed job with a fresh attempt counter.
// Continue-on-error: a single bad entry never aborts the rest.
func (q *RedisQueue) RetryFailed(ctx context.Context) (int, error) {
	if !q.available {
		return 0, ErrQueueUnavailable
	}

	members, err := q.client.LRange(ctx, keyFailed, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list failed jobs: %w", err)
	}

	retried := 0
	for _, member := range members {
		if err := q.resubmit(ctx, member); err != nil {
			logger.Warn("failed-job retry skipped", "error", err.Error())
			continue
		}
		retried++
	}
	return retried, nil
}

func (q *RedisQueue) resubmit(ctx context.Context, member string) error {
	var env envelope
	if err := json.Unmarshal([]byte(member), &env); err != nil {
		return fmt.Errorf("decode failed job: %w", err)
	}

	var data []byte
	var target string
	switch env.Kind {
	case KindCampaign:
		var job CampaignJob
		if err := json.Unmarshal(env.Payload, &job); err != nil {
			return fmt.Errorf("decode campaign job: %w", err)
		}
		job.Attempts = 0
		b, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		data, target = b, keyCampaigns
	case KindSingle:
		var job SingleJob
		if err := json.Unmarshal(env.Payload, &job); err != nil {
			return fmt.Errorf("decode single job: %w", err)
		}
		job.Attempts = 0
		b, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		data, target = b, keySingles
	default:
		return fmt.Errorf("unknown job kind %q", env.Kind)
	}

	if err := q.client.LPush(ctx, target, data).Err(); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	q.client.LRem(ctx, keyFailed, 1, member)
	return nil
}

// Status returns counts by state.
func (q *RedisQueue) Status(ctx context.Context) (*Status, error) {
	if !q.available {
		return nil, ErrQueueUnavailable
	}

	pipe := q.client.Pipeline()
	campaignsCmd := pipe.LLen(ctx, keyCampaigns)
	singlesCmd := pipe.LLen(ctx, keySingles)
	delayedCmd := pipe.ZCard(ctx, keyDelayed)
	failedCmd := pipe.LLen(ctx, keyFailed)
	pausedCmd := pipe.Exists(ctx, keyPaused)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}

	return &Status{
		Available:        true,
		Paused:           pausedCmd.Val() > 0,
		PendingCampaigns: campaignsCmd.Val(),
		PendingSingles:   singlesCmd.Val(),
		Delayed:          delayedCmd.Val(),
		Failed:           failedCmd.Val(),
	}, nil
}

// paused reports whether claiming is suspended.
func (q *RedisQueue) paused(ctx context.Context) bool {
	n, err := q.client.Exists(ctx, keyPaused).Result()
	return err == nil && n > 0
}

// claim pops one job from the given list, blocking up to timeout.
// Returns "" when nothing is available.
func (q *RedisQueue) claim(ctx context.Context, key string, timeout time.Duration) (string, error) {
	vals, err := q.client.BRPop(ctx, timeout, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(vals) != 2 {
		return "", nil
	}
	return vals[1], nil
}

// defer retries: park the job in the delayed set until its backoff expires,
// or move it to the failed list once attempts are exhausted.
func (q *RedisQueue) retryOrFail(ctx context.Context, kind string, payload []byte, attempts int) error {
	env, err := json.Marshal(envelope{Kind: kind, Payload: payload})
	if err != nil {
		return err
	}

	if attempts >= MaxAttempts {
		logger.Warn("job moved to failed list", "kind", kind, "attempts", fmt.Sprintf("%d", attempts))
		return q.client.LPush(ctx, keyFailed, env).Err()
	}

	readyAt := time.Now().Add(backoffFor(kind, attempts))
	return q.client.ZAdd(ctx, keyDelayed, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: env,
	}).Err()
}

// promoteDelayed moves every due delayed job back onto its pending list.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}

	for _, member := range members {
		var env envelope
		if err := json.Unmarshal([]byte(member), &env); err != nil {
			q.client.ZRem(ctx, keyDelayed, member)
			continue
		}
		target := keyCampaigns
		if env.Kind == KindSingle {
			target = keySingles
		}
		if err := q.client.LPush(ctx, target, []byte(env.Payload)).Err(); err != nil {
			return err
		}
		q.client.ZRem(ctx, keyDelayed, member)
	}
	return nil
}
