package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInlineQueueRejectsEverything(t *testing.T) {
	q := NewInlineQueue()
	ctx := context.Background()

	assert.False(t, q.Available())

	_, err := q.EnqueueCampaign(ctx, &CampaignJob{})
	assert.ErrorIs(t, err, ErrQueueUnavailable)
	_, err = q.EnqueueSingle(ctx, &SingleJob{})
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	assert.ErrorIs(t, q.Pause(ctx), ErrQueueUnavailable)
	assert.ErrorIs(t, q.Resume(ctx), ErrQueueUnavailable)

	_, err = q.Clear(ctx)
	assert.ErrorIs(t, err, ErrQueueUnavailable)
	_, err = q.RetryFailed(ctx)
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	status, err := q.Status(ctx)
	assert.Nil(t, status)
	assert.ErrorIs(t, err, ErrQueueUnavailable)
}
