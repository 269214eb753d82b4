package queue

import "context"

// InlineQueue is the no-broker fallback. It never accepts jobs; callers
// fall through to sequential in-process sending, and the admin operations
// report the queue as unavailable.
type InlineQueue struct{}

func NewInlineQueue() *InlineQueue { return &InlineQueue{} }

func (InlineQueue) Available() bool { return false }

func (InlineQueue) EnqueueCampaign(context.Context, *CampaignJob) (string, error) {
	return "", ErrQueueUnavailable
}

func (InlineQueue) EnqueueSingle(context.Context, *SingleJob) (string, error) {
	return "", ErrQueueUnavailable
}

func (InlineQueue) Pause(context.Context) error  { return ErrQueueUnavailable }
func (InlineQueue) Resume(context.Context) error { return ErrQueueUnavailable }

func (InlineQueue) Clear(context.Context) (int64, error) { return 0, ErrQueueUnavailable }

func (InlineQueue) RetryFailed(context.Context) (int, error) { return 0, ErrQueueUnavailable }

func (InlineQueue) Status(context.Context) (*Status, error) {
	return nil, ErrQueueUnavailable
}
