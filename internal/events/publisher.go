package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-galeri/internal/resilience"
	"github.com/noah-isme/backend-galeri/internal/settlement"
)

// Enqueuer is the subset of *asynq.Client used by Publisher.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher turns committed settlements into background tasks. The task id is
// the external id, so a second notification for one event is a no-op.
type Publisher struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
	Enabled  bool
	Logger   *zerolog.Logger
	// Breaker skips enqueue attempts while Redis is failing.
	Breaker *resilience.Breaker
}

// NewSettledTask encodes a settlement notification.
func NewSettledTask(s settlement.Settled) (*asynq.Task, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("events: encode settled payload: %w", err)
	}
	return asynq.NewTask(TypePurchaseSettled, payload), nil
}

// NotifySettled implements settlement.Notifier.
func (p *Publisher) NotifySettled(ctx context.Context, s settlement.Settled) error {
	if p == nil || !p.Enabled || p.Client == nil {
		return nil
	}
	if strings.TrimSpace(s.ExternalID) == "" {
		return errors.New("events: external id is required")
	}
	task, err := NewSettledTask(s)
	if err != nil {
		return err
	}
	queue := p.Queue
	if queue == "" {
		queue = QueueDefault
	}
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.TaskID(TypePurchaseSettled + ":" + s.ExternalID),
	}
	if p.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(p.MaxRetry))
	}
	var info *asynq.TaskInfo
	err = p.Breaker.Do(ctx, func(ctx context.Context) error {
		var enqueueErr error
		info, enqueueErr = p.Client.EnqueueContext(ctx, task, opts...)
		if errors.Is(enqueueErr, asynq.ErrTaskIDConflict) {
			return nil
		}
		return enqueueErr
	})
	if err != nil {
		return fmt.Errorf("events: enqueue %s: %w", TypePurchaseSettled, err)
	}
	if p.Logger != nil && info != nil {
		p.Logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("settlement notification enqueued")
	}
	return nil
}
