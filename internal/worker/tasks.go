package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"growvia-service/internal/consumers"
	"growvia-service/internal/services"
)

// Task Types
const (
	TypePayoutDisburse = "payout:disburse"
	TypeNotification   = "notification:send"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Task Creators

// NewPayoutDisburseTask uses the payout id as the task id, so a payout is
// queued at most once at a time.
func NewPayoutDisburseTask(payload consumers.DisbursementJobDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePayoutDisburse, data,
		asynq.TaskID(payload.PayoutID),
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(10),
		asynq.Timeout(2*time.Minute),
	), nil
}

func NewNotificationTask(payload consumers.NotificationJobDTO) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotification, data, asynq.Queue(QueueLow), asynq.MaxRetry(3)), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPayoutQueue implements services.PayoutQueue.
type AsynqPayoutQueue struct {
	client enqueuer
}

func NewAsynqPayoutQueue(client enqueuer) *AsynqPayoutQueue {
	return &AsynqPayoutQueue{client: client}
}

func (q *AsynqPayoutQueue) EnqueueDisbursement(ctx context.Context, payoutID string) error {
	task, err := NewPayoutDisburseTask(consumers.DisbursementJobDTO{PayoutID: payoutID})
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// Already queued or retrying.
		return nil
	}
	return err
}

// AsynqNotifier implements services.Notifier by handing delivery to the worker.
type AsynqNotifier struct {
	client enqueuer
}

func NewAsynqNotifier(client enqueuer) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

func (n *AsynqNotifier) Notify(ctx context.Context, note services.Notification) error {
	task, err := NewNotificationTask(consumers.NotificationJobDTO{Notification: note})
	if err != nil {
		return err
	}
	_, err = n.client.EnqueueContext(ctx, task)
	return err
}
