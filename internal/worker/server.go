package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"growvia-service/internal/consumers"
)

type Worker struct {
	Processor *consumers.PaymentProcessor
}

func NewWorker(processor *consumers.PaymentProcessor) *Worker {
	return &Worker{
		Processor: processor,
	}
}

func (w *Worker) HandlePayoutDisburse(ctx context.Context, t *asynq.Task) error {
	var p consumers.DisbursementJobDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return skipPermanent(w.Processor.ProcessDisbursement(ctx, p))
}

func (w *Worker) HandleNotification(ctx context.Context, t *asynq.Task) error {
	var p consumers.NotificationJobDTO
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	return skipPermanent(w.Processor.ProcessNotification(ctx, p))
}

func skipPermanent(err error) error {
	var perm *consumers.PermanentError
	if errors.As(err, &perm) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

func NewServeMux(w *Worker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypePayoutDisburse, w.HandlePayoutDisburse)
	mux.HandleFunc(TypeNotification, w.HandleNotification)
	return mux
}

// RedisOpt accepts either a redis:// URI or a bare host:port.
func RedisOpt(addr, password string, db int) (asynq.RedisConnOpt, error) {
	if strings.Contains(addr, "://") {
		opt, err := asynq.ParseRedisURI(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis uri: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: addr, Password: password, DB: db}, nil
}

func NewServer(redisOpt asynq.RedisConnOpt, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
			Logger:   logrus.StandardLogger(),
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logrus.WithError(err).WithField("task", task.Type()).Warn("task failed")
			}),
		},
	)
}

// StartWorker blocks until the server receives a termination signal.
func StartWorker(redisOpt asynq.RedisConnOpt, concurrency int, processor *consumers.PaymentProcessor) error {
	srv := NewServer(redisOpt, concurrency)
	if err := srv.Run(NewServeMux(NewWorker(processor))); err != nil {
		return fmt.Errorf("could not run worker: %w", err)
	}
	return nil
}
