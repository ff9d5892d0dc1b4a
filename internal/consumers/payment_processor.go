package consumers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"growvia-service/internal/metrics"
	"growvia-service/internal/models"
	"growvia-service/internal/services"
	"growvia-service/pkg/common"
)

// Disburser is the payout pipeline entry point used by disbursement jobs.
type Disburser interface {
	Disburse(ctx context.Context, payoutID string) (*models.PayoutRequest, error)
}

// Mailer delivers a rendered notification to the user.
type Mailer interface {
	Send(ctx context.Context, n services.Notification) error
}

// LogMailer writes notifications to the log instead of sending them.
type LogMailer struct {
	Logger logrus.FieldLogger
}

func NewLogMailer(logger logrus.FieldLogger) *LogMailer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogMailer{Logger: logger}
}

func (m *LogMailer) Send(_ context.Context, n services.Notification) error {
	fields := logrus.Fields{"user_id": n.UserID, "template": n.Template}
	for k, v := range n.Data {
		if k == "code" {
			continue
		}
		fields["data."+k] = v
	}
	m.Logger.WithFields(fields).Info("notification delivered")
	return nil
}

type PaymentProcessor struct {
	Payouts Disburser
	Mailer  Mailer
}

func NewPaymentProcessor(payouts Disburser, mailer Mailer) *PaymentProcessor {
	return &PaymentProcessor{Payouts: payouts, Mailer: mailer}
}

// --- DTOs ---

type DisbursementJobDTO struct {
	PayoutID string `json:"payout_id"`
}

type NotificationJobDTO struct {
	Notification services.Notification `json:"notification"`
}

// PermanentError marks a job that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// ProcessDisbursement pushes one payout through the bank gateway. Transport
// failures are returned for retry; business rejections are permanent.
func (p *PaymentProcessor) ProcessDisbursement(ctx context.Context, job DisbursementJobDTO) error {
	if job.PayoutID == "" {
		return &PermanentError{Err: errors.New("payout id is required")}
	}

	start := time.Now()
	payout, err := p.Payouts.Disburse(ctx, job.PayoutID)
	metrics.RecordJob("payout_disburse", time.Since(start), err)

	log := logrus.WithField("payout_id", job.PayoutID)
	if err != nil {
		if permanent(err) {
			log.WithError(err).Warn("disbursement dropped")
			return &PermanentError{Err: err}
		}
		log.WithError(err).Error("disbursement failed, will retry")
		return fmt.Errorf("disburse payout %s: %w", job.PayoutID, err)
	}

	log.WithFields(logrus.Fields{
		"status":             payout.Status,
		"provider_reference": payout.ProviderReference,
	}).Info("disbursement processed")
	return nil
}

func (p *PaymentProcessor) ProcessNotification(ctx context.Context, job NotificationJobDTO) error {
	if job.Notification.UserID == "" || job.Notification.Template == "" {
		return &PermanentError{Err: errors.New("notification needs a user and a template")}
	}
	start := time.Now()
	err := p.Mailer.Send(ctx, job.Notification)
	metrics.RecordJob("notification_send", time.Since(start), err)
	return err
}

func permanent(err error) bool {
	var (
		notFound   *common.NotFoundError
		state      *common.StateError
		validation *common.ValidationError
	)
	return errors.As(err, &notFound) || errors.As(err, &state) || errors.As(err, &validation)
}
