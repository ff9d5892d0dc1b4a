package consumers

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growvia-service/internal/models"
	"growvia-service/internal/services"
	"growvia-service/pkg/common"
)

type fakeDisburser struct {
	calls []string
	err   error
}

func (f *fakeDisburser) Disburse(_ context.Context, id string) (*models.PayoutRequest, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PayoutRequest{ID: id, Status: models.PayoutPaid, ProviderReference: "TRF_1"}, nil
}

func TestProcessDisbursement(t *testing.T) {
	d := &fakeDisburser{}
	p := NewPaymentProcessor(d, NewLogMailer(nil))

	require.NoError(t, p.ProcessDisbursement(context.Background(), DisbursementJobDTO{PayoutID: "p-1"}))
	assert.Equal(t, []string{"p-1"}, d.calls)
}

func TestProcessDisbursementClassifiesErrors(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"transport", errors.New("connection reset"), false},
		{"missing payout", common.NewNotFoundError("payout request"), true},
		{"bad state", common.NewStateError("cannot process a payout that is paid"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPaymentProcessor(&fakeDisburser{err: tc.err}, nil)
			err := p.ProcessDisbursement(context.Background(), DisbursementJobDTO{PayoutID: "p-1"})
			require.Error(t, err)
			var perm *PermanentError
			assert.Equal(t, tc.permanent, errors.As(err, &perm))
			assert.ErrorIs(t, err, tc.err)
		})
	}

	err := NewPaymentProcessor(&fakeDisburser{}, nil).ProcessDisbursement(context.Background(), DisbursementJobDTO{})
	var perm *PermanentError
	assert.ErrorAs(t, err, &perm)
}

func TestLogMailerHidesCodes(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewPaymentProcessor(nil, NewLogMailer(logger))

	err := p.ProcessNotification(context.Background(), NotificationJobDTO{Notification: services.Notification{
		UserID:   "user-1",
		Template: services.TemplatePayoutOTP,
		Data:     map[string]string{"code": "123456", "bank_name": "GTBank"},
	}})
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "user-1", entry.Data["user_id"])
	assert.Equal(t, "GTBank", entry.Data["data.bank_name"])
	assert.NotContains(t, entry.Data, "data.code")
}

func TestProcessNotificationRejectsIncomplete(t *testing.T) {
	p := NewPaymentProcessor(nil, NewLogMailer(nil))
	err := p.ProcessNotification(context.Background(), NotificationJobDTO{})
	var perm *PermanentError
	assert.ErrorAs(t, err, &perm)
}
