package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

func requestWithdrawal(t *testing.T, env *testEnv, userID, methodID, naira string) *models.PayoutRequest {
	t.Helper()
	payout, err := env.payouts.RequestWithdrawal(ctx, userActor(userID), RequestWithdrawalDTO{
		UserID:         userID,
		Amount:         amount(naira),
		PayoutMethodID: methodID,
	})
	require.NoError(t, err)
	return payout
}

func TestRequestWithdrawalBelowMinimumWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "20000")

	_, err := env.payouts.RequestWithdrawal(ctx, userActor("u-1"), RequestWithdrawalDTO{
		UserID: "u-1", Amount: amount("4000"), PayoutMethodID: method.ID,
	})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)

	assert.Zero(t, env.count(&models.PayoutRequest{}, ""))
	assert.Zero(t, env.count(&models.GrowviaWalletTransaction{}, "type = ?", models.TxWithdrawal))
	assertAmount(t, "20000", env.walletOf("u-1").Balance)
	assert.Empty(t, env.queue.ids)
}

func TestRequestWithdrawalNeedsBVN(t *testing.T) {
	env := newTestEnv(t)
	env.fund("u-1", "20000")
	method := env.verifiedMethod("u-1")

	_, err := env.payouts.RequestWithdrawal(ctx, userActor("u-1"), RequestWithdrawalDTO{
		UserID: "u-1", Amount: amount("6000"), PayoutMethodID: method.ID,
	})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "not enabled")
	assert.Zero(t, env.count(&models.PayoutRequest{}, ""))
}

func TestRequestWithdrawalAboveTierMaximum(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "250000")

	_, err := env.payouts.RequestWithdrawal(ctx, userActor("u-1"), RequestWithdrawalDTO{
		UserID: "u-1", Amount: amount("200001"), PayoutMethodID: method.ID,
	})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestRequestWithdrawalQueuesDisbursement(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "20000")

	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")
	assert.Equal(t, models.PayoutWithdrawal, payout.Type)
	assertAmount(t, "150", payout.Fees)
	assertAmount(t, "9850", payout.NetAmount)
	assert.NotEmpty(t, payout.TransactionID)
	assert.Equal(t, []string{payout.ID}, env.queue.ids)

	note, ok := env.notifier.last(TemplateWithdrawalPending)
	require.True(t, ok)
	assert.Equal(t, "9850.00", note.Data["net_amount"])
}

func TestWithdrawalFeeIsCapped(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "150000")

	payout := requestWithdrawal(t, env, "u-1", method.ID, "100000")
	assertAmount(t, "1000", payout.Fees)
}

func TestEnqueueFailureKeepsPayoutPending(t *testing.T) {
	env := newTestEnv(t)
	env.queue.err = errors.New("redis unavailable")
	method := env.withdrawer("u-1", "20000")

	payout := requestWithdrawal(t, env, "u-1", method.ID, "6000")
	assert.Equal(t, models.PayoutPending, payout.Status)

	ids, err := env.payouts.PendingIDs(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{payout.ID}, ids)
}

func TestDisburseSuccessSettlesWithdrawal(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")

	paid, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
	assert.Equal(t, "TRF_ok", paid.ProviderReference)
	assert.NotNil(t, paid.ProcessedAt)
	assert.NotNil(t, paid.PaidAt)

	require.Len(t, env.gateway.requests, 1)
	assert.Equal(t, payout.TransactionID, env.gateway.requests[0].Reference)
	assertAmount(t, "9850", env.gateway.requests[0].Amount)

	w := env.walletOf("u-1")
	assertAmount(t, "10000", w.Balance)
	assertAmount(t, "0", w.PendingBalance)
	assertAmount(t, "10000", w.TotalWithdrawn)

	var row models.GrowviaWalletTransaction
	require.NoError(t, env.db.Where("id = ?", *paid.WalletTransactionID).First(&row).Error)
	assert.Equal(t, models.TxCompleted, row.Status)

	var stored models.PayoutMethod
	require.NoError(t, env.db.Where("id = ?", method.ID).First(&stored).Error)
	assert.Equal(t, "RCP_1", stored.RecipientCode)

	_, ok := env.notifier.last(TemplatePayoutPaid)
	assert.True(t, ok)
	assert.Contains(t, env.sink.actions(), "payout.paid")
	env.reconciled("u-1")

	// A duplicate job delivery is a no-op.
	again, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, again.Status)
	assert.Len(t, env.gateway.requests, 1)
}

func TestDisburseFailureRefundsWallet(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.result = DisbursementResult{Status: DisbursementFailed, Message: "account dormant"}
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")

	failed, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, failed.Status)
	assert.Equal(t, "account dormant", failed.FailureReason)

	w := env.walletOf("u-1")
	assertAmount(t, "20000", w.Balance)
	assertAmount(t, "0", w.PendingBalance)
	assertAmount(t, "0", w.TotalWithdrawn)

	var refund models.GrowviaWalletTransaction
	require.NoError(t, env.db.Where("type = ?", models.TxRefund).First(&refund).Error)
	assertAmount(t, "10000", refund.Amount)
	assert.Equal(t, payout.ID, refund.Metadata.Refund.PayoutRequestID)

	var row models.GrowviaWalletTransaction
	require.NoError(t, env.db.Where("id = ?", *payout.WalletTransactionID).First(&row).Error)
	assert.Equal(t, models.TxFailed, row.Status)

	_, ok := env.notifier.last(TemplatePayoutFailed)
	assert.True(t, ok)
	env.reconciled("u-1")
}

func TestLongestTransactionIDFitsWalletReferences(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.result = DisbursementResult{Status: DisbursementFailed, Message: "Invalid account"}
	method := env.withdrawer("u-1", "20000")
	txID := strings.Repeat("7", 64)

	payout, err := env.payouts.RequestWithdrawal(ctx, userActor("u-1"), RequestWithdrawalDTO{
		UserID: "u-1", Amount: amount("10000"), PayoutMethodID: method.ID, TransactionID: txID,
	})
	require.NoError(t, err)
	assert.Equal(t, txID, payout.TransactionID)
	failed, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	require.Equal(t, models.PayoutFailed, failed.Status)

	stmt := &gorm.Statement{DB: env.db}
	require.NoError(t, stmt.Parse(&models.GrowviaWalletTransaction{}))
	size := stmt.Schema.LookUpField("reference").Size

	var refs []string
	require.NoError(t, env.db.Model(&models.GrowviaWalletTransaction{}).
		Where("reference IN ?", []string{"WDR-" + txID, "RFD-" + txID}).
		Pluck("reference", &refs).Error)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.LessOrEqual(t, len(ref), size, ref)
	}
	assert.LessOrEqual(t, len("RVS-"+txID), size)
}

func TestDisburseTransportErrorLeavesProcessing(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = errors.New("connection reset")
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")

	_, err := env.payouts.Disburse(ctx, payout.ID)
	require.Error(t, err)

	stored, err := env.payouts.Get(ctx, admin, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, stored.Status)
	assertAmount(t, "10000", env.walletOf("u-1").PendingBalance)

	// The retry reaches the gateway again with the same reference.
	env.gateway.err = nil
	paid, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
	require.Len(t, env.gateway.requests, 2)
	assert.Equal(t, env.gateway.requests[0].Reference, env.gateway.requests[1].Reference)
}

func TestRetryAfterTimeoutFindsAcceptedTransfer(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.acceptThenErr = true
	env.gateway.err = errors.New("context deadline exceeded")
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")

	_, err := env.payouts.Disburse(ctx, payout.ID)
	require.Error(t, err)

	// A resend would be refused as a duplicate reference.
	env.gateway.acceptThenErr = false
	env.gateway.err = nil
	env.gateway.result = DisbursementResult{Status: DisbursementFailed, Message: "Transfer reference already exists"}

	retried, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, retried.Status)
	assert.Equal(t, "TRF_accepted", retried.ProviderReference)
	assert.Len(t, env.gateway.requests, 1)
	assertAmount(t, "10000", env.walletOf("u-1").Balance)
	assertAmount(t, "10000", env.walletOf("u-1").PendingBalance)
	assert.Equal(t, int64(0), env.count(&models.GrowviaWalletTransaction{}, "type = ?", models.TxRefund))

	paid, err := env.payouts.HandleTransferEvent(ctx, TransferEventDTO{Event: TransferEventSuccess, Reference: payout.TransactionID, ProviderReference: "TRF_accepted"})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
	env.reconciled("u-1")
}

func TestRejectedResendConfirmedBeforeRefund(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = errors.New("connection reset")
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")
	_, err := env.payouts.Disburse(ctx, payout.ID)
	require.Error(t, err)

	// The first transfer surfaces at the provider only after the resend.
	env.gateway.err = nil
	env.gateway.result = DisbursementResult{Status: DisbursementFailed, Message: "Transfer reference already exists"}
	env.gateway.onDisburse = func(req DisbursementRequest) {
		env.gateway.transfers[req.Reference] = DisbursementResult{Status: DisbursementSuccess, ProviderReference: "TRF_first"}
	}

	paid, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
	assert.Equal(t, "TRF_first", paid.ProviderReference)
	assert.Equal(t, 2, env.gateway.verifies)
	assertAmount(t, "10000", env.walletOf("u-1").TotalWithdrawn)
	assert.Equal(t, int64(0), env.count(&models.GrowviaWalletTransaction{}, "type = ?", models.TxRefund))
	env.reconciled("u-1")
}

func TestRejectedResendWithUnknownStatusStaysProcessing(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = errors.New("connection reset")
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")
	_, err := env.payouts.Disburse(ctx, payout.ID)
	require.Error(t, err)

	env.gateway.err = nil
	env.gateway.result = DisbursementResult{Status: DisbursementFailed, Message: "Transfer reference already exists"}
	env.gateway.onDisburse = func(DisbursementRequest) {
		env.gateway.verifyErr = errors.New("provider unavailable")
	}

	stuck, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, stuck.Status)
	assertAmount(t, "10000", env.walletOf("u-1").PendingBalance)
	assert.Equal(t, int64(0), env.count(&models.GrowviaWalletTransaction{}, "type = ?", models.TxRefund))
}

func TestRejectedResendWithNoTransferFails(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.err = errors.New("connection reset")
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")
	_, err := env.payouts.Disburse(ctx, payout.ID)
	require.Error(t, err)

	env.gateway.err = nil
	env.gateway.result = DisbursementResult{Status: DisbursementFailed, Message: "Invalid account"}

	failed, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, failed.Status)
	assert.Equal(t, "Invalid account", failed.FailureReason)
	assertAmount(t, "20000", env.walletOf("u-1").Balance)
	env.reconciled("u-1")
}

func TestPendingDisbursementCompletedByWebhook(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.result = DisbursementResult{Status: DisbursementPending, ProviderReference: "TRF_wait"}
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")

	pending, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, pending.Status)
	assert.Equal(t, "TRF_wait", pending.ProviderReference)

	// A redelivered job does not send the money twice.
	_, err = env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Len(t, env.gateway.requests, 1)

	event := TransferEventDTO{Event: TransferEventSuccess, Reference: payout.TransactionID, ProviderReference: "TRF_wait"}
	paid, err := env.payouts.HandleTransferEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)

	replay, err := env.payouts.HandleTransferEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, replay.Status)
	assertAmount(t, "10000", env.walletOf("u-1").TotalWithdrawn)
	env.reconciled("u-1")
}

func TestTransferFailedEventRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.result = DisbursementResult{Status: DisbursementPending, ProviderReference: "TRF_wait"}
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")
	_, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)

	failed, err := env.payouts.HandleTransferEvent(ctx, TransferEventDTO{Event: TransferEventFailed, Reference: payout.TransactionID})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, failed.Status)
	assert.Equal(t, "transfer failed at provider", failed.FailureReason)
	assertAmount(t, "20000", env.walletOf("u-1").Balance)

	_, err = env.payouts.HandleTransferEvent(ctx, TransferEventDTO{Event: TransferEventFailed, Reference: payout.TransactionID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.count(&models.GrowviaWalletTransaction{}, "type = ?", models.TxRefund))

	_, err = env.payouts.HandleTransferEvent(ctx, TransferEventDTO{Event: TransferEventSuccess, Reference: "unknown"})
	var nerr *common.NotFoundError
	assert.ErrorAs(t, err, &nerr)
}

func TestReversePaidWithdrawal(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")
	_, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)

	_, err = env.payouts.Reverse(ctx, userActor("u-1"), payout.ID, "bank returned funds")
	var ferr *common.ForbiddenError
	require.ErrorAs(t, err, &ferr)

	_, err = env.payouts.Reverse(ctx, admin, payout.ID, "")
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)

	reversed, err := env.payouts.Reverse(ctx, admin, payout.ID, "bank returned funds")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutReversed, reversed.Status)
	assert.NotNil(t, reversed.ReversedAt)

	w := env.walletOf("u-1")
	assertAmount(t, "20000", w.Balance)
	assertAmount(t, "10000", w.TotalWithdrawn)
	env.reconciled("u-1")

	_, err = env.payouts.Reverse(ctx, admin, payout.ID, "again")
	var serr *common.StateError
	assert.ErrorAs(t, err, &serr)
}

func TestPayoutTransitionsFollowStateMachine(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "20000")
	payout := requestWithdrawal(t, env, "u-1", method.ID, "10000")

	var serr *common.StateError
	_, err := env.payouts.Settle(ctx, admin, payout.ID, "ref")
	require.ErrorAs(t, err, &serr)
	_, err = env.payouts.Fail(ctx, admin, payout.ID, "nope")
	require.ErrorAs(t, err, &serr)

	_, err = env.payouts.Process(ctx, userActor("u-1"), payout.ID)
	var ferr *common.ForbiddenError
	require.ErrorAs(t, err, &ferr)

	processing, err := env.payouts.Process(ctx, admin, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutProcessing, processing.Status)

	_, err = env.payouts.Process(ctx, admin, payout.ID)
	require.ErrorAs(t, err, &serr)

	_, err = env.payouts.Fail(ctx, admin, payout.ID, "")
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)

	failed, err := env.payouts.Fail(ctx, admin, payout.ID, "manual rejection")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutFailed, failed.Status)

	_, err = env.payouts.Reverse(ctx, admin, payout.ID, "late")
	require.ErrorAs(t, err, &serr)
	env.reconciled("u-1")
}

func TestManualPayoutSettlesCommissions(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "u-1")
	env.enableWithdrawals("u-1")
	method := env.verifiedMethod("u-1")
	e1 := env.approvedCommission(c, "u-1", "1200")
	e2 := env.approvedCommission(c, "u-1", "800")

	_, err := env.payouts.CreateManualPayout(ctx, userActor("u-1"), ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutManual, CommissionEntryIDs: []string{e1.ID},
	})
	var ferr *common.ForbiddenError
	require.ErrorAs(t, err, &ferr)

	payout, err := env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID:             "u-1",
		PayoutMethodID:     method.ID,
		Type:               models.PayoutManual,
		CommissionEntryIDs: []string{e1.ID, e2.ID},
		Note:               "march commissions",
	})
	require.NoError(t, err)
	assertAmount(t, "2000", payout.Amount)
	assert.Nil(t, payout.WalletTransactionID)

	// Reserved entries cannot be claimed by a second payout.
	_, err = env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutManual, CommissionEntryIDs: []string{e1.ID},
	})
	var cerr *common.ConflictError
	require.ErrorAs(t, err, &cerr)

	paid, err := env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)

	var entries []models.CommissionLedgerEntry
	require.NoError(t, env.db.Where("id IN ?", []string{e1.ID, e2.ID}).Find(&entries).Error)
	for _, e := range entries {
		assert.Equal(t, models.CommissionPaid, e.Status)
		require.NotNil(t, e.PayoutRequestID)
		assert.Equal(t, payout.ID, *e.PayoutRequestID)
		assert.NotNil(t, e.PaidAt)
	}
	assert.Zero(t, env.count(&models.GrowviaWallet{}, "user_id = ?", "u-1"))

	earnings, err := env.commissions.Earnings(ctx, userActor("u-1"), "u-1", "")
	require.NoError(t, err)
	assertAmount(t, "2000", earnings.PaidOut)
	assertAmount(t, "0", earnings.Available)

	_, err = env.payouts.Reverse(ctx, admin, payout.ID, "chargeback")
	require.NoError(t, err)
	require.NoError(t, env.db.Where("id IN ?", []string{e1.ID, e2.ID}).Find(&entries).Error)
	for _, e := range entries {
		assert.Equal(t, models.CommissionApproved, e.Status)
		assert.Nil(t, e.PayoutRequestID)
	}
}

func TestFailedManualPayoutReleasesCommissions(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.result = DisbursementResult{Status: DisbursementFailed, Message: "invalid account"}
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "u-1")
	env.enableWithdrawals("u-1")
	method := env.verifiedMethod("u-1")
	entry := env.approvedCommission(c, "u-1", "500")

	payout, err := env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutManual, CommissionEntryIDs: []string{entry.ID},
	})
	require.NoError(t, err)
	_, err = env.payouts.Disburse(ctx, payout.ID)
	require.NoError(t, err)

	var stored models.CommissionLedgerEntry
	require.NoError(t, env.db.Where("id = ?", entry.ID).First(&stored).Error)
	assert.Equal(t, models.CommissionApproved, stored.Status)
	assert.Nil(t, stored.PayoutRequestID)

	_, err = env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutManual, CommissionEntryIDs: []string{entry.ID},
	})
	assert.NoError(t, err)
}

func TestManualPayoutRejectsUnapprovedCommission(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "u-1")
	env.enableWithdrawals("u-1")
	method := env.verifiedMethod("u-1")
	entry, err := env.commissions.RecordEntry(ctx, RecordEntryDTO{
		UserID: "u-1", CampaignID: c.ID, ConversionID: "conv-1", Type: models.CommissionLead, Amount: amount("300"),
	})
	require.NoError(t, err)

	_, err = env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutManual, CommissionEntryIDs: []string{entry.ID},
	})
	var serr *common.StateError
	require.ErrorAs(t, err, &serr)
	assert.Zero(t, env.count(&models.PayoutRequest{}, ""))
}

func TestBonusPayoutUsesGivenAmount(t *testing.T) {
	env := newTestEnv(t)
	env.enableWithdrawals("u-1")
	method := env.verifiedMethod("u-1")

	_, err := env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutBonus,
	})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)

	payout, err := env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutBonus, Amount: amount("2500"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutBonus, payout.Type)
	assertAmount(t, "2500", payout.NetAmount)
}

func TestManualPayoutRequiresWithdrawalTier(t *testing.T) {
	env := newTestEnv(t)
	method := env.verifiedMethod("u-1")

	_, err := env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutBonus, Amount: amount("9000000"),
	})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "withdrawals are not enabled")
	assert.Zero(t, env.count(&models.PayoutRequest{}, ""))

	env.enableWithdrawals("u-1")
	_, err = env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutBonus, Amount: amount("9000000"),
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "maximum withdrawal")

	env.paidOutToday("u-1", "499000")
	_, err = env.payouts.CreateManualPayout(ctx, admin, ManualPayoutDTO{
		UserID: "u-1", PayoutMethodID: method.ID, Type: models.PayoutBonus, Amount: amount("2500"),
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "daily withdrawal limit")
	assert.Equal(t, int64(1), env.count(&models.PayoutRequest{}, ""))
}

func TestListForUser(t *testing.T) {
	env := newTestEnv(t)
	method := env.withdrawer("u-1", "30000")
	requestWithdrawal(t, env, "u-1", method.ID, "6000")
	p := requestWithdrawal(t, env, "u-1", method.ID, "7000")
	_, err := env.payouts.Process(ctx, admin, p.ID)
	require.NoError(t, err)

	all, err := env.payouts.ListForUser(ctx, userActor("u-1"), "u-1", "", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Count)

	processing, err := env.payouts.ListForUser(ctx, userActor("u-1"), "u-1", models.PayoutProcessing, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processing.Count)

	_, err = env.payouts.Get(ctx, userActor("u-2"), p.ID)
	var ferr *common.ForbiddenError
	assert.ErrorAs(t, err, &ferr)
}
