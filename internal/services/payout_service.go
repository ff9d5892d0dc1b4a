package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"growvia-service/internal/audit"
	"growvia-service/internal/database"
	"growvia-service/internal/metrics"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

// PayoutService drives payout requests through
// pending -> processing -> paid | failed, and paid -> reversed.
type PayoutService struct {
	DB       *gorm.DB
	Helper   *HelperService
	Access   *Authorizer
	Wallet   *WalletService
	KYC      *KYCService
	Gateway  BankGateway
	Queue    PayoutQueue
	Settings Settings
}

func NewPayoutService(db *gorm.DB, helper *HelperService, access *Authorizer, wallet *WalletService, kyc *KYCService, gateway BankGateway, queue PayoutQueue, settings Settings) *PayoutService {
	return &PayoutService{
		DB:       db,
		Helper:   helper,
		Access:   access,
		Wallet:   wallet,
		KYC:      kyc,
		Gateway:  gateway,
		Queue:    queue,
		Settings: settings,
	}
}

type RequestWithdrawalDTO struct {
	UserID         string          `json:"user_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	PayoutMethodID string          `json:"payout_method_id" validate:"required"`
	TransactionID  string          `json:"transaction_id" validate:"max=64"`
}

// RequestWithdrawal reserves wallet funds for a bank withdrawal and queues
// the disbursement.
func (s *PayoutService) RequestWithdrawal(ctx context.Context, actor Actor, data RequestWithdrawalDTO) (*models.PayoutRequest, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", data.Amount); err != nil {
		return nil, err
	}
	amount := data.Amount.Round(2)
	if amount.LessThan(s.Settings.MinimumWithdrawal) {
		return nil, &common.ValidationError{
			Field:   "amount",
			Message: fmt.Sprintf("minimum withdrawal amount is %s", s.Settings.MinimumWithdrawal.StringFixed(2)),
		}
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: data.UserID}, ActionRequestWithdrawal); err != nil {
		return nil, err
	}
	if err := s.KYC.CanWithdraw(ctx, data.UserID, amount); err != nil {
		return nil, err
	}
	if data.TransactionID == "" {
		data.TransactionID = common.GenerateReference("PYT")
	}

	fee := s.Settings.WithdrawalFee(amount)
	payout, err := s.Wallet.WithdrawToBank(ctx, actor, WithdrawToBankDTO{
		UserID:         data.UserID,
		Amount:         amount,
		Fee:            fee,
		PayoutMethodID: data.PayoutMethodID,
		TransactionID:  data.TransactionID,
		Metadata:       models.PayoutMetadata{RequestedBy: actor.UserID},
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(string(models.PayoutPending))

	s.enqueue(ctx, payout.ID)
	s.Helper.Notify(ctx, Notification{
		UserID:   payout.UserID,
		Template: TemplateWithdrawalPending,
		Data: map[string]string{
			"amount":         payout.Amount.StringFixed(2),
			"fee":            payout.Fees.StringFixed(2),
			"net_amount":     payout.NetAmount.StringFixed(2),
			"transaction_id": payout.TransactionID,
		},
	})
	s.audit(ctx, actor, payout, "", models.PayoutPending, nil)
	return payout, nil
}

type ManualPayoutDTO struct {
	UserID             string            `json:"user_id" validate:"required"`
	PayoutMethodID     string            `json:"payout_method_id" validate:"required"`
	Type               models.PayoutType `json:"type" validate:"required,oneof=manual_payout bonus_payout"`
	CommissionEntryIDs []string          `json:"commission_entry_ids" validate:"omitempty,dive,required"`
	Amount             decimal.Decimal   `json:"amount"`
	Note               string            `json:"note" validate:"max=255"`
}

// CreateManualPayout pays approved commissions (or a bonus) straight to a
// verified bank account without passing through the wallet. The user's KYC
// tier must allow a withdrawal of the same amount.
func (s *PayoutService) CreateManualPayout(ctx context.Context, actor Actor, data ManualPayoutDTO) (*models.PayoutRequest, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	if data.Type == models.PayoutManual && len(data.CommissionEntryIDs) == 0 {
		return nil, &common.ValidationError{Field: "commission_entry_ids", Message: "commission_entry_ids is required for a manual payout"}
	}
	if data.Type == models.PayoutBonus && len(data.CommissionEntryIDs) == 0 {
		if err := requirePositive("amount", data.Amount); err != nil {
			return nil, err
		}
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: data.UserID}, ActionProcessPayout); err != nil {
		return nil, err
	}

	payout := models.PayoutRequest{
		ID:             uuid.NewString(),
		UserID:         data.UserID,
		Fees:           decimal.Zero,
		PayoutMethodID: data.PayoutMethodID,
		TransactionID:  common.GenerateReference("MPO"),
		Status:         models.PayoutPending,
		Type:           data.Type,
		Metadata: models.PayoutMetadata{
			CommissionEntryIDs: data.CommissionEntryIDs,
			RequestedBy:        actor.UserID,
			Note:               data.Note,
		},
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireVerifiedMethod(tx, data.UserID, data.PayoutMethodID); err != nil {
			return err
		}
		amount := data.Amount.Round(2)
		if len(data.CommissionEntryIDs) > 0 {
			entries, err := approvedForPayout(tx, data.UserID, data.CommissionEntryIDs)
			if err != nil {
				return err
			}
			amount = decimal.Zero
			for _, e := range entries {
				amount = amount.Add(e.Amount)
			}
		}
		if err := s.KYC.CheckWithdrawal(tx, data.UserID, amount); err != nil {
			return err
		}
		payout.Amount = amount
		payout.NetAmount = amount
		if err := tx.Create(&payout).Error; err != nil {
			return fmt.Errorf("create payout request: %w", err)
		}
		return reserveEntries(tx, data.CommissionEntryIDs, payout.ID)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(string(models.PayoutPending))

	s.enqueue(ctx, payout.ID)
	s.audit(ctx, actor, &payout, "", models.PayoutPending, map[string]interface{}{"type": payout.Type})
	return &payout, nil
}

// transition moves a locked payout from one status to another. A payout that
// is no longer in from is a StateError, so concurrent callers cannot both win.
func (s *PayoutService) transition(tx *gorm.DB, id string, from, to models.PayoutStatus, fields map[string]interface{}) (*models.PayoutRequest, error) {
	var payout models.PayoutRequest
	if err := database.ForUpdate(tx).Where("id = ?", id).First(&payout).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, common.NewNotFoundError("payout request")
		}
		return nil, err
	}
	if payout.Status != from {
		return nil, common.NewStateError("payout is %s, expected %s", payout.Status, from)
	}

	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["status"] = to
	res := tx.Model(&models.PayoutRequest{}).Where("id = ? AND status = ?", id, from).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("update payout: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.NewStateError("payout is no longer %s", from)
	}

	var updated models.PayoutRequest
	if err := tx.Where("id = ?", id).First(&updated).Error; err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *PayoutService) Process(ctx context.Context, actor Actor, id string) (*models.PayoutRequest, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{}, ActionProcessPayout); err != nil {
		return nil, err
	}
	var payout *models.PayoutRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payout, err = s.transition(tx, id, models.PayoutPending, models.PayoutProcessing, map[string]interface{}{
			"processed_at": s.Helper.Now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(string(models.PayoutProcessing))
	s.audit(ctx, actor, payout, models.PayoutPending, models.PayoutProcessing, nil)
	return payout, nil
}

// Settle marks a processing payout paid. Wallet reservation and commission
// entries are finalized in the same transaction.
func (s *PayoutService) Settle(ctx context.Context, actor Actor, id, providerReference string) (*models.PayoutRequest, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{}, ActionProcessPayout); err != nil {
		return nil, err
	}
	now := s.Helper.Now()
	fields := map[string]interface{}{"paid_at": now}
	if providerReference != "" {
		fields["provider_reference"] = providerReference
	}

	var payout *models.PayoutRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payout, err = s.transition(tx, id, models.PayoutProcessing, models.PayoutPaid, fields)
		if err != nil {
			return err
		}
		if payout.Type == models.PayoutWithdrawal {
			if err := s.Wallet.settleReservation(tx, payout); err != nil {
				return err
			}
		}
		return markEntriesPaid(tx, payout.Metadata.CommissionEntryIDs, payout.ID, now)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(string(models.PayoutPaid))

	s.Helper.Notify(ctx, Notification{
		UserID:   payout.UserID,
		Template: TemplatePayoutPaid,
		Data:     map[string]string{"amount": payout.NetAmount.StringFixed(2), "transaction_id": payout.TransactionID},
	})
	s.audit(ctx, actor, payout, models.PayoutProcessing, models.PayoutPaid, map[string]interface{}{"provider_reference": payout.ProviderReference})
	return payout, nil
}

// Fail marks a processing payout failed and gives reserved funds back.
func (s *PayoutService) Fail(ctx context.Context, actor Actor, id, reason string) (*models.PayoutRequest, error) {
	if reason == "" {
		return nil, &common.ValidationError{Field: "reason", Message: "reason is required"}
	}
	if err := s.Access.Authorize(ctx, actor, Resource{}, ActionProcessPayout); err != nil {
		return nil, err
	}

	var payout *models.PayoutRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payout, err = s.transition(tx, id, models.PayoutProcessing, models.PayoutFailed, map[string]interface{}{
			"failed_at":      s.Helper.Now(),
			"failure_reason": reason,
		})
		if err != nil {
			return err
		}
		if payout.Type == models.PayoutWithdrawal {
			if err := s.Wallet.releaseReservation(tx, payout, reason); err != nil {
				return err
			}
		}
		return releaseEntries(tx, payout.ID)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(string(models.PayoutFailed))

	logrus.WithFields(logrus.Fields{
		"payout_id": payout.ID,
		"user_id":   payout.UserID,
		"reason":    reason,
	}).Warn("payout failed")
	s.Helper.Notify(ctx, Notification{
		UserID:   payout.UserID,
		Template: TemplatePayoutFailed,
		Data:     map[string]string{"amount": payout.Amount.StringFixed(2), "reason": reason},
	})
	s.audit(ctx, actor, payout, models.PayoutProcessing, models.PayoutFailed, map[string]interface{}{"reason": reason})
	return payout, nil
}

// Reverse undoes a paid payout after the bank returned the money.
func (s *PayoutService) Reverse(ctx context.Context, actor Actor, id, reason string) (*models.PayoutRequest, error) {
	if reason == "" {
		return nil, &common.ValidationError{Field: "reason", Message: "reason is required"}
	}
	if err := s.Access.Authorize(ctx, actor, Resource{}, ActionReversePayout); err != nil {
		return nil, err
	}

	var payout *models.PayoutRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		payout, err = s.transition(tx, id, models.PayoutPaid, models.PayoutReversed, map[string]interface{}{
			"reversed_at":    s.Helper.Now(),
			"failure_reason": reason,
		})
		if err != nil {
			return err
		}
		if payout.Type == models.PayoutWithdrawal {
			if err := s.Wallet.refundSettled(tx, payout, reason); err != nil {
				return err
			}
		}
		return revertEntriesPaid(tx, payout.ID)
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordPayoutTransition(string(models.PayoutReversed))

	s.Helper.Notify(ctx, Notification{
		UserID:   payout.UserID,
		Template: TemplatePayoutReversed,
		Data:     map[string]string{"amount": payout.Amount.StringFixed(2), "reason": reason},
	})
	s.audit(ctx, actor, payout, models.PayoutPaid, models.PayoutReversed, map[string]interface{}{"reason": reason})
	return payout, nil
}

// Disburse sends a payout to the bank. A payout already in processing may
// have reached the provider on an earlier attempt, so the provider is asked
// first and the transfer is only sent again when it holds nothing under the
// reference. Transport errors are returned so the job is retried.
func (s *PayoutService) Disburse(ctx context.Context, id string) (*models.PayoutRequest, error) {
	system := SystemActor()
	payout, err := s.load(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}

	attempted := false
	switch payout.Status {
	case models.PayoutPending:
		if payout, err = s.Process(ctx, system, id); err != nil {
			return nil, err
		}
	case models.PayoutProcessing:
		attempted = true
		result, err := s.Gateway.VerifyTransfer(ctx, payout.TransactionID)
		if err == nil {
			return s.applyDisbursement(ctx, payout, result)
		}
		if !errors.Is(err, ErrTransferNotFound) {
			return nil, fmt.Errorf("verify payout %s: %w", id, err)
		}
	default:
		return payout, nil
	}

	var method models.PayoutMethod
	if err := s.DB.WithContext(ctx).Where("id = ?", payout.PayoutMethodID).First(&method).Error; err != nil {
		if database.IsNotFound(err) {
			return s.Fail(ctx, system, id, "payout method no longer exists")
		}
		return nil, err
	}

	result, err := s.Gateway.Disburse(ctx, DisbursementRequest{
		Reference:     payout.TransactionID,
		Amount:        payout.NetAmount,
		AccountNumber: method.AccountNumber,
		AccountName:   method.AccountName,
		BankCode:      method.BankCode,
		RecipientCode: method.RecipientCode,
		Reason:        "Growvia payout " + payout.TransactionID,
	})
	if err != nil {
		logrus.WithError(err).WithField("payout_id", id).Error("disbursement call failed")
		return nil, fmt.Errorf("disburse payout %s: %w", id, err)
	}

	if result.RecipientCode != "" && result.RecipientCode != method.RecipientCode {
		if err := s.DB.WithContext(ctx).Model(&models.PayoutMethod{}).
			Where("id = ?", method.ID).
			Update("recipient_code", result.RecipientCode).Error; err != nil {
			logrus.WithError(err).WithField("payout_id", id).Warn("could not store recipient code")
		}
	}

	if attempted && result.Status == DisbursementFailed {
		// A rejected resend says nothing about the first attempt.
		return s.confirmRejection(ctx, payout, result)
	}
	return s.applyDisbursement(ctx, payout, result)
}

// confirmRejection fails a resent payout only when the provider confirms it
// holds no live transfer under the reference.
func (s *PayoutService) confirmRejection(ctx context.Context, payout *models.PayoutRequest, rejected DisbursementResult) (*models.PayoutRequest, error) {
	logger := logrus.WithFields(logrus.Fields{"payout_id": payout.ID, "rejection": rejected.Message})
	verified, err := s.Gateway.VerifyTransfer(ctx, payout.TransactionID)
	switch {
	case errors.Is(err, ErrTransferNotFound):
		return s.applyDisbursement(ctx, payout, rejected)
	case err != nil:
		logger.WithError(err).Warn("resent transfer rejected and status unknown; payout stays processing")
		return payout, nil
	default:
		return s.applyDisbursement(ctx, payout, verified)
	}
}

func (s *PayoutService) applyDisbursement(ctx context.Context, payout *models.PayoutRequest, result DisbursementResult) (*models.PayoutRequest, error) {
	system := SystemActor()
	switch result.Status {
	case DisbursementSuccess:
		return s.Settle(ctx, system, payout.ID, result.ProviderReference)
	case DisbursementFailed:
		reason := result.Message
		if reason == "" {
			reason = "disbursement failed"
		}
		return s.Fail(ctx, system, payout.ID, reason)
	}

	if result.ProviderReference != "" && result.ProviderReference != payout.ProviderReference {
		if err := s.DB.WithContext(ctx).Model(&models.PayoutRequest{}).
			Where("id = ? AND status = ?", payout.ID, models.PayoutProcessing).
			Update("provider_reference", result.ProviderReference).Error; err != nil {
			return nil, err
		}
		payout.ProviderReference = result.ProviderReference
	}
	logrus.WithFields(logrus.Fields{
		"payout_id":          payout.ID,
		"provider_reference": payout.ProviderReference,
	}).Info("disbursement pending at provider")
	return payout, nil
}

const (
	TransferEventSuccess  = "transfer.success"
	TransferEventFailed   = "transfer.failed"
	TransferEventReversed = "transfer.reversed"
)

type TransferEventDTO struct {
	Event             string `json:"event" validate:"required,oneof=transfer.success transfer.failed transfer.reversed"`
	Reference         string `json:"reference" validate:"required"`
	ProviderReference string `json:"provider_reference"`
	Reason            string `json:"reason"`
}

// HandleTransferEvent applies a provider outcome. Replays against a payout
// that already reached the outcome are no-ops.
func (s *PayoutService) HandleTransferEvent(ctx context.Context, data TransferEventDTO) (*models.PayoutRequest, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	var payout models.PayoutRequest
	if err := s.DB.WithContext(ctx).Where("transaction_id = ?", data.Reference).First(&payout).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, common.NewNotFoundError("payout request")
		}
		return nil, err
	}

	system := SystemActor()
	reason := data.Reason
	logger := logrus.WithFields(logrus.Fields{
		"payout_id": payout.ID,
		"event":     data.Event,
		"status":    payout.Status,
	})

	switch data.Event {
	case TransferEventSuccess:
		switch payout.Status {
		case models.PayoutPending:
			if _, err := s.Process(ctx, system, payout.ID); err != nil {
				return nil, err
			}
			return s.Settle(ctx, system, payout.ID, data.ProviderReference)
		case models.PayoutProcessing:
			return s.Settle(ctx, system, payout.ID, data.ProviderReference)
		}
	case TransferEventFailed:
		if reason == "" {
			reason = "transfer failed at provider"
		}
		if payout.Status == models.PayoutProcessing {
			return s.Fail(ctx, system, payout.ID, reason)
		}
	case TransferEventReversed:
		if reason == "" {
			reason = "transfer reversed by provider"
		}
		switch payout.Status {
		case models.PayoutProcessing:
			return s.Fail(ctx, system, payout.ID, reason)
		case models.PayoutPaid:
			return s.Reverse(ctx, system, payout.ID, reason)
		}
	}
	logger.Info("transfer event ignored")
	return &payout, nil
}

func (s *PayoutService) load(db *gorm.DB, id string) (*models.PayoutRequest, error) {
	var payout models.PayoutRequest
	if err := db.Where("id = ?", id).First(&payout).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, common.NewNotFoundError("payout request")
		}
		return nil, err
	}
	return &payout, nil
}

func (s *PayoutService) Get(ctx context.Context, actor Actor, id string) (*models.PayoutRequest, error) {
	payout, err := s.load(s.DB.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: payout.UserID}, ActionViewWallet); err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *PayoutService) ListForUser(ctx context.Context, actor Actor, userID string, status models.PayoutStatus, page, limit int) (common.PaginationResult, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: userID}, ActionViewWallet); err != nil {
		return common.PaginationResult{}, err
	}
	page, limit, offset := common.NormalizePage(page, limit)

	query := s.DB.WithContext(ctx).Model(&models.PayoutRequest{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}
	var payouts []models.PayoutRequest
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&payouts).Error; err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(payouts, total, page, limit, ""), nil
}

// PendingIDs lists pending payouts created before olderThan, oldest first.
func (s *PayoutService) PendingIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	var ids []string
	query := s.DB.WithContext(ctx).Model(&models.PayoutRequest{}).
		Where("status = ? AND created_at < ?", models.PayoutPending, olderThan).
		Order("created_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("id", &ids).Error
	return ids, err
}

// ProcessingIDs lists payouts that entered processing before olderThan and
// have not reached an outcome, oldest first.
func (s *PayoutService) ProcessingIDs(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	var ids []string
	query := s.DB.WithContext(ctx).Model(&models.PayoutRequest{}).
		Where("status = ? AND processed_at < ?", models.PayoutProcessing, olderThan).
		Order("processed_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("id", &ids).Error
	return ids, err
}

func (s *PayoutService) enqueue(ctx context.Context, payoutID string) {
	if s.Queue == nil {
		return
	}
	if err := s.Queue.EnqueueDisbursement(ctx, payoutID); err != nil {
		// The pending sweep picks it up later.
		logrus.WithError(err).WithField("payout_id", payoutID).Warn("enqueue disbursement failed")
	}
}

func (s *PayoutService) audit(ctx context.Context, actor Actor, payout *models.PayoutRequest, from, to models.PayoutStatus, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["amount"] = payout.Amount.StringFixed(2)
	details["transaction_id"] = payout.TransactionID
	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     "payout." + string(to),
		ActorID:    actor.UserID,
		Resource:   "payout_request",
		ResourceID: payout.ID,
		From:       string(from),
		To:         string(to),
		Details:    details,
	})
}
