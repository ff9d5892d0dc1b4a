package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"growvia-service/internal/audit"
	"growvia-service/internal/database"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

type KYCMilestones struct {
	EmailVerified     bool
	BVNVerified       bool
	DocumentsApproved bool
}

type KYCLimits struct {
	Tier                 models.KYCTier
	DailyPurchaseLimit   decimal.Decimal
	PortfolioMaxBalance  decimal.Decimal
	MaxWithdrawalAmount  decimal.Decimal
	DailyWithdrawalLimit decimal.Decimal
	WithdrawalsEnabled   bool
}

var tierLimits = map[models.KYCTier]KYCLimits{
	models.TierSprout: {
		Tier:                 models.TierSprout,
		DailyPurchaseLimit:   decimal.NewFromInt(50_000),
		PortfolioMaxBalance:  decimal.NewFromInt(300_000),
		MaxWithdrawalAmount:  decimal.Zero,
		DailyWithdrawalLimit: decimal.Zero,
	},
	models.TierBloom: {
		Tier:                 models.TierBloom,
		DailyPurchaseLimit:   decimal.NewFromInt(200_000),
		PortfolioMaxBalance:  decimal.NewFromInt(2_000_000),
		MaxWithdrawalAmount:  decimal.NewFromInt(200_000),
		DailyWithdrawalLimit: decimal.NewFromInt(500_000),
	},
	models.TierThrive: {
		Tier:                 models.TierThrive,
		DailyPurchaseLimit:   decimal.NewFromInt(5_000_000),
		PortfolioMaxBalance:  decimal.NewFromInt(50_000_000),
		MaxWithdrawalAmount:  decimal.NewFromInt(5_000_000),
		DailyWithdrawalLimit: decimal.NewFromInt(10_000_000),
	},
}

// DeriveLimits maps verification milestones to a tier and its limits.
func DeriveLimits(m KYCMilestones) KYCLimits {
	tier := models.TierSprout
	switch {
	case m.DocumentsApproved:
		tier = models.TierThrive
	case m.EmailVerified || m.BVNVerified:
		tier = models.TierBloom
	}
	return limitsFor(tier, m.BVNVerified)
}

func limitsFor(tier models.KYCTier, bvnVerified bool) KYCLimits {
	limits := tierLimits[tier]
	limits.WithdrawalsEnabled = bvnVerified && tier.Rank() >= models.TierBloom.Rank()
	return limits
}

type KYCService struct {
	DB     *gorm.DB
	Helper *HelperService
	Access *Authorizer
}

func NewKYCService(db *gorm.DB, helper *HelperService, access *Authorizer) *KYCService {
	return &KYCService{DB: db, Helper: helper, Access: access}
}

func (s *KYCService) GetOrCreate(ctx context.Context, userID string) (*models.KYCRecord, error) {
	return s.loadOrCreate(s.DB.WithContext(ctx), userID, false)
}

func (s *KYCService) loadOrCreate(tx *gorm.DB, userID string, lock bool) (*models.KYCRecord, error) {
	query := tx
	if lock {
		query = database.ForUpdate(tx)
	}
	var record models.KYCRecord
	err := query.Where("user_id = ?", userID).First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !database.IsNotFound(err) {
		return nil, fmt.Errorf("load kyc record: %w", err)
	}

	return s.createRecord(tx, userID, lock)
}

// createRecord inserts a fresh sprout record. When another transaction wins
// the insert, its row is returned instead.
func (s *KYCService) createRecord(tx *gorm.DB, userID string, lock bool) (*models.KYCRecord, error) {
	record := models.KYCRecord{UserID: userID, Status: models.KYCPending}
	applyLimits(&record, DeriveLimits(KYCMilestones{}))
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&record).Error
	})
	if err == nil {
		return &record, nil
	}
	if !database.IsDuplicate(err) {
		return nil, fmt.Errorf("create kyc record: %w", err)
	}

	query := tx
	if lock {
		query = database.ForUpdate(tx)
	}
	record = models.KYCRecord{}
	if err := query.Where("user_id = ?", userID).First(&record).Error; err != nil {
		return nil, fmt.Errorf("load kyc record: %w", err)
	}
	return &record, nil
}

func applyLimits(record *models.KYCRecord, limits KYCLimits) {
	// Tiers never move down.
	if limits.Tier.Rank() < record.Tier.Rank() {
		limits = limitsFor(record.Tier, record.BVNVerified)
	}
	record.Tier = limits.Tier
	record.DailyPurchaseLimit = limits.DailyPurchaseLimit
	record.PortfolioMaxBalance = limits.PortfolioMaxBalance
	record.MaxWithdrawalAmount = limits.MaxWithdrawalAmount
	record.DailyWithdrawalLimit = limits.DailyWithdrawalLimit
	record.WithdrawalsEnabled = limits.WithdrawalsEnabled
}

func milestonesOf(r *models.KYCRecord) KYCMilestones {
	return KYCMilestones{
		EmailVerified:     r.EmailVerified,
		BVNVerified:       r.BVNVerified,
		DocumentsApproved: r.DocumentsApproved,
	}
}

func (s *KYCService) update(ctx context.Context, userID string, mutate func(r *models.KYCRecord) error) (*models.KYCRecord, error) {
	var record *models.KYCRecord
	before := ""
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if record, err = s.loadOrCreate(tx, userID, true); err != nil {
			return err
		}
		before = string(record.Tier)
		if err := mutate(record); err != nil {
			return err
		}
		applyLimits(record, DeriveLimits(milestonesOf(record)))
		return tx.Save(record).Error
	})
	if err != nil {
		return nil, err
	}
	if before != string(record.Tier) {
		s.Helper.RecordAudit(ctx, audit.Entry{
			Action:     "kyc.tier_changed",
			ActorID:    userID,
			Resource:   "kyc_record",
			ResourceID: record.ID,
			From:       before,
			To:         string(record.Tier),
		})
	}
	return record, nil
}

func (s *KYCService) MarkEmailVerified(ctx context.Context, userID string) (*models.KYCRecord, error) {
	return s.update(ctx, userID, func(r *models.KYCRecord) error {
		r.EmailVerified = true
		return nil
	})
}

// RecordBVNResult applies the identity provider's BVN match outcome.
func (s *KYCService) RecordBVNResult(ctx context.Context, userID string, matched bool, reason string) (*models.KYCRecord, error) {
	return s.update(ctx, userID, func(r *models.KYCRecord) error {
		if matched {
			r.BVNVerified = true
			r.Status = models.KYCApproved
			r.RejectionReason = nil
			return nil
		}
		if reason == "" {
			reason = "BVN details did not match"
		}
		r.Status = models.KYCRejected
		r.RejectionReason = &reason
		return nil
	})
}

func (s *KYCService) SubmitDocuments(ctx context.Context, actor Actor, userID string) (*models.KYCRecord, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: userID}, ActionSubmitKYC); err != nil {
		return nil, err
	}
	return s.update(ctx, userID, func(r *models.KYCRecord) error {
		if r.DocumentsApproved {
			return common.NewStateError("documents have already been approved")
		}
		if r.Status == models.KYCUnderReview {
			return common.NewStateError("documents are already under review")
		}
		r.Status = models.KYCUnderReview
		return nil
	})
}

func (s *KYCService) ReviewDocuments(ctx context.Context, actor Actor, userID string, approved bool, reason string) (*models.KYCRecord, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: userID}, ActionReviewKYC); err != nil {
		return nil, err
	}
	if !approved && reason == "" {
		return nil, &common.ValidationError{Field: "reason", Message: "a rejection reason is required"}
	}
	now := s.Helper.Now()
	return s.update(ctx, userID, func(r *models.KYCRecord) error {
		if r.Status != models.KYCUnderReview {
			return common.NewStateError("no documents are awaiting review")
		}
		r.ReviewedBy = &actor.UserID
		r.ReviewedAt = &now
		if approved {
			r.DocumentsApproved = true
			r.Status = models.KYCApproved
			r.RejectionReason = nil
			return nil
		}
		r.Status = models.KYCRejected
		r.RejectionReason = &reason
		return nil
	})
}

// CanWithdraw reports the first rule that blocks a withdrawal of amount.
func (s *KYCService) CanWithdraw(ctx context.Context, userID string, amount decimal.Decimal) error {
	return s.checkWithdrawal(s.DB.WithContext(ctx), userID, amount, false)
}

// CheckWithdrawal applies the same rules inside tx with the user's KYC row
// locked, so two payouts for one user cannot both fit under the daily limit.
// It must run in the transaction that creates the payout request.
func (s *KYCService) CheckWithdrawal(tx *gorm.DB, userID string, amount decimal.Decimal) error {
	return s.checkWithdrawal(tx, userID, amount, true)
}

func (s *KYCService) checkWithdrawal(db *gorm.DB, userID string, amount decimal.Decimal, lock bool) error {
	record, err := s.loadOrCreate(db, userID, lock)
	if err != nil {
		return err
	}
	if !record.WithdrawalsEnabled {
		return common.NewValidationError("withdrawals are not enabled for your verification tier; complete BVN verification to continue")
	}
	if amount.GreaterThan(record.MaxWithdrawalAmount) {
		return common.NewValidationError("amount exceeds the maximum withdrawal of %s for the %s tier", record.MaxWithdrawalAmount.StringFixed(2), record.Tier)
	}

	withdrawn, err := s.withdrawnSince(db, userID, startOfDay(s.Helper.Now()))
	if err != nil {
		return err
	}
	if withdrawn.Add(amount).GreaterThan(record.DailyWithdrawalLimit) {
		return common.NewValidationError("amount exceeds the daily withdrawal limit of %s", record.DailyWithdrawalLimit.StringFixed(2))
	}
	return nil
}

// withdrawnSince sums every payout to the user's bank since the given time,
// manual and bonus payouts included. Failed payouts do not count.
func (s *KYCService) withdrawnSince(db *gorm.DB, userID string, since time.Time) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := db.Model(&models.PayoutRequest{}).
		Where("user_id = ? AND status <> ? AND created_at >= ?", userID, models.PayoutFailed, since).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum withdrawals: %w", err)
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

// CheckPortfolio rejects a credit that would lift the balance over the tier cap.
func (s *KYCService) CheckPortfolio(tx *gorm.DB, userID string, newBalance decimal.Decimal) error {
	record, err := s.loadOrCreate(tx, userID, false)
	if err != nil {
		return err
	}
	if newBalance.GreaterThan(record.PortfolioMaxBalance) {
		return common.NewValidationError("wallet balance would exceed the %s tier limit of %s", record.Tier, record.PortfolioMaxBalance.StringFixed(2))
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
