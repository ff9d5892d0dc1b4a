package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"growvia-service/internal/audit"
	"growvia-service/internal/database"
	"growvia-service/internal/metrics"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

type CommissionService struct {
	DB     *gorm.DB
	Helper *HelperService
	Access *Authorizer
}

func NewCommissionService(db *gorm.DB, helper *HelperService, access *Authorizer) *CommissionService {
	return &CommissionService{DB: db, Helper: helper, Access: access}
}

type RecordEntryDTO struct {
	UserID            string                `json:"user_id" validate:"required"`
	CampaignID        string                `json:"campaign_id" validate:"required"`
	CommissionModelID string                `json:"commission_model_id"`
	ConversionID      string                `json:"conversion_id" validate:"required,max=100"`
	Type              models.CommissionType `json:"type" validate:"required,oneof=click lead sale signup"`
	Amount            decimal.Decimal       `json:"amount"`
	ConversionValue   decimal.Decimal       `json:"conversion_value"`
}

// RecordEntry accrues a pending commission for a conversion by an active affiliate.
func (s *CommissionService) RecordEntry(ctx context.Context, data RecordEntryDTO) (*models.CommissionLedgerEntry, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	if data.Amount.IsNegative() {
		return nil, &common.ValidationError{Field: "amount", Message: "amount cannot be negative"}
	}

	var entry models.CommissionLedgerEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.CommissionLedgerEntry{}).Where("conversion_id = ?", data.ConversionID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return common.NewConflictError("a commission has already been recorded for this conversion")
		}

		assignment, err := lockActiveAssignment(tx, data.CampaignID, data.UserID)
		if err != nil {
			return err
		}

		entry = models.CommissionLedgerEntry{
			UserID:            data.UserID,
			CampaignID:        data.CampaignID,
			OrganizationID:    assignment.OrganizationID,
			CommissionModelID: data.CommissionModelID,
			Type:              data.Type,
			Amount:            data.Amount,
			ConversionValue:   data.ConversionValue,
			ConversionID:      data.ConversionID,
			Status:            models.CommissionPending,
			ApprovalStatus:    models.CommissionPending,
		}
		if err := tx.Create(&entry).Error; err != nil {
			if database.IsDuplicate(err) {
				return common.NewConflictError("a commission has already been recorded for this conversion")
			}
			return fmt.Errorf("create ledger entry: %w", err)
		}

		return tx.Model(&models.CampaignAffiliate{}).Where("id = ?", assignment.ID).Updates(map[string]interface{}{
			"conversions":      assignment.Conversions + 1,
			"total_revenue":    assignment.TotalRevenue.Add(data.ConversionValue),
			"total_commission": assignment.TotalCommission.Add(data.Amount),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordLedgerEntry(string(models.CommissionPending))
	logrus.WithFields(logrus.Fields{
		"entry_id":    entry.ID,
		"user_id":     entry.UserID,
		"campaign_id": entry.CampaignID,
		"amount":      entry.Amount.StringFixed(2),
	}).Info("commission recorded")
	return &entry, nil
}

func (s *CommissionService) load(db *gorm.DB, id string) (*models.CommissionLedgerEntry, error) {
	var entry models.CommissionLedgerEntry
	if err := db.Where("id = ?", id).First(&entry).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, common.NewNotFoundError("commission entry")
		}
		return nil, err
	}
	return &entry, nil
}

// Approve moves a pending entry to approved. A concurrent second approval
// loses the conditional update and gets a StateError.
func (s *CommissionService) Approve(ctx context.Context, actor Actor, entryID string) (*models.CommissionLedgerEntry, error) {
	return s.review(ctx, actor, entryID, models.CommissionApproved, "")
}

func (s *CommissionService) Reject(ctx context.Context, actor Actor, entryID, reason string) (*models.CommissionLedgerEntry, error) {
	if reason == "" {
		return nil, &common.ValidationError{Field: "reason", Message: "a rejection reason is required"}
	}
	return s.review(ctx, actor, entryID, models.CommissionRejected, reason)
}

func (s *CommissionService) review(ctx context.Context, actor Actor, entryID string, to models.CommissionStatus, reason string) (*models.CommissionLedgerEntry, error) {
	db := s.DB.WithContext(ctx)
	entry, err := s.load(db, entryID)
	if err != nil {
		return nil, err
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OrganizationID: entry.OrganizationID}, ActionReviewCommission); err != nil {
		return nil, err
	}

	now := s.Helper.Now()
	updates := map[string]interface{}{
		"status":          to,
		"approval_status": to,
	}
	if to == models.CommissionApproved {
		updates["approved_by"] = actor.UserID
		updates["approved_at"] = now
	} else {
		updates["rejection_reason"] = reason
	}

	res := db.Model(&models.CommissionLedgerEntry{}).
		Where("id = ? AND status = ?", entryID, models.CommissionPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("review ledger entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.NewStateError("only pending commissions can be %s", to)
	}

	entry, err = s.load(db, entryID)
	if err != nil {
		return nil, err
	}

	metrics.RecordLedgerEntry(string(to))
	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     "commission." + string(to),
		ActorID:    actor.UserID,
		Resource:   "commission_ledger_entry",
		ResourceID: entry.ID,
		From:       string(models.CommissionPending),
		To:         string(to),
	})
	template := TemplateCommissionApproved
	if to == models.CommissionRejected {
		template = TemplateCommissionRejected
	}
	s.Helper.Notify(ctx, Notification{
		UserID:   entry.UserID,
		Template: template,
		Data: map[string]string{
			"amount":      entry.Amount.StringFixed(2),
			"campaign_id": entry.CampaignID,
			"reason":      reason,
		},
	})
	return entry, nil
}

// Earnings is derived from ledger entries and never stored.
type Earnings struct {
	Available decimal.Decimal `json:"available"`
	Pending   decimal.Decimal `json:"pending"`
	PaidOut   decimal.Decimal `json:"paid_out"`
	Rejected  decimal.Decimal `json:"rejected"`
}

func (s *CommissionService) Earnings(ctx context.Context, actor Actor, userID, campaignID string) (*Earnings, error) {
	if err := s.authorizeView(ctx, actor, userID, campaignID); err != nil {
		return nil, err
	}

	query := s.DB.WithContext(ctx).Model(&models.CommissionLedgerEntry{}).Where("user_id = ?", userID)
	if campaignID != "" {
		query = query.Where("campaign_id = ?", campaignID)
	}
	var entries []models.CommissionLedgerEntry
	if err := query.Select("status", "amount").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load earnings: %w", err)
	}

	out := &Earnings{Available: decimal.Zero, Pending: decimal.Zero, PaidOut: decimal.Zero, Rejected: decimal.Zero}
	for _, e := range entries {
		switch e.Status {
		case models.CommissionApproved:
			out.Available = out.Available.Add(e.Amount)
		case models.CommissionPending:
			out.Pending = out.Pending.Add(e.Amount)
		case models.CommissionPaid:
			out.PaidOut = out.PaidOut.Add(e.Amount)
		case models.CommissionRejected:
			out.Rejected = out.Rejected.Add(e.Amount)
		}
	}
	return out, nil
}

type EntryFilter struct {
	UserID         string
	CampaignID     string
	OrganizationID string
	Status         models.CommissionStatus
}

func (s *CommissionService) ListEntries(ctx context.Context, actor Actor, filter EntryFilter, page, limit int) (common.PaginationResult, error) {
	resource := Resource{OwnerID: filter.UserID, OrganizationID: filter.OrganizationID}
	if err := s.Access.Authorize(ctx, actor, resource, ActionViewEarnings); err != nil {
		return common.PaginationResult{}, err
	}

	page, limit, offset := common.NormalizePage(page, limit)
	query := s.DB.WithContext(ctx).Model(&models.CommissionLedgerEntry{})
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.CampaignID != "" {
		query = query.Where("campaign_id = ?", filter.CampaignID)
	}
	if filter.OrganizationID != "" {
		query = query.Where("organization_id = ?", filter.OrganizationID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}
	var entries []models.CommissionLedgerEntry
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(entries, total, page, limit, ""), nil
}

func (s *CommissionService) authorizeView(ctx context.Context, actor Actor, userID, campaignID string) error {
	resource := Resource{OwnerID: userID}
	if campaignID != "" && actor.UserID != userID {
		campaign, err := s.Access.Directory.Campaign(ctx, campaignID)
		if err != nil {
			return err
		}
		resource.OrganizationID = campaign.OrganizationID
	}
	return s.Access.Authorize(ctx, actor, resource, ActionViewEarnings)
}

// approvedForPayout loads and locks approved entries that are not yet linked to a payout.
func approvedForPayout(tx *gorm.DB, userID string, ids []string) ([]models.CommissionLedgerEntry, error) {
	var entries []models.CommissionLedgerEntry
	if err := database.ForUpdate(tx).Where("id IN ?", ids).Find(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) != len(ids) {
		return nil, common.NewNotFoundError("commission entry")
	}
	for _, e := range entries {
		if e.UserID != userID {
			return nil, common.NewValidationError("commission %s does not belong to this user", e.ID)
		}
		if e.Status != models.CommissionApproved {
			return nil, common.NewStateError("commission %s is %s, only approved commissions can be paid out", e.ID, e.Status)
		}
		if e.PayoutRequestID != nil {
			return nil, common.NewConflictError("commission %s is already attached to a payout", e.ID)
		}
	}
	return entries, nil
}

// reserveEntries links approved entries to a payout before it is paid.
func reserveEntries(tx *gorm.DB, ids []string, payoutID string) error {
	if len(ids) == 0 {
		return nil
	}
	res := tx.Model(&models.CommissionLedgerEntry{}).
		Where("id IN ? AND status = ? AND payout_request_id IS NULL", ids, models.CommissionApproved).
		Update("payout_request_id", payoutID)
	if res.Error != nil {
		return fmt.Errorf("reserve commissions: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return common.NewConflictError("some commissions are already attached to a payout")
	}
	return nil
}

// releaseEntries detaches approved entries from a payout that failed.
func releaseEntries(tx *gorm.DB, payoutID string) error {
	return tx.Model(&models.CommissionLedgerEntry{}).
		Where("payout_request_id = ? AND status = ?", payoutID, models.CommissionApproved).
		Update("payout_request_id", nil).Error
}

// markEntriesPaid moves the payout's reserved entries from approved to paid.
func markEntriesPaid(tx *gorm.DB, ids []string, payoutID string, paidAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	res := tx.Model(&models.CommissionLedgerEntry{}).
		Where("id IN ? AND status = ? AND payout_request_id = ?", ids, models.CommissionApproved, payoutID).
		Updates(map[string]interface{}{
			"status":  models.CommissionPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return fmt.Errorf("mark commissions paid: %w", res.Error)
	}
	if res.RowsAffected != int64(len(ids)) {
		return common.NewStateError("some commissions are no longer approved")
	}
	return nil
}

// revertEntriesPaid undoes markEntriesPaid for a reversed payout.
func revertEntriesPaid(tx *gorm.DB, payoutID string) error {
	return tx.Model(&models.CommissionLedgerEntry{}).
		Where("payout_request_id = ? AND status = ?", payoutID, models.CommissionPaid).
		Updates(map[string]interface{}{
			"status":            models.CommissionApproved,
			"paid_at":           nil,
			"payout_request_id": nil,
		}).Error
}
