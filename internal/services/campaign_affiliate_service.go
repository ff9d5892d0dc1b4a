package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"growvia-service/internal/audit"
	"growvia-service/internal/database"
	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

// CampaignAffiliateService owns the participation state machine:
//
//	pending -> active (accept) | removed (decline)
//	active <-> suspended
//	pending|active|suspended -> removed
type CampaignAffiliateService struct {
	DB     *gorm.DB
	Helper *HelperService
	Access *Authorizer
	KYC    *KYCService
}

func NewCampaignAffiliateService(db *gorm.DB, helper *HelperService, access *Authorizer, kyc *KYCService) *CampaignAffiliateService {
	return &CampaignAffiliateService{DB: db, Helper: helper, Access: access, KYC: kyc}
}

type AssignAffiliateDTO struct {
	CampaignID     string `json:"campaign_id" validate:"required"`
	UserID         string `json:"user_id" validate:"required"`
	OrganizationID string `json:"organization_id" validate:"required"`
	Notes          string `json:"notes" validate:"max=2000"`
}

// Assign invites a member of the campaign's organization. The new or
// reactivated row always starts in pending.
func (s *CampaignAffiliateService) Assign(ctx context.Context, actor Actor, data AssignAffiliateDTO) (*models.CampaignAffiliate, error) {
	if err := validateDTO(data); err != nil {
		return nil, err
	}
	campaign, err := s.Access.Directory.Campaign(ctx, data.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.OrganizationID != data.OrganizationID {
		return nil, &common.ValidationError{Field: "organization_id", Message: "campaign does not belong to this organization"}
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OrganizationID: campaign.OrganizationID}, ActionManageAffiliates); err != nil {
		return nil, &common.ValidationError{Message: "only organization admins or managers can assign affiliates", Cause: err}
	}
	if err := s.requireMember(ctx, campaign.OrganizationID, data.UserID); err != nil {
		return nil, err
	}

	assignment, err := s.enroll(ctx, actor, campaign, data.UserID, data.Notes)
	if err != nil {
		return nil, err
	}

	s.Helper.Notify(ctx, Notification{
		UserID:   assignment.UserID,
		Template: TemplateCampaignInvitation,
		Data:     map[string]string{"campaign_id": campaign.ID, "campaign_name": campaign.Name},
	})
	s.audit(ctx, actor, assignment, "campaign_affiliate.assigned", "", string(models.AffiliatePending))
	return assignment, nil
}

// Apply lets a marketer request to join a campaign of their organization.
func (s *CampaignAffiliateService) Apply(ctx context.Context, actor Actor, campaignID, notes string) (*models.CampaignAffiliate, error) {
	campaign, err := s.Access.Directory.Campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if err := s.Access.Authorize(ctx, actor, Resource{OrganizationID: campaign.OrganizationID}, ActionApplyToCampaign); err != nil {
		return nil, &common.ValidationError{Message: "you are not a member of this campaign's organization", Cause: err}
	}

	assignment, err := s.enroll(ctx, actor, campaign, actor.UserID, notes)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, actor, assignment, "campaign_affiliate.applied", "", string(models.AffiliatePending))
	return assignment, nil
}

func (s *CampaignAffiliateService) requireMember(ctx context.Context, organizationID, userID string) error {
	member, err := s.Access.Directory.Membership(ctx, organizationID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return &common.ValidationError{Field: "user_id", Message: "user is not a member of the campaign's organization"}
	}
	return nil
}

func (s *CampaignAffiliateService) enroll(ctx context.Context, actor Actor, campaign *models.Campaign, userID, notes string) (*models.CampaignAffiliate, error) {
	if campaign.Status == models.CampaignCompleted || campaign.Status == models.CampaignArchived {
		return nil, common.NewStateError("cannot add affiliates to a %s campaign", campaign.Status)
	}

	kycVerified := false
	if record, err := s.KYC.GetOrCreate(ctx, userID); err == nil {
		kycVerified = record.BVNVerified
	} else {
		logrus.WithError(err).WithField("user_id", userID).Warn("kyc lookup failed during assignment")
	}

	var assignment models.CampaignAffiliate
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCampaign(tx, campaign); err != nil {
			return err
		}
		if err := checkCapacity(tx, campaign); err != nil {
			return err
		}

		now := s.Helper.Now()
		err := database.ForUpdate(tx).
			Where("campaign_id = ? AND user_id = ?", campaign.ID, userID).
			First(&assignment).Error
		switch {
		case err == nil:
			if assignment.Status != models.AffiliateRemoved {
				return common.NewConflictError("user is already %s in this campaign", assignment.Status)
			}
			// A removed affiliate is re-invited on the same row; counters carry over.
			return tx.Model(&assignment).Updates(map[string]interface{}{
				"status":              models.AffiliatePending,
				"assigned_by":         actor.UserID,
				"assigned_at":         now,
				"removed_by":          nil,
				"removed_at":          nil,
				"removal_reason":      nil,
				"participation_notes": notes,
				"kyc_verified":        kycVerified,
			}).Error
		case database.IsNotFound(err):
			assignment = models.CampaignAffiliate{
				CampaignID:         campaign.ID,
				UserID:             userID,
				OrganizationID:     campaign.OrganizationID,
				AssignedBy:         actor.UserID,
				AssignedAt:         now,
				Status:             models.AffiliatePending,
				ParticipationNotes: notes,
				KYCVerified:        kycVerified,
			}
			if err := tx.Create(&assignment).Error; err != nil {
				if database.IsDuplicate(err) {
					return common.NewConflictError("user is already assigned to this campaign")
				}
				return fmt.Errorf("create assignment: %w", err)
			}
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, campaign.ID, userID)
}

// lockCampaign takes the campaign row lock that serializes seat counting.
// It is taken before any assignment row lock.
func lockCampaign(tx *gorm.DB, campaign *models.Campaign) error {
	if campaign.MaxAffiliates <= 0 {
		return nil
	}
	var locked models.Campaign
	if err := database.ForUpdate(tx).Select("id").Where("id = ?", campaign.ID).First(&locked).Error; err != nil {
		if database.IsNotFound(err) {
			return common.NewNotFoundError("campaign")
		}
		return fmt.Errorf("lock campaign: %w", err)
	}
	return nil
}

// checkCapacity fails when the campaign already has max_affiliates active
// members. The caller holds the lock from lockCampaign.
func checkCapacity(tx *gorm.DB, campaign *models.Campaign) error {
	if campaign.MaxAffiliates <= 0 {
		return nil
	}
	var active int64
	if err := tx.Model(&models.CampaignAffiliate{}).
		Where("campaign_id = ? AND status = ?", campaign.ID, models.AffiliateActive).
		Count(&active).Error; err != nil {
		return err
	}
	if active >= int64(campaign.MaxAffiliates) {
		return common.NewCapacityError("campaign has reached its maximum of %d affiliates", campaign.MaxAffiliates)
	}
	return nil
}

func (s *CampaignAffiliateService) AcceptInvitation(ctx context.Context, actor Actor, campaignID string) (*models.CampaignAffiliate, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: actor.UserID}, ActionRespondInvitation); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, campaignID, actor.UserID, models.AffiliateActive, "", "accept", models.AffiliatePending)
}

func (s *CampaignAffiliateService) DeclineInvitation(ctx context.Context, actor Actor, campaignID, reason string) (*models.CampaignAffiliate, error) {
	if err := s.Access.Authorize(ctx, actor, Resource{OwnerID: actor.UserID}, ActionRespondInvitation); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "declined by user"
	}
	return s.transition(ctx, actor, campaignID, actor.UserID, models.AffiliateRemoved, reason, "decline", models.AffiliatePending)
}

func (s *CampaignAffiliateService) Suspend(ctx context.Context, actor Actor, campaignID, userID, reason string) (*models.CampaignAffiliate, error) {
	if err := s.authorizeManage(ctx, actor, campaignID, ActionManageAffiliates); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, campaignID, userID, models.AffiliateSuspended, reason, "suspend", models.AffiliateActive)
}

func (s *CampaignAffiliateService) Reactivate(ctx context.Context, actor Actor, campaignID, userID, reason string) (*models.CampaignAffiliate, error) {
	if err := s.authorizeManage(ctx, actor, campaignID, ActionManageAffiliates); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, campaignID, userID, models.AffiliateActive, reason, "reactivate", models.AffiliateSuspended)
}

func (s *CampaignAffiliateService) authorizeManage(ctx context.Context, actor Actor, campaignID string, action Action) error {
	campaign, err := s.Access.Directory.Campaign(ctx, campaignID)
	if err != nil {
		return err
	}
	return s.Access.Authorize(ctx, actor, Resource{OrganizationID: campaign.OrganizationID}, action)
}

// transition applies one edge of the state machine under a row lock.
func (s *CampaignAffiliateService) transition(ctx context.Context, actor Actor, campaignID, userID string, to models.AffiliateStatus, reason, verb string, from ...models.AffiliateStatus) (*models.CampaignAffiliate, error) {
	campaign, err := s.Access.Directory.Campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var assignment models.CampaignAffiliate
	var previous models.AffiliateStatus
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if to == models.AffiliateActive {
			if err := lockCampaign(tx, campaign); err != nil {
				return err
			}
		}
		if err := database.ForUpdate(tx).Where("campaign_id = ? AND user_id = ?", campaignID, userID).First(&assignment).Error; err != nil {
			if database.IsNotFound(err) {
				return common.NewNotFoundError("campaign assignment")
			}
			return err
		}
		if !statusIn(assignment.Status, from) {
			return common.NewStateError("cannot %s an assignment that is %s", verb, assignment.Status)
		}
		previous = assignment.Status

		if to == models.AffiliateActive {
			if err := checkCapacity(tx, campaign); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"status": to}
		if to == models.AffiliateRemoved {
			now := s.Helper.Now()
			updates["removed_by"] = actor.UserID
			updates["removed_at"] = now
			updates["removal_reason"] = reason
		}
		return tx.Model(&assignment).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, actor, &assignment, "campaign_affiliate."+verb, string(previous), string(to))
	return s.Get(ctx, campaignID, userID)
}

// Remove ends participation. Before the campaign starts the row is deleted;
// afterwards it is kept as removed so its history survives.
func (s *CampaignAffiliateService) Remove(ctx context.Context, actor Actor, campaignID, userID, reason string) error {
	campaign, err := s.Access.Directory.Campaign(ctx, campaignID)
	if err != nil {
		return err
	}
	resource := Resource{OrganizationID: campaign.OrganizationID, OwnerID: userID}
	if err := s.Access.Authorize(ctx, actor, resource, ActionRemoveAffiliate); err != nil {
		return err
	}

	now := s.Helper.Now()
	var assignment models.CampaignAffiliate
	var previous models.AffiliateStatus
	deleted := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.ForUpdate(tx).Where("campaign_id = ? AND user_id = ?", campaignID, userID).First(&assignment).Error; err != nil {
			if database.IsNotFound(err) {
				return common.NewNotFoundError("campaign assignment")
			}
			return err
		}
		if assignment.Status == models.AffiliateRemoved {
			return common.NewStateError("affiliate has already been removed")
		}
		previous = assignment.Status

		if !campaign.Started(now) {
			deleted = true
			return tx.Delete(&assignment).Error
		}
		return tx.Model(&assignment).Updates(map[string]interface{}{
			"status":         models.AffiliateRemoved,
			"removed_by":     actor.UserID,
			"removed_at":     now,
			"removal_reason": reason,
		}).Error
	})
	if err != nil {
		return err
	}

	action := "campaign_affiliate.removed"
	if deleted {
		action = "campaign_affiliate.deleted"
	}
	s.audit(ctx, actor, &assignment, action, string(previous), string(models.AffiliateRemoved))
	if actor.UserID != userID {
		s.Helper.Notify(ctx, Notification{
			UserID:   userID,
			Template: TemplateCampaignRemoved,
			Data:     map[string]string{"campaign_id": campaignID, "reason": reason},
		})
	}
	return nil
}

// RecordClick bumps the click counter of an active affiliate.
func (s *CampaignAffiliateService) RecordClick(ctx context.Context, campaignID, userID string) error {
	res := s.DB.WithContext(ctx).Model(&models.CampaignAffiliate{}).
		Where("campaign_id = ? AND user_id = ? AND status = ?", campaignID, userID, models.AffiliateActive).
		UpdateColumn("clicks", gorm.Expr("clicks + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.NewStateError("affiliate is not active in this campaign")
	}
	return nil
}

func (s *CampaignAffiliateService) Get(ctx context.Context, campaignID, userID string) (*models.CampaignAffiliate, error) {
	var assignment models.CampaignAffiliate
	err := s.DB.WithContext(ctx).Where("campaign_id = ? AND user_id = ?", campaignID, userID).First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NewNotFoundError("campaign assignment")
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (s *CampaignAffiliateService) ListByCampaign(ctx context.Context, actor Actor, campaignID string, status models.AffiliateStatus, page, limit int) (common.PaginationResult, error) {
	if err := s.authorizeManage(ctx, actor, campaignID, ActionManageAffiliates); err != nil {
		return common.PaginationResult{}, err
	}

	page, limit, offset := common.NormalizePage(page, limit)
	query := s.DB.WithContext(ctx).Model(&models.CampaignAffiliate{}).Where("campaign_id = ?", campaignID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return common.PaginationResult{}, err
	}
	var rows []models.CampaignAffiliate
	if err := query.Order("assigned_at desc").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return common.PaginationResult{}, err
	}
	return common.PaginateResponse(rows, total, page, limit, ""), nil
}

// lockActiveAssignment gates ledger writes on an active participation.
func lockActiveAssignment(tx *gorm.DB, campaignID, userID string) (*models.CampaignAffiliate, error) {
	var assignment models.CampaignAffiliate
	err := database.ForUpdate(tx).Where("campaign_id = ? AND user_id = ?", campaignID, userID).First(&assignment).Error
	if database.IsNotFound(err) {
		return nil, common.NewStateError("user is not an affiliate of this campaign")
	}
	if err != nil {
		return nil, err
	}
	if assignment.Status != models.AffiliateActive {
		return nil, common.NewStateError("affiliate is %s in this campaign; commissions require an active assignment", assignment.Status)
	}
	return &assignment, nil
}

func statusIn(status models.AffiliateStatus, allowed []models.AffiliateStatus) bool {
	for _, a := range allowed {
		if status == a {
			return true
		}
	}
	return false
}

func (s *CampaignAffiliateService) audit(ctx context.Context, actor Actor, a *models.CampaignAffiliate, action, from, to string) {
	s.Helper.RecordAudit(ctx, audit.Entry{
		Action:     action,
		ActorID:    actor.UserID,
		Resource:   "campaign_affiliate",
		ResourceID: a.ID,
		From:       from,
		To:         to,
		Details:    map[string]interface{}{"campaign_id": a.CampaignID, "user_id": a.UserID},
	})
}
