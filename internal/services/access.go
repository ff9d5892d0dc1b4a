package services

import (
	"context"
	"fmt"

	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

type PlatformRole string

const (
	PlatformUser   PlatformRole = "user"
	PlatformAdmin  PlatformRole = "admin"
	PlatformSystem PlatformRole = "system"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   PlatformRole
}

func SystemActor() Actor {
	return Actor{UserID: "system", Role: PlatformSystem}
}

func (a Actor) privileged() bool {
	return a.Role == PlatformAdmin || a.Role == PlatformSystem
}

type Action string

const (
	ActionManageAffiliates   Action = "campaign_affiliate.manage"
	ActionApplyToCampaign    Action = "campaign_affiliate.apply"
	ActionRespondInvitation  Action = "campaign_affiliate.respond"
	ActionRemoveAffiliate    Action = "campaign_affiliate.remove"
	ActionReviewCommission   Action = "commission.review"
	ActionViewEarnings       Action = "commission.view"
	ActionTrackConversion    Action = "commission.track"
	ActionTransferPoints     Action = "wallet.transfer"
	ActionViewWallet         Action = "wallet.view"
	ActionGrantWallet        Action = "wallet.grant"
	ActionReconcileWallet    Action = "wallet.reconcile"
	ActionManagePayoutMethod Action = "payout_method.manage"
	ActionRequestWithdrawal  Action = "payout.request"
	ActionProcessPayout      Action = "payout.process"
	ActionReversePayout      Action = "payout.reverse"
	ActionViewKYC            Action = "kyc.view"
	ActionSubmitKYC          Action = "kyc.submit"
	ActionReviewKYC          Action = "kyc.review"
	ActionRecordVerification Action = "kyc.record"
)

type scope int

const (
	scopeOrgManagement scope = iota
	scopeOrgMember
	scopeOwner
	scopeOwnerOrOrgManagement
	scopePlatform
)

var actionScopes = map[Action]scope{
	ActionManageAffiliates:   scopeOrgManagement,
	ActionApplyToCampaign:    scopeOrgMember,
	ActionRespondInvitation:  scopeOwner,
	ActionRemoveAffiliate:    scopeOwnerOrOrgManagement,
	ActionReviewCommission:   scopeOrgManagement,
	ActionViewEarnings:       scopeOwnerOrOrgManagement,
	ActionTrackConversion:    scopePlatform,
	ActionTransferPoints:     scopeOwner,
	ActionViewWallet:         scopeOwner,
	ActionGrantWallet:        scopePlatform,
	ActionReconcileWallet:    scopePlatform,
	ActionManagePayoutMethod: scopeOwner,
	ActionRequestWithdrawal:  scopeOwner,
	ActionProcessPayout:      scopePlatform,
	ActionReversePayout:      scopePlatform,
	ActionViewKYC:            scopeOwner,
	ActionSubmitKYC:          scopeOwner,
	ActionReviewKYC:          scopePlatform,
	ActionRecordVerification: scopePlatform,
}

// Resource identifies what an action touches: its owning user and organization.
type Resource struct {
	OrganizationID string
	OwnerID        string
}

// Authorizer is the single capability check in front of every state transition.
type Authorizer struct {
	Directory Directory
}

func NewAuthorizer(directory Directory) *Authorizer {
	return &Authorizer{Directory: directory}
}

func (a *Authorizer) Authorize(ctx context.Context, actor Actor, resource Resource, action Action) error {
	sc, ok := actionScopes[action]
	if !ok {
		return fmt.Errorf("unknown action %q", action)
	}
	if actor.privileged() {
		return nil
	}
	if actor.UserID == "" {
		return common.NewForbiddenError("authentication required")
	}

	switch sc {
	case scopePlatform:
		return common.NewForbiddenError("this action requires a platform administrator")
	case scopeOwner:
		if actor.UserID == resource.OwnerID {
			return nil
		}
		return common.NewForbiddenError("you can only act on your own resources")
	case scopeOwnerOrOrgManagement:
		if actor.UserID == resource.OwnerID {
			return nil
		}
		return a.requireRole(ctx, actor, resource.OrganizationID, models.RoleAdmin, models.RoleManagement)
	case scopeOrgMember:
		return a.requireRole(ctx, actor, resource.OrganizationID, models.RoleAdmin, models.RoleManagement, models.RoleMarketer)
	default:
		return a.requireRole(ctx, actor, resource.OrganizationID, models.RoleAdmin, models.RoleManagement)
	}
}

func (a *Authorizer) requireRole(ctx context.Context, actor Actor, organizationID string, roles ...models.OrganizationRole) error {
	if organizationID == "" {
		return common.NewForbiddenError("organization scope required")
	}
	member, err := a.Directory.Membership(ctx, organizationID, actor.UserID)
	if err != nil {
		return err
	}
	if member != nil {
		for _, r := range roles {
			if member.Role == r {
				return nil
			}
		}
	}
	return common.NewForbiddenError("you do not have the required role in this organization")
}
