package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

type staticDirectory struct {
	members map[string]models.OrganizationRole
	lookups int
}

func (d *staticDirectory) Campaign(context.Context, string) (*models.Campaign, error) {
	return nil, common.NewNotFoundError("campaign")
}

func (d *staticDirectory) Membership(_ context.Context, organizationID, userID string) (*models.OrganizationMember, error) {
	d.lookups++
	role, ok := d.members[organizationID+"/"+userID]
	if !ok {
		return nil, nil
	}
	return &models.OrganizationMember{OrganizationID: organizationID, UserID: userID, Role: role}, nil
}

func TestAuthorize(t *testing.T) {
	dir := &staticDirectory{members: map[string]models.OrganizationRole{
		"org-1/owner":   models.RoleAdmin,
		"org-1/manager": models.RoleManagement,
		"org-1/seller":  models.RoleMarketer,
	}}
	access := NewAuthorizer(dir)
	org := Resource{OrganizationID: "org-1"}

	cases := []struct {
		name     string
		actor    Actor
		resource Resource
		action   Action
		allowed  bool
	}{
		{"admin bypasses scope", admin, Resource{}, ActionProcessPayout, true},
		{"system bypasses scope", SystemActor(), Resource{}, ActionReversePayout, true},
		{"anonymous", Actor{Role: PlatformUser}, Resource{OwnerID: ""}, ActionViewWallet, false},
		{"platform action for user", userActor("seller"), Resource{OwnerID: "seller"}, ActionProcessPayout, false},
		{"owner", userActor("seller"), Resource{OwnerID: "seller"}, ActionRequestWithdrawal, true},
		{"not owner", userActor("manager"), Resource{OwnerID: "seller"}, ActionViewWallet, false},
		{"org admin manages", userActor("owner"), org, ActionManageAffiliates, true},
		{"manager manages", userActor("manager"), org, ActionManageAffiliates, true},
		{"marketer cannot manage", userActor("seller"), org, ActionManageAffiliates, false},
		{"marketer applies", userActor("seller"), org, ActionApplyToCampaign, true},
		{"outsider cannot apply", userActor("stranger"), org, ActionApplyToCampaign, false},
		{"owner removes self", userActor("seller"), Resource{OrganizationID: "org-1", OwnerID: "seller"}, ActionRemoveAffiliate, true},
		{"manager removes others", userActor("manager"), Resource{OrganizationID: "org-1", OwnerID: "seller"}, ActionRemoveAffiliate, true},
		{"org scope required", userActor("manager"), Resource{}, ActionReviewCommission, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := access.Authorize(context.Background(), tc.actor, tc.resource, tc.action)
			if tc.allowed {
				assert.NoError(t, err)
				return
			}
			var ferr *common.ForbiddenError
			assert.ErrorAs(t, err, &ferr)
		})
	}
}

func TestAuthorizeOwnerScopeSkipsDirectory(t *testing.T) {
	dir := &staticDirectory{}
	access := NewAuthorizer(dir)
	_ = access.Authorize(context.Background(), userActor("a"), Resource{OwnerID: "b"}, ActionTransferPoints)
	_ = access.Authorize(context.Background(), userActor("a"), Resource{OwnerID: "a"}, ActionManagePayoutMethod)
	assert.Zero(t, dir.lookups)
}

func TestAuthorizeUnknownAction(t *testing.T) {
	access := NewAuthorizer(&staticDirectory{})
	err := access.Authorize(context.Background(), admin, Resource{}, Action("wallet.teleport"))
	assert.Error(t, err)
	var ferr *common.ForbiddenError
	assert.NotErrorAs(t, err, &ferr)
}
