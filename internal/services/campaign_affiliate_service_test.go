package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

func TestAssignRequiresOrganizationManager(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.member("org-1", "mgr-1", models.RoleManagement)
	env.member("org-1", "mkt-1", models.RoleMarketer)
	env.member("org-1", "mkt-2", models.RoleMarketer)

	_, err := env.affiliates.Assign(ctx, userActor("mkt-1"), AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-2", OrganizationID: "org-1"})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	var ferr *common.ForbiddenError
	require.ErrorAs(t, err, &ferr)

	a, err := env.affiliates.Assign(ctx, userActor("mgr-1"), AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-2", OrganizationID: "org-1", Notes: "top seller"})
	require.NoError(t, err)
	assert.Equal(t, models.AffiliatePending, a.Status)
	assert.Equal(t, "mgr-1", a.AssignedBy)
	assert.Equal(t, "top seller", a.ParticipationNotes)

	note, ok := env.notifier.last(TemplateCampaignInvitation)
	require.True(t, ok)
	assert.Equal(t, "mkt-2", note.UserID)
	assert.Contains(t, env.sink.actions(), "campaign_affiliate.assigned")
}

func TestAssignRejectsNonMembersAndWrongOrganization(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)

	_, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "stranger", OrganizationID: "org-1"})
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_id", verr.Field)

	_, err = env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "stranger", OrganizationID: "org-2"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "organization_id", verr.Field)

	_, err = env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: "missing", UserID: "stranger", OrganizationID: "org-1"})
	var nerr *common.NotFoundError
	require.ErrorAs(t, err, &nerr)
}

func TestAssignTwiceConflicts(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.member("org-1", "mkt-1", models.RoleMarketer)

	_, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-1", OrganizationID: "org-1"})
	require.NoError(t, err)
	_, err = env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-1", OrganizationID: "org-1"})
	var cerr *common.ConflictError
	assert.ErrorAs(t, err, &cerr)
}

func TestCapacityLimitsActiveAffiliates(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 2, nil)
	env.activeAffiliate(c, "mkt-1")
	env.activeAffiliate(c, "mkt-2")
	env.member("org-1", "mkt-3", models.RoleMarketer)

	_, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-3", OrganizationID: "org-1"})
	var capErr *common.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(2), env.count(&models.CampaignAffiliate{}, "campaign_id = ? AND status = ?", c.ID, models.AffiliateActive))

	// Suspending one frees a seat; reactivating it while full is refused.
	_, err = env.affiliates.Suspend(ctx, admin, c.ID, "mkt-2", "fraud review")
	require.NoError(t, err)
	_, err = env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-3", OrganizationID: "org-1"})
	require.NoError(t, err)
	_, err = env.affiliates.AcceptInvitation(ctx, userActor("mkt-3"), c.ID)
	require.NoError(t, err)

	_, err = env.affiliates.Reactivate(ctx, admin, c.ID, "mkt-2", "cleared")
	require.ErrorAs(t, err, &capErr)
}

func TestConcurrentAcceptsRespectCapacity(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 1, nil)
	users := []string{"mkt-1", "mkt-2"}
	for _, u := range users {
		env.member("org-1", u, models.RoleMarketer)
		_, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: u, OrganizationID: "org-1"})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, errs[i] = env.affiliates.AcceptInvitation(ctx, userActor(u), c.ID)
		}(i, u)
	}
	wg.Wait()

	refused := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		refused++
		var capErr *common.CapacityError
		assert.ErrorAs(t, err, &capErr)
	}
	assert.Equal(t, 1, refused)
	assert.Equal(t, int64(1), env.count(&models.CampaignAffiliate{}, "campaign_id = ? AND status = ?", c.ID, models.AffiliateActive))
}

func TestApplyAndRespond(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.member("org-1", "mkt-1", models.RoleMarketer)

	_, err := env.affiliates.Apply(ctx, userActor("outsider"), c.ID, "")
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)

	a, err := env.affiliates.Apply(ctx, userActor("mkt-1"), c.ID, "I sell shoes")
	require.NoError(t, err)
	assert.Equal(t, models.AffiliatePending, a.Status)
	assert.Equal(t, "mkt-1", a.AssignedBy)

	declined, err := env.affiliates.DeclineInvitation(ctx, userActor("mkt-1"), c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.AffiliateRemoved, declined.Status)
	require.NotNil(t, declined.RemovalReason)
	assert.Equal(t, "declined by user", *declined.RemovalReason)

	_, err = env.affiliates.AcceptInvitation(ctx, userActor("mkt-1"), c.ID)
	var serr *common.StateError
	assert.ErrorAs(t, err, &serr)
}

func TestReassignRemovedAffiliateReusesRow(t *testing.T) {
	env := newTestEnv(t)
	start := env.now.Add(-24 * time.Hour)
	c := env.campaign("org-1", 0, &start)
	env.activeAffiliate(c, "mkt-1")
	require.NoError(t, env.affiliates.RecordClick(ctx, c.ID, "mkt-1"))

	before, err := env.affiliates.Get(ctx, c.ID, "mkt-1")
	require.NoError(t, err)

	require.NoError(t, env.affiliates.Remove(ctx, admin, c.ID, "mkt-1", "policy breach"))
	removed, err := env.affiliates.Get(ctx, c.ID, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, models.AffiliateRemoved, removed.Status)
	require.NotNil(t, removed.RemovedBy)
	assert.Equal(t, "admin-1", *removed.RemovedBy)

	err = env.affiliates.Remove(ctx, admin, c.ID, "mkt-1", "again")
	var serr *common.StateError
	require.ErrorAs(t, err, &serr)

	again, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-1", OrganizationID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, before.ID, again.ID)
	assert.Equal(t, models.AffiliatePending, again.Status)
	assert.Nil(t, again.RemovedAt)
	assert.Nil(t, again.RemovalReason)
	assert.Equal(t, int64(1), again.Clicks)
	assert.Equal(t, int64(1), env.count(&models.CampaignAffiliate{}, "campaign_id = ?", c.ID))
}

func TestRemoveBeforeCampaignStartDeletesRow(t *testing.T) {
	env := newTestEnv(t)
	start := env.now.Add(72 * time.Hour)
	c := env.campaign("org-1", 0, &start)
	env.activeAffiliate(c, "mkt-1")

	require.NoError(t, env.affiliates.Remove(ctx, userActor("mkt-1"), c.ID, "mkt-1", "changed my mind"))
	assert.Zero(t, env.count(&models.CampaignAffiliate{}, "campaign_id = ?", c.ID))
	assert.Contains(t, env.sink.actions(), "campaign_affiliate.deleted")
	_, notified := env.notifier.last(TemplateCampaignRemoved)
	assert.False(t, notified)
}

func TestRemoveByOtherMarketerForbidden(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")
	env.member("org-1", "mkt-2", models.RoleMarketer)

	err := env.affiliates.Remove(ctx, userActor("mkt-2"), c.ID, "mkt-1", "")
	var ferr *common.ForbiddenError
	assert.ErrorAs(t, err, &ferr)
}

func TestEnrollClosedCampaign(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	require.NoError(t, env.db.Model(c).Update("status", models.CampaignCompleted).Error)
	env.member("org-1", "mkt-1", models.RoleMarketer)

	_, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-1", OrganizationID: "org-1"})
	var serr *common.StateError
	assert.ErrorAs(t, err, &serr)
}

func TestSuspendOnlyActive(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.member("org-1", "mkt-1", models.RoleMarketer)
	_, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-1", OrganizationID: "org-1"})
	require.NoError(t, err)

	_, err = env.affiliates.Suspend(ctx, admin, c.ID, "mkt-1", "")
	var serr *common.StateError
	require.ErrorAs(t, err, &serr)

	err = env.affiliates.RecordClick(ctx, c.ID, "mkt-1")
	require.ErrorAs(t, err, &serr)
}

func TestListByCampaign(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")
	env.member("org-1", "mkt-2", models.RoleMarketer)
	_, err := env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-2", OrganizationID: "org-1"})
	require.NoError(t, err)

	page, err := env.affiliates.ListByCampaign(ctx, admin, c.ID, models.AffiliateActive, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Count)

	_, err = env.affiliates.ListByCampaign(ctx, userActor("mkt-1"), c.ID, "", 1, 10)
	var ferr *common.ForbiddenError
	assert.ErrorAs(t, err, &ferr)
}
