package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growvia-service/internal/models"
	"growvia-service/pkg/common"
)

func recordSale(env *testEnv, c *models.Campaign, userID, conversionID, naira string) (*models.CommissionLedgerEntry, error) {
	return env.commissions.RecordEntry(ctx, RecordEntryDTO{
		UserID:          userID,
		CampaignID:      c.ID,
		ConversionID:    conversionID,
		Type:            models.CommissionSale,
		Amount:          amount(naira),
		ConversionValue: amount("10000"),
	})
}

func TestRecordEntryRequiresActiveAssignment(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.member("org-1", "mkt-1", models.RoleMarketer)

	_, err := recordSale(env, c, "mkt-1", "conv-1", "500")
	var serr *common.StateError
	require.ErrorAs(t, err, &serr)

	_, err = env.affiliates.Assign(ctx, admin, AssignAffiliateDTO{CampaignID: c.ID, UserID: "mkt-1", OrganizationID: "org-1"})
	require.NoError(t, err)
	_, err = recordSale(env, c, "mkt-1", "conv-1", "500")
	require.ErrorAs(t, err, &serr, "pending assignments cannot accrue")

	_, err = env.affiliates.AcceptInvitation(ctx, userActor("mkt-1"), c.ID)
	require.NoError(t, err)
	entry, err := recordSale(env, c, "mkt-1", "conv-1", "500")
	require.NoError(t, err)
	assert.Equal(t, models.CommissionPending, entry.Status)
	assert.Equal(t, "org-1", entry.OrganizationID)

	assignment, err := env.affiliates.Get(ctx, c.ID, "mkt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), assignment.Conversions)
	assertAmount(t, "500", assignment.TotalCommission)
	assertAmount(t, "10000", assignment.TotalRevenue)
}

func TestRecordEntryRejectsDuplicateConversion(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")

	_, err := recordSale(env, c, "mkt-1", "conv-1", "500")
	require.NoError(t, err)
	_, err = recordSale(env, c, "mkt-1", "conv-1", "500")
	var cerr *common.ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, int64(1), env.count(&models.CommissionLedgerEntry{}, ""))
}

func TestRecordEntryValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")

	_, err := recordSale(env, c, "mkt-1", "conv-1", "-1")
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "amount", verr.Field)

	_, err = env.commissions.RecordEntry(ctx, RecordEntryDTO{UserID: "mkt-1", CampaignID: c.ID, ConversionID: "conv-2", Type: "refund"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
}

func TestApproveIsSingleShot(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")
	env.member("org-1", "mgr-1", models.RoleManagement)
	entry, err := recordSale(env, c, "mkt-1", "conv-1", "500")
	require.NoError(t, err)

	_, err = env.commissions.Approve(ctx, userActor("mkt-1"), entry.ID)
	var ferr *common.ForbiddenError
	require.ErrorAs(t, err, &ferr)

	approved, err := env.commissions.Approve(ctx, userActor("mgr-1"), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionApproved, approved.Status)
	assert.Equal(t, models.CommissionApproved, approved.ApprovalStatus)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "mgr-1", *approved.ApprovedBy)

	_, err = env.commissions.Approve(ctx, userActor("mgr-1"), entry.ID)
	var serr *common.StateError
	require.ErrorAs(t, err, &serr)
	_, err = env.commissions.Reject(ctx, userActor("mgr-1"), entry.ID, "late")
	require.ErrorAs(t, err, &serr)

	note, ok := env.notifier.last(TemplateCommissionApproved)
	require.True(t, ok)
	assert.Equal(t, "500.00", note.Data["amount"])
	assert.Contains(t, env.sink.actions(), "commission.approved")
}

func TestRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")
	entry, err := recordSale(env, c, "mkt-1", "conv-1", "500")
	require.NoError(t, err)

	_, err = env.commissions.Reject(ctx, admin, entry.ID, "")
	var verr *common.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reason", verr.Field)

	rejected, err := env.commissions.Reject(ctx, admin, entry.ID, "fraudulent lead")
	require.NoError(t, err)
	assert.Equal(t, models.CommissionRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "fraudulent lead", *rejected.RejectionReason)

	_, err = env.commissions.Approve(ctx, admin, "missing")
	var nerr *common.NotFoundError
	assert.ErrorAs(t, err, &nerr)
}

func TestEarningsDerivedFromLedger(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")
	env.member("org-1", "mgr-1", models.RoleManagement)

	env.approvedCommission(c, "mkt-1", "1000")
	env.approvedCommission(c, "mkt-1", "250.50")
	_, err := recordSale(env, c, "mkt-1", "conv-p", "300")
	require.NoError(t, err)
	rejected, err := recordSale(env, c, "mkt-1", "conv-r", "75")
	require.NoError(t, err)
	_, err = env.commissions.Reject(ctx, admin, rejected.ID, "duplicate order")
	require.NoError(t, err)

	earnings, err := env.commissions.Earnings(ctx, userActor("mkt-1"), "mkt-1", "")
	require.NoError(t, err)
	assertAmount(t, "1250.50", earnings.Available)
	assertAmount(t, "300", earnings.Pending)
	assertAmount(t, "75", earnings.Rejected)
	assertAmount(t, "0", earnings.PaidOut)

	byManager, err := env.commissions.Earnings(ctx, userActor("mgr-1"), "mkt-1", c.ID)
	require.NoError(t, err)
	assertAmount(t, "1250.50", byManager.Available)

	_, err = env.commissions.Earnings(ctx, userActor("mkt-2"), "mkt-1", "")
	var ferr *common.ForbiddenError
	assert.ErrorAs(t, err, &ferr)
}

func TestListEntries(t *testing.T) {
	env := newTestEnv(t)
	c := env.campaign("org-1", 0, nil)
	env.activeAffiliate(c, "mkt-1")
	env.approvedCommission(c, "mkt-1", "100")
	_, err := recordSale(env, c, "mkt-1", "conv-x", "200")
	require.NoError(t, err)

	page, err := env.commissions.ListEntries(ctx, userActor("mkt-1"), EntryFilter{UserID: "mkt-1", Status: models.CommissionApproved}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Count)

	page, err = env.commissions.ListEntries(ctx, admin, EntryFilter{OrganizationID: "org-1"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Count)
}
