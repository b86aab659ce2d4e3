package services

import (
	"testing"
	"time"

	"orbit-progression-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidations(t *testing.T) (*PeerValidationService, *LedgerService) {
	t.Helper()
	ledger := newTestLedger(t)
	return NewPeerValidationService(ledger.DB, newTestLogger(), ledger), ledger
}

func createClaim(t *testing.T, svc *PeerValidationService) *models.PeerValidation {
	t.Helper()
	v, err := svc.Create(CreateValidationInput{
		OwnerID:    "owner",
		GroupID:    "g1",
		ActionType: models.ReasonDateConfirmed,
	})
	require.NoError(t, err)
	require.Equal(t, models.ValidationPending, v.Status)
	require.Equal(t, 150, v.XPAmount, "amount defaults from the catalog")
	require.Equal(t, DefaultRequiredValidations, v.RequiredValidations)
	return v
}

func ownerPayoutCount(t *testing.T, svc *PeerValidationService) int64 {
	t.Helper()
	var count int64
	require.NoError(t, svc.DB.Model(&models.XPTransaction{}).
		Where("user_id = ? AND reason = ?", "owner", models.ReasonDateConfirmed).
		Count(&count).Error)
	return count
}

func TestQuorumApproval(t *testing.T) {
	svc, ledger := newTestValidations(t)
	v := createClaim(t, svc)

	// First vote: still pending, validator paid for participating.
	updated, err := svc.Approve(v.ID, "userB")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPending, updated.Status)
	assert.Len(t, updated.Validators, 1)

	progB, err := ledger.GetProgress("userB")
	require.NoError(t, err)
	assert.Equal(t, 20, progB.CurrentXP, "flat participation reward")
	assert.EqualValues(t, 0, ownerPayoutCount(t, svc))

	// Second vote reaches the quorum: approved, owner credited once.
	updated, err = svc.Approve(v.ID, "userC")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationApproved, updated.Status)
	assert.NotNil(t, updated.ResolvedAt)
	assert.EqualValues(t, 1, ownerPayoutCount(t, svc))

	// B's earlier participation reward is untouched by the resolution.
	progB, err = ledger.GetProgress("userB")
	require.NoError(t, err)
	assert.Equal(t, 20, progB.CurrentXP)

	// A third approver after the terminal state is refused.
	_, err = svc.Approve(v.ID, "userD")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualValues(t, 1, ownerPayoutCount(t, svc), "no double payout")
}

func TestApprovePayoutFailureRollsBackVote(t *testing.T) {
	svc, ledger := newTestValidations(t)
	ledger.StrictCatalog = true

	// A claim whose payout reason cannot resolve in strict mode.
	v, err := svc.Create(CreateValidationInput{
		OwnerID:    "owner",
		GroupID:    "g1",
		ActionType: "off_catalog_action",
		XPAmount:   120,
	})
	require.NoError(t, err)

	_, err = svc.Approve(v.ID, "userB")
	require.NoError(t, err, "first vote never pays the owner")

	// The quorum vote fails at the payout and must take the vote and
	// the transition down with it.
	_, err = svc.Approve(v.ID, "userC")
	require.Error(t, err)

	got, err := svc.get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPending, got.Status)
	assert.Len(t, got.Validators, 1, "failed vote is unrecorded")

	var payouts int64
	require.NoError(t, svc.DB.Model(&models.XPTransaction{}).
		Where("user_id = ? AND reason = ?", "owner", "off_catalog_action").
		Count(&payouts).Error)
	assert.EqualValues(t, 0, payouts)

	// Same inputs succeed once the payout can commit.
	ledger.StrictCatalog = false
	updated, err := svc.Approve(v.ID, "userC")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationApproved, updated.Status)

	require.NoError(t, svc.DB.Model(&models.XPTransaction{}).
		Where("user_id = ? AND reason = ?", "owner", "off_catalog_action").
		Count(&payouts).Error)
	assert.EqualValues(t, 1, payouts)
}

func TestSelfApprovalForbidden(t *testing.T) {
	svc, _ := newTestValidations(t)
	v := createClaim(t, svc)

	_, err := svc.Approve(v.ID, "owner")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Reject(v.ID, "owner")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDoubleVoteForbidden(t *testing.T) {
	svc, _ := newTestValidations(t)
	v := createClaim(t, svc)

	_, err := svc.Approve(v.ID, "userB")
	require.NoError(t, err)

	_, err = svc.Approve(v.ID, "userB")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSingleRejectionIsTerminal(t *testing.T) {
	svc, _ := newTestValidations(t)
	v := createClaim(t, svc)

	updated, err := svc.Reject(v.ID, "userB")
	require.NoError(t, err)
	assert.Equal(t, models.ValidationRejected, updated.Status)
	assert.NotNil(t, updated.ResolvedAt)

	// Approvals cannot out-vote a rejection.
	_, err = svc.Approve(v.ID, "userC")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.EqualValues(t, 0, ownerPayoutCount(t, svc))
}

func TestExpireStale(t *testing.T) {
	svc, _ := newTestValidations(t)

	// Claim created 8 days ago, still pending.
	svc.Now = func() time.Time { return time.Now().UTC().AddDate(0, 0, -8) }
	v := createClaim(t, svc)
	svc.Now = time.Now

	expired, err := svc.ExpireStale(DefaultValidationTTL)
	require.NoError(t, err)
	assert.EqualValues(t, 1, expired)

	got, err := svc.get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationExpired, got.Status)
	assert.NotNil(t, got.ResolvedAt)
	assert.EqualValues(t, 0, ownerPayoutCount(t, svc), "expiry grants nothing")

	// The sweep is idempotent.
	expired, err = svc.ExpireStale(DefaultValidationTTL)
	require.NoError(t, err)
	assert.EqualValues(t, 0, expired)

	// And the terminal state is final.
	_, err = svc.Approve(v.ID, "userB")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFreshClaimSurvivesSweep(t *testing.T) {
	svc, _ := newTestValidations(t)
	v := createClaim(t, svc)

	expired, err := svc.ExpireStale(DefaultValidationTTL)
	require.NoError(t, err)
	assert.EqualValues(t, 0, expired)

	got, err := svc.get(v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationPending, got.Status)
}

func TestApproveUnknownValidation(t *testing.T) {
	svc, _ := newTestValidations(t)

	_, err := svc.Approve("no-such-id", "userB")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingQueueHidesOwnClaims(t *testing.T) {
	svc, _ := newTestValidations(t)

	mine := createClaim(t, svc)
	theirs, err := svc.Create(CreateValidationInput{
		OwnerID:    "userB",
		GroupID:    "g1",
		ActionType: models.ReasonWingmanAssist,
	})
	require.NoError(t, err)

	queue, err := svc.ListPendingForGroup("g1", "owner")
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, theirs.ID, queue[0].ID)

	all, err := svc.ListPendingForGroup("g1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	own, err := svc.ListByOwner("owner")
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)
}
