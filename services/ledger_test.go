package services

import (
	"fmt"
	"testing"
	"time"

	"orbit-progression-service/metrics"
	"orbit-progression-service/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardLevelUpCrossing(t *testing.T) {
	svc := newTestLedger(t)

	// 900 XP puts the user just below the level-2 threshold.
	res, err := svc.AwardFixed(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonTimelineEventAdded}, 900)
	require.NoError(t, err)
	assert.False(t, res.Denied)
	assert.Equal(t, 900, res.NewXP)
	assert.Equal(t, 1, res.NewLevel)
	assert.False(t, res.LeveledUp)

	// +150 crosses it: 1050 - 1000 = 50 into level 2.
	res, err = svc.AwardFixed(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonTimelineEventAdded}, 150)
	require.NoError(t, err)
	assert.Equal(t, 50, res.NewXP)
	assert.Equal(t, 2, res.NewLevel)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 1050, res.TotalXPEarned)
}

func TestAwardMultiLevelJump(t *testing.T) {
	svc := newTestLedger(t)

	// 3500 from level 1: -1000 → L2, -2000 → L3, 500 left over.
	res, err := svc.AwardFixed(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonTimelineEventAdded}, 3500)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NewLevel)
	assert.Equal(t, 500, res.NewXP)
	assert.True(t, res.LeveledUp)
}

func TestPenaltyClampsAtLevelFloor(t *testing.T) {
	svc := newTestLedger(t)

	_, err := svc.AwardFixed(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonTimelineEventAdded}, 100)
	require.NoError(t, err)

	res, err := svc.AwardFixed(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonSerialDatingPenalty}, -500)
	require.NoError(t, err)
	assert.False(t, res.Denied)
	assert.Equal(t, 0, res.NewXP, "current XP clamps at 0, never negative")
	assert.Equal(t, 1, res.NewLevel, "level never decreases")
	assert.Equal(t, 100, res.TotalXPEarned, "penalties do not reduce lifetime earned")

	// The penalty still appended a transaction.
	var count int64
	require.NoError(t, svc.DB.Model(&models.XPTransaction{}).Where("user_id = ?", "u1").Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestMonthlyWindowSecondAwardDenied(t *testing.T) {
	svc := newTestLedger(t)

	in := AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonLowSimpIndex, RelatedEntityID: "partner-1"}

	res, err := svc.Award(in)
	require.NoError(t, err)
	assert.False(t, res.Denied)
	assert.Equal(t, 100, res.Transaction.Amount)

	res, err = svc.Award(in)
	require.NoError(t, err)
	assert.True(t, res.Denied)

	var count int64
	require.NoError(t, svc.DB.Model(&models.XPTransaction{}).
		Where("user_id = ? AND reason = ?", "u1", models.ReasonLowSimpIndex).
		Count(&count).Error)
	assert.EqualValues(t, 1, count, "exactly one committed transaction")

	// Same reason for a different partner is a separate window.
	res, err = svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonLowSimpIndex, RelatedEntityID: "partner-2"})
	require.NoError(t, err)
	assert.False(t, res.Denied)
}

func TestWeeklyConsistencyBonusTriggerAndCap(t *testing.T) {
	svc := newTestLedger(t)

	// No qualifying activity yet: the bonus does not fire.
	res, err := svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonWeeklyConsistencyBonus})
	require.NoError(t, err)
	assert.True(t, res.Denied)

	// Qualifying events on three distinct days inside the rolling week.
	for i := 1; i <= 3; i++ {
		txn := models.XPTransaction{
			ID: uuid.NewString(), UserID: "u1", GroupID: "g1", Amount: 15,
			Reason: models.ReasonDailyCheckin, Category: models.CategoryConsistency,
			CreatedAt: time.Now().UTC().AddDate(0, 0, -i),
		}
		txn.DedupeKey = txn.ID
		require.NoError(t, svc.DB.Create(&txn).Error)
	}

	res, err = svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonWeeklyConsistencyBonus})
	require.NoError(t, err)
	assert.False(t, res.Denied)
	assert.Equal(t, 100, res.Transaction.Amount)

	// Calendar-week cap: a second bonus in the same week is denied even
	// though the trigger condition still holds.
	res, err = svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonWeeklyConsistencyBonus})
	require.NoError(t, err)
	assert.True(t, res.Denied)
}

func TestDenialsCountedForTriggerAndWindow(t *testing.T) {
	svc := newTestLedger(t)

	// Trigger miss: no qualifying activity for the weekly bonus.
	before := testutil.ToFloat64(metrics.AwardsDenied)
	res, err := svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonWeeklyConsistencyBonus})
	require.NoError(t, err)
	require.True(t, res.Denied)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AwardsDenied))

	// Window miss counts the same way.
	_, err = svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonLowSimpIndex, RelatedEntityID: "p1"})
	require.NoError(t, err)
	before = testutil.ToFloat64(metrics.AwardsDenied)
	res, err = svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: models.ReasonLowSimpIndex, RelatedEntityID: "p1"})
	require.NoError(t, err)
	require.True(t, res.Denied)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AwardsDenied))
}

func TestUnknownReasonStrictVsLenient(t *testing.T) {
	svc := newTestLedger(t)

	svc.StrictCatalog = true
	_, err := svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: "no_such_reason"})
	assert.ErrorIs(t, err, ErrNotFound)

	svc.StrictCatalog = false
	res, err := svc.Award(AwardInput{UserID: "u1", GroupID: "g1", Reason: "no_such_reason"})
	require.NoError(t, err)
	assert.False(t, res.Denied)
	assert.Equal(t, 0, res.Transaction.Amount)
}

func TestProgressReconstructableFromLedger(t *testing.T) {
	svc := newTestLedger(t)

	amounts := []int{400, 250, -100, 900, 30, -75, 2000, 5}
	for i, amount := range amounts {
		_, err := svc.AwardFixed(AwardInput{
			UserID:  "u1",
			GroupID: "g1",
			Reason:  models.ReasonTimelineEventAdded,
			Metadata: map[string]string{
				"seq": fmt.Sprintf("%d", i),
			},
		}, amount)
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, svc.DB.Model(&models.XPTransaction{}).Where("user_id = ?", "u1").Count(&count).Error)
	require.EqualValues(t, len(amounts), count)

	// Replay in commit order: fold amounts with the clamp and
	// threshold rules and compare against the cached aggregate.
	xp, level, earned := 0, 1, 0
	for _, amount := range amounts {
		xp += amount
		if xp < 0 {
			xp = 0
		}
		for xp >= level*svc.LevelXPUnit {
			xp -= level * svc.LevelXPUnit
			level++
		}
		if amount > 0 {
			earned += amount
		}
	}

	prog, err := svc.GetProgress("u1")
	require.NoError(t, err)
	assert.Equal(t, xp, prog.CurrentXP)
	assert.Equal(t, level, prog.Level)
	assert.Equal(t, earned, prog.TotalXPEarned)
}

func TestGetProgressCreatesRecord(t *testing.T) {
	svc := newTestLedger(t)

	prog, err := svc.GetProgress("fresh-user")
	require.NoError(t, err)
	assert.Equal(t, 1, prog.Level)
	assert.Equal(t, 0, prog.CurrentXP)

	// Idempotent on repeat.
	again, err := svc.GetProgress("fresh-user")
	require.NoError(t, err)
	assert.Equal(t, prog.ID, again.ID)
}
