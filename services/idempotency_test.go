package services

import (
	"testing"
	"time"

	"orbit-progression-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfWeekIsSunday(t *testing.T) {
	// Wednesday 2025-09-03 → Sunday 2025-08-31 00:00 UTC
	wed := time.Date(2025, 9, 3, 15, 42, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), StartOfWeek(wed))

	// A Sunday maps to itself at midnight.
	sun := time.Date(2025, 8, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), StartOfWeek(sun))
}

func TestWindowBucket(t *testing.T) {
	at := time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "M:2025-09", WindowBucket(models.WindowCalendarMonth, at))
	assert.Equal(t, "W:2025-08-31", WindowBucket(models.WindowCalendarWeek, at))
	assert.Equal(t, "", WindowBucket(models.WindowNone, at))
}

func TestGuardAllowRespectsMonthBoundary(t *testing.T) {
	db := newTestDB(t)
	guard := NewIdempotencyGuard(db)

	now := time.Date(2025, 9, 15, 10, 0, 0, 0, time.UTC)

	// A matching transaction from last month does not block.
	lastMonth := models.XPTransaction{
		ID: "txn-old", UserID: "u1", GroupID: "g1", Amount: 100,
		Reason: models.ReasonLowSimpIndex, Category: models.CategoryPerformance,
		RelatedEntityID: "partner-1", DedupeKey: "M:2025-08",
		CreatedAt: time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&lastMonth).Error)

	ok, err := guard.Allow("u1", models.ReasonLowSimpIndex, "partner-1", models.WindowCalendarMonth, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// One inside the current month does.
	thisMonth := models.XPTransaction{
		ID: "txn-new", UserID: "u1", GroupID: "g1", Amount: 100,
		Reason: models.ReasonLowSimpIndex, Category: models.CategoryPerformance,
		RelatedEntityID: "partner-1", DedupeKey: "M:2025-09",
		CreatedAt: time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(&thisMonth).Error)

	ok, err = guard.Allow("u1", models.ReasonLowSimpIndex, "partner-1", models.WindowCalendarMonth, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different partner is a different window.
	ok, err = guard.Allow("u1", models.ReasonLowSimpIndex, "partner-2", models.WindowCalendarMonth, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGuardAllowUnboundedWindow(t *testing.T) {
	guard := NewIdempotencyGuard(newTestDB(t))

	ok, err := guard.Allow("u1", models.ReasonTimelineEventAdded, "", models.WindowNone, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}
