package services

import (
	"time"

	"orbit-progression-service/models"

	"gorm.io/gorm"
)

// StartOfWeek returns Sunday 00:00 of the week containing t (UTC).
func StartOfWeek(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// StartOfMonth returns day 1, 00:00 of the month containing t (UTC).
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// WindowBucket renders the dedupe bucket for a windowed reason at a
// point in time. Unbounded reasons get no bucket; the ledger uses the
// transaction's own id there so the unique index never collides.
func WindowBucket(window models.DedupeWindow, at time.Time) string {
	switch window {
	case models.WindowCalendarWeek:
		return "W:" + StartOfWeek(at).Format("2006-01-02")
	case models.WindowCalendarMonth:
		return "M:" + at.UTC().Format("2006-01")
	default:
		return ""
	}
}

// windowStart returns the lower bound of the current window, or the
// zero time for WindowNone.
func windowStart(window models.DedupeWindow, at time.Time) time.Time {
	switch window {
	case models.WindowCalendarWeek:
		return StartOfWeek(at)
	case models.WindowCalendarMonth:
		return StartOfMonth(at)
	default:
		return time.Time{}
	}
}

// IdempotencyGuard answers "has this (user, reason, related entity)
// already been rewarded inside the current window?". The answer is
// advisory (two concurrent awards can both pass it), so the ledger
// backstops it with the unique dedupe index at insert time.
type IdempotencyGuard struct {
	DB *gorm.DB
}

func NewIdempotencyGuard(db *gorm.DB) *IdempotencyGuard {
	return &IdempotencyGuard{DB: db}
}

func (g *IdempotencyGuard) Allow(userID string, reason models.RewardReason, relatedEntityID string, window models.DedupeWindow, at time.Time) (bool, error) {
	if window == models.WindowNone {
		return true, nil
	}

	var count int64
	err := g.DB.Model(&models.XPTransaction{}).
		Where("user_id = ? AND reason = ? AND related_entity_id = ? AND created_at >= ?",
			userID, reason, relatedEntityID, windowStart(window, at)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
