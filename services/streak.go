package services

import (
	"time"

	"orbit-progression-service/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StreakService maintains the consecutive-day activity counter that
// feeds the streak achievements.
type StreakService struct {
	DB  *gorm.DB
	Log *logrus.Logger
}

func NewStreakService(db *gorm.DB, log *logrus.Logger) *StreakService {
	return &StreakService{DB: db, Log: log}
}

// Touch records activity for a calendar day: same day is a no-op,
// the day after the last activity extends the streak, anything else
// resets it to 1. Version-guarded like every aggregate write.
func (s *StreakService) Touch(userID string, today time.Time) (*models.UserProgress, error) {
	day := truncateToDay(today)

	for attempt := 0; attempt < maxProgressRetries; attempt++ {
		prog, err := ensureProgress(s.DB, userID)
		if err != nil {
			return nil, err
		}

		streak := 1
		if prog.LastActivityDate != nil {
			last := truncateToDay(*prog.LastActivityDate)
			switch {
			case last.Equal(day):
				// Already counted today.
				return prog, nil
			case day.Sub(last) == 24*time.Hour:
				streak = prog.StreakCount + 1
			}
		}

		res := s.DB.Model(&models.UserProgress{}).
			Where("user_id = ? AND version = ?", userID, prog.Version).
			Updates(map[string]interface{}{
				"streak_count":       streak,
				"last_activity_date": day,
				"version":            prog.Version + 1,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			prog.StreakCount = streak
			prog.LastActivityDate = &day
			prog.Version++
			return prog, nil
		}
	}
	return nil, ErrConcurrentUpdate
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
