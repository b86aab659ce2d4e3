package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orbit-progression-service/metrics"
	"orbit-progression-service/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultLevelXPUnit is the XP required per level: reaching level n+1
// from level n costs n * unit, so large single awards can cross several
// thresholds at once.
const DefaultLevelXPUnit = 1000

// weeklyBonusMinDays: the weekly consistency bonus only fires after
// qualifying events on this many distinct calendar days inside a
// rolling 7-day lookback. The dedupe cap is the fixed calendar week;
// the trigger deliberately is not.
const weeklyBonusMinDays = 3

const maxProgressRetries = 5

type AwardInput struct {
	UserID          string
	GroupID         string
	Reason          models.RewardReason
	RelatedEntityID string
	Metadata        map[string]string
}

type AwardResult struct {
	Denied        bool                  `json:"denied"`
	Transaction   *models.XPTransaction `json:"transaction,omitempty"`
	NewXP         int                   `json:"new_xp"`
	NewLevel      int                   `json:"new_level"`
	LeveledUp     bool                  `json:"leveled_up"`
	TotalXPEarned int                   `json:"total_xp_earned"`
}

// LedgerService orchestrates catalog lookup, idempotency, the
// append-only transaction write and the atomic aggregate update.
type LedgerService struct {
	DB    *gorm.DB
	Log   *logrus.Logger
	Guard *IdempotencyGuard

	LevelXPUnit int
	// StrictCatalog turns a catalog miss into an error instead of a
	// zero-amount warning. On in development, off in production so a
	// reward path never crashes the host flow.
	StrictCatalog bool

	Events      *EventPublisher
	Leaderboard *LeaderboardService

	Now func() time.Time
}

func NewLedgerService(db *gorm.DB, log *logrus.Logger) *LedgerService {
	return &LedgerService{
		DB:          db,
		Log:         log,
		Guard:       NewIdempotencyGuard(db),
		LevelXPUnit: DefaultLevelXPUnit,
		Now:         time.Now,
	}
}

// WithTx returns a copy of the service bound to tx, so a caller can
// make an award atomic with its own writes.
func (s *LedgerService) WithTx(tx *gorm.DB) *LedgerService {
	c := *s
	c.DB = tx
	c.Guard = NewIdempotencyGuard(tx)
	return &c
}

// Award grants the catalog amount for a reason, subject to the reason's
// dedupe window. A denied award is reported on the result, not as an
// error, and leaves no side effects.
func (s *LedgerService) Award(in AwardInput) (*AwardResult, error) {
	def, err := s.lookup(in.Reason)
	if err != nil {
		return nil, err
	}
	return s.commit(in, def.Category, def.Window, def.Amount)
}

// AwardFixed grants a caller-supplied amount under a catalog reason,
// with no dedupe window. Used for achievement rewards and approved
// peer-claim payouts, where the amount lives on the unlock/validation
// record and uniqueness is already guaranteed by that record.
func (s *LedgerService) AwardFixed(in AwardInput, amount int) (*AwardResult, error) {
	def, err := s.lookup(in.Reason)
	if err != nil {
		return nil, err
	}
	return s.commit(in, def.Category, models.WindowNone, amount)
}

func (s *LedgerService) lookup(reason models.RewardReason) (models.RewardDefinition, error) {
	def, ok := models.LookupReward(reason)
	if !ok {
		if s.StrictCatalog {
			return def, fmt.Errorf("%w: no catalog entry for reason %q", ErrNotFound, reason)
		}
		s.Log.WithField("reason", reason).Warn("reward reason missing from catalog, defaulting to 0 XP")
		def = models.RewardDefinition{Amount: 0, Category: models.CategoryMilestone, Window: models.WindowNone}
	}
	return def, nil
}

func (s *LedgerService) commit(in AwardInput, category models.RewardCategory, window models.DedupeWindow, amount int) (*AwardResult, error) {
	now := s.Now()

	if in.Reason == models.ReasonWeeklyConsistencyBonus {
		days, err := s.qualifyingDays(in.UserID, now)
		if err != nil {
			return nil, err
		}
		if days < weeklyBonusMinDays {
			metrics.AwardsDenied.Inc()
			return &AwardResult{Denied: true}, nil
		}
	}

	// Advisory fast path; the unique dedupe index is the authority.
	if window != models.WindowNone {
		allowed, err := s.Guard.Allow(in.UserID, in.Reason, in.RelatedEntityID, window, now)
		if err != nil {
			return nil, err
		}
		if !allowed {
			metrics.AwardsDenied.Inc()
			return &AwardResult{Denied: true}, nil
		}
	}

	txn := &models.XPTransaction{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		GroupID:         in.GroupID,
		Amount:          amount,
		Reason:          in.Reason,
		Category:        category,
		RelatedEntityID: in.RelatedEntityID,
		Metadata:        in.Metadata,
		CreatedAt:       now,
	}
	txn.DedupeKey = WindowBucket(window, now)
	if txn.DedupeKey == "" {
		txn.DedupeKey = txn.ID
	}

	result := &AwardResult{Transaction: txn}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		return s.applyDelta(tx, in.UserID, amount, now, result)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the window race; the other caller's award committed.
			metrics.AwardsDenied.Inc()
			return &AwardResult{Denied: true}, nil
		}
		return nil, err
	}

	metrics.XPAwarded.WithLabelValues(string(category)).Add(float64(max(amount, 0)))
	s.Leaderboard.Record(context.Background(), in.GroupID, in.UserID, amount)
	if result.LeveledUp {
		metrics.LevelUps.Inc()
		s.Events.PublishLevelUp(context.Background(), LevelUpEvent{
			UserID:   in.UserID,
			GroupID:  in.GroupID,
			NewLevel: result.NewLevel,
			NewXP:    result.NewXP,
		})
	}

	s.Log.WithFields(logrus.Fields{
		"user_id": in.UserID,
		"reason":  in.Reason,
		"amount":  amount,
		"level":   result.NewLevel,
		"xp":      result.NewXP,
	}).Info("xp awarded")

	return result, nil
}

// applyDelta folds an amount into UserProgress with an optimistic
// version CAS: read, renormalize level in Go, then update guarded on
// the version we read. A lost race re-reads and retries.
func (s *LedgerService) applyDelta(tx *gorm.DB, userID string, amount int, now time.Time, out *AwardResult) error {
	for attempt := 0; attempt < maxProgressRetries; attempt++ {
		prog, err := ensureProgress(tx, userID)
		if err != nil {
			return err
		}

		newXP := prog.CurrentXP + amount
		if newXP < 0 {
			// Penalties clamp at the level floor; level never decreases.
			newXP = 0
		}
		level := prog.Level
		leveled := false
		for newXP >= level*s.LevelXPUnit {
			newXP -= level * s.LevelXPUnit
			level++
			leveled = true
		}
		earned := prog.TotalXPEarned
		if amount > 0 {
			earned += amount
		}

		updates := map[string]interface{}{
			"current_xp":      newXP,
			"level":           level,
			"total_xp_earned": earned,
			"version":         prog.Version + 1,
		}
		if leveled {
			updates["last_level_up_at"] = now
		}

		res := tx.Model(&models.UserProgress{}).
			Where("user_id = ? AND version = ?", userID, prog.Version).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			out.NewXP = newXP
			out.NewLevel = level
			out.LeveledUp = leveled
			out.TotalXPEarned = earned
			return nil
		}
		// Someone else bumped the version between read and write.
	}
	return ErrConcurrentUpdate
}

// qualifyingDays counts distinct calendar days with consistency events
// in the trailing rolling 7 days (the bonus itself never qualifies).
func (s *LedgerService) qualifyingDays(userID string, now time.Time) (int, error) {
	since := now.AddDate(0, 0, -7)
	var stamps []time.Time
	err := s.DB.Model(&models.XPTransaction{}).
		Where("user_id = ? AND category = ? AND reason <> ? AND created_at >= ?",
			userID, models.CategoryConsistency, models.ReasonWeeklyConsistencyBonus, since).
		Pluck("created_at", &stamps).Error
	if err != nil {
		return 0, err
	}
	days := make(map[string]struct{}, len(stamps))
	for _, ts := range stamps {
		days[ts.UTC().Format("2006-01-02")] = struct{}{}
	}
	return len(days), nil
}

// GetProgress returns the aggregate snapshot, creating the row on first
// touch so the host UI never sees a missing record.
func (s *LedgerService) GetProgress(userID string) (*models.UserProgress, error) {
	var prog *models.UserProgress
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		prog, err = ensureProgress(tx, userID)
		return err
	})
	return prog, err
}

// ListTransactions returns the user's ledger, newest first.
func (s *LedgerService) ListTransactions(userID string, limit, offset int) ([]models.XPTransaction, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var txns []models.XPTransaction
	err := s.DB.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&txns).Error
	return txns, err
}

// ensureProgress fetches or creates the aggregate row (idempotent under
// the unique user_id index; a lost create race falls back to a re-read).
func ensureProgress(tx *gorm.DB, userID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := tx.Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prog = models.UserProgress{
			ID:     uuid.NewString(),
			UserID: userID,
			Level:  1,
		}
		if createErr := tx.Create(&prog).Error; createErr != nil {
			if errors.Is(createErr, gorm.ErrDuplicatedKey) {
				if err := tx.Where("user_id = ?", userID).First(&prog).Error; err != nil {
					return nil, err
				}
				return &prog, nil
			}
			return nil, createErr
		}
		return &prog, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}
