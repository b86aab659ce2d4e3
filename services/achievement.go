package services

import (
	"context"
	"errors"

	"orbit-progression-service/metrics"
	"orbit-progression-service/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AchievementDefinition is a declarative unlock rule. Check must be a
// pure read over durable state so Evaluate stays idempotent and safe to
// run after every state-changing action without a scheduler.
type AchievementDefinition struct {
	Type        models.AchievementType
	Name        string
	Description string
	XPReward    int
	Check       func(db *gorm.DB, userID, groupID string) (bool, error)
}

// Slug derives the asset key the host UI uses for the achievement icon.
func (d AchievementDefinition) Slug() string {
	return slug.Make(d.Name)
}

// AchievementDefinitions is evaluated in order; earlier entries unlock
// first when several become true at once.
var AchievementDefinitions = []AchievementDefinition{
	{
		Type:        models.AchievementFirstPartner,
		Name:        "First Contact",
		Description: "Added your first partner to the tracker",
		XPReward:    50,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			return hasReason(db, userID, models.ReasonPartnerAdded)
		},
	},
	{
		Type:        models.AchievementSocialButterfly,
		Name:        "Social Butterfly",
		Description: "Tracked five different partners",
		XPReward:    150,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			n, err := distinctPartners(db, userID, models.ReasonPartnerAdded)
			return n >= 5, err
		},
	},
	{
		Type:        models.AchievementCommitted,
		Name:        "Committed",
		Description: "Reached exclusive status with a partner",
		XPReward:    200,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			return hasReason(db, userID, models.ReasonStatusExclusive)
		},
	},
	{
		Type:        models.AchievementConsistentWeek,
		Name:        "Creature of Habit",
		Description: "Logged activity seven days in a row",
		XPReward:    100,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			prog, err := progressFor(db, userID)
			if err != nil {
				return false, err
			}
			return prog.StreakCount >= 7, nil
		},
	},
	{
		Type:        models.AchievementStreakLegend,
		Name:        "Streak Legend",
		Description: "Thirty consecutive days of activity",
		XPReward:    1000,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			prog, err := progressFor(db, userID)
			if err != nil {
				return false, err
			}
			return prog.StreakCount >= 30, nil
		},
	},
	{
		Type:        models.AchievementRisingStar,
		Name:        "Rising Star",
		Description: "Reached level 5",
		XPReward:    250,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			prog, err := progressFor(db, userID)
			if err != nil {
				return false, err
			}
			return prog.Level >= 5, nil
		},
	},
	{
		Type:        models.AchievementOrbitMaster,
		Name:        "Orbit Master",
		Description: "Reached level 10",
		XPReward:    500,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			prog, err := progressFor(db, userID)
			if err != nil {
				return false, err
			}
			return prog.Level >= 10, nil
		},
	},
	{
		Type:        models.AchievementTrustedValidator,
		Name:        "Trusted Validator",
		Description: "Voted on ten peer validations",
		XPReward:    300,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			n, err := countReason(db, userID, models.ReasonPeerValidation)
			return n >= 10, err
		},
	},
	{
		Type:        models.AchievementCleanRecord,
		Name:        "Clean Record",
		Description: "Earned 1000 XP without a single red flag",
		XPReward:    200,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			prog, err := progressFor(db, userID)
			if err != nil {
				return false, err
			}
			if prog.TotalXPEarned < 1000 {
				return false, nil
			}
			var flags int64
			err = db.Model(&models.XPTransaction{}).
				Where("user_id = ? AND category = ?", userID, models.CategoryRedFlag).
				Count(&flags).Error
			return flags == 0, err
		},
	},
	{
		Type:        models.AchievementSeasoned,
		Name:        "Seasoned",
		Description: "Earned 5000 lifetime XP",
		XPReward:    400,
		Check: func(db *gorm.DB, userID, _ string) (bool, error) {
			prog, err := progressFor(db, userID)
			if err != nil {
				return false, err
			}
			return prog.TotalXPEarned >= 5000, nil
		},
	},
}

// AchievementService evaluates the definition list and records unlocks.
type AchievementService struct {
	DB     *gorm.DB
	Log    *logrus.Logger
	Ledger *LedgerService
	Events *EventPublisher

	Definitions []AchievementDefinition
}

func NewAchievementService(db *gorm.DB, log *logrus.Logger, ledger *LedgerService) *AchievementService {
	return &AchievementService{
		DB:          db,
		Log:         log,
		Ledger:      ledger,
		Definitions: AchievementDefinitions,
	}
}

// Evaluate checks every definition for the user and unlocks any newly
// satisfied one, awarding its XP through the ledger. Returns the list
// of new unlocks (possibly empty). A racing duplicate insert means the
// other caller owns the unlock: skip the XP, move on.
func (s *AchievementService) Evaluate(userID, groupID string) ([]models.Achievement, error) {
	var existing []models.Achievement
	if err := s.DB.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
		return nil, err
	}
	unlocked := make(map[models.AchievementType]struct{}, len(existing))
	for _, a := range existing {
		unlocked[a.AchievementType] = struct{}{}
	}

	var newly []models.Achievement
	for _, def := range s.Definitions {
		if _, ok := unlocked[def.Type]; ok {
			continue
		}

		satisfied, err := def.Check(s.DB, userID, groupID)
		if err != nil {
			return newly, err
		}
		if !satisfied {
			continue
		}

		ach := models.Achievement{
			ID:              uuid.NewString(),
			UserID:          userID,
			AchievementType: def.Type,
			XPReward:        def.XPReward,
		}
		// The unlock record and its XP commit together; a failed award
		// must not leave a paid-nothing unlock behind.
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&ach).Error; err != nil {
				return err
			}
			_, err := s.Ledger.WithTx(tx).AwardFixed(AwardInput{
				UserID:   userID,
				GroupID:  groupID,
				Reason:   models.ReasonAchievementUnlocked,
				Metadata: map[string]string{"achievement_type": string(def.Type)},
			}, def.XPReward)
			return err
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Already unlocked by a concurrent evaluation, no XP here.
			continue
		}
		if err != nil {
			return newly, err
		}

		metrics.AchievementsUnlocked.Inc()
		s.Events.PublishAchievementUnlocked(context.Background(), AchievementUnlockedEvent{
			UserID:          userID,
			GroupID:         groupID,
			AchievementType: def.Type,
			Name:            def.Name,
			XPReward:        def.XPReward,
		})
		s.Log.WithFields(logrus.Fields{
			"user_id":     userID,
			"achievement": def.Type,
			"xp_reward":   def.XPReward,
		}).Info("achievement unlocked")

		newly = append(newly, ach)
	}
	return newly, nil
}

// ListForUser returns the user's unlock records, newest first.
func (s *AchievementService) ListForUser(userID string) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := s.DB.Where("user_id = ?", userID).
		Order("unlocked_at DESC").
		Find(&achievements).Error
	return achievements, err
}

// DefinitionFor looks up the static definition behind an unlock record.
func (s *AchievementService) DefinitionFor(t models.AchievementType) (AchievementDefinition, bool) {
	for _, def := range s.Definitions {
		if def.Type == t {
			return def, true
		}
	}
	return AchievementDefinition{}, false
}

func hasReason(db *gorm.DB, userID string, reason models.RewardReason) (bool, error) {
	n, err := countReason(db, userID, reason)
	return n > 0, err
}

func countReason(db *gorm.DB, userID string, reason models.RewardReason) (int64, error) {
	var count int64
	err := db.Model(&models.XPTransaction{}).
		Where("user_id = ? AND reason = ?", userID, reason).
		Count(&count).Error
	return count, err
}

func distinctPartners(db *gorm.DB, userID string, reason models.RewardReason) (int64, error) {
	var count int64
	err := db.Model(&models.XPTransaction{}).
		Where("user_id = ? AND reason = ? AND related_entity_id <> ''", userID, reason).
		Distinct("related_entity_id").
		Count(&count).Error
	return count, err
}

func progressFor(db *gorm.DB, userID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := db.Where("user_id = ?", userID).First(&prog).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserProgress{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	return &prog, nil
}
