package models

import "time"

// AchievementType keys into the static definition list in services.
type AchievementType string

const (
	AchievementFirstPartner     AchievementType = "first_partner"
	AchievementSocialButterfly  AchievementType = "social_butterfly"
	AchievementCommitted        AchievementType = "committed"
	AchievementConsistentWeek   AchievementType = "consistent_week"
	AchievementStreakLegend     AchievementType = "streak_legend"
	AchievementRisingStar       AchievementType = "rising_star"
	AchievementOrbitMaster      AchievementType = "orbit_master"
	AchievementTrustedValidator AchievementType = "trusted_validator"
	AchievementCleanRecord      AchievementType = "clean_record"
	AchievementSeasoned         AchievementType = "seasoned"
)

// Achievement is an unlock record. The unique index on
// (user_id, achievement_type) is the at-most-once guarantee: a racing
// second insert fails with a duplicate-key error and the losing caller
// treats it as "already unlocked, no XP". XPReward is a copy of the
// definition's reward at unlock time, kept for audit even if the
// definition is retuned later.
type Achievement struct {
	ID              string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string          `gorm:"index:idx_achievement_user_type,unique,priority:1;not null" json:"user_id"`
	AchievementType AchievementType `gorm:"index:idx_achievement_user_type,unique,priority:2;not null" json:"achievement_type"`
	XPReward        int             `gorm:"not null" json:"xp_reward"`
	UnlockedAt      time.Time       `gorm:"autoCreateTime" json:"unlocked_at"`
}
