package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress is the denormalized per-user aggregate. CurrentXP and
// Level are always derivable by replaying the transaction log; this row
// caches them for O(1) reads and is updated in the same DB transaction
// as every ledger append. Version drives the optimistic-concurrency
// retry loop in the services; never update this row without it.
type UserProgress struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	CurrentXP int `gorm:"default:0" json:"current_xp"` // XP toward the current level, resets on level-up
	Level     int `gorm:"default:1" json:"level"`

	StreakCount      int        `gorm:"default:0" json:"streak_count"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`

	// Lifetime sum of positive awards only; penalties never reduce it.
	TotalXPEarned int `gorm:"default:0" json:"total_xp_earned"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Version int `gorm:"default:0" json:"-"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
