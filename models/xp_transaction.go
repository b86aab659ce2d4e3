package models

import "time"

// XPTransaction is an immutable ledger entry. Rows are append-only:
// no UpdatedAt/DeletedAt, and nothing in the service layer mutates one
// after Create. The composite unique index on (user, reason, related
// entity, dedupe key) is what makes windowed awards race-safe: the
// second concurrent insert for the same window bucket fails at the
// store instead of double-crediting.
type XPTransaction struct {
	ID              string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string         `gorm:"index:idx_xp_txn_dedupe,unique,priority:1;not null" json:"user_id"`
	GroupID         string         `gorm:"index;not null" json:"group_id"`
	Amount          int            `gorm:"not null" json:"amount"` // signed; penalties are negative
	Reason          RewardReason   `gorm:"index:idx_xp_txn_dedupe,unique,priority:2;not null" json:"reason"`
	Category        RewardCategory `gorm:"not null" json:"category"`
	RelatedEntityID string         `gorm:"index:idx_xp_txn_dedupe,unique,priority:3" json:"related_entity_id,omitempty"` // e.g. the partner concerned; empty when n/a

	// DedupeKey is the window bucket for windowed reasons
	// ("M:2025-09", "W:2025-09-07") and the transaction's own id for
	// unbounded ones, so the unique index never trips for those.
	DedupeKey string `gorm:"index:idx_xp_txn_dedupe,unique,priority:4;not null" json:"-"`

	Metadata  map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}
