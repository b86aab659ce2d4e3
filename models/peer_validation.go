package models

import "time"

// ValidationStatus is the quorum state machine. pending is the only
// non-terminal state; approved/rejected/expired never transition out.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "pending"
	ValidationApproved ValidationStatus = "approved"
	ValidationRejected ValidationStatus = "rejected"
	ValidationExpired  ValidationStatus = "expired"
)

// PeerValidation is a claimed action awaiting social proof. Approval
// needs RequiredValidations independent votes; a single rejection is
// terminal (easy to veto, hard to approve). Validators holds approver
// ids, membership unique, order irrelevant. Version guards the
// append-and-check so two near-simultaneous approvers cannot both
// trigger the owner payout.
type PeerValidation struct {
	ID              string            `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID         string            `gorm:"index;not null" json:"owner_id"`
	GroupID         string            `gorm:"index;not null" json:"group_id"`
	ActionType      RewardReason      `gorm:"not null" json:"action_type"`
	XPAmount        int               `gorm:"not null" json:"xp_amount"`
	RelatedEntityID string            `json:"related_entity_id,omitempty"`
	Metadata        map[string]string `gorm:"serializer:json" json:"metadata,omitempty"`

	Status              ValidationStatus `gorm:"index;not null;default:'pending'" json:"status"`
	Validators          []string         `gorm:"serializer:json" json:"validators"`
	RequiredValidations int              `gorm:"not null;default:2" json:"required_validations"`

	Version int `gorm:"default:0" json:"-"`

	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the validation reached a terminal state.
func (v *PeerValidation) Resolved() bool {
	return v.Status != ValidationPending
}

// HasValidator reports whether the user already approved this request.
func (v *PeerValidation) HasValidator(userID string) bool {
	for _, id := range v.Validators {
		if id == userID {
			return true
		}
	}
	return false
}
