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

// DefaultRequiredValidations is the quorum size when a claim does not
// ask for one explicitly.
const DefaultRequiredValidations = 2

// DefaultValidationTTL: pending claims older than this are expired by
// the sweep, granting nothing.
const DefaultValidationTTL = 7 * 24 * time.Hour

type CreateValidationInput struct {
	OwnerID             string
	GroupID             string
	ActionType          models.RewardReason
	XPAmount            int
	RelatedEntityID     string
	Metadata            map[string]string
	RequiredValidations int
}

// PeerValidationService runs the quorum state machine:
// pending → approved | rejected | expired, nothing else. Approval needs
// N independent votes; one rejection is final. All transitions are
// version-guarded so exactly one caller performs each of them.
type PeerValidationService struct {
	DB     *gorm.DB
	Log    *logrus.Logger
	Ledger *LedgerService
	Events *EventPublisher

	RequiredValidations int
	Now                 func() time.Time
}

func NewPeerValidationService(db *gorm.DB, log *logrus.Logger, ledger *LedgerService) *PeerValidationService {
	return &PeerValidationService{
		DB:                  db,
		Log:                 log,
		Ledger:              ledger,
		RequiredValidations: DefaultRequiredValidations,
		Now:                 time.Now,
	}
}

// Create opens a pending claim. XPAmount 0 falls back to the catalog
// amount for the action type, so most callers only name the action.
func (s *PeerValidationService) Create(in CreateValidationInput) (*models.PeerValidation, error) {
	required := in.RequiredValidations
	if required <= 0 {
		required = s.RequiredValidations
	}
	xp := in.XPAmount
	if xp == 0 {
		if def, ok := models.LookupReward(in.ActionType); ok {
			xp = def.Amount
		} else {
			s.Log.WithField("action_type", in.ActionType).Warn("validation claim for unknown reason, owner payout will be 0")
		}
	}

	v := &models.PeerValidation{
		ID:                  uuid.NewString(),
		OwnerID:             in.OwnerID,
		GroupID:             in.GroupID,
		ActionType:          in.ActionType,
		XPAmount:            xp,
		RelatedEntityID:     in.RelatedEntityID,
		Metadata:            in.Metadata,
		Status:              models.ValidationPending,
		Validators:          []string{},
		RequiredValidations: required,
		CreatedAt:           s.Now(),
	}
	if err := s.DB.Create(v).Error; err != nil {
		return nil, err
	}

	// Putting a claim up for review is itself a small social reward.
	if _, err := s.Ledger.Award(AwardInput{
		UserID:          in.OwnerID,
		GroupID:         in.GroupID,
		Reason:          models.ReasonValidationSubmitted,
		RelatedEntityID: v.ID,
	}); err != nil {
		s.Log.WithError(err).Warn("failed to award validation submission")
	}

	return v, nil
}

// Approve records a vote. The append and the quorum check are one
// version-guarded write, so two near-simultaneous approvers cannot both
// observe "one short of quorum" and both pay the owner. The validator
// gets the flat participation reward whatever the eventual outcome.
func (s *PeerValidationService) Approve(validationID, validatorID string) (*models.PeerValidation, error) {
	for attempt := 0; attempt < maxProgressRetries; attempt++ {
		v, err := s.get(validationID)
		if err != nil {
			return nil, err
		}
		if v.Resolved() {
			return nil, fmt.Errorf("%w: validation is %s", ErrInvalidTransition, v.Status)
		}
		if validatorID == v.OwnerID {
			return nil, fmt.Errorf("%w: owner cannot vote on their own claim", ErrInvalidTransition)
		}
		if v.HasValidator(validatorID) {
			return nil, fmt.Errorf("%w: validator already approved", ErrInvalidTransition)
		}

		validators := append(append([]string{}, v.Validators...), validatorID)
		approved := len(validators) >= v.RequiredValidations

		updates := models.PeerValidation{Validators: validators, Version: v.Version + 1}
		var resolvedAt time.Time
		if approved {
			resolvedAt = s.Now()
			updates.Status = models.ValidationApproved
			updates.ResolvedAt = &resolvedAt
		}

		// The vote, the quorum transition and every XP grant they cause
		// commit or roll back together. A failed award leaves the claim
		// pending with the vote unrecorded, so the caller can retry.
		var lost bool
		err = s.DB.Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.PeerValidation{}).
				Where("id = ? AND version = ?", v.ID, v.Version).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				lost = true
				return nil
			}

			if _, err := s.Ledger.WithTx(tx).Award(AwardInput{
				UserID:          validatorID,
				GroupID:         v.GroupID,
				Reason:          models.ReasonPeerValidation,
				RelatedEntityID: v.ID,
			}); err != nil {
				return err
			}

			if approved {
				if _, err := s.Ledger.WithTx(tx).AwardFixed(AwardInput{
					UserID:          v.OwnerID,
					GroupID:         v.GroupID,
					Reason:          v.ActionType,
					RelatedEntityID: v.RelatedEntityID,
					Metadata:        v.Metadata,
				}, v.XPAmount); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if lost {
			// Lost the CAS to another vote or the sweep; re-read.
			continue
		}

		v.Validators = validators
		v.Version++
		if approved {
			v.Status = models.ValidationApproved
			v.ResolvedAt = &resolvedAt

			metrics.ValidationsResolved.WithLabelValues(string(models.ValidationApproved)).Inc()
			s.Events.PublishValidationResolved(context.Background(), ValidationResolvedEvent{
				ValidationID: v.ID,
				OwnerID:      v.OwnerID,
				GroupID:      v.GroupID,
				Status:       v.Status,
				XPAmount:     v.XPAmount,
			})
		}

		s.Log.WithFields(logrus.Fields{
			"validation_id": v.ID,
			"validator_id":  validatorID,
			"votes":         len(validators),
			"required":      v.RequiredValidations,
			"status":        v.Status,
		}).Info("validation vote recorded")

		return v, nil
	}
	return nil, ErrConcurrentUpdate
}

// Reject terminates a pending claim immediately; approval and
// rejection are intentionally asymmetric. No XP moves.
func (s *PeerValidationService) Reject(validationID, validatorID string) (*models.PeerValidation, error) {
	for attempt := 0; attempt < maxProgressRetries; attempt++ {
		v, err := s.get(validationID)
		if err != nil {
			return nil, err
		}
		if v.Resolved() {
			return nil, fmt.Errorf("%w: validation is %s", ErrInvalidTransition, v.Status)
		}
		if validatorID == v.OwnerID {
			return nil, fmt.Errorf("%w: owner cannot vote on their own claim", ErrInvalidTransition)
		}

		resolvedAt := s.Now()
		res := s.DB.Model(&models.PeerValidation{}).
			Where("id = ? AND version = ?", v.ID, v.Version).
			Updates(models.PeerValidation{
				Status:     models.ValidationRejected,
				ResolvedAt: &resolvedAt,
				Version:    v.Version + 1,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}

		v.Status = models.ValidationRejected
		v.ResolvedAt = &resolvedAt
		v.Version++

		metrics.ValidationsResolved.WithLabelValues(string(models.ValidationRejected)).Inc()
		s.Events.PublishValidationResolved(context.Background(), ValidationResolvedEvent{
			ValidationID: v.ID,
			OwnerID:      v.OwnerID,
			GroupID:      v.GroupID,
			Status:       v.Status,
			XPAmount:     v.XPAmount,
		})
		s.Log.WithFields(logrus.Fields{
			"validation_id": v.ID,
			"validator_id":  validatorID,
		}).Info("validation rejected")

		return v, nil
	}
	return nil, ErrConcurrentUpdate
}

// ExpireStale bulk-transitions pending claims older than the cutoff to
// expired. Run from the gocron sweep; safe to run at any time.
func (s *PeerValidationService) ExpireStale(olderThan time.Duration) (int64, error) {
	now := s.Now()
	cutoff := now.Add(-olderThan)

	res := s.DB.Model(&models.PeerValidation{}).
		Where("status = ? AND created_at < ?", models.ValidationPending, cutoff).
		Updates(map[string]interface{}{
			"status":      models.ValidationExpired,
			"resolved_at": now,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		metrics.ValidationsResolved.WithLabelValues(string(models.ValidationExpired)).Add(float64(res.RowsAffected))
		s.Log.WithField("expired", res.RowsAffected).Info("expired stale validations")
	}
	return res.RowsAffected, nil
}

// ListPendingForGroup returns a group's open claims, oldest first.
// excludeUserID hides a user's own claims from their review queue.
func (s *PeerValidationService) ListPendingForGroup(groupID, excludeUserID string) ([]models.PeerValidation, error) {
	q := s.DB.Where("group_id = ? AND status = ?", groupID, models.ValidationPending)
	if excludeUserID != "" {
		q = q.Where("owner_id <> ?", excludeUserID)
	}
	var validations []models.PeerValidation
	err := q.Order("created_at ASC").Find(&validations).Error
	return validations, err
}

// ListByOwner returns every claim a user has made, newest first.
func (s *PeerValidationService) ListByOwner(ownerID string) ([]models.PeerValidation, error) {
	var validations []models.PeerValidation
	err := s.DB.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&validations).Error
	return validations, err
}

func (s *PeerValidationService) get(id string) (*models.PeerValidation, error) {
	var v models.PeerValidation
	err := s.DB.Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: validation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
