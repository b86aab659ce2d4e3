// handlers/validation_routes.go
package handlers

import (
	"orbit-progression-service/middleware"
	"orbit-progression-service/models"
	"orbit-progression-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupValidationRoutes(app *fiber.App, validations *services.PeerValidationService, achievements *services.AchievementService) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Post("/validations", func(c *fiber.Ctx) error {
		ownerID := c.Locals("user_id").(string)

		var req struct {
			GroupID             string              `json:"group_id"`
			ActionType          models.RewardReason `json:"action_type"`
			XPAmount            int                 `json:"xp_amount"`
			RelatedEntityID     string              `json:"related_entity_id"`
			Metadata            map[string]string   `json:"metadata"`
			RequiredValidations int                 `json:"required_validations"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.ActionType == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "action_type is required"})
		}
		if req.GroupID == "" {
			req.GroupID, _ = c.Locals("group_id").(string)
		}
		if req.GroupID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "group_id is required"})
		}

		v, err := validations.Create(services.CreateValidationInput{
			OwnerID:             ownerID,
			GroupID:             req.GroupID,
			ActionType:          req.ActionType,
			XPAmount:            req.XPAmount,
			RelatedEntityID:     req.RelatedEntityID,
			Metadata:            req.Metadata,
			RequiredValidations: req.RequiredValidations,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create validation",
				"cause": err.Error(),
			})
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	})

	securedGroup.Post("/validations/:id/approve", func(c *fiber.Ctx) error {
		validatorID := c.Locals("user_id").(string)

		v, err := validations.Approve(c.Params("id"), validatorID)
		if err != nil {
			return c.Status(errStatus(err)).JSON(fiber.Map{
				"error": "approval failed",
				"cause": err.Error(),
			})
		}

		// The vote (and a possible owner payout) moved XP; re-check
		// achievements for both sides.
		validatorUnlocks, _ := achievements.Evaluate(validatorID, v.GroupID)
		if v.Status == models.ValidationApproved {
			_, _ = achievements.Evaluate(v.OwnerID, v.GroupID)
		}

		return c.JSON(fiber.Map{
			"validation":     v,
			"newly_unlocked": achievementPayload(achievements, validatorUnlocks),
		})
	})

	securedGroup.Post("/validations/:id/reject", func(c *fiber.Ctx) error {
		validatorID := c.Locals("user_id").(string)

		v, err := validations.Reject(c.Params("id"), validatorID)
		if err != nil {
			return c.Status(errStatus(err)).JSON(fiber.Map{
				"error": "rejection failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(v)
	})

	securedGroup.Get("/validations/pending", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		groupID := c.Query("group_id")
		if groupID == "" {
			groupID, _ = c.Locals("group_id").(string)
		}
		if groupID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "group_id is required"})
		}

		// A user's own claims are hidden from their review queue unless
		// they ask for them.
		exclude := userID
		if c.QueryBool("include_own") {
			exclude = ""
		}

		list, err := validations.ListPendingForGroup(groupID, exclude)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load pending validations",
				"cause": err.Error(),
			})
		}
		return c.JSON(list)
	})

	securedGroup.Get("/validations/mine", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		list, err := validations.ListByOwner(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load validations",
				"cause": err.Error(),
			})
		}
		return c.JSON(list)
	})
}
