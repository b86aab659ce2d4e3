// handlers/progression_routes.go
package handlers

import (
	"errors"
	"strconv"
	"time"

	"orbit-progression-service/middleware"
	"orbit-progression-service/models"
	"orbit-progression-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(app *fiber.App, ledger *services.LedgerService, achievements *services.AchievementService, streaks *services.StreakService, leaderboard *services.LeaderboardService) {
	// 🔐 Secured routes require user context injected by the Gateway.
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		prog, err := ledger.GetProgress(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load progress",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"user_id":            prog.UserID,
			"current_xp":         prog.CurrentXP,
			"level":              prog.Level,
			"xp_to_next_level":   prog.Level*ledger.LevelXPUnit - prog.CurrentXP,
			"streak_count":       prog.StreakCount,
			"last_activity_date": prog.LastActivityDate,
			"total_xp_earned":    prog.TotalXPEarned,
			"last_level_up_at":   prog.LastLevelUpAt,
		})
	})

	securedGroup.Get("/user/xp/history", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))
		if page < 1 {
			page = 1
		}

		txns, err := ledger.ListTransactions(userID, size, (page-1)*size)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load xp history",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"transactions": txns,
			"page":         page,
			"size":         size,
		})
	})

	securedGroup.Post("/user/xp/award", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req struct {
			GroupID         string              `json:"group_id"`
			Reason          models.RewardReason `json:"reason"`
			RelatedEntityID string              `json:"related_entity_id"`
			Metadata        map[string]string   `json:"metadata"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.Reason == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
		}
		if req.GroupID == "" {
			req.GroupID, _ = c.Locals("group_id").(string)
		}

		result, err := ledger.Award(services.AwardInput{
			UserID:          userID,
			GroupID:         req.GroupID,
			Reason:          req.Reason,
			RelatedEntityID: req.RelatedEntityID,
			Metadata:        req.Metadata,
		})
		if err != nil {
			return c.Status(errStatus(err)).JSON(fiber.Map{
				"error": "XP award failed",
				"cause": err.Error(),
			})
		}
		if result.Denied {
			return c.JSON(fiber.Map{"denied": true})
		}

		// Every award can flip an achievement predicate.
		newly, err := achievements.Evaluate(userID, req.GroupID)
		if err != nil {
			// The award committed; unlocks will catch up on the next pass.
			newly = nil
		}

		return c.JSON(fiber.Map{
			"denied":          false,
			"new_xp":          result.NewXP,
			"new_level":       result.NewLevel,
			"leveled_up":      result.LeveledUp,
			"total_xp_earned": result.TotalXPEarned,
			"transaction":     result.Transaction,
			"newly_unlocked":  achievementPayload(achievements, newly),
		})
	})

	securedGroup.Get("/user/achievements", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		unlocks, err := achievements.ListForUser(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load achievements",
				"cause": err.Error(),
			})
		}
		return c.JSON(achievementPayload(achievements, unlocks))
	})

	securedGroup.Post("/user/progress/evaluate", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		groupID, _ := c.Locals("group_id").(string)

		newly, err := achievements.Evaluate(userID, groupID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "achievement evaluation failed",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"newly_unlocked": achievementPayload(achievements, newly)})
	})

	securedGroup.Post("/user/streak/touch", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		groupID, _ := c.Locals("group_id").(string)

		prog, err := streaks.Touch(userID, time.Now())
		if err != nil {
			return c.Status(errStatus(err)).JSON(fiber.Map{
				"error": "streak update failed",
				"cause": err.Error(),
			})
		}

		newly, _ := achievements.Evaluate(userID, groupID)

		return c.JSON(fiber.Map{
			"streak_count":       prog.StreakCount,
			"last_activity_date": prog.LastActivityDate,
			"newly_unlocked":     achievementPayload(achievements, newly),
		})
	})

	securedGroup.Get("/group/leaderboard", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		groupID := c.Query("group_id")
		if groupID == "" {
			groupID, _ = c.Locals("group_id").(string)
		}
		if groupID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "group_id is required"})
		}
		limit, _ := strconv.Atoi(c.Query("limit", "10"))

		entries, err := leaderboard.Top(c.Context(), groupID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load leaderboard",
				"cause": err.Error(),
			})
		}
		rank, _ := leaderboard.Rank(c.Context(), groupID, userID)

		return c.JSON(fiber.Map{
			"entries": entries,
			"my_rank": rank,
		})
	})

	// Admin endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID  string              `json:"user_id"`
			GroupID string              `json:"group_id"`
			XP      int                 `json:"xp"`
			Reason  models.RewardReason `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		if req.UserID == "" || req.XP == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and xp are required"})
		}
		if req.Reason == "" {
			req.Reason = models.ReasonTimelineEventAdded
		}

		result, err := ledger.AwardFixed(services.AwardInput{
			UserID:  req.UserID,
			GroupID: req.GroupID,
			Reason:  req.Reason,
			Metadata: map[string]string{
				"granted_by": c.Locals("user_id").(string),
			},
		}, req.XP)
		if err != nil {
			return c.Status(errStatus(err)).JSON(fiber.Map{
				"error": "XP grant failed",
				"cause": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"message":   "XP granted successfully",
			"user_id":   req.UserID,
			"xp":        req.XP,
			"new_level": result.NewLevel,
		})
	})
}

// achievementPayload joins unlock records with their static definitions
// so the UI gets names, descriptions and icon slugs in one shot.
func achievementPayload(svc *services.AchievementService, unlocks []models.Achievement) []fiber.Map {
	payload := make([]fiber.Map, 0, len(unlocks))
	for _, a := range unlocks {
		entry := fiber.Map{
			"id":               a.ID,
			"achievement_type": a.AchievementType,
			"xp_reward":        a.XPReward,
			"unlocked_at":      a.UnlockedAt,
		}
		if def, ok := svc.DefinitionFor(a.AchievementType); ok {
			entry["name"] = def.Name
			entry["description"] = def.Description
			entry["icon_slug"] = def.Slug()
		}
		payload = append(payload, entry)
	}
	return payload
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidTransition):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
