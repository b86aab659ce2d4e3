package handlers

import (
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"orbit-progression-service/models"
	"orbit-progression-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestApp wires the app in the same registration order as main:
// open endpoints first, then the gateway-secured groups.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "progression.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.XPTransaction{},
		&models.UserProgress{},
		&models.Achievement{},
		&models.PeerValidation{},
	))

	log := logrus.New()
	log.SetOutput(io.Discard)

	ledger := services.NewLedgerService(db, log)
	achievements := services.NewAchievementService(db, log, ledger)
	validations := services.NewPeerValidationService(db, log, ledger)
	streaks := services.NewStreakService(db, log)
	leaderboard := services.NewLeaderboardService("", "", 0, log)

	app := fiber.New()
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	SetupProgressionRoutes(app, ledger, achievements, streaks, leaderboard)
	SetupValidationRoutes(app, validations, achievements)
	return app
}

func TestMetricsAndHealthzOpenWithoutGatewayHeaders(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestSecuredRoutesRequireUserHeader(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/user/progress", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest("GET", "/user/progress", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
