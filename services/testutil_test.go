package services

import (
	"io"
	"path/filepath"
	"testing"

	"orbit-progression-service/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func newTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestLedger(t *testing.T) *LedgerService {
	t.Helper()
	return NewLedgerService(newTestDB(t), newTestLogger())
}
