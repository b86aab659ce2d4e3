package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"orbit-progression-service/models"
	"orbit-progression-service/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerArchiveClient exports each day's slice of the append-only
// ledger to R2 as JSONL. The ledger is never pruned; the archive is a
// cold copy for audit, not a source of truth.
type LedgerArchiveClient struct {
	DB  *gorm.DB
	Log *logrus.Logger

	lastArchived time.Time
}

func NewLedgerArchiveClient(db *gorm.DB, log *logrus.Logger) *LedgerArchiveClient {
	return &LedgerArchiveClient{DB: db, Log: log}
}

// ArchiveDay uploads every transaction created on the given UTC day.
// Keys are deterministic, so re-running a day overwrites the same
// object instead of duplicating it.
func (c *LedgerArchiveClient) ArchiveDay(ctx context.Context, day time.Time) error {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var txns []models.XPTransaction
	err := c.DB.Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return fmt.Errorf("failed to load transactions for %s: %w", start.Format("2006-01-02"), err)
	}
	if len(txns) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, txn := range txns {
		if err := enc.Encode(txn); err != nil {
			return fmt.Errorf("failed to encode transaction %s: %w", txn.ID, err)
		}
	}

	key := fmt.Sprintf("ledger-archive/%s.jsonl", start.Format("2006-01-02"))
	if err := utils.UploadBytesToR2(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return err
	}

	c.Log.WithFields(logrus.Fields{
		"key":          key,
		"transactions": len(txns),
	}).Info("archived ledger day")
	return nil
}

// PollLedgerArchive runs the archive loop until the context is
// cancelled, exporting the previous day once per interval tick.
func PollLedgerArchive(ctx context.Context, c *LedgerArchiveClient, interval time.Duration) {
	if !utils.R2Enabled() {
		c.Log.Info("R2 not configured, ledger archive disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	archive := func() {
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		day := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
		if day.Equal(c.lastArchived) {
			return
		}
		if err := c.ArchiveDay(ctx, day); err != nil {
			c.Log.WithError(err).Error("ledger archive failed")
			return
		}
		c.lastArchived = day
	}

	archive()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			archive()
		}
	}
}
