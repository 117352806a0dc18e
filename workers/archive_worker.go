package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trade-challenge-system/models"
	"trade-challenge-system/utils"

	"gorm.io/gorm"
)

// ArchiveClient snapshots terminal challenges (failed/funded) into the
// S3-compatible archive bucket for audit. It runs as a background reconciler:
// any terminal challenge without an ArchivedAt mark is picked up on the next
// tick, so a missed upload is retried rather than lost.
type ArchiveClient struct {
	DB *gorm.DB
}

func NewArchiveClient(db *gorm.DB) *ArchiveClient {
	return &ArchiveClient{DB: db}
}

// ledgerSnapshot is the archived document: the challenge plus its full trade
// ledger at the moment it went terminal.
type ledgerSnapshot struct {
	Challenge  models.Challenge `json:"challenge"`
	Trades     []models.Trade   `json:"trades"`
	ArchivedAt time.Time        `json:"archived_at"`
}

// ArchiveChallenge uploads one challenge's ledger snapshot and marks it archived.
func (a *ArchiveClient) ArchiveChallenge(ctx context.Context, ch models.Challenge) error {
	var trades []models.Trade
	if err := a.DB.Where("challenge_id = ?", ch.ID).Order("timestamp ASC").Find(&trades).Error; err != nil {
		return fmt.Errorf("failed to load ledger for challenge %s: %w", ch.ID, err)
	}

	now := time.Now().UTC()
	snapshot := ledgerSnapshot{Challenge: ch, Trades: trades, ArchivedAt: now}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot for challenge %s: %w", ch.ID, err)
	}

	key := fmt.Sprintf("challenges/%s/%s.json", ch.Status, ch.ID)
	if err := utils.UploadBytesToR2(ctx, key, payload, "application/json"); err != nil {
		return err
	}

	return a.DB.Model(&models.Challenge{}).
		Where("id = ?", ch.ID).
		Update("archived_at", now).Error
}

// PollTerminalChallenges sweeps for unarchived terminal challenges on a fixed
// interval. Upload failures are logged and retried next tick.
func PollTerminalChallenges(ctx context.Context, client *ArchiveClient, pollInterval time.Duration) {
	log.Println("Starting ledger archive worker...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Ledger archive worker stopped.")
			return
		case <-ticker.C:
			var pending []models.Challenge
			err := client.DB.
				Where("status IN ? AND archived_at IS NULL", []string{models.StatusFailed, models.StatusFunded}).
				Limit(50).
				Find(&pending).Error
			if err != nil {
				log.Printf("❌ Error listing unarchived challenges: %v", err)
				continue
			}
			if len(pending) == 0 {
				continue
			}

			log.Printf("📦 Archiving %d terminal challenge(s)...", len(pending))
			for _, ch := range pending {
				if err := client.ArchiveChallenge(ctx, ch); err != nil {
					log.Printf("❌ Failed to archive challenge %s: %v", ch.ID, err)
					continue
				}
				log.Printf("✅ Archived challenge %s (%s)", ch.ID, ch.Status)
			}
		}
	}
}
