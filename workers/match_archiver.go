package workers

import (
	"context"
	"fmt"
	"time"

	"resistance-server/models"
	"resistance-server/stores"

	log "github.com/sirupsen/logrus"
)

const archiveBatchSize = 100

// Uploader stores one JSON document under key.
type Uploader interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// MatchArchiver copies long-finished matches to object storage and stamps
// them archived. The match row itself is never deleted here.
type MatchArchiver struct {
	matches  stores.MatchStore
	uploader Uploader
	after    time.Duration
	now      func() time.Time
}

func NewMatchArchiver(matches stores.MatchStore, uploader Uploader, after time.Duration, now func() time.Time) *MatchArchiver {
	if now == nil {
		now = time.Now
	}
	return &MatchArchiver{matches: matches, uploader: uploader, after: after, now: now}
}

// ArchiveKey is where a finished match is written in the bucket.
func ArchiveKey(m *models.PvpMatch) string {
	t := m.LastUpdate.UTC()
	return fmt.Sprintf("pvp-matches/%04d/%02d/%s.json", t.Year(), int(t.Month()), m.ID)
}

// RunOnce archives one batch and returns how many matches were stamped.
func (a *MatchArchiver) RunOnce(ctx context.Context) (int, error) {
	logger := log.WithField("component", "workers.archive")
	now := a.now().UTC()

	batch, err := a.matches.ListArchivable(ctx, now.Add(-a.after), archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list archivable matches: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	archived := 0
	for i := range batch {
		m := &batch[i]
		key := ArchiveKey(m)
		if err := a.uploader.PutJSON(ctx, key, m); err != nil {
			logger.WithField("match_id", m.ID).WithError(err).Warn("upload failed, will retry next run")
			continue
		}
		ok, err := a.matches.MarkArchived(ctx, m.ID, now)
		if err != nil {
			logger.WithField("match_id", m.ID).WithError(err).Warn("mark archived failed")
			continue
		}
		if ok {
			archived++
		}
	}
	logger.WithFields(log.Fields{"candidates": len(batch), "archived": archived}).Info("archive batch done")
	return archived, nil
}
