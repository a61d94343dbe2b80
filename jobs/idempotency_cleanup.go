package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/logistics/internal/jobs"
)

const defaultRetention = 7 * 24 * time.Hour

// KeyCleaner removes idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// CleanupJob purges expired idempotency keys.
type CleanupJob struct {
	Store   KeyCleaner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle executes the cleanup.
func (j *CleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload CleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultRetention
	}
	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	removed, err := j.Store.Cleanup(ctx, retention)
	if err == nil && j.Logger != nil {
		j.Logger.Info("idempotency keys purged", slog.Int64("removed", removed), slog.Duration("retention", retention))
	}
	return tracker.End(err)
}
