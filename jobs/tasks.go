package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/logistics/internal/parcel"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskParcelDeleted renumbers the siblings of a deleted parcel.
	TaskParcelDeleted = "parcel:deleted"
	// TaskSequenceSweep re-runs sequence recomputation for every delivery
	// note that has parcels.
	TaskSequenceSweep = "parcel:sequence-sweep"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// NewParcelDeletedTask constructs the renumbering task for a deletion.
func NewParcelDeletedTask(evt parcel.Deleted) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskParcelDeleted, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// SweepPayload carries scheduling metadata.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSequenceSweepTask constructs the nightly consistency sweep.
func NewSequenceSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSequenceSweep, body, asynq.Queue(QueueDefault)), nil
}

// CleanupPayload configures the idempotency retention window.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(CleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
