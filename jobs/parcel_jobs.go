package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/logistics/internal/jobs"
	"github.com/odyssey-erp/logistics/internal/parcel"
)

// Renumberer maintains parcel sequences.
type Renumberer interface {
	HandleDeleted(ctx context.Context, evt parcel.Deleted) error
	SweepSequences(ctx context.Context) (int, error)
}

// ParcelJob consumes parcel deletion events and runs the nightly sweep.
type ParcelJob struct {
	Service Renumberer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewParcelJob initialises the parcel handlers.
func NewParcelJob(service Renumberer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ParcelJob {
	return &ParcelJob{Service: service, Logger: logger, Metrics: metrics}
}

// HandleDeleted renumbers the delivery note of a deleted parcel.
func (j *ParcelJob) HandleDeleted(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("parcel job: handler not configured")
	}
	var evt parcel.Deleted
	if err := json.Unmarshal(t.Payload(), &evt); err != nil || evt.DeliveryNote == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskParcelDeleted)
	err := j.Service.HandleDeleted(ctx, evt)
	if err != nil {
		j.logger().Error("renumbering failed",
			slog.String("parcel", evt.Parcel),
			slog.String("delivery_note", evt.DeliveryNote),
			slog.Any("error", err))
	} else {
		j.Metrics.AddRenumbered("event", 1)
	}
	return tracker.End(err)
}

// HandleSweep recomputes the sequence of every delivery note with parcels.
func (j *ParcelJob) HandleSweep(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("parcel job: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.Metrics.Track(TaskSequenceSweep)
	start := time.Now()
	count, err := j.Service.SweepSequences(ctx)
	j.Metrics.AddRenumbered("sweep", count)
	logger := j.logger().With(slog.Int("delivery_notes", count), slog.Duration("took", time.Since(start)))
	if err != nil {
		logger.Error("sequence sweep failed", slog.Any("error", err))
	} else {
		logger.Info("sequence sweep completed")
	}
	return tracker.End(err)
}

func (j *ParcelJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
