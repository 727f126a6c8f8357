package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/varisk/internal/config"
	"github.com/aristath/varisk/internal/scheduler"
)

// RegisterJobs creates the scheduler and registers background jobs. The
// scheduler is not started here.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)
	container.Scheduler = sched

	if container.Ingestor == nil {
		return nil
	}

	if err := sched.AddJob(cfg.Ingest.Schedule, container.Ingestor); err != nil {
		return fmt.Errorf("failed to register %s job: %w", container.Ingestor.Name(), err)
	}
	return nil
}
