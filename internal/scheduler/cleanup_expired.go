package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CleanupExpiredJob deletes expired submitted datasets and cached optimizer results.
type CleanupExpiredJob struct {
	log     zerolog.Logger
	timeout time.Duration
	targets map[string]Expirer
}

// NewCleanupExpiredJob creates a cleanup job. Nil targets are skipped.
func NewCleanupExpiredJob(targets map[string]Expirer, log zerolog.Logger) *CleanupExpiredJob {
	return &CleanupExpiredJob{
		log:     log.With().Str("job", "cleanup_expired").Logger(),
		timeout: time.Minute,
		targets: targets,
	}
}

// Name returns the job name
func (j *CleanupExpiredJob) Name() string {
	return "cleanup_expired"
}

// Run deletes expired rows from every target. A failing target does not stop the others.
func (j *CleanupExpiredJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var errs []error
	var total int64
	for name, target := range j.targets {
		if target == nil {
			continue
		}
		n, err := target.DeleteExpired(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		total += n
		if n > 0 {
			j.log.Info().Str("target", name).Int64("deleted", n).Msg("Expired entries removed")
		}
	}

	j.log.Debug().Int64("deleted", total).Msg("Cleanup completed")
	return errors.Join(errs...)
}
