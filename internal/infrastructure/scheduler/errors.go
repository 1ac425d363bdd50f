package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrInvalidJob is returned for jobs without a valid key or resource
	ErrInvalidJob = errors.New("invalid sync job")

	// ErrSyncAlreadyPending marks a job dropped because an identical one waits on its key
	ErrSyncAlreadyPending = errors.New("identical sync already pending for this tenant/marketplace")

	// ErrLaneFull is returned when a tenant/marketplace already has the maximum of waiting jobs
	ErrLaneFull = errors.New("too many syncs pending for this tenant/marketplace")

	// ErrNoActiveCredentials is returned when a manual trigger finds nothing to sync
	ErrNoActiveCredentials = errors.New("no active credential for this tenant/marketplace")
)
