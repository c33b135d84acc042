package core

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/db"
	"github.com/printforge/dispatch/internal/metrics"
)

const assignmentFailedMessage = "failed to assign job to printer"

// Dispatcher is the outbound leg the scheduler hands matched jobs to.
type Dispatcher interface {
	Send(ctx context.Context, req *PrintJobRequest) DispatchResult
}

// Scheduler is the polling control loop: it pulls pending jobs, pairs
// them with idle eligible printers via the capability matcher, and owns
// the job state machine including the bounded failed→pending retry.
type Scheduler struct {
	store           *db.Store
	dispatcher      Dispatcher
	matcher         Matcher
	pollInterval    time.Duration
	batchSize       int
	retryResetDelay time.Duration
	retention       time.Duration

	mu         sync.Mutex
	running    bool
	processing bool
	lastPurge  time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewScheduler(store *db.Store, dispatcher Dispatcher, cfg config.SchedulerConfig, retentionDays int) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	return &Scheduler{
		store:           store,
		dispatcher:      dispatcher,
		matcher:         Matcher{RequireColorForMixed: cfg.RequireColorForMixed},
		pollInterval:    cfg.PollInterval,
		batchSize:       cfg.BatchSize,
		retryResetDelay: cfg.RetryResetDelay,
		retention:       time.Duration(retentionDays) * 24 * time.Hour,
		stopCh:          make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.lastPurge = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.ProcessQueue(context.Background())
			s.maybeHousekeep(context.Background())
		}
	}
}

// ProcessQueue runs one scheduling tick. Overlapping ticks are skipped,
// so a slow batch never races itself.
func (s *Scheduler) ProcessQueue(ctx context.Context) {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return
	}
	s.processing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	jobs, err := s.store.Jobs.PendingBatch(ctx, s.batchSize)
	if err != nil {
		log.Printf("[scheduler] failed to fetch pending jobs: %v", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	printers, err := s.store.Printers.ListIdle(ctx)
	if err != nil {
		log.Printf("[scheduler] failed to fetch idle printers: %v", err)
		return
	}
	if len(printers) == 0 {
		return
	}

	assigned := make(map[int64]bool)
	for _, job := range jobs {
		req, err := RequestFromJob(job)
		if err != nil {
			// A job with no files can never print; retrying it is pointless.
			log.Printf("[scheduler] job %d is unprintable: %v", job.ID, err)
			if err := s.store.Jobs.MarkFailedNoRetry(ctx, job.ID, err.Error()); err != nil {
				log.Printf("[scheduler] failed to mark job %d failed: %v", job.ID, err)
			}
			continue
		}

		// Search every idle printer for a capability match instead of only
		// the positional pairing, so one incompatible printer cannot starve
		// a job forever.
		var target *db.Printer
		for _, p := range printers {
			if assigned[p.ID] {
				continue
			}
			if s.matcher.CanHandle(p, req) {
				target = p
				break
			}
		}
		if target == nil {
			continue
		}
		assigned[target.ID] = true

		s.dispatchJob(ctx, job, req, target)
	}
}

func (s *Scheduler) dispatchJob(ctx context.Context, job *db.PrintJob, req *PrintJobRequest, printer *db.Printer) {
	start := time.Now()

	if err := s.store.AssignJobToPrinter(ctx, job.ID, printer.ID, printer.Name); err != nil {
		if errors.Is(err, db.ErrJobNotPending) {
			// Cancelled (or otherwise moved on) between fetch and assignment.
			return
		}
		log.Printf("[scheduler] failed to assign job %d to printer %q: %v", job.ID, printer.Name, err)
		if err := s.store.Jobs.MarkFailedNoRetry(ctx, job.ID, assignmentFailedMessage); err != nil {
			log.Printf("[scheduler] failed to mark job %d failed: %v", job.ID, err)
		}
		metrics.JobsFailed.Inc()
		return
	}

	log.Printf("[scheduler] job %d (order %q) printing on %q", job.ID, job.OrderID, printer.Name)

	res := s.dispatcher.Send(ctx, req)
	if res.Success {
		duration := time.Since(start).Milliseconds()
		if err := s.store.CompleteJob(ctx, job.ID, printer.ID, duration, job.TotalPages()); err != nil {
			log.Printf("[scheduler] failed to complete job %d: %v", job.ID, err)
			return
		}
		metrics.JobsCompleted.Inc()
		log.Printf("[scheduler] job %d completed in %dms", job.ID, duration)
		return
	}

	s.failJob(ctx, job, printer.ID, res.Error)
}

// failJob records the failure and, while retries remain, schedules the
// pending reset so a later tick can try again, possibly on another
// printer. The in-memory retry queue replays the payload independently;
// this path is the durable one.
func (s *Scheduler) failJob(ctx context.Context, job *db.PrintJob, printerID int64, errMsg string) {
	if err := s.store.FailJob(ctx, job.ID, printerID, errMsg); err != nil {
		log.Printf("[scheduler] failed to mark job %d failed: %v", job.ID, err)
		return
	}
	metrics.JobsFailed.Inc()

	newRetryCount := job.RetryCount + 1
	if newRetryCount < job.MaxRetries {
		jobID := job.ID
		log.Printf("[scheduler] job %d failed (%s), retry %d/%d in %s",
			jobID, errMsg, newRetryCount, job.MaxRetries, s.retryResetDelay)
		time.AfterFunc(s.retryResetDelay, func() {
			if err := s.store.Jobs.ResetForRetry(context.Background(), jobID); err != nil && !errors.Is(err, db.ErrJobNotFound) {
				log.Printf("[scheduler] failed to reset job %d for retry: %v", jobID, err)
			}
		})
		return
	}

	log.Printf("[scheduler] job %d failed permanently after %d retries: %s", job.ID, job.RetryCount, errMsg)
}

func (s *Scheduler) maybeHousekeep(ctx context.Context) {
	s.mu.Lock()
	due := time.Since(s.lastPurge) >= 24*time.Hour
	if due {
		s.lastPurge = time.Now()
	}
	s.mu.Unlock()

	if due {
		s.Housekeep(ctx)
	}
}

// Housekeep purges finished jobs past the retention window.
func (s *Scheduler) Housekeep(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	n, err := s.store.Jobs.PurgeFinished(ctx, time.Now().Add(-s.retention))
	if err != nil {
		log.Printf("[scheduler] housekeeping failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[scheduler] purged %d finished job(s)", n)
	}
}

// QueueStatus is the read-only aggregate for dashboards: job counts by
// status and printer counts by availability. No mutation.
type QueueStatus struct {
	Jobs     map[string]int      `json:"jobs"`
	Printers PrinterAvailability `json:"printers"`
}

type PrinterAvailability struct {
	Available int `json:"available"`
	Busy      int `json:"busy"`
	Offline   int `json:"offline"`
}

func (s *Scheduler) Status(ctx context.Context) (*QueueStatus, error) {
	jobs, err := s.store.Jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	available, busy, offline, err := s.store.Printers.CountByAvailability(ctx)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		Jobs: jobs,
		Printers: PrinterAvailability{
			Available: available,
			Busy:      busy,
			Offline:   offline,
		},
	}, nil
}
