package core

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/metrics"
)

// Sender replays a queued request without re-enqueueing it on failure;
// the drain loop decides what happens to the entry.
type Sender interface {
	Attempt(ctx context.Context, req *PrintJobRequest) DispatchResult
}

type retryEntry struct {
	req        *PrintJobRequest
	enqueuedAt time.Time
}

// RetryQueue holds dispatch requests that failed, and replays them on a
// fixed interval. It is in-process only: entries do not survive a
// restart. The persisted job rows are the durable safety net; this queue
// exists so transient backend outages get retried quickly.
type RetryQueue struct {
	sender        Sender
	drainInterval time.Duration
	replaySpacing time.Duration
	maxEntries    int

	mu       sync.Mutex
	entries  []retryEntry
	draining bool

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

func NewRetryQueue(cfg config.RetryQueueConfig, sender Sender) *RetryQueue {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 30 * time.Second
	}
	if cfg.ReplaySpacing < 0 {
		cfg.ReplaySpacing = time.Second
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	return &RetryQueue{
		sender:        sender,
		drainInterval: cfg.DrainInterval,
		replaySpacing: cfg.ReplaySpacing,
		maxEntries:    cfg.MaxEntries,
		stopCh:        make(chan struct{}),
	}
}

func (q *RetryQueue) Start() {
	q.wg.Add(1)
	go q.drainLoop()
}

func (q *RetryQueue) Stop() {
	q.stopped.Do(func() {
		close(q.stopCh)
	})
	q.wg.Wait()
}

// Enqueue appends a failed request. It never rejects and never
// deduplicates; when the queue is full the oldest entry is evicted so
// a permanently broken configuration cannot grow memory without bound.
func (q *RetryQueue) Enqueue(req *PrintJobRequest) {
	q.mu.Lock()
	if len(q.entries) >= q.maxEntries {
		evicted := q.entries[0]
		q.entries = q.entries[1:]
		metrics.RetryEvictions.Inc()
		log.Printf("[retry] queue full (%d), evicting entry for order %q enqueued at %s",
			q.maxEntries, evicted.req.OrderID, evicted.enqueuedAt.Format(time.RFC3339))
	}
	q.entries = append(q.entries, retryEntry{req: req, enqueuedAt: time.Now()})
	depth := len(q.entries)
	q.mu.Unlock()

	metrics.RetryQueueDepth.Set(float64(depth))
}

func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *RetryQueue) drainLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.DrainOnce(context.Background())
		}
	}
}

// DrainOnce replays every currently queued entry, sequentially, with a
// short pause between attempts. Overlapping drains are skipped rather
// than run concurrently. New failures arriving mid-drain land in a fresh
// queue and wait for the next cycle.
func (q *RetryQueue) DrainOnce(ctx context.Context) {
	q.mu.Lock()
	if q.draining || len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	q.draining = true
	batch := q.entries
	q.entries = nil
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		depth := len(q.entries)
		q.mu.Unlock()
		metrics.RetryQueueDepth.Set(float64(depth))
	}()

	log.Printf("[retry] draining %d queued dispatch(es)", len(batch))

	for i, e := range batch {
		if i > 0 && q.replaySpacing > 0 {
			select {
			case <-q.stopCh:
				q.requeue(batch[i:])
				return
			case <-ctx.Done():
				q.requeue(batch[i:])
				return
			case <-time.After(q.replaySpacing):
			}
		}

		res := q.sender.Attempt(ctx, e.req)
		switch {
		case res.Success:
			log.Printf("[retry] order %q delivered after %s in queue",
				e.req.OrderID, time.Since(e.enqueuedAt).Round(time.Second))
		case isDuplicateError(res.Error):
			// The backend already has this job; replaying again would print
			// it twice.
			metrics.RetryDuplicatesDropped.Inc()
			log.Printf("[retry] dropping order %q, backend reports it already queued: %s", e.req.OrderID, res.Error)
		default:
			q.Enqueue(e.req)
		}
	}
}

func (q *RetryQueue) requeue(entries []retryEntry) {
	q.mu.Lock()
	q.entries = append(q.entries, entries...)
	q.mu.Unlock()
}

// isDuplicateError is the duplicate-suppression heuristic: the backend
// contract carries no structured code, so wording is all there is. Kept
// behind this predicate so a structured field can replace it without
// touching drain logic.
func isDuplicateError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "duplicate") || strings.Contains(lower, "already")
}
