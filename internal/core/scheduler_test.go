package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printforge/dispatch/internal/config"
	"github.com/printforge/dispatch/internal/db"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	result DispatchResult
	calls  int
}

func (d *fakeDispatcher) Send(_ context.Context, _ *PrintJobRequest) DispatchResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.result
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func defaultCaps() db.Capabilities {
	return db.Capabilities{
		SupportedPageSizes: []string{"A4", "A3"},
		SupportsColor:      true,
		SupportsDuplex:     true,
		MaxCopies:          50,
		SupportedFileTypes: []string{"pdf", "docx"},
	}
}

func addPrinter(t *testing.T, store *db.Store, name string, caps db.Capabilities) *db.Printer {
	t.Helper()
	p := &db.Printer{
		Name:             name,
		Status:           db.PrinterStatusOnline,
		Capabilities:     caps,
		IsActive:         true,
		AutoPrintEnabled: true,
	}
	require.NoError(t, store.Printers.Create(context.Background(), p))
	return p
}

func addJob(t *testing.T, store *db.Store, mutate func(*db.PrintJob)) *db.PrintJob {
	t.Helper()
	j := &db.PrintJob{
		OrderID:      "order-1",
		FileURLs:     []string{"https://cdn.example.com/f.pdf"},
		FileNames:    []string{"f.pdf"},
		FileTypes:    []string{"pdf"},
		PageSize:     "A4",
		ColorMode:    "bw",
		Sided:        "single",
		Copies:       2,
		PageCount:    3,
		PrinterIndex: 1,
		MaxRetries:   3,
	}
	if mutate != nil {
		mutate(j)
	}
	require.NoError(t, store.Jobs.Create(context.Background(), j))
	return j
}

func newTestScheduler(store *db.Store, d Dispatcher, resetDelay time.Duration) *Scheduler {
	return NewScheduler(store, d, config.SchedulerConfig{
		PollInterval:    time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		RetryResetDelay: resetDelay,
	}, 30)
}

func TestProcessQueueCompletesJob(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	printer := addPrinter(t, store, "lobby", defaultCaps())
	job := addJob(t, store, nil)

	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true, JobID: "b-1"}}
	s := newTestScheduler(store, dispatcher, time.Minute)

	s.ProcessQueue(ctx)

	got, err := store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.NotNil(t, got.DurationMs)
	assert.Equal(t, "lobby", got.PrinterName)

	p, err := store.Printers.GetByID(ctx, printer.ID)
	require.NoError(t, err)
	assert.Nil(t, p.CurrentJobID)
	assert.Equal(t, 0, p.QueueLength)
	assert.Equal(t, int64(6), p.TotalPagesPrinted) // 3 pages x 2 copies
	assert.NotNil(t, p.LastUsed)

	assert.Equal(t, 1, dispatcher.callCount())
}

func TestProcessQueueNoIdlePrinters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	job := addJob(t, store, nil)

	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true}}
	s := newTestScheduler(store, dispatcher, time.Minute)

	s.ProcessQueue(ctx)

	got, err := store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusPending, got.Status)
	assert.Equal(t, 0, dispatcher.callCount())
}

func TestProcessQueueSkipsIncompatiblePairing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	caps := defaultCaps()
	caps.SupportedPageSizes = []string{"A4"}
	addPrinter(t, store, "a4-only", caps)

	job := addJob(t, store, func(j *db.PrintJob) {
		j.PageSize = "A3"
	})

	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true}}
	s := newTestScheduler(store, dispatcher, time.Minute)

	s.ProcessQueue(ctx)

	got, err := store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusPending, got.Status)
	assert.Equal(t, 0, dispatcher.callCount())
}

func TestProcessQueueSearchesAllIdlePrinters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	mono := defaultCaps()
	mono.SupportsColor = false
	addPrinter(t, store, "mono", mono)
	color := addPrinter(t, store, "color", defaultCaps())

	job := addJob(t, store, func(j *db.PrintJob) {
		j.ColorMode = "color"
	})

	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true}}
	s := newTestScheduler(store, dispatcher, time.Minute)

	s.ProcessQueue(ctx)

	// The mono printer cannot take the job; the color one can, even though
	// it is not the positional pairing.
	got, err := store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusCompleted, got.Status)
	assert.Equal(t, "color", got.PrinterName)

	p, err := store.Printers.GetByID(ctx, color.ID)
	require.NoError(t, err)
	assert.Nil(t, p.CurrentJobID)
}

func TestProcessQueueMoreJobsThanPrinters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addPrinter(t, store, "solo", defaultCaps())

	first := addJob(t, store, func(j *db.PrintJob) { j.OrderID = "first"; j.Priority = 5 })
	second := addJob(t, store, func(j *db.PrintJob) { j.OrderID = "second" })

	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true}}
	s := newTestScheduler(store, dispatcher, time.Minute)

	s.ProcessQueue(ctx)

	gotFirst, err := store.Jobs.GetByID(ctx, first.ID)
	require.NoError(t, err)
	gotSecond, err := store.Jobs.GetByID(ctx, second.ID)
	require.NoError(t, err)

	// Higher priority goes first; the other waits for the next tick.
	assert.Equal(t, db.JobStatusCompleted, gotFirst.Status)
	assert.Equal(t, db.JobStatusPending, gotSecond.Status)
	assert.Equal(t, 1, dispatcher.callCount())
}

func TestFailedJobRetriesUntilCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	printer := addPrinter(t, store, "flaky-target", defaultCaps())

	job := addJob(t, store, func(j *db.PrintJob) {
		j.MaxRetries = 3
	})

	dispatcher := &fakeDispatcher{result: DispatchResult{Error: "backend down"}}
	s := newTestScheduler(store, dispatcher, 5*time.Millisecond)

	// Attempt 1: pending -> printing -> failed, retryCount 1, then reset.
	s.ProcessQueue(ctx)
	got, err := store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "backend down", got.ErrorMessage)

	waitForStatus(t, store, job.ID, db.JobStatusPending)

	// The reset cleared the assignment so any printer may take it next.
	got, err = store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PrinterID)
	assert.Empty(t, got.PrinterName)
	assert.Nil(t, got.StartedAt)

	// Attempt 2.
	s.ProcessQueue(ctx)
	waitForStatus(t, store, job.ID, db.JobStatusPending)

	// Attempt 3: retryCount reaches maxRetries, no further reset.
	s.ProcessQueue(ctx)
	got, err = store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)

	time.Sleep(50 * time.Millisecond)
	got, err = store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusFailed, got.Status, "no fourth pending transition")

	// Nothing pending anymore; the dispatcher saw exactly three attempts.
	s.ProcessQueue(ctx)
	assert.Equal(t, 3, dispatcher.callCount())

	// The printer was released every time.
	p, err := store.Printers.GetByID(ctx, printer.ID)
	require.NoError(t, err)
	assert.Nil(t, p.CurrentJobID)
	assert.Equal(t, 0, p.QueueLength)
}

func waitForStatus(t *testing.T, store *db.Store, jobID int64, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.Jobs.GetByID(context.Background(), jobID)
		require.NoError(t, err)
		if got.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %d never reached status %q", jobID, want)
}

func TestUnprintableJobFailsWithoutRetrySlot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addPrinter(t, store, "idle", defaultCaps())

	job := addJob(t, store, func(j *db.PrintJob) {
		j.FileURLs = nil
		j.FileNames = nil
		j.FileTypes = nil
	})

	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true}}
	s := newTestScheduler(store, dispatcher, time.Minute)

	s.ProcessQueue(ctx)

	got, err := store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusFailed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Equal(t, 0, dispatcher.callCount())
}

func TestCancelledJobIsNotDispatched(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addPrinter(t, store, "ready", defaultCaps())
	job := addJob(t, store, nil)

	require.NoError(t, store.Jobs.Cancel(ctx, job.ID))

	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true}}
	s := newTestScheduler(store, dispatcher, time.Minute)
	s.ProcessQueue(ctx)

	got, err := store.Jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobStatusCancelled, got.Status)
	assert.Equal(t, 0, dispatcher.callCount())
}

func TestStatusAggregate(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addPrinter(t, store, "up", defaultCaps())

	down := addPrinter(t, store, "down", defaultCaps())
	require.NoError(t, store.Printers.UpdateStatus(ctx, down.ID, db.PrinterStatusOffline))

	addJob(t, store, nil)
	cancelled := addJob(t, store, func(j *db.PrintJob) { j.OrderID = "order-2" })
	require.NoError(t, store.Jobs.Cancel(ctx, cancelled.ID))

	dispatcher := &fakeDispatcher{}
	s := newTestScheduler(store, dispatcher, time.Minute)

	status, err := s.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Jobs[db.JobStatusPending])
	assert.Equal(t, 1, status.Jobs[db.JobStatusCancelled])
	assert.Equal(t, 1, status.Printers.Available)
	assert.Equal(t, 1, status.Printers.Offline)
	assert.Equal(t, 0, status.Printers.Busy)
}

func TestSchedulerStartStop(t *testing.T) {
	store := newTestStore(t)
	dispatcher := &fakeDispatcher{result: DispatchResult{Success: true}}
	s := newTestScheduler(store, dispatcher, time.Minute)

	s.Start()
	s.Start() // second start is a no-op
	s.Stop()
	s.Stop() // second stop is a no-op
}
