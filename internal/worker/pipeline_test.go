package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rolewatch/rolewatch-api/internal/adapter"
	"github.com/rolewatch/rolewatch-api/internal/models"
	"github.com/rolewatch/rolewatch-api/internal/queue"
)

// assertCounterSum checks the finalized counter invariant:
// total = ready + skipped + expired + failed.
func assertCounterSum(t *testing.T, run *models.Run) {
	t.Helper()
	sum := run.JobsReady + run.JobsSkipped + run.JobsExpired + run.JobsFailed
	if run.TotalJobs != sum {
		t.Errorf("counter sum broken: total %d != ready %d + skipped %d + expired %d + failed %d",
			run.TotalJobs, run.JobsReady, run.JobsSkipped, run.JobsExpired, run.JobsFailed)
	}
}

// Two companies, four postings, one already ingested and unchanged.
func TestPipeline_MixedRunSkipsUnchanged(t *testing.T) {
	anthropic := &fakeBoard{listFn: listingOf("101", "102")}
	plaid := &fakeBoard{listFn: listingOf("a1", "a2")}
	p := newPipeline(t, map[string]adapter.Adapter{
		"anthropic": anthropic,
		"plaid":     plaid,
	}, defaultBusOpts())

	// First pass ingests everything.
	first := p.startRun(t, "user-1", false, "anthropic", "plaid")
	p.runToCompletion(t, first)

	gotFirst := p.getRun(t, first)
	if gotFirst.Status != models.RunStatusFinished {
		t.Fatalf("first run status = %q, want finished", gotFirst.Status)
	}
	if gotFirst.TotalJobs != 4 || gotFirst.JobsReady != 4 {
		t.Fatalf("first run counters = total %d ready %d, want 4/4", gotFirst.TotalJobs, gotFirst.JobsReady)
	}
	assertCounterSum(t, gotFirst)

	// One posting's content changes; the rest are identical refetches.
	anthropic.fetchFn = func(_ context.Context, url string) ([]byte, error) {
		if url == "https://example.com/jobs/101" {
			return []byte("revised description with a renamed team and new responsibilities"), nil
		}
		return []byte("payload for " + url), nil
	}

	second, err := p.repos.Run.CreateIfNoneActive(context.Background(), "user-1", models.RunMetadata{})
	if err != nil || second == nil {
		t.Fatalf("failed to create second run: %v", err)
	}
	p.runToCompletion(t, second)

	gotSecond := p.getRun(t, second)
	if gotSecond.Status != models.RunStatusFinished {
		t.Fatalf("second run status = %q, want finished", gotSecond.Status)
	}
	if gotSecond.TotalJobs != 4 {
		t.Errorf("TotalJobs = %d, want 4", gotSecond.TotalJobs)
	}
	if gotSecond.JobsReady != 1 {
		t.Errorf("JobsReady = %d, want 1 (only the changed posting)", gotSecond.JobsReady)
	}
	if gotSecond.JobsSkipped != 3 {
		t.Errorf("JobsSkipped = %d, want 3", gotSecond.JobsSkipped)
	}
	assertCounterSum(t, gotSecond)

	// Skipped jobs keep their previously extracted text.
	skipped := p.jobByExternalID(t, "user-1", "anthropic", "102")
	if skipped.Status != models.JobStatusSkipped {
		t.Fatalf("job 102 status = %q, want skipped", skipped.Status)
	}
	if skipped.Description == "" {
		t.Error("skipped job lost its description")
	}
}

// Abort lands while crawl messages are in flight; nothing finalizes.
func TestPipeline_AbortMidIngestDrainsWithoutFinishing(t *testing.T) {
	p := newPipeline(t, map[string]adapter.Adapter{
		"anthropic": &fakeBoard{listFn: listingOf("101", "102", "103")},
	}, defaultBusOpts())
	run := p.startRun(t, "user-1", false, "anthropic")
	ctx := context.Background()

	p.initializer.Initialize(ctx, run)
	if depth := p.queueDepth(t, testCrawlQueue); depth != 3 {
		t.Fatalf("crawl queue depth = %d, want 3", depth)
	}

	// Process one message, then the user aborts.
	msg, err := p.bus.Receive(ctx, testCrawlQueue)
	if err != nil || msg == nil {
		t.Fatalf("Receive() = %v, %v", msg, err)
	}
	if err := p.crawler.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if ok, err := p.repos.Run.Abort(ctx, run.ID, run.UserID); err != nil || !ok {
		t.Fatalf("Abort() = %v, %v", ok, err)
	}

	p.drain(t)

	got := p.getRun(t, run)
	if got.Status != models.RunStatusAborted {
		t.Fatalf("run status = %q, want aborted (never finished)", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("abort should set FinishedAt")
	}
	// Both queues fully drained even though the run died.
	if depth := p.queueDepth(t, testCrawlQueue); depth != 0 {
		t.Errorf("crawl queue depth = %d, want 0", depth)
	}
	if depth := p.queueDepth(t, testExtractQueue); depth != 0 {
		t.Errorf("extract queue depth = %d, want 0", depth)
	}
}

// A crawl message is claimed and the worker dies; redelivery converges.
func TestPipeline_RedeliveryAfterCrashConverges(t *testing.T) {
	p := newPipeline(t, map[string]adapter.Adapter{
		"anthropic": &fakeBoard{listFn: listingOf("101")},
	}, queue.Options{Visibility: 100 * time.Millisecond, MaxReceive: 5})
	run := p.startRun(t, "user-1", false, "anthropic")
	ctx := context.Background()

	p.initializer.Initialize(ctx, run)

	// Claim the message and "crash": no ack, no release.
	msg, err := p.bus.Receive(ctx, testCrawlQueue)
	if err != nil || msg == nil {
		t.Fatalf("Receive() = %v, %v", msg, err)
	}

	// Invisible until the visibility timeout passes.
	if again, _ := p.bus.Receive(ctx, testCrawlQueue); again != nil {
		t.Fatal("claimed message should be invisible")
	}
	time.Sleep(150 * time.Millisecond)

	p.drain(t)

	got := p.getRun(t, run)
	if got.Status != models.RunStatusFinished {
		t.Fatalf("run status = %q, want finished after redelivery", got.Status)
	}
	if got.JobsReady != 1 {
		t.Errorf("JobsReady = %d, want 1", got.JobsReady)
	}
	assertCounterSum(t, got)
}

// force=true refetches and re-extracts everything, unchanged or not.
func TestPipeline_ForceRunHasNoSkips(t *testing.T) {
	p := newPipeline(t, map[string]adapter.Adapter{
		"anthropic": &fakeBoard{listFn: listingOf("101", "102")},
	}, defaultBusOpts())

	first := p.startRun(t, "user-1", false, "anthropic")
	p.runToCompletion(t, first)

	forced, err := p.repos.Run.CreateIfNoneActive(context.Background(), "user-1", models.RunMetadata{Force: true})
	if err != nil || forced == nil {
		t.Fatalf("failed to create forced run: %v", err)
	}
	p.runToCompletion(t, forced)

	got := p.getRun(t, forced)
	if got.Status != models.RunStatusFinished {
		t.Fatalf("forced run status = %q, want finished", got.Status)
	}
	if got.JobsSkipped != 0 {
		t.Errorf("JobsSkipped = %d, want 0 under force", got.JobsSkipped)
	}
	if got.JobsReady != 2 {
		t.Errorf("JobsReady = %d, want 2", got.JobsReady)
	}
	assertCounterSum(t, got)
}

// The pool consumes from the bus on its own once started.
func TestPool_ProcessesQueuedMessages(t *testing.T) {
	p := newPipeline(t, map[string]adapter.Adapter{
		"anthropic": &fakeBoard{listFn: listingOf("101", "102")},
	}, defaultBusOpts())
	run := p.startRun(t, "user-1", false, "anthropic")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.initializer.Initialize(ctx, run)

	crawlPool := NewPool(p.bus, p.crawler, Config{PollInterval: 10 * time.Millisecond, Concurrency: 2}, testLogger())
	extractPool := NewPool(p.bus, p.extractor, Config{PollInterval: 10 * time.Millisecond, Concurrency: 2}, testLogger())
	crawlPool.Start(ctx)
	extractPool.Start(ctx)
	defer extractPool.Stop()
	defer crawlPool.Stop()

	deadline := time.After(5 * time.Second)
	for {
		got := p.getRun(t, run)
		if got.Status == models.RunStatusFinished {
			if got.JobsReady != 2 {
				t.Errorf("JobsReady = %d, want 2", got.JobsReady)
			}
			assertCounterSum(t, got)
			return
		}
		select {
		case <-deadline:
			t.Fatalf("run never finished, status = %q", got.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Dispatcher + initializer pool pick up dispatched runs end to end.
func TestInitializerPool_ConsumesDispatchedRuns(t *testing.T) {
	p := newPipeline(t, map[string]adapter.Adapter{
		"anthropic": &fakeBoard{}, // lists nothing: run finishes inline
	}, defaultBusOpts())
	run := p.startRun(t, "user-1", false, "anthropic")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.initializer.Start(ctx)
	defer p.initializer.Stop()

	if !p.dispatcher.Dispatch(run) {
		t.Fatal("Dispatch() refused")
	}

	deadline := time.After(5 * time.Second)
	for {
		got := p.getRun(t, run)
		if got.Status == models.RunStatusFinished {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("dispatched run never finished, status = %q", got.Status)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestDispatcher_RefusesWhenFull(t *testing.T) {
	d := NewDispatcher(1)
	run := &models.Run{ID: 1}

	if !d.Dispatch(run) {
		t.Fatal("first Dispatch() should succeed")
	}
	if d.Dispatch(run) {
		t.Fatal("second Dispatch() should refuse on a full buffer")
	}
	if d.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", d.Pending())
	}
}

func TestPool_InFlightTracksWork(t *testing.T) {
	var inHandler atomic.Bool
	release := make(chan struct{})
	board := &fakeBoard{fetchFn: func(ctx context.Context, url string) ([]byte, error) {
		inHandler.Store(true)
		<-release
		return []byte("payload"), nil
	}}
	p := newPipeline(t, map[string]adapter.Adapter{"anthropic": board}, defaultBusOpts())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _, msg := seedIngesting(t, p, false)
	if err := p.bus.Release(context.Background(), msg.ID, 0); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	pool := NewPool(p.bus, p.crawler, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, testLogger())
	pool.Start(ctx)

	deadline := time.After(2 * time.Second)
	for !inHandler.Load() {
		select {
		case <-deadline:
			t.Fatal("pool never picked up the message")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if pool.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1 while handling", pool.InFlight())
	}

	close(release)
	pool.Stop()
	if pool.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0 after stop", pool.InFlight())
	}
}
