package batch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/syncache/optimistic"
)

var errChunk = errors.New("downstream rejected chunk")

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// double confirms a chunk, failing any chunk whose first payload is in failAt.
func double(calls *atomic.Int32, failAt ...int) Confirm[int, int] {
	return func(_ context.Context, chunk []int) ([]int, error) {
		calls.Add(1)
		for _, f := range failAt {
			if chunk[0] == f {
				return nil, errChunk
			}
		}
		out := make([]int, len(chunk))
		for i, v := range chunk {
			out[i] = v * 2
		}
		return out, nil
	}
}

func countStatus[P any](ops []Operation[P], s Status) int {
	n := 0
	for _, op := range ops {
		if op.Status == s {
			n++
		}
	}
	return n
}

func noDelay() Options[int, int] { return Options[int, int]{Delay: -1} }

// ==============================
// Chunking & failures
// ==============================

// TestPartialFailureContinues: 25 items, size 10, chunk 2 fails => 15 results, 10 failed.
func TestPartialFailureContinues(t *testing.T) {
	o := New(noDelay())
	var calls atomic.Int32
	results, err := o.Process(context.Background(), seq(25), KindUpdate, double(&calls, 10))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("confirm calls: got %d want 3", calls.Load())
	}
	var want []int
	for _, v := range append(seq(25)[:10], seq(25)[20:]...) {
		want = append(want, v*2)
	}
	if !reflect.DeepEqual(results, want) {
		t.Fatalf("results: got %v want %v", results, want)
	}

	ops := o.Operations()
	if countStatus(ops, StatusFailed) != 10 || countStatus(ops, StatusCompleted) != 15 {
		t.Fatalf("statuses: failed=%d completed=%d", countStatus(ops, StatusFailed), countStatus(ops, StatusCompleted))
	}
	for i := 10; i < 20; i++ {
		var ie *ItemError
		if ops[i].Status != StatusFailed || !errors.As(ops[i].Err, &ie) || ie.Chunk != 1 || !errors.Is(ops[i].Err, errChunk) {
			t.Fatalf("op %d: %+v", i, ops[i])
		}
	}
	if p := o.Progress(); p != (Progress{Total: 25, Completed: 15, Failed: 10, Percentage: 100}) {
		t.Fatalf("progress: %+v", p)
	}
	if o.State() != StateCompleted {
		t.Fatalf("state: %s", o.State())
	}
}

func TestProgressConservation(t *testing.T) {
	var snaps []Progress
	opts := noDelay()
	opts.OnProgress = func(p Progress) { snaps = append(snaps, p) }
	o := New(opts)

	var calls atomic.Int32
	_, _ = o.Process(context.Background(), seq(25), KindAdd, double(&calls, 10))

	if len(snaps) != 3 {
		t.Fatalf("progress callbacks: got %d want 3", len(snaps))
	}
	prev := 0
	for _, p := range snaps {
		settled := p.Completed + p.Failed
		if settled > p.Total || settled < prev {
			t.Fatalf("progress not conserved: %+v", snaps)
		}
		prev = settled
	}
	if last := snaps[len(snaps)-1]; last.Completed+last.Failed != last.Total || last.Percentage != 100 {
		t.Fatalf("final progress: %+v", last)
	}
	if snaps[0].Percentage != 40 {
		t.Fatalf("first chunk percentage: %v", snaps[0].Percentage)
	}
}

func TestStopOnErrorAborts(t *testing.T) {
	opts := noDelay()
	opts.StopOnError = true
	var aborted []error
	opts.OnError = func(err error) { aborted = append(aborted, err) }
	completed := false
	opts.OnComplete = func([]int, Progress) { completed = true }
	o := New(opts)

	var calls atomic.Int32
	results, err := o.Process(context.Background(), seq(25), KindDelete, double(&calls, 10))
	var ae *AbortedError
	if !errors.As(err, &ae) || ae.Chunk != 1 || !errors.Is(err, ErrBatchAborted) || !errors.Is(err, errChunk) {
		t.Fatalf("expected *AbortedError at chunk 1, got %v", err)
	}
	if len(results) != 10 || calls.Load() != 2 {
		t.Fatalf("results=%d calls=%d", len(results), calls.Load())
	}
	ops := o.Operations()
	if countStatus(ops[20:], StatusPending) != 5 {
		t.Fatalf("items after the failed chunk must stay pending: %+v", ops[20:])
	}
	if o.State() != StateAborted || len(aborted) != 1 || completed {
		t.Fatalf("state=%s onError=%d onComplete=%v", o.State(), len(aborted), completed)
	}
}

func TestItemCallbacks(t *testing.T) {
	opts := noDelay()
	opts.BatchSize = 2
	got := map[int]int{}
	var failed []int
	opts.OnItemComplete = func(op Operation[int], r int) { got[op.Payload] = r }
	opts.OnItemError = func(op Operation[int], err error) {
		var ie *ItemError
		if !errors.As(err, &ie) || ie.OpID != op.ID {
			t.Errorf("unexpected item error %v", err)
		}
		failed = append(failed, op.Payload)
	}
	o := New(opts)

	var calls atomic.Int32
	_, _ = o.Process(context.Background(), seq(5), KindAdd, double(&calls, 2))
	if !reflect.DeepEqual(got, map[int]int{0: 0, 1: 2, 4: 8}) {
		t.Fatalf("completed callbacks: %v", got)
	}
	if !reflect.DeepEqual(failed, []int{2, 3}) {
		t.Fatalf("failed callbacks: %v", failed)
	}
}

func TestDefaultsAndIDs(t *testing.T) {
	o := New(Options[int, int]{})
	if o.opts.BatchSize != DefaultBatchSize || o.opts.Delay != DefaultDelay {
		t.Fatalf("defaults not applied: %+v", o.opts)
	}

	n := 0
	opts := noDelay()
	opts.NewID = func() string { n++; return fmt.Sprintf("op-%d", n) }
	o = New(opts)
	var calls atomic.Int32
	_, _ = o.Process(context.Background(), seq(3), KindAdd, double(&calls))
	ops := o.Operations()
	if ops[0].ID != "op-1" || ops[2].ID != "op-3" || ops[1].Kind != KindAdd {
		t.Fatalf("unexpected operations %+v", ops)
	}
}

func TestEmptyRun(t *testing.T) {
	o := New(noDelay())
	var calls atomic.Int32
	results, err := o.Process(context.Background(), nil, KindAdd, double(&calls))
	if err != nil || len(results) != 0 || calls.Load() != 0 {
		t.Fatalf("results=%v err=%v calls=%d", results, err, calls.Load())
	}
	if p := o.Progress(); p.Total != 0 || p.Percentage != 0 || o.State() != StateCompleted {
		t.Fatalf("progress=%+v state=%s", p, o.State())
	}
}

// ==============================
// Cancellation
// ==============================

// TestCancelBoundary: cancel while chunk 2 of 3 is processing lets it finish; chunk 3 never starts.
func TestCancelBoundary(t *testing.T) {
	o := New(noDelay())

	inChunk2 := make(chan struct{})
	release := make(chan struct{})
	var started []int
	var mu sync.Mutex
	confirm := func(_ context.Context, chunk []int) ([]int, error) {
		mu.Lock()
		started = append(started, chunk[0])
		mu.Unlock()
		if chunk[0] == 10 {
			close(inChunk2)
			<-release
		}
		return chunk, nil
	}

	type outcome struct {
		results []int
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := o.Process(context.Background(), seq(30), KindUpdate, confirm)
		done <- outcome{r, err}
	}()

	<-inChunk2
	if s := countStatus(o.Operations(), StatusProcessing); s != 10 {
		t.Fatalf("chunk 2 should be processing, got %d processing", s)
	}
	o.Cancel()
	close(release)
	res := <-done

	if !errors.Is(res.err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", res.err)
	}
	if len(res.results) != 20 {
		t.Fatalf("results: %d", len(res.results))
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(started, []int{0, 10}) {
		t.Fatalf("chunks started: %v", started)
	}
	ops := o.Operations()
	if countStatus(ops[10:20], StatusCompleted) != 10 || countStatus(ops[20:], StatusPending) != 10 {
		t.Fatalf("unexpected statuses after cancel")
	}
	if p := o.Progress(); p.Completed != 20 || p.Total != 30 {
		t.Fatalf("progress: %+v", p)
	}
	if o.State() != StateCancelled {
		t.Fatalf("state: %s", o.State())
	}
}

func TestCancelInterruptsDelay(t *testing.T) {
	opts := Options[int, int]{Delay: time.Hour}
	var o *Orchestrator[int, int]
	opts.OnProgress = func(Progress) { o.Cancel() }
	o = New(opts)

	var calls atomic.Int32
	start := time.Now()
	_, err := o.Process(context.Background(), seq(20), KindAdd, double(&calls))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if time.Since(start) > time.Second || calls.Load() != 1 {
		t.Fatalf("cancel should cut the pause short; calls=%d", calls.Load())
	}
}

func TestContextCancelStopsAtBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := noDelay()
	opts.OnProgress = func(Progress) { cancel() }
	o := New(opts)

	var calls atomic.Int32
	_, err := o.Process(ctx, seq(20), KindAdd, double(&calls))
	if !errors.Is(err, context.Canceled) || calls.Load() != 1 {
		t.Fatalf("err=%v calls=%d", err, calls.Load())
	}
	if o.State() != StateCancelled {
		t.Fatalf("state: %s", o.State())
	}
}

func TestCancelDoesNotCarryOver(t *testing.T) {
	o := New(noDelay())
	o.Cancel()
	var calls atomic.Int32
	if _, err := o.Process(context.Background(), seq(15), KindAdd, double(&calls)); err != nil {
		t.Fatalf("a cancel before the run must not affect it: %v", err)
	}
}

// ==============================
// Retry & lifecycle
// ==============================

func TestRetryFailedSubset(t *testing.T) {
	o := New(noDelay())
	var calls atomic.Int32
	_, _ = o.Process(context.Background(), seq(25), KindUpdate, double(&calls, 10))

	var retried []int
	results, err := o.Retry(context.Background(), func(_ context.Context, chunk []int) ([]int, error) {
		retried = append(retried, chunk...)
		return chunk, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if !reflect.DeepEqual(retried, seq(20)[10:]) || !reflect.DeepEqual(results, retried) {
		t.Fatalf("retried %v results %v", retried, results)
	}
	ops := o.Operations()
	if len(ops) != 10 || countStatus(ops, StatusCompleted) != 10 || ops[0].Kind != KindUpdate {
		t.Fatalf("retry should be a fresh batch of the failed items: %+v", ops)
	}
	if _, err := o.Retry(context.Background(), double(&calls)); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("expected ErrNothingToRetry, got %v", err)
	}
}

func TestClearAndRunInProgress(t *testing.T) {
	o := New(noDelay())
	release := make(chan struct{})
	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Process(context.Background(), seq(3), KindAdd, func(_ context.Context, c []int) ([]int, error) {
			close(entered)
			<-release
			return c, nil
		})
	}()
	<-entered

	var calls atomic.Int32
	if _, err := o.Process(context.Background(), seq(1), KindAdd, double(&calls)); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if err := o.Clear(); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress from Clear, got %v", err)
	}
	close(release)
	<-done

	if err := o.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(o.Operations()) != 0 || o.State() != StateIdle {
		t.Fatalf("Clear should drop operations")
	}
}

// ==============================
// Speculative adapter
// ==============================

type slot struct {
	ID   string
	Time string
}

func slotList(t *testing.T, initial []slot) *optimistic.List[slot] {
	t.Helper()
	l, err := optimistic.New(initial, optimistic.Options[slot]{Identity: optimistic.Identity[slot]{
		ID:     func(s slot) string { return s.ID },
		WithID: func(s slot, id string) slot { s.ID = id; return s },
	}})
	if err != nil {
		t.Fatalf("optimistic.New: %v", err)
	}
	return l
}

func TestSpeculativeAddRollsBackFailedChunk(t *testing.T) {
	l := slotList(t, nil)
	o := New(Options[slot, slot]{BatchSize: 2, Delay: -1})

	var n int
	confirm := func(_ context.Context, chunk []slot) ([]slot, error) {
		if chunk[0].Time == "10:00" {
			return nil, errChunk
		}
		out := make([]slot, len(chunk))
		for i, s := range chunk {
			n++
			out[i] = slot{ID: fmt.Sprintf("s%d", n), Time: s.Time}
		}
		return out, nil
	}
	items := []slot{{Time: "09:00"}, {Time: "09:30"}, {Time: "10:00"}, {Time: "10:30"}, {Time: "11:00"}}
	results, err := o.Process(context.Background(), items, KindAdd, Speculative(l, KindAdd, confirm))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results: %v", results)
	}
	got := l.Items()
	var times []string
	for _, s := range got {
		if strings.HasPrefix(s.ID, "temp-") {
			t.Fatalf("placeholder left behind: %+v", got)
		}
		times = append(times, s.Time)
	}
	if !reflect.DeepEqual(times, []string{"09:00", "09:30", "11:00"}) {
		t.Fatalf("list after batch: %v", times)
	}
}

func TestSpeculativeDelete(t *testing.T) {
	l := slotList(t, []slot{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	o := New(Options[slot, slot]{BatchSize: 1, Delay: -1})

	confirm := func(_ context.Context, chunk []slot) ([]slot, error) {
		if chunk[0].ID == "b" {
			return nil, errChunk
		}
		return nil, nil
	}
	del := []slot{{ID: "a"}, {ID: "b"}}
	results, err := o.Process(context.Background(), del, KindDelete, Speculative(l, KindDelete, confirm))
	if err != nil || len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("results=%v err=%v", results, err)
	}
	if got := l.Items(); !reflect.DeepEqual(got, []slot{{ID: "b"}, {ID: "c"}}) {
		t.Fatalf("list after delete: %+v", got)
	}
	if countStatus(o.Operations(), StatusFailed) != 1 {
		t.Fatalf("expected one failed delete")
	}
}

func TestSpeculativeUnknownKind(t *testing.T) {
	l := slotList(t, nil)
	if _, err := Speculative(l, Kind("archive"), nil)(context.Background(), nil); err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
}
