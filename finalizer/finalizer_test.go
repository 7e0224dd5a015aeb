package finalizer

import (
	"sync"
	"testing"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
	"github.com/VidyaBipin/pythonnet-Csharp-python/simulator"
)

type collectCounter struct {
	mu     sync.Mutex
	events []CollectionEvent
}

func (c *collectCounter) OnCollectionStart(e CollectionEvent) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collectCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type errorRecorder struct {
	mu     sync.Mutex
	events []ErrorEvent
	claim  bool
}

func (r *errorRecorder) OnFinalizeError(e *ErrorEvent) {
	r.mu.Lock()
	r.events = append(r.events, *e)
	r.mu.Unlock()
	if r.claim {
		e.Handled = true
	}
}

func (r *errorRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newStarted(t *testing.T, cfg Config) (*simulator.Interpreter, *Finalizer) {
	t.Helper()
	in := simulator.New()
	in.Initialize()
	fin := New(in, cfg)
	fin.OnInterpreterInit()
	return in, fin
}

// enqueueLive creates a one-reference object and enqueues it under the
// current epoch, the way a wrapper finalized in the same lifetime would.
func enqueueLive(in *simulator.Interpreter, fin *Finalizer) pyembed.Handle {
	h := in.NewObject(1)
	fin.Enqueue(h, fin.Epoch())
	return h
}

func TestAutoDrainAtEveryThreshold(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 5, AutoCollect: true})
	drains := &collectCounter{}
	fin.SubscribeCollection(drains)

	for i := 0; i < 15; i++ {
		enqueueLive(in, fin)
	}

	// Drains at the 5th, 10th, and 15th enqueue.
	if got := drains.count(); got != 3 {
		t.Fatalf("drains = %d, want 3", got)
	}
	if fin.Depth() != 0 {
		t.Fatalf("depth = %d, want 0", fin.Depth())
	}
}

func TestThreshold200Leaves50Queued(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 200, AutoCollect: true})
	drains := &collectCounter{}
	fin.SubscribeCollection(drains)

	for i := 0; i < 250; i++ {
		enqueueLive(in, fin)
	}

	if got := drains.count(); got != 1 {
		t.Fatalf("drains = %d, want exactly 1", got)
	}
	if fin.Depth() != 50 {
		t.Fatalf("depth = %d, want 50", fin.Depth())
	}
	if got := fin.Stats().Released; got != 200 {
		t.Fatalf("released = %d, want 200", got)
	}
}

func TestCollectIgnoresCounter(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 100, AutoCollect: true})

	enqueueLive(in, fin)
	enqueueLive(in, fin)
	if err := fin.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if fin.Depth() != 0 {
		t.Fatalf("depth = %d, want 0", fin.Depth())
	}
	if in.Objects() != 0 {
		t.Fatalf("live objects = %d, want 0", in.Objects())
	}
}

func TestConfigureDisablesAutoDrains(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 2, AutoCollect: true})
	drains := &collectCounter{}
	fin.SubscribeCollection(drains)

	fin.Configure(2, false)
	for i := 0; i < 10; i++ {
		enqueueLive(in, fin)
	}
	if drains.count() != 0 {
		t.Fatalf("drains = %d, want 0 while disabled", drains.count())
	}
	if fin.Depth() != 10 {
		t.Fatalf("depth = %d, want 10", fin.Depth())
	}

	// Explicit drains still work, and the counter kept advancing while
	// disabled, so re-enabling drains on the very next enqueue.
	if err := fin.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	fin.Configure(2, true)
	enqueueLive(in, fin)
	if drains.count() != 2 {
		t.Fatalf("drains = %d, want 2 after re-enable", drains.count())
	}
}

func TestCollectionEventCarriesDepth(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 3, AutoCollect: true})
	drains := &collectCounter{}
	fin.SubscribeCollection(drains)

	for i := 0; i < 3; i++ {
		enqueueLive(in, fin)
	}
	if drains.count() != 1 {
		t.Fatalf("drains = %d, want 1", drains.count())
	}
	if got := drains.events[0].Depth; got != 3 {
		t.Fatalf("event depth = %d, want 3", got)
	}
}

func TestPendingCallDrain(t *testing.T) {
	in := simulator.New()
	in.Initialize()
	fin := New(in, Config{Threshold: 2, AutoCollect: true, UsePendingCall: true})
	fin.OnInterpreterInit()

	enqueueLive(in, fin)
	enqueueLive(in, fin)

	// The drain is scheduled, not executed, until the interpreter's own
	// thread reaches a safe-point.
	if fin.Depth() != 2 {
		t.Fatalf("depth = %d, want 2 before pending calls run", fin.Depth())
	}
	if n := in.RunPendingCalls(); n != 1 {
		t.Fatalf("pending calls = %d, want 1", n)
	}
	if fin.Depth() != 0 {
		t.Fatalf("depth = %d, want 0 after pending drain", fin.Depth())
	}
}

func TestEnqueueWhileDownIsDropped(t *testing.T) {
	in := simulator.New() // never initialized
	fin := New(in, DefaultConfig())

	fin.Enqueue(42, 1)
	if fin.Depth() != 0 {
		t.Fatalf("depth = %d, want 0", fin.Depth())
	}
	if got := fin.Stats().Dropped; got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
}

func TestZeroHandleIgnored(t *testing.T) {
	_, fin := newStarted(t, DefaultConfig())
	fin.Enqueue(0, fin.Epoch())
	if fin.Depth() != 0 || fin.Stats().Enqueued != 0 {
		t.Fatal("zero handle should be ignored entirely")
	}
}

func TestSnapshotIsNonDestructive(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 100, AutoCollect: true})

	want := make([]pyembed.Handle, 0, 3)
	for i := 0; i < 3; i++ {
		h := in.NewObject(1)
		want = append(want, h)
		fin.Enqueue(h, fin.Epoch())
	}

	snap := fin.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot length = %d, want 3", len(snap))
	}
	for i, h := range snap {
		if h != want[i] {
			t.Fatalf("snapshot[%d] = %d, want %d", i, h, want[i])
		}
	}
	if fin.Depth() != 3 {
		t.Fatalf("depth = %d, want 3 after snapshot", fin.Depth())
	}
}

func TestShutdownForcesFinalDrain(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 1000, AutoCollect: true})

	for i := 0; i < 7; i++ {
		enqueueLive(in, fin)
	}
	if err := fin.OnInterpreterShutdown(); err != nil {
		t.Fatalf("OnInterpreterShutdown: %v", err)
	}
	if fin.Started() {
		t.Fatal("finalizer still started after shutdown")
	}
	if in.Objects() != 0 {
		t.Fatalf("live objects = %d, want 0 after forced drain", in.Objects())
	}

	// Collect after shutdown refuses rather than touching a dead heap.
	if err := fin.Collect(); err == nil {
		t.Fatal("Collect after shutdown should fail")
	}
}

func TestStaleAcrossRestart(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 1000, AutoCollect: true})
	errs := &errorRecorder{}
	fin.SubscribeError(errs)

	h := in.NewObject(1)
	fin.Enqueue(h, fin.Epoch())

	// The runtime dies before the finalizer hears about shutdown, so the
	// queued release survives into the next lifetime.
	in.Finalize()
	if err := fin.OnInterpreterShutdown(); err != nil {
		t.Fatalf("OnInterpreterShutdown: %v", err)
	}
	in.Initialize()
	fin.OnInterpreterInit()

	if err := fin.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if in.DecRefs() != 0 {
		t.Fatalf("DecRefs = %d, want 0: stale handle must never be released", in.DecRefs())
	}
	if errs.count() != 1 {
		t.Fatalf("error reports = %d, want exactly 1", errs.count())
	}
	if got := fin.Stats().Stale; got != 1 {
		t.Fatalf("stale = %d, want 1", got)
	}
}

func TestEnqueueAfterRestartReportsStale(t *testing.T) {
	in, fin := newStarted(t, Config{Threshold: 1000, AutoCollect: true})
	errs := &errorRecorder{}
	fin.SubscribeError(errs)

	// The wrapper takes ownership in the first lifetime and records the
	// epoch it saw, but is not finalized until after a full restart.
	h := in.NewObject(1)
	epoch := fin.Epoch()

	if err := fin.OnInterpreterShutdown(); err != nil {
		t.Fatalf("OnInterpreterShutdown: %v", err)
	}
	in.Finalize()
	in.Initialize()
	fin.OnInterpreterInit()

	fin.Enqueue(h, epoch)
	if err := fin.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if in.DecRefs() != 0 {
		t.Fatalf("DecRefs = %d, want 0: dead-heap handle must never be released", in.DecRefs())
	}
	if got := fin.Stats().Released; got != 0 {
		t.Fatalf("released = %d, want 0", got)
	}
	if got := fin.Stats().Stale; got != 1 {
		t.Fatalf("stale = %d, want 1", got)
	}
	if errs.count() != 1 {
		t.Fatalf("error reports = %d, want exactly 1", errs.count())
	}
}

func TestConcurrentEnqueueExactlyOnce(t *testing.T) {
	const producers = 8
	const perProducer = 500

	in, fin := newStarted(t, Config{Threshold: 64, AutoCollect: true})

	handles := make([][]pyembed.Handle, producers)
	for p := range handles {
		handles[p] = make([]pyembed.Handle, perProducer)
		for i := range handles[p] {
			handles[p][i] = in.NewObject(1)
		}
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(hs []pyembed.Handle) {
			defer wg.Done()
			for _, h := range hs {
				fin.Enqueue(h, fin.Epoch())
			}
		}(handles[p])
	}
	wg.Wait()

	if err := fin.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	const total = producers * perProducer
	s := fin.Stats()
	if got := s.Released + s.Stale + s.Failed; got != total {
		t.Fatalf("resolutions = %d, want %d", got, total)
	}
	if in.Objects() != 0 {
		t.Fatalf("live objects = %d, want 0", in.Objects())
	}
	if in.DecRefs() != total {
		t.Fatalf("DecRefs = %d, want %d: duplicate or missing resolution", in.DecRefs(), total)
	}
}
