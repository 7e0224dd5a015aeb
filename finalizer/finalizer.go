package finalizer

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
	"github.com/VidyaBipin/pythonnet-Csharp-python/errors"
)

// DefaultThreshold is the number of enqueues between automatic drains when
// Config.Threshold is zero.
const DefaultThreshold = 200

// Config holds construction-time configuration for a Finalizer.
type Config struct {
	// Threshold sets how many enqueues accumulate before an automatic
	// drain fires. 0 means DefaultThreshold.
	Threshold uint32

	// AutoCollect enables throttle-triggered drains. Explicit Collect and
	// shutdown drains work regardless.
	AutoCollect bool

	// UsePendingCall routes automatic drains through the runtime's
	// pending-call mechanism so they execute on the interpreter's own
	// thread at a safe-point, instead of synchronously on the enqueuing
	// goroutine. If scheduling fails the drain falls back to synchronous.
	UsePendingCall bool

	// ValidateRefCounts enables the diagnostic reference-count validation
	// pre-pass on every drain. Not intended for production hot paths.
	ValidateRefCounts bool

	// StrictValidation escalates unresolved validation findings as fatal
	// IntegrityError values. Ignored unless ValidateRefCounts is set.
	StrictValidation bool
}

// DefaultConfig returns the production configuration: automatic drains
// every DefaultThreshold enqueues, no validation.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, AutoCollect: true}
}

// Finalizer is the process-wide deferred release state. Create one per
// embedded interpreter and keep it for the life of the process; it survives
// interpreter shutdown/init cycles.
type Finalizer struct {
	rt pyembed.Runtime

	threshold atomic.Uint32
	enabled   atomic.Bool
	counter   atomic.Uint32
	epoch     atomic.Uint64
	started   atomic.Bool

	queue releaseQueue

	// leftover holds entries detached by a drain that aborted before
	// resolving them. Consumer side only; pendMu keeps Snapshot and the
	// validator coherent with it.
	pendMu   sync.Mutex
	leftover []pendingRelease

	obsMu      sync.RWMutex
	collectObs []CollectionObserver
	errorObs   []ErrorObserver
	resolvers  []RefCountResolver

	// drainMu serializes drains in diagnostic mode. Outside diagnostic
	// mode the interpreter lock already serializes them.
	drainMu sync.Mutex

	// draining suppresses throttle-triggered drains for enqueues made by
	// foreign deallocation code running inside a drain.
	draining atomic.Bool

	usePendingCall bool
	validate       bool
	strict         bool

	stats counters
}

type counters struct {
	enqueued atomic.Uint64
	dropped  atomic.Uint64
	released atomic.Uint64
	stale    atomic.Uint64
	failed   atomic.Uint64
	drains   atomic.Uint64
	findings atomic.Uint64
}

// Stats is a point-in-time snapshot of the Finalizer's counters.
type Stats struct {
	Enqueued uint64 // accepted enqueues
	Dropped  uint64 // enqueues refused because the interpreter was down
	Released uint64 // decrements performed
	Stale    uint64 // entries rejected for crossing a restart
	Failed   uint64 // releases that raised inside the foreign runtime
	Drains   uint64 // drains executed
	Findings uint64 // validator discrepancies detected
}

// New creates a Finalizer bound to rt. The Finalizer starts idle; call
// OnInterpreterInit once the interpreter is up.
func New(rt pyembed.Runtime, cfg Config) *Finalizer {
	f := &Finalizer{
		rt:             rt,
		usePendingCall: cfg.UsePendingCall,
		validate:       cfg.ValidateRefCounts,
		strict:         cfg.StrictValidation,
	}
	t := cfg.Threshold
	if t == 0 {
		t = DefaultThreshold
	}
	f.threshold.Store(t)
	f.enabled.Store(cfg.AutoCollect)
	return f
}

// Enqueue records one owed decrement for h. epoch is the run epoch the
// wrapper captured from Epoch when it took ownership of the handle; it is
// what lets a drain recognize a handle whose heap died in a restart, so it
// must never be read at enqueue time. Fire-and-forget: Enqueue never
// blocks, never fails, and is safe from arbitrary goroutines including GC
// finalizer context. If the interpreter is not initialized the owed
// decrement is dropped; there is no heap left to release into.
func (f *Finalizer) Enqueue(h pyembed.Handle, epoch uint64) {
	if h == 0 {
		return
	}
	if !f.rt.Initialized() {
		f.stats.dropped.Add(1)
		return
	}
	f.queue.push(h, epoch)
	f.stats.enqueued.Add(1)
	f.tick()
}

// tick is the throttle controller: count the enqueue and trigger an
// automatic drain every threshold enqueues. The counter advances even
// while automatic draining is disabled; uint32 wraparound is harmless.
func (f *Finalizer) tick() {
	c := f.counter.Add(1)
	if !f.enabled.Load() || !f.started.Load() || f.draining.Load() {
		return
	}
	t := f.threshold.Load()
	if t == 0 || c < t {
		return
	}
	f.counter.Store(0)

	if f.usePendingCall && f.rt.AddPendingCall(f.autoCollect) {
		return
	}
	f.autoCollect()
}

func (f *Finalizer) autoCollect() {
	if err := f.Collect(); err != nil {
		Logger().Error("automatic collection failed", zap.Error(err))
	}
}

// Collect drains the queue now, synchronously, regardless of the throttle
// counter. It blocks until the interpreter lock is acquired and runs the
// drain to completion; the returned error is a FinalizationError or
// IntegrityError escalated out of the drain.
func (f *Finalizer) Collect() error {
	if !f.started.Load() || !f.rt.Initialized() {
		return errors.NotInitialized(errors.PhaseDrain, "interpreter")
	}
	g := f.rt.Lock()
	defer f.rt.Unlock(g)
	return f.drain()
}

// Configure tunes the throttle policy. Both knobs are live: threshold
// applies from the next enqueue, and disabling stops automatic drains
// without stopping enqueues or explicit drains.
func (f *Finalizer) Configure(threshold uint32, enabled bool) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	f.threshold.Store(threshold)
	f.enabled.Store(enabled)
}

// OnInterpreterInit marks the start of a new interpreter lifetime: the run
// epoch advances and the throttle counter resets. Entries queued under
// earlier epochs become stale.
func (f *Finalizer) OnInterpreterInit() {
	f.epoch.Add(1)
	f.counter.Store(0)
	f.started.Store(true)
	Logger().Debug("interpreter initialized", zap.Uint64("epoch", f.epoch.Load()))
}

// OnInterpreterShutdown forces one final unconditional drain and stops the
// Finalizer until the next OnInterpreterInit. The drain error, if any, is
// returned after the Finalizer is stopped.
func (f *Finalizer) OnInterpreterShutdown() error {
	if !f.started.Load() {
		return nil
	}
	var err error
	if f.rt.Initialized() {
		// Final unconditional drain while there is still a heap to
		// release into. If the runtime beat us to teardown, queued
		// entries stay put and go stale at the next init.
		err = f.Collect()
	}
	f.started.Store(false)
	Logger().Debug("interpreter shut down", zap.Uint64("epoch", f.epoch.Load()))
	return err
}

// Snapshot returns the handles currently queued for release, oldest first.
// Diagnostic read; the queue is not mutated.
func (f *Finalizer) Snapshot() []pyembed.Handle {
	entries := f.snapshotEntries()
	if len(entries) == 0 {
		return nil
	}
	out := make([]pyembed.Handle, len(entries))
	for i, e := range entries {
		out[i] = e.handle
	}
	return out
}

// snapshotEntries returns leftover entries from an aborted drain followed
// by the live queue contents, oldest first.
func (f *Finalizer) snapshotEntries() []pendingRelease {
	f.pendMu.Lock()
	pending := make([]pendingRelease, len(f.leftover))
	copy(pending, f.leftover)
	f.pendMu.Unlock()
	return append(pending, f.queue.walk()...)
}

// Epoch returns the current run epoch.
func (f *Finalizer) Epoch() uint64 {
	return f.epoch.Load()
}

// Started reports whether the Finalizer is between OnInterpreterInit and
// OnInterpreterShutdown.
func (f *Finalizer) Started() bool {
	return f.started.Load()
}

// Depth returns the number of releases currently pending.
func (f *Finalizer) Depth() int {
	f.pendMu.Lock()
	n := len(f.leftover)
	f.pendMu.Unlock()
	return n + f.queue.len()
}

// Stats returns a snapshot of the Finalizer's counters.
func (f *Finalizer) Stats() Stats {
	return Stats{
		Enqueued: f.stats.enqueued.Load(),
		Dropped:  f.stats.dropped.Load(),
		Released: f.stats.released.Load(),
		Stale:    f.stats.stale.Load(),
		Failed:   f.stats.failed.Load(),
		Drains:   f.stats.drains.Load(),
		Findings: f.stats.findings.Load(),
	}
}

// SubscribeCollection adds an observer for collection-starting events.
func (f *Finalizer) SubscribeCollection(o CollectionObserver) {
	f.obsMu.Lock()
	defer f.obsMu.Unlock()
	f.collectObs = append(f.collectObs, o)
}

// UnsubscribeCollection removes a collection observer.
func (f *Finalizer) UnsubscribeCollection(o CollectionObserver) {
	f.obsMu.Lock()
	defer f.obsMu.Unlock()
	for i, obs := range f.collectObs {
		if obs == o {
			f.collectObs = append(f.collectObs[:i], f.collectObs[i+1:]...)
			return
		}
	}
}

// SubscribeError adds an observer for finalization error reports.
func (f *Finalizer) SubscribeError(o ErrorObserver) {
	f.obsMu.Lock()
	defer f.obsMu.Unlock()
	f.errorObs = append(f.errorObs, o)
}

// UnsubscribeError removes an error observer.
func (f *Finalizer) UnsubscribeError(o ErrorObserver) {
	f.obsMu.Lock()
	defer f.obsMu.Unlock()
	for i, obs := range f.errorObs {
		if obs == o {
			f.errorObs = append(f.errorObs[:i], f.errorObs[i+1:]...)
			return
		}
	}
}

// AddResolver appends r to the validation resolver chain.
func (f *Finalizer) AddResolver(r RefCountResolver) {
	f.obsMu.Lock()
	defer f.obsMu.Unlock()
	f.resolvers = append(f.resolvers, r)
}

func (f *Finalizer) notifyCollection(e CollectionEvent) {
	f.obsMu.RLock()
	defer f.obsMu.RUnlock()
	for _, o := range f.collectObs {
		o.OnCollectionStart(e)
	}
}

func (f *Finalizer) notifyError(e *ErrorEvent) {
	f.obsMu.RLock()
	defer f.obsMu.RUnlock()
	for _, o := range f.errorObs {
		o.OnFinalizeError(e)
	}
}

func (f *Finalizer) resolveFinding(finding Finding) bool {
	f.obsMu.RLock()
	defer f.obsMu.RUnlock()
	for _, r := range f.resolvers {
		if r.Resolve(finding) {
			return true
		}
	}
	return false
}
