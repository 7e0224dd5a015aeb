// Package finalizer implements deferred, throttled release of foreign
// handles owned by dead host-side wrappers.
//
// A wrapper that becomes unreachable owes the foreign interpreter exactly
// one reference-count decrement, but the decrement cannot happen where the
// wrapper died: it needs the global interpreter lock, it may run arbitrary
// foreign deallocation code, and it must not disturb an exception already
// propagating inside the interpreter. The Finalizer accepts that owed
// decrement from any goroutine without blocking and pays it later, in
// batches, under the lock.
//
// # Enqueue and Drain
//
// Enqueue is the producer side: lock-free, never fails, safe from GC
// finalizer context. Every entry carries the run epoch the wrapper recorded
// when it took ownership of the handle; a wrapper finalized after a restart
// still reports the lifetime its handle belonged to. Drains consume the
// queue in FIFO order while holding the interpreter lock:
//
//	fin := finalizer.New(rt, finalizer.DefaultConfig())
//	fin.OnInterpreterInit()
//
//	w := &Wrapper{handle: h, epoch: fin.Epoch()}
//	runtime.SetFinalizer(w, func(w *Wrapper) {
//	    fin.Enqueue(w.handle, w.epoch)
//	})
//
// Automatic drains fire every Threshold enqueues while AutoCollect is on.
// Collect forces a drain; OnInterpreterShutdown forces one final drain.
//
// # Restart Safety
//
// OnInterpreterInit bumps the run epoch. A queued release stamped with an
// older epoch refers to a heap that no longer exists: it is reported to
// error subscribers and never released.
//
// # Error Isolation
//
// The ambient error state is captured before the first release and restored
// on every exit path. A release that raises is offered to error subscribers
// with a claimable Handled flag; unclaimed, it aborts the drain with a
// FinalizationError carrying the offending handle. Entries left unprocessed
// by an aborted drain stay owed and are consumed by the next drain.
//
// # Reference-Count Validation
//
// With Config.ValidateRefCounts, each drain is preceded by a pass that
// groups queued releases by handle and compares the totals against the live
// reference counts the runtime reports. Findings go through the registered
// resolver chain; unresolved findings are fatal in strict mode and logged
// otherwise. The audit map is built only inside the pass, never on the
// enqueue path. Intended for development builds, not production hot paths.
package finalizer
