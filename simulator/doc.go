// Package simulator provides an in-process reference-counted interpreter
// implementing the pyembed.Runtime boundary.
//
// The simulator exists so the finalization core can be exercised without a
// real embedded interpreter: it keeps an object table with reference
// counts, a global lock, ambient error state with fetch/restore semantics,
// a pending-call queue consumed by a designated owner goroutine, and full
// Initialize/Finalize lifetime cycles. Finalize destroys the heap; handles
// created before it never resolve again, which is exactly the condition the
// run-epoch machinery must detect.
//
// Failure injection: objects created with NewFailingObject raise an ambient
// error when their deallocation runs, modeling foreign destructors that
// call back into user-level code and fail.
//
// The simulator backs the test suites and the cmd/finsim workload driver.
// It is not a performance model; every operation takes an internal lock.
package simulator
