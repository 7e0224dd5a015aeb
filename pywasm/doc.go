// Package pywasm adapts an interpreter compiled to WebAssembly to the
// pyembed.Runtime boundary, using wazero as the execution engine.
//
// The guest module must export the interpreter's lifetime and refcount
// primitives under a fixed ABI:
//
//	py_initialize()                      bring up the heap
//	py_finalize()                        tear down the heap
//	py_initialized() -> i32              non-zero while a heap is live
//	py_incref(h i64)                     increment refcount
//	py_decref(h i64)                     decrement refcount, may deallocate
//	py_refcnt(h i64) -> i64              live refcount, 0 for dead handles
//	py_err_occurred() -> i32             ambient error pending
//	py_err_fetch(out i32)                write type/value/traceback (3×i64)
//	                                     to out and clear the ambient error
//	py_err_restore(t i64, v i64, tb i64) reinstate an error triple
//	malloc(n i32) -> i32                 scratch allocation for out-params
//
// Optionally, py_err_repr(v i64, buf i32, cap i32) -> i32 renders an error
// value into buf; without it, ErrString falls back to a numeric rendering.
//
// Wazero modules are single-threaded, so the global interpreter lock is a
// host mutex: every exported call is made while holding it. Pending calls
// are queued host-side; the goroutine that owns the instance runs them at
// its safe-points via RunPendingCalls.
package pywasm
