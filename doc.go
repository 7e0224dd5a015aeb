// Package pyembed provides the host-side lifetime machinery for an embedded
// reference-counted interpreter.
//
// A host process with its own garbage collector cannot release foreign
// objects at the moment their wrappers die: the foreign runtime requires its
// global lock for every refcount operation, releases are only safe on
// specific threads or at cooperative safe-points, and a release must never
// disturb an exception that is already propagating inside the interpreter.
// This module solves exactly that reconciliation problem.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct
// responsibilities:
//
//	pyembed/          Root package with the Runtime interop boundary
//	├── finalizer/    Deferred release queue, throttling, drain engine,
//	│                 and the optional reference-count validator
//	├── errors/       Structured error types for debugging
//	├── simulator/    In-process fake interpreter for tests and tooling
//	├── pywasm/       wazero-backed Runtime adapter for interpreters
//	│                 compiled to WebAssembly
//	└── cmd/finsim/   Simulation CLI with a live TUI monitor
//
// # Quick Start
//
// Wire a Finalizer to a runtime and hand it wrapper deaths:
//
//	rt := simulator.New()
//	fin := finalizer.New(rt, finalizer.DefaultConfig())
//	fin.OnInterpreterInit()
//
//	// From any goroutine, including GC finalizer context. The epoch is
//	// the one the wrapper recorded when it took ownership of the handle:
//	fin.Enqueue(handle, epoch)
//
//	// Explicit full drain:
//	if err := fin.Collect(); err != nil {
//	    log.Fatal(err)
//	}
//
//	// At interpreter shutdown:
//	fin.OnInterpreterShutdown()
//
// # Thread Safety
//
// Enqueue is non-blocking and safe from arbitrary goroutines. Drains run
// under the interpreter lock; at most one drain executes at a time. The
// Runtime implementations in simulator and pywasm document their own
// threading rules.
//
// # Restart Safety
//
// The interpreter may be shut down and re-initialized while the host
// process lives on. Every queued release is stamped with the run epoch it
// was created under; releases stamped with an older epoch refer to a heap
// that no longer exists and are reported instead of executed.
package pyembed
