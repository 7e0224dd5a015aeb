// Package errors provides structured error types for the finalization core.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the offending foreign handle where one
// exists, plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDrain, errors.KindReleaseFailed).
//		Handle(h).
//		Detail("deallocation raised").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.StaleHandle(h, queuedEpoch, currentEpoch)
//	err := errors.NotInitialized(errors.PhaseEnqueue, "interpreter")
//
// Two failures get dedicated types because callers match on them:
// FinalizationError (a release raised and no subscriber claimed it) and
// IntegrityError (queued releases exceed a live refcount). All errors
// implement the standard error interface and support errors.Is/As.
package errors
