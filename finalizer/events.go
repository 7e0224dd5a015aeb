package finalizer

import (
	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
)

// CollectionEvent announces a drain that is about to consume the queue.
type CollectionEvent struct {
	// Depth is the number of releases pending when the drain started.
	Depth int
}

// CollectionObserver receives collection-starting notifications.
type CollectionObserver interface {
	OnCollectionStart(CollectionEvent)
}

// ErrorEvent carries a finalization error to error subscribers. The event
// is delivered to every subscriber in registration order; any of them may
// set Handled to claim the error and stop escalation. Stale-handle reports
// are never escalated regardless of Handled.
type ErrorEvent struct {
	Err     error
	Handle  pyembed.Handle
	Handled bool
}

// ErrorObserver receives finalization error reports.
type ErrorObserver interface {
	OnFinalizeError(*ErrorEvent)
}

// Finding is one reference-count discrepancy detected by the validation
// pre-pass: more releases queued for Handle than the live object reports
// holding. Live is 0 if the handle no longer names a live object.
type Finding struct {
	Handle pyembed.Handle
	Queued int
	Live   int64
}

// RefCountResolver inspects a Finding and returns true to claim it. Claimed
// findings are considered resolved and suppress escalation; resolvers run
// in registration order until one claims.
type RefCountResolver interface {
	Resolve(Finding) bool
}
