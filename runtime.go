package pyembed

// Handle is an opaque reference into the foreign interpreter's
// reference-counted heap. Handle 0 is reserved and always invalid.
type Handle uint64

// GILState is the token returned by Runtime.Lock and consumed by
// Runtime.Unlock. Its meaning is private to the Runtime implementation.
type GILState uintptr

// ErrState is a snapshot of the interpreter's ambient error: the exception
// type, value, and traceback that were propagating when it was fetched.
// The zero value means "no error pending".
type ErrState struct {
	Type      Handle
	Value     Handle
	Traceback Handle
}

// IsZero reports whether no error was pending when the snapshot was taken.
func (s ErrState) IsZero() bool {
	return s == ErrState{}
}

// Runtime is the interop boundary consumed from the foreign interpreter.
// All refcount and error-state operations require the caller to hold the
// global interpreter lock unless an implementation documents otherwise.
type Runtime interface {
	// Initialized reports whether the interpreter currently has a live heap.
	Initialized() bool

	// Lock acquires the global interpreter lock and returns the token to
	// pass to Unlock.
	Lock() GILState

	// Unlock releases the global interpreter lock.
	Unlock(GILState)

	// IncRef increments the reference count of handle.
	IncRef(Handle)

	// DecRef decrements the reference count of handle. Reaching zero may
	// run arbitrary foreign deallocation code, including code that raises.
	DecRef(Handle)

	// RefCount returns the live reference count of handle, or false if the
	// handle does not name a live object.
	RefCount(Handle) (int64, bool)

	// ErrOccurred reports whether an ambient error is currently set.
	ErrOccurred() bool

	// ErrFetch captures and clears the ambient error state.
	ErrFetch() ErrState

	// ErrRestore reinstates a previously fetched error state. Restoring a
	// zero snapshot clears any pending error.
	ErrRestore(ErrState)

	// ErrString renders a fetched error state for diagnostics. The
	// snapshot remains owned by the caller.
	ErrString(ErrState) string

	// AddPendingCall schedules fn to run on the interpreter's own thread
	// at the next cooperative safe-point. Returns false if the call could
	// not be scheduled (for example, the interpreter is not initialized).
	AddPendingCall(fn func()) bool
}
