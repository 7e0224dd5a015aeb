package errors

import (
	"fmt"
	"strings"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
)

// Phase indicates where in the finalization pipeline the error occurred
type Phase string

const (
	PhaseEnqueue  Phase = "enqueue"  // wrapper death notification
	PhaseDrain    Phase = "drain"    // queue consumption and release
	PhaseValidate Phase = "validate" // refcount validation pre-pass
	PhaseRuntime  Phase = "runtime"  // interop boundary operations
	PhaseShutdown Phase = "shutdown" // interpreter teardown
	PhaseLoad     Phase = "load"     // runtime adapter loading
)

// Kind categorizes the error
type Kind string

const (
	KindStaleHandle    Kind = "stale_handle"
	KindReleaseFailed  Kind = "release_failed"
	KindRefIntegrity   Kind = "ref_integrity"
	KindNotInitialized Kind = "not_initialized"
	KindNotFound       Kind = "not_found"
	KindInvalidInput   Kind = "invalid_input"
	KindAllocation     Kind = "allocation"
	KindInstantiation  Kind = "instantiation"
)

// Error is the structured error type used throughout the module
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Handle pyembed.Handle
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Handle != 0 {
		fmt.Fprintf(&b, " handle=0x%x", uint64(e.Handle))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle sets the offending handle
func (b *Builder) Handle(h pyembed.Handle) *Builder {
	b.err.Handle = h
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// StaleHandle creates the error reported for a release queued under an
// older interpreter lifetime. queued and current are run epochs.
func StaleHandle(h pyembed.Handle, queued, current uint64) *Error {
	return &Error{
		Phase:  PhaseDrain,
		Kind:   KindStaleHandle,
		Handle: h,
		Detail: fmt.Sprintf("queued at epoch %d, interpreter is at epoch %d; the heap this handle pointed into no longer exists", queued, current),
	}
}

// NotInitialized creates a not-initialized error for a missing interpreter
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate interpreter module",
		Cause:  cause,
	}
}

// Load creates a runtime adapter loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// FinalizationError is the fatal escalation of a release that raised inside
// the foreign runtime and that no subscriber claimed. It carries the
// offending handle so a caller can post-mortem on the object without
// re-deriving ownership; the core no longer owns the handle.
type FinalizationError struct {
	Cause   error
	Ambient string
	Handle  pyembed.Handle
}

func (e *FinalizationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[drain] %s handle=0x%x: release raised inside the foreign runtime", KindReleaseFailed, uint64(e.Handle))
	if e.Ambient != "" {
		b.WriteString(": ")
		b.WriteString(e.Ambient)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *FinalizationError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error type
func (e *FinalizationError) Is(target error) bool {
	_, ok := target.(*FinalizationError)
	return ok
}

// IntegrityError reports that more releases are queued for a handle than
// the live foreign object can give up. This is a double-free-class bug in
// whoever handed out the wrapper, not in the queue itself.
type IntegrityError struct {
	Handle pyembed.Handle
	Queued int
	Live   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("[validate] %s handle=0x%x: %d releases queued but object reports %d live references",
		KindRefIntegrity, uint64(e.Handle), e.Queued, e.Live)
}

// Is reports whether target matches this error type
func (e *IntegrityError) Is(target error) bool {
	_, ok := target.(*IntegrityError)
	return ok
}
