package simulator

import (
	"fmt"
	"sync"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
)

type object struct {
	label       string
	refs        int64
	failRelease bool
}

// Interpreter is a fake reference-counted interpreter. It implements
// pyembed.Runtime.
//
// The gil mutex is the protocol lock handed out by Lock/Unlock; the object
// table has its own internal lock so that helper methods stay callable from
// tests without GIL ceremony.
type Interpreter struct {
	gil sync.Mutex

	mu          sync.Mutex
	initialized bool
	objects     map[pyembed.Handle]*object
	nextHandle  uint64
	ambient     pyembed.ErrState

	pendMu  sync.Mutex
	pending []func()

	decrefs uint64
}

var _ pyembed.Runtime = (*Interpreter)(nil)

// New returns an interpreter with no live heap. Call Initialize to bring
// one up.
func New() *Interpreter {
	return &Interpreter{}
}

// Initialize brings up a fresh heap. Handles from any previous lifetime are
// permanently dead.
func (in *Interpreter) Initialize() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.initialized = true
	in.objects = make(map[pyembed.Handle]*object)
	in.ambient = pyembed.ErrState{}
}

// Finalize tears down the heap. Pending calls are discarded.
func (in *Interpreter) Finalize() {
	in.mu.Lock()
	in.initialized = false
	in.objects = nil
	in.ambient = pyembed.ErrState{}
	in.mu.Unlock()

	in.pendMu.Lock()
	in.pending = nil
	in.pendMu.Unlock()
}

// Initialized reports whether a heap is live.
func (in *Interpreter) Initialized() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.initialized
}

// Lock acquires the global interpreter lock.
func (in *Interpreter) Lock() pyembed.GILState {
	in.gil.Lock()
	return 1
}

// Unlock releases the global interpreter lock.
func (in *Interpreter) Unlock(pyembed.GILState) {
	in.gil.Unlock()
}

// NewObject creates an object with the given reference count and returns
// its handle.
func (in *Interpreter) NewObject(refs int64) pyembed.Handle {
	return in.alloc(&object{refs: refs})
}

// NewFailingObject creates an object whose deallocation raises.
func (in *Interpreter) NewFailingObject(refs int64) pyembed.Handle {
	return in.alloc(&object{refs: refs, failRelease: true})
}

func (in *Interpreter) alloc(o *object) pyembed.Handle {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.initialized {
		return 0
	}
	in.nextHandle++
	h := pyembed.Handle(in.nextHandle)
	in.objects[h] = o
	return h
}

// IncRef increments the reference count of h. Unknown handles are ignored.
func (in *Interpreter) IncRef(h pyembed.Handle) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if o, ok := in.objects[h]; ok {
		o.refs++
	}
}

// DecRef decrements the reference count of h, deallocating at zero.
// Deallocating a failing object sets the ambient error, the way a foreign
// destructor that raises would.
func (in *Interpreter) DecRef(h pyembed.Handle) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.decrefs++
	o, ok := in.objects[h]
	if !ok {
		return
	}
	o.refs--
	if o.refs > 0 {
		return
	}
	delete(in.objects, h)
	if o.failRelease {
		in.ambient = in.raiseLocked(fmt.Sprintf("SimulatedError: deallocation of 0x%x raised", uint64(h)))
	}
}

// RefCount returns the live reference count of h.
func (in *Interpreter) RefCount(h pyembed.Handle) (int64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	o, ok := in.objects[h]
	if !ok {
		return 0, false
	}
	return o.refs, true
}

// ErrOccurred reports whether an ambient error is set.
func (in *Interpreter) ErrOccurred() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return !in.ambient.IsZero()
}

// ErrFetch captures and clears the ambient error.
func (in *Interpreter) ErrFetch() pyembed.ErrState {
	in.mu.Lock()
	defer in.mu.Unlock()
	s := in.ambient
	in.ambient = pyembed.ErrState{}
	return s
}

// ErrRestore reinstates a fetched error state.
func (in *Interpreter) ErrRestore(s pyembed.ErrState) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ambient = s
}

// ErrString renders a fetched error state.
func (in *Interpreter) ErrString(s pyembed.ErrState) string {
	if s.IsZero() {
		return ""
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if o, ok := in.objects[s.Value]; ok && o.label != "" {
		return o.label
	}
	return fmt.Sprintf("<error value 0x%x>", uint64(s.Value))
}

// RaiseError sets the ambient error to a new exception carrying msg and
// returns its snapshot.
func (in *Interpreter) RaiseError(msg string) pyembed.ErrState {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.ambient = in.raiseLocked(msg)
	return in.ambient
}

func (in *Interpreter) raiseLocked(msg string) pyembed.ErrState {
	in.nextHandle++
	v := pyembed.Handle(in.nextHandle)
	in.objects[v] = &object{refs: 1, label: msg}
	return pyembed.ErrState{Value: v}
}

// AmbientError returns the current ambient error without clearing it.
func (in *Interpreter) AmbientError() pyembed.ErrState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.ambient
}

// AddPendingCall schedules fn for the next RunPendingCalls. Returns false
// while no heap is live.
func (in *Interpreter) AddPendingCall(fn func()) bool {
	if !in.Initialized() {
		return false
	}
	in.pendMu.Lock()
	in.pending = append(in.pending, fn)
	in.pendMu.Unlock()
	return true
}

// RunPendingCalls executes queued pending calls on the calling goroutine,
// which stands in for the interpreter's own thread at a safe-point. Returns
// the number of calls run.
func (in *Interpreter) RunPendingCalls() int {
	in.pendMu.Lock()
	calls := in.pending
	in.pending = nil
	in.pendMu.Unlock()
	for _, fn := range calls {
		fn()
	}
	return len(calls)
}

// Objects returns the number of live objects.
func (in *Interpreter) Objects() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.objects)
}

// DecRefs returns the total number of DecRef calls observed, including
// calls against dead handles.
func (in *Interpreter) DecRefs() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.decrefs
}
