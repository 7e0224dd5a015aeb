package pywasm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
	"github.com/VidyaBipin/pythonnet-Csharp-python/errors"
)

// Guest-memory scratch block layout: py_err_fetch writes its three i64
// out-params at offset 0; py_err_repr reuses the same block for its string.
const (
	scratchSize = 256
	reprCap     = scratchSize
)

// Runtime drives a WebAssembly interpreter build through the pyembed
// boundary. All guest calls are serialized by the GIL mutex; the instance
// itself is single-threaded.
type Runtime struct {
	gil sync.Mutex

	// up mirrors the guest's initialized flag so that Initialized never
	// has to wait for the lock; Enqueue reads it from arbitrary
	// goroutines while a drain may be holding the GIL.
	up atomic.Bool

	ctx context.Context
	wrt wazero.Runtime
	mod api.Module
	mem api.Memory

	fnInitialize  api.Function
	fnFinalize    api.Function
	fnInitialized api.Function
	fnIncRef      api.Function
	fnDecRef      api.Function
	fnRefCount    api.Function
	fnErrOccurred api.Function
	fnErrFetch    api.Function
	fnErrRestore  api.Function
	fnErrRepr     api.Function // optional

	scratch uint32

	pendMu  sync.Mutex
	pending []func()
}

var _ pyembed.Runtime = (*Runtime)(nil)

// Load compiles and instantiates wasm and resolves the interpreter ABI.
// ctx is retained for the lifetime of the Runtime and bounds every guest
// call.
func Load(ctx context.Context, wasm []byte) (*Runtime, error) {
	wrt := wazero.NewRuntime(ctx)

	mod, err := wrt.Instantiate(ctx, wasm)
	if err != nil {
		wrt.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	r := &Runtime{ctx: ctx, wrt: wrt, mod: mod, mem: mod.Memory()}

	required := []struct {
		name string
		dst  *api.Function
	}{
		{"py_initialize", &r.fnInitialize},
		{"py_finalize", &r.fnFinalize},
		{"py_initialized", &r.fnInitialized},
		{"py_incref", &r.fnIncRef},
		{"py_decref", &r.fnDecRef},
		{"py_refcnt", &r.fnRefCount},
		{"py_err_occurred", &r.fnErrOccurred},
		{"py_err_fetch", &r.fnErrFetch},
		{"py_err_restore", &r.fnErrRestore},
	}
	for _, want := range required {
		fn := mod.ExportedFunction(want.name)
		if fn == nil {
			wrt.Close(ctx)
			return nil, errors.NotFound(errors.PhaseLoad, "export", want.name)
		}
		*want.dst = fn
	}
	r.fnErrRepr = mod.ExportedFunction("py_err_repr")

	if r.mem == nil {
		wrt.Close(ctx)
		return nil, errors.NotFound(errors.PhaseLoad, "export", "memory")
	}

	malloc := mod.ExportedFunction("malloc")
	if malloc == nil {
		wrt.Close(ctx)
		return nil, errors.NotFound(errors.PhaseLoad, "export", "malloc")
	}
	ret, err := malloc.Call(ctx, scratchSize)
	if err != nil || len(ret) == 0 || ret[0] == 0 {
		wrt.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindAllocation).
			Cause(err).
			Detail("allocate %d byte scratch buffer", scratchSize).
			Build()
	}
	r.scratch = uint32(ret[0])

	// Seed the host-side initialized flag from the guest. Most builds
	// start with no heap, but an embedder may ship a pre-initialized one.
	r.up.Store(r.queryInitialized())

	return r, nil
}

// Close tears down the interpreter and the wazero runtime.
func (r *Runtime) Close() error {
	r.gil.Lock()
	defer r.gil.Unlock()
	if r.up.Swap(false) {
		if _, err := r.fnFinalize.Call(r.ctx); err != nil {
			Logger().Warn("py_finalize failed", zap.Error(err))
		}
	}
	return r.wrt.Close(r.ctx)
}

// Initialize brings up the interpreter heap.
func (r *Runtime) Initialize() error {
	r.gil.Lock()
	defer r.gil.Unlock()
	if _, err := r.fnInitialize.Call(r.ctx); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNotInitialized, err, "py_initialize")
	}
	r.up.Store(true)
	return nil
}

// Finalize tears down the interpreter heap. Pending calls are discarded.
func (r *Runtime) Finalize() error {
	r.gil.Lock()
	r.up.Store(false)
	_, err := r.fnFinalize.Call(r.ctx)
	r.gil.Unlock()

	r.pendMu.Lock()
	r.pending = nil
	r.pendMu.Unlock()

	if err != nil {
		return errors.Wrap(errors.PhaseShutdown, errors.KindInvalidInput, err, "py_finalize")
	}
	return nil
}

// Initialized reports whether the guest heap is live. Never blocks; reads
// the host-side mirror of the guest flag.
func (r *Runtime) Initialized() bool {
	return r.up.Load()
}

func (r *Runtime) queryInitialized() bool {
	ret, err := r.fnInitialized.Call(r.ctx)
	if err != nil || len(ret) == 0 {
		return false
	}
	return uint32(ret[0]) != 0
}

// Lock acquires the global interpreter lock.
func (r *Runtime) Lock() pyembed.GILState {
	r.gil.Lock()
	return 1
}

// Unlock releases the global interpreter lock.
func (r *Runtime) Unlock(pyembed.GILState) {
	r.gil.Unlock()
}

// IncRef increments the reference count of h. Caller holds the GIL.
func (r *Runtime) IncRef(h pyembed.Handle) {
	if _, err := r.fnIncRef.Call(r.ctx, uint64(h)); err != nil {
		Logger().Warn("py_incref trapped", zap.Uint64("handle", uint64(h)), zap.Error(err))
	}
}

// DecRef decrements the reference count of h. Caller holds the GIL.
func (r *Runtime) DecRef(h pyembed.Handle) {
	if _, err := r.fnDecRef.Call(r.ctx, uint64(h)); err != nil {
		Logger().Warn("py_decref trapped", zap.Uint64("handle", uint64(h)), zap.Error(err))
	}
}

// RefCount returns the live reference count of h.
func (r *Runtime) RefCount(h pyembed.Handle) (int64, bool) {
	ret, err := r.fnRefCount.Call(r.ctx, uint64(h))
	if err != nil || len(ret) == 0 || ret[0] == 0 {
		return 0, false
	}
	return int64(ret[0]), true
}

// ErrOccurred reports whether an ambient error is pending in the guest.
func (r *Runtime) ErrOccurred() bool {
	ret, err := r.fnErrOccurred.Call(r.ctx)
	if err != nil || len(ret) == 0 {
		return false
	}
	return uint32(ret[0]) != 0
}

// ErrFetch captures and clears the guest's ambient error triple.
func (r *Runtime) ErrFetch() pyembed.ErrState {
	if _, err := r.fnErrFetch.Call(r.ctx, uint64(r.scratch)); err != nil {
		Logger().Warn("py_err_fetch trapped", zap.Error(err))
		return pyembed.ErrState{}
	}
	t, _ := r.mem.ReadUint64Le(r.scratch)
	v, _ := r.mem.ReadUint64Le(r.scratch + 8)
	tb, _ := r.mem.ReadUint64Le(r.scratch + 16)
	return pyembed.ErrState{
		Type:      pyembed.Handle(t),
		Value:     pyembed.Handle(v),
		Traceback: pyembed.Handle(tb),
	}
}

// ErrRestore reinstates a fetched error triple.
func (r *Runtime) ErrRestore(s pyembed.ErrState) {
	_, err := r.fnErrRestore.Call(r.ctx, uint64(s.Type), uint64(s.Value), uint64(s.Traceback))
	if err != nil {
		Logger().Warn("py_err_restore trapped", zap.Error(err))
	}
}

// ErrString renders a fetched error state, through py_err_repr when the
// guest provides it.
func (r *Runtime) ErrString(s pyembed.ErrState) string {
	if s.IsZero() {
		return ""
	}
	if r.fnErrRepr == nil {
		return fmt.Sprintf("<foreign error type=0x%x value=0x%x>", uint64(s.Type), uint64(s.Value))
	}

	ret, err := r.fnErrRepr.Call(r.ctx, uint64(s.Value), uint64(r.scratch), reprCap)
	if err != nil || len(ret) == 0 {
		return fmt.Sprintf("<foreign error value=0x%x>", uint64(s.Value))
	}
	n := uint32(ret[0])
	if n > reprCap {
		n = reprCap
	}
	buf, ok := r.mem.Read(r.scratch, n)
	if !ok {
		return fmt.Sprintf("<foreign error value=0x%x>", uint64(s.Value))
	}
	return string(buf)
}

// AddPendingCall queues fn for the owner goroutine's next safe-point.
func (r *Runtime) AddPendingCall(fn func()) bool {
	if !r.Initialized() {
		return false
	}
	r.pendMu.Lock()
	r.pending = append(r.pending, fn)
	r.pendMu.Unlock()
	return true
}

// RunPendingCalls executes queued pending calls on the calling goroutine,
// which must be the instance's owner. Returns the number of calls run.
func (r *Runtime) RunPendingCalls() int {
	r.pendMu.Lock()
	calls := r.pending
	r.pending = nil
	r.pendMu.Unlock()
	for _, fn := range calls {
		fn()
	}
	return len(calls)
}
