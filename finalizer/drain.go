package finalizer

import (
	"go.uber.org/zap"

	"github.com/VidyaBipin/pythonnet-Csharp-python/errors"
)

// drain empties the pending-release queue. The caller must hold the
// interpreter lock. Every consumed entry is resolved exactly once: released,
// reported stale, or reported as a release failure. The ambient error state
// is captured before the first release and restored on every exit path.
func (f *Finalizer) drain() error {
	if f.validate {
		// Diagnostic mode: the validation pass and the releases it vouched
		// for must not interleave with another drain.
		f.drainMu.Lock()
		defer f.drainMu.Unlock()
	}

	f.draining.Store(true)
	defer f.draining.Store(false)

	f.stats.drains.Add(1)
	f.notifyCollection(CollectionEvent{Depth: f.Depth()})

	f.pendMu.Lock()
	entries := f.leftover
	f.leftover = nil
	f.pendMu.Unlock()
	entries = append(entries, f.queue.detach()...)
	if len(entries) == 0 {
		return nil
	}

	if f.validate {
		// Audit exactly the batch about to be released; a push landing
		// after the detach waits for the next drain. On a violation the
		// batch goes back unconsumed.
		if err := f.validateRefCounts(entries); err != nil {
			f.pendMu.Lock()
			f.leftover = append(entries, f.leftover...)
			f.pendMu.Unlock()
			return err
		}
	}

	// The foreign finalization protocol forbids clobbering an exception
	// that was already propagating when finalization began.
	ambient := f.rt.ErrFetch()
	defer f.rt.ErrRestore(ambient)

	current := f.epoch.Load()
	for i := range entries {
		e := &entries[i]

		if e.epoch != current {
			// The heap this handle pointed into died with its epoch.
			f.stats.stale.Add(1)
			f.notifyError(&ErrorEvent{
				Err:    errors.StaleHandle(e.handle, e.epoch, current),
				Handle: e.handle,
			})
			continue
		}

		f.rt.DecRef(e.handle)

		if !f.rt.ErrOccurred() {
			f.stats.released.Add(1)
			continue
		}

		// Deallocation called back into foreign code and raised.
		raised := f.rt.ErrFetch()
		f.stats.failed.Add(1)
		ev := &ErrorEvent{
			Err: &errors.FinalizationError{
				Handle:  e.handle,
				Ambient: f.rt.ErrString(raised),
			},
			Handle: e.handle,
		}
		f.notifyError(ev)
		if ev.Handled {
			Logger().Debug("release failure claimed by subscriber",
				zap.Uint64("handle", uint64(e.handle)))
			continue
		}

		// Unclaimed: fatal to this drain. Entries not yet resolved stay
		// owed and are consumed by the next drain.
		if rest := entries[i+1:]; len(rest) > 0 {
			f.pendMu.Lock()
			f.leftover = append(rest, f.leftover...)
			f.pendMu.Unlock()
		}
		return ev.Err
	}
	return nil
}
