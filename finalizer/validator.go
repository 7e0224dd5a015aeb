package finalizer

import (
	"go.uber.org/zap"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
	"github.com/VidyaBipin/pythonnet-Csharp-python/errors"
)

// validateRefCounts is the diagnostic pre-pass: before anything is
// released, check that no handle has more releases queued than its live
// object reports holding. Such an excess means the same foreign object was
// handed out and independently finalized more times than it was referenced,
// which would be a double free once drained.
//
// Runs under drainMu on the batch the drain has already detached, so every
// entry it vouches for is exactly an entry about to be released. O(n) in
// batch size; the audit map exists only for the duration of the pass.
func (f *Finalizer) validateRefCounts(entries []pendingRelease) error {
	current := f.epoch.Load()
	queued := make(map[pyembed.Handle]int, len(entries))
	for _, e := range entries {
		// Stale entries are never released, so they cannot double-free.
		if e.epoch == current {
			queued[e.handle]++
		}
	}

	for h, n := range queued {
		live, ok := f.rt.RefCount(h)
		if !ok {
			live = 0
		}
		if ok && int64(n) <= live {
			continue
		}

		f.stats.findings.Add(1)
		finding := Finding{Handle: h, Queued: n, Live: live}
		if f.resolveFinding(finding) {
			continue
		}

		if f.strict {
			return &errors.IntegrityError{Handle: h, Queued: n, Live: live}
		}
		Logger().Warn("queued releases exceed live reference count",
			zap.Uint64("handle", uint64(h)),
			zap.Int("queued", n),
			zap.Int64("live", live))
	}
	return nil
}
