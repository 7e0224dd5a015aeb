package finalizer

import (
	"sync"
	"testing"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
)

func TestQueue_FIFO(t *testing.T) {
	var q releaseQueue
	for i := 1; i <= 5; i++ {
		q.push(pyembed.Handle(i), 1)
	}
	if q.len() != 5 {
		t.Fatalf("len = %d, want 5", q.len())
	}

	entries := q.detach()
	if len(entries) != 5 {
		t.Fatalf("detached %d entries, want 5", len(entries))
	}
	for i, e := range entries {
		if e.handle != pyembed.Handle(i+1) {
			t.Fatalf("entry %d: handle %d, want %d", i, e.handle, i+1)
		}
	}
	if q.len() != 0 {
		t.Fatalf("len after detach = %d, want 0", q.len())
	}
	if q.detach() != nil {
		t.Fatal("detach on empty queue should return nil")
	}
}

func TestQueue_WalkDoesNotConsume(t *testing.T) {
	var q releaseQueue
	q.push(1, 1)
	q.push(2, 1)

	view := q.walk()
	if len(view) != 2 || view[0].handle != 1 || view[1].handle != 2 {
		t.Fatalf("walk = %v", view)
	}
	if q.len() != 2 {
		t.Fatalf("walk consumed the queue, len = %d", q.len())
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	const producers = 8
	const perProducer = 1000

	var q releaseQueue
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			base := pyembed.Handle(p*perProducer + 1)
			for i := 0; i < perProducer; i++ {
				q.push(base+pyembed.Handle(i), 1)
			}
		}(p)
	}
	wg.Wait()

	entries := q.detach()
	if len(entries) != producers*perProducer {
		t.Fatalf("detached %d entries, want %d", len(entries), producers*perProducer)
	}

	// No duplicates, and each producer's pushes stay in its own order.
	seen := make(map[pyembed.Handle]bool, len(entries))
	lastPerProducer := make(map[int]pyembed.Handle, producers)
	for _, e := range entries {
		if seen[e.handle] {
			t.Fatalf("handle %d detached twice", e.handle)
		}
		seen[e.handle] = true
		p := int(e.handle-1) / perProducer
		if prev, ok := lastPerProducer[p]; ok && e.handle <= prev {
			t.Fatalf("producer %d order violated: %d after %d", p, e.handle, prev)
		}
		lastPerProducer[p] = e.handle
	}
}

func TestQueue_PushDuringDetachLandsInNextDrain(t *testing.T) {
	var q releaseQueue
	q.push(1, 1)

	first := q.detach()
	q.push(2, 1)

	if len(first) != 1 || first[0].handle != 1 {
		t.Fatalf("first detach = %v", first)
	}
	second := q.detach()
	if len(second) != 1 || second[0].handle != 2 {
		t.Fatalf("second detach = %v", second)
	}
}
