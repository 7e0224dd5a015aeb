package main

import (
	"flag"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	pyembed "github.com/VidyaBipin/pythonnet-Csharp-python"
	"github.com/VidyaBipin/pythonnet-Csharp-python/finalizer"
	"github.com/VidyaBipin/pythonnet-Csharp-python/simulator"
)

func main() {
	var (
		producers   = flag.Int("producers", 4, "Concurrent producer goroutines")
		objects     = flag.Int("objects", 100000, "Total objects to create and finalize")
		threshold   = flag.Uint("threshold", finalizer.DefaultThreshold, "Enqueues between automatic drains")
		auto        = flag.Bool("auto", true, "Enable throttle-triggered drains")
		pending     = flag.Bool("pending", false, "Route automatic drains through pending calls")
		validate    = flag.Bool("validate", false, "Enable refcount validation")
		strict      = flag.Bool("strict", false, "Escalate unresolved validation findings")
		restarts    = flag.Int("restarts", 0, "Interpreter restarts mid-run (exercises stale handling)")
		failEvery   = flag.Int("fail-every", 0, "Every Nth object raises on deallocation (0 = never)")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		finalizer.SetLogger(log)
	}

	cfg := finalizer.Config{
		Threshold:         uint32(*threshold),
		AutoCollect:       *auto,
		UsePendingCall:    *pending,
		ValidateRefCounts: *validate,
		StrictValidation:  *strict,
	}

	if *interactive {
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, *producers, *objects, *restarts, *failEvery, *pending); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// splitWork spreads n objects across k producers, front-loading the
// remainder so the counts sum to exactly n.
func splitWork(n, k int) []int {
	counts := make([]int, k)
	for i := range counts {
		counts[i] = n / k
		if i < n%k {
			counts[i]++
		}
	}
	return counts
}

// claimAll keeps a failure-injection run going: every release failure is
// claimed so the drain survives it.
type claimAll struct{}

func (claimAll) OnFinalizeError(e *finalizer.ErrorEvent) { e.Handled = true }

func run(cfg finalizer.Config, producers, objects, restarts, failEvery int, pending bool) error {
	in := simulator.New()
	in.Initialize()
	fin := finalizer.New(in, cfg)
	fin.OnInterpreterInit()
	if failEvery > 0 {
		fin.SubscribeError(claimAll{})
	}

	counts := splitWork(objects, producers)
	restartAt := 0
	if restarts > 0 {
		restartAt = objects / (restarts + 1)
	}

	var wg sync.WaitGroup
	var made int
	var madeMu sync.Mutex
	next := func(i int) (pyembed.Handle, uint64) {
		madeMu.Lock()
		defer madeMu.Unlock()
		made++
		if restartAt > 0 && made%restartAt == 0 && made < objects {
			// Simulated embedder restart while producers keep going.
			in.Finalize()
			_ = fin.OnInterpreterShutdown()
			in.Initialize()
			fin.OnInterpreterInit()
		}
		if failEvery > 0 && i%failEvery == 0 {
			return in.NewFailingObject(1), fin.Epoch()
		}
		return in.NewObject(1), fin.Epoch()
	}

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 1; i <= n; i++ {
				h, epoch := next(i)
				if h != 0 {
					fin.Enqueue(h, epoch)
				}
				if pending && i%64 == 0 {
					in.RunPendingCalls()
				}
			}
		}(counts[p])
	}
	wg.Wait()
	if pending {
		in.RunPendingCalls()
	}

	if err := fin.OnInterpreterShutdown(); err != nil {
		return err
	}

	s := fin.Stats()
	fmt.Printf("Workload: %d producers, %d objects, threshold %d\n", producers, objects, cfg.Threshold)
	fmt.Printf("\nResults:\n")
	fmt.Printf("  enqueued:  %d\n", s.Enqueued)
	fmt.Printf("  dropped:   %d\n", s.Dropped)
	fmt.Printf("  released:  %d\n", s.Released)
	fmt.Printf("  stale:     %d\n", s.Stale)
	fmt.Printf("  failed:    %d\n", s.Failed)
	fmt.Printf("  drains:    %d\n", s.Drains)
	if cfg.ValidateRefCounts {
		fmt.Printf("  findings:  %d\n", s.Findings)
	}
	fmt.Printf("  queued:    %d (left for a next lifetime)\n", fin.Depth())
	fmt.Printf("  live objs: %d\n", in.Objects())
	return nil
}
