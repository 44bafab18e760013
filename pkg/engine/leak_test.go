//go:build test

package engine

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

// typing sessions, one keystroke per entry
var sessions = [][]string{
	{"e", "en", "env", "env:", "env:p", "env:pr", "env:prod"},
	{"r", "re", "reg", "region:", "region:u", "region:us"},
	{"env:prod h", "env:prod ho", "env:prod host", "env:prod host:"},
	{"t", "tr", "trace:", "trace:a", "trace:ab"},
	{"_", "_m", "_msg:", "_msg:err"},
}

// sessionEngine is not registered for cleanup so closed engines can be
// collected.
func sessionEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{
		Fields:        []string{"env", "host", "region", "trace"},
		BuiltinFields: []string{"_time", "_msg"},
		Source:        newSource(),
		Debounce:      time.Millisecond,
		MinPrefix:     1,
	})
	if err != nil {
		t.Fatalf("engine creation failed: %v", err)
	}
	return e
}

func memStats() (int64, int) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return int64(m.Alloc), runtime.NumGoroutine()
}

// settle waits for fetch goroutines of closed engines to return.
func settle(baseline int) int {
	deadline := time.Now().Add(time.Second)
	for runtime.NumGoroutine() > baseline && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return runtime.NumGoroutine() - baseline
}

func TestMemoryLeakSessions(t *testing.T) {
	for _, n := range []int{10, 100, 500} {
		t.Run(fmt.Sprintf("engines_%d", n), func(t *testing.T) {
			baseMem, baseG := memStats()

			for i := 0; i < n; i++ {
				e := sessionEngine(t)
				for _, s := range sessions {
					for _, text := range s {
						e.OnTextChange(text)
					}
					e.OnSubmit()
				}
				e.Close()
			}

			leaked := settle(baseG)
			finalMem, _ := memStats()
			memPerEngine := float64(finalMem-baseMem) / float64(n)
			t.Logf("engines=%d mem_per_engine=%.2f goroutine_delta=%d", n, memPerEngine, leaked)

			if leaked > 2 {
				t.Errorf("goroutine leak detected: %d goroutines leaked", leaked)
			}
			if memPerEngine > 4096 {
				t.Errorf("excessive memory retained per engine: %.2f bytes", memPerEngine)
			}
		})
	}
}

func TestMemoryLeakConcurrentTyping(t *testing.T) {
	memFile, err := os.Create("concurrent_memory.prof")
	if err != nil {
		t.Fatalf("profile file creation failed: %v", err)
	}
	defer func() {
		memFile.Close()
		os.Remove("concurrent_memory.prof")
	}()

	e := sessionEngine(t)
	baseMem, baseG := memStats()

	var wg sync.WaitGroup
	ops := 0
	var mu sync.Mutex
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for iter := 0; iter < 200; iter++ {
				for _, s := range sessions {
					for _, text := range s {
						e.Update(text, len(text))
					}
				}
				mu.Lock()
				ops++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	e.Close()

	leaked := settle(baseG)
	finalMem, _ := memStats()
	t.Logf("rounds=%d mem_delta=%d bytes goroutine_delta=%d", ops, finalMem-baseMem, leaked)

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		t.Errorf("heap profile write failed: %v", err)
	}
	if leaked > 2 {
		t.Errorf("goroutine leak detected: %d goroutines leaked", leaked)
	}
	if finalMem-baseMem > 10*1024*1024 {
		t.Errorf("excessive memory retained: %d bytes", finalMem-baseMem)
	}
}
