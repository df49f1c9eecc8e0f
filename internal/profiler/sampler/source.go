package sampler

import (
	"runtime"
	"strings"

	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

// Source captures the call stacks of the profiled process.
type Source interface {
	// Capture returns the stacks active at the time of the call, each leaf first.
	Capture() [][]stack.Frame
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() [][]stack.Frame

// Capture calls f.
func (f SourceFunc) Capture() [][]stack.Frame {
	return f()
}

// waitFuncs are the functions a goroutine sits in while it waits instead of
// running: scheduler parks, blocking system call entries and the runtime
// sleep primitives. Runtime bodies linked into other packages are included
// under their exported names.
var waitFuncs = map[string]struct{}{
	"runtime.gopark":                 {},
	"runtime.goparkunlock":           {},
	"runtime.notetsleepg":            {},
	"runtime.notetsleep":             {},
	"runtime.notesleep":              {},
	"runtime.entersyscallblock":      {},
	"runtime.semasleep":              {},
	"runtime.futexsleep":             {},
	"runtime.usleep":                 {},
	"runtime.stoplockedm":            {},
	"os/signal.signal_recv":          {},
	"internal/poll.runtime_pollWait": {},
	"sync.runtime_Semacquire":        {},
	"sync.runtime_SemacquireMutex":   {},
	"sync.runtime_notifyListWait":    {},
}

// runtimeModule reports whether a frame belongs to the runtime proper.
func runtimeModule(module string) bool {
	return module == "runtime" || strings.HasPrefix(module, "runtime/") ||
		strings.HasPrefix(module, "internal/runtime/")
}

// offCPU reports whether the goroutine owning frames is waiting. It walks the
// leading runtime frames and the first frame past them, so a wait entered
// through a linked runtime body (os/signal.signal_recv) is caught as well as
// one at the leaf.
func offCPU(frames []stack.Frame) bool {
	for _, f := range frames {
		if _, wait := waitFuncs[f.Symbol]; wait {
			return true
		}
		if !runtimeModule(f.Module) {
			return false
		}
	}
	return false
}

// GoroutineSource samples the goroutines of the current process through
// runtime.GoroutineProfile. Stacks deeper than 32 frames are truncated.
//
// GoroutineSource is not safe for concurrent use.
type GoroutineSource struct {
	includeOffCPU bool
	records       []runtime.StackRecord
	selfEntry     uintptr
	selfFunc      string
	cache         *stackCache
}

// NewGoroutineSource returns a source over the current process. Parked
// goroutines are only reported when includeOffCPU is set.
func NewGoroutineSource(includeOffCPU bool) *GoroutineSource {
	return &GoroutineSource{
		includeOffCPU: includeOffCPU,
		cache:         newStackCache(defaultCacheSize),
	}
}

// Capture implements Source.
func (g *GoroutineSource) Capture() [][]stack.Frame {
	if g.selfEntry == 0 {
		// Remember our own entry so the capturing goroutine can be hidden.
		pc := make([]uintptr, 1)
		if runtime.Callers(1, pc) == 1 {
			self, _ := runtime.CallersFrames(pc).Next()
			g.selfEntry = self.Entry
			g.selfFunc = self.Function
		}
	}

	// Overshoot by 10% since goroutines may start between two calls.
	var n int
	for {
		var ok bool
		n, ok = runtime.GoroutineProfile(g.records)
		if ok {
			break
		}
		g.records = make([]runtime.StackRecord, int(float64(n)*1.1)+1)
	}

	stacks := make([][]stack.Frame, 0, n)
	for i := range g.records[:n] {
		pcs := g.records[i].Stack()
		key := g.cache.hash(pcs)
		frames, keep, cached := g.cache.get(key, pcs)
		if !cached {
			frames, keep = g.resolve(pcs)
			g.cache.put(key, pcs, frames, keep)
		}
		if keep {
			stacks = append(stacks, frames)
		}
	}
	return stacks
}

// resolve symbolizes one goroutine stack. It reports false for stacks that
// must not be sampled: the capturing goroutine itself and, unless off-CPU
// sampling is enabled, waiting goroutines.
func (g *GoroutineSource) resolve(pcs []uintptr) ([]stack.Frame, bool) {
	if len(pcs) == 0 {
		return nil, false
	}

	frames := make([]stack.Frame, 0, len(pcs))
	iter := runtime.CallersFrames(pcs)
	for {
		f, more := iter.Next()
		if (f.Entry != 0 && f.Entry == g.selfEntry) || (f.Function != "" && f.Function == g.selfFunc) {
			return nil, false
		}
		frames = append(frames, stack.Frame{
			Address: uint64(f.PC),
			Entry:   uint64(f.Entry),
			Symbol:  f.Function,
			Module:  stack.ModuleOf(f.Function),
			File:    f.File,
			Line:    int64(f.Line),
		})
		if !more {
			break
		}
	}
	if !g.includeOffCPU && offCPU(frames) {
		return nil, false
	}
	return frames, true
}
