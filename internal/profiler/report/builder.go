package report

import (
	"encoding/binary"
	"slices"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

// DefaultValueType is the value type of CPU sample counts.
var DefaultValueType = ValueType{Type: "samples", Unit: "count"}

type functionKey struct {
	name string
	file string
}

// Builder accumulates samples into a Report. Output order follows first
// occurrence, so identical input sequences give identical reports.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	filter *stack.Filter

	functions   []Function
	functionIdx map[functionKey]int

	locations   []Location
	locationIdx map[stack.Key]int

	samples []Sample
	// stackIdx maps a stack content hash to candidate indices in samples.
	stackIdx map[uint64][]int

	hasher  *xxh3.Hasher
	scratch []int
	buf     [8]byte
}

// NewBuilder returns an empty builder. A non-nil filter is applied to every
// added sample; pass nil when frames were filtered upstream.
func NewBuilder(filter *stack.Filter) *Builder {
	return &Builder{
		filter:      filter,
		functionIdx: make(map[functionKey]int),
		locationIdx: make(map[stack.Key]int),
		stackIdx:    make(map[uint64][]int),
		hasher:      xxh3.New(),
	}
}

// Add records one occurrence of the sample's stack. Stacks that are empty
// after filtering are ignored.
func (b *Builder) Add(s stack.Sample) {
	if b.filter != nil {
		s = b.filter.Apply(s)
	}
	if s.Empty() {
		return
	}

	b.scratch = b.scratch[:0]
	b.hasher.Reset()
	for _, f := range s.Frames {
		idx := b.internLocation(f)
		b.scratch = append(b.scratch, idx)
		binary.LittleEndian.PutUint64(b.buf[:], uint64(idx))
		_, _ = b.hasher.Write(b.buf[:])
	}
	sum := b.hasher.Sum64()

	for _, candidate := range b.stackIdx[sum] {
		if slices.Equal(b.samples[candidate].Locations, b.scratch) {
			b.samples[candidate].Count++
			return
		}
	}

	b.stackIdx[sum] = append(b.stackIdx[sum], len(b.samples))
	b.samples = append(b.samples, Sample{
		Locations: slices.Clone(b.scratch),
		Count:     1,
	})
}

// internLocation returns the location index of a frame, creating the
// location and its function on first sight.
func (b *Builder) internLocation(f stack.Frame) int {
	key := f.Key()
	if idx, ok := b.locationIdx[key]; ok {
		return idx
	}

	fn := NoFunction
	if f.Resolved() {
		fn = b.internFunction(f)
	}

	idx := len(b.locations)
	b.locations = append(b.locations, Location{
		Address:  f.Address,
		Function: fn,
		Line:     f.Line,
	})
	b.locationIdx[key] = idx
	return idx
}

func (b *Builder) internFunction(f stack.Frame) int {
	key := functionKey{name: f.Symbol, file: f.File}
	if idx, ok := b.functionIdx[key]; ok {
		return idx
	}
	module := f.Module
	if module == "" {
		module = stack.ModuleOf(f.Symbol)
	}
	idx := len(b.functions)
	b.functions = append(b.functions, Function{
		Name:         f.Symbol,
		Module:       module,
		File:         f.File,
		StartAddress: f.Entry,
	})
	b.functionIdx[key] = idx
	return idx
}

// Build returns the report accumulated so far. The builder can keep
// accepting samples; later reports include earlier ones.
func (b *Builder) Build() *Report {
	r := &Report{
		ValueType: DefaultValueType,
		Functions: slices.Clone(b.functions),
		Locations: slices.Clone(b.locations),
		Samples:   make([]Sample, len(b.samples)),
	}
	for i, s := range b.samples {
		r.Samples[i] = Sample{Locations: slices.Clone(s.Locations), Count: s.Count}
	}
	return r
}

// Options describes the sampling run a report is built from.
type Options struct {
	Filter      *stack.Filter
	FrequencyHz int
	Start       time.Time
	Duration    time.Duration
	Mapping     Mapping
	Comments    []string
}

// Build aggregates samples into a report annotated with run metadata.
func Build(samples []stack.Sample, opts Options) *Report {
	b := NewBuilder(opts.Filter)
	for _, s := range samples {
		b.Add(s)
	}

	r := b.Build()
	if opts.FrequencyHz > 0 {
		r.PeriodType = ValueType{Type: "cpu", Unit: "nanoseconds"}
		r.Period = int64(time.Second) / int64(opts.FrequencyHz)
	}
	if !opts.Start.IsZero() {
		r.TimeNanos = opts.Start.UnixNano()
	}
	r.DurationNanos = opts.Duration.Nanoseconds()
	r.Mapping = opts.Mapping
	r.Comments = slices.Clone(opts.Comments)
	return r
}
