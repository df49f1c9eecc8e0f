package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

func frame(addr uint64, symbol string) stack.Frame {
	return stack.Frame{
		Address: addr,
		Entry:   addr &^ 0xff,
		Symbol:  symbol,
		Module:  stack.ModuleOf(symbol),
		File:    "/src/" + stack.ModuleOf(symbol) + ".go",
		Line:    int64(addr & 0xff),
	}
}

func sample(frames ...stack.Frame) stack.Sample {
	return stack.Sample{Frames: frames}
}

var (
	leafA = frame(0x1010, "main.compute")
	leafB = frame(0x2020, "main.encode")
	mid   = frame(0x3030, "main.handle")
	root  = frame(0x4040, "main.main")
	rt    = frame(0x5050, "runtime.goexit")
)

func TestBuilder_DeduplicatesStacks(t *testing.T) {
	b := NewBuilder(nil)
	b.Add(sample(leafA, mid, root))
	b.Add(sample(leafB, mid, root))
	b.Add(sample(leafA, mid, root))
	b.Add(sample(leafA, mid, root))

	r := b.Build()
	require.NoError(t, r.Validate())

	require.Len(t, r.Samples, 2)
	assert.Equal(t, []int{0, 1, 2}, r.Samples[0].Locations)
	assert.Equal(t, int64(3), r.Samples[0].Count)
	assert.Equal(t, []int{3, 1, 2}, r.Samples[1].Locations)
	assert.Equal(t, int64(1), r.Samples[1].Count)

	assert.Len(t, r.Locations, 4)
	assert.Len(t, r.Functions, 4)
	assert.Equal(t, int64(4), r.TotalCount())
	assert.Equal(t, DefaultValueType, r.ValueType)
}

func TestBuilder_OrderIsDeterministic(t *testing.T) {
	input := []stack.Sample{
		sample(leafB, root),
		sample(leafA, mid, root),
		sample(leafB, root),
		sample(mid, root),
	}

	first := Build(input, Options{})
	second := Build(input, Options{})
	assert.Equal(t, first, second)

	// First occurrence drives the order.
	assert.Equal(t, "main.encode", first.Functions[first.Locations[first.Samples[0].Locations[0]].Function].Name)
	assert.Equal(t, "main.compute", first.Functions[first.Locations[first.Samples[1].Locations[0]].Function].Name)
}

func TestBuilder_Filter(t *testing.T) {
	b := NewBuilder(stack.NewFilter(stack.DefaultBlocklist))
	b.Add(sample(leafA, mid, rt))
	b.Add(sample(rt))

	r := b.Build()
	require.Len(t, r.Samples, 1, "fully filtered stacks are ignored")
	assert.Equal(t, int64(1), r.TotalCount())
	for _, loc := range r.Locations {
		assert.NotEqual(t, "runtime.goexit", r.Functions[loc.Function].Name)
	}
}

func TestBuilder_UnresolvedFrames(t *testing.T) {
	b := NewBuilder(stack.NewFilter(stack.DefaultBlocklist))
	unknown := stack.Frame{Address: 0xdead}
	b.Add(sample(unknown, root))
	b.Add(sample(unknown, root))

	r := b.Build()
	require.NoError(t, r.Validate())
	require.Len(t, r.Locations, 2)
	assert.Equal(t, NoFunction, r.Locations[0].Function)
	assert.Equal(t, uint64(0xdead), r.Locations[0].Address)
	assert.Len(t, r.Functions, 1)
	assert.Equal(t, int64(2), r.Samples[0].Count)
}

func TestBuilder_InlinedFramesShareAddress(t *testing.T) {
	inner := frame(0x1010, "main.inlined")
	outer := frame(0x1010, "main.caller")

	r := Build([]stack.Sample{sample(inner, outer, root)}, Options{})
	require.Len(t, r.Locations, 3)
	assert.Equal(t, r.Locations[0].Address, r.Locations[1].Address)
	assert.NotEqual(t, r.Locations[0].Function, r.Locations[1].Function)
}

func TestBuilder_FunctionFirstOccurrenceWins(t *testing.T) {
	a := frame(0x1010, "main.compute")
	b := frame(0x1020, "main.compute")
	b.Entry = 0x9999

	r := Build([]stack.Sample{sample(a), sample(b)}, Options{})
	require.Len(t, r.Functions, 1)
	assert.Len(t, r.Locations, 2)
	assert.Equal(t, a.Entry, r.Functions[0].StartAddress)
	assert.Equal(t, "main", r.Functions[0].Module)
}

func TestBuild_Empty(t *testing.T) {
	r := Build(nil, Options{FrequencyHz: 1000})
	require.NoError(t, r.Validate())
	assert.Empty(t, r.Samples)
	assert.Empty(t, r.Locations)
	assert.Zero(t, r.TotalCount())
	assert.Equal(t, int64(time.Millisecond), r.Period)
}

func TestBuild_Metadata(t *testing.T) {
	start := time.Unix(1700000000, 5)
	r := Build([]stack.Sample{sample(leafA)}, Options{
		FrequencyHz: 100,
		Start:       start,
		Duration:    2 * time.Second,
		Mapping:     Mapping{File: "/bin/app", BuildID: "abc"},
		Comments:    []string{"hello"},
	})

	assert.Equal(t, ValueType{Type: "cpu", Unit: "nanoseconds"}, r.PeriodType)
	assert.Equal(t, int64(10*time.Millisecond), r.Period)
	assert.Equal(t, start.UnixNano(), r.TimeNanos)
	assert.Equal(t, int64(2*time.Second), r.DurationNanos)
	assert.Equal(t, "/bin/app", r.Mapping.File)
	assert.Equal(t, []string{"hello"}, r.Comments)
}

func TestBuilder_BuildIsASnapshot(t *testing.T) {
	b := NewBuilder(nil)
	b.Add(sample(leafA))
	first := b.Build()
	b.Add(sample(leafA))

	assert.Equal(t, int64(1), first.Samples[0].Count)
	assert.Equal(t, int64(2), b.Build().Samples[0].Count)
}

func TestReport_Validate(t *testing.T) {
	tests := []struct {
		name   string
		report Report
	}{
		{
			name: "dangling location",
			report: Report{
				Locations: []Location{{Address: 1, Function: NoFunction}},
				Samples:   []Sample{{Locations: []int{0, 1}, Count: 1}},
			},
		},
		{
			name: "negative location",
			report: Report{
				Locations: []Location{{Address: 1, Function: NoFunction}},
				Samples:   []Sample{{Locations: []int{-1}, Count: 1}},
			},
		},
		{
			name: "dangling function",
			report: Report{
				Locations: []Location{{Address: 1, Function: 3}},
			},
		},
		{
			name: "zero count",
			report: Report{
				Locations: []Location{{Address: 1, Function: NoFunction}},
				Samples:   []Sample{{Locations: []int{0}, Count: 0}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.report.Validate(), ErrMalformedReport)
		})
	}
}
