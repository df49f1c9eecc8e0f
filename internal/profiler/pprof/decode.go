package pprof

import (
	"fmt"

	"github.com/google/pprof/profile"

	"github.com/coral-mesh/cpuprof/internal/profiler/report"
	"github.com/coral-mesh/cpuprof/internal/profiler/stack"
)

// Decode parses a serialized profile, compressed or not, back into a report.
// Function start addresses are not part of the pprof schema and come back as zero.
func Decode(data []byte) (*report.Report, error) {
	p, err := profile.ParseData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pprof profile: %w", err)
	}
	if len(p.SampleType) != 1 {
		return nil, fmt.Errorf("%w: expected one sample type, got %d", report.ErrMalformedReport, len(p.SampleType))
	}

	r := &report.Report{
		ValueType:     report.ValueType{Type: p.SampleType[0].Type, Unit: p.SampleType[0].Unit},
		Period:        p.Period,
		TimeNanos:     p.TimeNanos,
		DurationNanos: p.DurationNanos,
		Comments:      p.Comments,
		Functions:     make([]report.Function, 0, len(p.Function)),
		Locations:     make([]report.Location, 0, len(p.Location)),
		Samples:       make([]report.Sample, 0, len(p.Sample)),
	}
	if p.PeriodType != nil {
		r.PeriodType = report.ValueType{Type: p.PeriodType.Type, Unit: p.PeriodType.Unit}
	}
	if len(p.Mapping) > 0 {
		r.Mapping = report.Mapping{File: p.Mapping[0].File, BuildID: p.Mapping[0].BuildID}
	}

	functionIdx := make(map[uint64]int, len(p.Function))
	for _, fn := range p.Function {
		functionIdx[fn.ID] = len(r.Functions)
		r.Functions = append(r.Functions, report.Function{
			Name:   fn.Name,
			Module: stack.ModuleOf(fn.Name),
			File:   fn.Filename,
		})
	}

	locationIdx := make(map[uint64]int, len(p.Location))
	for _, loc := range p.Location {
		l := report.Location{Address: loc.Address, Function: report.NoFunction}
		if len(loc.Line) > 0 && loc.Line[0].Function != nil {
			l.Function = functionIdx[loc.Line[0].Function.ID]
			l.Line = loc.Line[0].Line
		}
		locationIdx[loc.ID] = len(r.Locations)
		r.Locations = append(r.Locations, l)
	}

	for _, s := range p.Sample {
		if len(s.Value) != 1 {
			return nil, fmt.Errorf("%w: sample has %d values", report.ErrMalformedReport, len(s.Value))
		}
		locs := make([]int, len(s.Location))
		for i, loc := range s.Location {
			locs[i] = locationIdx[loc.ID]
		}
		r.Samples = append(r.Samples, report.Sample{Locations: locs, Count: s.Value[0]})
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
