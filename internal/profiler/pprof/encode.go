// Package pprof converts reports to and from the pprof protocol buffer format.
//
// The encoded profile holds the four pprof tables: a deduplicated string
// table, functions, locations and samples. Cross references use table ids,
// which are the 1-based positions of the report entries, so encoding the same
// report always yields the same bytes.
package pprof

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/pprof/profile"

	"github.com/coral-mesh/cpuprof/internal/profiler/report"
)

// ErrEncoding is returned when a report cannot be written as a profile.
var ErrEncoding = errors.New("profile encoding failed")

// Encode serializes r without compression.
func Encode(r *report.Report) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil report", report.ErrMalformedReport)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	p := toProfile(r)
	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	var buf bytes.Buffer
	if err := p.WriteUncompressed(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

// toProfile maps a validated report onto the pprof object model.
func toProfile(r *report.Report) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: r.ValueType.Type, Unit: r.ValueType.Unit},
		},
		DefaultSampleType: r.ValueType.Type,
		Period:            r.Period,
		TimeNanos:         r.TimeNanos,
		DurationNanos:     r.DurationNanos,
		Comments:          r.Comments,
	}
	if r.PeriodType != (report.ValueType{}) {
		p.PeriodType = &profile.ValueType{Type: r.PeriodType.Type, Unit: r.PeriodType.Unit}
	}

	var mapping *profile.Mapping
	if r.Mapping.File != "" {
		mapping = &profile.Mapping{
			ID:             1,
			File:           r.Mapping.File,
			BuildID:        r.Mapping.BuildID,
			HasFunctions:   true,
			HasFilenames:   true,
			HasLineNumbers: true,
		}
		p.Mapping = []*profile.Mapping{mapping}
	}

	functions := make([]*profile.Function, len(r.Functions))
	for i, fn := range r.Functions {
		functions[i] = &profile.Function{
			ID:         uint64(i + 1),
			Name:       fn.Name,
			SystemName: fn.Name,
			Filename:   fn.File,
		}
	}
	p.Function = functions

	locations := make([]*profile.Location, len(r.Locations))
	for i, loc := range r.Locations {
		l := &profile.Location{
			ID:      uint64(i + 1),
			Mapping: mapping,
			Address: loc.Address,
		}
		if loc.Function != report.NoFunction {
			l.Line = []profile.Line{{Function: functions[loc.Function], Line: loc.Line}}
		}
		locations[i] = l
	}
	p.Location = locations

	p.Sample = make([]*profile.Sample, len(r.Samples))
	for i, s := range r.Samples {
		locs := make([]*profile.Location, len(s.Locations))
		for j, idx := range s.Locations {
			locs[j] = locations[idx]
		}
		p.Sample[i] = &profile.Sample{
			Location: locs,
			Value:    []int64{s.Count},
		}
	}
	return p
}
