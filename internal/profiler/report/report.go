// Package report aggregates captured stacks into a deduplicated profile report.
package report

import (
	"errors"
	"fmt"
)

// ErrMalformedReport is returned when a report references a table entry that
// does not exist.
var ErrMalformedReport = errors.New("malformed report")

// NoFunction marks a location whose symbol could not be resolved.
const NoFunction = -1

// ValueType labels sample values.
type ValueType struct {
	Type string
	Unit string
}

// Function is one symbol table entry.
type Function struct {
	Name         string
	Module       string
	File         string
	StartAddress uint64
}

// Location is one distinct frame. Function indexes Report.Functions or is
// NoFunction.
type Location struct {
	Address  uint64
	Function int
	Line     int64
}

// Sample is one distinct stack with its occurrence count. Locations index
// Report.Locations, leaf first.
type Sample struct {
	Locations []int
	Count     int64
}

// Mapping describes the profiled executable.
type Mapping struct {
	File    string
	BuildID string
}

// Report is the aggregated result of one sampling run.
type Report struct {
	ValueType  ValueType
	PeriodType ValueType
	// Period is the sampling interval in PeriodType units.
	Period int64

	Functions []Function
	Locations []Location
	Samples   []Sample
	Mapping   Mapping

	TimeNanos     int64
	DurationNanos int64
	Comments      []string
}

// TotalCount returns the sum of all sample counts.
func (r *Report) TotalCount() int64 {
	var total int64
	for _, s := range r.Samples {
		total += s.Count
	}
	return total
}

// Validate checks that every cross reference in the report resolves.
func (r *Report) Validate() error {
	for i, loc := range r.Locations {
		if loc.Function == NoFunction {
			continue
		}
		if loc.Function < 0 || loc.Function >= len(r.Functions) {
			return fmt.Errorf("%w: location %d references function %d of %d",
				ErrMalformedReport, i, loc.Function, len(r.Functions))
		}
	}
	for i, s := range r.Samples {
		if s.Count <= 0 {
			return fmt.Errorf("%w: sample %d has count %d", ErrMalformedReport, i, s.Count)
		}
		for _, idx := range s.Locations {
			if idx < 0 || idx >= len(r.Locations) {
				return fmt.Errorf("%w: sample %d references location %d of %d",
					ErrMalformedReport, i, idx, len(r.Locations))
			}
		}
	}
	return nil
}
