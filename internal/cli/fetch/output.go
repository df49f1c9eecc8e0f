package fetch

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/coral-mesh/cpuprof/internal/profiler/report"
)

// Format selects how a downloaded profile is written.
type Format string

const (
	// FormatRaw writes the compressed profile unchanged.
	FormatRaw Format = "raw"
	// FormatFolded writes one "root;...;leaf count" line per stack.
	FormatFolded Format = "folded"
	// FormatJSON writes a summary with every stack.
	FormatJSON Format = "json"
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatRaw, FormatFolded, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (expected raw, folded or json)", s)
	}
}

// frameNames returns the names of a sample's frames, leaf first.
func frameNames(r *report.Report, s report.Sample) []string {
	names := make([]string, len(s.Locations))
	for i, idx := range s.Locations {
		loc := r.Locations[idx]
		if loc.Function == report.NoFunction {
			names[i] = fmt.Sprintf("0x%x", loc.Address)
			continue
		}
		names[i] = r.Functions[loc.Function].Name
	}
	return names
}

// WriteFolded writes r in folded stack format, root first, for flame graph
// tools.
func WriteFolded(w io.Writer, r *report.Report) error {
	for _, s := range r.Samples {
		names := frameNames(r, s)
		for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
			names[i], names[j] = names[j], names[i]
		}
		if _, err := fmt.Fprintf(w, "%s %d\n", strings.Join(names, ";"), s.Count); err != nil {
			return err
		}
	}
	return nil
}

type jsonStack struct {
	Frames []string `json:"frames"`
	Count  int64    `json:"count"`
}

type jsonProfile struct {
	TotalSamples  int64       `json:"total_samples"`
	UniqueStacks  int         `json:"unique_stacks"`
	PeriodNanos   int64       `json:"period_nanos"`
	DurationNanos int64       `json:"duration_nanos"`
	Comments      []string    `json:"comments,omitempty"`
	Stacks        []jsonStack `json:"stacks"`
}

// WriteJSON writes a JSON summary of r with frames leaf first.
func WriteJSON(w io.Writer, r *report.Report) error {
	out := jsonProfile{
		TotalSamples:  r.TotalCount(),
		UniqueStacks:  len(r.Samples),
		PeriodNanos:   r.Period,
		DurationNanos: r.DurationNanos,
		Comments:      r.Comments,
		Stacks:        make([]jsonStack, 0, len(r.Samples)),
	}
	for _, s := range r.Samples {
		out.Stacks = append(out.Stacks, jsonStack{Frames: frameNames(r, s), Count: s.Count})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
