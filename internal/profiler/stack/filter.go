package stack

import (
	"strings"

	"github.com/coral-mesh/cpuprof/internal/constants"
)

// DefaultBlocklist holds the modules dropped from every profile: the Go
// scheduler and memory manager, and the raw system call layer.
var DefaultBlocklist = constants.DefaultBlocklist

// Filter decides whether a frame is noise. The zero value drops nothing.
type Filter struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewFilter builds a filter from module patterns.
//
// A pattern matches a module exactly or as a path prefix, so "runtime" matches
// "runtime" and "runtime/pprof" but not "runtimex". A pattern ending in "*"
// matches any module starting with the text before the star.
func NewFilter(patterns []string) *Filter {
	f := &Filter{exact: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			f.prefixes = append(f.prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		f.exact[p] = struct{}{}
		f.prefixes = append(f.prefixes, p+"/")
	}
	return f
}

// Matches reports whether the frame must be dropped. Frames with an
// unresolved module are always kept.
func (f *Filter) Matches(frame Frame) bool {
	if f == nil || frame.Module == "" {
		return false
	}
	if _, ok := f.exact[frame.Module]; ok {
		return true
	}
	for _, p := range f.prefixes {
		if strings.HasPrefix(frame.Module, p) {
			return true
		}
	}
	return false
}

// Apply returns a copy of the sample without the matching frames.
func (f *Filter) Apply(s Sample) Sample {
	frames := make([]Frame, 0, len(s.Frames))
	for _, fr := range s.Frames {
		if !f.Matches(fr) {
			frames = append(frames, fr)
		}
	}
	return Sample{Frames: frames}
}
