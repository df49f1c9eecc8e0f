// Package stack defines captured call stacks and the blocklist filter applied to them.
package stack

import "strings"

// Frame is one call site of a captured stack.
//
// Address identifies the frame. Symbol and Module are best effort and empty
// when the program counter could not be resolved.
type Frame struct {
	Address uint64 // Program counter.
	Entry   uint64 // Entry PC of the enclosing function.
	Symbol  string // Fully qualified function name.
	Module  string // Package import path.
	File    string
	Line    int64
}

// Resolved reports whether the frame carries a symbol name.
func (f Frame) Resolved() bool {
	return f.Symbol != ""
}

// Key is the interning key of a frame. Inlined calls share a program counter,
// so the symbol disambiguates them.
type Key struct {
	Address uint64
	Symbol  string
}

// Key returns the frame's interning key.
func (f Frame) Key() Key {
	return Key{Address: f.Address, Symbol: f.Symbol}
}

// Sample is a single captured stack, leaf first.
type Sample struct {
	Frames []Frame
}

// Empty reports whether the sample has no frames.
func (s Sample) Empty() bool {
	return len(s.Frames) == 0
}

// ModuleOf returns the package import path of a Go symbol name.
//
//	github.com/x/y/pkg.(*T).Method -> github.com/x/y/pkg
//	gopkg.in/yaml%2ev3.Unmarshal   -> gopkg.in/yaml.v3
//	runtime.gopark                 -> runtime
func ModuleOf(symbol string) string {
	if symbol == "" {
		return ""
	}
	// Type arguments may contain import paths of their own.
	name := symbol
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	lastSlash := strings.LastIndex(name, "/")
	rest := name[lastSlash+1:]
	module := name
	if dot := strings.Index(rest, "."); dot >= 0 {
		module = name[:lastSlash+1+dot]
	}
	return strings.ReplaceAll(module, "%2e", ".")
}
