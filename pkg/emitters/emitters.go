// Package emitters assembles the built-in backends into an
// engine.EmitterRegistry.
package emitters

import (
	"fmt"
	"sort"

	"github.com/slngen/slngen/pkg/emitters/makefile"
	"github.com/slngen/slngen/pkg/emitters/vs"
	"github.com/slngen/slngen/pkg/engine"
)

// Factory creates a backend.
type Factory func() engine.Emitter

var builtins = map[string]Factory{
	vs.Name:       func() engine.Emitter { return vs.New() },
	makefile.Name: func() engine.Emitter { return makefile.New() },
}

// Names returns the built-in backend names sorted.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Default returns a registry holding every built-in backend.
func Default() *engine.EmitterRegistry {
	reg, err := New(Names()...)
	if err != nil {
		panic(err)
	}
	return reg
}

// New returns a registry holding the named backends. An empty list selects
// every built-in backend.
func New(names ...string) (*engine.EmitterRegistry, error) {
	if len(names) == 0 {
		names = Names()
	}
	reg := engine.NewEmitterRegistry()
	for _, name := range names {
		factory, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown emitter %q (available: %v)", name, Names())
		}
		if err := reg.Register(factory()); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
