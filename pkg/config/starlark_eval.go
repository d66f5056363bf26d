package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/slngen/slngen/pkg/engine"
)

// StarlarkEvaluator loads configure scripts and runs them per target.
type StarlarkEvaluator struct {
	timeout time.Duration

	mu      sync.Mutex
	scripts map[string]*Script
}

// Script is a loaded Starlark file defining configure(conf, target). Its
// globals are frozen, so one Script may run on many goroutines at once.
type Script struct {
	Path      string
	timeout   time.Duration
	configure starlark.Callable
}

// NewStarlarkEvaluator creates a new Starlark evaluator. A zero timeout
// means 30 seconds per configure call.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
		scripts: make(map[string]*Script),
	}
}

// Load executes the file at path once and returns its configure function.
// Loading the same path twice returns the cached Script.
func (se *StarlarkEvaluator) Load(ctx context.Context, path string) (*Script, error) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if s, ok := se.scripts[path]; ok {
		return s, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}

	thread := newThread("load " + path)
	stop := cancelOnDone(ctx, thread, se.timeout)
	defer stop()

	globals, err := starlark.ExecFile(thread, path, src, predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	globals.Freeze()

	fn, ok := globals["configure"].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("script %s does not define configure(conf, target)", path)
	}

	s := &Script{Path: path, timeout: se.timeout, configure: fn}
	se.scripts[path] = s
	return s, nil
}

// run calls configure(conf, target) for one configure invocation.
func (s *Script) run(w *confWriter, ctx engine.ConfigureContext) error {
	thread := newThread(ctx.Name + " " + ctx.Target.Slug())
	stop := cancelOnDone(context.Background(), thread, s.timeout)
	defer stop()

	args := starlark.Tuple{newConfValue(w, ctx), targetValue(ctx.Target)}
	if _, err := starlark.Call(thread, s.configure, args, nil); err != nil {
		if evalErr, ok := err.(*starlark.EvalError); ok {
			return fmt.Errorf("%s: %s", s.Path, evalErr.Backtrace())
		}
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	return nil
}

func newThread(name string) *starlark.Thread {
	return &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts may not write to the generator's output.
		},
	}
}

// cancelOnDone cancels thread when ctx ends or timeout elapses.
func cancelOnDone(ctx context.Context, thread *starlark.Thread, timeout time.Duration) func() {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() {
		close(done)
		cancel()
	}
}

func predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

func targetValue(t engine.Target) starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
		"platform":     starlark.String(t.Platform),
		"devenv":       starlark.String(t.DevEnv),
		"optimization": starlark.String(t.Optimization.String()),
		"name":         starlark.String(t.Name()),
		"slug":         starlark.String(t.Slug()),
	})
}

// newConfValue exposes the configuration's write API to a script.
func newConfValue(w *confWriter, ctx engine.ConfigureContext) starlark.Value {
	category := func(b *starlark.Builtin, v starlark.Value) (engine.Category, error) {
		s, ok := starlark.AsString(v)
		if !ok {
			return "", fmt.Errorf("%s: category must be a string, got %s", b.Name(), v.Type())
		}
		cat, err := ParseCategory(s)
		if err != nil {
			return "", fmt.Errorf("%s: %w", b.Name(), err)
		}
		return cat, nil
	}

	values := func(b *starlark.Builtin, args starlark.Tuple) ([]string, error) {
		var out []string
		for _, a := range args {
			if list, ok := a.(*starlark.List); ok {
				for i := 0; i < list.Len(); i++ {
					s, err := scalarString(list.Index(i))
					if err != nil {
						return nil, fmt.Errorf("%s: %w", b.Name(), err)
					}
					out = append(out, s)
				}
				continue
			}
			s, err := scalarString(a)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			out = append(out, s)
		}
		return out, nil
	}

	// collection builds add/export/default, which take a category then values.
	collection := func(name string, fn func(engine.Category, []string)) *starlark.Builtin {
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(kwargs) > 0 || len(args) < 1 {
				return nil, fmt.Errorf("%s: want (category, *values)", b.Name())
			}
			cat, err := category(b, args[0])
			if err != nil {
				return nil, err
			}
			vals, err := values(b, args[1:])
			if err != nil {
				return nil, err
			}
			fn(cat, vals)
			return starlark.None, nil
		})
	}

	set := starlark.NewBuiltin("set", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var catV, valV starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &catV, &valV); err != nil {
			return nil, err
		}
		cat, err := category(b, catV)
		if err != nil {
			return nil, err
		}
		v, err := scalarString(valV)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		w.set(cat, v)
		return starlark.None, nil
	})

	dependsOn := starlark.NewBuiltin("depends_on", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		mode := string(engine.DependencyPublic)
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "mode?", &mode); err != nil {
			return nil, err
		}
		w.dependsOn(name, mode)
		return starlark.None, nil
	})

	addProject := starlark.NewBuiltin("add_project", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
			return nil, err
		}
		w.addProject(name)
		return starlark.None, nil
	})

	get := starlark.NewBuiltin("get", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var catV starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &catV); err != nil {
			return nil, err
		}
		cat, err := category(b, catV)
		if err != nil {
			return nil, err
		}
		if cat.IsScalar() {
			if v, ok := w.conf.Scalar(cat); ok {
				return starlark.String(v), nil
			}
			return starlark.None, nil
		}
		list := w.conf.List(cat)
		elems := make([]starlark.Value, len(list))
		for i, v := range list {
			elems[i] = starlark.String(v)
		}
		return starlark.NewList(elems), nil
	})

	return starlarkstruct.FromStringDict(starlark.String("conf"), starlark.StringDict{
		"name":        starlark.String(ctx.Name),
		"kind":        starlark.String(ctx.Kind),
		"source_root": starlark.String(ctx.SourceRootPath),
		"set":         set,
		"get":         get,
		"add":         collection("add", func(c engine.Category, v []string) { w.add(c, v...) }),
		"export":      collection("export", func(c engine.Category, v []string) { w.export(c, v...) }),
		"default":     collection("default", func(c engine.Category, v []string) { w.setDefault(c, v...) }),
		"depends_on":  dependsOn,
		"add_project": addProject,
	})
}

// scalarString renders a Starlark string, bool or int as a category value.
func scalarString(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case starlark.String:
		return string(val), nil
	case starlark.Bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case starlark.Int:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %s", v.Type())
	}
}
