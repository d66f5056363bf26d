// Package makefile renders GNU make fragments for the make devEnv.
//
// Every (project, target) pair becomes a self-contained fragment whose
// variables are prefixed with the project and target, so fragments of any
// number of projects can be included into one solution makefile. Paths are
// written relative to the fragment's own directory.
package makefile

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/slngen/slngen/pkg/emitters/internal/textfile"
	"github.com/slngen/slngen/pkg/engine"
)

// Name is the emitter registry key.
const Name = "make"

const header = "# Generated by slngen. Do not edit."

var compileExtensions = map[string]bool{".c": true, ".cc": true, ".cpp": true, ".cxx": true}

// Emitter implements engine.Emitter for GNU make.
type Emitter struct{}

// New creates the make emitter.
func New() *Emitter {
	return &Emitter{}
}

func (e *Emitter) Name() string { return Name }

func (e *Emitter) DevEnvs() []engine.DevEnv {
	return []engine.DevEnv{engine.DevEnvMake}
}

func (e *Emitter) ProjectArtifactPath(dir, fileName string, t engine.Target) string {
	return filepath.Join(dir, fileName+"_"+t.Slug()+".mk")
}

func (e *Emitter) SolutionArtifactPath(dir, fileName string) string {
	return filepath.Join(dir, fileName+".mk")
}

// VarPrefix returns the make variable prefix of a project target, e.g.
// "BIRDGAME_LINUX_MAKE_DEBUG".
func VarPrefix(name string, t engine.Target) string {
	return identifier(name + "_" + t.Slug())
}

func identifier(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// OutputFileName returns the file a project target builds.
func OutputFileName(conf *engine.Configuration) string {
	name := engine.OutputLibraryName(conf)
	p := conf.Target().Platform
	switch conf.ScalarOr(engine.OutputType, engine.OutputTypeExecutable.Value) {
	case engine.OutputTypeStaticLibrary.Value:
		if p.IsWindows() {
			return name + ".lib"
		}
		return "lib" + name + ".a"
	case engine.OutputTypeDynamicLibrary.Value:
		switch {
		case p.IsWindows():
			return name + ".dll"
		case p == engine.PlatformMacOS:
			return "lib" + name + ".dylib"
		default:
			return "lib" + name + ".so"
		}
	default:
		if p.IsWindows() {
			return name + ".exe"
		}
		return name
	}
}

// EmitProject implements engine.Emitter.
func (e *Emitter) EmitProject(in engine.ProjectInput) ([]engine.Artifact, error) {
	if in.Target.DevEnv != engine.DevEnvMake {
		return nil, fmt.Errorf("make emitter does not support devenv %s", in.Target.DevEnv)
	}
	target := in.Target
	return []engine.Artifact{{
		Path:    in.Path,
		Content: renderProject(in),
		Entity:  in.Name,
		Target:  &target,
		Kind:    engine.ArtifactProject,
		Emitter: Name,
	}}, nil
}

func renderProject(in engine.ProjectInput) []byte {
	conf := in.Config
	dir := filepath.Dir(in.Path)
	p := VarPrefix(in.Name, in.Target)
	root := "$(" + p + "_ROOT)"
	local := func(v string) string {
		if filepath.IsAbs(v) {
			return root + "/" + engine.RelativeTo(dir, v)
		}
		return filepath.ToSlash(v)
	}

	outDir := root + "/output/" + in.Target.Slug()
	if v, ok := conf.Scalar(engine.OutputPath); ok {
		outDir = strings.TrimSuffix(local(v), "/")
	}

	var cppflags []string
	for _, inc := range conf.List(engine.IncludePaths) {
		cppflags = append(cppflags, "-I"+local(inc))
	}
	if conf.ScalarOr(engine.CharacterSet, "") == engine.CharacterSetUnicode.Value {
		cppflags = append(cppflags, "-DUNICODE", "-D_UNICODE")
	}
	for _, d := range conf.List(engine.Defines) {
		cppflags = append(cppflags, "-D"+d)
	}

	cflags := optimizationFlags(in.Target.Optimization)
	cflags = append(cflags, warningFlags(conf)...)
	if conf.ScalarOr(engine.OutputType, "") == engine.OutputTypeDynamicLibrary.Value && !in.Target.Platform.IsWindows() {
		cflags = append(cflags, "-fPIC")
	}
	cflags = append(cflags, conf.List(engine.CompilerOptions)...)

	var cxxflags []string
	if std := languageStandard(conf.ScalarOr(engine.LanguageStandard, "")); std != "" {
		cxxflags = append(cxxflags, std)
	}
	if conf.ScalarOr(engine.ExceptionHandling, "") == engine.ExceptionsDisable.Value {
		cxxflags = append(cxxflags, "-fno-exceptions")
	}

	var ldflags, ldlibs, prereqs []string
	for _, lp := range conf.List(engine.LibraryPaths) {
		ldflags = append(ldflags, "-L"+local(lp))
	}
	for _, dep := range in.Dependencies {
		depVar := "$(" + VarPrefix(dep.Name, dep.Target) + "_OUTPUT)"
		prereqs = append(prereqs, depVar)
		ldflags = append(ldflags, "-L$(dir "+depVar+")")
	}
	ldflags = append(ldflags, conf.List(engine.LinkerOptions)...)
	for _, lib := range conf.List(engine.LibraryFiles) {
		switch {
		case filepath.IsAbs(lib):
			ldlibs = append(ldlibs, local(lib))
		case path.Ext(lib) != "":
			ldlibs = append(ldlibs, filepath.ToSlash(lib))
		default:
			ldlibs = append(ldlibs, "-l"+lib)
		}
	}

	sources := compiledSources(conf.List(engine.SourceFiles))
	objects := objectNames(sources)

	w := textfile.New("\t", "\n")
	w.Line(header)
	w.Linef("# Project: %s %s", in.Name, in.Target)
	w.Blank()
	w.Linef("%s_ROOT := $(patsubst %%/,%%,$(dir $(lastword $(MAKEFILE_LIST))))", p)
	w.Linef("%s_OUTDIR := %s", p, outDir)
	w.Linef("%s_OBJDIR := %s/obj/%s_%s", p, root, in.Name, in.Target.Slug())
	w.Linef("%s_OUTPUT := $(%s_OUTDIR)/%s", p, p, OutputFileName(conf))
	assign(w, p+"_CPPFLAGS", cppflags)
	assign(w, p+"_CFLAGS", cflags)
	assign(w, p+"_CXXFLAGS", append([]string{"$(" + p + "_CFLAGS)"}, cxxflags...))
	assign(w, p+"_LDFLAGS", ldflags)
	assign(w, p+"_LDLIBS", ldlibs)
	assign(w, p+"_PREREQS", prereqs)
	objectVars := make([]string, len(objects))
	for i, o := range objects {
		objectVars[i] = "$(" + p + "_OBJDIR)/" + o
	}
	assign(w, p+"_OBJECTS", objectVars)
	w.Blank()

	w.Linef(".PHONY: %s_%s", in.Name, in.Target.Slug())
	w.Linef("%s_%s: $(%s_OUTPUT)", in.Name, in.Target.Slug(), p)
	w.Blank()

	w.Linef("$(%s_OUTPUT): $(%s_OBJECTS) $(%s_PREREQS)", p, p, p)
	w.ScopeIndent(func() {
		w.Line("@mkdir -p $(@D)")
		switch conf.ScalarOr(engine.OutputType, engine.OutputTypeExecutable.Value) {
		case engine.OutputTypeStaticLibrary.Value:
			w.Linef("$(AR) rcs $@ $(%s_OBJECTS)", p)
		case engine.OutputTypeDynamicLibrary.Value:
			w.Linef("$(CXX) -shared -o $@ $(%s_OBJECTS) $(%s_LDFLAGS) $(%s_LDLIBS)", p, p, p)
		default:
			w.Linef("$(CXX) -o $@ $(%s_OBJECTS) $(%s_LDFLAGS) $(%s_LDLIBS)", p, p, p)
		}
	})

	for i, src := range sources {
		w.Blank()
		w.Linef("$(%s_OBJDIR)/%s: %s", p, objects[i], local(src))
		w.ScopeIndent(func() {
			w.Line("@mkdir -p $(@D)")
			if strings.ToLower(path.Ext(src)) == ".c" {
				w.Linef("$(CC) $(%s_CPPFLAGS) $(%s_CFLAGS) -c $< -o $@", p, p)
			} else {
				w.Linef("$(CXX) $(%s_CPPFLAGS) $(%s_CXXFLAGS) -c $< -o $@", p, p)
			}
		})
	}
	return w.Bytes()
}

func assign(w *textfile.Writer, name string, values []string) {
	if len(values) == 0 {
		w.Linef("%s :=", name)
		return
	}
	w.Linef("%s := %s", name, strings.Join(values, " "))
}

func compiledSources(files []string) []string {
	var out []string
	for _, f := range files {
		if compileExtensions[strings.ToLower(path.Ext(filepath.ToSlash(f)))] {
			out = append(out, f)
		}
	}
	return out
}

// objectNames derives one object file per source from its base name,
// numbering repeats so two sources never share an object.
func objectNames(sources []string) []string {
	seen := make(map[string]int)
	out := make([]string, len(sources))
	for i, src := range sources {
		slashed := filepath.ToSlash(src)
		base := strings.TrimSuffix(path.Base(slashed), path.Ext(slashed))
		seen[base]++
		if n := seen[base]; n > 1 {
			base = fmt.Sprintf("%s_%d", base, n)
		}
		out[i] = base + ".o"
	}
	return out
}

func optimizationFlags(o engine.Optimization) []string {
	switch o {
	case engine.Debug:
		return []string{"-O0", "-g"}
	case engine.Retail:
		return []string{"-O3"}
	default:
		return []string{"-O2", "-g"}
	}
}

func warningFlags(conf *engine.Configuration) []string {
	var out []string
	switch conf.ScalarOr(engine.WarningLevel, "") {
	case "TurnOffAllWarnings", "Level0":
		out = append(out, "-w")
	case "Level1", "Level2", "Level3":
		out = append(out, "-Wall")
	case "Level4":
		out = append(out, "-Wall", "-Wextra")
	case "EnableAllWarnings":
		out = append(out, "-Wall", "-Wextra", "-Wpedantic")
	}
	if conf.ScalarOr(engine.WarningsAsErrors, "") == engine.WarningsAsErrorsEnable.Value {
		out = append(out, "-Werror")
	}
	return out
}

func languageStandard(v string) string {
	switch {
	case v == "":
		return ""
	case v == "stdcpplatest":
		return "-std=c++2b"
	case strings.HasPrefix(v, "stdcpp"):
		return "-std=c++" + strings.TrimPrefix(v, "stdcpp")
	case strings.HasPrefix(v, "c++"), strings.HasPrefix(v, "gnu++"):
		return "-std=" + v
	default:
		return ""
	}
}
