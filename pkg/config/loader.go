package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/slngen/slngen/pkg/engine"
)

// declarationExts are the file extensions the loader reads.
var declarationExts = map[string]bool{".yaml": true, ".yml": true, ".hcl": true, ".cue": true}

// Loader reads declaration files into a Workspace.
type Loader struct {
	logger   zerolog.Logger
	validate *validator.Validate
	schemas  *SchemaRegistry
	scripts  *StarlarkEvaluator
}

// NewLoader creates a loader with the built-in schemas.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:   logger.With().Str("component", "config-loader").Logger(),
		validate: validator.New(),
		schemas:  NewSchemaRegistry(),
		scripts:  NewStarlarkEvaluator(0),
	}
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

type declFile struct {
	path string
	// walked is set for files found by walking a directory. Walked YAML
	// files without a top-level workspace key are not declarations.
	walked bool
}

// Load reads every declaration file named by paths, or found under the
// directories among them, and merges them into one workspace. The
// workspace root is the directory of the first file loaded.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Workspace, error) {
	if len(paths) == 0 {
		paths = []string{"."}
	}

	files, err := discover(paths)
	if err != nil {
		return nil, engine.NewDeclarationError("failed to discover declaration files", err).WithCode(engine.ErrCodeNotFound)
	}
	if len(files) == 0 {
		return nil, engine.NewDeclarationError(
			fmt.Sprintf("no declaration files found in %s", strings.Join(paths, ", ")), nil,
		).WithCode(engine.ErrCodeNotFound)
	}

	ws := &Workspace{
		Root:     filepath.Dir(files[0].path),
		LoadedAt: time.Now(),
		sources:  make(map[string][]string),
		scripts:  make(map[string]*Script),
	}

	var problems []ValidationError
	hclParser := hclparse.NewParser()
	projects := make(map[string]string)
	solutions := make(map[string]string)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		wf, errs, skip := l.parseFile(ctx, hclParser, f, ws.Root)
		if skip {
			l.logger.Debug().Str("file", f.path).Msg("Skipping YAML file without workspace key")
			continue
		}
		if len(errs) > 0 {
			problems = append(problems, errs...)
			continue
		}
		if err := l.validate.Struct(wf); err != nil {
			problems = append(problems, convertValidatorErrors(f.path, err)...)
			continue
		}

		ws.SourceFiles = append(ws.SourceFiles, f.path)
		if ws.Name == "" {
			ws.Name = wf.Workspace
		} else if wf.Workspace != ws.Name {
			problems = append(problems, ValidationError{
				File:    f.path,
				Path:    "workspace",
				Message: fmt.Sprintf("workspace %q does not match %q", wf.Workspace, ws.Name),
			})
			continue
		}

		for _, p := range wf.Projects {
			p.File = f.path
			if prev, ok := projects[p.Name]; ok {
				problems = append(problems, ValidationError{
					File:    f.path,
					Path:    "projects." + p.Name,
					Message: fmt.Sprintf("project already declared in %s", prev),
				})
				continue
			}
			projects[p.Name] = f.path
			ws.Projects = append(ws.Projects, p)
		}
		for _, s := range wf.Solutions {
			s.File = f.path
			if prev, ok := solutions[s.Name]; ok {
				problems = append(problems, ValidationError{
					File:    f.path,
					Path:    "solutions." + s.Name,
					Message: fmt.Sprintf("solution already declared in %s", prev),
				})
				continue
			}
			solutions[s.Name] = f.path
			ws.Solutions = append(ws.Solutions, s)
		}
	}

	if len(problems) == 0 {
		problems = append(problems, l.prepare(ctx, ws)...)
	}
	if len(problems) > 0 {
		errs := make(engine.ErrorList, len(problems))
		for i, p := range problems {
			errs[i] = p
		}
		return nil, engine.NewDeclarationError(
			fmt.Sprintf("%d declaration problem(s)", len(problems)), errs,
		).WithCode(engine.ErrCodeValidation)
	}
	if ws.Name == "" {
		return nil, engine.NewDeclarationError("no workspace declared", nil).WithCode(engine.ErrCodeNotFound)
	}

	l.logger.Info().
		Str("workspace", ws.Name).
		Str("root", ws.Root).
		Int("files", len(ws.SourceFiles)).
		Int("projects", len(ws.Projects)).
		Int("solutions", len(ws.Solutions)).
		Msg("Loaded workspace")
	return ws, nil
}

// parseFile decodes one file by extension. skip reports a walked YAML file
// that is not a declaration.
func (l *Loader) parseFile(ctx context.Context, hclParser *hclparse.Parser, f declFile, root string) (*WorkspaceFile, []ValidationError, bool) {
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".hcl":
		wf, diags := parseHCLFile(hclParser, f.path, root)
		if diags.HasErrors() {
			return nil, hclDiagnosticsToErrors(f.path, diags), false
		}
		raw, err := toRaw(wf)
		if err != nil {
			return nil, []ValidationError{{File: f.path, Message: err.Error()}}, false
		}
		if errs := l.schemas.ValidateAgainstSchema(ctx, "workspace", raw); len(errs) > 0 {
			return nil, withFile(f.path, errs), false
		}
		return wf, nil, false
	case ".cue":
		wf, errs := l.schemas.parseCUEFile(f.path)
		return wf, errs, false
	default:
		return l.parseYAMLFile(ctx, f)
	}
}

func (l *Loader) parseYAMLFile(ctx context.Context, f declFile) (*WorkspaceFile, []ValidationError, bool) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, []ValidationError{{File: f.path, Message: fmt.Sprintf("failed to read file: %v", err)}}, false
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, []ValidationError{{File: f.path, Message: fmt.Sprintf("invalid YAML: %v", err)}}, false
	}
	if _, ok := raw["workspace"]; !ok && f.walked {
		return nil, nil, true
	}
	if errs := l.schemas.ValidateAgainstSchema(ctx, "workspace", raw); len(errs) > 0 {
		return nil, withFile(f.path, errs), false
	}

	var wf WorkspaceFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wf); err != nil {
		return nil, []ValidationError{{File: f.path, Message: fmt.Sprintf("failed to decode workspace: %v", err)}}, false
	}
	return &wf, nil, false
}

// prepare expands source roots, enumerates sources and loads scripts.
func (l *Loader) prepare(ctx context.Context, ws *Workspace) []ValidationError {
	var problems []ValidationError

	for i := range ws.Projects {
		p := &ws.Projects[i]
		ph := Placeholders{"workspace": ws.Root, "project.Name": p.Name}

		root := p.SourceRoot
		if root == "" {
			root = filepath.Dir(p.File)
		}
		expanded, err := ph.ExpandPath(filepath.Dir(p.File), root)
		if err != nil {
			problems = append(problems, ValidationError{File: p.File, Path: p.Name + ".source_root", Message: err.Error()})
			continue
		}
		p.SourceRoot = expanded

		globs := p.SourceGlobs
		if globs == nil {
			globs = DefaultSourceGlobs
		}
		files, err := EnumerateSources(p.SourceRoot, globs)
		if err != nil {
			problems = append(problems, ValidationError{File: p.File, Path: p.Name + ".source_globs", Message: err.Error()})
			continue
		}
		ws.sources[p.Name] = files
		l.logger.Debug().Str("entity", p.Name).Int("sources", len(files)).Msg("Enumerated sources")

		if err := l.loadScript(ctx, ws, scriptKey(engine.EntityProject, p.Name), p.File, p.Script); err != nil {
			problems = append(problems, ValidationError{File: p.File, Path: p.Name + ".script", Message: err.Error()})
		}
	}

	for _, s := range ws.Solutions {
		if err := l.loadScript(ctx, ws, scriptKey(engine.EntitySolution, s.Name), s.File, s.Script); err != nil {
			problems = append(problems, ValidationError{File: s.File, Path: s.Name + ".script", Message: err.Error()})
		}
	}
	return problems
}

func (l *Loader) loadScript(ctx context.Context, ws *Workspace, key, declFile, script string) error {
	if script == "" {
		return nil
	}
	path := script
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(declFile), path)
	}
	s, err := l.scripts.Load(ctx, path)
	if err != nil {
		return err
	}
	ws.scripts[key] = s
	return nil
}

func scriptKey(kind engine.EntityKind, name string) string {
	return string(kind) + "/" + name
}

// discover expands paths into declaration files. Files named explicitly are
// kept in argument order; directories contribute their files sorted.
func discover(paths []string) ([]declFile, error) {
	var out []declFile
	seen := make(map[string]bool)

	add := func(path string, walked bool) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, declFile{path: abs, walked: walked})
		}
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.IsDir() {
			if err := add(path, false); err != nil {
				return nil, err
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != path && (skippedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Name() == ToolConfigFileName || !declarationExts[strings.ToLower(filepath.Ext(p))] {
				return nil
			}
			found = append(found, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
		sort.Strings(found)
		for _, p := range found {
			if err := add(p, true); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// convertValidatorErrors converts struct validation failures.
func convertValidatorErrors(path string, err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{File: path, Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("failed on the '%s=%s' rule", fe.Tag(), fe.Param())
		}
		out = append(out, ValidationError{File: path, Path: fe.Namespace(), Message: msg})
	}
	return out
}

// Registry builds the engine declarations of the workspace.
func (w *Workspace) Registry() (*engine.Registry, error) {
	reg := engine.NewRegistry()
	var errs engine.ErrorList

	for _, p := range w.Projects {
		specs, err := targetSpecs(p.Targets)
		if err != nil {
			errs = append(errs, engine.NewDeclarationError("invalid targets", err).WithEntity(p.Name).WithCode(engine.ErrCodeValidation))
			continue
		}
		proj := engine.NewProject(p.Name, p.SourceRoot,
			configureFunc(w.Root, p.Configure, w.sources[p.Name], w.scripts[scriptKey(engine.EntityProject, p.Name)]))
		for _, spec := range specs {
			proj.AddTargetSpec(spec)
		}
		if err := reg.AddProject(proj); err != nil {
			errs = append(errs, err)
		}
	}

	for _, s := range w.Solutions {
		specs, err := targetSpecs(s.Targets)
		if err != nil {
			errs = append(errs, engine.NewDeclarationError("invalid targets", err).WithEntity(s.Name).WithCode(engine.ErrCodeValidation))
			continue
		}
		sol := engine.NewSolution(s.Name,
			configureFunc(w.Root, s.Configure, nil, w.scripts[scriptKey(engine.EntitySolution, s.Name)]))
		for _, spec := range specs {
			sol.AddTargetSpec(spec)
		}
		if err := reg.AddSolution(sol); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Sources returns the enumerated source files of a project.
func (w *Workspace) Sources(project string) []string {
	return append([]string(nil), w.sources[project]...)
}

func targetSpecs(decls []TargetDecl) ([]engine.TargetSpec, error) {
	specs := make([]engine.TargetSpec, 0, len(decls))
	for i, d := range decls {
		opt, err := engine.ParseOptimization(d.Optimization)
		if err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", i, err)
		}
		spec := engine.TargetSpec{Optimization: opt}
		for _, p := range d.Platforms {
			spec.Platforms = append(spec.Platforms, engine.Platform(p))
		}
		for _, e := range d.DevEnvs {
			spec.DevEnvs = append(spec.DevEnvs, engine.DevEnv(e))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
