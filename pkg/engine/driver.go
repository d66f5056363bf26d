package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	// Workers bounds the configure and emission pools. <= 0 selects DefaultWorkers.
	Workers int

	// OutputRoot is the default directory for project and solution artifacts.
	OutputRoot string

	// DryRun renders artifacts without writing them.
	DryRun bool

	// CleanStale removes artifacts of the previous successful run that this
	// run no longer produces. Requires History.
	CleanStale bool

	// Emitters maps devEnvs to backends.
	Emitters *EmitterRegistry

	Logger   zerolog.Logger
	Observer Observer
	History  HistoryStore
	Policy   PolicyChecker
}

// Generator runs the generation pipeline for a set of root solutions.
type Generator struct {
	opts     GeneratorOptions
	logger   zerolog.Logger
	observer Observer
}

// NewGenerator creates a generator.
func NewGenerator(opts GeneratorOptions) (*Generator, error) {
	if opts.Emitters == nil {
		return nil, NewDeclarationError("no emitter registry configured", nil).WithCode(ErrCodeNoEmitter)
	}
	if opts.OutputRoot == "" {
		return nil, NewDeclarationError("output root is required", nil).WithCode(ErrCodeValidation)
	}
	root, err := filepath.Abs(opts.OutputRoot)
	if err != nil {
		return nil, NewDeclarationError("invalid output root", err).WithCode(ErrCodeValidation)
	}
	opts.OutputRoot = root
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Generator{
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "generator").Logger(),
		observer: opts.Observer,
	}, nil
}

// ArtifactResult is the outcome of one artifact.
type ArtifactResult struct {
	Artifact
	Status ArtifactStatus `json:"status"`
	SHA256 string         `json:"sha256"`
}

// SolutionResult is the outcome of one root solution.
type SolutionResult struct {
	Name string `json:"name"`

	// Stage is the last stage completed.
	Stage Stage `json:"stage"`

	// Skipped is true when the solution declares no targets.
	Skipped bool `json:"skipped,omitempty"`

	// Targets is the solution's expanded matrix.
	Targets []Target `json:"targets"`

	// Failed holds the error of every solution target that was dropped.
	Failed map[Target]error `json:"-"`

	// Artifacts lists the paths this solution produced, sorted.
	Artifacts []string `json:"artifacts"`
}

// GenerationResult is the outcome of one Generate call.
type GenerationResult struct {
	RunID       string            `json:"run_id,omitempty"`
	Status      RunStatus         `json:"status"`
	Solutions   []*SolutionResult `json:"solutions"`
	Artifacts   []ArtifactResult  `json:"artifacts"`
	Removed     []string          `json:"removed,omitempty"`
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
	Findings    []PolicyFinding   `json:"findings,omitempty"`
	Errors      ErrorList         `json:"-"`
	Duration    time.Duration     `json:"duration"`
}

// resolveKey identifies one cached resolution.
type resolveKey struct {
	requester string
	target    Target
	roots     string
}

type resolveEntry struct {
	res *ResolvedTarget
	err error
}

// projectJob is one (project, target) to emit.
type projectJob struct {
	node    *ResolvedNode
	source  string
	emitter Emitter
	path    string
	deps    []ProjectArtifactRef
}

// solutionJob is one solution file to emit.
type solutionJob struct {
	solution string
	emitter  Emitter
	input    SolutionInput
}

// run holds the state of one Generate call.
type run struct {
	graph     *ProjectGraph
	resolver  *Resolver
	cache     map[resolveKey]*resolveEntry
	planned   map[string]*projectJob
	checked   map[string]bool
	rejected  map[string]bool
	artifacts []Artifact
	errs      ErrorList
	result    *GenerationResult
}

func projectKey(name string, t Target) string {
	return name + "|" + t.Slug()
}

// Generate runs the pipeline for the named solutions, or for every solution
// in reg when none are named. Failures are scoped to the smallest affected
// unit; every unaffected artifact is still produced. The returned error is
// the aggregated ErrorList, or nil.
func (g *Generator) Generate(ctx context.Context, reg *Registry, solutions ...string) (*GenerationResult, error) {
	start := time.Now()
	if len(solutions) == 0 {
		solutions = reg.SolutionNames()
	}

	r := &run{
		cache:    make(map[resolveKey]*resolveEntry),
		planned:  make(map[string]*projectJob),
		checked:  make(map[string]bool),
		rejected: make(map[string]bool),
		result:   &GenerationResult{Status: RunStatusRunning},
	}

	if g.opts.History != nil && !g.opts.DryRun {
		id, err := g.opts.History.BeginRun(ctx, RunInfo{
			Solutions:  solutions,
			OutputRoot: g.opts.OutputRoot,
			DryRun:     g.opts.DryRun,
			StartedAt:  start,
		})
		if err != nil {
			g.logger.Warn().Err(err).Msg("failed to record run start, continuing without history")
		} else {
			r.result.RunID = id
		}
	}

	graph, err := NewGraphBuilder(g.opts.Workers, g.opts.Logger).Build(ctx, reg)
	if err != nil {
		return g.finish(ctx, r, start, err)
	}
	r.graph = graph
	r.resolver = NewResolver(graph, g.opts.Logger)
	for _, name := range graph.Names() {
		node := graph.Nodes[name]
		g.observer.TargetsExpanded(ctx, name, EntityProject, len(node.Targets))
		r.result.Diagnostics = append(r.result.Diagnostics, node.Diagnostics...)
	}
	for _, err := range graph.Errors() {
		r.errs.appendErr(err)
	}

	for _, name := range solutions {
		if err := ctx.Err(); err != nil {
			return g.finish(ctx, r, start, err)
		}
		sr := &SolutionResult{Name: name, Failed: make(map[Target]error)}
		r.result.Solutions = append(r.result.Solutions, sr)
		if err := g.runSolution(ctx, reg, r, sr); err != nil {
			r.errs.appendErr(err)
			g.logger.Error().Err(err).Str("solution", name).Str("stage", string(sr.Stage)).
				Msg("solution pipeline halted")
		}
	}

	if err := ctx.Err(); err != nil {
		return g.finish(ctx, r, start, err)
	}

	g.writeAll(ctx, r)
	return g.finish(ctx, r, start, nil)
}

// runSolution advances one solution from Loaded to Emitted. The Written
// stage is completed by writeAll once every solution was emitted.
func (g *Generator) runSolution(ctx context.Context, reg *Registry, r *run, sr *SolutionResult) error {
	var sol *Solution
	if err := g.runStage(ctx, sr, StageLoaded, func(context.Context) error {
		s, ok := reg.Solution(sr.Name)
		if !ok {
			return NewDeclarationError("unknown solution", nil).WithEntity(sr.Name).WithCode(ErrCodeNotFound)
		}
		sol = s
		return nil
	}); err != nil {
		return err
	}

	var node *EntityNode
	if err := g.runStage(ctx, sr, StageExpanded, func(ctx context.Context) error {
		sr.Targets = sol.Targets()
		g.observer.TargetsExpanded(ctx, sol.Name, EntitySolution, len(sr.Targets))
		node = ConfigureEntity(sol.Name, EntitySolution, "", sr.Targets, sol.Configure, g.opts.Logger)
		r.result.Diagnostics = append(r.result.Diagnostics, node.Diagnostics...)
		for _, t := range sr.Targets {
			if err, failed := node.Errors[t]; failed {
				g.failTarget(r, sr, t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if len(sr.Targets) == 0 {
		sr.Skipped = true
		return nil
	}

	// refs holds, per live solution target, the referenced project targets
	// grouped by project target.
	refs := make(map[Target]map[Target][]string)
	if err := g.runStage(ctx, sr, StageGraphBuilt, func(context.Context) error {
		for _, t := range sr.Targets {
			conf, ok := node.Configs[t]
			if !ok {
				continue
			}
			groups := make(map[Target][]string)
			for _, ref := range conf.ProjectRefs() {
				groups[ref.Target] = append(groups[ref.Target], ref.Name)
			}
			if len(groups) == 0 {
				g.logger.Warn().Str("solution", sr.Name).Str("target", t.String()).
					Msg("solution target references no projects")
			}
			refs[t] = groups
		}
		return g.requireLiveTargets(sr)
	}); err != nil {
		return err
	}

	configs := make(map[Target][]SolutionProject)
	if err := g.runStage(ctx, sr, StageResolved, func(ctx context.Context) error {
		for _, t := range sr.Targets {
			groups, ok := refs[t]
			if !ok {
				continue
			}
			projects, err := g.resolveSolutionTarget(ctx, r, sr.Name, t, groups)
			if err != nil {
				g.failTarget(r, sr, t, err)
				continue
			}
			configs[t] = projects
		}
		return g.requireLiveTargets(sr)
	}); err != nil {
		return err
	}

	return g.runStage(ctx, sr, StageEmitted, func(ctx context.Context) error {
		return g.emitSolution(ctx, r, sr, node, configs)
	})
}

// resolveSolutionTarget resolves the referenced project targets of one
// solution target and returns the solution entries: the referenced projects
// plus their transitive dependencies, dependencies first.
//
// Each reference is resolved on its own first. A reference that fails is
// recorded and left out; the others are still returned. The error is
// non-nil only when no reference resolved.
func (g *Generator) resolveSolutionTarget(
	ctx context.Context,
	r *run,
	solution string,
	t Target,
	groups map[Target][]string,
) ([]SolutionProject, error) {
	refTargets := make([]Target, 0, len(groups))
	for pt := range groups {
		refTargets = append(refTargets, pt)
	}
	sort.Slice(refTargets, func(i, j int) bool { return refTargets[i].Slug() < refTargets[j].Slug() })

	var out []SolutionProject
	var failed ErrorList
	for _, pt := range refTargets {
		var live []string
		for _, root := range uniqueSorted(groups[pt]) {
			if _, err := g.resolve(r, solution, pt, []string{root}); err != nil {
				failed.appendErr(err)
				continue
			}
			live = append(live, root)
		}
		if len(live) == 0 {
			continue
		}

		res, err := g.resolve(r, solution, pt, live)
		if err != nil {
			failed.appendErr(err)
			continue
		}
		needed := make(map[string]bool)
		for _, root := range live {
			needed[root] = true
			for _, dep := range res.Nodes[root].Closure {
				needed[dep] = true
			}
		}
		for _, name := range res.Order {
			if !needed[name] {
				continue
			}
			n := res.Nodes[name]
			deps := make([]string, len(n.Dependencies))
			for i, d := range n.Dependencies {
				deps[i] = d.Name
			}
			out = append(out, SolutionProject{Name: name, Target: pt, Dependencies: deps})
		}
	}

	if len(out) == 0 && len(failed) > 0 {
		return nil, failed
	}
	for _, err := range failed {
		r.errs.appendErr(err)
		g.observer.ErrorRecorded(ctx, err)
		g.logger.Error().Err(err).Str("solution", solution).Str("target", t.String()).
			Msg("project reference dropped")
	}
	return out, nil
}

// resolve returns the cached resolution of (t, roots) requested by solution,
// computing it once.
func (g *Generator) resolve(r *run, solution string, t Target, roots []string) (*ResolvedTarget, error) {
	key := resolveKey{requester: solution, target: t, roots: strings.Join(roots, "\x00")}
	if e, ok := r.cache[key]; ok {
		return e.res, e.err
	}
	res, err := r.resolver.ResolveFor(solution, t, roots)
	r.cache[key] = &resolveEntry{res: res, err: err}
	return res, err
}

// emitSolution plans and renders the project and solution artifacts of one solution.
func (g *Generator) emitSolution(
	ctx context.Context,
	r *run,
	sr *SolutionResult,
	node *EntityNode,
	configs map[Target][]SolutionProject,
) error {
	var jobs []*projectJob
	type fileGroup struct {
		emitter Emitter
		devEnv  DevEnv
		path    string
		input   SolutionInput
	}
	files := make(map[string]*fileGroup)
	var fileOrder []string

	for _, t := range sr.Targets {
		entries, ok := configs[t]
		if !ok {
			continue
		}
		solEmitter, ok := g.opts.Emitters.ForDevEnv(t.DevEnv)
		if !ok {
			g.failTarget(r, sr, t, NewEmissionError("no emitter for devenv "+string(t.DevEnv), nil).
				WithEntity(sr.Name).WithTarget(t).WithCode(ErrCodeNoEmitter))
			continue
		}

		conf := node.Configs[t]
		dir := g.location(conf.ScalarOr(SolutionPath, ""), g.opts.OutputRoot)
		path := solEmitter.SolutionArtifactPath(dir, conf.ScalarOr(SolutionFileName, sr.Name))
		fg, ok := files[path]
		if !ok {
			fg = &fileGroup{emitter: solEmitter, devEnv: t.DevEnv, path: path, input: SolutionInput{Name: sr.Name, Path: path}}
			files[path] = fg
			fileOrder = append(fileOrder, path)
		} else if fg.devEnv != t.DevEnv {
			g.failTarget(r, sr, t, NewEmissionError(
				fmt.Sprintf("solution file %s is claimed by devenvs %s and %s, give each devenv its own solution_file_name",
					path, fg.devEnv, t.DevEnv), nil).
				WithEntity(sr.Name).WithTarget(t).WithCode(ErrCodeDuplicatePath))
			continue
		}

		var projects []SolutionProject
		for _, entry := range entries {
			job, err := g.planProject(ctx, r, sr.Name, entry)
			if err != nil {
				r.errs.appendErr(err)
				g.observer.ErrorRecorded(ctx, err)
				continue
			}
			if job == nil {
				continue
			}
			if job.node != nil {
				jobs = append(jobs, job)
			}
			entry.Path = r.planned[projectKey(entry.Name, entry.Target)].path
			projects = append(projects, entry)
		}
		fg.input.Configurations = append(fg.input.Configurations, SolutionConfiguration{Target: t, Projects: projects})
	}

	outcomes := make([][]Artifact, len(jobs))
	jobErrs := make([]error, len(jobs))
	err := runPool(ctx, g.opts.Workers, jobs,
		func(_ context.Context, i int, job *projectJob) {
			outcomes[i], jobErrs[i] = job.emitter.EmitProject(ProjectInput{
				Name:           job.node.Name,
				SourceRootPath: job.source,
				Target:         job.node.Config.Target(),
				Path:           job.path,
				Config:         job.node.Config,
				Dependencies:   job.deps,
				Closure:        append([]string(nil), job.node.Closure...),
			})
		},
		func(i int, job *projectJob, rec interface{}) {
			jobErrs[i] = fmt.Errorf("emitter panicked: %v", rec)
		},
	)
	if err != nil {
		return err
	}

	var produced []string
	for i, job := range jobs {
		if jobErrs[i] != nil {
			perr := NewEmissionError("failed to render project", jobErrs[i]).
				WithEntity(job.node.Name).WithTarget(job.node.Config.Target()).WithCode(ErrCodeRenderFailed)
			r.errs.appendErr(perr)
			g.observer.ErrorRecorded(ctx, perr)
			continue
		}
		r.artifacts = append(r.artifacts, outcomes[i]...)
	}

	for _, path := range fileOrder {
		fg := files[path]
		arts, err := fg.emitter.EmitSolution(fg.input)
		if err != nil {
			serr := NewEmissionError("failed to render solution", err).
				WithEntity(sr.Name).WithCode(ErrCodeRenderFailed).WithDetail("path", path)
			r.errs.appendErr(serr)
			g.observer.ErrorRecorded(ctx, serr)
			continue
		}
		r.artifacts = append(r.artifacts, arts...)
		for _, a := range arts {
			produced = append(produced, a.Path)
		}
		for _, c := range fg.input.Configurations {
			for _, p := range c.Projects {
				produced = append(produced, p.Path)
			}
		}
	}
	sr.Artifacts = uniqueSorted(produced)
	if len(files) == 0 {
		return g.requireLiveTargets(sr)
	}
	return nil
}

// planProject schedules the emission of one project target, once per run.
// It returns a job with a nil node when the project was already planned.
func (g *Generator) planProject(ctx context.Context, r *run, solution string, entry SolutionProject) (*projectJob, error) {
	key := projectKey(entry.Name, entry.Target)
	if r.rejected[key] {
		return nil, nil
	}
	if _, ok := r.planned[key]; ok {
		return &projectJob{}, nil
	}

	res, err := g.resolve(r, solution, entry.Target, []string{entry.Name})
	if err != nil {
		return nil, err
	}
	node := res.Nodes[entry.Name]

	if err := g.checkPolicy(ctx, r, node); err != nil {
		r.rejected[key] = true
		return nil, err
	}

	emitter, ok := g.opts.Emitters.ForDevEnv(entry.Target.DevEnv)
	if !ok {
		r.rejected[key] = true
		return nil, NewEmissionError("no emitter for devenv "+string(entry.Target.DevEnv), nil).
			WithEntity(entry.Name).WithTarget(entry.Target).WithCode(ErrCodeNoEmitter)
	}

	var deps []ProjectArtifactRef
	for _, d := range node.Dependencies {
		depNode := res.Nodes[d.Name]
		deps = append(deps, ProjectArtifactRef{
			Name:   d.Name,
			Path:   g.projectPath(emitter, depNode),
			Target: entry.Target,
		})
	}

	graphNode, _ := r.graph.Node(entry.Name)
	job := &projectJob{
		node:    node,
		source:  graphNode.SourceRootPath,
		emitter: emitter,
		path:    g.projectPath(emitter, node),
		deps:    deps,
	}
	r.planned[key] = job
	return job, nil
}

func (g *Generator) projectPath(e Emitter, node *ResolvedNode) string {
	dir := g.location(node.Config.ScalarOr(ProjectPath, ""), filepath.Join(g.opts.OutputRoot, node.Name))
	return e.ProjectArtifactPath(dir, node.Config.ScalarOr(ProjectFileName, node.Name), node.Config.Target())
}

// location resolves a declared directory against the output root.
func (g *Generator) location(declared, fallback string) string {
	if declared == "" {
		return fallback
	}
	if !filepath.IsAbs(declared) {
		return filepath.Join(g.opts.OutputRoot, declared)
	}
	return filepath.Clean(declared)
}

// checkPolicy evaluates a resolved project configuration once per run.
func (g *Generator) checkPolicy(ctx context.Context, r *run, node *ResolvedNode) error {
	if g.opts.Policy == nil {
		return nil
	}
	key := projectKey(node.Name, node.Config.Target())
	if r.checked[key] {
		return nil
	}
	r.checked[key] = true

	findings, err := g.opts.Policy.Check(ctx, NewPolicyInput(EntityProject, node.Config))
	if err != nil {
		return NewDeclarationError("policy evaluation failed", err).
			WithEntity(node.Name).WithTarget(node.Config.Target()).WithCode(ErrCodePolicyDenied)
	}

	var errs ErrorList
	for _, f := range findings {
		r.result.Findings = append(r.result.Findings, f)
		if f.Severity == PolicySeverityError {
			errs = append(errs, &PolicyViolationError{
				Entity:  node.Name,
				Target:  node.Config.Target(),
				Policy:  f.Policy,
				Message: f.Message,
			})
			continue
		}
		g.logger.Warn().Str("entity", node.Name).Str("target", node.Config.Target().String()).
			Str("policy", f.Policy).Msg(f.Message)
	}
	return errs.Err()
}

// writeAll writes every rendered artifact and completes the Written stage
// of each solution.
func (g *Generator) writeAll(ctx context.Context, r *run) {
	artifacts, dupErrs := dedupeArtifacts(r.artifacts)
	for _, err := range dupErrs {
		r.errs.appendErr(err)
		g.observer.ErrorRecorded(ctx, err)
	}

	failed := make(map[string]error)
	for _, a := range artifacts {
		res := ArtifactResult{Artifact: a, SHA256: ContentHash(a.Content)}
		switch {
		case g.opts.DryRun:
			res.Status = ArtifactPlanned
		default:
			changed, err := WriteFileAtomic(a.Path, a.Content, 0o644)
			switch {
			case err != nil:
				res.Status = ArtifactFailed
				werr := &EmissionIOError{Entity: a.Entity, Target: a.Target, Path: a.Path, Err: err}
				failed[a.Path] = werr
				r.errs.appendErr(werr)
				g.observer.ErrorRecorded(ctx, werr)
			case changed:
				res.Status = ArtifactWritten
			default:
				res.Status = ArtifactUnchanged
			}
		}
		r.result.Artifacts = append(r.result.Artifacts, res)
		g.observer.ArtifactProcessed(ctx, res)
		g.logger.Debug().Str("artifact", a.Path).Str("entity", a.Entity).
			Str("status", string(res.Status)).Msg("artifact processed")
	}

	for _, sr := range r.result.Solutions {
		if sr.Stage != StageEmitted {
			continue
		}
		_ = g.runStage(ctx, sr, StageWritten, func(context.Context) error {
			for _, p := range sr.Artifacts {
				if err, ok := failed[p]; ok {
					return err
				}
			}
			return nil
		})
	}

	if g.opts.CleanStale && !g.opts.DryRun {
		g.cleanStale(ctx, r, artifacts)
	}
}

// cleanStale removes artifacts of the previous successful run that this run
// did not produce. It runs only when this run recorded no error, since a
// failed unit produces nothing and its previous artifacts are still valid.
// Paths outside the output root are never removed.
func (g *Generator) cleanStale(ctx context.Context, r *run, current []Artifact) {
	if g.opts.History == nil {
		g.logger.Warn().Msg("stale cleanup requested without a history store, skipping")
		return
	}
	if len(r.errs) > 0 {
		g.logger.Warn().Int("errors", len(r.errs)).Msg("run has errors, skipping stale cleanup")
		return
	}
	previous, err := g.opts.History.PreviousArtifacts(ctx, g.opts.OutputRoot, r.result.RunID)
	if err != nil {
		herr := NewEmissionError("failed to read previous artifacts", err).WithCode(ErrCodeStaleCleanup)
		r.errs.appendErr(herr)
		return
	}

	keep := make(map[string]bool, len(current))
	for _, a := range current {
		keep[a.Path] = true
	}
	sort.Strings(previous)
	for _, p := range previous {
		if keep[p] {
			continue
		}
		if !withinRoot(g.opts.OutputRoot, p) {
			g.logger.Warn().Str("artifact", p).Str("output_root", g.opts.OutputRoot).
				Msg("stale artifact outside output root, leaving it in place")
			continue
		}
		removed, err := removeIfExists(p)
		if err != nil {
			werr := &EmissionIOError{Entity: "-", Path: p, Err: err}
			r.errs.appendErr(werr)
			continue
		}
		if removed {
			r.result.Removed = append(r.result.Removed, p)
			g.logger.Info().Str("artifact", p).Msg("removed stale artifact")
		}
	}
}

// withinRoot reports whether p lies inside root.
func withinRoot(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// finish records history, computes the run status and returns the result.
func (g *Generator) finish(ctx context.Context, r *run, start time.Time, fatal error) (*GenerationResult, error) {
	if fatal != nil {
		r.errs.appendErr(fatal)
	}
	res := r.result
	res.Errors = r.errs
	res.Duration = time.Since(start)
	sort.Slice(res.Artifacts, func(i, j int) bool { return res.Artifacts[i].Path < res.Artifacts[j].Path })

	produced := 0
	for _, a := range res.Artifacts {
		if a.Status != ArtifactFailed {
			produced++
		}
	}
	switch {
	case len(r.errs) == 0:
		res.Status = RunStatusSucceeded
	case produced > 0:
		res.Status = RunStatusPartial
	default:
		res.Status = RunStatusFailed
	}

	if g.opts.History != nil && res.RunID != "" {
		hctx := ctx
		if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			hctx = context.WithoutCancel(ctx)
		}
		for _, a := range res.Artifacts {
			target := ""
			if a.Target != nil {
				target = a.Target.Slug()
			}
			if err := g.opts.History.RecordArtifact(hctx, res.RunID, ArtifactRecord{
				Path:    a.Path,
				Entity:  a.Entity,
				Kind:    a.Kind,
				Target:  target,
				Emitter: a.Emitter,
				SHA256:  a.SHA256,
				Status:  a.Status,
			}); err != nil {
				g.logger.Warn().Err(err).Str("artifact", a.Path).Msg("failed to record artifact")
			}
		}
		for _, p := range res.Removed {
			_ = g.opts.History.RecordArtifact(hctx, res.RunID, ArtifactRecord{Path: p, Status: ArtifactRemoved})
		}
		if err := g.opts.History.CompleteRun(hctx, res.RunID, res.Status, len(r.errs)); err != nil {
			g.logger.Warn().Err(err).Msg("failed to record run completion")
		}
	}

	g.logger.Info().
		Str("status", string(res.Status)).
		Int("artifacts", len(res.Artifacts)).
		Int("errors", len(r.errs)).
		Dur("duration", res.Duration).
		Msg("generation finished")

	return res, r.errs.Err()
}

func (g *Generator) runStage(ctx context.Context, sr *SolutionResult, stage Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sr.Stage != "" && !sr.Stage.Before(stage) {
		return NewDeclarationError(fmt.Sprintf("stage %s cannot follow %s", stage, sr.Stage), nil).
			WithEntity(sr.Name).WithCode(ErrCodeInternal)
	}
	sctx, end := g.observer.StageStarted(ctx, sr.Name, stage)
	err := fn(sctx)
	end(err)
	if err != nil {
		return err
	}
	sr.Stage = stage
	g.logger.Debug().Str("solution", sr.Name).Str("stage", string(stage)).Msg("stage completed")
	return nil
}

// failTarget drops one solution target and records its error.
func (g *Generator) failTarget(r *run, sr *SolutionResult, t Target, err error) {
	if _, already := sr.Failed[t]; already {
		return
	}
	sr.Failed[t] = err
	r.errs.appendErr(err)
	g.observer.ErrorRecorded(context.Background(), err)
	g.logger.Error().Err(err).Str("solution", sr.Name).Str("target", t.String()).Msg("solution target dropped")
}

// requireLiveTargets fails the stage when every solution target was dropped.
func (g *Generator) requireLiveTargets(sr *SolutionResult) error {
	if len(sr.Failed) < len(sr.Targets) {
		return nil
	}
	return NewDeclarationError("every solution target failed", nil).WithEntity(sr.Name).WithCode(ErrCodeValidation)
}

// dedupeArtifacts sorts artifacts by path and drops byte-identical
// duplicates. Distinct content claiming the same path is an error.
func dedupeArtifacts(in []Artifact) ([]Artifact, ErrorList) {
	sorted := append([]Artifact(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var out []Artifact
	var errs ErrorList
	for _, a := range sorted {
		if n := len(out); n > 0 && out[n-1].Path == a.Path {
			if string(out[n-1].Content) != string(a.Content) {
				errs = append(errs, &EmissionIOError{
					Entity: a.Entity,
					Target: a.Target,
					Path:   a.Path,
					Err:    fmt.Errorf("path already produced by %s with different content", out[n-1].Entity),
				})
			}
			continue
		}
		out = append(out, a)
	}
	return out, errs
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
