package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// textEmitter renders a line-oriented dump, enough to check what the driver
// hands to backends.
type textEmitter struct {
	name    string
	devEnvs []DevEnv
}

func (e *textEmitter) Name() string      { return e.name }
func (e *textEmitter) DevEnvs() []DevEnv { return e.devEnvs }

func (e *textEmitter) ProjectArtifactPath(dir, fileName string, t Target) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.proj", fileName, t.Slug()))
}

func (e *textEmitter) SolutionArtifactPath(dir, fileName string) string {
	return filepath.Join(dir, fileName+".sol")
}

func (e *textEmitter) EmitProject(in ProjectInput) ([]Artifact, error) {
	var sb strings.Builder
	dir := filepath.Dir(in.Path)
	fmt.Fprintf(&sb, "project %s %s\n", in.Name, in.Target.Slug())
	for _, lib := range in.Config.List(LibraryFiles) {
		fmt.Fprintf(&sb, "lib %s\n", lib)
	}
	for _, inc := range in.Config.List(IncludePaths) {
		fmt.Fprintf(&sb, "include %s\n", RelativeTo(dir, inc))
	}
	for _, d := range in.Dependencies {
		fmt.Fprintf(&sb, "dep %s\n", RelativeTo(dir, d.Path))
	}
	t := in.Target
	return []Artifact{{Path: in.Path, Content: []byte(sb.String()), Entity: in.Name, Target: &t, Kind: ArtifactProject, Emitter: e.name}}, nil
}

func (e *textEmitter) EmitSolution(in SolutionInput) ([]Artifact, error) {
	var sb strings.Builder
	dir := filepath.Dir(in.Path)
	fmt.Fprintf(&sb, "solution %s\n", in.Name)
	for _, c := range in.Configurations {
		fmt.Fprintf(&sb, "config %s\n", c.Target.Slug())
		for _, p := range c.Projects {
			fmt.Fprintf(&sb, "  project %s %s\n", p.Name, RelativeTo(dir, p.Path))
		}
	}
	return []Artifact{{Path: in.Path, Content: []byte(sb.String()), Entity: in.Name, Kind: ArtifactSolution, Emitter: e.name}}, nil
}

func testEmitters(t *testing.T) *EmitterRegistry {
	t.Helper()
	reg := NewEmitterRegistry()
	if err := reg.Register(&textEmitter{name: "text", devEnvs: []DevEnv{DevEnvVS2022, DevEnvMake}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return reg
}

func birdGameRegistry(t *testing.T, workspace string) *Registry {
	t.Helper()
	reg := NewRegistry()

	project := NewProject("BirdGame", filepath.Join(workspace, "src"), func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.Set(ProjectFileName, "BirdGame")
		_ = conf.Set(ProjectPath, filepath.Join(workspace, "generated"))
		_ = conf.Apply(CharacterSetUnicode, WarningLevel3, WarningsAsErrorsEnable,
			TargetPlatformVersionLatest, CppStandard17, ExceptionsEnable,
			SubSystemWindows, LargeAddressAwareEnable)
		_ = conf.Add(IncludePaths, filepath.Join(ctx.SourceRootPath, "include"))
		_ = conf.Add(LibraryFiles, "d3d12", "dxgi", "d3dcompiler")
		_ = conf.Set(OutputFileName, "BirdGame")
		_ = conf.Set(OutputPath, filepath.Join(workspace, "bin", ctx.Target.Slug()))
	}).AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug|Release)
	if err := reg.AddProject(project); err != nil {
		t.Fatalf("AddProject failed: %v", err)
	}

	solution := NewSolution("BirdGame", func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.Set(SolutionFileName, "BirdGame")
		_ = conf.Set(SolutionPath, filepath.Join(workspace, "generated"))
		_ = conf.AddProject("BirdGame", ctx.Target)
	}).AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug|Release)
	if err := reg.AddSolution(solution); err != nil {
		t.Fatalf("AddSolution failed: %v", err)
	}
	return reg
}

func newTestGenerator(t *testing.T, out string) *Generator {
	t.Helper()
	gen, err := NewGenerator(GeneratorOptions{
		Workers:    4,
		OutputRoot: out,
		Emitters:   testEmitters(t),
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	return gen
}

func TestGenerator_BirdGame(t *testing.T) {
	workspace := t.TempDir()
	gen := newTestGenerator(t, workspace)

	result, err := gen.Generate(context.Background(), birdGameRegistry(t, workspace))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", result.Status)
	}

	var projects, solutions []ArtifactResult
	for _, a := range result.Artifacts {
		switch a.Kind {
		case ArtifactProject:
			projects = append(projects, a)
		case ArtifactSolution:
			solutions = append(solutions, a)
		}
	}
	if len(projects) != 2 {
		t.Fatalf("Expected 2 project artifacts, got %d", len(projects))
	}
	if len(solutions) != 1 {
		t.Fatalf("Expected 1 solution artifact, got %d", len(solutions))
	}

	for _, p := range projects {
		content, err := os.ReadFile(p.Path)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", p.Path, err)
		}
		want := "lib d3d12\nlib dxgi\nlib d3dcompiler\n"
		if !strings.Contains(string(content), want) {
			t.Errorf("Expected libraries in declared order in %s:\n%s", p.Path, content)
		}
		if strings.Contains(string(content), workspace) {
			t.Errorf("Expected no absolute host path in %s:\n%s", p.Path, content)
		}
	}

	sln, err := os.ReadFile(solutions[0].Path)
	if err != nil {
		t.Fatalf("Failed to read solution: %v", err)
	}
	for _, p := range projects {
		if !strings.Contains(string(sln), filepath.Base(p.Path)) {
			t.Errorf("Expected solution to reference %s:\n%s", filepath.Base(p.Path), sln)
		}
	}

	sr := result.Solutions[0]
	if sr.Stage != StageWritten {
		t.Errorf("Expected stage %s, got %s", StageWritten, sr.Stage)
	}
}

func TestGenerator_Idempotent(t *testing.T) {
	workspace := t.TempDir()
	gen := newTestGenerator(t, workspace)
	reg := birdGameRegistry(t, workspace)

	first, err := gen.Generate(context.Background(), reg)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	snapshot := make(map[string]string)
	for _, a := range first.Artifacts {
		snapshot[a.Path] = a.SHA256
	}

	second, err := gen.Generate(context.Background(), reg)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if len(second.Artifacts) != len(first.Artifacts) {
		t.Fatalf("Expected %d artifacts, got %d", len(first.Artifacts), len(second.Artifacts))
	}
	for _, a := range second.Artifacts {
		if snapshot[a.Path] != a.SHA256 {
			t.Errorf("Expected identical content for %s", a.Path)
		}
		if a.Status != ArtifactUnchanged {
			t.Errorf("Expected %s to be unchanged, got %s", a.Path, a.Status)
		}
	}
}

func TestGenerator_DryRunWritesNothing(t *testing.T) {
	workspace := t.TempDir()
	gen, err := NewGenerator(GeneratorOptions{
		OutputRoot: workspace,
		DryRun:     true,
		Emitters:   testEmitters(t),
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	result, err := gen.Generate(context.Background(), birdGameRegistry(t, workspace))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for _, a := range result.Artifacts {
		if a.Status != ArtifactPlanned {
			t.Errorf("Expected planned, got %s", a.Status)
		}
		if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
			t.Errorf("Expected %s not to exist", a.Path)
		}
	}
}

func TestGenerator_CycleIsolatedToTarget(t *testing.T) {
	out := t.TempDir()
	reg := NewRegistry()

	targets := func(p *Project) *Project {
		return p.AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug|Release)
	}
	_ = reg.AddProject(targets(NewProject("X", "/src/x", func(conf *Configuration, _ ConfigureContext) {
		_ = conf.AddDependency("Y", DependencyPublic)
	})))
	_ = reg.AddProject(targets(NewProject("Y", "/src/y", func(conf *Configuration, ctx ConfigureContext) {
		if ctx.Target.Optimization == Debug {
			_ = conf.AddDependency("X", DependencyPublic)
		}
	})))
	_ = reg.AddSolution(NewSolution("S", func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.AddProject("X", ctx.Target)
	}).AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug|Release))

	result, err := newTestGenerator(t, out).Generate(context.Background(), reg)
	if !IsCyclicDependency(err) {
		t.Fatalf("Expected CyclicDependencyError, got: %v", err)
	}
	if result.Status != RunStatusPartial {
		t.Errorf("Expected partial, got %s", result.Status)
	}

	sr := result.Solutions[0]
	if _, failed := sr.Failed[win64Debug]; !failed {
		t.Error("Expected Debug to fail")
	}
	if _, failed := sr.Failed[win64Release]; failed {
		t.Error("Expected Release to succeed")
	}

	var names []string
	for _, a := range result.Artifacts {
		if a.Kind == ArtifactProject {
			names = append(names, filepath.Base(a.Path))
		}
	}
	sort.Strings(names)
	want := []string{"X_win64_vs2022_release.proj", "Y_win64_vs2022_release.proj"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, names)
	}
}

func TestGenerator_SolutionIncludesDependencyClosure(t *testing.T) {
	out := t.TempDir()
	reg := NewRegistry()

	add := func(name string, deps ...string) {
		p := NewProject(name, "/src/"+name, func(conf *Configuration, _ ConfigureContext) {
			for _, d := range deps {
				_ = conf.AddDependency(d, DependencyLink)
			}
		}).AddTargets([]Platform{PlatformLinux}, []DevEnv{DevEnvMake}, Debug)
		_ = reg.AddProject(p)
	}
	add("App", "Engine")
	add("Engine", "Core")
	add("Core")
	add("Unrelated")
	_ = reg.AddSolution(NewSolution("Game", func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.AddProject("App", ctx.Target)
	}).AddTargets([]Platform{PlatformLinux}, []DevEnv{DevEnvMake}, Debug))

	result, err := newTestGenerator(t, out).Generate(context.Background(), reg, "Game")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	sol, err := os.ReadFile(filepath.Join(out, "Game.sol"))
	if err != nil {
		t.Fatalf("Failed to read solution: %v", err)
	}
	content := string(sol)
	core := strings.Index(content, "project Core")
	engine := strings.Index(content, "project Engine")
	app := strings.Index(content, "project App")
	if core < 0 || engine < 0 || app < 0 || !(core < engine && engine < app) {
		t.Errorf("Expected Core, Engine, App in dependency order:\n%s", content)
	}
	if strings.Contains(content, "Unrelated") {
		t.Errorf("Expected unreferenced project to be excluded:\n%s", content)
	}
	if len(result.Artifacts) != 4 {
		t.Errorf("Expected 4 artifacts, got %d", len(result.Artifacts))
	}
}

func TestGenerator_ErrorsAreScoped(t *testing.T) {
	out := t.TempDir()
	reg := NewRegistry()

	_ = reg.AddProject(NewProject("Good", "/src", func(conf *Configuration, _ ConfigureContext) {}).
		AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug))
	_ = reg.AddProject(NewProject("Conflicted", "/src", func(conf *Configuration, _ ConfigureContext) {
		_ = conf.Apply(CppStandard17, CppStandard20)
	}).AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug))

	_ = reg.AddSolution(NewSolution("Fine", func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.AddProject("Good", ctx.Target)
	}).AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug))
	_ = reg.AddSolution(NewSolution("Broken", func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.AddProject("Conflicted", ctx.Target)
	}).AddTargets([]Platform{PlatformWin64}, []DevEnv{DevEnvVS2022}, Debug))

	result, err := newTestGenerator(t, out).Generate(context.Background(), reg, "Broken", "Fine", "Missing")
	if err == nil {
		t.Fatal("Expected aggregated errors")
	}
	if !IsConfigConflict(err) {
		t.Errorf("Expected ConfigConflictError in %v", err)
	}
	if !IsUnresolvedDependency(err) {
		t.Errorf("Expected UnresolvedDependencyError in %v", err)
	}
	if !IsDeclaration(err) {
		t.Errorf("Expected declaration error for the missing solution in %v", err)
	}

	stages := make(map[string]Stage)
	for _, sr := range result.Solutions {
		stages[sr.Name] = sr.Stage
	}
	if stages["Fine"] != StageWritten {
		t.Errorf("Expected Fine to be written, got %s", stages["Fine"])
	}
	if stages["Broken"] != StageGraphBuilt {
		t.Errorf("Expected Broken to halt after graph_built, got %s", stages["Broken"])
	}
	if stages["Missing"] != "" {
		t.Errorf("Expected Missing to halt before loaded, got %s", stages["Missing"])
	}
	if _, err := os.Stat(filepath.Join(out, "Fine.sol")); err != nil {
		t.Errorf("Expected Fine.sol to be written: %v", err)
	}
}

func TestGenerator_EmptyMatrixSkipsSolution(t *testing.T) {
	reg := NewRegistry()
	_ = reg.AddSolution(NewSolution("Empty", func(conf *Configuration, _ ConfigureContext) {}))

	result, err := newTestGenerator(t, t.TempDir()).Generate(context.Background(), reg)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !result.Solutions[0].Skipped {
		t.Error("Expected solution to be skipped")
	}
	if len(result.Artifacts) != 0 {
		t.Errorf("Expected no artifacts, got %d", len(result.Artifacts))
	}
}

type recordingPolicy struct {
	findings []PolicyFinding
	inputs   []PolicyInput
}

func (p *recordingPolicy) Check(_ context.Context, in PolicyInput) ([]PolicyFinding, error) {
	p.inputs = append(p.inputs, in)
	return p.findings, nil
}

func TestGenerator_PolicyViolationDropsArtifact(t *testing.T) {
	workspace := t.TempDir()
	policy := &recordingPolicy{findings: []PolicyFinding{{Policy: "no-exceptions", Message: "exceptions are banned", Severity: PolicySeverityError}}}

	gen, err := NewGenerator(GeneratorOptions{
		OutputRoot: workspace,
		Emitters:   testEmitters(t),
		Logger:     zerolog.Nop(),
		Policy:     policy,
	})
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	result, err := gen.Generate(context.Background(), birdGameRegistry(t, workspace))
	var violation *PolicyViolationError
	if !asPolicyViolation(err, &violation) {
		t.Fatalf("Expected PolicyViolationError, got: %v", err)
	}
	if violation.Entity != "BirdGame" {
		t.Errorf("Expected entity BirdGame, got %s", violation.Entity)
	}
	for _, a := range result.Artifacts {
		if a.Kind == ArtifactProject {
			t.Errorf("Expected no project artifact, got %s", a.Path)
		}
	}
	if len(policy.inputs) != 2 {
		t.Errorf("Expected one policy check per project target, got %d", len(policy.inputs))
	}
}

func asPolicyViolation(err error, target **PolicyViolationError) bool {
	list, ok := err.(ErrorList)
	if !ok {
		return false
	}
	for _, e := range list {
		if v, ok := e.(*PolicyViolationError); ok {
			*target = v
			return true
		}
	}
	return false
}

// memoryHistory keeps runs in memory. PreviousArtifacts returns the paths of
// the latest succeeded run plus any seeded paths.
type memoryHistory struct {
	order     []string
	status    map[string]RunStatus
	artifacts map[string][]string
	seeded    []string
}

func newMemoryHistory(seeded ...string) *memoryHistory {
	return &memoryHistory{
		status:    make(map[string]RunStatus),
		artifacts: make(map[string][]string),
		seeded:    seeded,
	}
}

func (h *memoryHistory) BeginRun(_ context.Context, _ RunInfo) (string, error) {
	id := fmt.Sprintf("run-%d", len(h.order)+1)
	h.order = append(h.order, id)
	h.status[id] = RunStatusRunning
	return id, nil
}

func (h *memoryHistory) RecordArtifact(_ context.Context, runID string, rec ArtifactRecord) error {
	if rec.Status == ArtifactRemoved || rec.Status == ArtifactFailed {
		return nil
	}
	h.artifacts[runID] = append(h.artifacts[runID], rec.Path)
	return nil
}

func (h *memoryHistory) CompleteRun(_ context.Context, runID string, status RunStatus, _ int) error {
	h.status[runID] = status
	return nil
}

func (h *memoryHistory) PreviousArtifacts(_ context.Context, _, excludeRunID string) ([]string, error) {
	paths := append([]string(nil), h.seeded...)
	for i := len(h.order) - 1; i >= 0; i-- {
		id := h.order[i]
		if id == excludeRunID || h.status[id] != RunStatusSucceeded {
			continue
		}
		return append(paths, h.artifacts[id]...), nil
	}
	return paths, nil
}

// siblingRegistry declares solution S referencing A and B on linux/make/debug.
// When brokenB is set, B configures conflicting language standards.
func siblingRegistry(brokenB bool) *Registry {
	reg := NewRegistry()
	targets := func(p *Project) *Project {
		return p.AddTargets([]Platform{PlatformLinux}, []DevEnv{DevEnvMake}, Debug)
	}
	_ = reg.AddProject(targets(NewProject("A", "/src/a", func(conf *Configuration, _ ConfigureContext) {})))
	_ = reg.AddProject(targets(NewProject("B", "/src/b", func(conf *Configuration, _ ConfigureContext) {
		if brokenB {
			_ = conf.Apply(CppStandard17, CppStandard20)
		}
	})))
	_ = reg.AddSolution(NewSolution("S", func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.AddProject("A", ctx.Target)
		_ = conf.AddProject("B", ctx.Target)
	}).AddTargets([]Platform{PlatformLinux}, []DevEnv{DevEnvMake}, Debug))
	return reg
}

func TestGenerator_FailingReferenceKeepsSiblings(t *testing.T) {
	out := t.TempDir()

	result, err := newTestGenerator(t, out).Generate(context.Background(), siblingRegistry(true))
	if !IsConfigConflict(err) {
		t.Errorf("Expected ConfigConflictError in %v", err)
	}
	if !IsUnresolvedDependency(err) {
		t.Fatalf("Expected UnresolvedDependencyError in %v", err)
	}
	if !strings.Contains(err.Error(), "S depends on B") {
		t.Errorf("Expected the solution to be named as the requester, got %v", err)
	}
	if result.Status != RunStatusPartial {
		t.Errorf("Expected partial, got %s", result.Status)
	}

	sr := result.Solutions[0]
	if sr.Stage != StageWritten {
		t.Errorf("Expected stage %s, got %s", StageWritten, sr.Stage)
	}

	aPath := filepath.Join(out, "A", "A_linux_make_debug.proj")
	if _, err := os.Stat(aPath); err != nil {
		t.Errorf("Expected %s to be written: %v", aPath, err)
	}
	sol, err := os.ReadFile(filepath.Join(out, "S.sol"))
	if err != nil {
		t.Fatalf("Failed to read solution: %v", err)
	}
	if !strings.Contains(string(sol), "project A") {
		t.Errorf("Expected solution to list A:\n%s", sol)
	}
	if strings.Contains(string(sol), "project B") {
		t.Errorf("Expected solution to omit B:\n%s", sol)
	}
}

func TestGenerator_CleanStale(t *testing.T) {
	staleGenerator := func(t *testing.T, out string, history HistoryStore) *Generator {
		t.Helper()
		gen, err := NewGenerator(GeneratorOptions{
			Workers:    2,
			OutputRoot: out,
			Emitters:   testEmitters(t),
			Logger:     zerolog.Nop(),
			CleanStale: true,
			History:    history,
		})
		if err != nil {
			t.Fatalf("NewGenerator failed: %v", err)
		}
		return gen
	}

	t.Run("removes artifacts the run no longer produces", func(t *testing.T) {
		out := t.TempDir()
		stale := filepath.Join(out, "Old", "Old_linux_make_debug.proj")
		if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
			t.Fatal(err)
		}

		result, err := staleGenerator(t, out, newMemoryHistory(stale)).Generate(context.Background(), siblingRegistry(false))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(result.Removed) != 1 || result.Removed[0] != stale {
			t.Errorf("Expected [%s] removed, got %v", stale, result.Removed)
		}
		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be gone, got %v", stale, err)
		}
	})

	t.Run("leaves paths outside the output root", func(t *testing.T) {
		out := t.TempDir()
		outside := filepath.Join(t.TempDir(), "keep.txt")
		if err := os.WriteFile(outside, []byte("keep"), 0o644); err != nil {
			t.Fatal(err)
		}
		escaping := filepath.Join(out, "..", filepath.Base(filepath.Dir(outside)), "keep.txt")

		result, err := staleGenerator(t, out, newMemoryHistory(outside, escaping)).Generate(context.Background(), siblingRegistry(false))
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(result.Removed) != 0 {
			t.Errorf("Expected nothing removed, got %v", result.Removed)
		}
		if _, err := os.Stat(outside); err != nil {
			t.Errorf("Expected %s to survive cleanup: %v", outside, err)
		}
	})

	t.Run("skips cleanup after a failed run", func(t *testing.T) {
		out := t.TempDir()
		history := newMemoryHistory()
		gen := staleGenerator(t, out, history)

		first, err := gen.Generate(context.Background(), siblingRegistry(false))
		if err != nil {
			t.Fatalf("First run failed: %v", err)
		}
		if first.Status != RunStatusSucceeded {
			t.Fatalf("Expected first run to succeed, got %s", first.Status)
		}

		second, err := gen.Generate(context.Background(), siblingRegistry(true))
		if err == nil {
			t.Fatal("Expected the second run to report B's conflict")
		}
		if len(second.Removed) != 0 {
			t.Errorf("Expected nothing removed, got %v", second.Removed)
		}
		bPath := filepath.Join(out, "B", "B_linux_make_debug.proj")
		if _, err := os.Stat(bPath); err != nil {
			t.Errorf("Expected %s from the previous run to survive: %v", bPath, err)
		}
	})
}

func TestWithinRoot(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "out")

	tests := []struct {
		path string
		want bool
	}{
		{path: filepath.Join(root, "A", "A.proj"), want: true},
		{path: filepath.Join(root, "S.sol"), want: true},
		{path: filepath.Join(root, "..dir", "x"), want: true},
		{path: root, want: true},
		{path: filepath.Join(root, "..", "other", "x"), want: false},
		{path: filepath.Join(string(filepath.Separator), "etc", "passwd"), want: false},
		{path: filepath.Join(string(filepath.Separator), "outside"), want: false},
		{path: "relative/x", want: false},
	}

	for _, tt := range tests {
		if got := withinRoot(root, tt.path); got != tt.want {
			t.Errorf("Expected withinRoot(%q) = %v, got %v", tt.path, tt.want, got)
		}
	}
}

func TestGenerator_WriteFailureIsScoped(t *testing.T) {
	out := t.TempDir()
	blocker := filepath.Join(out, "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	targets := func(p *Project) *Project {
		return p.AddTargets([]Platform{PlatformLinux}, []DevEnv{DevEnvMake}, Debug)
	}
	_ = reg.AddProject(targets(NewProject("Bad", "/src/bad", func(conf *Configuration, _ ConfigureContext) {
		_ = conf.Set(ProjectPath, filepath.Join(blocker, "sub"))
	})))
	_ = reg.AddProject(targets(NewProject("Good", "/src/good", func(conf *Configuration, _ ConfigureContext) {})))
	for name, project := range map[string]string{"SBad": "Bad", "SGood": "Good"} {
		project := project
		_ = reg.AddSolution(NewSolution(name, func(conf *Configuration, ctx ConfigureContext) {
			_ = conf.AddProject(project, ctx.Target)
		}).AddTargets([]Platform{PlatformLinux}, []DevEnv{DevEnvMake}, Debug))
	}

	result, err := newTestGenerator(t, out).Generate(context.Background(), reg)
	if !IsEmissionIO(err) {
		t.Fatalf("Expected EmissionIOError, got: %v", err)
	}
	if result.Status != RunStatusPartial {
		t.Errorf("Expected partial, got %s", result.Status)
	}

	stages := make(map[string]Stage)
	for _, sr := range result.Solutions {
		stages[sr.Name] = sr.Stage
	}
	if stages["SGood"] != StageWritten {
		t.Errorf("Expected SGood to be written, got %s", stages["SGood"])
	}
	if stages["SBad"] != StageEmitted {
		t.Errorf("Expected SBad to halt after emitted, got %s", stages["SBad"])
	}

	for _, p := range []string{filepath.Join(out, "Good", "Good_linux_make_debug.proj"), filepath.Join(out, "SGood.sol")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("Expected %s to be written: %v", p, err)
		}
	}
	var failed int
	for _, a := range result.Artifacts {
		if a.Status == ArtifactFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("Expected 1 failed artifact, got %d", failed)
	}
}

func TestGenerator_SolutionFileIsPerDevEnv(t *testing.T) {
	out := t.TempDir()
	emitters := NewEmitterRegistry()
	if err := emitters.Register(&textEmitter{name: "text", devEnvs: []DevEnv{DevEnvVS2019, DevEnvVS2022}}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	gen, err := NewGenerator(GeneratorOptions{OutputRoot: out, Emitters: emitters, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}

	devEnvs := []DevEnv{DevEnvVS2019, DevEnvVS2022}
	reg := NewRegistry()
	_ = reg.AddProject(NewProject("Game", "/src/game", func(conf *Configuration, _ ConfigureContext) {}).
		AddTargets([]Platform{PlatformWin64}, devEnvs, Debug))
	_ = reg.AddSolution(NewSolution("Game", func(conf *Configuration, ctx ConfigureContext) {
		_ = conf.Set(SolutionFileName, "Game")
		_ = conf.AddProject("Game", ctx.Target)
	}).AddTargets([]Platform{PlatformWin64}, devEnvs, Debug))

	result, err := gen.Generate(context.Background(), reg)
	if err == nil || !strings.Contains(err.Error(), "claimed by devenvs") {
		t.Fatalf("Expected a shared solution file error, got: %v", err)
	}

	sr := result.Solutions[0]
	if len(sr.Failed) != 1 {
		t.Fatalf("Expected 1 dropped target, got %d", len(sr.Failed))
	}
	if sr.Stage != StageWritten {
		t.Errorf("Expected stage %s, got %s", StageWritten, sr.Stage)
	}

	sol, err := os.ReadFile(filepath.Join(out, "Game.sol"))
	if err != nil {
		t.Fatalf("Failed to read solution: %v", err)
	}
	if n := strings.Count(string(sol), "config "); n != 1 {
		t.Errorf("Expected 1 configuration in the solution, got %d:\n%s", n, sol)
	}
	var projects int
	for _, a := range result.Artifacts {
		if a.Kind == ArtifactProject {
			projects++
		}
	}
	if projects != 1 {
		t.Errorf("Expected only the surviving devenv's project, got %d", projects)
	}
}
