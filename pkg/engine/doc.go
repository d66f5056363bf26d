// Package engine provides the core of slngen: the configuration model, target
// matrix expansion, project graph construction, dependency resolution and
// the generation driver that turns declarations into build files.
//
// # Overview
//
// A generation runs in six stages per root solution:
//
//  1. Loaded - the solution declaration is looked up in the Registry
//  2. Expanded - the solution's target matrix is expanded and configured
//  3. GraphBuilt - the referenced project targets are collected
//  4. Resolved - each target graph is ordered and exports are propagated (Resolver)
//  5. Emitted - artifacts are rendered by the devEnv's Emitter
//  6. Written - artifacts are written atomically to disk
//
// Stages advance strictly forward. A failure halts only the solution, target
// or artifact it affects; every error is collected into an ErrorList.
//
// # Declarations
//
// Projects and solutions are registered on an explicit Registry:
//
//	reg := engine.NewRegistry()
//	p := engine.NewProject("BirdGame", "/src", func(conf *engine.Configuration, ctx engine.ConfigureContext) {
//	    conf.Apply(engine.CharacterSetUnicode, engine.CppStandard17)
//	    conf.Add(engine.LibraryFiles, "d3d12", "dxgi", "d3dcompiler")
//	})
//	p.AddTargets([]engine.Platform{engine.PlatformWin64}, []engine.DevEnv{engine.DevEnvVS2022}, engine.Debug|engine.Release)
//	reg.AddProject(p)
//
// Configure callbacks receive a fresh Configuration and an immutable
// ConfigureContext for every expanded target; they never see other projects.
//
// # Configuration Model
//
// Each Category has a merge policy. Scalars are replaced by precedence
// (default < inherited < explicit); two different explicit values are a
// ConfigConflictError. Lists append in declaration order. Sets append and
// drop duplicates, keeping the first position.
//
// # Dependency Resolution
//
// Dependencies are declared per target with AddDependency. For each target
// the Resolver detects cycles by DFS, assigns Kahn levels and merges each
// dependency's exported options into its dependents in lexical dependency
// order, so sibling declaration order never changes the result.
//
// # Emitters
//
// Backends implement Emitter and are selected by the target's DevEnv through
// an EmitterRegistry. Emitters are pure; paths inside artifacts are relative
// to the artifact's directory.
package engine
