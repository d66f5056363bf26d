// Package config loads slngen workspace declarations and turns them into
// engine declarations.
//
// # Overview
//
// A workspace is described by one or more declaration files. Each file names
// the workspace and declares projects and solutions with their target
// matrices and configure blocks. The Loader reads, validates and merges the
// files; Workspace.Registry builds the engine.Registry the generator runs on.
//
// # Formats
//
//   - YAML (*.yaml, *.yml): validated against the CUE workspace schema, then
//     decoded strictly so unknown keys are errors
//   - HCL (*.hcl): project "Name" { ... } and solution "Name" { ... } blocks;
//     the variable workspace holds the workspace root
//   - CUE (*.cue): unified with the workspace schema and decoded
//
// Directories are walked for declaration files. YAML files found this way
// without a top-level workspace key are ignored, as is slngen.config.yaml.
//
// # Configure Blocks
//
// A configure block sets scalar options, appends list values, exports
// values to dependents and declares dependencies. when blocks apply only to
// matching targets:
//
//	configure:
//	  output_type: StaticLibrary
//	  options: {character_set: Unicode, warning_level: Level3}
//	  exports:
//	    include_paths: ["[project.SourceRoot]/include"]
//	  when:
//	    - match: {optimization: Debug}
//	      defines: [_DEBUG]
//
// Strings may reference [workspace], [project.Name], [project.SourceRoot],
// [solution.Name] and [target.Platform], [target.DevEnv],
// [target.Optimization], [target.Name], [target.Slug]. Relative paths
// resolve against the workspace root.
//
// # Starlark
//
// An entity may name a script defining configure(conf, target). It runs
// after the declarative block for every target:
//
//	def configure(conf, target):
//	    if target.optimization == "Release":
//	        conf.set("warnings_as_errors", True)
//	    conf.add("defines", "PLATFORM_" + target.platform.upper())
//
// Scripts are loaded once and frozen; each call runs on its own thread with
// a timeout. Failures are reported for the entity and target they occur in.
package config
