package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// WorkspaceFile is one decoded declaration document.
type WorkspaceFile struct {
	// Workspace is the workspace name. Every file of a workspace must agree.
	Workspace string `yaml:"workspace" json:"workspace" validate:"required"`

	// Projects declared in this file.
	Projects []ProjectDecl `yaml:"projects,omitempty" json:"projects,omitempty" validate:"dive"`

	// Solutions declared in this file.
	Solutions []SolutionDecl `yaml:"solutions,omitempty" json:"solutions,omitempty" validate:"dive"`
}

// ProjectDecl declares one project.
type ProjectDecl struct {
	// Name is unique across the workspace.
	Name string `yaml:"name" json:"name" validate:"required"`

	// SourceRoot may contain placeholders, e.g. "[workspace]/src".
	SourceRoot string `yaml:"source_root,omitempty" json:"source_root,omitempty"`

	// Targets are the project's target specs.
	Targets []TargetDecl `yaml:"targets" json:"targets" validate:"dive"`

	// SourceGlobs select source files under SourceRoot. Nil means the
	// default C/C++ globs; an empty list disables enumeration.
	SourceGlobs []string `yaml:"source_globs,omitempty" json:"source_globs,omitempty"`

	// Configure is applied to every target.
	Configure ConfigureDecl `yaml:"configure,omitempty" json:"configure,omitempty"`

	// Script is an optional Starlark file defining configure(conf, target).
	Script string `yaml:"script,omitempty" json:"script,omitempty"`

	// File is the declaring document, set by the loader.
	File string `yaml:"-" json:"-"`
}

// SolutionDecl declares one solution.
type SolutionDecl struct {
	Name      string        `yaml:"name" json:"name" validate:"required"`
	Targets   []TargetDecl  `yaml:"targets" json:"targets" validate:"dive"`
	Configure ConfigureDecl `yaml:"configure,omitempty" json:"configure,omitempty"`
	Script    string        `yaml:"script,omitempty" json:"script,omitempty"`
	File      string        `yaml:"-" json:"-"`
}

// TargetDecl is one AddTargets call. An empty axis yields no targets.
type TargetDecl struct {
	Platforms []string `yaml:"platforms" json:"platforms" validate:"dive,oneof=win32 win64 linux macos"`
	DevEnvs   []string `yaml:"devenvs" json:"devenvs" validate:"dive,oneof=vs2019 vs2022 make"`

	// Optimization is a "|"-separated flag set, e.g. "Debug|Release".
	// Empty or "None" selects no optimization.
	Optimization string `yaml:"optimization" json:"optimization"`
}

// DependencyDecl is a project-to-project edge.
type DependencyDecl struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=link public"`
}

// ExportDecl lists values a project exposes to its dependents.
type ExportDecl struct {
	IncludePaths []string `yaml:"include_paths,omitempty" json:"include_paths,omitempty"`
	Defines      []string `yaml:"defines,omitempty" json:"defines,omitempty"`
	LibraryFiles []string `yaml:"library_files,omitempty" json:"library_files,omitempty"`
	LibraryPaths []string `yaml:"library_paths,omitempty" json:"library_paths,omitempty"`
}

// ConfigureDecl is the declarative form of a configure callback.
type ConfigureDecl struct {
	ProjectFileName  string `yaml:"project_file_name,omitempty" json:"project_file_name,omitempty"`
	ProjectPath      string `yaml:"project_path,omitempty" json:"project_path,omitempty"`
	SolutionFileName string `yaml:"solution_file_name,omitempty" json:"solution_file_name,omitempty"`
	SolutionPath     string `yaml:"solution_path,omitempty" json:"solution_path,omitempty"`
	OutputFileName   string `yaml:"output_file_name,omitempty" json:"output_file_name,omitempty"`
	OutputPath       string `yaml:"output_path,omitempty" json:"output_path,omitempty"`
	OutputType       string `yaml:"output_type,omitempty" json:"output_type,omitempty" validate:"omitempty,oneof=Application StaticLibrary DynamicLibrary"`

	IncludePaths    []string `yaml:"include_paths,omitempty" json:"include_paths,omitempty"`
	LibraryFiles    []string `yaml:"library_files,omitempty" json:"library_files,omitempty"`
	LibraryPaths    []string `yaml:"library_paths,omitempty" json:"library_paths,omitempty"`
	Defines         []string `yaml:"defines,omitempty" json:"defines,omitempty"`
	SourceFiles     []string `yaml:"source_files,omitempty" json:"source_files,omitempty"`
	CompilerOptions []string `yaml:"compiler_options,omitempty" json:"compiler_options,omitempty"`
	LinkerOptions   []string `yaml:"linker_options,omitempty" json:"linker_options,omitempty"`

	// Options maps scalar categories to values, keyed with underscores,
	// e.g. character_set: Unicode.
	Options OptionMap `yaml:"options,omitempty" json:"options,omitempty"`

	// Defaults are applied only where nothing else sets the category.
	Defaults OptionMap `yaml:"defaults,omitempty" json:"defaults,omitempty"`

	Exports      ExportDecl       `yaml:"exports,omitempty" json:"exports,omitempty"`
	Dependencies []DependencyDecl `yaml:"dependencies,omitempty" json:"dependencies,omitempty" validate:"dive"`

	// Projects lists the projects a solution builds for each of its targets.
	Projects []string `yaml:"projects,omitempty" json:"projects,omitempty"`

	// When holds conditional blocks applied after the unconditional ones.
	When []WhenDecl `yaml:"when,omitempty" json:"when,omitempty" validate:"dive"`
}

// WhenDecl applies Configure only to targets matching Match.
type WhenDecl struct {
	Match         MatchDecl `yaml:"match" json:"match"`
	ConfigureDecl `yaml:",inline" json:",inline"`
}

// MatchDecl selects targets. Empty fields match anything; Optimization may
// name several flags, e.g. "Release|Retail".
type MatchDecl struct {
	Platform     string `yaml:"platform,omitempty" json:"platform,omitempty"`
	DevEnv       string `yaml:"devenv,omitempty" json:"devenv,omitempty"`
	Optimization string `yaml:"optimization,omitempty" json:"optimization,omitempty"`
}

// Workspace is the merged result of loading every declaration file.
type Workspace struct {
	Name string `json:"name"`

	// Root is the directory "[workspace]" expands to.
	Root string `json:"root"`

	Projects  []ProjectDecl  `json:"projects"`
	Solutions []SolutionDecl `json:"solutions"`

	// SourceFiles are the declaration files that were loaded.
	SourceFiles []string `json:"source_files"`

	LoadedAt time.Time `json:"loaded_at"`

	// sources holds the enumerated source files per project name.
	sources map[string][]string

	// scripts holds loaded Starlark scripts keyed by entity kind and name.
	scripts map[string]*Script
}

// ValidationError is a declaration problem with its location.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	loc := e.File
	if e.Line > 0 {
		loc = loc + ":" + strconv.Itoa(e.Line)
		if e.Column > 0 {
			loc = loc + ":" + strconv.Itoa(e.Column)
		}
	}
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if loc == "" {
		return msg
	}
	return loc + ": " + msg
}

// OptionMap maps category names to scalar values. JSON booleans and numbers
// are accepted and kept in their literal form.
type OptionMap map[string]string

// UnmarshalJSON implements json.Unmarshaler.
func (m *OptionMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(OptionMap, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var scalar interface{}
		if err := json.Unmarshal(v, &scalar); err != nil {
			return err
		}
		switch scalar.(type) {
		case bool, float64:
			out[k] = string(v)
		default:
			return fmt.Errorf("option %s: expected a scalar value", k)
		}
	}
	*m = out
	return nil
}
