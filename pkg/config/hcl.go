package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level structure of an HCL declaration file.
type hclFile struct {
	Workspace string         `hcl:"workspace"`
	Projects  []*hclProject  `hcl:"project,block"`
	Solutions []*hclSolution `hcl:"solution,block"`
}

type hclProject struct {
	Name        string        `hcl:"name,label"`
	SourceRoot  string        `hcl:"source_root,optional"`
	SourceGlobs []string      `hcl:"source_globs,optional"`
	Script      string        `hcl:"script,optional"`
	Targets     []*hclTarget  `hcl:"targets,block"`
	Configure   *hclConfigure `hcl:"configure,block"`
}

type hclSolution struct {
	Name      string        `hcl:"name,label"`
	Script    string        `hcl:"script,optional"`
	Targets   []*hclTarget  `hcl:"targets,block"`
	Configure *hclConfigure `hcl:"configure,block"`
}

type hclTarget struct {
	Platforms    []string `hcl:"platforms"`
	DevEnvs      []string `hcl:"devenvs"`
	Optimization string   `hcl:"optimization"`
}

type hclDependency struct {
	Name string `hcl:"name,label"`
	Mode string `hcl:"mode,optional"`
}

type hclExports struct {
	IncludePaths []string `hcl:"include_paths,optional"`
	Defines      []string `hcl:"defines,optional"`
	LibraryFiles []string `hcl:"library_files,optional"`
	LibraryPaths []string `hcl:"library_paths,optional"`
}

type hclConfigure struct {
	ProjectFileName  string `hcl:"project_file_name,optional"`
	ProjectPath      string `hcl:"project_path,optional"`
	SolutionFileName string `hcl:"solution_file_name,optional"`
	SolutionPath     string `hcl:"solution_path,optional"`
	OutputFileName   string `hcl:"output_file_name,optional"`
	OutputPath       string `hcl:"output_path,optional"`
	OutputType       string `hcl:"output_type,optional"`

	IncludePaths    []string `hcl:"include_paths,optional"`
	LibraryFiles    []string `hcl:"library_files,optional"`
	LibraryPaths    []string `hcl:"library_paths,optional"`
	Defines         []string `hcl:"defines,optional"`
	SourceFiles     []string `hcl:"source_files,optional"`
	CompilerOptions []string `hcl:"compiler_options,optional"`
	LinkerOptions   []string `hcl:"linker_options,optional"`

	Options  map[string]string `hcl:"options,optional"`
	Defaults map[string]string `hcl:"defaults,optional"`
	Projects []string          `hcl:"projects,optional"`

	Exports      *hclExports      `hcl:"exports,block"`
	Dependencies []*hclDependency `hcl:"dependency,block"`
	When         []*hclWhen       `hcl:"when,block"`
}

// hclWhen holds its match attributes; the rest of the body is a configure
// block decoded in a second pass.
type hclWhen struct {
	Platform     string   `hcl:"platform,optional"`
	DevEnv       string   `hcl:"devenv,optional"`
	Optimization string   `hcl:"optimization,optional"`
	Remain       hcl.Body `hcl:",remain"`
}

// hclEvalContext exposes the workspace root as the variable "workspace".
func hclEvalContext(root string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"workspace": cty.StringVal(root),
		},
	}
}

// parseHCLFile decodes one HCL declaration file. root is the directory the
// "workspace" variable evaluates to.
func parseHCLFile(parser *hclparse.Parser, path, root string) (*WorkspaceFile, hcl.Diagnostics) {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, diags
	}

	ctx := hclEvalContext(root)
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, ctx, &parsed); diags.HasErrors() {
		return nil, diags
	}

	out := &WorkspaceFile{Workspace: parsed.Workspace}
	for _, p := range parsed.Projects {
		conf, diags := p.Configure.toDecl(ctx)
		if diags.HasErrors() {
			return nil, diags
		}
		out.Projects = append(out.Projects, ProjectDecl{
			Name:        p.Name,
			SourceRoot:  p.SourceRoot,
			Targets:     toTargetDecls(p.Targets),
			SourceGlobs: p.SourceGlobs,
			Configure:   conf,
			Script:      p.Script,
			File:        path,
		})
	}
	for _, s := range parsed.Solutions {
		conf, diags := s.Configure.toDecl(ctx)
		if diags.HasErrors() {
			return nil, diags
		}
		out.Solutions = append(out.Solutions, SolutionDecl{
			Name:      s.Name,
			Targets:   toTargetDecls(s.Targets),
			Configure: conf,
			Script:    s.Script,
			File:      path,
		})
	}
	return out, nil
}

func toTargetDecls(in []*hclTarget) []TargetDecl {
	out := make([]TargetDecl, len(in))
	for i, t := range in {
		out[i] = TargetDecl{Platforms: t.Platforms, DevEnvs: t.DevEnvs, Optimization: t.Optimization}
	}
	return out
}

func (c *hclConfigure) toDecl(ctx *hcl.EvalContext) (ConfigureDecl, hcl.Diagnostics) {
	if c == nil {
		return ConfigureDecl{}, nil
	}
	d := ConfigureDecl{
		ProjectFileName:  c.ProjectFileName,
		ProjectPath:      c.ProjectPath,
		SolutionFileName: c.SolutionFileName,
		SolutionPath:     c.SolutionPath,
		OutputFileName:   c.OutputFileName,
		OutputPath:       c.OutputPath,
		OutputType:       c.OutputType,
		IncludePaths:     c.IncludePaths,
		LibraryFiles:     c.LibraryFiles,
		LibraryPaths:     c.LibraryPaths,
		Defines:          c.Defines,
		SourceFiles:      c.SourceFiles,
		CompilerOptions:  c.CompilerOptions,
		LinkerOptions:    c.LinkerOptions,
		Options:          c.Options,
		Defaults:         c.Defaults,
		Projects:         c.Projects,
	}
	if c.Exports != nil {
		d.Exports = ExportDecl{
			IncludePaths: c.Exports.IncludePaths,
			Defines:      c.Exports.Defines,
			LibraryFiles: c.Exports.LibraryFiles,
			LibraryPaths: c.Exports.LibraryPaths,
		}
	}
	for _, dep := range c.Dependencies {
		d.Dependencies = append(d.Dependencies, DependencyDecl{Name: dep.Name, Mode: dep.Mode})
	}
	for _, w := range c.When {
		var body hclConfigure
		if diags := gohcl.DecodeBody(w.Remain, ctx, &body); diags.HasErrors() {
			return ConfigureDecl{}, diags
		}
		if len(body.When) > 0 {
			return ConfigureDecl{}, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Nested when block",
				Detail:   fmt.Sprintf("when blocks cannot be nested (matching %s/%s/%s)", w.Platform, w.DevEnv, w.Optimization),
			}}
		}
		inner, diags := body.toDecl(ctx)
		if diags.HasErrors() {
			return ConfigureDecl{}, diags
		}
		d.When = append(d.When, WhenDecl{
			Match:         MatchDecl{Platform: w.Platform, DevEnv: w.DevEnv, Optimization: w.Optimization},
			ConfigureDecl: inner,
		})
	}
	return d, nil
}

// hclDiagnosticsToErrors converts HCL diagnostics to ValidationError values.
func hclDiagnosticsToErrors(path string, diags hcl.Diagnostics) []ValidationError {
	var out []ValidationError
	for _, d := range diags {
		if d.Severity != hcl.DiagError {
			continue
		}
		ve := ValidationError{File: path, Message: d.Summary}
		if d.Detail != "" {
			ve.Message += ": " + d.Detail
		}
		if d.Subject != nil {
			ve.File = d.Subject.Filename
			ve.Line = d.Subject.Start.Line
			ve.Column = d.Subject.Start.Column
		}
		out = append(out, ve)
	}
	return out
}
