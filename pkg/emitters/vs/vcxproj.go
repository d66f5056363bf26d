package vs

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/slngen/slngen/pkg/emitters/internal/textfile"
	"github.com/slngen/slngen/pkg/engine"
)

const msbuildNamespace = "http://schemas.microsoft.com/developer/msbuild/2003"

var compileExtensions = map[string]bool{".c": true, ".cc": true, ".cpp": true, ".cxx": true}
var headerExtensions = map[string]bool{".h": true, ".hh": true, ".hpp": true, ".hxx": true, ".inl": true}

// EmitProject implements engine.Emitter.
func (e *Emitter) EmitProject(in engine.ProjectInput) ([]engine.Artifact, error) {
	content, err := renderProject(in)
	if err != nil {
		return nil, err
	}
	target := in.Target
	return []engine.Artifact{{
		Path:    in.Path,
		Content: content,
		Entity:  in.Name,
		Target:  &target,
		Kind:    engine.ArtifactProject,
		Emitter: Name,
	}}, nil
}

func renderProject(in engine.ProjectInput) ([]byte, error) {
	tc, err := toolchainFor(in.Target.DevEnv)
	if err != nil {
		return nil, err
	}
	cfg, err := configName(in.Target)
	if err != nil {
		return nil, err
	}
	platform, _ := PlatformName(in.Target.Platform)

	conf := in.Config
	dir := filepath.Dir(in.Path)
	condition := fmt.Sprintf(`Condition="'$(Configuration)|$(Platform)'=='%s'"`, cfg)
	outputType := conf.ScalarOr(engine.OutputType, engine.OutputTypeExecutable.Value)

	w := textfile.New("  ", "\r\n")
	w.Line(`<?xml version="1.0" encoding="utf-8"?>`)
	w.Linef(`<Project DefaultTargets="Build" ToolsVersion="%s" xmlns="%s">`, tc.toolsVersion, msbuildNamespace)
	w.ScopeIndent(func() {
		w.Block(`<ItemGroup Label="ProjectConfigurations">`, `</ItemGroup>`, func() {
			w.Block(fmt.Sprintf(`<ProjectConfiguration Include="%s">`, cfg), `</ProjectConfiguration>`, func() {
				element(w, "Configuration", in.Target.Name())
				element(w, "Platform", platform)
			})
		})

		w.Block(`<PropertyGroup Label="Globals">`, `</PropertyGroup>`, func() {
			element(w, "ProjectGuid", ProjectGUID(in.Name, in.Target))
			element(w, "RootNamespace", in.Name)
			element(w, "Keyword", "Win32Proj")
			optional(w, conf, "WindowsTargetPlatformVersion", engine.TargetPlatformVersion)
		})
		w.Line(`<Import Project="$(VCTargetsPath)\Microsoft.Cpp.Default.props" />`)

		w.Block(fmt.Sprintf(`<PropertyGroup %s Label="Configuration">`, condition), `</PropertyGroup>`, func() {
			element(w, "ConfigurationType", outputType)
			element(w, "UseDebugLibraries", boolString(in.Target.Optimization == engine.Debug))
			element(w, "PlatformToolset", tc.toolset)
			optional(w, conf, "CharacterSet", engine.CharacterSet)
			if in.Target.Optimization == engine.Retail {
				element(w, "WholeProgramOptimization", "true")
			}
		})
		w.Line(`<Import Project="$(VCTargetsPath)\Microsoft.Cpp.props" />`)

		w.Block(fmt.Sprintf(`<PropertyGroup %s>`, condition), `</PropertyGroup>`, func() {
			outDir := `$(ProjectDir)output\` + in.Target.Slug()
			if p, ok := conf.Scalar(engine.OutputPath); ok {
				outDir = relPath(dir, p)
			}
			element(w, "OutDir", strings.TrimSuffix(outDir, `\`)+`\`)
			element(w, "IntDir", `$(ProjectDir)obj\`+in.Name+"_"+in.Target.Slug()+`\`)
			element(w, "TargetName", engine.OutputLibraryName(conf))
		})

		w.Block(fmt.Sprintf(`<ItemDefinitionGroup %s>`, condition), `</ItemDefinitionGroup>`, func() {
			w.Block(`<ClCompile>`, `</ClCompile>`, func() {
				optional(w, conf, "WarningLevel", engine.WarningLevel)
				optional(w, conf, "TreatWarningAsError", engine.WarningsAsErrors)
				element(w, "Optimization", optimizationLevel(in.Target.Optimization))
				optional(w, conf, "LanguageStandard", engine.LanguageStandard)
				optional(w, conf, "ExceptionHandling", engine.ExceptionHandling)
				inherited(w, "PreprocessorDefinitions", conf.List(engine.Defines), ";")
				inherited(w, "AdditionalIncludeDirectories", relPaths(dir, conf.List(engine.IncludePaths)), ";")
				inherited(w, "AdditionalOptions", conf.List(engine.CompilerOptions), " ")
			})

			linker := "Link"
			if outputType == engine.OutputTypeStaticLibrary.Value {
				linker = "Lib"
			}
			w.Block("<"+linker+">", "</"+linker+">", func() {
				if linker == "Link" {
					optional(w, conf, "SubSystem", engine.LinkerSubsystem)
					optional(w, conf, "LargeAddressAware", engine.LargeAddressAware)
					element(w, "GenerateDebugInformation", "true")
				}
				inherited(w, "AdditionalDependencies", libraryFiles(dir, conf.List(engine.LibraryFiles)), ";")
				inherited(w, "AdditionalLibraryDirectories", relPaths(dir, conf.List(engine.LibraryPaths)), ";")
				inherited(w, "AdditionalOptions", conf.List(engine.LinkerOptions), " ")
			})
		})

		compiled, headers, other := classifySources(relPaths(dir, conf.List(engine.SourceFiles)))
		sourceGroup(w, "ClCompile", compiled)
		sourceGroup(w, "ClInclude", headers)
		sourceGroup(w, "None", other)

		if len(in.Dependencies) > 0 {
			w.Block(`<ItemGroup>`, `</ItemGroup>`, func() {
				for _, dep := range in.Dependencies {
					w.Block(fmt.Sprintf(`<ProjectReference Include="%s">`, escape(relPath(dir, dep.Path))), `</ProjectReference>`, func() {
						element(w, "Project", ProjectGUID(dep.Name, dep.Target))
					})
				}
			})
		}

		w.Line(`<Import Project="$(VCTargetsPath)\Microsoft.Cpp.targets" />`)
	})
	w.Line(`</Project>`)
	return w.Bytes(), nil
}

func element(w *textfile.Writer, name, value string) {
	w.Linef("<%s>%s</%s>", name, escape(value), name)
}

func optional(w *textfile.Writer, conf *engine.Configuration, name string, cat engine.Category) {
	if v, ok := conf.Scalar(cat); ok {
		element(w, name, v)
	}
}

// inherited writes a list property that keeps the inherited MSBuild value.
func inherited(w *textfile.Writer, name string, values []string, sep string) {
	if len(values) == 0 {
		return
	}
	element(w, name, strings.Join(values, sep)+sep+"%("+name+")")
}

func sourceGroup(w *textfile.Writer, item string, files []string) {
	if len(files) == 0 {
		return
	}
	w.Block(`<ItemGroup>`, `</ItemGroup>`, func() {
		for _, f := range files {
			w.Linef(`<%s Include="%s" />`, item, escape(f))
		}
	})
}

func classifySources(files []string) (compiled, headers, other []string) {
	for _, f := range files {
		ext := strings.ToLower(path.Ext(strings.ReplaceAll(f, `\`, "/")))
		switch {
		case compileExtensions[ext]:
			compiled = append(compiled, f)
		case headerExtensions[ext]:
			headers = append(headers, f)
		default:
			other = append(other, f)
		}
	}
	return compiled, headers, other
}

// libraryFiles appends ".lib" to bare library names and relativizes paths.
func libraryFiles(dir string, libs []string) []string {
	out := make([]string, len(libs))
	for i, lib := range libs {
		switch {
		case filepath.IsAbs(lib):
			out[i] = relPath(dir, lib)
		case path.Ext(lib) == "":
			out[i] = lib + ".lib"
		default:
			out[i] = engine.Backslashes(lib)
		}
	}
	return out
}

func optimizationLevel(o engine.Optimization) string {
	switch o {
	case engine.Debug:
		return "Disabled"
	case engine.Retail:
		return "Full"
	default:
		return "MaxSpeed"
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
