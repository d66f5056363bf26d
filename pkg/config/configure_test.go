package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/slngen/slngen/pkg/engine"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    engine.Category
		wantErr bool
	}{
		{in: "character_set", want: engine.CharacterSet},
		{in: "character-set", want: engine.CharacterSet},
		{in: " include_paths ", want: engine.IncludePaths},
		{in: "colour", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMatchDecl_Matches(t *testing.T) {
	target := engine.Target{Platform: engine.PlatformWin64, DevEnv: engine.DevEnvVS2022, Optimization: engine.Release}

	tests := []struct {
		name    string
		match   MatchDecl
		want    bool
		wantErr bool
	}{
		{name: "empty matches all", match: MatchDecl{}, want: true},
		{name: "platform", match: MatchDecl{Platform: "win64"}, want: true},
		{name: "other platform", match: MatchDecl{Platform: "linux"}},
		{name: "devenv", match: MatchDecl{DevEnv: "vs2022"}, want: true},
		{name: "other devenv", match: MatchDecl{DevEnv: "make"}},
		{name: "optimization set", match: MatchDecl{Optimization: "Release|Retail"}, want: true},
		{name: "other optimization", match: MatchDecl{Optimization: "Debug"}},
		{name: "all fields", match: MatchDecl{Platform: "win64", DevEnv: "vs2022", Optimization: "release"}, want: true},
		{name: "bad optimization", match: MatchDecl{Optimization: "Fast"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.match.Matches(target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestConfigureFunc_Declarative(t *testing.T) {
	decl := ConfigureDecl{
		ProjectFileName: "[project.Name]_[target.DevEnv]",
		ProjectPath:     "generated",
		OutputType:      "StaticLibrary",
		IncludePaths:    []string{"[project.SourceRoot]/include", "/abs/include"},
		LibraryFiles:    []string{"d3d12", "dxgi"},
		Options:         OptionMap{"character_set": "Unicode"},
		Defaults:        OptionMap{"warning_level": "Level3"},
		Exports:         ExportDecl{Defines: []string{"USE_CORE"}},
		Dependencies:    []DependencyDecl{{Name: "Zlib", Mode: "link"}},
		When: []WhenDecl{
			{Match: MatchDecl{Optimization: "Debug"}, ConfigureDecl: ConfigureDecl{Defines: []string{"_DEBUG"}}},
			{Match: MatchDecl{Optimization: "Release"}, ConfigureDecl: ConfigureDecl{Defines: []string{"NDEBUG"}}},
		},
	}
	sources := []string{"/ws/src/a.cpp", "/ws/src/b.cpp"}
	fn := configureFunc("/ws", decl, sources, nil)

	target := engine.Target{Platform: engine.PlatformWin64, DevEnv: engine.DevEnvVS2022, Optimization: engine.Debug}
	conf := engine.NewConfiguration("Core", target)
	fn(conf, engine.ConfigureContext{Target: target, Name: "Core", Kind: engine.EntityProject, SourceRootPath: "/ws/src"})
	if err := conf.Freeze(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if v, _ := conf.Scalar(engine.ProjectFileName); v != "Core_vs2022" {
		t.Errorf("Expected Core_vs2022, got %q", v)
	}
	if v, _ := conf.Scalar(engine.ProjectPath); v != filepath.Join("/ws", "generated") {
		t.Errorf("Expected project path under the workspace root, got %q", v)
	}
	if v, _ := conf.Scalar(engine.OutputType); v != "StaticLibrary" {
		t.Errorf("Expected StaticLibrary, got %q", v)
	}
	if v, _ := conf.Scalar(engine.CharacterSet); v != "Unicode" {
		t.Errorf("Expected Unicode, got %q", v)
	}
	if v, _ := conf.Scalar(engine.WarningLevel); v != "Level3" {
		t.Errorf("Expected default Level3, got %q", v)
	}

	inc := conf.List(engine.IncludePaths)
	wantInc := []string{filepath.Join("/ws/src", "include"), filepath.Clean("/abs/include")}
	if strings.Join(inc, ",") != strings.Join(wantInc, ",") {
		t.Errorf("Expected include paths %v, got %v", wantInc, inc)
	}
	if libs := conf.List(engine.LibraryFiles); strings.Join(libs, ",") != "d3d12,dxgi" {
		t.Errorf("Expected libraries in declared order, got %v", libs)
	}
	if defs := conf.List(engine.Defines); strings.Join(defs, ",") != "USE_CORE,_DEBUG" {
		t.Errorf("Expected the exported define and only the Debug when block, got %v", defs)
	}
	if src := conf.List(engine.SourceFiles); len(src) != 2 {
		t.Errorf("Expected default sources, got %v", src)
	}
	if exp := conf.Exports(engine.Defines); len(exp) != 1 || exp[0] != "USE_CORE" {
		t.Errorf("Expected exported define, got %v", exp)
	}
	deps := conf.Dependencies()
	if len(deps) != 1 || deps[0].Name != "Zlib" || deps[0].Mode != engine.DependencyLink {
		t.Errorf("Expected link dependency on Zlib, got %v", deps)
	}
}

func TestConfigureFunc_WhenOverridesBase(t *testing.T) {
	decl := ConfigureDecl{
		Options: OptionMap{"language_standard": "C++17", "warning_level": "Level3"},
		When: []WhenDecl{
			{Match: MatchDecl{Optimization: "Debug"}, ConfigureDecl: ConfigureDecl{Options: OptionMap{"language_standard": "C++20"}}},
		},
	}
	fn := configureFunc("/ws", decl, nil, nil)

	tests := []struct {
		name      string
		opt       engine.Optimization
		want      string
		wantDiags int
	}{
		{name: "debug override", opt: engine.Debug, want: "C++20", wantDiags: 1},
		{name: "release keeps base", opt: engine.Release, want: "C++17"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := engine.Target{Platform: engine.PlatformWin64, DevEnv: engine.DevEnvVS2022, Optimization: tt.opt}
			conf := engine.NewConfiguration("Core", target)
			fn(conf, engine.ConfigureContext{Target: target, Name: "Core", Kind: engine.EntityProject})
			if err := conf.Freeze(); err != nil {
				t.Fatalf("Expected no conflict, got %v", err)
			}
			if v, _ := conf.Scalar(engine.LanguageStandard); v != tt.want {
				t.Errorf("Expected %s, got %q", tt.want, v)
			}
			if v, _ := conf.Scalar(engine.WarningLevel); v != "Level3" {
				t.Errorf("Expected inherited Level3, got %q", v)
			}
			if got := len(conf.Diagnostics()); got != tt.wantDiags {
				t.Errorf("Expected %d diagnostic(s), got %v", tt.wantDiags, conf.Diagnostics())
			}
		})
	}
}

func TestConfigureFunc_WhenBlocksConflict(t *testing.T) {
	decl := ConfigureDecl{
		When: []WhenDecl{
			{Match: MatchDecl{Platform: "win64"}, ConfigureDecl: ConfigureDecl{Options: OptionMap{"language_standard": "C++17"}}},
			{Match: MatchDecl{Optimization: "Debug"}, ConfigureDecl: ConfigureDecl{Options: OptionMap{"language_standard": "C++20"}}},
		},
	}
	target := engine.Target{Platform: engine.PlatformWin64, DevEnv: engine.DevEnvVS2022, Optimization: engine.Debug}
	conf := engine.NewConfiguration("Core", target)
	configureFunc("/ws", decl, nil, nil)(conf, engine.ConfigureContext{Target: target, Name: "Core", Kind: engine.EntityProject})

	if err := conf.Freeze(); !engine.IsConfigConflict(err) {
		t.Errorf("Expected ConfigConflictError, got %v", err)
	}
}

func TestConfigureFunc_ExplicitSourcesReplaceDefaults(t *testing.T) {
	fn := configureFunc("/ws", ConfigureDecl{SourceFiles: []string{"main.cpp"}}, []string{"/ws/a.cpp"}, nil)

	target := engine.Target{Platform: engine.PlatformLinux, DevEnv: engine.DevEnvMake, Optimization: engine.Debug}
	conf := engine.NewConfiguration("App", target)
	fn(conf, engine.ConfigureContext{Target: target, Name: "App", Kind: engine.EntityProject, SourceRootPath: "/ws"})
	if err := conf.Freeze(); err != nil {
		t.Fatal(err)
	}

	src := conf.List(engine.SourceFiles)
	if len(src) != 1 || src[0] != filepath.Join("/ws", "main.cpp") {
		t.Errorf("Expected explicit sources only, got %v", src)
	}
}

func TestConfigureFunc_Solution(t *testing.T) {
	decl := ConfigureDecl{
		SolutionFileName: "[solution.Name]",
		SolutionPath:     "[workspace]/out",
		Projects:         []string{"Game", "Core"},
	}
	fn := configureFunc("/ws", decl, nil, nil)

	target := engine.Target{Platform: engine.PlatformWin64, DevEnv: engine.DevEnvVS2022, Optimization: engine.Release}
	conf := engine.NewConfiguration("BirdGame", target)
	fn(conf, engine.ConfigureContext{Target: target, Name: "BirdGame", Kind: engine.EntitySolution})
	if err := conf.Freeze(); err != nil {
		t.Fatal(err)
	}

	if v, _ := conf.Scalar(engine.SolutionFileName); v != "BirdGame" {
		t.Errorf("Expected BirdGame, got %q", v)
	}
	if v, _ := conf.Scalar(engine.SolutionPath); v != filepath.Join("/ws", "out") {
		t.Errorf("Expected /ws/out, got %q", v)
	}
	refs := conf.ProjectRefs()
	if len(refs) != 2 || refs[0].Name != "Game" || refs[0].Target != target {
		t.Errorf("Expected project refs for the solution target, got %v", refs)
	}
}

func TestConfigureFunc_Failures(t *testing.T) {
	tests := []struct {
		name    string
		decl    ConfigureDecl
		wantMsg string
	}{
		{
			name:    "unknown placeholder",
			decl:    ConfigureDecl{Defines: []string{"[project.Version]"}},
			wantMsg: "unknown placeholder",
		},
		{
			name:    "unknown option",
			decl:    ConfigureDecl{Options: OptionMap{"colour": "red"}},
			wantMsg: "colour",
		},
		{
			name:    "list category in options",
			decl:    ConfigureDecl{Options: OptionMap{"defines": "X"}},
			wantMsg: "use Add",
		},
		{
			name: "bad when match",
			decl: ConfigureDecl{When: []WhenDecl{
				{Match: MatchDecl{Optimization: "Fast"}},
			}},
			wantMsg: "when[0]",
		},
		{
			name:    "self dependency",
			decl:    ConfigureDecl{Dependencies: []DependencyDecl{{Name: "Core"}}},
			wantMsg: "depend on itself",
		},
	}

	target := engine.Target{Platform: engine.PlatformWin64, DevEnv: engine.DevEnvVS2022, Optimization: engine.Debug}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := engine.NewConfiguration("Core", target)
			configureFunc("/ws", tt.decl, nil, nil)(conf, engine.ConfigureContext{Target: target, Name: "Core", Kind: engine.EntityProject})

			err := conf.Freeze()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}
