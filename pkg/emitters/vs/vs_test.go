package vs

import (
	"bytes"
	"strings"
	"testing"

	"github.com/slngen/slngen/pkg/engine"
)

var debugTarget = engine.Target{Platform: engine.PlatformWin64, DevEnv: engine.DevEnvVS2022, Optimization: engine.Debug}

func birdGameInput(t *testing.T, target engine.Target) engine.ProjectInput {
	t.Helper()
	conf := engine.NewConfiguration("BirdGame", target)
	must(t, conf.Apply(
		engine.CharacterSetUnicode,
		engine.WarningLevel3,
		engine.WarningsAsErrorsEnable,
		engine.TargetPlatformVersionLatest,
		engine.CppStandard17,
		engine.ExceptionsEnable,
		engine.SubSystemWindows,
		engine.LargeAddressAwareEnable,
	))
	must(t, conf.Add(engine.IncludePaths, "/w/include"))
	must(t, conf.Add(engine.LibraryFiles, "d3d12", "dxgi", "d3dcompiler"))
	must(t, conf.Add(engine.SourceFiles, "/w/src/main.cpp", "/w/include/Log.h"))
	must(t, conf.Freeze())

	e := New()
	return engine.ProjectInput{
		Name:   "BirdGame",
		Target: target,
		Path:   e.ProjectArtifactPath("/w/generated", "BirdGame", target),
		Config: conf,
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestEmitProject_BirdGame(t *testing.T) {
	in := birdGameInput(t, debugTarget)
	artifacts, err := New().EmitProject(in)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("Expected 1 artifact, got %d", len(artifacts))
	}
	a := artifacts[0]
	if a.Path != "/w/generated/BirdGame_win64_vs2022_debug.vcxproj" {
		t.Errorf("Unexpected path %s", a.Path)
	}

	content := string(a.Content)
	expected := []string{
		`<ProjectConfiguration Include="Debug|x64">`,
		`<PlatformToolset>v143</PlatformToolset>`,
		`<CharacterSet>Unicode</CharacterSet>`,
		`<WarningLevel>Level3</WarningLevel>`,
		`<TreatWarningAsError>true</TreatWarningAsError>`,
		`<LanguageStandard>stdcpp17</LanguageStandard>`,
		`<ExceptionHandling>Sync</ExceptionHandling>`,
		`<SubSystem>Windows</SubSystem>`,
		`<LargeAddressAware>true</LargeAddressAware>`,
		`<WindowsTargetPlatformVersion>10.0</WindowsTargetPlatformVersion>`,
		`<AdditionalDependencies>d3d12.lib;dxgi.lib;d3dcompiler.lib;%(AdditionalDependencies)</AdditionalDependencies>`,
		`<AdditionalIncludeDirectories>..\include;%(AdditionalIncludeDirectories)</AdditionalIncludeDirectories>`,
		`<ClCompile Include="..\src\main.cpp" />`,
		`<ClInclude Include="..\include\Log.h" />`,
		`<ConfigurationType>Application</ConfigurationType>`,
		"<ProjectGuid>" + ProjectGUID("BirdGame", debugTarget) + "</ProjectGuid>",
	}
	for _, want := range expected {
		if !strings.Contains(content, want) {
			t.Errorf("Expected %s in project file", want)
		}
	}
	if strings.Contains(content, "/w/") {
		t.Error("Expected no absolute paths in project file")
	}
}

func TestEmitProject_Deterministic(t *testing.T) {
	first, err := New().EmitProject(birdGameInput(t, debugTarget))
	must(t, err)
	second, err := New().EmitProject(birdGameInput(t, debugTarget))
	must(t, err)
	if !bytes.Equal(first[0].Content, second[0].Content) {
		t.Error("Expected byte-identical output for identical input")
	}
}

func TestEmitProject_StaticLibraryAndReferences(t *testing.T) {
	conf := engine.NewConfiguration("Game", debugTarget)
	must(t, conf.Apply(engine.OutputTypeStaticLibrary))
	must(t, conf.Add(engine.LibraryFiles, "Core"))
	must(t, conf.Freeze())

	e := New()
	in := engine.ProjectInput{
		Name:   "Game",
		Target: debugTarget,
		Path:   e.ProjectArtifactPath("/w/Game", "Game", debugTarget),
		Config: conf,
		Dependencies: []engine.ProjectArtifactRef{{
			Name:   "Core",
			Path:   e.ProjectArtifactPath("/w/Core", "Core", debugTarget),
			Target: debugTarget,
		}},
	}
	artifacts, err := e.EmitProject(in)
	must(t, err)
	content := string(artifacts[0].Content)

	if !strings.Contains(content, "<Lib>") || strings.Contains(content, "<Link>") {
		t.Error("Expected a Lib section for static libraries")
	}
	if !strings.Contains(content, `<ProjectReference Include="..\Core\Core_win64_vs2022_debug.vcxproj">`) {
		t.Error("Expected relative project reference")
	}
	if !strings.Contains(content, "<Project>"+ProjectGUID("Core", debugTarget)+"</Project>") {
		t.Error("Expected dependency GUID in project reference")
	}
}

func TestEmitProject_UnsupportedPlatform(t *testing.T) {
	target := engine.Target{Platform: engine.PlatformLinux, DevEnv: engine.DevEnvVS2022, Optimization: engine.Debug}
	conf := engine.NewConfiguration("Game", target)
	must(t, conf.Freeze())

	_, err := New().EmitProject(engine.ProjectInput{Name: "Game", Target: target, Path: "/w/Game.vcxproj", Config: conf})
	if err == nil {
		t.Error("Expected an error for linux")
	}
}

func TestProjectGUID(t *testing.T) {
	release := debugTarget
	release.Optimization = engine.Release

	a := ProjectGUID("BirdGame", debugTarget)
	if a != ProjectGUID("BirdGame", debugTarget) {
		t.Error("Expected stable GUID")
	}
	if a == ProjectGUID("BirdGame", release) || a == ProjectGUID("Core", debugTarget) {
		t.Error("Expected distinct GUIDs per name and target")
	}
	if len(a) != 38 || a[0] != '{' || a != strings.ToUpper(a) {
		t.Errorf("Expected braced upper-case GUID, got %s", a)
	}
}

func TestEmitSolution(t *testing.T) {
	e := New()
	release := debugTarget
	release.Optimization = engine.Release

	project := func(name string, target engine.Target, deps ...string) engine.SolutionProject {
		return engine.SolutionProject{
			Name:         name,
			Path:         e.ProjectArtifactPath("/w/generated", name, target),
			Target:       target,
			Dependencies: deps,
		}
	}
	in := engine.SolutionInput{
		Name: "BirdGame",
		Path: e.SolutionArtifactPath("/w/generated", "BirdGame"),
		Configurations: []engine.SolutionConfiguration{
			{Target: debugTarget, Projects: []engine.SolutionProject{project("Core", debugTarget), project("BirdGame", debugTarget, "Core")}},
			{Target: release, Projects: []engine.SolutionProject{project("Core", release), project("BirdGame", release, "Core")}},
		},
	}

	artifacts, err := e.EmitSolution(in)
	must(t, err)
	if artifacts[0].Path != "/w/generated/BirdGame.sln" || artifacts[0].Kind != engine.ArtifactSolution {
		t.Errorf("Unexpected artifact %+v", artifacts[0])
	}
	content := string(artifacts[0].Content)

	birdDebug := ProjectGUID("BirdGame", debugTarget)
	coreDebug := ProjectGUID("Core", debugTarget)
	expected := []string{
		"Microsoft Visual Studio Solution File, Format Version 12.00\r\n# Visual Studio Version 17\r\n",
		`Project("` + cppProjectType + `") = "BirdGame_win64_vs2022_debug", "BirdGame_win64_vs2022_debug.vcxproj", "` + birdDebug + `"`,
		"\t\t" + coreDebug + " = " + coreDebug + "\r\n",
		"\t\tDebug|x64 = Debug|x64\r\n\t\tRelease|x64 = Release|x64\r\n",
		birdDebug + ".Debug|x64.Build.0 = Debug|x64",
		birdDebug + ".Release|x64.ActiveCfg = Debug|x64",
		"HideSolutionNode = FALSE",
	}
	for _, want := range expected {
		if !strings.Contains(content, want) {
			t.Errorf("Expected %q in solution file", want)
		}
	}
	if strings.Contains(content, birdDebug+".Release|x64.Build.0") {
		t.Error("Expected debug project not to build in the Release configuration")
	}
	if strings.Count(content, "EndProject\r\n") != 4 {
		t.Errorf("Expected 4 project entries, got %d", strings.Count(content, "EndProject\r\n"))
	}
	if strings.Index(content, `"Core_win64_vs2022_debug"`) > strings.Index(content, `"BirdGame_win64_vs2022_debug"`) {
		t.Error("Expected dependencies listed before dependents")
	}
}

func TestEmitSolution_Empty(t *testing.T) {
	if _, err := New().EmitSolution(engine.SolutionInput{Name: "S", Path: "/w/S.sln"}); err == nil {
		t.Error("Expected an error for a solution without configurations")
	}
}
