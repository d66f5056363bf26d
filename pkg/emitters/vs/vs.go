// Package vs renders Visual Studio project (.vcxproj) and solution (.sln)
// files for the vs2019 and vs2022 devEnvs.
//
// Each (project, target) pair is written to its own .vcxproj holding a single
// configuration. Solutions reference every project file of their closure and
// map each solution configuration to the project file built for it.
package vs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/slngen/slngen/pkg/engine"
)

// Name is the emitter registry key.
const Name = "vs"

// cppProjectType is the Visual C++ project type GUID used in solution files.
const cppProjectType = "{8BC9CEB8-8B4A-11D0-8D11-00A0C91BC942}"

// guidNamespace seeds the name-based project GUIDs.
var guidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://slngen.dev/vs/project"))

type toolchain struct {
	toolset        string
	toolsVersion   string
	shortVersion   string
	fullVersion    string
	minimumVersion string
}

var toolchains = map[engine.DevEnv]toolchain{
	engine.DevEnvVS2019: {
		toolset:        "v142",
		toolsVersion:   "16.0",
		shortVersion:   "16",
		fullVersion:    "16.0.28729.10",
		minimumVersion: "10.0.40219.1",
	},
	engine.DevEnvVS2022: {
		toolset:        "v143",
		toolsVersion:   "17.0",
		shortVersion:   "17",
		fullVersion:    "17.0.31903.59",
		minimumVersion: "10.0.40219.1",
	},
}

// Emitter implements engine.Emitter for Visual Studio.
type Emitter struct{}

// New creates the Visual Studio emitter.
func New() *Emitter {
	return &Emitter{}
}

// Name implements engine.Emitter.
func (e *Emitter) Name() string { return Name }

// DevEnvs implements engine.Emitter.
func (e *Emitter) DevEnvs() []engine.DevEnv {
	return []engine.DevEnv{engine.DevEnvVS2019, engine.DevEnvVS2022}
}

// ProjectArtifactPath implements engine.Emitter.
func (e *Emitter) ProjectArtifactPath(dir, fileName string, t engine.Target) string {
	return filepath.Join(dir, fileName+"_"+t.Slug()+".vcxproj")
}

// SolutionArtifactPath implements engine.Emitter.
func (e *Emitter) SolutionArtifactPath(dir, fileName string) string {
	return filepath.Join(dir, fileName+".sln")
}

// ProjectGUID returns the stable, upper-case, braced GUID of a project
// target. The same name and target always yield the same GUID.
func ProjectGUID(name string, t engine.Target) string {
	id := uuid.NewSHA1(guidNamespace, []byte(name+"|"+t.Slug()))
	return "{" + strings.ToUpper(id.String()) + "}"
}

// PlatformName maps a platform to the Visual Studio platform name.
func PlatformName(p engine.Platform) (string, error) {
	switch p {
	case engine.PlatformWin32:
		return "Win32", nil
	case engine.PlatformWin64:
		return "x64", nil
	default:
		return "", fmt.Errorf("visual studio emitter does not support platform %s", p)
	}
}

// configName renders "Debug|x64".
func configName(t engine.Target) (string, error) {
	platform, err := PlatformName(t.Platform)
	if err != nil {
		return "", err
	}
	return t.Name() + "|" + platform, nil
}

func toolchainFor(d engine.DevEnv) (toolchain, error) {
	tc, ok := toolchains[d]
	if !ok {
		return toolchain{}, fmt.Errorf("visual studio emitter does not support devenv %s", d)
	}
	return tc, nil
}

// relPath renders p relative to dir with Windows separators.
func relPath(dir, p string) string {
	return engine.Backslashes(engine.RelativeTo(dir, p))
}

func relPaths(dir string, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = relPath(dir, v)
	}
	return out
}
