package engine

import (
	"fmt"
	"math/bits"
	"strings"
)

// Platform identifies the operating system / architecture axis of a Target.
type Platform string

const (
	// PlatformWin32 is 32-bit Windows.
	PlatformWin32 Platform = "win32"

	// PlatformWin64 is 64-bit Windows.
	PlatformWin64 Platform = "win64"

	// PlatformLinux is Linux.
	PlatformLinux Platform = "linux"

	// PlatformMacOS is macOS.
	PlatformMacOS Platform = "macos"
)

// Validate checks if the platform is known.
func (p Platform) Validate() error {
	switch p {
	case PlatformWin32, PlatformWin64, PlatformLinux, PlatformMacOS:
		return nil
	default:
		return fmt.Errorf("invalid platform: %s", p)
	}
}

// IsWindows returns true for the Windows platforms.
func (p Platform) IsWindows() bool {
	return p == PlatformWin32 || p == PlatformWin64
}

// DevEnv identifies the toolchain / development environment axis of a Target.
type DevEnv string

const (
	// DevEnvVS2019 is Visual Studio 2019.
	DevEnvVS2019 DevEnv = "vs2019"

	// DevEnvVS2022 is Visual Studio 2022.
	DevEnvVS2022 DevEnv = "vs2022"

	// DevEnvMake is GNU make.
	DevEnvMake DevEnv = "make"
)

// Validate checks if the devEnv is known.
func (d DevEnv) Validate() error {
	switch d {
	case DevEnvVS2019, DevEnvVS2022, DevEnvMake:
		return nil
	default:
		return fmt.Errorf("invalid devenv: %s", d)
	}
}

// Optimization is a bit set of optimization levels. A value with several bits
// set is a declaration shorthand and expands into one Target per bit.
type Optimization uint8

const (
	// Debug builds without optimization and with debug info.
	Debug Optimization = 1 << iota

	// Release builds with optimization and debug info.
	Release

	// Retail builds with full optimization and no debug info.
	Retail
)

// AllOptimizations lists the single-bit optimization values in bit order.
var AllOptimizations = []Optimization{Debug, Release, Retail}

var optimizationNames = map[Optimization]string{
	Debug:   "Debug",
	Release: "Release",
	Retail:  "Retail",
}

// String renders single flags by name and flag sets joined with "|".
func (o Optimization) String() string {
	if name, ok := optimizationNames[o]; ok {
		return name
	}
	if o == 0 {
		return "None"
	}
	flags := o.Flags()
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, optimizationNames[f])
	}
	if o&^(Debug|Release|Retail) != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint8(o&^(Debug|Release|Retail))))
	}
	return strings.Join(names, "|")
}

// Flags returns the set bits of o as single-bit values in bit order.
func (o Optimization) Flags() []Optimization {
	out := make([]Optimization, 0, bits.OnesCount8(uint8(o)))
	for _, f := range AllOptimizations {
		if o&f != 0 {
			out = append(out, f)
		}
	}
	return out
}

// IsSingle returns true if exactly one known flag is set.
func (o Optimization) IsSingle() bool {
	_, ok := optimizationNames[o]
	return ok
}

// ParseOptimization parses "Debug", "release" or "Debug|Release". An empty
// string or "None" is the empty set.
func ParseOptimization(s string) (Optimization, error) {
	var out Optimization
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, "None") {
			continue
		}
		found := false
		for flag, name := range optimizationNames {
			if strings.EqualFold(name, part) {
				out |= flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("invalid optimization: %q", part)
		}
	}
	return out, nil
}

// MarshalText implements encoding.TextMarshaler.
func (o Optimization) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Optimization) UnmarshalText(text []byte) error {
	v, err := ParseOptimization(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Target is one concrete point of the target matrix. It is a comparable
// value and is used directly as a map key.
type Target struct {
	Platform     Platform     `json:"platform"`
	DevEnv       DevEnv       `json:"devenv"`
	Optimization Optimization `json:"optimization"`
}

// String renders the target tuple, e.g. "(win64, vs2022, Debug)".
func (t Target) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.Platform, t.DevEnv, t.Optimization)
}

// Slug renders a filesystem-safe name, e.g. "win64_vs2022_debug".
func (t Target) Slug() string {
	return strings.ToLower(fmt.Sprintf("%s_%s_%s", t.Platform, t.DevEnv, t.Optimization))
}

// Name is the configuration name toolchains display, e.g. "Debug".
func (t Target) Name() string {
	return t.Optimization.String()
}

// Validate checks that every axis holds a single known value.
func (t Target) Validate() error {
	if err := t.Platform.Validate(); err != nil {
		return err
	}
	if err := t.DevEnv.Validate(); err != nil {
		return err
	}
	if !t.Optimization.IsSingle() {
		return fmt.Errorf("target optimization must be a single flag, got %s", t.Optimization)
	}
	return nil
}

// ParseTarget parses the Slug form ("win64_vs2022_debug") or the tuple form
// ("win64,vs2022,Debug").
func ParseTarget(s string) (Target, error) {
	s = strings.Trim(strings.TrimSpace(s), "()")
	sep := "_"
	if strings.Contains(s, ",") {
		sep = ","
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return Target{}, fmt.Errorf("invalid target %q: expected platform%sdevenv%soptimization", s, sep, sep)
	}
	opt, err := ParseOptimization(parts[2])
	if err != nil {
		return Target{}, err
	}
	t := Target{
		Platform:     Platform(strings.ToLower(strings.TrimSpace(parts[0]))),
		DevEnv:       DevEnv(strings.ToLower(strings.TrimSpace(parts[1]))),
		Optimization: opt,
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// TargetSpec is one AddTargets declaration: every listed platform crossed
// with every listed devEnv crossed with every optimization flag.
type TargetSpec struct {
	Platforms    []Platform   `json:"platforms"`
	DevEnvs      []DevEnv     `json:"devenvs"`
	Optimization Optimization `json:"optimization"`
}

// Axes returns the spec as ordered matrix axes.
func (s TargetSpec) Axes() []Axis {
	platforms := make([]string, len(s.Platforms))
	for i, p := range s.Platforms {
		platforms[i] = string(p)
	}
	devenvs := make([]string, len(s.DevEnvs))
	for i, d := range s.DevEnvs {
		devenvs[i] = string(d)
	}
	flags := s.Optimization.Flags()
	opts := make([]string, len(flags))
	for i, f := range flags {
		opts[i] = f.String()
	}
	return []Axis{
		{Name: AxisPlatform, Values: platforms},
		{Name: AxisDevEnv, Values: devenvs},
		{Name: AxisOptimization, Values: opts},
	}
}

// Validate checks every declared axis value.
func (s TargetSpec) Validate() error {
	for _, p := range s.Platforms {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	for _, d := range s.DevEnvs {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	if s.Optimization&^(Debug|Release|Retail) != 0 {
		return fmt.Errorf("invalid optimization flags: %s", s.Optimization)
	}
	return nil
}

// EntityKind distinguishes projects from solutions.
type EntityKind string

const (
	// EntityProject is a project declaration.
	EntityProject EntityKind = "project"

	// EntitySolution is a solution declaration.
	EntitySolution EntityKind = "solution"
)

// DependencyMode controls which exported options cross a dependency edge.
type DependencyMode string

const (
	// DependencyLink transfers exported libraries and the dependency's output library.
	DependencyLink DependencyMode = "link"

	// DependencyPublic additionally transfers exported include paths and defines.
	DependencyPublic DependencyMode = "public"
)

// Validate checks if the dependency mode is known.
func (m DependencyMode) Validate() error {
	switch m {
	case DependencyLink, DependencyPublic:
		return nil
	default:
		return fmt.Errorf("invalid dependency mode: %s", m)
	}
}

// Dependency is a Project→Project edge declared in one target's configure pass.
type Dependency struct {
	Name string         `json:"name"`
	Mode DependencyMode `json:"mode"`
}

// Diagnostic is a non-fatal observation recorded while configuring.
type Diagnostic struct {
	Entity   string   `json:"entity"`
	Target   Target   `json:"target"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s: %s", d.Entity, d.Target, d.Category, d.Message)
}
