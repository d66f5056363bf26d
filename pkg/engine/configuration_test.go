package engine

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

var testTarget = Target{PlatformWin64, DevEnvVS2022, Debug}

func TestConfiguration_ExplicitConflict(t *testing.T) {
	conf := NewConfiguration("BirdGame", testTarget)

	if err := conf.Apply(CppStandard17); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	err := conf.Apply(CppStandard20)
	if !IsConfigConflict(err) {
		t.Fatalf("Expected ConfigConflictError, got: %v", err)
	}

	var conflict *ConfigConflictError
	if !errors.As(err, &conflict) {
		t.Fatal("Expected errors.As to find ConfigConflictError")
	}
	if conflict.Entity != "BirdGame" || conflict.Target != testTarget {
		t.Errorf("Expected entity/target context, got %+v", conflict)
	}
	if conflict.First != "stdcpp17" || conflict.Second != "stdcpp20" {
		t.Errorf("Expected both values, got %q and %q", conflict.First, conflict.Second)
	}

	// First value is kept.
	if v, _ := conf.Scalar(LanguageStandard); v != "stdcpp17" {
		t.Errorf("Expected stdcpp17 to be kept, got %s", v)
	}

	ferr := conf.Freeze()
	if !IsConfigConflict(ferr) {
		t.Errorf("Expected Freeze to report the conflict, got: %v", ferr)
	}
	if KindOf(ferr) != ErrorKindConfigConflict {
		t.Errorf("Expected kind %s, got %s", ErrorKindConfigConflict, KindOf(ferr))
	}
}

func TestConfiguration_DefaultOverriddenOnce(t *testing.T) {
	conf := NewConfiguration("BirdGame", testTarget)

	if err := conf.SetDefault(LanguageStandard, "stdcpp17"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := conf.Set(LanguageStandard, "stdcpp20"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := conf.Freeze(); err != nil {
		t.Fatalf("Expected no conflict, got: %v", err)
	}

	if v, _ := conf.Scalar(LanguageStandard); v != "stdcpp20" {
		t.Errorf("Expected stdcpp20, got %s", v)
	}
	if len(conf.Diagnostics()) != 1 {
		t.Errorf("Expected 1 diagnostic, got %d", len(conf.Diagnostics()))
	}
}

func TestConfiguration_Precedence(t *testing.T) {
	tests := []struct {
		name      string
		writes    func(c *Configuration)
		want      string
		diags     int
		conflicts int
	}{
		{
			name: "same explicit value twice",
			writes: func(c *Configuration) {
				_ = c.Set(WarningLevel, "Level3")
				_ = c.Set(WarningLevel, "Level3")
			},
			want: "Level3",
		},
		{
			name: "default after explicit is ignored",
			writes: func(c *Configuration) {
				_ = c.Set(WarningLevel, "Level4")
				_ = c.SetDefault(WarningLevel, "Level3")
			},
			want: "Level4",
		},
		{
			name: "inherited replaces default",
			writes: func(c *Configuration) {
				_ = c.SetDefault(WarningLevel, "Level1")
				_ = c.SetInherited(WarningLevel, "Level3")
			},
			want:  "Level3",
			diags: 1,
		},
		{
			name: "two defaults last wins",
			writes: func(c *Configuration) {
				_ = c.SetDefault(WarningLevel, "Level1")
				_ = c.SetDefault(WarningLevel, "Level2")
			},
			want:  "Level2",
			diags: 1,
		},
		{
			name: "explicit equal to default is silent",
			writes: func(c *Configuration) {
				_ = c.SetDefault(WarningLevel, "Level3")
				_ = c.Set(WarningLevel, "Level3")
			},
			want: "Level3",
		},
		{
			name: "two explicit values conflict",
			writes: func(c *Configuration) {
				_ = c.Set(WarningLevel, "Level3")
				_ = c.Set(WarningLevel, "Level4")
			},
			want:      "Level3",
			conflicts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := NewConfiguration("p", testTarget)
			tt.writes(conf)

			if v, _ := conf.Scalar(WarningLevel); v != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, v)
			}
			if n := len(conf.Diagnostics()); n != tt.diags {
				t.Errorf("Expected %d diagnostics, got %d", tt.diags, n)
			}
			if n := len(conf.Conflicts()); n != tt.conflicts {
				t.Errorf("Expected %d conflicts, got %d", tt.conflicts, n)
			}
		})
	}
}

func TestConfiguration_ListAndSetSemantics(t *testing.T) {
	conf := NewConfiguration("p", testTarget)

	_ = conf.Add(LibraryFiles, "d3d12", "dxgi")
	_ = conf.Add(LibraryFiles, "d3d12", "d3dcompiler")
	_ = conf.Add(CompilerOptions, "/W3", "/W3")

	if got := conf.List(LibraryFiles); !reflect.DeepEqual(got, []string{"d3d12", "dxgi", "d3dcompiler"}) {
		t.Errorf("Expected set semantics, got %v", got)
	}
	if got := conf.List(CompilerOptions); !reflect.DeepEqual(got, []string{"/W3", "/W3"}) {
		t.Errorf("Expected list semantics, got %v", got)
	}
}

func TestConfiguration_KindMismatch(t *testing.T) {
	conf := NewConfiguration("p", testTarget)

	if err := conf.Set(LibraryFiles, "x"); !IsDeclaration(err) {
		t.Errorf("Expected declaration error for Set on a set category, got: %v", err)
	}
	if err := conf.Add(CharacterSet, "Unicode"); !IsDeclaration(err) {
		t.Errorf("Expected declaration error for Add on a scalar, got: %v", err)
	}
	if err := conf.Add(Category("bogus"), "x"); !IsDeclaration(err) {
		t.Errorf("Expected declaration error for unknown category, got: %v", err)
	}
	if err := conf.Export(OutputPath, "x"); !IsDeclaration(err) {
		t.Errorf("Expected declaration error for exporting a scalar, got: %v", err)
	}

	// Ignored errors still surface at Freeze.
	err := conf.Freeze()
	var list ErrorList
	if !errors.As(err, &list) || len(list) != 4 {
		t.Errorf("Expected 4 errors at Freeze, got: %v", err)
	}
}

func TestConfiguration_Frozen(t *testing.T) {
	conf := NewConfiguration("p", testTarget)
	_ = conf.Set(CharacterSet, "Unicode")
	if err := conf.Freeze(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	writes := map[string]func() error{
		"Set":           func() error { return conf.Set(CharacterSet, "MultiByte") },
		"SetDefault":    func() error { return conf.SetDefault(WarningLevel, "Level3") },
		"Add":           func() error { return conf.Add(Defines, "X") },
		"Export":        func() error { return conf.Export(IncludePaths, "/inc") },
		"AddDependency": func() error { return conf.AddDependency("q", DependencyLink) },
		"AddProject":    func() error { return conf.AddProject("q", testTarget) },
	}
	for name, write := range writes {
		if err := write(); !errors.Is(err, ErrFrozen) {
			t.Errorf("%s: expected ErrFrozen, got %v", name, err)
		}
	}

	if v, _ := conf.Scalar(CharacterSet); v != "Unicode" {
		t.Errorf("Expected frozen value to be unchanged, got %s", v)
	}
	if len(conf.List(Defines)) != 0 {
		t.Error("Expected no defines after frozen write")
	}
}

func TestConfiguration_DefaultsApplyOnlyWhenEmpty(t *testing.T) {
	withAdds := NewConfiguration("p", testTarget)
	_ = withAdds.AddDefault(SourceFiles, "a.cpp", "b.cpp")
	_ = withAdds.Add(SourceFiles, "main.cpp")
	_ = withAdds.Freeze()
	if got := withAdds.List(SourceFiles); !reflect.DeepEqual(got, []string{"main.cpp"}) {
		t.Errorf("Expected explicit files only, got %v", got)
	}

	withoutAdds := NewConfiguration("p", testTarget)
	_ = withoutAdds.AddDefault(SourceFiles, "a.cpp", "b.cpp")
	_ = withoutAdds.Freeze()
	if got := withoutAdds.List(SourceFiles); !reflect.DeepEqual(got, []string{"a.cpp", "b.cpp"}) {
		t.Errorf("Expected default files, got %v", got)
	}
}

func TestConfiguration_Dependencies(t *testing.T) {
	conf := NewConfiguration("Game", testTarget)

	_ = conf.AddDependency("Core", DependencyLink)
	_ = conf.AddDependency("Render", "")
	_ = conf.AddDependency("Core", DependencyPublic)

	want := []Dependency{
		{Name: "Core", Mode: DependencyPublic},
		{Name: "Render", Mode: DependencyPublic},
	}
	if got := conf.Dependencies(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if err := conf.AddDependency("Game", DependencyLink); !IsDeclaration(err) {
		t.Errorf("Expected self dependency to be rejected, got: %v", err)
	}
}

func TestConfiguration_CloneIsIndependent(t *testing.T) {
	conf := NewConfiguration("p", testTarget)
	_ = conf.Add(IncludePaths, "/a")
	_ = conf.Freeze()

	clone := conf.Clone()
	if clone.Frozen() {
		t.Fatal("Expected clone to be unfrozen")
	}
	_ = clone.Add(IncludePaths, "/b")

	if got := conf.List(IncludePaths); len(got) != 1 {
		t.Errorf("Expected original untouched, got %v", got)
	}
	if got := clone.List(IncludePaths); len(got) != 2 {
		t.Errorf("Expected clone to hold 2 paths, got %v", got)
	}
}

func TestConfiguration_Fail(t *testing.T) {
	conf := NewConfiguration("Game", Target{PlatformLinux, DevEnvMake, Debug})
	conf.Fail(nil)
	conf.Fail(errors.New("unknown placeholder [project.Foo]"))

	err := conf.Freeze()
	if !IsDeclaration(err) {
		t.Fatalf("Expected declaration error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "Game") {
		t.Errorf("Expected entity in %q", err.Error())
	}

	conf.Fail(errors.New("late"))
	if list, ok := conf.Freeze().(ErrorList); !ok || len(list) != 1 {
		t.Errorf("Expected failures after freeze to be dropped, got: %v", conf.Freeze())
	}
}

func TestConfiguration_ExportAppliesToOwnerAndDependents(t *testing.T) {
	conf := NewConfiguration("Core", testTarget)
	_ = conf.Add(Defines, "CORE_INTERNAL")
	if err := conf.Export(Defines, "USE_CORE"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_ = conf.Freeze()

	if got := conf.List(Defines); !reflect.DeepEqual(got, []string{"CORE_INTERNAL", "USE_CORE"}) {
		t.Errorf("Expected exported define in the owner's list, got %v", got)
	}
	if got := conf.Exports(Defines); !reflect.DeepEqual(got, []string{"USE_CORE"}) {
		t.Errorf("Expected only the exported define to propagate, got %v", got)
	}
}
