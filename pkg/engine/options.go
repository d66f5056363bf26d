package engine

import (
	"fmt"
	"sort"
)

// Category names one option slot of a Configuration.
type Category string

// CategoryKind is the merge policy of a Category.
type CategoryKind int

const (
	// KindScalar categories hold one value, replaced by precedence.
	KindScalar CategoryKind = iota

	// KindList categories append in declaration order and keep duplicates.
	KindList

	// KindSet categories append in declaration order and drop duplicates,
	// keeping the first position.
	KindSet
)

func (k CategoryKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("CategoryKind(%d)", int(k))
	}
}

// Scalar categories.
const (
	CharacterSet          Category = "character-set"
	WarningLevel          Category = "warning-level"
	WarningsAsErrors      Category = "warnings-as-errors"
	TargetPlatformVersion Category = "target-platform-version"
	LanguageStandard      Category = "language-standard"
	ExceptionHandling     Category = "exception-handling"
	LinkerSubsystem       Category = "linker-subsystem"
	LargeAddressAware     Category = "large-address-aware"
	OutputFileName        Category = "output-file-name"
	OutputPath            Category = "output-path"
	OutputType            Category = "output-type"
	ProjectFileName       Category = "project-file-name"
	ProjectPath           Category = "project-path"
	SolutionFileName      Category = "solution-file-name"
	SolutionPath          Category = "solution-path"
)

// Collection categories.
const (
	IncludePaths    Category = "include-paths"
	LibraryFiles    Category = "library-files"
	LibraryPaths    Category = "library-paths"
	Defines         Category = "defines"
	SourceFiles     Category = "source-files"
	CompilerOptions Category = "compiler-options"
	LinkerOptions   Category = "linker-options"
)

var categoryKinds = map[Category]CategoryKind{
	CharacterSet:          KindScalar,
	WarningLevel:          KindScalar,
	WarningsAsErrors:      KindScalar,
	TargetPlatformVersion: KindScalar,
	LanguageStandard:      KindScalar,
	ExceptionHandling:     KindScalar,
	LinkerSubsystem:       KindScalar,
	LargeAddressAware:     KindScalar,
	OutputFileName:        KindScalar,
	OutputPath:            KindScalar,
	OutputType:            KindScalar,
	ProjectFileName:       KindScalar,
	ProjectPath:           KindScalar,
	SolutionFileName:      KindScalar,
	SolutionPath:          KindScalar,

	IncludePaths:    KindSet,
	LibraryFiles:    KindSet,
	LibraryPaths:    KindSet,
	Defines:         KindSet,
	SourceFiles:     KindSet,
	CompilerOptions: KindList,
	LinkerOptions:   KindList,
}

// Kind returns the merge policy of c. Unknown categories are an error.
func (c Category) Kind() (CategoryKind, error) {
	k, ok := categoryKinds[c]
	if !ok {
		return 0, fmt.Errorf("unknown option category: %s", c)
	}
	return k, nil
}

// IsScalar returns true if c is a known scalar category.
func (c Category) IsScalar() bool {
	k, ok := categoryKinds[c]
	return ok && k == KindScalar
}

// Exportable returns true for categories that may cross a dependency edge.
func (c Category) Exportable() bool {
	switch c {
	case IncludePaths, Defines, LibraryFiles, LibraryPaths:
		return true
	default:
		return false
	}
}

// linkOnly returns true for exported categories that cross link-mode edges.
func (c Category) linkOnly() bool {
	return c == LibraryFiles || c == LibraryPaths
}

// Categories returns every known category in lexical order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryKinds))
	for c := range categoryKinds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Precedence orders scalar writes. Higher precedence replaces lower.
type Precedence int

const (
	// PrecedenceDefault is a fallback value (source enumeration, emitter defaults).
	PrecedenceDefault Precedence = iota

	// PrecedenceInherited is a value copied from a shared base (workspace defaults).
	PrecedenceInherited

	// PrecedenceExplicit is a value written by the entity's own configure pass.
	PrecedenceExplicit
)

func (p Precedence) String() string {
	switch p {
	case PrecedenceDefault:
		return "default"
	case PrecedenceInherited:
		return "inherited"
	case PrecedenceExplicit:
		return "explicit"
	default:
		return fmt.Sprintf("Precedence(%d)", int(p))
	}
}

// Option is a preset scalar value, applied with Configuration.Apply.
type Option struct {
	Category Category
	Value    string
}

// Presets for the scalar categories most projects set.
var (
	CharacterSetUnicode         = Option{CharacterSet, "Unicode"}
	CharacterSetMultiByte       = Option{CharacterSet, "MultiByte"}
	WarningLevel3               = Option{WarningLevel, "Level3"}
	WarningLevel4               = Option{WarningLevel, "Level4"}
	WarningsAsErrorsEnable      = Option{WarningsAsErrors, "true"}
	WarningsAsErrorsDisable     = Option{WarningsAsErrors, "false"}
	TargetPlatformVersionLatest = Option{TargetPlatformVersion, "10.0"}
	CppStandard17               = Option{LanguageStandard, "stdcpp17"}
	CppStandard20               = Option{LanguageStandard, "stdcpp20"}
	ExceptionsEnable            = Option{ExceptionHandling, "Sync"}
	ExceptionsDisable           = Option{ExceptionHandling, "false"}
	SubSystemWindows            = Option{LinkerSubsystem, "Windows"}
	SubSystemConsole            = Option{LinkerSubsystem, "Console"}
	LargeAddressAwareEnable     = Option{LargeAddressAware, "true"}
	OutputTypeExecutable        = Option{OutputType, "Application"}
	OutputTypeStaticLibrary     = Option{OutputType, "StaticLibrary"}
	OutputTypeDynamicLibrary    = Option{OutputType, "DynamicLibrary"}
)
