package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	for name, def := range map[string]string{
		"workspace":  "#Workspace",
		"project":    "#Project",
		"solution":   "#Solution",
		"target":     "#Target",
		"dependency": "#Dependency",
		"configure":  "#Configure",
	} {
		if err := sr.RegisterSchema(name, builtinSchema, def); err != nil {
			panic(err)
		}
	}
	return sr
}

// RegisterSchema compiles source and registers its definition def under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, def string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(schemaFilePrefix+name))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	defVal := val.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}
	sr.schemas[name] = defVal
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered schema names sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAgainstSchema validates data against a named schema. The returned
// errors carry the CUE path of each violation.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) []ValidationError {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("schema %s not found", schemaName)}}
	}

	sr.mu.Lock()
	dataVal := sr.ctx.Encode(data)
	sr.mu.Unlock()
	if err := dataVal.Err(); err != nil {
		return convertCUEErrors(err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return convertCUEErrors(err)
	}
	return nil
}

// schemaFilePrefix marks positions inside registered schemas, which are not
// reported as error locations.
const schemaFilePrefix = "schema:"

// convertCUEErrors converts CUE errors to ValidationError values. Messages
// carry no positions; the first position outside a schema becomes the
// error location.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: strings.TrimSpace(fmt.Sprintf(format, args...)),
		}
		for _, pos := range cueerrors.Positions(e) {
			if strings.HasPrefix(pos.Filename(), schemaFilePrefix) {
				continue
			}
			ve.File = pos.Filename()
			ve.Line = pos.Line()
			ve.Column = pos.Column()
			break
		}
		out = append(out, ve)
	}
	return out
}

const builtinSchema = `
#Name: string & =~"^[A-Za-z_][A-Za-z0-9_.-]*$"

#Scalar: string | bool | int

// An empty axis is allowed and expands to no targets.
#Target: {
	platforms!: [...("win32" | "win64" | "linux" | "macos")]
	devenvs!: [...("vs2019" | "vs2022" | "make")]
	optimization!: string & =~"^(?i)(none|(debug|release|retail)( *\\| *(debug|release|retail))*)?$"
}

#Dependency: {
	name:  #Name
	mode?: "link" | "public"
}

#Match: {
	platform?:     "win32" | "win64" | "linux" | "macos"
	devenv?:       "vs2019" | "vs2022" | "make"
	optimization?: string
}

#Configure: {
	project_file_name?:  string
	project_path?:       string
	solution_file_name?: string
	solution_path?:      string
	output_file_name?:   string
	output_path?:        string
	output_type?:        "Application" | "StaticLibrary" | "DynamicLibrary"

	include_paths?:    [...string]
	library_files?:    [...string]
	library_paths?:    [...string]
	defines?:          [...string]
	source_files?:     [...string]
	compiler_options?: [...string]
	linker_options?:   [...string]

	options?:  {[string]: #Scalar}
	defaults?: {[string]: #Scalar}

	exports?: {
		include_paths?: [...string]
		defines?:       [...string]
		library_files?: [...string]
		library_paths?: [...string]
	}

	dependencies?: [...#Dependency]
	projects?: [...#Name]
	when?: [...#When]
}

#When: {
	#Configure
	match: #Match
}

#Project: {
	name:          #Name
	source_root?:  string
	targets:       [...#Target]
	source_globs?: [...string]
	configure?:    #Configure
	script?:       string
}

#Solution: {
	name:       #Name
	targets:    [...#Target]
	configure?: #Configure
	script?:    string
}

#Workspace: {
	workspace:  #Name
	projects?:  [...#Project]
	solutions?: [...#Solution]
}
`
