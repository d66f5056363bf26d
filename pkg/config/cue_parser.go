package config

import (
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
)

// parseCUEFile compiles a CUE declaration file, unifies it with the
// workspace schema and decodes the concrete result.
func (sr *SchemaRegistry) parseCUEFile(path string) (*WorkspaceFile, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, []ValidationError{{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}}
	}

	schema, ok := sr.GetSchema("workspace")
	if !ok {
		return nil, []ValidationError{{File: path, Message: "schema workspace not found"}}
	}

	sr.mu.Lock()
	val := sr.ctx.CompileBytes(content, cue.Filename(path))
	sr.mu.Unlock()
	if err := val.Err(); err != nil {
		return nil, withFile(path, convertCUEErrors(err))
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, withFile(path, convertCUEErrors(err))
	}

	// Decoding goes through JSON so embedded when blocks flatten the same
	// way they do for YAML.
	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, withFile(path, convertCUEErrors(err))
	}
	var wf WorkspaceFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, []ValidationError{{File: path, Message: fmt.Sprintf("failed to decode workspace: %v", err)}}
	}
	return &wf, nil
}

// toRaw converts a decoded declaration to the generic form CUE validates.
func toRaw(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func withFile(path string, errs []ValidationError) []ValidationError {
	for i := range errs {
		if errs[i].File == "" {
			errs[i].File = path
		}
	}
	return errs
}
