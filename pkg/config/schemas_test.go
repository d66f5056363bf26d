package config

import (
	"context"
	"strings"
	"testing"
)

func TestSchemaRegistry_RegisterAndGet(t *testing.T) {
	sr := NewSchemaRegistry()

	customSchema := `
#Custom: {
	field1: string
	field2: int
}
`

	if err := sr.RegisterSchema("custom", customSchema, "#Custom"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}

	schema, ok := sr.GetSchema("custom")
	if !ok {
		t.Fatal("expected to find custom schema")
	}
	if schema.Err() != nil {
		t.Errorf("schema has errors: %v", schema.Err())
	}

	errs := sr.ValidateAgainstSchema(context.Background(), "custom", map[string]interface{}{
		"field1": "a",
		"field2": 2,
	})
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	for _, name := range []string{"workspace", "project", "solution", "target", "dependency", "configure"} {
		t.Run(name, func(t *testing.T) {
			schema, ok := sr.GetSchema(name)
			if !ok {
				t.Fatalf("built-in schema %s not found", name)
			}
			if schema.Err() != nil {
				t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
			}
		})
	}
}

func TestSchemaRegistry_ValidateTarget(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		target  map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid",
			target: map[string]interface{}{
				"platforms":    []interface{}{"win64"},
				"devenvs":      []interface{}{"vs2022"},
				"optimization": "Debug|Release",
			},
		},
		{
			name: "lowercase optimization with spaces",
			target: map[string]interface{}{
				"platforms":    []interface{}{"linux"},
				"devenvs":      []interface{}{"make"},
				"optimization": "debug | retail",
			},
		},
		{
			name: "unknown platform",
			target: map[string]interface{}{
				"platforms":    []interface{}{"amiga"},
				"devenvs":      []interface{}{"vs2022"},
				"optimization": "Debug",
			},
			wantErr: true,
		},
		{
			name: "empty platforms",
			target: map[string]interface{}{
				"platforms":    []interface{}{},
				"devenvs":      []interface{}{"vs2022"},
				"optimization": "Debug",
			},
		},
		{
			name: "no optimization",
			target: map[string]interface{}{
				"platforms":    []interface{}{"win64"},
				"devenvs":      []interface{}{"vs2022"},
				"optimization": "None",
			},
		},
		{
			name: "empty optimization",
			target: map[string]interface{}{
				"platforms":    []interface{}{"win64"},
				"devenvs":      []interface{}{},
				"optimization": "",
			},
		},
		{
			name: "unknown optimization",
			target: map[string]interface{}{
				"platforms":    []interface{}{"win64"},
				"devenvs":      []interface{}{"vs2022"},
				"optimization": "Profile",
			},
			wantErr: true,
		},
		{
			name: "missing devenvs",
			target: map[string]interface{}{
				"platforms":    []interface{}{"win64"},
				"optimization": "Debug",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := sr.ValidateAgainstSchema(ctx, "target", tt.target)
			if tt.wantErr && len(errs) == 0 {
				t.Error("Expected validation errors, got none")
			}
			for _, e := range errs {
				if strings.Contains(e.Error(), schemaFilePrefix) {
					t.Errorf("Expected no schema positions in %q", e.Error())
				}
			}
			if !tt.wantErr && len(errs) > 0 {
				t.Errorf("Expected no validation errors, got %v", errs)
			}
		})
	}
}

func TestSchemaRegistry_ValidateWorkspace(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	valid := map[string]interface{}{
		"workspace": "BirdGame",
		"projects": []interface{}{
			map[string]interface{}{
				"name": "BirdGame",
				"targets": []interface{}{
					map[string]interface{}{
						"platforms":    []interface{}{"win64"},
						"devenvs":      []interface{}{"vs2022"},
						"optimization": "Debug|Release",
					},
				},
				"configure": map[string]interface{}{
					"options": map[string]interface{}{
						"character_set":      "Unicode",
						"warnings_as_errors": true,
					},
					"dependencies": []interface{}{
						map[string]interface{}{"name": "Core", "mode": "public"},
					},
					"when": []interface{}{
						map[string]interface{}{
							"match":   map[string]interface{}{"optimization": "Debug"},
							"defines": []interface{}{"_DEBUG"},
						},
					},
				},
			},
		},
	}
	if errs := sr.ValidateAgainstSchema(ctx, "workspace", valid); len(errs) > 0 {
		t.Fatalf("Expected no errors, got %v", errs)
	}

	tests := []struct {
		name    string
		mutate  func(map[string]interface{})
		wantMsg string
	}{
		{
			name:    "unknown top-level key",
			mutate:  func(m map[string]interface{}) { m["resources"] = []interface{}{} },
			wantMsg: "resources",
		},
		{
			name: "bad dependency mode",
			mutate: func(m map[string]interface{}) {
				p := m["projects"].([]interface{})[0].(map[string]interface{})
				p["configure"].(map[string]interface{})["dependencies"] = []interface{}{
					map[string]interface{}{"name": "Core", "mode": "private"},
				}
			},
			wantMsg: "mode",
		},
		{
			name: "bad output type",
			mutate: func(m map[string]interface{}) {
				p := m["projects"].([]interface{})[0].(map[string]interface{})
				p["configure"].(map[string]interface{})["output_type"] = "Plugin"
			},
			wantMsg: "output_type",
		},
		{
			name:    "missing workspace name",
			mutate:  func(m map[string]interface{}) { delete(m, "workspace") },
			wantMsg: "workspace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := toRaw(valid)
			if err != nil {
				t.Fatalf("copy failed: %v", err)
			}
			tt.mutate(doc)

			errs := sr.ValidateAgainstSchema(ctx, "workspace", doc)
			if len(errs) == 0 {
				t.Fatal("Expected validation errors, got none")
			}
			found := false
			for _, e := range errs {
				if strings.Contains(e.Error(), tt.wantMsg) {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected an error mentioning %q, got %v", tt.wantMsg, errs)
			}
		})
	}
}

func TestSchemaRegistry_ListSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	schemas := sr.ListSchemas()
	if len(schemas) != 6 {
		t.Fatalf("Expected 6 schemas, got %d: %v", len(schemas), schemas)
	}
	for i := 1; i < len(schemas); i++ {
		if schemas[i-1] > schemas[i] {
			t.Errorf("Expected sorted names, got %v", schemas)
		}
	}
}

func TestSchemaRegistry_InvalidSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("broken", `#Broken: { field: }`, "#Broken"); err == nil {
		t.Error("Expected error for invalid CUE source")
	}
	if err := sr.RegisterSchema("missing", `#Other: string`, "#Missing"); err == nil {
		t.Error("Expected error for missing definition")
	}
	if errs := sr.ValidateAgainstSchema(context.Background(), "nope", map[string]interface{}{}); len(errs) != 1 {
		t.Errorf("Expected one error for unknown schema, got %v", errs)
	}
}
