package policy

// BuiltinPolicies returns the policies every checker starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		warningsAsErrorsPolicy(),
		outputCollisionPolicy(),
	}
}

// warningsAsErrorsPolicy flags shipping targets that fail on warnings.
func warningsAsErrorsPolicy() Policy {
	return Policy{
		Name:        "warnings-as-errors",
		Description: "Warns when warnings are treated as errors outside debug targets",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package slngen.policies.warnings

import rego.v1

warn contains msg if {
	input.kind == "project"
	input.config["warnings-as-errors"] == "true"
	input.target.optimization != "Debug"
	msg := sprintf("%s treats warnings as errors in %s; a new compiler warning will break this build",
		[input.entity, input.target.optimization])
}
`,
	}
}

// outputCollisionPolicy rejects projects whose targets would all build the
// same output file.
func outputCollisionPolicy() Policy {
	return Policy{
		Name:        "output-collision",
		Description: "Requires output_file_name when output_path does not vary by target",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package slngen.policies.output

import rego.v1

target_specific(path) if contains(lower(path), lower(input.target.slug))

target_specific(path) if contains(lower(path), lower(input.target.optimization))

deny contains msg if {
	input.kind == "project"
	path := input.config["output-path"]
	not input.config["output-file-name"]
	not target_specific(path)
	msg := sprintf("%s sets output_path %q for every target without output_file_name; outputs of %s would collide",
		[input.entity, path, input.target.slug])
}
`,
	}
}
