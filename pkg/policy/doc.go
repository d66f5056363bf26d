// Package policy lints resolved configurations with OPA Rego policies.
//
// The generator calls Engine.Check once per (project, target) after
// dependency propagation. Each policy is a Rego module; entries of its deny
// set become findings with the policy's severity and entries of its warn
// set become warnings. Error findings reject that (project, target) with a
// PolicyViolationError. Warnings are logged and reported.
//
// The input document is:
//
//	{
//	  "entity": "BirdGame",
//	  "kind":   "project",
//	  "target": {"platform": "win64", "devenv": "vs2022", "optimization": "Release", "slug": "win64_vs2022_release"},
//	  "config": {"warnings-as-errors": "true", "defines": ["NDEBUG"], "exports": {...}, "dependencies": [...]}
//	}
//
// Built-in policies:
//
//   - warnings-as-errors: warns when a non-debug target treats warnings as errors
//   - output-collision: rejects an output_path shared by every target when no
//     output_file_name distinguishes them
//
// Custom policies load from .rego files named after the policy, or from
// .json definitions carrying name, rego and severity. A leading
// "# severity: warning" comment in a .rego file downgrades its deny entries.
package policy
