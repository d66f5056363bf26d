package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/rs/zerolog"

	"github.com/slngen/slngen/pkg/engine"
)

// Engine evaluates Rego policies against resolved configurations. It
// implements engine.PolicyChecker.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

var _ engine.PolicyChecker = (*Engine)(nil)

type compiledPolicy struct {
	policy *Policy
	deny   rego.PreparedEvalQuery
	warn   rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return e, nil
}

// Check implements engine.PolicyChecker. Findings are sorted by policy
// then message.
func (e *Engine) Check(ctx context.Context, input engine.PolicyInput) ([]engine.PolicyFinding, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var findings []engine.PolicyFinding
	for _, name := range e.namesLocked() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		denied, err := evalSet(ctx, cp.deny, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		for _, d := range denied {
			findings = append(findings, newFinding(cp.policy, d, cp.policy.Severity))
		}

		warned, err := evalSet(ctx, cp.warn, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		for _, w := range warned {
			f := newFinding(cp.policy, w, SeverityWarning)
			f.Severity = engine.PolicySeverityWarning
			findings = append(findings, f)
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Policy != findings[j].Policy {
			return findings[i].Policy < findings[j].Policy
		}
		return findings[i].Message < findings[j].Message
	})

	if len(findings) > 0 {
		e.logger.Debug().
			Str("entity", input.Entity).
			Str("target", input.Target["slug"]).
			Int("findings", len(findings)).
			Msg("Policy findings")
	}
	return findings, nil
}

// evalSet evaluates a set-valued rule. An undefined rule yields nothing.
func evalSet(ctx context.Context, q rego.PreparedEvalQuery, input engine.PolicyInput) ([]interface{}, error) {
	results, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}
	var out []interface{}
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		if set, ok := result.Expressions[0].Value.([]interface{}); ok {
			out = append(out, set...)
		}
	}
	return out, nil
}

// newFinding converts one rule entry. Entries are strings or objects with
// message and optional severity.
func newFinding(p *Policy, result interface{}, severity Severity) engine.PolicyFinding {
	f := engine.PolicyFinding{
		Policy:   p.Name,
		Severity: severity.engine(),
	}

	switch v := result.(type) {
	case string:
		f.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			f.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			if parsed, err := ParseSeverity(sev); err == nil {
				f.Severity = parsed.engine()
			}
		}
	default:
		f.Message = fmt.Sprintf("%v", result)
	}

	return f
}

// LoadPolicies loads .rego and .json policy files and directories.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded")

	return nil
}

// AddPolicy compiles and adds one policy, replacing any with the same name.
func (e *Engine) AddPolicy(ctx context.Context, p Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileAndStorePolicy(ctx, &p)
}

// compileAndStorePolicy parses the module and prepares its deny and warn
// queries. Callers hold mu or own e exclusively.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name+".rego", policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	pkg := module.Package.Path.String()

	prepare := func(rule string) (rego.PreparedEvalQuery, error) {
		return rego.New(
			rego.ParsedModule(module),
			rego.Query(pkg+"."+rule),
		).PrepareForEval(ctx)
	}

	deny, err := prepare("deny")
	if err != nil {
		return fmt.Errorf("failed to prepare deny query: %w", err)
	}
	warn, err := prepare("warn")
	if err != nil {
		return fmt.Errorf("failed to prepare warn query: %w", err)
	}

	if policy.Severity == "" {
		policy.Severity = SeverityError
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy: policy,
		deny:   deny,
		warn:   warn,
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", pkg).
		Msg("Policy compiled")

	return nil
}

func (e *Engine) namesLocked() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.namesLocked() {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Debug().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")

	return nil
}
