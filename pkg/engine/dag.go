package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Edge is a dependency edge of one target's graph. From depends on To.
type Edge struct {
	From string         `json:"from"`
	To   string         `json:"to"`
	Mode DependencyMode `json:"mode"`
}

// ResolvedNode is one project of a resolved target graph.
type ResolvedNode struct {
	Name string

	// Level is the Kahn level; level 0 has no dependencies.
	Level int

	// Base is the frozen configure output. It is never modified.
	Base *Configuration

	// Config is the frozen configuration after export propagation.
	Config *Configuration

	// Dependencies are the direct edges, sorted by name.
	Dependencies []Dependency

	// Closure lists every transitive dependency in topological order.
	Closure []string
}

// ResolvedTarget is the dependency-ordered project graph of one target.
type ResolvedTarget struct {
	Target Target
	Nodes  map[string]*ResolvedNode

	// Order is a topological order, dependencies first, lexical within a level.
	Order []string

	// Levels groups Order by Kahn level.
	Levels [][]string

	// Edges lists every live edge sorted by (From, To).
	Edges []Edge
}

// Node returns a resolved node by name.
func (r *ResolvedTarget) Node(name string) (*ResolvedNode, bool) {
	n, ok := r.Nodes[name]
	return n, ok
}

// Resolver orders one target's project graph and propagates exported options
// along its edges.
type Resolver struct {
	graph  *ProjectGraph
	logger zerolog.Logger
}

// NewResolver creates a resolver over a built project graph.
func NewResolver(graph *ProjectGraph, logger zerolog.Logger) *Resolver {
	return &Resolver{
		graph:  graph,
		logger: logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve builds the graph of target t reachable from roots. With no roots,
// every project that configured t successfully is included.
//
// Errors are scoped to t: an edge to an unknown project, to a project that
// does not declare t, or to a project whose configure pass failed for t
// yields UnresolvedDependencyError; a cycle yields CyclicDependencyError.
func (r *Resolver) Resolve(t Target, roots []string) (*ResolvedTarget, error) {
	return r.ResolveFor("", t, roots)
}

// ResolveFor is Resolve on behalf of requester, usually a solution. Errors
// about the roots themselves name requester as the dependent entity.
func (r *Resolver) ResolveFor(requester string, t Target, roots []string) (*ResolvedTarget, error) {
	if len(roots) == 0 {
		for _, name := range r.graph.Names() {
			if _, ok := r.graph.Nodes[name].Configs[t]; ok {
				roots = append(roots, name)
			}
		}
	}

	configs, edges, err := r.closure(requester, t, roots)
	if err != nil {
		return nil, err
	}

	if cycle := detectCycle(configs); cycle != nil {
		return nil, &CyclicDependencyError{Target: t, Cycle: cycle}
	}

	levels := computeLevels(configs)

	res := &ResolvedTarget{
		Target: t,
		Nodes:  make(map[string]*ResolvedNode, len(configs)),
		Levels: levels,
		Edges:  edges,
	}
	for level, names := range levels {
		for _, name := range names {
			res.Order = append(res.Order, name)
			deps := sortedDeps(configs[name])
			res.Nodes[name] = &ResolvedNode{
				Name:         name,
				Level:        level,
				Base:         configs[name],
				Dependencies: deps,
			}
		}
	}

	position := make(map[string]int, len(res.Order))
	for i, name := range res.Order {
		position[name] = i
	}

	for _, name := range res.Order {
		node := res.Nodes[name]
		node.Config = propagate(node, res.Nodes)
		node.Closure = transitiveClosure(node, res.Nodes, position)
	}

	r.logger.Debug().
		Str("target", t.String()).
		Int("projects", len(res.Order)).
		Int("levels", len(levels)).
		Msg("target resolved")

	return res, nil
}

// closure collects the configurations reachable from roots for target t.
func (r *Resolver) closure(requester string, t Target, roots []string) (map[string]*Configuration, []Edge, error) {
	configs := make(map[string]*Configuration)
	var edges []Edge
	var errs ErrorList

	queue := append([]string(nil), roots...)
	sort.Strings(queue)
	for _, root := range queue {
		if err := r.lookup(t, root, requester); err != nil {
			errs.appendErr(err)
		}
	}
	if len(errs) > 0 {
		return nil, nil, errs
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if _, seen := configs[name]; seen {
			continue
		}
		conf := r.graph.Nodes[name].Configs[t]
		configs[name] = conf

		for _, dep := range sortedDeps(conf) {
			if err := r.lookup(t, dep.Name, name); err != nil {
				errs.appendErr(err)
				continue
			}
			edges = append(edges, Edge{From: name, To: dep.Name, Mode: dep.Mode})
			if _, seen := configs[dep.Name]; !seen {
				queue = append(queue, dep.Name)
			}
		}
	}
	if len(errs) > 0 {
		return nil, nil, errs
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return configs, edges, nil
}

// requestedRoots names the dependent of roots resolved without a requester.
const requestedRoots = "(roots)"

// lookup checks that project name configured t successfully.
func (r *Resolver) lookup(t Target, name, dependent string) error {
	entity := dependent
	if entity == "" {
		entity = requestedRoots
	}
	unresolved := func(reason string) error {
		return &UnresolvedDependencyError{Entity: entity, Dependency: name, Target: t, Reason: reason}
	}

	node, ok := r.graph.Nodes[name]
	if !ok {
		return unresolved("unknown project")
	}
	if !node.HasTarget(t) {
		return unresolved("project does not declare target")
	}
	if _, ok := node.Configs[t]; !ok {
		return unresolved("project failed to configure target")
	}
	return nil
}

// detectCycle runs a DFS in lexical order and returns the first cycle found
// as a closed path, e.g. [X Y X].
func detectCycle(configs map[string]*Configuration) []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, dep := range sortedDeps(configs[name]) {
			if !visited[dep.Name] {
				if cycle := visit(dep.Name); cycle != nil {
					return cycle
				}
			} else if onStack[dep.Name] {
				for i, n := range path {
					if n == dep.Name {
						cycle := append([]string(nil), path[i:]...)
						return append(cycle, dep.Name)
					}
				}
			}
		}

		onStack[name] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range names {
		if !visited[name] {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// computeLevels assigns Kahn levels. Level 0 holds projects without
// dependencies; names inside a level are sorted.
func computeLevels(configs map[string]*Configuration) [][]string {
	inDegree := make(map[string]int, len(configs))
	dependents := make(map[string][]string, len(configs))
	for name, conf := range configs {
		deps := conf.Dependencies()
		inDegree[name] = len(deps)
		for _, d := range deps {
			dependents[d.Name] = append(dependents[d.Name], name)
		}
	}

	var current []string
	for name, degree := range inDegree {
		if degree == 0 {
			current = append(current, name)
		}
	}

	var levels [][]string
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)

		var next []string
		for _, name := range current {
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}
	return levels
}

// exportOrder fixes the category order used when merging exports.
var exportOrder = []Category{IncludePaths, Defines, LibraryPaths, LibraryFiles}

// propagate returns the frozen resolved configuration of node. Own values
// come first, then each dependency's exports in lexical dependency order, so
// the result does not depend on the order siblings were declared in.
func propagate(node *ResolvedNode, nodes map[string]*ResolvedNode) *Configuration {
	out := node.Base.Clone()
	for _, dep := range node.Dependencies {
		depNode := nodes[dep.Name]
		for _, cat := range exportOrder {
			if dep.Mode == DependencyLink && !cat.linkOnly() {
				continue
			}
			out.merge(cat, depNode.Config.Exports(cat), true)
		}

		if depNode.Base.ScalarOr(OutputType, "") == OutputTypeExecutable.Value {
			continue
		}
		out.merge(LibraryFiles, []string{OutputLibraryName(depNode.Base)}, true)
		if p, ok := depNode.Base.Scalar(OutputPath); ok {
			out.merge(LibraryPaths, []string{p}, true)
		}
	}
	_ = out.Freeze()
	return out
}

// OutputLibraryName is the library a dependent links for conf's project.
func OutputLibraryName(conf *Configuration) string {
	return conf.ScalarOr(OutputFileName, conf.Entity())
}

func transitiveClosure(node *ResolvedNode, nodes map[string]*ResolvedNode, position map[string]int) []string {
	seen := make(map[string]bool)
	for _, dep := range node.Dependencies {
		seen[dep.Name] = true
		for _, n := range nodes[dep.Name].Closure {
			seen[n] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return position[out[i]] < position[out[j]] })
	return out
}

func sortedDeps(conf *Configuration) []Dependency {
	deps := conf.Dependencies()
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	return deps
}

// ToDOT renders the resolved graph in Graphviz DOT format, one cluster per level.
func (r *ResolvedTarget) ToDOT() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("digraph %q {\n", r.Target.Slug()))
	sb.WriteString("  rankdir=BT;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range r.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("    %q;\n", name))
		}
		sb.WriteString("  }\n\n")
	}

	for _, e := range r.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", e.From, e.To, edgeStyle(e.Mode)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func edgeStyle(mode DependencyMode) string {
	switch mode {
	case DependencyLink:
		return "style=dashed, color=gray"
	default:
		return "style=solid, color=black"
	}
}
