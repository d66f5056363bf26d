package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// EntityNode holds the per-target configure results of one project or solution.
type EntityNode struct {
	Name           string
	Kind           EntityKind
	SourceRootPath string

	// Targets is the expanded matrix in matrix order.
	Targets []Target

	// Configs holds the frozen configuration of every target whose configure
	// pass succeeded.
	Configs map[Target]*Configuration

	// Errors holds the failure of every target whose configure pass did not.
	Errors map[Target]error

	// Diagnostics collects warnings from every target, in matrix order.
	Diagnostics []Diagnostic
}

// Config returns the frozen configuration of target t.
func (n *EntityNode) Config(t Target) (*Configuration, bool) {
	c, ok := n.Configs[t]
	return c, ok
}

// HasTarget reports whether the entity declares t.
func (n *EntityNode) HasTarget(t Target) bool {
	return containsTarget(n.Targets, t)
}

// ProjectGraph is the configured set of projects. It is read-only once built
// and shared by every resolution and emission worker.
type ProjectGraph struct {
	Nodes map[string]*EntityNode
}

// Node returns a project node by name.
func (g *ProjectGraph) Node(name string) (*EntityNode, bool) {
	n, ok := g.Nodes[name]
	return n, ok
}

// Names returns every project name sorted.
func (g *ProjectGraph) Names() []string {
	out := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Errors returns every configure failure, sorted by project then matrix order.
func (g *ProjectGraph) Errors() ErrorList {
	var out ErrorList
	for _, name := range g.Names() {
		n := g.Nodes[name]
		for _, t := range n.Targets {
			if err, ok := n.Errors[t]; ok {
				out.appendErr(err)
			}
		}
	}
	return out
}

// GraphBuilder runs every project's configure callback once per target.
type GraphBuilder struct {
	workers int
	logger  zerolog.Logger
}

// NewGraphBuilder creates a graph builder with the given pool size.
// workers <= 0 selects DefaultWorkers.
func NewGraphBuilder(workers int, logger zerolog.Logger) *GraphBuilder {
	return &GraphBuilder{
		workers: workers,
		logger:  logger.With().Str("component", "graph-builder").Logger(),
	}
}

// Build configures every registered project. Projects run in parallel;
// targets of one project run sequentially in matrix order. Results are
// merged into the graph only after every worker finished.
func (b *GraphBuilder) Build(ctx context.Context, reg *Registry) (*ProjectGraph, error) {
	projects := reg.Projects()
	nodes := make([]*EntityNode, len(projects))

	err := runPool(ctx, b.workers, projects,
		func(ctx context.Context, i int, p *Project) {
			nodes[i] = ConfigureEntity(p.Name, EntityProject, p.SourceRootPath, p.Targets(), p.Configure, b.logger)
		},
		func(i int, p *Project, r interface{}) {
			nodes[i] = &EntityNode{
				Name:    p.Name,
				Kind:    EntityProject,
				Configs: map[Target]*Configuration{},
				Errors:  map[Target]error{},
			}
			b.logger.Error().Str("entity", p.Name).Interface("panic", r).Msg("project expansion panicked")
		},
	)
	if err != nil {
		return nil, err
	}

	graph := &ProjectGraph{Nodes: make(map[string]*EntityNode, len(nodes))}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		graph.Nodes[n.Name] = n
	}
	return graph, nil
}

// ConfigureEntity invokes configure once per target, sequentially in the
// given order, each time with a fresh Configuration and an immutable
// snapshot. A panic or a conflict aborts only that target.
func ConfigureEntity(
	name string,
	kind EntityKind,
	sourceRoot string,
	targets []Target,
	configure ConfigureFunc,
	logger zerolog.Logger,
) *EntityNode {
	node := &EntityNode{
		Name:           name,
		Kind:           kind,
		SourceRootPath: sourceRoot,
		Targets:        append([]Target(nil), targets...),
		Configs:        make(map[Target]*Configuration, len(targets)),
		Errors:         make(map[Target]error),
	}

	if len(targets) == 0 {
		logger.Info().Str("entity", name).Str("kind", string(kind)).
			Msg("entity declares no targets, skipping")
		return node
	}

	for _, t := range targets {
		snapshot := ConfigureContext{
			Target:         t,
			Name:           name,
			Kind:           kind,
			SourceRootPath: sourceRoot,
			targets:        node.Targets,
		}

		conf, err := invokeConfigure(configure, snapshot)
		if conf != nil {
			node.Diagnostics = append(node.Diagnostics, conf.Diagnostics()...)
			for _, d := range conf.Diagnostics() {
				logger.Warn().Str("entity", name).Str("target", t.String()).
					Str("category", string(d.Category)).Msg(d.Message)
			}
		}
		if err != nil {
			node.Errors[t] = err
			logger.Error().Err(err).Str("entity", name).Str("target", t.String()).
				Msg("configure failed")
			continue
		}
		node.Configs[t] = conf
	}
	return node
}

func invokeConfigure(configure ConfigureFunc, snapshot ConfigureContext) (conf *Configuration, err error) {
	conf = NewConfiguration(snapshot.Name, snapshot.Target)

	defer func() {
		if r := recover(); r != nil {
			err = NewDeclarationError(fmt.Sprintf("configure callback panicked: %v", r), nil).
				WithEntity(snapshot.Name).WithTarget(snapshot.Target).WithCode(ErrCodeCallbackPanic)
		}
	}()

	configure(conf, snapshot)
	if ferr := conf.Freeze(); ferr != nil {
		return conf, ferr
	}
	return conf, nil
}
