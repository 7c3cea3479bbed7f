package dag

import (
	"fmt"

	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
)

// DefaultGroup holds every object declared without a group.
const DefaultGroup = "default"

// Group is one resolved object group.
type Group struct {
	ID string
	// Depends and Dependents are direct edges in declaration order.
	Depends    []string
	Dependents []string
	// Objects are the members in declaration order.
	Objects []*config.Object
}

// Plan is the validated object-group DAG of one backup task. It is read-only
// once returned by Resolve.
type Plan struct {
	groups []*Group
	byID   map[string]*Group
	graph  *Graph
}

// Resolve validates groups and objects and builds the task's plan.
func Resolve(groups []*config.ObjectGroup, objects []*config.Object) (*Plan, error) {
	p := &Plan{
		byID:  make(map[string]*Group, len(groups)+1),
		graph: New(),
	}

	for _, og := range groups {
		if og.ID == "" {
			return nil, errs.Configf("object group with empty id")
		}
		if _, dup := p.byID[og.ID]; dup {
			return nil, errs.Configf("duplicate object group %q", og.ID)
		}
		for _, dep := range og.Depends {
			if dep == og.ID {
				return nil, errs.Configf("object group %q depends on itself", og.ID)
			}
			if _, ok := p.byID[dep]; !ok {
				return nil, errs.Configf("object group %q depends on undeclared group %q", og.ID, dep)
			}
		}

		g := &Group{ID: og.ID}
		p.groups = append(p.groups, g)
		p.byID[og.ID] = g
		p.graph.AddNode(og.ID)
		for _, dep := range og.Depends {
			if err := p.graph.AddEdge(dep, og.ID); err != nil {
				return nil, errs.Configf("object group %q: %v", og.ID, err)
			}
		}
	}

	paths := make(map[string]bool, len(objects))
	for _, obj := range objects {
		if obj.Path == "" {
			return nil, errs.Configf("object with empty path")
		}
		if paths[obj.Path] {
			return nil, errs.Configf("duplicate object path %q", obj.Path)
		}
		paths[obj.Path] = true
		if len(obj.Pipeline) == 0 {
			return nil, errs.Configf("object %q: empty pipeline", obj.Path)
		}

		gid := obj.Group
		if gid == "" {
			gid = DefaultGroup
		}
		g, ok := p.byID[gid]
		if !ok {
			if obj.Group != "" {
				return nil, errs.Configf("object %q: unknown group %q", obj.Path, obj.Group)
			}
			g = &Group{ID: DefaultGroup}
			p.groups = append(p.groups, g)
			p.byID[DefaultGroup] = g
			p.graph.AddNode(DefaultGroup)
		}
		g.Objects = append(g.Objects, obj)
	}

	if err := p.link(); err != nil {
		return nil, err
	}
	return p, nil
}

// link checks the group graph for cycles and fills in each group's edges.
// Declaration order already rules out cycles; the graph is checked anyway
// because execution relies on it.
func (p *Plan) link() error {
	if err := p.graph.DetectCycles(); err != nil {
		return fmt.Errorf("%w: object groups: %w", errs.ErrConfig, err)
	}
	for _, g := range p.groups {
		g.Depends, _ = p.graph.Dependencies(g.ID)
		g.Dependents, _ = p.graph.Dependents(g.ID)
	}
	return nil
}

// Groups returns the groups in declaration order; the implicit default
// group, when used and not declared, comes last.
func (p *Plan) Groups() []*Group {
	return p.groups
}

// Group returns the group with the given id.
func (p *Plan) Group(id string) (*Group, bool) {
	g, ok := p.byID[id]
	return g, ok
}

// Ancestors returns every group that must fully succeed before id may start.
func (p *Plan) Ancestors(id string) ([]string, error) {
	return p.graph.Ancestors(id)
}

// Len returns the number of objects in the plan.
func (p *Plan) Len() int {
	n := 0
	for _, g := range p.groups {
		n += len(g.Objects)
	}
	return n
}

// Objects returns every object in group order.
func (p *Plan) Objects() []*config.Object {
	out := make([]*config.Object, 0, p.Len())
	for _, g := range p.groups {
		out = append(out, g.Objects...)
	}
	return out
}
