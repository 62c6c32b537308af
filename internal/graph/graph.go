// Package graph owns the directed acyclic graph of projects and their
// internal dependency edges. Projects live in a dense arena indexed by
// project ID; the graph hands out IDs and resolves them, and all
// cross-project references go through IDs rather than pointers.
package graph

import (
	"fmt"
	"sort"
	"strings"

	"cascade/internal/project"
)

// CycleError reports that the internal dependency relation is not acyclic.
// The graph is never partially processed when this is returned.
type CycleError struct {
	ProjectName string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("project %q participates in an internal dependency cycle", e.ProjectName)
}

// Graph is the arena of projects plus their dependency structure.
type Graph struct {
	projects []*project.Project

	// pendingDeps holds each project's dependency builders until
	// CompleteLoading resolves text targets into IDs.
	pendingDeps [][]project.DependencyBuilder

	loaded bool
}

// New returns an empty project graph.
func New() *Graph {
	return &Graph{}
}

// Len returns the number of projects in the graph.
func (g *Graph) Len() int {
	return len(g.projects)
}

// AddProject finalizes a builder into the arena and returns its new ID.
func (g *Graph) AddProject(b *project.Builder) (project.ID, error) {
	id := project.ID(len(g.projects))

	name := ""
	if len(b.Qnames) > 0 {
		name = b.Qnames[0]
	}

	proj, err := b.Finalize(id, name)
	if err != nil {
		return 0, err
	}

	g.projects = append(g.projects, proj)
	g.pendingDeps = append(g.pendingDeps, b.Deps)
	return id, nil
}

// Lookup returns the project for an ID. IDs are only ever minted by
// AddProject, so an out-of-range ID is a programming error and panics.
func (g *Graph) Lookup(id project.ID) *project.Project {
	return g.projects[id]
}

// ProjectByID implements project.Workspace for rewriters.
func (g *Graph) ProjectByID(id project.ID) *project.Project {
	return g.Lookup(id)
}

// Projects returns the arena in insertion order.
func (g *Graph) Projects() []*project.Project {
	return g.projects
}

// CompleteLoading finishes graph construction after every loader has run:
// user-facing names are made unique, text dependency targets are resolved to
// IDs, and parent projects stop matching paths owned by nested sub-projects.
func (g *Graph) CompleteLoading() error {
	if g.loaded {
		return nil
	}

	if err := g.assignUserFacingNames(); err != nil {
		return err
	}

	for i, deps := range g.pendingDeps {
		for _, db := range deps {
			target, err := g.resolveDepTarget(&db)
			if err != nil {
				return fmt.Errorf("loading dependencies of %q: %w", g.projects[i].UserFacingName, err)
			}
			g.projects[i].InternalDeps = append(g.projects[i].InternalDeps, project.Dependency{
				Target:  target,
				Literal: db.Literal,
				Req:     db.Req,
			})
		}
	}
	g.pendingDeps = nil

	// A project nested under another project's prefix owns its own paths.
	for _, outer := range g.projects {
		for _, inner := range g.projects {
			if inner == outer || inner.Prefix == "" {
				continue
			}
			if strings.HasPrefix(inner.Prefix, outer.Prefix) {
				outer.RepoPaths.Exclude(inner.Prefix)
			}
		}
	}

	g.loaded = true
	return nil
}

func (g *Graph) resolveDepTarget(db *project.DependencyBuilder) (project.ID, error) {
	if db.TargetID != nil {
		return *db.TargetID, nil
	}
	for _, p := range g.projects {
		if p.UserFacingName == db.TargetText || p.QualifiedNames()[0] == db.TargetText {
			return p.ID(), nil
		}
	}
	return 0, fmt.Errorf("dependency target %q does not name a project in this repository", db.TargetText)
}

// assignUserFacingNames gives every project a unique display name, appending
// qualifiers (most commonly the ecosystem tag) only where the bare name
// collides.
func (g *Graph) assignUserFacingNames() error {
	counts := make(map[string]int)
	for _, p := range g.projects {
		counts[p.QualifiedNames()[0]]++
	}

	seen := make(map[string]*project.Project)
	for _, p := range g.projects {
		qnames := p.QualifiedNames()
		name := qnames[0]
		if counts[name] > 1 && len(qnames) > 1 {
			name = strings.Join(qnames[:2], ":")
		}
		if prior, dup := seen[name]; dup {
			return fmt.Errorf("cannot disambiguate projects %v and %v", prior.QualifiedNames(), qnames)
		}
		seen[name] = p
		p.UserFacingName = name
	}
	return nil
}

// Toposort returns the project IDs ordered so that every dependency is
// visited strictly before all of its dependents. Ties among simultaneously
// ready projects break by insertion order, so the same input always yields
// the same ordering.
func (g *Graph) Toposort() ([]project.ID, error) {
	n := len(g.projects)
	indegree := make([]int, n)
	dependents := make([][]project.ID, n)

	for _, p := range g.projects {
		for _, dep := range p.InternalDeps {
			indegree[p.ID()]++
			dependents[dep.Target] = append(dependents[dep.Target], p.ID())
		}
	}

	var ready []project.ID
	for id := 0; id < n; id++ {
		if indegree[id] == 0 {
			ready = append(ready, project.ID(id))
		}
	}

	order := make([]project.ID, 0, n)
	for len(ready) > 0 {
		// Lowest ID first keeps the order deterministic.
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, dependent := range dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) < n {
		return nil, &CycleError{ProjectName: g.projects[g.findCycleMember(indegree)].UserFacingName}
	}

	return order, nil
}

// findCycleMember identifies a project that is actually on a dependency
// cycle, given the residual indegrees of an incomplete Kahn run. A residual
// project may merely depend on a cycle without being part of one, so the
// walk follows residual dependency edges until a project repeats; the
// repeated project closes a loop and is therefore a cycle member.
func (g *Graph) findCycleMember(indegree []int) project.ID {
	var cur project.ID
	for id := range indegree {
		if indegree[id] > 0 {
			cur = project.ID(id)
			break
		}
	}

	visited := make(map[project.ID]bool)
	for !visited[cur] {
		visited[cur] = true
		for _, dep := range g.projects[cur].InternalDeps {
			if indegree[dep.Target] > 0 {
				cur = dep.Target
				break
			}
		}
	}
	return cur
}

// QueryNames maps user-supplied project names to IDs. With no names, every
// project is selected, in insertion order.
func (g *Graph) QueryNames(names []string) ([]project.ID, error) {
	if len(names) == 0 {
		ids := make([]project.ID, len(g.projects))
		for i := range g.projects {
			ids[i] = project.ID(i)
		}
		return ids, nil
	}

	var ids []project.ID
	for _, name := range names {
		found := false
		for _, p := range g.projects {
			if p.UserFacingName == name {
				ids = append(ids, p.ID())
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("no project named %q", name)
		}
	}
	return ids, nil
}
