package project

import (
	"fmt"

	"cascade/internal/version"
)

// Builder accumulates project facts while an ecosystem loader inspects the
// repository, before the project is finalized into the graph arena.
type Builder struct {
	Qnames    []string
	Version   version.Version
	Prefix    *string
	Rewriters []Rewriter
	Deps      []DependencyBuilder
}

// NewBuilder returns an empty project builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// DependencyBuilder is a dependency edge whose target may still be expressed
// as text rather than a known project ID; text targets are resolved when
// loading completes.
type DependencyBuilder struct {
	// TargetText names the target for cross-ecosystem references; resolved
	// against user-facing names after all projects are loaded.
	TargetText string

	// TargetID is set when the loader already knows the target, which is the
	// common case for dependencies within one ecosystem.
	TargetID *ID

	Literal string
	Req     DepRequirement
}

// Finalize validates the builder and produces the arena-owned project.
// Dependencies are attached separately once their targets are resolved.
func (b *Builder) Finalize(id ID, userFacingName string) (*Project, error) {
	if len(b.Qnames) == 0 {
		return nil, fmt.Errorf("could not load project %q: never figured out its naming", userFacingName)
	}
	if b.Version == nil {
		return nil, fmt.Errorf("could not load project %q: never figured out its version", userFacingName)
	}
	if b.Prefix == nil {
		return nil, fmt.Errorf("could not load project %q: never figured out its directory prefix", userFacingName)
	}

	return &Project{
		id:             id,
		qnames:         b.Qnames,
		UserFacingName: userFacingName,
		Version:        b.Version,
		Prefix:         *b.Prefix,
		RepoPaths:      NewPrefixMatcher(*b.Prefix),
		Rewriters:      b.Rewriters,
	}, nil
}
