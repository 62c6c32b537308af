// Package project defines the data model for one versioned unit within the
// repository: its identity, its current version, and its internal dependency
// edges on other projects in the same repository.
package project

import (
	"fmt"
	"strings"

	"cascade/internal/version"
)

// ID is the internal, dense identifier for a project in one session. IDs
// index the graph's backing arena, are never reused within a session, and
// must not be persisted.
type ID int

// CommitID is a git commit hash in hex form. Kept as an opaque string so the
// model does not depend on the repository layer.
type CommitID string

// Short returns an abbreviated hash for display.
func (c CommitID) Short() string {
	if len(c) > 12 {
		return string(c[:12])
	}
	return string(c)
}

// Project is one versioned unit. Projects are owned by the graph arena and
// mutated in place only by the session's version-resolution pass.
type Project struct {
	id ID

	// qnames lists the project's qualified names, most specific first. The
	// first entry is the name users recognize; later entries (typically the
	// ecosystem tag) disambiguate same-named projects across ecosystems.
	qnames []string

	// UserFacingName is the unique display name, computed after all projects
	// are loaded.
	UserFacingName string

	// Version is the project's current version. The concrete grammar depends
	// on the ecosystem that loaded the project.
	Version version.Version

	// VersionAge counts the consecutive release commits for which the
	// version has not changed. Zero means the version was assigned in the
	// most recent release.
	VersionAge int

	// Prefix is the project's path prefix in the repository: empty for the
	// repo root, otherwise ending in a slash.
	Prefix string

	// RepoPaths matches the repository paths considered to affect this
	// project, excluding any sub-projects anchored below it.
	RepoPaths *PathMatcher

	// Rewriters persist resolved versions and requirements into this
	// project's manifest files.
	Rewriters []Rewriter

	// InternalDeps are this project's dependency edges on other projects in
	// the repository.
	InternalDeps []Dependency

	// ResolvedReqs holds the per-edge minimum version requirements computed
	// by the version-resolution pass.
	ResolvedReqs []ResolvedRequirement
}

// ID returns the project's arena identifier.
func (p *Project) ID() ID {
	return p.id
}

// QualifiedNames returns the project's qualified name list, most specific
// first.
func (p *Project) QualifiedNames() []string {
	return p.qnames
}

// Slug returns the name used in release tag names: the user-facing name with
// characters that are awkward in git refs replaced.
func (p *Project) Slug() string {
	slug := strings.ReplaceAll(p.UserFacingName, ":", "-")
	return strings.ReplaceAll(slug, " ", "-")
}

// Dependency is one internal dependency edge.
type Dependency struct {
	// Target is the project depended upon.
	Target ID

	// Literal is the requirement text as written in the manifest. On the
	// main branch this is normally a development sentinel like 0.0.0-dev.0
	// so that everyday builds work.
	Literal string

	// Req is the author's intent for the minimum compatible version,
	// expressed in terms of repository history rather than version numbers.
	Req DepRequirement

	// ResolvedVersion is filled in when Req is a commit reference that has
	// been resolved to a concrete version of the target.
	ResolvedVersion version.Version
}

// DepRequirementKind tags a DepRequirement.
type DepRequirementKind int

const (
	// ReqCommit pins the oldest compatible version to a point in repository
	// history.
	ReqCommit DepRequirementKind = iota
	// ReqManual is an explicit requirement string used verbatim.
	ReqManual
	// ReqUnavailable means no requirement could be determined. Loading
	// continues; the edge only becomes fatal if a release actually needs it.
	ReqUnavailable
)

// DepRequirement is the logical expression of an internal dependency
// requirement.
type DepRequirement struct {
	Kind   DepRequirementKind
	Commit CommitID // valid for ReqCommit
	Manual string   // valid for ReqManual
}

// CommitRequirement pins a dependency to a commit in history.
func CommitRequirement(c CommitID) DepRequirement {
	return DepRequirement{Kind: ReqCommit, Commit: c}
}

// ManualRequirement carries an explicit requirement literal.
func ManualRequirement(text string) DepRequirement {
	return DepRequirement{Kind: ReqManual, Manual: text}
}

// UnavailableRequirement marks an edge whose requirement is unknown.
func UnavailableRequirement() DepRequirement {
	return DepRequirement{Kind: ReqUnavailable}
}

func (r DepRequirement) String() string {
	switch r.Kind {
	case ReqCommit:
		return fmt.Sprintf("%s (commit)", r.Commit.Short())
	case ReqManual:
		return fmt.Sprintf("%s (manual)", r.Manual)
	default:
		return "(unavailable)"
	}
}

// AvailabilityKind tags a CommitAvailability verdict.
type AvailabilityKind int

const (
	// NotAvailable: the referenced commit is not covered by any prior
	// release and the target is not part of the current batch.
	NotAvailable AvailabilityKind = iota
	// ExistingRelease: a prior release at or after the referenced commit
	// provides the version floor.
	ExistingRelease
	// NewRelease: the target is being released in the same batch; its new
	// version becomes the floor once assigned.
	NewRelease
)

// CommitAvailability is the resolved counterpart of a commit-pinned
// DepRequirement.
type CommitAvailability struct {
	Kind    AvailabilityKind
	Version version.Version // valid for ExistingRelease
}

func (a CommitAvailability) String() string {
	switch a.Kind {
	case ExistingRelease:
		return fmt.Sprintf("existing release %s", a.Version)
	case NewRelease:
		return "new release in this batch"
	default:
		return "not available"
	}
}

// ResolvedRequirement records the minimum version a dependent should declare
// on one internal dependency.
type ResolvedRequirement struct {
	Target     ID
	MinVersion version.Version
}

// Rewriter persists a project's assigned version and resolved requirements
// into its ecosystem's manifest files. Implementations must replace files
// atomically (write a temporary file, then rename over the target) and
// return the repo-relative paths they touched.
type Rewriter interface {
	Rewrite(ws Workspace, proj *Project) ([]string, error)
}

// Workspace is the narrow view of the session that rewriters need.
type Workspace interface {
	// WorkdirPath resolves a repo-relative path to a filesystem path in the
	// working tree.
	WorkdirPath(repoPath string) string

	// ProjectByID looks a project up in the graph arena.
	ProjectByID(id ID) *Project
}
