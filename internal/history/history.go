// Package history resolves internal dependency requirements against the
// repository's release history. Requirements are authored as references to
// points in history ("this commit", a commit hash) or as explicit version
// text; this package turns them into concrete requirements and decides which
// existing or upcoming release can satisfy each one.
package history

import (
	"fmt"
	"strings"

	"cascade/internal/gitio"
	"cascade/internal/project"
	"cascade/internal/version"
)

// ParsedRef is a dependency requirement reference as written in a manifest.
type ParsedRef struct {
	Kind RefKind

	// Text is the payload: the commit-ish for RefCommitish, the requirement
	// literal for RefManual, and the full reference string for RefThisCommit
	// (the salt is searched for verbatim).
	Text string
}

// RefKind tags a ParsedRef.
type RefKind int

const (
	// RefCommitish names a commit directly: a hash, branch, or tag.
	RefCommitish RefKind = iota
	// RefThisCommit refers to the commit that introduced the reference text
	// itself into the manifest.
	RefThisCommit
	// RefManual carries an explicit requirement used verbatim, bypassing
	// history resolution.
	RefManual
)

// ParseRef parses a requirement reference. The accepted forms are
// "thiscommit:<salt>", "manual:<text>", and a bare commit-ish.
func ParseRef(text string) (ParsedRef, error) {
	switch {
	case strings.HasPrefix(text, "thiscommit:"):
		if text == "thiscommit:" {
			return ParsedRef{}, fmt.Errorf("reference %q is missing its salt", text)
		}
		return ParsedRef{Kind: RefThisCommit, Text: text}, nil

	case strings.HasPrefix(text, "manual:"):
		literal := strings.TrimPrefix(text, "manual:")
		if literal == "" {
			return ParsedRef{}, fmt.Errorf("reference %q is missing its requirement text", text)
		}
		return ParsedRef{Kind: RefManual, Text: literal}, nil

	case text == "":
		return ParsedRef{}, fmt.Errorf("empty requirement reference")

	default:
		return ParsedRef{Kind: RefCommitish, Text: text}, nil
	}
}

// Repo is the subset of the repository surface that history resolution
// needs. *gitio.Repository implements it.
type Repo interface {
	HeadCommit() (project.CommitID, error)
	ResolveCommitish(text string) (project.CommitID, error)
	FindSaltCommit(anchorPath, salt string) (project.CommitID, error)
	CommitContains(container, contained project.CommitID) (bool, error)
	ReleaseTags(slug string) ([]gitio.ReleaseTag, error)
}

// Resolver turns parsed references into requirements and availability
// verdicts. Results are memoized: a monorepo-wide resolution pass asks the
// same questions for many edges, and ancestry walks are not cheap.
type Resolver struct {
	repo Repo

	avail map[availKey]project.CommitAvailability
	salts map[string]project.CommitID
}

type availKey struct {
	target project.ID
	commit project.CommitID
}

// NewResolver creates a resolver over a repository.
func NewResolver(repo Repo) *Resolver {
	return &Resolver{
		repo:  repo,
		avail: make(map[availKey]project.CommitAvailability),
		salts: make(map[string]project.CommitID),
	}
}

// Resolve turns a reference into a dependency requirement. The anchorPath is
// the repo-relative path of the manifest declaring the reference; it anchors
// "thiscommit:" references to the file whose history carries them.
func (r *Resolver) Resolve(ref ParsedRef, anchorPath string) (project.DepRequirement, error) {
	switch ref.Kind {
	case RefManual:
		return project.ManualRequirement(ref.Text), nil

	case RefThisCommit:
		key := anchorPath + "\x00" + ref.Text
		if id, ok := r.salts[key]; ok {
			return project.CommitRequirement(id), nil
		}
		id, err := r.repo.FindSaltCommit(anchorPath, ref.Text)
		if err != nil {
			return project.DepRequirement{}, fmt.Errorf("resolving reference in %s: %w", anchorPath, err)
		}
		r.salts[key] = id
		return project.CommitRequirement(id), nil

	case RefCommitish:
		id, err := r.repo.ResolveCommitish(ref.Text)
		if err != nil {
			return project.DepRequirement{}, fmt.Errorf("resolving reference in %s: %w", anchorPath, err)
		}
		return project.CommitRequirement(id), nil

	default:
		panic(fmt.Sprintf("unhandled reference kind %d", ref.Kind))
	}
}

// Availability decides how a commit-pinned requirement on target can be
// satisfied. A prior release whose history contains the commit yields
// ExistingRelease with the smallest such released version as the floor. With
// no covering release, a commit that is part of the history being released
// right now (an ancestor of HEAD) yields NewRelease; anything else is
// NotAvailable.
func (r *Resolver) Availability(target *project.Project, commit project.CommitID) (project.CommitAvailability, error) {
	key := availKey{target: target.ID(), commit: commit}
	if a, ok := r.avail[key]; ok {
		return a, nil
	}

	a, err := r.computeAvailability(target, commit)
	if err != nil {
		return project.CommitAvailability{}, err
	}
	r.avail[key] = a
	return a, nil
}

func (r *Resolver) computeAvailability(target *project.Project, commit project.CommitID) (project.CommitAvailability, error) {
	tags, err := r.repo.ReleaseTags(target.Slug())
	if err != nil {
		return project.CommitAvailability{}, fmt.Errorf("listing releases of %s: %w", target.UserFacingName, err)
	}

	var floor version.Version
	for _, tag := range tags {
		contains, err := r.repo.CommitContains(tag.Commit, commit)
		if err != nil {
			return project.CommitAvailability{}, fmt.Errorf("checking release %s: %w", tag.Name, err)
		}
		if !contains {
			continue
		}

		v, err := target.Version.ParseLike(tag.Version)
		if err != nil {
			return project.CommitAvailability{}, fmt.Errorf("parsing version of release tag %s: %w", tag.Name, err)
		}
		if floor == nil || v.Compare(floor) < 0 {
			floor = v
		}
	}

	if floor != nil {
		return project.CommitAvailability{Kind: project.ExistingRelease, Version: floor}, nil
	}

	head, err := r.repo.HeadCommit()
	if err != nil {
		return project.CommitAvailability{}, err
	}
	inHead, err := r.repo.CommitContains(head, commit)
	if err != nil {
		return project.CommitAvailability{}, fmt.Errorf("checking current history: %w", err)
	}
	if inHead {
		return project.CommitAvailability{Kind: project.NewRelease}, nil
	}
	return project.CommitAvailability{Kind: project.NotAvailable}, nil
}
