// Package session wires the repository, the project graph, and the
// execution environment into one application state and implements the
// version-resolution pass at the heart of the tool.
package session

import (
	"fmt"

	"cascade/internal/diag"
	"cascade/internal/environment"
	"cascade/internal/gitio"
	"cascade/internal/graph"
	"cascade/internal/history"
	"cascade/internal/project"
	"cascade/internal/release"
	"cascade/internal/version"
)

// UnsatisfiedInternalRequirementError reports an internal dependency edge
// that no existing or upcoming release can satisfy. The whole resolution run
// aborts; no project version is changed.
type UnsatisfiedInternalRequirementError struct {
	Dependent string
	Dependee  string
}

func (e *UnsatisfiedInternalRequirementError) Error() string {
	return fmt.Sprintf("%s depends on %s, but no release of %s satisfies the requirement",
		e.Dependent, e.Dependee, e.Dependee)
}

// Repo is the repository surface the session needs. *gitio.Repository
// implements it; tests substitute fakes.
type Repo interface {
	history.Repo
	environment.Repo

	Workdir() string
	WorkdirPath(repoPath string) string
	CheckDirty(allow func(path string) bool) error
	ScanPaths(f func(path string)) error
	FileAtHead(path string) ([]byte, error)

	LatestReleaseInfo() (*release.ReleaseCommitInfo, error)
	MakeRcCommit(info *release.RcCommitInfo, changedPaths []string) (project.CommitID, error)
	MakeReleaseCommit(info *release.ReleaseCommitInfo, changedPaths []string) (project.CommitID, error)
	TagAtHead(slug, version string) (string, error)

	WriteStagedRequest(req *release.RcProjectInfo) error
	ScanStagedRequests() ([]release.RcProjectInfo, error)
	ClearStagedRequests() error
}

var _ Repo = (*gitio.Repository)(nil)

// Loader discovers the projects of one ecosystem and adds them to the
// session's graph.
type Loader interface {
	Discover(sess *Session) error
}

// Session is the application state for one invocation.
type Session struct {
	Repo  Repo
	Graph *graph.Graph
	Sink  diag.Sink

	resolver *history.Resolver
	env      *environment.Environment
}

// New creates a session over an opened repository.
func New(repo Repo, sink diag.Sink) *Session {
	return &Session{
		Repo:     repo,
		Graph:    graph.New(),
		Sink:     sink,
		resolver: history.NewResolver(repo),
	}
}

// WorkdirPath implements project.Workspace.
func (s *Session) WorkdirPath(repoPath string) string {
	return s.Repo.WorkdirPath(repoPath)
}

// ProjectByID implements project.Workspace.
func (s *Session) ProjectByID(id project.ID) *project.Project {
	return s.Graph.Lookup(id)
}

// Resolver returns the session's history resolver, shared so that loaders
// and the version pass benefit from the same memoization.
func (s *Session) Resolver() *history.Resolver {
	return s.resolver
}

// ResolveDepRef parses and resolves a dependency requirement reference from
// a manifest. An unparseable or unresolvable reference degrades to an
// unavailable requirement with a warning, so discovery keeps going; the edge
// only becomes fatal if a release later needs it.
func (s *Session) ResolveDepRef(text, anchorPath string) project.DepRequirement {
	ref, err := history.ParseRef(text)
	if err != nil {
		s.Sink.Warn("unparseable dependency reference", "manifest", anchorPath, "error", err.Error())
		return project.UnavailableRequirement()
	}
	req, err := s.resolver.Resolve(ref, anchorPath)
	if err != nil {
		s.Sink.Warn("unresolvable dependency reference", "manifest", anchorPath, "error", err.Error())
		return project.UnavailableRequirement()
	}
	return req
}

// PopulateGraph runs the ecosystem loaders and finalizes the graph.
func (s *Session) PopulateGraph(loaders ...Loader) error {
	for _, loader := range loaders {
		if err := loader.Discover(s); err != nil {
			return fmt.Errorf("discovering projects: %w", err)
		}
	}
	if err := s.Graph.CompleteLoading(); err != nil {
		return fmt.Errorf("finalizing project graph: %w", err)
	}
	if s.Graph.Len() == 0 {
		s.Sink.Warn("no projects discovered in this repository")
	}
	return nil
}

// Environment classifies the execution environment, once per session.
func (s *Session) Environment() (*environment.Environment, error) {
	if s.env == nil {
		env, err := environment.Detect(s.Repo, s.Sink)
		if err != nil {
			return nil, err
		}
		s.env = env
	}
	return s.env, nil
}

// EnsureFullyClean verifies the working tree has no uncommitted changes.
func (s *Session) EnsureFullyClean() error {
	return s.Repo.CheckDirty(nil)
}

// DefaultDevRcInfo synthesizes the request table used in development-mode
// runs: every project gets a dev-datecode version.
func (s *Session) DefaultDevRcInfo() *release.RcCommitInfo {
	info := &release.RcCommitInfo{}
	for _, proj := range s.Graph.Projects() {
		info.Projects = append(info.Projects, release.RcProjectInfo{
			Qnames:   proj.QualifiedNames(),
			BumpSpec: "dev-datecode",
		})
	}
	return info
}

// pendingAssignment stages one project's resolution result until the whole
// pass has succeeded.
type pendingAssignment struct {
	version  version.Version
	age      int
	reqs     []project.ResolvedRequirement
	minimums map[project.ID]version.Version
}

// ApplyVersions runs the version-resolution pass: walking the graph in
// dependency order, it resolves every internal requirement, assigns new
// versions for requested bumps, and carries forward unchanged versions with
// an incremented age. The pass is all-or-nothing: results are staged in a
// pending table and written to the graph only after every project has
// resolved, so a failure leaves no project mutated.
func (s *Session) ApplyVersions(rcInfo *release.RcCommitInfo) error {
	latest, err := s.Repo.LatestReleaseInfo()
	if err != nil {
		return err
	}

	order, err := s.Graph.Toposort()
	if err != nil {
		return err
	}

	newVersions := make(map[project.ID]version.Version)
	staged := make(map[project.ID]*pendingAssignment)

	for _, id := range order {
		proj := s.Graph.Lookup(id)

		pending := &pendingAssignment{minimums: make(map[project.ID]version.Version)}
		requested := rcInfo.Lookup(proj) != nil

		for _, dep := range proj.InternalDeps {
			target := s.Graph.Lookup(dep.Target)

			switch dep.Req.Kind {
			case project.ReqManual:
				// The literal is used verbatim by the rewriters.
				continue

			case project.ReqUnavailable:
				// Tolerable while browsing; fatal once this project is
				// actually being released.
				if requested {
					return &UnsatisfiedInternalRequirementError{
						Dependent: proj.UserFacingName,
						Dependee:  target.UserFacingName,
					}
				}
				continue

			case project.ReqCommit:
				avail, err := s.resolver.Availability(target, dep.Req.Commit)
				if err != nil {
					return err
				}

				var min version.Version
				switch avail.Kind {
				case project.NotAvailable:
					return &UnsatisfiedInternalRequirementError{
						Dependent: proj.UserFacingName,
						Dependee:  target.UserFacingName,
					}

				case project.ExistingRelease:
					min = avail.Version

				case project.NewRelease:
					// By the toposort, the target was visited already; if
					// it received no new version this batch cannot satisfy
					// the edge.
					assigned, ok := newVersions[dep.Target]
					if !ok {
						return &UnsatisfiedInternalRequirementError{
							Dependent: proj.UserFacingName,
							Dependee:  target.UserFacingName,
						}
					}
					min = assigned
				}

				pending.reqs = append(pending.reqs, project.ResolvedRequirement{
					Target:     dep.Target,
					MinVersion: min,
				})
				pending.minimums[dep.Target] = min
			}
		}

		// Baseline: the most recent release, or the grammar's zero for a
		// project that has never been released.
		var baseline version.Version
		entry := latest.Lookup(proj)
		if entry != nil {
			baseline, err = proj.Version.ParseLike(entry.Version)
			if err != nil {
				return fmt.Errorf("parsing last released version of %s: %w", proj.UserFacingName, err)
			}
		} else {
			baseline = proj.Version.ZeroLike()
		}

		if requested {
			scheme, err := version.ParseBumpScheme(rcInfo.Lookup(proj).BumpSpec)
			if err != nil {
				return fmt.Errorf("request for %s: %w", proj.UserFacingName, err)
			}

			next := baseline.Clone()
			if err := scheme.Apply(next); err != nil {
				return fmt.Errorf("bumping %s: %w", proj.UserFacingName, err)
			}

			pending.version = next
			pending.age = 0
			newVersions[id] = next
			s.Sink.Info("version assigned",
				"project", proj.UserFacingName, "from", baseline.String(), "to", next.String())
		} else {
			pending.version = baseline
			if entry != nil {
				pending.age = entry.Age + 1
			}
			s.Sink.Info("version unchanged",
				"project", proj.UserFacingName, "version", baseline.String())
		}

		staged[id] = pending
	}

	// Commit phase: every project resolved, so write the results back.
	for id, pending := range staged {
		proj := s.Graph.Lookup(id)
		proj.Version = pending.version
		proj.VersionAge = pending.age
		proj.ResolvedReqs = pending.reqs

		for i := range proj.InternalDeps {
			dep := &proj.InternalDeps[i]
			if dep.Req.Kind == project.ReqCommit {
				dep.ResolvedVersion = pending.minimums[dep.Target]
			}
		}
	}

	return nil
}

// Rewrite persists resolved versions and requirements into every project's
// manifests, returning the repo-relative paths that changed.
func (s *Session) Rewrite() ([]string, error) {
	order, err := s.Graph.Toposort()
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, id := range order {
		proj := s.Graph.Lookup(id)
		for _, rw := range proj.Rewriters {
			paths, err := rw.Rewrite(s, proj)
			if err != nil {
				return nil, fmt.Errorf("rewriting %s: %w", proj.UserFacingName, err)
			}
			changed = append(changed, paths...)
		}
	}
	return changed, nil
}

// MakeRcCommit turns a batch of release requests into an rc-branch commit.
func (s *Session) MakeRcCommit(reqs []release.RcProjectInfo, changedPaths []string) (project.CommitID, error) {
	info := &release.RcCommitInfo{Projects: reqs}
	return s.Repo.MakeRcCommit(info, changedPaths)
}

// MakeReleaseCommit records the post-resolution state of every project in a
// release-branch commit.
func (s *Session) MakeReleaseCommit(changedPaths []string) (project.CommitID, error) {
	order, err := s.Graph.Toposort()
	if err != nil {
		return "", err
	}

	info := &release.ReleaseCommitInfo{}
	for _, id := range order {
		proj := s.Graph.Lookup(id)
		info.Projects = append(info.Projects, release.ReleasedProjectInfo{
			Qnames:  proj.QualifiedNames(),
			Version: proj.Version.String(),
			Age:     proj.VersionAge,
		})
	}

	return s.Repo.MakeReleaseCommit(info, changedPaths)
}

// CreateTags creates one annotated release tag for each project that was
// released in the commit described by relInfo, returning the tag names.
func (s *Session) CreateTags(relInfo *release.ReleaseCommitInfo) ([]string, error) {
	var names []string
	for _, proj := range s.Graph.Projects() {
		entry := relInfo.LookupIfReleased(proj)
		if entry == nil {
			continue
		}
		name, err := s.Repo.TagAtHead(proj.Slug(), entry.Version)
		if err != nil {
			return names, err
		}
		s.Sink.Info("tag created", "tag", name)
		names = append(names, name)
	}
	return names, nil
}
