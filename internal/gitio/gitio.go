// Package gitio wraps go-git with the repository operations cascade needs:
// resolving committishes, reading and writing the rc and release branches,
// scanning tracked files for project manifests, and creating release tags.
// All version state lives in the git history itself, so this package is the
// only persistence layer in the tool.
package gitio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"gopkg.in/yaml.v3"

	"cascade/internal/config"
	"cascade/internal/project"
	"cascade/internal/release"
)

// DirtyRepositoryError reports uncommitted modifications when an operation
// requires a clean working tree.
type DirtyRepositoryError struct {
	Path string
}

func (e *DirtyRepositoryError) Error() string {
	return fmt.Sprintf("uncommitted changes in the working tree (e.g. %q)", e.Path)
}

// Repository wraps a go-git repository plus the cascade branch settings.
type Repository struct {
	repo    *git.Repository
	workdir string
	cfg     *config.RepoConfig

	// upstreamName is the remote hosting the rc and release branches of
	// record. Empty for a repository with no remotes, in which case the
	// local branches are consulted instead.
	upstreamName string
}

// Open opens the repository containing path, searching upward for the .git
// directory the way the git CLI does.
func Open(path string, cfg *config.RepoConfig) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening repository: bare repositories are not supported: %w", err)
	}

	r := &Repository{
		repo:    repo,
		workdir: wt.Filesystem.Root(),
		cfg:     cfg,
	}
	if err := r.chooseUpstream(); err != nil {
		return nil, err
	}
	return r, nil
}

// chooseUpstream picks the remote hosting the branches of record. A remote
// whose URL matches the configured upstream_urls always wins; with no
// configuration, a sole remote or one named "origin" is used. A repository
// without remotes operates on local branches only.
func (r *Repository) chooseUpstream() error {
	remotes, err := r.repo.Remotes()
	if err != nil {
		return fmt.Errorf("listing remotes: %w", err)
	}
	if len(remotes) == 0 {
		return nil
	}

	for _, remote := range remotes {
		cfg := remote.Config()
		for _, url := range cfg.URLs {
			for _, wanted := range r.cfg.UpstreamURLs {
				if url == wanted {
					r.upstreamName = cfg.Name
					return nil
				}
			}
		}
	}

	if len(remotes) == 1 {
		r.upstreamName = remotes[0].Config().Name
		return nil
	}

	for _, remote := range remotes {
		if remote.Config().Name == "origin" {
			r.upstreamName = "origin"
			return nil
		}
	}

	return fmt.Errorf("cannot identify the upstream remote among %d candidates; set upstream_urls in %s/%s",
		len(remotes), config.ConfigDir, config.ConfigFile)
}

// Workdir returns the absolute path of the working tree root.
func (r *Repository) Workdir() string {
	return r.workdir
}

// WorkdirPath resolves a repo-relative path to a filesystem path.
func (r *Repository) WorkdirPath(repoPath string) string {
	return filepath.Join(r.workdir, filepath.FromSlash(repoPath))
}

// RcName returns the name of the branch carrying release requests.
func (r *Repository) RcName() string {
	return r.cfg.RcName
}

// ReleaseName returns the name of the branch carrying release commits.
func (r *Repository) ReleaseName() string {
	return r.cfg.ReleaseName
}

// CurrentBranch returns the name of the checked-out branch, or an empty
// string in detached-HEAD state.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// HeadCommit returns the commit ID of HEAD.
func (r *Repository) HeadCommit() (project.CommitID, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return project.CommitID(head.Hash().String()), nil
}

// ResolveCommitish resolves a branch name, tag name, or (abbreviated) hash
// to a commit ID.
func (r *Repository) ResolveCommitish(text string) (project.CommitID, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(text))
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", text, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("resolving %q: not a commit: %w", text, err)
	}
	return project.CommitID(commit.Hash.String()), nil
}

// CommitContains reports whether the history of container includes the
// contained commit, i.e. contained is an ancestor of or equal to container.
func (r *Repository) CommitContains(container, contained project.CommitID) (bool, error) {
	if container == contained {
		return true, nil
	}
	containerCommit, err := r.repo.CommitObject(plumbing.NewHash(string(container)))
	if err != nil {
		return false, fmt.Errorf("loading commit %s: %w", container.Short(), err)
	}
	containedCommit, err := r.repo.CommitObject(plumbing.NewHash(string(contained)))
	if err != nil {
		return false, fmt.Errorf("loading commit %s: %w", contained.Short(), err)
	}
	ok, err := containedCommit.IsAncestor(containerCommit)
	if err != nil {
		return false, fmt.Errorf("testing ancestry of %s: %w", contained.Short(), err)
	}
	return ok, nil
}

// FindSaltCommit locates the commit that introduced the given salt text into
// the file at anchorPath: the oldest commit in the file's history whose
// version of the file contains the salt.
func (r *Repository) FindSaltCommit(anchorPath, salt string) (project.CommitID, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash(), FileName: &anchorPath})
	if err != nil {
		return "", fmt.Errorf("walking history of %s: %w", anchorPath, err)
	}
	defer iter.Close()

	var found plumbing.Hash
	for {
		commit, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("walking history of %s: %w", anchorPath, err)
		}

		content, err := commitFileContent(commit, anchorPath)
		if err != nil {
			// The file does not exist in this commit; the salt cannot
			// predate the file.
			break
		}
		if !strings.Contains(content, salt) {
			break
		}
		found = commit.Hash
	}

	if found.IsZero() {
		return "", fmt.Errorf("no commit introduces the reference salt %q in %s", salt, anchorPath)
	}
	return project.CommitID(found.String()), nil
}

func commitFileContent(commit *object.Commit, path string) (string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return "", err
	}
	f, err := tree.File(path)
	if err != nil {
		return "", err
	}
	return f.Contents()
}

// ScanPaths invokes f for every file tracked in the HEAD tree. Loaders use
// this to discover project manifests.
func (r *Repository) ScanPaths(f func(path string)) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("reading HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("loading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("loading HEAD tree: %w", err)
	}

	return tree.Files().ForEach(func(file *object.File) error {
		f(file.Name)
		return nil
	})
}

// FileAtHead returns the content of a tracked file as of HEAD.
func (r *Repository) FileAtHead(path string) ([]byte, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("loading HEAD commit: %w", err)
	}
	content, err := commitFileContent(commit, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s at HEAD: %w", path, err)
	}
	return []byte(content), nil
}

// CheckDirty verifies that the working tree has no uncommitted changes.
// Untracked files are tolerated; a non-nil allow callback exempts matching
// paths, which is used to permit the edits cascade itself has just made.
func (r *Repository) CheckDirty(allow func(path string) bool) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening working tree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("computing repository status: %w", err)
	}

	for path, st := range status {
		if st.Staging == git.Untracked && st.Worktree == git.Untracked {
			continue
		}
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		if allow != nil && allow(path) {
			continue
		}
		return &DirtyRepositoryError{Path: path}
	}
	return nil
}

// releaseRef resolves the release branch of record: the upstream remote's
// branch when a remote is configured, the local branch otherwise. A nil
// reference with a nil error means the branch does not exist yet.
func (r *Repository) releaseRef() (*plumbing.Reference, error) {
	var names []plumbing.ReferenceName
	if r.upstreamName != "" {
		names = append(names, plumbing.NewRemoteReferenceName(r.upstreamName, r.cfg.ReleaseName))
	}
	names = append(names, plumbing.NewBranchReferenceName(r.cfg.ReleaseName))

	for _, name := range names {
		ref, err := r.repo.Reference(name, true)
		if err == nil {
			return ref, nil
		}
		if err != plumbing.ErrReferenceNotFound {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
	}
	return nil, nil
}

// LatestReleaseInfo returns the project table from the most recent release
// commit. When no release branch exists yet, an empty table is returned:
// every project then starts from its zero version.
func (r *Repository) LatestReleaseInfo() (*release.ReleaseCommitInfo, error) {
	ref, err := r.releaseRef()
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return &release.ReleaseCommitInfo{}, nil
	}

	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("loading release commit: %w", err)
	}
	info, err := release.ParseReleaseInfo(commit.Message)
	if err != nil {
		return nil, fmt.Errorf("reading release branch state: %w", err)
	}
	return info, nil
}

// headMessage returns the commit message of HEAD.
func (r *Repository) headMessage() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("loading HEAD commit: %w", err)
	}
	return commit.Message, nil
}

// ParseRcInfoFromHead extracts the release request table from the HEAD
// commit message.
func (r *Repository) ParseRcInfoFromHead() (*release.RcCommitInfo, error) {
	message, err := r.headMessage()
	if err != nil {
		return nil, err
	}
	return release.ParseRcInfo(message)
}

// ParseReleaseInfoFromHead extracts the release table from the HEAD commit
// message.
func (r *Repository) ParseReleaseInfoFromHead() (*release.ReleaseCommitInfo, error) {
	message, err := r.headMessage()
	if err != nil {
		return nil, err
	}
	return release.ParseReleaseInfo(message)
}

func signature() *object.Signature {
	return &object.Signature{
		Name:  "cascade",
		Email: "cascade@devnull",
		When:  time.Now(),
	}
}

// switchToBranchAtHead points the named local branch at the current HEAD
// commit and checks it out, keeping any working-tree modifications. The
// filesystem content does not change because the branch tip equals HEAD.
func (r *Repository) switchToBranchAtHead(branch string) (*git.Worktree, plumbing.Hash, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("reading HEAD: %w", err)
	}

	refName := plumbing.NewBranchReferenceName(branch)
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(refName, head.Hash())); err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("updating branch %s: %w", branch, err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("opening working tree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: refName, Keep: true}); err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("switching to branch %s: %w", branch, err)
	}
	return wt, head.Hash(), nil
}

// MakeRcCommit commits the current state onto the local rc branch with the
// request table embedded in the commit message. Changed paths are staged
// first. Returns the new commit's ID.
func (r *Repository) MakeRcCommit(info *release.RcCommitInfo, changedPaths []string) (project.CommitID, error) {
	digest, err := info.Digest()
	if err != nil {
		return "", err
	}
	base := fmt.Sprintf("Release request commit created with cascade.\n\nrequest-digest: %s", digest)
	message, err := info.AppendToMessage(base)
	if err != nil {
		return "", err
	}

	wt, _, err := r.switchToBranchAtHead(r.cfg.RcName)
	if err != nil {
		return "", err
	}

	for _, path := range changedPaths {
		if _, err := wt.Add(path); err != nil {
			return "", fmt.Errorf("staging %s: %w", path, err)
		}
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author:            signature(),
		Committer:         signature(),
		AllowEmptyCommits: true,
	})
	if err != nil {
		return "", fmt.Errorf("creating rc commit: %w", err)
	}
	return project.CommitID(hash.String()), nil
}

// MakeReleaseCommit merges the current state onto the local release branch,
// embedding the full project table in the commit message. The new commit has
// the previous release commit as first parent (when one exists) and the
// originating commit as second parent, so the release branch accumulates
// every release while each release commit still contains the full history of
// the code it was cut from.
func (r *Repository) MakeReleaseCommit(info *release.ReleaseCommitInfo, changedPaths []string) (project.CommitID, error) {
	message, err := info.AppendToMessage("Release commit created with cascade.")
	if err != nil {
		return "", err
	}

	prevRelease, err := r.releaseRef()
	if err != nil {
		return "", err
	}

	wt, headHash, err := r.switchToBranchAtHead(r.cfg.ReleaseName)
	if err != nil {
		return "", err
	}

	for _, path := range changedPaths {
		if _, err := wt.Add(path); err != nil {
			return "", fmt.Errorf("staging %s: %w", path, err)
		}
	}

	opts := &git.CommitOptions{
		Author:            signature(),
		Committer:         signature(),
		AllowEmptyCommits: true,
	}
	if prevRelease != nil {
		opts.Parents = []plumbing.Hash{prevRelease.Hash(), headHash}
	}

	hash, err := wt.Commit(message, opts)
	if err != nil {
		return "", fmt.Errorf("creating release commit: %w", err)
	}
	return project.CommitID(hash.String()), nil
}

// FormatTagName renders the release tag name for a project version using the
// configured pattern.
func (r *Repository) FormatTagName(slug, version string) string {
	name := strings.ReplaceAll(r.cfg.ReleaseTagFormat, "{project_slug}", slug)
	return strings.ReplaceAll(name, "{version}", version)
}

// TagAtHead creates an annotated release tag for a project version pointing
// at the HEAD commit.
func (r *Repository) TagAtHead(slug, version string) (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}

	name := r.FormatTagName(slug, version)
	_, err = r.repo.CreateTag(name, head.Hash(), &git.CreateTagOptions{
		Tagger:  signature(),
		Message: fmt.Sprintf("%s version %s", slug, version),
	})
	if err != nil {
		return "", fmt.Errorf("creating tag %s: %w", name, err)
	}
	return name, nil
}

// ReleaseTag is one existing release tag of a project.
type ReleaseTag struct {
	Name    string
	Version string
	Commit  project.CommitID
}

// ReleaseTags lists the release tags recorded for a project slug, oldest
// name first. Both annotated and lightweight tags are understood.
func (r *Repository) ReleaseTags(slug string) ([]ReleaseTag, error) {
	prefix := r.FormatTagName(slug, "")

	iter, err := r.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer iter.Close()

	var tags []ReleaseTag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		hash := ref.Hash()
		if tagObj, err := r.repo.TagObject(hash); err == nil {
			commit, err := tagObj.Commit()
			if err != nil {
				return fmt.Errorf("peeling tag %s: %w", name, err)
			}
			hash = commit.Hash
		}

		tags = append(tags, ReleaseTag{
			Name:    name,
			Version: strings.TrimPrefix(name, prefix),
			Commit:  project.CommitID(hash.String()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// stageDir is where `cascade stage` records pending release requests until
// `cascade confirm` turns them into an rc commit.
func (r *Repository) stageDir() string {
	return filepath.Join(r.workdir, config.ConfigDir, "stage")
}

// WriteStagedRequest records a pending release request for later
// confirmation. One file per project; re-staging a project overwrites its
// previous request.
func (r *Repository) WriteStagedRequest(req *release.RcProjectInfo) error {
	dir := r.stageDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating stage directory: %w", err)
	}

	data, err := yaml.Marshal(req)
	if err != nil {
		return fmt.Errorf("serializing staged request: %w", err)
	}

	name := strings.ReplaceAll(strings.Join(req.Qnames, "_"), "/", "-") + ".yaml"
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing staged request: %w", err)
	}
	return nil
}

// ScanStagedRequests reads back every staged release request, sorted by
// file name for determinism.
func (r *Repository) ScanStagedRequests() ([]release.RcProjectInfo, error) {
	entries, err := os.ReadDir(r.stageDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading stage directory: %w", err)
	}

	var reqs []release.RcProjectInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.stageDir(), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading staged request %s: %w", entry.Name(), err)
		}
		var req release.RcProjectInfo
		if err := yaml.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("parsing staged request %s: %w", entry.Name(), err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// ClearStagedRequests removes all staged requests, typically after they have
// been confirmed into an rc commit.
func (r *Repository) ClearStagedRequests() error {
	err := os.RemoveAll(r.stageDir())
	if err != nil {
		return fmt.Errorf("clearing stage directory: %w", err)
	}
	return nil
}
