package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascade/internal/gitio"
	"cascade/internal/project"
	"cascade/internal/version"
)

// fakeRepo describes a linear history c1..cN: a commit is contained in
// another when its sequence number is lower or equal.
type fakeRepo struct {
	head  project.CommitID
	seq   map[project.CommitID]int
	salts map[string]project.CommitID
	tags  map[string][]gitio.ReleaseTag

	containsCalls int
}

func (f *fakeRepo) HeadCommit() (project.CommitID, error) {
	return f.head, nil
}

func (f *fakeRepo) ResolveCommitish(text string) (project.CommitID, error) {
	id := project.CommitID(text)
	if _, ok := f.seq[id]; !ok {
		return "", fmt.Errorf("unknown revision %q", text)
	}
	return id, nil
}

func (f *fakeRepo) FindSaltCommit(anchorPath, salt string) (project.CommitID, error) {
	if id, ok := f.salts[anchorPath+"\x00"+salt]; ok {
		return id, nil
	}
	return "", fmt.Errorf("no commit introduces %q in %s", salt, anchorPath)
}

func (f *fakeRepo) CommitContains(container, contained project.CommitID) (bool, error) {
	f.containsCalls++
	a, ok := f.seq[container]
	if !ok {
		return false, fmt.Errorf("unknown commit %s", container)
	}
	b, ok := f.seq[contained]
	if !ok {
		return false, fmt.Errorf("unknown commit %s", contained)
	}
	return b <= a, nil
}

func (f *fakeRepo) ReleaseTags(slug string) ([]gitio.ReleaseTag, error) {
	return f.tags[slug], nil
}

func linearRepo() *fakeRepo {
	return &fakeRepo{
		head: "c5",
		seq: map[project.CommitID]int{
			"c1": 1, "c2": 2, "c3": 3, "c4": 4, "c5": 5,
			"orphan": 99,
		},
		salts: map[string]project.CommitID{
			"core/manifest.yaml\x00thiscommit:2026-06-01:abc": "c3",
		},
		tags: map[string][]gitio.ReleaseTag{
			"core": {
				{Name: "core@1.0.0", Version: "1.0.0", Commit: "c2"},
				{Name: "core@1.1.0", Version: "1.1.0", Commit: "c4"},
			},
		},
	}
}

func targetProject(t *testing.T, name string) *project.Project {
	t.Helper()
	prefix := name + "/"
	b := project.NewBuilder()
	b.Qnames = []string{name}
	b.Version = mustSemver(t, "1.1.0")
	b.Prefix = &prefix
	p, err := b.Finalize(0, name)
	require.NoError(t, err)
	p.UserFacingName = name
	return p
}

func mustSemver(t *testing.T, text string) version.Version {
	t.Helper()
	v, err := version.NewSemver(text)
	require.NoError(t, err)
	return v
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("thiscommit:2026-06-01:abc")
	require.NoError(t, err)
	assert.Equal(t, RefThisCommit, ref.Kind)
	assert.Equal(t, "thiscommit:2026-06-01:abc", ref.Text)

	ref, err = ParseRef("manual:^1.2")
	require.NoError(t, err)
	assert.Equal(t, RefManual, ref.Kind)
	assert.Equal(t, "^1.2", ref.Text)

	ref, err = ParseRef("c3")
	require.NoError(t, err)
	assert.Equal(t, RefCommitish, ref.Kind)

	for _, bad := range []string{"", "thiscommit:", "manual:"} {
		_, err := ParseRef(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestResolveManual(t *testing.T) {
	r := NewResolver(linearRepo())
	req, err := r.Resolve(ParsedRef{Kind: RefManual, Text: "^2.0"}, "core/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, project.ManualRequirement("^2.0"), req)
}

func TestResolveThisCommitAnchored(t *testing.T) {
	repo := linearRepo()
	r := NewResolver(repo)

	ref := ParsedRef{Kind: RefThisCommit, Text: "thiscommit:2026-06-01:abc"}
	req, err := r.Resolve(ref, "core/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, project.CommitRequirement("c3"), req)

	// The same salt under a different manifest is a different reference.
	_, err = r.Resolve(ref, "cli/manifest.yaml")
	assert.Error(t, err)
}

func TestResolveCommitish(t *testing.T) {
	r := NewResolver(linearRepo())
	req, err := r.Resolve(ParsedRef{Kind: RefCommitish, Text: "c2"}, "core/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, project.CommitRequirement("c2"), req)

	_, err = r.Resolve(ParsedRef{Kind: RefCommitish, Text: "nope"}, "core/manifest.yaml")
	assert.Error(t, err)
}

func TestAvailabilityExistingReleaseSmallestFloor(t *testing.T) {
	r := NewResolver(linearRepo())
	core := targetProject(t, "core")

	// c1 is covered by both releases; the earliest containing release wins.
	a, err := r.Availability(core, "c1")
	require.NoError(t, err)
	require.Equal(t, project.ExistingRelease, a.Kind)
	assert.Equal(t, "1.0.0", a.Version.String())

	// c3 is only covered by the 1.1.0 release.
	a, err = r.Availability(core, "c3")
	require.NoError(t, err)
	require.Equal(t, project.ExistingRelease, a.Kind)
	assert.Equal(t, "1.1.0", a.Version.String())
}

func TestAvailabilityNewRelease(t *testing.T) {
	r := NewResolver(linearRepo())
	core := targetProject(t, "core")

	// c5 is in HEAD's history but in no release yet.
	a, err := r.Availability(core, "c5")
	require.NoError(t, err)
	assert.Equal(t, project.NewRelease, a.Kind)
}

func TestAvailabilityNotAvailable(t *testing.T) {
	r := NewResolver(linearRepo())
	core := targetProject(t, "core")

	a, err := r.Availability(core, "orphan")
	require.NoError(t, err)
	assert.Equal(t, project.NotAvailable, a.Kind)
}

func TestAvailabilityMemoized(t *testing.T) {
	repo := linearRepo()
	r := NewResolver(repo)
	core := targetProject(t, "core")

	_, err := r.Availability(core, "c3")
	require.NoError(t, err)
	calls := repo.containsCalls

	_, err = r.Availability(core, "c3")
	require.NoError(t, err)
	assert.Equal(t, calls, repo.containsCalls)
}
