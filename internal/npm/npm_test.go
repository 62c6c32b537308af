package npm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cascade/internal/project"
	"cascade/internal/version"
)

const coreManifest = `{
  "name": "@mono/core",
  "version": "1.2.0"
}
`

const cliManifest = `{
  "name": "@mono/cli",
  "version": "0.0.0-dev.0",
  "dependencies": {
    "@mono/core": "0.0.0-dev.0",
    "chalk": "^5.3.0"
  },
  "cascade": {
    "internalDepVersions": {
      "@mono/core": "thiscommit:2026-06-01:a1b2"
    }
  }
}
`

func TestParseManifest(t *testing.T) {
	var resolved []string
	b, err := parseManifest([]byte(cliManifest), "cli/package.json", func(text string) project.DepRequirement {
		resolved = append(resolved, text)
		return project.CommitRequirement("abc123")
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"@mono/cli", "npm"}, b.Qnames)
	require.NotNil(t, b.Prefix)
	assert.Equal(t, "cli/", *b.Prefix)
	assert.Equal(t, "0.0.0-dev.0", b.Version.String())

	// Only dependencies named under cascade.internalDepVersions are internal.
	require.Len(t, b.Deps, 1)
	assert.Equal(t, "@mono/core", b.Deps[0].TargetText)
	assert.Equal(t, "0.0.0-dev.0", b.Deps[0].Literal)
	assert.Equal(t, project.CommitRequirement("abc123"), b.Deps[0].Req)
	assert.Equal(t, []string{"thiscommit:2026-06-01:a1b2"}, resolved)

	require.Len(t, b.Rewriters, 1)
}

func TestParseManifestRootPackage(t *testing.T) {
	b, err := parseManifest([]byte(coreManifest), "package.json", func(string) project.DepRequirement {
		return project.UnavailableRequirement()
	})
	require.NoError(t, err)
	assert.Equal(t, "", *b.Prefix)
	assert.Empty(t, b.Deps)
}

func TestParseManifestRejectsMissingName(t *testing.T) {
	_, err := parseManifest([]byte(`{"version": "1.0.0"}`), "package.json", nil)
	require.Error(t, err)
}

func TestParseManifestRejectsBadVersion(t *testing.T) {
	_, err := parseManifest([]byte(`{"name": "x", "version": "not-a-version"}`), "package.json", nil)
	require.Error(t, err)
}

type fakeWorkspace struct {
	root     string
	projects map[project.ID]*project.Project
}

func (f *fakeWorkspace) WorkdirPath(repoPath string) string {
	return filepath.Join(f.root, filepath.FromSlash(repoPath))
}

func (f *fakeWorkspace) ProjectByID(id project.ID) *project.Project {
	return f.projects[id]
}

func buildProject(t *testing.T, id project.ID, name, ver string, deps ...project.DependencyBuilder) *project.Project {
	t.Helper()
	v, err := version.NewSemver(ver)
	require.NoError(t, err)
	prefix := ""

	b := project.NewBuilder()
	b.Qnames = []string{name, "npm"}
	b.Version = v
	b.Prefix = &prefix
	b.Deps = deps
	p, err := b.Finalize(id, name)
	require.NoError(t, err)
	p.UserFacingName = name
	return p
}

func readBack(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestRewriteUpdatesVersionAndInternalRequirement(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cli"), 0o755))
	manifest := filepath.Join(dir, "cli", "package.json")
	require.NoError(t, os.WriteFile(manifest, []byte(cliManifest), 0o644))

	core := buildProject(t, 0, "@mono/core", "1.2.1")
	cli := buildProject(t, 1, "@mono/cli", "1.1.0")

	resolved, err := version.NewSemver("1.2.1")
	require.NoError(t, err)
	cli.InternalDeps = []project.Dependency{{
		Target:          0,
		Literal:         "0.0.0-dev.0",
		Req:             project.CommitRequirement("abc123"),
		ResolvedVersion: resolved,
	}}

	ws := &fakeWorkspace{root: dir, projects: map[project.ID]*project.Project{0: core, 1: cli}}
	rw := &Rewriter{ManifestPath: "cli/package.json"}

	paths, err := rw.Rewrite(ws, cli)
	require.NoError(t, err)
	assert.Equal(t, []string{"cli/package.json"}, paths)

	doc := readBack(t, manifest)
	assert.Equal(t, "1.1.0", doc["version"])

	deps := doc["dependencies"].(map[string]any)
	assert.Equal(t, "^1.2.1", deps["@mono/core"])
	// External dependencies are untouched.
	assert.Equal(t, "^5.3.0", deps["chalk"])
	// The cascade metadata block survives the rewrite.
	assert.Contains(t, doc, "cascade")
}

func TestRewriteManualRequirement(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "package.json")
	content := `{
  "name": "@mono/cli",
  "version": "0.0.0-dev.0",
  "dependencies": { "@mono/core": "0.0.0-dev.0" },
  "cascade": { "internalDepVersions": { "@mono/core": "manual:>=2, <3" } }
}
`
	require.NoError(t, os.WriteFile(manifest, []byte(content), 0o644))

	core := buildProject(t, 0, "@mono/core", "2.0.0")
	cli := buildProject(t, 1, "@mono/cli", "1.0.0")
	cli.InternalDeps = []project.Dependency{{
		Target:  0,
		Literal: "0.0.0-dev.0",
		Req:     project.ManualRequirement(">=2, <3"),
	}}

	ws := &fakeWorkspace{root: dir, projects: map[project.ID]*project.Project{0: core, 1: cli}}
	rw := &Rewriter{ManifestPath: "package.json"}

	_, err := rw.Rewrite(ws, cli)
	require.NoError(t, err)

	doc := readBack(t, manifest)
	deps := doc["dependencies"].(map[string]any)
	assert.Equal(t, ">=2, <3", deps["@mono/core"])
}

func TestRewriteVersionOnly(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(manifest, []byte(coreManifest), 0o644))

	core := buildProject(t, 0, "@mono/core", "1.3.0")
	ws := &fakeWorkspace{root: dir, projects: map[project.ID]*project.Project{0: core}}
	rw := &Rewriter{ManifestPath: "package.json"}

	paths, err := rw.Rewrite(ws, core)
	require.NoError(t, err)
	assert.Equal(t, []string{"package.json"}, paths)

	doc := readBack(t, manifest)
	assert.Equal(t, "1.3.0", doc["version"])
	assert.NotContains(t, doc, "dependencies")
}
