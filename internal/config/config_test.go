package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ConfigDir)
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfgDir, ConfigFile), []byte(content), 0o644))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "rc", cfg.RcName)
	assert.Equal(t, "release", cfg.ReleaseName)
	assert.Equal(t, "{project_slug}@{version}", cfg.ReleaseTagFormat)
	assert.Empty(t, cfg.UpstreamURLs)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
upstream_urls:
  - git@github.com:example/monorepo.git
  - https://github.com/example/monorepo
rc_name: staging
release_tag_format: "{project_slug}/v{version}"
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"git@github.com:example/monorepo.git",
		"https://github.com/example/monorepo",
	}, cfg.UpstreamURLs)
	assert.Equal(t, "staging", cfg.RcName)
	assert.Equal(t, "release", cfg.ReleaseName)
	assert.Equal(t, "{project_slug}/v{version}", cfg.ReleaseTagFormat)
}

func TestLoadRejectsBadTagFormats(t *testing.T) {
	// Tag scans match on everything in front of the version, so formats
	// that lack a placeholder or bury the version mid-name cannot work.
	for _, format := range []string{
		"v{version}-{project_slug}",
		"{project_slug}@latest",
		"v{version}",
	} {
		dir := t.TempDir()
		writeConfig(t, dir, "release_tag_format: \""+format+"\"\n")

		_, err := Load(dir)
		require.Error(t, err, format)
		assert.Contains(t, err.Error(), "release_tag_format", format)
	}
}

func TestLoadRejectsEqualBranchNames(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rc_name: release\n")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "rc_name: [unterminated\n")

	_, err := Load(dir)
	assert.Error(t, err)
}
