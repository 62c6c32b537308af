// Package config loads per-repository cascade settings from
// .config/cascade/config.yaml at the repository root. Every setting has a
// default, so the file is optional; values can also be overridden through
// CASCADE_* environment variables for CI pipelines.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Relative location of the settings file inside a repository workdir.
const (
	ConfigDir  = ".config/cascade"
	ConfigFile = "config.yaml"
)

// RepoConfig holds the repository-level settings.
type RepoConfig struct {
	// UpstreamURLs identifies the upstream remote: a fetch or push URL of
	// a remote must match one of these for the remote to be treated as
	// the canonical upstream.
	UpstreamURLs []string

	// RcName is the name of the branch carrying release requests.
	RcName string

	// ReleaseName is the name of the branch carrying release commits.
	ReleaseName string

	// ReleaseTagFormat is the pattern for release tag names, with
	// {project_slug} and {version} placeholders.
	ReleaseTagFormat string
}

// Default returns the settings used when no config file is present.
func Default() *RepoConfig {
	return &RepoConfig{
		RcName:           "rc",
		ReleaseName:      "release",
		ReleaseTagFormat: "{project_slug}@{version}",
	}
}

// Load reads the settings for the repository rooted at workdir. A missing
// config file yields the defaults; a malformed one is an error.
func Load(workdir string) (*RepoConfig, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(workdir, ConfigDir))

	v.SetEnvPrefix("CASCADE")
	v.AutomaticEnv()

	v.SetDefault("rc_name", cfg.RcName)
	v.SetDefault("release_name", cfg.ReleaseName)
	v.SetDefault("release_tag_format", cfg.ReleaseTagFormat)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", filepath.Join(ConfigDir, ConfigFile), err)
		}
	}

	cfg.UpstreamURLs = v.GetStringSlice("upstream_urls")
	cfg.RcName = v.GetString("rc_name")
	cfg.ReleaseName = v.GetString("release_name")
	cfg.ReleaseTagFormat = v.GetString("release_tag_format")

	if cfg.RcName == cfg.ReleaseName {
		return nil, fmt.Errorf("rc_name and release_name must differ (both %q)", cfg.RcName)
	}
	if !strings.Contains(cfg.ReleaseTagFormat, "{project_slug}") {
		return nil, fmt.Errorf("release_tag_format %q must contain the {project_slug} placeholder", cfg.ReleaseTagFormat)
	}
	// Existing release tags are recognized by the prefix in front of the
	// version, so the version must be the final token.
	if !strings.HasSuffix(cfg.ReleaseTagFormat, "{version}") {
		return nil, fmt.Errorf("release_tag_format %q must end with the {version} placeholder", cfg.ReleaseTagFormat)
	}

	return cfg, nil
}
