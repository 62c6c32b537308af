// Package gomod discovers Go modules in the repository and rewrites their
// go.mod files at release time. Internal dependency requirements are
// declared as a comment on the require line:
//
//	require example.com/mono/core v0.0.0-dev.0 // cascade: thiscommit:2026-06-01:a1b2
//
// The version token on the line is the development sentinel used by everyday
// builds; a release rewrites it to the resolved minimum version.
package gomod

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/modfile"

	"cascade/internal/dirio"
	"cascade/internal/project"
	"cascade/internal/session"
	"cascade/internal/version"
)

const refCommentPrefix = "cascade:"

// Loader discovers Go modules from tracked go.mod files.
type Loader struct{}

// Discover implements session.Loader.
func (l *Loader) Discover(sess *session.Session) error {
	var manifests []string
	err := sess.Repo.ScanPaths(func(p string) {
		if p == "go.mod" || strings.HasSuffix(p, "/go.mod") {
			manifests = append(manifests, p)
		}
	})
	if err != nil {
		return err
	}

	for _, path := range manifests {
		data, err := sess.Repo.FileAtHead(path)
		if err != nil {
			return err
		}

		b, err := parseManifest(data, path, func(text string) project.DepRequirement {
			return sess.ResolveDepRef(text, path)
		})
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}

		if _, err := sess.Graph.AddProject(b); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// parseManifest builds a project from go.mod content. The resolve callback
// turns a requirement reference into a concrete requirement.
func parseManifest(data []byte, manifestPath string, resolve func(text string) project.DepRequirement) (*project.Builder, error) {
	f, err := modfile.Parse(manifestPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing module file: %w", err)
	}
	if f.Module == nil {
		return nil, fmt.Errorf("module file has no module directive")
	}

	zero, err := version.NewSemver("0.0.0")
	if err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(manifestPath, "go.mod")
	b := project.NewBuilder()
	b.Qnames = []string{f.Module.Mod.Path, "gomod"}
	b.Version = zero
	b.Prefix = &prefix
	b.Rewriters = []project.Rewriter{&Rewriter{ManifestPath: manifestPath}}

	for _, req := range f.Require {
		refText, ok := refComment(req)
		if !ok {
			continue
		}
		b.Deps = append(b.Deps, project.DependencyBuilder{
			TargetText: req.Mod.Path,
			Literal:    req.Mod.Version,
			Req:        resolve(refText),
		})
	}

	return b, nil
}

// refComment extracts the cascade reference from a require line's suffix
// comment, if present.
func refComment(req *modfile.Require) (string, bool) {
	if req.Syntax == nil {
		return "", false
	}
	for _, comment := range req.Syntax.Suffix {
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(comment.Token), "//"))
		if strings.HasPrefix(text, refCommentPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(text, refCommentPrefix)), true
		}
	}
	return "", false
}

// Rewriter updates a go.mod file with resolved internal dependency
// versions.
type Rewriter struct {
	ManifestPath string
}

// Rewrite implements project.Rewriter.
func (rw *Rewriter) Rewrite(ws project.Workspace, proj *project.Project) ([]string, error) {
	full := ws.WorkdirPath(rw.ManifestPath)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rw.ManifestPath, err)
	}

	f, err := modfile.Parse(rw.ManifestPath, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rw.ManifestPath, err)
	}

	changed := false
	for _, dep := range proj.InternalDeps {
		target := ws.ProjectByID(dep.Target)

		var vers string
		switch dep.Req.Kind {
		case project.ReqManual:
			vers = dep.Req.Manual
		case project.ReqCommit:
			if dep.ResolvedVersion == nil {
				continue
			}
			vers = "v" + dep.ResolvedVersion.String()
		default:
			continue
		}

		if err := f.AddRequire(target.QualifiedNames()[0], vers); err != nil {
			return nil, fmt.Errorf("updating requirement on %s: %w", target.UserFacingName, err)
		}
		changed = true
	}

	if !changed {
		return nil, nil
	}

	f.Cleanup()
	out, err := f.Format()
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w", rw.ManifestPath, err)
	}
	if err := dirio.WriteFileAtomic(full, out); err != nil {
		return nil, err
	}
	return []string{rw.ManifestPath}, nil
}
