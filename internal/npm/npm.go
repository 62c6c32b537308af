// Package npm discovers npm packages in the repository and rewrites their
// package.json files at release time. Internal dependency requirements are
// declared under a "cascade" key:
//
//	{
//	  "name": "@mono/cli",
//	  "version": "0.0.0-dev.0",
//	  "dependencies": { "@mono/core": "0.0.0-dev.0" },
//	  "cascade": {
//	    "internalDepVersions": { "@mono/core": "thiscommit:2026-06-01:a1b2" }
//	  }
//	}
//
// The dependencies entry keeps the development sentinel for everyday
// installs; a release rewrites it to a caret range on the resolved minimum
// version.
package npm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"cascade/internal/dirio"
	"cascade/internal/project"
	"cascade/internal/session"
	"cascade/internal/version"
)

type packageJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	Cascade      *cascadeMeta      `json:"cascade"`
}

type cascadeMeta struct {
	InternalDepVersions map[string]string `json:"internalDepVersions"`
}

// Loader discovers npm packages from tracked package.json files.
type Loader struct{}

// Discover implements session.Loader.
func (l *Loader) Discover(sess *session.Session) error {
	var manifests []string
	err := sess.Repo.ScanPaths(func(p string) {
		if strings.Contains(p, "node_modules/") {
			return
		}
		if p == "package.json" || strings.HasSuffix(p, "/package.json") {
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

func parseManifest(data []byte, manifestPath string, resolve func(text string) project.DepRequirement) (*project.Builder, error) {
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing package file: %w", err)
	}
	if pkg.Name == "" {
		return nil, fmt.Errorf("package file has no name")
	}

	v, err := version.NewSemver(strings.TrimSpace(pkg.Version))
	if err != nil {
		return nil, fmt.Errorf("package version: %w", err)
	}

	prefix := strings.TrimSuffix(manifestPath, "package.json")
	b := project.NewBuilder()
	b.Qnames = []string{pkg.Name, "npm"}
	b.Version = v
	b.Prefix = &prefix
	b.Rewriters = []project.Rewriter{&Rewriter{ManifestPath: manifestPath}}

	if pkg.Cascade != nil {
		for name, refText := range pkg.Cascade.InternalDepVersions {
			literal := pkg.Dependencies[name]
			b.Deps = append(b.Deps, project.DependencyBuilder{
				TargetText: name,
				Literal:    literal,
				Req:        resolve(refText),
			})
		}
	}

	return b, nil
}

// Rewriter updates a package.json with the assigned version and resolved
// internal dependency ranges.
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

	// The whole document is kept generically so fields cascade does not
	// understand survive the rewrite.
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rw.ManifestPath, err)
	}

	doc["version"], err = json.Marshal(proj.Version.String())
	if err != nil {
		return nil, err
	}

	if len(proj.InternalDeps) > 0 {
		var deps map[string]string
		if raw, ok := doc["dependencies"]; ok {
			if err := json.Unmarshal(raw, &deps); err != nil {
				return nil, fmt.Errorf("parsing dependencies of %s: %w", rw.ManifestPath, err)
			}
		} else {
			deps = make(map[string]string)
		}

		for _, dep := range proj.InternalDeps {
			target := ws.ProjectByID(dep.Target)

			var req string
			switch dep.Req.Kind {
			case project.ReqManual:
				req = dep.Req.Manual
			case project.ReqCommit:
				if dep.ResolvedVersion == nil {
					continue
				}
				req = "^" + dep.ResolvedVersion.String()
			default:
				continue
			}
			deps[target.QualifiedNames()[0]] = req
		}

		doc["dependencies"], err = json.Marshal(deps)
		if err != nil {
			return nil, err
		}
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing %s: %w", rw.ManifestPath, err)
	}
	out = append(out, '\n')

	if err := dirio.WriteFileAtomic(full, out); err != nil {
		return nil, err
	}
	return []string{rw.ManifestPath}, nil
}
