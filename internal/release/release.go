// Package release defines the metadata blocks that cascade embeds in commit
// messages. An rc commit carries the bump requests being submitted for
// release processing; a release commit carries the final versions that were
// assigned, plus bookkeeping that lets later runs recover project state
// without any side database.
package release

import (
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
	"lukechampine.com/blake3"

	"cascade/internal/project"
)

const (
	rcInfoMarker      = "+++ cascade-rc-info-v1"
	releaseInfoMarker = "+++ cascade-release-info-v1"
	blockTerminator   = "+++"
)

// NoMetadataError reports that a commit message does not contain the
// expected metadata block. Callers often treat this as "not an rc/release
// commit" rather than as a failure.
type NoMetadataError struct {
	Marker string
}

func (e *NoMetadataError) Error() string {
	return fmt.Sprintf("commit message contains no %q metadata block", e.Marker)
}

// RcProjectInfo is one project's entry in an rc commit: which project, and
// what kind of version bump is being requested for it.
type RcProjectInfo struct {
	Qnames   []string `yaml:"qnames"`
	BumpSpec string   `yaml:"bump"`
}

// RcCommitInfo is the full request table carried by an rc commit.
type RcCommitInfo struct {
	Projects []RcProjectInfo `yaml:"projects"`
}

// ReleasedProjectInfo records one project's state as of a release commit.
// Age zero means the project was released in that very commit; a positive
// age counts the consecutive release commits for which the version has been
// carried forward unchanged.
type ReleasedProjectInfo struct {
	Qnames  []string `yaml:"qnames"`
	Version string   `yaml:"version"`
	Age     int      `yaml:"age"`
}

// ReleaseCommitInfo is the full project table carried by a release commit.
// Every project in the repository appears, released in this commit or not.
type ReleaseCommitInfo struct {
	Projects []ReleasedProjectInfo `yaml:"projects"`
}

// AppendToMessage returns the commit message with this request table framed
// as a trailing metadata block.
func (info *RcCommitInfo) AppendToMessage(message string) (string, error) {
	return appendBlock(message, rcInfoMarker, info)
}

// AppendToMessage returns the commit message with this release table framed
// as a trailing metadata block.
func (info *ReleaseCommitInfo) AppendToMessage(message string) (string, error) {
	return appendBlock(message, releaseInfoMarker, info)
}

// ParseRcInfo extracts the request table from an rc commit message. The
// message text around the block is ignored. Returns NoMetadataError when no
// block is present.
func ParseRcInfo(message string) (*RcCommitInfo, error) {
	var info RcCommitInfo
	if err := parseBlock(message, rcInfoMarker, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ParseReleaseInfo extracts the project table from a release commit message.
// Returns NoMetadataError when no block is present.
func ParseReleaseInfo(message string) (*ReleaseCommitInfo, error) {
	var info ReleaseCommitInfo
	if err := parseBlock(message, releaseInfoMarker, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Lookup finds the entry for a project, matching on the full qualified name
// sequence. Returns nil when the project has no entry, which happens when it
// was added to the repository after the release commit was made.
func (info *ReleaseCommitInfo) Lookup(proj *project.Project) *ReleasedProjectInfo {
	for i := range info.Projects {
		if qnamesEqual(info.Projects[i].Qnames, proj.QualifiedNames()) {
			return &info.Projects[i]
		}
	}
	return nil
}

// LookupIfReleased is like Lookup but only returns the entry if the project
// was actually released in the commit carrying this table.
func (info *ReleaseCommitInfo) LookupIfReleased(proj *project.Project) *ReleasedProjectInfo {
	entry := info.Lookup(proj)
	if entry == nil || entry.Age != 0 {
		return nil
	}
	return entry
}

// Lookup finds the request entry for a project, or nil if the rc commit did
// not request a release of it.
func (info *RcCommitInfo) Lookup(proj *project.Project) *RcProjectInfo {
	for i := range info.Projects {
		if qnamesEqual(info.Projects[i].Qnames, proj.QualifiedNames()) {
			return &info.Projects[i]
		}
	}
	return nil
}

// Digest returns a stable content hash of the request table, used to detect
// whether a staged request has changed between staging and confirmation.
func (info *RcCommitInfo) Digest() (string, error) {
	data, err := yaml.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("serializing release request: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func qnamesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendBlock(message, marker string, payload interface{}) (string, error) {
	data, err := yaml.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serializing commit metadata: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(message, "\n"))
	b.WriteString("\n\n")
	b.WriteString(marker)
	b.WriteString("\n")
	b.Write(data)
	b.WriteString(blockTerminator)
	b.WriteString("\n")
	return b.String(), nil
}

func parseBlock(message, marker string, payload interface{}) error {
	// Take the last block in the message so that quoted or amended text
	// earlier in the message cannot shadow the real one.
	idx := strings.LastIndex(message, marker+"\n")
	if idx < 0 {
		return &NoMetadataError{Marker: marker}
	}
	if idx > 0 && message[idx-1] != '\n' {
		return &NoMetadataError{Marker: marker}
	}

	body := message[idx+len(marker)+1:]
	if end := strings.Index(body, "\n"+blockTerminator); end >= 0 {
		body = body[:end+1]
	}

	if err := yaml.Unmarshal([]byte(body), payload); err != nil {
		return fmt.Errorf("parsing commit metadata block: %w", err)
	}
	return nil
}
