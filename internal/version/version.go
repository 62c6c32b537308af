// Package version models project version numbers and bump schemes.
//
// Different projects in one repository may subscribe to different versioning
// grammars (plain semver, PEP 440 for Python packages). A Version value knows
// its own grammar, so callers stay agnostic: ParseLike parses new text under
// the grammar of an existing value, and comparisons are only defined between
// two values of the same grammar.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a version number under some versioning grammar.
//
// Mixing grammars in Compare is a programming error, not a data error, and
// panics rather than returning an error.
type Version interface {
	// ParseLike parses text under the same grammar as the receiver.
	ParseLike(text string) (Version, error)

	// ZeroLike returns the grammar's zero value (the baseline for a
	// first-ever release).
	ZeroLike() Version

	// Clone returns an independent copy.
	Clone() Version

	// SetToDevValue overwrites the version with the grammar's development
	// sentinel, e.g. 0.0.0-dev.0 for semver.
	SetToDevValue()

	// Compare returns -1, 0, or +1 ordering the receiver against other,
	// which must be of the same grammar.
	Compare(other Version) int

	String() string

	// grammarName identifies the grammar for mixed-comparison panics and
	// bump-scheme error messages.
	grammarName() string

	// applyBump mutates the receiver per the given scheme.
	applyBump(b *BumpScheme) error
}

// Semver is a semantic version (major.minor.patch with optional prerelease
// and build metadata).
type Semver struct {
	v *semver.Version
}

// NewSemver parses text as a strict semantic version.
func NewSemver(text string) (*Semver, error) {
	v, err := semver.StrictNewVersion(text)
	if err != nil {
		return nil, fmt.Errorf("parsing %q as semver: %w", text, err)
	}
	return &Semver{v: v}, nil
}

func (s *Semver) ParseLike(text string) (Version, error) {
	return NewSemver(text)
}

func (s *Semver) ZeroLike() Version {
	return &Semver{v: semver.New(0, 0, 0, "", "")}
}

func (s *Semver) Clone() Version {
	c := *s.v
	return &Semver{v: &c}
}

func (s *Semver) SetToDevValue() {
	s.v = semver.New(0, 0, 0, "dev.0", "")
}

func (s *Semver) Compare(other Version) int {
	o, ok := other.(*Semver)
	if !ok {
		panic(fmt.Sprintf("comparing semver version against %s version", other.grammarName()))
	}
	return s.v.Compare(o.v)
}

func (s *Semver) String() string {
	return s.v.String()
}

func (s *Semver) grammarName() string {
	return "semver"
}

func (s *Semver) applyBump(b *BumpScheme) error {
	switch b.Kind {
	// Numeric bumps always increment, zero the lower components, and strip
	// prerelease/build metadata, even when the baseline is itself a
	// prerelease.
	case MicroBump:
		s.v = semver.New(s.v.Major(), s.v.Minor(), s.v.Patch()+1, "", "")
	case MinorBump:
		s.v = semver.New(s.v.Major(), s.v.Minor()+1, 0, "", "")
	case MajorBump:
		s.v = semver.New(s.v.Major()+1, 0, 0, "", "")
	case DevDatecode:
		// Only the build metadata is overwritten. Metadata is ignored by
		// semver precedence, so the dev value never sorts below the release
		// it was derived from, and same-day dev builds are textually stable.
		nv, err := s.v.SetMetadata("dev." + utcDatecode())
		if err != nil {
			return err
		}
		s.v = &nv
	case ForceVersion:
		parsed, err := NewSemver(b.Force)
		if err != nil {
			return &UnsupportedBumpSchemeError{Spec: b.Spec, Grammar: s.grammarName()}
		}
		s.v = parsed.v
	default:
		return &UnsupportedBumpSchemeError{Spec: b.Spec, Grammar: s.grammarName()}
	}
	return nil
}
