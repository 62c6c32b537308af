package version

import (
	"fmt"
	"strings"
	"time"
)

// BumpKind enumerates the ways a version can be advanced at release time.
type BumpKind int

const (
	// MicroBump increments the least-significant release component.
	MicroBump BumpKind = iota
	// MinorBump increments the middle component and zeroes everything below.
	MinorBump
	// MajorBump increments the leading component and zeroes everything below.
	MajorBump
	// DevDatecode overwrites the grammar's build label with the current UTC
	// date: build metadata for semver, the local label for PEP 440. Numeric
	// components are left alone, so the result never sorts below the
	// version it was derived from.
	DevDatecode
	// ForceVersion adopts an explicit version literal, validated against the
	// target grammar.
	ForceVersion
)

// BumpScheme is a parsed bump specification, e.g. "minor bump" or
// "force 1.2.3".
type BumpScheme struct {
	Kind  BumpKind
	Force string // literal for ForceVersion
	Spec  string // original text, for error messages
}

// UnsupportedBumpSchemeError indicates a bump spec that is not valid, either
// on its face or for the grammar it was applied to.
type UnsupportedBumpSchemeError struct {
	Spec    string
	Grammar string
}

func (e *UnsupportedBumpSchemeError) Error() string {
	if e.Grammar == "" {
		return fmt.Sprintf("unsupported version bump scheme %q", e.Spec)
	}
	return fmt.Sprintf("unsupported version bump scheme %q for %s version", e.Spec, e.Grammar)
}

// ParseBumpScheme parses the textual bump spec used in staged release
// requests and rc commit tables.
func ParseBumpScheme(text string) (*BumpScheme, error) {
	spec := strings.TrimSpace(text)

	switch spec {
	case "micro bump", "patch bump":
		return &BumpScheme{Kind: MicroBump, Spec: spec}, nil
	case "minor bump":
		return &BumpScheme{Kind: MinorBump, Spec: spec}, nil
	case "major bump":
		return &BumpScheme{Kind: MajorBump, Spec: spec}, nil
	case "dev-datecode":
		return &BumpScheme{Kind: DevDatecode, Spec: spec}, nil
	}

	if lit, ok := strings.CutPrefix(spec, "force "); ok {
		lit = strings.TrimSpace(lit)
		if lit != "" {
			return &BumpScheme{Kind: ForceVersion, Force: lit, Spec: spec}, nil
		}
	}

	return nil, &UnsupportedBumpSchemeError{Spec: spec}
}

// Apply advances v in place according to the scheme. The error is an
// UnsupportedBumpSchemeError when the scheme cannot be expressed under v's
// grammar (e.g. a force literal that does not parse).
func (b *BumpScheme) Apply(v Version) error {
	return v.applyBump(b)
}

func utcDatecode() string {
	return time.Now().UTC().Format("20060102")
}
