package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Pep440 is a Python-style version:
// [N!]N(.N)*[{a|b|rc}N][.postN][.devN][+local]. Legacy spellings are not
// accepted; this covers the canonical forms that versioned Python projects
// in a monorepo actually publish.
type Pep440 struct {
	Epoch   int
	Release []int
	PreKind string // "a", "b", "rc", or ""
	PreNum  int
	Post    *int
	Dev     *int
	Local   string // dot-separated lowercase alphanumeric segments, or ""
}

var pep440Pattern = regexp.MustCompile(
	`^(?:(\d+)!)?(\d+(?:\.\d+)*)(?:(a|b|rc)(\d+))?(?:\.post(\d+))?(?:\.dev(\d+))?(?:\+([a-z0-9]+(?:\.[a-z0-9]+)*))?$`)

// NewPep440 parses text as a canonical PEP 440 version.
func NewPep440(text string) (*Pep440, error) {
	m := pep440Pattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, fmt.Errorf("parsing %q as a PEP 440 version: unrecognized format", text)
	}

	v := &Pep440{}
	if m[1] != "" {
		v.Epoch, _ = strconv.Atoi(m[1])
	}
	for _, seg := range strings.Split(m[2], ".") {
		n, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as a PEP 440 version: release segment %q out of range", text, seg)
		}
		v.Release = append(v.Release, n)
	}
	if m[3] != "" {
		v.PreKind = m[3]
		v.PreNum, _ = strconv.Atoi(m[4])
	}
	if m[5] != "" {
		n, _ := strconv.Atoi(m[5])
		v.Post = &n
	}
	if m[6] != "" {
		n, _ := strconv.Atoi(m[6])
		v.Dev = &n
	}
	v.Local = m[7]
	return v, nil
}

func (p *Pep440) ParseLike(text string) (Version, error) {
	return NewPep440(text)
}

func (p *Pep440) ZeroLike() Version {
	return &Pep440{Release: []int{0, 0, 0}}
}

func (p *Pep440) Clone() Version {
	c := *p
	c.Release = append([]int(nil), p.Release...)
	if p.Post != nil {
		n := *p.Post
		c.Post = &n
	}
	if p.Dev != nil {
		n := *p.Dev
		c.Dev = &n
	}
	return &c
}

func (p *Pep440) SetToDevValue() {
	zero := 0
	*p = Pep440{Release: []int{0, 0, 0}, Dev: &zero}
}

func (p *Pep440) Compare(other Version) int {
	o, ok := other.(*Pep440)
	if !ok {
		panic(fmt.Sprintf("comparing pep440 version against %s version", other.grammarName()))
	}

	if p.Epoch != o.Epoch {
		return cmpInt(p.Epoch, o.Epoch)
	}

	n := len(p.Release)
	if len(o.Release) > n {
		n = len(o.Release)
	}
	for i := 0; i < n; i++ {
		if c := cmpInt(releaseSegment(p.Release, i), releaseSegment(o.Release, i)); c != 0 {
			return c
		}
	}

	if c := cmpInt(p.phaseRank(), o.phaseRank()); c != 0 {
		return c
	}
	if p.PreKind != "" && p.PreKind == o.PreKind {
		if c := cmpInt(p.PreNum, o.PreNum); c != 0 {
			return c
		}
	}
	if c := cmpOptional(p.Post, o.Post, 1); c != 0 {
		return c
	}
	// A dev segment sorts before its absence: 1.0a1.dev1 < 1.0a1.
	if c := cmpOptional(p.Dev, o.Dev, -1); c != 0 {
		return c
	}
	// A local label sorts after its absence: 1.0 < 1.0+dev.20260831.
	return cmpLocal(p.Local, o.Local)
}

// phaseRank orders the release phases: dev-only < a < b < rc < final/post.
func (p *Pep440) phaseRank() int {
	switch p.PreKind {
	case "a":
		return 0
	case "b":
		return 1
	case "rc":
		return 2
	}
	if p.Dev != nil && p.Post == nil {
		return -1
	}
	return 3
}

func (p *Pep440) String() string {
	var sb strings.Builder
	if p.Epoch != 0 {
		fmt.Fprintf(&sb, "%d!", p.Epoch)
	}
	for i, seg := range p.Release {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(seg))
	}
	if p.PreKind != "" {
		fmt.Fprintf(&sb, "%s%d", p.PreKind, p.PreNum)
	}
	if p.Post != nil {
		fmt.Fprintf(&sb, ".post%d", *p.Post)
	}
	if p.Dev != nil {
		fmt.Fprintf(&sb, ".dev%d", *p.Dev)
	}
	if p.Local != "" {
		fmt.Fprintf(&sb, "+%s", p.Local)
	}
	return sb.String()
}

func (p *Pep440) grammarName() string {
	return "pep440"
}

func (p *Pep440) applyBump(b *BumpScheme) error {
	switch b.Kind {
	case MicroBump:
		p.incRelease(2)
	case MinorBump:
		p.incRelease(1)
	case MajorBump:
		p.incRelease(0)
	case DevDatecode:
		// The local label is the only PEP 440 annotation that never sorts
		// below the bare version; a .devN suffix would.
		p.Local = "dev." + utcDatecode()
	case ForceVersion:
		parsed, err := NewPep440(b.Force)
		if err != nil {
			return &UnsupportedBumpSchemeError{Spec: b.Spec, Grammar: p.grammarName()}
		}
		*p = *parsed
	default:
		return &UnsupportedBumpSchemeError{Spec: b.Spec, Grammar: p.grammarName()}
	}
	return nil
}

// incRelease increments the release segment at index idx, zeroing everything
// less significant and clearing pre/post/dev annotations.
func (p *Pep440) incRelease(idx int) {
	for len(p.Release) <= idx {
		p.Release = append(p.Release, 0)
	}
	p.Release[idx]++
	for i := idx + 1; i < len(p.Release); i++ {
		p.Release[i] = 0
	}
	p.PreKind = ""
	p.PreNum = 0
	p.Post = nil
	p.Dev = nil
	p.Local = ""
}

func releaseSegment(rel []int, i int) int {
	if i < len(rel) {
		return rel[i]
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cmpLocal orders local version labels: absence sorts first, then segments
// compare pairwise with numeric segments numerically and ranking above
// alphanumeric ones, and a longer label breaks remaining ties.
func cmpLocal(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}

	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		switch {
		case aerr == nil && berr == nil:
			if c := cmpInt(an, bn); c != 0 {
				return c
			}
		case aerr == nil:
			return 1
		case berr == nil:
			return -1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

// cmpOptional compares optional integer segments. presentRank is +1 when a
// present segment sorts after absence (post releases), -1 when before (dev
// releases).
func cmpOptional(a, b *int, presentRank int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -presentRank
	case b == nil:
		return presentRank
	}
	return cmpInt(*a, *b)
}
