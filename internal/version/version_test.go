package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemverParseRoundTrip(t *testing.T) {
	for _, text := range []string{
		"0.0.0",
		"1.2.3",
		"10.0.1-dev.0",
		"2.0.0-rc.1+build.5",
	} {
		v, err := NewSemver(text)
		require.NoError(t, err, text)

		back, err := v.ParseLike(v.String())
		require.NoError(t, err, text)
		assert.Equal(t, 0, v.Compare(back), text)
		assert.Equal(t, text, v.String())
	}
}

func TestSemverParseRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "1.2", "v1.2.3.4", "banana"} {
		_, err := NewSemver(text)
		assert.Error(t, err, text)
	}
}

func TestSemverZeroLike(t *testing.T) {
	v, err := NewSemver("4.5.6")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.ZeroLike().String())
}

func TestSemverDevSentinel(t *testing.T) {
	v, err := NewSemver("4.5.6")
	require.NoError(t, err)
	v.SetToDevValue()
	assert.Equal(t, "0.0.0-dev.0", v.String())
}

func TestSemverBumpSequenceNeverDecreases(t *testing.T) {
	v, err := NewSemver("1.2.3-dev.0+meta")
	require.NoError(t, err)

	prev := v.Clone()
	for _, spec := range []string{"micro bump", "minor bump", "major bump"} {
		scheme, err := ParseBumpScheme(spec)
		require.NoError(t, err)
		require.NoError(t, scheme.Apply(v))
		assert.Positive(t, v.Compare(prev), "%s from %s to %s", spec, prev, v)
		prev = v.Clone()
	}
	assert.Equal(t, "2.0.0", v.String())
}

func TestSemverBumpZeroesLowerComponents(t *testing.T) {
	cases := []struct {
		start, spec, want string
	}{
		{"1.2.3", "micro bump", "1.2.4"},
		{"1.2.3", "patch bump", "1.2.4"},
		{"1.2.3", "minor bump", "1.3.0"},
		{"1.2.3", "major bump", "2.0.0"},
		{"1.2.3-dev.0", "micro bump", "1.2.4"},
		{"1.2.3+b.1", "minor bump", "1.3.0"},
		{"0.0.0", "force 5.0.1", "5.0.1"},
	}

	for _, tc := range cases {
		v, err := NewSemver(tc.start)
		require.NoError(t, err)
		scheme, err := ParseBumpScheme(tc.spec)
		require.NoError(t, err)
		require.NoError(t, scheme.Apply(v))
		assert.Equal(t, tc.want, v.String(), "%s applied to %s", tc.spec, tc.start)
	}
}

func TestSemverDevDatecodeKeepsNumericComponents(t *testing.T) {
	v, err := NewSemver("1.2.3")
	require.NoError(t, err)
	lastRelease := v.Clone()

	scheme, err := ParseBumpScheme("dev-datecode")
	require.NoError(t, err)
	require.NoError(t, scheme.Apply(v))

	assert.Regexp(t, `^1\.2\.3\+dev\.\d{8}$`, v.String())

	// Build metadata carries no precedence, so the dev value must never
	// sort below the release it was derived from.
	assert.GreaterOrEqual(t, v.Compare(lastRelease), 0)

	// Applying it again on the same day must be textually stable.
	first := v.String()
	require.NoError(t, scheme.Apply(v))
	assert.Equal(t, first, v.String())
}

func TestSemverForceBadLiteralIsUnsupportedScheme(t *testing.T) {
	v, err := NewSemver("1.0.0")
	require.NoError(t, err)

	scheme, err := ParseBumpScheme("force not-a-version")
	require.NoError(t, err)

	err = scheme.Apply(v)
	var unsupported *UnsupportedBumpSchemeError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "1.0.0", v.String(), "version must be untouched on failure")
}

func TestParseBumpSchemeRejectsUnknownSpecs(t *testing.T) {
	for _, spec := range []string{"", "mega bump", "force", "force  ", "bump minor"} {
		_, err := ParseBumpScheme(spec)
		var unsupported *UnsupportedBumpSchemeError
		assert.ErrorAs(t, err, &unsupported, "%q", spec)
	}
}

func TestCompareAcrossGrammarsPanics(t *testing.T) {
	sv, err := NewSemver("1.0.0")
	require.NoError(t, err)
	pv, err := NewPep440("1.0.0")
	require.NoError(t, err)

	assert.Panics(t, func() { sv.Compare(pv) })
	assert.Panics(t, func() { pv.Compare(sv) })
}
