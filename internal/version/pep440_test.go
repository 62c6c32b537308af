package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPep440ParseRoundTrip(t *testing.T) {
	for _, text := range []string{
		"0",
		"1.2.3",
		"2!1.0",
		"1.0a1",
		"1.0b2",
		"1.0rc1",
		"1.0.post2",
		"1.0.dev3",
		"1.0a1.dev1",
		"0.0.0.dev0",
		"1.2.3+dev.20260831",
	} {
		v, err := NewPep440(text)
		require.NoError(t, err, text)

		back, err := v.ParseLike(v.String())
		require.NoError(t, err, text)
		assert.Equal(t, 0, v.Compare(back), text)
		assert.Equal(t, text, v.String())
	}
}

func TestPep440ParseRejectsGarbage(t *testing.T) {
	for _, text := range []string{"", "1.2.3.post", "1.0c1", "one.two", "1.0+", "1.0+Local"} {
		_, err := NewPep440(text)
		assert.Error(t, err, text)
	}
}

func TestPep440Ordering(t *testing.T) {
	ordered := []string{
		"1.0.dev1",
		"1.0a1.dev1",
		"1.0a1",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0+dev.20260831",
		"1.0.post1",
		"1.0.1",
		"1.1",
		"2!0.5",
	}

	for i := 1; i < len(ordered); i++ {
		lo, err := NewPep440(ordered[i-1])
		require.NoError(t, err)
		hi, err := NewPep440(ordered[i])
		require.NoError(t, err)
		assert.Negative(t, lo.Compare(hi), "%s < %s", ordered[i-1], ordered[i])
		assert.Positive(t, hi.Compare(lo), "%s > %s", ordered[i], ordered[i-1])
	}
}

func TestPep440ReleasePaddingComparesEqual(t *testing.T) {
	a, err := NewPep440("1.0")
	require.NoError(t, err)
	b, err := NewPep440("1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Compare(b))
}

func TestPep440Bumps(t *testing.T) {
	cases := []struct {
		start, spec, want string
	}{
		{"1.2.3", "micro bump", "1.2.4"},
		{"1.2.3", "minor bump", "1.3.0"},
		{"1.2.3", "major bump", "2.0.0"},
		{"1.2", "micro bump", "1.2.1"},
		{"1.0rc1", "micro bump", "1.0.1"},
		{"1.0.post1", "major bump", "2.0"},
		{"1.0.dev5", "minor bump", "1.1"},
		{"1.0+dev.20260831", "micro bump", "1.0.1"},
		{"1.0", "force 3.0a1", "3.0a1"},
	}

	for _, tc := range cases {
		v, err := NewPep440(tc.start)
		require.NoError(t, err)
		scheme, err := ParseBumpScheme(tc.spec)
		require.NoError(t, err)
		require.NoError(t, scheme.Apply(v))
		assert.Equal(t, tc.want, v.String(), "%s applied to %s", tc.spec, tc.start)
	}
}

func TestPep440DevDatecode(t *testing.T) {
	v, err := NewPep440("1.2.3")
	require.NoError(t, err)
	lastRelease := v.Clone()

	scheme, err := ParseBumpScheme("dev-datecode")
	require.NoError(t, err)
	require.NoError(t, scheme.Apply(v))
	assert.Regexp(t, `^1\.2\.3\+dev\.\d{8}$`, v.String())

	// The local label sorts at or above the bare version, never below it.
	assert.GreaterOrEqual(t, v.Compare(lastRelease), 0)

	first := v.String()
	require.NoError(t, scheme.Apply(v))
	assert.Equal(t, first, v.String())
}

func TestPep440DevSentinel(t *testing.T) {
	v, err := NewPep440("7.1")
	require.NoError(t, err)
	v.SetToDevValue()
	assert.Equal(t, "0.0.0.dev0", v.String())
}
