package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefixMatcher(t *testing.T) {
	m := NewPrefixMatcher("tools/cli/")

	assert.True(t, m.Matches("tools/cli/main.go"))
	assert.True(t, m.Matches("tools/cli/pkg/deep/file.go"))
	assert.False(t, m.Matches("tools/other/main.go"))
	assert.False(t, m.Matches("README.md"))
}

func TestRootMatcherCoversEverything(t *testing.T) {
	m := NewPrefixMatcher("")

	assert.True(t, m.Matches("main.go"))
	assert.True(t, m.Matches("deep/nested/path.txt"))
}

func TestMatcherExcludesSubProjects(t *testing.T) {
	m := NewPrefixMatcher("")
	m.Exclude("tools/cli/")

	assert.True(t, m.Matches("core/lib.go"))
	assert.False(t, m.Matches("tools/cli/main.go"))
}

func TestDepRequirementString(t *testing.T) {
	assert.Equal(t, "deadbeefdead (commit)",
		CommitRequirement("deadbeefdeadbeefdeadbeef").String())
	assert.Equal(t, "^1.0 (manual)", ManualRequirement("^1.0").String())
	assert.Equal(t, "(unavailable)", UnavailableRequirement().String())
}

func TestCommitIDShort(t *testing.T) {
	assert.Equal(t, "abc", CommitID("abc").Short())
	assert.Equal(t, "0123456789ab", CommitID("0123456789abcdef0123").Short())
}
