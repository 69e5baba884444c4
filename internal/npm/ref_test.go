package npm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "package-health/internal/errors"
)

func TestParsePackageRef(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"plain name", "react", "react"},
		{"trimmed", "  react ", "react"},
		{"legacy mixed case name keeps its case", "JSONStream", "JSONStream"},
		{"scoped name", "@types/node", "@types/node"},
		{"purl", "pkg:npm/lodash@4.17.21", "lodash"},
		{"scoped purl", "pkg:npm/%40angular/core@17.0.0", "@angular/core"},
		{"purl without version", "pkg:npm/express", "express"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePackageRef(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePackageRef_Invalid(t *testing.T) {
	for _, ref := range []string{"", "pkg:pypi/requests@2.0", "pkg:npm", "has spaces", "../etc", "@Types/node"} {
		t.Run(ref, func(t *testing.T) {
			_, err := ParsePackageRef(ref)
			var refErr *perrors.ErrInvalidPackageRef
			assert.ErrorAs(t, err, &refErr)
		})
	}
}

func TestExtractRepositoryURL(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"object with git+ prefix", map[string]any{"type": "git", "url": "git+https://github.com/facebook/react.git"}, "https://github.com/facebook/react"},
		{"git protocol", "git://github.com/expressjs/express.git", "https://github.com/expressjs/express"},
		{"ssh", "git@github.com:lodash/lodash.git", "https://github.com/lodash/lodash"},
		{"github shorthand", "github:vercel/next.js", "https://github.com/vercel/next.js"},
		{"bare shorthand", "sindresorhus/got", "https://github.com/sindresorhus/got"},
		{"other host", "https://gitlab.com/group/project.git", "https://gitlab.com/group/project"},
		{"missing", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractRepositoryURL(tt.in))
		})
	}
}

func TestExtractGitHubRepo(t *testing.T) {
	owner, repo, ok := ExtractGitHubRepo("https://github.com/facebook/react")
	require.True(t, ok)
	assert.Equal(t, "facebook", owner)
	assert.Equal(t, "react", repo)

	owner, repo, ok = ExtractGitHubRepo("git+https://www.github.com/vercel/next.js.git")
	require.True(t, ok)
	assert.Equal(t, "vercel", owner)
	assert.Equal(t, "next.js", repo)

	owner, repo, ok = ExtractGitHubRepo("https://github.com/babel/babel/tree/main/packages/core")
	require.True(t, ok)
	assert.Equal(t, "babel/babel", owner+"/"+repo)

	for _, u := range []string{"", "https://gitlab.com/group/project", "https://github.com/onlyowner"} {
		_, _, ok := ExtractGitHubRepo(u)
		assert.False(t, ok, u)
	}
}
