package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepositoryRef(t *testing.T) {
	testCases := []struct {
		input    string
		expected RepositoryRef
		wantErr  bool
	}{
		{input: "org/repo", expected: RepositoryRef{Owner: "org", Name: "repo"}},
		{input: "  org/repo ", expected: RepositoryRef{Owner: "org", Name: "repo"}},
		{input: "org", wantErr: true},
		{input: "/repo", wantErr: true},
		{input: "org/", wantErr: true},
		{input: "org/repo/extra", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			ref, err := ParseRepositoryRef(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ref)
			assert.Equal(t, "org/repo", ref.String())
		})
	}
}

func TestCommitMessageParts(t *testing.T) {
	c := Commit{SHA: "0123456789abcdef", Message: "Fix the parser \n\nLonger explanation\nsecond line"}

	assert.Equal(t, "Fix the parser", c.Subject())
	assert.Equal(t, "Longer explanation\nsecond line", c.Body())
	assert.Equal(t, "0123456", c.ShortSHA())
	assert.Equal(t, "abc", Commit{SHA: "abc"}.ShortSHA())
}

func TestContributorIdentityMatches(t *testing.T) {
	ci := ContributorIdentity{
		ID:     "email:alice@example.com",
		Emails: []string{"alice@example.com"},
		Logins: []string{"Alice"},
	}

	assert.True(t, ci.Matches("alice"))
	assert.True(t, ci.Matches(" ALICE@example.com "))
	assert.False(t, ci.Matches("bob"))
	assert.False(t, ci.Matches(""))
}
