// Package models defines the core data structures used throughout the application.
package models

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryRef identifies a GitHub repository by owner and name
type RepositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// ParseRepositoryRef parses an "owner/name" string.
func ParseRepositoryRef(s string) (RepositoryRef, error) {
	s = strings.TrimSpace(s)
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepositoryRef{}, fmt.Errorf("invalid repository %q: expected owner/name", s)
	}
	return RepositoryRef{Owner: owner, Name: name}, nil
}

func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// Commit represents a commit fetched from the hosting API. It is never
// modified once the source adapter has built it.
//
// Timestamp is the committer date, the one GitHub filters and orders
// commits by. AuthoredAt differs from it for rebased or cherry-picked
// commits.
type Commit struct {
	SHA         string        `json:"sha"`
	Repository  RepositoryRef `json:"repository"`
	AuthorName  string        `json:"author_name"`
	AuthorEmail string        `json:"author_email"`
	AuthorLogin string        `json:"author_login,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	AuthoredAt  time.Time     `json:"authored_at"`
	Message     string        `json:"message"`
	URL         string        `json:"url"`
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(subject)
}

// Body returns the commit message without its subject line.
func (c Commit) Body() string {
	_, body, _ := strings.Cut(c.Message, "\n")
	return strings.TrimSpace(body)
}

// ShortSHA returns the abbreviated seven character hash.
func (c Commit) ShortSHA() string {
	if len(c.SHA) > 7 {
		return c.SHA[:7]
	}
	return c.SHA
}

// Author returns the raw author fields of the commit.
func (c Commit) Author() RawAuthor {
	return RawAuthor{Name: c.AuthorName, Email: c.AuthorEmail, Login: c.AuthorLogin}
}

// RawAuthor holds the author fields exactly as reported for a commit
type RawAuthor struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Login string `json:"login,omitempty"`
}

// ContributorIdentity is the canonical representation of a person.
type ContributorIdentity struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Emails      []string `json:"emails"`
	Logins      []string `json:"logins"`
}

// Matches reports whether the identity is known by the given login or email.
func (ci ContributorIdentity) Matches(handle string) bool {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return false
	}
	for _, l := range ci.Logins {
		if strings.ToLower(l) == handle {
			return true
		}
	}
	for _, e := range ci.Emails {
		if strings.ToLower(e) == handle {
			return true
		}
	}
	return false
}

// RepositoryCommits groups one contributor's commits for a single repository
type RepositoryCommits struct {
	Repository RepositoryRef `json:"repository"`
	Commits    []Commit      `json:"commits"`
}

// ContributorCommits holds the commits attributed to a contributor, ordered
// by timestamp ascending.
type ContributorCommits struct {
	Contributor  ContributorIdentity `json:"contributor"`
	Commits      []Commit            `json:"commits"`
	Repositories []RepositoryCommits `json:"repositories,omitempty"`
}

// FailureKind classifies why a repository could not be fetched
type FailureKind string

const (
	FailureSourceUnavailable  FailureKind = "source_unavailable"
	FailureRepositoryNotFound FailureKind = "repository_not_found"
	FailureRateLimited        FailureKind = "rate_limited"
)

// RepositoryFailure records a repository whose fetch failed.
type RepositoryFailure struct {
	Repository RepositoryRef `json:"repository"`
	Kind       FailureKind   `json:"kind"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// AggregationResult is the grouped outcome of one aggregation run.
type AggregationResult struct {
	Date         time.Time            `json:"date"`
	Timezone     string               `json:"timezone"`
	Repositories []RepositoryRef      `json:"repositories"`
	Contributors []ContributorCommits `json:"contributors"`
	Failures     []RepositoryFailure  `json:"failures,omitempty"`
	Warnings     []string             `json:"warnings,omitempty"`
}

// TotalCommits returns the number of commits across all contributors
func (r *AggregationResult) TotalCommits() int {
	total := 0
	for _, c := range r.Contributors {
		total += len(c.Commits)
	}
	return total
}
