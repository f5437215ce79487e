// Package summary turns an aggregation result into an ordered report.
package summary

import (
	"sort"
	"strings"
	"time"

	"github.com/mcgillij/gitlog-summary/models"
	"github.com/mcgillij/gitlog-summary/window"
)

// Status tells a quiet day apart from a day that could not be fully read
type Status string

const (
	StatusOK      Status = "ok"
	StatusEmpty   Status = "empty"
	StatusPartial Status = "partial"
)

// Entry is one commit line in a section
type Entry struct {
	Repository string    `json:"repository"`
	SHA        string    `json:"sha"`
	ShortSHA   string    `json:"short_sha"`
	Subject    string    `json:"subject"`
	URL        string    `json:"url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RepositorySection lists a contributor's entries for one repository
type RepositorySection struct {
	Repository string  `json:"repository"`
	Entries    []Entry `json:"entries"`
}

// Section is the part of the report for one contributor
type Section struct {
	Contributor  models.ContributorIdentity `json:"contributor"`
	Count        int                        `json:"count"`
	Entries      []Entry                    `json:"entries"`
	Repositories []RepositorySection        `json:"repositories,omitempty"`
	Narrative    string                     `json:"narrative,omitempty"`
}

// Report is the presentation-ready summary of one day
type Report struct {
	Date         string                     `json:"date"`
	Timezone     string                     `json:"timezone"`
	Status       Status                     `json:"status"`
	Repositories []string                   `json:"repositories"`
	TotalCommits int                        `json:"total_commits"`
	Sections     []Section                  `json:"sections"`
	Failures     []models.RepositoryFailure `json:"failures,omitempty"`
	Warnings     []string                   `json:"warnings,omitempty"`
}

// Build orders the contributors of result by commit count, most active
// first, ties broken by display name ignoring case and then by identity.
func Build(result *models.AggregationResult) Report {
	loc := result.Date.Location()

	report := Report{
		Date:     result.Date.Format(window.DateLayout),
		Timezone: result.Timezone,
		Sections: make([]Section, 0, len(result.Contributors)),
		Failures: result.Failures,
		Warnings: result.Warnings,
	}
	for _, r := range result.Repositories {
		report.Repositories = append(report.Repositories, r.String())
	}

	for _, cc := range result.Contributors {
		if len(cc.Commits) == 0 {
			continue
		}
		section := Section{
			Contributor: cc.Contributor,
			Count:       len(cc.Commits),
			Entries:     entries(cc.Commits, loc),
		}
		for _, rc := range cc.Repositories {
			section.Repositories = append(section.Repositories, RepositorySection{
				Repository: rc.Repository.String(),
				Entries:    entries(rc.Commits, loc),
			})
		}
		report.Sections = append(report.Sections, section)
		report.TotalCommits += section.Count
	}

	sort.SliceStable(report.Sections, func(i, j int) bool {
		a, b := report.Sections[i], report.Sections[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		an, bn := strings.ToLower(a.Contributor.DisplayName), strings.ToLower(b.Contributor.DisplayName)
		if an != bn {
			return an < bn
		}
		return a.Contributor.ID < b.Contributor.ID
	})

	report.Status = report.status()
	return report
}

func (r Report) status() Status {
	switch {
	case len(r.Failures) > 0:
		return StatusPartial
	case r.TotalCommits == 0:
		return StatusEmpty
	default:
		return StatusOK
	}
}

func entries(commits []models.Commit, loc *time.Location) []Entry {
	out := make([]Entry, 0, len(commits))
	for _, c := range commits {
		out = append(out, Entry{
			Repository: c.Repository.String(),
			SHA:        c.SHA,
			ShortSHA:   c.ShortSHA(),
			Subject:    c.Subject(),
			URL:        c.URL,
			Timestamp:  c.Timestamp.In(loc),
		})
	}
	return out
}

// Subjects returns the commit subjects of a section in order.
func (s Section) Subjects() []string {
	out := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.Subject)
	}
	return out
}
