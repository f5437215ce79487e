// Package render prints a summary report as plain text, Markdown or JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/mcgillij/gitlog-summary/models"
	"github.com/mcgillij/gitlog-summary/summary"
)

// Output formats
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// ErrUnknownFormat is returned for an unsupported output format
var ErrUnknownFormat = fmt.Errorf("unknown output format")

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatText, FormatMarkdown, FormatJSON}
}

const textTemplate = `Commits for {{.Date}} ({{.Timezone}})
{{if not .Sections}}
{{if .Failures}}No commits found in the repositories that could be read.{{else}}No commits found.{{end}}
{{end}}{{range .Sections}}
{{.Contributor.DisplayName}} ({{plural .Count}})
{{if .Narrative}}{{indent .Narrative}}
{{end}}{{if .Repositories}}{{range .Repositories}}  {{.Repository}}
{{range .Entries}}    {{.ShortSHA}} {{.Subject}}
{{end}}{{end}}{{else}}{{range .Entries}}  [{{.Repository}}] {{.ShortSHA}} {{.Subject}}
{{end}}{{end}}{{end}}{{if .Failures}}
Failed to fetch:
{{range .Failures}}  {{failure .}}
{{end}}{{end}}{{if .Warnings}}
Warnings:
{{range .Warnings}}  {{.}}
{{end}}{{end}}`

const markdownTemplate = `# Commits for {{.Date}} ({{.Timezone}})
{{if not .Sections}}
{{if .Failures}}_No commits found in the repositories that could be read._{{else}}_No commits found._{{end}}
{{end}}{{range .Sections}}
## {{.Contributor.DisplayName}} ({{plural .Count}})
{{if .Narrative}}
{{quote .Narrative}}
{{end}}
{{if .Repositories}}{{range $i, $r := .Repositories}}{{if $i}}
{{end}}**{{$r.Repository}}**

{{range $r.Entries}}- {{link .}} {{.Subject}}
{{end}}{{end}}{{else}}{{range .Entries}}- {{link .}} {{.Subject}} ({{.Repository}})
{{end}}{{end}}{{end}}{{if .Failures}}
## Failed to fetch

{{range .Failures}}- {{failure .}}
{{end}}{{end}}{{if .Warnings}}
## Warnings

{{range .Warnings}}- {{.}}
{{end}}{{end}}`

var funcs = template.FuncMap{
	"plural": func(n int) string {
		if n == 1 {
			return "1 commit"
		}
		return fmt.Sprintf("%d commits", n)
	},
	"failure": describeFailure,
	"indent": func(s string) string {
		return prefixLines(s, "  ")
	},
	"quote": func(s string) string {
		return prefixLines(s, "> ")
	},
	"link": func(e summary.Entry) string {
		if e.URL == "" {
			return "`" + e.ShortSHA + "`"
		}
		return fmt.Sprintf("[`%s`](%s)", e.ShortSHA, e.URL)
	},
}

var templates = template.Must(template.New(FormatText).Funcs(funcs).Parse(textTemplate))

func init() {
	template.Must(templates.New(FormatMarkdown).Parse(markdownTemplate))
}

// Render writes report to w in the given format.
func Render(w io.Writer, report summary.Report, format string) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		return templates.ExecuteTemplate(w, FormatText, report)
	case FormatMarkdown, "md":
		return templates.ExecuteTemplate(w, FormatMarkdown, report)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
}

func describeFailure(f models.RepositoryFailure) string {
	var reason string
	switch f.Kind {
	case models.FailureRepositoryNotFound:
		reason = "repository not found"
	case models.FailureRateLimited:
		reason = "rate limited"
		if f.RetryAfter > 0 {
			reason += fmt.Sprintf(" (retry after %s)", f.RetryAfter.Round(time.Second))
		}
	default:
		reason = "source unavailable"
	}
	return f.Repository.String() + ": " + reason
}

func prefixLines(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(prefix+line, " ")
	}
	return strings.Join(lines, "\n")
}
