// Package identity resolves raw commit authors into canonical contributors.
//
// Every login and email seen on a commit becomes a key in a union-find
// forest. Observing an author that carries both a login and an email joins
// the two keys; platform email lookups can join more. The root of each set
// is its lexicographically smallest key, so the final partition does not
// depend on the order in which commits arrive.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mcgillij/gitlog-summary/logger"
	"github.com/mcgillij/gitlog-summary/models"
)

// ErrIdentityAmbiguous is reported in strict mode when evidence would merge
// two contributors that are already known under different logins.
var ErrIdentityAmbiguous = errors.New("identity ambiguous")

const (
	loginPrefix = "login:"
	emailPrefix = "email:"
	namePrefix  = "name:"
)

// UnknownAuthor is the display name of commits carrying no login, email or
// name. All such commits share one identity.
const UnknownAuthor = "Unknown author"


// EmailLookup returns the email addresses the hosting platform attributes
// to a login.
type EmailLookup interface {
	ListUserEmails(ctx context.Context, login string) ([]string, error)
}

// Conflict describes a merge refused in strict mode.
type Conflict struct {
	Login    string
	Email    string
	Existing []string
}

func (c Conflict) Error() string {
	return fmt.Sprintf("%s: email %s of %s already belongs to %s",
		ErrIdentityAmbiguous, c.Email, c.Login, strings.Join(c.Existing, ", "))
}

func (c Conflict) Unwrap() error {
	return ErrIdentityAmbiguous
}

// Resolver maintains the identity partition for a single run. It is not
// safe for concurrent use; callers serialize access.
type Resolver struct {
	strict bool

	parent map[string]string
	// logins per root, lower-cased keys mapped to their display form
	logins map[string]map[string]string
	// author names observed per key with their counts
	names map[string]map[string]int
	// smallest original-case spelling per login or email key
	display map[string]string

	conflicts []Conflict
}

// NewResolver returns an empty resolver. In strict mode merges that would
// join two differently named logins are refused and recorded as conflicts.
func NewResolver(strict bool) *Resolver {
	return &Resolver{
		strict:  strict,
		parent:  make(map[string]string),
		logins:  make(map[string]map[string]string),
		names:   make(map[string]map[string]int),
		display: make(map[string]string),
	}
}

func loginKey(login string) string {
	login = strings.TrimSpace(login)
	if login == "" {
		return ""
	}
	return loginPrefix + strings.ToLower(login)
}

func emailKey(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	return emailPrefix + strings.ToLower(email)
}

func nameKey(name string) string {
	return namePrefix + strings.TrimSpace(name)
}

// primaryKey is the key an author is attributed to: login first, then email,
// then the bare name for authors with neither.
func primaryKey(raw models.RawAuthor) string {
	if k := loginKey(raw.Login); k != "" {
		return k
	}
	if k := emailKey(raw.Email); k != "" {
		return k
	}
	return nameKey(raw.Name)
}

func (r *Resolver) add(key, original string) {
	if _, ok := r.parent[key]; !ok {
		r.parent[key] = key
		if strings.HasPrefix(key, loginPrefix) {
			r.logins[key] = map[string]string{key: original}
		}
	}
	original = strings.TrimSpace(original)
	if cur, ok := r.display[key]; !ok || original < cur {
		r.display[key] = original
	}
	if strings.HasPrefix(key, loginPrefix) {
		r.logins[r.find(key)][key] = r.display[key]
	}
}

func (r *Resolver) find(key string) string {
	root := key
	for r.parent[root] != root {
		root = r.parent[root]
	}
	for key != root {
		next := r.parent[key]
		r.parent[key] = root
		key = next
	}
	return root
}

// union joins the sets of a and b. The smaller key becomes the root.
func (r *Resolver) union(a, b string) {
	ra, rb := r.find(a), r.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	r.parent[rb] = ra
	if moved, ok := r.logins[rb]; ok {
		if r.logins[ra] == nil {
			r.logins[ra] = make(map[string]string, len(moved))
		}
		for k, v := range moved {
			r.logins[ra][k] = v
		}
		delete(r.logins, rb)
	}
}

// link joins a login with an email, applying the strict-mode conflict check.
func (r *Resolver) link(lk, ek string) {
	rl, re := r.find(lk), r.find(ek)
	if rl == re {
		return
	}
	if r.strict && len(r.logins[re]) > 0 {
		existing := make([]string, 0, len(r.logins[re]))
		for _, v := range r.logins[re] {
			existing = append(existing, v)
		}
		sort.Strings(existing)
		c := Conflict{Login: r.display[lk], Email: r.display[ek], Existing: existing}
		for _, prev := range r.conflicts {
			if prev.Login == c.Login && prev.Email == c.Email {
				return
			}
		}
		r.conflicts = append(r.conflicts, c)
		logger.Warn("Refusing ambiguous identity merge",
			zap.String("login", c.Login),
			zap.String("email", c.Email),
			zap.Strings("existing_logins", existing))
		return
	}
	r.union(lk, ek)
}

// Observe records a raw author, creating or merging identities as needed.
func (r *Resolver) Observe(raw models.RawAuthor) {
	lk, ek := loginKey(raw.Login), emailKey(raw.Email)
	if lk != "" {
		r.add(lk, raw.Login)
	}
	if ek != "" {
		r.add(ek, raw.Email)
	}

	pk := primaryKey(raw)
	if lk == "" && ek == "" {
		r.add(pk, raw.Name)
	}
	if name := strings.TrimSpace(raw.Name); name != "" {
		if r.names[pk] == nil {
			r.names[pk] = make(map[string]int)
		}
		r.names[pk][name]++
	}

	if lk != "" && ek != "" {
		r.link(lk, ek)
	}
}

// lookupRoot finds the set an author belongs to using login priority:
// a known login wins over a known email.
func (r *Resolver) lookupRoot(raw models.RawAuthor) (string, bool) {
	if lk := loginKey(raw.Login); lk != "" {
		if _, ok := r.parent[lk]; ok {
			return r.find(lk), true
		}
	}
	if ek := emailKey(raw.Email); ek != "" {
		if _, ok := r.parent[ek]; ok {
			return r.find(ek), true
		}
	}
	if lk, ek := loginKey(raw.Login), emailKey(raw.Email); lk == "" && ek == "" {
		nk := nameKey(raw.Name)
		if _, ok := r.parent[nk]; ok {
			return r.find(nk), true
		}
	}
	return "", false
}

// IdentityOf returns the canonical identity ID of an author, observing the
// author first when it has not been seen.
func (r *Resolver) IdentityOf(raw models.RawAuthor) string {
	if root, ok := r.lookupRoot(raw); ok {
		return root
	}
	r.Observe(raw)
	root, _ := r.lookupRoot(raw)
	return root
}

// Resolve maps a raw author to its canonical identity: an exact login match
// first, then an exact email match, otherwise a new identity.
// The author is observed, so any new login or email becomes part of the
// returned identity.
func (r *Resolver) Resolve(raw models.RawAuthor) models.ContributorIdentity {
	r.Observe(raw)
	root, _ := r.lookupRoot(raw)
	return r.build(root, r.members()[root])
}

// Enrich merges identities using the platform's view of each login's email
// addresses. Only addresses already observed on commits are linked, so
// repeated calls have no further effect. Lookup failures are returned as
// warnings; only context cancellation stops the pass.
func (r *Resolver) Enrich(ctx context.Context, lookup EmailLookup) ([]error, error) {
	if lookup == nil {
		return nil, nil
	}

	var logins []string
	for key := range r.parent {
		if strings.HasPrefix(key, loginPrefix) {
			logins = append(logins, key)
		}
	}
	sort.Strings(logins)

	var warnings []error
	for _, lk := range logins {
		if err := ctx.Err(); err != nil {
			return warnings, err
		}
		login := r.display[lk]
		emails, err := lookup.ListUserEmails(ctx, login)
		if err != nil {
			if ctx.Err() != nil {
				return warnings, ctx.Err()
			}
			logger.Warn("Email lookup failed",
				zap.String("login", login),
				zap.Error(err))
			warnings = append(warnings, fmt.Errorf("email lookup for %s: %w", login, err))
			continue
		}
		sort.Strings(emails)
		for _, email := range emails {
			ek := emailKey(email)
			if ek == "" {
				continue
			}
			if _, seen := r.parent[ek]; !seen {
				continue
			}
			r.link(lk, ek)
		}
	}
	return warnings, nil
}

// Conflicts returns merges refused in strict mode, in the order detected.
func (r *Resolver) Conflicts() []Conflict {
	out := make([]Conflict, len(r.conflicts))
	copy(out, r.conflicts)
	return out
}

func (r *Resolver) members() map[string][]string {
	groups := make(map[string][]string)
	for key := range r.parent {
		root := r.find(key)
		groups[root] = append(groups[root], key)
	}
	return groups
}

// Partition returns every canonical identity, sorted by ID.
func (r *Resolver) Partition() []models.ContributorIdentity {
	groups := r.members()
	out := make([]models.ContributorIdentity, 0, len(groups))
	for root, keys := range groups {
		out = append(out, r.build(root, keys))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Identities returns the partition indexed by identity ID.
func (r *Resolver) Identities() map[string]models.ContributorIdentity {
	groups := r.members()
	out := make(map[string]models.ContributorIdentity, len(groups))
	for root, keys := range groups {
		out[root] = r.build(root, keys)
	}
	return out
}

func (r *Resolver) build(root string, keys []string) models.ContributorIdentity {
	sort.Strings(keys)
	ci := models.ContributorIdentity{ID: root}
	counts := make(map[string]int)
	for _, key := range keys {
		switch {
		case strings.HasPrefix(key, loginPrefix):
			ci.Logins = append(ci.Logins, r.display[key])
		case strings.HasPrefix(key, emailPrefix):
			ci.Emails = append(ci.Emails, r.display[key])
		}
		for name, n := range r.names[key] {
			counts[name] += n
		}
	}
	sort.Strings(ci.Logins)
	sort.Strings(ci.Emails)

	best, bestCount := "", 0
	for name, n := range counts {
		if n > bestCount || (n == bestCount && name < best) {
			best, bestCount = name, n
		}
	}
	switch {
	case best != "":
		ci.DisplayName = best
	case len(ci.Logins) > 0:
		ci.DisplayName = ci.Logins[0]
	case len(ci.Emails) > 0:
		ci.DisplayName = ci.Emails[0]
	case root != namePrefix:
		ci.DisplayName = strings.TrimPrefix(root, namePrefix)
	default:
		ci.DisplayName = UnknownAuthor
	}
	return ci
}
