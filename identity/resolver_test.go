package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcgillij/gitlog-summary/models"
)

// MockEmailLookup is a mock implementation of the platform email lookup
type MockEmailLookup struct {
	mock.Mock
}

func (m *MockEmailLookup) ListUserEmails(ctx context.Context, login string) ([]string, error) {
	args := m.Called(ctx, login)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func partitionOf(r *Resolver) [][]string {
	var out [][]string
	for _, ci := range r.Partition() {
		keys := append([]string{}, ci.Logins...)
		keys = append(keys, ci.Emails...)
		out = append(out, keys)
	}
	return out
}

func TestResolvePriority(t *testing.T) {
	r := NewResolver(false)

	alice := r.Resolve(models.RawAuthor{Name: "alice", Email: "alice@example.com"})
	assert.Equal(t, "email:alice@example.com", alice.ID)

	// same email, new login: joins the existing identity
	merged := r.Resolve(models.RawAuthor{Name: "alice", Email: "alice@example.com", Login: "alice-gh"})
	assert.Equal(t, alice.ID, merged.ID)
	assert.Equal(t, []string{"alice-gh"}, merged.Logins)
	assert.Equal(t, "alice", merged.DisplayName)

	// login match wins even with an unrelated email
	byLogin := r.Resolve(models.RawAuthor{Name: "Alice L.", Email: "alice@work.example", Login: "Alice-GH"})
	assert.Equal(t, alice.ID, byLogin.ID)

	// unknown author becomes a new identity
	bob := r.Resolve(models.RawAuthor{Name: "bob", Email: "bob@example.com"})
	assert.NotEqual(t, alice.ID, bob.ID)
	assert.Len(t, r.Partition(), 2)
}

func TestObserveWithoutLoginOrEmail(t *testing.T) {
	r := NewResolver(false)
	r.Observe(models.RawAuthor{Name: "ghost"})

	ci := r.Resolve(models.RawAuthor{Name: "ghost"})
	assert.Equal(t, "name:ghost", ci.ID)
	assert.Equal(t, "ghost", ci.DisplayName)
	assert.Empty(t, ci.Emails)
}

func TestObserveAnonymousAuthor(t *testing.T) {
	r := NewResolver(false)
	r.Observe(models.RawAuthor{})
	r.Observe(models.RawAuthor{Name: "  "})
	r.Observe(models.RawAuthor{Name: "ghost"})

	ci := r.Resolve(models.RawAuthor{})
	assert.Equal(t, "name:", ci.ID)
	assert.Equal(t, UnknownAuthor, ci.DisplayName)
	assert.Equal(t, ci.ID, r.IdentityOf(models.RawAuthor{Name: " "}))
	assert.Len(t, r.Partition(), 2)
}

func TestPartitionIndependentOfOrder(t *testing.T) {
	authors := []models.RawAuthor{
		{Name: "alice", Email: "alice@example.com"},
		{Name: "Alice", Email: "alice@personal.example", Login: "alice-gh"},
		{Name: "alice", Email: "alice@example.com", Login: "alice-gh"},
		{Name: "bob", Email: "bob@example.com", Login: "bobby"},
		{Name: "Robert", Email: "robert@example.com"},
		{Name: "bob", Email: "robert@example.com", Login: "bobby"},
		{Name: "carol", Email: "carol@example.com"},
	}

	forward := NewResolver(false)
	for _, a := range authors {
		forward.Observe(a)
	}

	reverse := NewResolver(false)
	for i := len(authors) - 1; i >= 0; i-- {
		reverse.Observe(authors[i])
	}

	assert.Equal(t, forward.Partition(), reverse.Partition())
	assert.Len(t, forward.Partition(), 3)
	assert.Equal(t, [][]string{
		{"alice-gh", "alice@example.com", "alice@personal.example"},
		{"bobby", "bob@example.com", "robert@example.com"},
		{"carol@example.com"},
	}, partitionOf(forward))
}

func TestDisplayNameMostFrequent(t *testing.T) {
	r := NewResolver(false)
	r.Observe(models.RawAuthor{Name: "A. Smith", Email: "a@example.com"})
	r.Observe(models.RawAuthor{Name: "Alice Smith", Email: "a@example.com"})
	r.Observe(models.RawAuthor{Name: "Alice Smith", Email: "a@example.com"})

	ci := r.Resolve(models.RawAuthor{Email: "A@Example.com"})
	assert.Equal(t, "Alice Smith", ci.DisplayName)
}

func TestStrictModeConflict(t *testing.T) {
	r := NewResolver(true)
	r.Observe(models.RawAuthor{Name: "alice", Email: "shared@example.com", Login: "alice-gh"})
	r.Observe(models.RawAuthor{Name: "bob", Email: "shared@example.com", Login: "bob-gh"})

	conflicts := r.Conflicts()
	require.Len(t, conflicts, 1)
	assert.True(t, errors.Is(conflicts[0], ErrIdentityAmbiguous))
	assert.Equal(t, "bob-gh", conflicts[0].Login)
	assert.Equal(t, []string{"alice-gh"}, conflicts[0].Existing)

	alice := r.Resolve(models.RawAuthor{Login: "alice-gh"})
	bob := r.Resolve(models.RawAuthor{Login: "bob-gh", Email: "shared@example.com"})
	assert.NotEqual(t, alice.ID, bob.ID)

	// permissive mode merges the same evidence
	p := NewResolver(false)
	p.Observe(models.RawAuthor{Name: "alice", Email: "shared@example.com", Login: "alice-gh"})
	p.Observe(models.RawAuthor{Name: "bob", Email: "shared@example.com", Login: "bob-gh"})
	assert.Len(t, p.Partition(), 1)
	assert.Empty(t, p.Conflicts())
}

func TestEnrich(t *testing.T) {
	r := NewResolver(false)
	r.Observe(models.RawAuthor{Name: "alice", Email: "12345+alice-gh@users.noreply.github.com", Login: "alice-gh"})
	r.Observe(models.RawAuthor{Name: "alice", Email: "alice@personal.example"})
	r.Observe(models.RawAuthor{Name: "dave", Email: "dave@example.com", Login: "dave"})
	require.Len(t, r.Partition(), 3)

	lookup := &MockEmailLookup{}
	lookup.On("ListUserEmails", mock.Anything, "alice-gh").
		Return([]string{"alice@personal.example", "never-seen@example.com"}, nil)
	lookup.On("ListUserEmails", mock.Anything, "dave").
		Return(nil, assert.AnError)

	warnings, err := r.Enrich(context.Background(), lookup)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], assert.AnError)

	partition := r.Partition()
	assert.Len(t, partition, 2)

	alice := r.Resolve(models.RawAuthor{Email: "alice@personal.example"})
	assert.Equal(t, []string{"alice-gh"}, alice.Logins)
	assert.NotContains(t, alice.Emails, "never-seen@example.com")

	// enriching again changes nothing
	_, err = r.Enrich(context.Background(), lookup)
	require.NoError(t, err)
	assert.Equal(t, partition, r.Partition())
	lookup.AssertExpectations(t)
}

func TestEnrichStopsOnCancel(t *testing.T) {
	r := NewResolver(false)
	r.Observe(models.RawAuthor{Name: "alice", Email: "a@example.com", Login: "alice-gh"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lookup := &MockEmailLookup{}
	_, err := r.Enrich(ctx, lookup)
	assert.ErrorIs(t, err, context.Canceled)
	lookup.AssertNotCalled(t, "ListUserEmails", mock.Anything, mock.Anything)
}
