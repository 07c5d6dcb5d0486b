package testutil

import (
	"context"
	"sync"

	"tcprefs-go/internal/tc"
)

// FakeRemote is an in-memory tc.RemoteSource. Configure Entries with the
// listing to return, or set LoginErr/FetchErr to simulate failures. Safe for
// concurrent use; set OnFetch to rendezvous overlapping imports.
type FakeRemote struct {
	mu sync.Mutex

	Entries  []tc.RawPreference
	LoginErr error
	FetchErr error

	Logins  int
	Fetches int

	// OnFetch, when set, runs on every fetch before it returns.
	OnFetch func()

	// LastCredentials records the most recent login attempt.
	LastCredentials struct {
		BaseURL  string
		Username string
		Password string
	}
}

func NewFakeRemote() *FakeRemote { return &FakeRemote{} }

var _ tc.RemoteSource = (*FakeRemote)(nil)

func (f *FakeRemote) Login(_ context.Context, baseURL, username, password string) (tc.RemoteSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Logins++
	f.LastCredentials.BaseURL = baseURL
	f.LastCredentials.Username = username
	f.LastCredentials.Password = password
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	return &fakeSession{remote: f}, nil
}

type fakeSession struct {
	remote *FakeRemote
}

func (s *fakeSession) FetchPreferences(_ context.Context, _ []string, _ bool) ([]tc.RawPreference, error) {
	s.remote.mu.Lock()
	s.remote.Fetches++
	err := s.remote.FetchErr
	out := make([]tc.RawPreference, len(s.remote.Entries))
	copy(out, s.remote.Entries)
	hook := s.remote.OnFetch
	s.remote.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Entry builds a fetched preference with the given name, category and
// values. A nil values slice means the value block is absent entirely.
func Entry(name, category string, values []string) tc.RawPreference {
	p := tc.RawPreference{
		Definition: tc.RawDefinition{
			Name:            name,
			Category:        category,
			Description:     "about " + name,
			Type:            0,
			ProtectionScope: "Site",
		},
	}
	if values != nil {
		p.Values = &tc.RawValues{ValueOrigination: "Site", Values: values}
	}
	return p
}
