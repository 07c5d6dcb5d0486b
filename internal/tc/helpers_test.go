package tc_test

import (
	"testing"
	"time"

	"tcprefs-go/internal/database"
	"tcprefs-go/internal/model"
	"tcprefs-go/internal/secrets"
	"tcprefs-go/internal/tc"
	"tcprefs-go/internal/testutil"
)

// newTestService wires a Service against an in-memory store, a fake remote
// and a deterministic clock starting at noon UTC.
func newTestService(t *testing.T, remote *testutil.FakeRemote) (*tc.Service, *database.SQLiteStore, *testutil.ManualClock) {
	t.Helper()

	store := testutil.NewTestStore(t)
	clock := testutil.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := tc.NewService(store, remote, secrets.NewNopCipher(), tc.NewNopLogger(),
		clock, testutil.NewSequenceIDGenerator())
	return svc, store, clock
}

func addConnection(t *testing.T, svc *tc.Service, name string) *model.Connection {
	t.Helper()

	c, err := svc.AddConnection(name, "https://"+name+".example.com", "", "admin", "secret")
	if err != nil {
		t.Fatalf("AddConnection() error = %v", err)
	}
	return c
}
