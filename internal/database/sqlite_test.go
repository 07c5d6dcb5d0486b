package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcprefs-go/internal/model"
)

// newTestStore creates an in-memory store with the schema applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err, "failed to open store")

	require.NoError(t, store.MigrateUp(), "failed to apply migrations")

	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func seedConnection(t *testing.T, store *SQLiteStore, id, name string) *model.Connection {
	t.Helper()

	c := &model.Connection{
		ID:       id,
		Name:     name,
		URL:      "https://" + name + ".example.com",
		Username: "admin",
		Password: "encrypted",
	}
	require.NoError(t, store.CreateConnection(c))
	return c
}

func seedPreference(t *testing.T, store *SQLiteStore, connectionID, name string, values []string) *model.Preference {
	t.Helper()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &model.Preference{
		Key:             model.PreferenceKey(connectionID, name),
		ConnectionID:    connectionID,
		Name:            name,
		Category:        "General",
		ProtectionScope: "Site",
		Values:          values,
		FirstSeenAt:     now,
		LastImportedAt:  now,
		Fingerprint:     "fp-" + name,
	}

	batch, err := store.Begin()
	require.NoError(t, err)
	require.NoError(t, batch.CreatePreference(p))
	require.NoError(t, batch.Commit())
	return p
}

func TestSQLiteStore_Connections(t *testing.T) {
	t.Run("round-trips a connection", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		got, err := store.GetConnection("c1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "prod", got.Name)
		assert.Nil(t, got.LastImportStartedAt)
		assert.Nil(t, got.LastImportCompletedAt)
	})

	t.Run("returns nil for an unknown connection", func(t *testing.T) {
		store := newTestStore(t)

		got, err := store.GetConnection("missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("finds a connection by name", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		got, err := store.FindConnectionByName("prod")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "c1", got.ID)
	})

	t.Run("lists connections ordered by name", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c2", "test")
		seedConnection(t, store, "c1", "prod")

		got, err := store.ListConnections()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "prod", got[0].Name)
		assert.Equal(t, "test", got[1].Name)
	})

	t.Run("stamps the run window", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		end := start.Add(time.Minute)
		require.NoError(t, store.SetImportStarted("c1", start))
		require.NoError(t, store.SetImportCompleted("c1", end))

		got, err := store.GetConnection("c1")
		require.NoError(t, err)
		require.NotNil(t, got.LastImportStartedAt)
		require.NotNil(t, got.LastImportCompletedAt)
		assert.True(t, got.LastImportStartedAt.Equal(start))
		assert.True(t, got.LastImportCompletedAt.Equal(end))
	})

	t.Run("delete cascades to preferences, revisions and collections", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		p := seedPreference(t, store, "c1", "alpha", []string{"1"})

		batch, err := store.Begin()
		require.NoError(t, err)
		require.NoError(t, batch.InsertRevision(&model.Revision{
			ID:            "r1",
			PreferenceKey: p.Key,
			CapturedAt:    p.FirstSeenAt,
			Name:          p.Name,
			Fingerprint:   p.Fingerprint,
		}))
		require.NoError(t, batch.Commit())

		col := &model.Collection{Key: model.CollectionKey("c1", "Fav"), ConnectionID: "c1", Name: "Fav"}
		require.NoError(t, store.CreateCollection(col))
		require.NoError(t, store.AddToCollection(&model.CollectionLink{
			PreferenceKey: p.Key, CollectionKey: col.Key, ConnectionID: "c1",
		}))

		require.NoError(t, store.DeleteConnection("c1"))

		prefs, err := store.ListPreferences("c1")
		require.NoError(t, err)
		assert.Empty(t, prefs)

		revCount, err := store.CountRevisions(p.Key)
		require.NoError(t, err)
		assert.Zero(t, revCount)

		cols, err := store.ListCollections("c1")
		require.NoError(t, err)
		assert.Empty(t, cols)

		members, err := store.CountCollectionMembers(col.Key)
		require.NoError(t, err)
		assert.Zero(t, members)
	})
}

func TestSQLiteStore_Preferences(t *testing.T) {
	t.Run("nil values round-trip as nil, empty as empty", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		seedPreference(t, store, "c1", "absent", nil)
		seedPreference(t, store, "c1", "empty", []string{})

		absent, err := store.GetPreference(model.PreferenceKey("c1", "absent"))
		require.NoError(t, err)
		assert.Nil(t, absent.Values)

		empty, err := store.GetPreference(model.PreferenceKey("c1", "empty"))
		require.NoError(t, err)
		require.NotNil(t, empty.Values)
		assert.Empty(t, empty.Values)
	})

	t.Run("snapshot maps present names to non-nil slices only", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		seedPreference(t, store, "c1", "absent", nil)
		seedPreference(t, store, "c1", "filled", []string{"a", "b"})

		snapshot, err := store.SnapshotValues("c1", []string{"absent", "filled", "missing"})
		require.NoError(t, err)

		require.Contains(t, snapshot, "absent")
		assert.NotNil(t, snapshot["absent"])
		assert.Empty(t, snapshot["absent"])

		assert.Equal(t, []string{"a", "b"}, snapshot["filled"])
		assert.NotContains(t, snapshot, "missing")
	})

	t.Run("stamps seen only for recently imported preferences", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		old := seedPreference(t, store, "c1", "old", []string{"1"})
		fresh := seedPreference(t, store, "c1", "fresh", []string{"1"})

		runStart := old.LastImportedAt.Add(time.Hour)
		runEnd := runStart.Add(time.Minute)

		// Only "fresh" was imported inside the run window.
		batch, err := store.Begin()
		require.NoError(t, err)
		p, err := batch.GetPreference(fresh.Key)
		require.NoError(t, err)
		p.LastImportedAt = runStart.Add(time.Second)
		require.NoError(t, batch.UpdatePreference(p))
		require.NoError(t, batch.Commit())

		require.NoError(t, store.StampSeen("c1", runStart, runEnd))

		gotFresh, err := store.GetPreference(fresh.Key)
		require.NoError(t, err)
		require.NotNil(t, gotFresh.LastSeenAt)
		assert.True(t, gotFresh.LastSeenAt.Equal(runEnd))

		gotOld, err := store.GetPreference(old.Key)
		require.NoError(t, err)
		assert.Nil(t, gotOld.LastSeenAt)
	})

	t.Run("update does not touch the comment", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		p := seedPreference(t, store, "c1", "alpha", []string{"1"})

		note := "keep me"
		require.NoError(t, store.SetComment(p.Key, &note))

		batch, err := store.Begin()
		require.NoError(t, err)
		loaded, err := batch.GetPreference(p.Key)
		require.NoError(t, err)
		loaded.Values = []string{"2"}
		loaded.Comment = nil
		require.NoError(t, batch.UpdatePreference(loaded))
		require.NoError(t, batch.Commit())

		got, err := store.GetPreference(p.Key)
		require.NoError(t, err)
		require.NotNil(t, got.Comment)
		assert.Equal(t, "keep me", *got.Comment)
		assert.Equal(t, []string{"2"}, got.Values)
	})

	t.Run("clearing the comment stores NULL", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		p := seedPreference(t, store, "c1", "alpha", []string{"1"})

		note := "temp"
		require.NoError(t, store.SetComment(p.Key, &note))
		require.NoError(t, store.SetComment(p.Key, nil))

		got, err := store.GetPreference(p.Key)
		require.NoError(t, err)
		assert.Nil(t, got.Comment)
	})

	t.Run("commenting an unknown key is an error", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		note := "lost"
		err := store.SetComment(model.PreferenceKey("c1", "no_such_pref"), &note)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown preference")
	})
}

func TestSQLiteStore_Batch(t *testing.T) {
	t.Run("rollback discards writes", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		batch, err := store.Begin()
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, batch.CreatePreference(&model.Preference{
			Key:            model.PreferenceKey("c1", "alpha"),
			ConnectionID:   "c1",
			Name:           "alpha",
			FirstSeenAt:    now,
			LastImportedAt: now,
			Fingerprint:    "fp",
		}))
		require.NoError(t, batch.Rollback())

		got, err := store.GetPreference(model.PreferenceKey("c1", "alpha"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("rollback after commit is a no-op", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		batch, err := store.Begin()
		require.NoError(t, err)

		now := time.Now().UTC()
		require.NoError(t, batch.CreatePreference(&model.Preference{
			Key:            model.PreferenceKey("c1", "alpha"),
			ConnectionID:   "c1",
			Name:           "alpha",
			FirstSeenAt:    now,
			LastImportedAt: now,
			Fingerprint:    "fp",
		}))
		require.NoError(t, batch.Commit())
		require.NoError(t, batch.Rollback())

		got, err := store.GetPreference(model.PreferenceKey("c1", "alpha"))
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("batch reads its own uncommitted writes", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")

		batch, err := store.Begin()
		require.NoError(t, err)
		defer batch.Rollback()

		now := time.Now().UTC()
		require.NoError(t, batch.CreatePreference(&model.Preference{
			Key:            model.PreferenceKey("c1", "alpha"),
			ConnectionID:   "c1",
			Name:           "alpha",
			FirstSeenAt:    now,
			LastImportedAt: now,
			Fingerprint:    "fp",
		}))

		got, err := batch.GetPreference(model.PreferenceKey("c1", "alpha"))
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

func TestSQLiteStore_Collections(t *testing.T) {
	t.Run("duplicate links are ignored", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		p := seedPreference(t, store, "c1", "alpha", []string{"1"})

		col := &model.Collection{Key: model.CollectionKey("c1", "Fav"), ConnectionID: "c1", Name: "Fav"}
		require.NoError(t, store.CreateCollection(col))

		link := &model.CollectionLink{PreferenceKey: p.Key, CollectionKey: col.Key, ConnectionID: "c1"}
		require.NoError(t, store.AddToCollection(link))
		require.NoError(t, store.AddToCollection(link))

		n, err := store.CountCollectionMembers(col.Key)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("deleting a collection removes its links but not the preferences", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		p := seedPreference(t, store, "c1", "alpha", []string{"1"})

		col := &model.Collection{Key: model.CollectionKey("c1", "Fav"), ConnectionID: "c1", Name: "Fav"}
		require.NoError(t, store.CreateCollection(col))
		require.NoError(t, store.AddToCollection(&model.CollectionLink{
			PreferenceKey: p.Key, CollectionKey: col.Key, ConnectionID: "c1",
		}))

		require.NoError(t, store.DeleteCollection(col.Key))

		n, err := store.CountCollectionMembers(col.Key)
		require.NoError(t, err)
		assert.Zero(t, n)

		got, err := store.GetPreference(p.Key)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("members list follows name order", func(t *testing.T) {
		store := newTestStore(t)
		seedConnection(t, store, "c1", "prod")
		b := seedPreference(t, store, "c1", "beta", []string{"1"})
		a := seedPreference(t, store, "c1", "alpha", []string{"1"})

		col := &model.Collection{Key: model.CollectionKey("c1", "Fav"), ConnectionID: "c1", Name: "Fav"}
		require.NoError(t, store.CreateCollection(col))
		for _, p := range []*model.Preference{b, a} {
			require.NoError(t, store.AddToCollection(&model.CollectionLink{
				PreferenceKey: p.Key, CollectionKey: col.Key, ConnectionID: "c1",
			}))
		}

		members, err := store.ListCollectionMembers(col.Key)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, "alpha", members[0].Name)
		assert.Equal(t, "beta", members[1].Name)
	})
}
