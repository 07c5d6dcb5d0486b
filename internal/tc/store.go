package tc

import (
	"time"

	"tcprefs-go/internal/model"
)

// Store provides an interface for the durable preference entity graph.
// Lookups return (nil, nil) when no row matches.
type Store interface {
	// Connection operations

	// CreateConnection inserts a new connection.
	CreateConnection(c *model.Connection) error

	// GetConnection returns a connection by ID.
	GetConnection(id string) (*model.Connection, error)

	// FindConnectionByName returns a connection by display name.
	FindConnectionByName(name string) (*model.Connection, error)

	// ListConnections returns all connections ordered by name.
	ListConnections() ([]*model.Connection, error)

	// UpdateConnection overwrites all mutable connection fields.
	UpdateConnection(c *model.Connection) error

	// DeleteConnection removes a connection; preferences, revisions,
	// collections and links cascade.
	DeleteConnection(id string) error

	// SetImportStarted stamps the start of a reconciliation run.
	SetImportStarted(connectionID string, t time.Time) error

	// SetImportCompleted stamps the end of a reconciliation run.
	SetImportCompleted(connectionID string, t time.Time) error

	// Preference operations

	// ListPreferenceKeys returns the keys of all stored preferences for a
	// connection.
	ListPreferenceKeys(connectionID string) ([]string, error)

	// ListPreferences returns all preferences for a connection ordered by
	// name.
	ListPreferences(connectionID string) ([]*model.Preference, error)

	// GetPreference returns a preference by composite key.
	GetPreference(key string) (*model.Preference, error)

	// FindPreferenceByName returns one preference of a connection by its
	// remote name.
	FindPreferenceByName(connectionID, name string) (*model.Preference, error)

	// SnapshotValues builds a name→values mapping for the preferences of a
	// connection whose name is in the given set. Present names map to a
	// non-nil slice.
	SnapshotValues(connectionID string, names []string) (map[string][]string, error)

	// LatestImportTime returns the max lastImportedAt across the named
	// preferences of a connection, or nil when none are stored.
	LatestImportTime(connectionID string, names []string) (*time.Time, error)

	// StampSeen sets lastSeenAt = seenAt for every preference of the
	// connection with lastImportedAt >= since.
	StampSeen(connectionID string, since, seenAt time.Time) error

	// SetComment updates the user comment of a preference. Commenting an
	// unknown key is an error.
	SetComment(key string, comment *string) error

	// Revision operations

	// ListRevisions returns all revisions of a preference, newest first.
	ListRevisions(preferenceKey string) ([]*model.Revision, error)

	// CountRevisions returns the number of revisions of a preference.
	CountRevisions(preferenceKey string) (int, error)

	// Begin opens a write batch. All reconciliation writes of one flush
	// interval go through a single batch and become durable on Commit.
	Begin() (Batch, error)

	// Collection operations

	// CreateCollection inserts a new collection.
	CreateCollection(c *model.Collection) error

	// GetCollection returns a collection by composite key.
	GetCollection(key string) (*model.Collection, error)

	// ListCollections returns all collections of a connection ordered by
	// name.
	ListCollections(connectionID string) ([]*model.Collection, error)

	// DeleteCollection removes a collection and its membership links.
	DeleteCollection(key string) error

	// AddToCollection links a preference to a collection. Duplicate links
	// are ignored (uniqueness is enforced by the store).
	AddToCollection(link *model.CollectionLink) error

	// RemoveFromCollection unlinks a preference from a collection.
	RemoveFromCollection(preferenceKey, collectionKey string) error

	// ListCollectionMembers returns the preferences linked to a collection
	// ordered by name.
	ListCollectionMembers(collectionKey string) ([]*model.Preference, error)

	// CountCollectionMembers returns the number of linked preferences.
	CountCollectionMembers(collectionKey string) (int, error)

	// Close closes the store.
	Close() error
}

// Batch is an atomic write unit used by the reconciliation loop. Lookups go
// through the batch too so a half-flushed run reads its own writes.
type Batch interface {
	// GetPreference returns a preference by key, or (nil, nil).
	GetPreference(key string) (*model.Preference, error)

	// CreatePreference inserts a new preference.
	CreatePreference(p *model.Preference) error

	// UpdatePreference overwrites all fields of an existing preference
	// except the user comment.
	UpdatePreference(p *model.Preference) error

	// InsertRevision appends an immutable revision row.
	InsertRevision(r *model.Revision) error

	// Commit makes the batch durable.
	Commit() error

	// Rollback discards the batch. Safe to call after Commit.
	Rollback() error
}
