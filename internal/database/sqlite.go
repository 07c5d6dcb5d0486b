package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"tcprefs-go/internal/database/migrations"
	"tcprefs-go/internal/model"
	"tcprefs-go/internal/tc"
)

// SQLiteStore implements the tc.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: keeps :memory: databases coherent and sidesteps
	// SQLITE_BUSY between the batch transaction and post-run stamps.
	db.SetMaxOpenConns(1)

	// Foreign keys are OFF by default in SQLite for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Connection operations

func (s *SQLiteStore) CreateConnection(c *model.Connection) error {
	_, err := s.db.Exec(`
		INSERT INTO connections (id, name, url, description, username, password)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.URL, c.Description, c.Username, c.Password)
	if err != nil {
		return fmt.Errorf("creating connection: %w", err)
	}
	return nil
}

const connectionColumns = `id, name, url, description, username, password,
	last_import_started_at, last_import_completed_at`

func scanConnection(row interface{ Scan(...any) error }) (*model.Connection, error) {
	var c model.Connection
	var started, completed sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.URL, &c.Description, &c.Username, &c.Password,
		&started, &completed)
	if err != nil {
		return nil, err
	}
	c.LastImportStartedAt = nullableTime(started)
	c.LastImportCompletedAt = nullableTime(completed)
	return &c, nil
}

func (s *SQLiteStore) GetConnection(id string) (*model.Connection, error) {
	row := s.db.QueryRow(`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding connection: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) FindConnectionByName(name string) (*model.Connection, error) {
	row := s.db.QueryRow(`SELECT `+connectionColumns+` FROM connections WHERE name = ?`, name)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding connection by name: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConnections() ([]*model.Connection, error) {
	rows, err := s.db.Query(`SELECT ` + connectionColumns + ` FROM connections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var out []*model.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateConnection(c *model.Connection) error {
	_, err := s.db.Exec(`
		UPDATE connections
		SET name = ?, url = ?, description = ?, username = ?, password = ?
		WHERE id = ?`,
		c.Name, c.URL, c.Description, c.Username, c.Password, c.ID)
	if err != nil {
		return fmt.Errorf("updating connection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteConnection(id string) error {
	if _, err := s.db.Exec(`DELETE FROM connections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetImportStarted(connectionID string, t time.Time) error {
	_, err := s.db.Exec(`UPDATE connections SET last_import_started_at = ? WHERE id = ?`,
		t.UTC(), connectionID)
	if err != nil {
		return fmt.Errorf("stamping import start: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetImportCompleted(connectionID string, t time.Time) error {
	_, err := s.db.Exec(`UPDATE connections SET last_import_completed_at = ? WHERE id = ?`,
		t.UTC(), connectionID)
	if err != nil {
		return fmt.Errorf("stamping import completion: %w", err)
	}
	return nil
}

// Preference operations

const preferenceColumns = `key, connection_id, name, category, description, type,
	is_array, is_disabled, protection_scope, is_env_enabled, is_ootb,
	value_origination, values_json, comment,
	first_seen_at, last_imported_at, last_changed_at, last_seen_at, fingerprint`

func scanPreference(row interface{ Scan(...any) error }) (*model.Preference, error) {
	var p model.Preference
	var valuesJSON, comment sql.NullString
	var lastChanged, lastSeen sql.NullTime
	err := row.Scan(&p.Key, &p.ConnectionID, &p.Name, &p.Category, &p.Description, &p.Type,
		&p.IsArray, &p.IsDisabled, &p.ProtectionScope, &p.IsEnvEnabled, &p.IsOOTBPreference,
		&p.ValueOrigination, &valuesJSON, &comment,
		&p.FirstSeenAt, &p.LastImportedAt, &lastChanged, &lastSeen, &p.Fingerprint)
	if err != nil {
		return nil, err
	}

	values, err := decodeValues(valuesJSON)
	if err != nil {
		return nil, err
	}
	p.Values = values
	if comment.Valid {
		p.Comment = &comment.String
	}
	p.LastChangedAt = nullableTime(lastChanged)
	p.LastSeenAt = nullableTime(lastSeen)
	return &p, nil
}

func (s *SQLiteStore) ListPreferenceKeys(connectionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM preferences WHERE connection_id = ?`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("listing preference keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) ListPreferences(connectionID string) ([]*model.Preference, error) {
	rows, err := s.db.Query(`SELECT `+preferenceColumns+`
		FROM preferences WHERE connection_id = ? ORDER BY name`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("listing preferences: %w", err)
	}
	defer rows.Close()
	return collectPreferences(rows)
}

func collectPreferences(rows *sql.Rows) ([]*model.Preference, error) {
	var out []*model.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning preference: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetPreference(key string) (*model.Preference, error) {
	return getPreference(s.db, key)
}

func getPreference(q queryer, key string) (*model.Preference, error) {
	row := q.QueryRow(`SELECT `+preferenceColumns+` FROM preferences WHERE key = ?`, key)
	p, err := scanPreference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("finding preference: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) FindPreferenceByName(connectionID, name string) (*model.Preference, error) {
	row := s.db.QueryRow(`SELECT `+preferenceColumns+`
		FROM preferences WHERE connection_id = ? AND name = ? LIMIT 1`, connectionID, name)
	p, err := scanPreference(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding preference by name: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) SnapshotValues(connectionID string, names []string) (map[string][]string, error) {
	if len(names) == 0 {
		return map[string][]string{}, nil
	}

	query := `SELECT name, values_json FROM preferences
		WHERE connection_id = ? AND name IN (` + placeholders(len(names)) + `)`
	rows, err := s.db.Query(query, nameArgs(connectionID, names)...)
	if err != nil {
		return nil, fmt.Errorf("snapshotting values: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string][]string)
	for rows.Next() {
		var name string
		var valuesJSON sql.NullString
		if err := rows.Scan(&name, &valuesJSON); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		values, err := decodeValues(valuesJSON)
		if err != nil {
			return nil, err
		}
		if values == nil {
			// Present names map to a non-nil slice: absence of the name in
			// the map is the only "missing" signal for the comparison engine.
			values = []string{}
		}
		snapshot[name] = values
	}
	return snapshot, rows.Err()
}

func (s *SQLiteStore) LatestImportTime(connectionID string, names []string) (*time.Time, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query := `SELECT MAX(last_imported_at) FROM preferences
		WHERE connection_id = ? AND name IN (` + placeholders(len(names)) + `)`
	var latest sql.NullTime
	err := s.db.QueryRow(query, nameArgs(connectionID, names)...).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("finding latest import time: %w", err)
	}
	return nullableTime(latest), nil
}

func (s *SQLiteStore) StampSeen(connectionID string, since, seenAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE preferences SET last_seen_at = ?
		WHERE connection_id = ? AND last_imported_at >= ?`,
		seenAt.UTC(), connectionID, since.UTC())
	if err != nil {
		return fmt.Errorf("stamping seen preferences: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetComment(key string, comment *string) error {
	res, err := s.db.Exec(`UPDATE preferences SET comment = ? WHERE key = ?`,
		nullString(comment), key)
	if err != nil {
		return fmt.Errorf("setting comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting comment: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("unknown preference: %s", key)
	}
	return nil
}

// Revision operations

const revisionColumns = `id, preference_key, captured_at, name, category, description, type,
	is_array, is_disabled, protection_scope, is_env_enabled, is_ootb,
	value_origination, values_json, fingerprint`

func (s *SQLiteStore) ListRevisions(preferenceKey string) ([]*model.Revision, error) {
	rows, err := s.db.Query(`SELECT `+revisionColumns+`
		FROM revisions WHERE preference_key = ? ORDER BY captured_at DESC`, preferenceKey)
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	defer rows.Close()

	var out []*model.Revision
	for rows.Next() {
		var r model.Revision
		var valuesJSON sql.NullString
		err := rows.Scan(&r.ID, &r.PreferenceKey, &r.CapturedAt, &r.Name, &r.Category,
			&r.Description, &r.Type, &r.IsArray, &r.IsDisabled, &r.ProtectionScope,
			&r.IsEnvEnabled, &r.IsOOTBPreference, &r.ValueOrigination, &valuesJSON, &r.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("scanning revision: %w", err)
		}
		values, err := decodeValues(valuesJSON)
		if err != nil {
			return nil, err
		}
		r.Values = values
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountRevisions(preferenceKey string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM revisions WHERE preference_key = ?`, preferenceKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting revisions: %w", err)
	}
	return n, nil
}

// Batch operations

// Begin opens a write batch backed by a single SQLite transaction.
func (s *SQLiteStore) Begin() (tc.Batch, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return &sqliteBatch{tx: tx}, nil
}

type sqliteBatch struct {
	tx   *sql.Tx
	done bool
}

func (b *sqliteBatch) GetPreference(key string) (*model.Preference, error) {
	return getPreference(b.tx, key)
}

func (b *sqliteBatch) CreatePreference(p *model.Preference) error {
	valuesJSON, err := encodeValues(p.Values)
	if err != nil {
		return err
	}
	_, err = b.tx.Exec(`
		INSERT INTO preferences (`+preferenceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Key, p.ConnectionID, p.Name, p.Category, p.Description, p.Type,
		p.IsArray, p.IsDisabled, p.ProtectionScope, p.IsEnvEnabled, p.IsOOTBPreference,
		p.ValueOrigination, valuesJSON, nullString(p.Comment),
		p.FirstSeenAt.UTC(), p.LastImportedAt.UTC(), nullTime(p.LastChangedAt), nullTime(p.LastSeenAt),
		p.Fingerprint)
	if err != nil {
		return fmt.Errorf("inserting preference: %w", err)
	}
	return nil
}

func (b *sqliteBatch) UpdatePreference(p *model.Preference) error {
	valuesJSON, err := encodeValues(p.Values)
	if err != nil {
		return err
	}
	// The user comment is deliberately absent from this statement.
	_, err = b.tx.Exec(`
		UPDATE preferences SET
			name = ?, category = ?, description = ?, type = ?,
			is_array = ?, is_disabled = ?, protection_scope = ?, is_env_enabled = ?, is_ootb = ?,
			value_origination = ?, values_json = ?,
			last_imported_at = ?, last_changed_at = ?, fingerprint = ?
		WHERE key = ?`,
		p.Name, p.Category, p.Description, p.Type,
		p.IsArray, p.IsDisabled, p.ProtectionScope, p.IsEnvEnabled, p.IsOOTBPreference,
		p.ValueOrigination, valuesJSON,
		p.LastImportedAt.UTC(), nullTime(p.LastChangedAt), p.Fingerprint,
		p.Key)
	if err != nil {
		return fmt.Errorf("updating preference: %w", err)
	}
	return nil
}

func (b *sqliteBatch) InsertRevision(r *model.Revision) error {
	valuesJSON, err := encodeValues(r.Values)
	if err != nil {
		return err
	}
	_, err = b.tx.Exec(`
		INSERT INTO revisions (`+revisionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PreferenceKey, r.CapturedAt.UTC(), r.Name, r.Category, r.Description, r.Type,
		r.IsArray, r.IsDisabled, r.ProtectionScope, r.IsEnvEnabled, r.IsOOTBPreference,
		r.ValueOrigination, valuesJSON, r.Fingerprint)
	if err != nil {
		return fmt.Errorf("inserting revision: %w", err)
	}
	return nil
}

func (b *sqliteBatch) Commit() error {
	if b.done {
		return nil
	}
	b.done = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

func (b *sqliteBatch) Rollback() error {
	if b.done {
		return nil
	}
	b.done = true
	return b.tx.Rollback()
}

// Collection operations

func (s *SQLiteStore) CreateCollection(c *model.Collection) error {
	_, err := s.db.Exec(`INSERT INTO collections (key, connection_id, name) VALUES (?, ?, ?)`,
		c.Key, c.ConnectionID, c.Name)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCollection(key string) (*model.Collection, error) {
	var c model.Collection
	err := s.db.QueryRow(`SELECT key, connection_id, name FROM collections WHERE key = ?`, key).
		Scan(&c.Key, &c.ConnectionID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding collection: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) ListCollections(connectionID string) ([]*model.Collection, error) {
	rows, err := s.db.Query(`SELECT key, connection_id, name FROM collections
		WHERE connection_id = ? ORDER BY name`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var out []*model.Collection
	for rows.Next() {
		var c model.Collection
		if err := rows.Scan(&c.Key, &c.ConnectionID, &c.Name); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCollection(key string) error {
	if _, err := s.db.Exec(`DELETE FROM collections WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddToCollection(link *model.CollectionLink) error {
	// The composite primary key makes duplicate links impossible; OR IGNORE
	// keeps re-assignment idempotent.
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO collection_links (preference_key, collection_key, connection_id)
		VALUES (?, ?, ?)`,
		link.PreferenceKey, link.CollectionKey, link.ConnectionID)
	if err != nil {
		return fmt.Errorf("linking preference to collection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveFromCollection(preferenceKey, collectionKey string) error {
	_, err := s.db.Exec(`DELETE FROM collection_links WHERE preference_key = ? AND collection_key = ?`,
		preferenceKey, collectionKey)
	if err != nil {
		return fmt.Errorf("unlinking preference from collection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCollectionMembers(collectionKey string) ([]*model.Preference, error) {
	rows, err := s.db.Query(`SELECT `+prefixColumns("p.")+`
		FROM preferences p
		JOIN collection_links l ON l.preference_key = p.key
		WHERE l.collection_key = ? ORDER BY p.name`, collectionKey)
	if err != nil {
		return nil, fmt.Errorf("listing collection members: %w", err)
	}
	defer rows.Close()
	return collectPreferences(rows)
}

func (s *SQLiteStore) CountCollectionMembers(collectionKey string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM collection_links WHERE collection_key = ?`, collectionKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting collection members: %w", err)
	}
	return n, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Helpers

type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

// encodeValues marshals an ordered value list; nil means values-absent and
// maps to NULL, which is distinct from an empty list.
func encodeValues(values []string) (sql.NullString, error) {
	if values == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding values: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeValues(valuesJSON sql.NullString) ([]string, error) {
	if !valuesJSON.Valid {
		return nil, nil
	}
	values := []string{}
	if err := json.Unmarshal([]byte(valuesJSON.String), &values); err != nil {
		return nil, fmt.Errorf("decoding values: %w", err)
	}
	return values, nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nameArgs(connectionID string, names []string) []any {
	args := make([]any, 0, len(names)+1)
	args = append(args, connectionID)
	for _, n := range names {
		args = append(args, n)
	}
	return args
}

func prefixColumns(prefix string) string {
	cols := strings.Split(preferenceColumns, ",")
	for i, c := range cols {
		cols[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// Compile-time check that SQLiteStore implements tc.Store.
var _ tc.Store = (*SQLiteStore)(nil)
