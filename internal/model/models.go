package model

import (
	"fmt"
	"strings"
	"time"
)

// Connection represents a named Teamcenter server connection.
// Password is stored age-encrypted (base64) — never cleartext.
type Connection struct {
	ID          string // UUID
	Name        string
	URL         string // Teamcenter base URL
	Description string
	Username    string
	Password    string // encrypted at rest

	// Run window of the most recent reconciliation pass.
	LastImportStartedAt   *time.Time
	LastImportCompletedAt *time.Time
}

// Preference is the current snapshot of a single preference definition
// mirrored from Teamcenter. Uniquely keyed by (connection, remote name).
type Preference struct {
	Key          string // connectionID + "|" + name
	ConnectionID string

	// Definition (current snapshot)
	Name             string
	Category         string
	Description      string
	Type             int // 0=String 1=Logical 2=Integer 3=Double, else "Code N"
	IsArray          bool
	IsDisabled       bool
	ProtectionScope  string
	IsEnvEnabled     bool
	IsOOTBPreference bool

	// Values (current snapshot). A nil slice means the server returned no
	// values block at all, which is distinct from an empty list.
	ValueOrigination string
	Values           []string

	// User note; owned by the user, never touched by import.
	Comment *string

	// Bookkeeping
	FirstSeenAt    time.Time  // set once on create
	LastImportedAt time.Time  // stamped on every run that observes this key
	LastChangedAt  *time.Time // only when the fingerprint differs
	LastSeenAt     *time.Time // stamped to runEnd in the post-run pass

	Fingerprint string
}

// Revision is an immutable historical copy of a preference's state.
// Created once on first import and again on every fingerprint change.
type Revision struct {
	ID            string // UUID
	PreferenceKey string
	CapturedAt    time.Time

	Name             string
	Category         string
	Description      string
	Type             int
	IsArray          bool
	IsDisabled       bool
	ProtectionScope  string
	IsEnvEnabled     bool
	IsOOTBPreference bool
	ValueOrigination string
	Values           []string

	Fingerprint string
}

// Collection is a user-defined named grouping of preferences within one
// connection. The key is case-insensitive per connection.
type Collection struct {
	Key          string // connectionID + "|" + lowercased(name)
	ConnectionID string
	Name         string
}

// CollectionLink joins one preference to one collection. The store enforces
// uniqueness on (PreferenceKey, CollectionKey).
type CollectionLink struct {
	PreferenceKey string
	CollectionKey string
	ConnectionID  string // denormalized for fast scoping
}

// PreferenceKey derives the composite key for a preference.
func PreferenceKey(connectionID, name string) string {
	return connectionID + "|" + name
}

// CollectionKey derives the composite key for a collection.
func CollectionKey(connectionID, name string) string {
	return connectionID + "|" + strings.ToLower(name)
}

// TypeString renders a preference type code the way Teamcenter names it.
func TypeString(t int) string {
	switch t {
	case 0:
		return "String"
	case 1:
		return "Logical"
	case 2:
		return "Integer"
	case 3:
		return "Double"
	default:
		return fmt.Sprintf("Code %d", t)
	}
}
