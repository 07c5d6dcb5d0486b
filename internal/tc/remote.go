package tc

import "context"

// RawDefinition is a preference definition as returned by the Teamcenter
// preference management service.
type RawDefinition struct {
	Name             string
	Category         string
	Description      string
	Type             int
	IsArray          bool
	IsDisabled       bool
	ProtectionScope  string
	IsEnvEnabled     bool
	IsOOTBPreference bool
}

// RawValues carries the value block of a fetched preference. The block may
// be absent entirely, which is not the same as an empty value list.
type RawValues struct {
	ValueOrigination string
	Values           []string
}

// RawPreference is one entry of a remote preference listing.
type RawPreference struct {
	Definition RawDefinition
	Values     *RawValues
}

// RemoteSource authenticates against a Teamcenter server and yields a
// session scoped to that server.
type RemoteSource interface {
	Login(ctx context.Context, baseURL, username, password string) (RemoteSession, error)
}

// RemoteSession fetches preference listings over an authenticated session.
type RemoteSession interface {
	// FetchPreferences returns all preferences matching the given name
	// patterns ("*" for everything). An error means the listing could not
	// be retrieved; an empty slice is a valid (empty) listing.
	FetchPreferences(ctx context.Context, namePatterns []string, includeDescriptions bool) ([]RawPreference, error)
}

// Cipher protects connection credentials at rest. Encrypt is applied before
// a password reaches the store; Decrypt just-in-time before a login.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
