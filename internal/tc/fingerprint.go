package tc

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// Delimiters chosen from the control-picture block so they cannot collide
// with real preference data.
const (
	valueSeparator = "␟" // ␟ joins value list elements
	fieldSeparator = "␞" // ␞ joins fields
)

// Fingerprint computes a deterministic digest over the semantically relevant
// fields of a preference. The user comment and all timestamps are excluded.
// Field order is load-bearing: changing it changes every fingerprint and
// makes the next import reclassify the whole store as changed.
//
// MD5 is a change-detection checksum here, not a security boundary, and is
// kept for compatibility with fingerprints already on disk.
func Fingerprint(
	name, category, description string,
	typ int,
	isArray, isDisabled bool,
	protectionScope string,
	isEnvEnabled, isOOTBPreference bool,
	valueOrigination string,
	values []string,
) string {
	joinedValues := strings.Join(values, valueSeparator) // nil joins to ""

	base := strings.Join([]string{
		name, category, description,
		strconv.Itoa(typ), strconv.FormatBool(isArray), strconv.FormatBool(isDisabled),
		protectionScope, strconv.FormatBool(isEnvEnabled), strconv.FormatBool(isOOTBPreference),
		valueOrigination, joinedValues,
	}, fieldSeparator)

	sum := md5.Sum([]byte(base))
	return hex.EncodeToString(sum[:])
}

// FingerprintRaw computes the fingerprint of a fetched preference entry.
func FingerprintRaw(p RawPreference) string {
	var origination string
	var values []string
	if p.Values != nil {
		origination = p.Values.ValueOrigination
		values = p.Values.Values
	}
	d := p.Definition
	return Fingerprint(
		d.Name, d.Category, d.Description,
		d.Type, d.IsArray, d.IsDisabled,
		d.ProtectionScope, d.IsEnvEnabled, d.IsOOTBPreference,
		origination, values,
	)
}
