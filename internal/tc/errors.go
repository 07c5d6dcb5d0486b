package tc

import (
	"errors"
	"strings"
)

// Terminal failure kinds for an import run. Both leave already-committed
// batches in place: a failed run can leave the store partially updated.
var (
	// ErrLoginFailed: remote authentication did not succeed. No store
	// mutation happens beyond the run-start stamp.
	ErrLoginFailed = errors.New("login failed")

	// ErrFetchFailed: authenticated, but the preference listing could not
	// be retrieved.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrStoreWrite: a batch flush or final save failed. Fatal for the
	// current run; no compensating rollback of earlier batches.
	ErrStoreWrite = errors.New("store write failed")
)

// ReadableRefreshError condenses a column refresh failure into the short
// human-readable form shown next to a comparison column.
func ReadableRefreshError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "login") || strings.Contains(msg, "auth") || strings.Contains(msg, "unauthoriz") {
		return "Login failed"
	}
	return "Fetch data failed"
}
