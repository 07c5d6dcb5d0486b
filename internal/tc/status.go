package tc

import (
	"time"

	"tcprefs-go/internal/model"
)

// Status is the derived per-preference state relative to the most recent
// reconciliation run of its connection.
type Status int

const (
	StatusUnknown Status = iota
	StatusNew
	StatusChanged
	StatusStable
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusChanged:
		return "Changed"
	case StatusStable:
		return "Stable"
	case StatusMissing:
		return "Missing"
	default:
		return "Unknown"
	}
}

// recencyWindow is the fallback heuristic used before a connection has ever
// completed a run: a preference imported this recently counts as Stable.
const recencyWindow = 5 * time.Minute

// ClassifyStatus derives the status of a preference from stored state.
// Pure function, recomputed on demand — the run-window fields it depends on
// change with every import, so the result is never cached in the store.
func ClassifyStatus(p *model.Preference, conn *model.Connection, now time.Time) Status {
	if conn == nil || conn.LastImportCompletedAt == nil || conn.LastImportStartedAt == nil {
		if now.Sub(p.LastImportedAt) < recencyWindow {
			return StatusStable
		}
		return StatusUnknown
	}

	runStart := *conn.LastImportStartedAt
	runEnd := *conn.LastImportCompletedAt

	seenThisRun := p.LastSeenAt != nil && !p.LastSeenAt.Before(runEnd)
	if !seenThisRun {
		if p.FirstSeenAt.Before(runStart) {
			return StatusMissing
		}
		// Unseen but first seen inside the run window should be impossible
		// under single-writer use; fall back to New.
		return StatusNew
	}
	if !p.FirstSeenAt.Before(runStart) {
		return StatusNew
	}
	if p.LastChangedAt != nil && !p.LastChangedAt.Before(runStart) {
		return StatusChanged
	}
	return StatusStable
}

// PreferenceStatus pairs a preference with its derived status.
type PreferenceStatus struct {
	Preference *model.Preference
	Status     Status
}

// ListWithStatus returns every preference of a connection together with its
// current classification.
func (s *Service) ListWithStatus(conn *model.Connection) ([]PreferenceStatus, error) {
	prefs, err := s.store.ListPreferences(conn.ID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	out := make([]PreferenceStatus, len(prefs))
	for i, p := range prefs {
		out[i] = PreferenceStatus{Preference: p, Status: ClassifyStatus(p, conn, now)}
	}
	return out, nil
}
