package tc

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tcprefs-go/internal/model"
)

// DefaultBatchSize bounds the size of one write batch during reconciliation.
// Batching caps memory and transaction size for large preference sets; it
// has no effect on the final store state, only on flush cadence.
const DefaultBatchSize = 2000

// ImportAll fetches every preference definition of a connection from
// Teamcenter and reconciles it against the store:
//
//   - every observed key gets lastImportedAt stamped,
//   - keys whose fingerprint changed get their fields overwritten,
//     lastChangedAt stamped and a revision appended,
//   - unknown keys are created with an initial revision,
//   - after the run, everything observed gets lastSeenAt = runEnd; keys
//     not observed keep a stale lastSeenAt and classify as Missing later.
//
// Writes are flushed in batches of batchSize. A failed run leaves already
// committed batches in place (at-least-once, no rollback).
//
// Returns the number of fetched definitions processed.
func (s *Service) ImportAll(ctx context.Context, conn *model.Connection, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	// Start the run window. Failure to persist this bookkeeping stamp is
	// non-fatal.
	runStart := s.clock.Now()
	if err := s.store.SetImportStarted(conn.ID, runStart); err != nil {
		s.logger.Warn("could not persist run start", "connection", conn.Name, "error", err)
	}

	password, err := s.cipher.Decrypt(conn.Password)
	if err != nil {
		return 0, fmt.Errorf("decrypting password: %w", err)
	}

	session, err := s.remote.Login(ctx, conn.URL, conn.Username, password)
	if err != nil {
		s.logger.Error("login failed", "connection", conn.Name, "url", conn.URL, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	list, err := session.FetchPreferences(ctx, []string{"*"}, true)
	if err != nil {
		s.logger.Error("preference fetch failed", "connection", conn.Name, "error", err)
		return 0, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	// Sorting determines batch composition and save-point boundaries, not
	// correctness; each key is processed independently.
	collator := newCollator()
	sort.SliceStable(list, func(i, j int) bool {
		return collator.CompareString(list[i].Definition.Name, list[j].Definition.Name) < 0
	})

	// Snapshot the stored key set; whatever is left unobserved at the end
	// simply keeps a stale lastSeenAt.
	keys, err := s.store.ListPreferenceKeys(conn.ID)
	if err != nil {
		return 0, fmt.Errorf("listing stored keys: %w", err)
	}
	unseenKeys := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		unseenKeys[k] = struct{}{}
	}

	batch, err := s.store.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: opening batch: %v", ErrStoreWrite, err)
	}
	defer func() {
		if batch != nil {
			batch.Rollback()
		}
	}()

	processed := 0
	pending := 0

	for _, entry := range list {
		def := entry.Definition
		key := model.PreferenceKey(conn.ID, def.Name)
		fp := FingerprintRaw(entry)

		existing, err := batch.GetPreference(key)
		if err != nil {
			return processed, fmt.Errorf("looking up %s: %w", key, err)
		}

		if existing != nil {
			delete(unseenKeys, key)

			// Always stamp lastImportedAt; lastSeenAt is set to runEnd in
			// the post-run pass.
			existing.LastImportedAt = s.clock.Now()

			if existing.Fingerprint != fp {
				now := s.clock.Now()
				applyDefinition(existing, entry)
				existing.Fingerprint = fp
				existing.LastChangedAt = &now

				if err := batch.InsertRevision(s.revisionOf(existing, now)); err != nil {
					return processed, fmt.Errorf("%w: appending revision for %s: %v", ErrStoreWrite, key, err)
				}
			}

			if err := batch.UpdatePreference(existing); err != nil {
				return processed, fmt.Errorf("%w: updating %s: %v", ErrStoreWrite, key, err)
			}
		} else {
			now := s.clock.Now()
			pref := &model.Preference{
				Key:            key,
				ConnectionID:   conn.ID,
				FirstSeenAt:    now,
				LastImportedAt: now,
				LastChangedAt:  &now,
				Fingerprint:    fp,
			}
			applyDefinition(pref, entry)

			if err := batch.CreatePreference(pref); err != nil {
				return processed, fmt.Errorf("%w: creating %s: %v", ErrStoreWrite, key, err)
			}
			if err := batch.InsertRevision(s.revisionOf(pref, now)); err != nil {
				return processed, fmt.Errorf("%w: appending initial revision for %s: %v", ErrStoreWrite, key, err)
			}
		}

		processed++
		pending++
		if pending >= batchSize {
			if err := batch.Commit(); err != nil {
				return processed, fmt.Errorf("%w: flushing batch: %v", ErrStoreWrite, err)
			}
			batch, err = s.store.Begin()
			if err != nil {
				return processed, fmt.Errorf("%w: opening batch: %v", ErrStoreWrite, err)
			}
			pending = 0
		}
	}

	if err := batch.Commit(); err != nil {
		return processed, fmt.Errorf("%w: flushing final batch: %v", ErrStoreWrite, err)
	}
	batch = nil

	// Close the run window and stamp everything observed this run.
	runEnd := s.clock.Now()
	if err := s.store.SetImportCompleted(conn.ID, runEnd); err != nil {
		return processed, fmt.Errorf("%w: persisting run end: %v", ErrStoreWrite, err)
	}
	if err := s.store.StampSeen(conn.ID, runStart, runEnd); err != nil {
		return processed, fmt.Errorf("%w: stamping seen preferences: %v", ErrStoreWrite, err)
	}

	conn.LastImportStartedAt = &runStart
	conn.LastImportCompletedAt = &runEnd

	s.logger.Info("import complete",
		"connection", conn.Name,
		"processed", processed,
		"missing_candidates", len(unseenKeys))
	return processed, nil
}

// applyDefinition overwrites the definition and value fields of a preference
// from a fetched entry. The user comment and bookkeeping stamps are not
// touched here.
func applyDefinition(p *model.Preference, entry RawPreference) {
	def := entry.Definition
	p.Name = def.Name
	p.Category = def.Category
	p.Description = def.Description
	p.Type = def.Type
	p.IsArray = def.IsArray
	p.IsDisabled = def.IsDisabled
	p.ProtectionScope = def.ProtectionScope
	p.IsEnvEnabled = def.IsEnvEnabled
	p.IsOOTBPreference = def.IsOOTBPreference
	if entry.Values != nil {
		p.ValueOrigination = entry.Values.ValueOrigination
		p.Values = entry.Values.Values
	} else {
		p.ValueOrigination = ""
		p.Values = nil
	}
}

// revisionOf captures the post-update state of a preference as an immutable
// revision row.
func (s *Service) revisionOf(p *model.Preference, capturedAt time.Time) *model.Revision {
	return &model.Revision{
		ID:               s.idgen.New(),
		PreferenceKey:    p.Key,
		CapturedAt:       capturedAt,
		Name:             p.Name,
		Category:         p.Category,
		Description:      p.Description,
		Type:             p.Type,
		IsArray:          p.IsArray,
		IsDisabled:       p.IsDisabled,
		ProtectionScope:  p.ProtectionScope,
		IsEnvEnabled:     p.IsEnvEnabled,
		IsOOTBPreference: p.IsOOTBPreference,
		ValueOrigination: p.ValueOrigination,
		Values:           p.Values,
		Fingerprint:      p.Fingerprint,
	}
}
