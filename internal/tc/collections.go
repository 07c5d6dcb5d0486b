package tc

import (
	"fmt"
	"strings"

	"tcprefs-go/internal/model"
)

// CreateCollection creates a named grouping of preferences for a connection.
// Names are unique per connection, case-insensitively; creating an existing
// name returns the existing collection.
func (s *Service) CreateCollection(connectionID, name string) (*model.Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("collection name is empty")
	}

	key := model.CollectionKey(connectionID, name)
	existing, err := s.store.GetCollection(key)
	if err != nil {
		return nil, fmt.Errorf("finding collection: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	col := &model.Collection{Key: key, ConnectionID: connectionID, Name: name}
	if err := s.store.CreateCollection(col); err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	s.logger.Info("collection created", "name", name)
	return col, nil
}

// AssignToCollection links the given preferences to a collection. Links are
// idempotent: the store enforces uniqueness on (preference, collection), so
// re-assigning is a no-op rather than a duplicate.
func (s *Service) AssignToCollection(preferenceKeys []string, collectionKey string) error {
	col, err := s.store.GetCollection(collectionKey)
	if err != nil {
		return fmt.Errorf("finding collection: %w", err)
	}
	if col == nil {
		return fmt.Errorf("unknown collection: %s", collectionKey)
	}

	for _, key := range preferenceKeys {
		pref, err := s.store.GetPreference(key)
		if err != nil {
			return fmt.Errorf("finding preference %s: %w", key, err)
		}
		if pref == nil {
			return fmt.Errorf("unknown preference: %s", key)
		}
		link := &model.CollectionLink{
			PreferenceKey: pref.Key,
			CollectionKey: col.Key,
			ConnectionID:  pref.ConnectionID,
		}
		if err := s.store.AddToCollection(link); err != nil {
			return fmt.Errorf("linking %s: %w", key, err)
		}
	}
	return nil
}

// RemoveFromCollection unlinks preferences from a collection.
func (s *Service) RemoveFromCollection(preferenceKeys []string, collectionKey string) error {
	for _, key := range preferenceKeys {
		if err := s.store.RemoveFromCollection(key, collectionKey); err != nil {
			return fmt.Errorf("unlinking %s: %w", key, err)
		}
	}
	return nil
}

// DeleteCollection removes an empty collection. Non-empty collections are
// refused; remove the members first.
func (s *Service) DeleteCollection(collectionKey string) error {
	n, err := s.store.CountCollectionMembers(collectionKey)
	if err != nil {
		return fmt.Errorf("counting members: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("collection is not empty (%d members)", n)
	}
	if err := s.store.DeleteCollection(collectionKey); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return nil
}
