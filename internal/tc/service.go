package tc

import (
	"fmt"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tcprefs-go/internal/model"
)

// Service is the orchestration layer that coordinates the store, the remote
// source and the credential cipher to perform the operations the CLI needs.
//
// One ImportAll per connection at a time: callers serialize imports against
// the same connection. Imports against different connections are independent.
type Service struct {
	store  Store
	remote RemoteSource
	cipher Cipher
	logger Logger
	clock  Clock
	idgen  IDGenerator
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, remote RemoteSource, cipher Cipher, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		store:  store,
		remote: remote,
		cipher: cipher,
		logger: logger,
		clock:  clock,
		idgen:  idgen,
	}
}

// newCollator returns a locale-aware collator for sorting preference names.
// Collators carry mutable iterator state and are not safe for concurrent use,
// so every sorting operation builds its own.
func newCollator() *collate.Collator {
	return collate.New(language.English)
}

// Store exposes the underlying store for read-only consumers (CLI listings).
func (s *Service) Store() Store { return s.store }

// AddConnection registers a new connection. The password is encrypted
// before it reaches the store.
func (s *Service) AddConnection(name, url, description, username, password string) (*model.Connection, error) {
	encrypted, err := s.cipher.Encrypt(password)
	if err != nil {
		return nil, fmt.Errorf("encrypting password: %w", err)
	}

	c := &model.Connection{
		ID:          s.idgen.New(),
		Name:        name,
		URL:         url,
		Description: description,
		Username:    username,
		Password:    encrypted,
	}
	if err := s.store.CreateConnection(c); err != nil {
		return nil, fmt.Errorf("creating connection: %w", err)
	}

	s.logger.Info("connection added", "name", name, "url", url)
	return c, nil
}

// ResolveConnection finds a connection by ID or by display name.
func (s *Service) ResolveConnection(idOrName string) (*model.Connection, error) {
	c, err := s.store.GetConnection(idOrName)
	if err != nil {
		return nil, fmt.Errorf("finding connection: %w", err)
	}
	if c == nil {
		c, err = s.store.FindConnectionByName(idOrName)
		if err != nil {
			return nil, fmt.Errorf("finding connection by name: %w", err)
		}
	}
	if c == nil {
		return nil, fmt.Errorf("unknown connection: %s", idOrName)
	}
	return c, nil
}

// RemoveConnection deletes a connection; all its preferences, revisions,
// collections and links cascade.
func (s *Service) RemoveConnection(id string) error {
	if err := s.store.DeleteConnection(id); err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	s.logger.Info("connection removed", "id", id)
	return nil
}

// SetComment updates the user comment of a preference. Comments are owned
// by the user and survive imports untouched.
func (s *Service) SetComment(preferenceKey string, comment *string) error {
	if err := s.store.SetComment(preferenceKey, comment); err != nil {
		return fmt.Errorf("setting comment: %w", err)
	}
	return nil
}

// Revisions returns the history of a preference, newest first.
func (s *Service) Revisions(preferenceKey string) ([]*model.Revision, error) {
	revs, err := s.store.ListRevisions(preferenceKey)
	if err != nil {
		return nil, fmt.Errorf("listing revisions: %w", err)
	}
	return revs, nil
}
