package store

import (
	"sync"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/errors"
	"github.com/tokenwarden/tokenwarden/internal/models"
)

// MemoryStore provides in-memory credential storage. It is thread-safe and
// intended for tests and single-shot CLI use.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*models.Credential

	// When set, read operations fail with this error. Lets tests exercise
	// repository failure paths.
	failReads error
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]*models.Credential),
	}
}

// FailReads makes every subsequent read return the given error.
func (s *MemoryStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failReads = err
}

func copyCredential(c *models.Credential) *models.Credential {
	cp := *c
	if c.EncryptedFields != nil {
		cp.EncryptedFields = append([]byte(nil), c.EncryptedFields...)
	}
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	cp.Fields = nil
	return &cp
}

// Get retrieves a credential by ID.
func (s *MemoryStore) Get(id string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failReads != nil {
		return nil, s.failReads
	}
	cred, ok := s.credentials[id]
	if !ok {
		return nil, &errors.ErrCredentialNotFound{}
	}
	return copyCredential(cred), nil
}

// GetByUserPlatform retrieves the credential for a (user, platform) pair.
func (s *MemoryStore) GetByUserPlatform(userID string, platform models.Platform) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failReads != nil {
		return nil, s.failReads
	}
	for _, cred := range s.credentials {
		if cred.UserID == userID && cred.Platform == platform {
			return copyCredential(cred), nil
		}
	}
	return nil, &errors.ErrCredentialNotFound{UserID: userID, Platform: string(platform)}
}

// ListActive returns all active credentials for a platform.
func (s *MemoryStore) ListActive(platform models.Platform) (models.CredentialSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failReads != nil {
		return nil, s.failReads
	}
	var creds models.CredentialSlice
	for _, cred := range s.credentials {
		if cred.Platform == platform && cred.IsActive() {
			creds = append(creds, *copyCredential(cred))
		}
	}
	return creds, nil
}

// List returns all credentials.
func (s *MemoryStore) List() (models.CredentialSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failReads != nil {
		return nil, s.failReads
	}
	var creds models.CredentialSlice
	for _, cred := range s.credentials {
		creds = append(creds, *copyCredential(cred))
	}
	return creds, nil
}

// Upsert stores or replaces a credential row.
func (s *MemoryStore) Upsert(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyCredential(cred)
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.credentials[cp.ID] = cp
	return nil
}

// UpdateEncryptedFields replaces the sealed field payload of one credential.
func (s *MemoryStore) UpdateEncryptedFields(id string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return &errors.ErrCredentialNotFound{}
	}
	cred.EncryptedFields = append([]byte(nil), blob...)
	cred.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDisconnected transitions a credential to disconnected status.
func (s *MemoryStore) MarkDisconnected(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.credentials[id]
	if !ok {
		return &errors.ErrCredentialNotFound{}
	}
	cred.Status = models.StatusDisconnected
	cred.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a credential row.
func (s *MemoryStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.credentials[id]; !ok {
		return false
	}
	delete(s.credentials, id)
	return true
}

// Stats returns statistics about the store
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{CredentialCount: len(s.credentials)}
	for _, cred := range s.credentials {
		if cred.IsActive() {
			stats.ActiveCount++
		} else {
			stats.DisconnectedCount++
		}
	}
	return stats
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)
