package store

import "github.com/tokenwarden/tokenwarden/internal/models"

// StoreStats contains statistics about a store.
type StoreStats struct {
	CredentialCount   int `json:"credential_count"`
	ActiveCount       int `json:"active_count"`
	DisconnectedCount int `json:"disconnected_count"`
}

// Store is the credential repository. Credentials are held with their field
// payload sealed; callers decrypt through the crypto codec. All mutations
// are single-row and last-writer-wins.
type Store interface {
	// Get retrieves a credential by ID.
	Get(id string) (*models.Credential, error)
	// GetByUserPlatform retrieves the credential for a (user, platform) pair.
	GetByUserPlatform(userID string, platform models.Platform) (*models.Credential, error)
	// ListActive returns all active credentials for a platform.
	ListActive(platform models.Platform) (models.CredentialSlice, error)
	// List returns all credentials, any status, any platform.
	List() (models.CredentialSlice, error)
	// Upsert stores or replaces a credential row.
	Upsert(cred *models.Credential) error
	// UpdateEncryptedFields replaces the sealed field payload of one
	// credential in a single keyed update.
	UpdateEncryptedFields(id string, blob []byte) error
	// MarkDisconnected transitions a credential to disconnected status.
	MarkDisconnected(id string) error
	// Delete removes a credential row. Reports whether a row was removed.
	Delete(id string) bool
	// Stats returns store statistics.
	Stats() StoreStats
	// Close releases store resources.
	Close() error
}
