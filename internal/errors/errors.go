package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

// ErrDatabaseQuery is the scan-fatal repository error: the credential store
// itself could not be read or written.
type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Credential errors

type ErrCredentialNotFound struct {
	UserID   string
	Platform string
}

func (e *ErrCredentialNotFound) Error() string {
	if e.UserID != "" {
		return fmt.Sprintf("no %s credential found for user %s", e.Platform, e.UserID)
	}
	return fmt.Sprintf("no %s credential found", e.Platform)
}

// ErrDecrypt is a per-record soft error: the scanner logs it and moves on.
type ErrDecrypt struct {
	CredentialID string
	Err          error
}

func (e *ErrDecrypt) Error() string {
	return fmt.Sprintf("failed to decrypt credential %s: %v", e.CredentialID, e.Err)
}

func (e *ErrDecrypt) Unwrap() error {
	return e.Err
}

// Refresh errors

// ErrProviderRejected means the platform token endpoint answered with an
// OAuth error or a non-success status. The provider call may be retried by
// the caller as long as the refresh token has not been consumed.
type ErrProviderRejected struct {
	Platform string
	Message  string
}

func (e *ErrProviderRejected) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s token endpoint rejected refresh: %s", e.Platform, e.Message)
	}
	return fmt.Sprintf("%s token endpoint rejected refresh", e.Platform)
}

// ErrTokenStore means persisting a freshly obtained token failed. The
// provider side may already have rotated the refresh token, so a blind
// retry of the whole refresh is unsafe.
type ErrTokenStore struct {
	CredentialID string
	Err          error
}

func (e *ErrTokenStore) Error() string {
	return fmt.Sprintf("failed to store refreshed token for credential %s: %v", e.CredentialID, e.Err)
}

func (e *ErrTokenStore) Unwrap() error {
	return e.Err
}

type ErrMissingRefreshToken struct {
	CredentialID string
}

func (e *ErrMissingRefreshToken) Error() string {
	return fmt.Sprintf("credential %s has no refresh token", e.CredentialID)
}

type ErrClientCredentials struct {
	Platform string
}

func (e *ErrClientCredentials) Error() string {
	return fmt.Sprintf("OAuth client credentials not configured for platform %s", e.Platform)
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}
