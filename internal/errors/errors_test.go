package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigErrors(t *testing.T) {
	notFound := &ErrConfigNotFound{Path: "/tmp/config.yaml"}
	if !strings.Contains(notFound.Error(), "config file not found") {
		t.Fatalf("unexpected error message: %s", notFound.Error())
	}
	if !strings.Contains(notFound.Error(), notFound.Path) {
		t.Fatalf("expected path in error message: %s", notFound.Error())
	}

	base := errors.New("bad yaml")
	parse := &ErrConfigParse{Err: base}
	if !strings.Contains(parse.Error(), "failed to parse YAML") {
		t.Fatalf("unexpected parse message: %s", parse.Error())
	}
	if !errors.Is(parse, base) {
		t.Fatalf("expected unwrap to base error")
	}

	validation := &ErrConfigValidation{Err: base}
	if !strings.Contains(validation.Error(), "config validation failed") {
		t.Fatalf("unexpected validation message: %s", validation.Error())
	}
	if !errors.Is(validation, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestDatabaseErrors(t *testing.T) {
	base := errors.New("db")

	op := &ErrDatabaseOpen{Path: "/tmp/db.sqlite", Err: base}
	if !strings.Contains(op.Error(), "failed to open database") {
		t.Fatalf("unexpected open message: %s", op.Error())
	}
	if !errors.Is(op, base) {
		t.Fatalf("expected unwrap to base error")
	}

	migration := &ErrDatabaseMigration{Version: 2, Err: base}
	if !strings.Contains(migration.Error(), "database migration 2 failed") {
		t.Fatalf("unexpected migration message: %s", migration.Error())
	}
	if !errors.Is(migration, base) {
		t.Fatalf("expected unwrap to base error")
	}

	query := &ErrDatabaseQuery{Operation: "select", Err: base}
	if !strings.Contains(query.Error(), "database query failed") {
		t.Fatalf("unexpected query message: %s", query.Error())
	}
	if !errors.Is(query, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestCredentialErrors(t *testing.T) {
	notFound := &ErrCredentialNotFound{UserID: "u-1", Platform: "youtube"}
	if !strings.Contains(notFound.Error(), "u-1") || !strings.Contains(notFound.Error(), "youtube") {
		t.Fatalf("unexpected message: %s", notFound.Error())
	}

	anon := &ErrCredentialNotFound{Platform: "linkedin"}
	if strings.Contains(anon.Error(), "user") {
		t.Fatalf("expected user-less message: %s", anon.Error())
	}

	base := errors.New("cipher: message authentication failed")
	decrypt := &ErrDecrypt{CredentialID: "cred-1", Err: base}
	if !strings.Contains(decrypt.Error(), "failed to decrypt credential cred-1") {
		t.Fatalf("unexpected decrypt message: %s", decrypt.Error())
	}
	if !errors.Is(decrypt, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestRefreshErrors(t *testing.T) {
	rejected := &ErrProviderRejected{Platform: "youtube", Message: "invalid_grant"}
	if !strings.Contains(rejected.Error(), "invalid_grant") {
		t.Fatalf("unexpected rejected message: %s", rejected.Error())
	}

	bare := &ErrProviderRejected{Platform: "facebook"}
	if !strings.Contains(bare.Error(), "facebook token endpoint rejected refresh") {
		t.Fatalf("unexpected bare message: %s", bare.Error())
	}

	base := errors.New("disk full")
	storeErr := &ErrTokenStore{CredentialID: "cred-2", Err: base}
	if !strings.Contains(storeErr.Error(), "cred-2") {
		t.Fatalf("unexpected store message: %s", storeErr.Error())
	}
	if !errors.Is(storeErr, base) {
		t.Fatalf("expected unwrap to base error")
	}

	missing := &ErrMissingRefreshToken{CredentialID: "cred-3"}
	if !strings.Contains(missing.Error(), "no refresh token") {
		t.Fatalf("unexpected missing message: %s", missing.Error())
	}

	client := &ErrClientCredentials{Platform: "linkedin"}
	if !strings.Contains(client.Error(), "linkedin") {
		t.Fatalf("unexpected client creds message: %s", client.Error())
	}
}

func TestServerErrors(t *testing.T) {
	base := errors.New("address in use")

	start := &ErrServerStart{Addr: "localhost:8080", Err: base}
	if !strings.Contains(start.Error(), "failed to start server on localhost:8080") {
		t.Fatalf("unexpected start message: %s", start.Error())
	}
	if !errors.Is(start, base) {
		t.Fatalf("expected unwrap to base error")
	}

	shutdown := &ErrServerShutdown{Err: base}
	if !strings.Contains(shutdown.Error(), "server shutdown failed") {
		t.Fatalf("unexpected shutdown message: %s", shutdown.Error())
	}
	if !errors.Is(shutdown, base) {
		t.Fatalf("expected unwrap to base error")
	}
}
