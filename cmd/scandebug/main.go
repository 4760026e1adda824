// Command scandebug runs a scan against a throwaway database seeded with
// credentials in every expiry state. Useful when tuning thresholds.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/scanner"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

func main() {
	tmpDir, err := os.MkdirTemp("", "scan-debug")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "tokenwarden.db")
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	codec, err := crypto.NewCodec(make([]byte, 32))
	if err != nil {
		panic(err)
	}

	now := time.Now().UTC()
	seeds := []struct {
		id          string
		accessDays  int
		refreshDays int
	}{
		{"healthy", 60, 90},
		{"access-expiring", 3, 90},
		{"refresh-warning", 60, 20},
		{"refresh-expiring", 3, 5},
		{"refresh-expired", -1, -2},
	}

	for _, seed := range seeds {
		fields := models.Fields{
			models.FieldAccessToken:           "at-" + seed.id,
			models.FieldRefreshToken:          "rt-" + seed.id,
			models.FieldExpiresAt:             now.AddDate(0, 0, seed.accessDays).Format(time.RFC3339),
			models.FieldRefreshTokenExpiresAt: now.AddDate(0, 0, seed.refreshDays).Format(time.RFC3339),
		}
		blob, err := codec.Encrypt(fields)
		if err != nil {
			panic(err)
		}
		if err := st.Upsert(&models.Credential{
			ID:              seed.id,
			UserID:          "user-" + seed.id,
			Platform:        models.PlatformYouTube,
			Status:          models.StatusActive,
			EncryptedFields: blob,
		}); err != nil {
			panic(err)
		}
	}

	sc := scanner.New(st, codec, scanner.DefaultPolicy())
	result, err := sc.Scan(context.Background(), models.PlatformYouTube, now)
	if err != nil {
		panic(err)
	}

	fmt.Printf("scan complete: refresh=%d warn=%d disconnect=%d skipped=%d\n",
		len(result.NeedsAccessRefresh),
		len(result.NeedsDisconnectWarning),
		len(result.ShouldAutoDisconnect),
		result.SkippedCredentials,
	)
	for _, d := range result.ShouldAutoDisconnect {
		fmt.Printf("  disconnect %s: %s\n", d.CredentialID, d.Reason)
	}
}
