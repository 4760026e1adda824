package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

var scanNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T) *crypto.Codec {
	t.Helper()
	codec, err := crypto.NewCodec(make([]byte, 32))
	require.NoError(t, err)
	return codec
}

func seedCredential(t *testing.T, st store.Store, codec *crypto.Codec, id string, fields models.Fields) {
	t.Helper()
	blob, err := codec.Encrypt(fields)
	require.NoError(t, err)
	require.NoError(t, st.Upsert(&models.Credential{
		ID:              id,
		UserID:          "user-" + id,
		Platform:        models.PlatformYouTube,
		Status:          models.StatusActive,
		EncryptedFields: blob,
	}))
}

func inDays(days int) string {
	// An hour past the day boundary so the floor lands exactly on days.
	return scanNow.Add(time.Duration(days)*24*time.Hour + time.Hour).Format(time.RFC3339)
}

func TestScanRefreshTokenInsideDisconnectWindow(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshToken:          "rt-1",
		models.FieldRefreshTokenExpiresAt: inDays(5),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	require.Len(t, result.ShouldAutoDisconnect, 1)
	entry := result.ShouldAutoDisconnect[0]
	assert.Equal(t, "cred-1", entry.CredentialID)
	assert.Equal(t, "user-cred-1", entry.UserID)
	assert.Equal(t, "refresh_token_expires_in_5_days", entry.Reason)
	assert.Empty(t, result.NeedsDisconnectWarning)
	assert.Equal(t, scanNow, result.CheckedAt)
}

func TestScanRefreshTokenExpired(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshTokenExpiresAt: scanNow.Add(-48 * time.Hour).Format(time.RFC3339),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	require.Len(t, result.ShouldAutoDisconnect, 1)
	assert.Equal(t, models.ReasonRefreshTokenExpired, result.ShouldAutoDisconnect[0].Reason)
}

func TestScanRefreshTokenInsideWarningWindow(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshTokenExpiresAt: inDays(20),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	assert.Empty(t, result.ShouldAutoDisconnect)
	require.Len(t, result.NeedsDisconnectWarning, 1)
	assert.Equal(t, 20, result.NeedsDisconnectWarning[0].RefreshExpiresInDays)
}

func TestScanAccessTokenExpiringSoon(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldAccessToken: "at-1",
		models.FieldExpiresAt:   inDays(3),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	require.Len(t, result.NeedsAccessRefresh, 1)
	assert.Equal(t, 3, result.NeedsAccessRefresh[0].ExpiresInDays)
	assert.Empty(t, result.ShouldAutoDisconnect)
}

func TestScanExpiredAccessTokenNotBucketed(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldExpiresAt: scanNow.Add(-time.Hour).Format(time.RFC3339),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)
	assert.Empty(t, result.NeedsAccessRefresh)
}

func TestScanBucketsAreIndependent(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldExpiresAt:             inDays(2),
		models.FieldRefreshTokenExpiresAt: inDays(15),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	assert.Len(t, result.NeedsAccessRefresh, 1)
	assert.Len(t, result.NeedsDisconnectWarning, 1)
	assert.Empty(t, result.ShouldAutoDisconnect)
}

func TestScanRefreshAndDisconnectOverlap(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldExpiresAt:             inDays(2),
		models.FieldRefreshTokenExpiresAt: inDays(5),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	// Both windows within 7 days: the credential lands in both buckets.
	require.Len(t, result.NeedsAccessRefresh, 1)
	require.Len(t, result.ShouldAutoDisconnect, 1)
	assert.Equal(t, "cred-1", result.NeedsAccessRefresh[0].CredentialID)
	assert.Equal(t, "cred-1", result.ShouldAutoDisconnect[0].CredentialID)
	assert.Equal(t, "refresh_token_expires_in_5_days", result.ShouldAutoDisconnect[0].Reason)
	assert.Empty(t, result.NeedsDisconnectWarning)
}

func TestScanLegacyFieldNames(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		"refreshTokenExpiresAt": inDays(4),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	require.Len(t, result.ShouldAutoDisconnect, 1)
	assert.Equal(t, "refresh_token_expires_in_4_days", result.ShouldAutoDisconnect[0].Reason)
}

func TestScanEpochMillisExpiry(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	expires := scanNow.Add(3*24*time.Hour + time.Hour)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldExpiresAt: fmt.Sprintf("%d", expires.UnixMilli()),
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	require.Len(t, result.NeedsAccessRefresh, 1)
	assert.Equal(t, 3, result.NeedsAccessRefresh[0].ExpiresInDays)
}

func TestScanSkipsUndecryptableCredential(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-good", models.Fields{
		models.FieldRefreshTokenExpiresAt: inDays(5),
	})
	require.NoError(t, st.Upsert(&models.Credential{
		ID:              "cred-bad",
		UserID:          "user-bad",
		Platform:        models.PlatformYouTube,
		Status:          models.StatusActive,
		EncryptedFields: []byte("not a sealed blob"),
	}))

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedCredentials)
	assert.Len(t, result.ShouldAutoDisconnect, 1)
}

func TestScanStoreFailureAborts(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)

	boom := stderrors.New("backend unavailable")
	st.FailReads(boom)

	s := New(st, codec, DefaultPolicy())
	_, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	assert.ErrorIs(t, err, boom)
}

func TestScanNoExpiryFields(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldAccessToken: "at-1",
	})

	s := New(st, codec, DefaultPolicy())
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)

	assert.Empty(t, result.NeedsAccessRefresh)
	assert.Empty(t, result.NeedsDisconnectWarning)
	assert.Empty(t, result.ShouldAutoDisconnect)
	assert.Zero(t, result.SkippedCredentials)
}

func TestScanManyCredentialsConcurrently(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("cred-%02d", i)
		require.NoError(t, st.Upsert(&models.Credential{
			ID:       id,
			UserID:   "user-" + id,
			Platform: models.PlatformYouTube,
			Status:   models.StatusActive,
			EncryptedFields: func() []byte {
				blob, err := codec.Encrypt(models.Fields{
					models.FieldRefreshTokenExpiresAt: inDays(5),
				})
				require.NoError(t, err)
				return blob
			}(),
		}))
	}

	s := New(st, codec, DefaultPolicy(), WithWorkers(8))
	result, err := s.Scan(context.Background(), models.PlatformYouTube, scanNow)
	require.NoError(t, err)
	assert.Len(t, result.ShouldAutoDisconnect, 50)
}

func TestScanCancelledContext(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshTokenExpiresAt: inDays(5),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(st, codec, DefaultPolicy())
	_, err := s.Scan(ctx, models.PlatformYouTube, scanNow)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.AccessRefreshDays = 0
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.RefreshWarningDays = 3
	assert.Error(t, bad.Validate())
}
