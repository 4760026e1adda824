package refresh

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/errors"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

var refreshNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

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

func platformsWith(tokenURL string) map[models.Platform]PlatformConfig {
	return map[models.Platform]PlatformConfig{
		models.PlatformYouTube: {
			TokenURL: tokenURL,
			ClientCredentials: ClientCredentials{
				ClientID:     "cfg-client",
				ClientSecret: "cfg-secret",
			},
		},
	}
}

func TestRefreshSuccess(t *testing.T) {
	var gotForm map[string]string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
			"refresh_token": r.PostFormValue("refresh_token"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-at","expires_in":3600}`))
	}))
	defer provider.Close()

	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldAccessToken:  "stale-at",
		models.FieldRefreshToken: "rt-1",
		"channel_id":             "UC123",
	})

	e := New(st, codec, platformsWith(provider.URL), WithClock(func() time.Time { return refreshNow }))
	outcome, err := e.Refresh(context.Background(), "cred-1")
	require.NoError(t, err)

	assert.True(t, outcome.Refreshed)
	assert.Equal(t, "cred-1", outcome.CredentialID)
	assert.Equal(t, refreshNow.Add(time.Hour), outcome.ExpiresAt)

	assert.Equal(t, "refresh_token", gotForm["grant_type"])
	assert.Equal(t, "cfg-client", gotForm["client_id"])
	assert.Equal(t, "cfg-secret", gotForm["client_secret"])
	assert.Equal(t, "rt-1", gotForm["refresh_token"])

	// Persisted payload carries the new token, the new expiry, and every
	// other field untouched.
	cred, err := st.Get("cred-1")
	require.NoError(t, err)
	fields, err := codec.Decrypt(cred.EncryptedFields)
	require.NoError(t, err)
	assert.Equal(t, "fresh-at", fields[models.FieldAccessToken])
	assert.Equal(t, refreshNow.Add(time.Hour).Format(time.RFC3339), fields[models.FieldExpiresAt])
	assert.Equal(t, "rt-1", fields[models.FieldRefreshToken])
	assert.Equal(t, "UC123", fields["channel_id"])
}

func TestRefreshPrefersCredentialClientCredentials(t *testing.T) {
	var gotClientID string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotClientID = r.PostFormValue("client_id")
		w.Write([]byte(`{"access_token":"fresh-at","expires_in":3600}`))
	}))
	defer provider.Close()

	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshToken: "rt-1",
		models.FieldClientID:     "own-client",
		models.FieldClientSecret: "own-secret",
	})

	e := New(st, codec, platformsWith(provider.URL))
	_, err := e.Refresh(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, "own-client", gotClientID)
}

func TestRefreshProviderRejection(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	}))
	defer provider.Close()

	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldAccessToken:  "stale-at",
		models.FieldRefreshToken: "rt-1",
	})
	before, err := st.Get("cred-1")
	require.NoError(t, err)

	e := New(st, codec, platformsWith(provider.URL))
	_, err = e.Refresh(context.Background(), "cred-1")

	var rejected *errors.ErrProviderRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Token has been expired or revoked.", rejected.Message)
	assert.NotContains(t, err.Error(), "rt-1")
	assert.NotContains(t, err.Error(), "stale-at")

	// Payload stays untouched on rejection.
	after, err := st.Get("cred-1")
	require.NoError(t, err)
	assert.Equal(t, before.EncryptedFields, after.EncryptedFields)
}

func TestRefreshStoreFailure(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"fresh-at","expires_in":3600}`))
	}))
	defer provider.Close()

	codec := newTestCodec(t)
	st := &updateFailingStore{Store: store.NewMemoryStore(), err: stderrors.New("disk full")}
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshToken: "rt-1",
	})

	e := New(st, codec, platformsWith(provider.URL))
	_, err := e.Refresh(context.Background(), "cred-1")

	var storeErr *errors.ErrTokenStore
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "cred-1", storeErr.CredentialID)
}

type updateFailingStore struct {
	store.Store
	err error
}

func (s *updateFailingStore) UpdateEncryptedFields(id string, blob []byte) error {
	return s.err
}

func TestRefreshMissingRefreshToken(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldAccessToken: "at-only",
	})

	e := New(st, codec, platformsWith("http://unused.invalid"))
	_, err := e.Refresh(context.Background(), "cred-1")

	var missing *errors.ErrMissingRefreshToken
	assert.ErrorAs(t, err, &missing)
}

func TestRefreshMissingClientCredentials(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshToken: "rt-1",
	})

	e := New(st, codec, nil)
	_, err := e.Refresh(context.Background(), "cred-1")

	var clientErr *errors.ErrClientCredentials
	assert.ErrorAs(t, err, &clientErr)
}

func TestRefreshUnknownCredential(t *testing.T) {
	e := New(store.NewMemoryStore(), newTestCodec(t), nil)
	_, err := e.Refresh(context.Background(), "ghost")

	var notFound *errors.ErrCredentialNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRefreshAll(t *testing.T) {
	var calls atomic.Int64
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"access_token":"fresh-at","expires_in":3600}`))
	}))
	defer provider.Close()

	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	ids := make([]string, 0, 10)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		seedCredential(t, st, codec, "cred-"+id, models.Fields{
			models.FieldRefreshToken: "rt-" + id,
		})
		ids = append(ids, "cred-"+id)
	}

	e := New(st, codec, platformsWith(provider.URL), WithWorkers(3))
	outcomes := e.RefreshAll(context.Background(), ids)

	require.Len(t, outcomes, len(ids))
	for i, o := range outcomes {
		assert.Equal(t, ids[i], o.CredentialID)
		assert.True(t, o.Refreshed)
		assert.Empty(t, o.Error)
	}
	assert.Equal(t, int64(len(ids)), calls.Load())
}

func TestRefreshAllMixedOutcomes(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"fresh-at","expires_in":3600}`))
	}))
	defer provider.Close()

	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-good", models.Fields{
		models.FieldRefreshToken: "rt-good",
	})
	seedCredential(t, st, codec, "cred-bare", models.Fields{
		models.FieldAccessToken: "at-only",
	})

	e := New(st, codec, platformsWith(provider.URL))
	outcomes := e.RefreshAll(context.Background(), []string{"cred-good", "cred-bare", "cred-ghost"})

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Refreshed)
	assert.False(t, outcomes[1].Refreshed)
	assert.Contains(t, outcomes[1].Error, "no refresh token")
	assert.False(t, outcomes[2].Refreshed)
	assert.NotEmpty(t, outcomes[2].Error)
}

func TestRefreshAllCancelledContext(t *testing.T) {
	st := store.NewMemoryStore()
	codec := newTestCodec(t)
	seedCredential(t, st, codec, "cred-1", models.Fields{
		models.FieldRefreshToken: "rt-1",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(st, codec, nil)
	outcomes := e.RefreshAll(ctx, []string{"cred-1", "cred-2"})

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.False(t, o.Refreshed)
		assert.NotEmpty(t, o.Error)
	}
}

func TestTokenURLDefaults(t *testing.T) {
	e := New(store.NewMemoryStore(), newTestCodec(t), nil)
	assert.Equal(t, "https://oauth2.googleapis.com/token", e.TokenURL(models.PlatformYouTube))
	assert.Equal(t, "https://www.linkedin.com/oauth/v2/accessToken", e.TokenURL(models.PlatformLinkedIn))

	e = New(store.NewMemoryStore(), newTestCodec(t), platformsWith("http://override.local/token"))
	assert.Equal(t, "http://override.local/token", e.TokenURL(models.PlatformYouTube))
}
