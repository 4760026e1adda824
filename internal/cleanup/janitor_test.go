package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "janitor.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedCredential(t *testing.T, st *store.SQLiteStore, id string, status models.CredentialStatus, age time.Duration) {
	t.Helper()
	require.NoError(t, st.Upsert(&models.Credential{
		ID:              id,
		UserID:          "user-" + id,
		Platform:        models.PlatformYouTube,
		Status:          status,
		EncryptedFields: []byte("sealed"),
	}))
	if age > 0 {
		_, err := st.DB().Exec("UPDATE credentials SET updated_at = ? WHERE id = ?",
			time.Now().UTC().Add(-age), id)
		require.NoError(t, err)
	}
}

func TestRunPurgeDeletesOldDisconnected(t *testing.T) {
	st := newTestStore(t)

	seedCredential(t, st, "cred-old", models.StatusDisconnected, 48*time.Hour)
	seedCredential(t, st, "cred-recent", models.StatusDisconnected, time.Hour)
	seedCredential(t, st, "cred-active", models.StatusActive, 48*time.Hour)

	j := NewJanitor(Config{DisconnectedRetention: 24 * time.Hour}, st.DB(), nil, nil)

	deleted, err := j.RunPurge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = st.Get("cred-old")
	assert.Error(t, err)
	_, err = st.Get("cred-recent")
	assert.NoError(t, err)
	_, err = st.Get("cred-active")
	assert.NoError(t, err)

	stats := j.GetStats()
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, int64(1), stats.TotalDeletedCount)
}

func TestRunPurgeZeroRetentionKeepsEverything(t *testing.T) {
	st := newTestStore(t)
	seedCredential(t, st, "cred-old", models.StatusDisconnected, 30*24*time.Hour)

	j := NewJanitor(Config{}, st.DB(), nil, nil)

	deleted, err := j.RunPurge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = st.Get("cred-old")
	assert.NoError(t, err)
}

func TestRunVacuum(t *testing.T) {
	st := newTestStore(t)
	seedCredential(t, st, "cred-1", models.StatusActive, 0)

	j := NewJanitor(Config{VacuumEnabled: true}, st.DB(), nil, nil)

	require.NoError(t, j.RunVacuum(context.Background()))
	assert.Equal(t, 1, j.GetStats().VacuumCount)
}

func TestJanitorStartStop(t *testing.T) {
	st := newTestStore(t)

	j := NewJanitor(Config{Interval: time.Hour}, st.DB(), nil, nil)

	require.NoError(t, j.Start(context.Background()))
	assert.True(t, j.IsRunning())
	assert.Error(t, j.Start(context.Background()))

	require.NoError(t, j.Stop())
	assert.False(t, j.IsRunning())
	require.NoError(t, j.Stop())
}
