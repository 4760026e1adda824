package integration

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/tokenwarden/tokenwarden/internal/alerts"
	"github.com/tokenwarden/tokenwarden/internal/api"
	"github.com/tokenwarden/tokenwarden/internal/config"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/expiry"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/refresh"
	"github.com/tokenwarden/tokenwarden/internal/scanner"
	"github.com/tokenwarden/tokenwarden/internal/scheduler"
	"github.com/tokenwarden/tokenwarden/internal/store"
	"github.com/tokenwarden/tokenwarden/test/mocks"
)

const testAPIKey = "integration-test-key"

// testServer wires a full TokenWarden stack against a temp SQLite database,
// a fake OAuth provider and a recording notifier.
type testServer struct {
	Engine   *gin.Engine
	Store    *store.SQLiteStore
	Codec    *crypto.Codec
	Provider *mocks.MockProvider
	Notifier *mocks.MockNotifier
	Alerts   *alerts.Service
	Pipeline *scheduler.Pipeline
	server   *api.Server
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "tokenwarden.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	codec, err := crypto.NewCodec(make([]byte, 32))
	require.NoError(t, err)

	provider := mocks.NewMockProvider("fresh-access-token", 3600)
	t.Cleanup(provider.Close)

	platforms := make(map[models.Platform]refresh.PlatformConfig)
	for _, p := range models.KnownPlatforms() {
		platforms[p] = refresh.PlatformConfig{
			TokenURL: provider.URL(),
			ClientCredentials: refresh.ClientCredentials{
				ClientID:     "integration-client",
				ClientSecret: "integration-secret",
			},
		}
	}

	notifier := mocks.NewMockNotifier()
	alertSvc := alerts.NewService(alerts.Config{
		Enabled:            true,
		Debounce:           time.Hour,
		RateLimitPerMinute: 600,
	}, notifier, nil)

	sc := scanner.New(st, codec, scanner.DefaultPolicy())
	executor := refresh.New(st, codec, platforms)
	pipeline := scheduler.NewPipeline(scheduler.PipelineDeps{
		Scanner:        sc,
		Executor:       executor,
		Store:          st,
		Alerts:         alertSvc,
		AutoDisconnect: true,
	})

	srv := api.NewServer(config.ServerConfig{}, config.APIConfig{
		Auth: config.AuthConfig{
			Enabled: true,
			APIKeys: []string{testAPIKey},
		},
	}, api.Deps{
		Store:      st,
		Scanner:    sc,
		Pipeline:   pipeline,
		Executor:   executor,
		Classifier: expiry.NewClassifier(expiry.DefaultThresholds()),
		Codec:      codec,
	})

	return &testServer{
		Engine:   srv.Router(),
		Store:    st,
		Codec:    codec,
		Provider: provider,
		Notifier: notifier,
		Alerts:   alertSvc,
		Pipeline: pipeline,
		server:   srv,
	}
}

func (ts *testServer) seedCredential(t *testing.T, id, userID string, platform models.Platform, fields models.Fields) {
	t.Helper()
	blob, err := ts.Codec.Encrypt(fields)
	require.NoError(t, err)
	require.NoError(t, ts.Store.Upsert(&models.Credential{
		ID:              id,
		UserID:          userID,
		Platform:        platform,
		Status:          models.StatusActive,
		EncryptedFields: blob,
	}))
}

func (ts *testServer) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(api.DefaultAPIKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	ts.Engine.ServeHTTP(w, req)
	return w
}

func (ts *testServer) decryptedFields(t *testing.T, id string) models.Fields {
	t.Helper()
	cred, err := ts.Store.Get(id)
	require.NoError(t, err)
	fields, err := ts.Codec.Decrypt(cred.EncryptedFields)
	require.NoError(t, err)
	return fields
}

func inDays(days int) string {
	return time.Now().UTC().Add(time.Duration(days)*24*time.Hour + time.Hour).Format(time.RFC3339)
}

func TestServerHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.Engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "healthy")
}
