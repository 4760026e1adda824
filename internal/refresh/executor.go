// Package refresh exchanges stored refresh tokens for new access tokens
// against each platform's OAuth token endpoint.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/errors"
	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

const maxResponseBytes = 1 << 20

// Outcome reports the result of one refresh. It never carries token values.
type Outcome struct {
	CredentialID string          `json:"credential_id"`
	Platform     models.Platform `json:"platform"`
	Refreshed    bool            `json:"refreshed"`
	ExpiresAt    time.Time       `json:"expires_at,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Executor performs refresh-token grants and persists the updated payloads.
type Executor struct {
	store     store.Store
	codec     *crypto.Codec
	client    *http.Client
	platforms map[models.Platform]PlatformConfig
	workers   int
	logger    *logging.Logger
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient replaces the provider HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

// WithTimeout sets the per-request provider timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithWorkers sets the RefreshAll pool size.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// New creates an executor over the given store and codec. The platforms map
// supplies per-platform client credentials and token endpoint overrides.
func New(st store.Store, codec *crypto.Codec, platforms map[models.Platform]PlatformConfig, opts ...Option) *Executor {
	e := &Executor{
		store: st,
		codec: codec,
		client: &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		platforms: platforms,
		workers:   4,
		logger:    logging.NewLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh exchanges the credential's refresh token for a fresh access token
// and persists the updated payload. All non-token fields in the payload are
// preserved unchanged.
func (e *Executor) Refresh(ctx context.Context, credentialID string) (*Outcome, error) {
	cred, err := e.store.Get(credentialID)
	if err != nil {
		return nil, err
	}

	fields, err := e.codec.Decrypt(cred.EncryptedFields)
	if err != nil {
		return nil, &errors.ErrDecrypt{CredentialID: cred.ID, Err: err}
	}
	fields = fields.Normalize()

	refreshToken := fields[models.FieldRefreshToken]
	if refreshToken == "" {
		return nil, &errors.ErrMissingRefreshToken{CredentialID: cred.ID}
	}

	clientID, clientSecret := e.resolveClientCredentials(cred, fields)
	if clientID == "" || clientSecret == "" {
		return nil, &errors.ErrClientCredentials{Platform: string(cred.Platform)}
	}

	token, err := e.exchange(ctx, cred.Platform, clientID, clientSecret, refreshToken)
	if err != nil {
		return nil, err
	}

	expiresAt := e.now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
	fields[models.FieldAccessToken] = token.AccessToken
	fields[models.FieldExpiresAt] = expiresAt.Format(time.RFC3339)

	blob, err := e.codec.Encrypt(fields)
	if err != nil {
		return nil, &errors.ErrTokenStore{CredentialID: cred.ID, Err: err}
	}
	if err := e.store.UpdateEncryptedFields(cred.ID, blob); err != nil {
		return nil, &errors.ErrTokenStore{CredentialID: cred.ID, Err: err}
	}

	e.logger.InfoWithContext(ctx, "access token refreshed",
		"credential_id", cred.ID,
		"platform", string(cred.Platform),
		"expires_at", expiresAt.Format(time.RFC3339))

	return &Outcome{
		CredentialID: cred.ID,
		Platform:     cred.Platform,
		Refreshed:    true,
		ExpiresAt:    expiresAt,
	}, nil
}

// resolveClientCredentials prefers values stored with the credential itself
// over the per-platform configuration.
func (e *Executor) resolveClientCredentials(cred *models.Credential, fields models.Fields) (string, string) {
	clientID := fields[models.FieldClientID]
	clientSecret := fields[models.FieldClientSecret]
	if clientID == "" {
		clientID = cred.Metadata["client_id"]
	}
	if clientSecret == "" {
		clientSecret = cred.Metadata["client_secret"]
	}
	if pc, ok := e.platforms[cred.Platform]; ok {
		if clientID == "" {
			clientID = pc.ClientCredentials.ClientID
		}
		if clientSecret == "" {
			clientSecret = pc.ClientCredentials.ClientSecret
		}
	}
	return clientID, clientSecret
}

func (e *Executor) exchange(ctx context.Context, platform models.Platform, clientID, clientSecret, refreshToken string) (*tokenResponse, error) {
	endpoint := e.TokenURL(platform)
	if endpoint == "" {
		return nil, &errors.ErrProviderRejected{Platform: string(platform), Message: "no token endpoint configured"}
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &errors.ErrProviderRejected{Platform: string(platform), Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &errors.ErrProviderRejected{Platform: string(platform), Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var te tokenError
		message := fmt.Sprintf("status %d", resp.StatusCode)
		if json.Unmarshal(body, &te) == nil {
			if te.ErrorDescription != "" {
				message = te.ErrorDescription
			} else if te.Error != "" {
				message = te.Error
			}
		}
		return nil, &errors.ErrProviderRejected{Platform: string(platform), Message: message}
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &errors.ErrProviderRejected{Platform: string(platform), Message: "unparseable token response"}
	}
	if token.AccessToken == "" {
		return nil, &errors.ErrProviderRejected{Platform: string(platform), Message: "token response missing access_token"}
	}
	return &token, nil
}

// RefreshAll runs the given credentials through a bounded worker pool and
// returns one outcome per credential. Cancelling the context stops new work
// from being dispatched; exchanges already in flight run to completion.
func (e *Executor) RefreshAll(ctx context.Context, credentialIDs []string) []Outcome {
	outcomes := make([]Outcome, len(credentialIDs))

	type job struct {
		idx int
		id  string
	}
	jobs := make(chan job)

	// Detached from the batch context so in-flight exchanges can finish.
	callCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcome, err := e.Refresh(callCtx, j.id)
				if err != nil {
					e.logger.WarnWithContext(ctx, "refresh failed",
						"credential_id", j.id,
						"error", err.Error())
					outcomes[j.idx] = Outcome{CredentialID: j.id, Error: err.Error()}
					continue
				}
				outcomes[j.idx] = *outcome
			}
		}()
	}

dispatch:
	for i, id := range credentialIDs {
		select {
		case jobs <- job{idx: i, id: id}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		for i, id := range credentialIDs {
			if outcomes[i].CredentialID == "" {
				outcomes[i] = Outcome{CredentialID: id, Error: err.Error()}
			}
		}
	}
	return outcomes
}
