package mocks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// TokenResponse is the provider's successful token exchange payload
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type,omitempty"`
}

// TokenError is the provider's OAuth error payload
type TokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// RecordedExchange captures one token exchange request
type RecordedExchange struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// MockProvider is a fake OAuth token endpoint. By default every exchange
// succeeds; set Failure to make it reject with an OAuth error instead.
type MockProvider struct {
	Server    *httptest.Server
	Response  TokenResponse
	Failure   *TokenError
	Exchanges []RecordedExchange
	mu        sync.Mutex
}

// NewMockProvider starts a fake token endpoint returning the given token
func NewMockProvider(accessToken string, expiresIn int) *MockProvider {
	p := &MockProvider{
		Response: TokenResponse{
			AccessToken: accessToken,
			ExpiresIn:   expiresIn,
			TokenType:   "Bearer",
		},
	}
	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	return p
}

// URL returns the token endpoint URL
func (p *MockProvider) URL() string {
	return p.Server.URL
}

// Close shuts the fake endpoint down
func (p *MockProvider) Close() {
	p.Server.Close()
}

// Reject makes every subsequent exchange fail with the given OAuth error
func (p *MockProvider) Reject(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Failure = &TokenError{Error: code, ErrorDescription: description}
}

// ExchangeCount returns the number of token exchanges handled
func (p *MockProvider) ExchangeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Exchanges)
}

// LastExchange returns the most recent exchange, or nil
func (p *MockProvider) LastExchange() *RecordedExchange {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Exchanges) == 0 {
		return nil
	}
	last := p.Exchanges[len(p.Exchanges)-1]
	return &last
}

func (p *MockProvider) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.Exchanges = append(p.Exchanges, RecordedExchange{
		GrantType:    r.PostFormValue("grant_type"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		RefreshToken: r.PostFormValue("refresh_token"),
	})
	failure := p.Failure
	response := p.Response
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failure != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(failure)
		return
	}
	json.NewEncoder(w).Encode(response)
}
