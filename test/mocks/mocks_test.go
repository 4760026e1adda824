package mocks

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockNotifierRecordsMessages(t *testing.T) {
	n := NewMockNotifier()

	require.NoError(t, n.SendMessage("first"))
	require.NoError(t, n.SendMessage("second"))

	assert.Equal(t, 2, n.SentCount)
	assert.Equal(t, []string{"first", "second"}, n.Messages())

	n.Reset()
	assert.Equal(t, 0, n.SentCount)
	assert.Empty(t, n.Messages())
}

func TestMockNotifierFailNext(t *testing.T) {
	n := NewMockNotifier()
	n.FailNext = assert.AnError

	assert.Error(t, n.SendMessage("dropped"))
	assert.NoError(t, n.SendMessage("delivered"))
	assert.Equal(t, []string{"delivered"}, n.Messages())
}

func TestMockProviderExchange(t *testing.T) {
	p := NewMockProvider("new-token", 3600)
	defer p.Close()

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {"cid"},
		"client_secret": {"cs"},
		"refresh_token": {"rt"},
	}
	resp, err := http.Post(p.URL(), "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, p.ExchangeCount())

	last := p.LastExchange()
	require.NotNil(t, last)
	assert.Equal(t, "refresh_token", last.GrantType)
	assert.Equal(t, "rt", last.RefreshToken)
}

func TestMockProviderReject(t *testing.T) {
	p := NewMockProvider("new-token", 3600)
	defer p.Close()
	p.Reject("invalid_grant", "refresh token revoked")

	resp, err := http.Post(p.URL(), "application/x-www-form-urlencoded", strings.NewReader("grant_type=refresh_token"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
