package sheets

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestTokenFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}

	require.NoError(t, saveToken(path, token))

	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, loaded.AccessToken)
	assert.Equal(t, token.RefreshToken, loaded.RefreshToken)
	assert.True(t, token.Expiry.Equal(loaded.Expiry))

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestGetOrCreateToken_UsesValidSavedToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, saveToken(path, &oauth2.Token{AccessToken: "still-good", Expiry: time.Now().Add(time.Hour)}))

	token, err := GetOrCreateToken(context.Background(), OAuth2Config{TokenFile: path}, func(string) {
		t.Fatal("interactive flow should not start")
	})
	require.NoError(t, err)
	assert.Equal(t, "still-good", token.AccessToken)
}

func TestAuthenticateOAuth2Interactive_MissingCode(t *testing.T) {
	cfg := OAuth2Config{ClientID: "id", ClientSecret: "secret", ListenAddr: "127.0.0.1:0", Timeout: 10 * time.Second}

	_, err := AuthenticateOAuth2Interactive(context.Background(), cfg, func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		callback := q.Get("redirect_uri") + "?state=" + url.QueryEscape(q.Get("state"))

		resp, err := http.Get(callback) //nolint:noctx // test callback
		require.NoError(t, err)
		_ = resp.Body.Close()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no authorization code received")
}

func TestAuthenticateOAuth2Interactive_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := OAuth2Config{ClientID: "id", ClientSecret: "secret", ListenAddr: "127.0.0.1:0"}

	_, err := AuthenticateOAuth2Interactive(ctx, cfg, func(string) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
}
