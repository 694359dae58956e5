package graph

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dbrownell/devenv-utilities/internal/certgen"
	"github.com/dbrownell/devenv-utilities/internal/tokenfile"
)

const testTokenJSON = `{
	"access_token": "test-access-token",
	"token_type": "Bearer",
	"refresh_token": "test-refresh-token",
	"expires_in": 3600
}`

// newMockTokenServer serves the token endpoint. A nil handler answers with
// testTokenJSON.
func newMockTokenServer(t *testing.T, handler http.HandlerFunc) oauth2.Endpoint {
	t.Helper()

	if handler == nil {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(testTokenJSON))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", handler)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return oauth2.Endpoint{
		AuthURL:  srv.URL + "/authorize",
		TokenURL: srv.URL + "/token",
	}
}

func testAuthConfig(t *testing.T, endpoint oauth2.Endpoint) AuthConfig {
	t.Helper()

	return AuthConfig{
		ClientID:     "client-1",
		ClientSecret: "secret",
		RedirectURL:  "http://127.0.0.1:0/callback",
		TokenPath:    filepath.Join(t.TempDir(), "tokens", "jane.json"),
		Timeout:      5 * time.Second,
		Endpoint:     endpoint,
	}
}

// redirectBack simulates the browser: it follows the authorization URL back
// to the local callback with the given code and a state transform.
func redirectBack(t *testing.T, code string, mangleState bool) func(string) error {
	t.Helper()

	return redirectBackWith(t, http.DefaultClient, code, mangleState)
}

func redirectBackWith(t *testing.T, client *http.Client, code string, mangleState bool) func(string) error {
	t.Helper()

	return func(authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)

		q := u.Query()
		assert.Equal(t, "select_account", q.Get("prompt"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))
		assert.Contains(t, q.Get("scope"), "offline_access")

		state := q.Get("state")
		if mangleState {
			state += "x"
		}

		cb := q.Get("redirect_uri") + "?" + url.Values{"code": {code}, "state": {state}}.Encode()

		resp, err := client.Get(cb) //nolint:noctx // test helper
		if err != nil {
			return err
		}

		return resp.Body.Close()
	}
}

func TestLoginWithBrowser_Success(t *testing.T) {
	endpoint := newMockTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTokenJSON))
	})

	cfg := testAuthConfig(t, endpoint)

	ts, err := LoginWithBrowser(context.Background(), cfg, redirectBack(t, "the-code", false), slog.Default())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "test-access-token", tok)

	saved, meta, err := tokenfile.Load(cfg.TokenPath)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "test-refresh-token", saved.RefreshToken)
	assert.Equal(t, "client-1", meta["client_id"])
}

func TestLoginWithBrowser_StateMismatch(t *testing.T) {
	cfg := testAuthConfig(t, newMockTokenServer(t, nil))

	_, err := LoginWithBrowser(context.Background(), cfg, redirectBack(t, "c", true), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestLoginWithBrowser_Timeout(t *testing.T) {
	cfg := testAuthConfig(t, newMockTokenServer(t, nil))
	cfg.Timeout = 50 * time.Millisecond

	_, err := LoginWithBrowser(context.Background(), cfg, func(string) error { return nil }, slog.Default())
	assert.ErrorIs(t, err, ErrAuthTimeout)
}

func TestLoginWithBrowser_HTTPSNeedsPEM(t *testing.T) {
	cfg := testAuthConfig(t, newMockTokenServer(t, nil))
	cfg.RedirectURL = "https://127.0.0.1:0/"
	cfg.PEMFile = filepath.Join(t.TempDir(), "missing.pem")

	_, err := LoginWithBrowser(context.Background(), cfg, func(string) error { return nil }, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TLS certificate")
}

func TestLoginWithBrowser_HTTPSCallback(t *testing.T) {
	req := certgen.NewRequest("127.0.0.1", "", "", "", "")
	req.KeyType = certgen.KeyECDSA
	req.KeySize = 256

	art, err := certgen.Generator{}.Generate(req)
	require.NoError(t, err)

	pemFile := filepath.Join(t.TempDir(), "callback.pem")
	require.NoError(t, certgen.Write(art, certgen.WriteOptions{CertPath: pemFile}))

	roots := x509.NewCertPool()
	roots.AddCert(art.Certificate)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: roots, MinVersion: tls.VersionTLS12},
	}}
	t.Cleanup(client.CloseIdleConnections)

	var sawRedirect atomic.Value

	endpoint := newMockTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		sawRedirect.Store(r.Form.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(testTokenJSON))
	})

	cfg := testAuthConfig(t, endpoint)
	cfg.RedirectURL = "https://127.0.0.1:0/callback"
	cfg.PEMFile = pemFile

	ts, err := LoginWithBrowser(context.Background(), cfg, redirectBackWith(t, client, "tls-code", false), slog.Default())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "test-access-token", tok)

	redirect, _ := sawRedirect.Load().(string)
	assert.Regexp(t, `^https://127\.0\.0\.1:\d+/callback$`, redirect)
}

func TestLoginWithBrowser_UnsupportedScheme(t *testing.T) {
	cfg := testAuthConfig(t, newMockTokenServer(t, nil))
	cfg.RedirectURL = "ftp://127.0.0.1:0/"

	_, err := LoginWithBrowser(context.Background(), cfg, func(string) error { return nil }, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported redirect URI scheme")
}

func TestTokenSourceFromPath_NotLoggedIn(t *testing.T) {
	cfg := testAuthConfig(t, newMockTokenServer(t, nil))

	_, err := TokenSourceFromPath(context.Background(), cfg, slog.Default())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTokenSourceFromPath_ForeignClient(t *testing.T) {
	cfg := testAuthConfig(t, newMockTokenServer(t, nil))
	require.NoError(t, tokenfile.Save(cfg.TokenPath, &oauth2.Token{AccessToken: "a", RefreshToken: "r"},
		map[string]string{"client_id": "someone-else"}))

	_, err := TokenSourceFromPath(context.Background(), cfg, slog.Default())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestTokenSourceFromPath_PersistsRefresh(t *testing.T) {
	var calls atomic.Int32

	endpoint := newMockTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","refresh_token":"rt2","expires_in":3600}`))
	})

	cfg := testAuthConfig(t, endpoint)
	require.NoError(t, tokenfile.Save(cfg.TokenPath, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "rt1",
		Expiry:       time.Now().Add(-time.Hour),
	}, map[string]string{"client_id": "client-1"}))

	ts, err := TokenSourceFromPath(context.Background(), cfg, slog.Default())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	// A second call reuses the cached token.
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	saved, _, err := tokenfile.Load(cfg.TokenPath)
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
	assert.Equal(t, "rt2", saved.RefreshToken)
}

func TestTokenSourceFromPath_RefreshRejected(t *testing.T) {
	endpoint := newMockTokenServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	cfg := testAuthConfig(t, endpoint)
	require.NoError(t, tokenfile.Save(cfg.TokenPath, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	}, nil))

	ts, err := TokenSourceFromPath(context.Background(), cfg, slog.Default())
	require.NoError(t, err)

	_, err = ts.Token()
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.json")
	require.NoError(t, tokenfile.Save(path, &oauth2.Token{AccessToken: "a"}, nil))

	require.NoError(t, Logout(path, slog.Default()))
	require.NoError(t, Logout(path, slog.Default()))

	tok, _, err := tokenfile.Load(path)
	require.NoError(t, err)
	assert.Nil(t, tok)
}
