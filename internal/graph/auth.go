package graph

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/dbrownell/devenv-utilities/internal/tokenfile"
)

// Scopes requested for the archiver: profile for identity checks,
// offline_access for refresh tokens, and drive access.
var Scopes = []string{
	"User.Read",
	"offline_access",
	"Files.ReadWrite.All",
}

// DefaultAuthTimeout bounds how long LoginWithBrowser waits for the redirect.
const DefaultAuthTimeout = 120 * time.Second

const (
	stateTokenBytes = 16
	shutdownTimeout = 5 * time.Second
	metaClientID    = "client_id"
)

// AuthConfig describes the registered application and where its token lives.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	PEMFile      string // combined cert+key PEM served on an https redirect
	TokenPath    string
	Timeout      time.Duration   // zero selects DefaultAuthTimeout
	Endpoint     oauth2.Endpoint // zero selects the Microsoft common endpoint
}

func (a *AuthConfig) oauthConfig() *oauth2.Config {
	endpoint := a.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = microsoft.AzureADEndpoint("common")
	}

	return &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		RedirectURL:  a.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

func (a *AuthConfig) meta() map[string]string {
	return map[string]string{metaClientID: a.ClientID}
}

type callbackResult struct {
	code string
	err  error
}

// LoginWithBrowser runs the authorization code + PKCE flow. It serves the
// redirect URI locally (TLS when the scheme is https), hands the
// authorization URL to openURL, waits for the code, exchanges it, and saves
// the token at cfg.TokenPath.
//
// The returned TokenSource is bound to ctx; refreshes fail once ctx is done.
func LoginWithBrowser(ctx context.Context, cfg AuthConfig, openURL func(string) error, logger *slog.Logger) (TokenSource, error) {
	logger.Info("starting browser authorization", slog.String("path", cfg.TokenPath))

	redirect, err := url.Parse(cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("graph: parsing redirect URI: %w", err)
	}

	listener, err := listenForRedirect(ctx, redirect, cfg.PEMFile)
	if err != nil {
		return nil, err
	}

	// Port 0 asks for any free port; advertise the one we got.
	if redirect.Port() == "0" {
		redirect.Host = net.JoinHostPort(redirect.Hostname(), strconv.Itoa(listener.Addr().(*net.TCPAddr).Port))
		cfg.RedirectURL = redirect.String()
	}

	state, err := generateState()
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("graph: generating state token: %w", err)
	}

	resultCh := make(chan callbackResult, 1)

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: shutdownTimeout}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			deliver(resultCh, callbackResult{err: fmt.Errorf("graph: callback server: %w", serveErr)})
		}
	}()

	defer shutdownServer(srv, logger)

	oc := cfg.oauthConfig()
	verifier := oauth2.GenerateVerifier()

	authURL := oc.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		logger.Warn("failed to open browser, printing URL", slog.String("error", openErr.Error()))
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}

	code, err := waitForCode(ctx, resultCh, timeout)
	if err != nil {
		return nil, err
	}

	tok, err := oc.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("graph: token exchange failed: %w", err)
	}

	if err := tokenfile.Save(cfg.TokenPath, tok, cfg.meta()); err != nil {
		return nil, fmt.Errorf("graph: saving token: %w", err)
	}

	logger.Info("browser login successful",
		slog.String("path", cfg.TokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistingSource(ctx, oc, tok, cfg.TokenPath, cfg.meta(), logger), nil
}

// listenForRedirect binds the redirect URI's port on the loopback interface.
func listenForRedirect(ctx context.Context, redirect *url.URL, pemFile string) (net.Listener, error) {
	port := redirect.Port()

	switch redirect.Scheme {
	case "http":
		if port == "" {
			port = "80"
		}
	case "https":
		if port == "" {
			port = "443"
		}
	default:
		return nil, fmt.Errorf("graph: unsupported redirect URI scheme %q", redirect.Scheme)
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort("127.0.0.1", port))
	if err != nil {
		return nil, fmt.Errorf("graph: binding redirect listener: %w", err)
	}

	if redirect.Scheme == "http" {
		return listener, nil
	}

	// The PEM file holds both the certificate and its key.
	cert, err := tls.LoadX509KeyPair(pemFile, pemFile)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("graph: loading redirect TLS certificate: %w", err)
	}

	return tls.NewListener(listener, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		deliver(resultCh, callbackResult{err: errors.New("graph: OAuth2 state mismatch")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		deliver(resultCh, callbackResult{
			err: fmt.Errorf("graph: authorization failed: %s: %s", errParam, q.Get("error_description")),
		})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		deliver(resultCh, callbackResult{err: errors.New("graph: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization complete</h1>"+
		"<p>You can close this window.</p></body></html>")
	deliver(resultCh, callbackResult{code: code})
}

// deliver sends without blocking; only the first callback result counts.
func deliver(ch chan<- callbackResult, r callbackResult) {
	select {
	case ch <- r:
	default:
	}
}

func shutdownServer(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

func waitForCode(ctx context.Context, resultCh <-chan callbackResult, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-resultCh:
		return result.code, result.err
	case <-timer.C:
		return "", ErrAuthTimeout
	case <-ctx.Done():
		return "", fmt.Errorf("graph: browser authorization canceled: %w", ctx.Err())
	}
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// TokenSourceFromPath loads the cached token at cfg.TokenPath. It returns
// ErrNotLoggedIn when no token exists or the token was issued to a different
// client ID.
func TokenSourceFromPath(ctx context.Context, cfg AuthConfig, logger *slog.Logger) (TokenSource, error) {
	tok, meta, err := tokenfile.Load(cfg.TokenPath)
	if err != nil {
		return nil, fmt.Errorf("graph: loading token: %w", err)
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	if id := meta[metaClientID]; id != "" && id != cfg.ClientID {
		logger.Warn("cached token belongs to a different client",
			slog.String("path", cfg.TokenPath),
		)

		return nil, ErrNotLoggedIn
	}

	logger.Info("loaded cached token",
		slog.String("path", cfg.TokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())),
	)

	return newPersistingSource(ctx, cfg.oauthConfig(), tok, cfg.TokenPath, cfg.meta(), logger), nil
}

// Logout removes the cached token. A missing token is not an error.
func Logout(tokenPath string, logger *slog.Logger) error {
	if err := tokenfile.Remove(tokenPath); err != nil {
		return fmt.Errorf("graph: removing token: %w", err)
	}

	logger.Info("removed cached token", slog.String("path", tokenPath))

	return nil
}

// persistingSource adapts an oauth2.TokenSource to TokenSource and writes
// the token back to disk whenever the library hands out a new one.
type persistingSource struct {
	mu         sync.Mutex
	src        oauth2.TokenSource
	path       string
	meta       map[string]string
	lastAccess string
	logger     *slog.Logger
}

func newPersistingSource(
	ctx context.Context,
	oc *oauth2.Config,
	tok *oauth2.Token,
	path string,
	meta map[string]string,
	logger *slog.Logger,
) *persistingSource {
	return &persistingSource{
		src:        oc.TokenSource(ctx, tok),
		path:       path,
		meta:       meta,
		lastAccess: tok.AccessToken,
		logger:     logger,
	}
}

func (p *persistingSource) Token() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return "", fmt.Errorf("%w: refreshing token: %w", ErrUnauthorized, err)
		}

		return "", fmt.Errorf("graph: obtaining token: %w", err)
	}

	if tok.AccessToken != p.lastAccess {
		p.lastAccess = tok.AccessToken

		if saveErr := tokenfile.Save(p.path, tok, p.meta); saveErr != nil {
			p.logger.Warn("failed to persist refreshed token",
				slog.String("path", p.path),
				slog.String("error", saveErr.Error()),
			)
		} else {
			p.logger.Info("persisted refreshed token",
				slog.String("path", p.path),
				slog.Time("expiry", tok.Expiry),
			)
		}
	}

	return tok.AccessToken, nil
}
