// Package auth provides the catalog credential provider: an OAuth2
// authorization-code flow with PKCE, token persistence, and an
// authenticated *http.Client that refreshes and re-saves tokens.
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Catalog authorization endpoints.
const (
	DefaultAuthURL  = "https://accounts.spotify.com/authorize"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
)

// DefaultScopes are requested at login. Only user-follow-read is needed to
// list followed creators; the playlist scopes keep tokens usable by tools
// that share the token file.
var DefaultScopes = []string{
	"user-follow-read",
	"playlist-read-private",
	"playlist-modify-private",
	"playlist-modify-public",
}

var (
	// ErrNoToken is returned by a TokenStore that holds no token.
	ErrNoToken = errors.New("no stored token")

	// ErrStateMismatch is returned when the redirect carries a foreign state.
	ErrStateMismatch = errors.New("authorization state mismatch")

	// ErrMissingCode is returned when the redirect carries no authorization code.
	ErrMissingCode = errors.New("authorization code missing")
)

// AuthError is a failure to obtain or refresh credentials. It is fatal to a run.
type AuthError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err contains an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// TokenStore persists OAuth2 tokens between runs.
type TokenStore interface {
	// Load returns the stored token, or ErrNoToken.
	Load(ctx context.Context) (*oauth2.Token, error)

	// Save replaces the stored token.
	Save(ctx context.Context, token *oauth2.Token) error
}

// Config holds the provider configuration.
type Config struct {
	ClientID     string
	ClientSecret string // optional for PKCE
	RedirectURI  string
	Scopes       []string

	// AuthURL and TokenURL default to the public catalog endpoints
	AuthURL  string
	TokenURL string

	// Store persists tokens (required)
	Store TokenStore

	// Interactive allows prompting for a login when no usable token is stored
	Interactive bool

	// In and Out are used by the login prompt (default os.Stdin and os.Stderr)
	In  io.Reader
	Out io.Writer
}

// Provider hands out authenticated HTTP clients.
type Provider struct {
	oauth       *oauth2.Config
	store       TokenStore
	interactive bool
	in          *bufio.Reader
	out         io.Writer
	newState    func() string
	logger      zerolog.Logger
}

// NewProvider validates cfg and creates a provider.
func NewProvider(cfg Config) (*Provider, error) {
	switch {
	case cfg.ClientID == "":
		return nil, &AuthError{Op: "configure", Err: errors.New("client id is required")}
	case cfg.RedirectURI == "":
		return nil, &AuthError{Op: "configure", Err: errors.New("redirect uri is required")}
	case cfg.Store == nil:
		return nil, &AuthError{Op: "configure", Err: errors.New("token store is required")}
	}

	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}

	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:       cfg.Store,
		interactive: cfg.Interactive,
		in:          bufio.NewReader(cfg.In),
		out:         cfg.Out,
		newState:    uuid.NewString,
		logger:      log.With().Str("component", "auth").Logger(),
	}, nil
}

// Client returns an HTTP client that authorizes every request. Refreshed
// tokens are written back to the store.
//
// ctx carries the HTTP client used for token requests (oauth2.HTTPClient).
func (p *Provider) Client(ctx context.Context) (*http.Client, error) {
	tok, err := p.Token(ctx)
	if err != nil {
		return nil, err
	}

	ts := &persistingTokenSource{
		base:   p.oauth.TokenSource(ctx, tok),
		store:  p.store,
		last:   tok.AccessToken,
		logger: p.logger,
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Token returns a usable token: the stored one when it is valid or
// refreshable, otherwise a new one from an interactive login.
func (p *Provider) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.store.Load(ctx)
	switch {
	case err == nil && (tok.Valid() || tok.RefreshToken != ""):
		return tok, nil
	case err != nil && !errors.Is(err, ErrNoToken):
		return nil, &AuthError{Op: "load token", Err: err}
	}

	if !p.interactive {
		return nil, &AuthError{Op: "load token", Err: fmt.Errorf("%w; run the login command first", ErrNoToken)}
	}
	return p.Login(ctx)
}

// Login runs the interactive PKCE authorization-code flow and saves the token.
func (p *Provider) Login(ctx context.Context) (*oauth2.Token, error) {
	verifier := oauth2.GenerateVerifier()
	state := p.newState()
	authURL := p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	fmt.Fprintf(p.out, "Open this URL in your browser and authorize access:\n\n  %s\n\nPaste the URL you were redirected to: ", authURL)

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, &AuthError{Op: "read redirect", Err: err}
	}

	code, err := parseRedirect(line, state)
	if err != nil {
		return nil, &AuthError{Op: "authorize", Err: err}
	}

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &AuthError{Op: "exchange code", Err: err}
	}

	if err := p.store.Save(ctx, tok); err != nil {
		return nil, &AuthError{Op: "save token", Err: err}
	}
	p.logger.Info().Time("expiry", tok.Expiry).Msg("Token saved")

	return tok, nil
}

// parseRedirect extracts the authorization code from a pasted redirect URL
// or a bare code. A URL must carry the expected state.
func parseRedirect(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrMissingCode
	}

	if !strings.Contains(input, "?") && !strings.Contains(input, "://") {
		return input, nil
	}

	raw := input
	if i := strings.Index(input, "?"); i >= 0 {
		raw = input[i+1:]
	}
	query, err := url.ParseQuery(raw)
	if err != nil {
		return "", fmt.Errorf("parse redirect: %w", err)
	}

	if reason := query.Get("error"); reason != "" {
		return "", fmt.Errorf("authorization denied: %s", reason)
	}
	if query.Get("state") != state {
		return "", ErrStateMismatch
	}
	code := query.Get("code")
	if code == "" {
		return "", ErrMissingCode
	}
	return code, nil
}

// persistingTokenSource saves every token its base source hands out for the first time.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  TokenStore
	logger zerolog.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, &AuthError{Op: "refresh token", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(context.Background(), tok); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to persist refreshed token")
		} else {
			s.logger.Debug().Time("expiry", tok.Expiry).Msg("Refreshed token saved")
		}
	}
	return tok, nil
}
