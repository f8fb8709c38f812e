package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"

	"github.com/puppyone-ai/puppyone-sub007/internal/config"
	"github.com/puppyone-ai/puppyone-sub007/internal/storage"
)

// DevUserID is the principal used when DEV bypass is enabled.
const DevUserID = "dev-user"

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	// Token is the raw bearer token, forwarded to storage in cloud deployments.
	Token string `json:"-"`
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller set by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// Auth verifies OpenID Connect tokens issued by an Okta tenant.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	logger       Logger
	authBypass   bool
}

// New creates a new Auth object using values from the application
// configuration. Outside DEV bypass it contacts the provider to discover its
// endpoints and keys.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	shouldBypass := cfg.IsDev() && cfg.DevModeBypass
	if shouldBypass {
		return &Auth{logger: logger, authBypass: true}, nil
	}

	if cfg.Auth.OktaDomain == "" || cfg.Auth.ClientID == "" ||
		cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
		return nil, errors.New("auth configuration is incomplete")
	}

	provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
	if err != nil {
		return nil, err
	}

	return &Auth{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       LoginScopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID}),
		// Access tokens carry an API audience, not the client id.
		apiVerifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
		logger:      logger,
	}, nil
}

// LoginHandler redirects to the provider's authorization endpoint. The
// state value is kept in a cookie and checked by CallbackHandler.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Error(w, "login is disabled in DEV bypass mode", http.StatusNotFound)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler exchanges the authorization code and returns the access
// token as JSON, for CLI and MCP clients that call the API with a bearer token.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass {
		http.Error(w, "login is disabled in DEV bypass mode", http.StatusNotFound)
		return
	}

	cookie, err := r.Cookie("oauthstate")
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		a.logger.Error("token exchange failed", "error", err)
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}
	if raw, ok := token.Extra("id_token").(string); ok {
		if _, err := a.verifier.Verify(r.Context(), raw); err != nil {
			http.Error(w, "failed to verify id token", http.StatusUnauthorized)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": token.AccessToken,
		"token_type":   "Bearer",
		"expiry":       token.Expiry,
	})
}

// RequireAuth is middleware that verifies the bearer token and stores the
// Principal in the request context. The raw token is also attached for the
// storage client.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.authenticate(r)
		if err != nil {
			a.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="templates"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		if principal.Token != "" {
			ctx = storage.WithAccessToken(ctx, principal.Token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) authenticate(r *http.Request) (*Principal, error) {
	if a.authBypass {
		return &Principal{UserID: DevUserID, Email: "dev@localhost"}, nil
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.New("missing bearer token")
	}
	rawToken := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := a.apiVerifier.Verify(r.Context(), rawToken)
	if err != nil {
		return nil, errors.New("invalid token: " + err.Error())
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, errors.New("failed to parse token claims")
	}
	if token.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &Principal{UserID: token.Subject, Email: claims.Email, Token: rawToken}, nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
