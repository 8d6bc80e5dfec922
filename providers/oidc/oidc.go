package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/kerliix/oauth-bff/providers"
)

const (
	// defaultHTTPTimeout bounds every provider call when the caller did not
	// supply a client with its own timeout.
	defaultHTTPTimeout = 30 * time.Second

	// maxErrorBodySize caps how much of a provider error response is read.
	maxErrorBodySize = 64 * 1024
)

// Config holds OIDC provider configuration.
type Config struct {
	// Issuer is the provider's issuer URL; the discovery document is
	// fetched from <issuer>/.well-known/openid-configuration.
	Issuer string

	// ClientID is the OAuth client ID (required).
	ClientID string

	// ClientSecret is the OAuth client secret. Optional: PKCE-only public
	// clients leave it empty.
	ClientSecret string

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string

	// Scopes are the default scopes requested when a login does not ask
	// for specific ones. Defaults to "openid profile email".
	Scopes []string

	// RevocationURL overrides the discovered revocation endpoint. Needed
	// for providers that support RFC 7009 but do not advertise it.
	RevocationURL string

	// HTTPClient is an optional custom HTTP client.
	HTTPClient *http.Client
}

// discoveredEndpoints captures the non-standard discovery claims go-oidc
// does not surface through its typed API.
type discoveredEndpoints struct {
	UserInfoEndpoint   string `json:"userinfo_endpoint"`
	RevocationEndpoint string `json:"revocation_endpoint"`
}

// Provider implements providers.Provider for OpenID Connect providers.
type Provider struct {
	config        *oauth2.Config
	oidcProvider  *gooidc.Provider
	verifier      *gooidc.IDTokenVerifier
	issuer        string
	clientSecret  string
	userInfoURL   string
	revocationURL string
	httpClient    *http.Client
}

// Interface checks.
var (
	_ providers.Provider       = (*Provider)(nil)
	_ providers.TokenRefresher = (*Provider)(nil)
)

// NewProvider creates an OIDC provider by running issuer discovery.
func NewProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed for %s: %w", cfg.Issuer, err)
	}

	var endpoints discoveredEndpoints
	if err := op.Claims(&endpoints); err != nil {
		return nil, fmt.Errorf("failed to read discovery claims: %w", err)
	}

	revocationURL := cfg.RevocationURL
	if revocationURL == "" {
		revocationURL = endpoints.RevocationEndpoint
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		oidcProvider:  op,
		verifier:      op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		issuer:        cfg.Issuer,
		clientSecret:  cfg.ClientSecret,
		userInfoURL:   endpoints.UserInfoEndpoint,
		revocationURL: revocationURL,
		httpClient:    httpClient,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "oidc"
}

// BuildAuthorizeURL constructs the authorization URL for a login attempt.
// When usePKCE is true, a fresh S256 code verifier/challenge pair is bound
// to the URL and the verifier is returned for later exchange.
func (p *Provider) BuildAuthorizeURL(scopes []string, state string, usePKCE bool) (*providers.AuthorizeRequest, error) {
	conf := *p.config
	if len(scopes) > 0 {
		conf.Scopes = scopes
	}

	req := &providers.AuthorizeRequest{}

	var opts []oauth2.AuthCodeOption
	if usePKCE {
		verifier := oauth2.GenerateVerifier()
		req.CodeVerifier = verifier
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}

	req.URL = conf.AuthCodeURL(state, opts...)
	return req, nil
}

// ExchangeCode exchanges an authorization code for token material. If the
// provider returned an ID token it is verified before the token material is
// accepted.
func (p *Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*providers.TokenMaterial, error) {
	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, translateOAuth2Error(err)
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		if _, err := p.verifier.Verify(ctx, rawIDToken); err != nil {
			return nil, fmt.Errorf("id token verification failed: %w", err)
		}
	}

	return providers.TokenMaterialFromOAuth2(token), nil
}

// RefreshToken exchanges a refresh token for fresh token material.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*providers.TokenMaterial, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	src := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, translateOAuth2Error(err)
	}

	material := providers.TokenMaterialFromOAuth2(token)
	if material.RefreshToken == "" {
		// Providers that do not rotate keep the old refresh token valid.
		material.RefreshToken = refreshToken
	}
	return material, nil
}

// FetchUserInfo retrieves the user profile from the discovered userinfo
// endpoint.
func (p *Provider) FetchUserInfo(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	if p.userInfoURL == "" {
		return nil, fmt.Errorf("provider %s does not advertise a userinfo endpoint", p.issuer)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return userInfoFromClaims(claims), nil
}

// RevokeToken revokes an access token at the provider (RFC 7009).
func (p *Provider) RevokeToken(ctx context.Context, accessToken string) error {
	if p.revocationURL == "" {
		return fmt.Errorf("provider %s does not advertise a revocation endpoint", p.issuer)
	}

	form := url.Values{}
	form.Set("token", accessToken)
	form.Set("token_type_hint", "access_token")
	if p.clientSecret == "" {
		// Public clients identify themselves in the form body.
		form.Set("client_id", p.config.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.clientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.clientSecret))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// RFC 7009 §2.2: 200 regardless of whether the token was valid.
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	return errorFromResponse(resp)
}

// HealthCheck fetches the discovery document to verify the provider is
// reachable.
func (p *Provider) HealthCheck(ctx context.Context) error {
	wellKnown := strings.TrimSuffix(p.issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider discovery returned status %d", resp.StatusCode)
	}

	return nil
}

// translateOAuth2Error converts structured token endpoint rejections into
// *providers.Error. Transport failures and responses without an OAuth error
// code pass through unchanged so callers treat them as provider
// unavailability.
func translateOAuth2Error(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode != "" {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &providers.Error{
			Code:        re.ErrorCode,
			Description: re.ErrorDescription,
			StatusCode:  status,
		}
	}
	return err
}

// errorFromResponse builds a typed error from a non-200 provider response.
// OAuth error bodies keep their code and description; anything else becomes
// a generic typed error for 4xx and a plain error for 5xx.
func errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	var oauthErr struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Error != "" {
		return &providers.Error{
			Code:        oauthErr.Error,
			Description: oauthErr.ErrorDescription,
			StatusCode:  resp.StatusCode,
		}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &providers.Error{
			Code:       "invalid_token",
			StatusCode: resp.StatusCode,
		}
	}

	return fmt.Errorf("provider returned status %d", resp.StatusCode)
}

// userInfoFromClaims maps a raw userinfo claim set onto the typed profile,
// keeping the full claim set for verbatim serving.
func userInfoFromClaims(claims map[string]any) *providers.UserInfo {
	info := &providers.UserInfo{Claims: claims}

	if v, ok := claims["sub"].(string); ok {
		info.Subject = v
	}
	if v, ok := claims["email"].(string); ok {
		info.Email = v
	}
	if v, ok := claims["email_verified"].(bool); ok {
		info.EmailVerified = v
	}
	if v, ok := claims["name"].(string); ok {
		info.Name = v
	}
	if v, ok := claims["picture"].(string); ok {
		info.Picture = v
	}

	return info
}
