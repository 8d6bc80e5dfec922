package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/kerliix/oauth-bff/instrumentation"
	"github.com/kerliix/oauth-bff/providers"
	"github.com/kerliix/oauth-bff/security"
	"github.com/kerliix/oauth-bff/storage"
)

// DefaultProviderTimeout bounds every outbound provider call made by the
// coordinator.
const DefaultProviderTimeout = 30 * time.Second

// Config holds coordinator configuration.
type Config struct {
	// DefaultScopes are requested when a login names no scopes.
	// Defaults to "openid profile email".
	DefaultScopes []string

	// ProviderTimeout bounds provider round trips. Defaults to
	// DefaultProviderTimeout.
	ProviderTimeout time.Duration
}

// Coordinator drives the authorization code flow with PKCE and the
// session-bound operations against an established session.
type Coordinator struct {
	provider providers.Provider
	states   storage.CorrelationStore
	sessions storage.SessionStore

	defaultScopes   []string
	providerTimeout time.Duration

	logger  *slog.Logger
	auditor *security.Auditor
	inst    *instrumentation.Instrumentation
}

// NewCoordinator creates a new flow coordinator.
func NewCoordinator(provider providers.Provider, states storage.CorrelationStore, sessions storage.SessionStore, cfg Config) (*Coordinator, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if states == nil {
		return nil, fmt.Errorf("correlation store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}

	scopes := cfg.DefaultScopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	return &Coordinator{
		provider:        provider,
		states:          states,
		sessions:        sessions,
		defaultScopes:   scopes,
		providerTimeout: timeout,
		logger:          slog.Default(),
	}, nil
}

// SetLogger sets the logger for flow operations.
func (c *Coordinator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetAuditor wires the security auditor. Nil disables auditing.
func (c *Coordinator) SetAuditor(auditor *security.Auditor) {
	c.auditor = auditor
}

// SetInstrumentation wires OpenTelemetry instrumentation.
func (c *Coordinator) SetInstrumentation(inst *instrumentation.Instrumentation) {
	c.inst = inst
}

// LoginStart is the outcome of a successful flow initiation.
type LoginStart struct {
	// AuthorizeURL is the provider authorization URL the browser must be
	// redirected to. It carries the state and the PKCE challenge.
	AuthorizeURL string

	// State is the CSRF state token embedded in the URL.
	State string

	// Scope is the space-delimited scope that was requested.
	Scope string
}

// StartLogin initiates a login: it generates a state token, obtains PKCE
// material bound to the authorization URL, and registers the correlation
// record so the eventual callback can complete the exchange.
//
// scope is an optional space-delimited scope override; empty means the
// configured defaults.
func (c *Coordinator) StartLogin(ctx context.Context, scope string) (*LoginStart, error) {
	scopes := c.defaultScopes
	if s := strings.Fields(scope); len(s) > 0 {
		scopes = s
	}

	state := oauth2.GenerateVerifier()

	req, err := c.provider.BuildAuthorizeURL(scopes, state, true)
	if err != nil {
		c.logger.Error("failed to build authorization URL", "error", err)
		return nil, ErrPKCEGeneration(err.Error())
	}
	if req.CodeVerifier == "" {
		return nil, ErrPKCEGeneration("provider returned no code verifier")
	}

	err = c.states.PutState(ctx, &storage.PKCERecord{
		State:        state,
		CodeVerifier: req.CodeVerifier,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateState) {
			c.logger.Error("state token collision", "error", err)
			return nil, ErrStateCollision()
		}
		c.logger.Error("failed to register login state", "error", err)
		return nil, ErrInternal("failed to register login state")
	}

	scopeStr := strings.Join(scopes, " ")
	c.auditor.LogLoginStarted(scopeStr)
	if c.inst != nil {
		c.inst.Metrics().RecordLoginStarted(ctx, scopeStr)
	}
	c.logger.Info("login started", "scope", scopeStr)

	return &LoginStart{
		AuthorizeURL: req.URL,
		State:        state,
		Scope:        scopeStr,
	}, nil
}

// CallbackParams are the query parameters delivered to the callback
// endpoint by the provider redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// LoginResult is the outcome of a successfully completed login.
type LoginResult struct {
	// SessionID is the opaque identifier to hand to the browser.
	SessionID string

	// Token is the token material now bound to the session.
	Token *providers.TokenMaterial
}

// CompleteLogin validates a provider callback and completes the code
// exchange. Validation order is fixed:
//
//  1. a provider error parameter fails the callback with the provider's
//     code, before any local state is consulted;
//  2. missing code or state fails as malformed;
//  3. the state is consumed atomically, so a duplicate delivery of the
//     same callback can never reach the token endpoint twice;
//  4. the code exchange runs with the stored verifier.
//
// A failed exchange does not restore the state; the login must be
// restarted from the beginning.
func (c *Coordinator) CompleteLogin(ctx context.Context, params CallbackParams) (*LoginResult, error) {
	if params.Error != "" {
		c.auditor.LogCallbackRejected("provider_error: " + params.Error)
		c.recordCallback(ctx, false)
		c.logger.Warn("provider returned error callback",
			"error", params.Error,
			"description", params.ErrorDescription)
		return nil, ErrProviderDenied(params.Error, params.ErrorDescription)
	}

	if params.Code == "" || params.State == "" {
		c.auditor.LogCallbackRejected("missing_parameters")
		c.recordCallback(ctx, false)
		return nil, ErrMalformedCallback("code and state are required")
	}

	rec, err := c.states.TakeState(ctx, params.State)
	if err != nil {
		if errors.Is(err, storage.ErrStateNotFound) {
			c.auditor.LogCallbackRejected("unknown_state")
			c.recordCallback(ctx, false)
			c.logger.Warn("callback with unknown or expired state")
			return nil, ErrUnknownOrExpiredState()
		}
		c.recordCallback(ctx, false)
		c.logger.Error("failed to consume login state", "error", err)
		return nil, ErrInternal("failed to consume login state")
	}

	token, err := c.exchangeCode(ctx, params.Code, rec.CodeVerifier)
	if err != nil {
		c.recordCallback(ctx, false)
		return nil, err
	}

	sessionID, err := c.sessions.CreateSession(ctx, token)
	if err != nil {
		c.recordCallback(ctx, false)
		c.logger.Error("failed to create session", "error", err)
		return nil, ErrInternal("failed to create session")
	}

	c.auditor.LogSessionCreated(sessionID, token.Scope)
	c.recordCallback(ctx, true)
	if c.inst != nil {
		c.inst.Metrics().RecordSessionCreated(ctx)
	}
	c.logger.Info("login completed", "scope", token.Scope)

	return &LoginResult{SessionID: sessionID, Token: token}, nil
}

// exchangeCode runs the code exchange under the provider timeout and maps
// failures onto the flow error taxonomy.
func (c *Coordinator) exchangeCode(ctx context.Context, code, codeVerifier string) (*providers.TokenMaterial, error) {
	ctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	start := time.Now()
	token, err := c.provider.ExchangeCode(ctx, code, codeVerifier)
	c.recordProviderCall(ctx, "exchange_code", start, err)

	if err != nil {
		if perr, ok := providers.AsError(err); ok {
			c.auditor.LogCallbackRejected("exchange_rejected: " + perr.Code)
			c.logger.Warn("token exchange rejected",
				"provider_error", perr.Code,
				"description", perr.Description)
			return nil, ErrTokenExchangeRejected(perr.Code, perr.Description)
		}
		c.logger.Error("token exchange failed", "error", err)
		return nil, ErrTokenExchangeUnavailable("token exchange failed")
	}

	if token == nil || token.AccessToken == "" {
		c.logger.Error("token exchange returned no access token")
		return nil, ErrTokenExchangeUnavailable("provider returned no access token")
	}

	return token, nil
}

// UserInfo fetches the user profile for a session's access token. The
// session is never touched: a rejected token surfaces as an error, and the
// caller may retry or refresh.
func (c *Coordinator) UserInfo(ctx context.Context, sessionID string) (*providers.UserInfo, error) {
	sess, err := c.requireSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	start := time.Now()
	info, err := c.provider.FetchUserInfo(pctx, sess.Token.AccessToken)
	c.recordProviderCall(ctx, "fetch_userinfo", start, err)

	if err != nil {
		if providers.IsAuthError(err) {
			perr, _ := providers.AsError(err)
			c.logger.Warn("userinfo token rejected", "provider_error", perr.Code)
			return nil, ErrTokenInvalid(perr.Code, perr.Description)
		}
		c.logger.Error("userinfo fetch failed", "error", err)
		return nil, ErrProviderUnavailable("userinfo fetch failed")
	}

	return info, nil
}

// RevocationResult reports the outcome of a logout.
type RevocationResult struct {
	// Revoked reports whether the provider-side revocation succeeded. The
	// local session is destroyed regardless.
	Revoked bool

	// ErrorCode and Message describe the provider failure when Revoked is
	// false.
	ErrorCode string
	Message   string
}

// Revoke performs a logout: it attempts to revoke the access token at the
// provider, then unconditionally destroys the local session. Provider
// failure is reported in the result, never as an error; the local logout
// always wins.
func (c *Coordinator) Revoke(ctx context.Context, sessionID string) (*RevocationResult, error) {
	sess, err := c.requireSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	start := time.Now()
	revokeErr := c.provider.RevokeToken(pctx, sess.Token.AccessToken)
	c.recordProviderCall(ctx, "revoke_token", start, revokeErr)

	// The session goes away regardless of the provider outcome.
	if err := c.sessions.DeleteSession(ctx, sessionID); err != nil {
		c.logger.Error("failed to delete session after revocation", "error", err)
	}

	result := &RevocationResult{Revoked: revokeErr == nil}
	if revokeErr != nil {
		if perr, ok := providers.AsError(revokeErr); ok {
			result.ErrorCode = perr.Code
			result.Message = perr.Description
		} else {
			result.ErrorCode = "revocation_failed"
			result.Message = revokeErr.Error()
		}
		c.logger.Warn("provider-side revocation failed", "error", revokeErr)
	}

	c.auditor.LogSessionRevoked(sessionID, result.Revoked)
	if c.inst != nil {
		c.inst.Metrics().RecordSessionRevoked(ctx, result.Revoked)
	}
	c.logger.Info("session revoked", "remote_revoked", result.Revoked)

	return result, nil
}

// Introspect returns the session's token material. Intended for trusted
// internal surfaces only.
func (c *Coordinator) Introspect(ctx context.Context, sessionID string) (*storage.Session, error) {
	return c.requireSession(ctx, sessionID)
}

// Refresh exchanges the session's refresh token for fresh token material
// and swaps it into the session in place. The session identifier is stable
// across refreshes.
func (c *Coordinator) Refresh(ctx context.Context, sessionID string) (*storage.Session, error) {
	sess, err := c.requireSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.Token.HasRefreshToken() {
		return nil, ErrNoRefreshToken()
	}

	refresher, ok := c.provider.(providers.TokenRefresher)
	if !ok {
		return nil, ErrRefreshNotSupported("provider does not support token refresh")
	}
	store, ok := c.sessions.(storage.SessionRefresher)
	if !ok {
		return nil, ErrRefreshNotSupported("session store does not support token refresh")
	}

	pctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()

	start := time.Now()
	token, err := refresher.RefreshToken(pctx, sess.Token.RefreshToken)
	c.recordProviderCall(ctx, "refresh_token", start, err)

	if err != nil {
		if perr, ok := providers.AsError(err); ok {
			c.logger.Warn("token refresh rejected", "provider_error", perr.Code)
			return nil, ErrTokenInvalid(perr.Code, perr.Description)
		}
		c.logger.Error("token refresh failed", "error", err)
		return nil, ErrProviderUnavailable("token refresh failed")
	}

	updated, err := store.ReplaceSessionToken(ctx, sessionID, token)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNoSession()
		}
		c.logger.Error("failed to store refreshed token", "error", err)
		return nil, ErrInternal("failed to store refreshed token")
	}

	if c.inst != nil {
		c.inst.Metrics().RecordTokenRefresh(ctx)
	}
	c.logger.Info("session token refreshed")

	return updated, nil
}

// ProviderName returns the configured provider's name.
func (c *Coordinator) ProviderName() string {
	return c.provider.Name()
}

// HealthCheck verifies the provider is reachable.
func (c *Coordinator) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	defer cancel()
	return c.provider.HealthCheck(ctx)
}

// requireSession resolves a session identifier or fails with ErrNoSession.
// A missing identifier, an unknown one, and an expired session all produce
// the same error.
func (c *Coordinator) requireSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	if sessionID == "" {
		return nil, ErrNoSession()
	}

	sess, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNoSession()
		}
		c.logger.Error("failed to load session", "error", err)
		return nil, ErrInternal("failed to load session")
	}

	return sess, nil
}

// recordCallback records the callback-processed metric.
func (c *Coordinator) recordCallback(ctx context.Context, success bool) {
	if c.inst != nil {
		c.inst.Metrics().RecordCallbackProcessed(ctx, success)
	}
}

// recordProviderCall records provider call metrics.
func (c *Coordinator) recordProviderCall(ctx context.Context, operation string, start time.Time, err error) {
	if c.inst != nil {
		c.inst.Metrics().RecordProviderAPICall(ctx, c.provider.Name(), operation,
			float64(time.Since(start).Milliseconds()), err)
	}
}
