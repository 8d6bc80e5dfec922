// Package mock provides a mock implementation of the Provider interface
// for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/kerliix/oauth-bff/providers"
)

// MockProvider is a mock implementation of the Provider interface. Each
// method delegates to its corresponding function field, so tests override
// only what they need.
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// BuildAuthorizeURLFunc is called when BuildAuthorizeURL() is invoked
	BuildAuthorizeURLFunc func(scopes []string, state string, usePKCE bool) (*providers.AuthorizeRequest, error)

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code, codeVerifier string) (*providers.TokenMaterial, error)

	// FetchUserInfoFunc is called when FetchUserInfo() is invoked
	FetchUserInfoFunc func(ctx context.Context, accessToken string) (*providers.UserInfo, error)

	// RevokeTokenFunc is called when RevokeToken() is invoked
	RevokeTokenFunc func(ctx context.Context, accessToken string) error

	// RefreshTokenFunc is called when RefreshToken() is invoked
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*providers.TokenMaterial, error)

	// HealthCheckFunc is called when HealthCheck() is invoked
	HealthCheckFunc func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// Interface checks. MockProvider also implements the optional refresh
// extension.
var (
	_ providers.Provider       = (*MockProvider)(nil)
	_ providers.TokenRefresher = (*MockProvider)(nil)
)

// NewMockProvider creates a new mock provider with default implementations
// that simulate a well-behaved identity provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "mock"
		},
		BuildAuthorizeURLFunc: func(scopes []string, state string, usePKCE bool) (*providers.AuthorizeRequest, error) {
			req := &providers.AuthorizeRequest{
				URL: fmt.Sprintf("https://mock.example.com/authorize?state=%s", state),
			}
			if usePKCE {
				req.CodeVerifier = oauth2.GenerateVerifier()
			}
			return req, nil
		},
		ExchangeCodeFunc: func(ctx context.Context, code, codeVerifier string) (*providers.TokenMaterial, error) {
			return &providers.TokenMaterial{
				AccessToken:  "mock-access-token",
				RefreshToken: "mock-refresh-token",
				TokenType:    "Bearer",
				Scope:        "openid profile email",
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
		FetchUserInfoFunc: func(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
			return &providers.UserInfo{
				Subject:       "mock-user-123",
				Email:         "mock@example.com",
				EmailVerified: true,
				Name:          "Mock User",
				Claims: map[string]any{
					"sub":   "mock-user-123",
					"email": "mock@example.com",
					"name":  "Mock User",
				},
			}, nil
		},
		RevokeTokenFunc: func(ctx context.Context, accessToken string) error {
			return nil
		},
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*providers.TokenMaterial, error) {
			return &providers.TokenMaterial{
				AccessToken:  "new-mock-access-token",
				RefreshToken: "new-mock-refresh-token",
				TokenType:    "Bearer",
				ExpiresAt:    time.Now().Add(time.Hour),
			}, nil
		},
		HealthCheckFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	// Lock only to update the counter and read the function reference;
	// release before calling the user function so overrides may call other
	// mock methods without deadlocking.
	m.mu.Lock()
	m.CallCounts["Name"]++
	fn := m.NameFunc
	m.mu.Unlock()

	if fn == nil {
		return "mock"
	}
	return fn()
}

// BuildAuthorizeURL constructs the authorization URL for a login attempt.
func (m *MockProvider) BuildAuthorizeURL(scopes []string, state string, usePKCE bool) (*providers.AuthorizeRequest, error) {
	m.mu.Lock()
	m.CallCounts["BuildAuthorizeURL"]++
	fn := m.BuildAuthorizeURLFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("BuildAuthorizeURLFunc not configured")
	}
	return fn(scopes, state, usePKCE)
}

// ExchangeCode exchanges an authorization code for token material.
func (m *MockProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*providers.TokenMaterial, error) {
	m.mu.Lock()
	m.CallCounts["ExchangeCode"]++
	fn := m.ExchangeCodeFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("ExchangeCodeFunc not configured")
	}
	return fn(ctx, code, codeVerifier)
}

// FetchUserInfo retrieves the user profile for an access token.
func (m *MockProvider) FetchUserInfo(ctx context.Context, accessToken string) (*providers.UserInfo, error) {
	m.mu.Lock()
	m.CallCounts["FetchUserInfo"]++
	fn := m.FetchUserInfoFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("FetchUserInfoFunc not configured")
	}
	return fn(ctx, accessToken)
}

// RevokeToken revokes an access token at the provider.
func (m *MockProvider) RevokeToken(ctx context.Context, accessToken string) error {
	m.mu.Lock()
	m.CallCounts["RevokeToken"]++
	fn := m.RevokeTokenFunc
	m.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("RevokeTokenFunc not configured")
	}
	return fn(ctx, accessToken)
}

// RefreshToken exchanges a refresh token for fresh token material.
func (m *MockProvider) RefreshToken(ctx context.Context, refreshToken string) (*providers.TokenMaterial, error) {
	m.mu.Lock()
	m.CallCounts["RefreshToken"]++
	fn := m.RefreshTokenFunc
	m.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("RefreshTokenFunc not configured")
	}
	return fn(ctx, refreshToken)
}

// HealthCheck verifies that the provider is reachable.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.CallCounts["HealthCheck"]++
	fn := m.HealthCheckFunc
	m.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// ResetCallCounts resets all call counters.
func (m *MockProvider) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called.
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
