package oauth

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/kerliix/oauth-bff/flow"
	"github.com/kerliix/oauth-bff/instrumentation"
	"github.com/kerliix/oauth-bff/security"
)

// Handler serves the login gateway HTTP endpoints.
type Handler struct {
	coordinator *flow.Coordinator
	config      Config
	logger      *slog.Logger
	rateLimiter *security.RateLimiter
	inst        *instrumentation.Instrumentation
}

// NewHandler creates the HTTP handler for a flow coordinator.
func NewHandler(coordinator *flow.Coordinator, config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	h := &Handler{
		coordinator: coordinator,
		config:      config,
		logger:      config.Logger,
	}

	if config.RateLimitPerSecond > 0 {
		h.rateLimiter = security.NewRateLimiter(config.RateLimitPerSecond, config.RateLimitBurst, h.logger)
	}
	if config.AuditLogging {
		coordinator.SetAuditor(security.NewAuditor(h.logger, true))
	}

	return h, nil
}

// SetInstrumentation wires OpenTelemetry instrumentation into the HTTP
// layer and the coordinator.
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	h.inst = inst
	h.coordinator.SetInstrumentation(inst)
}

// Close releases handler resources (the rate limiter's background
// goroutine).
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// Routes registers all gateway endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /login", h.wrap("/login", h.handleLogin))
	mux.HandleFunc("GET /callback", h.wrap("/callback", h.handleCallback))
	mux.HandleFunc("GET /me", h.wrap("/me", h.handleUserInfo))
	mux.HandleFunc("POST /revoke", h.wrap("/revoke", h.handleRevoke))
	mux.HandleFunc("GET /tokens", h.wrap("/tokens", h.handleIntrospection))
	mux.HandleFunc("POST /refresh", h.wrap("/refresh", h.handleRefresh))
	mux.HandleFunc("GET /healthz", h.wrap("/healthz", h.handleHealth))
	mux.HandleFunc("GET /{$}", h.wrap("/", h.handleRoot))
}

// handleLogin initiates a login flow and redirects the browser to the
// provider's authorization endpoint.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	start, err := h.coordinator.StartLogin(r.Context(), r.URL.Query().Get("scopes"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, start.AuthorizeURL, http.StatusFound)
}

// handleCallback completes a login: it validates the provider redirect,
// exchanges the code, binds the resulting session to a cookie and sends the
// browser onward.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.coordinator.CompleteLogin(r.Context(), flow.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.SessionID)
	http.Redirect(w, r, h.config.PostLoginRedirectURL, http.StatusFound)
}

// handleUserInfo serves the provider's userinfo claims for the session
// bound to the request cookie.
func (h *Handler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.coordinator.UserInfo(r.Context(), h.sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Serve the provider's claims verbatim when available; the typed
	// fields are a subset.
	if len(info.Claims) > 0 {
		h.writeJSON(w, http.StatusOK, info.Claims)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"sub":            info.Subject,
		"email":          info.Email,
		"email_verified": info.EmailVerified,
		"name":           info.Name,
	})
}

// handleRevoke performs a logout. The session cookie is cleared and the
// local session destroyed regardless of whether the provider-side
// revocation succeeded; the response body reports the provider outcome.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	result, err := h.coordinator.Revoke(r.Context(), h.sessionID(r))

	// The cookie goes away even when the session was already gone.
	h.clearSessionCookie(w)

	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RevocationResponse{
		Revoked: result.Revoked,
		Error:   result.ErrorCode,
		Message: result.Message,
	})
}

// handleIntrospection serves the session's raw token material. Hidden
// entirely unless introspection is enabled.
func (h *Handler) handleIntrospection(w http.ResponseWriter, r *http.Request) {
	if !h.config.EnableIntrospection {
		http.NotFound(w, r)
		return
	}

	sess, err := h.coordinator.Introspect(r.Context(), h.sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newTokenResponse(sess.Token))
}

// handleRefresh rotates the session's token material via the refresh grant.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	sess, err := h.coordinator.Refresh(r.Context(), h.sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := newTokenResponse(sess.Token)
	if !h.config.EnableIntrospection {
		// Without introspection enabled, token values stay server-side.
		resp.AccessToken = ""
		resp.RefreshToken = ""
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports gateway and provider health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.HealthCheck(r.Context()); err != nil {
		h.logger.Warn("provider health check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:   "degraded",
			Provider: h.coordinator.ProviderName(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Provider: h.coordinator.ProviderName(),
	})
}

// handleRoot serves a small service banner.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"service": "oauth-bff",
		"endpoints": []string{
			"/login", "/callback", "/me", "/revoke", "/refresh", "/healthz",
		},
	})
}

// wrap applies the common middleware: request IDs, security headers, rate
// limiting and HTTP metrics.
func (h *Handler) wrap(endpoint string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := security.RequestIDFromRequest(r)
		r = r.WithContext(security.WithRequestID(r.Context(), requestID))
		w.Header().Set(security.RequestIDHeader, requestID)

		security.SetSecurityHeaders(w, h.config.BaseURL)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if h.rateLimiter != nil && !h.rateLimiter.Allow(clientIP(r)) {
			if h.inst != nil {
				h.inst.Metrics().RecordRateLimitExceeded(r.Context(), endpoint)
			}
			h.logger.Warn("rate limit exceeded", "endpoint", endpoint, "request_id", requestID)
			h.writeJSON(rec, http.StatusTooManyRequests, ErrorResponse{
				Error:            "rate_limit_exceeded",
				ErrorDescription: "too many requests",
			})
		} else {
			fn(rec, r)
		}

		if h.inst != nil {
			h.inst.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint, rec.status,
				float64(time.Since(start).Milliseconds()))
		}
	}
}

// sessionID extracts the session identifier from the request cookie.
func (h *Handler) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// setSessionCookie binds a session identifier to the browser. The cookie is
// HttpOnly and SameSite=Lax: Lax still sends it on the top-level redirect
// back from the provider while blocking cross-site subresource requests.
func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     h.config.CookiePath,
		HttpOnly: true,
		Secure:   h.config.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie.
func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     h.config.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

// writeJSON writes a JSON response with the given status.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError maps a flow error onto its HTTP response. Unknown error types
// become an opaque 500 so internal details never leak.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ferr, ok := flow.AsError(err); ok {
		h.writeJSON(w, ferr.Status, ErrorResponse{
			Error:            ferr.Code,
			ErrorDescription: ferr.Description,
		})
		return
	}

	h.logger.Error("unhandled error",
		"error", err,
		"request_id", security.GetRequestID(r.Context()))
	h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: "internal_error",
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// clientIP extracts the client address for rate limiting, without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
