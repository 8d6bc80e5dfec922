package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/kerliix/oauth-bff/instrumentation"
	"github.com/kerliix/oauth-bff/internal/util"
	"github.com/kerliix/oauth-bff/providers"
	"github.com/kerliix/oauth-bff/security"
	"github.com/kerliix/oauth-bff/storage"
)

const (
	// DefaultStateTTL bounds how long a login may sit between the redirect
	// to the provider and the callback.
	DefaultStateTTL = 10 * time.Minute

	// DefaultSessionTTL is the local session lifetime, independent of the
	// access token expiry inside it.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultCleanupInterval is how often expired entries are swept.
	DefaultCleanupInterval = 1 * time.Minute

	// maxSessionIDAttempts bounds regeneration on identifier collision.
	// With 256-bit random identifiers a collision is effectively
	// impossible; the bound exists so a broken RNG cannot loop forever.
	maxSessionIDAttempts = 5
)

// Store is an in-memory implementation of storage.CorrelationStore and
// storage.SessionStore.
type Store struct {
	mu       sync.RWMutex
	states   map[string]*storage.PKCERecord
	sessions map[string]*storage.Session

	stateTTL        time.Duration
	sessionTTL      time.Duration
	cleanupInterval time.Duration

	// Sizes tracked with atomics so metric callbacks never take the lock.
	statesCount   atomic.Int64
	sessionsCount atomic.Int64

	logger    *slog.Logger
	encryptor *security.Encryptor
	inst      *instrumentation.Instrumentation

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Interface checks.
var (
	_ storage.CorrelationStore = (*Store)(nil)
	_ storage.SessionStore     = (*Store)(nil)
	_ storage.SessionRefresher = (*Store)(nil)
)

// New creates a new in-memory store with default TTLs and starts the
// background cleanup goroutine. Call Stop when the store is no longer
// needed.
func New() *Store {
	return NewWithTTLs(DefaultStateTTL, DefaultSessionTTL, DefaultCleanupInterval)
}

// NewWithTTLs creates a new in-memory store with custom TTLs.
// Non-positive values fall back to the defaults.
func NewWithTTLs(stateTTL, sessionTTL, cleanupInterval time.Duration) *Store {
	if stateTTL <= 0 {
		stateTTL = DefaultStateTTL
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}

	s := &Store{
		states:          make(map[string]*storage.PKCERecord),
		sessions:        make(map[string]*storage.Session),
		stateTTL:        stateTTL,
		sessionTTL:      sessionTTL,
		cleanupInterval: cleanupInterval,
		logger:          slog.Default(),
		stopCleanup:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets the logger for store operations.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetEncryptor enables encryption at rest for session token material.
// Must be called before the store receives traffic.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.encryptor = enc
}

// SetInstrumentation wires OpenTelemetry instrumentation and registers the
// store size gauges.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.inst = inst
	if inst == nil {
		return
	}
	err := inst.RegisterStorageSizeCallbacks(
		s.statesCount.Load,
		s.sessionsCount.Load,
	)
	if err != nil {
		s.logger.Warn("failed to register storage size gauges", "error", err)
	}
}

// Stop terminates the background cleanup goroutine. Safe to call more than
// once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// PutState registers a new correlation record.
func (s *Store) PutState(ctx context.Context, rec *storage.PKCERecord) error {
	ctx, span, start := s.startSpan(ctx, "put_state")
	defer span.End()

	if rec == nil || rec.State == "" {
		s.recordOperation(ctx, span, "put_state", "invalid", start)
		return fmt.Errorf("correlation record must have a state token")
	}

	now := time.Now()
	stored := *rec
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = now.Add(s.stateTTL)
	}

	s.mu.Lock()
	existing, ok := s.states[stored.State]
	if ok && !security.IsExpiredWithGracePeriod(existing.ExpiresAt, 0) {
		s.mu.Unlock()
		s.recordOperation(ctx, span, "put_state", "duplicate", start)
		return fmt.Errorf("state %s...: %w", util.SafeTruncate(stored.State, 8), storage.ErrDuplicateState)
	}
	if !ok {
		s.statesCount.Add(1)
	}
	s.states[stored.State] = &stored
	s.mu.Unlock()

	s.recordOperation(ctx, span, "put_state", "success", start)
	return nil
}

// TakeState atomically retrieves and removes a correlation record. The
// write lock is held across lookup and delete so concurrent duplicate
// callbacks can never both obtain the verifier.
func (s *Store) TakeState(ctx context.Context, state string) (*storage.PKCERecord, error) {
	ctx, span, start := s.startSpan(ctx, "take_state")
	defer span.End()

	s.mu.Lock()
	rec, ok := s.states[state]
	if ok {
		delete(s.states, state)
		s.statesCount.Add(-1)
	}
	s.mu.Unlock()

	if !ok {
		s.recordOperation(ctx, span, "take_state", "not_found", start)
		return nil, storage.ErrStateNotFound
	}

	// An expired record is consumed but treated as absent, with the same
	// error as a replay so callers cannot tell the cases apart.
	if security.IsExpiredWithGracePeriod(rec.ExpiresAt, security.DefaultClockSkewGracePeriod) {
		s.recordOperation(ctx, span, "take_state", "expired", start)
		return nil, storage.ErrStateNotFound
	}

	s.recordOperation(ctx, span, "take_state", "success", start)
	return rec, nil
}

// CreateSession stores token material under a freshly generated identifier.
func (s *Store) CreateSession(ctx context.Context, token *providers.TokenMaterial) (string, error) {
	ctx, span, start := s.startSpan(ctx, "create_session")
	defer span.End()

	if token == nil || token.AccessToken == "" {
		s.recordOperation(ctx, span, "create_session", "invalid", start)
		return "", fmt.Errorf("token material with an access token is required")
	}

	stored, err := s.encryptToken(token)
	if err != nil {
		s.recordOperation(ctx, span, "create_session", "error", start)
		return "", fmt.Errorf("failed to encrypt token material: %w", err)
	}

	now := time.Now()

	s.mu.Lock()
	var sessionID string
	for attempt := 0; ; attempt++ {
		if attempt == maxSessionIDAttempts {
			s.mu.Unlock()
			s.recordOperation(ctx, span, "create_session", "error", start)
			return "", fmt.Errorf("failed to generate a unique session identifier")
		}
		sessionID = oauth2.GenerateVerifier()
		if _, exists := s.sessions[sessionID]; !exists {
			break
		}
	}
	s.sessions[sessionID] = &storage.Session{
		ID:        sessionID,
		Token:     stored,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	s.sessionsCount.Add(1)
	s.mu.Unlock()

	s.recordOperation(ctx, span, "create_session", "success", start)
	return sessionID, nil
}

// GetSession retrieves a session by identifier.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	ctx, span, start := s.startSpan(ctx, "get_session")
	defer span.End()

	// Copy under the lock; ReplaceSessionToken may mutate the stored
	// session concurrently.
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	var snapshot storage.Session
	if ok {
		snapshot = *sess
	}
	s.mu.RUnlock()

	if !ok {
		s.recordOperation(ctx, span, "get_session", "not_found", start)
		return nil, storage.ErrSessionNotFound
	}

	if security.IsExpiredWithGracePeriod(snapshot.ExpiresAt, security.DefaultClockSkewGracePeriod) {
		s.recordOperation(ctx, span, "get_session", "expired", start)
		return nil, storage.ErrSessionNotFound
	}

	token, err := s.decryptToken(snapshot.Token)
	if err != nil {
		s.recordOperation(ctx, span, "get_session", "error", start)
		return nil, fmt.Errorf("failed to decrypt token material: %w", err)
	}

	out := snapshot
	out.Token = token

	s.recordOperation(ctx, span, "get_session", "success", start)
	return &out, nil
}

// DeleteSession removes a session. Deleting an absent session is not an
// error.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, span, start := s.startSpan(ctx, "delete_session")
	defer span.End()

	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		s.sessionsCount.Add(-1)
	}
	s.mu.Unlock()

	s.recordOperation(ctx, span, "delete_session", "success", start)
	return nil
}

// ReplaceSessionToken swaps the token material of an existing session while
// keeping its identifier and lifetime.
func (s *Store) ReplaceSessionToken(ctx context.Context, sessionID string, token *providers.TokenMaterial) (*storage.Session, error) {
	ctx, span, start := s.startSpan(ctx, "replace_session_token")
	defer span.End()

	if token == nil || token.AccessToken == "" {
		s.recordOperation(ctx, span, "replace_session_token", "invalid", start)
		return nil, fmt.Errorf("token material with an access token is required")
	}

	stored, err := s.encryptToken(token)
	if err != nil {
		s.recordOperation(ctx, span, "replace_session_token", "error", start)
		return nil, fmt.Errorf("failed to encrypt token material: %w", err)
	}

	var out storage.Session
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok && !security.IsExpiredWithGracePeriod(sess.ExpiresAt, security.DefaultClockSkewGracePeriod) {
		sess.Token = stored
		out = *sess
	} else {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		s.recordOperation(ctx, span, "replace_session_token", "not_found", start)
		return nil, storage.ErrSessionNotFound
	}

	plain := *token
	out.Token = &plain

	s.recordOperation(ctx, span, "replace_session_token", "success", start)
	return &out, nil
}

// StatesCount returns the current number of correlation records.
func (s *Store) StatesCount() int64 {
	return s.statesCount.Load()
}

// SessionsCount returns the current number of sessions.
func (s *Store) SessionsCount() int64 {
	return s.sessionsCount.Load()
}

// encryptToken returns a copy of the token material with the credential
// fields encrypted. A nil or disabled encryptor returns a plain copy.
func (s *Store) encryptToken(token *providers.TokenMaterial) (*providers.TokenMaterial, error) {
	out := *token
	if s.encryptor == nil || !s.encryptor.IsEnabled() {
		return &out, nil
	}

	var err error
	out.AccessToken, err = s.encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken != "" {
		out.RefreshToken, err = s.encryptor.Encrypt(token.RefreshToken)
		if err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// decryptToken reverses encryptToken.
func (s *Store) decryptToken(token *providers.TokenMaterial) (*providers.TokenMaterial, error) {
	out := *token
	if s.encryptor == nil || !s.encryptor.IsEnabled() {
		return &out, nil
	}

	var err error
	out.AccessToken, err = s.encryptor.Decrypt(token.AccessToken)
	if err != nil {
		return nil, err
	}
	if token.RefreshToken != "" {
		out.RefreshToken, err = s.encryptor.Decrypt(token.RefreshToken)
		if err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// cleanupLoop periodically removes expired records.
func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired correlation records and sessions.
func (s *Store) cleanup() {
	var expiredStates, expiredSessions int

	s.mu.Lock()
	for state, rec := range s.states {
		if security.IsExpiredWithGracePeriod(rec.ExpiresAt, security.DefaultClockSkewGracePeriod) {
			delete(s.states, state)
			s.statesCount.Add(-1)
			expiredStates++
		}
	}
	for id, sess := range s.sessions {
		if security.IsExpiredWithGracePeriod(sess.ExpiresAt, security.DefaultClockSkewGracePeriod) {
			delete(s.sessions, id)
			s.sessionsCount.Add(-1)
			expiredSessions++
		}
	}
	s.mu.Unlock()

	if expiredStates > 0 || expiredSessions > 0 {
		s.logger.Debug("cleaned up expired entries",
			"expired_states", expiredStates,
			"expired_sessions", expiredSessions)
	}
}

// startSpan begins a storage span when instrumentation is configured.
// Returns a no-op span otherwise so callers never nil-check.
func (s *Store) startSpan(ctx context.Context, operation string) (context.Context, trace.Span, time.Time) {
	start := time.Now()
	if s.inst == nil {
		ctx, span := tracenoop.NewTracerProvider().Tracer("").Start(ctx, "")
		return ctx, span, start
	}
	ctx, span := s.inst.Tracer("storage").Start(ctx, "storage."+operation,
		trace.WithAttributes(instrumentation.SpanAttr(instrumentation.AttrOperation, operation)))
	return ctx, span, start
}

// recordOperation records the metric and span outcome for an operation.
func (s *Store) recordOperation(ctx context.Context, span trace.Span, operation, result string, start time.Time) {
	if result == "success" {
		instrumentation.SetSpanOK(span)
	} else {
		instrumentation.SetSpanError(span, result)
	}
	if s.inst != nil {
		s.inst.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(start).Milliseconds()))
	}
}
