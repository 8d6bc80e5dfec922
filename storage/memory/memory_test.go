package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kerliix/oauth-bff/providers"
	"github.com/kerliix/oauth-bff/security"
	"github.com/kerliix/oauth-bff/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func testToken() *providers.TokenMaterial {
	return &providers.TokenMaterial{
		AccessToken:  "access-token-value",
		RefreshToken: "refresh-token-value",
		TokenType:    "Bearer",
		Scope:        "openid email",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestPutAndTakeState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &storage.PKCERecord{State: "state-1", CodeVerifier: "verifier-1"}
	if err := s.PutState(ctx, rec); err != nil {
		t.Fatalf("PutState() error = %v", err)
	}

	got, err := s.TakeState(ctx, "state-1")
	if err != nil {
		t.Fatalf("TakeState() error = %v", err)
	}
	if got.CodeVerifier != "verifier-1" {
		t.Errorf("CodeVerifier = %q, want verifier-1", got.CodeVerifier)
	}
	if got.CreatedAt.IsZero() || got.ExpiresAt.IsZero() {
		t.Error("expected timestamps to be defaulted")
	}

	// Second take must fail: the record is single-use.
	if _, err := s.TakeState(ctx, "state-1"); !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("second TakeState() error = %v, want ErrStateNotFound", err)
	}
}

func TestPutStateDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &storage.PKCERecord{State: "dup-state", CodeVerifier: "v1"}
	if err := s.PutState(ctx, rec); err != nil {
		t.Fatalf("PutState() error = %v", err)
	}

	err := s.PutState(ctx, &storage.PKCERecord{State: "dup-state", CodeVerifier: "v2"})
	if !errors.Is(err, storage.ErrDuplicateState) {
		t.Errorf("PutState() error = %v, want ErrDuplicateState", err)
	}

	// The original record must be untouched by the rejected insert.
	got, err := s.TakeState(ctx, "dup-state")
	if err != nil {
		t.Fatalf("TakeState() error = %v", err)
	}
	if got.CodeVerifier != "v1" {
		t.Errorf("CodeVerifier = %q, want the original v1", got.CodeVerifier)
	}
}

func TestPutStateReplacesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	expired := &storage.PKCERecord{
		State:        "reused-state",
		CodeVerifier: "old",
		CreatedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:    time.Now().Add(-30 * time.Minute),
	}
	if err := s.PutState(ctx, expired); err != nil {
		t.Fatalf("PutState() error = %v", err)
	}

	if err := s.PutState(ctx, &storage.PKCERecord{State: "reused-state", CodeVerifier: "new"}); err != nil {
		t.Errorf("PutState() over expired record error = %v", err)
	}
}

func TestTakeStateExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &storage.PKCERecord{
		State:        "stale",
		CodeVerifier: "v",
		CreatedAt:    time.Now().Add(-time.Hour),
		ExpiresAt:    time.Now().Add(-time.Minute),
	}
	if err := s.PutState(ctx, rec); err != nil {
		t.Fatalf("PutState() error = %v", err)
	}

	if _, err := s.TakeState(ctx, "stale"); !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("TakeState() on expired record error = %v, want ErrStateNotFound", err)
	}
}

func TestTakeStateUnknown(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.TakeState(context.Background(), "never-registered"); !errors.Is(err, storage.ErrStateNotFound) {
		t.Errorf("TakeState() error = %v, want ErrStateNotFound", err)
	}
}

func TestTakeStateConcurrentExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutState(ctx, &storage.PKCERecord{State: "raced", CodeVerifier: "v"}); err != nil {
		t.Fatalf("PutState() error = %v", err)
	}

	const goroutines = 50
	var wg sync.WaitGroup
	var successes atomic.Int64

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.TakeState(ctx, "raced"); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("TakeState() succeeded %d times under contention, want exactly 1", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, testToken())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty session ID")
	}

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Token.AccessToken != "access-token-value" {
		t.Errorf("AccessToken = %q, want access-token-value", sess.Token.AccessToken)
	}
	if sess.Token.Scope != "openid email" {
		t.Errorf("Scope = %q, want openid email", sess.Token.Scope)
	}

	if err := s.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := s.GetSession(ctx, id); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("GetSession() after delete error = %v, want ErrSessionNotFound", err)
	}

	// Idempotent delete.
	if err := s.DeleteSession(ctx, id); err != nil {
		t.Errorf("second DeleteSession() error = %v", err)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := s.CreateSession(ctx, testToken())
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestCreateSessionRequiresAccessToken(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CreateSession(context.Background(), &providers.TokenMaterial{}); err == nil {
		t.Error("CreateSession() with empty token expected error")
	}
	if _, err := s.CreateSession(context.Background(), nil); err == nil {
		t.Error("CreateSession(nil) expected error")
	}
}

func TestSessionExpiry(t *testing.T) {
	// Short session TTL, long cleanup interval so only the read path
	// enforces expiry.
	s := NewWithTTLs(DefaultStateTTL, 10*time.Millisecond, time.Hour)
	defer s.Stop()
	ctx := context.Background()

	id, err := s.CreateSession(ctx, testToken())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// Past TTL plus clock skew grace.
	time.Sleep(20*time.Millisecond + security.DefaultClockSkewGracePeriod)

	if _, err := s.GetSession(ctx, id); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("GetSession() on expired session error = %v, want ErrSessionNotFound", err)
	}
}

func TestEncryptionAtRest(t *testing.T) {
	s := newTestStore(t)
	enc, err := security.NewEncryptorFromSecret("test-secret")
	if err != nil {
		t.Fatalf("NewEncryptorFromSecret() error = %v", err)
	}
	s.SetEncryptor(enc)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, testToken())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	// The stored copy must not contain the plaintext credentials.
	s.mu.RLock()
	stored := s.sessions[id].Token
	s.mu.RUnlock()
	if stored.AccessToken == "access-token-value" {
		t.Error("access token stored in plaintext despite encryption")
	}
	if stored.RefreshToken == "refresh-token-value" {
		t.Error("refresh token stored in plaintext despite encryption")
	}

	// Reads transparently decrypt.
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if sess.Token.AccessToken != "access-token-value" {
		t.Errorf("decrypted AccessToken = %q, want access-token-value", sess.Token.AccessToken)
	}
	if sess.Token.RefreshToken != "refresh-token-value" {
		t.Errorf("decrypted RefreshToken = %q, want refresh-token-value", sess.Token.RefreshToken)
	}
}

func TestReplaceSessionToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSession(ctx, testToken())
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	fresh := &providers.TokenMaterial{
		AccessToken:  "rotated-access",
		RefreshToken: "rotated-refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(2 * time.Hour),
	}
	sess, err := s.ReplaceSessionToken(ctx, id, fresh)
	if err != nil {
		t.Fatalf("ReplaceSessionToken() error = %v", err)
	}
	if sess.ID != id {
		t.Errorf("session ID changed on refresh: %q != %q", sess.ID, id)
	}
	if sess.Token.AccessToken != "rotated-access" {
		t.Errorf("AccessToken = %q, want rotated-access", sess.Token.AccessToken)
	}

	got, err := s.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Token.AccessToken != "rotated-access" {
		t.Errorf("stored AccessToken = %q, want rotated-access", got.Token.AccessToken)
	}
}

func TestReplaceSessionTokenUnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReplaceSessionToken(context.Background(), "no-such-session", testToken())
	if !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("ReplaceSessionToken() error = %v, want ErrSessionNotFound", err)
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	s := NewWithTTLs(time.Hour, time.Hour, time.Hour)
	defer s.Stop()
	ctx := context.Background()

	if err := s.PutState(ctx, &storage.PKCERecord{
		State:        "expired-state",
		CodeVerifier: "v",
		CreatedAt:    time.Now().Add(-2 * time.Hour),
		ExpiresAt:    time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("PutState() error = %v", err)
	}
	if err := s.PutState(ctx, &storage.PKCERecord{State: "live-state", CodeVerifier: "v"}); err != nil {
		t.Fatalf("PutState() error = %v", err)
	}

	s.cleanup()

	if got := s.StatesCount(); got != 1 {
		t.Errorf("StatesCount() after cleanup = %d, want 1", got)
	}
	if _, err := s.TakeState(ctx, "live-state"); err != nil {
		t.Errorf("live record swept by cleanup: %v", err)
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutState(ctx, &storage.PKCERecord{State: "s1", CodeVerifier: "v"}); err != nil {
		t.Fatal(err)
	}
	if got := s.StatesCount(); got != 1 {
		t.Errorf("StatesCount() = %d, want 1", got)
	}
	if _, err := s.TakeState(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if got := s.StatesCount(); got != 0 {
		t.Errorf("StatesCount() after take = %d, want 0", got)
	}

	id, err := s.CreateSession(ctx, testToken())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.SessionsCount(); got != 1 {
		t.Errorf("SessionsCount() = %d, want 1", got)
	}
	if err := s.DeleteSession(ctx, id); err != nil {
		t.Fatal(err)
	}
	if got := s.SessionsCount(); got != 0 {
		t.Errorf("SessionsCount() after delete = %d, want 0", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New()
	s.Stop()
	s.Stop()
}
