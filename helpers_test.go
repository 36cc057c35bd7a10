package adminauth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

// testClock is a mutable time source shared between the engine and the
// test body.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeIdentity is an in-package stand-in for the hosted identity service.
// Credentials are plaintext pairs; sign-out calls and reset requests are
// recorded for assertions.
type fakeIdentity struct {
	mu           sync.Mutex
	users        map[string]fakeIdentityUser
	signedIn     string
	signOutCalls int
	resetEmail   string
	resetURL     string
	subs         map[int]func(AuthChangeEvent)
	nextSub      int

	// signInGate, when set, blocks SignInWithPassword until released.
	// Used by the re-entrancy tests.
	signInGate chan struct{}
}

type fakeIdentityUser struct {
	id       string
	password string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		users: make(map[string]fakeIdentityUser),
		subs:  make(map[int]func(AuthChangeEvent)),
	}
}

func (f *fakeIdentity) addUser(email, password, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email] = fakeIdentityUser{id: id, password: password}
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*IdentityUser, error) {
	f.mu.Lock()
	gate := f.signInGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[email]
	if !ok || user.password != password {
		return nil, fmt.Errorf("%w: Invalid login credentials", ErrInvalidCredentials)
	}
	f.signedIn = user.id
	return &IdentityUser{ID: user.id, Email: email}, nil
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	userID := f.signedIn
	f.signedIn = ""
	handlers := f.handlersLocked()
	f.mu.Unlock()

	if userID != "" {
		for _, fn := range handlers {
			fn(AuthChangeEvent{Type: AuthSignedOut, UserID: userID})
		}
	}
	return nil
}

func (f *fakeIdentity) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetEmail = email
	f.resetURL = redirectTo
	return nil
}

func (f *fakeIdentity) OnAuthStateChange(fn func(AuthChangeEvent)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// revoke simulates the service invalidating the session externally.
func (f *fakeIdentity) revoke() {
	f.mu.Lock()
	userID := f.signedIn
	f.signedIn = ""
	handlers := f.handlersLocked()
	f.mu.Unlock()

	for _, fn := range handlers {
		fn(AuthChangeEvent{Type: AuthSignedOut, UserID: userID})
	}
}

func (f *fakeIdentity) handlersLocked() []func(AuthChangeEvent) {
	handlers := make([]func(AuthChangeEvent), 0, len(f.subs))
	for _, fn := range f.subs {
		handlers = append(handlers, fn)
	}
	return handlers
}

func (f *fakeIdentity) signOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

// recordingNotifier captures toast wording in order.
type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) lastError() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.errors) == 0 {
		return ""
	}
	return n.errors[len(n.errors)-1]
}

func (n *recordingNotifier) lastSuccess() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.successes) == 0 {
		return ""
	}
	return n.successes[len(n.successes)-1]
}

type testEnv struct {
	engine   *Engine
	identity *fakeIdentity
	profiles *RedisProfileStore
	roles    *RedisRoleStore
	clock    *testClock
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...func(*Builder)) *testEnv {
	t.Helper()

	rdb := newTestRedis(t)
	cfg := defaultConfig()
	cfg.Idle.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	identity := newFakeIdentity()
	clock := newTestClock()
	notifier := &recordingNotifier{}

	builder := New().
		WithConfig(cfg).
		WithIdentity(identity).
		WithRedis(rdb).
		WithNotifier(notifier).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(builder)
	}
	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		identity: identity,
		profiles: NewRedisProfileStore(rdb),
		roles:    NewRedisRoleStore(rdb),
		clock:    clock,
		notifier: notifier,
	}
}

func withAuditSink(sink AuditSink) func(*Builder) {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

const (
	testEmail    = "ops@example.com"
	testPassword = "correct-password-123"
	testUserID   = "usr-1"
)

// seedAdmin provisions the identity credentials, the admin role, and
// optionally a profile row.
func (env *testEnv) seedAdmin(t *testing.T, profile *AdminProfile) {
	t.Helper()

	ctx := context.Background()
	env.identity.addUser(testEmail, testPassword, testUserID)
	if err := env.roles.Grant(ctx, testUserID, RoleAdmin); err != nil {
		t.Fatalf("role grant failed: %v", err)
	}
	if profile != nil {
		profile.UserID = testUserID
		if err := env.profiles.Seed(ctx, profile); err != nil {
			t.Fatalf("profile seed failed: %v", err)
		}
	}
}

func (env *testEnv) profile(t *testing.T) *AdminProfile {
	t.Helper()
	profile, err := env.profiles.Get(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("profile get failed: %v", err)
	}
	return profile
}
