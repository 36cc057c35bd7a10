package localidentity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/techvik/adminauth"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(testSigningKey)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return svc
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("too short")); err == nil {
		t.Fatal("expected a key-length error")
	}
}

func TestRegisterAndSignIn(t *testing.T) {
	svc := newTestService(t)

	id, err := svc.Register("Ops@Example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Email lookup is case-insensitive, like the hosted service.
	user, err := svc.SignInWithPassword(context.Background(), "ops@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("SignInWithPassword failed: %v", err)
	}
	if user.ID != id {
		t.Fatalf("user id = %q, want %q", user.ID, id)
	}
	if user.Email != "Ops@Example.com" {
		t.Fatalf("email = %q, want the registered form", user.Email)
	}
	if svc.SessionToken() == "" {
		t.Fatal("expected a session token after sign-in")
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Register("ops@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.Register("OPS@example.com", "another-pass-1"); err == nil {
		t.Fatal("expected a duplicate error")
	}
}

func TestSignInWrongPasswordWrapsSentinel(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Register("ops@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := svc.SignInWithPassword(context.Background(), "ops@example.com", "not-the-password")
	if !errors.Is(err, adminauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid login credentials") {
		t.Fatalf("expected the service's own message, got %q", err.Error())
	}

	// Unknown accounts read identically to wrong passwords.
	_, err = svc.SignInWithPassword(context.Background(), "ghost@example.com", "whatever-pass")
	if !errors.Is(err, adminauth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestSessionTokenParses(t *testing.T) {
	svc := newTestService(t)
	id, err := svc.Register("ops@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.SignInWithPassword(context.Background(), "ops@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	sub, email, err := svc.ParseToken(svc.SessionToken())
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if sub != id || email != "ops@example.com" {
		t.Fatalf("claims = %q/%q, want %q/%q", sub, email, id, "ops@example.com")
	}

	// A token signed with a different key is rejected.
	other, err := New([]byte("ffffffffffffffffffffffffffffffff"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, _, err := other.ParseToken(svc.SessionToken()); err == nil {
		t.Fatal("foreign token accepted")
	}
}

func TestAuthStateChangeFanOut(t *testing.T) {
	svc := newTestService(t)
	id, err := svc.Register("ops@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var events []adminauth.AuthChangeEvent
	unsubscribe := svc.OnAuthStateChange(func(ev adminauth.AuthChangeEvent) {
		events = append(events, ev)
	})

	if _, err := svc.SignInWithPassword(context.Background(), "ops@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if err := svc.SignOut(context.Background()); err != nil {
		t.Fatalf("sign-out failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != adminauth.AuthSignedIn || events[0].UserID != id {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Type != adminauth.AuthSignedOut || events[1].UserID != id {
		t.Fatalf("second event = %+v", events[1])
	}

	unsubscribe()
	if _, err := svc.SignInWithPassword(context.Background(), "ops@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatal("unsubscribed handler still received events")
	}
}

func TestRevokeSessionNotifiesSubscribers(t *testing.T) {
	svc := newTestService(t)
	id, err := svc.Register("ops@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := svc.SignInWithPassword(context.Background(), "ops@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}

	var got *adminauth.AuthChangeEvent
	svc.OnAuthStateChange(func(ev adminauth.AuthChangeEvent) {
		got = &ev
	})

	svc.RevokeSession()
	if got == nil || got.Type != adminauth.AuthSignedOut || got.UserID != id {
		t.Fatalf("revocation event = %+v", got)
	}
	if svc.SessionToken() != "" {
		t.Fatal("token survived revocation")
	}

	// Revoking with no session is a no-op.
	got = nil
	svc.RevokeSession()
	if got != nil {
		t.Fatal("unexpected event for an empty revocation")
	}
}

func TestResetPasswordRecorded(t *testing.T) {
	svc := newTestService(t)

	if _, _, ok := svc.LastResetRequest(); ok {
		t.Fatal("unexpected reset request before any delegation")
	}
	if err := svc.ResetPasswordForEmail(context.Background(), "ops@example.com", "https://admin.example.com/reset"); err != nil {
		t.Fatalf("ResetPasswordForEmail failed: %v", err)
	}

	email, redirect, ok := svc.LastResetRequest()
	if !ok {
		t.Fatal("reset request not recorded")
	}
	if email != "ops@example.com" || redirect != "https://admin.example.com/reset" {
		t.Fatalf("recorded %q/%q", email, redirect)
	}
}
