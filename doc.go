// Package adminauth provides the admin authentication and session-security
// engine for the back-office: password login through an external identity
// service, an optional TOTP second factor with single-use backup codes,
// account lockout after repeated failures, and a client-tracked idle-session
// timeout.
//
// The package is the public surface. It exposes [Engine], [Builder],
// [Config], the collaborator interfaces ([IdentityService], [ProfileStore],
// [RoleStore]), and value types (LoginResult, SessionState, MetricsSnapshot).
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build], though the engine serializes
// Login/VerifySecondFactor attempts itself: an overlapping attempt is
// rejected with [ErrAttemptInFlight] rather than queued, so a double-submit
// can never double-count against the lockout budget.
//
// # Architecture boundaries
//
//   - The identity service owns credentials and session tokens. The engine
//     never sees a password hash; it only calls SignInWithPassword, SignOut,
//     and ResetPasswordForEmail, and mirrors external invalidation through
//     OnAuthStateChange.
//   - The profile store owns AdminProfile rows (lockout counters, TOTP
//     enrollment, backup codes). The engine reads and mutates them but does
//     not create them.
//   - The role store answers exactly one question: does this user id hold
//     the admin role.
//
// # Authorization invariant
//
// IsAdmin reports true only when the role store has confirmed the admin role
// AND, for profiles with TOTP enabled, a second-factor check has succeeded.
// A session awaiting its second factor is unauthenticated for every purpose
// other than submitting a code.
package adminauth
