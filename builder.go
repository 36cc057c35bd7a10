package adminauth

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder defines a public type used by adminauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	identity IdentityService
	profiles ProfileStore
	roles    RoleStore

	notifier       Notifier
	auditSink      AuditSink
	logger         *zerolog.Logger
	clock          func() time.Time
	onForcedLogout func(LogoutReason)

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithIdentity describes the withidentity operation and its observable behavior.
//
// WithIdentity may return an error when input validation, dependency calls, or security checks fail.
// WithIdentity does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentity(identity IdentityService) *Builder {
	b.identity = identity
	return b
}

// WithProfileStore describes the withprofilestore operation and its observable behavior.
//
// WithProfileStore may return an error when input validation, dependency calls, or security checks fail.
// WithProfileStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithProfileStore(store ProfileStore) *Builder {
	b.profiles = store
	return b
}

// WithRoleStore describes the withrolestore operation and its observable behavior.
//
// WithRoleStore may return an error when input validation, dependency calls, or security checks fail.
// WithRoleStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRoleStore(store RoleStore) *Builder {
	b.roles = store
	return b
}

// WithRedis wires the bundled Redis-backed profile and role stores for any
// of the two not set explicitly.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithNotifier describes the withnotifier operation and its observable behavior.
//
// WithNotifier may return an error when input validation, dependency calls, or security checks fail.
// WithNotifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger may return an error when input validation, dependency calls, or security checks fail.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithClock overrides the engine's time source. Intended for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// OnForcedLogout registers the navigation callback invoked when the session
// ends for any reason other than an explicit Logout call (idle timeout,
// lockout, external invalidation).
func (b *Builder) OnForcedLogout(fn func(LogoutReason)) *Builder {
	b.onForcedLogout = fn
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.identity == nil {
		return nil, errors.New("identity service is required")
	}

	profiles := b.profiles
	roles := b.roles
	if profiles == nil && b.redis != nil {
		profiles = NewRedisProfileStore(b.redis)
	}
	if roles == nil && b.redis != nil {
		roles = NewRedisRoleStore(b.redis)
	}
	if profiles == nil {
		return nil, errors.New("profile store is required (set one or provide a redis client)")
	}
	if roles == nil {
		return nil, errors.New("role store is required (set one or provide a redis client)")
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	e := &Engine{
		config:         b.config,
		identity:       b.identity,
		profiles:       profiles,
		roles:          roles,
		verifier:       newSecondFactorVerifier(b.config.TOTP),
		audit:          newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:        NewMetrics(b.config.Metrics),
		notifier:       notifier,
		logger:         logger,
		clock:          clock,
		onForcedLogout: b.onForcedLogout,
		phase:          PhaseSignedOut,
	}
	e.idle = newIdleMonitor(b.config.Idle, clock, e.sessionIdle, e.expireIdleSession)

	// Single subscription for the engine's lifetime; released by Close.
	e.unsubscribe = b.identity.OnAuthStateChange(e.handleAuthChange)

	b.built = true
	return e, nil
}
