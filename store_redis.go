package adminauth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	profileKeyPrefix = "aap"
	roleKeyPrefix    = "aar"
)

const (
	profileFieldAttempts    = "failed_login_attempts"
	profileFieldLockedUntil = "locked_until"
	profileFieldTOTPEnabled = "totp_enabled"
	profileFieldTOTPSecret  = "totp_secret"
	profileFieldBackupCodes = "backup_codes"
	profileFieldLastLogin   = "last_login"
)

// RedisProfileStore is a [ProfileStore] over a Redis hash per user. It
// serves deployments that mirror the hosted backend's admin_profiles table
// into Redis, and the engine's own tests.
type RedisProfileStore struct {
	redis *redis.Client
}

// NewRedisProfileStore describes the newredisprofilestore operation and its observable behavior.
//
// NewRedisProfileStore may return an error when input validation, dependency calls, or security checks fail.
// NewRedisProfileStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisProfileStore(client *redis.Client) *RedisProfileStore {
	return &RedisProfileStore{redis: client}
}

func (s *RedisProfileStore) key(userID string) string {
	return profileKeyPrefix + ":" + userID
}

// Get implements [ProfileStore]. A user with no hash at all reports
// [ErrProfileNotFound]; the engine treats that as an unprovisioned profile.
func (s *RedisProfileStore) Get(ctx context.Context, userID string) (*AdminProfile, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrProfileNotFound
	}

	profile := &AdminProfile{UserID: userID}

	if raw, ok := fields[profileFieldAttempts]; ok {
		attempts, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad attempts field %q", ErrProfileUnavailable, raw)
		}
		profile.FailedLoginAttempts = attempts
	}
	if raw, ok := fields[profileFieldLockedUntil]; ok && raw != "" {
		until, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad locked_until field %q", ErrProfileUnavailable, raw)
		}
		profile.LockedUntil = &until
	}
	profile.TOTPEnabled = fields[profileFieldTOTPEnabled] == "1"
	profile.TOTPSecret = fields[profileFieldTOTPSecret]
	if raw, ok := fields[profileFieldBackupCodes]; ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &profile.BackupCodes); err != nil {
			return nil, fmt.Errorf("%w: bad backup_codes field", ErrProfileUnavailable)
		}
	}
	if raw, ok := fields[profileFieldLastLogin]; ok && raw != "" {
		last, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: bad last_login field %q", ErrProfileUnavailable, raw)
		}
		profile.LastLogin = &last
	}

	return profile, nil
}

// Update implements [ProfileStore]. Only fields carried by the update are
// written; a missing hash is created, which is how the engine provisions
// counter rows for users that predate the profile table.
func (s *RedisProfileStore) Update(ctx context.Context, userID string, update ProfileUpdate) error {
	key := s.key(userID)
	set := make(map[string]interface{}, 6)

	if update.FailedLoginAttempts != nil {
		set[profileFieldAttempts] = strconv.Itoa(*update.FailedLoginAttempts)
	}
	if update.SetLockedUntil {
		if update.LockedUntil != nil {
			set[profileFieldLockedUntil] = update.LockedUntil.UTC().Format(time.RFC3339Nano)
		} else {
			set[profileFieldLockedUntil] = ""
		}
	}
	if update.LastLogin != nil {
		set[profileFieldLastLogin] = update.LastLogin.UTC().Format(time.RFC3339Nano)
	}
	if update.SetBackupCodes {
		encoded, err := json.Marshal(update.BackupCodes)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
		}
		set[profileFieldBackupCodes] = string(encoded)
	}
	if update.TOTPEnabled != nil {
		if *update.TOTPEnabled {
			set[profileFieldTOTPEnabled] = "1"
		} else {
			set[profileFieldTOTPEnabled] = "0"
		}
	}
	if update.TOTPSecret != nil {
		set[profileFieldTOTPSecret] = *update.TOTPSecret
	}

	if len(set) == 0 {
		return nil
	}
	if err := s.redis.HSet(ctx, key, set).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	return nil
}

// Seed writes a full profile row. Provisioning and test helper; the engine
// itself never creates whole profiles.
func (s *RedisProfileStore) Seed(ctx context.Context, profile *AdminProfile) error {
	enabled := profile.TOTPEnabled
	update := ProfileUpdate{
		FailedLoginAttempts: &profile.FailedLoginAttempts,
		LockedUntil:         profile.LockedUntil,
		SetLockedUntil:      true,
		LastLogin:           profile.LastLogin,
		BackupCodes:         profile.BackupCodes,
		SetBackupCodes:      true,
		TOTPEnabled:         &enabled,
		TOTPSecret:          &profile.TOTPSecret,
	}
	return s.Update(ctx, profile.UserID, update)
}

// RedisRoleStore is a [RoleStore] over Redis sets, one set per role.
type RedisRoleStore struct {
	redis *redis.Client
}

// NewRedisRoleStore describes the newredisrolestore operation and its observable behavior.
//
// NewRedisRoleStore may return an error when input validation, dependency calls, or security checks fail.
// NewRedisRoleStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewRedisRoleStore(client *redis.Client) *RedisRoleStore {
	return &RedisRoleStore{redis: client}
}

func (s *RedisRoleStore) key(role string) string {
	return roleKeyPrefix + ":" + role
}

// HasRole implements [RoleStore].
func (s *RedisRoleStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	member, err := s.redis.SIsMember(ctx, s.key(role), userID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRoleUnavailable, err)
	}
	return member, nil
}

// Grant adds the user to the role set. Provisioning helper.
func (s *RedisRoleStore) Grant(ctx context.Context, userID, role string) error {
	if err := s.redis.SAdd(ctx, s.key(role), userID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRoleUnavailable, err)
	}
	return nil
}

// Revoke removes the user from the role set.
func (s *RedisRoleStore) Revoke(ctx context.Context, userID, role string) error {
	if err := s.redis.SRem(ctx, s.key(role), userID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRoleUnavailable, err)
	}
	return nil
}
