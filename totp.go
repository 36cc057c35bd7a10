package adminauth

import (
	"crypto/rand"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

type secondFactorOutcome uint8

const (
	outcomeInvalid secondFactorOutcome = iota
	outcomeTOTPValid
	outcomeBackupValid
)

type secondFactorVerifier struct {
	config TOTPConfig
}

func newSecondFactorVerifier(cfg TOTPConfig) *secondFactorVerifier {
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	return &secondFactorVerifier{config: cfg}
}

// Verify checks the submitted code against the profile's TOTP secret first,
// then against its backup codes. On a backup-code hit the matched entry is
// spent: the returned slice is the profile's backup_codes with that one
// entry removed, and the caller persists it.
//
// A profile with TOTP enabled but no secret is a provisioning defect and
// returns ErrTOTPNotConfigured rather than reading as an invalid code.
func (v *secondFactorVerifier) Verify(profile *AdminProfile, submitted string, now time.Time) (secondFactorOutcome, []string, error) {
	if v == nil {
		return outcomeInvalid, nil, ErrEngineNotReady
	}
	if profile == nil || !profile.TOTPEnabled {
		return outcomeInvalid, nil, ErrTOTPNotConfigured
	}
	if profile.TOTPSecret == "" {
		return outcomeInvalid, nil, ErrTOTPNotConfigured
	}

	code := strings.TrimSpace(submitted)
	if code == "" {
		return outcomeInvalid, nil, nil
	}

	ok, err := totp.ValidateCustom(code, profile.TOTPSecret, now, totp.ValidateOpts{
		Period:    uint(v.config.Period),
		Skew:      uint(v.config.Skew),
		Digits:    otp.Digits(v.config.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err == nil && ok {
		return outcomeTOTPValid, nil, nil
	}

	if idx := matchBackupCode(profile.BackupCodes, code); idx >= 0 {
		remaining := make([]string, 0, len(profile.BackupCodes)-1)
		remaining = append(remaining, profile.BackupCodes[:idx]...)
		remaining = append(remaining, profile.BackupCodes[idx+1:]...)
		return outcomeBackupValid, remaining, nil
	}

	return outcomeInvalid, nil, nil
}

// GenerateSecret returns a fresh base32 TOTP secret and its otpauth://
// provisioning URI for the given account.
func (v *secondFactorVerifier) GenerateSecret(account string) (string, string, error) {
	if v == nil {
		return "", "", ErrEngineNotReady
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.config.Issuer,
		AccountName: account,
		Period:      uint(v.config.Period),
		Digits:      otp.Digits(v.config.Digits),
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// matchBackupCode scans every entry with a constant-time compare so a miss
// costs the same regardless of where (or whether) the code sits in the list.
func matchBackupCode(codes []string, submitted string) int {
	canonical := canonicalizeBackupCode(submitted)
	matched := -1
	for i, code := range codes {
		stored := canonicalizeBackupCode(code)
		if len(stored) != len(canonical) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(stored), []byte(canonical)) == 1 && matched < 0 {
			matched = i
		}
	}
	return matched
}

func canonicalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// Ambiguous characters (0/O, 1/I/L) are excluded so codes survive being
// read over the phone.
const backupCodeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func newBackupCode(length int) (string, error) {
	if length <= 0 {
		length = 10
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = backupCodeCharset[int(b)%len(backupCodeCharset)]
	}
	return string(out), nil
}

// formatBackupCode renders a canonical code for display, split into two
// hyphenated halves.
func formatBackupCode(code string) string {
	if len(code) < 4 {
		return code
	}
	half := len(code) / 2
	return code[:half] + "-" + code[half:]
}
