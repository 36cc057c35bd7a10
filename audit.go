package adminauth

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

const (
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventLoginDenied       = "login_denied"
	auditEventLoginLocked       = "login_locked"
	auditEventSecondFactorOK    = "second_factor_success"
	auditEventSecondFactorFail  = "second_factor_failure"
	auditEventLockoutTriggered  = "lockout_triggered"
	auditEventBackupCodeUsed    = "backup_code_used"
	auditEventBackupCodesIssued = "backup_codes_issued"
	auditEventLogout            = "logout"
	auditEventIdleTimeout       = "idle_timeout"
	auditEventExternalSignOut   = "external_sign_out"
	auditEventPasswordReset     = "password_reset_requested"
)

type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Email     string            `json:"email,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives events already dequeued by the dispatcher. Delivery is
// single-threaded from the dispatcher's worker; implementations must not
// block indefinitely or the queue backs up behind them.
type AuditSink interface {
	Emit(event AuditEvent)
}

type NoOpSink struct{}

func (NoOpSink) Emit(AuditEvent) {}

type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit delivers to the channel, discarding the event when no reader keeps
// up with the buffer.
func (s *ChannelSink) Emit(event AuditEvent) {
	select {
	case s.events <- event:
	default:
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
