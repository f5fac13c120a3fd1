package multiauth

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/multiauth/internal/audit"
)

// Audit event types emitted by Auth.
const (
	EventLoginSuccess        = "login_success"
	EventLoginFailure        = "login_failure"
	EventLoginRateLimited    = "login_rate_limited"
	EventLogout              = "logout"
	EventSessionTampered     = "session_tampered"
	EventSessionExpired      = "session_expired"
	EventBackendWriteFailure = "backend_write_failure"
	EventRegisterSuccess     = "register_success"
	EventRegisterDuplicate   = "register_duplicate"
)

// AuditEvent is one authentication outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's async dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = audit.SinkFunc

// LogSink writes audit events as slog records.
type LogSink = audit.LogSink

// NewChannelSink returns a sink buffering up to buffer events.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink returns a sink logging through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return audit.NewLogSink(logger)
}
