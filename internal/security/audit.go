package security

import (
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Security event types emitted outside input validation.
const (
	EventRateLimit       = "rate_limit"
	EventResponseBlocked = "response_blocked"
)

// SecurityLogger records security events. Implementations must never block
// or fail the caller.
type SecurityLogger interface {
	LogSecurityEvent(eventType, category string, success bool, details map[string]string)
}

// NopSecurityLogger discards every event.
type NopSecurityLogger struct{}

// LogSecurityEvent implements SecurityLogger.
func (NopSecurityLogger) LogSecurityEvent(string, string, bool, map[string]string) {}

// AuditEvent is a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Category  string            `json:"category,omitempty"`
	Success   bool              `json:"success"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditLoggerConfig configures the audit logger.
type AuditLoggerConfig struct {
	// Writer is the destination for JSONL output. If nil, events are only
	// dispatched to OnEvent.
	Writer io.Writer

	// Redactor, if non-nil, is applied to every detail value.
	Redactor *Redactor

	// OnEvent, if non-nil, is called for every written event.
	OnEvent func(AuditEvent)

	// QueueSize bounds the number of pending events. Defaults to 256.
	QueueSize int

	// Logger reports write failures. Defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides time.Now for testing.
	Now func() time.Time
}

// AuditLogger writes security events as JSONL from a background goroutine.
// LogSecurityEvent only enqueues: when the queue is full or the logger is
// closed the event is dropped and counted.
type AuditLogger struct {
	writer   io.Writer
	redactor *Redactor
	onEvent  func(AuditEvent)
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	closed  bool
	queue   chan AuditEvent
	done    chan struct{}
	dropped atomic.Int64
}

// Compile-time interface check.
var _ SecurityLogger = (*AuditLogger)(nil)

// NewAuditLogger creates an audit logger and starts its writer goroutine.
// Call Close to flush pending events.
func NewAuditLogger(cfg AuditLoggerConfig) *AuditLogger {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &AuditLogger{
		writer:   cfg.Writer,
		redactor: cfg.Redactor,
		onEvent:  cfg.OnEvent,
		logger:   cfg.Logger,
		now:      cfg.Now,
		queue:    make(chan AuditEvent, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

// LogSecurityEvent enqueues an event. The caller's details map is never
// retained or mutated.
func (l *AuditLogger) LogSecurityEvent(eventType, category string, success bool, details map[string]string) {
	event := AuditEvent{
		Timestamp: l.now(),
		Type:      eventType,
		Category:  category,
		Success:   success,
	}
	if len(details) > 0 {
		event.Details = maps.Clone(details)
		if l.redactor != nil {
			for k, v := range event.Details {
				event.Details[k] = l.redactor.Redact(v)
			}
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	select {
	case l.queue <- event:
	default:
		l.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded so far.
func (l *AuditLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close stops accepting events and waits until queued events are written.
// It is safe to call more than once.
func (l *AuditLogger) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *AuditLogger) run() {
	defer close(l.done)
	var enc *json.Encoder
	if l.writer != nil {
		enc = json.NewEncoder(l.writer)
	}
	for event := range l.queue {
		if l.onEvent != nil {
			l.onEvent(event)
		}
		if enc != nil {
			if err := enc.Encode(event); err != nil {
				l.logger.Warn("audit: write failed", "type", event.Type, "error", err)
			}
		}
	}
}
