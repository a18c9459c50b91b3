// Package securitytest provides test doubles for the security package.
package securitytest

import (
	"sync"

	"github.com/Realm-101/unbuilt-advisor/internal/security"
)

// Event is a security event captured by Recorder.
type Event struct {
	Type     string
	Category string
	Success  bool
	Details  map[string]string
}

// Recorder is a SecurityLogger that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Compile-time interface check.
var _ security.SecurityLogger = (*Recorder)(nil)

// LogSecurityEvent implements security.SecurityLogger.
func (r *Recorder) LogSecurityEvent(eventType, category string, success bool, details map[string]string) {
	cp := make(map[string]string, len(details))
	for k, v := range details {
		cp[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Type: eventType, Category: category, Success: success, Details: cp})
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// NewTestRedactor creates a Redactor with no patterns, for tests whose
// fixtures would otherwise look like personal data.
func NewTestRedactor() *security.Redactor {
	return &security.Redactor{}
}

// NewInputValidator builds a validator with default configuration that
// records events into the returned Recorder.
func NewInputValidator() (*security.InputValidator, *Recorder) {
	rec := &Recorder{}
	v, err := security.NewInputValidator(security.InputValidatorConfig{}, rec)
	if err != nil {
		panic("securitytest: default input validator: " + err.Error())
	}
	return v, rec
}
