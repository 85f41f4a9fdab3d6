package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"authcore/internal/config"
	"authcore/pkg/logging"
)

// Outcome is the result classification of an audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is a single audit record. Events are immutable once logged; the
// logger stamps ID and Timestamp and never touches an event afterwards.
type Event struct {
	ID             string            `json:"eventId"`
	Timestamp      time.Time         `json:"timestamp"`
	SubjectID      string            `json:"subjectId,omitempty"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Action         string            `json:"action"`
	Outcome        Outcome           `json:"outcome"`
	Resource       string            `json:"resource,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
	Source         string            `json:"source"`
}

// Sink is the write-side capability handed to components that emit audit
// events. Issuers, the policy engine and the gateway depend on this
// interface rather than on the concrete logger.
type Sink interface {
	Log(event Event)
}

const (
	// flushHighWater is the buffer size that triggers an immediate flush.
	flushHighWater = 100

	// bufferCap bounds the in-memory buffer when disk persistence is
	// disabled. The oldest events are dropped past this point.
	bufferCap = 10000
)

// Logger is a buffered, append-only audit event sink. Log never blocks on
// I/O: events go to an in-memory buffer that is flushed to disk when it
// reaches a high-water mark, on a periodic timer, and on Stop.
type Logger struct {
	mu     sync.Mutex
	buffer []Event

	persist   bool
	directory string

	clock func() time.Time

	flushCh chan struct{}
	stopCh  chan struct{}
	done    sync.WaitGroup
}

// Option configures the Logger.
type Option func(*Logger)

// WithClock overrides the time source. Tests use this to control event
// timestamps and file naming.
func WithClock(clock func() time.Time) Option {
	return func(l *Logger) {
		l.clock = clock
	}
}

// NewLogger creates and starts an audit logger from the given configuration.
func NewLogger(cfg config.AuditConfig, opts ...Option) *Logger {
	interval := time.Duration(cfg.FlushIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Duration(config.DefaultAuditFlushIntervalSeconds) * time.Second
	}

	l := &Logger{
		persist:   cfg.PersistToDisk,
		directory: cfg.Directory,
		clock:     time.Now,
		flushCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.persist {
		if err := os.MkdirAll(l.directory, 0o755); err != nil {
			// Best effort: audit persistence must never take the process
			// down. Flush will keep reporting until the directory appears.
			logging.Error("Audit", err, "Failed to create audit directory %s", l.directory)
		}
	}

	l.done.Add(1)
	go l.flushLoop(interval)

	return l
}

// Log stamps and buffers an event. It never blocks on I/O and never fails;
// when the buffer reaches the high-water mark an asynchronous flush is
// requested.
func (l *Logger) Log(event Event) {
	event.ID = uuid.NewString()
	event.Timestamp = l.clock().UTC()
	if event.Outcome == "" {
		event.Outcome = OutcomeSuccess
	}

	l.mu.Lock()
	l.buffer = append(l.buffer, event)
	if !l.persist && len(l.buffer) > bufferCap {
		l.buffer = l.buffer[len(l.buffer)-bufferCap:]
	}
	high := len(l.buffer) >= flushHighWater
	l.mu.Unlock()

	if high {
		select {
		case l.flushCh <- struct{}{}:
		default:
			// A flush is already pending.
		}
	}
}

// Events returns a snapshot of the current buffer for introspection.
func (l *Logger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make([]Event, len(l.buffer))
	copy(snapshot, l.buffer)
	return snapshot
}

// Len returns the number of buffered, not-yet-flushed events.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// Flush serializes the buffered events as one newline-delimited JSON batch
// and appends them to the current UTC day's file. The buffer is cleared
// only after the write succeeds, so a failed write retries the same batch
// on the next flush rather than losing it. A no-op when persistence is
// disabled.
func (l *Logger) Flush() error {
	if !l.persist {
		return nil
	}

	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := make([]Event, len(l.buffer))
	copy(batch, l.buffer)
	l.mu.Unlock()

	data, err := encodeBatch(batch)
	if err != nil {
		return fmt.Errorf("failed to encode audit batch: %w", err)
	}

	path := filepath.Join(l.directory, fileNameFor(batch[0].Timestamp))
	if err := appendFile(path, data); err != nil {
		return fmt.Errorf("failed to append audit batch to %s: %w", path, err)
	}

	// Drop exactly the events that were written. Events logged during the
	// write stay buffered for the next flush.
	l.mu.Lock()
	l.buffer = l.buffer[min(len(batch), len(l.buffer)):]
	l.mu.Unlock()

	return nil
}

// Stop flushes outstanding events and terminates the background loop.
// Safe to call once; the logger must not be used afterwards.
func (l *Logger) Stop() {
	close(l.stopCh)
	l.done.Wait()

	if err := l.Flush(); err != nil {
		logging.Error("Audit", err, "Final audit flush failed")
	}
}

func (l *Logger) flushLoop(interval time.Duration) {
	defer l.done.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.flushBestEffort()
		case <-l.flushCh:
			l.flushBestEffort()
		case <-l.stopCh:
			return
		}
	}
}

// flushBestEffort reports flush failures to the diagnostic log and
// otherwise swallows them: audit persistence must never fail a request.
func (l *Logger) flushBestEffort() {
	if err := l.Flush(); err != nil {
		logging.Error("Audit", err, "Audit flush failed, batch retained for retry")
	}
}

func encodeBatch(events []Event) ([]byte, error) {
	var out []byte
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}

// fileNameFor returns the audit file name for the UTC calendar day of t.
func fileNameFor(t time.Time) string {
	return "audit-" + t.UTC().Format("2006-01-02") + ".log"
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}
