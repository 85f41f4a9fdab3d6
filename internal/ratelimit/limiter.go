package ratelimit

import (
	"sync"
	"time"

	"authcore/internal/config"
	"authcore/pkg/logging"
)

// ActionClass groups operations that share a rate-limit budget.
type ActionClass string

const (
	ClassAPI   ActionClass = "api"
	ClassAuth  ActionClass = "auth"
	ClassToken ActionClass = "token"
)

// windowSize is the duration of one counting window. Limits are expressed
// per hour in configuration.
const windowSize = time.Hour

// defaultSweepInterval is how often expired, empty windows are evicted.
const defaultSweepInterval = 5 * time.Minute

// windowKey identifies one counting window.
type windowKey struct {
	subject string
	class   ActionClass
}

// window is a sliding counting window. It is reset lazily the first time
// it is observed to be stale; there is no per-window timer.
type window struct {
	count int
	start time.Time
}

// Result describes the outcome of a limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// CheckOptions modifies a single Check call.
type CheckOptions struct {
	// Increment records the action when it is allowed. Set false to probe
	// without consuming budget.
	Increment bool

	// CustomLimit overrides the configured limit for this call when > 0.
	CustomLimit int
}

// Limiter enforces per-subject sliding-window limits keyed by action
// class. A nil *Limiter is valid and allows everything: rate limiting is
// an enterprise add-on, not a safety-critical gate, so an absent limiter
// fails open.
type Limiter struct {
	mu sync.Mutex

	limits  map[ActionClass]int
	windows map[windowKey]*window

	clock  func() time.Time
	stopCh chan struct{}
	done   sync.WaitGroup
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// NewLimiter creates and starts a limiter with the configured hourly
// limits. Classes with a non-positive limit fall back to the defaults.
func NewLimiter(cfg config.RateLimitConfig, opts ...Option) *Limiter {
	limits := map[ActionClass]int{
		ClassAPI:   cfg.APIHourly,
		ClassAuth:  cfg.AuthHourly,
		ClassToken: cfg.TokenHourly,
	}
	if limits[ClassAPI] <= 0 {
		limits[ClassAPI] = config.DefaultAPIHourlyLimit
	}
	if limits[ClassAuth] <= 0 {
		limits[ClassAuth] = config.DefaultAuthHourlyLimit
	}
	if limits[ClassToken] <= 0 {
		limits[ClassToken] = config.DefaultTokenHourlyLimit
	}

	l := &Limiter{
		limits:  limits,
		windows: make(map[windowKey]*window),
		clock:   time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.done.Add(1)
	go l.sweepLoop()

	return l
}

// Check evaluates whether the subject may perform an action of the given
// class. When opts.Increment is set and the action is allowed, the action
// is recorded against the window.
func (l *Limiter) Check(subject string, class ActionClass, opts CheckOptions) Result {
	if l == nil {
		return Result{Allowed: true, Remaining: -1, Limit: -1}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limits[class]
	if opts.CustomLimit > 0 {
		limit = opts.CustomLimit
	}

	now := l.clock()
	w := l.freshWindow(subject, class, now)

	allowed := w.count < limit
	if allowed && opts.Increment {
		w.count++
	}

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	if !allowed {
		logging.Warn("RateLimit", "Limit exceeded for subject=%s class=%s (%d/%d)",
			logging.TruncateSecret(subject), class, w.count, limit)
	}

	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   w.start.Add(windowSize),
	}
}

// Record unconditionally counts an action against the window. It is the
// commit half when check and commit must be decoupled.
func (l *Limiter) Record(subject string, class ActionClass) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	l.freshWindow(subject, class, now).count++
}

// freshWindow returns the window for the key, lazily resetting it when it
// is older than the window size. Caller holds l.mu.
func (l *Limiter) freshWindow(subject string, class ActionClass, now time.Time) *window {
	key := windowKey{subject: subject, class: class}
	w, ok := l.windows[key]
	if !ok {
		w = &window{start: now}
		l.windows[key] = w
		return w
	}

	if now.Sub(w.start) >= windowSize {
		w.count = 0
		w.start = now
	}
	return w
}

// Stop terminates the background sweep. Safe to call on nil.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	close(l.stopCh)
	l.done.Wait()
}

func (l *Limiter) sweepLoop() {
	defer l.done.Done()

	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

// sweep evicts windows that are both expired and empty to bound memory.
// Expired windows with a non-zero count are kept; they reset lazily on
// next access and their counts are still useful for introspection until
// then.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	evicted := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= windowSize && w.count == 0 {
			delete(l.windows, key)
			evicted++
		}
	}

	if evicted > 0 {
		logging.Debug("RateLimit", "Swept %d idle rate-limit windows", evicted)
	}
}
