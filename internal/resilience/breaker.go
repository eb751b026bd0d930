package resilience

import (
	"sort"
	"sync"
	"time"

	"trialist-agent/internal/common/logger"
	"trialist-agent/internal/common/metrics"
)

type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

func (s BreakerState) gaugeValue() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// BreakerStatus is a point-in-time view of one service's breaker.
type BreakerStatus struct {
	Service      string       `json:"service"`
	State        BreakerState `json:"state"`
	FailureCount int          `json:"failure_count"`
	LastFailure  *time.Time   `json:"last_failure,omitempty"`
}

type breaker struct {
	cfg         BreakerConfig
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// Breakers tracks one circuit breaker per service name. Breakers are created
// lazily and never share counters. Safe for concurrent use.
type Breakers struct {
	mu        sync.Mutex
	defaults  BreakerConfig
	overrides map[string]BreakerConfig
	breakers  map[string]*breaker
	now       func() time.Time
	logger    logger.Logger
}

type BreakerOption func(*Breakers)

func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breakers) { b.now = now }
}

// WithServiceConfig overrides threshold and recovery for one service.
func WithServiceConfig(service string, cfg BreakerConfig) BreakerOption {
	return func(b *Breakers) { b.overrides[service] = cfg }
}

func NewBreakers(defaults BreakerConfig, log logger.Logger, opts ...BreakerOption) *Breakers {
	if defaults.FailureThreshold < 1 {
		defaults.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	b := &Breakers{
		defaults:  defaults,
		overrides: make(map[string]BreakerConfig),
		breakers:  make(map[string]*breaker),
		now:       time.Now,
		logger:    log.WithFields(map[string]interface{}{"component": "circuit_breaker"}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register declares a known service so its first availability check is not
// reported as unknown.
func (b *Breakers) Register(services ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range services {
		b.getLocked(s)
	}
}

// IsAvailable reports whether a call to service may proceed. An open breaker
// whose recovery timeout has elapsed moves to half-open here; there is no
// background timer. Unknown services fail open.
func (b *Breakers) IsAvailable(service string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	br, ok := b.breakers[service]
	if !ok {
		b.logger.Warn("availability check for unknown service, allowing call", map[string]interface{}{
			"service": service,
		})
		b.getLocked(service)
		return true
	}

	switch br.state {
	case StateOpen:
		if b.now().Sub(br.lastFailure) < br.cfg.RecoveryTimeout {
			return false
		}
		b.transitionLocked(service, br, StateHalfOpen)
		return true
	default:
		return true
	}
}

func (b *Breakers) RecordSuccess(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.getLocked(service)
	br.failures = 0
	if br.state != StateClosed {
		b.transitionLocked(service, br, StateClosed)
	}
}

func (b *Breakers) RecordFailure(service string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br := b.getLocked(service)
	br.lastFailure = b.now()

	switch br.state {
	case StateHalfOpen:
		// the trial call failed: reopen with a fresh countdown
		br.failures = 0
		b.transitionLocked(service, br, StateOpen)
	case StateClosed:
		br.failures++
		if br.failures >= br.cfg.FailureThreshold {
			b.transitionLocked(service, br, StateOpen)
		}
	case StateOpen:
		br.failures++
	}
}

func (b *Breakers) Status(service string) BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusLocked(service, b.getLocked(service))
}

// Statuses returns every tracked breaker ordered by service name.
func (b *Breakers) Statuses() []BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]BreakerStatus, 0, len(b.breakers))
	for name, br := range b.breakers {
		out = append(out, b.statusLocked(name, br))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

func (b *Breakers) statusLocked(service string, br *breaker) BreakerStatus {
	st := BreakerStatus{Service: service, State: br.state, FailureCount: br.failures}
	if !br.lastFailure.IsZero() {
		ts := br.lastFailure
		st.LastFailure = &ts
	}
	return st
}

func (b *Breakers) getLocked(service string) *breaker {
	br, ok := b.breakers[service]
	if ok {
		return br
	}
	cfg := b.defaults
	if o, ok := b.overrides[service]; ok {
		if o.FailureThreshold > 0 {
			cfg.FailureThreshold = o.FailureThreshold
		}
		if o.RecoveryTimeout > 0 {
			cfg.RecoveryTimeout = o.RecoveryTimeout
		}
	}
	br = &breaker{cfg: cfg, state: StateClosed}
	b.breakers[service] = br
	metrics.BreakerState.WithLabelValues(service).Set(StateClosed.gaugeValue())
	return br
}

func (b *Breakers) transitionLocked(service string, br *breaker, to BreakerState) {
	from := br.state
	br.state = to

	metrics.BreakerState.WithLabelValues(service).Set(to.gaugeValue())
	metrics.BreakerTransitions.WithLabelValues(service, string(to)).Inc()

	fields := map[string]interface{}{
		"service":  service,
		"from":     string(from),
		"to":       string(to),
		"failures": br.failures,
	}
	if to == StateOpen {
		b.logger.Warn("circuit opened", fields)
		return
	}
	b.logger.Info("circuit state changed", fields)
}
