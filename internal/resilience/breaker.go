// Package resilience keeps the API usable when the bid store is flaky: a
// retry policy for startup connections and a breaker that fails queries fast
// while the store is down.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is a breaker position.
type State int

const (
	// Closed passes every statement through.
	Closed State = iota
	// Open rejects statements without touching the store.
	Open
	// Probing lets one statement through to test whether the store is back.
	Probing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Probing:
		return "probing"
	default:
		return "unknown"
	}
}

// ErrOpen is returned for statements rejected by an open breaker.
var ErrOpen = eris.New("store circuit breaker is open")

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive store failures that opens the
	// breaker.
	Threshold int
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
	// Trips decides which errors count as store failures. Nil uses
	// IsTransient, so empty results and bad statements never open it.
	Trips func(error) bool
	// OnStateChange observes transitions. It runs under the breaker lock.
	OnStateChange func(from, to State)
}

// DefaultBreakerConfig opens after five failures and probes after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second}
}

// Ticket is handed out by Allow and names the breaker generation the
// statement was admitted under. A new generation starts each time the
// breaker opens.
type Ticket uint64

// Breaker guards one store connection.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	gen      uint64
}

// NewBreaker returns a closed breaker. Zero config fields take the defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Trips == nil {
		cfg.Trips = IsTransient
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// State reports the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.cooled() {
		return Probing
	}
	return b.state
}

// Failures is the current run of consecutive store failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Allow reserves a slot for one statement. Every nil error must be paired
// with a Record call carrying the returned ticket.
func (b *Breaker) Allow() (Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := Ticket(b.gen)
	switch b.state {
	case Open:
		if !b.cooled() {
			return t, ErrOpen
		}
		b.move(Probing)
		b.probing = true
		return t, nil
	case Probing:
		if b.probing {
			return t, ErrOpen
		}
		b.probing = true
		return t, nil
	default:
		return t, nil
	}
}

// Record reports the outcome of a statement admitted by Allow. Outcomes of
// statements admitted before the breaker last opened are dropped.
func (b *Breaker) Record(t Ticket, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if uint64(t) != b.gen {
		return
	}

	if err == nil || !b.cfg.Trips(err) {
		b.failures = 0
		b.probing = false
		if b.state != Closed {
			b.move(Closed)
		}
		return
	}

	b.failures++
	switch b.state {
	case Probing:
		b.probing = false
		b.trip()
	case Closed:
		if b.failures >= b.cfg.Threshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.gen++
	b.openedAt = b.now()
	b.move(Open)
}

func (b *Breaker) cooled() bool {
	return b.now().Sub(b.openedAt) >= b.cfg.Cooldown
}

func (b *Breaker) move(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnStateChange != nil && from != to {
		b.cfg.OnStateChange(from, to)
	}
}
