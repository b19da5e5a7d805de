package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"trackgate/internal/domain/connector"
	"trackgate/internal/utils/platformerrors"
)

// State of a circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config defines when a platform circuit opens and recovers.
type Config struct {
	Enabled          bool
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes to close from half-open
	Timeout          time.Duration // open duration before probing
	MaxHalfOpenCalls int           // concurrent probes in half-open
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		FailureThreshold: 10,
		SuccessThreshold: 3,
		Timeout:          30 * time.Second,
		MaxHalfOpenCalls: 5,
	}
}

// Breaker tracks failures against one external platform and short-circuits
// calls while the platform is considered down.
type Breaker struct {
	cfg      Config
	platform connector.Platform

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	lastFailure   time.Time
	halfOpenCalls int
	now           func() time.Time
}

func New(platform connector.Platform, cfg Config) *Breaker {
	return &Breaker{
		cfg:      cfg,
		platform: platform,
		state:    StateClosed,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// State reports the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Enabled {
		return true
	}

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) > b.cfg.Timeout {
			log.Info().Str("platform", string(b.platform)).Msg("circuit transitioning to half-open")
			b.state = StateHalfOpen
			b.successes = 0
			b.halfOpenCalls = 1
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.MaxHalfOpenCalls {
			return false
		}
		b.halfOpenCalls++
		return true
	default:
		return false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Enabled {
		return
	}

	if b.state == StateHalfOpen {
		b.halfOpenCalls--
	}

	if err == nil {
		switch b.state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				log.Info().Str("platform", string(b.platform)).Msg("circuit closed after recovery")
				b.state = StateClosed
				b.failures = 0
			}
		}
		return
	}

	// Typed rejections from the adapter (unsupported capability, bad
	// reference) are caller mistakes, not platform outages.
	if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotSupported) {
		return
	}

	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			log.Warn().
				Str("platform", string(b.platform)).
				Int("failures", b.failures).
				Msg("circuit opened")
			b.state = StateOpen
		}
	case StateHalfOpen:
		log.Warn().Str("platform", string(b.platform)).Msg("probe failed, circuit reopened")
		b.state = StateOpen
	}
}

func (b *Breaker) openError(ctx context.Context) error {
	e := platformerrors.NewErrorWithContext(ctx, platformerrors.LayerConnector,
		platformerrors.ErrorTypeAdapterFailure,
		string(b.platform)+" is unavailable: circuit open", nil,
		map[string]any{"platform": string(b.platform), "circuit": "open"})
	e.RetryAfter = b.cfg.Timeout
	return e
}

// Wrapped decorates an adapter with a circuit breaker. All capabilities
// share one circuit: the platform is either reachable or it is not.
type Wrapped struct {
	inner   connector.Adapter
	breaker *Breaker
}

func Wrap(inner connector.Adapter, cfg Config) *Wrapped {
	return &Wrapped{
		inner:   inner,
		breaker: New(inner.Platform(), cfg),
	}
}

func (w *Wrapped) Platform() connector.Platform { return w.inner.Platform() }

// Breaker exposes the underlying circuit. Test hook.
func (w *Wrapped) Breaker() *Breaker { return w.breaker }

func (w *Wrapped) Search(ctx context.Context, q connector.SearchQuery) ([]connector.Entity, error) {
	if !w.breaker.allow() {
		return nil, w.breaker.openError(ctx)
	}
	entities, err := w.inner.Search(ctx, q)
	w.breaker.record(err)
	return entities, err
}

func (w *Wrapped) Get(ctx context.Context, id string) (*connector.Entity, error) {
	if !w.breaker.allow() {
		return nil, w.breaker.openError(ctx)
	}
	entity, err := w.inner.Get(ctx, id)
	w.breaker.record(err)
	return entity, err
}

func (w *Wrapped) Create(ctx context.Context, fields connector.Fields) (*connector.Entity, error) {
	if !w.breaker.allow() {
		return nil, w.breaker.openError(ctx)
	}
	entity, err := w.inner.Create(ctx, fields)
	w.breaker.record(err)
	return entity, err
}

func (w *Wrapped) Update(ctx context.Context, id string, fields connector.Fields) (*connector.Entity, error) {
	if !w.breaker.allow() {
		return nil, w.breaker.openError(ctx)
	}
	entity, err := w.inner.Update(ctx, id, fields)
	w.breaker.record(err)
	return entity, err
}

func (w *Wrapped) Transition(ctx context.Context, id string, target connector.Status) (*connector.Entity, error) {
	if !w.breaker.allow() {
		return nil, w.breaker.openError(ctx)
	}
	entity, err := w.inner.Transition(ctx, id, target)
	w.breaker.record(err)
	return entity, err
}

func (w *Wrapped) Comment(ctx context.Context, id, text string) error {
	if !w.breaker.allow() {
		return w.breaker.openError(ctx)
	}
	err := w.inner.Comment(ctx, id, text)
	w.breaker.record(err)
	return err
}

func (w *Wrapped) Link(ctx context.Context, id, otherID, relation string) error {
	if !w.breaker.allow() {
		return w.breaker.openError(ctx)
	}
	err := w.inner.Link(ctx, id, otherID, relation)
	w.breaker.record(err)
	return err
}

var _ connector.Adapter = (*Wrapped)(nil)
