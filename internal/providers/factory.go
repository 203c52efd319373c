package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
	"github.com/dancingpatinacao/checkout/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the per-provider circuit breakers.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	return s
}

// Breaker guards calls to one provider.
type Breaker = gobreaker.CircuitBreaker[*RawResponse]

// Factory holds the registered providers and their circuit breakers.
type Factory struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	circuitBreakers map[string]*Breaker
	settings        BreakerSettings
	metrics         *observability.Metrics
}

func NewFactory(settings BreakerSettings, metrics *observability.Metrics, providersList ...Provider) *Factory {
	f := &Factory{
		providers:       make(map[string]Provider),
		circuitBreakers: make(map[string]*Breaker),
		settings:        settings.withDefaults(),
		metrics:         metrics,
	}
	for _, p := range providersList {
		f.Register(p)
	}
	return f
}

func (f *Factory) Register(p Provider) {
	name := p.Name()
	breaker := gobreaker.NewCircuitBreaker[*RawResponse](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     f.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= f.settings.ConsecutiveFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if f.metrics != nil {
				f.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			}
		},
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[name] = p
	f.circuitBreakers[name] = breaker
	if f.metrics != nil {
		f.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(gobreaker.StateClosed))
	}
}

func (f *Factory) Get(name string) (Provider, *Breaker, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.providers[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q: %w", name, domainErrors.ErrProviderNotFound)
	}
	return p, f.circuitBreakers[name], nil
}

// Names lists the registered providers in order.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.providers))
	for n := range f.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StatusChecker returns the provider's status lookup, if it has one.
func (f *Factory) StatusChecker(name string) (StatusChecker, error) {
	p, _, err := f.Get(name)
	if err != nil {
		return nil, err
	}
	sc, ok := p.(StatusChecker)
	if !ok {
		return nil, fmt.Errorf("provider %q cannot report status: %w", name, domainErrors.ErrProviderNotConfigured)
	}
	return sc, nil
}

// countsAsSuccess keeps client-side rejections (4xx) and configuration
// problems from tripping the breaker. Only transport failures and provider
// 5xx answers count against the provider.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ue *domainErrors.UpstreamError
	if errors.As(err, &ue) {
		if errors.Is(ue, domainErrors.ErrProviderRejected) {
			return ue.StatusCode < 500
		}
		return false
	}
	return true
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerError maps gobreaker's rejections to ErrProviderUnavailable and
// passes other errors through.
func BreakerError(provider string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domainErrors.NewUpstreamError(provider, domainErrors.ErrProviderUnavailable, 0, "", err)
	}
	return err
}
