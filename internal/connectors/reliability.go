package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/compliance-audit-engine/internal/domain"
	"golang.org/x/time/rate"
)

type ReliabilityConfig struct {
	Name          string
	RatePerSecond float64
	Burst         int
	Attempts      uint
	RetryDelay    time.Duration
	CallTimeout   time.Duration

	// Circuit Breaker
	CBMaxRequests uint32
	CBInterval    time.Duration
	CBTimeout     time.Duration
	CBMaxFailures uint32

	// OnStateChange — для gauge состояния предохранителя (0=closed, 1=half-open, 2=open)
	OnStateChange func(state gobreaker.State)
}

func (c ReliabilityConfig) withDefaults() ReliabilityConfig {
	if c.Name == "" {
		c.Name = "maintenance"
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 50
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	if c.CBMaxRequests == 0 {
		c.CBMaxRequests = 3
	}
	if c.CBInterval <= 0 {
		c.CBInterval = 5 * time.Second
	}
	if c.CBTimeout <= 0 {
		c.CBTimeout = 30 * time.Second
	}
	if c.CBMaxFailures == 0 {
		c.CBMaxFailures = 5
	}
	return c
}

// ReliabilityWrapper — rate limit, circuit breaker и retry вокруг любого WorkOrderSink.
type ReliabilityWrapper struct {
	next    WorkOrderSink
	cfg     ReliabilityConfig
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliabilityWrapper(next WorkOrderSink, cfg ReliabilityConfig) *ReliabilityWrapper {
	cfg = cfg.withDefaults()

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Больше N ошибок подряд — открываемся, модуль обслуживания не добиваем
			return counts.ConsecutiveFailures >= cfg.CBMaxFailures
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(to)
			}
		},
	})

	return &ReliabilityWrapper{
		next:    next,
		cfg:     cfg,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

func (w *ReliabilityWrapper) State() gobreaker.State {
	return w.cb.State()
}

func (w *ReliabilityWrapper) Submit(ctx context.Context, req domain.RemediationRequest) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(w.cfg.Attempts),
			retry.Delay(w.cfg.RetryDelay),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Модуль обслуживания сам сказал, когда повторить
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				// В остальных случаях — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, w.cfg.CallTimeout)
			defer cancel()
			return w.next.Submit(tCtx, req)
		})
	})
	return err
}
