// Package extract orchestrates the strategy fallback chain behind the result
// cache. This is the engine's sole public entry point: a request enters the
// cache, misses run the chain against fresh decoder streams under a shared
// budget, and the aggregated outcome is broadcast to every waiter.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mrms-extract/internal/aggregate"
	"github.com/sells-group/mrms-extract/internal/decoder"
	"github.com/sells-group/mrms-extract/internal/model"
	"github.com/sells-group/mrms-extract/internal/rescache"
	"github.com/sells-group/mrms-extract/internal/strategy"
)

// Request is one extraction request.
type Request struct {
	SourceID string
	Window   model.Window
	MinValue float64
	Budget   model.Budget
}

// FactoryResolver maps an opaque source identity onto a decoder factory. The
// file-acquisition layer behind it is not the engine's concern.
type FactoryResolver func(ctx context.Context, sourceID string) (decoder.Factory, error)

// AttemptHook observes every strategy attempt, win or lose.
type AttemptHook func(sourceID, strategyName string, status model.Status, stats model.Stats, failReason string)

// Engine runs extraction requests through the cache and fallback chain.
type Engine struct {
	resolve    FactoryResolver
	strategies []strategy.Strategy
	cache      *rescache.Cache
	hook       AttemptHook
	scale      float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategies overrides the default chain. Order is priority order.
func WithStrategies(ss ...strategy.Strategy) Option {
	return func(e *Engine) { e.strategies = ss }
}

// WithCache sets the result cache.
func WithCache(c *rescache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithAttemptHook registers the telemetry hook.
func WithAttemptHook(h AttemptHook) Option {
	return func(e *Engine) { e.hook = h }
}

// WithScaleFactor sets the unit conversion applied to matched values.
func WithScaleFactor(f float64) Option {
	return func(e *Engine) { e.scale = f }
}

// NewEngine creates an engine with the standard chain: NativeConstraint, then
// AdaptiveLocate, then FullScan.
func NewEngine(resolve FactoryResolver, opts ...Option) *Engine {
	e := &Engine{
		resolve: resolve,
		strategies: []strategy.Strategy{
			strategy.NewNativeConstraint(),
			strategy.NewAdaptiveLocate(),
			strategy.NewFullScan(),
		},
		cache: rescache.New(15*time.Minute, 2*time.Minute),
		scale: aggregate.MmToInches,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cache exposes the result cache for stats reporting.
func (e *Engine) Cache() *rescache.Cache { return e.cache }

// Extract is synchronous from the caller's perspective: it returns the shared
// outcome of the one in-flight computation for this request's key.
func (e *Engine) Extract(ctx context.Context, req Request) (model.Outcome, error) {
	if err := req.Window.Validate(); err != nil {
		return model.Outcome{}, err
	}

	key := model.Key(req.SourceID, req.Window, req.MinValue)
	out := e.cache.Get(ctx, key, func(ctx context.Context) model.Outcome {
		return e.runChain(ctx, req)
	})
	return out, nil
}

// runChain walks the strategies in priority order under the shared budget.
// A strategy is never retried within one request; only when every attempt
// failed does the request fail, so "found nothing" and "gave up" stay
// distinct outcomes.
func (e *Engine) runChain(ctx context.Context, req Request) model.Outcome {
	start := time.Now()

	if req.Budget.MaxWallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Budget.MaxWallClock)
		defer cancel()
	}

	factory, err := e.resolve(ctx, req.SourceID)
	if err != nil {
		wrapped := eris.Wrapf(model.ErrDecodeUnavailable, "extract: resolve source %s: %v", req.SourceID, err)
		zap.L().Warn("extract: source resolution failed",
			zap.String("source", req.SourceID),
			zap.Error(err),
		)
		return model.Outcome{Status: model.StatusFailed, Reason: wrapped.Error()}
	}

	var lastReason string
	for _, s := range e.strategies {
		sub := e.subBudget(req.Budget, start)
		if req.Budget.MaxWallClock > 0 && sub.MaxWallClock <= 0 {
			lastReason = model.ErrBudgetExceeded.Error()
			break
		}

		out := s.Attempt(ctx, factory, req.Window, sub)
		e.observe(req.SourceID, s.Name(), out)

		switch out.Status {
		case model.StatusSuccess, model.StatusPartialTimeout:
			out.Points = aggregate.Process(out.Points, aggregate.Options{
				MinValue:    req.MinValue,
				ScaleFactor: e.scale,
			})
			return out
		default:
			lastReason = out.Reason
			zap.L().Debug("extract: strategy failed, falling back",
				zap.String("source", req.SourceID),
				zap.String("strategy", s.Name()),
				zap.String("reason", out.Reason),
			)
		}
	}

	reason := model.ErrAllStrategiesExhausted.Error()
	if lastReason != "" {
		reason += ": " + lastReason
	}
	return model.Outcome{
		Status: model.StatusFailed,
		Reason: reason,
		Stats:  model.Stats{Elapsed: time.Since(start)},
	}
}

// subBudget derives a strategy attempt's budget from what the request has
// left. Line and byte caps apply per attempt; wall clock is shared.
func (e *Engine) subBudget(parent model.Budget, start time.Time) model.Budget {
	sub := parent
	if parent.MaxWallClock > 0 {
		sub.MaxWallClock = parent.MaxWallClock - time.Since(start)
	}
	return sub
}

func (e *Engine) observe(sourceID, name string, out model.Outcome) {
	failReason := ""
	if out.Status == model.StatusFailed {
		failReason = out.Reason
	}
	zap.L().Info("extract: strategy attempt",
		zap.String("source", sourceID),
		zap.String("strategy", name),
		zap.String("status", string(out.Status)),
		zap.Int64("lines_scanned", out.Stats.LinesScanned),
		zap.Int("matched", out.Stats.Matched),
		zap.Duration("elapsed", out.Stats.Elapsed),
	)
	if e.hook != nil {
		e.hook(sourceID, name, out.Status, out.Stats, failReason)
	}
}
