package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"

	"go-onboard/internal/core/ports"
	"go-onboard/internal/domain"
	"go-onboard/internal/metrics"
	"go-onboard/internal/registry"
)

// Engine owns one Session per owner and mediates every read and write of
// progress records between presenters, the guard and the store.
type Engine struct {
	reg     *registry.Registry
	store   ports.ProgressStore
	bus     ports.EventBus
	gates   Gates
	logger  *slog.Logger
	metrics metrics.EngineMetrics
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	loads    singleflight.Group
}

// New builds an engine over reg and store.
func New(reg *registry.Registry, store ports.ProgressStore, opts ...Option) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("engine: registry is required")
	}
	if store == nil {
		return nil, errors.New("engine: progress store is required")
	}

	e := &Engine{
		reg:      reg,
		store:    store,
		logger:   slog.Default(),
		metrics:  metrics.Nop{},
		tracer:   noop.NewTracerProvider().Tracer("onboarding"),
		timeout:  DefaultStoreTimeout,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Registry returns the step catalog the engine runs on.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Initialize loads or creates the owner's progress and returns its
// session. Calling it again for a live session returns the same session
// with its state untouched; only the actor role is refreshed.
func (e *Engine) Initialize(ctx context.Context, ownerID string, role domain.Role) (*Session, error) {
	if ownerID == "" {
		return nil, errors.New("engine: owner id is required")
	}

	ctx, span := e.startSpan(ctx, "engine.Initialize", ownerID)
	defer span.End()

	if s, ok := e.Session(ownerID); ok {
		s.setRole(role)
		return s, nil
	}

	v, err, _ := e.loads.Do(ownerID, func() (any, error) {
		if s, ok := e.Session(ownerID); ok {
			return s, nil
		}
		s, err := e.open(ctx, ownerID, role)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.sessions[ownerID] = s
		e.mu.Unlock()
		e.metrics.SessionOpened()
		return s, nil
	})
	if err != nil {
		endSpan(span, err)
		e.metrics.ObserveTransition(string(domain.OpInitialize), outcomeOf(err))
		return nil, err
	}

	s := v.(*Session)
	s.setRole(role)
	return s, nil
}

// open loads the owner's record, creating and persisting the initial one
// on first entry, and validates it against the registry.
func (e *Engine) open(ctx context.Context, ownerID string, role domain.Role) (*Session, error) {
	rec, err := storeCall(ctx, e, "load", func(ctx context.Context) (*domain.ProgressRecord, error) {
		return e.store.Load(ctx, ownerID)
	})

	created := false
	switch {
	case errors.Is(err, domain.ErrNotFound):
		rec = domain.NewProgressRecord(ownerID, e.reg.First(), e.now())
		if err := e.save(ctx, rec); err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, err
	}

	if err := e.validate(rec); err != nil {
		return nil, err
	}
	effective, err := e.reg.StepsFrom(rec.CurrentStep)
	if err != nil {
		return nil, err
	}

	s := newSession(e, ownerID, &snapshot{record: rec, effective: effective, role: role})
	s.emit(ctx, domain.OpInitialize, rec.CurrentStep, s.current())

	e.logger.Info("onboarding session opened",
		"owner_id", ownerID,
		"current_step", rec.CurrentStep,
		"created", created,
	)
	e.metrics.ObserveTransition(string(domain.OpInitialize), metrics.OutcomeAccepted)
	return s, nil
}

// validate rejects records that reference steps outside the registry.
func (e *Engine) validate(rec *domain.ProgressRecord) error {
	if !e.reg.Has(rec.CurrentStep) {
		return domain.NewError(domain.CodeUnknownStep, rec.CurrentStep,
			fmt.Sprintf("stored current step %q is not registered", rec.CurrentStep))
	}
	for _, id := range rec.CompletedSteps {
		if !e.reg.Has(id) {
			return domain.NewError(domain.CodeUnknownStep, id,
				fmt.Sprintf("stored completed step %q is not registered", id))
		}
	}
	return nil
}

// Session returns the live session of owner, if any.
func (e *Engine) Session(ownerID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[ownerID]
	return s, ok
}

// Release drops the owner's session from memory and closes its
// subscriptions. The next Initialize reloads from the store.
func (e *Engine) Release(ownerID string) {
	e.mu.Lock()
	s, ok := e.sessions[ownerID]
	delete(e.sessions, ownerID)
	e.mu.Unlock()

	if ok {
		e.drop(s)
	}
}

func (e *Engine) drop(s *Session) {
	s.closeSubscribers()
	e.metrics.SessionReleased()
}

// EvictIdle releases every session unused for at least idle. Sessions
// with an operation in flight are skipped. It returns the number evicted.
func (e *Engine) EvictIdle(idle time.Duration) int {
	cutoff := e.now().Add(-idle)

	e.mu.Lock()
	var evicted []*Session
	for owner, s := range e.sessions {
		if s.lastUsed().After(cutoff) || !s.mu.TryLock() {
			continue
		}
		delete(e.sessions, owner)
		s.mu.Unlock()
		evicted = append(evicted, s)
	}
	e.mu.Unlock()

	for _, s := range evicted {
		e.drop(s)
		e.logger.Debug("onboarding session evicted", "owner_id", s.ownerID)
	}
	return len(evicted)
}

// RunEvictor calls EvictIdle every interval until ctx is cancelled.
func (e *Engine) RunEvictor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.EvictIdle(idle); n > 0 {
				e.logger.Info("evicted idle onboarding sessions", "count", n)
			}
		}
	}
}

func (e *Engine) save(ctx context.Context, rec *domain.ProgressRecord) error {
	_, err := storeCall(ctx, e, "save", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.Save(ctx, rec)
	})
	return err
}

// storeCall runs f with the store timeout and converts failures into
// StorageError or StorageTimeout. f runs on its own goroutine so a backend
// that ignores ctx cannot hold the engine past the deadline. Its result is
// only read back through the channel. An abandoned write may still land
// later; stores reject it unless its version is newer than theirs.
func storeCall[T any](ctx context.Context, e *Engine, op string, f func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	var out T
	err := e.metrics.TrackStore(op, func() error {
		go func() {
			v, err := f(ctx)
			done <- result{val: v, err: err}
		}()
		select {
		case r := <-done:
			out = r.val
			return r.err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	var zero T
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, domain.ErrNotFound):
		return zero, err
	case errors.Is(err, domain.ErrVersionConflict):
		e.logger.Warn("progress store rejected stale write", "op", op, "error", err)
		return zero, err
	case errors.Is(err, context.DeadlineExceeded):
		e.logger.Warn("progress store timed out", "op", op, "timeout", e.timeout)
		return zero, domain.StorageTimeout(op, err)
	default:
		e.logger.Error("progress store failed", "op", op, "error", err)
		return zero, domain.StorageError(op, err)
	}
}

func (e *Engine) startSpan(ctx context.Context, name, ownerID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("owner_id", ownerID))
	return e.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeAccepted
	case domain.IsDenial(err), errors.Is(err, domain.ErrUnknownStep):
		return metrics.OutcomeDenied
	default:
		return metrics.OutcomeFailed
	}
}
