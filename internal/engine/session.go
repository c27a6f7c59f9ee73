package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"go-onboard/internal/domain"
	"go-onboard/internal/guard"
	"go-onboard/internal/metrics"
)

// DefaultSubscriberBuffer is the channel size used when Subscribe gets a
// non-positive buffer.
const DefaultSubscriberBuffer = 8

// Session is the single writer of one owner's progress record. Mutating
// operations are serialized on mu, so a second call observes the state the
// first one produced before its guard runs. Reads go through an atomic
// snapshot and never block.
type Session struct {
	engine  *Engine
	ownerID string

	mu       sync.Mutex
	snap     atomic.Pointer[snapshot]
	lastSeen atomic.Int64

	subsMu  sync.Mutex
	subs    map[int]chan State
	nextSub int
}

func newSession(e *Engine, ownerID string, initial *snapshot) *Session {
	s := &Session{
		engine:  e,
		ownerID: ownerID,
		subs:    make(map[int]chan State),
	}
	s.snap.Store(initial)
	s.touch()
	return s
}

func (s *Session) current() *snapshot { return s.snap.Load() }

func (s *Session) touch() { s.lastSeen.Store(s.engine.now().UnixNano()) }

func (s *Session) lastUsed() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// OwnerID returns the owner this session belongs to.
func (s *Session) OwnerID() string { return s.ownerID }

// Role returns the actor role used for guard checks.
func (s *Session) Role() domain.Role { return s.current().role }

// setRole swaps the role into the current snapshot without taking the
// mutation lock, so a repeated Initialize never waits on a store call.
func (s *Session) setRole(role domain.Role) {
	s.touch()
	for {
		cur := s.current()
		if cur.role == role {
			return
		}
		next := *cur
		next.role = role
		if s.snap.CompareAndSwap(cur, &next) {
			return
		}
	}
}

// publish makes next the current snapshot. The role is taken from whatever
// is current at that moment, so a setRole racing a mutation is kept.
func (s *Session) publish(next *snapshot) {
	for {
		cur := s.current()
		next.role = cur.role
		if s.snap.CompareAndSwap(cur, next) {
			return
		}
	}
}

// State returns the latest accepted state.
func (s *Session) State() State {
	s.touch()
	return s.current().state()
}

// Progress returns the derived completion figures.
func (s *Session) Progress() Progress {
	cur := s.current()
	return computeProgress(cur.record, cur.effective)
}

// Record returns a copy of the full progress record, payloads included.
func (s *Session) Record() *domain.ProgressRecord { return s.current().record.Clone() }

// CompleteStep stores payload for step, marks it completed and advances to
// the next step of the effective sequence. step must be the current step,
// which makes a retried completion a NotCurrentStep denial instead of a
// second application.
func (s *Session) CompleteStep(ctx context.Context, step domain.StepID, payload []byte) (State, error) {
	e := s.engine
	ctx, span := e.startSpan(ctx, "engine.CompleteStep", s.ownerID, attribute.String("step", string(step)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	cur := s.current()
	st, err := s.completeLocked(ctx, cur, step, payload)
	endSpan(span, err)
	e.metrics.ObserveTransition(string(domain.OpComplete), outcomeOf(err))
	return st, err
}

func (s *Session) completeLocked(ctx context.Context, cur *snapshot, step domain.StepID, payload []byte) (State, error) {
	e := s.engine
	rec := cur.record

	if rec.IsFrozen() {
		return s.deny(cur, domain.OpComplete, domain.NewError(domain.CodeWorkflowFrozen, step, "onboarding is already completed"))
	}
	if !e.reg.Has(step) {
		return s.deny(cur, domain.OpComplete, domain.NewError(domain.CodeUnknownStep, step, fmt.Sprintf("step %q is not registered", step)))
	}
	if step != rec.CurrentStep {
		return s.deny(cur, domain.OpComplete, domain.NewError(domain.CodeNotCurrentStep, step,
			fmt.Sprintf("step %q is not active, current step is %q", step, rec.CurrentStep)))
	}

	if len(payload) == 0 {
		payload = []byte("{}")
	}
	if !json.Valid(payload) {
		return s.deny(cur, domain.OpComplete, domain.NewError(domain.CodeInvalidPayload, step, "payload is not valid JSON"))
	}
	if err := e.gates.check(ctx, step, payload); err != nil {
		return s.deny(cur, domain.OpComplete, err)
	}

	next := rec.Clone()
	next.StepPayloads[step] = datatypes.JSON(slices.Clone(payload))
	if !next.IsCompleted(step) {
		next.CompletedSteps = append(next.CompletedSteps, step)
	}
	next.LastCompleted = step
	next.CurrentStep = nextStep(cur.effective, e.reg.Steps(), step)
	next.Version++
	next.LastUpdated = e.now()

	return s.commit(ctx, cur, domain.OpComplete, &snapshot{record: next, effective: cur.effective, role: cur.role})
}

// GoToStep moves the current step to target if the guard allows it.
// Completed steps are left as they are in either direction.
func (s *Session) GoToStep(ctx context.Context, target domain.StepID) (State, error) {
	e := s.engine
	ctx, span := e.startSpan(ctx, "engine.GoToStep", s.ownerID, attribute.String("target", string(target)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	cur := s.current()
	st, err := s.goToLocked(ctx, cur, target)
	endSpan(span, err)
	e.metrics.ObserveTransition(string(domain.OpGoTo), outcomeOf(err))
	return st, err
}

func (s *Session) goToLocked(ctx context.Context, cur *snapshot, target domain.StepID) (State, error) {
	e := s.engine

	decision := guard.CanTransition(e.reg, cur.record, target, cur.role)
	if !decision.Allowed {
		return s.deny(cur, domain.OpGoTo, decision.Err())
	}
	if decision.Direction == guard.DirectionNone {
		return cur.state(), nil
	}

	effective := cur.effective
	if !slices.Contains(effective, target) {
		var err error
		if effective, err = e.reg.StepsFrom(target); err != nil {
			return s.deny(cur, domain.OpGoTo, err)
		}
	}

	next := cur.record.Clone()
	next.CurrentStep = target
	next.Version++
	next.LastUpdated = e.now()

	return s.commit(ctx, cur, domain.OpGoTo, &snapshot{record: next, effective: effective, role: cur.role})
}

// Reset archives the current record and starts over from the first step.
// It is the only operation accepted on a frozen session.
func (s *Session) Reset(ctx context.Context) (State, error) {
	e := s.engine
	ctx, span := e.startSpan(ctx, "engine.Reset", s.ownerID)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.touch()

	cur := s.current()
	reason := domain.ArchiveReasonReset
	if cur.record.IsFrozen() {
		reason = domain.ArchiveReasonCompleted
	}

	// The fresh record continues the version sequence so the store can
	// still order it against writes of the previous run.
	fresh := domain.NewProgressRecord(s.ownerID, e.reg.First(), e.now())
	fresh.Version = cur.record.Version + 1

	_, err := storeCall(ctx, e, "reset", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.Reset(ctx, fresh, reason)
	})
	if err != nil {
		endSpan(span, err)
		e.metrics.ObserveTransition(string(domain.OpReset), metrics.OutcomeFailed)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.resync(ctx)
			return s.State(), err
		}
		return cur.state(), err
	}

	next := &snapshot{record: fresh, effective: e.reg.Steps()}
	s.publish(next)
	s.emit(ctx, domain.OpReset, cur.record.CurrentStep, next)
	e.metrics.ObserveTransition(string(domain.OpReset), metrics.OutcomeAccepted)
	return next.state(), nil
}

// History lists the owner's archived records, newest first.
func (s *Session) History(ctx context.Context) ([]domain.ArchivedProgress, error) {
	s.touch()
	return storeCall(ctx, s.engine, "history", func(ctx context.Context) ([]domain.ArchivedProgress, error) {
		return s.engine.store.History(ctx, s.ownerID)
	})
}

// commit persists next and only then makes it the current snapshot. On a
// store failure the session keeps cur. A version conflict means the store
// holds newer progress than the session, which then reloads it.
func (s *Session) commit(ctx context.Context, cur *snapshot, op domain.TransitionOp, next *snapshot) (State, error) {
	if err := s.engine.save(ctx, next.record); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			s.resync(ctx)
			return s.State(), err
		}
		return cur.state(), err
	}

	s.publish(next)
	s.emit(ctx, op, cur.record.CurrentStep, next)
	return next.state(), nil
}

// resync replaces the snapshot with the stored record. Called with s.mu
// held. If the reload fails the session keeps its snapshot and the next
// write conflicts again.
func (s *Session) resync(ctx context.Context) {
	e := s.engine
	rec, err := storeCall(ctx, e, "load", func(ctx context.Context) (*domain.ProgressRecord, error) {
		return e.store.Load(ctx, s.ownerID)
	})
	if err == nil {
		err = e.validate(rec)
	}
	if err != nil {
		e.logger.Warn("failed to reload onboarding progress", "owner_id", s.ownerID, "error", err)
		return
	}

	cur := s.current()
	effective := cur.effective
	if !slices.Contains(effective, rec.CurrentStep) {
		if effective, err = e.reg.StepsFrom(rec.CurrentStep); err != nil {
			return
		}
	}

	next := &snapshot{record: rec, effective: effective}
	s.publish(next)
	s.notify(next.state())
	e.logger.Info("onboarding progress reloaded from store",
		"owner_id", s.ownerID,
		"current_step", rec.CurrentStep,
		"version", rec.Version,
	)
}

func (s *Session) deny(cur *snapshot, op domain.TransitionOp, err error) (State, error) {
	s.engine.logger.Debug("onboarding transition denied",
		"owner_id", s.ownerID,
		"op", op,
		"current_step", cur.record.CurrentStep,
		"reason", domain.CodeOf(err),
	)
	return cur.state(), err
}

// emit pushes the new state to local subscribers and, when configured, to
// the event bus. Bus failures are logged: the transition is already durable.
func (s *Session) emit(ctx context.Context, op domain.TransitionOp, from domain.StepID, next *snapshot) {
	e := s.engine
	st := next.state()

	e.logger.Info("onboarding step changed",
		"owner_id", s.ownerID,
		"op", op,
		"from", from,
		"to", st.CurrentStep,
		"version", st.Version,
	)

	s.notify(st)

	if e.bus == nil {
		return
	}
	event := domain.NewStepChangedEvent(s.ownerID, op, from, st.CurrentStep, st.Version, e.now())
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if err := e.bus.PublishStepChanged(pubCtx, event); err != nil {
		e.logger.Warn("failed to publish step change", "owner_id", s.ownerID, "error", err)
	}
}

// Subscribe returns a channel that receives the current state immediately
// and every accepted state after it. When the buffer is full the oldest
// pending state is dropped so the engine never blocks on a slow reader.
func (s *Session) Subscribe(buffer int) (<-chan State, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan State, buffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.State()
	s.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (s *Session) notify(st State) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, ch := range s.subs {
		for {
			select {
			case ch <- st:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
