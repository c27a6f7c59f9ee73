package service

import (
	"context"
	"fmt"

	"go-onboard/internal/domain"
	"go-onboard/internal/engine"
)

// OnboardingService is what the presenter adapters talk to. It resolves
// owners to live engine sessions.
type OnboardingService interface {
	Initialize(ctx context.Context, ownerID string, role domain.Role) (engine.State, error)
	CompleteStep(ctx context.Context, ownerID string, step domain.StepID, payload []byte) (engine.State, error)
	GoToStep(ctx context.Context, ownerID string, target domain.StepID) (engine.State, error)
	Reset(ctx context.Context, ownerID string) (engine.State, error)
	State(ctx context.Context, ownerID string) (engine.State, error)
	History(ctx context.Context, ownerID string) ([]domain.ArchivedProgress, error)
}

type onboardingService struct {
	engine *engine.Engine
}

func NewOnboardingService(e *engine.Engine) OnboardingService {
	return &onboardingService{engine: e}
}

func (s *onboardingService) Initialize(ctx context.Context, ownerID string, role domain.Role) (engine.State, error) {
	sess, err := s.engine.Initialize(ctx, ownerID, role)
	if err != nil {
		return engine.State{}, err
	}
	return sess.State(), nil
}

func (s *onboardingService) CompleteStep(ctx context.Context, ownerID string, step domain.StepID, payload []byte) (engine.State, error) {
	sess, err := s.session(ownerID)
	if err != nil {
		return engine.State{}, err
	}
	return sess.CompleteStep(ctx, step, payload)
}

func (s *onboardingService) GoToStep(ctx context.Context, ownerID string, target domain.StepID) (engine.State, error) {
	sess, err := s.session(ownerID)
	if err != nil {
		return engine.State{}, err
	}
	return sess.GoToStep(ctx, target)
}

func (s *onboardingService) Reset(ctx context.Context, ownerID string) (engine.State, error) {
	sess, err := s.session(ownerID)
	if err != nil {
		return engine.State{}, err
	}
	return sess.Reset(ctx)
}

func (s *onboardingService) State(_ context.Context, ownerID string) (engine.State, error) {
	sess, err := s.session(ownerID)
	if err != nil {
		return engine.State{}, err
	}
	return sess.State(), nil
}

func (s *onboardingService) History(ctx context.Context, ownerID string) ([]domain.ArchivedProgress, error) {
	sess, err := s.session(ownerID)
	if err != nil {
		return nil, err
	}
	return sess.History(ctx)
}

// session returns the live session of owner. Operations other than
// Initialize never open one implicitly: the actor role is only known at
// initialization.
func (s *onboardingService) session(ownerID string) (*engine.Session, error) {
	sess, ok := s.engine.Session(ownerID)
	if !ok {
		return nil, domain.NewError(domain.CodeNotFound, "",
			fmt.Sprintf("no onboarding session for %q, initialize first", ownerID))
	}
	return sess, nil
}
