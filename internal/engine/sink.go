package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoobzio/capitan"

	"github.com/pedroql/mvflow/internal/bus"
)

// effectSink publishes one dispatch's Effects to the effect observers.
type effectSink[S, A, M, E any] struct {
	engine     *Engine[S, A, M, E]
	logger     Logger
	dispatchID string
}

func (s *effectSink[S, A, M, E]) Send(ctx context.Context, effect E) error {
	s.logger(fmt.Sprintf("Sending external effect %v", effect))

	err := s.engine.effects.Send(ctx, effect)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bus.ErrClosed):
		return NewStoppedError(err)
	case errors.Is(err, bus.ErrRejected):
		s.rejected(effect)
		return NewEffectRejectedError(fmt.Sprintf("%v", effect), err)
	default:
		return err
	}
}

func (s *effectSink[S, A, M, E]) Offer(effect E) bool {
	s.logger(fmt.Sprintf("Offering external effect %v", effect))

	if !s.engine.effects.Offer(effect) {
		s.logger(fmt.Sprintf("Channel rejected effect %v", effect))
		s.rejected(effect)
		return false
	}
	return true
}

func (s *effectSink[S, A, M, E]) rejected(effect E) {
	s.engine.log.Warn("effect rejected",
		"dispatch", s.dispatchID,
		"effect", fmt.Sprintf("%v", effect),
	)
	capitan.Emit(s.engine.ctx, EffectRejected,
		KeyDispatchID.Field(s.dispatchID),
		KeyEffect.Field(fmt.Sprintf("%v", effect)),
	)
}
