package cli

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"

	"github.com/pedroql/mvflow/internal/engine"
)

var (
	signalLog   atomic.Pointer[slog.Logger]
	signalHooks sync.Once
)

// bridgeSignals forwards engine diagnostic signals to l. Hooks are process
// global, so they are installed once and read the most recent logger.
func bridgeSignals(l *slog.Logger) {
	signalLog.Store(l)
	signalHooks.Do(func() {
		hook := func(sig capitan.Signal, name string, level slog.Level) {
			capitan.Hook(sig, func(ctx context.Context, e *capitan.Event) {
				if l := signalLog.Load(); l != nil {
					l.Log(ctx, level, name, eventAttrs(e)...)
				}
			})
		}
		hook(engine.HandlerFailed, "mvflow.handler.failed", slog.LevelWarn)
		hook(engine.ReducerFailed, "mvflow.reducer.failed", slog.LevelError)
		hook(engine.EffectRejected, "mvflow.effect.rejected", slog.LevelWarn)
		hook(engine.ObserverDropped, "mvflow.observer.dropped", slog.LevelWarn)
		hook(engine.ViewAttached, "mvflow.view.attached", slog.LevelDebug)
		hook(engine.ViewDetached, "mvflow.view.detached", slog.LevelDebug)
	})
}

func eventAttrs(e *capitan.Event) []any {
	var attrs []any
	if v, ok := engine.KeyDispatchID.From(e); ok {
		attrs = append(attrs, "dispatch", v)
	}
	if v, ok := engine.KeyAction.From(e); ok {
		attrs = append(attrs, "action", v)
	}
	if v, ok := engine.KeyMutation.From(e); ok {
		attrs = append(attrs, "mutation", v)
	}
	if v, ok := engine.KeyEffect.From(e); ok {
		attrs = append(attrs, "effect", v)
	}
	if v, ok := engine.KeyStream.From(e); ok {
		attrs = append(attrs, "stream", v)
	}
	if v, ok := engine.KeyValue.From(e); ok {
		attrs = append(attrs, "value", v)
	}
	if v, ok := engine.KeyError.From(e); ok {
		attrs = append(attrs, "error", v)
	}
	return attrs
}
