package engine

import "github.com/zoobzio/capitan"

// Engine diagnostic signals. Emitted alongside log output so operators can
// hook failures without parsing messages.
var (
	// HandlerFailed is emitted when a Handler sequence ends with an error or panics.
	HandlerFailed = capitan.NewSignal(
		"mvflow.handler.failed",
		"Handler failed; dispatch dropped",
	)

	// ReducerFailed is emitted once when the Reducer panics and folding halts.
	ReducerFailed = capitan.NewSignal(
		"mvflow.reducer.failed",
		"Reducer panicked; state folding halted",
	)

	// EffectRejected is emitted when an effect observer had no room.
	EffectRejected = capitan.NewSignal(
		"mvflow.effect.rejected",
		"Effect rejected by a full observer",
	)

	// ObserverDropped is emitted when an action or mutation observer had no room.
	ObserverDropped = capitan.NewSignal(
		"mvflow.observer.dropped",
		"Observer buffer full; value dropped",
	)

	// ViewAttached is emitted when a View starts rendering.
	ViewAttached = capitan.NewSignal(
		"mvflow.view.attached",
		"View attached",
	)

	// ViewDetached is emitted when a View's scope ends.
	ViewDetached = capitan.NewSignal(
		"mvflow.view.detached",
		"View detached",
	)
)

// Signal field keys.
var (
	KeyDispatchID = capitan.NewStringKey("dispatch_id")
	KeyAction     = capitan.NewStringKey("action")
	KeyMutation   = capitan.NewStringKey("mutation")
	KeyEffect     = capitan.NewStringKey("effect")
	KeyStream     = capitan.NewStringKey("stream")
	KeyValue      = capitan.NewStringKey("value")
	KeyError      = capitan.NewStringKey("error")
)
