// Package engine implements the MVFlow state-coordination engine.
//
// An Engine turns a stream of Actions into a single ordered stream of States.
// Each Action is handed to a Handler that may take its time emitting
// Mutations and Effects; Mutations are folded into the State by a Reducer.
//
// ARCHITECTURE:
//
// Ingestion:
// Every Action source (an attached View, external channels) enqueues into one
// unbounded inbox. A single dispatch loop reads the inbox, snapshots the
// current State, publishes (Action, State) to action observers and starts the
// Handler on its own goroutine. The loop never waits on a Handler.
//
// Folding:
// Handlers run concurrently. Each Mutation goes through the reducer gate, a
// mutex spanning read-reduce-replace, so Reducer calls never overlap. For one
// Action, Mutations are applied in emission order; across Actions the order
// is whichever Handler takes the lock first.
//
// Broadcast:
// StateCell conflates and replays the latest State. Actions, Mutations and
// Effects each go through their own bus.Bus; every observer has its own
// bounded queue, so a slow observer loses values instead of slowing others.
//
// Scopes:
// The context passed to New bounds Handlers and folding. The context passed to
// AttachView bounds only that view's render and action loops. Cancelling a
// view never cancels work it already submitted.
//
// Failures:
//   - Handler error or panic: logged, that dispatch ends, others continue
//   - Reducer panic: logged, folding halts and the engine stops (Err reports it)
//   - Effect rejected by a full observer: Offer returns false, logged
//   - View Render panic: logged, rendering continues
//
// No public operation returns an error for normal flow.
package engine
