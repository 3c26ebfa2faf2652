// Package harness runs YAML scenarios against the reference counter engine
// and produces deterministic traces.
//
// A scenario is a list of steps (attach_view, dispatch, external,
// cancel_view, settle, wait) followed by expectations on the final state,
// the states each view rendered, and counts of dispatches, mutations and
// handler failures.
//
// Every step that submits actions waits until the engine has dispatched them
// before the next step starts, and attach_view waits for the view's first
// render. Handlers still run concurrently, so interleavings come from the
// configured handler delays alone. Traces group events per stream:
// dispatches in dispatch order, mutations in fold order, renders per view.
//
// Scenario files are decoded strictly (unknown fields are errors) and
// validated against an embedded CUE schema before they run.
//
// Golden traces live in testdata/golden. To regenerate them, run:
//
//	go test ./internal/harness -update
package harness
