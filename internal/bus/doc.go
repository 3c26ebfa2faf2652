// Package bus implements a multi-subscriber broadcast primitive.
//
// A Bus delivers every published value to each active Subscription. Every
// subscription owns its queue and backpressure policy, so a slow or abandoned
// reader never delays the publisher or any other reader:
//
//   - Conflate keeps a single slot and overwrites an undelivered value with the
//     newest one. Combined with WithReplay this gives "behavior" semantics: a new
//     subscriber first receives the latest value, then every later one it can
//     keep up with.
//   - Buffered queues up to N values. Offer rejects a value that does not fit;
//     under the Block overflow, Send waits for room instead.
//
// Subscriptions are bound to the context passed to Subscribe. Cancelling it (or
// calling Cancel) removes the subscription and closes its channel. Closing the
// bus lets every subscription drain what it already holds and then closes its
// channel.
package bus
