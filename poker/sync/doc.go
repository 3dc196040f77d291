// Package sync reconciles push events and confirmed REST responses into one
// consistent in-memory session view.
//
// The sync package implements:
//   - Engine: the single writer of the session view
//   - Dispatcher: user actions as REST calls plus optimistic local state
//   - Snapshot: immutable copies handed to consumers
//   - Watch channels notified after every effective change
//
// Reconciliation Rules:
//
// Every mutation is serialized on the engine's run loop, so replaying a
// delivered-twice event is always a no-op and event order between topics
// does not matter:
//   - Story events replace the tracked story; reset/finalize for a story
//     the client no longer tracks are discarded as stale.
//   - Activation clears reveal state, whatever order the previous story's
//     reveal arrives in.
//   - Reveal/reset events apply only to the tracked story.
//   - Roster events never patch the roster from their payload; they
//     trigger an authoritative re-pull, which tolerates missed messages.
//   - Vote events carry no values. VoteVersion increments so consumers
//     holding tallies know to re-pull; hidden votes never transit.
//
// Concurrency:
//
// Engine methods are safe from any goroutine. Snapshots are deep copies;
// consumers can hold them indefinitely. Slow watchers miss intermediate
// snapshots rather than stalling reconciliation.
package sync
