// Package session manages the lifecycle of a client's membership in an
// estimation session.
//
// The session package implements:
//   - Manager: create, join, resume, and leave operations
//   - ClientSession: the wired-together live session (push channel, topic
//     subscriptions, sync engine, dispatcher)
//   - Store: pluggable resume-state persistence (memory and file backed)
//   - Topic name construction for the per-session push channels
//
// Topics:
//
// Each session fans events out over five topics:
//
//	/topic/session/{code}/story   story activation, reset, finalize
//	/topic/session/{code}/reveal  votes revealed / votes reset
//	/topic/session/{code}/users   roster change signals
//	/topic/session/{code}/timer   timer settings changes
//	/topic/session/{code}/votes   vote-cast signals (no values)
//
// Resume:
//
// Create and Join persist a ResumeState (session snapshot, identity,
// token) through the injected Store. Resume restores the token and seeds
// the view from the snapshot, then replaces it with an authoritative pull;
// stale or corrupted state is cleared so the next launch starts clean.
package session
