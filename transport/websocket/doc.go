// Package websocket provides the client side of the push channel that keeps
// a session view synchronized in real time.
//
// The websocket package implements:
//   - A managed connection with automatic reconnection
//   - A topic subscription registry that survives reconnects
//   - Read/write pumps with ping/pong keepalive
//   - Connection state observation for staleness indicators
//
// Architecture:
//
// Conn owns the underlying connection and its lifecycle. All outbound
// traffic funnels through a buffered send channel serviced by a single
// write pump; the read pump dispatches inbound frames to the Registry,
// which fans them out to per-topic handlers.
//
// Message Protocol:
//
// Messages are JSON-encoded:
//   - Outgoing: {"action": "subscribe", "topic": "/topic/session/ABC123/story"}
//   - Incoming: {"topic": "...", "body": {...event envelope...}}
//
// Reconnection:
//
// A dropped connection is redialed with exponential backoff. After five
// consecutive failed attempts the connection gives up and stays in the
// Disconnected state; callers surface that to the user. Every registered
// subscription is replayed on each successful dial, so handlers keep
// receiving events without re-subscribing.
//
// Usage:
//
//	conn := websocket.NewConn(wsURL, logger)
//	unsub := conn.Registry().Subscribe(topic, handler)
//	err := conn.Connect(ctx, sessionCode, token)
//	...
//	unsub()
//	conn.Disconnect()
//
// Concurrency:
//
// Conn and Registry are safe for concurrent use. Handlers run on the read
// pump goroutine; slow handlers delay subsequent messages but never lose
// them.
package websocket
