// Package pokertest provides an in-process fake of the estimation service
// for integration tests.
//
// The fake serves the REST endpoints the client uses and broadcasts the
// same push events the real service would, through a topic-aware hub. It
// additionally supports failure injection (FailNext) and severing all live
// websockets (Hub.KickAll) so reconnection and rollback paths can be
// exercised deterministically.
//
// Usage:
//
//	srv := pokertest.NewServer()
//	defer srv.Close()
//
//	client := api.NewClient(srv.URL())
//	conn := websocket.NewConn(srv.WSURL(), logger)
package pokertest
