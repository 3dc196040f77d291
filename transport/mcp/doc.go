// Package mcp exposes planning poker sessions through the Model Context
// Protocol so AI agents can take part in estimation.
//
// The mcp package implements:
//   - An MCP server backed by the REST client
//   - Tool definitions for the full session lifecycle
//   - Text rendering of session, story, roster, and vote state
//
// MCP Tools:
//
// The package exposes the following tools:
//   - create_session: Start a session and become its moderator
//   - join_session: Join by 6-character session code
//   - session_state: Session, active story, roster, and reveal state
//   - list_stories / create_story: Backlog management
//   - set_current_story: Activate a story for voting
//   - cast_vote: Cast or change a vote
//   - reveal_votes / reset_votes: Moderator vote control
//   - finalize_estimate: Record the agreed estimate
//   - list_decks: Built-in and custom estimate decks
//
// Vote Secrecy:
//
// Tool output never includes estimate values for unrevealed stories. The
// server withholds them; this package just renders what it gets.
//
// Usage:
//
//	srv := mcp.NewServer(apiClient, deckManager)
//	server.ServeStdio(srv.GetMCPServer())
package mcp
