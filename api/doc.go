// Package api provides the REST client for the authoritative estimation
// service.
//
// The api package implements:
//   - Request/response types mirroring the service's JSON contracts
//   - A Client covering session, story, vote, and user endpoints
//   - Bearer token storage, cleared automatically on 401 responses
//   - Sentinel errors for not-found and unauthorized outcomes
//
// Endpoints:
//
// Session Operations:
//   - POST /api/sessions - Create session (issues token)
//   - GET/PUT /api/sessions/{code} - Fetch or update session
//   - POST /api/sessions/{code}/join - Join session (issues token)
//   - POST /api/sessions/{code}/current-story - Activate story
//   - POST /api/sessions/{code}/reveal - Reveal votes
//   - POST /api/sessions/{code}/reset-votes - Clear votes
//
// Story Operations:
//   - POST/GET /api/sessions/{code}/stories - Create or list stories
//   - GET/PUT/DELETE /api/sessions/{code}/stories/{id}
//   - POST .../stories/{id}/finalize - Record final estimate
//   - POST .../stories/{id}/reset - Clear estimate for re-vote
//
// Vote Operations:
//   - POST/GET /api/sessions/{code}/stories/{id}/votes
//   - DELETE .../votes/{userId} - Withdraw a vote
//
// Error Handling:
//
// Non-2xx responses become *APIError, except 404 (wraps ErrNotFound) and
// 401 (wraps ErrUnauthorized and clears the stored token, matching the
// service's token expiry behavior). Callers test with errors.Is.
//
// Usage:
//
//	client := api.NewClient("http://localhost:8080")
//	resp, err := client.CreateSession(ctx, api.CreateSessionRequest{...})
package api
