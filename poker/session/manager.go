package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log15 "github.com/inconshreveable/log15/v3"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/model"
)

// Manager handles client session lifecycle: creating or joining a session on
// the authoritative service, wiring up the live ClientSession, and persisting
// resume state through the injected Store. All collaborators are
// constructor-injected; there is no package-level state.
type Manager struct {
	client *api.Client
	wsURL  string
	store  Store
	log    log15.Logger
}

// NewManager creates a session manager. store may be nil to disable resume.
func NewManager(client *api.Client, wsURL string, store Store, logger log15.Logger) *Manager {
	return &Manager{
		client: client,
		wsURL:  wsURL,
		store:  store,
		log:    logger.New("component", "session"),
	}
}

// Create opens a new session as moderator and returns the live client
// session, already connected and synchronized.
func (m *Manager) Create(ctx context.Context, req api.CreateSessionRequest) (*ClientSession, error) {
	resp, err := m.client.CreateSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	cs := m.newClientSession(resp.Session.SessionCode, resp.ModeratorID, req.ModeratorName, true)
	if err := cs.start(ctx, &resp.Session); err != nil {
		return nil, err
	}
	m.persist(cs, &resp.Session)
	return cs, nil
}

// Join enters an existing session as a participant.
func (m *Manager) Join(ctx context.Context, sessionCode string, req api.JoinSessionRequest) (*ClientSession, error) {
	if err := model.ValidateSessionCode(sessionCode); err != nil {
		return nil, err
	}

	resp, err := m.client.JoinSession(ctx, sessionCode, req)
	if err != nil {
		return nil, fmt.Errorf("failed to join session %s: %w", sessionCode, err)
	}

	cs := m.newClientSession(sessionCode, resp.UserID, req.Name, false)
	if err := cs.start(ctx, &resp.Session); err != nil {
		return nil, err
	}
	m.persist(cs, &resp.Session)
	return cs, nil
}

// Resume rebuilds a live session from persisted state. The stored snapshot
// seeds the view; the authoritative pull during start replaces it.
func (m *Manager) Resume(ctx context.Context) (*ClientSession, error) {
	state, err := m.LoadResumeState()
	if err != nil {
		return nil, err
	}

	m.client.Tokens().Set(state.Token)

	cs := m.newClientSession(state.Session.SessionCode, state.UserID, state.UserName, state.IsModerator)
	if err := cs.start(ctx, &state.Session); err != nil {
		// The stored state is stale (session ended, token expired); drop it
		// so the next launch starts clean.
		m.ClearResumeState()
		return nil, err
	}
	return cs, nil
}

// LoadResumeState reads persisted resume state without connecting.
func (m *Manager) LoadResumeState() (*ResumeState, error) {
	if m.store == nil {
		return nil, ErrNoResumeState
	}
	data, ok, err := m.store.Get(resumeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume state: %w", err)
	}
	if !ok {
		return nil, ErrNoResumeState
	}
	var state ResumeState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted state is unrecoverable; clear it so the next launch
		// starts clean.
		m.store.Delete(resumeKey)
		return nil, fmt.Errorf("corrupted resume state: %w", err)
	}
	return &state, nil
}

// ClearResumeState drops any persisted resume state.
func (m *Manager) ClearResumeState() {
	if m.store == nil {
		return
	}
	if err := m.store.Delete(resumeKey); err != nil {
		m.log.Warn("failed to clear resume state", "err", err)
	}
}

func (m *Manager) persist(cs *ClientSession, session *model.Session) {
	if m.store == nil {
		return
	}
	state := ResumeState{
		Session:     *session,
		UserID:      cs.UserID,
		UserName:    cs.UserName,
		IsModerator: cs.IsModerator,
		Token:       m.client.Tokens().Get(),
		SavedAt:     time.Now(),
	}
	data, err := json.Marshal(state)
	if err != nil {
		m.log.Warn("failed to marshal resume state", "err", err)
		return
	}
	if err := m.store.Set(resumeKey, data); err != nil {
		m.log.Warn("failed to persist resume state", "err", err)
	}
}

// Leave leaves the session on the server, tears the client session down, and
// clears resume state.
func (m *Manager) Leave(ctx context.Context, cs *ClientSession) error {
	var leaveErr error
	if err := m.client.LeaveSession(ctx, cs.Code, cs.UserID); err != nil {
		// Teardown proceeds regardless: the server prunes inactive users.
		leaveErr = fmt.Errorf("failed to leave session: %w", err)
	}
	cs.Close()
	m.ClearResumeState()
	return leaveErr
}
