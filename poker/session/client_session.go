package session

import (
	"context"
	"errors"
	"fmt"

	log15 "github.com/inconshreveable/log15/v3"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/event"
	"github.com/pandac/pokersync/poker/model"
	"github.com/pandac/pokersync/poker/sync"
	"github.com/pandac/pokersync/transport/websocket"
)

// ClientSession is one live, synchronized membership in an estimation
// session: the push connection, the topic subscriptions, the reconciliation
// engine, and the action dispatcher, wired together. Presentation code reads
// snapshots and requests changes through the dispatcher; it never mutates the
// view directly.
type ClientSession struct {
	Code        string
	UserID      int64
	UserName    string
	IsModerator bool

	client     *api.Client
	conn       *websocket.Conn
	engine     *sync.Engine
	dispatcher *sync.Dispatcher
	log        log15.Logger

	unsubs []websocket.UnsubscribeFunc
}

func (m *Manager) newClientSession(code string, userID int64, userName string, isModerator bool) *ClientSession {
	logger := m.log.New("session", code)
	cs := &ClientSession{
		Code:        code,
		UserID:      userID,
		UserName:    userName,
		IsModerator: isModerator,
		client:      m.client,
		log:         logger,
	}
	cs.engine = sync.NewEngine(func(ctx context.Context) ([]model.User, error) {
		return m.client.GetUsers(ctx, code, true)
	}, logger)
	cs.dispatcher = sync.NewDispatcher(m.client, cs.engine, code, logger)
	cs.conn = websocket.NewConn(m.wsURL, logger)
	return cs
}

// start connects the push channel, registers all topic subscriptions, seeds
// the view with the given session, and replaces it with an authoritative
// pull. Subscriptions are registered before the connection settles; the
// registry applies them as soon as the channel is live.
func (cs *ClientSession) start(ctx context.Context, seed *model.Session) error {
	registry := cs.conn.Registry()
	for _, topic := range SessionTopics(cs.Code) {
		cs.unsubs = append(cs.unsubs, registry.Subscribe(topic, cs.handleFrame))
	}

	if err := cs.conn.Connect(ctx, cs.Code, cs.client.Tokens().Get()); err != nil {
		cs.Close()
		return fmt.Errorf("failed to open push channel: %w", err)
	}

	cs.engine.SetSession(seed)
	if err := cs.refresh(ctx); err != nil {
		cs.Close()
		return err
	}
	return nil
}

// refresh pulls the authoritative session, current story, and roster, and
// applies them through the engine.
func (cs *ClientSession) refresh(ctx context.Context) error {
	session, err := cs.client.GetSession(ctx, cs.Code)
	if err != nil {
		return fmt.Errorf("failed to fetch session: %w", err)
	}
	cs.engine.SetSession(session)

	if session.CurrentStoryID != nil {
		story, err := cs.client.GetStory(ctx, cs.Code, *session.CurrentStoryID)
		if err != nil {
			return fmt.Errorf("failed to fetch current story: %w", err)
		}
		cs.engine.SetCurrentStory(story)
	}

	users, err := cs.client.GetUsers(ctx, cs.Code, true)
	if err != nil {
		return fmt.Errorf("failed to fetch roster: %w", err)
	}
	cs.engine.SetUsers(users)
	return nil
}

// handleFrame decodes one inbound frame and feeds it to the engine. A
// malformed frame is logged and dropped; an unknown type is ignored for
// forward compatibility. Neither disturbs other subscribers.
func (cs *ClientSession) handleFrame(body []byte) {
	ev, err := event.Decode(body)
	if err != nil {
		if errors.Is(err, event.ErrUnknownType) {
			cs.log.Debug("ignoring unknown event type", "err", err)
		} else {
			cs.log.Error("dropping malformed message", "err", err)
		}
		return
	}
	cs.engine.Apply(ev)
}

// Snapshot returns the current reconciled view.
func (cs *ClientSession) Snapshot() sync.Snapshot {
	return cs.engine.Snapshot()
}

// Watch subscribes to view updates; see Engine.Watch.
func (cs *ClientSession) Watch() (<-chan sync.Snapshot, func()) {
	return cs.engine.Watch()
}

// Dispatcher returns the action dispatcher for this session.
func (cs *ClientSession) Dispatcher() *sync.Dispatcher {
	return cs.dispatcher
}

// Connected reports whether the push channel is live. A false value means
// the view may be stale and should be flagged to the user.
func (cs *ClientSession) Connected() bool {
	return cs.conn.Connected()
}

// OnConnectionChange observes push channel state transitions.
func (cs *ClientSession) OnConnectionChange(fn websocket.StateFunc) {
	cs.conn.OnStateChange(fn)
}

// Close tears down the push channel and the engine without leaving the
// session server-side, preserving resume state. Safe to call repeatedly.
func (cs *ClientSession) Close() {
	for _, unsub := range cs.unsubs {
		unsub()
	}
	cs.unsubs = nil
	cs.conn.Disconnect()
	cs.engine.Close()
}
