package sync

import (
	"context"
	"time"

	log15 "github.com/inconshreveable/log15/v3"

	"github.com/pandac/pokersync/poker/event"
	"github.com/pandac/pokersync/poker/model"
)

// RosterFunc pulls the authoritative participant roster. USER_JOINED and
// USER_LEFT events never patch the roster from their payload; they only
// trigger this pull, which tolerates missed messages.
type RosterFunc func(ctx context.Context) ([]model.User, error)

// Snapshot is an immutable copy of the reconciled session view handed to
// consumers. Vote values are never part of the view; VoteVersion only signals
// that consumers holding tallies should re-pull them.
type Snapshot struct {
	Session      *model.Session
	CurrentStory *model.Story
	Users        []model.User
	VoteVersion  uint64
}

// Engine is the single writer of the in-memory session view. Push events and
// confirmed REST responses both flow through its run loop, so every mutation
// is serialized on one goroutine and idempotent replay is safe.
type Engine struct {
	log    log15.Logger
	roster RosterFunc

	ops  chan func()
	quit chan struct{}

	// Owned by the run loop. Never touched from outside it.
	session     *model.Session
	story       *model.Story
	users       []model.User
	voteVersion uint64

	watchers map[int]chan Snapshot
	nextID   int
}

// NewEngine creates and starts a synchronization engine. roster may be nil
// for consumers that never subscribe to user topics (tests, analyzers).
func NewEngine(roster RosterFunc, logger log15.Logger) *Engine {
	e := &Engine{
		log:      logger.New("component", "sync"),
		roster:   roster,
		ops:      make(chan func(), 64),
		quit:     make(chan struct{}),
		watchers: make(map[int]chan Snapshot),
	}
	go e.run()
	return e
}

// run is the engine's single logical thread: every mutation and read runs
// here to completion before the next one is processed.
func (e *Engine) run() {
	for {
		select {
		case op := <-e.ops:
			op()
		case <-e.quit:
			for _, ch := range e.watchers {
				close(ch)
			}
			return
		}
	}
}

// Close stops the run loop and closes all watcher channels.
func (e *Engine) Close() {
	select {
	case <-e.quit:
	default:
		close(e.quit)
	}
}

// do posts an operation to the run loop and waits for it to finish.
func (e *Engine) do(op func()) {
	done := make(chan struct{})
	select {
	case e.ops <- func() { op(); close(done) }:
	case <-e.quit:
		return
	}
	select {
	case <-done:
	case <-e.quit:
	}
}

// Snapshot returns a consistent, immutable copy of the current view.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	e.do(func() { snap = e.snapshotLocked() })
	return snap
}

// Watch registers a consumer for view updates. The returned channel receives
// a snapshot after every effective change (no-op replays do not notify).
// cancel unregisters and closes the channel; calling it twice is safe.
func (e *Engine) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	var id int
	e.do(func() {
		id = e.nextID
		e.nextID++
		e.watchers[id] = ch
	})
	cancel := func() {
		e.do(func() {
			if w, ok := e.watchers[id]; ok {
				delete(e.watchers, id)
				close(w)
			}
		})
	}
	return ch, cancel
}

// Apply reconciles one decoded push event into the view. Replaying the same
// event is a no-op; events referencing a story the client no longer tracks
// are silently discarded.
func (e *Engine) Apply(ev event.Event) {
	e.do(func() {
		if e.applyLocked(ev) {
			e.notifyLocked()
		}
	})
}

// SetSession replaces the cached session with an authoritative REST snapshot.
func (e *Engine) SetSession(session *model.Session) {
	e.do(func() {
		if session == nil {
			return
		}
		s := cloneSession(session)
		e.session = s
		e.notifyLocked()
	})
}

// SetCurrentStory replaces the tracked story (authoritative, from REST).
func (e *Engine) SetCurrentStory(story *model.Story) {
	e.do(func() {
		if story == nil {
			e.story = nil
		} else {
			s := *story
			e.story = &s
			if e.session != nil {
				id := s.ID
				e.session.CurrentStoryID = &id
			}
		}
		e.notifyLocked()
	})
}

// SetUsers replaces the roster with an authoritative pull result.
func (e *Engine) SetUsers(users []model.User) {
	e.do(func() {
		e.users = append([]model.User(nil), users...)
		e.notifyLocked()
	})
}

// SetVotesRevealed records a confirmed reveal/reset. Applying the same value
// twice does not notify, so the later broadcast of the same transition is a
// clean no-op.
func (e *Engine) SetVotesRevealed(revealed bool) {
	e.do(func() {
		if e.session == nil || e.session.VotesRevealed == revealed {
			return
		}
		e.session.VotesRevealed = revealed
		e.notifyLocked()
	})
}

// BumpVoteVersion signals that vote tallies changed without carrying values.
func (e *Engine) BumpVoteVersion() {
	e.do(func() {
		e.voteVersion++
		e.notifyLocked()
	})
}

// applyLocked performs the reconciliation rules. It runs on the loop
// goroutine and reports whether the view actually changed.
func (e *Engine) applyLocked(ev event.Event) bool {
	switch ev := ev.(type) {
	case event.StoryActivated:
		changed := false
		if e.story == nil || *e.story != ev.Story {
			story := ev.Story
			e.story = &story
			changed = true
		}
		if e.session != nil {
			// Activation always clears prior reveal state, whatever order a
			// stale reveal for the previous story arrives in.
			if e.session.VotesRevealed {
				e.session.VotesRevealed = false
				changed = true
			}
			if e.session.CurrentStoryID == nil || *e.session.CurrentStoryID != ev.Story.ID {
				id := ev.Story.ID
				e.session.CurrentStoryID = &id
				changed = true
			}
		}
		return changed

	case event.StoryReset:
		if e.story == nil || e.story.ID != ev.Story.ID {
			return false // stale: client has moved on to another story
		}
		changed := *e.story != ev.Story
		story := ev.Story
		e.story = &story
		if e.session != nil && e.session.VotesRevealed {
			e.session.VotesRevealed = false
			changed = true
		}
		return changed

	case event.StoryFinalized:
		if e.story == nil || e.story.ID != ev.Story.ID {
			return false
		}
		if *e.story == ev.Story {
			return false
		}
		story := ev.Story
		e.story = &story
		return true

	case event.VotesRevealed:
		if e.session == nil {
			return false
		}
		if ev.StoryID != 0 && (e.story == nil || e.story.ID != ev.StoryID) {
			return false // stale reveal for a story we no longer track
		}
		if e.session.VotesRevealed {
			return false
		}
		e.session.VotesRevealed = true
		return true

	case event.VotesReset:
		if e.session == nil {
			return false
		}
		if ev.StoryID != 0 && (e.story == nil || e.story.ID != ev.StoryID) {
			return false
		}
		if !e.session.VotesRevealed {
			return false
		}
		e.session.VotesRevealed = false
		return true

	case event.VoteCast:
		if ev.StoryID != 0 && (e.story == nil || e.story.ID != ev.StoryID) {
			return false
		}
		e.voteVersion++
		return true

	case event.UserJoined:
		e.requestRoster()
		return false

	case event.UserLeft:
		e.requestRoster()
		return false

	case event.TimerSettingsChanged:
		if e.session == nil {
			return false
		}
		if e.session.TimerEnabled == ev.TimerEnabled && e.session.TimerDuration == ev.TimerDuration {
			return false
		}
		e.session.TimerEnabled = ev.TimerEnabled
		e.session.TimerDuration = ev.TimerDuration
		return true

	default:
		e.log.Debug("ignoring unhandled event", "type", ev.EventType())
		return false
	}
}

// requestRoster pulls the authoritative roster off the loop goroutine and
// feeds the result back through it. Pull failures leave the previous roster
// in place; the next join/leave signal retries naturally.
func (e *Engine) requestRoster() {
	if e.roster == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		users, err := e.roster(ctx)
		if err != nil {
			e.log.Error("roster pull failed", "err", err)
			return
		}
		e.SetUsers(users)
	}()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{VoteVersion: e.voteVersion}
	if e.session != nil {
		snap.Session = cloneSession(e.session)
	}
	if e.story != nil {
		story := *e.story
		snap.CurrentStory = &story
	}
	if e.users != nil {
		snap.Users = append([]model.User(nil), e.users...)
	}
	return snap
}

func (e *Engine) notifyLocked() {
	snap := e.snapshotLocked()
	for _, ch := range e.watchers {
		select {
		case ch <- snap:
		default:
			// Slow watcher: drop rather than stall the reconciliation loop.
		}
	}
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	if s.CurrentStoryID != nil {
		id := *s.CurrentStoryID
		c.CurrentStoryID = &id
	}
	if s.CustomValues != nil {
		c.CustomValues = append([]string(nil), s.CustomValues...)
	}
	return &c
}
