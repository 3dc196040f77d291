package sync

import (
	"context"
	"testing"
	"time"

	log15 "github.com/inconshreveable/log15/v3"

	"github.com/pandac/pokersync/poker/event"
	"github.com/pandac/pokersync/poker/model"
)

func testLogger() log15.Logger {
	logger := log15.New()
	logger.SetHandler(log15.DiscardHandler())
	return logger
}

func newTestEngine(t *testing.T, roster RosterFunc) *Engine {
	t.Helper()
	e := NewEngine(roster, testLogger())
	t.Cleanup(e.Close)
	return e
}

func seedSession(e *Engine) {
	e.SetSession(&model.Session{
		ID:          1,
		SessionCode: "ABC123",
		Name:        "Sprint 12",
	})
}

func TestEngineStoryActivated(t *testing.T) {
	e := newTestEngine(t, nil)
	seedSession(e)

	e.Apply(event.StoryActivated{Story: model.Story{ID: 10, Title: "Checkout", Status: model.StatusInProgress}})

	snap := e.Snapshot()
	if snap.CurrentStory == nil || snap.CurrentStory.ID != 10 {
		t.Fatalf("Expected story 10 tracked, got %+v", snap.CurrentStory)
	}
	if snap.Session.CurrentStoryID == nil || *snap.Session.CurrentStoryID != 10 {
		t.Error("Session CurrentStoryID not updated")
	}
	if snap.Session.VotesRevealed {
		t.Error("Activation must leave reveal state cleared")
	}
}

func TestEngineActivationClearsRevealState(t *testing.T) {
	e := newTestEngine(t, nil)
	seedSession(e)

	e.Apply(event.StoryActivated{Story: model.Story{ID: 10, Title: "A"}})
	e.Apply(event.VotesRevealed{StoryID: 10})
	if !e.Snapshot().Session.VotesRevealed {
		t.Fatal("Reveal for tracked story should apply")
	}

	e.Apply(event.StoryActivated{Story: model.Story{ID: 11, Title: "B"}})
	snap := e.Snapshot()
	if snap.Session.VotesRevealed {
		t.Error("Activating the next story must clear reveal state")
	}
	if snap.CurrentStory.ID != 11 {
		t.Errorf("Expected story 11, got %d", snap.CurrentStory.ID)
	}
}

func TestEngineIdempotentReplay(t *testing.T) {
	e := newTestEngine(t, nil)
	seedSession(e)
	e.Apply(event.StoryActivated{Story: model.Story{ID: 10, Title: "A"}})

	updates, cancel := e.Watch()
	defer cancel()

	// First delivery changes the view.
	e.Apply(event.VotesRevealed{StoryID: 10})
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("Expected a snapshot for the first reveal")
	}

	// At-least-once delivery: the duplicate must change nothing and must
	// not notify.
	e.Apply(event.VotesRevealed{StoryID: 10})
	select {
	case snap := <-updates:
		t.Fatalf("Duplicate reveal should not notify, got %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}

	if !e.Snapshot().Session.VotesRevealed {
		t.Error("Reveal state lost after replay")
	}
}

func TestEngineStaleStoryEventsDiscarded(t *testing.T) {
	e := newTestEngine(t, nil)
	seedSession(e)
	e.Apply(event.StoryActivated{Story: model.Story{ID: 11, Title: "Current"}})

	// Events for story 10 arrive late, after the client moved to story 11.
	e.Apply(event.StoryReset{Story: model.Story{ID: 10, Title: "Old"}})
	e.Apply(event.StoryFinalized{Story: model.Story{ID: 10, Title: "Old", FinalEstimate: "8"}})
	e.Apply(event.VotesRevealed{StoryID: 10})

	snap := e.Snapshot()
	if snap.CurrentStory.ID != 11 || snap.CurrentStory.Title != "Current" {
		t.Errorf("Stale events corrupted the tracked story: %+v", snap.CurrentStory)
	}
	if snap.Session.VotesRevealed {
		t.Error("Stale reveal must not apply to the current story")
	}
}

func TestEngineRevealWithoutStoryID(t *testing.T) {
	// Some server versions broadcast reveal without a story id; those apply
	// unconditionally.
	e := newTestEngine(t, nil)
	seedSession(e)
	e.Apply(event.StoryActivated{Story: model.Story{ID: 11}})

	e.Apply(event.VotesRevealed{StoryID: 0})
	if !e.Snapshot().Session.VotesRevealed {
		t.Error("Reveal without story id should apply")
	}
}

func TestEngineVotesReset(t *testing.T) {
	e := newTestEngine(t, nil)
	seedSession(e)
	e.Apply(event.StoryActivated{Story: model.Story{ID: 11}})
	e.Apply(event.VotesRevealed{StoryID: 11})

	e.Apply(event.VotesReset{StoryID: 11})
	if e.Snapshot().Session.VotesRevealed {
		t.Error("Reset should clear reveal state")
	}

	updates, cancel := e.Watch()
	defer cancel()
	e.Apply(event.VotesReset{StoryID: 11})
	select {
	case <-updates:
		t.Error("Reset replay in an already-reset state should be a no-op")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEngineVoteCastBumpsVersion(t *testing.T) {
	e := newTestEngine(t, nil)
	seedSession(e)
	e.Apply(event.StoryActivated{Story: model.Story{ID: 11}})

	before := e.Snapshot().VoteVersion
	e.Apply(event.VoteCast{StoryID: 11, VoteCount: 2})
	after := e.Snapshot().VoteVersion
	if after != before+1 {
		t.Errorf("Expected vote version %d, got %d", before+1, after)
	}

	// A cast signal for an untracked story is stale noise.
	e.Apply(event.VoteCast{StoryID: 99, VoteCount: 1})
	if e.Snapshot().VoteVersion != after {
		t.Error("Stale vote cast must not bump the version")
	}
}

func TestEngineTimerSettingsMergeOnlyTimerFields(t *testing.T) {
	e := newTestEngine(t, nil)
	e.SetSession(&model.Session{ID: 1, SessionCode: "ABC123", Name: "Sprint 12", TimerDuration: 60})

	e.Apply(event.TimerSettingsChanged{TimerEnabled: true, TimerDuration: 120})

	snap := e.Snapshot()
	if !snap.Session.TimerEnabled || snap.Session.TimerDuration != 120 {
		t.Errorf("Timer fields not merged: %+v", snap.Session)
	}
	if snap.Session.Name != "Sprint 12" {
		t.Error("Timer event must not touch other session fields")
	}
}

func TestEngineRosterPullOnUserEvents(t *testing.T) {
	pulls := make(chan struct{}, 2)
	roster := func(ctx context.Context) ([]model.User, error) {
		pulls <- struct{}{}
		return []model.User{{ID: 1, Name: "mod"}, {ID: 2, Name: "dana"}}, nil
	}
	e := newTestEngine(t, roster)
	seedSession(e)

	updates, cancel := e.Watch()
	defer cancel()

	e.Apply(event.UserJoined{UserID: 2, UserName: "dana"})

	select {
	case <-pulls:
	case <-time.After(time.Second):
		t.Fatal("USER_JOINED did not trigger a roster pull")
	}

	select {
	case snap := <-updates:
		if len(snap.Users) != 2 {
			t.Errorf("Expected 2 users after pull, got %d", len(snap.Users))
		}
	case <-time.After(time.Second):
		t.Fatal("Roster pull result never reached the view")
	}
}

func TestEngineSnapshotIsACopy(t *testing.T) {
	e := newTestEngine(t, nil)
	seedSession(e)
	e.SetUsers([]model.User{{ID: 1, Name: "mod"}})

	snap := e.Snapshot()
	snap.Session.Name = "mutated"
	snap.Users[0].Name = "mutated"

	fresh := e.Snapshot()
	if fresh.Session.Name != "Sprint 12" {
		t.Error("Mutating a snapshot leaked into the engine session")
	}
	if fresh.Users[0].Name != "mod" {
		t.Error("Mutating a snapshot leaked into the engine roster")
	}
}

func TestEngineWatchCancelTwice(t *testing.T) {
	e := newTestEngine(t, nil)
	_, cancel := e.Watch()
	cancel()
	cancel() // must not panic
}

func TestEngineOrderIndependentTopics(t *testing.T) {
	// The same events delivered in two different interleavings must converge
	// on the same view.
	run := func(apply func(e *Engine)) Snapshot {
		e := newTestEngine(t, nil)
		seedSession(e)
		apply(e)
		return e.Snapshot()
	}

	a := run(func(e *Engine) {
		e.Apply(event.StoryActivated{Story: model.Story{ID: 5, Title: "X"}})
		e.Apply(event.TimerSettingsChanged{TimerEnabled: true, TimerDuration: 30})
		e.Apply(event.VotesRevealed{StoryID: 5})
	})
	b := run(func(e *Engine) {
		e.Apply(event.TimerSettingsChanged{TimerEnabled: true, TimerDuration: 30})
		e.Apply(event.StoryActivated{Story: model.Story{ID: 5, Title: "X"}})
		e.Apply(event.VotesRevealed{StoryID: 5})
	})

	if a.Session.VotesRevealed != b.Session.VotesRevealed ||
		a.Session.TimerDuration != b.Session.TimerDuration ||
		a.CurrentStory.ID != b.CurrentStory.ID {
		t.Errorf("Interleavings diverged:\n a=%+v %+v\n b=%+v %+v",
			a.Session, a.CurrentStory, b.Session, b.CurrentStory)
	}
}
