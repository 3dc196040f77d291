package sync_test

import (
	"context"
	"testing"

	log15 "github.com/inconshreveable/log15/v3"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/model"
	"github.com/pandac/pokersync/poker/sync"
	"github.com/pandac/pokersync/pokertest"
)

const testCode = "ABC123"

func discardLogger() log15.Logger {
	logger := log15.New()
	logger.SetHandler(log15.DiscardHandler())
	return logger
}

// newDispatcherFixture starts a fake service seeded with one session, one
// story, and two users, and returns a dispatcher wired to it.
func newDispatcherFixture(t *testing.T) (*pokertest.Server, *sync.Engine, *sync.Dispatcher) {
	t.Helper()

	srv := pokertest.NewServer()
	t.Cleanup(srv.Close)

	storyID := int64(10)
	srv.Seed(
		model.Session{
			ID:             1,
			SessionCode:    testCode,
			Name:           "Sprint 12",
			SizingMethod:   model.Fibonacci,
			ModeratorID:    1,
			CurrentStoryID: &storyID,
			IsActive:       true,
		},
		[]model.Story{
			{ID: 10, Title: "Checkout", Status: model.StatusInProgress},
			{ID: 11, Title: "Login", Status: model.StatusNotEstimated},
		},
		[]model.User{
			{ID: 1, Name: "mod", IsActive: true, IsModerator: true},
			{ID: 2, Name: "dana", IsActive: true},
		},
	)

	client := api.NewClient(srv.URL())
	engine := sync.NewEngine(nil, discardLogger())
	t.Cleanup(engine.Close)

	engine.SetSession(&model.Session{ID: 1, SessionCode: testCode, Name: "Sprint 12", CurrentStoryID: &storyID})
	engine.SetCurrentStory(&model.Story{ID: 10, Title: "Checkout", Status: model.StatusInProgress})

	return srv, engine, sync.NewDispatcher(client, engine, testCode, discardLogger())
}

func TestDispatcherCastVote(t *testing.T) {
	_, engine, d := newDispatcherFixture(t)
	ctx := context.Background()

	before := engine.Snapshot().VoteVersion
	vote, err := d.CastVote(ctx, 10, 2, "8", 4)
	if err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}
	if vote.ID == 0 {
		t.Error("Expected server-assigned vote id")
	}

	if selected, ok := d.SelectedEstimate(10); !ok || selected != "8" {
		t.Errorf("Expected selected estimate 8, got %q (ok=%v)", selected, ok)
	}
	if engine.Snapshot().VoteVersion != before+1 {
		t.Error("Confirmed vote should bump the vote version")
	}
}

func TestDispatcherCastVoteRollback(t *testing.T) {
	srv, engine, d := newDispatcherFixture(t)
	ctx := context.Background()

	if _, err := d.CastVote(ctx, 10, 2, "5", 3); err != nil {
		t.Fatalf("Initial vote failed: %v", err)
	}
	version := engine.Snapshot().VoteVersion

	srv.FailNext("vote")
	if _, err := d.CastVote(ctx, 10, 2, "13", 3); err == nil {
		t.Fatal("Expected injected failure")
	}

	// The optimistic selection must roll back to the previous confirmed one.
	if selected, _ := d.SelectedEstimate(10); selected != "5" {
		t.Errorf("Expected rollback to 5, got %q", selected)
	}
	if engine.Snapshot().VoteVersion != version {
		t.Error("Failed vote must not bump the vote version")
	}
}

func TestDispatcherCastVoteRollbackToNothing(t *testing.T) {
	srv, _, d := newDispatcherFixture(t)

	srv.FailNext("vote")
	if _, err := d.CastVote(context.Background(), 10, 2, "8", 3); err == nil {
		t.Fatal("Expected injected failure")
	}
	if _, ok := d.SelectedEstimate(10); ok {
		t.Error("Failed first vote should leave no selection")
	}
}

func TestDispatcherCastVoteInvalidConfidence(t *testing.T) {
	_, _, d := newDispatcherFixture(t)

	if _, err := d.CastVote(context.Background(), 10, 2, "8", 9); err == nil {
		t.Error("Expected confidence validation error")
	}
	// Zero means the voter skipped confidence; that is allowed.
	if _, err := d.CastVote(context.Background(), 10, 2, "8", 0); err != nil {
		t.Errorf("Zero confidence should be accepted, got %v", err)
	}
}

func TestDispatcherRevealVotes(t *testing.T) {
	_, engine, d := newDispatcherFixture(t)
	ctx := context.Background()

	if _, err := d.CastVote(ctx, 10, 2, "8", 4); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	reveal, err := d.RevealVotes(ctx)
	if err != nil {
		t.Fatalf("RevealVotes failed: %v", err)
	}
	if reveal.StoryID != 10 {
		t.Errorf("Expected reveal for story 10, got %d", reveal.StoryID)
	}
	if !engine.Snapshot().Session.VotesRevealed {
		t.Error("Confirmed reveal should flip the view")
	}
}

func TestDispatcherRevealVotesFailureLeavesViewAlone(t *testing.T) {
	srv, engine, d := newDispatcherFixture(t)

	srv.FailNext("reveal")
	if _, err := d.RevealVotes(context.Background()); err == nil {
		t.Fatal("Expected injected failure")
	}
	if engine.Snapshot().Session.VotesRevealed {
		t.Error("Failed reveal must not flip the view")
	}
}

func TestDispatcherResetVotes(t *testing.T) {
	_, engine, d := newDispatcherFixture(t)
	ctx := context.Background()

	if _, err := d.RevealVotes(ctx); err != nil {
		t.Fatalf("RevealVotes failed: %v", err)
	}
	if err := d.ResetVotes(ctx); err != nil {
		t.Fatalf("ResetVotes failed: %v", err)
	}
	if engine.Snapshot().Session.VotesRevealed {
		t.Error("Reset should clear reveal state")
	}
}

func TestDispatcherSetCurrentStory(t *testing.T) {
	_, engine, d := newDispatcherFixture(t)

	if err := d.SetCurrentStory(context.Background(), 11); err != nil {
		t.Fatalf("SetCurrentStory failed: %v", err)
	}

	snap := engine.Snapshot()
	if snap.CurrentStory == nil || snap.CurrentStory.ID != 11 {
		t.Fatalf("Expected story 11 tracked, got %+v", snap.CurrentStory)
	}
	if snap.Session.CurrentStoryID == nil || *snap.Session.CurrentStoryID != 11 {
		t.Error("Session CurrentStoryID not updated")
	}
}

func TestDispatcherFinalize(t *testing.T) {
	_, engine, d := newDispatcherFixture(t)

	story, err := d.Finalize(context.Background(), 10, "8", "agreed quickly")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if story.FinalEstimate != "8" || story.Status != model.StatusCompleted {
		t.Errorf("Unexpected finalized story: %+v", story)
	}

	snap := engine.Snapshot()
	if snap.CurrentStory.FinalEstimate != "8" {
		t.Error("Finalized story not applied to the view")
	}
}

func TestDispatcherResetStory(t *testing.T) {
	_, engine, d := newDispatcherFixture(t)
	ctx := context.Background()

	if _, err := d.CastVote(ctx, 10, 2, "8", 3); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}
	if _, err := d.RevealVotes(ctx); err != nil {
		t.Fatalf("RevealVotes failed: %v", err)
	}

	story, err := d.ResetStory(ctx, 10)
	if err != nil {
		t.Fatalf("ResetStory failed: %v", err)
	}
	if story.Status != model.StatusInProgress {
		t.Errorf("Expected story back in progress, got %s", story.Status)
	}
	if _, ok := d.SelectedEstimate(10); ok {
		t.Error("Reset should clear the local selection")
	}
	if engine.Snapshot().Session.VotesRevealed {
		t.Error("Reset should clear reveal state in the view")
	}
}
