package sync

import (
	"context"
	"fmt"
	"sync"

	log15 "github.com/inconshreveable/log15/v3"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/model"
)

// Dispatcher issues authoritative mutations through the REST interface and
// feeds each confirmed response into the engine, so push reconciliation and
// action confirmation share one merge policy. The push channel later delivers
// the same transition to the actor; the engine applies it as a no-op.
type Dispatcher struct {
	client      *api.Client
	engine      *Engine
	sessionCode string
	log         log15.Logger

	mu       sync.Mutex
	selected map[int64]string // storyID -> optimistically selected estimate
}

// NewDispatcher binds a dispatcher to one session's REST client and engine.
func NewDispatcher(client *api.Client, engine *Engine, sessionCode string, logger log15.Logger) *Dispatcher {
	return &Dispatcher{
		client:      client,
		engine:      engine,
		sessionCode: sessionCode,
		log:         logger.New("component", "dispatch"),
		selected:    make(map[int64]string),
	}
}

// RevealVotes asks the server to reveal the current story's votes. On success
// the confirmed reveal state is applied to the view and the tally returned;
// the broadcast that follows is absorbed as a duplicate.
func (d *Dispatcher) RevealVotes(ctx context.Context) (*api.VoteReveal, error) {
	reveal, err := d.client.RevealVotes(ctx, d.sessionCode)
	if err != nil {
		return nil, fmt.Errorf("reveal votes: %w", err)
	}
	d.engine.SetVotesRevealed(true)
	return reveal, nil
}

// ResetVotes clears all votes for the current story.
func (d *Dispatcher) ResetVotes(ctx context.Context) error {
	if err := d.client.ResetVotes(ctx, d.sessionCode); err != nil {
		return fmt.Errorf("reset votes: %w", err)
	}
	d.engine.SetVotesRevealed(false)
	d.engine.BumpVoteVersion()
	return nil
}

// SetCurrentStory activates a story for voting and applies the authoritative
// session plus story to the view.
func (d *Dispatcher) SetCurrentStory(ctx context.Context, storyID int64) error {
	session, err := d.client.SetCurrentStory(ctx, d.sessionCode, storyID)
	if err != nil {
		return fmt.Errorf("set current story: %w", err)
	}
	story, err := d.client.GetStory(ctx, d.sessionCode, storyID)
	if err != nil {
		return fmt.Errorf("fetch activated story: %w", err)
	}
	d.engine.SetSession(session)
	d.engine.SetCurrentStory(story)
	return nil
}

// CastVote casts or replaces the user's vote. The selected estimate is
// applied optimistically (so a card can highlight before the server confirms)
// and rolled back if the call fails. The vote value itself never enters the
// shared view.
func (d *Dispatcher) CastVote(ctx context.Context, storyID, userID int64, estimate string, confidence int) (*model.Vote, error) {
	// Confidence is optional; zero means the voter skipped it.
	if confidence != 0 {
		if err := model.ValidateConfidence(confidence); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	prev, hadPrev := d.selected[storyID]
	d.selected[storyID] = estimate
	d.mu.Unlock()

	vote, err := d.client.CastVote(ctx, d.sessionCode, storyID, api.VoteRequest{
		UserID:     userID,
		Estimate:   estimate,
		Confidence: confidence,
	})
	if err != nil {
		d.mu.Lock()
		if hadPrev {
			d.selected[storyID] = prev
		} else {
			delete(d.selected, storyID)
		}
		d.mu.Unlock()
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	d.engine.BumpVoteVersion()
	return vote, nil
}

// SelectedEstimate reports the estimate this client has (optimistically or
// confirmed) selected for a story.
func (d *Dispatcher) SelectedEstimate(storyID int64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	estimate, ok := d.selected[storyID]
	return estimate, ok
}

// Finalize stores the agreed estimate for a story and applies the confirmed
// story to the view.
func (d *Dispatcher) Finalize(ctx context.Context, storyID int64, estimate, notes string) (*model.Story, error) {
	story, err := d.client.FinalizeStory(ctx, d.sessionCode, storyID, api.FinalizeEstimateRequest{
		FinalEstimate: estimate,
		Notes:         notes,
	})
	if err != nil {
		return nil, fmt.Errorf("finalize story: %w", err)
	}
	snap := d.engine.Snapshot()
	if snap.CurrentStory != nil && snap.CurrentStory.ID == storyID {
		d.engine.SetCurrentStory(story)
	}
	return story, nil
}

// ResetStory clears a story's votes and estimate for re-voting.
func (d *Dispatcher) ResetStory(ctx context.Context, storyID int64) (*model.Story, error) {
	story, err := d.client.ResetStory(ctx, d.sessionCode, storyID)
	if err != nil {
		return nil, fmt.Errorf("reset story: %w", err)
	}
	d.mu.Lock()
	delete(d.selected, storyID)
	d.mu.Unlock()

	snap := d.engine.Snapshot()
	if snap.CurrentStory != nil && snap.CurrentStory.ID == storyID {
		d.engine.SetCurrentStory(story)
		d.engine.SetVotesRevealed(false)
	}
	return story, nil
}
