package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/model"
	"github.com/pandac/pokersync/pokertest"
)

func newClientFixture(t *testing.T) (*pokertest.Server, *api.Client) {
	t.Helper()
	srv := pokertest.NewServer()
	t.Cleanup(srv.Close)
	return srv, api.NewClient(srv.URL())
}

func TestClientCreateSession(t *testing.T) {
	_, client := newClientFixture(t)

	resp, err := client.CreateSession(context.Background(), api.CreateSessionRequest{
		Name:          "Sprint 12",
		SizingMethod:  model.Fibonacci,
		ModeratorName: "mod",
	})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if resp.Session.Name != "Sprint 12" {
		t.Errorf("Unexpected session name %q", resp.Session.Name)
	}
	if err := model.ValidateSessionCode(resp.Session.SessionCode); err != nil {
		t.Errorf("Server issued invalid code %q: %v", resp.Session.SessionCode, err)
	}
	if !resp.Moderator.IsModerator {
		t.Error("Expected moderator flag on creator")
	}
	if client.Tokens().Get() == "" {
		t.Error("Expected token stored after create")
	}
}

func TestClientJoinStoresToken(t *testing.T) {
	srv, client := newClientFixture(t)
	srv.Seed(model.Session{ID: 1, SessionCode: "ABC123", Name: "Sprint", SizingMethod: model.Fibonacci, IsActive: true}, nil, nil)

	resp, err := client.JoinSession(context.Background(), "ABC123", api.JoinSessionRequest{Name: "dana"})
	if err != nil {
		t.Fatalf("JoinSession failed: %v", err)
	}
	if resp.UserID == 0 {
		t.Error("Expected assigned user ID")
	}
	if client.Tokens().Get() == "" {
		t.Error("Expected token stored after join")
	}
}

func TestClientNotFound(t *testing.T) {
	_, client := newClientFixture(t)

	_, err := client.GetSession(context.Background(), "ZZZZZZ")
	if !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestClientServerErrorSurfacesStatus(t *testing.T) {
	srv, client := newClientFixture(t)
	srv.Seed(model.Session{ID: 1, SessionCode: "ABC123", IsActive: true}, []model.Story{{ID: 10, Title: "Login"}}, []model.User{{ID: 1, Name: "mod", IsActive: true}})

	setCurrent(t, client, "ABC123", 10)
	srv.FailNext("reveal")

	_, err := client.RevealVotes(context.Background(), "ABC123")
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Unexpected status %d", apiErr.StatusCode)
	}
}

func TestClientUnauthorizedClearsToken(t *testing.T) {
	var sawToken string
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"token expired"}`))
	}))
	defer fake.Close()

	client := api.NewClient(fake.URL)
	client.Tokens().Set("stale-token")

	_, err := client.GetSession(context.Background(), "ABC123")
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if sawToken != "Bearer stale-token" {
		t.Errorf("Expected bearer header, saw %q", sawToken)
	}
	if client.Tokens().Get() != "" {
		t.Error("401 should clear the stored token")
	}
}

func TestClientLeaveClearsToken(t *testing.T) {
	srv, client := newClientFixture(t)
	srv.Seed(model.Session{ID: 1, SessionCode: "ABC123", IsActive: true}, nil, []model.User{{ID: 1, Name: "dana", IsActive: true}})
	client.Tokens().Set("test-token")

	if err := client.LeaveSession(context.Background(), "ABC123", 1); err != nil {
		t.Fatalf("LeaveSession failed: %v", err)
	}
	if client.Tokens().Get() != "" {
		t.Error("Leave should clear the stored token")
	}
}

func TestClientStoryLifecycle(t *testing.T) {
	srv, client := newClientFixture(t)
	srv.Seed(model.Session{ID: 1, SessionCode: "ABC123", SizingMethod: model.Fibonacci, IsActive: true}, nil, []model.User{{ID: 1, Name: "mod", IsActive: true, IsModerator: true}})

	ctx := context.Background()
	story, err := client.CreateStory(ctx, "ABC123", api.CreateStoryRequest{Title: "Login flow"})
	if err != nil {
		t.Fatalf("CreateStory failed: %v", err)
	}
	if story.Status != model.StatusNotEstimated {
		t.Errorf("Unexpected initial status %q", story.Status)
	}

	stories, err := client.GetStories(ctx, "ABC123", "")
	if err != nil {
		t.Fatalf("GetStories failed: %v", err)
	}
	if len(stories) != 1 || stories[0].Title != "Login flow" {
		t.Errorf("Unexpected backlog %+v", stories)
	}

	sess, err := client.SetCurrentStory(ctx, "ABC123", story.ID)
	if err != nil {
		t.Fatalf("SetCurrentStory failed: %v", err)
	}
	if sess.CurrentStoryID == nil || *sess.CurrentStoryID != story.ID {
		t.Errorf("Session did not pick up current story: %+v", sess.CurrentStoryID)
	}

	final, err := client.FinalizeStory(ctx, "ABC123", story.ID, api.FinalizeEstimateRequest{FinalEstimate: "5"})
	if err != nil {
		t.Fatalf("FinalizeStory failed: %v", err)
	}
	if final.Status != model.StatusCompleted || final.FinalEstimate != "5" {
		t.Errorf("Unexpected finalized story %+v", final)
	}
}

func TestClientVoteSecrecy(t *testing.T) {
	srv, client := newClientFixture(t)
	srv.Seed(model.Session{ID: 1, SessionCode: "ABC123", SizingMethod: model.Fibonacci, IsActive: true},
		[]model.Story{{ID: 10, Title: "Login", Status: model.StatusInProgress}},
		[]model.User{{ID: 1, Name: "mod", IsActive: true, IsModerator: true}})

	ctx := context.Background()
	setCurrent(t, client, "ABC123", 10)

	if _, err := client.CastVote(ctx, "ABC123", 10, api.VoteRequest{UserID: 1, Estimate: "5", Confidence: 4}); err != nil {
		t.Fatalf("CastVote failed: %v", err)
	}

	// Before reveal the server withholds the values.
	votes, err := client.GetVotes(ctx, "ABC123", 10)
	if err != nil {
		t.Fatalf("GetVotes failed: %v", err)
	}
	if len(votes) != 1 || votes[0].Estimate != "" {
		t.Errorf("Expected hidden estimate before reveal, got %+v", votes)
	}

	reveal, err := client.RevealVotes(ctx, "ABC123")
	if err != nil {
		t.Fatalf("RevealVotes failed: %v", err)
	}
	if reveal.StoryID != 10 || len(reveal.Votes) != 1 || reveal.Votes[0].Estimate != "5" {
		t.Errorf("Unexpected reveal %+v", reveal)
	}

	votes, err = client.GetVotes(ctx, "ABC123", 10)
	if err != nil {
		t.Fatalf("GetVotes failed: %v", err)
	}
	if votes[0].Estimate != "5" || votes[0].Confidence != 4 {
		t.Errorf("Expected full vote after reveal, got %+v", votes[0])
	}
}

func TestClientGetUsersActiveOnly(t *testing.T) {
	srv, client := newClientFixture(t)
	srv.Seed(model.Session{ID: 1, SessionCode: "ABC123", IsActive: true}, nil, []model.User{
		{ID: 1, Name: "mod", IsActive: true, IsModerator: true},
		{ID: 2, Name: "gone", IsActive: false},
	})

	ctx := context.Background()
	active, err := client.GetUsers(ctx, "ABC123", true)
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(active) != 1 || active[0].Name != "mod" {
		t.Errorf("Unexpected active roster %+v", active)
	}

	all, err := client.GetUsers(ctx, "ABC123", false)
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("Expected full roster of 2, got %d", len(all))
	}
}

func setCurrent(t *testing.T, client *api.Client, code string, storyID int64) {
	t.Helper()
	if _, err := client.SetCurrentStory(context.Background(), code, storyID); err != nil {
		t.Fatalf("SetCurrentStory failed: %v", err)
	}
}
