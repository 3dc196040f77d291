package event

import (
	"errors"
	"testing"
)

func TestDecode_StoryActivated(t *testing.T) {
	data := []byte(`{"type":"STORY_ACTIVATED","story":{"id":42,"title":"Login flow","status":"IN_PROGRESS"}}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	activated, ok := ev.(StoryActivated)
	if !ok {
		t.Fatalf("Expected StoryActivated, got %T", ev)
	}
	if activated.Story.ID != 42 {
		t.Errorf("Expected story ID 42, got %d", activated.Story.ID)
	}
	if activated.Story.Title != "Login flow" {
		t.Errorf("Expected title 'Login flow', got %q", activated.Story.Title)
	}
	if activated.EventType() != TypeStoryActivated {
		t.Errorf("Expected type %s, got %s", TypeStoryActivated, activated.EventType())
	}
}

func TestDecode_VotesRevealed(t *testing.T) {
	data := []byte(`{"type":"VOTES_REVEALED","storyId":7,"sessionCode":"ABC123"}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	revealed, ok := ev.(VotesRevealed)
	if !ok {
		t.Fatalf("Expected VotesRevealed, got %T", ev)
	}
	if revealed.StoryID != 7 {
		t.Errorf("Expected story ID 7, got %d", revealed.StoryID)
	}
	if revealed.SessionCode != "ABC123" {
		t.Errorf("Expected session code ABC123, got %q", revealed.SessionCode)
	}
}

func TestDecode_VoteCastCarriesNoEstimate(t *testing.T) {
	// The wire payload for a cast vote is only a signal: story and count.
	data := []byte(`{"type":"VOTE_CAST","storyId":7,"voteCount":3}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	cast, ok := ev.(VoteCast)
	if !ok {
		t.Fatalf("Expected VoteCast, got %T", ev)
	}
	if cast.StoryID != 7 || cast.VoteCount != 3 {
		t.Errorf("Unexpected payload: %+v", cast)
	}
}

func TestDecode_UserEvents(t *testing.T) {
	joined, err := Decode([]byte(`{"type":"USER_JOINED","userId":5,"userName":"dana"}`))
	if err != nil {
		t.Fatalf("Decode USER_JOINED failed: %v", err)
	}
	if ev := joined.(UserJoined); ev.UserID != 5 || ev.UserName != "dana" {
		t.Errorf("Unexpected UserJoined payload: %+v", ev)
	}

	left, err := Decode([]byte(`{"type":"USER_LEFT","userId":5,"userName":"dana"}`))
	if err != nil {
		t.Fatalf("Decode USER_LEFT failed: %v", err)
	}
	if ev := left.(UserLeft); ev.UserID != 5 {
		t.Errorf("Unexpected UserLeft payload: %+v", ev)
	}
}

func TestDecode_TimerSettingsChanged(t *testing.T) {
	data := []byte(`{"type":"TIMER_SETTINGS_CHANGED","timerEnabled":true,"timerDuration":90}`)

	ev, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	timer := ev.(TimerSettingsChanged)
	if !timer.TimerEnabled || timer.TimerDuration != 90 {
		t.Errorf("Unexpected payload: %+v", timer)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	data := []byte(`{"type":"SESSION_ARCHIVED","sessionCode":"ABC123"}`)

	_, err := Decode(data)
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Expected ErrUnknownType, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"type": busted`},
		{"story event without story", `{"type":"STORY_ACTIVATED"}`},
		{"wrong field type", `{"type":"VOTE_CAST","storyId":"not-a-number"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecode_EmptyType(t *testing.T) {
	_, err := Decode([]byte(`{"storyId":1}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Expected ErrUnknownType for missing type, got %v", err)
	}
}
