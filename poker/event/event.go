package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pandac/pokersync/poker/model"
)

var (
	// ErrUnknownType marks an envelope whose type discriminator is not
	// recognized. Callers drop these so newer servers don't break older
	// clients.
	ErrUnknownType = errors.New("unknown event type")

	// ErrMalformed marks an envelope that carried a known type but an
	// unusable payload.
	ErrMalformed = errors.New("malformed event payload")
)

// Type discriminates push event payloads.
type Type string

const (
	TypeStoryActivated       Type = "STORY_ACTIVATED"
	TypeStoryReset           Type = "STORY_RESET"
	TypeStoryFinalized       Type = "STORY_FINALIZED"
	TypeVotesRevealed        Type = "VOTES_REVEALED"
	TypeVotesReset           Type = "VOTES_RESET"
	TypeVoteCast             Type = "VOTE_CAST"
	TypeUserJoined           Type = "USER_JOINED"
	TypeUserLeft             Type = "USER_LEFT"
	TypeTimerSettingsChanged Type = "TIMER_SETTINGS_CHANGED"
)

// Event is a decoded push notification.
type Event interface {
	EventType() Type
}

// StoryActivated announces the story now open for voting. The server clears
// reveal state when it activates a story, so the client mirrors that.
type StoryActivated struct {
	Story model.Story `json:"story"`
}

// StoryReset announces that votes for a story were discarded for re-voting.
type StoryReset struct {
	Story model.Story `json:"story"`
}

// StoryFinalized announces a stored final estimate.
type StoryFinalized struct {
	Story model.Story `json:"story"`
}

// VotesRevealed announces that vote values for a story are now visible.
// The tally itself is never embedded; consumers re-pull the vote list.
type VotesRevealed struct {
	StoryID     int64  `json:"storyId"`
	SessionCode string `json:"sessionCode"`
}

// VotesReset announces that votes for a story were cleared.
type VotesReset struct {
	StoryID     int64  `json:"storyId"`
	SessionCode string `json:"sessionCode"`
}

// VoteCast signals that some vote changed. It deliberately carries no vote
// value so hidden votes never transit to other participants before reveal.
type VoteCast struct {
	StoryID   int64 `json:"storyId"`
	VoteCount int   `json:"voteCount"`
}

// UserJoined signals a roster change. The payload identifies the user but
// consumers re-pull the authoritative roster rather than patching it.
type UserJoined struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// UserLeft signals a roster change; handled the same way as UserJoined.
type UserLeft struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
}

// TimerSettingsChanged carries the session's new timer configuration.
type TimerSettingsChanged struct {
	TimerEnabled  bool `json:"timerEnabled"`
	TimerDuration int  `json:"timerDuration"`
}

func (StoryActivated) EventType() Type       { return TypeStoryActivated }
func (StoryReset) EventType() Type           { return TypeStoryReset }
func (StoryFinalized) EventType() Type       { return TypeStoryFinalized }
func (VotesRevealed) EventType() Type        { return TypeVotesRevealed }
func (VotesReset) EventType() Type           { return TypeVotesReset }
func (VoteCast) EventType() Type             { return TypeVoteCast }
func (UserJoined) EventType() Type           { return TypeUserJoined }
func (UserLeft) EventType() Type             { return TypeUserLeft }
func (TimerSettingsChanged) EventType() Type { return TypeTimerSettingsChanged }

// Decode parses one raw frame body into a typed event. A frame with an
// unrecognized type returns ErrUnknownType; a frame with a known type but a
// broken payload returns an error wrapping ErrMalformed. Decode never panics
// on malformed input.
func Decode(data []byte) (Event, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch head.Type {
	case TypeStoryActivated:
		story, err := decodeStoryPayload(data)
		if err != nil {
			return nil, err
		}
		return StoryActivated{Story: *story}, nil
	case TypeStoryReset:
		story, err := decodeStoryPayload(data)
		if err != nil {
			return nil, err
		}
		return StoryReset{Story: *story}, nil
	case TypeStoryFinalized:
		story, err := decodeStoryPayload(data)
		if err != nil {
			return nil, err
		}
		return StoryFinalized{Story: *story}, nil
	case TypeVotesRevealed:
		var e VotesRevealed
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return e, nil
	case TypeVotesReset:
		var e VotesReset
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return e, nil
	case TypeVoteCast:
		var e VoteCast
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return e, nil
	case TypeUserJoined:
		var e UserJoined
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return e, nil
	case TypeUserLeft:
		var e UserLeft
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return e, nil
	case TypeTimerSettingsChanged:
		var e TimerSettingsChanged
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}
}

// decodeStoryPayload extracts the embedded story shared by the three story
// events. A story event without a story object is unusable.
func decodeStoryPayload(data []byte) (*model.Story, error) {
	var wire struct {
		Story *model.Story `json:"story"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Story == nil {
		return nil, fmt.Errorf("%w: story event without story", ErrMalformed)
	}
	return wire.Story, nil
}
