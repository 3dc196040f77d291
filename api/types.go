package api

import (
	"time"

	"github.com/pandac/pokersync/poker/model"
)

// SessionSettings groups per-session behavior toggles.
type SessionSettings struct {
	AutoReveal        bool `json:"autoReveal"`
	TimerEnabled      bool `json:"timerEnabled"`
	TimerDuration     int  `json:"timerDuration"`
	AllowChangeVote   bool `json:"allowChangeVote"`
	AllowObservers    bool `json:"allowObservers"`
	RequireConfidence bool `json:"requireConfidence"`
}

// CreateSessionRequest opens a new estimation session.
type CreateSessionRequest struct {
	Name             string             `json:"name"`
	Description      string             `json:"description,omitempty"`
	SizingMethod     model.SizingMethod `json:"sizingMethod"`
	CustomValues     []string           `json:"customValues,omitempty"`
	ModeratorName    string             `json:"moderatorName"`
	ModeratorAvatar  string             `json:"moderatorAvatar,omitempty"`
	ModeratorCanVote bool               `json:"moderatorCanVote"`
	Settings         *SessionSettings   `json:"settings,omitempty"`
}

// CreateSessionResponse carries the new session, its moderator, and the auth
// token for subsequent calls.
type CreateSessionResponse struct {
	Session     model.Session `json:"session"`
	Token       string        `json:"token"`
	ModeratorID int64         `json:"moderatorId"`
	Moderator   model.User    `json:"moderator"`
}

// JoinSessionRequest adds a participant to an existing session.
type JoinSessionRequest struct {
	Name       string `json:"name"`
	Avatar     string `json:"avatar,omitempty"`
	IsObserver bool   `json:"isObserver"`
}

// JoinSessionResponse mirrors the server's membership record.
type JoinSessionResponse struct {
	SessionCode string        `json:"sessionCode"`
	UserID      int64         `json:"userId"`
	User        model.User    `json:"user"`
	Session     model.Session `json:"session"`
	Token       string        `json:"token"`
}

// UpdateSessionRequest changes session name, description, or settings.
type UpdateSessionRequest struct {
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Settings    *SessionSettings `json:"settings,omitempty"`
}

// CreateStoryRequest adds a story to the backlog.
type CreateStoryRequest struct {
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	AcceptanceCriteria string   `json:"acceptanceCriteria,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Priority           string   `json:"priority,omitempty"`
}

// UpdateStoryRequest edits an existing story.
type UpdateStoryRequest struct {
	Title              string `json:"title,omitempty"`
	Description        string `json:"description,omitempty"`
	AcceptanceCriteria string `json:"acceptanceCriteria,omitempty"`
	Priority           string `json:"priority,omitempty"`
	OrderIndex         *int   `json:"orderIndex,omitempty"`
}

// FinalizeEstimateRequest records the agreed estimate for a story.
type FinalizeEstimateRequest struct {
	FinalEstimate string `json:"finalEstimate"`
	Notes         string `json:"notes,omitempty"`
}

// VoteRequest casts or replaces one user's vote for a story.
type VoteRequest struct {
	UserID     int64  `json:"userId"`
	Estimate   string `json:"estimate"`
	Confidence int    `json:"confidence"`
}

// VoteResponse is one vote as returned by the vote listing. Estimate is empty
// until the story's votes are revealed, except for the caller's own vote.
type VoteResponse struct {
	ID         int64     `json:"id"`
	Estimate   string    `json:"estimate,omitempty"`
	Confidence int       `json:"confidence,omitempty"`
	VotedAt    time.Time `json:"votedAt,omitempty"`
	User       VoteUser  `json:"user"`
}

// VoteUser identifies the voter inside a VoteResponse.
type VoteUser struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Avatar      string `json:"avatar,omitempty"`
	IsModerator bool   `json:"isModerator"`
	IsObserver  bool   `json:"isObserver"`
}

// VoteReveal is the tally returned once votes are revealed.
type VoteReveal struct {
	StoryID             int64          `json:"storyId"`
	Votes               []VoteResponse `json:"votes"`
	Consensus           bool           `json:"consensus"`
	AverageEstimate     float64        `json:"averageEstimate,omitempty"`
	MedianEstimate      string         `json:"medianEstimate,omitempty"`
	RecommendedEstimate string         `json:"recommendedEstimate,omitempty"`
	Distribution        map[string]int `json:"distribution,omitempty"`
}

// UpdateUserRequest edits a participant's profile.
type UpdateUserRequest struct {
	Name       string `json:"name,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	IsObserver *bool  `json:"isObserver,omitempty"`
}

// SessionExport is the portable representation produced by the export
// endpoint and consumed by the analyze command.
type SessionExport struct {
	Session    model.Session             `json:"session"`
	Stories    []model.Story             `json:"stories"`
	Users      []model.User              `json:"users"`
	Votes      map[string][]VoteResponse `json:"votes,omitempty"` // story id -> votes
	ExportedAt time.Time                 `json:"exportedAt"`
}
