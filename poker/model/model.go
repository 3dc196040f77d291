package model

import (
	"crypto/rand"
	"errors"
	"time"
)

var (
	ErrInvalidSessionCode = errors.New("invalid session code")
	ErrInvalidEstimate    = errors.New("estimate not in session deck")
	ErrInvalidConfidence  = errors.New("confidence must be between 1 and 5")
)

// SizingMethod identifies the estimation scale a session uses.
type SizingMethod string

const (
	Fibonacci SizingMethod = "FIBONACCI"
	TShirt    SizingMethod = "T_SHIRT"
	PowersOf2 SizingMethod = "POWERS_OF_2"
	Linear    SizingMethod = "LINEAR"
	Custom    SizingMethod = "CUSTOM"
)

// StoryStatus tracks where a story is in its estimation lifecycle.
type StoryStatus string

const (
	StatusNotEstimated StoryStatus = "NOT_ESTIMATED"
	StatusInProgress   StoryStatus = "IN_PROGRESS"
	StatusCompleted    StoryStatus = "COMPLETED"
)

// Session is the client's cached copy of a server-owned estimation session.
// It is only mutated as a projection of a confirmed REST response or a decoded
// push event, never directly by presentation code.
type Session struct {
	ID               int64        `json:"id"`
	SessionCode      string       `json:"sessionCode"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	SizingMethod     SizingMethod `json:"sizingMethod"`
	CustomValues     []string     `json:"customValues,omitempty"`
	ModeratorID      int64        `json:"moderatorId"`
	CurrentStoryID   *int64       `json:"currentStoryId,omitempty"`
	VotesRevealed    bool         `json:"votesRevealed"`
	ModeratorCanVote bool         `json:"moderatorCanVote"`
	AllowChangeVote  bool         `json:"allowChangeVote"`
	TimerEnabled     bool         `json:"timerEnabled"`
	TimerDuration    int          `json:"timerDuration"`
	IsActive         bool         `json:"isActive"`
	CreatedAt        time.Time    `json:"createdAt,omitempty"`
	UpdatedAt        time.Time    `json:"updatedAt,omitempty"`
}

// Deck returns the estimate values valid for this session's sizing method.
func (s *Session) Deck() []string {
	if s.SizingMethod == Custom {
		return s.CustomValues
	}
	return DefaultDeck(s.SizingMethod)
}

// Story is a work item being estimated.
type Story struct {
	ID                 int64       `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description,omitempty"`
	AcceptanceCriteria string      `json:"acceptanceCriteria,omitempty"`
	Priority           string      `json:"priority,omitempty"`
	OrderIndex         int         `json:"orderIndex"`
	Status             StoryStatus `json:"status"`
	FinalEstimate      string      `json:"finalEstimate,omitempty"`
	EstimateNotes      string      `json:"estimateNotes,omitempty"`
	CreatedAt          time.Time   `json:"createdAt,omitempty"`
	UpdatedAt          time.Time   `json:"updatedAt,omitempty"`
}

// Vote is one user's estimate for one story. A user holds at most one vote per
// story; casting again replaces the previous vote server-side.
type Vote struct {
	ID         int64     `json:"id"`
	StoryID    int64     `json:"storyId"`
	UserID     int64     `json:"userId"`
	Estimate   string    `json:"estimate,omitempty"`
	Confidence int       `json:"confidence"`
	VotedAt    time.Time `json:"votedAt,omitempty"`
}

// User is a session participant.
type User struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar,omitempty"`
	IsActive    bool      `json:"isActive"`
	IsObserver  bool      `json:"isObserver"`
	IsModerator bool      `json:"isModerator"`
	JoinedAt    time.Time `json:"joinedAt,omitempty"`
}

// defaultDecks holds the built-in estimate scales. CUSTOM sessions carry their
// own values and have no default deck.
var defaultDecks = map[SizingMethod][]string{
	Fibonacci: {"1", "2", "3", "5", "8", "13", "21", "∞", "?", "☕"},
	TShirt:    {"XS", "S", "M", "L", "XL", "XXL", "∞", "?", "☕"},
	PowersOf2: {"1", "2", "4", "8", "16", "32", "64", "∞", "?", "☕"},
	Linear:    {"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "∞", "?", "☕"},
}

// DefaultDeck returns the built-in values for a sizing method, or nil for
// CUSTOM and unknown methods.
func DefaultDeck(method SizingMethod) []string {
	return defaultDecks[method]
}

// ValidateEstimate checks that an estimate is a member of the given deck.
func ValidateEstimate(deck []string, estimate string) error {
	for _, v := range deck {
		if v == estimate {
			return nil
		}
	}
	return ErrInvalidEstimate
}

// ValidateConfidence checks the 1-5 confidence scale.
func ValidateConfidence(confidence int) error {
	if confidence < 1 || confidence > 5 {
		return ErrInvalidConfidence
	}
	return nil
}

const sessionCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SessionCodeLength is the fixed length of server-issued session codes.
const SessionCodeLength = 6

// GenerateSessionCode returns a random 6-character code from the session code
// alphabet. The server issues authoritative codes; this is used by tests and
// the fake server.
func GenerateSessionCode() string {
	buf := make([]byte, SessionCodeLength)
	rand.Read(buf)
	for i := range buf {
		buf[i] = sessionCodeAlphabet[int(buf[i])%len(sessionCodeAlphabet)]
	}
	return string(buf)
}

// ValidateSessionCode checks length and alphabet membership.
func ValidateSessionCode(code string) error {
	if len(code) != SessionCodeLength {
		return ErrInvalidSessionCode
	}
	for _, r := range code {
		ok := (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return ErrInvalidSessionCode
		}
	}
	return nil
}
