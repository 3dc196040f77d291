package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pandac/pokersync/poker/model"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the authoritative service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// TokenStore holds the bearer token issued on create/join. Safe for
// concurrent use.
type TokenStore struct {
	mu    sync.RWMutex
	token string
}

func (t *TokenStore) Get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

func (t *TokenStore) Set(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *TokenStore) Clear() {
	t.Set("")
}

// Client is the REST client for the estimation service. It treats the server
// as a black-box request/response interface; every mutation returns the
// authoritative resource representation, which callers feed into the sync
// engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *TokenStore
}

// NewClient creates a REST client rooted at baseURL (for example
// "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		tokens: &TokenStore{},
	}
}

// Tokens exposes the client's token store so session resume can restore a
// previously issued token.
func (c *Client) Tokens() *TokenStore {
	return c.tokens
}

// call performs one request against the API, attaching the bearer token when
// present and decoding either the result or the server's error payload. A 401
// clears the stored token.
func (c *Client) call(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + "/api" + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens.Get(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Message
		if msg == "" {
			msg = errResp.Error
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			c.tokens.Clear()
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// Session operations

// CreateSession opens a new session and stores the issued token.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	var resp CreateSessionResponse
	if err := c.call(ctx, "POST", "/sessions", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token != "" {
		c.tokens.Set(resp.Token)
	}
	return &resp, nil
}

// GetSession fetches the authoritative session snapshot.
func (c *Client) GetSession(ctx context.Context, sessionCode string) (*model.Session, error) {
	var session model.Session
	if err := c.call(ctx, "GET", "/sessions/"+sessionCode, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession changes session metadata or settings.
func (c *Client) UpdateSession(ctx context.Context, sessionCode string, req UpdateSessionRequest) (*model.Session, error) {
	var session model.Session
	if err := c.call(ctx, "PUT", "/sessions/"+sessionCode, req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// JoinSession adds a participant and stores the issued token.
func (c *Client) JoinSession(ctx context.Context, sessionCode string, req JoinSessionRequest) (*JoinSessionResponse, error) {
	var resp JoinSessionResponse
	if err := c.call(ctx, "POST", "/sessions/"+sessionCode+"/join", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token != "" {
		c.tokens.Set(resp.Token)
	}
	return &resp, nil
}

// LeaveSession marks the user inactive and clears the stored token.
func (c *Client) LeaveSession(ctx context.Context, sessionCode string, userID int64) error {
	err := c.call(ctx, "POST", fmt.Sprintf("/sessions/%s/users/%d/leave", sessionCode, userID), nil, nil)
	c.tokens.Clear()
	return err
}

// GetUsers fetches the authoritative roster. With activeOnly the server
// filters out participants who have left.
func (c *Client) GetUsers(ctx context.Context, sessionCode string, activeOnly bool) ([]model.User, error) {
	path := fmt.Sprintf("/sessions/%s/users?activeOnly=%t", sessionCode, activeOnly)
	var users []model.User
	if err := c.call(ctx, "GET", path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// SetCurrentStory activates a story for voting.
func (c *Client) SetCurrentStory(ctx context.Context, sessionCode string, storyID int64) (*model.Session, error) {
	path := fmt.Sprintf("/sessions/%s/current-story?storyId=%d", sessionCode, storyID)
	var session model.Session
	if err := c.call(ctx, "POST", path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// RevealVotes makes all votes for the current story visible.
func (c *Client) RevealVotes(ctx context.Context, sessionCode string) (*VoteReveal, error) {
	var reveal VoteReveal
	if err := c.call(ctx, "POST", "/sessions/"+sessionCode+"/reveal", nil, &reveal); err != nil {
		return nil, err
	}
	return &reveal, nil
}

// ResetVotes clears all votes for the current story.
func (c *Client) ResetVotes(ctx context.Context, sessionCode string) error {
	return c.call(ctx, "POST", "/sessions/"+sessionCode+"/reset-votes", nil, nil)
}

// Story operations

// CreateStory adds a story to the session backlog.
func (c *Client) CreateStory(ctx context.Context, sessionCode string, req CreateStoryRequest) (*model.Story, error) {
	var story model.Story
	if err := c.call(ctx, "POST", "/sessions/"+sessionCode+"/stories", req, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

// GetStories fetches the backlog, optionally filtered by status.
func (c *Client) GetStories(ctx context.Context, sessionCode string, status model.StoryStatus) ([]model.Story, error) {
	path := "/sessions/" + sessionCode + "/stories"
	if status != "" {
		path += "?status=" + string(status)
	}
	var stories []model.Story
	if err := c.call(ctx, "GET", path, nil, &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

// GetStory fetches one story.
func (c *Client) GetStory(ctx context.Context, sessionCode string, storyID int64) (*model.Story, error) {
	var story model.Story
	if err := c.call(ctx, "GET", fmt.Sprintf("/sessions/%s/stories/%d", sessionCode, storyID), nil, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

// UpdateStory edits a story.
func (c *Client) UpdateStory(ctx context.Context, sessionCode string, storyID int64, req UpdateStoryRequest) (*model.Story, error) {
	var story model.Story
	if err := c.call(ctx, "PUT", fmt.Sprintf("/sessions/%s/stories/%d", sessionCode, storyID), req, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

// DeleteStory removes a story from the backlog.
func (c *Client) DeleteStory(ctx context.Context, sessionCode string, storyID int64) error {
	return c.call(ctx, "DELETE", fmt.Sprintf("/sessions/%s/stories/%d", sessionCode, storyID), nil, nil)
}

// FinalizeStory records the agreed estimate for a story.
func (c *Client) FinalizeStory(ctx context.Context, sessionCode string, storyID int64, req FinalizeEstimateRequest) (*model.Story, error) {
	var story model.Story
	if err := c.call(ctx, "POST", fmt.Sprintf("/sessions/%s/stories/%d/finalize", sessionCode, storyID), req, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

// ResetStory clears a story's votes and estimate for re-voting.
func (c *Client) ResetStory(ctx context.Context, sessionCode string, storyID int64) (*model.Story, error) {
	var story model.Story
	if err := c.call(ctx, "POST", fmt.Sprintf("/sessions/%s/stories/%d/reset", sessionCode, storyID), nil, &story); err != nil {
		return nil, err
	}
	return &story, nil
}

// Vote operations

// CastVote casts or replaces the user's vote for a story.
func (c *Client) CastVote(ctx context.Context, sessionCode string, storyID int64, req VoteRequest) (*model.Vote, error) {
	var vote model.Vote
	if err := c.call(ctx, "POST", fmt.Sprintf("/sessions/%s/stories/%d/votes", sessionCode, storyID), req, &vote); err != nil {
		return nil, err
	}
	return &vote, nil
}

// GetVotes lists votes for a story. Vote values are withheld by the server
// until the story's votes are revealed.
func (c *Client) GetVotes(ctx context.Context, sessionCode string, storyID int64) ([]VoteResponse, error) {
	var votes []VoteResponse
	if err := c.call(ctx, "GET", fmt.Sprintf("/sessions/%s/stories/%d/votes", sessionCode, storyID), nil, &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

// DeleteVote withdraws a user's vote.
func (c *Client) DeleteVote(ctx context.Context, sessionCode string, storyID, userID int64) error {
	return c.call(ctx, "DELETE", fmt.Sprintf("/sessions/%s/stories/%d/votes/%d", sessionCode, storyID, userID), nil, nil)
}

// User operations

// GetUser fetches one participant.
func (c *Client) GetUser(ctx context.Context, sessionCode string, userID int64) (*model.User, error) {
	var user model.User
	if err := c.call(ctx, "GET", fmt.Sprintf("/sessions/%s/users/%d", sessionCode, userID), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser edits a participant's profile.
func (c *Client) UpdateUser(ctx context.Context, sessionCode string, userID int64, req UpdateUserRequest) (*model.User, error) {
	var user model.User
	if err := c.call(ctx, "PUT", fmt.Sprintf("/sessions/%s/users/%d", sessionCode, userID), req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ExportSession downloads the full session data for archival or analysis.
func (c *Client) ExportSession(ctx context.Context, sessionCode string) (*SessionExport, error) {
	var export SessionExport
	if err := c.call(ctx, "GET", "/sessions/"+sessionCode+"/export", nil, &export); err != nil {
		return nil, err
	}
	return &export, nil
}
