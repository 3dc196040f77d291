package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/config"
	"github.com/pandac/pokersync/poker/model"
)

// Server exposes planning poker sessions as MCP tools. It is a thin layer
// over the REST client; every tool call translates to one or two API
// requests and a text rendering of the result.
type Server struct {
	client    *api.Client
	decks     *config.DeckManager
	mcpServer *server.MCPServer
}

// NewServer creates the MCP tool surface backed by the given REST client.
func NewServer(client *api.Client, decks *config.DeckManager) *Server {
	s := &Server{
		client: client,
		decks:  decks,
	}
	s.initMCPServer()
	return s
}

func (s *Server) initMCPServer() {
	s.mcpServer = server.NewMCPServer(
		"Planning Poker",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Planning Poker - MCP Interface

Estimate stories collaboratively. Create or join a session, activate a
story, cast votes, then reveal and finalize.

AVAILABLE TOOLS:
- create_session: Start a new estimation session (you become moderator)
- join_session: Join an existing session by its 6-character code
- session_state: Current session, active story, roster, and reveal state
- list_stories: The session's story backlog
- create_story: Add a story to the backlog
- set_current_story: Activate a story for voting (moderator)
- cast_vote: Cast or change your vote on the active story
- reveal_votes: Make all votes visible (moderator)
- reset_votes: Clear votes for a re-vote (moderator)
- finalize_estimate: Record the agreed estimate (moderator)
- list_decks: Show built-in and custom estimate decks

Vote values stay hidden until the moderator reveals them.`),
	)
	s.registerTools()
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new estimation session and become its moderator",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Session name",
				},
				"moderator_name": map[string]interface{}{
					"type":        "string",
					"description": "Your display name",
				},
				"sizing_method": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"FIBONACCI", "T_SHIRT", "POWERS_OF_2", "LINEAR", "CUSTOM"},
					"description": "Estimate scale (default FIBONACCI)",
				},
				"custom_values": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "string",
					},
					"description": "Deck values when sizing_method is CUSTOM",
				},
			},
			Required: []string{"name", "moderator_name"},
		},
	}, s.handleCreateSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "join_session",
		Description: "Join an existing session by its 6-character code",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Your display name",
				},
				"observer": map[string]interface{}{
					"type":        "boolean",
					"description": "Join as a non-voting observer",
				},
			},
			Required: []string{"session_code", "name"},
		},
	}, s.handleJoinSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "session_state",
		Description: "Get the session, its active story, roster, and vote state",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
			},
			Required: []string{"session_code"},
		},
	}, s.handleSessionState)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_stories",
		Description: "List the session's story backlog",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
			},
			Required: []string{"session_code"},
		},
	}, s.handleListStories)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "create_story",
		Description: "Add a story to the session backlog",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Story title",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Story description (optional)",
				},
			},
			Required: []string{"session_code", "title"},
		},
	}, s.handleCreateStory)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "set_current_story",
		Description: "Activate a story for voting (moderator only)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
				"story_id": map[string]interface{}{
					"type":        "integer",
					"description": "ID of the story to activate",
				},
			},
			Required: []string{"session_code", "story_id"},
		},
	}, s.handleSetCurrentStory)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "cast_vote",
		Description: "Cast or change your vote on a story",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
				"story_id": map[string]interface{}{
					"type":        "integer",
					"description": "ID of the story being voted on",
				},
				"user_id": map[string]interface{}{
					"type":        "integer",
					"description": "Your user ID from create/join",
				},
				"estimate": map[string]interface{}{
					"type":        "string",
					"description": "Estimate value from the session's deck",
				},
				"confidence": map[string]interface{}{
					"type":        "integer",
					"description": "Confidence 1-5 (optional)",
				},
			},
			Required: []string{"session_code", "story_id", "user_id", "estimate"},
		},
	}, s.handleCastVote)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "reveal_votes",
		Description: "Reveal all votes for the active story (moderator only)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
			},
			Required: []string{"session_code"},
		},
	}, s.handleRevealVotes)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_votes",
		Description: "Clear votes on the active story for a re-vote (moderator only)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
			},
			Required: []string{"session_code"},
		},
	}, s.handleResetVotes)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "finalize_estimate",
		Description: "Record the agreed final estimate for a story (moderator only)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_code": map[string]interface{}{
					"type":        "string",
					"description": "6-character session code",
				},
				"story_id": map[string]interface{}{
					"type":        "integer",
					"description": "ID of the story to finalize",
				},
				"estimate": map[string]interface{}{
					"type":        "string",
					"description": "Final estimate value",
				},
				"notes": map[string]interface{}{
					"type":        "string",
					"description": "Notes about the decision (optional)",
				},
			},
			Required: []string{"session_code", "story_id", "estimate"},
		},
	}, s.handleFinalizeEstimate)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_decks",
		Description: "List built-in and custom estimate decks",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListDecks)
}

// GetMCPServer returns the underlying MCP server for serving over stdio.
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// Tool handlers

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	name, _ := args["name"].(string)
	moderatorName, _ := args["moderator_name"].(string)
	sizingMethod, _ := args["sizing_method"].(string)
	if sizingMethod == "" {
		sizingMethod = string(model.Fibonacci)
	}

	var customValues []string
	if raw, ok := args["custom_values"].([]interface{}); ok {
		for _, v := range raw {
			if value, ok := v.(string); ok {
				customValues = append(customValues, value)
			}
		}
	}

	resp, err := s.client.CreateSession(ctx, api.CreateSessionRequest{
		Name:          name,
		SizingMethod:  model.SizingMethod(sizingMethod),
		CustomValues:  customValues,
		ModeratorName: moderatorName,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session %s (%q)\nModerator: %s (user %d)\nDeck: %s\n\nShare the code %s so others can join.",
		resp.Session.SessionCode, resp.Session.Name,
		resp.Moderator.Name, resp.ModeratorID,
		strings.Join(resp.Session.Deck(), " "),
		resp.Session.SessionCode)
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleJoinSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)
	name, _ := args["name"].(string)
	observer, _ := args["observer"].(bool)

	if err := model.ValidateSessionCode(code); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.client.JoinSession(ctx, code, api.JoinSessionRequest{
		Name:       name,
		IsObserver: observer,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	role := "participant"
	if observer {
		role = "observer"
	}
	result := fmt.Sprintf("Joined session %s (%q) as %s (user %d, %s)\nDeck: %s",
		resp.SessionCode, resp.Session.Name,
		resp.User.Name, resp.UserID, role,
		strings.Join(resp.Session.Deck(), " "))
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleSessionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)

	session, err := s.client.GetSession(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var story *model.Story
	if session.CurrentStoryID != nil {
		story, err = s.client.GetStory(ctx, code, *session.CurrentStoryID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	users, err := s.client.GetUsers(ctx, code, true)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := formatSessionState(session, story, users)

	if story != nil {
		votes, err := s.client.GetVotes(ctx, code, story.ID)
		if err == nil {
			result += "\n" + formatVotes(votes, session.VotesRevealed)
		}
	}
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleListStories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)

	stories, err := s.client.GetStories(ctx, code, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(stories) == 0 {
		return mcp.NewToolResultText("No stories yet. Use create_story to add one."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stories (%d):\n\n", len(stories))
	for _, story := range stories {
		fmt.Fprintf(&b, "- [%d] %s (%s)", story.ID, story.Title, story.Status)
		if story.FinalEstimate != "" {
			fmt.Fprintf(&b, " → %s", story.FinalEstimate)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleCreateStory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)
	title, _ := args["title"].(string)
	description, _ := args["description"].(string)

	story, err := s.client.CreateStory(ctx, code, api.CreateStoryRequest{
		Title:       title,
		Description: description,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created story [%d] %s", story.ID, story.Title)
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleSetCurrentStory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)
	storyID := int64(args["story_id"].(float64))

	session, err := s.client.SetCurrentStory(ctx, code, storyID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Story %d is now active for voting in session %s. Votes are hidden until revealed.",
		storyID, session.SessionCode)
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleCastVote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)
	storyID := int64(args["story_id"].(float64))
	userID := int64(args["user_id"].(float64))
	estimate, _ := args["estimate"].(string)
	confidence := 0
	if c, ok := args["confidence"].(float64); ok {
		confidence = int(c)
	}

	vote, err := s.client.CastVote(ctx, code, storyID, api.VoteRequest{
		UserID:     userID,
		Estimate:   estimate,
		Confidence: confidence,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Vote recorded for story %d (vote id %d). It stays hidden until the moderator reveals.",
		storyID, vote.ID)
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleRevealVotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)

	reveal, err := s.client.RevealVotes(ctx, code)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Votes revealed for story %d:\n\n", reveal.StoryID)
	for _, vote := range reveal.Votes {
		fmt.Fprintf(&b, "- %s: %s", vote.User.Name, vote.Estimate)
		if vote.Confidence > 0 {
			fmt.Fprintf(&b, " (confidence %d/5)", vote.Confidence)
		}
		b.WriteString("\n")
	}
	if reveal.Consensus {
		b.WriteString("\nConsensus reached!")
	} else if reveal.RecommendedEstimate != "" {
		fmt.Fprintf(&b, "\nRecommended estimate: %s", reveal.RecommendedEstimate)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleResetVotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)

	if err := s.client.ResetVotes(ctx, code); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Votes cleared. Participants can vote again."), nil
}

func (s *Server) handleFinalizeEstimate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments.(map[string]interface{})
	code, _ := args["session_code"].(string)
	storyID := int64(args["story_id"].(float64))
	estimate, _ := args["estimate"].(string)
	notes, _ := args["notes"].(string)

	story, err := s.client.FinalizeStory(ctx, code, storyID, api.FinalizeEstimateRequest{
		FinalEstimate: estimate,
		Notes:         notes,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Story [%d] %s finalized with estimate %s", story.ID, story.Title, story.FinalEstimate)
	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleListDecks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("Built-in decks:\n\n")
	for _, method := range []model.SizingMethod{model.Fibonacci, model.TShirt, model.PowersOf2, model.Linear} {
		fmt.Fprintf(&b, "- %s: %s\n", method, strings.Join(model.DefaultDeck(method), " "))
	}

	if s.decks != nil {
		custom, err := s.decks.List()
		if err == nil && len(custom) > 0 {
			b.WriteString("\nCustom decks:\n\n")
			for _, deck := range custom {
				fmt.Fprintf(&b, "- %s: %s\n", deck.Name, strings.Join(deck.Values, " "))
			}
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// Formatting helpers

func formatSessionState(session *model.Session, story *model.Story, users []model.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%q)\nDeck: %s\n", session.SessionCode, session.Name,
		strings.Join(session.Deck(), " "))
	if session.TimerEnabled {
		fmt.Fprintf(&b, "Timer: %ds per story\n", session.TimerDuration)
	}

	if story != nil {
		fmt.Fprintf(&b, "\nActive story: [%d] %s (%s)\n", story.ID, story.Title, story.Status)
		if story.Description != "" {
			fmt.Fprintf(&b, "  %s\n", story.Description)
		}
		if session.VotesRevealed {
			b.WriteString("Votes: REVEALED\n")
		} else {
			b.WriteString("Votes: hidden\n")
		}
	} else {
		b.WriteString("\nNo active story.\n")
	}

	fmt.Fprintf(&b, "\nParticipants (%d):\n", len(users))
	for _, user := range users {
		fmt.Fprintf(&b, "- %s", user.Name)
		if user.IsModerator {
			b.WriteString(" (moderator)")
		}
		if user.IsObserver {
			b.WriteString(" (observer)")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatVotes(votes []api.VoteResponse, revealed bool) string {
	if len(votes) == 0 {
		return "No votes cast yet.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Votes (%d):\n", len(votes))
	for _, vote := range votes {
		if revealed && vote.Estimate != "" {
			fmt.Fprintf(&b, "- %s: %s\n", vote.User.Name, vote.Estimate)
		} else {
			fmt.Fprintf(&b, "- %s: voted\n", vote.User.Name)
		}
	}
	return b.String()
}
