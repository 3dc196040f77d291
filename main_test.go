package main

import (
	"strings"
	"testing"

	"github.com/pandac/pokersync/poker/model"
	syncpkg "github.com/pandac/pokersync/poker/sync"
)

func TestNewAppCommands(t *testing.T) {
	cmd := newApp()

	want := []string{"create", "join", "resume", "leave", "decks", "mcp"}
	have := make(map[string]bool)
	for _, sub := range cmd.Commands {
		have[sub.Name] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("Missing subcommand %q", name)
		}
	}
}

func TestRenderSnapshot(t *testing.T) {
	storyID := int64(10)
	snap := syncpkg.Snapshot{
		Session: &model.Session{
			SessionCode:    "ABC123",
			Name:           "Sprint 12",
			CurrentStoryID: &storyID,
			VotesRevealed:  true,
		},
		CurrentStory: &model.Story{
			ID:     storyID,
			Title:  "Login flow",
			Status: model.StatusInProgress,
		},
		Users: []model.User{{Name: "mod"}, {Name: "dana"}},
	}

	line := renderSnapshot(snap)
	for _, part := range []string{"[ABC123]", "Sprint 12", "Login flow", "votes REVEALED", "mod, dana"} {
		if !strings.Contains(line, part) {
			t.Errorf("Missing %q in %q", part, line)
		}
	}
}

func TestRenderSnapshotNoActiveStory(t *testing.T) {
	snap := syncpkg.Snapshot{
		Session: &model.Session{SessionCode: "ABC123", Name: "Sprint 12"},
	}
	line := renderSnapshot(snap)
	if !strings.Contains(line, "no active story") {
		t.Errorf("Expected idle marker in %q", line)
	}
}

func TestRenderSnapshotEmptyView(t *testing.T) {
	if line := renderSnapshot(syncpkg.Snapshot{}); line != "" {
		t.Errorf("Expected empty line for unseeded view, got %q", line)
	}
}
