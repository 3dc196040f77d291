package main

import (
	"testing"

	"github.com/pandac/pokersync/api"
)

func votesFor(estimates ...string) []api.VoteResponse {
	votes := make([]api.VoteResponse, 0, len(estimates))
	for _, e := range estimates {
		votes = append(votes, api.VoteResponse{Estimate: e})
	}
	return votes
}

func TestDistributionOrdering(t *testing.T) {
	dist := distribution(votesFor("5", "8", "5", "3", "5", "8"))
	if len(dist) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(dist))
	}
	if dist[0].estimate != "5" || dist[0].count != 3 {
		t.Errorf("Expected 5x3 first, got %+v", dist[0])
	}
	if dist[1].estimate != "8" || dist[2].estimate != "3" {
		t.Errorf("Unexpected order: %+v", dist)
	}
}

func TestDistributionTieBreaksByEstimate(t *testing.T) {
	dist := distribution(votesFor("8", "3"))
	if dist[0].estimate != "3" || dist[1].estimate != "8" {
		t.Errorf("Ties should sort by estimate, got %+v", dist)
	}
}

func TestDistributionSkipsHiddenVotes(t *testing.T) {
	dist := distribution(votesFor("5", "", ""))
	if len(dist) != 1 || dist[0].count != 1 {
		t.Errorf("Hidden votes should be skipped, got %+v", dist)
	}
}

func TestSpreadTooWideNumeric(t *testing.T) {
	if !spreadTooWide(distribution(votesFor("2", "8"))) {
		t.Error("2 vs 8 should be flagged")
	}
	if spreadTooWide(distribution(votesFor("3", "5"))) {
		t.Error("3 vs 5 should not be flagged")
	}
	if spreadTooWide(distribution(votesFor("5", "5", "5"))) {
		t.Error("Unanimous vote should not be flagged")
	}
}

func TestSpreadTooWideNonNumeric(t *testing.T) {
	if spreadTooWide(distribution(votesFor("S", "M"))) {
		t.Error("Two distinct sizes should not be flagged")
	}
	if !spreadTooWide(distribution(votesFor("S", "M", "XL"))) {
		t.Error("Three distinct sizes should be flagged")
	}
}

func TestAverageConfidence(t *testing.T) {
	votes := []api.VoteResponse{
		{Estimate: "5", Confidence: 4},
		{Estimate: "5", Confidence: 2},
		{Estimate: "8"}, // no confidence recorded
	}
	avg, ok := averageConfidence(votes)
	if !ok {
		t.Fatal("Expected a confidence average")
	}
	if avg != 3.0 {
		t.Errorf("Expected 3.0, got %v", avg)
	}

	if _, ok := averageConfidence(votesFor("5", "8")); ok {
		t.Error("No recorded confidences should report none")
	}
}

func TestBar(t *testing.T) {
	if bar(0) != "" {
		t.Errorf("Expected empty bar, got %q", bar(0))
	}
	if bar(3) != "███" {
		t.Errorf("Unexpected bar %q", bar(3))
	}
}
