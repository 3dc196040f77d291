// Command analyze prints quick, human-readable statistics about exported
// estimation sessions. It summarizes per-story vote distributions,
// consensus, average confidence, and flags stories whose votes spread wide
// enough to deserve a re-discussion.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/pandac/pokersync/api"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: analyze <export.json> [export.json...]")
		os.Exit(1)
	}

	for _, path := range os.Args[1:] {
		fmt.Printf("\n=== Analyzing %s ===\n", path)
		analyzeExport(path)
	}
}

func analyzeExport(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		return
	}

	var export api.SessionExport
	if err := json.Unmarshal(data, &export); err != nil {
		fmt.Printf("Error parsing JSON: %v\n", err)
		return
	}

	fmt.Printf("Session: %s (%s)\n", export.Session.Name, export.Session.SessionCode)
	fmt.Printf("Sizing Method: %s\n", export.Session.SizingMethod)
	fmt.Printf("Participants: %d\n", len(export.Users))
	fmt.Printf("Stories: %d\n", len(export.Stories))

	estimated := 0
	for _, story := range export.Stories {
		if story.FinalEstimate != "" {
			estimated++
		}
	}
	fmt.Printf("Estimated: %d/%d\n", estimated, len(export.Stories))

	for _, story := range export.Stories {
		votes := export.Votes[strconv.FormatInt(story.ID, 10)]
		if len(votes) == 0 {
			continue
		}

		fmt.Printf("\n--- [%d] %s ---\n", story.ID, story.Title)
		if story.FinalEstimate != "" {
			fmt.Printf("Final estimate: %s\n", story.FinalEstimate)
		}

		dist := distribution(votes)
		for _, entry := range dist {
			fmt.Printf("  %-6s %s (%d)\n", entry.estimate, bar(entry.count), entry.count)
		}

		if len(dist) == 1 {
			fmt.Println("✅ Consensus: everyone voted the same")
		} else if spreadTooWide(dist) {
			fmt.Printf("⚠️  Wide spread across %d distinct values; consider re-discussing\n", len(dist))
		}

		if avg, ok := averageConfidence(votes); ok {
			fmt.Printf("Average confidence: %.1f/5\n", avg)
			if avg < 2.5 {
				fmt.Println("⚠️  Low confidence; the estimate may not be reliable")
			}
		}
	}
}

type distEntry struct {
	estimate string
	count    int
}

// distribution tallies votes per estimate value, most popular first.
func distribution(votes []api.VoteResponse) []distEntry {
	counts := make(map[string]int)
	for _, v := range votes {
		if v.Estimate == "" {
			continue
		}
		counts[v.Estimate]++
	}

	entries := make([]distEntry, 0, len(counts))
	for estimate, count := range counts {
		entries = append(entries, distEntry{estimate, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].estimate < entries[j].estimate
	})
	return entries
}

// spreadTooWide flags numeric votes whose extremes differ by more than a
// factor of two; for non-numeric decks, three or more distinct values.
func spreadTooWide(dist []distEntry) bool {
	var min, max float64
	numeric := true
	for i, entry := range dist {
		v, err := strconv.ParseFloat(entry.estimate, 64)
		if err != nil {
			numeric = false
			break
		}
		if i == 0 || v < min {
			min = v
		}
		if i == 0 || v > max {
			max = v
		}
	}
	if numeric && min > 0 {
		return max/min > 2
	}
	return len(dist) >= 3
}

// averageConfidence reports the mean of recorded confidences, skipping
// votes that carried none.
func averageConfidence(votes []api.VoteResponse) (float64, bool) {
	sum, n := 0, 0
	for _, v := range votes {
		if v.Confidence > 0 {
			sum += v.Confidence
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(sum) / float64(n), true
}

func bar(n int) string {
	const block = "█"
	s := ""
	for i := 0; i < n; i++ {
		s += block
	}
	return s
}
