// Command validate checks custom deck definition JSON files in a deck
// directory. It verifies:
//   - JSON structure and required fields (name, values)
//   - No empty or duplicate values
//   - Reasonable deck size for a usable voting round
//   - Name collisions with built-in sizing methods
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pandac/pokersync/poker/config"
	"github.com/pandac/pokersync/poker/model"
)

// maxDeckSize is a sanity bound: a voting card row wider than this is
// unusable in practice.
const maxDeckSize = 30

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Notes contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File  string
	Valid bool
	Notes []string
}

// builtinNames lists sizing method names a custom deck must not shadow.
var builtinNames = map[string]bool{
	string(model.Fibonacci): true,
	string(model.TShirt):    true,
	string(model.PowersOf2): true,
	string(model.Linear):    true,
	string(model.Custom):    true,
}

// validateDeckFile loads and validates a single deck definition file.
func validateDeckFile(filePath string) ValidationResult {
	result := ValidationResult{
		File:  filepath.Base(filePath),
		Valid: true,
		Notes: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Notes = append(result.Notes, fmt.Sprintf("Failed to read file: %v", err))
		return result
	}

	var deck config.Deck
	if err := json.Unmarshal(data, &deck); err != nil {
		result.Valid = false
		result.Notes = append(result.Notes, fmt.Sprintf("Invalid JSON: %v", err))
		return result
	}

	if err := config.ValidateDeck(&deck); err != nil {
		result.Valid = false
		result.Notes = append(result.Notes, err.Error())
	}

	if builtinNames[strings.ToUpper(deck.Name)] {
		result.Valid = false
		result.Notes = append(result.Notes, fmt.Sprintf("Deck name %q shadows a built-in sizing method", deck.Name))
	}

	if len(deck.Values) > maxDeckSize {
		result.Valid = false
		result.Notes = append(result.Notes, fmt.Sprintf("Deck has %d values; maximum is %d", len(deck.Values), maxDeckSize))
	}

	// Filename should match the deck name so DeckManager.Load finds it.
	base := strings.TrimSuffix(filepath.Base(filePath), ".json")
	if deck.Name != "" && base != deck.Name {
		result.Notes = append(result.Notes, fmt.Sprintf("Note: file name %q differs from deck name %q; load by file name", base, deck.Name))
	}

	if result.Valid {
		result.Notes = append(result.Notes, fmt.Sprintf("✓ Name: %s", deck.Name))
		result.Notes = append(result.Notes, fmt.Sprintf("✓ Values (%d): %s", len(deck.Values), strings.Join(deck.Values, " ")))
		if deck.Description != "" {
			result.Notes = append(result.Notes, fmt.Sprintf("✓ Description: %s", deck.Description))
		}
	}

	return result
}

// main scans the deck directory for *.json files and validates each one,
// printing a concise report and exiting with non-zero status if any are
// invalid.
func main() {
	deckDir := "../decks"
	if len(os.Args) > 1 {
		deckDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(deckDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding deck files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No deck files found in %s\n", deckDir)
		return
	}

	allValid := true
	for _, file := range files {
		result := validateDeckFile(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, note := range result.Notes {
				fmt.Println("  " + note)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, note := range result.Notes {
				if !strings.HasPrefix(note, "✓") {
					fmt.Println("  ❌ " + note)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All decks are valid!")
	} else {
		fmt.Println("❌ Some decks have errors")
		os.Exit(1)
	}
}
