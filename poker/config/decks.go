package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pandac/pokersync/poker/model"
)

var (
	ErrDeckNotFound = errors.New("deck not found")
	ErrInvalidDeck  = errors.New("invalid deck")
)

// Deck is a named set of estimate values usable as a CUSTOM sizing method.
type Deck struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Values      []string `json:"values"`
}

// DeckManager loads and caches custom deck definitions from a config
// directory, one JSON file per deck. Built-in sizing methods resolve without
// touching the directory.
type DeckManager struct {
	deckDir string

	mu    sync.RWMutex
	decks map[string]*Deck
}

// NewDeckManager creates a deck manager. The directory is optional: a missing
// directory just means only built-in decks are available.
func NewDeckManager(deckDir string) *DeckManager {
	return &DeckManager{
		deckDir: deckDir,
		decks:   make(map[string]*Deck),
	}
}

// Values resolves the estimate values for a sizing method, consulting custom
// decks for CUSTOM sessions.
func (dm *DeckManager) Values(method model.SizingMethod, customDeck string) ([]string, error) {
	if method != model.Custom {
		values := model.DefaultDeck(method)
		if values == nil {
			return nil, fmt.Errorf("%w: no deck for sizing method %q", ErrDeckNotFound, method)
		}
		return values, nil
	}
	deck, err := dm.Load(customDeck)
	if err != nil {
		return nil, err
	}
	return deck.Values, nil
}

// Load loads a custom deck by name, caching the parsed result.
func (dm *DeckManager) Load(name string) (*Deck, error) {
	dm.mu.RLock()
	if deck, ok := dm.decks[name]; ok {
		dm.mu.RUnlock()
		return deck, nil
	}
	dm.mu.RUnlock()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if deck, ok := dm.decks[name]; ok {
		return deck, nil
	}

	filename := name
	if !strings.HasSuffix(filename, ".json") {
		filename += ".json"
	}

	data, err := os.ReadFile(filepath.Join(dm.deckDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDeckNotFound
		}
		return nil, fmt.Errorf("failed to read deck file: %w", err)
	}

	var deck Deck
	if err := json.Unmarshal(data, &deck); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeck, err)
	}
	if err := ValidateDeck(&deck); err != nil {
		return nil, err
	}

	dm.decks[name] = &deck
	return &deck, nil
}

// List returns every custom deck available in the deck directory.
func (dm *DeckManager) List() ([]*Deck, error) {
	entries, err := os.ReadDir(dm.deckDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read deck directory: %w", err)
	}

	var decks []*Deck
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		deck, err := dm.Load(name)
		if err != nil {
			// A broken file shouldn't hide the valid ones.
			continue
		}
		decks = append(decks, deck)
	}
	return decks, nil
}

// ValidateDeck checks a deck definition: a name, at least one value, and no
// duplicate values.
func ValidateDeck(deck *Deck) error {
	if deck.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDeck)
	}
	if len(deck.Values) == 0 {
		return fmt.Errorf("%w: no values", ErrInvalidDeck)
	}
	seen := make(map[string]bool, len(deck.Values))
	for _, v := range deck.Values {
		if v == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidDeck)
		}
		if seen[v] {
			return fmt.Errorf("%w: duplicate value %q", ErrInvalidDeck, v)
		}
		seen[v] = true
	}
	return nil
}
