package model

import (
	"errors"
	"testing"
)

func TestDefaultDeck(t *testing.T) {
	tests := []struct {
		method SizingMethod
		first  string
		size   int
	}{
		{Fibonacci, "1", 10},
		{TShirt, "XS", 9},
		{PowersOf2, "1", 10},
		{Linear, "1", 13},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			deck := DefaultDeck(tt.method)
			if len(deck) != tt.size {
				t.Errorf("Expected %d values, got %d", tt.size, len(deck))
			}
			if deck[0] != tt.first {
				t.Errorf("Expected first value %q, got %q", tt.first, deck[0])
			}
		})
	}
}

func TestDefaultDeck_CustomHasNoBuiltin(t *testing.T) {
	if deck := DefaultDeck(Custom); deck != nil {
		t.Errorf("Expected nil deck for CUSTOM, got %v", deck)
	}
	if deck := DefaultDeck(SizingMethod("NOPE")); deck != nil {
		t.Errorf("Expected nil deck for unknown method, got %v", deck)
	}
}

func TestSessionDeck(t *testing.T) {
	fib := Session{SizingMethod: Fibonacci}
	if deck := fib.Deck(); deck[0] != "1" || len(deck) != 10 {
		t.Errorf("Fibonacci session returned wrong deck: %v", deck)
	}

	custom := Session{SizingMethod: Custom, CustomValues: []string{"S", "M", "L"}}
	deck := custom.Deck()
	if len(deck) != 3 || deck[1] != "M" {
		t.Errorf("Custom session returned wrong deck: %v", deck)
	}
}

func TestValidateEstimate(t *testing.T) {
	deck := DefaultDeck(Fibonacci)

	if err := ValidateEstimate(deck, "8"); err != nil {
		t.Errorf("Expected 8 to be valid, got %v", err)
	}
	if err := ValidateEstimate(deck, "☕"); err != nil {
		t.Errorf("Expected ☕ to be valid, got %v", err)
	}
	if err := ValidateEstimate(deck, "7"); !errors.Is(err, ErrInvalidEstimate) {
		t.Errorf("Expected ErrInvalidEstimate for 7, got %v", err)
	}
	if err := ValidateEstimate(deck, ""); !errors.Is(err, ErrInvalidEstimate) {
		t.Errorf("Expected ErrInvalidEstimate for empty estimate, got %v", err)
	}
}

func TestValidateConfidence(t *testing.T) {
	for c := 1; c <= 5; c++ {
		if err := ValidateConfidence(c); err != nil {
			t.Errorf("Expected confidence %d to be valid, got %v", c, err)
		}
	}
	for _, c := range []int{0, 6, -1} {
		if err := ValidateConfidence(c); !errors.Is(err, ErrInvalidConfidence) {
			t.Errorf("Expected ErrInvalidConfidence for %d, got %v", c, err)
		}
	}
}

func TestGenerateSessionCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateSessionCode()
		if err := ValidateSessionCode(code); err != nil {
			t.Fatalf("Generated code %q failed validation: %v", code, err)
		}
		seen[code] = true
	}
	// 100 random 6-character codes colliding down to a handful would mean
	// the generator is broken.
	if len(seen) < 90 {
		t.Errorf("Expected near-unique codes, got %d distinct out of 100", len(seen))
	}
}

func TestValidateSessionCode(t *testing.T) {
	valid := []string{"ABC123", "ZZZZZZ", "000000"}
	for _, code := range valid {
		if err := ValidateSessionCode(code); err != nil {
			t.Errorf("Expected %q to be valid, got %v", code, err)
		}
	}

	invalid := []string{"", "ABC12", "ABC1234", "abc123", "ABC 12", "ABC-12"}
	for _, code := range invalid {
		if err := ValidateSessionCode(code); !errors.Is(err, ErrInvalidSessionCode) {
			t.Errorf("Expected %q to be invalid, got %v", code, err)
		}
	}
}
