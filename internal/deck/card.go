// Package deck provides playing cards and a shuffled 52-card deck.
package deck

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Rank is a card rank from Two (2) to Ace (14).
type Rank int

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

const rankChars = "23456789TJQKA"

func (r Rank) String() string {
	if r < Two || r > Ace {
		return "?"
	}
	return string(rankChars[r-Two])
}

// Suit is one of the four card suits.
type Suit int

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

const suitChars = "cdhs"

func (s Suit) String() string {
	if s < Clubs || s > Spades {
		return "?"
	}
	return string(suitChars[s])
}

// Card is a single playing card.
type Card struct {
	Rank Rank
	Suit Suit
}

// String renders the card in the compact two-character form, e.g. "Ah", "Tc".
func (c Card) String() string {
	return c.Rank.String() + c.Suit.String()
}

// MarshalJSON encodes the card as its two-character string.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the two-character string form.
func (c *Card) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	card, err := ParseCard(s)
	if err != nil {
		return err
	}
	*c = card
	return nil
}

// ParseCard parses the two-character form, case-insensitive in the suit.
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("deck: invalid card %q", s)
	}
	ri := strings.IndexByte(rankChars, s[0])
	if ri < 0 {
		return Card{}, fmt.Errorf("deck: invalid rank %q", s[0])
	}
	si := strings.IndexByte(suitChars, byte(strings.ToLower(s)[1]))
	if si < 0 {
		return Card{}, fmt.Errorf("deck: invalid suit %q", s[1])
	}
	return Card{Rank: Rank(ri) + Two, Suit: Suit(si)}, nil
}

// MustParseCard is ParseCard that panics on error, for tests and fixtures.
func MustParseCard(s string) Card {
	c, err := ParseCard(s)
	if err != nil {
		panic(err)
	}
	return c
}
