package game

import (
	"time"

	"github.com/feltpoker/felt/internal/deck"
)

// Phase is one street of a hand.
type Phase int

const (
	Blinds Phase = iota
	PreFlop
	Flop
	Turn
	River
	Showdown
)

func (p Phase) String() string {
	return [...]string{"blinds", "preflop", "flop", "turn", "river", "showdown"}[p]
}

// ActionKind is a betting action.
type ActionKind int

const (
	Fold ActionKind = iota
	Check
	Call
	Bet
	Raise
	AllIn
)

func (a ActionKind) String() string {
	return [...]string{"fold", "check", "call", "bet", "raise", "allin"}[a]
}

// ParseActionKind maps a wire action string to its kind. Anything
// unrecognised parses as Fold, keeping with the rule that bad input is
// substituted, never rejected.
func ParseActionKind(s string) ActionKind {
	switch s {
	case "check":
		return Check
	case "call":
		return Call
	case "bet":
		return Bet
	case "raise":
		return Raise
	case "allin", "all_in", "all-in":
		return AllIn
	default:
		return Fold
	}
}

// PlayerAction is one seat's move. Amount is the target round-total for
// Bet/Raise and is ignored for the other kinds. Immutable once appended to
// the hand's action log.
type PlayerAction struct {
	Seat   int
	Kind   ActionKind
	Amount int
	Phase  Phase
	At     time.Time
}

// Seat is one position in a hand. A seat survives across hands; hole cards
// and betting fields reset each hand.
type Seat struct {
	ClientID   string
	Name       string
	Bot        bool
	Chips      int
	HoleCards  []deck.Card
	Folded     bool
	AllIn      bool
	Eliminated bool
	RoundBet   int // contributed this betting round
	TotalBet   int // contributed this hand
	Acted      bool
}

// InHand reports whether the seat was dealt into the current hand and has
// not folded.
func (s *Seat) InHand() bool {
	return !s.Eliminated && !s.Folded && len(s.HoleCards) > 0
}

// CanAct reports whether the seat can still make a betting decision.
func (s *Seat) CanAct() bool {
	return s.InHand() && !s.AllIn && s.Chips > 0
}

// Winner is one seat's share of the pot at settlement.
type Winner struct {
	Seat        int
	Amount      int
	Description string
}

// Result is the outcome of a settled hand.
type Result struct {
	Winners  []Winner
	Pot      int
	Showdown bool
}
