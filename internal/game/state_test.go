package game

import (
	"testing"

	"github.com/feltpoker/felt/internal/deck"
	"github.com/feltpoker/felt/internal/randutil"
)

func newSeats(chips ...int) []*Seat {
	seats := make([]*Seat, len(chips))
	for i, c := range chips {
		seats[i] = &Seat{ClientID: string(rune('a' + i)), Name: string(rune('A' + i)), Chips: c}
	}
	return seats
}

func TestNewHandPostsBlinds(t *testing.T) {
	t.Parallel()
	seats := newSeats(1000, 1000, 1000)
	h, err := NewHand("h1", seats, 0, 5, 10, deck.New(randutil.New(1)))
	if err != nil {
		t.Fatal(err)
	}

	if h.SBIndex != 1 || h.BBIndex != 2 {
		t.Errorf("blind positions wrong: sb=%d bb=%d", h.SBIndex, h.BBIndex)
	}
	if seats[1].TotalBet != 5 || seats[2].TotalBet != 10 {
		t.Errorf("blinds not posted: sb=%d bb=%d", seats[1].TotalBet, seats[2].TotalBet)
	}
	if h.CurrentBet != 10 {
		t.Errorf("current bet = %d, want 10", h.CurrentBet)
	}
	// Preflop action starts after the big blind.
	if h.Turn != 0 {
		t.Errorf("first to act = %d, want 0", h.Turn)
	}
	for _, s := range seats {
		if len(s.HoleCards) != 2 {
			t.Errorf("seat %s has %d hole cards", s.Name, len(s.HoleCards))
		}
	}
}

func TestHeadsUpDealerPostsSmallBlind(t *testing.T) {
	t.Parallel()
	seats := newSeats(500, 500)
	h, err := NewHand("h1", seats, 0, 5, 10, deck.New(randutil.New(2)))
	if err != nil {
		t.Fatal(err)
	}
	if h.SBIndex != 0 || h.BBIndex != 1 {
		t.Errorf("heads-up blinds wrong: sb=%d bb=%d", h.SBIndex, h.BBIndex)
	}
	// Dealer/small blind acts first preflop heads-up.
	if h.Turn != 0 {
		t.Errorf("first to act = %d, want 0", h.Turn)
	}
}

func TestRaiseThenFoldEndsHandPreflop(t *testing.T) {
	t.Parallel()
	seats := newSeats(1000, 1000)
	h, err := NewHand("h1", seats, 0, 5, 10, deck.New(randutil.New(3)))
	if err != nil {
		t.Fatal(err)
	}

	h.Apply(h.Normalize(PlayerAction{Seat: 0, Kind: Raise, Amount: 200}))
	if h.Turn != 1 {
		t.Fatalf("turn = %d, want 1", h.Turn)
	}
	h.Apply(h.Normalize(PlayerAction{Seat: 1, Kind: Fold}))

	if !h.Complete() {
		t.Fatal("hand should be complete after fold")
	}
	if h.Phase != PreFlop {
		t.Errorf("hand ended in %s, should never reach flop", h.Phase)
	}

	res, err := h.Settle(LibEvaluator{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Showdown {
		t.Error("fold win must not be a showdown")
	}
	// Raiser wins back its own 200 plus exactly the folder's 10.
	if seats[0].Chips != 1010 {
		t.Errorf("winner chips = %d, want 1010", seats[0].Chips)
	}
	if seats[1].Chips != 990 {
		t.Errorf("folder chips = %d, want 990", seats[1].Chips)
	}
}

func TestBigBlindGetsOption(t *testing.T) {
	t.Parallel()
	seats := newSeats(1000, 1000, 1000)
	h, err := NewHand("h1", seats, 0, 5, 10, deck.New(randutil.New(4)))
	if err != nil {
		t.Fatal(err)
	}

	h.Apply(h.Normalize(PlayerAction{Seat: 0, Kind: Call}))
	h.Apply(h.Normalize(PlayerAction{Seat: 1, Kind: Call}))

	// Everyone has matched the big blind, but the round must stay open
	// until the big blind itself has acted.
	if h.Phase != PreFlop {
		t.Fatalf("phase advanced to %s before the big blind acted", h.Phase)
	}
	if h.Turn != 2 {
		t.Fatalf("turn = %d, want big blind (2)", h.Turn)
	}

	h.Apply(h.Normalize(PlayerAction{Seat: 2, Kind: Check}))
	if h.Phase != Flop {
		t.Errorf("phase = %s after big blind checked, want flop", h.Phase)
	}
	if len(h.Board) != 3 {
		t.Errorf("board has %d cards, want 3", len(h.Board))
	}
}

func TestChipConservationAcrossHand(t *testing.T) {
	t.Parallel()
	seats := newSeats(1000, 800, 600)
	total := 2400
	h, err := NewHand("h1", seats, 1, 5, 10, deck.New(randutil.New(5)))
	if err != nil {
		t.Fatal(err)
	}

	for !h.Complete() {
		act := h.Normalize(PlayerAction{Seat: h.Turn, Kind: Call})
		h.Apply(act)
	}
	if _, err := h.Settle(LibEvaluator{}); err != nil {
		t.Fatal(err)
	}

	sum := 0
	for _, s := range seats {
		sum += s.Chips
	}
	// Call-only hands never leave an indivisible remainder unless the pot
	// splits; allow for at most len(seats)-1 chips of declared remainder.
	if sum > total || sum < total-2 {
		t.Errorf("chips sum = %d, want %d (less declared remainder)", sum, total)
	}
}

func TestAllInShortStackLosesOnlyItsCommitment(t *testing.T) {
	t.Parallel()
	seats := newSeats(500, 800, 300)
	h, err := NewHand("h1", seats, 0, 5, 10, deck.New(randutil.New(6)))
	if err != nil {
		t.Fatal(err)
	}

	for !h.Complete() {
		h.Apply(h.Normalize(PlayerAction{Seat: h.Turn, Kind: AllIn}))
	}
	if h.Phase != Showdown {
		t.Fatalf("phase = %s, want showdown", h.Phase)
	}
	if len(h.Board) != 5 {
		t.Fatalf("board has %d cards at showdown, want 5", len(h.Board))
	}

	res, err := h.Settle(LibEvaluator{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Showdown {
		t.Error("expected showdown result")
	}
	if res.Pot != 1600 {
		t.Errorf("pot = %d, want 1600", res.Pot)
	}
	// No side pots: the short stack's loss is bounded by its own 300.
	if seats[2].Chips < 0 {
		t.Errorf("short stack went negative: %d", seats[2].Chips)
	}
}

func TestEliminationAtZeroChips(t *testing.T) {
	t.Parallel()
	seats := newSeats(100, 900)
	// Seat 1 holds aces, seat 0 rags; seat 0 must bust.
	d := deck.Stacked(
		deck.MustParseCard("2c"), deck.MustParseCard("7d"),
		deck.MustParseCard("As"), deck.MustParseCard("Ah"),
		deck.MustParseCard("Kc"), deck.MustParseCard("Qd"), deck.MustParseCard("Jh"),
		deck.MustParseCard("9s"), deck.MustParseCard("5h"),
	)
	h, err := NewHand("h1", seats, 0, 5, 10, d)
	if err != nil {
		t.Fatal(err)
	}
	for !h.Complete() {
		h.Apply(h.Normalize(PlayerAction{Seat: h.Turn, Kind: AllIn}))
	}
	if _, err := h.Settle(LibEvaluator{}); err != nil {
		t.Fatal(err)
	}

	eliminated := 0
	for _, s := range seats {
		if s.Eliminated {
			if s.Chips != 0 {
				t.Errorf("eliminated seat holds %d chips", s.Chips)
			}
			eliminated++
		}
	}
	if eliminated != 1 {
		t.Errorf("eliminated %d seats, want exactly 1", eliminated)
	}
}

func TestShowCardsRedaction(t *testing.T) {
	t.Parallel()
	seats := newSeats(1000, 1000)
	h, err := NewHand("h1", seats, 0, 5, 10, deck.New(randutil.New(8)))
	if err != nil {
		t.Fatal(err)
	}

	if !h.ShowCards(0, 0) {
		t.Error("viewer must see its own cards")
	}
	if h.ShowCards(0, 1) {
		t.Error("viewer must not see another seat's cards before showdown")
	}
	h.Phase = Showdown
	if !h.ShowCards(0, 1) {
		t.Error("all cards visible at showdown")
	}
}
