package game

import (
	"testing"

	"github.com/feltpoker/felt/internal/deck"
)

func stackedHeadsUp(t *testing.T, chips0, chips1 int, cards ...string) *State {
	t.Helper()
	parsed := make([]deck.Card, len(cards))
	for i, c := range cards {
		parsed[i] = deck.MustParseCard(c)
	}
	h, err := NewHand("h1", newSeats(chips0, chips1), 0, 5, 10, deck.Stacked(parsed...))
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func runToShowdown(t *testing.T, h *State) {
	t.Helper()
	for !h.Complete() {
		h.Apply(h.Normalize(PlayerAction{Seat: h.Turn, Kind: Call}))
	}
}

func TestShowdownBestHandWins(t *testing.T) {
	t.Parallel()
	// Seat 0: pair of kings. Seat 1: pair of aces.
	h := stackedHeadsUp(t, 1000, 1000,
		"Kc", "Kd", "Ac", "Ad", "2h", "7s", "9c", "Jd", "4s")
	runToShowdown(t, h)

	res, err := h.Settle(LibEvaluator{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Showdown {
		t.Fatal("expected showdown")
	}
	if len(res.Winners) != 1 || res.Winners[0].Seat != 1 {
		t.Fatalf("winners = %+v, want seat 1 alone", res.Winners)
	}
	if res.Winners[0].Description == "" {
		t.Error("winner description should name the hand")
	}
	if h.Seats[1].Chips != 1010 {
		t.Errorf("winner chips = %d, want 1010", h.Seats[1].Chips)
	}
}

func TestShowdownTieSplitsEvenly(t *testing.T) {
	t.Parallel()
	// Both seats play the board: broadway straight on the table.
	h := stackedHeadsUp(t, 1000, 1000,
		"2c", "3d", "2h", "3s", "Ac", "Kd", "Qh", "Js", "Td")
	runToShowdown(t, h)

	res, err := h.Settle(LibEvaluator{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Winners) != 2 {
		t.Fatalf("winners = %+v, want both seats", res.Winners)
	}
	if h.Seats[0].Chips != 1000 || h.Seats[1].Chips != 1000 {
		t.Errorf("split pot uneven: %d vs %d", h.Seats[0].Chips, h.Seats[1].Chips)
	}
}

func TestShowdownTieLeavesIndivisibleRemainder(t *testing.T) {
	t.Parallel()
	// Pot of 15: blinds only, small blind folds... instead force an odd
	// pot with a limp and a third odd chip via blinds 5/10 heads-up where
	// seat 0 completes to 15 total. Simplest odd pot: raise to 15, call.
	h := stackedHeadsUp(t, 1000, 1000,
		"2c", "3d", "2h", "3s", "Ac", "Kd", "Qh", "Js", "Td")
	h.Apply(h.Normalize(PlayerAction{Seat: 0, Kind: Raise, Amount: 25}))
	h.Apply(h.Normalize(PlayerAction{Seat: 1, Kind: Call}))
	for !h.Complete() {
		h.Apply(h.Normalize(PlayerAction{Seat: h.Turn, Kind: Check}))
	}

	// Force an odd pot before settlement to exercise the remainder rule.
	h.Pot++
	res, err := h.Settle(LibEvaluator{})
	if err != nil {
		t.Fatal(err)
	}
	want := res.Pot / 2
	for _, w := range res.Winners {
		if w.Amount != want {
			t.Errorf("winner share = %d, want %d", w.Amount, want)
		}
	}
	// The odd chip is deliberately not distributed.
	if h.Seats[0].Chips+h.Seats[1].Chips != 2000+1-res.Pot+2*want {
		t.Errorf("remainder was distributed: %d/%d", h.Seats[0].Chips, h.Seats[1].Chips)
	}
}

func TestEvaluateRejectsShortBoard(t *testing.T) {
	t.Parallel()
	_, err := LibEvaluator{}.Evaluate(
		[]deck.Card{deck.MustParseCard("Ah"), deck.MustParseCard("Kh")},
		[]deck.Card{deck.MustParseCard("2c")})
	if err == nil {
		t.Fatal("expected error for incomplete board")
	}
}
