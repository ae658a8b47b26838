package server

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/feltpoker/felt/internal/deck"
	"github.com/feltpoker/felt/internal/game"
	"github.com/feltpoker/felt/internal/history"
	"github.com/feltpoker/felt/internal/protocol"
)

// defaultTurnTimeout bounds a human seat's decision. On expiry the seat
// checks when free, folds when facing a wager.
const defaultTurnTimeout = 30 * time.Second

// pendingTurn is one outstanding action solicitation. Exactly one exists at
// a time; responses for any other hand or seat are dropped.
type pendingTurn struct {
	handID string
	seat   int
	ch     chan game.PlayerAction
}

// Orchestrator runs one lobby's game: it deals hands, solicits one action at
// a time, substitutes a legal action for whatever arrives, and pushes each
// client its own redacted projection after every change. All state mutation
// happens on the Run goroutine; inbound calls only hand it messages.
type Orchestrator struct {
	lobbyCode string
	registry  *Registry
	sink      history.Sink
	logger    *log.Logger
	clock     quartz.Clock
	rng       *rand.Rand
	evaluator game.Evaluator
	strategy  game.DecisionStrategy

	smallBlind  int
	bigBlind    int
	turnTimeout time.Duration

	// onFinish runs once when the game ends, before game_over goes out.
	onFinish func(code string)

	mu        sync.Mutex
	seats     []*game.Seat
	state     *game.State
	dealer    int
	pending   *pendingTurn
	elimOrder []int

	ctx    context.Context
	cancel context.CancelFunc
}

// OrchestratorConfig wires an orchestrator to a started lobby.
type OrchestratorConfig struct {
	Lobby       *Lobby
	Registry    *Registry
	Sink        history.Sink
	Logger      *log.Logger
	Clock       quartz.Clock
	Rng         *rand.Rand
	TurnTimeout time.Duration
	OnFinish    func(code string)
}

// NewOrchestrator seats the lobby's members in join order with the
// configured starting stacks.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}

	seats := make([]*game.Seat, 0, len(cfg.Lobby.Members()))
	for _, m := range cfg.Lobby.Members() {
		seats = append(seats, &game.Seat{
			ClientID: m.ClientID,
			Name:     m.Name,
			Bot:      m.Bot,
			Chips:    cfg.Lobby.Settings.StartChips,
		})
	}

	return &Orchestrator{
		lobbyCode:   cfg.Lobby.Code,
		registry:    cfg.Registry,
		sink:        cfg.Sink,
		logger:      cfg.Logger.WithPrefix("game").With("lobby", cfg.Lobby.Code),
		clock:       cfg.Clock,
		rng:         cfg.Rng,
		evaluator:   game.LibEvaluator{},
		strategy:    game.RuleStrategy{CallThresholdBB: 4},
		smallBlind:  cfg.Lobby.Settings.SmallBlind,
		bigBlind:    cfg.Lobby.Settings.BigBlind,
		turnTimeout: timeout,
		onFinish:    cfg.OnFinish,
		seats:       seats,
		dealer:      -1,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Stop aborts the game loop. Any seat waiting on a human decision resolves
// immediately via the check-fold path.
func (o *Orchestrator) Stop() { o.cancel() }

// Run plays hands until one seat holds all the chips or the context ends.
func (o *Orchestrator) Run() {
	defer o.cancel()

	for o.ctx.Err() == nil && o.liveSeats() >= 2 {
		if err := o.playHand(); err != nil {
			o.logger.Error("hand aborted", "error", err)
			break
		}
	}

	o.finish()
}

func (o *Orchestrator) liveSeats() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.seats {
		if !s.Eliminated && s.Chips > 0 {
			n++
		}
	}
	return n
}

func (o *Orchestrator) playHand() error {
	o.mu.Lock()
	handID := uuid.NewString()
	o.dealer = o.nextDealerLocked()
	st, err := game.NewHand(handID, o.seats, o.dealer, o.smallBlind, o.bigBlind, deck.New(o.rng))
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.state = st
	o.mu.Unlock()

	o.logger.Info("hand started", "hand", handID, "dealer", o.dealer)
	o.record(history.EventHandStarted, handID, "", map[string]any{"dealer": o.dealer})
	o.syncAll()

	for o.ctx.Err() == nil {
		o.mu.Lock()
		st := o.state
		done := st.Complete()
		turn := st.Turn
		prevPhase := st.Phase
		o.mu.Unlock()
		if done || turn < 0 {
			break
		}

		action := o.solicit(turn)

		o.mu.Lock()
		action = st.Normalize(action)
		st.Apply(action)
		phaseChanged := st.Phase != prevPhase && st.Phase != game.Showdown
		o.mu.Unlock()

		o.record(history.EventAction, handID, o.seatClientID(action.Seat), map[string]any{
			"kind":   action.Kind.String(),
			"amount": action.Amount,
			"phase":  action.Phase.String(),
		})
		if phaseChanged {
			o.broadcastPhase()
		}
		o.syncAll()
	}

	// A cancelled loop means teardown, not a finished hand; there is
	// nothing meaningful to settle on a partial board.
	if o.ctx.Err() != nil {
		return nil
	}
	return o.settle(handID)
}

// nextDealerLocked rotates the button to the next seat still in the game.
func (o *Orchestrator) nextDealerLocked() int {
	n := len(o.seats)
	for i := 1; i <= n; i++ {
		idx := (o.dealer + i) % n
		if !o.seats[idx].Eliminated && o.seats[idx].Chips > 0 {
			return idx
		}
	}
	return 0
}

// solicit obtains the acting seat's decision: an automated seat decides
// immediately, a human seat gets an action_request and the turn timeout.
// The result is not yet normalized.
func (o *Orchestrator) solicit(seat int) game.PlayerAction {
	o.mu.Lock()
	st := o.state
	s := o.seats[seat]
	if s.Bot {
		action := o.safeDecide(st, seat)
		o.mu.Unlock()
		return action
	}

	pending := &pendingTurn{
		handID: st.HandID,
		seat:   seat,
		ch:     make(chan game.PlayerAction, 1),
	}
	o.pending = pending
	toCall := st.ToCall(seat)
	req := protocol.ActionRequestPayload{
		LobbyCode:      o.lobbyCode,
		HandID:         st.HandID,
		Seat:           seat,
		ToCall:         toCall,
		MinRaise:       st.MinRaise,
		ValidActions:   validActions(toCall),
		TimeoutSeconds: int(o.turnTimeout / time.Second),
	}
	clientID := s.ClientID
	o.mu.Unlock()

	_ = o.registry.Send(clientID, protocol.MustNew(protocol.TypeActionRequest, req))

	timer := o.clock.NewTimer(o.turnTimeout, "turn")
	defer timer.Stop()

	var action game.PlayerAction
	select {
	case action = <-pending.ch:
	case <-timer.C:
		// Check-fold on timeout; normalization folds it when checking
		// is not legal.
		o.logger.Info("turn timed out", "seat", seat)
		action = game.PlayerAction{Seat: seat, Kind: game.Check}
	case <-o.ctx.Done():
		action = game.PlayerAction{Seat: seat, Kind: game.Check}
	}

	o.mu.Lock()
	if o.pending == pending {
		o.pending = nil
	}
	o.mu.Unlock()
	return action
}

// safeDecide shields the hand loop from a faulting strategy: a panic is
// caught here and the seat folds, so a bad collaborator can never crash the
// process or stall a hand.
func (o *Orchestrator) safeDecide(st *game.State, seat int) (action game.PlayerAction) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("strategy panicked, folding", "seat", seat, "panic", r)
			action = game.PlayerAction{Seat: seat, Kind: game.Fold}
		}
	}()
	return o.strategy.Decide(st, seat)
}

func validActions(toCall int) []string {
	if toCall > 0 {
		return []string{"fold", "call", "raise", "allin"}
	}
	return []string{"check", "bet", "allin"}
}

// HandleAction routes a client's action_response to the waiting turn.
// Responses for a finished hand, a different seat, or an absent
// solicitation are silently dropped.
func (o *Orchestrator) HandleAction(clientID string, p protocol.ActionResponsePayload) {
	o.mu.Lock()
	pending := o.pending
	if pending == nil || pending.handID != p.HandID ||
		o.seats[pending.seat].ClientID != clientID {
		o.mu.Unlock()
		return
	}
	action := game.PlayerAction{
		Seat:   pending.seat,
		Kind:   game.ParseActionKind(p.Action),
		Amount: p.Amount,
	}
	o.mu.Unlock()

	select {
	case pending.ch <- action:
	default:
	}
}

// HandleTakeover flips a seat to automated control. If that seat is the one
// being waited on, the strategy answers the outstanding solicitation so the
// hand never stalls for the full timeout.
func (o *Orchestrator) HandleTakeover(clientID string) bool {
	o.mu.Lock()
	seat := o.seatIndexLocked(clientID)
	if seat < 0 {
		o.mu.Unlock()
		return false
	}
	o.seats[seat].Bot = true

	pending := o.pending
	var action game.PlayerAction
	deciding := pending != nil && pending.seat == seat && o.state != nil
	if deciding {
		action = o.safeDecide(o.state, seat)
	}
	o.mu.Unlock()

	if deciding {
		select {
		case pending.ch <- action:
		default:
		}
	}
	o.record(history.EventBotTakeover, "", clientID, nil)
	return true
}

// HandleReconnect rebinds a seat to the returning player's new client id
// and sends that client a full state sync with its own hole cards.
func (o *Orchestrator) HandleReconnect(oldID, newID string) bool {
	o.mu.Lock()
	seat := o.seatIndexLocked(oldID)
	if seat < 0 {
		seat = o.seatIndexLocked(newID)
	}
	if seat < 0 {
		o.mu.Unlock()
		return false
	}
	o.seats[seat].ClientID = newID
	o.seats[seat].Bot = false
	o.mu.Unlock()

	o.SyncClient(newID)
	return true
}

func (o *Orchestrator) seatIndexLocked(clientID string) int {
	for i, s := range o.seats {
		if s.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (o *Orchestrator) seatClientID(seat int) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seat < 0 || seat >= len(o.seats) {
		return ""
	}
	return o.seats[seat].ClientID
}

// settle collects the pot, announces the winners, and records eliminations
// in bust order for the final standings.
func (o *Orchestrator) settle(handID string) error {
	o.mu.Lock()
	st := o.state
	result, err := st.Settle(o.evaluator)
	if err != nil {
		o.mu.Unlock()
		return err
	}

	winners := make([]protocol.HandWinner, len(result.Winners))
	for i, w := range result.Winners {
		winners[i] = protocol.HandWinner{
			ClientID:    o.seats[w.Seat].ClientID,
			Name:        o.seats[w.Seat].Name,
			Seat:        w.Seat,
			Amount:      w.Amount,
			Description: w.Description,
		}
	}
	for i, s := range o.seats {
		if s.Eliminated && !containsInt(o.elimOrder, i) {
			o.elimOrder = append(o.elimOrder, i)
		}
	}
	o.mu.Unlock()

	payload := protocol.HandCompletePayload{
		LobbyCode: o.lobbyCode,
		HandID:    handID,
		Winners:   winners,
		Pot:       result.Pot,
		Showdown:  result.Showdown,
	}
	o.syncAll()
	o.registry.Broadcast(o.lobbyCode, protocol.MustNew(protocol.TypeHandComplete, payload))
	o.record(history.EventHandComplete, handID, "", payload)
	return nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// finish ranks the field and closes out the game: the survivor first, then
// the eliminated seats in reverse bust order.
func (o *Orchestrator) finish() {
	o.mu.Lock()
	type ranked struct {
		seat  *game.Seat
		chips int
	}
	var alive []ranked
	for _, s := range o.seats {
		if !s.Eliminated {
			alive = append(alive, ranked{s, s.Chips})
		}
	}
	for i := 0; i < len(alive); i++ {
		for j := i + 1; j < len(alive); j++ {
			if alive[j].chips > alive[i].chips {
				alive[i], alive[j] = alive[j], alive[i]
			}
		}
	}

	standings := make([]protocol.Standing, 0, len(o.seats))
	place := 1
	for _, r := range alive {
		standings = append(standings, protocol.Standing{
			ClientID: r.seat.ClientID,
			Name:     r.seat.Name,
			Place:    place,
			Chips:    r.chips,
		})
		place++
	}
	for i := len(o.elimOrder) - 1; i >= 0; i-- {
		s := o.seats[o.elimOrder[i]]
		standings = append(standings, protocol.Standing{
			ClientID: s.ClientID,
			Name:     s.Name,
			Place:    place,
		})
		place++
	}
	o.mu.Unlock()

	if o.onFinish != nil {
		o.onFinish(o.lobbyCode)
	}
	o.registry.Broadcast(o.lobbyCode, protocol.MustNew(protocol.TypeGameOver, protocol.GameOverPayload{
		LobbyCode: o.lobbyCode,
		Standings: standings,
	}))
	o.record(history.EventGameOver, "", "", map[string]any{"standings": standings})
	o.logger.Info("game over", "standings", len(standings))
}

func (o *Orchestrator) broadcastPhase() {
	o.mu.Lock()
	st := o.state
	payload := protocol.PhaseChangePayload{
		LobbyCode: o.lobbyCode,
		HandID:    st.HandID,
		Phase:     st.Phase.String(),
		Board:     cardStrings(st.Board),
		Pot:       st.Pot,
	}
	o.mu.Unlock()
	o.registry.Broadcast(o.lobbyCode, protocol.MustNew(protocol.TypePhaseChange, payload))
}

// syncAll pushes every seated client its own projection. Each view redacts
// every other seat's hole cards until showdown.
func (o *Orchestrator) syncAll() {
	o.mu.Lock()
	clients := make([]string, len(o.seats))
	for i, s := range o.seats {
		clients[i] = s.ClientID
	}
	o.mu.Unlock()

	for i, clientID := range clients {
		if _, ok := o.registry.Get(clientID); !ok {
			continue
		}
		o.sendView(clientID, i)
	}
}

// SyncClient pushes the current projection to one client, as on reconnect
// or an explicit state_request.
func (o *Orchestrator) SyncClient(clientID string) {
	o.mu.Lock()
	seat := o.seatIndexLocked(clientID)
	o.mu.Unlock()
	if seat < 0 {
		return
	}
	o.sendView(clientID, seat)
}

func (o *Orchestrator) sendView(clientID string, viewer int) {
	o.mu.Lock()
	st := o.state
	if st == nil {
		o.mu.Unlock()
		return
	}
	payload := protocol.GameStateSyncPayload{
		LobbyCode:  o.lobbyCode,
		HandID:     st.HandID,
		Phase:      st.Phase.String(),
		Board:      cardStrings(st.Board),
		Pot:        st.Pot,
		CurrentBet: st.CurrentBet,
		Dealer:     st.Dealer,
		SmallBlind: st.SmallBlind,
		BigBlind:   st.BigBlind,
		Turn:       st.Turn,
		YourSeat:   viewer,
		Seats:      make([]protocol.SeatView, len(o.seats)),
	}
	for i, s := range o.seats {
		view := protocol.SeatView{
			ClientID:   s.ClientID,
			Name:       s.Name,
			Chips:      s.Chips,
			RoundBet:   s.RoundBet,
			TotalBet:   s.TotalBet,
			Folded:     s.Folded,
			AllIn:      s.AllIn,
			Eliminated: s.Eliminated,
			Bot:        s.Bot,
		}
		if st.ShowCards(viewer, i) {
			view.HoleCards = cardStrings(s.HoleCards)
		}
		payload.Seats[i] = view
	}
	o.mu.Unlock()

	_ = o.registry.Send(clientID, protocol.MustNew(protocol.TypeGameStateSync, payload))
}

func cardStrings(cards []deck.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

func (o *Orchestrator) record(kind history.EventKind, handID, clientID string, detail any) {
	if err := o.sink.Record(history.Event{
		Kind:      kind,
		LobbyCode: o.lobbyCode,
		HandID:    handID,
		ClientID:  clientID,
		Detail:    detail,
	}); err != nil {
		o.logger.Warn("history record failed", "kind", kind, "error", err)
	}
}
