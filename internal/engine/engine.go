// Package engine drives every table: it applies client envelopes, walks the
// phase machine, runs the shared timer loop and orchestrates settlement.
// All mutations to one room are serialized behind a per-room lock, and every
// write goes through load, mutate, bump, save.
package engine

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/greenfelt/dealerd/internal/game"
	"github.com/greenfelt/dealerd/internal/protocol"
	"github.com/greenfelt/dealerd/internal/store"
	"github.com/greenfelt/dealerd/internal/variant"
)

// Store is what the engine needs from room persistence.
type Store interface {
	Load(ctx context.Context, roomID string) (*game.Table, error)
	Save(ctx context.Context, t *game.Table) error
	SaveIfRevision(ctx context.Context, t *game.Table, expected int64) (bool, error)
	ListRooms(ctx context.Context) ([]store.RoomRow, error)
}

// Ledger credits chip movements.
type Ledger interface {
	CreditIdentity(ctx context.Context, identity string, amount int64, reason, roomID string) error
}

// Broadcaster delivers frames to room subscribers and answers presence
// probes for the grace logic.
type Broadcaster interface {
	BroadcastToRoom(roomID string, payload any)
	SendToIdentity(roomID, identity string, payload any)
	HasLiveSocket(roomID, identity string) bool
}

// Stakes bound wagers for one game mode.
type Stakes struct {
	Min int64
	Max int64
}

// Config carries the engine's timing and stakes knobs.
type Config struct {
	PreGameWait    time.Duration
	ActionTimeout  time.Duration
	DealerDelay    time.Duration
	ShowdownWindow time.Duration
	PostRoundPause time.Duration
	EmptyDebounce  time.Duration
	Grace          time.Duration
	MaxSeats       int
	Stakes         map[string]Stakes
}

// DefaultConfig returns a config with the stock timings and stake tiers
func DefaultConfig() Config {
	return Config{
		PreGameWait:    15 * time.Second,
		ActionTimeout:  30 * time.Second,
		DealerDelay:    3 * time.Second,
		ShowdownWindow: 10 * time.Second,
		PostRoundPause: 5 * time.Second,
		EmptyDebounce:  10 * time.Second,
		Grace:          game.DefaultGraceSeconds * time.Second,
		MaxSeats:       8,
		Stakes: map[string]Stakes{
			"1": {Min: 5, Max: 500},
			"2": {Min: 10, Max: 1000},
			"3": {Min: 25, Max: 2500},
			"4": {Min: 50, Max: 5000},
		},
	}
}

func (c Config) stakesFor(mode string) Stakes {
	if s, ok := c.Stakes[mode]; ok {
		return s
	}
	return c.Stakes["1"]
}

// Engine owns the game state of every room it watches.
type Engine struct {
	logger      zerolog.Logger
	cfg         Config
	store       Store
	ledger      Ledger
	broadcaster Broadcaster
	variants    *variant.Registry
	clock       quartz.Clock

	rng      *rand.Rand
	rngMutex sync.Mutex

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	watched map[string]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New constructs an engine over the given dependencies.
func New(logger zerolog.Logger, cfg Config, st Store, ledger Ledger, b Broadcaster, rng *rand.Rand, clock quartz.Clock) *Engine {
	return &Engine{
		logger:      logger.With().Str("component", "engine").Logger(),
		cfg:         cfg,
		store:       st,
		ledger:      ledger,
		broadcaster: b,
		variants:    variant.DefaultRegistry(),
		clock:       clock,
		rng:         rng,
		locks:       make(map[string]*sync.Mutex),
		watched:     make(map[string]struct{}),
		stopCh:      make(chan struct{}),
	}
}

// WithRNG executes fn with exclusive access to the engine's RNG.
func (e *Engine) WithRNG(fn func(*rand.Rand)) {
	e.rngMutex.Lock()
	defer e.rngMutex.Unlock()
	fn(e.rng)
}

// Stop halts the timer loop
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
}

func (e *Engine) roomLock(roomID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[roomID] = l
	}
	return l
}

// Watch adds a room to the timer loop's working set
func (e *Engine) Watch(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watched[roomID] = struct{}{}
}

func (e *Engine) unwatch(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.watched, roomID)
}

func (e *Engine) watchedRooms() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	rooms := make([]string, 0, len(e.watched))
	for id := range e.watched {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

func (e *Engine) eligibility(t *game.Table, now int64) game.Eligibility {
	return game.Eligibility{
		Now:   now,
		Grace: int64(e.cfg.Grace / time.Second),
		Probe: func(identity string) bool {
			return e.broadcaster.HasLiveSocket(t.ID, identity)
		},
	}
}

// HandleEnvelope applies one client envelope. Validation failures come back
// as errors for the gateway to reject at the sender; conflicting but
// harmless requests are dropped silently.
func (e *Engine) HandleEnvelope(ctx context.Context, env *protocol.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	lock := e.roomLock(env.RoomID)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.ensureTable(ctx, env)
	if err != nil {
		return err
	}
	now := e.now()

	switch env.Action {
	case protocol.ActionGetState:
		t.SanitizeCards()
		msg := protocol.NewStateMessage(t, now)
		if env.SenderID != "" {
			e.broadcaster.SendToIdentity(t.ID, env.SenderID, msg)
		} else {
			e.broadcaster.BroadcastToRoom(t.ID, msg)
		}
		return nil
	case protocol.ActionPlayerSit:
		return e.handleSit(ctx, t, env, now)
	case protocol.ActionPlayerLeave:
		return e.handleLeave(ctx, t, env.SenderID, now)
	case protocol.ActionPlayerAction:
		return e.handleAction(ctx, t, env, now)
	case protocol.ActionAdvancePhase:
		return e.handleAdvancePhase(ctx, t, env.SenderID, now)
	}
	return nil
}

// ensureTable loads the room or lazily creates it from envelope routing
// fields, the way rooms have always sprung into being on first touch.
func (e *Engine) ensureTable(ctx context.Context, env *protocol.Envelope) (*game.Table, error) {
	t, err := e.store.Load(ctx, env.RoomID)
	if err != nil {
		return nil, err
	}
	stakes := e.cfg.stakesFor(env.GameMode)
	if t == nil {
		roomType := env.RoomType
		if roomType == "" {
			roomType = game.RoomTypeBlackjack
		}
		mode := env.GameMode
		if mode == "" {
			mode = "1"
		}
		stakes = e.cfg.stakesFor(mode)
		t = game.NewTable(env.RoomID, env.GuildID, env.ChannelID, roomType, mode, stakes.Min, stakes.Max)
		if err := e.store.Save(ctx, t); err != nil {
			return nil, err
		}
		e.logger.Info().Str("room_id", t.ID).Str("room_type", roomType).
			Str("game_mode", mode).Msg("created room")
	}
	t.Normalize(stakes.Min, stakes.Max)
	e.Watch(t.ID)
	return t, nil
}

func (e *Engine) handleSit(ctx context.Context, t *game.Table, env *protocol.Envelope, now int64) error {
	if t.Occupant(env.SenderID) != nil {
		return nil // already seated
	}
	if len(t.Occupants) >= e.cfg.MaxSeats {
		return game.ErrTableFull
	}

	seat := 0
	name := ""
	if env.PlayerData != nil {
		seat = env.PlayerData.Seat
		name = env.PlayerData.Name
	}
	if seat == 0 {
		seat = t.NextFreeSeat()
	} else if t.SeatTaken(seat) {
		return game.ErrSeatTaken
	}

	t.Occupants = append(t.Occupants, &game.Occupant{
		Identity:  env.SenderID,
		Name:      name,
		Seat:      seat,
		Connected: true,
	})
	t.EmptySince = 0
	if t.Phase == game.PhasePreGame && t.PhaseDeadline() == 0 {
		// first sit arms the wait so late joiners can still grab a seat
		t.SetPhaseTimer(now, seconds(e.cfg.PreGameWait))
	}
	e.logger.Info().Str("room_id", t.ID).Str("identity", env.SenderID).
		Int("seat", seat).Msg("player sat down")
	return e.persist(ctx, t, now)
}

func (e *Engine) handleLeave(ctx context.Context, t *game.Table, identity string, now int64) error {
	if t.Occupant(identity) == nil {
		return nil // nothing to leave
	}
	e.removeOccupant(t, identity, now, "player left")
	return e.persist(ctx, t, now)
}

// removeOccupant unseats an identity and repairs whatever pointed at them:
// the rotation moves on, a wagering lap they were the last stop of deals or
// reopens, an emptied table starts the reset debounce. Shared by explicit
// leaves and the loop's grace reaping.
func (e *Engine) removeOccupant(t *game.Table, identity string, now int64, why string) {
	wasActor := t.CurrentActor == identity
	var next *game.Occupant
	if wasActor {
		elig := e.eligibility(t, now)
		pred := elig.ActionEligible
		if t.Phase == game.PhaseBetting {
			pred = elig.BettingEligible
		}
		next, _ = game.NextEligible(game.SeatOrder(t), identity, func(c *game.Occupant) bool {
			return c.Identity != identity && pred(c)
		})
	}

	t.RemoveOccupant(identity)
	e.logger.Info().Str("room_id", t.ID).Str("identity", identity).Msg(why)

	if len(t.Occupants) == 0 {
		t.EmptySince = now
		t.CurrentActor = ""
		t.ClearActionTimer()
		return
	}
	if !wasActor {
		return
	}
	switch t.Phase {
	case game.PhaseBetting:
		if next != nil {
			e.setActor(t, next.Identity, now)
		} else if anyBets(t) {
			e.startDealing(t, now)
		} else {
			t.CurrentActor = ""
			t.ClearActionTimer()
		}
	case game.PhasePlayerTurn:
		if next != nil {
			e.setActor(t, next.Identity, now)
		} else {
			e.enterDealerTurn(t, now)
		}
	default:
		t.CurrentActor = ""
		t.ClearActionTimer()
	}
}

func (e *Engine) handleAction(ctx context.Context, t *game.Table, env *protocol.Envelope, now int64) error {
	o := t.Occupant(env.SenderID)
	if o == nil {
		return game.ErrNotSeated
	}

	if env.Move == protocol.MoveBet {
		return e.handleBet(ctx, t, o, env.Amount, now)
	}

	if t.Phase != game.PhasePlayerTurn {
		return game.ErrWrongPhase
	}
	if t.CurrentActor != o.Identity {
		return game.ErrOutOfTurn
	}
	v, ok := e.variants.Lookup(t.RoomType)
	if !ok {
		return game.ErrUnknownMove
	}
	if err := v.ApplyMove(t, o, env.Move, env.Amount); err != nil {
		return err
	}
	e.logger.Debug().Str("room_id", t.ID).Str("identity", o.Identity).
		Str("move", env.Move).Int64("amount", env.Amount).Msg("move applied")

	e.advanceAfterMove(t, o, now)
	return e.persist(ctx, t, now)
}

func (e *Engine) handleBet(ctx context.Context, t *game.Table, o *game.Occupant, amount int64, now int64) error {
	if t.Phase != game.PhaseBetting {
		return game.ErrWrongPhase
	}
	if t.CurrentActor != o.Identity {
		return game.ErrOutOfTurn
	}
	if amount < t.MinBet || amount > t.MaxBet {
		return game.ErrBetOutOfRange
	}
	o.Bet = amount
	o.HasBet = true
	o.Skipped = false

	e.advanceBetting(t, o.Identity, now)
	return e.persist(ctx, t, now)
}

// advanceBetting moves the wagering rotation past the given identity. When
// nobody is left to ask the round deals, or reopens if the whole lap passed
// without a single wager.
func (e *Engine) advanceBetting(t *game.Table, after string, now int64) {
	elig := e.eligibility(t, now)
	next, ok := game.NextEligible(game.SeatOrder(t), after, elig.BettingEligible)
	if ok {
		e.setActor(t, next.Identity, now)
		return
	}
	if anyBets(t) {
		e.startDealing(t, now)
		return
	}
	e.restartBettingRound(t, now)
}

// restartBettingRound clears the skip marks after a lap where nobody wagered
// and opens a fresh rotation.
func (e *Engine) restartBettingRound(t *game.Table, now int64) {
	for _, o := range t.Occupants {
		o.Skipped = false
	}
	elig := e.eligibility(t, now)
	first, ok := game.NextEligible(game.SeatOrder(t), "", elig.BettingEligible)
	if !ok {
		t.CurrentActor = ""
		t.ClearActionTimer()
		return
	}
	e.setActor(t, first.Identity, now)
}

// handleAdvancePhase forces the pending deadline to fire now. A phase with
// nothing pending ignores the request.
func (e *Engine) handleAdvancePhase(ctx context.Context, t *game.Table, identity string, now int64) error {
	if t.Occupant(identity) == nil {
		return game.ErrNotSeated
	}
	if !e.firePending(ctx, t, now) {
		return nil
	}
	return e.persist(ctx, t, now)
}

// persist commits an envelope-path mutation: one revision bump, a sanitize
// sweep, an unconditional save, then the broadcast and any pending credits.
func (e *Engine) persist(ctx context.Context, t *game.Table, now int64) error {
	t.Bump()
	if dropped := t.SanitizeCards(); dropped > 0 {
		e.logger.Warn().Str("room_id", t.ID).Int("dropped", dropped).
			Msg("dropped invalid cards before save")
	}
	settled := e.markSettled(t)
	if err := e.store.Save(ctx, t); err != nil {
		return err
	}
	e.broadcaster.BroadcastToRoom(t.ID, protocol.NewStateMessage(t, now))
	if settled {
		e.creditPending(ctx, t, now)
	}
	return nil
}

// markSettled flips the credited flag ahead of the save so the write-once
// record is durable before any ledger call can run.
func (e *Engine) markSettled(t *game.Table) bool {
	if t.PendingPayouts == nil || t.PendingPayouts.Credited {
		return false
	}
	t.PendingPayouts.Credited = true
	return true
}

// creditPending pushes the settled payouts to the ledger. Failures are
// logged and surfaced on the evaluation; the round result itself stands.
func (e *Engine) creditPending(ctx context.Context, t *game.Table, now int64) {
	if t.PendingPayouts == nil {
		return
	}
	identities := make([]string, 0, len(t.PendingPayouts.Amounts))
	for id := range t.PendingPayouts.Amounts {
		identities = append(identities, id)
	}
	sort.Strings(identities)

	var failures []string
	for _, id := range identities {
		amount := t.PendingPayouts.Amounts[id]
		if amount <= 0 {
			continue
		}
		if err := e.ledger.CreditIdentity(ctx, id, amount, "payout", t.ID); err != nil {
			e.logger.Error().Err(err).Str("room_id", t.ID).Str("identity", id).
				Int64("amount", amount).Msg("ledger credit failed")
			failures = append(failures, id)
		}
	}
	if len(failures) == 0 {
		return
	}
	if t.LastEvaluation == nil {
		t.LastEvaluation = &game.Evaluation{}
	}
	t.LastEvaluation.CreditFailures = failures
	t.Bump()
	if err := e.store.Save(ctx, t); err != nil {
		e.logger.Error().Err(err).Str("room_id", t.ID).
			Msg("failed to record credit failures")
		return
	}
	e.broadcaster.BroadcastToRoom(t.ID, protocol.NewStateMessage(t, now))
}

// PlayerConnect marks a seated identity live again. Unknown identities are
// spectators; the room still gets watched so its timers run.
func (e *Engine) PlayerConnect(ctx context.Context, roomID, identity string) {
	lock := e.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.store.Load(ctx, roomID)
	if err != nil {
		e.logger.Error().Err(err).Str("room_id", roomID).Msg("load on connect failed")
		return
	}
	if t == nil {
		return
	}
	e.Watch(roomID)
	o := t.Occupant(identity)
	if o == nil || (o.Connected && o.DisconnectedSince == 0) {
		return
	}
	stakes := e.cfg.stakesFor(t.GameMode)
	t.Normalize(stakes.Min, stakes.Max)
	now := e.now()
	o.Connected = true
	o.DisconnectedSince = 0
	if err := e.persist(ctx, t, now); err != nil {
		e.logger.Error().Err(err).Str("room_id", roomID).Msg("save on connect failed")
	}
}

// PlayerDisconnect stamps the grace clock for a seated identity.
func (e *Engine) PlayerDisconnect(ctx context.Context, roomID, identity string) {
	lock := e.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.store.Load(ctx, roomID)
	if err != nil {
		e.logger.Error().Err(err).Str("room_id", roomID).Msg("load on disconnect failed")
		return
	}
	if t == nil {
		return
	}
	o := t.Occupant(identity)
	if o == nil || !o.Connected {
		return
	}
	stakes := e.cfg.stakesFor(t.GameMode)
	t.Normalize(stakes.Min, stakes.Max)
	now := e.now()
	o.Connected = false
	o.DisconnectedSince = now
	e.logger.Info().Str("room_id", roomID).Str("identity", identity).
		Msg("player disconnected, grace running")
	if err := e.persist(ctx, t, now); err != nil {
		e.logger.Error().Err(err).Str("room_id", roomID).Msg("save on disconnect failed")
	}
}
