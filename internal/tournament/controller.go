package tournament

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRequestTimeout = 10 * time.Second

// choice is the vote in progress. Retry replays it from the step that failed.
type choice struct {
	side   Side
	winner Item
	loser  Item
}

// Subscriber receives every state transition, in the order the controller made them
// for a single caller. It runs on the caller's goroutine and must not block for long.
type Subscriber func(Snapshot)

type subscriberEntry struct {
	id int
	fn Subscriber
}

// Controller drives one elimination session at a time: it asks the provider for
// pairs, records votes and decides when a champion is reached. Network calls are
// made without holding the state lock; every response is checked against the
// session generation it was issued under before it may touch state.
type Controller struct {
	provider OpponentProvider
	recorder VoteRecorder
	timeout  time.Duration
	logger   *zap.Logger
	newID    func() string

	mu         sync.Mutex
	gen        uint64
	sessionID  string
	phase      Phase
	pair       *Pair
	eliminated *EliminatedSet
	votes      int
	champion   string
	err        error
	failed     Step
	pending    *choice

	subM    sync.RWMutex
	subs    []subscriberEntry
	nextSub int
}

type Option func(*Controller)

// WithRequestTimeout bounds each provider and recorder call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func NewController(provider OpponentProvider, recorder VoteRecorder, opts ...Option) *Controller {
	c := &Controller{
		provider:   provider,
		recorder:   recorder,
		timeout:    DefaultRequestTimeout,
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
		phase:      PhaseIdle,
		eliminated: NewEliminatedSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartSession discards whatever the controller was doing and requests a fresh
// pair. It is accepted in every phase; a choice still in flight is superseded and
// its response dropped when it arrives.
func (c *Controller) StartSession(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.sessionID = c.newID()
	c.eliminated = NewEliminatedSet()
	c.votes = 0
	c.champion = ""
	c.err = nil
	c.failed = StepNone
	c.pending = nil
	c.pair = nil
	c.phase = PhaseLoading
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("tournament_session_start", zap.String("session_id", snap.SessionID), zap.Uint64("generation", gen))
	c.publish(snap)
	return c.loadInitialPair(ctx, gen)
}

// Choose keeps the item on side and eliminates the other one.
// Request failures do not surface as errors: they leave the controller in
// PhaseFailed. The returned error is reserved for commands that were rejected
// (ErrBusy, ErrNotActive, ErrInvalidSide) or whose outcome was superseded.
func (c *Controller) Choose(ctx context.Context, side Side) (Snapshot, error) {
	if !side.Valid() {
		return c.Snapshot(), fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	c.mu.Lock()
	switch {
	case c.phase == PhaseLoading:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrBusy
	case c.phase != PhaseActive || c.pair == nil:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrNotActive
	}
	pair := *c.pair
	ch := &choice{side: side, winner: pair.At(side), loser: pair.At(side.Other())}
	c.pending = ch
	c.phase = PhaseLoading
	gen := c.gen
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("tournament_choose",
		zap.String("session_id", snap.SessionID),
		zap.String("side", string(side)),
		zap.Int64("winner_id", int64(ch.winner.ID)),
		zap.Int64("loser_id", int64(ch.loser.ID)),
	)
	c.publish(snap)
	return c.vote(ctx, gen, ch)
}

// Retry repeats the step that failed: the initial pair request, the vote on the
// same pair and side, or only the opponent lookup when the vote already went through.
func (c *Controller) Retry(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.phase != PhaseFailed {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		if snap.Phase == PhaseLoading {
			return snap, ErrBusy
		}
		return snap, ErrNotFailed
	}
	step, ch, gen := c.failed, c.pending, c.gen
	if step == StepStart || ch == nil {
		c.mu.Unlock()
		return c.StartSession(ctx)
	}
	c.err = nil
	c.failed = StepNone
	c.phase = PhaseLoading
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("tournament_retry", zap.String("session_id", snap.SessionID), zap.String("step", string(step)))
	c.publish(snap)
	if step == StepLookup {
		return c.lookup(ctx, gen, ch)
	}
	return c.vote(ctx, gen, ch)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// EliminatedIDs returns the ids retired in the current session.
func (c *Controller) EliminatedIDs() []ItemID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eliminated.IDs()
}

func (c *Controller) Subscribe(fn Subscriber) int {
	c.subM.Lock()
	defer c.subM.Unlock()
	c.nextSub++
	c.subs = append(c.subs, subscriberEntry{id: c.nextSub, fn: fn})
	return c.nextSub
}

func (c *Controller) Unsubscribe(id int) {
	c.subM.Lock()
	defer c.subM.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *Controller) loadInitialPair(ctx context.Context, gen uint64) (Snapshot, error) {
	rctx, cancel := c.requestContext(ctx)
	pair, err := c.provider.InitialPair(rctx)
	cancel()
	if err == nil {
		err = pair.Validate()
	}

	c.mu.Lock()
	if gen != c.gen {
		return c.discardLocked("initial_pair", gen)
	}
	if err != nil {
		c.failLocked(StepStart, fmt.Errorf("load pair: %w", err))
	} else {
		c.pair = &pair
		c.phase = PhaseActive
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logTransition(snap)
	c.publish(snap)
	return snap, nil
}

func (c *Controller) vote(ctx context.Context, gen uint64, ch *choice) (Snapshot, error) {
	rctx, cancel := c.requestContext(ctx)
	label, err := c.recorder.RecordVote(rctx, ch.winner.ID, ch.loser.ID)
	cancel()
	if err == nil && strings.TrimSpace(label) == "" {
		err = fmt.Errorf("%w: vote response without winner label", ErrProtocol)
	}

	c.mu.Lock()
	if gen != c.gen {
		return c.discardLocked("vote", gen)
	}
	if err != nil {
		// the loser was only staged; nothing to roll back
		c.failLocked(StepVote, fmt.Errorf("record vote: %w", err))
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logTransition(snap)
		c.publish(snap)
		return snap, nil
	}
	if label != ch.winner.Label {
		c.logger.Warn("tournament_winner_label_mismatch",
			zap.String("session_id", c.sessionID),
			zap.String("local", ch.winner.Label),
			zap.String("server", label),
		)
		ch.winner.Label = label
	}
	c.eliminated.MarkEliminated(ch.loser.ID)
	c.votes++
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Info("tournament_vote_recorded",
		zap.String("session_id", sessionID),
		zap.Int64("winner_id", int64(ch.winner.ID)),
		zap.Int64("loser_id", int64(ch.loser.ID)),
	)
	return c.lookup(ctx, gen, ch)
}

func (c *Controller) lookup(ctx context.Context, gen uint64, ch *choice) (Snapshot, error) {
	rctx, cancel := c.requestContext(ctx)
	opp, err := c.provider.NextOpponent(rctx, ch.winner.ID, ch.loser.ID)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		return c.discardLocked("next_opponent", gen)
	}
	if err == nil && opp != nil {
		err = c.checkOpponentLocked(ch, *opp)
	}
	switch {
	case err != nil:
		c.failLocked(StepLookup, fmt.Errorf("next opponent: %w", err))
	case opp == nil:
		c.phase = PhaseGameOver
		c.champion = ch.winner.Label
		c.pair = nil
		c.pending = nil
	default:
		next := withOpponent(ch.winner, ch.side, *opp)
		c.pair = &next
		c.phase = PhaseActive
		c.pending = nil
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logTransition(snap)
	c.publish(snap)
	return snap, nil
}

func (c *Controller) checkOpponentLocked(ch *choice, opp Item) error {
	switch {
	case strings.TrimSpace(opp.Label) == "":
		return fmt.Errorf("%w: opponent %d without label", ErrProtocol, opp.ID)
	case opp.ID == ch.winner.ID:
		return fmt.Errorf("%w: opponent %d is the winner", ErrProtocol, opp.ID)
	case opp.ID == ch.loser.ID, c.eliminated.Contains(opp.ID):
		return fmt.Errorf("%w: opponent %d was already eliminated", ErrProtocol, opp.ID)
	}
	return nil
}

func (c *Controller) failLocked(step Step, err error) {
	c.phase = PhaseFailed
	c.err = err
	c.failed = step
}

// discardLocked drops a response issued under an older generation. It unlocks c.mu.
func (c *Controller) discardLocked(op string, gen uint64) (Snapshot, error) {
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.logger.Debug("tournament_stale_response",
		zap.String("op", op),
		zap.Uint64("issued_generation", gen),
		zap.Uint64("generation", snap.Generation),
	)
	return snap, ErrSuperseded
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:  c.sessionID,
		Generation: c.gen,
		Phase:      c.phase,
		Eliminated: c.eliminated.Count(),
		Votes:      c.votes,
		Champion:   c.champion,
	}
	if c.pair != nil {
		p := *c.pair
		s.Pair = &p
	}
	if c.phase == PhaseFailed && c.err != nil {
		s.Err = c.err
		s.Message = c.err.Error()
		s.FailedStep = c.failed
		s.Retryable = c.failed != StepNone
	}
	return s
}

func (c *Controller) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Controller) publish(snap Snapshot) {
	c.subM.RLock()
	subs := make([]subscriberEntry, len(c.subs))
	copy(subs, c.subs)
	c.subM.RUnlock()
	for _, s := range subs {
		if s.fn != nil {
			s.fn(snap)
		}
	}
}

func (c *Controller) logTransition(snap Snapshot) {
	fields := []zap.Field{
		zap.String("session_id", snap.SessionID),
		zap.String("phase", string(snap.Phase)),
		zap.Int("eliminated", snap.Eliminated),
	}
	switch snap.Phase {
	case PhaseFailed:
		c.logger.Warn("tournament_request_failed", append(fields, zap.Error(snap.Err))...)
	case PhaseGameOver:
		c.logger.Info("tournament_champion", append(fields, zap.String("champion", snap.Champion))...)
	default:
		c.logger.Debug("tournament_transition", fields...)
	}
}
