package tournament

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBusy        = errors.New("a request is already in flight")
	ErrNotActive   = errors.New("no active pair to choose from")
	ErrNotFailed   = errors.New("nothing to retry")
	ErrSuperseded  = errors.New("session superseded by a newer start")
	ErrInvalidSide = errors.New("invalid side")
	// ErrProtocol marks responses that arrived but cannot be used: missing fields,
	// duplicate items or an opponent that was already retired in this session.
	ErrProtocol = errors.New("protocol violation")
)

// ItemID is opaque to the controller; only the provider assigns meaning to it.
type ItemID int64

type Item struct {
	ID    ItemID
	Label string
}

func (i Item) String() string { return fmt.Sprintf("%s#%d", i.Label, i.ID) }

// Side is the screen position of an item within a pair.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

func (s Side) Other() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

func (s Side) Valid() bool { return s == SideLeft || s == SideRight }

// ParseSide accepts the spellings a chat user is likely to type.
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "left", "l", "1":
		return SideLeft, nil
	case "right", "r", "2":
		return SideRight, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, raw)
	}
}

type Pair struct {
	Left  Item
	Right Item
}

func (p Pair) At(side Side) Item {
	if side == SideRight {
		return p.Right
	}
	return p.Left
}

// SideOf reports which side holds id.
func (p Pair) SideOf(id ItemID) (Side, bool) {
	switch id {
	case p.Left.ID:
		return SideLeft, true
	case p.Right.ID:
		return SideRight, true
	default:
		return "", false
	}
}

func (p Pair) Validate() error {
	if strings.TrimSpace(p.Left.Label) == "" || strings.TrimSpace(p.Right.Label) == "" {
		return fmt.Errorf("%w: pair item without label", ErrProtocol)
	}
	if p.Left.ID == p.Right.ID {
		return fmt.Errorf("%w: pair holds item %d twice", ErrProtocol, p.Left.ID)
	}
	return nil
}

// withOpponent keeps the winner on the side it already occupied.
func withOpponent(winner Item, winnerSide Side, opponent Item) Pair {
	if winnerSide == SideLeft {
		return Pair{Left: winner, Right: opponent}
	}
	return Pair{Left: opponent, Right: winner}
}

// OpponentProvider owns item identity and selection policy.
type OpponentProvider interface {
	InitialPair(ctx context.Context) (Pair, error)
	// NextOpponent returns (nil, nil) when no opponent remains for the winner.
	NextOpponent(ctx context.Context, winner, loser ItemID) (*Item, error)
}

// VoteRecorder durably records one outcome and returns the winner's label.
type VoteRecorder interface {
	RecordVote(ctx context.Context, winner, loser ItemID) (string, error)
}

// Step names the request a failed session was waiting on.
type Step string

const (
	StepNone   Step = ""
	StepStart  Step = "start"
	StepVote   Step = "vote"
	StepLookup Step = "lookup"
)

type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseLoading  Phase = "LOADING"
	PhaseActive   Phase = "ACTIVE"
	PhaseGameOver Phase = "GAME_OVER"
	PhaseFailed   Phase = "FAILED"
)

// Snapshot is a read-only copy of the controller state handed to subscribers.
type Snapshot struct {
	SessionID  string
	Generation uint64
	Phase      Phase

	// Pair is set while Active. During Loading and Failed it still holds the
	// pair the last choice was made on, so a renderer can keep it on screen.
	Pair *Pair

	Eliminated int
	Votes      int
	Champion   string

	Message    string
	Err        error
	FailedStep Step
	Retryable  bool
}

func (s Snapshot) Active() bool   { return s.Phase == PhaseActive && s.Pair != nil }
func (s Snapshot) Finished() bool { return s.Phase == PhaseGameOver }
