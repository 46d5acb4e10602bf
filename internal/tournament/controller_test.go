package tournament

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	coffee = Item{ID: 1, Label: "Coffee"}
	tea    = Item{ID: 2, Label: "Tea"}
	wine   = Item{ID: 3, Label: "Wine"}
	beer   = Item{ID: 4, Label: "Beer"}
)

type fakeProvider struct {
	initialFn    func(ctx context.Context) (Pair, error)
	nextFn       func(ctx context.Context, winner, loser ItemID) (*Item, error)
	initialCalls atomic.Int32
	nextCalls    atomic.Int32
}

func (f *fakeProvider) InitialPair(ctx context.Context) (Pair, error) {
	f.initialCalls.Add(1)
	return f.initialFn(ctx)
}

func (f *fakeProvider) NextOpponent(ctx context.Context, winner, loser ItemID) (*Item, error) {
	f.nextCalls.Add(1)
	return f.nextFn(ctx, winner, loser)
}

type fakeRecorder struct {
	fn    func(ctx context.Context, winner, loser ItemID) (string, error)
	calls atomic.Int32
}

func (f *fakeRecorder) RecordVote(ctx context.Context, winner, loser ItemID) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, winner, loser)
}

func labelsOf(items ...Item) func(context.Context, ItemID, ItemID) (string, error) {
	byID := map[ItemID]string{}
	for _, it := range items {
		byID[it.ID] = it.Label
	}
	return func(_ context.Context, winner, _ ItemID) (string, error) {
		return byID[winner], nil
	}
}

func fixedPair(p Pair) func(context.Context) (Pair, error) {
	return func(context.Context) (Pair, error) { return p, nil }
}

// scriptedNext answers by (winner, loser); missing keys mean no opponent.
func scriptedNext(script map[[2]ItemID]Item) func(context.Context, ItemID, ItemID) (*Item, error) {
	return func(_ context.Context, winner, loser ItemID) (*Item, error) {
		if it, ok := script[[2]ItemID{winner, loser}]; ok {
			return &it, nil
		}
		return nil, nil
	}
}

func newTestController(t *testing.T, p *fakeProvider, r *fakeRecorder, opts ...Option) *Controller {
	t.Helper()
	seq := 0
	opts = append([]Option{WithIDGenerator(func() string {
		seq++
		return "session-" + string(rune('a'+seq-1))
	})}, opts...)
	return NewController(p, r, opts...)
}

func TestController_FullSessionScenario(t *testing.T) {
	p := &fakeProvider{
		initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
		nextFn:    scriptedNext(map[[2]ItemID]Item{{1, 2}: wine}),
	}
	r := &fakeRecorder{fn: labelsOf(coffee, tea, wine)}
	c := newTestController(t, p, r)
	ctx := context.Background()

	require.Equal(t, PhaseIdle, c.Snapshot().Phase)

	snap, err := c.StartSession(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseActive, snap.Phase)
	require.Equal(t, Pair{Left: coffee, Right: tea}, *snap.Pair)
	require.Zero(t, snap.Eliminated)

	snap, err = c.Choose(ctx, SideLeft)
	require.NoError(t, err)
	require.Equal(t, PhaseActive, snap.Phase)
	require.Equal(t, Pair{Left: coffee, Right: wine}, *snap.Pair)
	require.Equal(t, 1, snap.Eliminated)
	require.Equal(t, []ItemID{2}, c.EliminatedIDs())

	snap, err = c.Choose(ctx, SideRight)
	require.NoError(t, err)
	require.Equal(t, PhaseGameOver, snap.Phase)
	require.Equal(t, "Wine", snap.Champion)
	require.Nil(t, snap.Pair)
	require.Equal(t, []ItemID{1, 2}, c.EliminatedIDs())
	require.Equal(t, 2, snap.Votes)

	snap, err = c.StartSession(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseActive, snap.Phase)
	require.Zero(t, snap.Eliminated)
	require.Empty(t, snap.Champion)
	require.Empty(t, c.EliminatedIDs())
	require.Equal(t, "session-b", snap.SessionID)
	require.EqualValues(t, 2, p.initialCalls.Load())
}

func TestController_WinnerKeepsItsSide(t *testing.T) {
	cases := []struct {
		name string
		side Side
		want Pair
	}{
		{name: "left winner stays left", side: SideLeft, want: Pair{Left: coffee, Right: wine}},
		{name: "right winner stays right", side: SideRight, want: Pair{Left: wine, Right: tea}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProvider{
				initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
				nextFn: func(context.Context, ItemID, ItemID) (*Item, error) {
					w := wine
					return &w, nil
				},
			}
			c := newTestController(t, p, &fakeRecorder{fn: labelsOf(coffee, tea)})
			_, err := c.StartSession(context.Background())
			require.NoError(t, err)

			snap, err := c.Choose(context.Background(), tc.side)
			require.NoError(t, err)
			require.Equal(t, tc.want, *snap.Pair)
		})
	}
}

func TestController_ProviderTimeoutAfterRecordedVote(t *testing.T) {
	var slow atomic.Bool
	slow.Store(true)
	p := &fakeProvider{
		initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
		nextFn: func(ctx context.Context, _, _ ItemID) (*Item, error) {
			if slow.Load() {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			w := wine
			return &w, nil
		},
	}
	r := &fakeRecorder{fn: labelsOf(coffee, tea, wine)}
	c := newTestController(t, p, r, WithRequestTimeout(20*time.Millisecond))
	ctx := context.Background()

	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	snap, err := c.Choose(ctx, SideLeft)
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, snap.Phase)
	require.ErrorIs(t, snap.Err, context.DeadlineExceeded)
	require.NotEmpty(t, snap.Message)
	require.True(t, snap.Retryable)
	require.Equal(t, StepLookup, snap.FailedStep)
	// the vote went through, so the loser stays retired
	require.Equal(t, 1, snap.Eliminated)

	slow.Store(false)
	snap, err = c.Retry(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseActive, snap.Phase)
	require.Equal(t, Pair{Left: coffee, Right: wine}, *snap.Pair)
	require.Equal(t, 1, snap.Eliminated)
	require.EqualValues(t, 1, r.calls.Load(), "retrying the lookup must not vote again")
}

func TestController_FailedVoteLeavesEliminatedSetUntouched(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := &fakeProvider{
		initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
		nextFn:    scriptedNext(map[[2]ItemID]Item{{2, 1}: wine}),
	}
	r := &fakeRecorder{fn: func(ctx context.Context, winner, loser ItemID) (string, error) {
		if fail.Load() {
			return "", errors.New("status=503")
		}
		return labelsOf(coffee, tea)(ctx, winner, loser)
	}}
	c := newTestController(t, p, r)
	ctx := context.Background()
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	snap, err := c.Choose(ctx, SideRight)
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, snap.Phase)
	require.Zero(t, snap.Eliminated)
	require.Equal(t, Pair{Left: coffee, Right: tea}, *snap.Pair)
	require.Zero(t, p.nextCalls.Load())

	_, err = c.Choose(ctx, SideLeft)
	require.ErrorIs(t, err, ErrNotActive)

	fail.Store(false)
	snap, err = c.Retry(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseActive, snap.Phase)
	require.Equal(t, Pair{Left: wine, Right: tea}, *snap.Pair)
	require.Equal(t, []ItemID{1}, c.EliminatedIDs())
	require.EqualValues(t, 2, r.calls.Load())
}

func TestController_ChooseWhileLoadingIsRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	p := &fakeProvider{
		initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
		nextFn:    scriptedNext(map[[2]ItemID]Item{{1, 2}: wine}),
	}
	r := &fakeRecorder{fn: func(ctx context.Context, winner, loser ItemID) (string, error) {
		entered <- struct{}{}
		<-release
		return "Coffee", nil
	}}
	c := newTestController(t, p, r)
	ctx := context.Background()
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := c.Choose(ctx, SideLeft)
		done <- snap
	}()
	<-entered

	snap, err := c.Choose(ctx, SideRight)
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, PhaseLoading, snap.Phase)
	_, err = c.Retry(ctx)
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	final := <-done
	require.Equal(t, PhaseActive, final.Phase)
	require.Equal(t, 1, final.Eliminated)
	require.EqualValues(t, 1, r.calls.Load())
	require.EqualValues(t, 1, p.nextCalls.Load())
}

func TestController_StartSupersedesInFlightChoice(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var initial atomic.Int32
	p := &fakeProvider{
		initialFn: func(context.Context) (Pair, error) {
			if initial.Add(1) == 1 {
				return Pair{Left: coffee, Right: tea}, nil
			}
			return Pair{Left: wine, Right: beer}, nil
		},
		nextFn: scriptedNext(map[[2]ItemID]Item{{1, 2}: wine}),
	}
	r := &fakeRecorder{fn: func(context.Context, ItemID, ItemID) (string, error) {
		entered <- struct{}{}
		<-release
		return "Coffee", nil
	}}
	c := newTestController(t, p, r)
	ctx := context.Background()
	_, err := c.StartSession(ctx)
	require.NoError(t, err)

	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := c.Choose(ctx, SideLeft)
		done <- result{snap, err}
	}()
	<-entered

	fresh, err := c.StartSession(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseActive, fresh.Phase)

	close(release)
	stale := <-done
	require.ErrorIs(t, stale.err, ErrSuperseded)

	snap := c.Snapshot()
	require.Equal(t, PhaseActive, snap.Phase)
	require.Equal(t, Pair{Left: wine, Right: beer}, *snap.Pair)
	require.Zero(t, snap.Eliminated)
	require.Zero(t, p.nextCalls.Load())
}

func TestController_RejectsBadResponses(t *testing.T) {
	cases := []struct {
		name     string
		initial  Pair
		label    string
		next     func(context.Context, ItemID, ItemID) (*Item, error)
		choose   []Side
		wantElim int
	}{
		{
			name:    "initial pair with one item twice",
			initial: Pair{Left: coffee, Right: coffee},
		},
		{
			name:    "initial pair without label",
			initial: Pair{Left: coffee, Right: Item{ID: 9}},
		},
		{
			name:    "vote without winner label",
			initial: Pair{Left: coffee, Right: tea},
			label:   " ",
			choose:  []Side{SideLeft},
		},
		{
			name:    "opponent is the winner",
			initial: Pair{Left: coffee, Right: tea},
			next: func(context.Context, ItemID, ItemID) (*Item, error) {
				c := coffee
				return &c, nil
			},
			choose:   []Side{SideLeft},
			wantElim: 1,
		},
		{
			name:    "opponent was eliminated earlier",
			initial: Pair{Left: coffee, Right: tea},
			next: scriptedNext(map[[2]ItemID]Item{
				{1, 2}: wine,
				{1, 3}: tea,
			}),
			choose:   []Side{SideLeft, SideLeft},
			wantElim: 2,
		},
		{
			name:    "opponent without label",
			initial: Pair{Left: coffee, Right: tea},
			next: func(context.Context, ItemID, ItemID) (*Item, error) {
				return &Item{ID: 7}, nil
			},
			choose:   []Side{SideRight},
			wantElim: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := tc.next
			if next == nil {
				next = scriptedNext(nil)
			}
			p := &fakeProvider{initialFn: fixedPair(tc.initial), nextFn: next}
			r := &fakeRecorder{fn: labelsOf(coffee, tea, wine)}
			if tc.label != "" {
				r.fn = func(context.Context, ItemID, ItemID) (string, error) { return tc.label, nil }
			}
			c := newTestController(t, p, r)
			ctx := context.Background()

			snap, err := c.StartSession(ctx)
			require.NoError(t, err)
			for _, side := range tc.choose {
				snap, err = c.Choose(ctx, side)
				require.NoError(t, err)
			}
			require.Equal(t, PhaseFailed, snap.Phase)
			require.ErrorIs(t, snap.Err, ErrProtocol)
			require.Equal(t, tc.wantElim, snap.Eliminated)
		})
	}
}

func TestController_ServerLabelBecomesLabelOfRecord(t *testing.T) {
	p := &fakeProvider{
		initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
		nextFn:    scriptedNext(map[[2]ItemID]Item{{1, 2}: wine}),
	}
	r := &fakeRecorder{fn: func(context.Context, ItemID, ItemID) (string, error) { return "coffee", nil }}
	c := newTestController(t, p, r)
	_, err := c.StartSession(context.Background())
	require.NoError(t, err)

	snap, err := c.Choose(context.Background(), SideLeft)
	require.NoError(t, err)
	require.Equal(t, Item{ID: 1, Label: "coffee"}, snap.Pair.Left)
}

func TestController_CommandPreconditions(t *testing.T) {
	p := &fakeProvider{
		initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
		nextFn:    scriptedNext(nil),
	}
	r := &fakeRecorder{fn: labelsOf(coffee, tea)}
	c := newTestController(t, p, r)
	ctx := context.Background()

	_, err := c.Choose(ctx, SideLeft)
	require.ErrorIs(t, err, ErrNotActive)
	_, err = c.Retry(ctx)
	require.ErrorIs(t, err, ErrNotFailed)

	_, err = c.StartSession(ctx)
	require.NoError(t, err)
	_, err = c.Choose(ctx, Side("middle"))
	require.ErrorIs(t, err, ErrInvalidSide)

	snap, err := c.Choose(ctx, SideRight)
	require.NoError(t, err)
	require.Equal(t, PhaseGameOver, snap.Phase)
	require.Equal(t, "Tea", snap.Champion)

	_, err = c.Choose(ctx, SideRight)
	require.ErrorIs(t, err, ErrNotActive)
	require.EqualValues(t, 1, r.calls.Load())
}

func TestController_RetryAfterFailedStartRestarts(t *testing.T) {
	var calls atomic.Int32
	p := &fakeProvider{
		initialFn: func(context.Context) (Pair, error) {
			if calls.Add(1) == 1 {
				return Pair{}, errors.New("connection refused")
			}
			return Pair{Left: coffee, Right: tea}, nil
		},
		nextFn: scriptedNext(nil),
	}
	c := newTestController(t, p, &fakeRecorder{fn: labelsOf(coffee, tea)})
	ctx := context.Background()

	snap, err := c.StartSession(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseFailed, snap.Phase)
	require.Contains(t, snap.Message, "connection refused")

	snap, err = c.Retry(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseActive, snap.Phase)
	require.Empty(t, snap.Message)
}

func TestController_PublishesEveryTransition(t *testing.T) {
	p := &fakeProvider{
		initialFn: fixedPair(Pair{Left: coffee, Right: tea}),
		nextFn:    scriptedNext(map[[2]ItemID]Item{{1, 2}: wine}),
	}
	c := newTestController(t, p, &fakeRecorder{fn: labelsOf(coffee, tea)})

	var mu sync.Mutex
	var phases []Phase
	id := c.Subscribe(func(s Snapshot) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})

	ctx := context.Background()
	_, _ = c.StartSession(ctx)
	_, _ = c.Choose(ctx, SideLeft)
	c.Unsubscribe(id)
	_, _ = c.Choose(ctx, SideLeft)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []Phase{PhaseLoading, PhaseActive, PhaseLoading, PhaseActive}, phases)
}

// honestProvider mirrors the word API: it never offers an item it has seen lose.
type honestProvider struct {
	mu      sync.Mutex
	rng     *rand.Rand
	items   []Item
	retired map[ItemID]bool
}

func (h *honestProvider) InitialPair(context.Context) (Pair, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retired = map[ItemID]bool{}
	idx := h.rng.Perm(len(h.items))
	return Pair{Left: h.items[idx[0]], Right: h.items[idx[1]]}, nil
}

func (h *honestProvider) NextOpponent(_ context.Context, winner, loser ItemID) (*Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retired[loser] = true
	var pool []Item
	for _, it := range h.items {
		if it.ID != winner && !h.retired[it.ID] {
			pool = append(pool, it)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}
	it := pool[h.rng.Intn(len(pool))]
	return &it, nil
}

func (h *honestProvider) RecordVote(_ context.Context, winner, _ ItemID) (string, error) {
	for _, it := range h.items {
		if it.ID == winner {
			return it.Label, nil
		}
	}
	return "", errors.New("unknown winner")
}

func TestController_RandomSessionsNeverReofferEliminatedItems(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var items []Item
	for i := 1; i <= 12; i++ {
		items = append(items, Item{ID: ItemID(i), Label: "word-" + string(rune('a'+i-1))})
	}
	h := &honestProvider{rng: rng, items: items}
	c := NewController(h, h)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		snap, err := c.StartSession(ctx)
		require.NoError(t, err)
		require.Zero(t, snap.Eliminated)

		seen := map[ItemID]bool{}
		for snap.Phase == PhaseActive {
			before := *snap.Pair
			require.False(t, seen[before.Left.ID], "left %v re-offered", before.Left)
			require.False(t, seen[before.Right.ID], "right %v re-offered", before.Right)

			side := SideLeft
			if rng.Intn(2) == 1 {
				side = SideRight
			}
			winner, loser := before.At(side), before.At(side.Other())
			seen[loser.ID] = true

			after, err := c.Choose(ctx, side)
			require.NoError(t, err)
			require.Equal(t, snap.Eliminated+1, after.Eliminated)
			if after.Phase == PhaseActive {
				require.Equal(t, winner, after.Pair.At(side))
			} else {
				require.Equal(t, PhaseGameOver, after.Phase)
				require.Equal(t, winner.Label, after.Champion)
			}
			snap = after
		}
		require.Equal(t, len(items)-1, snap.Eliminated)
	}
}
