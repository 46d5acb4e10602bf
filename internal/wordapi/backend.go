package wordapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/k1l1-bot/internal/tournament"
)

// Backend adapts Client to the tournament ports.
type Backend struct {
	client *Client
}

var (
	_ tournament.OpponentProvider = (*Backend)(nil)
	_ tournament.VoteRecorder     = (*Backend)(nil)
)

func NewBackend(c *Client) *Backend { return &Backend{client: c} }

func (b *Backend) InitialPair(ctx context.Context) (tournament.Pair, error) {
	wp, err := b.client.WordPair(ctx)
	if err != nil {
		return tournament.Pair{}, tag(err)
	}
	return tournament.Pair{
		Left:  tournament.Item{ID: tournament.ItemID(wp.Word1ID), Label: wp.Word1},
		Right: tournament.Item{ID: tournament.ItemID(wp.Word2ID), Label: wp.Word2},
	}, nil
}

func (b *Backend) NextOpponent(ctx context.Context, winner, loser tournament.ItemID) (*tournament.Item, error) {
	op, err := b.client.NextOpponent(ctx, int64(winner), int64(loser))
	if err != nil {
		return nil, tag(err)
	}
	if op == nil {
		return nil, nil
	}
	return &tournament.Item{ID: tournament.ItemID(op.ID), Label: op.Word}, nil
}

func (b *Backend) RecordVote(ctx context.Context, winner, loser tournament.ItemID) (string, error) {
	resp, err := b.client.Vote(ctx, int64(winner), int64(loser))
	if err != nil {
		return "", tag(err)
	}
	return resp.Winner, nil
}

func tag(err error) error {
	if errors.Is(err, ErrMalformedResponse) {
		return fmt.Errorf("%w: %w", tournament.ErrProtocol, err)
	}
	return err
}
