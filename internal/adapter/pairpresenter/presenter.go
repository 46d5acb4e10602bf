package pairpresenter

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/k1l1-bot/internal/service/cardrender"
	"github.com/park285/k1l1-bot/internal/tournament"
)

// Sender delivers chat replies. irisfast.Egress satisfies it.
type Sender interface {
	SendText(ctx context.Context, room, message string) error
	SendImage(ctx context.Context, room, imageBase64 string) error
}

// Presenter delivers formatted snapshots and pair cards without coupling to
// the command layer.
type Presenter struct {
	sender    Sender
	formatter *Formatter
	renderer  cardrender.Renderer
	logger    *zap.Logger
}

// NewPresenter builds a presenter. A nil renderer sends text only.
func NewPresenter(sender Sender, formatter *Formatter, renderer cardrender.Renderer, logger *zap.Logger) *Presenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{sender: sender, formatter: formatter, renderer: renderer, logger: logger}
}

func (p *Presenter) Formatter() *Formatter { return p.formatter }

func (p *Presenter) Text(ctx context.Context, room, message string) error {
	if strings.TrimSpace(message) == "" {
		return nil
	}
	return p.sender.SendText(ctx, room, message)
}

// Snapshot sends the text for s, labelled with player, and for a pair or a
// champion the card image. A card that fails to render is logged and skipped;
// the text already went out.
func (p *Presenter) Snapshot(ctx context.Context, room, player string, s tournament.Snapshot) error {
	if err := p.Text(ctx, room, p.formatter.ForPlayer(player, p.formatter.Snapshot(s))); err != nil {
		return err
	}
	if p.renderer == nil {
		return nil
	}
	card, ok := p.formatter.Card(s)
	if !ok {
		return nil
	}
	encoded, err := cardrender.RenderBase64(ctx, p.renderer, card)
	if err != nil {
		p.logger.Warn("card_render_failed", zap.String("session_id", s.SessionID), zap.Error(err))
		return nil
	}
	return p.sender.SendImage(ctx, room, encoded)
}

// Rejection reports a refused command to the room.
func (p *Presenter) Rejection(ctx context.Context, room string, err error) error {
	return p.Text(ctx, room, p.formatter.Rejection(err))
}
