package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/k1l1-bot/internal/adapter/pairpresenter"
	"github.com/park285/k1l1-bot/internal/irisfast"
	"github.com/park285/k1l1-bot/internal/session"
	"github.com/park285/k1l1-bot/internal/tournament"
	"github.com/park285/k1l1-bot/internal/wordapi"
)

const maxRankingsLimit = 50

type rankingsFunc func(ctx context.Context) ([]wordapi.Ranking, error)

// bot routes prefixed chat commands to the caller's tournament session.
type bot struct {
	prefix      string
	roomAllowed func(room string) bool
	sessions    *session.Registry
	presenter   *pairpresenter.Presenter
	rankings    rankingsFunc
	rankLimit   int
	sendTimeout time.Duration
	logger      *zap.Logger

	namesMu sync.RWMutex
	names   map[session.Key]string
}

// wordPorts is the word API seen through both tournament ports.
type wordPorts interface {
	tournament.OpponentProvider
	tournament.VoteRecorder
}

type botDeps struct {
	Prefix         string
	RoomAllowed    func(room string) bool
	Ports          wordPorts
	Rankings       rankingsFunc
	Presenter      *pairpresenter.Presenter
	RequestTimeout time.Duration
	IdleTTL        time.Duration
	RankingsLimit  int
	Logger         *zap.Logger
}

func newBot(d botDeps) *bot {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &bot{
		prefix:      strings.TrimSpace(d.Prefix),
		roomAllowed: d.RoomAllowed,
		presenter:   d.Presenter,
		rankings:    d.Rankings,
		rankLimit:   d.RankingsLimit,
		sendTimeout: 15 * time.Second,
		logger:      logger,
		names:       make(map[session.Key]string),
	}
	if b.rankLimit <= 0 {
		b.rankLimit = 10
	}
	factory := func(key session.Key) *tournament.Controller {
		ctrl := tournament.NewController(d.Ports, d.Ports,
			tournament.WithRequestTimeout(d.RequestTimeout),
			tournament.WithLogger(logger.With(zap.Stringer("session_key", key))),
		)
		ctrl.Subscribe(func(s tournament.Snapshot) { b.present(key, s) })
		return ctrl
	}
	b.sessions = session.NewRegistry(factory,
		session.WithIdleTTL(d.IdleTTL),
		session.WithLogger(logger),
		session.WithOnEvict(func(key session.Key, _ *tournament.Controller) { b.forget(key) }),
	)
	return b
}

// present sends every settled transition. Loading is skipped so a choice
// produces one reply, not two.
func (b *bot) present(key session.Key, s tournament.Snapshot) {
	if s.Phase == tournament.PhaseLoading {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
	defer cancel()
	if err := b.presenter.Snapshot(ctx, key.Room, b.playerName(key), s); err != nil {
		b.logger.Warn("reply_failed", zap.String("room", key.Room), zap.String("phase", string(s.Phase)), zap.Error(err))
	}
}

func (b *bot) remember(key session.Key, name string) {
	b.namesMu.Lock()
	b.names[key] = name
	b.namesMu.Unlock()
}

func (b *bot) forget(key session.Key) {
	b.namesMu.Lock()
	delete(b.names, key)
	b.namesMu.Unlock()
}

func (b *bot) playerName(key session.Key) string {
	b.namesMu.RLock()
	defer b.namesMu.RUnlock()
	if name, ok := b.names[key]; ok {
		return name
	}
	return key.User
}

func (b *bot) reply(ctx context.Context, room, text string) {
	if err := b.presenter.Text(ctx, room, text); err != nil {
		b.logger.Warn("reply_failed", zap.String("room", room), zap.Error(err))
	}
}

func (b *bot) reject(ctx context.Context, room string, err error) {
	// a superseded response belongs to a session the player already replaced
	if err == nil || errors.Is(err, tournament.ErrSuperseded) {
		return
	}
	if rerr := b.presenter.Rejection(ctx, room, err); rerr != nil {
		b.logger.Warn("reply_failed", zap.String("room", room), zap.Error(rerr))
	}
}

// accepts reports whether msg is a command for this bot.
func (b *bot) accepts(msg *irisfast.Message) bool {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return false
	}
	if b.roomAllowed != nil && !b.roomAllowed(msg.Room) {
		b.logger.Debug("ignore_room", zap.String("room", msg.Room))
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(msg.Msg), b.prefix)
}

func (b *bot) handle(ctx context.Context, msg *irisfast.Message) {
	if !b.accepts(msg) {
		return
	}
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), b.prefix))
	formatter := b.presenter.Formatter()
	if raw == "" {
		b.reply(ctx, msg.Room, formatter.Help())
		return
	}
	parts := strings.Fields(raw)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		b.reply(ctx, msg.Room, formatter.Help())
	case "rank", "rankings":
		b.handleRankings(ctx, msg.Room, args)
	case "start", "play", "1", "2", "left", "right", "l", "r", "retry", "status", "stop":
		key, err := session.NewKey(msg.Room, msg.UserID())
		if err != nil {
			b.reply(ctx, msg.Room, err.Error())
			return
		}
		if _, ok := b.sessions.Get(key); ok || cmd == "start" || cmd == "play" {
			b.remember(key, msg.SenderName())
		}
		b.handleSession(ctx, key, cmd)
	default:
		b.reply(ctx, msg.Room, formatter.Unknown())
	}
}

func (b *bot) handleSession(ctx context.Context, key session.Key, cmd string) {
	b.logger.Debug("command", zap.Stringer("session_key", key), zap.String("cmd", cmd))
	switch cmd {
	case "start", "play":
		ctrl, created := b.sessions.GetOrCreate(key)
		// chat never supersedes a request in flight
		if !created && ctrl.Snapshot().Phase == tournament.PhaseLoading {
			b.reject(ctx, key.Room, tournament.ErrBusy)
			return
		}
		_, err := ctrl.StartSession(ctx)
		b.reject(ctx, key.Room, err)
	case "stop":
		if !b.sessions.Remove(key) {
			b.reject(ctx, key.Room, tournament.ErrNotActive)
			return
		}
		b.reply(ctx, key.Room, b.presenter.Formatter().Stopped())
	case "retry":
		ctrl, ok := b.sessions.Get(key)
		if !ok {
			b.reject(ctx, key.Room, tournament.ErrNotFailed)
			return
		}
		_, err := ctrl.Retry(ctx)
		b.reject(ctx, key.Room, err)
	case "status":
		snap := tournament.Snapshot{Phase: tournament.PhaseIdle}
		if ctrl, ok := b.sessions.Get(key); ok {
			snap = ctrl.Snapshot()
		}
		if err := b.presenter.Snapshot(ctx, key.Room, b.playerName(key), snap); err != nil {
			b.logger.Warn("reply_failed", zap.String("room", key.Room), zap.Error(err))
		}
	default:
		side, err := tournament.ParseSide(cmd)
		if err != nil {
			b.reject(ctx, key.Room, err)
			return
		}
		ctrl, ok := b.sessions.Get(key)
		if !ok {
			b.reject(ctx, key.Room, tournament.ErrNotActive)
			return
		}
		_, err = ctrl.Choose(ctx, side)
		b.reject(ctx, key.Room, err)
	}
}

func (b *bot) handleRankings(ctx context.Context, room string, args []string) {
	limit := b.rankLimit
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = min(n, maxRankingsLimit)
		}
	}
	formatter := b.presenter.Formatter()
	rows, err := b.rankings(ctx)
	if err != nil {
		b.logger.Warn("rankings_failed", zap.Error(err))
		b.reply(ctx, room, formatter.RankingsError(err))
		return
	}
	b.reply(ctx, room, formatter.Rankings(rows, limit))
}
