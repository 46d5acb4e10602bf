package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/k1l1-bot/internal/adapter/pairpresenter"
	appcfg "github.com/park285/k1l1-bot/internal/config"
	"github.com/park285/k1l1-bot/internal/irisfast"
	"github.com/park285/k1l1-bot/internal/msgcat"
	"github.com/park285/k1l1-bot/internal/obslog"
	"github.com/park285/k1l1-bot/internal/service/cardrender"
	"github.com/park285/k1l1-bot/internal/wordapi"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	api := wordapi.NewClient(cfg.APIBaseURL,
		wordapi.WithTimeout(cfg.APITimeout),
		wordapi.WithHeaderProvider(cfg.APIHeaders),
		wordapi.WithLogger(obslog.Named("wordapi")),
	)

	var client *irisfast.Client
	if cfg.IrisBaseURL != "" {
		client = irisfast.NewClient(cfg.IrisBaseURL, irisfast.WithHeaderProvider(cfg.BridgeHeaders))
	}
	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 5,
		irisfast.WithWSHeaders(cfg.BridgeHeaders),
		irisfast.WithWSLogger(obslog.Named("ws")),
	)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})
	egress := irisfast.NewEgress(string(cfg.EgressMode), cfg.EgressDryRun, client, ws, obslog.Named("egress"))

	cat, err := msgcat.New(cfg.MsgcatDir)
	if err != nil {
		logger.Fatal("msgcat_init_failed", zap.Error(err))
	}
	var renderer cardrender.Renderer
	if cfg.RenderCards {
		renderer = cardrender.NewRenderer()
	}
	formatter := pairpresenter.NewFormatter(prefixProvider{prefix: cfg.BotPrefix}, cat)
	presenter := pairpresenter.NewPresenter(egress, formatter, renderer, obslog.Named("presenter"))

	b := newBot(botDeps{
		Prefix:         cfg.BotPrefix,
		RoomAllowed:    cfg.RoomAllowed,
		Ports:          wordapi.NewBackend(api),
		Rankings:       api.Rankings,
		Presenter:      presenter,
		RequestTimeout: cfg.APITimeout,
		IdleTTL:        cfg.SessionIdleTTL,
		RankingsLimit:  cfg.RankingsLimit,
		Logger:         obslog.Named("bot"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws.OnMessage(func(msg *irisfast.Message) {
		// keep the read loop free; each command may wait on the word API
		go b.handle(ctx, msg)
	})
	go b.sessions.Run(ctx, time.Minute)

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = ws.Connect(cctx)
	cancel()
	if err != nil {
		logger.Fatal("ws_connect_failed", zap.Error(err))
	}
	logger.Info("bot_started",
		zap.String("api", api.BaseURL()),
		zap.String("egress", string(cfg.EgressMode)),
		zap.Bool("dryrun", cfg.EgressDryRun),
		zap.Bool("cards", cfg.RenderCards),
	)

	<-ctx.Done()
	logger.Info("bot_stopping")

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	_ = ws.Close(closeCtx)
}

type prefixProvider struct{ prefix string }

func (p prefixProvider) Prefix() string { return p.prefix }
