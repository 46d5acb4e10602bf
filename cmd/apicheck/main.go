package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/park285/k1l1-bot/internal/irisfast"
	"github.com/park285/k1l1-bot/internal/wordapi"
)

func main() {
	watch := flag.Duration("watch", 0, "also connect to IRIS_WS_URL and print messages for this long")
	flag.Parse()

	baseURL := os.Getenv("K1L1_API_BASE_URL")
	if baseURL == "" {
		log.Fatal("K1L1_API_BASE_URL is required")
	}
	apiHeaders := func() map[string]string {
		m := map[string]string{}
		if v := os.Getenv("K1L1_API_TOKEN"); v != "" {
			m["Authorization"] = "Bearer " + v
		}
		return m
	}
	bridgeHeaders := func() map[string]string {
		m := map[string]string{}
		if v := os.Getenv("X_USER_ID"); v != "" {
			m["X-User-Id"] = v
		}
		if v := os.Getenv("X_SESSION_ID"); v != "" {
			m["X-Session-Id"] = v
		}
		return m
	}

	api := wordapi.NewClient(baseURL,
		wordapi.WithHeaderProvider(apiHeaders),
		wordapi.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pair, err := api.WordPair(ctx)
	if err != nil {
		log.Printf("/api/word-pair error: %v", err)
	} else {
		log.Printf("/api/word-pair ok: %s (#%d) vs %s (#%d)", pair.Word1, pair.Word1ID, pair.Word2, pair.Word2ID)
	}

	rows, err := api.Rankings(ctx)
	if err != nil {
		log.Printf("/api/rankings error: %v", err)
	} else {
		sum := wordapi.Summarize(rows)
		log.Printf("/api/rankings ok: words=%s votes=%s", humanize.Comma(int64(sum.Words)), humanize.Comma(int64(sum.Votes)))
		for i, r := range wordapi.Top(rows, 3) {
			fmt.Printf("  %s %s %.1f%%\n", humanize.Ordinal(i+1), r.Word, r.WinRatePercent())
		}
	}

	wsURL := os.Getenv("IRIS_WS_URL")
	if *watch <= 0 || wsURL == "" {
		return
	}
	ws := irisfast.NewWebSocket(wsURL, 0, irisfast.WithWSHeaders(bridgeHeaders))
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *irisfast.Message) {
		fmt.Printf("WS msg room=%s from=%s text=%q\n", msg.Room, msg.SenderName(), msg.Msg)
	})
	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}
	<-time.After(*watch)
	_ = ws.Close(context.Background())
}
