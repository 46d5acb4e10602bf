package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type EgressMode string

const (
	EgressHTTP EgressMode = "http"
	EgressWS   EgressMode = "ws"
	EgressAuto EgressMode = "auto"
)

type AppConfig struct {
	APIBaseURL string
	APITimeout time.Duration
	APIToken   string

	IrisBaseURL string
	IrisWSURL   string

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	AllowedRooms []string

	SessionIdleTTL time.Duration
	RankingsLimit  int

	EgressMode   EgressMode
	EgressDryRun bool
	RenderCards  bool
	MsgcatDir    string
}

// Load reads the process environment. Values from a .env file in the working
// directory are applied first but never override variables already set.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &AppConfig{
		APITimeout:     8 * time.Second,
		SessionIdleTTL: time.Hour,
		RankingsLimit:  10,
		EgressMode:     EgressAuto,
		RenderCards:    true,
	}

	cfg.APIBaseURL = strings.TrimRight(env("K1L1_API_BASE_URL"), "/")
	cfg.APIToken = env("K1L1_API_TOKEN")
	cfg.IrisBaseURL = env("IRIS_BASE_URL")
	cfg.IrisWSURL = env("IRIS_WS_URL")
	cfg.BotPrefix = env("BOT_PREFIX")

	cfg.XUserID = env("X_USER_ID")
	cfg.XUserEmail = env("X_USER_EMAIL")
	cfg.XSessionID = env("X_SESSION_ID")
	cfg.MsgcatDir = env("MSGCAT_DIR")

	if v := env("ALLOWED_ROOMS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedRooms = append(cfg.AllowedRooms, s)
			}
		}
	}

	if v := env("K1L1_API_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.APITimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := env("SESSION_IDLE_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionIdleTTL = time.Duration(n) * time.Second
		}
	}
	if v := env("RANKINGS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RankingsLimit = n
		}
	}
	if v := env("EGRESS_DRYRUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.EgressDryRun = b
		}
	}
	if v := env("RENDER_CARDS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RenderCards = b
		}
	}
	switch m := EgressMode(strings.ToLower(env("EGRESS_MODE"))); m {
	case "":
	case EgressHTTP, EgressWS, EgressAuto:
		cfg.EgressMode = m
	default:
		return nil, fmt.Errorf("EGRESS_MODE %q: want http, ws or auto", m)
	}

	if cfg.APIBaseURL == "" {
		return nil, errors.New("K1L1_API_BASE_URL is required")
	}
	if cfg.BotPrefix == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	if cfg.IrisBaseURL == "" && cfg.EgressMode != EgressWS {
		return nil, fmt.Errorf("IRIS_BASE_URL is required for egress mode %s", cfg.EgressMode)
	}

	return cfg, nil
}

// APIHeaders are sent to the word API. The bridge identity never leaves the
// bridge connection.
func (c *AppConfig) APIHeaders() map[string]string {
	h := map[string]string{}
	if c.APIToken != "" {
		h["Authorization"] = "Bearer " + c.APIToken
	}
	return h
}

// BridgeHeaders identify the bot to the chat bridge on replies and the WS handshake.
func (c *AppConfig) BridgeHeaders() map[string]string {
	h := map[string]string{}
	if c.XUserID != "" {
		h["X-User-Id"] = c.XUserID
	}
	if c.XUserEmail != "" {
		h["X-User-Email"] = c.XUserEmail
	}
	if c.XSessionID != "" {
		h["X-Session-Id"] = c.XSessionID
	}
	return h
}

func (c *AppConfig) RoomAllowed(room string) bool {
	if len(c.AllowedRooms) == 0 {
		return true
	}
	for _, r := range c.AllowedRooms {
		if r == room {
			return true
		}
	}
	return false
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }
