package wordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var ErrMalformedResponse = errors.New("malformed word api response")

// APIError is returned for any non-2xx answer.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("word api error: %s %s status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// Client talks to the word ranking API. It never retries on its own: a failed
// call is reported once and the caller decides whether to try again.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	logger  *zap.Logger

	defaultTimeout time.Duration
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 32},
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// WordPair fetches a fresh starting pair.
func (c *Client) WordPair(ctx context.Context) (*WordPair, error) {
	body, _, err := c.do(ctx, fasthttp.MethodGet, "/api/word-pair", nil, nil)
	if err != nil {
		return nil, err
	}
	var w wordPairWire
	if err := decode(body, &w); err != nil {
		return nil, err
	}
	return w.toWordPair()
}

func (c *Client) Vote(ctx context.Context, winnerID, loserID int64) (*VoteResponse, error) {
	req := VoteRequest{WinnerID: winnerID, LoserID: loserID}
	body, _, err := c.do(ctx, fasthttp.MethodPost, "/api/vote", nil, req)
	if err != nil {
		return nil, err
	}
	var w voteWire
	if err := decode(body, &w); err != nil {
		return nil, err
	}
	return w.toVoteResponse()
}

// NextOpponent returns (nil, nil) when the API reports that no opponent is left
// for the winner: an empty body, JSON null, an empty object or 204.
func (c *Client) NextOpponent(ctx context.Context, winnerID, loserID int64) (*Opponent, error) {
	q := url.Values{}
	q.Set("winner_id", strconv.FormatInt(winnerID, 10))
	q.Set("loser_id", strconv.FormatInt(loserID, 10))
	body, status, err := c.do(ctx, fasthttp.MethodGet, "/api/next-opponent", q, nil)
	if err != nil {
		return nil, err
	}
	if status == fasthttp.StatusNoContent || isNullBody(body) {
		return nil, nil
	}
	var w opponentWire
	if err := decode(body, &w); err != nil {
		return nil, err
	}
	return w.toOpponent()
}

// Rankings returns the leaderboard in the order the API sent it.
func (c *Client) Rankings(ctx context.Context) ([]Ranking, error) {
	body, _, err := c.do(ctx, fasthttp.MethodGet, "/api/rankings", nil, nil)
	if err != nil {
		return nil, err
	}
	var rows []rankingWire
	if err := decode(body, &rows); err != nil {
		return nil, err
	}
	out := make([]Ranking, 0, len(rows))
	for i, row := range rows {
		r, err := row.toRanking()
		if err != nil {
			return nil, fmt.Errorf("rankings[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in any) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}

	uri := c.baseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	start := time.Now()
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		} else if errors.Is(err, fasthttp.ErrTimeout) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		c.logger.Warn("wordapi_request_failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		apiErr := &APIError{Method: method, Path: path, Status: status, Body: truncate(string(resp.Body()), 512)}
		c.logger.Warn("wordapi_bad_status", zap.String("path", path), zap.Int("status", status))
		return nil, status, apiErr
	}
	c.logger.Debug("wordapi_request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
	)
	// resp is released on return
	return append([]byte(nil), resp.Body()...), status, nil
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func decode(body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func isNullBody(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
