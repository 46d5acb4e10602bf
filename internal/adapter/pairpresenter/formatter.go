package pairpresenter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/park285/k1l1-bot/internal/msgcat"
	"github.com/park285/k1l1-bot/internal/service/cardrender"
	"github.com/park285/k1l1-bot/internal/tournament"
	"github.com/park285/k1l1-bot/internal/util"
	"github.com/park285/k1l1-bot/internal/wordapi"
)

// Leaderboards longer than this are folded behind the chat client's "See more".
const foldRankingsAfter = 5

// PrefixProvider exposes the command prefix shown in hints.
type PrefixProvider interface {
	Prefix() string
}

// Formatter turns controller snapshots and leaderboard rows into chat text.
type Formatter struct {
	prefixProvider PrefixProvider
	cat            *msgcat.Catalog
}

func NewFormatter(provider PrefixProvider, cat *msgcat.Catalog) *Formatter {
	return &Formatter{prefixProvider: provider, cat: cat}
}

func (f *Formatter) Prefix() string {
	if f == nil || f.prefixProvider == nil {
		return ""
	}
	return strings.TrimSpace(f.prefixProvider.Prefix())
}

func (f *Formatter) Snapshot(s tournament.Snapshot) string {
	p := f.Prefix()
	switch s.Phase {
	case tournament.PhaseLoading:
		return f.cat.Text("session.loading", nil, "Loading...")
	case tournament.PhaseActive:
		if s.Pair == nil {
			break
		}
		text := f.cat.Text("session.prompt", map[string]any{
			"Left": s.Pair.Left.Label, "Right": s.Pair.Right.Label, "Prefix": p,
		}, fmt.Sprintf("%s vs %s", s.Pair.Left.Label, s.Pair.Right.Label))
		if s.Eliminated > 0 {
			text += "\n" + f.eliminated(s.Eliminated)
		}
		return text
	case tournament.PhaseGameOver:
		return f.cat.Text("session.champion", map[string]any{
			"Champion": s.Champion, "Eliminated": s.Eliminated, "Votes": s.Votes, "Prefix": p,
		}, fmt.Sprintf("It seems %s is the most important thing to you.", s.Champion))
	case tournament.PhaseFailed:
		return f.cat.Text("session.failed", map[string]any{"Reason": f.failureReason(s), "Prefix": p}, f.failureReason(s))
	}
	return f.cat.Text("session.idle", map[string]any{"Prefix": p}, "No tournament running.")
}

// ForPlayer puts the player's name above text so replies from concurrent
// sessions in one room can be told apart. An empty name leaves text as is.
func (f *Formatter) ForPlayer(player, text string) string {
	player = strings.TrimSpace(player)
	if player == "" || text == "" {
		return text
	}
	return f.cat.Text("session.player", map[string]any{"Player": player}, player) + "\n" + text
}

func (f *Formatter) Stopped() string {
	return f.cat.Text("session.stopped", map[string]any{"Prefix": f.Prefix()}, "Tournament ended.")
}

func (f *Formatter) eliminated(n int) string {
	return f.cat.Text("session.eliminated", map[string]any{"Count": humanize.Comma(int64(n))},
		fmt.Sprintf("Words eliminated: %d", n))
}

func (f *Formatter) failureReason(s tournament.Snapshot) string {
	if errors.Is(s.Err, tournament.ErrProtocol) {
		return f.cat.Text("failure.protocol", nil, "Unexpected answer from the word server.")
	}
	switch s.FailedStep {
	case tournament.StepVote:
		return f.cat.Text("failure.vote", nil, "Your vote was not recorded.")
	case tournament.StepLookup:
		return f.cat.Text("failure.lookup", nil, "Could not fetch the next word.")
	default:
		return f.cat.Text("failure.start", nil, "Could not fetch a starting pair.")
	}
}

// Rejection explains a command the controller refused. Unknown errors fall
// back to their own text.
func (f *Formatter) Rejection(err error) string {
	data := map[string]any{"Prefix": f.Prefix()}
	switch {
	case errors.Is(err, tournament.ErrBusy):
		return f.cat.Text("reject.busy", data, "Still waiting for the server.")
	case errors.Is(err, tournament.ErrNotActive):
		return f.cat.Text("reject.not_active", data, "There is nothing to choose right now.")
	case errors.Is(err, tournament.ErrNotFailed):
		return f.cat.Text("reject.not_failed", data, "Nothing to retry.")
	case errors.Is(err, tournament.ErrInvalidSide):
		return f.cat.Text("reject.invalid_side", data, "Pick 1 or 2.")
	case errors.Is(err, tournament.ErrSuperseded):
		return f.cat.Text("reject.superseded", data, "That answer arrived too late.")
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}

// Rankings renders at most limit rows plus a summary line.
func (f *Formatter) Rankings(rows []wordapi.Ranking, limit int) string {
	p := f.Prefix()
	if len(rows) == 0 {
		return f.cat.Text("rankings.empty", map[string]any{"Prefix": p}, "No votes yet.")
	}
	header := f.cat.Text("rankings.header", nil, "Word rankings")
	sum := wordapi.Summarize(rows)
	summary := map[string]any{
		"Words": humanize.Comma(int64(sum.Words)),
		"Votes": humanize.Comma(int64(sum.Votes)),
		"Top":   "",
	}
	if sum.Top != nil {
		summary["Top"] = sum.Top.Word
		summary["TopRate"] = percent(sum.Top.WinRatePercent())
	}

	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n\n")
	sb.WriteString(f.cat.Text("rankings.summary", summary, fmt.Sprintf("Words: %d", sum.Words)))
	sb.WriteString("\n")
	shown := wordapi.Top(rows, limit)
	for i, r := range shown {
		sb.WriteString("\n")
		sb.WriteString(f.cat.Text("rankings.row", map[string]any{
			"Rank":    humanize.Ordinal(i + 1),
			"Word":    r.Word,
			"WinRate": percent(r.WinRatePercent()),
			"Wins":    humanize.Comma(int64(r.Wins)),
			"Losses":  humanize.Comma(int64(r.Losses)),
		}, fmt.Sprintf("%d. %s", i+1, r.Word)))
	}
	text := sb.String()
	if len(shown) > foldRankingsAfter {
		return util.SeeMoreWithHeader(text, header, fmt.Sprintf(" (top %d)", len(shown)))
	}
	return text
}

func (f *Formatter) RankingsError(err error) string {
	return f.cat.Text("rankings.error", map[string]any{"Error": err.Error()}, "Could not load rankings.")
}

func (f *Formatter) Help() string {
	return f.cat.Text("help", map[string]any{"Prefix": f.Prefix()}, "Keep 1, Leave 1")
}

func (f *Formatter) Unknown() string {
	return f.cat.Text("unknown", map[string]any{"Prefix": f.Prefix()}, "Unknown command.")
}

// Card describes the image for s, or false when the phase has nothing to draw.
func (f *Formatter) Card(s tournament.Snapshot) (cardrender.Card, bool) {
	title := f.cat.Text("card.title", nil, "KEEP 1, LEAVE 1")
	switch {
	case s.Active():
		c := cardrender.Card{Title: title, Left: s.Pair.Left.Label, Right: s.Pair.Right.Label}
		if s.Eliminated > 0 {
			c.Footer = f.eliminated(s.Eliminated)
		}
		return c, true
	case s.Finished() && s.Champion != "":
		return cardrender.Card{Title: title, Champion: s.Champion, Footer: f.eliminated(s.Eliminated)}, true
	}
	return cardrender.Card{}, false
}

func percent(pct float64) string {
	return humanize.FtoaWithDigits(pct, 1) + "%"
}
