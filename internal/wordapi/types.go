package wordapi

import (
	"fmt"
	"strings"
)

type WordPair struct {
	Word1   string `json:"word1"`
	Word1ID int64  `json:"word1_id"`
	Word2   string `json:"word2"`
	Word2ID int64  `json:"word2_id"`
}

type VoteRequest struct {
	WinnerID int64 `json:"winner_id"`
	LoserID  int64 `json:"loser_id"`
}

type VoteResponse struct {
	Message string `json:"message"`
	Winner  string `json:"winner"`
	Loser   string `json:"loser"`
}

type Opponent struct {
	Word string `json:"word"`
	ID   int64  `json:"id"`
}

type Ranking struct {
	Word       string  `json:"word"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	WinRate    float64 `json:"win_rate"`
	TimesShown int     `json:"times_shown"`
}

// Wire shapes use pointers so a missing field can be told apart from a zero value.

type wordPairWire struct {
	Word1   *string `json:"word1"`
	Word1ID *int64  `json:"word1_id"`
	Word2   *string `json:"word2"`
	Word2ID *int64  `json:"word2_id"`
}

func (w wordPairWire) toWordPair() (*WordPair, error) {
	if err := requireField("word1", w.Word1 != nil && strings.TrimSpace(*w.Word1) != ""); err != nil {
		return nil, err
	}
	if err := requireField("word2", w.Word2 != nil && strings.TrimSpace(*w.Word2) != ""); err != nil {
		return nil, err
	}
	if err := requireField("word1_id", w.Word1ID != nil); err != nil {
		return nil, err
	}
	if err := requireField("word2_id", w.Word2ID != nil); err != nil {
		return nil, err
	}
	return &WordPair{Word1: *w.Word1, Word1ID: *w.Word1ID, Word2: *w.Word2, Word2ID: *w.Word2ID}, nil
}

type voteWire struct {
	Message string  `json:"message"`
	Winner  *string `json:"winner"`
	Loser   *string `json:"loser"`
}

func (w voteWire) toVoteResponse() (*VoteResponse, error) {
	if err := requireField("winner", w.Winner != nil && strings.TrimSpace(*w.Winner) != ""); err != nil {
		return nil, err
	}
	out := &VoteResponse{Message: w.Message, Winner: *w.Winner}
	if w.Loser != nil {
		out.Loser = *w.Loser
	}
	return out, nil
}

// opponentWire accepts both "id" and the "word_id" spelling older servers send.
type opponentWire struct {
	Word   *string `json:"word"`
	ID     *int64  `json:"id"`
	WordID *int64  `json:"word_id"`
}

func (w opponentWire) toOpponent() (*Opponent, error) {
	if w.Word == nil && w.ID == nil && w.WordID == nil {
		return nil, nil
	}
	if err := requireField("word", w.Word != nil && strings.TrimSpace(*w.Word) != ""); err != nil {
		return nil, err
	}
	switch {
	case w.ID != nil:
		return &Opponent{Word: *w.Word, ID: *w.ID}, nil
	case w.WordID != nil:
		return &Opponent{Word: *w.Word, ID: *w.WordID}, nil
	default:
		return nil, fmt.Errorf("%w: missing id", ErrMalformedResponse)
	}
}

type rankingWire struct {
	Word       *string  `json:"word"`
	Wins       *int     `json:"wins"`
	Losses     *int     `json:"losses"`
	WinRate    *float64 `json:"win_rate"`
	TimesShown *int     `json:"times_shown"`
}

func (w rankingWire) toRanking() (Ranking, error) {
	if err := requireField("word", w.Word != nil && *w.Word != ""); err != nil {
		return Ranking{}, err
	}
	if err := requireField("wins", w.Wins != nil); err != nil {
		return Ranking{}, err
	}
	if err := requireField("losses", w.Losses != nil); err != nil {
		return Ranking{}, err
	}
	r := Ranking{Word: *w.Word, Wins: *w.Wins, Losses: *w.Losses}
	if w.WinRate != nil {
		r.WinRate = *w.WinRate
	} else {
		r.WinRate = WinRate(r.Wins, r.Losses)
	}
	if w.TimesShown != nil {
		r.TimesShown = *w.TimesShown
	}
	return r, nil
}

func requireField(field string, ok bool) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrMalformedResponse, field)
}
