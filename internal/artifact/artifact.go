package artifact

import (
	"encoding/json"
	"time"

	"alphapulse/internal/klines"
	"alphapulse/internal/tournament"
)

// TokenSeries is one contract's payload inside the active artifact. Keys
// are deliberately terse; the front end pays for every byte.
type TokenSeries struct {
	Symbol     string             `json:"s"`
	QuoteAsset string             `json:"q"`
	Logo       string             `json:"l"`
	ChainLogo  string             `json:"cl"`
	EndAt      *string            `json:"e"`
	History    []klines.RiskPoint `json:"h"`
}

// Active is the published envelope for competition-history.json. The
// timestamp lets the front end detect staleness; the whole object is
// replaced on every run.
type Active struct {
	UpdatedAt int64                  `json:"updated_at"`
	Note      string                 `json:"note"`
	Data      map[string]TokenSeries `json:"data"`
}

func NewActive(note string, now time.Time) *Active {
	return &Active{
		UpdatedAt: now.UnixMilli(),
		Note:      note,
		Data:      make(map[string]TokenSeries),
	}
}

// Add records one token's series under its contract address. Tokens with
// zero points are omitted entirely: absence signals "no data", not "empty
// window". Returns whether the token was included.
func (a *Active) Add(tok tournament.ActiveToken, points []klines.RiskPoint) bool {
	if len(points) == 0 {
		return false
	}
	a.Data[tok.Contract] = TokenSeries{
		Symbol:     tok.Symbol,
		QuoteAsset: tok.QuoteAsset,
		Logo:       tok.Logo,
		ChainLogo:  tok.ChainLogo,
		EndAt:      tok.EndAt,
		History:    points,
	}
	return true
}

func (a *Active) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// EncodeHistory serializes the history artifact: a bare keyed map, no
// envelope. The history document is the full snapshot of everything
// finalized, so it carries no freshness timestamp.
func EncodeHistory(entries map[string]tournament.HistoryEntry) ([]byte, error) {
	return json.Marshal(entries)
}
