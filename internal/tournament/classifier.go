package tournament

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"alphapulse/internal/models"
)

const (
	sentinelID   = -1
	sentinelName = "ARB"
)

// ActiveToken is the normalized view of a record accepted into the active
// set. It exists only for the duration of a run; it is never persisted.
type ActiveToken struct {
	Symbol     string
	Contract   string
	ChainID    string
	AlphaID    string
	QuoteAsset string
	Logo       string
	ChainLogo  string
	EndAt      *string
}

type ActiveStats struct {
	Scanned         int `json:"scanned"`
	Active          int `json:"active"`
	Skipped         int `json:"skipped"`
	Expired         int `json:"expired"`
	MissingContract int `json:"missing_contract"`
	MissingChainID  int `json:"missing_chain_id"`
	BadMetadata     int `json:"bad_metadata"`
}

type Classifier struct {
	Logger       *zap.Logger
	LookbackDays int

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (c *Classifier) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// ClassifyActive filters the record set down to tournaments eligible for a
// market-data refresh. Records with no recoverable contract or no chain id
// are excluded and reported as data-quality warnings; they are never fatal.
// Output preserves the insertion order of the record set.
//
// The date filter compares YYYY-MM-DD strings lexicographically, which is
// exact for this fixed-width zero-padded format.
func (c *Classifier) ClassifyActive(records []models.Tournament) ([]ActiveToken, ActiveStats) {
	stats := ActiveStats{Scanned: len(records)}
	threshold := c.now().UTC().AddDate(0, 0, -c.LookbackDays).Format("2006-01-02")

	var out []ActiveToken
	for _, rec := range records {
		if rec.ID == sentinelID || rec.Name == sentinelName {
			stats.Skipped++
			continue
		}

		md, err := ParseMetadata(rec.Data)
		if err != nil {
			stats.BadMetadata++
			c.warn("undecodable metadata", rec, zap.Error(err))
			continue
		}

		contract := ""
		if rec.Contract != nil {
			contract = strings.TrimSpace(*rec.Contract)
		}
		if contract == "" {
			contract = strings.TrimSpace(md.ContractAddress)
		}
		if contract == "" {
			stats.MissingContract++
			c.warn("missing contract address", rec)
			continue
		}

		if md.End != "" && md.End < threshold {
			stats.Expired++
			continue
		}

		if md.ChainID == "" {
			stats.MissingChainID++
			c.warn("missing chainId", rec)
			continue
		}

		var endAt *string
		if v := md.EndAt(); v != "" {
			endAt = &v
		}

		out = append(out, ActiveToken{
			Symbol:     rec.Name,
			Contract:   strings.ToLower(contract),
			ChainID:    md.ChainID,
			AlphaID:    md.AlphaID,
			QuoteAsset: md.QuoteAsset,
			Logo:       md.IconURL,
			ChainLogo:  md.ChainIconURL,
			EndAt:      endAt,
		})
		stats.Active++
	}

	return out, stats
}

func (c *Classifier) warn(msg string, rec models.Tournament, fields ...zap.Field) {
	if c.Logger == nil {
		return
	}
	fields = append([]zap.Field{zap.Int64("id", rec.ID), zap.String("name", rec.Name)}, fields...)
	c.Logger.Warn(msg, fields...)
}
