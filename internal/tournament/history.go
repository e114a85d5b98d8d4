package tournament

import (
	"fmt"

	"go.uber.org/zap"

	"alphapulse/internal/models"
)

// HistoryEntry is a finalized tournament's published metadata object: the
// record's raw payload with alphaId guaranteed present and the prediction
// status stamped FINALIZED.
type HistoryEntry = map[string]any

type HistoryStats struct {
	Scanned     int `json:"scanned"`
	Standard    int `json:"standard"`
	Legacy      int `json:"legacy"`
	StillActive int `json:"still_active"`
	NoMetadata  int `json:"no_metadata"`
	BadMetadata int `json:"bad_metadata"`
}

// ClassifyHistory selects every finalized tournament from the record set.
// A record is historical when its prediction status is FINALIZED or its end
// date is strictly before today (UTC); either rule alone admits it. Records
// still active are skipped untouched.
//
// Entries are keyed by alphaId; a record lacking one gets a synthesized
// legacy_<id> key, written back into the published payload so consumers
// never observe a record without the field. The FINALIZED stamp is applied
// to every accepted entry regardless of which rule admitted it.
func (c *Classifier) ClassifyHistory(records []models.Tournament) (map[string]HistoryEntry, HistoryStats) {
	stats := HistoryStats{Scanned: len(records)}
	today := c.now().UTC().Format("2006-01-02")

	out := make(map[string]HistoryEntry)
	for _, rec := range records {
		if rec.ID == sentinelID {
			continue
		}

		md, err := ParseMetadata(rec.Data)
		if err != nil {
			stats.BadMetadata++
			c.warn("undecodable metadata", rec, zap.Error(err))
			continue
		}
		if md.Raw == nil {
			stats.NoMetadata++
			continue
		}

		finalized := md.StatusLabel == FinalizedLabel
		if !finalized && md.End != "" && md.End < today {
			finalized = true
		}
		if !finalized {
			stats.StillActive++
			continue
		}

		entry := make(HistoryEntry, len(md.Raw)+1)
		for k, v := range md.Raw {
			entry[k] = v
		}

		key := md.AlphaID
		if key == "" {
			key = fmt.Sprintf("legacy_%d", rec.ID)
			entry["alphaId"] = key
			stats.Legacy++
		} else {
			stats.Standard++
		}

		pred := make(map[string]any)
		if existing, ok := entry["ai_prediction"].(map[string]any); ok {
			for k, v := range existing {
				pred[k] = v
			}
		}
		pred["status_label"] = FinalizedLabel
		entry["ai_prediction"] = pred

		out[key] = entry
	}

	return out, stats
}
