package tournament

import (
	"encoding/json"
	"strconv"

	"gorm.io/datatypes"
)

const (
	defaultEndTime    = "23:59"
	defaultQuoteAsset = "USDT"

	// FinalizedLabel is the upstream marker for a concluded tournament.
	FinalizedLabel = "FINALIZED"
)

// Metadata is the typed view of a tournament's jsonb payload. The upstream
// shape is open-ended; the fields below are the ones the pipeline acts on,
// and Raw keeps the full decoded object so history publication can pass
// unknown keys through untouched.
type Metadata struct {
	End             string
	EndTime         string
	ChainID         string
	AlphaID         string
	QuoteAsset      string
	ContractAddress string
	IconURL         string
	ChainIconURL    string
	StatusLabel     string

	Raw map[string]any
}

// ParseMetadata decodes a raw jsonb payload. A null or absent payload
// yields an empty Metadata with a nil Raw map, not an error.
func ParseMetadata(raw datatypes.JSON) (Metadata, error) {
	md := Metadata{EndTime: defaultEndTime, QuoteAsset: defaultQuoteAsset}
	if len(raw) == 0 {
		return md, nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return md, err
	}
	if m == nil {
		return md, nil
	}

	md.Raw = m
	md.End = stringField(m, "end")
	if v := stringField(m, "endTime"); v != "" {
		md.EndTime = v
	}
	md.ChainID = stringField(m, "chainId")
	md.AlphaID = stringField(m, "alphaId")
	if v := stringField(m, "quoteAsset"); v != "" {
		md.QuoteAsset = v
	}
	md.ContractAddress = stringField(m, "contractAddress")
	md.IconURL = stringField(m, "iconUrl")
	md.ChainIconURL = stringField(m, "chainIconUrl")

	if pred, ok := m["ai_prediction"].(map[string]any); ok {
		md.StatusLabel = stringField(pred, "status_label")
	}

	return md, nil
}

// EndAt assembles the ISO-8601 UTC end instant from the date and time
// fields, or "" when the tournament has no end date.
func (m Metadata) EndAt() string {
	if m.End == "" {
		return ""
	}
	return m.End + "T" + m.EndTime + ":00Z"
}

// stringField reads a key that upstream stores as either a JSON string or
// a number (chainId in particular arrives both ways).
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
