package webhook

import (
	"encoding/json"
	"time"

	"towerbot/internal/record"
)

const (
	ColorCritical = 0xE74C3C
	ColorError    = 0xE67E22
	ColorWarning  = 0xF1C40F
	ColorInfo     = 0x3498DB

	// maxDescription is the embed description limit of the chat platform.
	maxDescription = 4096
)

// Item is one queued delivery.
type Item struct {
	Message string
	Level   record.Level
	Time    time.Time
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Color maps a level to the embed side bar color.
func Color(l record.Level) int {
	switch {
	case l >= record.LevelCritical:
		return ColorCritical
	case l >= record.LevelError:
		return ColorError
	case l >= record.LevelWarning:
		return ColorWarning
	default:
		return ColorInfo
	}
}

// Encode renders the JSON body posted for it.
func Encode(it Item) ([]byte, error) {
	desc := it.Message
	if r := []rune(desc); len(r) > maxDescription {
		desc = string(r[:maxDescription-1]) + "…"
	}
	ts := it.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return json.Marshal(payload{Embeds: []embed{{
		Title:       "Log Entry: " + it.Level.String(),
		Description: desc,
		Color:       Color(it.Level),
		Timestamp:   ts.Format(time.RFC3339Nano),
	}}})
}
