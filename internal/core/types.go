package core

import (
	"encoding/json"
	"time"
)

const MaxLogEntries = 1000
const MaxLogMessageSize = 4096

// LogEntry is a single console.log/warn/error captured during a render.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// BoolToInt converts a bool to 1 (true) or 0 (false) for JS interop,
// since some JS engines cannot marshal Go bool return values directly.
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// JSString renders s as a JavaScript string literal.
func JSString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
