package domain

import "time"

// LogLevel grades activity entries.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is one append-only audit record of a pipeline action.
type LogEntry struct {
	SessionID string            `json:"session_id"`
	Sequence  uint64            `json:"sequence"`
	Stage     Stage             `json:"stage"`
	Level     LogLevel          `json:"level"`
	Action    string            `json:"action"`
	Message   string            `json:"message"`
	Detail    map[string]string `json:"detail,omitempty"`
	At        time.Time         `json:"at"`
}
