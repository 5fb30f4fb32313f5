package domain

import "time"

// Stage names a progress event; it mirrors the session state it reports on.
type Stage = SessionState

// ProgressEvent is an immutable, ordered notification of pipeline advancement.
type ProgressEvent struct {
	SessionID string    `json:"sessionId"`
	Sequence  uint64    `json:"sequence"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Payload   any       `json:"payload,omitempty"`
	At        time.Time `json:"at"`
}

// Terminal reports whether this is the last event a session will emit.
func (e ProgressEvent) Terminal() bool {
	return e.Stage.Terminal()
}
