package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionState enumerates the pipeline stages a session moves through.
type SessionState string

const (
	StatePending     SessionState = "pending"
	StateScraping    SessionState = "scraping"
	StateFiltering   SessionState = "filtering"
	StateEnriching   SessionState = "enriching"
	StateClassifying SessionState = "classifying"
	StateAggregating SessionState = "aggregating"
	StateCompleted   SessionState = "completed"
	StateFailed      SessionState = "failed"
	StateCancelled   SessionState = "cancelled"
)

const (
	MinMaxPositions = 1
	MaxMaxPositions = 50
)

var allowedTransitions = map[SessionState]map[SessionState]struct{}{
	StatePending: {
		StateScraping:  {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateScraping: {
		StateFiltering: {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateFiltering: {
		StateEnriching: {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateEnriching: {
		StateClassifying: {},
		StateFailed:      {},
		StateCancelled:   {},
	},
	StateClassifying: {
		StateAggregating: {},
		StateFailed:      {},
		StateCancelled:   {},
	},
	StateAggregating: {
		StateCompleted: {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateCompleted: {},
	StateFailed:    {},
	StateCancelled: {},
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ValidateState rejects unknown states.
func ValidateState(state SessionState) error {
	if _, ok := allowedTransitions[state]; !ok {
		return fmt.Errorf("invalid session state: %q", state)
	}
	return nil
}

// ValidateTransition only admits forward moves through the pipeline.
func ValidateTransition(from, to SessionState) error {
	if err := ValidateState(from); err != nil {
		return err
	}
	if err := ValidateState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid session transition: %s -> %s", from, to)
	}
	return nil
}

// SessionConfig is the caller-supplied configuration of one run.
type SessionConfig struct {
	MaxPositions  int      `json:"max_positions" yaml:"maxPositions"`
	MinConfidence float64  `json:"min_confidence" yaml:"minConfidence"`
	Model         string   `json:"model" yaml:"model"`
	Sources       []string `json:"sources" yaml:"sources"`
}

// Validate enforces the bounds a session needs before it may start.
func (c SessionConfig) Validate() error {
	if c.MaxPositions < MinMaxPositions || c.MaxPositions > MaxMaxPositions {
		return fmt.Errorf("%w: max positions %d outside [%d,%d]",
			ErrInvalidConfiguration, c.MaxPositions, MinMaxPositions, MaxMaxPositions)
	}
	if !(c.MinConfidence > 0 && c.MinConfidence <= 1) {
		return fmt.Errorf("%w: min confidence %v outside (0,1]", ErrInvalidConfiguration, c.MinConfidence)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: at least one source is required", ErrInvalidConfiguration)
	}
	for _, src := range c.Sources {
		if strings.TrimSpace(src) == "" {
			return fmt.Errorf("%w: empty source name", ErrInvalidConfiguration)
		}
	}
	return nil
}

// Clone returns a copy that shares no slices with c.
func (c SessionConfig) Clone() SessionConfig {
	c.Sources = append([]string(nil), c.Sources...)
	return c
}

// SessionHandle is what Start hands back to the caller.
type SessionHandle struct {
	ID        string       `json:"session_id"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// Session is a point-in-time view of one pipeline run.
type Session struct {
	ID          string         `json:"session_id"`
	State       SessionState   `json:"state"`
	Config      SessionConfig  `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Progress    int            `json:"progress"`
	Error       *SessionError  `json:"error,omitempty"`
	Positions   []Position     `json:"positions,omitempty"`
	Summary     *MarketSummary `json:"summary,omitempty"`
}

// Clone deep-copies the snapshot so callers cannot alias session state.
func (s Session) Clone() Session {
	out := s
	out.Config = s.Config.Clone()
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.Positions != nil {
		out.Positions = make([]Position, len(s.Positions))
		for i, p := range s.Positions {
			out.Positions[i] = p.Clone()
		}
	}
	if s.Summary != nil {
		sum := *s.Summary
		sum.Bullets = append([]string(nil), s.Summary.Bullets...)
		out.Summary = &sum
	}
	return out
}
