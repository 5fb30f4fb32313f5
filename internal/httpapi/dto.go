package httpapi

import (
	"time"

	"MarketScanner/internal/domain"
)

// StartSessionRequest overrides the configured session defaults field by field.
type StartSessionRequest struct {
	MaxPositions  *int     `json:"max_positions"`
	MinConfidence *float64 `json:"min_confidence"`
	Model         string   `json:"model"`
	Sources       []string `json:"sources"`
}

func (r StartSessionRequest) merge(defaults domain.SessionConfig) domain.SessionConfig {
	cfg := defaults.Clone()
	if r.MaxPositions != nil {
		cfg.MaxPositions = *r.MaxPositions
	}
	if r.MinConfidence != nil {
		cfg.MinConfidence = *r.MinConfidence
	}
	if r.Model != "" {
		cfg.Model = r.Model
	}
	if len(r.Sources) > 0 {
		cfg.Sources = append([]string(nil), r.Sources...)
	}
	return cfg
}

type SessionHandleResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
}

type PositionsResponse struct {
	SessionID string            `json:"session_id"`
	State     string            `json:"state"`
	Positions []domain.Position `json:"positions"`
}

type ActivityResponse struct {
	SessionID string            `json:"session_id"`
	Entries   []domain.LogEntry `json:"entries"`
	Total     int               `json:"total"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

func toHandleResponse(h domain.SessionHandle) SessionHandleResponse {
	return SessionHandleResponse{
		SessionID: h.ID,
		State:     string(h.State),
		CreatedAt: h.CreatedAt.Format(time.RFC3339),
	}
}
