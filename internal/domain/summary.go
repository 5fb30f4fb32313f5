package domain

import "time"

// MarketSummary is the human-readable document produced for a completed session.
type MarketSummary struct {
	SessionID     string    `json:"session_id"`
	Paragraph     string    `json:"paragraph"`
	Bullets       []string  `json:"bullets"`
	PositionCount int       `json:"position_count"`
	ArticleCount  int       `json:"article_count"`
	ModelUsed     string    `json:"model_used"`
	CreatedAt     time.Time `json:"created_at"`
}
