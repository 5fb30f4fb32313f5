package domain

// Tier is the discrete recommendation bucket assigned per ticker.
type Tier string

const (
	TierStrongBuy   Tier = "STRONG_BUY"
	TierBuy         Tier = "BUY"
	TierShort       Tier = "SHORT"
	TierStrongShort Tier = "STRONG_SHORT"
)

// ArticleRef points back at a ClassifiedArticle supporting a position.
type ArticleRef struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Sentiment  float64 `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// Position is one recommendation per ticker per session.
type Position struct {
	Ticker     string       `json:"ticker"`
	Tier       Tier         `json:"tier"`
	Confidence float64      `json:"confidence"`
	Sentiment  float64      `json:"sentiment"`
	Articles   []ArticleRef `json:"articles"`
	Reasoning  string       `json:"reasoning"`
}

// Clone copies the supporting references.
func (p Position) Clone() Position {
	p.Articles = append([]ArticleRef(nil), p.Articles...)
	return p
}
