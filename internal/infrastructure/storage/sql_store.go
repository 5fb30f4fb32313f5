package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

// SQLStore persists pipeline artifacts into Postgres or SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

var _ ports.Store = (*SQLStore)(nil)

// Open connects to the database, checks the connection and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one connection keeps in-memory databases shared and serialises writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	store := NewSQLStore(db, driver)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wires an existing sql.DB.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	var format sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		format = sq.Dollar
	}
	return &SQLStore{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) PersistArticle(ctx context.Context, sessionID string, candidate domain.Candidate, body string) error {
	q := s.sb.Insert("scanned_articles").
		Columns("session_id", "url", "source", "ticker", "title", "body", "fetched_at").
		Values(sessionID, candidate.URL, candidate.Source, candidate.Ticker, candidate.Title, body, candidate.FetchedAt.UTC()).
		Suffix(`ON CONFLICT (session_id, url) DO UPDATE
			SET ticker = excluded.ticker, title = excluded.title, body = excluded.body`)
	if _, err := q.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert article: %w", err)
	}
	return nil
}

func (s *SQLStore) PersistAnalysis(ctx context.Context, sessionID string, article domain.ClassifiedArticle) error {
	catalysts, err := encode(article.Catalysts)
	if err != nil {
		return err
	}
	q := s.sb.Insert("article_analyses").
		Columns("session_id", "url", "ticker", "sentiment", "confidence", "catalysts", "reasoning").
		Values(sessionID, article.URL, article.Ticker, article.Sentiment, article.Confidence, catalysts, article.Reasoning).
		Suffix(`ON CONFLICT (session_id, url) DO UPDATE
			SET ticker = excluded.ticker, sentiment = excluded.sentiment,
				confidence = excluded.confidence, catalysts = excluded.catalysts,
				reasoning = excluded.reasoning`)
	if _, err := q.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

func (s *SQLStore) PersistPosition(ctx context.Context, sessionID string, position domain.Position) error {
	articles, err := encode(position.Articles)
	if err != nil {
		return err
	}
	q := s.sb.Insert("positions").
		Columns("session_id", "ticker", "tier", "confidence", "sentiment", "articles", "reasoning").
		Values(sessionID, position.Ticker, string(position.Tier), position.Confidence, position.Sentiment, articles, position.Reasoning).
		Suffix(`ON CONFLICT (session_id, ticker) DO UPDATE
			SET tier = excluded.tier, confidence = excluded.confidence,
				sentiment = excluded.sentiment, articles = excluded.articles,
				reasoning = excluded.reasoning`)
	if _, err := q.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (s *SQLStore) PersistLogEntry(ctx context.Context, entry domain.LogEntry) error {
	detail, err := encode(entry.Detail)
	if err != nil {
		return err
	}
	q := s.sb.Insert("activity_log").
		Columns("session_id", "sequence", "stage", "level", "action", "message", "detail", "logged_at").
		Values(entry.SessionID, int64(entry.Sequence), string(entry.Stage), string(entry.Level),
			entry.Action, entry.Message, detail, entry.At.UTC()).
		Suffix("ON CONFLICT (session_id, sequence) DO NOTHING")
	if _, err := q.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

func (s *SQLStore) PersistMarketSummary(ctx context.Context, summary domain.MarketSummary) error {
	bullets, err := encode(summary.Bullets)
	if err != nil {
		return err
	}
	q := s.sb.Insert("market_summaries").
		Columns("session_id", "paragraph", "bullets", "position_count", "article_count", "model_used", "created_at").
		Values(summary.SessionID, summary.Paragraph, bullets, summary.PositionCount, summary.ArticleCount,
			summary.ModelUsed, summary.CreatedAt.UTC()).
		Suffix(`ON CONFLICT (session_id) DO UPDATE
			SET paragraph = excluded.paragraph, bullets = excluded.bullets,
				position_count = excluded.position_count, article_count = excluded.article_count,
				model_used = excluded.model_used`)
	if _, err := q.RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert market summary: %w", err)
	}
	return nil
}

// SessionPositions reads back the stored positions of a session ordered by ticker.
func (s *SQLStore) SessionPositions(ctx context.Context, sessionID string) ([]domain.Position, error) {
	q := s.sb.Select("ticker", "tier", "confidence", "sentiment", "articles", "reasoning").
		From("positions").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("ticker")

	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var result []domain.Position
	for rows.Next() {
		var (
			p        domain.Position
			tier     string
			articles string
		)
		if err := rows.Scan(&p.Ticker, &tier, &p.Confidence, &p.Sentiment, &articles, &p.Reasoning); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		p.Tier = domain.Tier(tier)
		if err := json.Unmarshal([]byte(articles), &p.Articles); err != nil {
			return nil, fmt.Errorf("decode position articles: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// CountRows reports how many rows a table holds for one session.
func (s *SQLStore) CountRows(ctx context.Context, table, sessionID string) (int, error) {
	switch table {
	case "scanned_articles", "article_analyses", "positions", "activity_log", "market_summaries":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int
	err := s.sb.Select("COUNT(*)").From(table).Where(sq.Eq{"session_id": sessionID}).
		RunWith(s.db).QueryRowContext(ctx).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func encode(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}
	return string(data), nil
}
