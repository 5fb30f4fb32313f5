package storage

import (
	"context"
	"fmt"
	"strings"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// schema uses %[1]s for the timestamp column type, which differs per driver.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS scanned_articles (
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		source TEXT NOT NULL,
		ticker TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		fetched_at %[1]s NOT NULL,
		PRIMARY KEY (session_id, url)
	)`,
	`CREATE TABLE IF NOT EXISTS article_analyses (
		session_id TEXT NOT NULL,
		url TEXT NOT NULL,
		ticker TEXT NOT NULL DEFAULT '',
		sentiment DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		catalysts TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		PRIMARY KEY (session_id, url)
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		session_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		tier TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		sentiment DOUBLE PRECISION NOT NULL,
		articles TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		PRIMARY KEY (session_id, ticker)
	)`,
	`CREATE TABLE IF NOT EXISTS activity_log (
		session_id TEXT NOT NULL,
		sequence BIGINT NOT NULL,
		stage TEXT NOT NULL,
		level TEXT NOT NULL,
		action TEXT NOT NULL,
		message TEXT NOT NULL,
		detail TEXT NOT NULL,
		logged_at %[1]s NOT NULL,
		PRIMARY KEY (session_id, sequence)
	)`,
	`CREATE TABLE IF NOT EXISTS market_summaries (
		session_id TEXT PRIMARY KEY,
		paragraph TEXT NOT NULL,
		bullets TEXT NOT NULL,
		position_count INTEGER NOT NULL,
		article_count INTEGER NOT NULL,
		model_used TEXT NOT NULL,
		created_at %[1]s NOT NULL
	)`,
}

func timestampType(driver string) string {
	if driver == DriverPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

// Migrate creates the tables when they do not exist yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	ts := timestampType(s.driver)
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(stmt, ts)); err != nil {
			name := strings.Fields(stmt)[5]
			return fmt.Errorf("create table %s: %w", name, err)
		}
	}
	return nil
}
