package parser

import (
	"net/http"
	"strconv"
)

// Settings configure one connector instance.
type Settings struct {
	Name         string
	URL          string
	APIKey       string
	Options      map[string]string
	UserAgent    string
	MaxBodyChars int
	Client       *http.Client
}

func (s Settings) option(key, fallback string) string {
	if v, ok := s.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (s Settings) intOption(key string, fallback int) int {
	raw, ok := s.Options[key]
	if !ok {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func (s Settings) reader() articleReader {
	return newArticleReader(s.Client, s.UserAgent, s.MaxBodyChars)
}
