package telegram

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

// telegram rejects messages longer than this many characters
const maxMessageRunes = 4096

// Notifier sends completed-session digests to a Telegram chat via bot API.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier authenticates the bot. An empty endpoint means the public Bot API.
func NewNotifier(botToken, chatID, endpoint string, client *http.Client) (*Notifier, error) {
	if botToken == "" || chatID == "" {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse chat id: %w", err)
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	api, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connect bot: %w", err)
	}
	return &Notifier{api: api, chatID: id}, nil
}

// PublishSession posts an HTML digest of the session to the chat.
func (n *Notifier) PublishSession(ctx context.Context, summary domain.MarketSummary, positions []domain.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, FormatDigest(summary, positions))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	return nil
}

// FormatDigest renders the summary and positions as Telegram HTML.
func FormatDigest(summary domain.MarketSummary, positions []domain.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Market scan %s</b>\n", html.EscapeString(shortID(summary.SessionID)))
	if summary.Paragraph != "" {
		b.WriteString(html.EscapeString(summary.Paragraph))
		b.WriteString("\n")
	}
	if len(positions) == 0 {
		b.WriteString("\nNo positions met the confidence threshold.")
	} else {
		b.WriteString("\n")
		for _, p := range positions {
			fmt.Fprintf(&b, "%s <b>%s</b> %s (confidence %.0f%%, sentiment %+.2f)\n",
				tierMarker(p.Tier), html.EscapeString(p.Ticker), p.Tier, p.Confidence*100, p.Sentiment)
		}
	}
	fmt.Fprintf(&b, "\n%d articles analysed", summary.ArticleCount)
	return truncate(b.String(), maxMessageRunes)
}

func tierMarker(t domain.Tier) string {
	switch t {
	case domain.TierStrongBuy:
		return "⬆⬆"
	case domain.TierBuy:
		return "⬆"
	case domain.TierShort:
		return "⬇"
	case domain.TierStrongShort:
		return "⬇⬇"
	default:
		return "•"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
