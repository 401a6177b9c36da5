package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TelegramNotifier sends alerts through the Telegram Bot API.
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL:  "https://api.telegram.org",
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

var levelMark = map[Level]string{
	LevelInfo:     "ℹ️",
	LevelWarning:  "⚠️",
	LevelCritical: "🚨",
}

// format renders a as MarkdownV2.
func format(a Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*", levelMark[a.Level], escapeMarkdown(a.Title))
	if a.Message != "" {
		b.WriteString("\n\n" + escapeMarkdown(a.Message))
	}
	if len(a.Fields) > 0 {
		b.WriteString("\n")
		for _, line := range sortedFields(a.Fields) {
			b.WriteString("\n" + escapeMarkdown(line))
		}
	}
	return b.String()
}

func (t *TelegramNotifier) Send(ctx context.Context, a Alert) error {
	body, _ := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       format(a),
		"parse_mode": "MarkdownV2",
	})
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
	}
	return nil
}

const markdownSpecials = "_*[]()~`>#+-=|{}.!\\"

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
