package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"smatrader/internal/model"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramNotifier posts alerts to one chat through the Bot API sendMessage
// method. Trade alerts are rendered as a short trade ticket.
type TelegramNotifier struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and chat id.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		apiBase:  defaultTelegramAPI,
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramReply struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	text := formatAlert(alert)
	if alert.Trade != nil {
		text = formatTrade(*alert.Trade)
	}
	body, err := json.Marshal(telegramMessage{ChatID: t.chatID, Text: text, ParseMode: "MarkdownV2"})
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	var reply telegramReply
	decodeErr := json.NewDecoder(resp.Body).Decode(&reply)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && reply.Description != "" {
			return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, reply.Description)
		}
		return fmt.Errorf("telegram: status %d", resp.StatusCode)
	}
	if decodeErr == nil && !reply.OK {
		return fmt.Errorf("telegram: rejected: %s", reply.Description)
	}

	log.Printf("[telegram] sent %q to chat %s", alert.Title, t.chatID)
	return nil
}

// formatTrade renders a trade ticket:
//
//	🟢 *BUY* #3
//	qty 1 @ 21034\.17
//	2026\-05\-01 12:00:00 UTC
func formatTrade(tr model.Trade) string {
	marker := "\U0001f7e2"
	if tr.Type == model.SignalSell {
		marker = "\U0001f534"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* \\#%d\n", marker, escapeMarkdown(string(tr.Type)), tr.Seq)
	fmt.Fprintf(&b, "qty %d @ %s", tr.Quantity, escapeMarkdown(fmt.Sprintf("%.2f", tr.Price)))
	if !tr.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\n%s", escapeMarkdown(tr.Timestamp.UTC().Format("2006-01-02 15:04:05 MST")))
	}
	return b.String()
}

func formatAlert(alert Alert) string {
	marker := "\u2139\ufe0f"
	switch alert.Level {
	case AlertWarning:
		marker = "\u26a0\ufe0f"
	case AlertCritical:
		marker = "\U0001f6a8"
	}
	return fmt.Sprintf("%s *%s*\n\n%s", marker, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message))
}

var markdownEscaper = strings.NewReplacer(
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }
