package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Condition names a fee condition worth notifying about.
type Condition string

const (
	ConditionVolatile Condition = "volatile"
	ConditionHighTier Condition = "high_tier"
)

// Notification carries the alert context.
type Notification struct {
	Condition     Condition
	AsOf          time.Time
	MovingAverage decimal.Decimal
	Spread        decimal.Decimal
	LatestP50     decimal.Decimal
	Trend         string
	Tier          string
	AdditionalMsg string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with a rendered text body.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("as_of", note.AsOf).
		Str("condition", string(note.Condition)).
		Msg("alert sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Stellar Fee Alert]\n")
	builder.WriteString(fmt.Sprintf("Condition: %s\n", note.Condition))
	builder.WriteString(fmt.Sprintf("As of: %s UTC\n", note.AsOf.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Moving avg: %s stroops\n", note.MovingAverage.StringFixed(1)))
	builder.WriteString(fmt.Sprintf("Latest p50: %s stroops\n", note.LatestP50.String()))
	builder.WriteString(fmt.Sprintf("Spread: %s stroops\n", note.Spread.String()))
	builder.WriteString(fmt.Sprintf("Trend: %s, tier: %s\n", note.Trend, note.Tier))
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
