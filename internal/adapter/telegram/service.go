package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"leverledger/internal/domain"
)

// DefaultAPIURL is the Telegram Bot API endpoint
const DefaultAPIURL = "https://api.telegram.org"

// NotificationService posts operator alerts to a Telegram chat
type NotificationService struct {
	client   *resty.Client
	botToken string
	chatID   string
	enabled  bool
	location *time.Location
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewNotificationService creates a notifier. Without a bot token or chat id
// every send is a no-op. Timestamps are shown in the named time zone,
// falling back to UTC.
func NewNotificationService(apiURL, botToken, chatID, timeZone string) *NotificationService {
	location, err := time.LoadLocation(timeZone)
	if err != nil || timeZone == "" {
		location = time.UTC
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	return &NotificationService{
		client: resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/")).
			SetTimeout(5 * time.Second),
		botToken: botToken,
		chatID:   chatID,
		enabled:  botToken != "" && chatID != "",
		location: location,
	}
}

// Enabled reports whether alerts are actually delivered
func (s *NotificationService) Enabled() bool {
	return s.enabled
}

// SendRequestQueued announces a deposit or withdrawal awaiting review
func (s *NotificationService) SendRequestQueued(ctx context.Context, req domain.Request) error {
	emoji := "📥"
	if req.Kind == domain.KindWithdrawal {
		emoji = "📤"
	}

	message := fmt.Sprintf(
		"%s *NEW %s REQUEST*\n\n"+
			"💵 Amount: `$%s`\n"+
			"👤 User: `%s`\n"+
			"🔖 Reference: `%s`\n"+
			"🕒 Time: `%s`",
		emoji,
		strings.ToUpper(string(req.Kind)),
		req.Amount.StringFixed(domain.MoneyDecimals),
		req.UserID,
		req.Reference,
		req.CreatedAt.In(s.location).Format("2006-01-02 15:04:05"),
	)

	return s.sendMessage(ctx, message)
}

// SendLiquidation reports a position closed at its liquidation price
func (s *NotificationService) SendLiquidation(ctx context.Context, p domain.Position) error {
	closed := p.OpenedAt
	if p.ClosedAt != nil {
		closed = *p.ClosedAt
	}
	closePrice := p.LiquidationPrice
	if p.ClosePrice != nil {
		closePrice = *p.ClosePrice
	}

	message := fmt.Sprintf(
		"💥 *LIQUIDATION*\n\n"+
			"📊 %s *%s* x%d\n"+
			"━━━━━━━━━━━━━━━━━\n"+
			"🔵 Entry: `$%s`\n"+
			"🛑 Close: `$%s`\n"+
			"💰 Margin: `$%s`\n"+
			"👤 User: `%s`\n"+
			"🕒 Time: `%s`",
		strings.ToUpper(p.Direction),
		p.Symbol,
		p.Leverage,
		p.EntryPrice.String(),
		closePrice.String(),
		p.Margin.StringFixed(domain.MoneyDecimals),
		p.UserID,
		closed.In(s.location).Format("2006-01-02 15:04:05"),
	)

	return s.sendMessage(ctx, message)
}

// sendMessage sends a message to Telegram using the Bot API
func (s *NotificationService) sendMessage(ctx context.Context, text string) error {
	if !s.enabled {
		return nil
	}

	var result telegramResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(telegramMessage{
			ChatID:    s.chatID,
			Text:      text,
			ParseMode: "Markdown",
		}).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + s.botToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode(), result.Description)
	}

	return nil
}
