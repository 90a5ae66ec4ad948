// Package notify delivers processed news digests to the configured channels:
// Feishu, DingTalk and WeCom group webhooks, Telegram chats and SMTP email.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"newshound/internal/ai"
	"newshound/internal/feed"
	"newshound/internal/metrics"
	"newshound/internal/retry"
	"newshound/internal/timeutil"
)

// WebhookConfig is a single group-bot webhook target.
type WebhookConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	MsgType    string `yaml:"msgtype"` // wecom only: text | markdown
}

// TelegramConfig is the `notification.telegram:` section.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// EmailConfig is the `notification.email:` section. To holds a comma
// separated recipient list.
type EmailConfig struct {
	From       string `yaml:"from"`
	Password   string `yaml:"password"`
	To         string `yaml:"to"`
	SMTPServer string `yaml:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port"`
}

// Config is the `notification:` section of config.yaml.
type Config struct {
	Enable          bool           `yaml:"enable"`
	Title           string         `yaml:"title"`
	DisplaySummary  *bool          `yaml:"display_summary"`
	ItemsPerMessage int            `yaml:"items_per_message"`
	RetryAttempts   int            `yaml:"retry_attempts"`
	Feishu          WebhookConfig  `yaml:"feishu"`
	DingTalk        WebhookConfig  `yaml:"dingtalk"`
	WeCom           WebhookConfig  `yaml:"wechat_work"`
	Telegram        TelegramConfig `yaml:"telegram"`
	Email           EmailConfig    `yaml:"email"`
}

func (c *Config) normalize() {
	if c.Title == "" {
		c.Title = "News Digest"
	}
	if c.ItemsPerMessage <= 0 {
		c.ItemsPerMessage = 3
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	// Secrets come from the environment when present.
	if v := os.Getenv("FEISHU_WEBHOOK"); v != "" {
		c.Feishu.WebhookURL = v
	}
	if v := os.Getenv("DINGTALK_WEBHOOK"); v != "" {
		c.DingTalk.WebhookURL = v
	}
	if v := os.Getenv("WEWORK_WEBHOOK"); v != "" {
		c.WeCom.WebhookURL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		c.Email.From = v
	}
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv("EMAIL_TO"); v != "" {
		c.Email.To = v
	}
}

func (c *Config) displaySummary() bool {
	return c.DisplaySummary == nil || *c.DisplaySummary
}

// Client fans a digest out to every configured channel.
type Client struct {
	cfg  Config
	tz   *timeutil.Helper
	http *http.Client

	// telegramAPI is swapped by tests.
	telegramAPI string
}

func NewClient(cfg Config, tz *timeutil.Helper) *Client {
	cfg.normalize()
	return &Client{
		cfg:         cfg,
		tz:          tz,
		http:        &http.Client{Timeout: 15 * time.Second},
		telegramAPI: "https://api.telegram.org",
	}
}

// Send formats the digest once per message style and pushes it to every
// configured channel. The result maps channel name to delivery success;
// a channel succeeds when at least one of its messages went through.
func (c *Client) Send(ctx context.Context, items []*feed.Item, summaries map[string]*ai.Summary) map[string]bool {
	results := map[string]bool{}
	if !c.cfg.Enable || len(items) == 0 {
		return results
	}
	textMessages := c.formatMessages(items, summaries, styleText)

	if c.cfg.Feishu.WebhookURL != "" {
		results["feishu"] = c.sendMessages(ctx, textMessages, func(text string) error {
			return c.sendFeishu(ctx, c.cfg.Feishu.WebhookURL, text)
		})
	}
	if c.cfg.DingTalk.WebhookURL != "" {
		results["dingtalk"] = c.sendMessages(ctx, textMessages, func(text string) error {
			return c.sendDingTalk(ctx, c.cfg.DingTalk.WebhookURL, text)
		})
	}
	if c.cfg.WeCom.WebhookURL != "" {
		style, msgtype := styleText, "text"
		if c.cfg.WeCom.MsgType == "markdown" {
			style, msgtype = styleMarkdown, "markdown"
		}
		messages := textMessages
		if style != styleText {
			messages = c.formatMessages(items, summaries, style)
		}
		results["wechat_work"] = c.sendMessages(ctx, messages, func(text string) error {
			return c.sendWeCom(ctx, c.cfg.WeCom.WebhookURL, text, msgtype)
		})
	}
	if c.cfg.Telegram.BotToken != "" && c.cfg.Telegram.ChatID != "" {
		messages := c.formatMessages(items, summaries, styleTelegram)
		results["telegram"] = c.sendMessages(ctx, messages, func(text string) error {
			return c.sendTelegram(ctx, text)
		})
	}
	if c.cfg.Email.From != "" && c.cfg.Email.To != "" {
		results["email"] = c.sendMessages(ctx, textMessages, func(text string) error {
			return c.sendEmail(c.cfg.Title, text)
		})
	}
	return results
}

// sendMessages delivers a batch sequentially, retrying each message. One
// failed message does not stop the rest of the batch.
func (c *Client) sendMessages(ctx context.Context, messages []string, sender func(string) error) bool {
	success := false
	for i, text := range messages {
		if text == "" {
			continue
		}
		err := retry.WithRetry(ctx, retry.RetryConfig{
			MaxAttempts: c.cfg.RetryAttempts,
			Delay:       2 * time.Second,
			Backoff:     true,
		}, func() error {
			return sender(text)
		})
		if err != nil {
			slog.Warn("notification message failed", "index", i+1, "total", len(messages), "error", err)
			continue
		}
		slog.Info("notification message sent", "index", i+1, "total", len(messages))
		metrics.Global.IncrementNotificationsSent()
		success = true
	}
	return success
}
