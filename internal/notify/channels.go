package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
)

func (c *Client) postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) sendFeishu(ctx context.Context, webhook, text string) error {
	return c.postJSON(ctx, webhook, map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	})
}

func (c *Client) sendDingTalk(ctx context.Context, webhook, text string) error {
	return c.postJSON(ctx, webhook, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": text},
	})
}

func (c *Client) sendWeCom(ctx context.Context, webhook, text, msgtype string) error {
	if msgtype == "markdown" {
		return c.postJSON(ctx, webhook, map[string]any{
			"msgtype":  "markdown",
			"markdown": map[string]string{"content": text},
		})
	}
	return c.postJSON(ctx, webhook, map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": text},
	})
}

func (c *Client) sendTelegram(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.telegramAPI, c.cfg.Telegram.BotToken)
	return c.postJSON(ctx, url, map[string]any{
		"chat_id":                  c.cfg.Telegram.ChatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

// sendEmail delivers the digest over SMTP. Port 465 uses implicit TLS, other
// ports STARTTLS when the server offers it.
func (c *Client) sendEmail(subject, body string) error {
	cfg := c.cfg.Email
	server := cfg.SMTPServer
	if server == "" {
		server = "smtp.qq.com"
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 465
	}
	var recipients []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}
	if cfg.From == "" || cfg.Password == "" || len(recipients) == 0 {
		return fmt.Errorf("email channel not fully configured")
	}

	msg := strings.Join([]string{
		"From: " + cfg.From,
		"To: " + strings.Join(recipients, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", server, port)
	auth := smtp.PlainAuth("", cfg.From, cfg.Password, server)

	if port != 465 {
		return smtp.SendMail(addr, auth, cfg.From, recipients, []byte(msg))
	}

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: server})
	if err != nil {
		return fmt.Errorf("smtp tls dial: %w", err)
	}
	client, err := smtp.NewClient(conn, server)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(cfg.From); err != nil {
		return err
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
