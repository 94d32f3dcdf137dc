package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Embed colors for the different event kinds.
const (
	ColorCreated = 0x00ff00
	ColorUpdated = 0x0099ff
	ColorDeleted = 0xff0000
	ColorReport  = 0xffa500
)

// BotName is the sender name shown in the chat channel.
const BotName = "Bubbly"

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
}

type Message struct {
	Content  string  `json:"content,omitempty"`
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// Notifier delivers event summaries to an external chat channel.
// Delivery is best-effort: callers ignore the returned error and the
// implementation is responsible for logging failures.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Nop discards every message. Used when no webhook URL is configured
// and in tests.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }

// Webhook posts messages as JSON to a Discord-compatible webhook URL.
type Webhook struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

func NewWebhook(url string, log *logrus.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	err := w.send(ctx, msg)
	if err != nil && w.log != nil {
		w.log.WithError(err).Warn("webhook delivery failed")
	}
	return err
}

func (w *Webhook) send(ctx context.Context, msg Message) error {
	if w.url == "" {
		return errors.New("webhook url not configured")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, text)
	}
	return nil
}

// Timestamp formats t the way the chat API expects.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
