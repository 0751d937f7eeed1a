// Package notifier delivers user-visible notifications to configured channels.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notification struct {
	Title   string
	Message string
	Level   Level
}

type Notifier struct {
	client   *http.Client
	channels []Channel
	now      func() time.Time
}

type Option func(*Notifier)

func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// New validates every channel up front so a bad config fails at startup.
func New(channels []Channel, opts ...Option) (*Notifier, error) {
	n := &Notifier{
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	for i := range channels {
		ch := channels[i]
		if err := ch.Validate(); err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		n.channels = append(n.channels, ch)
	}
	return n, nil
}

func (n *Notifier) Channels() int {
	return len(n.channels)
}

// Notify sends to all channels in parallel and returns every failure joined.
func (n *Notifier) Notify(ctx context.Context, note Notification) error {
	if len(n.channels) == 0 {
		return nil
	}
	if note.Level == "" {
		note.Level = LevelInfo
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	for _, ch := range n.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			var err error
			switch ch.Type {
			case ChannelDiscord:
				err = n.sendDiscord(ctx, ch, note)
			case ChannelWebhook:
				err = n.sendWebhook(ctx, ch, note)
			case ChannelNtfy:
				err = n.sendNtfy(ctx, ch, note)
			default:
				err = fmt.Errorf("unknown channel type: %s", ch.Type)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
				mu.Unlock()
			}
		}(ch)
	}

	wg.Wait()
	return errors.Join(errs...)
}

func (n *Notifier) sendDiscord(ctx context.Context, ch Channel, note Notification) error {
	color := 0x0000FF
	switch note.Level {
	case LevelError:
		color = 0xFF0000
	case LevelWarning:
		color = 0xFFA500
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       note.Title,
				"description": note.Message,
				"color":       color,
				"timestamp":   n.now().UTC().Format(time.RFC3339),
				"footer":      map[string]string{"text": "presencebridge"},
			},
		},
	}
	return n.postJSON(ctx, "POST", ch.URL, nil, payload)
}

func (n *Notifier) sendWebhook(ctx context.Context, ch Channel, note Notification) error {
	payload := map[string]any{
		"event":       "notification",
		"title":       note.Title,
		"message":     note.Message,
		"level":       note.Level,
		"occurred_at": n.now().UTC().Format(time.RFC3339),
	}
	return n.postJSON(ctx, ch.Method, ch.URL, ch.Headers, payload)
}

func (n *Notifier) sendNtfy(ctx context.Context, ch Channel, note Notification) error {
	ntfyURL := strings.TrimRight(ch.Server, "/") + "/" + ch.Topic

	priority := "default"
	switch note.Level {
	case LevelError:
		priority = "urgent"
	case LevelWarning:
		priority = "high"
	case LevelInfo:
		priority = "low"
	}

	req, err := http.NewRequestWithContext(ctx, "POST", ntfyURL, strings.NewReader(note.Message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Title", note.Title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", string(note.Level))
	if ch.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ch.Token)
	}
	return n.do(req, "ntfy")
}

func (n *Notifier) postJSON(ctx context.Context, method, url string, headers map[string]string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return n.do(req, "server")
}

func (n *Notifier) do(req *http.Request, what string) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d", what, resp.StatusCode)
	}
	return nil
}
