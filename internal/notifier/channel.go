package notifier

import (
	"errors"
	"fmt"
	"net/url"
)

type ChannelType string

const (
	ChannelWebhook ChannelType = "webhook"
	ChannelNtfy    ChannelType = "ntfy"
	ChannelDiscord ChannelType = "discord"
)

const defaultNtfyServer = "https://ntfy.sh"

// Channel is one notification destination. Which fields are read depends on
// Type: URL for webhook and discord, Server/Topic/Token for ntfy.
type Channel struct {
	Name    string            `mapstructure:"name"`
	Type    ChannelType       `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
	Server  string            `mapstructure:"server"`
	Topic   string            `mapstructure:"topic"`
	Token   string            `mapstructure:"token"`
}

// Validate checks the channel and fills defaults for method and ntfy server.
func (c *Channel) Validate() error {
	switch c.Type {
	case ChannelWebhook, ChannelDiscord:
		if c.URL == "" {
			return errors.New("url is required")
		}
		if err := httpURL(c.URL); err != nil {
			return err
		}
		if c.Method == "" {
			c.Method = "POST"
		}
	case ChannelNtfy:
		if c.Server == "" {
			c.Server = defaultNtfyServer
		}
		if err := httpURL(c.Server); err != nil {
			return err
		}
		if c.Topic == "" {
			return errors.New("topic is required")
		}
	default:
		return fmt.Errorf("unknown channel type %q", c.Type)
	}
	return nil
}

func httpURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid url format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must use http or https scheme")
	}
	return nil
}
