// Package agent talks to the conversational agent that drafts auto replies.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/wasender/pkg/config"
)

const webhookPath = "/webhooks/rest/webhook"

// Reply is one text answer. Replies keep the order the agent returned.
type Reply struct {
	RecipientID string `json:"recipient_id"`
	Text        string `json:"text"`
}

type Client interface {
	Respond(ctx context.Context, message, sender string, metadata map[string]string) ([]Reply, error)
}

type request struct {
	Sender   string            `json:"sender"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type rasaClient struct {
	url  string
	http *http.Client
	log  zerolog.Logger
}

// NewRasaClient returns a client for a Rasa REST channel rooted at cfg.URL.
func NewRasaClient(cfg config.Agent, log zerolog.Logger) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &rasaClient{
		url:  strings.TrimRight(cfg.URL, "/"),
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

func (c *rasaClient) Respond(ctx context.Context, message, sender string, metadata map[string]string) ([]Reply, error) {
	body, err := json.Marshal(request{Sender: sender, Message: message, Metadata: metadata})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+webhookPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug().Str("sender", sender).Msg("sending message to agent")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var replies []Reply
	if err := json.NewDecoder(resp.Body).Decode(&replies); err != nil {
		return nil, fmt.Errorf("failed to decode agent response: %w", err)
	}

	out := replies[:0]
	for _, r := range replies {
		if strings.TrimSpace(r.Text) != "" {
			out = append(out, r)
		}
	}
	return out, nil
}
