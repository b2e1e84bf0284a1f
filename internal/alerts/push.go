package alerts

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PushClient delivers best-effort notifications to an ntfy-compatible push
// transport (topic-based HTTP POST with Title/Priority/Tags headers).
type PushClient struct {
	baseURL string
	topic   string
	http    *http.Client
	log     zerolog.Logger
}

// NewPushClient creates a new PushClient. baseURL == "" disables delivery
// entirely; Send becomes a no-op.
func NewPushClient(baseURL, topic string, log zerolog.Logger) *PushClient {
	return &PushClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("component", "push_client").Logger(),
	}
}

// Send posts message to the configured topic with the given title,
// priority ("max"|"high"|"default"|"low"|"min") and tags. Every failure is
// logged and swallowed — push delivery never blocks the caller.
func (c *PushClient) Send(ctx context.Context, title, message, priority string, tags []string) {
	if c.baseURL == "" {
		return
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(message))
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to build push request")
		return
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("push delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("push transport rejected notification")
	}
}
