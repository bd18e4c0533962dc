// internal/delivery/telegram/app/http_client/polling.go
package http_client

import (
	"context"
	"net/http"
	"time"

	"signal-desk-bot/internal/delivery/telegram"
)

// PollingClient is the long-poll client; its timeout exceeds the getUpdates wait.
type PollingClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewPollingClient creates a client for getUpdates
func NewPollingClient(apiBase, token string, pollTimeout int) *PollingClient {
	return &PollingClient{
		httpClient: &http.Client{
			Timeout: time.Duration(pollTimeout+5) * time.Second,
		},
		baseURL: BaseURL(apiBase, token),
	}
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates returns updates from offset on, waiting up to timeout seconds.
func (c *PollingClient) GetUpdates(ctx context.Context, offset int64, timeout int, allowed []string) ([]telegram.Update, error) {
	var updates []telegram.Update
	err := call(ctx, c.httpClient, c.baseURL, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        timeout,
		AllowedUpdates: allowed,
	}, &updates)
	return updates, err
}
