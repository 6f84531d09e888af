// Package bridge carries gateway commands and push events over HTTP, for
// deployments where the worker system runs out of process. Commands are
// POSTed as JSON; events stream back over SSE and are republished on the
// local bus, so the rest of the engine cannot tell the two modes apart.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/stash/internal/domain"
	"github.com/mmcdole/stash/internal/gateway"
)

// Client is the HTTP gateway.Invoker.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the bridge at baseURL (nil httpClient uses
// a 30-second-timeout default).
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) Invoke(ctx context.Context, command string, params any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params for %s: %w", command, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/commands/"+command, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failure, not a backend-reported error; callers
		// distinguish the two with errors.Is.
		return fmt.Errorf("%w: command %s: %v", domain.ErrBackendUnavailable, command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var gwErr gateway.Error
		if err := json.NewDecoder(resp.Body).Decode(&gwErr); err != nil || gwErr.Code == "" {
			return &gateway.Error{
				Command: command,
				Code:    gateway.CodeInternal,
				Message: fmt.Sprintf("unexpected status %d", resp.StatusCode),
			}
		}
		if gwErr.Command == "" {
			gwErr.Command = command
		}
		return &gwErr
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", command, err)
	}
	return nil
}
