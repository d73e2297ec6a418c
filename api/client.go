package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rescp17/bdx/pkg/transfer"
)

// Client reads transfer status from a responder's API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL, such as
// http://192.168.1.20:5540.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListTransfers fetches every transfer the responder tracks.
func (c *Client) ListTransfers(ctx context.Context) (*TransfersResponse, error) {
	var resp TransfersResponse
	if err := c.get(ctx, "/transfers", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTransfer fetches one transfer. An unknown ID wraps
// transfer.ErrTransferNotFound.
func (c *Client) GetTransfer(ctx context.Context, id string) (*transfer.TransferStatus, error) {
	var status transfer.TransferStatus
	if err := c.get(ctx, "/transfers/"+url.PathEscape(id), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", transfer.ErrTransferNotFound, path)
	default:
		return fmt.Errorf("unexpected status from %s: %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
