// Package seerr talks to the issue API of a Jellyseerr/Overseerr instance.
package seerr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ClientOptions struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client issues the two remote calls the bridge needs: commenting on an
// issue and marking it resolved. Both are synchronous and are not retried
// here; the caller decides whether a failed command is re-issued.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
	}
}

func (c *Client) PostComment(ctx context.Context, issueID int64, text string) error {
	payload := map[string]string{"message": text}
	return c.post(ctx, fmt.Sprintf("/api/v1/issue/%d/comment", issueID), payload)
}

func (c *Client) MarkResolved(ctx context.Context, issueID int64) error {
	return c.post(ctx, fmt.Sprintf("/api/v1/issue/%d/resolved", issueID), nil)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("seerr client is not configured")
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	message := strings.TrimSpace(string(respBody))
	if readErr != nil {
		message = readErr.Error()
	}
	return fmt.Errorf("seerr request failed: path=%s status=%d message=%s", path, resp.StatusCode, message)
}
