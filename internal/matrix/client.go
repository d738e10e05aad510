// Package matrix is a minimal Matrix client-server API client covering what
// the bridge needs: password login, joining one room, sending messages,
// threaded replies and reactions, redaction, and a long-poll sync loop.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultDeviceDisplayName = "michel-bot"
	syncLongPollTimeout      = 30 * time.Second
)

type ClientOptions struct {
	HomeserverURL     string
	HTTPClient        *http.Client
	DeviceDisplayName string
	Logger            *slog.Logger
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	deviceName string
	log        *slog.Logger

	accessToken string
	userID      string
	txnCounter  atomic.Int64
}

func NewClient(opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// No overall timeout: sync long-polls are expected to hang.
		httpClient = &http.Client{}
	}
	deviceName := strings.TrimSpace(opts.DeviceDisplayName)
	if deviceName == "" {
		deviceName = defaultDeviceDisplayName
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.HomeserverURL), "/"),
		httpClient: httpClient,
		deviceName: deviceName,
		log:        logger,
	}
}

// apiError is the standard Matrix error body.
type apiError struct {
	Status  int
	Errcode string `json:"errcode"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("matrix request failed: status=%d errcode=%s message=%s", e.Status, e.Errcode, e.Message)
}

// Login authenticates with m.login.password and stores the access token for
// all later calls.
func (c *Client) Login(ctx context.Context, userID, password string) error {
	body := map[string]any{
		"type": "m.login.password",
		"identifier": map[string]any{
			"type": "m.id.user",
			"user": userID,
		},
		"password":                    password,
		"initial_device_display_name": c.deviceName,
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/_matrix/client/v3/login", nil, body, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("login: empty access token")
	}
	c.accessToken = resp.AccessToken
	c.userID = resp.UserID
	c.log.Info("logged in to matrix", "user_id", resp.UserID)
	return nil
}

func (c *Client) UserID() string {
	return c.userID
}

// JoinRoom joins a room by id or alias and returns the resolved room id.
func (c *Client) JoinRoom(ctx context.Context, roomIDOrAlias string) (string, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomIDOrAlias)
	var resp struct {
		RoomID string `json:"room_id"`
	}
	if err := c.do(ctx, http.MethodPost, path, nil, map[string]any{}, &resp); err != nil {
		return "", fmt.Errorf("join room %s: %w", roomIDOrAlias, err)
	}
	c.log.Info("joined room", "room", roomIDOrAlias, "room_id", resp.RoomID)
	return resp.RoomID, nil
}

func (c *Client) SendHTMLMessage(ctx context.Context, roomID, plainBody, htmlBody string) (string, error) {
	return c.sendEvent(ctx, roomID, "m.room.message", htmlMessageContent(plainBody, htmlBody))
}

func (c *Client) SendThreadReply(ctx context.Context, roomID, threadRootID, plainBody, htmlBody string) (string, error) {
	content := htmlMessageContent(plainBody, htmlBody)
	content["m.relates_to"] = map[string]any{
		"rel_type":        "m.thread",
		"event_id":        threadRootID,
		"is_falling_back": true,
		"m.in_reply_to":   map[string]string{"event_id": threadRootID},
	}
	return c.sendEvent(ctx, roomID, "m.room.message", content)
}

func (c *Client) SendReaction(ctx context.Context, roomID, targetEventID, key string) (string, error) {
	content := map[string]any{
		"m.relates_to": map[string]any{
			"rel_type": "m.annotation",
			"event_id": targetEventID,
			"key":      key,
		},
	}
	return c.sendEvent(ctx, roomID, "m.reaction", content)
}

func (c *Client) RedactEvent(ctx context.Context, roomID, eventID, reason string) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/redact/%s/%s",
		url.PathEscape(roomID), url.PathEscape(eventID), c.nextTxnID())
	body := map[string]any{}
	if reason != "" {
		body["reason"] = reason
	}
	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPut, path, nil, body, &resp); err != nil {
		return fmt.Errorf("redact %s: %w", eventID, err)
	}
	return nil
}

func (c *Client) sendEvent(ctx context.Context, roomID, eventType string, content map[string]any) (string, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID), url.PathEscape(eventType), c.nextTxnID())
	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := c.do(ctx, http.MethodPut, path, nil, content, &resp); err != nil {
		return "", fmt.Errorf("send %s: %w", eventType, err)
	}
	if resp.EventID == "" {
		return "", fmt.Errorf("send %s: no event id in response", eventType)
	}
	return resp.EventID, nil
}

func htmlMessageContent(plainBody, htmlBody string) map[string]any {
	return map[string]any{
		"msgtype":        "m.text",
		"body":           plainBody,
		"format":         "org.matrix.custom.html",
		"formatted_body": htmlBody,
	}
}

// MessageEvent is one m.room.message observed in the synced room.
// ThreadRootID is set when the message is a threaded reply.
type MessageEvent struct {
	EventID      string
	Sender       string
	Body         string
	ThreadRootID string
}

type MessageHandler func(ctx context.Context, msg MessageEvent)

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join map[string]struct {
			Timeline struct {
				Events []timelineEvent `json:"events"`
			} `json:"timeline"`
		} `json:"join"`
	} `json:"rooms"`
}

type timelineEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Sender  string `json:"sender"`
	Content struct {
		MsgType   string `json:"msgtype"`
		Body      string `json:"body"`
		RelatesTo *struct {
			RelType string `json:"rel_type"`
			EventID string `json:"event_id"`
		} `json:"m.relates_to"`
	} `json:"content"`
}

// Sync runs the receive loop until ctx is cancelled, delivering room
// messages (other than the client's own) to handler. The initial sync is
// discarded so old history is not replayed; transient failures back off
// exponentially and the loop resumes from the last seen batch token.
func (c *Client) Sync(ctx context.Context, roomID string, handler MessageHandler) error {
	since, err := c.syncOnce(ctx, "", 0, roomID, nil)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = 0
	for {
		next, err := c.syncOnce(ctx, since, syncLongPollTimeout, roomID, handler)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := retry.NextBackOff()
			c.log.Warn("sync failed, retrying", "err", err, "wait", wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()
		since = next
	}
}

func (c *Client) syncOnce(ctx context.Context, since string, timeout time.Duration, roomID string, handler MessageHandler) (string, error) {
	query := url.Values{}
	query.Set("timeout", fmt.Sprintf("%d", timeout.Milliseconds()))
	if since != "" {
		query.Set("since", since)
	}
	var resp syncResponse
	if err := c.do(ctx, http.MethodGet, "/_matrix/client/v3/sync", query, nil, &resp); err != nil {
		return "", err
	}
	if handler != nil {
		for _, event := range resp.Rooms.Join[roomID].Timeline.Events {
			if event.Type != "m.room.message" || event.Sender == c.userID {
				continue
			}
			msg := MessageEvent{
				EventID: event.EventID,
				Sender:  event.Sender,
				Body:    event.Content.Body,
			}
			if rel := event.Content.RelatesTo; rel != nil && rel.RelType == "m.thread" {
				msg.ThreadRootID = rel.EventID
			}
			handler(ctx, msg)
		}
	}
	return resp.NextBatch, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("matrix client is not configured")
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		matrixErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(respBody, matrixErr) != nil || matrixErr.Message == "" {
			matrixErr.Message = strings.TrimSpace(string(respBody))
		}
		return matrixErr
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

func (c *Client) nextTxnID() string {
	return fmt.Sprintf("michel-%d-%d", time.Now().UnixMilli(), c.txnCounter.Add(1))
}
