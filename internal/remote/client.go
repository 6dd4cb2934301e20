// Package remote is the client for the assistant's record API. The service
// itself is an opaque boundary: the sync orchestrator only needs push
// acknowledgments and a change feed.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/merehq/mere-core/internal/models"
)

var (
	// ErrNetworkUnavailable means no reachable path; callers fail fast
	// instead of retrying inline.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrServiceUnavailable means the service answered but cannot take work.
	ErrServiceUnavailable = errors.New("service unavailable")
)

// ServerError carries a failure message from the remote service. Upload
// failures are record-level: the record stays unsynced and the batch
// continues.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

const (
	connectTimeout = 10 * time.Second
	requestTimeout = 30 * time.Second
	clientTimeout  = 60 * time.Second
)

// ChangeSet is the download pass payload: every record the server changed
// since the given watermark, tombstones included.
type ChangeSet struct {
	Memos  []*models.Memo  `json:"memos"`
	Todos  []*models.Todo  `json:"todos"`
	Events []*models.Event `json:"events"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: clientTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}
}

func (c *Client) PushMemo(ctx context.Context, memo *models.Memo) error {
	return c.push(ctx, "/api/v1/memos", memo)
}

func (c *Client) PushTodo(ctx context.Context, todo *models.Todo) error {
	return c.push(ctx, "/api/v1/todos", todo)
}

func (c *Client) PushEvent(ctx context.Context, event *models.Event) error {
	return c.push(ctx, "/api/v1/events", event)
}

// Pull fetches server-side changes since the given time for the download
// pass. A zero since requests the full set.
func (c *Client) Pull(ctx context.Context, ownerID string, since time.Time) (*ChangeSet, error) {
	endpoint := c.baseURL + "/api/v1/changes?owner_id=" + url.QueryEscape(ownerID)
	if !since.IsZero() {
		endpoint += "&since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var changes ChangeSet
	if err := json.NewDecoder(resp.Body).Decode(&changes); err != nil {
		return nil, fmt.Errorf("failed to decode change set: %w", err)
	}
	return &changes, nil
}

// push uploads one record. The JSON body carries is_deleted, so a pending
// deletion syncs as a tombstone rather than vanishing.
func (c *Client) push(ctx context.Context, path string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &ServerError{Status: resp.StatusCode, Message: string(msg)}
	}
}
