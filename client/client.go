// client/client.go
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"precursor/internal/api"
	"precursor/internal/archive"
	"precursor/internal/bridge"
	"precursor/internal/change"
	"precursor/internal/diff"
	"precursor/internal/errors"
	"precursor/internal/snapshot"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient has no timeout; the stream lives as long as its context.
	streamClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		streamClient: &http.Client{},
	}
}

// do sends a request and decodes a JSON response into out when it is non-nil
func (c *Client) do(ctx context.Context, method, path string, body, out any, want int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError turns an error response back into an *errors.Error when the
// server sent one
func decodeError(resp *http.Response) error {
	var apiErr errors.Error
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		return &apiErr
	}
	return fmt.Errorf("unexpected status: %s", resp.Status)
}

// FilesPayload returns the raw hydration payload
func (c *Client) FilesPayload(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/files", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) Files(ctx context.Context) ([]bridge.Entry, error) {
	payload, err := c.FilesPayload(ctx)
	if err != nil {
		return nil, err
	}
	return bridge.DecodeEntries(payload)
}

func (c *Client) Diff(ctx context.Context, path string, mode diff.Mode) (*api.DiffResponse, error) {
	q := url.Values{}
	q.Set("path", path)
	q.Set("mode", string(mode))

	var resp api.DiffResponse
	if err := c.do(ctx, http.MethodGet, "/api/files/diff?"+q.Encode(), nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) PostEvent(ctx context.Context, ev change.Event) (*api.EventResponse, error) {
	var resp api.EventResponse
	if err := c.do(ctx, http.MethodPost, "/api/events", ev, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Command(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/api/commands", bridge.Command{Command: name}, nil, http.StatusNoContent)
}

func (c *Client) Login(ctx context.Context) error {
	return c.Command(ctx, bridge.CommandLogin)
}

func (c *Client) Scan(ctx context.Context) (change.ScanResult, error) {
	var res change.ScanResult
	err := c.do(ctx, http.MethodPost, "/api/scan", nil, &res, http.StatusOK)
	return res, err
}

func (c *Client) Flush(ctx context.Context) (int, error) {
	var resp api.FlushResponse
	if err := c.do(ctx, http.MethodPost, "/api/flush", nil, &resp, http.StatusOK); err != nil {
		return 0, err
	}
	return resp.Flushed, nil
}

func (c *Client) Reset(ctx context.Context) (*api.ResetResponse, error) {
	var resp api.ResetResponse
	if err := c.do(ctx, http.MethodPost, "/api/reset", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Archive(ctx context.Context) ([]archive.Entry, error) {
	var entries []archive.Entry
	if err := c.do(ctx, http.MethodGet, "/api/archive", nil, &entries, http.StatusOK); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) Restore(ctx context.Context, id string) (*snapshot.Record, error) {
	var rec snapshot.Record
	if err := c.do(ctx, http.MethodGet, "/api/archive/"+url.PathEscape(id), nil, &rec, http.StatusOK); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) DeleteArchived(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/archive/"+url.PathEscape(id), nil, nil, http.StatusNoContent)
}

// Stream subscribes to the message stream and calls fn for each message in
// order until ctx is done, the server closes the stream, or fn fails. The
// first message is a bridge.FileList with every tracked file. Lines that
// cannot be decoded are skipped.
func (c *Client) Stream(ctx context.Context, fn func(bridge.Message) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stream", nil)
	if err != nil {
		return err
	}
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		msg, err := bridge.Decode(scanner.Bytes())
		if err != nil {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return scanner.Err()
}
