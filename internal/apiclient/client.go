// Package apiclient is the HTTP implementation of the session's AttemptAPI,
// matching the routes mounted by internal/api/http.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/huynhthien07/lingo/internal/exam"
	"github.com/huynhthien07/lingo/internal/session"
)

// errConflict marks any 409 from the server.
var errConflict = errors.New("conflict")

type Client struct {
	base  string
	token string
	http  *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient swaps the underlying client (tests, custom transports).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// New builds a client against baseURL; token is the bearer JWT from login.
func New(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		base:  strings.TrimSuffix(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ session.AttemptAPI = (*Client)(nil)

func (c *Client) FetchTest(ctx context.Context, testID string) (exam.Test, error) {
	var t exam.Test
	err := c.do(ctx, http.MethodGet, "/tests/"+testID, nil, &t)
	return t, err
}

func (c *Client) Start(ctx context.Context, testID string) (exam.Attempt, error) {
	var a exam.Attempt
	err := c.do(ctx, http.MethodPost, "/tests/"+testID+"/start", struct{}{}, &a)
	return a, err
}

func (c *Client) SaveAnswer(ctx context.Context, attemptID string, ans exam.Answer) error {
	err := c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/answer", ans, nil)
	if errors.Is(err, errConflict) {
		// the server discarded a stale write; local state is newer
		return session.ErrStaleSave
	}
	return err
}

func (c *Client) Complete(ctx context.Context, attemptID string) (exam.Attempt, error) {
	var a exam.Attempt
	err := c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/complete", struct{}{}, &a)
	return a, err
}

func (c *Client) Abandon(ctx context.Context, attemptID string) error {
	return c.do(ctx, http.MethodPost, "/attempts/"+attemptID+"/abandon", struct{}{}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("%w: %v", errConflict, err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
