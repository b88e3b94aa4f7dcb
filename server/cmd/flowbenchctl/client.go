package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// client is a thin JSON client for the /api/v1 endpoints.
type client struct {
	baseURL   string
	apiKey    string
	keyHeader string
	principal string
	http      *http.Client
}

func newClient(baseURL, apiKey, keyHeader, principal string, timeout time.Duration) *client {
	return &client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		keyHeader: keyHeader,
		principal: principal,
		http:      &http.Client{Timeout: timeout},
	}
}

// do sends body (if non-nil) as JSON and returns the raw response body.
// Non-2xx responses become errors carrying the server's error message.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}
	if c.principal != "" {
		req.Header.Set("X-Principal-ID", c.principal)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return raw, nil
}
