package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "exforge/pkg/errors"
	"exforge/pkg/utils/response"
)

const userHeader = "X-User-Login"

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Client wraps HTTP requests against the exercise service.
type Client struct {
	baseURL   string
	timeout   time.Duration
	userLogin string
	http      *http.Client
}

func New(baseURL string, timeout time.Duration, userLogin string) *Client {
	return &Client{
		baseURL:   baseURL,
		timeout:   timeout,
		userLogin: userLogin,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Do(ctx context.Context, method, path string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userLogin != "" {
		req.Header.Set(userHeader, c.userLogin)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}

// Call sends in as JSON and decodes the response envelope. A non success
// code is returned as a coded error carrying the server message.
func (c *Client) Call(ctx context.Context, method, path string, in interface{}) (*response.Response, error) {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request failed: %w", err)
		}
		body = data
	}
	info, err := c.Do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	var resp response.Response
	if err := json.Unmarshal(info.Body, &resp); err != nil {
		return nil, fmt.Errorf("decode response (status %d) failed: %w", info.StatusCode, err)
	}
	if resp.Code != pkgerrors.Success {
		return &resp, pkgerrors.New(resp.Code).WithMessage(resp.Message)
	}
	return &resp, nil
}
