package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	maxErrorBody   = 512
	defaultMaxBody = 1 << 20
)

// ErrBodyTooLarge is returned when a 2xx body exceeds the client's limit.
var ErrBodyTooLarge = errors.New("response body too large")

// RequestOptions holds HTTP request parameters.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string][]string
	Body        interface{}
}

// StatusError is returned by SendAndParse for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ClientOption configures Client.
type ClientOption func(*Client)

// Client is an outbound HTTP client with a fixed timeout.
type Client struct {
	timeout   time.Duration
	maxBody   int64
	transport http.RoundTripper
	client    *http.Client
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{timeout: 30 * time.Second, maxBody: defaultMaxBody}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout, Transport: c.transport}
	return c
}

func (c *Client) SendRequest(ctx context.Context, opts *RequestOptions) (*http.Response, error) {
	req, err := c.buildRequest(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// SendAndParse sends the request and decodes a 2xx body into dest.
// dest may be *[]byte for the raw body, an io.Writer, or anything encoding/json accepts.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest interface{}) error {
	resp, err := c.SendRequest(ctx, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	if dest == nil {
		return nil
	}

	// one byte past the limit tells an exact fit from an overflow
	body := io.LimitReader(resp.Body, c.maxBody+1)
	switch v := dest.(type) {
	case *[]byte:
		b, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if int64(len(b)) > c.maxBody {
			return ErrBodyTooLarge
		}
		*v = b
	case io.Writer:
		n, err := io.Copy(v, body)
		if err != nil {
			return fmt.Errorf("copy body: %w", err)
		}
		if n > c.maxBody {
			return ErrBodyTooLarge
		}
	default:
		if err := json.NewDecoder(io.LimitReader(resp.Body, c.maxBody)).Decode(dest); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	}
	return nil
}

func (c *Client) buildRequest(ctx context.Context, opts *RequestOptions) (*http.Request, error) {
	var body io.Reader
	switch v := opts.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(v)
	case io.Reader:
		body = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		body = bytes.NewReader(b)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, opts.URL, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	if len(opts.QueryParams) > 0 {
		q := req.URL.Query()
		for key, values := range opts.QueryParams {
			for _, value := range values {
				q.Add(key, value)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithTransport overrides the round tripper (tests, proxies).
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport = rt
	}
}
