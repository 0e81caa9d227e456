// Package apiclient is the single gateway to the case-file backend. Every
// dashboard feature goes through Request so authentication, error shaping and
// the invalid-credentials redirect behave the same everywhere.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/synaptica-ai/casereview/pkg/common/apperr"
	"github.com/synaptica-ai/casereview/pkg/common/logger"
	"golang.org/x/oauth2"
)

// NoContent is what a 204 answer resolves to.
type NoContent struct{}

// invalidCredentialMessages are the 401 details that mean the stored token
// belongs to a dead session and must be dropped.
var invalidCredentialMessages = []string{
	"could not validate credentials",
	"invalid authentication credentials",
}

type Client struct {
	baseURL              string
	http                 *http.Client
	token                *oauth2.Token
	onInvalidCredentials func(ctx context.Context)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// OnInvalidCredentials registers the hook run before an invalid-credentials
// AuthError is returned. The dashboard clears the session there.
func OnInvalidCredentials(fn func(ctx context.Context)) Option {
	return func(c *Client) { c.onInvalidCredentials = fn }
}

func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("api base url required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("api base url %q must be absolute", baseURL)
	}
	c := &Client{baseURL: baseURL, http: newHTTPClient(timeout)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClient is tuned for a long-lived connection pool to one backend.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (c *Client) BaseURL() string { return c.baseURL }

// WithToken returns a copy of the client that authenticates as token.
func (c *Client) WithToken(token *oauth2.Token) *Client {
	clone := *c
	clone.token = token
	return &clone
}

// HasToken reports whether requests will carry a bearer token.
func (c *Client) HasToken() bool {
	return c.token != nil && c.token.AccessToken != ""
}

// FilePart is one file of a multipart body.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Reader      io.Reader
}

// Multipart bodies are sent with the writer's boundary as content type.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

type RequestOption func(*http.Request)

func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// WithRequestID propagates a correlation id to the backend.
func WithRequestID(id string) RequestOption {
	return func(r *http.Request) {
		if id != "" {
			r.Header.Set("X-Request-ID", id)
		}
	}
}

// Request performs one call and decodes a JSON answer into T.
func Request[T any](ctx context.Context, c *Client, method, path string, body interface{}, opts ...RequestOption) (T, error) {
	var out T
	resp, err := c.Do(ctx, method, path, body, opts...)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}
	if _, ok := interface{}(&out).(*NoContent); ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return out, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		return out, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return out, nil
}

// Do sends the request and returns the response on 2xx. The caller closes the
// body. Non-2xx answers are converted to apperr types.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*http.Response, error) {
	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, apperr.NewValidationError("body", "encoding request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		if closer, ok := reader.(io.Closer); ok {
			closer.Close()
		}
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	if contentType != "" {
		_, isMultipart := body.(*Multipart)
		if isMultipart || req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}
	}
	if c.HasToken() {
		c.token.SetAuthHeader(req)
	}

	op := method + " " + path
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &apperr.NetworkError{Op: op, Err: ctxErr}
		}
		return nil, &apperr.NetworkError{Op: op, Err: err}
	}

	logger.Log.WithFields(map[string]interface{}{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Milliseconds(),
	}).Debug("Backend request")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return nil, c.errorFor(ctx, resp.StatusCode, raw)
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func (c *Client) errorFor(ctx context.Context, status int, raw []byte) error {
	msg := ExtractErrorMessage(raw, status)
	switch status {
	case http.StatusUnauthorized:
		authErr := &apperr.AuthError{Message: msg}
		if isInvalidCredentials(msg) {
			if c.onInvalidCredentials != nil {
				c.onInvalidCredentials(ctx)
			}
			authErr.Redirect = "/login"
		}
		return authErr
	case http.StatusNotFound:
		return &apperr.NotFoundError{Message: msg}
	}
	return &apperr.APIError{StatusCode: status, Message: msg}
}

func isInvalidCredentials(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range invalidCredentialMessages {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// ExtractErrorMessage reads a structured error body, then raw text, then the
// status text.
func ExtractErrorMessage(raw []byte, status int) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var body map[string]interface{}
		if json.Unmarshal(trimmed, &body) == nil {
			if msg := messageFrom(body["detail"]); msg != "" {
				return msg
			}
			for _, key := range []string{"message", "error", "error_description"} {
				if msg := messageFrom(body[key]); msg != "" {
					return msg
				}
			}
		}
	}
	if len(trimmed) > 0 {
		text := string(trimmed)
		if len(text) > 500 {
			text = text[:500]
		}
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with status %d", status)
}

func messageFrom(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		var parts []string
		for _, item := range t {
			if msg := messageFrom(item); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]interface{}:
		for _, key := range []string{"msg", "message", "detail"} {
			if msg := messageFrom(t[key]); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func encodeBody(body interface{}) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		return encodeMultipart(b)
	case io.Reader:
		return b, "", nil
	case []byte:
		return bytes.NewReader(b), "application/json", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// encodeMultipart streams the parts through a pipe so large PDFs are never
// buffered whole.
func encodeMultipart(m *Multipart) (io.Reader, string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		for key, value := range m.Fields {
			if err := mw.WriteField(key, value); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		for _, f := range m.Files {
			field := f.Field
			if field == "" {
				field = "file"
			}
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Filename))
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			header.Set("Content-Type", ct)
			part, err := mw.CreatePart(header)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := io.Copy(part, f.Reader); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(mw.Close())
	}()

	return pr, mw.FormDataContentType(), nil
}
