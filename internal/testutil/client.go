// Package testutil drives handlers in tests without starting a server.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dalemusser/contactrelay/httputil"
)

// Client sends requests to a handler and carries cookies between them, the
// way a browser keeps its session cookie.
type Client struct {
	t          *testing.T
	handler    http.Handler
	cookies    map[string]*http.Cookie
	RemoteAddr string
}

// NewClient returns a client for h.
func NewClient(t *testing.T, h http.Handler) *Client {
	return &Client{t: t, handler: h, cookies: make(map[string]*http.Cookie), RemoteAddr: "192.0.2.10:51000"}
}

// PostForm posts url-encoded values.
func (c *Client) PostForm(path string, values url.Values) *Response {
	c.t.Helper()
	return c.Do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
}

// Do sends one request. contentType may be empty.
func (c *Client) Do(method, path, contentType string, body io.Reader) *Response {
	c.t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = c.RemoteAddr
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("read response body: %v", err)
	}
	for _, ck := range resp.Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return &Response{Code: resp.StatusCode, Header: resp.Header, Body: raw, t: c.t}
}

// Forget drops all cookies, starting a new browser session.
func (c *Client) Forget() { c.cookies = make(map[string]*http.Cookie) }

// Cookie returns the stored cookie value, or "".
func (c *Client) Cookie(name string) string {
	if ck, ok := c.cookies[name]; ok {
		return ck.Value
	}
	return ""
}

// Response is a fully read handler response.
type Response struct {
	Code   int
	Header http.Header
	Body   []byte
	t      *testing.T
}

// Envelope decodes the {"status","message"} body, failing the test when
// the body is not exactly one JSON envelope.
func (r *Response) Envelope() httputil.Status {
	r.t.Helper()
	var st httputil.Status
	dec := json.NewDecoder(strings.NewReader(string(r.Body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&st); err != nil {
		r.t.Fatalf("response is not a status envelope: %v\nBody: %s", err, r.Body)
	}
	if dec.More() {
		r.t.Fatalf("response has trailing data after the envelope\nBody: %s", r.Body)
	}
	return st
}
