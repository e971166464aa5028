// Package client is a Go API client whose request pipeline mirrors the
// web frontend: it holds a bearer token, silently renews it after every
// successful call, and on an expired-token rejection funnels every
// in-flight request through a single renewal before replaying them in
// the order they were first submitted.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoSession is returned when a request needs a token and none is held.
	ErrNoSession = errors.New("client: no active session")

	// ErrSessionExpired is returned when renewal failed and the session
	// was cleared; the caller must authenticate again.
	ErrSessionExpired = errors.New("client: session expired, authentication required")
)

const codeTokenExpired = "TOKEN_EXPIRED"

type Client struct {
	baseURL string
	http    *http.Client

	mu       sync.Mutex
	token    string
	queue    []*waiter
	renewing bool

	renewGroup singleflight.Group
}

// waiter parks one expired-token request until the shared renewal
// resolves. The drainer signals proceed, then blocks on done so the
// queue replays strictly in original submission order.
type waiter struct {
	proceed chan error
	done    chan struct{}
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login authenticates and installs the session token.
func (c *Client) Login(ctx context.Context, account, password string) error {
	body, err := json.Marshal(map[string]string{"account": account, "password": password})
	if err != nil {
		return errors.Wrap(err, "encoding login request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/users/login", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building login request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending login request")
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("client: login failed with status %d", res.StatusCode)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return errors.Wrap(err, "decoding login response")
	}
	c.SetToken(payload.Token)
	return nil
}

// SetToken installs a bearer token as the active session.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the active session token, empty when logged out.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) clearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

// Do sends an authenticated request. On a TOKEN_EXPIRED rejection the
// request joins the renewal queue: exactly one renewal runs however
// many requests expire together, and the queued requests are replayed
// in the order they first arrived. Any other unauthorized response
// clears the session immediately.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	token := c.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	res, err := c.send(req, token)
	if err != nil {
		return nil, err
	}

	if res.StatusCode == http.StatusUnauthorized {
		code := unauthorizedCode(res)
		if code != codeTokenExpired {
			c.clearSession()
			return res, nil
		}
		res.Body.Close()
		return c.retryAfterRenewal(req)
	}

	c.renewSilently(req.Context())
	return res, nil
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, errors.Wrap(err, "rewinding request body")
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+token)
	res, err := c.http.Do(clone)
	return res, errors.Wrap(err, "sending request")
}

// retryAfterRenewal parks the request on the queue, triggers the shared
// renewal if it is not already running, and replays once its turn comes.
func (c *Client) retryAfterRenewal(req *http.Request) (*http.Response, error) {
	w := &waiter{proceed: make(chan error, 1), done: make(chan struct{})}

	c.mu.Lock()
	c.queue = append(c.queue, w)
	start := !c.renewing
	c.renewing = true
	c.mu.Unlock()

	if start {
		go c.renewAndDrain()
	}

	select {
	case err := <-w.proceed:
		if err != nil {
			return nil, ErrSessionExpired
		}
	case <-req.Context().Done():
		close(w.done)
		return nil, req.Context().Err()
	}

	res, err := c.send(req, c.Token())
	close(w.done)
	return res, err
}

// renewAndDrain performs the single renewal, then releases the queued
// waiters one at a time in arrival order.
func (c *Client) renewAndDrain() {
	_, err, _ := c.renewGroup.Do("renew", func() (interface{}, error) {
		return nil, c.refresh(context.Background())
	})
	if err != nil {
		c.clearSession()
	}

	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.renewing = false
	c.mu.Unlock()

	for _, w := range queue {
		w.proceed <- err
		if err == nil {
			<-w.done
		}
	}
}

// refresh trades the current token for a fresh one.
func (c *Client) refresh(ctx context.Context) error {
	token := c.Token()
	if token == "" {
		return ErrNoSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/users/refresh", nil)
	if err != nil {
		return errors.Wrap(err, "building refresh request")
	}
	res, err := c.send(req, token)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return errors.Errorf("client: token refresh failed with status %d", res.StatusCode)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return errors.Wrap(err, "decoding refresh response")
	}
	c.SetToken(payload.Token)
	return nil
}

// renewSilently renews after every successful call so the session stays
// fresh as long as it is in use. Failures are swallowed: the hard
// expiry path catches whatever this misses.
func (c *Client) renewSilently(ctx context.Context) {
	_, _, _ = c.renewGroup.Do("renew", func() (interface{}, error) {
		return nil, c.refresh(ctx)
	})
}

// unauthorizedCode extracts the machine code from a 401 payload. The
// body is restored so callers can still read it.
func unauthorizedCode(res *http.Response) string {
	data, err := io.ReadAll(res.Body)
	res.Body.Close()
	res.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Code
}

// GetJSON sends an authenticated GET and decodes the JSON response.
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("client: %s failed with status %d", path, res.StatusCode)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(res.Body).Decode(out), "decoding response")
}

// PostJSON sends an authenticated POST with a JSON body and decodes the
// JSON response.
func (c *Client) PostJSON(ctx context.Context, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("client: %s failed with status %d", path, res.StatusCode)
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(res.Body).Decode(out), "decoding response")
}
