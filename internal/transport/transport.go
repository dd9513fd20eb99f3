// Package transport dispatches calls to the MeetMind backend. It owns bearer
// attachment, the single refresh-then-retry on 401, and the mapping of HTTP
// failures onto the apierr taxonomy. Views never talk HTTP directly and never
// carry their own refresh logic.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lxxma/MeetMind/internal/apierr"
	"github.com/lxxma/MeetMind/internal/credstore"
	"github.com/lxxma/MeetMind/internal/metrics"
)

// Refresher obtains a fresh access token and writes it to the credential
// store. The session controller implements it; concurrent calls must
// collapse into a single refresh.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
}

type Client struct {
	http      *http.Client
	base      string
	store     credstore.Store
	refresher Refresher
	breaker   *gobreaker.CircuitBreaker
	log       *zap.SugaredLogger
}

func NewClient(conf Config, store credstore.Store, log *zap.SugaredLogger) *Client {
	if conf.Timeout == 0 {
		conf.Timeout = 15 * time.Second
	}
	if conf.MaxIdleConns == 0 {
		conf.MaxIdleConns = 10
	}
	if conf.IdleConnTimeout == 0 {
		conf.IdleConnTimeout = 90 * time.Second
	}
	if conf.BreakerFailures == 0 {
		conf.BreakerFailures = 5
	}
	if conf.BreakerOpenFor == 0 {
		conf.BreakerOpenFor = 30 * time.Second
	}
	tr := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:    conf.MaxIdleConns,
		IdleConnTimeout: conf.IdleConnTimeout,
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meetmind-backend",
		MaxRequests: 1,
		Timeout:     conf.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= conf.BreakerFailures
		},
	})
	return &Client{
		http:    &http.Client{Transport: tr, Timeout: conf.Timeout},
		base:    strings.TrimRight(conf.BaseURL, "/"),
		store:   store,
		breaker: cb,
		log:     log,
	}
}

// SetRefresher wires the session controller in after construction; the two
// depend on each other and the controller is built second.
func (c *Client) SetRefresher(r Refresher) { c.refresher = r }

// Do issues an authenticated JSON call. Fails with Unauthenticated before
// touching the network when no access token is stored. On 401 it refreshes
// and retries the original call exactly once; a failed refresh clears the
// store and yields SessionExpired.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}
	return c.DoBytes(ctx, method, path, "application/json", payload, out)
}

// DoBytes is Do for callers that build their own payload (multipart profile
// updates). The payload is a byte slice so the 401 retry can replay it.
func (c *Client) DoBytes(ctx context.Context, method, path, contentType string, payload []byte, out interface{}) error {
	token := c.store.AccessToken()
	if token == "" {
		metrics.Requests.WithLabelValues(method, "unauthenticated").Inc()
		return apierr.New(apierr.KindUnauthenticated, 0, "no access token stored")
	}

	reqID := uuid.NewString()
	status, raw, err := c.roundTrip(ctx, method, path, contentType, payload, token, reqID)
	if err != nil {
		metrics.Requests.WithLabelValues(method, "unavailable").Inc()
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.refreshSession(ctx); err != nil {
			metrics.Requests.WithLabelValues(method, "expired").Inc()
			return err
		}
		token = c.store.AccessToken()
		status, raw, err = c.roundTrip(ctx, method, path, contentType, payload, token, reqID)
		if err != nil {
			metrics.Requests.WithLabelValues(method, "unavailable").Inc()
			return err
		}
		if status == http.StatusUnauthorized {
			// The refreshed token was rejected too. One retry per logical
			// call; give up and drop the session.
			c.expireSession()
			metrics.Requests.WithLabelValues(method, "expired").Inc()
			return apierr.New(apierr.KindSessionExpired, status, extractDetail(raw))
		}
	}
	return c.finish(method, status, raw, out)
}

// DoPublic issues a call without bearer auth and without refresh handling.
// Login, signup and the refresh call itself go through here.
func (c *Client) DoPublic(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}
	status, raw, err := c.roundTrip(ctx, method, path, "application/json", payload, "", uuid.NewString())
	if err != nil {
		metrics.Requests.WithLabelValues(method, "unavailable").Inc()
		return err
	}
	return c.finish(method, status, raw, out)
}

func (c *Client) refreshSession(ctx context.Context) error {
	if c.refresher == nil {
		_ = c.store.Clear()
		return apierr.New(apierr.KindSessionExpired, http.StatusUnauthorized, "no refresher configured")
	}
	if err := c.refresher.Refresh(ctx); err != nil {
		// Refresh failure is unrecoverable: the store is cleared here so the
		// expiry is visible to every component at once.
		_ = c.store.Clear()
		return apierr.New(apierr.KindSessionExpired, http.StatusUnauthorized, apierr.Detail(err))
	}
	return nil
}

// expireSession drops the stored session and, when the refresher also
// tracks session state, moves it to expired so the boundary hook fires.
func (c *Client) expireSession() {
	_ = c.store.Clear()
	if ex, ok := c.refresher.(interface{ Expire() }); ok {
		ex.Expire()
	}
}

func (c *Client) finish(method string, status int, raw []byte, out interface{}) error {
	if status >= 200 && status < 300 {
		metrics.Requests.WithLabelValues(method, "ok").Inc()
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return apierr.New(apierr.KindServer, status, fmt.Sprintf("malformed response: %v", err))
			}
		}
		return nil
	}
	e := apierr.FromStatus(status, extractDetail(raw))
	metrics.Requests.WithLabelValues(method, outcome(e.Kind)).Inc()
	return e
}

func (c *Client) roundTrip(ctx context.Context, method, path, contentType string, payload []byte, token, reqID string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, nil, apierr.New(apierr.KindUnavailable, 0, err.Error())
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.Do(req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return 0, nil, apierr.New(apierr.KindUnavailable, 0, "backend circuit open")
		}
		return 0, nil, apierr.New(apierr.KindUnavailable, 0, err.Error())
	}
	resp := res.(*http.Response)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apierr.New(apierr.KindUnavailable, 0, err.Error())
	}
	c.log.Debugw("request",
		"request_id", reqID,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)
	return resp.StatusCode, raw, nil
}

func marshalBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal body: %w", err)
	}
	return b, nil
}

// extractDetail pulls the display message out of a backend error body. The
// backend is inconsistent about the key, so several are tried in order.
func extractDetail(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "error", "message"} {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func outcome(k apierr.Kind) string {
	switch k {
	case apierr.KindForbidden:
		return "forbidden"
	case apierr.KindNotFound:
		return "not_found"
	case apierr.KindValidation:
		return "validation"
	case apierr.KindUnavailable:
		return "unavailable"
	default:
		return "server_error"
	}
}
