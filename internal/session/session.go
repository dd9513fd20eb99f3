// Package session orchestrates login, signup, logout and token refresh. It is
// the only component allowed to mutate the credential store with new
// sessions, and the only place a refresh is ever issued.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lxxma/MeetMind/internal/api"
	"github.com/lxxma/MeetMind/internal/apierr"
	"github.com/lxxma/MeetMind/internal/credstore"
	"github.com/lxxma/MeetMind/internal/metrics"
	"github.com/lxxma/MeetMind/internal/transport"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Expired
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "anonymous"
	}
}

// Controller is the session state machine. It implements
// transport.Refresher; the transport calls back into it on 401.
type Controller struct {
	tr    *transport.Client
	store credstore.Store
	log   *zap.SugaredLogger

	group singleflight.Group

	mu           sync.Mutex
	state        State
	expiredFired bool
	onExpired    func()
}

func NewController(tr *transport.Client, store credstore.Store, log *zap.SugaredLogger) *Controller {
	c := &Controller{tr: tr, store: store, log: log, state: Anonymous}
	if store.AccessToken() != "" && store.RefreshToken() != "" {
		c.state = Authenticated
	}
	return c
}

// OnExpired registers the boundary hook fired when the session becomes
// unrecoverable. It fires at most once per expiry event, no matter how many
// concurrent calls hit 401 together.
func (c *Controller) OnExpired(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = fn
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Authenticated() bool {
	return c.State() == Authenticated
}

// CurrentUser returns the cached profile; nil until fetched or stored at
// login.
func (c *Controller) CurrentUser() *api.User {
	return c.store.User()
}

// Login exchanges credentials for a token pair. Backend 4xx messages are
// surfaced verbatim to the caller.
func (c *Controller) Login(ctx context.Context, email, password string) (*api.User, error) {
	c.setState(Authenticating)
	var res api.LoginResponse
	err := c.tr.DoPublic(ctx, "POST", "/login/", api.LoginRequest{Email: email, Password: password}, &res)
	if err != nil {
		c.setState(Anonymous)
		return nil, err
	}
	if err := c.establish(res.Access, res.Refresh, &res.User); err != nil {
		return nil, err
	}
	c.log.Infow("logged in", "user", res.User.Username)
	return &res.User, nil
}

// Signup registers an account. The backend logs the user straight in, so the
// response carries a token pair next to the new user's fields.
func (c *Controller) Signup(ctx context.Context, username, email, password string) (*api.User, error) {
	c.setState(Authenticating)
	var res api.SignupResponse
	err := c.tr.DoPublic(ctx, "POST", "/signup/", api.SignupRequest{Username: username, Email: email, Password: password}, &res)
	if err != nil {
		c.setState(Anonymous)
		return nil, err
	}
	user := &api.User{ID: res.ID, Username: res.Username, Email: res.Email}
	if err := c.establish(res.Access, res.Refresh, user); err != nil {
		return nil, err
	}
	c.log.Infow("signed up", "user", res.Username)
	return user, nil
}

// Logout clears the store unconditionally. No network call; the backend
// keeps no session state worth revoking from here.
func (c *Controller) Logout() error {
	err := c.store.Clear()
	c.setState(Anonymous)
	c.log.Infow("logged out")
	return err
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers collapse into one in-flight exchange and share its outcome; a
// failed exchange expires the session.
func (c *Controller) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		refresh := c.store.RefreshToken()
		if refresh == "" {
			c.expire()
			return nil, apierr.New(apierr.KindSessionExpired, 0, "no refresh token stored")
		}
		var res api.RefreshResponse
		if err := c.tr.DoPublic(ctx, "POST", "/token/refresh/", api.RefreshRequest{Refresh: refresh}, &res); err != nil {
			metrics.Refreshes.WithLabelValues("failed").Inc()
			c.expire()
			return nil, apierr.New(apierr.KindSessionExpired, 0, apierr.Detail(err))
		}
		if err := c.store.SetAccessToken(res.Access); err != nil {
			metrics.Refreshes.WithLabelValues("failed").Inc()
			c.expire()
			return nil, apierr.New(apierr.KindSessionExpired, 0, err.Error())
		}
		metrics.Refreshes.WithLabelValues("ok").Inc()
		if exp, ok := tokenExpiry(res.Access); ok {
			c.log.Debugw("access token refreshed", "expires_at", exp)
		}
		return nil, nil
	})
	return err
}

func (c *Controller) establish(access, refresh string, user *api.User) error {
	if err := c.store.SetSession(access, refresh, user); err != nil {
		c.setState(Anonymous)
		return err
	}
	c.mu.Lock()
	c.state = Authenticated
	c.expiredFired = false
	c.mu.Unlock()
	if exp, ok := tokenExpiry(access); ok {
		c.log.Debugw("session established", "access_expires_at", exp)
	}
	return nil
}

// Expire is called by the transport when the backend rejects a freshly
// refreshed token; the session is unrecoverable.
func (c *Controller) Expire() {
	c.expire()
}

// expire moves to Expired, clears the store and fires the boundary hook
// exactly once for this expiry event.
func (c *Controller) expire() {
	_ = c.store.Clear()
	c.mu.Lock()
	c.state = Expired
	fire := !c.expiredFired && c.onExpired != nil
	c.expiredFired = true
	hook := c.onExpired
	c.mu.Unlock()
	c.log.Warnw("session expired")
	if fire {
		hook()
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
