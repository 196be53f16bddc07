// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 Fedclient Authors

// Package callback runs a loopback HTTP listener that receives the
// browser leg of interactive authorization flows. One listener serves
// both OAuth2 (code+state) and OAuth1 (oauth_token+oauth_verifier)
// redirects.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/openfedi/fedclient-go/internal/platform/config"
	"github.com/openfedi/fedclient-go/internal/platform/logutil"
)

// Result is one delivered authorization response.
type Result struct {
	// Code is the OAuth2 authorization code.
	Code string
	// OAuthToken and OAuthVerifier are the OAuth1 callback values.
	OAuthToken    string
	OAuthVerifier string
}

// ErrStateMismatch is returned when a callback arrives whose state no
// pending wait claimed.
var ErrStateMismatch = errors.New("callback state does not match any pending authorization")

// Listener accepts authorization redirects on a fixed loopback path.
type Listener struct {
	path   string
	logger *slog.Logger

	srv  *http.Server
	addr net.Addr

	mu      sync.Mutex
	waiters map[string]chan Result
}

// New creates a listener from config. Start must be called before the
// redirect URL is handed to an origin.
func New(cfg config.CallbackConfig, logger *slog.Logger) *Listener {
	l := &Listener{
		path:    cfg.Path,
		logger:  logutil.NoopIfNil(logger),
		waiters: make(map[string]chan Result),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(cfg.Path, l.handle)
	l.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return l
}

// Start binds the listener and begins serving. The bound address is
// available via RedirectURL afterwards.
func (l *Listener) Start() error {
	ln, err := net.Listen("tcp", l.srv.Addr)
	if err != nil {
		return fmt.Errorf("callback listener: %w", err)
	}
	l.addr = ln.Addr()
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("callback listener stopped", "error", err)
		}
	}()
	l.logger.Debug("callback listener started", "addr", l.addr.String(), "path", l.path)
	return nil
}

// RedirectURL returns the URL origins should redirect back to.
func (l *Listener) RedirectURL() string {
	return "http://" + l.addr.String() + l.path
}

// Await registers interest in one state value and blocks until the
// matching callback arrives or the context ends.
func (l *Listener) Await(ctx context.Context, state string) (Result, error) {
	ch := make(chan Result, 1)
	l.mu.Lock()
	l.waiters[state] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.waiters, state)
		l.mu.Unlock()
	}()

	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := Result{
		Code:          q.Get("code"),
		OAuthToken:    q.Get("oauth_token"),
		OAuthVerifier: q.Get("oauth_verifier"),
	}
	// OAuth2 correlates on state, OAuth1 on the request token.
	key := q.Get("state")
	if key == "" {
		key = res.OAuthToken
	}

	l.mu.Lock()
	ch, ok := l.waiters[key]
	l.mu.Unlock()
	if !ok {
		l.logger.Warn("callback with unknown state rejected")
		http.Error(w, ErrStateMismatch.Error(), http.StatusBadRequest)
		return
	}

	select {
	case ch <- res:
	default:
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><p>Authorization received. You may close this window.</p></body></html>")
}

// Close shuts the listener down.
func (l *Listener) Close(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}
