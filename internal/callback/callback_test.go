package callback_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/openfedi/fedclient-go/internal/callback"
	"github.com/openfedi/fedclient-go/internal/platform/config"
)

func newListener(t *testing.T) *callback.Listener {
	t.Helper()
	l := callback.New(config.CallbackConfig{
		ListenAddr: "127.0.0.1:0",
		Path:       "/oauth/callback",
	}, nil)
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		l.Close(ctx)
	})
	return l
}

func TestAwait_OAuth2Delivery(t *testing.T) {
	l := newListener(t)

	type result struct {
		res callback.Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := l.Await(ctx, "state-123")
		done <- result{res, err}
	}()

	// Let the waiter register before the redirect lands.
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get(l.RedirectURL() + "?code=auth-code&state=state-123")
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d, body %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "close this window") {
		t.Errorf("unexpected callback page: %s", body)
	}

	got := <-done
	if got.err != nil {
		t.Fatalf("Await: %v", got.err)
	}
	if got.res.Code != "auth-code" {
		t.Errorf("Code = %q, want auth-code", got.res.Code)
	}
}

func TestAwait_OAuth1CorrelatesOnToken(t *testing.T) {
	l := newListener(t)

	done := make(chan callback.Result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := l.Await(ctx, "request-token")
		if err == nil {
			done <- res
		}
	}()
	time.Sleep(20 * time.Millisecond)

	resp, err := http.Get(l.RedirectURL() + "?oauth_token=request-token&oauth_verifier=ver-42")
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("callback status = %d", resp.StatusCode)
	}

	select {
	case res := <-done:
		if res.OAuthToken != "request-token" || res.OAuthVerifier != "ver-42" {
			t.Errorf("unexpected result: %+v", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Await never returned")
	}
}

func TestHandle_UnknownStateRejected(t *testing.T) {
	l := newListener(t)

	resp, err := http.Get(l.RedirectURL() + "?code=x&state=nobody-waits-for-this")
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown state, got %d", resp.StatusCode)
	}
}

func TestAwait_ContextCancel(t *testing.T) {
	l := newListener(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Await(ctx, "state-never")
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("Await error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Await did not unblock on cancel")
	}
}

func TestRedirectURL_UsesBoundPort(t *testing.T) {
	l := newListener(t)
	u := l.RedirectURL()
	if !strings.HasPrefix(u, "http://127.0.0.1:") || !strings.HasSuffix(u, "/oauth/callback") {
		t.Errorf("RedirectURL = %q", u)
	}
	if strings.Contains(u, ":0/") {
		t.Errorf("RedirectURL still carries port 0: %q", u)
	}
}
