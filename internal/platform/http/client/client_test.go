package client_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfedi/fedclient-go/internal/platform/config"
	httpclient "github.com/openfedi/fedclient-go/internal/platform/http/client"
)

func strictConfig() *config.OutboundHTTPConfig {
	return &config.OutboundHTTPConfig{
		SSRFMode:         "strict",
		TimeoutMS:        1000,
		ConnectTimeoutMS: 500,
		MaxResponseBytes: 1048576,
	}
}

func openConfig() *config.OutboundHTTPConfig {
	return &config.OutboundHTTPConfig{
		SSRFMode:         "off",
		TimeoutMS:        5000,
		ConnectTimeoutMS: 2000,
		MaxResponseBytes: 1048576,
	}
}

func TestClient_SSRFProtection(t *testing.T) {
	client := httpclient.New(strictConfig(), httpclient.Options{})

	tests := []struct {
		name string
		url  string
	}{
		{"localhost blocked", "http://localhost/test"},
		{"127.0.0.1 blocked", "http://127.0.0.1/test"},
		{"loopback IPv6 blocked", "http://[::1]/test"},
		{"private 192.168 blocked", "http://192.168.1.1/test"},
		{"private 10.x blocked", "http://10.0.0.1/test"},
		{"private 172.16 blocked", "http://172.16.0.1/test"},
		{"link-local blocked", "http://169.254.1.1/test"},
		{"localhost with port blocked", "http://localhost:8080/test"},
		{"loopback IPv6 with port blocked", "http://[::1]:8080/test"},
	}

	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Get(ctx, tt.url)
			if err == nil {
				t.Fatal("expected SSRF error, got nil")
			}
			if !httpclient.IsSSRFError(err) {
				t.Errorf("expected SSRF error, got: %v", err)
			}
		})
	}
}

func TestClient_SSRFOff(t *testing.T) {
	client := httpclient.New(openConfig(), httpclient.Options{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("loopback should be reachable with SSRF off: %v", err)
	}
	resp.Body.Close()
}

func TestClient_ProxyEnvIgnored(t *testing.T) {
	os.Setenv("HTTP_PROXY", "http://proxy.invalid:8080")
	os.Setenv("HTTPS_PROXY", "http://proxy.invalid:8080")
	defer func() {
		os.Unsetenv("HTTP_PROXY")
		os.Unsetenv("HTTPS_PROXY")
	}()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("direct"))
	}))
	defer server.Close()

	client := httpclient.New(openConfig(), httpclient.Options{})

	// If the proxy were honored this would fail: proxy.invalid does
	// not resolve.
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("expected direct connection, got error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestClient_DoesNotFollowRedirects(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		http.Redirect(w, r, "/target", http.StatusFound)
	}))
	defer server.Close()

	client := httpclient.New(openConfig(), httpclient.Options{})

	resp, err := client.Get(context.Background(), server.URL+"/start")
	if err != nil {
		t.Fatalf("redirect response should be returned, not followed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected 302 back to the caller, got %d", resp.StatusCode)
	}
	if requestCount != 1 {
		t.Errorf("expected exactly 1 request, got %d", requestCount)
	}
	if loc := resp.Header.Get("Location"); loc != "/target" {
		t.Errorf("expected Location /target, got %q", loc)
	}
}

func TestClient_UserAgentInjected(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := openConfig()
	cfg.UserAgent = "fedclient-test/1.0"
	client := httpclient.New(cfg, httpclient.Options{})

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if gotUA != "fedclient-test/1.0" {
		t.Errorf("expected configured user agent, got %q", gotUA)
	}
}

func TestReadBody_SizeBound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	cfg := openConfig()
	cfg.MaxResponseBytes = 1024
	client := httpclient.New(cfg, httpclient.Options{})

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	_, err = client.ReadBody(resp)
	if !errors.Is(err, httpclient.ErrResponseTooLarge) {
		t.Errorf("expected ErrResponseTooLarge, got: %v", err)
	}
}

func TestStreamToFile(t *testing.T) {
	payload := strings.Repeat("payload ", 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer server.Close()

	client := httpclient.New(openConfig(), httpclient.Options{})
	dest := filepath.Join(t.TempDir(), "out.bin")

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	n, err := client.StreamToFile(resp, dest, 0)
	if err != nil {
		t.Fatalf("StreamToFile failed: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("expected %d bytes, got %d", len(payload), n)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Error("file content does not match the response body")
	}
}

func TestStreamToFile_OversizeLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	}))
	defer server.Close()

	client := httpclient.New(openConfig(), httpclient.Options{})
	dest := filepath.Join(t.TempDir(), "out.bin")

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	_, err = client.StreamToFile(resp, dest, 1024)
	if !errors.Is(err, httpclient.ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("oversize download must not leave a destination file behind")
	}
}

// blockingResolver simulates a DNS resolver that blocks until context is canceled.
type blockingResolver struct {
	unblockCh chan struct{}
}

func (r *blockingResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.unblockCh:
		return []net.IPAddr{{IP: net.ParseIP("1.2.3.4")}}, nil
	}
}

func TestContextAwareDNSCancellation(t *testing.T) {
	cfg := strictConfig()
	cfg.TimeoutMS = 10000
	cfg.ConnectTimeoutMS = 5000
	client := httpclient.New(cfg, httpclient.Options{})

	resolver := &blockingResolver{unblockCh: make(chan struct{})}
	client.SetResolver(resolver)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Get(ctx, "http://example.com/test")
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("DNS cancellation took too long: %v (expected ~100ms)", elapsed)
	}
	if err == nil {
		t.Fatal("expected error when context is canceled")
	}
}

func TestClient_UnresolvableHostBlocked(t *testing.T) {
	client := httpclient.New(strictConfig(), httpclient.Options{})

	_, err := client.Get(context.Background(), "http://this-domain-does-not-exist-12345.invalid/test")
	if err == nil {
		t.Fatal("expected error for unresolvable host")
	}
}
