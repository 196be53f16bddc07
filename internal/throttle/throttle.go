// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2026 Fedclient Authors

// Package throttle maintains the process-wide per-host delay table.
// A completed response may teach the table a "safe to retry after"
// timestamp; new requests against a still-delayed host are gated off
// before any network I/O. The table is explicit state passed into the
// executor, not a hidden singleton; it lives for the process lifetime
// and entries are only ever overwritten upward.
package throttle

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/openfedi/fedclient-go/internal/platform/config"
	"github.com/openfedi/fedclient-go/internal/platform/hostport"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// Signals tells AfterExecution which response headers carry rate-limit
// state. The exact names are origin-type-specific.
type Signals struct {
	RemainingHeaders []string
	ResetHeaders     []string
}

// DefaultSignals covers the common header spellings.
var DefaultSignals = Signals{
	RemainingHeaders: []string{"x-ratelimit-remaining", "ratelimit-remaining"},
	ResetHeaders:     []string{"x-ratelimit-reset", "ratelimit-reset"},
}

// Table is the shared host[:port] -> delayed-until map. Safe for
// unlimited concurrent readers and writers; the only guarantee is
// monotonic non-decrease per key.
type Table struct {
	delays   sync.Map // string -> int64 unix millis
	backoffs sync.Map // string -> *hostBackoff

	minBackoff time.Duration
	maxBackoff time.Duration

	now func() time.Time // test hook
}

// New creates a delay table with the configured fallback bounds.
func New(cfg config.ThrottleConfig) *Table {
	min := time.Duration(cfg.MinBackoffSeconds) * time.Second
	max := time.Duration(cfg.MaxBackoffSeconds) * time.Second
	if min <= 0 {
		min = 15 * time.Second
	}
	if max < min {
		max = min
	}
	return &Table{minBackoff: min, maxBackoff: max, now: time.Now}
}

// SetClock overrides the time source (for testing).
func (t *Table) SetClock(now func() time.Time) { t.now = now }

// BeforeExecution gates a request whose target host is still under a
// recorded delay. It returns a DELAYED failure without any network I/O,
// or nil when the request may proceed.
func (t *Table) BeforeExecution(req protocol.RequestDescriptor) error {
	host, err := hostport.FromURL(req.URI)
	if err != nil {
		// Let validation produce the proper failure.
		return nil
	}
	until := t.DelayedUntil(host)
	if until.IsZero() || !until.After(t.now()) {
		return nil
	}
	return protocol.NewConnErrorAt(protocol.StatusDelayed, req.URI,
		fmt.Sprintf("host %s delayed until %s", host, until.Format(time.RFC3339)))
}

// DelayedUntil returns the recorded delay for a normalized host key,
// or the zero time when none is recorded.
func (t *Table) DelayedUntil(host string) time.Time {
	v, ok := t.delays.Load(host)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(v.(int64))
}

// AfterExecution inspects a completed attempt and may record a new
// per-host delay. Precedence: an explicit Retry-After timestamp, then
// an exhausted rate-limit quota with a reset timestamp, then a bare
// 429/503 which falls back to the exponential schedule. Successful
// responses reset the fallback schedule for the host.
func (t *Table) AfterExecution(res *protocol.ResponseResult, sig Signals) {
	if res == nil {
		return
	}
	host, err := hostport.FromURL(res.URL)
	if err != nil {
		return
	}

	if res.Code == protocol.StatusOK {
		t.resetBackoff(host)
		// A successful response may still announce an exhausted quota;
		// the next request must wait out the reset window.
		if until := t.quotaReset(res, sig); !until.IsZero() {
			t.merge(host, until)
		}
		return
	}

	if !res.RetryAfter.IsZero() {
		t.merge(host, res.RetryAfter)
		return
	}

	if until := t.quotaReset(res, sig); !until.IsZero() {
		t.merge(host, until)
		return
	}

	if res.Code == protocol.StatusTooManyRequests || res.Code == protocol.StatusServiceUnavailable {
		t.merge(host, t.now().Add(t.nextBackoff(host)))
	}
}

// quotaReset returns the delay taught by an exhausted rate-limit quota
// (remaining counter at zero plus a parseable reset), or the zero time.
func (t *Table) quotaReset(res *protocol.ResponseResult, sig Signals) time.Time {
	remaining, ok := res.Header(sig.RemainingHeaders...)
	if !ok {
		return time.Time{}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(remaining), 10, 64)
	if err != nil || n > 0 {
		return time.Time{}
	}
	reset, ok := res.Header(sig.ResetHeaders...)
	if !ok {
		return time.Time{}
	}
	return parseReset(reset, t.now())
}

// Record merges an externally computed delay for a host. Used by tests
// and by callers that learn a delay out of band.
func (t *Table) Record(host string, until time.Time) {
	t.merge(host, until)
}

// Reset clears the whole table. Test/reset hook only.
func (t *Table) Reset() {
	t.delays.Range(func(k, _ any) bool {
		t.delays.Delete(k)
		return true
	})
	t.backoffs.Range(func(k, _ any) bool {
		t.backoffs.Delete(k)
		return true
	})
}

// merge stores max(existing, until) for the host. Lock-free
// compute-and-swap so a later, more optimistic response can never
// shorten a recorded delay.
func (t *Table) merge(host string, until time.Time) {
	ms := until.UnixMilli()
	for {
		cur, loaded := t.delays.LoadOrStore(host, ms)
		if !loaded {
			return
		}
		old := cur.(int64)
		if old >= ms {
			return
		}
		if t.delays.CompareAndSwap(host, old, ms) {
			return
		}
	}
}

// hostBackoff wraps the non-concurrent backoff state with a mutex.
type hostBackoff struct {
	mu sync.Mutex
	b  *backoff.ExponentialBackOff
}

func (t *Table) nextBackoff(host string) time.Duration {
	v, _ := t.backoffs.LoadOrStore(host, t.newHostBackoff())
	hb := v.(*hostBackoff)
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return hb.b.NextBackOff()
}

func (t *Table) resetBackoff(host string) {
	v, ok := t.backoffs.Load(host)
	if !ok {
		return
	}
	hb := v.(*hostBackoff)
	hb.mu.Lock()
	defer hb.mu.Unlock()
	hb.b.Reset()
}

func (t *Table) newHostBackoff() *hostBackoff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.minBackoff
	b.MaxInterval = t.maxBackoff
	b.RandomizationFactor = 0.1
	b.Multiplier = 2
	b.Reset()
	return &hostBackoff{b: b}
}

// parseReset accepts the three spellings seen in the wild: RFC 3339,
// epoch seconds, and delta seconds.
func parseReset(v string, now time.Time) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n < 0 {
		return time.Time{}
	}
	// Values on the epoch scale are absolute; small values are deltas.
	if n > 1e9 {
		return time.Unix(int64(n), 0)
	}
	return now.Add(time.Duration(n * float64(time.Second)))
}
