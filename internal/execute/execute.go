// Package execute is the protocol orchestrator: it validates a
// request descriptor, applies per-host throttling, dispatches through
// the origin's connection strategy, interprets the origin's error
// envelope, and feeds rate-limit signals back into the throttle
// table. Every request yields a result; failures ride on the result
// rather than escaping.
package execute

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/openfedi/fedclient-go/internal/auth"
	"github.com/openfedi/fedclient-go/internal/origin"
	"github.com/openfedi/fedclient-go/internal/platform/logutil"
	"github.com/openfedi/fedclient-go/internal/protocol"
	"github.com/openfedi/fedclient-go/internal/throttle"
)

// notAuthenticatedText is the exact body some origins return with a
// 200 status when the request was in fact rejected. It always means
// an authentication failure.
const notAuthenticatedText = "Could not authenticate you."

// Executor drives requests against one origin.
type Executor struct {
	desc     *origin.Descriptor
	client   auth.Client
	throttle *throttle.Table
	logger   *slog.Logger

	logNetwork bool
}

// New wires an executor for one origin descriptor.
func New(desc *origin.Descriptor, client auth.Client, table *throttle.Table, logger *slog.Logger, logNetwork bool) *Executor {
	return &Executor{
		desc:       desc,
		client:     client,
		throttle:   table,
		logger:     logutil.NoopIfNil(logger),
		logNetwork: logNetwork,
	}
}

// Execute runs one request end to end. The returned result always
// carries the request; inspect HasError and Exception for failures.
func (e *Executor) Execute(ctx context.Context, req protocol.RequestDescriptor) *protocol.ResponseResult {
	res := req.NewResult()

	if err := req.Validate(); err != nil {
		res.SetException(err)
		return e.finish(res)
	}

	// file:// and plain paths never touch the network.
	if req.Routine == protocol.RoutineDownloadFile && !req.IsRemote() {
		e.copyLocal(res)
		return e.finish(res)
	}

	if err := e.throttle.BeforeExecution(req); err != nil {
		res.SetException(err)
		return e.finish(res)
	}

	res = e.dispatch(ctx, res)

	e.throttle.AfterExecution(res, throttle.Signals{
		RemainingHeaders: e.desc.RateLimitRemainingHeaders(),
		ResetHeaders:     e.desc.RateLimitResetHeaders(),
	})

	e.interpret(res)
	return e.finish(res)
}

// dispatch routes to the strategy. POSTs against an origin whose
// legacy preference is unknown are retried once with the legacy
// encoding when the modern attempt dies on the wire.
func (e *Executor) dispatch(ctx context.Context, res *protocol.ResponseResult) *protocol.ResponseResult {
	if res.Request.Verb == protocol.VerbGet {
		e.client.GetRequest(ctx, res)
		return res
	}

	legacy := e.legacyPreference(res.Request)
	if legacy.Known() {
		e.client.PostRequest(ctx, res, legacy == protocol.TriTrue)
		return res
	}

	// Preference unknown: modern first, one legacy retry when the
	// modern attempt failed.
	e.client.PostRequest(ctx, res, false)
	if modernRejected(res) {
		retry := res.Request.NewResult()
		retry.ID = res.ID
		retry.AppendLog("retried with legacy encoding")
		if err := e.client.PostRequest(ctx, retry, true); err == nil || retry.HTTPCode != 0 {
			return retry
		}
	}
	return res
}

// modernRejected reports whether a modern-encoded POST failed in a way
// the legacy encoding may fix: it died on the wire before any HTTP
// status, or the server refused the request body outright. Statuses
// the encoding cannot influence (auth failures, missing resources,
// throttling, server faults) do not trigger a retry.
func modernRejected(res *protocol.ResponseResult) bool {
	if res.Exception() != nil && res.HTTPCode == 0 {
		return true
	}
	switch res.Code {
	case protocol.StatusBadRequest, protocol.StatusLengthRequired,
		protocol.StatusRequestEntityTooLarge, protocol.StatusClientError:
		return true
	}
	return false
}

// legacyPreference merges the request's own preference with the
// origin's.
func (e *Executor) legacyPreference(req protocol.RequestDescriptor) protocol.TriState {
	if req.LegacyHTTP.Known() {
		return req.LegacyHTTP
	}
	return e.desc.LegacyHTTP
}

// interpret inspects the response for the origin's error envelope and
// guarantees that a failing status always surfaces as a typed failure.
func (e *Executor) interpret(res *protocol.ResponseResult) {
	if res.Exception() != nil {
		return
	}

	body := strings.TrimSpace(string(res.Body))
	if body != "" {
		if strings.Contains(body, notAuthenticatedText) {
			res.SetException(protocol.NewConnErrorAt(protocol.StatusAuthenticationError, res.URL,
				notAuthenticatedText))
			return
		}

		// Many origins put a human-readable message under "error" even
		// on 2xx statuses.
		if msg := gjson.Get(body, "error").String(); msg != "" {
			code := res.Code
			if code.IsOK() || code == protocol.StatusUnknown {
				code = protocol.StatusClientError
			}
			res.SetException(protocol.NewConnErrorAt(code, res.URL, msg))
			return
		}
		if msg := gjson.Get(body, "error_description").String(); msg != "" && !res.Code.IsOK() {
			res.AppendLog(msg)
		}
	}

	// No envelope, but the status itself signals failure.
	if !res.Code.IsOK() && res.Code != protocol.StatusUnknown {
		res.SetException(protocol.NewConnErrorAt(res.Code, res.URL,
			fmt.Sprintf("request failed with HTTP status %d", res.HTTPCode)))
	}
}

// copyLocal satisfies a download request whose source is a local
// path.
func (e *Executor) copyLocal(res *protocol.ResponseResult) {
	src := strings.TrimPrefix(res.Request.URI, "file://")
	res.SetURL(res.Request.URI)

	in, err := os.Open(src)
	if err != nil {
		res.SetException(protocol.NewConnErrorAt(protocol.StatusNotFound, res.Request.URI, err.Error()))
		return
	}
	defer in.Close()

	out, err := os.Create(res.Request.DestFile)
	if err != nil {
		res.SetException(protocol.Classify(err, res.Request.URI))
		return
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	res.FileBytes = n
	if err != nil {
		res.SetException(protocol.Classify(err, res.Request.URI))
		return
	}
	res.SetStatus(200)
}

func (e *Executor) finish(res *protocol.ResponseResult) *protocol.ResponseResult {
	if e.logNetwork || res.HasError() {
		level := slog.LevelDebug
		if res.HasError() {
			level = slog.LevelInfo
		}
		e.logger.Log(context.Background(), level, res.LogMsg())
	}
	return res
}
