package protocol

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResponseResult accumulates the outcome of one execution attempt.
// A redirect or a legacy-fallback retry reuses the same result; the
// log buffer is append-only and the first recorded exception wins.
type ResponseResult struct {
	Request RequestDescriptor

	// ID correlates log lines belonging to one attempt chain.
	ID string

	// URL is the working URL; it changes as redirects are followed.
	URL string

	HTTPCode int
	Code     StatusCode

	// Headers holds response headers with case-folded keys. Multi-value
	// headers keep their first value; nothing in the protocol needs more.
	Headers map[string]string

	// Location is the redirect target from the last response, resolved
	// and percent-decoding-normalized (%3F back to ?).
	Location string

	// RetryAfter is the parsed Retry-After header, zero when absent.
	RetryAfter time.Time

	Redirected bool

	// Body is the buffered response body. For download descriptors the
	// body goes to the destination file and FileBytes counts it instead.
	Body      []byte
	FileBytes int64

	err       error
	logBuf    strings.Builder
	StartedAt time.Time
}

func newResult(r RequestDescriptor) *ResponseResult {
	return &ResponseResult{
		Request:   r,
		ID:        uuid.NewString(),
		URL:       r.URI,
		StartedAt: time.Now(),
	}
}

// SetURL updates the working URL after a redirect.
func (r *ResponseResult) SetURL(u string) {
	r.URL = u
}

// SetStatus records the numeric HTTP status and its classification.
func (r *ResponseResult) SetStatus(httpCode int) {
	r.HTTPCode = httpCode
	r.Code = FromHTTP(httpCode)
}

// SetHeaders folds the response headers, extracting the redirect
// Location and the Retry-After timestamp when present.
func (r *ResponseResult) SetHeaders(h http.Header) {
	r.Headers = make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) == 0 {
			continue
		}
		r.Headers[strings.ToLower(k)] = vs[0]
	}
	if loc, ok := r.Headers["location"]; ok {
		// Some servers percent-encode the query separator in Location.
		r.Location = strings.ReplaceAll(loc, "%3F", "?")
	}
	if ra, ok := r.Headers["retry-after"]; ok {
		r.RetryAfter = parseRetryAfter(ra, time.Now())
	}
}

// Header returns the first present header among the given case-folded
// names. Rate-limit header names are origin-type-specific, so callers
// try candidates in order.
func (r *ResponseResult) Header(names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := r.Headers[strings.ToLower(n)]; ok {
			return v, true
		}
	}
	return "", false
}

// SetException records a failure. Once set it is never overwritten by
// a later, less specific one; extra failures land in the log buffer.
func (r *ResponseResult) SetException(err error) {
	if err == nil {
		return
	}
	if r.err != nil {
		r.AppendLog("suppressed exception: " + err.Error())
		return
	}
	r.err = err
	if r.Code == StatusUnknown || r.Code == StatusOK {
		r.Code = CodeOf(err)
	}
}

// Exception returns the recorded failure, if any.
func (r *ResponseResult) Exception() error {
	return r.err
}

// HasError reports whether the attempt ended in failure.
func (r *ResponseResult) HasError() bool {
	return r.err != nil
}

// AppendLog appends one line to the attempt's diagnostic buffer.
func (r *ResponseResult) AppendLog(msg string) {
	if r.logBuf.Len() > 0 {
		r.logBuf.WriteString("; ")
	}
	r.logBuf.WriteString(msg)
}

// LogMsg renders the stable diagnostic line used for network-level
// logging: status, redirect flag, trimmed body preview and cause chain.
func (r *ResponseResult) LogMsg() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s %s", r.ID, r.Request.Verb, r.URL)
	if r.HTTPCode != 0 {
		fmt.Fprintf(&sb, " -> %d (%s)", r.HTTPCode, r.Code)
	} else {
		fmt.Fprintf(&sb, " -> %s", r.Code)
	}
	if r.Redirected {
		sb.WriteString(" redirected")
	}
	if preview := r.bodyPreview(120); preview != "" {
		fmt.Fprintf(&sb, " body=%q", preview)
	}
	if r.FileBytes > 0 {
		fmt.Fprintf(&sb, " file_bytes=%d", r.FileBytes)
	}
	if r.err != nil {
		fmt.Fprintf(&sb, " error=%v", r.err)
	}
	if r.logBuf.Len() > 0 {
		fmt.Fprintf(&sb, " log=[%s]", r.logBuf.String())
	}
	return sb.String()
}

func (r *ResponseResult) String() string { return r.LogMsg() }

func (r *ResponseResult) bodyPreview(max int) string {
	s := strings.TrimSpace(string(r.Body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Time {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
		return now.Add(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return t
	}
	return time.Time{}
}
