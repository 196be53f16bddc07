package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"

	"github.com/openfedi/fedclient-go/internal/creds"
	"github.com/openfedi/fedclient-go/internal/origin"
	"github.com/openfedi/fedclient-go/internal/platform/hostport"
	httpclient "github.com/openfedi/fedclient-go/internal/platform/http/client"
	"github.com/openfedi/fedclient-go/internal/protocol"
)

// maxRedirects bounds the redirect chase per request.
const maxRedirects = 5

// signFunc decorates one outbound attempt. sameHost is false when a
// redirect moved the request off the origin's host, in which case
// strategies must not attach origin-scoped credentials.
type signFunc func(req *http.Request, hop int, sameHost bool) error

// unsigned carries no credentials at all. Used when the request
// descriptor opts out of authentication.
func unsigned(*http.Request, int, bool) error { return nil }

type base struct {
	desc   *origin.Descriptor
	http   *httpclient.Client
	creds  *creds.Store
	logger *slog.Logger
	deps   Deps

	originHost string
}

func newBase(desc *origin.Descriptor, deps Deps) *base {
	host, err := desc.Host()
	if err != nil {
		host = desc.URL
	}
	return &base{
		desc:       desc,
		http:       deps.HTTP,
		creds:      deps.Creds,
		logger:     deps.Logger,
		deps:       deps,
		originHost: host,
	}
}

// doGet performs the GET with redirect following. Each hop is signed
// fresh; the final response lands on res.
func (b *base) doGet(ctx context.Context, res *protocol.ResponseResult, sign signFunc) error {
	if !res.Request.Authenticate {
		sign = unsigned
	}
	urlStr := res.Request.URI
	for hop := 0; ; hop++ {
		if hop > maxRedirects {
			err := protocol.NewConnErrorAt(protocol.StatusMoved, urlStr,
				fmt.Sprintf("too many redirects (%d)", hop))
			res.SetException(err)
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			cerr := protocol.NewConnErrorAt(protocol.StatusBadRequest, urlStr, err.Error())
			res.SetException(cerr)
			return cerr
		}
		if err := sign(req, hop, b.sameHost(urlStr)); err != nil {
			res.SetException(err)
			return err
		}

		resp, err := b.http.Do(req)
		if err != nil {
			cerr := protocol.Classify(err, urlStr)
			res.SetException(cerr)
			return cerr
		}

		res.SetURL(urlStr)
		res.SetStatus(resp.StatusCode)
		res.SetHeaders(resp.Header)
		b.logAttempt(res.Request.Verb, urlStr, resp.StatusCode, hop)

		if isRedirect(resp.StatusCode) && res.Location != "" {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			next, err := resolveLocation(urlStr, res.Location)
			if err != nil {
				cerr := protocol.NewConnErrorAt(protocol.StatusMoved, urlStr, err.Error())
				res.SetException(cerr)
				return cerr
			}
			res.Redirected = true
			res.AppendLog("redirected to " + next)
			urlStr = next
			continue
		}

		return b.consume(res, resp)
	}
}

// doPost performs one POST attempt. Redirect responses are recorded,
// not followed.
func (b *base) doPost(ctx context.Context, res *protocol.ResponseResult, legacy bool, sign signFunc) error {
	if !res.Request.Authenticate {
		sign = unsigned
	}
	urlStr := res.Request.URI

	body, contentType, contentLength, err := b.postBody(res.Request, legacy)
	if err != nil {
		cerr := protocol.NewConnErrorAt(protocol.StatusBadRequest, urlStr, err.Error())
		res.SetException(cerr)
		return cerr
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, body)
	if err != nil {
		cerr := protocol.NewConnErrorAt(protocol.StatusBadRequest, urlStr, err.Error())
		res.SetException(cerr)
		return cerr
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = contentLength
	if err := sign(req, 0, true); err != nil {
		res.SetException(err)
		return err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		cerr := protocol.Classify(err, urlStr)
		res.SetException(cerr)
		return cerr
	}

	res.SetURL(urlStr)
	res.SetStatus(resp.StatusCode)
	res.SetHeaders(resp.Header)
	b.logAttempt(res.Request.Verb, urlStr, resp.StatusCode, 0)

	return b.consume(res, resp)
}

// postBody builds the request body. JSON bodies are always sized.
// Attachments use a streamed multipart form; the legacy encoding
// buffers the whole form so Content-Length is known up front.
func (b *base) postBody(req protocol.RequestDescriptor, legacy bool) (io.Reader, string, int64, error) {
	if req.Attachment == "" {
		if len(req.JSONBody) == 0 {
			return nil, "", 0, nil
		}
		return bytes.NewReader(req.JSONBody), "application/json; charset=utf-8", int64(len(req.JSONBody)), nil
	}

	if legacy {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		if err := writeAttachment(w, req); err != nil {
			return nil, "", 0, err
		}
		if err := w.Close(); err != nil {
			return nil, "", 0, err
		}
		return &buf, w.FormDataContentType(), int64(buf.Len()), nil
	}

	pr, pw := io.Pipe()
	w := multipart.NewWriter(pw)
	go func() {
		err := writeAttachment(w, req)
		if err == nil {
			err = w.Close()
		}
		pw.CloseWithError(err)
	}()
	// Streamed form, length unknown.
	return pr, w.FormDataContentType(), -1, nil
}

func writeAttachment(w *multipart.Writer, req protocol.RequestDescriptor) error {
	if len(req.JSONBody) > 0 {
		if err := w.WriteField("status", string(req.JSONBody)); err != nil {
			return err
		}
	}
	f, err := os.Open(req.Attachment)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := createFilePart(w, filepath.Base(req.Attachment), req.AttachmentContentType)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func createFilePart(w *multipart.Writer, filename, contentType string) (io.Writer, error) {
	if contentType == "" {
		return w.CreateFormFile("media", filename)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="media"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	return w.CreatePart(h)
}

// consume reads the final response body onto res, streaming downloads
// to the destination file.
func (b *base) consume(res *protocol.ResponseResult, resp *http.Response) error {
	defer resp.Body.Close()

	if res.Request.Routine == protocol.RoutineDownloadFile && res.Request.DestFile != "" {
		maxBytes := res.Request.MaxBodyBytes
		if maxBytes <= 0 {
			maxBytes = b.http.MaxResponseBytes()
		}
		n, err := b.http.StreamToFile(resp, res.Request.DestFile, maxBytes)
		res.FileBytes = n
		if err != nil {
			cerr := b.sizeError(err, res.URL)
			res.SetException(cerr)
			return cerr
		}
		return nil
	}

	body, err := b.http.ReadBody(resp)
	if err != nil {
		cerr := b.sizeError(err, res.URL)
		res.SetException(cerr)
		return cerr
	}
	res.Body = body
	return nil
}

func (b *base) sizeError(err error, urlStr string) error {
	if errors.Is(err, httpclient.ErrResponseTooLarge) {
		return protocol.NewConnErrorAt(protocol.StatusRequestEntityTooLarge, urlStr, "response exceeds size bound")
	}
	return protocol.Classify(err, urlStr)
}

func (b *base) sameHost(urlStr string) bool {
	h, err := hostport.FromURL(urlStr)
	if err != nil {
		return false
	}
	return h == b.originHost
}

func (b *base) logAttempt(verb protocol.Verb, urlStr string, status, hop int) {
	if !b.deps.LogNetwork {
		return
	}
	b.logger.Debug("http attempt",
		"verb", string(verb), "url", urlStr, "status", status, "hop", hop)
}

// promptAuthorize surfaces the authorization URL to the user.
func (b *base) promptAuthorize(authorizeURL string) {
	if b.deps.AuthorizePrompt != nil {
		b.deps.AuthorizePrompt(authorizeURL)
		return
	}
	b.logger.Info("authorization required, open this URL", "url", authorizeURL)
}

// resolveClient returns the client credentials for the origin,
// registering dynamically when none are on hand yet.
func (b *base) resolveClient(ctx context.Context, register func(context.Context) error) (creds.ClientCredentials, error) {
	cc, err := b.creds.Resolve(ctx, b.originHost)
	if err != nil {
		return creds.ClientCredentials{}, err
	}
	if cc.Present() {
		return cc, nil
	}
	if register == nil {
		return creds.ClientCredentials{}, protocol.NewConnError(protocol.StatusNoCredentialsForHost,
			"no client credentials for "+b.originHost)
	}
	if err := register(ctx); err != nil {
		return creds.ClientCredentials{}, err
	}
	cc, err = b.creds.Resolve(ctx, b.originHost)
	if err != nil {
		return creds.ClientCredentials{}, err
	}
	if !cc.Present() {
		return creds.ClientCredentials{}, protocol.NewConnError(protocol.StatusNoCredentialsForHost,
			"registration yielded no usable credentials for "+b.originHost)
	}
	return cc, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect:
		return true
	}
	return false
}

func resolveLocation(baseURL, location string) (string, error) {
	bu, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	lu, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return bu.ResolveReference(lu).String(), nil
}
