package link

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	eventbus "github.com/hanpama/stitchgraph/internal/eventbus"
	events "github.com/hanpama/stitchgraph/internal/events"
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 512

// HTTPLink posts GraphQL requests to one service endpoint.
type HTTPLink struct {
	uri    string
	opts   *Options
	client *http.Client
	closed atomic.Bool
}

// NewHTTP returns a link to the GraphQL endpoint at uri.
func NewHTTP(uri string, opts ...Option) *HTTPLink {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	client := o.HTTPClient
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if o.MaxIdleConnsPerHost > 0 {
			tr.MaxIdleConnsPerHost = o.MaxIdleConnsPerHost
		}
		client = &http.Client{Transport: tr}
	}
	return &HTTPLink{uri: uri, opts: o, client: client}
}

var _ Link = (*HTTPLink)(nil)

// URI returns the endpoint the link posts to.
func (l *HTTPLink) URI() string { return l.uri }

func (l *HTTPLink) Execute(ctx context.Context, req *Request) (resp *Response, err error) {
	if l.closed.Load() {
		return nil, fmt.Errorf("link: %s: closed", l.uri)
	}
	if _, ok := ctx.Deadline(); !ok && l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	status := 0
	eventbus.Publish(ctx, events.LinkStart{URI: l.uri, OperationName: req.OperationName})
	defer func() {
		eventbus.Publish(ctx, events.LinkFinish{
			URI:           l.uri,
			OperationName: req.OperationName,
			Status:        status,
			Err:           err,
			Duration:      time.Since(start),
		})
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("link: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	applyHeaders(ctx, httpReq, l.opts.Header)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/graphql-response+json, application/json")

	httpResp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("link: %s: %w", l.uri, err)
	}
	defer httpResp.Body.Close()
	status = httpResp.StatusCode

	var respBody io.Reader = httpResp.Body
	if limit := l.opts.MaxResponseBytes; limit > 0 {
		respBody = io.LimitReader(httpResp.Body, limit+1)
	}
	raw, err := io.ReadAll(respBody)
	if err != nil {
		return nil, fmt.Errorf("link: %s: read response: %w", l.uri, err)
	}
	if limit := l.opts.MaxResponseBytes; limit > 0 && int64(len(raw)) > limit {
		return nil, fmt.Errorf("link: %s: %w: more than %d bytes", l.uri, ErrResponseTooLarge, limit)
	}
	decoded, decodeErr := Decode(raw)
	if status < 200 || status > 299 {
		// GraphQL-over-HTTP servers may answer 4xx with a well-formed error list.
		if decodeErr == nil && len(decoded.Errors) > 0 {
			return decoded, nil
		}
		return nil, &StatusError{URI: l.uri, Status: status, Body: truncate(string(raw), maxErrorBody)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("link: %s: %w", l.uri, decodeErr)
	}
	return decoded, nil
}

// Close releases idle connections. Execute fails after Close.
func (l *HTTPLink) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.client.CloseIdleConnections()
	return nil
}

// Decode parses a GraphQL response body, keeping numbers as json.Number.
func Decode(raw []byte) (*Response, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Data == nil && len(resp.Errors) == 0 {
		return nil, fmt.Errorf("decode response: neither data nor errors present")
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
