package link

import (
	"net/http"
	"time"
)

// Options configures an HTTPLink.
//
// Defaults:
//   - Timeout:             10s (used only if the incoming context has no deadline)
//   - MaxIdleConnsPerHost: 16
//   - MaxResponseBytes:    16 MiB (zero or negative means unbounded)
//   - HTTPClient:          a dedicated client with its own transport
//
// All options are safe to leave zero-valued to use defaults.
type Options struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
	MaxResponseBytes    int64
	HTTPClient          *http.Client
	Header              http.Header
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Timeout:             10 * time.Second,
		MaxIdleConnsPerHost: 16,
		MaxResponseBytes:    16 << 20,
		Header:              http.Header{},
	}
}

func WithTimeout(d time.Duration) Option   { return func(o *Options) { o.Timeout = d } }
func WithHTTPClient(c *http.Client) Option { return func(o *Options) { o.HTTPClient = c } }
func WithMaxIdleConnsPerHost(n int) Option { return func(o *Options) { o.MaxIdleConnsPerHost = n } }
func WithHeader(key, value string) Option  { return func(o *Options) { o.Header.Add(key, value) } }
func WithMaxResponseBytes(n int64) Option  { return func(o *Options) { o.MaxResponseBytes = n } }
