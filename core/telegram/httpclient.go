package telegram

import (
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/volunteerbot/core/telegram/netutil"
)

// HTTPClientOptions tunes the client used for Bot API calls. Zero values pick defaults.
type HTTPClientOptions struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	// LongPollTimeout is added to the client timeout so getUpdates is not cut short.
	LongPollTimeout time.Duration
}

// BuildHTTPClient returns a client with bounded dial and handshake times that
// retries requests which failed before any response arrived.
func BuildHTTPClient(opts HTTPClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   opts.Timeout + opts.LongPollTimeout,
		Transport: &retryTransport{base: base, maxRetries: opts.Retries, backoff: opts.RetryBackoff},
	}
}

// retryTransport repeats requests that failed before a response arrived.
// Requests whose body cannot be rewound are sent once.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	limit := t.maxRetries + 1
	if req.Body != nil && req.GetBody == nil {
		limit = 1
	}

	for attempt := 1; ; attempt++ {
		resp, err := base.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		if attempt == limit || !netutil.ShouldRetry(err) {
			return nil, err
		}
		if err := netutil.Wait(req.Context(), t.backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
		if req, err = rewind(req); err != nil {
			return nil, err
		}
	}
}

// rewind clones req with a fresh body for another attempt.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		next.Body = body
	}
	return next, nil
}
