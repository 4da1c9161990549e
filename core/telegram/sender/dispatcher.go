package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/volunteerbot/core/logger"
	"github.com/m3rciful/volunteerbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when no slot is free.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher runs outbound Telegram calls on a fixed worker pool, retrying
// transient failures with linear backoff or the delay Telegram asks for.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	closed bool
	mu     sync.RWMutex
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts opts.Workers workers. Zero options take defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, jobs: make(chan job, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.process(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. run may be called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs and waits until the queued ones are done.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) process(j job) {
	start := time.Now()
	attrs := sendLogAttrs(j.ctx, j)
	logger.Debug(j.ctx, logger.ComponentSender, "send.start", attrs...)

	attempts, err := d.deliver(j)
	attrs = append(attrs,
		slog.Int("attempts", attempts),
		slog.Int("elapsed_ms", durationToMS(time.Since(start))),
	)
	if err != nil {
		d.errs.Add(1)
		logger.Error(j.ctx, logger.ComponentSender, "send.fail", append(attrs,
			slog.String("error", sanitizeErrorMessage(err)),
			slog.String("error_kind", classifyError(err)),
		)...)
		return
	}
	if attempts > 1 {
		logger.Info(j.ctx, logger.ComponentSender, "send.retry.success", attrs...)
		return
	}
	logger.Debug(j.ctx, logger.ComponentSender, "send.success", attrs...)
}

// deliver calls j.run until it succeeds, fails permanently or runs out of
// attempts or time. It returns how many calls were made.
func (d *Dispatcher) deliver(j job) (int, error) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	limit := d.opts.MaxRetries + 1
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := j.run()
		if err == nil {
			return attempt, nil
		}
		if attempt == limit || !netutil.ShouldRetry(err) {
			return attempt, err
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		if wait, ok := netutil.RetryAfter(err); ok {
			delay = wait
		}
		logger.Debug(j.ctx, logger.ComponentSender, "send.retry.backoff", append(sendLogAttrs(j.ctx, j),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)...)
		if err := netutil.Wait(ctx, delay); err != nil {
			return attempt, err
		}
	}
}

func sendLogAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return append(attrs, logger.MetaFrom(ctx).Attrs()...)
}

func durationToMS(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(logger.RoundMS(d) / time.Millisecond)
}

// classifyError buckets err for the error_kind log field.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
		netErr net.Error
		tlsErr tls.AlertError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return "dial"
	case errors.As(err, &tlsErr):
		return "tls"
	}

	switch code := statusCode(err); {
	case code >= 500:
		return "http_5xx"
	case code >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// statusCode recovers the HTTP status behind a Telegram API error. Errors
// telebot does not type carry it as a trailing "(code)".
func statusCode(err error) int {
	var (
		apiErr   *tele.Error
		floodErr tele.FloodError
		groupErr tele.GroupError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &floodErr):
		return http.StatusTooManyRequests
	case errors.As(err, &groupErr):
		return http.StatusBadRequest
	}

	msg := strings.TrimSpace(err.Error())
	open := strings.LastIndexByte(msg, '(')
	if open < 0 || !strings.HasSuffix(msg, ")") {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : len(msg)-1]))
	if convErr != nil {
		return 0
	}
	return code
}

// sanitizeErrorMessage masks bot tokens that leak into request URLs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
