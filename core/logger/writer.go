package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const defaultLineQueue = 512

// lineWriter fans formatted lines out to every sink from one goroutine.
// Sinks are flushed whenever the queue runs empty, so bursts are written in
// batches while a quiet logger still reaches disk promptly.
type lineWriter struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}
	stop    sync.Once
	sinks   []*bufio.Writer

	mu  sync.Mutex
	err error
}

func newLineWriter(writers []io.Writer, bufSize int) *lineWriter {
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	w := &lineWriter{
		lines:   make(chan []byte, defaultLineQueue),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *lineWriter) run() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.fail(w.flush())
				return
			}
			w.fail(w.write(line))
			if len(w.lines) == 0 {
				w.fail(w.flush())
			}
		case ack := <-w.flushes:
			w.drain()
			ack <- w.flush()
		}
	}
}

// drain writes whatever is queued without waiting for more.
func (w *lineWriter) drain() {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return
			}
			w.fail(w.write(line))
		default:
			return
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full rather than drop lines.
func (w *lineWriter) Write(p []byte) error {
	if err := w.firstErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush waits until everything queued so far reached the sinks.
func (w *lineWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return errors.Join(<-ack, w.firstErr())
	case <-w.done:
		return w.firstErr()
	}
}

// Close drains the queue and stops the writer goroutine.
func (w *lineWriter) Close() error {
	w.stop.Do(func() { close(w.lines) })
	<-w.done
	return w.firstErr()
}

func (w *lineWriter) write(p []byte) error {
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func (w *lineWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) fail(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *lineWriter) firstErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
