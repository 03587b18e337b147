// Package stream adapts a completed answer into a paced sequence of fragments.
package stream

import (
	"context"
	"iter"
	"sync/atomic"
	"time"

	"github.com/effective-security/mcpagent/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent", "stream")

const (
	// DefaultChunkSize is the number of runes in a fragment
	DefaultChunkSize = 1
	// DefaultDelay is the pause between fragments
	DefaultDelay = 20 * time.Millisecond
	// DefaultFailureMessage is the only fragment of a failed query
	DefaultFailureMessage = "Sorry, streaming failed."
)

// Querier answers the query.
type Querier interface {
	Query(ctx context.Context, text string) (string, error)
}

// QuerierFunc is an adapter to allow the use of ordinary functions as Querier.
type QuerierFunc func(ctx context.Context, text string) (string, error)

// Query calls f(ctx, text)
func (f QuerierFunc) Query(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Option configures the Adapter.
type Option func(*Adapter)

// WithChunkSize sets the number of runes per fragment.
func WithChunkSize(size int) Option {
	return func(a *Adapter) {
		if size > 0 {
			a.chunkSize = size
		}
	}
}

// WithDelay sets the pause between fragments.
func WithDelay(delay time.Duration) Option {
	return func(a *Adapter) {
		if delay >= 0 {
			a.delay = delay
		}
	}
}

// WithFailureMessage sets the fragment emitted when the query fails.
func WithFailureMessage(msg string) Option {
	return func(a *Adapter) {
		if msg != "" {
			a.failure = msg
		}
	}
}

// WithName sets the name used in logs and metrics.
func WithName(name string) Option {
	return func(a *Adapter) {
		if name != "" {
			a.name = name
		}
	}
}

// Adapter streams the answers of the Querier.
type Adapter struct {
	querier   Querier
	chunkSize int
	delay     time.Duration
	failure   string
	name      string
}

// New returns the Adapter
func New(querier Querier, opts ...Option) *Adapter {
	a := &Adapter{
		querier:   querier,
		chunkSize: DefaultChunkSize,
		delay:     DefaultDelay,
		failure:   DefaultFailureMessage,
		name:      "agent",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type result struct {
	answer string
	err    error
}

// Stream runs the query in the background and yields the answer fragments.
// A failed query yields the failure message only.
// Stopping the iteration, or cancelling ctx, cancels the query.
// The sequence can be iterated once.
func (a *Adapter) Stream(ctx context.Context, query string) iter.Seq[string] {
	var used atomic.Bool
	return func(yield func(string) bool) {
		if !used.CompareAndSwap(false, true) {
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan result, 1)
		go func() {
			answer, err := a.querier.Query(ctx, query)
			done <- result{answer: answer, err: err}
		}()

		var res result
		select {
		case <-ctx.Done():
			a.cancelled(ctx, "waiting_answer")
			return
		case res = <-done:
		}

		if ctx.Err() != nil {
			a.cancelled(ctx, "waiting_answer")
			return
		}
		if res.err != nil {
			metricskey.StatsStreamFailed.IncrCounter(1, a.name)
			logger.ContextKV(ctx, xlog.WARNING,
				"agent", a.name,
				"status", "stream_failed",
				"err", res.err.Error())
			yield(a.failure)
			return
		}

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for i, fragment := range Segment(res.answer, a.chunkSize) {
			if i > 0 && a.delay > 0 {
				if timer == nil {
					timer = time.NewTimer(a.delay)
				} else {
					timer.Reset(a.delay)
				}
				select {
				case <-ctx.Done():
					a.cancelled(ctx, "streaming")
					return
				case <-timer.C:
				}
			}
			if !yield(fragment) {
				a.cancelled(ctx, "consumer_stopped")
				return
			}
		}
	}
}

func (a *Adapter) cancelled(ctx context.Context, stage string) {
	metricskey.StatsStreamCancelled.IncrCounter(1, a.name)
	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", a.name,
		"status", "stream_cancelled",
		"stage", stage)
}

// Segment splits the text into fragments of size runes.
// The last fragment may be shorter. Empty text has no fragments.
func Segment(text string, size int) []string {
	if size < 1 {
		size = 1
	}
	runes := []rune(text)
	res := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		res = append(res, string(runes[start:end]))
	}
	return res
}
