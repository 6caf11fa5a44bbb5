package collector

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aeytom/hw2influx/meter"
	"github.com/aeytom/hw2influx/metrics"
	"github.com/aeytom/hw2influx/sink"
	"go.uber.org/zap"
)

// Fetcher returns one reading per call.
type Fetcher interface {
	Fetch(ctx context.Context) (meter.Reading, error)
	URL() string
}

// Reporter is told the outcome of every tick.
type Reporter interface {
	Report(name string, p meter.DataPoint, err error, at time.Time)
}

// Option customises loops and the supervisor.
type Option func(*options)

type options struct {
	metrics      *metrics.Metrics
	reporter     Reporter
	now          func() time.Time
	fetchTimeout time.Duration
	notifier     Notifier
}

// WithMetrics records tick outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReporter forwards tick outcomes to r.
func WithReporter(r Reporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithClock replaces the clock used to stamp data points.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFetchTimeout overrides meter.DefaultTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) { o.fetchTimeout = d }
}

// WithNotifier replaces the systemd notifier used by the supervisor.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

func newOptions(opts []Option) options {
	o := options{
		now:          time.Now,
		fetchTimeout: meter.DefaultTimeout,
		notifier:     systemdNotifier{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Loop polls one meter forever: wait one interval, then fetch, transform and
// write. A failed tick is logged and the loop carries on.
type Loop struct {
	name     string
	interval time.Duration
	fetcher  Fetcher
	sink     sink.Writer
	logger   *zap.Logger
	opts     options

	// MaxTicks stops Run after that many ticks. 0 runs until ctx is done.
	MaxTicks int
}

// NewLoop …
func NewLoop(name string, interval time.Duration, f Fetcher, w sink.Writer, logger *zap.Logger, opts ...Option) *Loop {
	return &Loop{
		name:     name,
		interval: interval,
		fetcher:  f,
		sink:     w,
		logger:   logger.With(zap.String("meter", name)),
		opts:     newOptions(opts),
	}
}

// Name …
func (l *Loop) Name() string { return l.name }

// Interval …
func (l *Loop) Interval() time.Duration { return l.interval }

// URL returns the polled endpoint.
func (l *Loop) URL() string { return l.fetcher.URL() }

// Run blocks until ctx is done or MaxTicks ticks have run. Cancellation is
// only observed while waiting; a started tick always completes.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for n := 0; l.MaxTicks == 0 || n < l.MaxTicks; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		l.poll(context.WithoutCancel(ctx))
		timer.Reset(l.interval)
	}
	return nil
}

func (l *Loop) poll(ctx context.Context) {
	p, err := l.safeTick(ctx)
	at := l.opts.now()
	if l.opts.reporter != nil {
		l.opts.reporter.Report(l.name, p, err, at)
	}

	if err != nil {
		kind := Kind(err)
		l.opts.metrics.Failure(l.name, kind)
		fields := []zap.Field{
			zap.String("kind", kind),
			zap.String("url", l.fetcher.URL()),
			zap.Error(err),
		}
		var perr *panicError
		if errors.As(err, &perr) {
			fields = append(fields, zap.ByteString("panic_stack", perr.stack))
		}
		l.logger.Error("poll failed", fields...)
		return
	}
	l.logger.Debug("point written", zap.String("sink", l.sink.Name()), zap.Stringer("point", p))
}

func (l *Loop) safeTick(ctx context.Context) (p meter.DataPoint, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return l.Tick(ctx)
}

// panicError keeps the stack of the frame that panicked.
type panicError struct {
	value interface{}
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("tick panicked: %v", e.value)
}

// Tick runs one fetch, transform and write. On a sink failure the point that
// could not be written is returned together with the error.
func (l *Loop) Tick(ctx context.Context) (meter.DataPoint, error) {
	l.opts.metrics.Tick(l.name)

	r, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return meter.DataPoint{}, err
	}

	p := meter.NewDataPoint(l.name, r, l.opts.now())

	start := time.Now()
	err = l.sink.Write(ctx, p)
	l.opts.metrics.ObserveSink(l.sink.Name(), time.Since(start))
	if err != nil {
		return p, err
	}

	l.opts.metrics.Written(l.name, p.Time)
	return p, nil
}

// Kind classifies a tick error for logs and metrics.
func Kind(err error) string {
	var (
		fetchErr      *meter.FetchError
		validationErr *meter.ValidationError
		writeErr      *sink.WriteError
	)
	switch {
	case errors.As(err, &fetchErr):
		return metrics.KindFetch
	case errors.As(err, &validationErr):
		return metrics.KindValidation
	case errors.As(err, &writeErr):
		return metrics.KindSink
	default:
		return metrics.KindOther
	}
}
