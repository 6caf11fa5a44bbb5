package collector

import (
	"context"
	"time"

	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/meter"
	"github.com/aeytom/hw2influx/sink"
	"github.com/coreos/go-systemd/daemon"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs one Loop per meter. Loops share the sink and nothing else.
type Supervisor struct {
	loops    []*Loop
	logger   *zap.Logger
	notifier Notifier
}

// LoopsFromConfig builds one loop with its own HTTP client per configured meter.
func LoopsFromConfig(meters []config.MeterConfig, w sink.Writer, logger *zap.Logger, opts ...Option) []*Loop {
	o := newOptions(opts)
	loops := make([]*Loop, 0, len(meters))
	for _, m := range meters {
		f := meter.NewFetcher(m.Name, m.Host, o.fetchTimeout)
		loops = append(loops, NewLoop(m.Name, m.PollInterval(), f, w, logger, opts...))
	}
	return loops
}

// NewSupervisor …
func NewSupervisor(loops []*Loop, logger *zap.Logger, opts ...Option) *Supervisor {
	return &Supervisor{
		loops:    loops,
		logger:   logger,
		notifier: newOptions(opts).notifier,
	}
}

// Loops returns the supervised loops.
func (s *Supervisor) Loops() []*Loop {
	return s.loops
}

// Run starts every loop and blocks until all of them have returned. A loop
// never stops its siblings; in production Run only returns after ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	var g errgroup.Group
	for _, l := range s.loops {
		s.logger.Info("starting meter loop",
			zap.String("meter", l.Name()),
			zap.String("url", l.URL()),
			zap.Duration("interval", l.Interval()),
		)
		l := l
		g.Go(func() error {
			return l.Run(ctx)
		})
	}

	wdCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go s.keepAlive(wdCtx)

	if err := s.notifier.Notify(daemon.SdNotifyReady); err != nil {
		s.logger.Warn("systemd notify failed", zap.Error(err))
	}

	err := g.Wait()
	if err := s.notifier.Notify(daemon.SdNotifyStopping); err != nil {
		s.logger.Warn("systemd notify failed", zap.Error(err))
	}
	return err
}

// keepAlive feeds the systemd watchdog at half its interval.
func (s *Supervisor) keepAlive(ctx context.Context) {
	interval := s.notifier.WatchdogInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.notifier.Notify(daemon.SdNotifyWatchdog); err != nil {
				s.logger.Warn("systemd watchdog notify failed", zap.Error(err))
			}
		}
	}
}
