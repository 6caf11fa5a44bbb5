// Package sink delivers data points to the time-series database.
//
// Every Writer is shared by all meter loops and must be safe for concurrent
// Write calls. A failed write is reported as *WriteError and dropped; nothing
// is queued or retried.
package sink

import (
	"context"
	"fmt"

	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/meter"
	"go.uber.org/zap"
)

// Writer delivers one data point per call.
type Writer interface {
	Write(ctx context.Context, p meter.DataPoint) error
	Name() string
	Close() error
}

// WriteError reports a point the database rejected or could not receive.
type WriteError struct {
	Sink  string
	Meter string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s point for %s: %v", e.Sink, e.Meter, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// New builds the writer selected by cfg. In dry-run mode no client is built
// and nothing leaves the process.
func New(ctx context.Context, cfg *config.Config, dryRun bool, logger *zap.Logger) (Writer, error) {
	if dryRun {
		return NewDryRun(cfg, logger), nil
	}

	switch cfg.Sink {
	case config.SinkInfluxDB:
		s, err := NewInfluxDB(cfg.InfluxDB)
		if err != nil {
			return nil, err
		}
		if rtt, version, err := s.Ping(pingTimeout); err != nil {
			logger.Warn("influxdb not reachable yet", zap.String("addr", s.Addr()), zap.Error(err))
		} else {
			logger.Info("influxdb reachable", zap.String("addr", s.Addr()), zap.String("version", version), zap.Duration("rtt", rtt))
		}
		return s, nil
	case config.SinkInfluxDB2:
		return NewInfluxDB2(cfg.InfluxDB2), nil
	case config.SinkTimescale:
		s, err := NewTimescale(ctx, cfg.Timescale)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			logger.Warn("timescale table not ensured", zap.String("table", cfg.Timescale.Table), zap.Error(err))
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}
