package sink

import (
	"context"

	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/meter"
	influx "github.com/influxdata/influxdb1-client/v2"
	"go.uber.org/zap"
)

// DryRun logs the would-be payload instead of writing it.
type DryRun struct {
	logger *zap.Logger
	target []zap.Field
}

// NewDryRun logs against the destination of the configured sink.
func NewDryRun(cfg *config.Config, logger *zap.Logger) *DryRun {
	var target []zap.Field
	switch cfg.Sink {
	case config.SinkInfluxDB2:
		target = []zap.Field{
			zap.String("org", cfg.InfluxDB2.Org),
			zap.String("bucket", cfg.InfluxDB2.Bucket),
		}
	case config.SinkTimescale:
		target = []zap.Field{zap.String("table", cfg.Timescale.Table)}
	default:
		target = []zap.Field{
			zap.String("database", cfg.InfluxDB.Database),
			zap.String("retention_policy", cfg.InfluxDB.RetentionPolicy),
		}
	}
	return &DryRun{
		logger: logger,
		target: append([]zap.Field{zap.String("sink", cfg.Sink)}, target...),
	}
}

// Name …
func (d *DryRun) Name() string { return "dry-run" }

// Write never fails.
func (d *DryRun) Write(_ context.Context, p meter.DataPoint) error {
	payload := p.String()
	if pt, err := influx.NewPoint(p.InfluxMeasurement(), p.InfluxTags(), p.InfluxFields(), p.Time); err == nil {
		payload = pt.String()
	}
	fields := append([]zap.Field{zap.String("meter", p.Meter())}, d.target...)
	d.logger.Debug("dry run, point not written", append(fields,
		zap.String("time", p.Timestamp()),
		zap.String("payload", payload),
	)...)
	return nil
}

// Close …
func (d *DryRun) Close() error { return nil }
