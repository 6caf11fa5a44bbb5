package sink

import (
	"context"

	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/meter"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxDB2 writes to an InfluxDB 2.x bucket, one blocking request per point.
type InfluxDB2 struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxDB2 …
func NewInfluxDB2(cfg config.Influx2Config) *InfluxDB2 {
	c := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxDB2{
		client:   c,
		writeAPI: c.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// Name …
func (s *InfluxDB2) Name() string { return "influxdb2" }

// Write …
func (s *InfluxDB2) Write(ctx context.Context, p meter.DataPoint) error {
	point := influxdb2.NewPoint(p.InfluxMeasurement(), p.InfluxTags(), p.InfluxFields(), p.Time)
	if err := s.writeAPI.WritePoint(ctx, point); err != nil {
		return &WriteError{Sink: s.Name(), Meter: p.Meter(), Err: err}
	}
	return nil
}

// Close …
func (s *InfluxDB2) Close() error {
	s.client.Close()
	return nil
}
