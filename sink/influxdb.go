package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/meter"
	influx "github.com/influxdata/influxdb1-client/v2"
)

const pingTimeout = 5 * time.Second

// InfluxDB writes to an InfluxDB 1.x database.
type InfluxDB struct {
	client          influx.Client
	addr            string
	database        string
	retentionPolicy string
}

// NewInfluxDB creates the HTTP client. No request is made.
func NewInfluxDB(cfg config.SinkConfig) (*InfluxDB, error) {
	c, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     cfg.Addr(),
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("influxdb client: %w", err)
	}
	return &InfluxDB{
		client:          c,
		addr:            cfg.Addr(),
		database:        cfg.Database,
		retentionPolicy: cfg.RetentionPolicy,
	}, nil
}

// Name …
func (s *InfluxDB) Name() string { return "influxdb" }

// Addr …
func (s *InfluxDB) Addr() string { return s.addr }

// Ping checks the server and returns round trip time and version.
func (s *InfluxDB) Ping(timeout time.Duration) (time.Duration, string, error) {
	return s.client.Ping(timeout)
}

// Write sends p as a single point batch.
func (s *InfluxDB) Write(_ context.Context, p meter.DataPoint) error {
	bp, err := batch(p, s.database, s.retentionPolicy)
	if err != nil {
		return &WriteError{Sink: s.Name(), Meter: p.Meter(), Err: err}
	}
	if err := s.client.Write(bp); err != nil {
		return &WriteError{Sink: s.Name(), Meter: p.Meter(), Err: err}
	}
	return nil
}

// Close …
func (s *InfluxDB) Close() error {
	return s.client.Close()
}

func batch(p meter.DataPoint, database, retentionPolicy string) (influx.BatchPoints, error) {
	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:        database,
		RetentionPolicy: retentionPolicy,
	})
	if err != nil {
		return nil, err
	}
	pt, err := influx.NewPoint(p.InfluxMeasurement(), p.InfluxTags(), p.InfluxFields(), p.Time)
	if err != nil {
		return nil, err
	}
	bp.AddPoint(pt)
	return bp, nil
}
