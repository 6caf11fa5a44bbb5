package sink

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/meter"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func kitchenPoint() meter.DataPoint {
	r := meter.Reading{
		WifiStrength:        -50,
		TotalPowerImportKWh: 120.5,
		TotalPowerExportKWh: 0,
		ActivePowerW:        450.2,
		ActivePowerL1W:      150.0,
		ActivePowerL2W:      150.1,
		ActivePowerL3W:      150.1,
	}
	return meter.NewDataPoint("kitchen", r, time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC))
}

type influxRequest struct {
	path  string
	query map[string]string
	body  string
}

func influxServer(t *testing.T, status int) (*httptest.Server, config.SinkConfig, func() []influxRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []influxRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		q := map[string]string{}
		for k := range r.URL.Query() {
			q[k] = r.URL.Query().Get(k)
		}
		mu.Lock()
		reqs = append(reqs, influxRequest{path: r.URL.Path, query: q, body: string(body)})
		mu.Unlock()
		if r.URL.Path == "/ping" {
			w.Header().Set("X-Influxdb-Version", "1.8.10")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(status)
		if status >= 300 {
			w.Write([]byte(`{"error":"database not found: \"energy\""}`))
		}
	}))
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	p, _ := strconv.Atoi(port)
	cfg := config.SinkConfig{Host: host, Port: p, Database: "energy", RetentionPolicy: "one_year"}

	return srv, cfg, func() []influxRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]influxRequest(nil), reqs...)
	}
}

func TestInfluxDBWrite(t *testing.T) {
	_, cfg, requests := influxServer(t, http.StatusNoContent)

	s, err := NewInfluxDB(cfg)
	if err != nil {
		t.Fatalf("new influxdb: %v", err)
	}
	defer s.Close()

	if err := s.Write(context.Background(), kitchenPoint()); err != nil {
		t.Fatalf("write: %v", err)
	}

	reqs := requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.path != "/write" {
		t.Fatalf("expected /write, got %s", req.path)
	}
	if req.query["db"] != "energy" || req.query["rp"] != "one_year" {
		t.Fatalf("unexpected query %v", req.query)
	}

	lines := strings.Split(strings.TrimSpace(req.body), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one point per write, got %d", len(lines))
	}
	for _, want := range []string{
		"energy_consumption,meter=kitchen ",
		"wifi_strength=-50i",
		"total_power_import_kwh=120.5",
		"total_power_export_kwh=0",
		"active_power_w=450.2",
		"active_power_l1_w=150",
		"active_power_l2_w=150.1",
		"active_power_l3_w=150.1",
		" 1717245000000000000",
	} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("line %q does not contain %q", lines[0], want)
		}
	}
}

func TestInfluxDBWriteRejected(t *testing.T) {
	_, cfg, _ := influxServer(t, http.StatusNotFound)

	s, err := NewInfluxDB(cfg)
	if err != nil {
		t.Fatalf("new influxdb: %v", err)
	}
	err = s.Write(context.Background(), kitchenPoint())
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
	if werr.Sink != "influxdb" || werr.Meter != "kitchen" {
		t.Fatalf("unexpected write error %+v", werr)
	}
}

func TestInfluxDBUnreachable(t *testing.T) {
	srv, cfg, _ := influxServer(t, http.StatusNoContent)
	srv.Close()

	s, err := NewInfluxDB(cfg)
	if err != nil {
		t.Fatalf("new influxdb: %v", err)
	}
	var werr *WriteError
	if err := s.Write(context.Background(), kitchenPoint()); !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
}

func TestInfluxDBPing(t *testing.T) {
	_, cfg, _ := influxServer(t, http.StatusNoContent)

	s, err := NewInfluxDB(cfg)
	if err != nil {
		t.Fatalf("new influxdb: %v", err)
	}
	_, version, err := s.Ping(time.Second)
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if version != "1.8.10" {
		t.Fatalf("unexpected version %q", version)
	}
}

func TestInfluxDB2Write(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
		org  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body, org = r.URL.Path, string(b), r.URL.Query().Get("org")
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewInfluxDB2(config.Influx2Config{URL: srv.URL, Org: "primary", Bucket: "energy", Token: "secret"})
	defer s.Close()

	if err := s.Write(context.Background(), kitchenPoint()); err != nil {
		t.Fatalf("write: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/api/v2/write" || org != "primary" {
		t.Fatalf("unexpected request %s org=%s", path, org)
	}
	if !strings.Contains(body, "energy_consumption,meter=kitchen ") || !strings.Contains(body, "wifi_strength=-50i") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestInfluxDB2WriteRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"invalid","message":"bucket not found"}`))
	}))
	defer srv.Close()

	s := NewInfluxDB2(config.Influx2Config{URL: srv.URL, Org: "primary", Bucket: "energy"})
	defer s.Close()

	var werr *WriteError
	if err := s.Write(context.Background(), kitchenPoint()); !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
}

type fakeExec struct {
	mu   sync.Mutex
	sql  []string
	args [][]any
	fail error
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	if f.fail != nil {
		return pgconn.CommandTag{}, f.fail
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestTimescaleWrite(t *testing.T) {
	db := &fakeExec{}
	s := newTimescale(db, "metrics.energy_consumption")

	p := kitchenPoint()
	if err := s.Write(context.Background(), p); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := `INSERT INTO "metrics"."energy_consumption" (time, measurement, meter, fields) VALUES ($1, $2, $3, $4)`
	if len(db.sql) != 1 || db.sql[0] != want {
		t.Fatalf("unexpected sql %v", db.sql)
	}
	args := db.args[0]
	if !args[0].(time.Time).Equal(p.Time) || args[1] != "energy_consumption" || args[2] != "kitchen" {
		t.Fatalf("unexpected args %v", args)
	}
	if !strings.Contains(string(args[3].([]byte)), `"wifi_strength":-50`) {
		t.Fatalf("unexpected fields json %s", args[3])
	}
}

func TestTimescaleWriteFails(t *testing.T) {
	s := newTimescale(&fakeExec{fail: errors.New("connection refused")}, "energy_consumption")
	var werr *WriteError
	if err := s.Write(context.Background(), kitchenPoint()); !errors.As(err, &werr) {
		t.Fatalf("expected *WriteError, got %v", err)
	}
}

func TestTimescaleMigrate(t *testing.T) {
	db := &fakeExec{}
	if err := newTimescale(db, "energy_consumption").Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.HasPrefix(db.sql[0], `CREATE TABLE IF NOT EXISTS "energy_consumption"`) {
		t.Fatalf("unexpected ddl %s", db.sql[0])
	}
}

func TestDryRunLogsWithoutNetwork(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cfg := &config.Config{Sink: config.SinkInfluxDB, InfluxDB: config.SinkConfig{Database: "energy", RetentionPolicy: "one_year"}}
	d := NewDryRun(cfg, zap.New(core))

	if err := d.Write(context.Background(), kitchenPoint()); err != nil {
		t.Fatalf("dry run write must not fail: %v", err)
	}

	entries := logs.FilterMessage("dry run, point not written").All()
	if len(entries) != 1 {
		t.Fatalf("expected one dry run log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %s", e.Level)
	}
	fields := e.ContextMap()
	if fields["meter"] != "kitchen" || fields["database"] != "energy" || fields["retention_policy"] != "one_year" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if !strings.HasPrefix(fields["payload"].(string), "energy_consumption,meter=kitchen ") {
		t.Fatalf("unexpected payload %v", fields["payload"])
	}
}

func TestDryRunNamesSelectedSink(t *testing.T) {
	cases := []struct {
		cfg  *config.Config
		want map[string]interface{}
	}{
		{
			&config.Config{Sink: config.SinkInfluxDB2, InfluxDB: config.SinkConfig{Database: "energy"}, InfluxDB2: config.Influx2Config{Org: "home", Bucket: "power"}},
			map[string]interface{}{"sink": config.SinkInfluxDB2, "org": "home", "bucket": "power"},
		},
		{
			&config.Config{Sink: config.SinkTimescale, InfluxDB: config.SinkConfig{Database: "energy"}, Timescale: config.TimescaleConfig{Table: "energy_consumption"}},
			map[string]interface{}{"sink": config.SinkTimescale, "table": "energy_consumption"},
		},
	}
	for _, tc := range cases {
		core, logs := observer.New(zapcore.DebugLevel)
		if err := NewDryRun(tc.cfg, zap.New(core)).Write(context.Background(), kitchenPoint()); err != nil {
			t.Fatalf("%s: dry run write must not fail: %v", tc.cfg.Sink, err)
		}
		fields := logs.All()[0].ContextMap()
		for k, v := range tc.want {
			if fields[k] != v {
				t.Fatalf("%s: expected %s=%v, got %v", tc.cfg.Sink, k, v, fields)
			}
		}
		if _, ok := fields["database"]; ok {
			t.Fatalf("%s: influxdb database logged for another sink: %v", tc.cfg.Sink, fields)
		}
	}
}

func TestNewDryRunIgnoresSinkKind(t *testing.T) {
	cfg := &config.Config{Sink: config.SinkTimescale, Timescale: config.TimescaleConfig{ConnString: "postgres://unused"}}
	w, err := New(context.Background(), cfg, true, zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := w.(*DryRun); !ok {
		t.Fatalf("expected *DryRun, got %T", w)
	}
}
