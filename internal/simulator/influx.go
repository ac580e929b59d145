package simulator

import (
	"fmt"

	influxdb "github.com/influxdata/influxdb1-client/v2"

	"github.com/neurocloudstack/neurocloud-heal/internal/models"
)

// InfluxSink forwards each generated sample to an InfluxDB 1.x instance
// for long-term retention and dashboarding.
type InfluxSink struct {
	client      influxdb.Client
	database    string
	measurement string
}

// NewInfluxSink connects to the given InfluxDB address and ensures the
// target database exists.
func NewInfluxSink(addr, database string) (*InfluxSink, error) {
	client, err := influxdb.NewHTTPClient(influxdb.HTTPConfig{Addr: addr})
	if err != nil {
		return nil, fmt.Errorf("influx client: %w", err)
	}
	create := influxdb.Query{
		Command:  fmt.Sprintf("CREATE DATABASE %q", database),
		Database: "_internal",
	}
	if _, err := client.Query(create); err != nil {
		client.Close()
		return nil, fmt.Errorf("create database %q: %w", database, err)
	}
	return &InfluxSink{client: client, database: database, measurement: "system_metrics"}, nil
}

// Write publishes one sample as a single point batch.
func (s *InfluxSink) Write(sample models.MetricSample) error {
	bp, err := influxdb.NewBatchPoints(influxdb.BatchPointsConfig{
		Database:  s.database,
		Precision: "s",
	})
	if err != nil {
		return err
	}
	fields := make(map[string]interface{}, len(sample.Values))
	for name, value := range sample.Values {
		fields[name] = value
	}
	pt, err := influxdb.NewPoint(s.measurement, nil, fields, sample.Timestamp)
	if err != nil {
		return err
	}
	bp.AddPoint(pt)
	return s.client.Write(bp)
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() error { return s.client.Close() }
