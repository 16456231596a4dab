package export

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/minesim/minesim/sim/stats"
)

// Measurement is the InfluxDB measurement holding statistics rows.
const Measurement = "minesim_statistics"

// influxBatchSize bounds the points sent per write request.
const influxBatchSize = 500

// InfluxConfig locates an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Enabled reports whether a server URL is configured.
func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// InfluxWriter writes statistics tables to InfluxDB.
type InfluxWriter struct {
	client influxdb2.Client
	api    api.WriteAPIBlocking
}

// NewInfluxWriter creates a writer for cfg. No connection is made until Write.
func NewInfluxWriter(cfg InfluxConfig) (*InfluxWriter, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx: url, org and bucket are required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxWriter{client: client, api: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}, nil
}

// Write sends every row of table as a point tagged with runID.
func (w *InfluxWriter) Write(ctx context.Context, runID string, table stats.Table) error {
	points := Points(runID, table)
	for start := 0; start < len(points); start += influxBatchSize {
		end := min(start+influxBatchSize, len(points))
		if err := w.api.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("influx: writing points %d-%d: %w", start, end, err)
		}
	}
	logrus.Infof("influx: wrote %d points for run %s", len(points), runID)
	return nil
}

// Close releases the client.
func (w *InfluxWriter) Close() {
	w.client.Close()
}

// Points converts table rows to points: tags scenario, metric, commodity and
// run_id; fields count, mean, std_dev, min, max and one per percentile;
// timestamp January 1 of the row's year (UTC).
func Points(runID string, table stats.Table) []*write.Point {
	points := make([]*write.Point, 0, len(table.Rows))
	for _, r := range table.Rows {
		tags := map[string]string{
			"scenario": r.Scenario,
			"metric":   string(r.Metric),
			"run_id":   runID,
		}
		if r.Commodity != "" {
			tags["commodity"] = r.Commodity
		}
		fields := map[string]interface{}{
			"count":   r.Count,
			"mean":    r.Mean,
			"std_dev": r.StdDev,
			"min":     r.Min,
			"max":     r.Max,
		}
		for i, p := range table.Percentiles {
			if i < len(r.Percentiles) {
				fields[PercentileField(p)] = r.Percentiles[i]
			}
		}
		points = append(points, influxdb2.NewPoint(Measurement, tags, fields, YearTimestamp(r.Year)))
	}
	return points
}

// YearTimestamp returns January 1 of year, UTC.
func YearTimestamp(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}
