package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/minesim/minesim/sim"
	"github.com/minesim/minesim/sim/ensemble"
	"github.com/minesim/minesim/sim/inputs"
	"github.com/minesim/minesim/sim/internal/testutil"
	"github.com/minesim/minesim/sim/stats"
)

func sampleTable() stats.Table {
	return stats.Table{
		Percentiles: []float64{5, 50, 95},
		Rows: []stats.Summary{
			{
				Key:         stats.Key{Scenario: "flat", Year: 2025, Metric: stats.MetricSupply, Commodity: "Cu"},
				Count:       3,
				Mean:        100,
				StdDev:      2.5,
				Min:         97,
				Max:         103,
				Percentiles: []float64{97.3, 100, 102.7},
			},
			{
				Key:         stats.Key{Scenario: "flat", Year: 2025, Metric: stats.MetricOperating},
				Count:       3,
				Mean:        1,
				Min:         1,
				Max:         1,
				Percentiles: []float64{1, 1, 1},
			},
		},
	}
}

func readCSV(t *testing.T, r io.Reader) [][]string {
	t.Helper()
	rows, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteStatisticsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatisticsCSV(&buf, sampleTable()))

	rows := readCSV(t, &buf)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"scenario", "metric", "commodity", "year", "count", "mean", "std_dev", "min", "max", "p5", "p50", "p95"}, rows[0])
	assert.Equal(t, []string{"flat", "supply", "Cu", "2025", "3", "100", "2.5", "97", "103", "97.3", "100", "102.7"}, rows[1])
	assert.Equal(t, "", rows[2][2], "system-wide metrics have no commodity")
}

func TestPercentileField(t *testing.T) {
	assert.Equal(t, "p5", PercentileField(5))
	assert.Equal(t, "p97.5", PercentileField(97.5))
}

func TestWriteYearResultsCSV_SkipsFailedOutcomes(t *testing.T) {
	// GIVEN one successful and one failed outcome
	doc, err := inputs.Load(testutil.FixturePath(t, "single_mine.yaml"))
	require.NoError(t, err)
	scenario, _ := doc.Scenario("flat-150")
	ok, err := sim.RunIteration(context.Background(), &doc.Inputs, doc.Run, scenario, 0, nil)
	require.NoError(t, err)
	failed := sim.IterationOutcome{Scenario: "flat-150", Iteration: 1, Err: sim.ErrNumericState}

	// WHEN the year results are written
	var buf bytes.Buffer
	require.NoError(t, WriteYearResultsCSV(&buf, []sim.IterationOutcome{failed, ok}))

	// THEN only the successful iteration appears, with exact balances
	rows := readCSV(t, &buf)
	require.Len(t, rows, 1+10)
	assert.Equal(t, yearResultColumns, rows[0])
	assert.Equal(t, []string{"flat-150", "0", "2025", "Cu", "150", "100", "50", "0"}, rows[1])
}

func TestWriteTransitionsCSV(t *testing.T) {
	doc, err := inputs.Load(testutil.FixturePath(t, "single_mine.yaml"))
	require.NoError(t, err)
	scenario, _ := doc.Scenario("flat-100")
	o, err := sim.RunIteration(context.Background(), &doc.Inputs, doc.Run, scenario, 0, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTransitionsCSV(&buf, []sim.IterationOutcome{o}))

	rows := readCSV(t, &buf)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"flat-100", "0", "2034", "M1", "operating", "depleted", "resource exhausted"}, rows[1])
}

func TestPoints(t *testing.T) {
	// GIVEN a statistics table
	points := Points("run-1", sampleTable())

	// THEN each row becomes a point at January 1 of its year
	require.Len(t, points, 2)
	line := write.PointToLineProtocol(points[0], time.Second)
	assert.True(t, strings.HasPrefix(line, "minesim_statistics,commodity=Cu,metric=supply,run_id=run-1,scenario=flat "), line)
	for _, field := range []string{"mean=100", "std_dev=2.5", "min=97", "max=103", "p5=97.3", "p50=100", "p95=102.7", "count=3i"} {
		assert.Contains(t, line, field)
	}
	assert.Contains(t, line, " 1735689600")

	line = write.PointToLineProtocol(points[1], time.Second)
	assert.NotContains(t, line, "commodity=")
}

func TestYearTimestamp(t *testing.T) {
	ts := YearTimestamp(2030)
	assert.Equal(t, 2030, ts.Year())
	assert.Equal(t, time.January, ts.Month())
	assert.Equal(t, 1, ts.Day())
	assert.Equal(t, time.UTC, ts.Location())
}

func TestNewInfluxWriter_RequiresLocation(t *testing.T) {
	_, err := NewInfluxWriter(InfluxConfig{URL: "http://localhost:8086"})
	assert.Error(t, err)
	assert.False(t, InfluxConfig{}.Enabled())
}

func TestInfluxWriter_WritesLineProtocol(t *testing.T) {
	// GIVEN a fake InfluxDB write endpoint
	var mu sync.Mutex
	var bodies []string
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		query = r.URL.RawQuery
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w, err := NewInfluxWriter(InfluxConfig{URL: srv.URL, Token: "t", Org: "mining", Bucket: "supply"})
	require.NoError(t, err)
	defer w.Close()

	// WHEN a table is written
	require.NoError(t, w.Write(context.Background(), "run-1", sampleTable()))

	// THEN both points reach the bucket
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(bodies[0]), "\n")+1)
	assert.Contains(t, bodies[0], "minesim_statistics,")
	assert.Contains(t, query, "bucket=supply")
	assert.Contains(t, query, "org=mining")
}

func TestWriteReport(t *testing.T) {
	// GIVEN a finished run
	doc, err := inputs.Load(testutil.FixturePath(t, "single_mine.yaml"))
	require.NoError(t, err)
	r, err := ensemble.NewRunner(&doc.Inputs, doc.Run, ensemble.WithRunID("run-42"), ensemble.WithWorkers(2))
	require.NoError(t, err)
	report, err := r.Run(context.Background())
	require.NoError(t, err)

	// WHEN it is exported
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, WriteReport(dir, report, doc.Run))

	// THEN the header and all tables exist
	data, err := os.ReadFile(filepath.Join(dir, RunHeaderFile))
	require.NoError(t, err)
	var header RunHeader
	require.NoError(t, yaml.Unmarshal(data, &header))
	assert.Equal(t, "run-42", header.RunID)
	require.Len(t, header.Scenarios, 2)
	assert.Equal(t, ScenarioHeader{Name: "flat-100", Completed: 4}, header.Scenarios[0])

	f, err := os.Open(filepath.Join(dir, YearResultsFile))
	require.NoError(t, err)
	defer f.Close()
	rows := readCSV(t, f)
	assert.Len(t, rows, 1+2*4*10)

	for _, name := range []string{StatisticsFile, TransitionsFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}
