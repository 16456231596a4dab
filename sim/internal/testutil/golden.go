// Package testutil provides shared test infrastructure for the minesim
// packages: golden supply datasets, fixture paths and assertion helpers.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is one deterministic run: a fixture file, the scenario to
// run and the expected per-year balances of iteration 0.
type GoldenTestCase struct {
	Name     string       `json:"name"`
	Fixture  string       `json:"fixture"`
	Scenario string       `json:"scenario"`
	Years    []GoldenYear `json:"years"`
}

// GoldenYear is the expected balance of one commodity in one year.
type GoldenYear struct {
	Year       int     `json:"year"`
	Commodity  string  `json:"commodity"`
	Demand     float64 `json:"demand"`
	Supply     float64 `json:"supply"`
	Unmet      float64 `json:"unmet"`
	Oversupply float64 `json:"oversupply"`
	Operating  int     `json:"operating"`
	Depleted   int     `json:"depleted"`
}

// repoRoot resolves the repository root relative to this source file:
// sim/internal/testutil/ → ../../..
func repoRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..")
}

// FixturePath returns the absolute path of testdata/<name>.
func FixturePath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(repoRoot(t), "testdata", name)
}

// LoadGoldenDataset loads testdata/goldendataset.json.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()
	data, err := os.ReadFile(FixturePath(t, "goldendataset.json"))
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
