// Package inputs loads simulation inputs from a single YAML document.
//
// The document has four top-level sections:
//
//	run:        iterations, years, seed and policy settings (sim.RunConfig)
//	deposits:   known deposits and mines (sim.DepositRecord)
//	programs:   exploration programs (sim.ExplorationProgram)
//	scenarios:  demand scenarios (sim.DemandScenario)
//
// Parsing is strict: unknown keys are rejected so typos surface as errors.
package inputs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/minesim/minesim/sim"
)

// Document is the on-disk form of a simulation.
type Document struct {
	Run        sim.RunConfig `yaml:"run"`
	sim.Inputs `yaml:",inline"`
}

// Load reads, parses and validates the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inputs: %w", err)
	}
	doc, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a document from r and validates it. Validation errors wrap
// sim.ErrConfig; decoding errors do not.
func Parse(r io.Reader) (*Document, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, err
	}
	if err := sim.Validate(&doc.Inputs, doc.Run); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode parses a document without validating it, so callers can apply
// overrides to Run first.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing inputs: empty document")
		}
		return nil, fmt.Errorf("parsing inputs: %w", err)
	}
	return &doc, nil
}

// DecodeFile reads and decodes the document at path without validating it.
func DecodeFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading inputs: %w", err)
	}
	defer f.Close()
	doc, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
