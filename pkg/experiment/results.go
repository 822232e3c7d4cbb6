package experiment

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"denoisebench/internal/models"
)

// Number is a float64 that encodes non-finite values as JSON null and
// decodes null back to NaN
type Number float64

// MarshalJSON implements json.Marshaler
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Number(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", data, err)
	}
	*n = Number(f)
	return nil
}

// Record is the JSON form of one result
type Record struct {
	Replacement     bool     `json:"replacement"`
	CoupledSubset   bool     `json:"coupled_subset"`
	Projection      string   `json:"projection"`
	Reduction       Number   `json:"reduction"`
	MaskedObjective bool     `json:"masked_objective"`
	FullB           bool     `json:"full_B"`
	Iter            []int    `json:"iter"`
	Times           []Number `json:"times"`
	Obj             []Number `json:"obj"`
}

// NewRecord converts a result to its JSON form
func NewRecord(r models.Result) Record {
	iter := r.Trace.Iter
	if iter == nil {
		iter = []int{}
	}
	return Record{
		Replacement:     r.Config.Replacement,
		CoupledSubset:   r.Config.CoupledSubset,
		Projection:      r.Config.Projection,
		Reduction:       Number(r.Config.Reduction),
		MaskedObjective: r.Config.MaskedObjective,
		FullB:           r.Config.FullB,
		Iter:            iter,
		Times:           toNumbers(r.Trace.Times),
		Obj:             toNumbers(r.Trace.Obj),
	}
}

func toNumbers(values []float64) []Number {
	out := make([]Number, len(values))
	for i, v := range values {
		out[i] = Number(v)
	}
	return out
}

// Floats returns the values as plain float64
func Floats(values []Number) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// WriteResults writes the results as a JSON array, replacing any existing file
func WriteResults(path string, results []models.Result) error {
	records := make([]Record, len(results))
	for i, r := range results {
		records[i] = NewRecord(r)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

// ReadResults loads a file written by WriteResults
func ReadResults(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return records, nil
}
