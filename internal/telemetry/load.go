package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ReadBatch decodes a telemetry batch document
func ReadBatch(r io.Reader) (Batch, error) {
	var b Batch
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return Batch{}, fmt.Errorf("decoding telemetry batch: %w", err)
	}
	return b, nil
}

// LoadBatch reads a telemetry batch from a JSON file, or stdin when path is "-"
func LoadBatch(path string) (Batch, error) {
	if path == "-" {
		return ReadBatch(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("opening telemetry file: %w", err)
	}
	defer f.Close()
	return ReadBatch(f)
}

// Merge appends other's records to b
func (b Batch) Merge(other Batch) Batch {
	return Batch{
		Services: append(append([]DetectedService(nil), b.Services...), other.Services...),
		Events:   append(append([]Event(nil), b.Events...), other.Events...),
	}
}

// LoadAll reads every telemetry batch file and HAR capture into one batch
func LoadAll(batchPaths, harPaths []string) (Batch, error) {
	var all Batch
	for _, p := range batchPaths {
		b, err := LoadBatch(p)
		if err != nil {
			return Batch{}, fmt.Errorf("%s: %w", p, err)
		}
		all = all.Merge(b)
	}
	for _, p := range harPaths {
		h, err := LoadHAR(p)
		if err != nil {
			return Batch{}, fmt.Errorf("%s: %w", p, err)
		}
		all = all.Merge(Batch{Events: FromHAR(h)})
	}
	return all, nil
}
