package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/adrfem/internal/canonical"
)

// marshalValues converts nodal values to canonical JSON TEXT for storage.
// Canonical form keeps the stored text stable for identical solutions.
func marshalValues(u []float64) (string, error) {
	if u == nil {
		u = []float64{}
	}
	data, err := canonical.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

// unmarshalValues parses stored nodal values. ECMAScript number formatting
// round-trips exactly through strconv.
func unmarshalValues(data string) ([]float64, error) {
	var u []float64
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	if u == nil {
		u = []float64{}
	}
	return u, nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s.String, err)
	}
	return t, nil
}
