package landmark

import (
	"encoding/json"
	"fmt"
	"os"

	"facetex/pkg/geometry"
)

// LoadJSON reads a landmark set from a JSON file. Two layouts are accepted:
// a bare array of [x, y, z] triples, or an object with a "points" array of
// {x, y, z} records. Both are produced by the detector frontends.
func LoadJSON(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read landmarks: %w", err)
	}
	set, err := ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse landmarks %s: %w", path, err)
	}
	return set, nil
}

// ParseJSON decodes a landmark set from raw JSON bytes.
func ParseJSON(data []byte) (*Set, error) {
	// Bare array of triples first; the most common export format.
	var triples [][]float64
	if err := json.Unmarshal(data, &triples); err == nil {
		points := make([]geometry.Point3D, 0, len(triples))
		for i, t := range triples {
			if len(t) < 2 {
				return nil, fmt.Errorf("landmark %d: need at least 2 components, got %d", i, len(t))
			}
			p := geometry.Point3D{X: t[0], Y: t[1]}
			if len(t) >= 3 {
				p.Z = t[2]
			}
			points = append(points, p)
		}
		return NewSet(points), nil
	}

	var wrapped struct {
		Points []geometry.Point3D `json:"points"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized landmark format: %w", err)
	}
	if len(wrapped.Points) == 0 {
		return nil, fmt.Errorf("landmark file contains no points")
	}
	return NewSet(wrapped.Points), nil
}
