// Package landmark holds detected facial landmark sets. Detection itself is
// an external collaborator; this package only models its output: an array of
// 3D points with X/Y normalized to image space.
package landmark

import (
	"math"

	"facetex/pkg/geometry"
)

// NumPoints is the point count of a full MediaPipe Face Mesh detection.
// The mesh template's embedding table addresses landmarks by index, so
// shorter sets still work; Complete flags them for diagnostics.
const NumPoints = 468

// Set is one detector output for one photo. Points may contain NaN or
// out-of-frame coordinates; consumers filter through Valid.
type Set struct {
	Points []geometry.Point3D
}

// plausible bounds for normalized image coordinates; detections slightly
// outside the frame are kept, garbage far outside is not.
const (
	coordMin = -0.5
	coordMax = 1.5
)

// NewSet wraps a point slice in a Set.
func NewSet(points []geometry.Point3D) *Set {
	return &Set{Points: points}
}

// Len returns the number of points in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Valid reports whether the landmark at index i exists, is finite, and has
// image coordinates within plausible bounds.
func (s *Set) Valid(i int) bool {
	if s == nil || i < 0 || i >= len(s.Points) {
		return false
	}
	p := s.Points[i]
	if !p.IsFinite() {
		return false
	}
	return p.X >= coordMin && p.X <= coordMax &&
		p.Y >= coordMin && p.Y <= coordMax
}

// ValidCount returns the number of valid landmarks.
func (s *Set) ValidCount() int {
	count := 0
	for i := range s.Points {
		if s.Valid(i) {
			count++
		}
	}
	return count
}

// Complete reports whether the set carries a full detector output.
func (s *Set) Complete() bool {
	return s.Len() >= NumPoints
}

// ImagePoint returns the 2D image-space coordinates of landmark i.
func (s *Set) ImagePoint(i int) geometry.Point2D {
	p := s.Points[i]
	return geometry.Point2D{X: p.X, Y: p.Y}
}

// Bounds returns the bounding rectangle of all valid landmarks in
// normalized image space. ok is false when no landmark is valid.
func (s *Set) Bounds() (geometry.Rect, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := false
	for i := range s.Points {
		if !s.Valid(i) {
			continue
		}
		p := s.Points[i]
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
		found = true
	}
	if !found {
		return geometry.Rect{}, false
	}
	return geometry.NewRect(minX, minY, maxX-minX, maxY-minY), true
}
