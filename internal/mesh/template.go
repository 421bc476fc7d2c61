// Package mesh holds the fixed-topology face mesh template: vertex
// positions, triangle lists, UV parameterization, the linear shape basis,
// and the landmark embedding table. A Template is loaded once and shared
// read-only by every pipeline invocation.
package mesh

import (
	"fmt"
	"image"

	"facetex/pkg/geometry"
)

// Template is the parametric mesh template. All slices are immutable after
// load; pipeline invocations reference the same Template concurrently.
type Template struct {
	// Vertices holds the neutral (template) vertex positions.
	Vertices []geometry.Point3D
	// Faces indexes Vertices, three corners per triangle.
	Faces [][3]int

	// UV holds texture coordinates. UV space has its own vertex list:
	// seams require several UV vertices per position vertex.
	UV []geometry.Point2D
	// UVFaces indexes UV, parallel to Faces.
	UVFaces [][3]int

	// ShapeBasis holds the linear shape/expression basis, flattened as
	// (vertex*3 + axis)*ComponentCount + component. Empty when the
	// template carries no basis.
	ShapeBasis []float64
	// ComponentCount is the number of basis components.
	ComponentCount int

	// Embedding maps landmark indices onto mesh faces with fixed
	// barycentric weights.
	Embedding []EmbeddingEntry

	// Albedo is the optional mean albedo texture used as fallback fill.
	Albedo *image.RGBA

	// uvToPos maps each UV vertex index to the position vertex it
	// duplicates. Built once by BuildUVVertexMap.
	uvToPos []int
}

// EmbeddingEntry anchors one detected landmark to a point on the mesh
// surface: a face index plus fixed barycentric weights over its corners.
type EmbeddingEntry struct {
	Landmark int
	Face     int
	Weights  [3]float64
}

// Validate checks the index lists for internal consistency.
func (t *Template) Validate() error {
	if len(t.Vertices) == 0 {
		return fmt.Errorf("template has no vertices")
	}
	if len(t.Faces) == 0 {
		return fmt.Errorf("template has no faces")
	}
	if len(t.UVFaces) != 0 && len(t.UVFaces) != len(t.Faces) {
		return fmt.Errorf("uv face count %d != face count %d", len(t.UVFaces), len(t.Faces))
	}
	for i, f := range t.Faces {
		for _, v := range f {
			if v < 0 || v >= len(t.Vertices) {
				return fmt.Errorf("face %d references vertex %d of %d", i, v, len(t.Vertices))
			}
		}
	}
	for i, f := range t.UVFaces {
		for _, v := range f {
			if v < 0 || v >= len(t.UV) {
				return fmt.Errorf("uv face %d references uv vertex %d of %d", i, v, len(t.UV))
			}
		}
	}
	if t.ComponentCount > 0 {
		want := len(t.Vertices) * 3 * t.ComponentCount
		if len(t.ShapeBasis) != want {
			return fmt.Errorf("shape basis length %d, want %d", len(t.ShapeBasis), want)
		}
	}
	for i, e := range t.Embedding {
		if e.Face < 0 || e.Face >= len(t.Faces) {
			return fmt.Errorf("embedding %d references face %d of %d", i, e.Face, len(t.Faces))
		}
	}
	return nil
}

// BasisDisplacement returns the displacement of vertex v contributed by one
// unit of basis component c.
func (t *Template) BasisDisplacement(v, c int) geometry.Point3D {
	base := (v*3)*t.ComponentCount + c
	step := t.ComponentCount
	return geometry.Point3D{
		X: t.ShapeBasis[base],
		Y: t.ShapeBasis[base+step],
		Z: t.ShapeBasis[base+2*step],
	}
}

// Deform returns a fresh vertex array displaced by the linear combination
// of basis components with the given coefficients. Extra coefficients are
// ignored; a nil or empty slice returns a copy of the template positions.
func (t *Template) Deform(coeffs []float64) []geometry.Point3D {
	out := make([]geometry.Point3D, len(t.Vertices))
	copy(out, t.Vertices)
	n := len(coeffs)
	if n > t.ComponentCount {
		n = t.ComponentCount
	}
	if n == 0 || len(t.ShapeBasis) == 0 {
		return out
	}
	for v := range out {
		var dx, dy, dz float64
		baseX := (v * 3) * t.ComponentCount
		baseY := baseX + t.ComponentCount
		baseZ := baseY + t.ComponentCount
		for c := 0; c < n; c++ {
			k := coeffs[c]
			if k == 0 {
				continue
			}
			dx += k * t.ShapeBasis[baseX+c]
			dy += k * t.ShapeBasis[baseY+c]
			dz += k * t.ShapeBasis[baseZ+c]
		}
		out[v].X += dx
		out[v].Y += dy
		out[v].Z += dz
	}
	return out
}

// SurfacePoint barycentrically interpolates vertex positions at an
// embedding entry. positions defaults to the template vertices when nil.
func (t *Template) SurfacePoint(e EmbeddingEntry, positions []geometry.Point3D) geometry.Point3D {
	if positions == nil {
		positions = t.Vertices
	}
	f := t.Faces[e.Face]
	return geometry.Interpolate3D(
		positions[f[0]], positions[f[1]], positions[f[2]],
		e.Weights[0], e.Weights[1], e.Weights[2])
}

// SurfaceUV barycentrically interpolates UV coordinates at an embedding
// entry, using the UV face parallel to the position face.
func (t *Template) SurfaceUV(e EmbeddingEntry) geometry.Point2D {
	f := t.UVFaces[e.Face]
	return geometry.Interpolate2D(
		t.UV[f[0]], t.UV[f[1]], t.UV[f[2]],
		e.Weights[0], e.Weights[1], e.Weights[2])
}

// Centroid returns the mean of the template vertex positions.
func (t *Template) Centroid() geometry.Point3D {
	var sum geometry.Point3D
	for _, v := range t.Vertices {
		sum = sum.Add(v)
	}
	return sum.Scale(1 / float64(len(t.Vertices)))
}
