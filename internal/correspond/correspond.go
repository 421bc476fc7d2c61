// Package correspond turns sparse landmark detections plus the template's
// landmark embedding into paired fitting samples: mesh-space 3D point to
// image 2D point, and mesh-UV point to image 2D point.
package correspond

import (
	"facetex/internal/landmark"
	"facetex/internal/mesh"
	"facetex/pkg/geometry"
)

// Sample pairs a point on the mesh surface with its detected image location.
// Image coordinates are normalized to [0,1] in well-formed detections.
type Sample struct {
	MeshPoint  geometry.Point3D
	ImagePoint geometry.Point2D
}

// UVSample pairs a mesh-UV location with its detected image location.
type UVSample struct {
	UV         geometry.Point2D
	ImagePoint geometry.Point2D
}

// Set is the output of one build pass. A Set may be partial or empty;
// consumers gate on Count before fitting anything.
type Set struct {
	Samples   []Sample
	UVSamples []UVSample
	// Landmarks records which landmark index produced each sample,
	// parallel to Samples. Diagnostic only.
	Landmarks []int
}

// Count returns the number of usable samples.
func (s *Set) Count() int {
	return len(s.Samples)
}

// MeshPoints returns the 3D side of the sample pairs.
func (s *Set) MeshPoints() []geometry.Point3D {
	out := make([]geometry.Point3D, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = smp.MeshPoint
	}
	return out
}

// ImagePoints returns the 2D side of the sample pairs.
func (s *Set) ImagePoints() []geometry.Point2D {
	out := make([]geometry.Point2D, len(s.Samples))
	for i, smp := range s.Samples {
		out[i] = smp.ImagePoint
	}
	return out
}

// Build emits one sample per embedding entry whose landmark is finite and
// plausibly in frame. positions supplies current (possibly deformed) vertex
// positions; nil uses the template's neutral positions. Never fails: a bad
// detection just yields fewer samples.
func Build(tmpl *mesh.Template, lm *landmark.Set, positions []geometry.Point3D) *Set {
	set := &Set{}
	if tmpl == nil || lm == nil {
		return set
	}
	hasUV := len(tmpl.UV) > 0 && len(tmpl.UVFaces) == len(tmpl.Faces)
	for _, entry := range tmpl.Embedding {
		if !lm.Valid(entry.Landmark) {
			continue
		}
		img := lm.ImagePoint(entry.Landmark)
		set.Samples = append(set.Samples, Sample{
			MeshPoint:  tmpl.SurfacePoint(entry, positions),
			ImagePoint: img,
		})
		set.Landmarks = append(set.Landmarks, entry.Landmark)
		if hasUV {
			set.UVSamples = append(set.UVSamples, UVSample{
				UV:         tmpl.SurfaceUV(entry),
				ImagePoint: img,
			})
		}
	}
	return set
}
