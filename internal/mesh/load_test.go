package mesh

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeFloat32(t *testing.T, path string, vals []float32) {
	t.Helper()
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
}

func writeUint32(t *testing.T, path string, vals []uint32) {
	t.Helper()
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
}

// writeTestTemplate lays out a single-triangle template: three vertices,
// one face, shared UV topology, a one-component shape basis and a
// two-landmark embedding.
func writeTestTemplate(t *testing.T, dir string) string {
	t.Helper()
	writeFloat32(t, filepath.Join(dir, "vertices.bin"), []float32{
		0, 0, 0,
		1, 0, 0,
		0, 1, 0,
	})
	writeUint32(t, filepath.Join(dir, "faces.bin"), []uint32{0, 1, 2})
	writeFloat32(t, filepath.Join(dir, "uv.bin"), []float32{
		0, 0,
		1, 0,
		0, 1,
	})
	// One component displacing each vertex along Z by its index.
	writeFloat32(t, filepath.Join(dir, "shape.bin"), []float32{
		0, 0, 0,
		0, 0, 1,
		0, 0, 2,
	})

	mapping := map[string]interface{}{
		"lmk_faces_idx":    []int{0, 0},
		"lmk_bary_coords":  [][3]float64{{1, 0, 0}, {0, 1, 0}},
		"landmark_indices": []int{5, 9},
	}
	mapData, err := json.Marshal(mapping)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "mapping.json"), mapData, 0644); err != nil {
		t.Fatal(err)
	}

	man := map[string]interface{}{
		"vertex_count": 3,
		"face_count":   1,
		"binary_files": map[string]string{
			"vertices":    "vertices.bin",
			"faces":       "faces.bin",
			"uv":          "uv.bin",
			"shape_basis": "shape.bin",
		},
		"mapping_file": "mapping.json",
	}
	manData, err := json.Marshal(man)
	if err != nil {
		t.Fatal(err)
	}
	manifestPath := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(manifestPath, manData, 0644); err != nil {
		t.Fatal(err)
	}
	return manifestPath
}

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeTestTemplate(t, dir)

	tmpl, err := LoadTemplate(manifestPath)
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}

	if len(tmpl.Vertices) != 3 {
		t.Fatalf("vertices = %d, want 3", len(tmpl.Vertices))
	}
	if tmpl.Vertices[1].X != 1 || tmpl.Vertices[2].Y != 1 {
		t.Errorf("vertex payload decoded wrong: %v", tmpl.Vertices)
	}
	if len(tmpl.Faces) != 1 || tmpl.Faces[0] != [3]int{0, 1, 2} {
		t.Errorf("faces = %v, want [[0 1 2]]", tmpl.Faces)
	}
	if len(tmpl.UV) != 3 {
		t.Errorf("uv = %d, want 3", len(tmpl.UV))
	}
	// UV parallels positions, so the face list is shared.
	if len(tmpl.UVFaces) != 1 {
		t.Errorf("uv faces = %d, want 1", len(tmpl.UVFaces))
	}
	if !tmpl.HasUVVertexMap() {
		t.Error("uv vertex map should be built during load")
	}

	if tmpl.ComponentCount != 1 {
		t.Fatalf("component count = %d, want 1", tmpl.ComponentCount)
	}
	d := tmpl.BasisDisplacement(2, 0)
	if d.Z != 2 || d.X != 0 {
		t.Errorf("basis displacement of vertex 2 = %v, want (0, 0, 2)", d)
	}

	if len(tmpl.Embedding) != 2 {
		t.Fatalf("embedding = %d entries, want 2", len(tmpl.Embedding))
	}
	if tmpl.Embedding[0].Landmark != 5 || tmpl.Embedding[1].Landmark != 9 {
		t.Errorf("landmark indices = (%d, %d), want (5, 9)",
			tmpl.Embedding[0].Landmark, tmpl.Embedding[1].Landmark)
	}
	if tmpl.Embedding[1].Weights != [3]float64{0, 1, 0} {
		t.Errorf("weights = %v, want (0, 1, 0)", tmpl.Embedding[1].Weights)
	}
}

func TestLoadTemplateMissingEmbeddingIsOK(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeTestTemplate(t, dir)
	if err := os.Remove(filepath.Join(dir, "mapping.json")); err != nil {
		t.Fatal(err)
	}

	tmpl, err := LoadTemplate(manifestPath)
	if err != nil {
		t.Fatalf("LoadTemplate without mapping: %v", err)
	}
	if len(tmpl.Embedding) != 0 {
		t.Errorf("embedding = %d entries, want none", len(tmpl.Embedding))
	}
}

func TestLoadTemplateMissingManifest(t *testing.T) {
	if _, err := LoadTemplate(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestLoadTemplateTruncatedPayload(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeTestTemplate(t, dir)
	// Chop the vertex payload so it no longer splits into triples.
	if err := os.WriteFile(filepath.Join(dir, "vertices.bin"), make([]byte, 8), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTemplate(manifestPath); err == nil {
		t.Error("expected error for a truncated vertex payload")
	}
}

func TestLoadTemplateBadFaceIndex(t *testing.T) {
	dir := t.TempDir()
	manifestPath := writeTestTemplate(t, dir)
	writeUint32(t, filepath.Join(dir, "faces.bin"), []uint32{0, 1, 7})
	if _, err := LoadTemplate(manifestPath); err == nil {
		t.Error("expected validation error for an out-of-range face index")
	}
}
