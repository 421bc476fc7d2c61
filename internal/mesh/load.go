package mesh

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"

	_ "golang.org/x/image/tiff"

	"facetex/pkg/geometry"
)

// manifest mirrors the JSON written by the template conversion tooling.
// Binary payloads are little-endian float32/uint32 arrays.
type manifest struct {
	VertexCount     int               `json:"vertex_count"`
	FaceCount       int               `json:"face_count"`
	ShapeParams     int               `json:"shape_param_count"`
	ExprParams      int               `json:"expression_param_count"`
	BinaryFiles     map[string]string `json:"binary_files"`
	MappingFile     string            `json:"mapping_file,omitempty"`
	AlbedoFile      string            `json:"albedo_file,omitempty"`
	CoordinateNotes string            `json:"coordinate_system,omitempty"`
}

// embeddingFile mirrors the landmark embedding JSON: per entry a mesh face
// index and barycentric weights, optionally with explicit landmark indices.
type embeddingFile struct {
	FaceIdx    []int        `json:"lmk_faces_idx"`
	BaryCoords [][3]float64 `json:"lmk_bary_coords"`
	Landmarks  []int        `json:"landmark_indices"`
}

// LoadTemplate reads a mesh template from a manifest JSON file and its
// sibling binary payloads. The returned Template is validated and has its
// UV vertex map built.
func LoadTemplate(manifestPath string) (*Template, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", manifestPath, err)
	}
	dir := filepath.Dir(manifestPath)

	t := &Template{}

	verts, err := readFloat32File(filepath.Join(dir, m.BinaryFiles["vertices"]))
	if err != nil {
		return nil, fmt.Errorf("vertices: %w", err)
	}
	if len(verts)%3 != 0 {
		return nil, fmt.Errorf("vertex payload length %d not divisible by 3", len(verts))
	}
	t.Vertices = make([]geometry.Point3D, len(verts)/3)
	for i := range t.Vertices {
		t.Vertices[i] = geometry.Point3D{
			X: float64(verts[i*3]),
			Y: float64(verts[i*3+1]),
			Z: float64(verts[i*3+2]),
		}
	}

	faces, err := readUint32File(filepath.Join(dir, m.BinaryFiles["faces"]))
	if err != nil {
		return nil, fmt.Errorf("faces: %w", err)
	}
	if len(faces)%3 != 0 {
		return nil, fmt.Errorf("face payload length %d not divisible by 3", len(faces))
	}
	t.Faces = make([][3]int, len(faces)/3)
	for i := range t.Faces {
		t.Faces[i] = [3]int{int(faces[i*3]), int(faces[i*3+1]), int(faces[i*3+2])}
	}

	if name, ok := m.BinaryFiles["uv"]; ok && name != "" {
		uv, err := readFloat32File(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("uv: %w", err)
		}
		if len(uv)%2 != 0 {
			return nil, fmt.Errorf("uv payload length %d not divisible by 2", len(uv))
		}
		t.UV = make([]geometry.Point2D, len(uv)/2)
		for i := range t.UV {
			t.UV[i] = geometry.Point2D{X: float64(uv[i*2]), Y: float64(uv[i*2+1])}
		}
	}

	if name, ok := m.BinaryFiles["uv_faces"]; ok && name != "" {
		uvFaces, err := readUint32File(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("uv faces: %w", err)
		}
		t.UVFaces = make([][3]int, len(uvFaces)/3)
		for i := range t.UVFaces {
			t.UVFaces[i] = [3]int{int(uvFaces[i*3]), int(uvFaces[i*3+1]), int(uvFaces[i*3+2])}
		}
	} else if len(t.UV) == len(t.Vertices) {
		// No seam duplication: UV vertices parallel position vertices.
		t.UVFaces = t.Faces
	}

	if err := loadBasis(t, dir, m); err != nil {
		return nil, err
	}

	mappingPath := m.MappingFile
	if mappingPath == "" {
		mappingPath = "flame_mediapipe_mapping.json"
	}
	if err := loadEmbedding(t, filepath.Join(dir, mappingPath)); err != nil {
		return nil, err
	}

	if m.AlbedoFile != "" {
		img, err := loadImageRGBA(filepath.Join(dir, m.AlbedoFile))
		if err != nil {
			return nil, fmt.Errorf("albedo: %w", err)
		}
		t.Albedo = img
	}

	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("template %s: %w", manifestPath, err)
	}
	if len(t.UV) > 0 {
		if err := t.BuildUVVertexMap(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// loadBasis reads the shape basis and, when present, appends the expression
// basis as extra components. Both payloads are (vertex, axis, component)
// row-major.
func loadBasis(t *Template, dir string, m manifest) error {
	shapeName := m.BinaryFiles["shape_basis"]
	exprName := m.BinaryFiles["expression_basis"]
	if shapeName == "" && exprName == "" {
		return nil
	}

	v := len(t.Vertices)
	var shape, expr []float32
	var err error
	nShape, nExpr := 0, 0
	if shapeName != "" {
		shape, err = readFloat32File(filepath.Join(dir, shapeName))
		if err != nil {
			return fmt.Errorf("shape basis: %w", err)
		}
		if len(shape)%(v*3) != 0 {
			return fmt.Errorf("shape basis length %d not divisible by %d", len(shape), v*3)
		}
		nShape = len(shape) / (v * 3)
	}
	if exprName != "" {
		expr, err = readFloat32File(filepath.Join(dir, exprName))
		if err != nil {
			return fmt.Errorf("expression basis: %w", err)
		}
		if len(expr)%(v*3) != 0 {
			return fmt.Errorf("expression basis length %d not divisible by %d", len(expr), v*3)
		}
		nExpr = len(expr) / (v * 3)
	}

	total := nShape + nExpr
	t.ComponentCount = total
	t.ShapeBasis = make([]float64, v*3*total)
	for row := 0; row < v*3; row++ {
		for c := 0; c < nShape; c++ {
			t.ShapeBasis[row*total+c] = float64(shape[row*nShape+c])
		}
		for c := 0; c < nExpr; c++ {
			t.ShapeBasis[row*total+nShape+c] = float64(expr[row*nExpr+c])
		}
	}
	return nil
}

// loadEmbedding reads the landmark-to-face mapping table. A missing file is
// not an error: the pipeline then has no correspondences and falls back to
// the naive crop, which is the correct degraded behavior.
func loadEmbedding(t *Template, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read embedding: %w", err)
	}
	var e embeddingFile
	if err := json.Unmarshal(raw, &e); err != nil {
		return fmt.Errorf("parse embedding %s: %w", path, err)
	}
	if len(e.FaceIdx) != len(e.BaryCoords) {
		return fmt.Errorf("embedding: %d face indices vs %d weight triples", len(e.FaceIdx), len(e.BaryCoords))
	}
	t.Embedding = make([]EmbeddingEntry, 0, len(e.FaceIdx))
	for i := range e.FaceIdx {
		entry := EmbeddingEntry{
			Landmark: i,
			Face:     e.FaceIdx[i],
			Weights:  e.BaryCoords[i],
		}
		if i < len(e.Landmarks) {
			entry.Landmark = e.Landmarks[i]
		}
		t.Embedding = append(t.Embedding, entry)
	}
	return nil
}

func readFloat32File(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: length %d not divisible by 4", path, len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

func readUint32File(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%s: length %d not divisible by 4", path, len(data))
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out, nil
}

func loadImageRGBA(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}
