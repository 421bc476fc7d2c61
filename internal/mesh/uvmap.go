package mesh

import "fmt"

// BuildUVVertexMap derives the UV-vertex to position-vertex mapping from
// the parallel face index lists. Call once after load; UVToPos reads the
// cached result. A UV vertex referenced with conflicting position
// vertices is reported as an error rather than corrupting the map.
func (t *Template) BuildUVVertexMap() error {
	if len(t.UV) == 0 || len(t.UVFaces) == 0 {
		return fmt.Errorf("template has no uv parameterization")
	}
	uvToPos := make([]int, len(t.UV))
	for i := range uvToPos {
		uvToPos[i] = -1
	}
	conflicts := 0
	for fi, uvFace := range t.UVFaces {
		posFace := t.Faces[fi]
		for c := 0; c < 3; c++ {
			uvIdx := uvFace[c]
			posIdx := posFace[c]
			switch uvToPos[uvIdx] {
			case -1:
				uvToPos[uvIdx] = posIdx
			case posIdx:
			default:
				conflicts++
			}
		}
	}
	for i, p := range uvToPos {
		if p == -1 {
			// UV vertex unused by any face; pin to vertex 0 so lookups
			// stay in range.
			uvToPos[i] = 0
		}
	}
	if conflicts > 0 {
		return fmt.Errorf("uv vertex map has %d conflicting assignments", conflicts)
	}
	t.uvToPos = uvToPos
	return nil
}

// UVToPos returns the position vertex index duplicated by UV vertex i.
func (t *Template) UVToPos(i int) int {
	return t.uvToPos[i]
}

// HasUVVertexMap reports whether BuildUVVertexMap has run successfully.
func (t *Template) HasUVVertexMap() bool {
	return len(t.uvToPos) == len(t.UV) && len(t.uvToPos) > 0
}
