package world

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// Read the geometry of a wavefront object file into a mesh. Only vertex
// ("v") and face ("f") records are consumed; texture/normal references in
// face tokens are ignored and polygons are fan-triangulated. Material,
// group and smoothing records carry no geometry and are skipped.
func ReadWavefront(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseWavefront(f, path)
}

func parseWavefront(r io.Reader, path string) (*Mesh, error) {
	var (
		vertices []mgl32.Vec3
		faces    []Face
	)

	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		tokens := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
			continue
		}

		switch tokens[0] {
		case "v":
			if len(tokens) < 4 {
				return nil, fmt.Errorf("wavefront: [%s: %d] vertex records require 3 coordinates", path, lineNum)
			}
			var v mgl32.Vec3
			for i := 0; i < 3; i++ {
				coord, err := strconv.ParseFloat(tokens[i+1], 32)
				if err != nil {
					return nil, fmt.Errorf("wavefront: [%s: %d] could not parse coordinate: %v", path, lineNum, err)
				}
				v[i] = float32(coord)
			}
			vertices = append(vertices, v)
		case "f":
			if len(tokens) < 4 {
				return nil, fmt.Errorf("wavefront: [%s: %d] face records require at least 3 vertices", path, lineNum)
			}
			indices := make([]int32, len(tokens)-1)
			for i, token := range tokens[1:] {
				index, err := parseFaceIndex(token, len(vertices))
				if err != nil {
					return nil, fmt.Errorf("wavefront: [%s: %d] %v", path, lineNum, err)
				}
				indices[i] = index
			}

			// Fan-triangulate polygons with more than 3 vertices.
			for i := 1; i < len(indices)-1; i++ {
				faces = append(faces, Face{indices[0], indices[i], indices[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(faces) == 0 {
		return nil, fmt.Errorf("wavefront: [%s] no faces defined", path)
	}

	return NewMesh(vertices, faces), nil
}

// Resolve a face vertex token ("7", "7/1", "7//2" or a negative relative
// index) to a zero-based vertex index.
func parseFaceIndex(token string, numVertices int) (int32, error) {
	if sep := strings.IndexByte(token, '/'); sep != -1 {
		token = token[:sep]
	}

	index, err := strconv.ParseInt(token, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse face index: %v", err)
	}

	// Wavefront indices are 1-based; negative values are relative to the
	// end of the current vertex list.
	if index < 0 {
		index += int64(numVertices)
	} else {
		index--
	}

	if index < 0 || index >= int64(numVertices) {
		return 0, fmt.Errorf("face index %s out of range", token)
	}
	return int32(index), nil
}
