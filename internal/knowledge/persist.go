package knowledge

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// The index file is a flat little-endian layout: a dim/count header
// followed by count*dim float32 components. Position i holds the vector
// for document id i; the metadata file carries the texts in the same order.

func writeIndexFile(path string, dim int, vectors [][]float32) error {
	buf := make([]byte, 8+len(vectors)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:], uint32(dim))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(vectors)))
	off := 8
	for _, v := range vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	return writeFileAtomic(path, buf)
}

func readIndexFile(path string, dim int) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("index file too short (%d bytes)", len(data))
	}

	fileDim := int(binary.LittleEndian.Uint32(data[0:]))
	count := int(binary.LittleEndian.Uint32(data[4:]))
	if fileDim != dim {
		return nil, fmt.Errorf("index dimension %d does not match configured %d", fileDim, dim)
	}
	if len(data) != 8+count*dim*4 {
		return nil, fmt.Errorf("index file length %d does not match %d vectors of dim %d", len(data), count, dim)
	}

	vectors := make([][]float32, count)
	off := 8
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = v
	}
	return vectors, nil
}

// metadata is the JSON sidecar holding document texts in id order.
type metadata struct {
	Dimension int      `json:"dimension"`
	Texts     []string `json:"texts"`
}

func writeMetadataFile(path string, dim int, texts []string) error {
	m := metadata{Dimension: dim, Texts: texts}
	if m.Texts == nil {
		m.Texts = []string{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	return writeFileAtomic(path, data)
}

func readMetadataFile(path string, dim int) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	if m.Dimension != dim {
		return nil, fmt.Errorf("metadata dimension %d does not match configured %d", m.Dimension, dim)
	}
	return m.Texts, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it into place, so readers never observe a half-written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
