package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"
)

// serializeEmbedding converts a float32 slice to a little-endian binary blob.
func serializeEmbedding(embedding []float32) []byte {
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding converts a binary blob back to a float32 slice,
// validating the declared dimension against the blob length.
func deserializeEmbedding(blob []byte, dimension int) ([]float32, error) {
	if dimension <= 0 || len(blob) != dimension*4 {
		return nil, fmt.Errorf("embedding blob length %d does not match dimension %d", len(blob), dimension)
	}
	embedding := make([]float32, dimension)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding, nil
}

// cosineSimilarity computes cosine similarity between two equal-length vectors.
// Returns 0 if either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
