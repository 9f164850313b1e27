package resolver

import (
	"crypto/md5"
	"math"
	"strings"
)

// HashEmbedder derives a deterministic vector from a name without any model
// dependency. Token hashes are accumulated into a fixed-width projection so
// names sharing words land near each other.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates an embedder with the given vector width.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length vector for text. Empty input yields the zero
// vector.
func (he *HashEmbedder) Embed(text string) ([]float32, error) {
	vector := make([]float32, he.dimensions)
	tokens := strings.Fields(strings.ToUpper(strings.TrimSpace(text)))
	if len(tokens) == 0 {
		return vector, nil
	}

	for _, token := range tokens {
		hash := md5.Sum([]byte(token))
		for i := 0; i < he.dimensions; i++ {
			b := hash[i%len(hash)]
			vector[i] += (float32(b)/255.0)*2.0 - 1.0
		}
	}

	var norm float32
	for _, v := range vector {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector, nil
}
