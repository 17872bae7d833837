package embedding

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "we": true, "with": true,
}

const bigramWeight = 0.5

// HashEmbedder is a local feature-hashing embedder. Word unigrams and bigrams
// are hashed with BLAKE2b into signed buckets, weighted by sublinear term
// frequency and L2-normalized. It needs no network and is fully deterministic.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hashing embedder of the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

// Dimension returns the vector size.
func (e *HashEmbedder) Dimension() int { return e.dimension }

// Embed hashes text into a unit vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	features := featureCounts(text)
	// Accumulate in a fixed order so float rounding is reproducible.
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	acc := make([]float64, e.dimension)
	for _, k := range keys {
		f := features[k]
		sum := blake2b.Sum256([]byte(k))
		idx := binary.LittleEndian.Uint32(sum[:4]) % uint32(e.dimension)
		weight := (1 + math.Log(float64(f.count))) * f.weight
		if sum[4]&1 == 1 {
			weight = -weight
		}
		acc[idx] += weight
	}

	vec := make([]float32, e.dimension)
	for i, v := range acc {
		vec[i] = float32(v)
	}
	return Normalize(vec)
}

// EmbedBatch embeds each text in order.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type feature struct {
	count  int
	weight float64
}

func featureCounts(text string) map[string]feature {
	var tokens []string
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if stopWords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}

	features := make(map[string]feature)
	if len(tokens) == 0 {
		// Punctuation-only input still gets a stable, non-zero vector.
		features["raw:"+strings.TrimSpace(text)] = feature{count: 1, weight: 1}
		return features
	}
	add := func(key string, weight float64) {
		f := features[key]
		f.count++
		f.weight = weight
		features[key] = f
	}
	for i, tok := range tokens {
		add("u:"+tok, 1)
		if i > 0 {
			add("b:"+tokens[i-1]+" "+tok, bigramWeight)
		}
	}
	return features
}

// ContentHash returns the hex BLAKE2b-256 digest of text.
func ContentHash(text string) string {
	sum := blake2b.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
