package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"

	pgvector "github.com/pgvector/pgvector-go"
)

const defaultHashingDimensions = 384

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "do": true, "does": true, "for": true, "from": true, "how": true, "in": true,
	"is": true, "it": true, "of": true, "on": true, "or": true, "the": true, "this": true,
	"to": true, "what": true, "where": true, "which": true, "who": true, "with": true,
	"implemented": true, "code": true,
}

// HashingEmbedder is a deterministic offline embedder based on feature hashing
// of code-aware tokens and their character trigrams.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a hashing embedder producing vectors of the given size.
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = defaultHashingDimensions
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Model implements Embedder.
func (e *HashingEmbedder) Model() string {
	return ProviderHashing + ":" + strconv.Itoa(e.dimensions)
}

// EmbedTexts implements Embedder. Inputs without any token map to the zero vector.
func (e *HashingEmbedder) EmbedTexts(ctx context.Context, inputs []string) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, 0, len(inputs))
	for _, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors = append(vectors, pgvector.NewVector(e.embed(input)))
	}
	return vectors, nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	values := make([]float32, e.dimensions)
	for _, token := range Tokenize(text) {
		e.add(values, "t:"+token, 1)
		if len(token) > 3 {
			for i := 0; i+3 <= len(token); i++ {
				e.add(values, "g:"+token[i:i+3], 0.5)
			}
		}
	}

	var norm float64
	for _, v := range values {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return values
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range values {
		values[i] *= scale
	}
	return values
}

func (e *HashingEmbedder) add(values []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	values[idx] += weight
}

// Tokenize splits text into lower-cased identifier parts.
// "getUserName" and "get_user_name" both yield get, user, name and the joined identifier.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		parts := splitIdentifier(word)
		if len(parts) > 1 {
			if joined := strings.ToLower(strings.ReplaceAll(word, "_", "")); !stopWords[joined] {
				tokens = append(tokens, joined)
			}
		}
		for _, part := range parts {
			part = strings.ToLower(part)
			if len(part) < 2 || stopWords[part] {
				continue
			}
			tokens = append(tokens, part)
		}
	}
	return tokens
}

func splitIdentifier(word string) []string {
	var (
		parts   []string
		current []rune
	)
	runes := []rune(word)
	for i, r := range runes {
		switch {
		case r == '_':
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = current[:0]
			}
			continue
		case unicode.IsUpper(r) && len(current) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				parts = append(parts, string(current))
				current = current[:0]
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}
