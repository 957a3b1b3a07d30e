package textutil

// CosineSimilarity computes the cosine similarity between two token vectors.
// Returns 0 if either vector is nil or has zero norm.
func CosineSimilarity(a, b *TokenVector) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}
