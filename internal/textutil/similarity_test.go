package textutil_test

import (
	"testing"

	"tonearm/internal/textutil"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	a := textutil.NewTokenVector("kind of blue")
	b := textutil.NewTokenVector("Kind Of Blue")
	if sim := textutil.CosineSimilarity(a, b); sim < 0.999 {
		t.Fatalf("expected near-identical similarity, got %f", sim)
	}
}

func TestCosineSimilarityDisjoint(t *testing.T) {
	a := textutil.NewTokenVector("kind of blue")
	b := textutil.NewTokenVector("master puppets")
	if sim := textutil.CosineSimilarity(a, b); sim != 0 {
		t.Fatalf("expected zero similarity, got %f", sim)
	}
}

func TestCosineSimilarityNil(t *testing.T) {
	if sim := textutil.CosineSimilarity(nil, textutil.NewTokenVector("x y")); sim != 0 {
		t.Fatalf("expected zero for nil vector, got %f", sim)
	}
}
