package clonality

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"CASS", "", 4},
		{"", "CASS", 4},
		{"CASSLGQGNYGYTF", "CASSLGQGNYGYTF", 0},
		{"CASSLGQGNYGYTF", "CASSLGQGNYGYAF", 1},
		{"kitten", "sitting", 3},
		{"AB", "BA", 2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Levenshtein(tc.a, tc.b), "Levenshtein(%q, %q)", tc.a, tc.b)
	}
}

func TestSimilarity_SingleSubstitution(t *testing.T) {
	// One substitution over 14 residues, no length penalty.
	got := Similarity("CASSLGQGNYGYTF", "CASSLGQGNYGYAF")
	assert.InDelta(t, 1.0-1.0/14.0, got, 1e-9)
	assert.GreaterOrEqual(t, got, 0.85)
}

func TestSimilarity_LengthPenalty(t *testing.T) {
	// Lengths 10 and 15: the 5-residue gap exceeds 2, so the penalty
	// kicks in. The shorter string is a prefix, so the edit distance is
	// exactly the length difference.
	a := "CASSLGQGNY"
	b := "CASSLGQGNYGYTFA"
	got := Similarity(a, b)
	want := 1.0 - (5.0/15.0 + (5.0/15.0)*0.5)
	assert.InDelta(t, want, got, 1e-9)
	assert.InDelta(t, 0.5, got, 1e-6)
	assert.Less(t, got, 0.85)
}

func TestSimilarity_NoPenaltyAtTwoResidueGap(t *testing.T) {
	// A 2-residue gap is still penalty-free.
	a := "CASSLGQGNYGY"
	b := "CASSLGQGNYGYTF"
	got := Similarity(a, b)
	assert.InDelta(t, 1.0-2.0/14.0, got, 1e-9)
}

func TestSimilarity_FlooredAtZero(t *testing.T) {
	got := Similarity("A", "WWWWWWWWWWWWWWWWWWWW")
	assert.Equal(t, 0.0, got)
	assert.False(t, math.Signbit(got))
}

func TestSimilarity_EmptyInput(t *testing.T) {
	assert.Equal(t, 0.0, Similarity("", "CASS"))
	assert.Equal(t, 0.0, Similarity("CASS", ""))
}
