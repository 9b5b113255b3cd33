package clonality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

func seq(key, file, cdr3, vfam, jfam string) Sequence {
	return Sequence{Key: key, File: file, CDR3AA: cdr3, VFamily: vfam, JFamily: jfam}
}

func TestParamsForMode(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		p := ParamsForMode(domain.ModeExact, nil, nil)
		require.NotNil(t, p.MaxMismatches)
		assert.Equal(t, 0, *p.MaxMismatches)
		assert.Equal(t, 1.0, p.SimilarityThreshold)
	})

	t.Run("lenient default", func(t *testing.T) {
		p := ParamsForMode(domain.ModeLenient, nil, nil)
		require.NotNil(t, p.MaxMismatches)
		assert.Equal(t, 2, *p.MaxMismatches)
		assert.Equal(t, 0.85, p.SimilarityThreshold)
	})

	t.Run("unknown mode falls back to lenient", func(t *testing.T) {
		p := ParamsForMode("bogus", nil, nil)
		assert.Equal(t, domain.ModeLenient, p.Mode)
	})

	t.Run("custom with mismatch cap", func(t *testing.T) {
		three := 3
		p := ParamsForMode(domain.ModeCustom, nil, &three)
		require.NotNil(t, p.MaxMismatches)
		assert.Equal(t, 3, *p.MaxMismatches)
	})

	t.Run("custom with similarity threshold", func(t *testing.T) {
		th := 0.9
		p := ParamsForMode(domain.ModeCustom, &th, nil)
		assert.Nil(t, p.MaxMismatches)
		assert.Equal(t, 0.9, p.SimilarityThreshold)
	})

	t.Run("custom with neither knob uses lenient defaults", func(t *testing.T) {
		p := ParamsForMode(domain.ModeCustom, nil, nil)
		require.NotNil(t, p.MaxMismatches)
		assert.Equal(t, 2, *p.MaxMismatches)
	})
}

func TestClusterExact(t *testing.T) {
	p := ParamsForMode(domain.ModeExact, nil, nil)
	clones := Cluster([]Sequence{
		seq("s1|||a.fasta", "a.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ4"),
		seq("s2|||b.fasta", "b.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ4"),
		// One substitution: identical-enough for lenient, not for exact.
		seq("s3|||c.fasta", "c.fasta", "CASSLGQGNYGYAF", "IGHV3-23", "IGHJ4"),
		// Same CDR3, different V family.
		seq("s4|||d.fasta", "d.fasta", "CASSLGQGNYGYTF", "IGHV1-2", "IGHJ4"),
	}, p)

	require.Len(t, clones, 3)
	assert.ElementsMatch(t, []string{"s1|||a.fasta", "s2|||b.fasta"}, clones[0].Members)
	assert.Equal(t, []string{"s3|||c.fasta"}, clones[1].Members)
	assert.Equal(t, []string{"s4|||d.fasta"}, clones[2].Members)
}

func TestClusterLenient_JoinsWithinTwoMismatches(t *testing.T) {
	p := ParamsForMode(domain.ModeLenient, nil, nil)
	clones := Cluster([]Sequence{
		seq("s1", "a.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ4"),
		seq("s2", "b.fasta", "CASSLGQGNYGYAF", "IGHV3-23", "IGHJ4"),
	}, p)

	require.Len(t, clones, 1)
	assert.Len(t, clones[0].Members, 2)
}

func TestClusterLenient_FamilyMismatchNeverJoins(t *testing.T) {
	p := ParamsForMode(domain.ModeLenient, nil, nil)
	clones := Cluster([]Sequence{
		seq("s1", "a.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ4"),
		seq("s2", "b.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ6"),
	}, p)
	assert.Len(t, clones, 2)
}

func TestClusterLenient_LengthGapSeparates(t *testing.T) {
	p := ParamsForMode(domain.ModeLenient, nil, nil)
	clones := Cluster([]Sequence{
		seq("s1", "a.fasta", "CASSLGQGNY", "IGHV3-23", "IGHJ4"),
		seq("s2", "b.fasta", "CASSLGQGNYGYTFA", "IGHV3-23", "IGHJ4"),
	}, p)
	assert.Len(t, clones, 2)
}

// The seed pass compares candidates against the seed only. A chain
// A~B~C where C matches B but not A must split: C seeds its own cluster.
func TestClusterBySeed_NotTransitive(t *testing.T) {
	p := ParamsForMode(domain.ModeLenient, nil, nil)
	clones := Cluster([]Sequence{
		seq("a", "p1.fasta", "CASSAAAAAAAATF", "IGHV3-23", "IGHJ4"),
		seq("b", "p2.fasta", "CASSAAAAAAYYTF", "IGHV3-23", "IGHJ4"), // 2 from a
		seq("c", "p3.fasta", "CASSAAAAYYYYTF", "IGHV3-23", "IGHJ4"), // 2 from b, 4 from a
	}, p)

	require.Len(t, clones, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, clones[0].Members)
	assert.Equal(t, []string{"c"}, clones[1].Members)
}

func TestCluster_Partition(t *testing.T) {
	inputs := []Sequence{
		seq("s1", "a.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ4"),
		seq("s2", "b.fasta", "CASSLGQGNYGYAF", "IGHV3-23", "IGHJ4"),
		seq("s3", "c.fasta", "CARDTTVVAGYFDY", "IGHV1-2", "IGHJ6"),
		seq("s4", "a.fasta", "", "IGHV1-2", "IGHJ6"), // no CDR3: excluded
		seq("s5", "b.fasta", "CARDTTVVAGYFDY", "IGHV1-2", "IGHJ6"),
	}

	for _, mode := range []string{domain.ModeExact, domain.ModeLenient} {
		clones := Cluster(inputs, ParamsForMode(mode, nil, nil))

		seen := make(map[string]int)
		for _, c := range clones {
			for _, m := range c.Members {
				seen[m]++
			}
		}
		assert.Len(t, seen, 4, "mode %s", mode)
		for key, n := range seen {
			assert.Equal(t, 1, n, "mode %s: %s assigned %d times", mode, key, n)
		}
		assert.NotContains(t, seen, "s4")
	}
}

func TestCluster_Deterministic(t *testing.T) {
	inputs := []Sequence{
		seq("s1", "a.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ4"),
		seq("s2", "b.fasta", "CASSLGQGNYGYAF", "IGHV3-23", "IGHJ4"),
		seq("s3", "c.fasta", "CARDTTVVAGYFDY", "IGHV1-2", "IGHJ6"),
	}
	p := ParamsForMode(domain.ModeLenient, nil, nil)

	first := Cluster(inputs, p)
	second := Cluster(inputs, p)
	assert.Equal(t, first, second)
}

func TestAssignment(t *testing.T) {
	p := ParamsForMode(domain.ModeLenient, nil, nil)
	clones := Cluster([]Sequence{
		seq("s1", "a.fasta", "CASSLGQGNYGYTF", "IGHV3-23", "IGHJ4"),
		seq("s2", "b.fasta", "CASSLGQGNYGYAF", "IGHV3-23", "IGHJ4"),
		seq("s3", "c.fasta", "CARDTTVVAGYFDY", "IGHV1-2", "IGHJ6"),
	}, p)

	got := Assignment(clones)
	assert.Equal(t, got["s1"], got["s2"])
	assert.NotEqual(t, got["s1"], got["s3"])
}
