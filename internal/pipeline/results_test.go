package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioseqio/clonepipe/pkg/airr"
)

func TestLocusFromCall(t *testing.T) {
	assert.Equal(t, "VH3-23", locusFromCall("IGHV3-23*01"))
	assert.Equal(t, "VL2-14", locusFromCall("IGLV2-14*01"))
	assert.Equal(t, "JH4", locusFromCall("IGHJ4*02"))
	assert.Equal(t, "", locusFromCall("IGHV3-23"), "no allele marker")
	assert.Equal(t, "", locusFromCall("IGH*"), "too short")
}

func TestIsotypeFromCall(t *testing.T) {
	assert.Equal(t, "Heavy", isotypeFromCall("IGHV3-23*01"))
	assert.Equal(t, "Lambda", isotypeFromCall("IGLV2-14*01"))
	assert.Equal(t, "Kappa", isotypeFromCall("IGKV1-39*01"))
}

func TestMergeResults(t *testing.T) {
	hits := &airr.HitTable{
		Hits: []airr.HitRecord{
			{ChainType: "V", QueryID: "seq1|||p1.fasta", SubjectID: "IGHV3-23*01"},
			// A second V hit for the same query must not displace the top one.
			{ChainType: "V", QueryID: "seq1|||p1.fasta", SubjectID: "IGHV3-30*01"},
			{ChainType: "J", QueryID: "seq1|||p1.fasta", SubjectID: "IGHJ4*02"},
			{ChainType: "V", QueryID: "seq2|||p2.fasta", SubjectID: "IGKV1-39*01"},
		},
		CDR3s: []airr.CDR3Record{
			{QueryID: "seq1|||p1.fasta", DNA: "TGTGCG", Peptide: "CARDY", SomaticMutations: 9},
		},
	}
	clones := &airr.CloneTable{
		Columns: []string{"sequence_id", "clone_id"},
		Records: []airr.CloneRecord{
			{SequenceID: "seq1|||p1.fasta", CloneID: "1", Junction: "TGTGCGAGA", JunctionAA: "CARDYW"},
			{SequenceID: "other|||p1.fasta", CloneID: "1", Junction: "TGTGCGAGG", JunctionAA: "CARDYW"},
		},
	}

	// seq3 never aligned and must be dropped; order follows the combined file.
	ids := []string{"seq2|||p2.fasta", "seq1|||p1.fasta", "seq3|||p1.fasta"}
	got := mergeResults(ids, hits, clones)
	require.Len(t, got, 2)

	assert.Equal(t, "seq2|||p2.fasta", got[0].ID)
	assert.Equal(t, "p2.fasta", got[0].SourceFile)
	assert.Equal(t, "Kappa", got[0].Isotype)
	assert.Nil(t, got[0].CloneID)
	assert.False(t, got[0].Productive)

	s1 := got[1]
	assert.Equal(t, "IGHV3-23*01", s1.VGene)
	assert.Equal(t, "VH3-23", s1.VLocus)
	assert.Equal(t, "IGHJ4*02", s1.JGene)
	assert.Equal(t, "Heavy", s1.Isotype)
	require.NotNil(t, s1.SomaticMutations)
	assert.Equal(t, 9, *s1.SomaticMutations)
	assert.Equal(t, "TGTGCGAGA", s1.CDR3DNA)
	assert.Equal(t, "CARDYW", s1.CDR3Peptide)
	require.NotNil(t, s1.CloneID)
	assert.Equal(t, 1, *s1.CloneID)
	assert.Equal(t, 2, s1.CloneCount)
	assert.True(t, s1.Productive)
}

func TestMergeResults_DescribedHeaders(t *testing.T) {
	// Deflines with a description keep it in the combined ID, but the
	// aligner and MakeDb report only the first token. The sequence must
	// still be matched and keep its source-file association.
	hits := &airr.HitTable{
		Hits: []airr.HitRecord{
			{ChainType: "V", QueryID: "seq1", SubjectID: "IGHV3-23*01"},
		},
	}
	clones := &airr.CloneTable{
		Records: []airr.CloneRecord{
			{SequenceID: "seq1", CloneID: "1", JunctionAA: "CARDYW"},
		},
	}

	ids := []string{"seq1 heavy chain sample|||patient1.fasta"}
	got := mergeResults(ids, hits, clones)
	require.Len(t, got, 1)

	assert.Equal(t, "seq1 heavy chain sample|||patient1.fasta", got[0].ID)
	assert.Equal(t, "patient1.fasta", got[0].SourceFile)
	assert.Equal(t, "IGHV3-23*01", got[0].VGene)
	assert.Equal(t, "CARDYW", got[0].CDR3Peptide)
	assert.True(t, got[0].Productive)
}

func TestMergeResults_NoCloneTable(t *testing.T) {
	hits := &airr.HitTable{
		Hits: []airr.HitRecord{
			{ChainType: "V", QueryID: "seq1|||p1.fasta", SubjectID: "IGHV1-69*01"},
		},
	}
	got := mergeResults([]string{"seq1|||p1.fasta"}, hits, nil)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].CDR3Peptide)
	assert.False(t, got[0].Productive)
}

func TestCloneTableSequences(t *testing.T) {
	table := &airr.CloneTable{
		Records: []airr.CloneRecord{
			{SequenceID: "seq1|||p1.fasta", VCall: "IGHV3-23*01", JCall: "IGHJ4*02", Junction: "TGT", JunctionAA: "CARW"},
			{SequenceID: "seq2|||p2.fasta", VCall: "IGHV3-23*02", JCall: "IGHJ4*01", JunctionAA: "CARF"},
			{SequenceID: "seq3|||p1.fasta", VCall: "IGHV1-69*01", JCall: "IGHJ6*02"}, // no CDR3, skipped
		},
	}

	inputs := CloneTableSequences(table)
	require.Len(t, inputs, 2)

	assert.Equal(t, "seq1|||p1.fasta", inputs[0].Key)
	assert.Equal(t, "p1.fasta", inputs[0].File)
	assert.Equal(t, "CARW", inputs[0].CDR3AA)
	assert.Equal(t, "IGHV3-23", inputs[0].VFamily)
	assert.Equal(t, "IGHJ4", inputs[0].JFamily)

	// Allele suffixes collapse to the same family.
	assert.Equal(t, "IGHV3-23", inputs[1].VFamily)
}
