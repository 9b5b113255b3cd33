package domain

import "strings"

// KeyDelimiter separates the original sequence ID from its source file in a
// compound sequence key. It must not occur in input filenames; after the
// per-file inputs are concatenated for joint alignment, this delimiter is the
// only way to regroup results by originating file.
const KeyDelimiter = "|||"

// UnknownFile is the grouping bucket for keys that carry no file component.
const UnknownFile = "unknown.fasta"

// SequenceKey identifies a sequence uniquely within a run.
type SequenceKey struct {
	OriginalID string
	SourceFile string
}

// Encode serializes the key in the canonical <id>|||<file> form.
func (k SequenceKey) Encode() string {
	return k.OriginalID + KeyDelimiter + k.SourceFile
}

// ParseSequenceKey splits a compound key. Keys without the delimiter map to
// the UnknownFile bucket, matching how unmarked legacy IDs are grouped.
func ParseSequenceKey(s string) SequenceKey {
	if i := strings.LastIndex(s, KeyDelimiter); i >= 0 {
		return SequenceKey{OriginalID: s[:i], SourceFile: s[i+len(KeyDelimiter):]}
	}
	return SequenceKey{OriginalID: s, SourceFile: UnknownFile}
}

// AnnotatedSequence is one input sequence after alignment and clone
// definition, merged from the aligner hit table and the clone table.
// Immutable after creation.
type AnnotatedSequence struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	VGene            string `json:"v_gene,omitempty"`
	DGene            string `json:"d_gene,omitempty"`
	JGene            string `json:"j_gene,omitempty"`
	VLocus           string `json:"v_locus,omitempty"`
	DLocus           string `json:"d_locus,omitempty"`
	JLocus           string `json:"j_locus,omitempty"`
	CDR3DNA          string `json:"cdr3_dna,omitempty"`
	CDR3Peptide      string `json:"cdr3_peptide,omitempty"`
	SomaticMutations *int   `json:"somatic_mutations"`
	Isotype          string `json:"isotype,omitempty"`
	CloneID          *int   `json:"clone_id"`
	CloneCount       int    `json:"clone_count"`
	Productive       bool   `json:"productive"`
	SourceFile       string `json:"-"`
}

// GeneFamily strips the allele suffix from a gene call: IGHV3-23*01 -> IGHV3-23.
func GeneFamily(call string) string {
	if i := strings.Index(call, "*"); i >= 0 {
		return call[:i]
	}
	return call
}

// Clone is a partition class of sequences inferred to share a common
// ancestral cell, identified by CDR3 similarity within a V/J family pair.
type Clone struct {
	ID string `json:"id"`

	// CDR3AA is the representative peptide (the cluster seed's).
	CDR3AA  string `json:"cdr3_aa"`
	CDR3DNA string `json:"cdr3_dna,omitempty"`
	VGene   string `json:"v_gene"`
	JGene   string `json:"j_gene"`

	// Members are encoded sequence keys in join order (seed first).
	Members []string `json:"sequences"`

	// Files is the set of distinct source files among members.
	Files map[string]struct{} `json:"-"`
}

// PublicClone is a Clone shared by two or more source files, with the
// aggregates the report carries.
type PublicClone struct {
	Clone
	SequenceCount        int      `json:"sequence_count"`
	PatientCount         int      `json:"patient_count"`
	Patients             []string `json:"patients"`
	UniqueCDR3Variants   int      `json:"unique_cdr3_variants"`
	AvgIntraClusterSimil float64  `json:"avg_intra_cluster_similarity"`
}

// ClusterAssignment maps encoded sequence keys to clone IDs. Every input
// sequence with a non-empty CDR3 peptide belongs to exactly one clone.
type ClusterAssignment map[string]string
