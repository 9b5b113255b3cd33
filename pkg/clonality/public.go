package clonality

import (
	"math"
	"sort"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

// Stats summarizes a public-clone report.
type Stats struct {
	TotalPublicClones            int     `json:"total_public_clones"`
	TotalSequencesInPublicClones int     `json:"total_sequences_in_public_clones"`
	MaxPatientSharing            int     `json:"max_patient_sharing"`
	TotalPatients                int     `json:"total_patients"`
	ClusteringMode               string  `json:"clustering_mode"`
	SimilarityThreshold          float64 `json:"similarity_threshold"`
	TopNDisplayed                int     `json:"top_n_displayed"`
}

// Report is the full public-clone analysis output.
type Report struct {
	PublicClones   []domain.PublicClone `json:"public_clones"`
	TopX           []domain.PublicClone `json:"top_x"`
	Stats          Stats                `json:"stats"`
	Method         string               `json:"method"`
	Visualizations Visualizations       `json:"visualizations"`
}

// BuildReport clusters the sequences, extracts public clones (clones whose
// members span two or more source files), ranks them by (patient count,
// sequence count) descending, and derives the visualization datasets.
// Re-running on identical input with identical parameters yields an
// identical report.
func BuildReport(sequences []Sequence, p Params, topN int) Report {
	clones := Cluster(sequences, p)

	cdr3ByKey := make(map[string]string, len(sequences))
	patientSet := make(map[string]struct{})
	for _, s := range sequences {
		if s.CDR3AA == "" {
			continue
		}
		cdr3ByKey[s.Key] = s.CDR3AA
		patientSet[s.File] = struct{}{}
	}

	var publics []domain.PublicClone
	for _, c := range clones {
		if len(c.Files) < 2 {
			continue
		}

		patients := make([]string, 0, len(c.Files))
		for f := range c.Files {
			patients = append(patients, f)
		}
		sort.Strings(patients)

		variants := distinctVariants(c.Members, cdr3ByKey)

		publics = append(publics, domain.PublicClone{
			Clone:                c,
			SequenceCount:        len(c.Members),
			PatientCount:         len(patients),
			Patients:             patients,
			UniqueCDR3Variants:   len(variants),
			AvgIntraClusterSimil: avgPairwiseSimilarity(variants, p),
		})
	}

	// Stable: ties keep discovery (input) order, so the ranking is
	// deterministic for a given clone table.
	sort.SliceStable(publics, func(i, j int) bool {
		if publics[i].PatientCount != publics[j].PatientCount {
			return publics[i].PatientCount > publics[j].PatientCount
		}
		return publics[i].SequenceCount > publics[j].SequenceCount
	})

	top := publics
	if topN > 0 && len(publics) > topN {
		top = publics[:topN]
	}

	totalSeqs := 0
	maxShare := 0
	for _, pc := range publics {
		totalSeqs += pc.SequenceCount
		if pc.PatientCount > maxShare {
			maxShare = pc.PatientCount
		}
	}

	allPatients := make([]string, 0, len(patientSet))
	for f := range patientSet {
		allPatients = append(allPatients, f)
	}
	sort.Strings(allPatients)

	return Report{
		PublicClones: publics,
		TopX:         top,
		Stats: Stats{
			TotalPublicClones:            len(publics),
			TotalSequencesInPublicClones: totalSeqs,
			MaxPatientSharing:            maxShare,
			TotalPatients:                len(allPatients),
			ClusteringMode:               p.Mode,
			SimilarityThreshold:          p.SimilarityThreshold,
			TopNDisplayed:                len(top),
		},
		Method:         p.Method(),
		Visualizations: BuildVisualizations(publics, allPatients),
	}
}

// distinctVariants returns the distinct CDR3 peptides among members, in
// first-appearance order.
func distinctVariants(members []string, cdr3ByKey map[string]string) []string {
	seen := make(map[string]struct{}, len(members))
	var out []string
	for _, m := range members {
		aa := cdr3ByKey[m]
		if aa == "" {
			continue
		}
		if _, ok := seen[aa]; ok {
			continue
		}
		seen[aa] = struct{}{}
		out = append(out, aa)
	}
	return out
}

// avgPairwiseSimilarity is the mean similarity across unordered pairs of
// distinct CDR3 variants. A single-variant clone, or any clone in exact
// mode, scores 1.0. The value is rounded to three decimals for reporting.
func avgPairwiseSimilarity(variants []string, p Params) float64 {
	if len(variants) < 2 || p.Mode == domain.ModeExact {
		return 1.0
	}
	var sum float64
	var n int
	for i := 0; i < len(variants); i++ {
		for j := i + 1; j < len(variants); j++ {
			sum += Similarity(variants[i], variants[j])
			n++
		}
	}
	return math.Round(sum/float64(n)*1000) / 1000
}
