// Package clonality groups annotated sequences into clones by CDR3-peptide
// similarity within matching V/J gene families, extracts public clones
// (clones spanning two or more source files), and derives the visualization
// datasets of the public-clone report.
package clonality

import (
	"fmt"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

// Sequence is one clustering input: a sequence key plus the fields the
// engine compares on. VFamily and JFamily carry the allele-stripped calls.
type Sequence struct {
	Key     string
	File    string
	CDR3AA  string
	CDR3DNA string
	VFamily string
	JFamily string
}

// Params selects the clustering rule.
type Params struct {
	Mode string

	// SimilarityThreshold applies when MaxMismatches is nil.
	SimilarityThreshold float64

	// MaxMismatches, when set, switches the join rule to an absolute
	// edit-distance cap.
	MaxMismatches *int
}

// ParamsForMode resolves a mode name and optional caller overrides into
// concrete parameters. Custom mode with neither knob set falls back to the
// lenient defaults.
func ParamsForMode(mode string, threshold *float64, maxMismatches *int) Params {
	switch mode {
	case domain.ModeExact:
		zero := 0
		return Params{Mode: domain.ModeExact, SimilarityThreshold: 1.0, MaxMismatches: &zero}
	case domain.ModeCustom:
		p := Params{Mode: domain.ModeCustom, SimilarityThreshold: 0.85}
		switch {
		case maxMismatches != nil:
			p.MaxMismatches = maxMismatches
		case threshold != nil:
			p.SimilarityThreshold = *threshold
		default:
			two := 2
			p.MaxMismatches = &two
		}
		return p
	default:
		two := 2
		return Params{Mode: domain.ModeLenient, SimilarityThreshold: 0.85, MaxMismatches: &two}
	}
}

// Method describes the active rule for the report.
func (p Params) Method() string {
	switch p.Mode {
	case domain.ModeExact:
		return "Exact CDR3 AA match (100% identity)"
	case domain.ModeLenient:
		return "≤2 AA mismatches or ≥85% similarity (AIRR standard)"
	}
	if p.MaxMismatches != nil {
		return fmt.Sprintf("≤%d AA mismatches", *p.MaxMismatches)
	}
	return fmt.Sprintf("≥%d%% similarity", int(p.SimilarityThreshold*100))
}

// joins reports whether a candidate may join the cluster seeded by seed.
func (p Params) joins(seed, cand Sequence) bool {
	if seed.VFamily != cand.VFamily || seed.JFamily != cand.JFamily {
		return false
	}
	if p.MaxMismatches != nil {
		return Levenshtein(seed.CDR3AA, cand.CDR3AA) <= *p.MaxMismatches
	}
	return Similarity(seed.CDR3AA, cand.CDR3AA) >= p.SimilarityThreshold
}

// Cluster partitions sequences into clones. Sequences with an empty CDR3
// peptide are skipped; every remaining sequence lands in exactly one clone.
//
// In exact mode, sequences group by the (CDR3 AA, V family, J family) tuple.
// Otherwise the pass is seed-based and order-dependent: each unassigned
// sequence opens a cluster, and later unassigned sequences join only when
// they match the seed itself, never another member. A sequence similar to a
// non-seed member but not to the seed stays out, so clusters are not
// transitive similarity cliques. That asymmetry is load-bearing for which
// clones end up reported as public; do not collapse it into single-linkage.
func Cluster(sequences []Sequence, p Params) []domain.Clone {
	if p.Mode == domain.ModeExact {
		return clusterExact(sequences)
	}
	return clusterBySeed(sequences, p)
}

func clusterExact(sequences []Sequence) []domain.Clone {
	var clones []domain.Clone
	index := make(map[string]int)

	for _, s := range sequences {
		if s.CDR3AA == "" {
			continue
		}
		key := s.CDR3AA + "||" + s.VFamily + "||" + s.JFamily
		i, ok := index[key]
		if !ok {
			i = len(clones)
			index[key] = i
			clones = append(clones, domain.Clone{
				ID:      key,
				CDR3AA:  s.CDR3AA,
				CDR3DNA: s.CDR3DNA,
				VGene:   s.VFamily,
				JGene:   s.JFamily,
				Files:   make(map[string]struct{}),
			})
		}
		clones[i].Members = append(clones[i].Members, s.Key)
		clones[i].Files[s.File] = struct{}{}
	}
	return clones
}

func clusterBySeed(sequences []Sequence, p Params) []domain.Clone {
	var clones []domain.Clone
	assigned := make(map[string]bool, len(sequences))

	for i, seed := range sequences {
		if seed.CDR3AA == "" || assigned[seed.Key] {
			continue
		}

		clone := domain.Clone{
			ID:      fmt.Sprintf("cluster_%d", len(clones)),
			CDR3AA:  seed.CDR3AA,
			CDR3DNA: seed.CDR3DNA,
			VGene:   seed.VFamily,
			JGene:   seed.JFamily,
			Members: []string{seed.Key},
			Files:   map[string]struct{}{seed.File: {}},
		}
		assigned[seed.Key] = true

		for _, cand := range sequences[i+1:] {
			if cand.CDR3AA == "" || assigned[cand.Key] {
				continue
			}
			if p.joins(seed, cand) {
				clone.Members = append(clone.Members, cand.Key)
				clone.Files[cand.File] = struct{}{}
				assigned[cand.Key] = true
			}
		}
		clones = append(clones, clone)
	}
	return clones
}

// Assignment flattens clones into the key-to-clone mapping.
func Assignment(clones []domain.Clone) domain.ClusterAssignment {
	out := make(domain.ClusterAssignment)
	for _, c := range clones {
		for _, m := range c.Members {
			out[m] = c.ID
		}
	}
	return out
}
