package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/bioseqio/clonepipe/pkg/airr"
	"github.com/bioseqio/clonepipe/pkg/clonality"
	"github.com/bioseqio/clonepipe/pkg/domain"
)

func (c *Controller) stageResults(ctx context.Context) error {
	c.progress("results", 95, "Loading results...")

	if c.hits == nil {
		return fmt.Errorf("no alignment results available")
	}

	germPass, err := c.readGermPass()
	if err != nil {
		return fmt.Errorf("reading clone table: %w", err)
	}

	sequences := mergeResults(c.sequenceIDs, c.hits, germPass)

	groups := make(map[string][]domain.AnnotatedSequence)
	for _, seq := range sequences {
		groups[seq.SourceFile] = append(groups[seq.SourceFile], seq)
	}

	c.result("sequences", "", map[string]any{
		"sequences":   sequences,
		"file_groups": groups,
		"total_count": len(sequences),
	})

	if germPass != nil {
		c.emitPublicClones(ctx, germPass)
	}
	return nil
}

// mergeResults joins the alignment hit table with the clone table into one
// annotated record per input sequence, in combined-file order. Sequences the
// aligner produced no hits for are dropped. The clone table is the
// authoritative source for CDR3 data; the hit table contributes gene calls,
// locus, isotype, and the somatic-mutation count.
//
// sequenceIDs carry full tagged deflines; the aligner and MakeDb truncate
// query IDs at the first whitespace, so lookups go through queryToken while
// the full ID keeps the source-file association.
func mergeResults(sequenceIDs []string, hits *airr.HitTable, clones *airr.CloneTable) []domain.AnnotatedSequence {
	type geneHits struct {
		v, d, j *airr.HitRecord
		cdr3    *airr.CDR3Record
	}
	byQuery := make(map[string]*geneHits)
	at := func(id string) *geneHits {
		g := byQuery[id]
		if g == nil {
			g = &geneHits{}
			byQuery[id] = g
		}
		return g
	}
	for i := range hits.Hits {
		h := &hits.Hits[i]
		g := at(h.QueryID)
		// Only the top hit per chain counts.
		switch h.ChainType {
		case "V":
			if g.v == nil {
				g.v = h
			}
		case "D":
			if g.d == nil {
				g.d = h
			}
		case "J":
			if g.j == nil {
				g.j = h
			}
		}
	}
	for i := range hits.CDR3s {
		r := &hits.CDR3s[i]
		if g := at(r.QueryID); g.cdr3 == nil {
			g.cdr3 = r
		}
	}

	cloneByID := make(map[string]airr.CloneRecord)
	cloneSize := make(map[string]int)
	if clones != nil {
		for _, rec := range clones.Records {
			cloneByID[rec.SequenceID] = rec
			if rec.CloneID != "" {
				cloneSize[rec.CloneID]++
			}
		}
	}

	sequences := make([]domain.AnnotatedSequence, 0, len(sequenceIDs))
	for _, id := range sequenceIDs {
		g, ok := byQuery[queryToken(id)]
		if !ok {
			continue
		}

		seq := domain.AnnotatedSequence{
			ID:         id,
			Name:       id,
			SourceFile: domain.ParseSequenceKey(id).SourceFile,
		}
		if g.v != nil {
			seq.VGene = g.v.SubjectID
			seq.VLocus = locusFromCall(seq.VGene)
			seq.Isotype = isotypeFromCall(seq.VGene)
		}
		if g.d != nil {
			seq.DGene = g.d.SubjectID
			seq.DLocus = locusFromCall(seq.DGene)
		}
		if g.j != nil {
			seq.JGene = g.j.SubjectID
			seq.JLocus = locusFromCall(seq.JGene)
		}
		if g.cdr3 != nil {
			m := g.cdr3.SomaticMutations
			seq.SomaticMutations = &m
		}

		if rec, ok := cloneByID[queryToken(id)]; ok {
			seq.CDR3DNA = rec.Junction
			seq.CDR3Peptide = rec.JunctionAA
			if n, ok := rec.CloneIDInt(); ok {
				seq.CloneID = &n
				seq.CloneCount = cloneSize[rec.CloneID]
			}
			// Presence in the germ-pass table implies a productive
			// rearrangement.
			seq.Productive = true
		}

		sequences = append(sequences, seq)
	}
	return sequences
}

// queryToken reduces a combined-file defline to the ID the external tools
// report: everything up to the first whitespace.
func queryToken(id string) string {
	if i := strings.IndexAny(id, " \t"); i >= 0 {
		return id[:i]
	}
	return id
}

// locusFromCall derives the display locus from an allele call: the
// gene-class and chain letters swapped, then the designation up to the
// allele marker, so IGHV3-23*01 becomes "VH3-23". Calls without an allele
// marker or shorter than the locus prefix yield "".
func locusFromCall(call string) string {
	star := strings.Index(call, "*")
	if star < 0 || len(call) <= 4 {
		return ""
	}
	return string(call[3]) + string(call[2]) + call[4:star]
}

// isotypeFromCall classifies the light/heavy chain from the V call.
func isotypeFromCall(call string) string {
	switch {
	case strings.Contains(call, "L"):
		return "Lambda"
	case strings.Contains(call, "K"):
		return "Kappa"
	default:
		return "Heavy"
	}
}

// emitPublicClones runs the cross-patient clustering pass over the clone
// table and emits the report. Failures here degrade the run's output, not
// its outcome.
func (c *Controller) emitPublicClones(ctx context.Context, table *airr.CloneTable) {
	inputs := CloneTableSequences(table)
	if len(inputs) == 0 {
		c.protoLog(domain.LevelWarn, "No CDR3 sequences available for public clone analysis")
		return
	}

	params := clonality.ParamsForMode(c.cfg.PublicMode, c.cfg.SimilarityThreshold, c.cfg.MaxMismatches)
	report := clonality.BuildReport(inputs, params, c.cfg.TopN)

	c.result("public_clones", "", map[string]any{
		"report": report,
	})
	c.protoLog(domain.LevelInfo, fmt.Sprintf(
		"Public clone analysis complete: %d public clones across %d patients",
		report.Stats.TotalPublicClones, report.Stats.TotalPatients))

	if c.store != nil {
		if err := c.store.SaveReport(ctx, c.runID, report); err != nil {
			c.logger.Warn("persisting public clone report", "err", err)
		}
	}
}

// CloneTableSequences adapts clone-table rows into clustering inputs.
// Rows without a CDR3 amino-acid sequence are skipped.
func CloneTableSequences(table *airr.CloneTable) []clonality.Sequence {
	inputs := make([]clonality.Sequence, 0, len(table.Records))
	for _, rec := range table.Records {
		if rec.JunctionAA == "" {
			continue
		}
		inputs = append(inputs, clonality.Sequence{
			Key:     rec.SequenceID,
			File:    domain.ParseSequenceKey(rec.SequenceID).SourceFile,
			CDR3AA:  rec.JunctionAA,
			CDR3DNA: rec.Junction,
			VFamily: domain.GeneFamily(rec.VCall),
			JFamily: domain.GeneFamily(rec.JCall),
		})
	}
	return inputs
}
