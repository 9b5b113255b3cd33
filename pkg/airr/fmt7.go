package airr

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// HitRecord is one row of the aligner's format-7 hit table.
type HitRecord struct {
	ChainType       string
	QueryID         string
	SubjectID       string
	PercentIdentity string
	AlignmentLength string
	Mismatches      string
	GapOpens        string
	Gaps            string
	QStart          string
	QEnd            string
	SStart          string
	SEnd            string
	EValue          string
	BitScore        string
	QuerySeq        string
	SubjectSeq      string
	BTOP            string
}

// CDR3Record is a synthetic row derived from the aligner's sub-region and
// alignment-summary sections. SomaticMutations rides in the hit table's
// alignment-length column when persisted.
type CDR3Record struct {
	QueryID          string
	DNA              string
	Peptide          string
	SomaticMutations int
}

// HitTable is the parsed output of one alignment run.
type HitTable struct {
	Hits  []HitRecord
	CDR3s []CDR3Record
}

// hitColumns is the persisted column layout, fixed by the aligner contract.
const hitColumns = "chain type\tquery id\tsubject id\t% identity\talignment length\tmismatches\tgap opens\tgaps\tq.start\tq.ends\ts.start\ts.end\tevalue\tbit score\tquery seq\tsubject seq\tBTOP"

// ParseHitTable consumes raw aligner output in format 7 ("-outfmt '7 std
// qseq sseq btop'"). It collects the rows following each "hits found"
// marker, tracks the current query, captures the CDR3 sub-region details,
// and synthesizes one CDR3Record per query whose alignment summary includes
// a CDR3 row, carrying the Total mismatch count as the somatic-mutation
// proxy.
func ParseHitTable(r io.Reader) (*HitTable, error) {
	table := &HitTable{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		curQuery    string
		cdr3DNA     string
		cdr3Peptide string
		readingHits bool
		inSubRegion bool
		inSummary   bool
		summaryCDR3 bool
	)

	flushCDR3 := func(totalLine string) {
		fields := strings.Fields(totalLine)
		if len(fields) < 6 {
			return
		}
		mutations, err := strconv.Atoi(fields[5])
		if err != nil {
			mutations = 0
		}
		table.CDR3s = append(table.CDR3s, CDR3Record{
			QueryID:          curQuery,
			DNA:              cdr3DNA,
			Peptide:          cdr3Peptide,
			SomaticMutations: mutations,
		})
	}

	for sc.Scan() {
		line := sc.Text()

		if strings.HasPrefix(line, "#") {
			readingHits = false
			inSubRegion = false
			comment := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			switch {
			case strings.HasPrefix(comment, "Query: "):
				curQuery = strings.TrimSpace(strings.TrimPrefix(comment, "Query: "))
				cdr3DNA, cdr3Peptide = "", ""
				inSummary, summaryCDR3 = false, false
			case strings.Contains(comment, "Sub-region sequence details"):
				inSubRegion = true
			case strings.Contains(comment, "Alignment summary"):
				inSummary, summaryCDR3 = true, false
			case strings.Contains(comment, "hits found"):
				readingHits = true
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			readingHits = false
			inSubRegion = false
			continue
		}

		switch {
		case readingHits:
			if rec, ok := parseHitRow(line); ok {
				table.Hits = append(table.Hits, rec)
			}
		case inSubRegion && strings.HasPrefix(line, "CDR3"):
			parts := strings.Split(line, "\t")
			if len(parts) >= 3 {
				cdr3DNA, cdr3Peptide = parts[1], parts[2]
			}
		case inSummary && strings.HasPrefix(trimmed, "CDR3-IMGT"):
			summaryCDR3 = true
		case inSummary && strings.HasPrefix(trimmed, "Total"):
			if summaryCDR3 {
				flushCDR3(trimmed)
			}
			inSummary, summaryCDR3 = false, false
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning hit table: %w", err)
	}
	return table, nil
}

func parseHitRow(line string) (HitRecord, bool) {
	f := strings.Split(line, "\t")
	if len(f) < 14 {
		return HitRecord{}, false
	}
	// Pad optional trailing columns (query seq, subject seq, BTOP).
	for len(f) < 17 {
		f = append(f, "")
	}
	return HitRecord{
		ChainType:       strings.TrimSpace(f[0]),
		QueryID:         strings.TrimSpace(f[1]),
		SubjectID:       strings.TrimSpace(f[2]),
		PercentIdentity: strings.TrimSpace(f[3]),
		AlignmentLength: strings.TrimSpace(f[4]),
		Mismatches:      strings.TrimSpace(f[5]),
		GapOpens:        strings.TrimSpace(f[6]),
		Gaps:            strings.TrimSpace(f[7]),
		QStart:          strings.TrimSpace(f[8]),
		QEnd:            strings.TrimSpace(f[9]),
		SStart:          strings.TrimSpace(f[10]),
		SEnd:            strings.TrimSpace(f[11]),
		EValue:          strings.TrimSpace(f[12]),
		BitScore:        strings.TrimSpace(f[13]),
		QuerySeq:        strings.TrimSpace(f[14]),
		SubjectSeq:      strings.TrimSpace(f[15]),
		BTOP:            strings.TrimSpace(f[16]),
	}, true
}

// WriteHitCSV persists the table, including the synthetic CDR3 rows, in the
// fixed column layout. CDR3 rows store the nucleotide sequence in the
// subject-id column, the peptide in the %-identity column, and the
// somatic-mutation count in the alignment-length column, which is the layout
// downstream consumers expect.
func WriteHitCSV(w io.Writer, table *HitTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(hitColumns, "\t")); err != nil {
		return fmt.Errorf("writing hit header: %w", err)
	}
	for _, h := range table.Hits {
		row := []string{
			h.ChainType, h.QueryID, h.SubjectID, h.PercentIdentity,
			h.AlignmentLength, h.Mismatches, h.GapOpens, h.Gaps,
			h.QStart, h.QEnd, h.SStart, h.SEnd, h.EValue, h.BitScore,
			h.QuerySeq, h.SubjectSeq, h.BTOP,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing hit row: %w", err)
		}
	}
	for _, c := range table.CDR3s {
		row := make([]string, 17)
		row[0] = "CDR3"
		row[1] = c.QueryID
		row[2] = c.DNA
		row[3] = c.Peptide
		row[4] = strconv.Itoa(c.SomaticMutations)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CDR3 row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
