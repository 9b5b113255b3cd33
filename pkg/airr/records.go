// Package airr provides typed record views over the tabular outputs of the
// external alignment and clone-definition tools. Column names are mapped to
// fields exactly once, at the ingestion boundary; downstream code never
// indexes rows by column name.
package airr

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CloneRecord is one row of a db-pass, clone-pass, or germ-pass table.
// Raw preserves the full source row so subset tables can be re-emitted
// without losing columns this package does not model.
type CloneRecord struct {
	SequenceID string
	VCall      string
	DCall      string
	JCall      string
	Junction   string
	JunctionAA string
	CloneID    string

	Raw []string
}

// CloneTable is a parsed clone-definition TSV.
type CloneTable struct {
	Columns []string
	Records []CloneRecord
}

// ReadCloneTable parses a tab-separated clone table with a header row.
func ReadCloneTable(r io.Reader) (*CloneTable, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading clone table header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"sequence_id"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("clone table missing %q column", required)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		v := strings.TrimSpace(row[i])
		if v == "NA" || v == "None" {
			return ""
		}
		return v
	}

	table := &CloneTable{Columns: header}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading clone table row: %w", err)
		}
		table.Records = append(table.Records, CloneRecord{
			SequenceID: field(row, "sequence_id"),
			VCall:      field(row, "v_call"),
			DCall:      field(row, "d_call"),
			JCall:      field(row, "j_call"),
			Junction:   field(row, "junction"),
			JunctionAA: field(row, "junction_aa"),
			CloneID:    field(row, "clone_id"),
			Raw:        row,
		})
	}
	return table, nil
}

// CloneIDInt parses the clone identifier; clone-pass tables number clones.
func (r CloneRecord) CloneIDInt() (int, bool) {
	n, err := strconv.Atoi(r.CloneID)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WriteTSV re-emits a header plus the given rows, preserving source columns.
func WriteTSV(w io.Writer, columns []string, records []CloneRecord) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing clone table header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(rec.Raw); err != nil {
			return fmt.Errorf("writing clone table row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
