package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bioseqio/clonepipe/pkg/domain"
)

// CleanIMGT rewrites a reference or input file so headers carry only the
// gene name and sequence lines lose IMGT gap dots. IMGT headers look like
// ">accession|IGHV1-69*01|Homo sapiens|..."; the second pipe-delimited field
// is the name. Headers with fewer pipes degrade gracefully.
func CleanIMGT(inPath, outPath string) error {
	info, err := os.Stat(inPath)
	if err != nil {
		return fmt.Errorf("cleaning %s: %w", inPath, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("cleaning %s: input file is empty", inPath)
	}

	in, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("cleaning %s: %w", inPath, err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("cleaning %s: %w", inPath, err)
	}

	w := bufio.NewWriter(out)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	sequences := 0
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if line[0] == '>' {
			sequences++
			fmt.Fprintf(w, ">%s\n", cleanHeaderName(line))
			continue
		}
		if strings.TrimSpace(line) != "" {
			w.WriteString(strings.ReplaceAll(line, ".", ""))
			w.WriteByte('\n')
		}
	}

	if err := sc.Err(); err != nil {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("cleaning %s: %w", inPath, err)
	}
	if sequences == 0 {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("cleaning %s: no sequences found", inPath)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("cleaning %s: %w", inPath, err)
	}
	return out.Close()
}

func cleanHeaderName(header string) string {
	first := strings.IndexByte(header, '|')
	if first < 0 {
		return strings.TrimSpace(header[1:])
	}
	second := strings.IndexByte(header[first+1:], '|')
	if second < 0 {
		return header[1:first]
	}
	return header[first+1 : first+1+second]
}

// CombineFasta concatenates the inputs into outPath, tagging every header
// with the key delimiter and the source basename so results can be regrouped
// by file after joint alignment. Returns the tagged sequence IDs in file
// order. Deflines with a description keep it inside the ID; downstream
// matching against tool output truncates at the first whitespace.
func CombineFasta(paths []string, outPath string) ([]string, error) {
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("combining inputs: %w", err)
	}
	w := bufio.NewWriter(out)

	var ids []string
	for _, p := range paths {
		base := filepath.Base(p)
		in, err := os.Open(p)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("combining %s: %w", p, err)
		}
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(line, ">") {
				key := domain.SequenceKey{
					OriginalID: strings.TrimPrefix(strings.TrimRight(line, " \t"), ">"),
					SourceFile: base,
				}
				id := key.Encode()
				w.WriteString(">" + id)
				w.WriteByte('\n')
				ids = append(ids, id)
			} else {
				w.WriteString(line)
				w.WriteByte('\n')
			}
		}
		err = sc.Err()
		in.Close()
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("combining %s: %w", p, err)
		}
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return nil, fmt.Errorf("combining inputs: %w", err)
	}
	return ids, out.Close()
}

// fastaRecord is a minimal in-memory sequence used by the tree stage to
// collapse duplicate reads by content.
type fastaRecord struct {
	ID  string
	Seq string
}

// readFasta loads records from a combined file. The ID is the header up to
// the first whitespace, matching how the aligner reports query IDs.
func readFasta(path string) ([]fastaRecord, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var records []fastaRecord
	var cur *fastaRecord
	var seq strings.Builder

	flush := func() {
		if cur != nil {
			cur.Seq = seq.String()
			records = append(records, *cur)
			seq.Reset()
		}
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, ">") {
			flush()
			id := strings.TrimPrefix(line, ">")
			if i := strings.IndexAny(id, " \t"); i >= 0 {
				id = id[:i]
			}
			cur = &fastaRecord{ID: id}
			continue
		}
		if cur != nil {
			seq.WriteString(strings.TrimSpace(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return records, nil
}

// normalizeSeq prepares sequence content for duplicate collapsing the same
// way the tree builder does: uppercase, gaps and Ns removed.
func normalizeSeq(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "N", "")
}
