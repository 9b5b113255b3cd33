package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bioseqio/clonepipe/pkg/adapters/process"
	"github.com/bioseqio/clonepipe/pkg/airr"
	"github.com/bioseqio/clonepipe/pkg/domain"
)

// Artifact names inside the output directory. The db-pass / clone-pass /
// germ-pass suffix chain is fixed by the Change-O tools and the file names
// are part of the host contract; do not rename.
const (
	alignBase      = "ig_out_data"
	fmt7Name       = alignBase + ".fmt7"
	dbPassName     = alignBase + "_db-pass.tsv"
	clonePassName  = alignBase + "_db-pass_clone-pass.tsv"
	germPassName   = alignBase + "_db-pass_clone-pass_germ-pass.tsv"
	combinedName   = "combined.fasta"
	hitCSVName     = "outdata.csv"
	treesInputName = "build-trees-input.tsv"
	seqCountsName  = "sequence_counts.json"
	distPlotName   = "distributionPlot.png"
)

// R scripts shipped under <data_dir>/scripts.
const (
	estimatorScript = "calculateDistribution.R"
	treeScript      = "build-trees-ape.R"
	treeVizScript   = "visualize-tree.R"
)

// treeCloneLimit bounds how many of the largest clones get trees built.
const treeCloneLimit = 20

func (c *Controller) outPath(name string) string {
	return filepath.Join(c.cfg.OutputDir, name)
}

func (c *Controller) scriptPath(name string) string {
	return filepath.Join(c.cfg.DataDir, "scripts", name)
}

func (c *Controller) stageLoad(ctx context.Context) error {
	c.progress("loading", 5, "Loading FASTA files...")

	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	entries, err := os.ReadDir(c.cfg.FastaDir)
	if err != nil {
		return fmt.Errorf("reading FASTA directory %s: %w", c.cfg.FastaDir, err)
	}

	c.fastaPaths = nil
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.HasSuffix(name, ".fasta") && !strings.HasSuffix(name, ".fa") {
			continue
		}
		c.fastaPaths = append(c.fastaPaths, filepath.Join(c.cfg.FastaDir, name))
		names = append(names, name)
	}
	if len(c.fastaPaths) == 0 {
		return fmt.Errorf("no FASTA files found in: %s", c.cfg.FastaDir)
	}

	c.protoLog(domain.LevelInfo, fmt.Sprintf("Found %d FASTA file(s)", len(c.fastaPaths)))
	c.result("fasta_count", "", map[string]any{
		"count": len(c.fastaPaths),
		"files": names,
	})
	return nil
}

func (c *Controller) stageClean(ctx context.Context) error {
	if !c.cfg.CleanFasta {
		return nil
	}
	c.progress("cleaning", 10, "Cleaning FASTA files...")

	cleanDir := c.outPath("clean_fasta")
	if err := os.MkdirAll(cleanDir, 0o755); err != nil {
		return fmt.Errorf("creating clean directory: %w", err)
	}

	var cleaned []string
	total := len(c.fastaPaths)
	for i, path := range c.fastaPaths {
		name := filepath.Base(path)
		cleanPath := filepath.Join(cleanDir, cleanName(name))

		// A previous run's cleaned file is reused as-is.
		if fi, err := os.Stat(cleanPath); err == nil && fi.Size() > 0 {
			c.protoLog(domain.LevelInfo, fmt.Sprintf("Using existing cleaned file: %s", filepath.Base(cleanPath)))
		} else if err := CleanIMGT(path, cleanPath); err != nil {
			c.protoLog(domain.LevelWarn, fmt.Sprintf("Failed to clean %s: %v", name, err))
			continue
		} else {
			c.protoLog(domain.LevelInfo, fmt.Sprintf("Cleaned: %s", name))
		}
		cleaned = append(cleaned, cleanPath)

		c.progress("cleaning", 10+(i+1)*5/total, fmt.Sprintf("Cleaned %d/%d files", i+1, total))
	}

	if len(cleaned) == 0 {
		return fmt.Errorf("no FASTA files survived cleaning")
	}
	c.fastaPaths = cleaned
	return nil
}

func (c *Controller) stageSetup(ctx context.Context) error {
	c.progress("setup", 15, "Setting up databases...")

	c.dbV, c.dbD, c.dbJ = c.cfg.DatabaseV, c.cfg.DatabaseD, c.cfg.DatabaseJ
	if c.cfg.DatabaseType == domain.DatabaseIMGT {
		imgtDir := filepath.Join(c.cfg.DataDir, "IMGT_Human_Database")
		c.dbV = filepath.Join(imgtDir, "Human_V.fasta")
		c.dbD = filepath.Join(imgtDir, "Human_D.fasta")
		c.dbJ = filepath.Join(imgtDir, "Human_J.fasta")
	}

	for _, db := range []struct{ name, path string }{
		{"V", c.dbV}, {"D", c.dbD}, {"J", c.dbJ},
	} {
		if _, err := os.Stat(db.path); err != nil {
			return fmt.Errorf("database %s not found: %s", db.name, db.path)
		}
	}

	cleanDir := c.outPath("clean_db_files")
	if err := os.MkdirAll(cleanDir, 0o755); err != nil {
		return fmt.Errorf("creating clean database directory: %w", err)
	}
	// Stale cleaned databases from an earlier run are discarded, not reused.
	if old, err := os.ReadDir(cleanDir); err == nil {
		for _, e := range old {
			os.Remove(filepath.Join(cleanDir, e.Name()))
		}
	}

	clean := func(src string) (string, error) {
		name := strings.Replace(filepath.Base(src), ".fasta", "_clean.fasta", 1)
		dst := filepath.Join(cleanDir, name)
		if err := CleanIMGT(src, dst); err != nil {
			return "", fmt.Errorf("cleaning database %s: %w", filepath.Base(src), err)
		}
		return dst, nil
	}

	var err error
	if c.cleanV, err = clean(c.dbV); err != nil {
		return err
	}
	if c.cleanD, err = clean(c.dbD); err != nil {
		return err
	}
	if c.cleanJ, err = clean(c.dbJ); err != nil {
		return err
	}

	c.protoLog(domain.LevelInfo, "Database files cleaned and ready")
	return nil
}

func (c *Controller) stageCombine(ctx context.Context) error {
	c.progress("combining", 18, "Combining FASTA files...")

	c.combined = c.outPath(combinedName)
	ids, err := CombineFasta(c.fastaPaths, c.combined)
	if err != nil {
		return err
	}
	c.sequenceIDs = ids

	c.protoLog(domain.LevelInfo, fmt.Sprintf("Combined %d files into %s", len(c.fastaPaths), c.combined))
	return nil
}

func (c *Controller) stageBlastDB(ctx context.Context) error {
	c.progress("blast_db", 20, "Building BLAST databases...")

	dbDir := filepath.Join(c.cfg.DataDir, "Database-Files")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("creating BLAST database directory: %w", err)
	}

	build := func(kind, cleanPath string) string {
		out := filepath.Join(dbDir, filepath.Base(cleanPath))
		_, err := c.runner.Run(ctx, process.Invocation{
			Tool: process.ToolMakeBlastDB,
			Args: []string{"-parse_seqids", "-dbtype", "nucl", "-in", cleanPath, "-out", out},
		})
		if err != nil {
			// Pre-built databases may already exist alongside the input.
			c.protoLog(domain.LevelWarn, fmt.Sprintf("makeblastdb for %s returned non-zero exit code", kind))
		}
		return out
	}

	c.blastV = build("V", c.cleanV)
	c.blastD = build("D", c.cleanD)
	c.blastJ = build("J", c.cleanJ)

	c.protoLog(domain.LevelInfo, "BLAST databases built successfully")
	return nil
}

func (c *Controller) stageAlign(ctx context.Context) error {
	c.progress("igblast", 25, "Running IgBLAST analysis...")

	aux := filepath.Join(c.cfg.DataDir, "optional_data", "human_gl.aux")
	exec, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolIgBlast,
		Args: []string{
			"-germline_db_V", c.blastV,
			"-germline_db_D", c.blastD,
			"-germline_db_J", c.blastJ,
			"-query", c.combined,
			"-outfmt", "7 std qseq sseq btop",
			"-auxiliary_data", aux,
		},
		Dir: c.cfg.DataDir,
		// The aligner locates its internal_data through IGDATA.
		Env: map[string]string{"IGDATA": c.cfg.DataDir},
	})
	if err != nil {
		return fmt.Errorf("igblastn: %w: %s", err, firstLine(exec.Stderr))
	}

	if err := os.WriteFile(c.outPath(fmt7Name), []byte(exec.Stdout), 0o644); err != nil {
		return fmt.Errorf("writing alignment output: %w", err)
	}

	table, err := airr.ParseHitTable(strings.NewReader(exec.Stdout))
	if err != nil {
		return fmt.Errorf("parsing alignment output: %w", err)
	}
	c.hits = table

	csvPath := c.outPath(hitCSVName)
	f, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("writing hit table: %w", err)
	}
	if err := airr.WriteHitCSV(f, table); err != nil {
		f.Close()
		return fmt.Errorf("writing hit table: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing hit table: %w", err)
	}

	c.protoLog(domain.LevelInfo, fmt.Sprintf("IgBLAST analysis complete, found %d hits", len(table.Hits)+len(table.CDR3s)))
	c.result("igblast_output", csvPath, nil)
	return nil
}

func (c *Controller) stageThreshold(ctx context.Context) error {
	c.progress("threshold", 35, "Calculating distance threshold...")

	// MakeDb turns the raw alignment into the AIRR db-pass table. The
	// reference databases are passed J, V, D in that order.
	if _, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolMakeDB,
		Args: []string{"-i", fmt7Name, "-r", c.dbJ, c.dbV, c.dbD, "-s", c.combined},
		Dir:  c.cfg.OutputDir,
	}); err != nil {
		c.protoLog(domain.LevelWarn, fmt.Sprintf("MakeDb returned an error: %v", err))
	}

	calculated := c.estimateThreshold(ctx)
	c.protoLog(domain.LevelInfo, fmt.Sprintf("Calculated distance threshold: %g", calculated))

	neg := NewNegotiation(c.enc, c.dec)
	neg.Timeout = c.thresholdTimeout
	c.protoLog(domain.LevelInfo, fmt.Sprintf("Waiting for threshold response from user (calculated: %g)", calculated))

	value, err := neg.Resolve(ctx, calculated)
	if err != nil {
		if neg.State == StateCancelled {
			c.cancelled = true
		}
		return err
	}
	c.threshold = value
	c.protoLog(domain.LevelInfo, fmt.Sprintf("Using threshold value: %g", value))
	return nil
}

// estimateThreshold runs the distance estimator over the db-pass table. Any
// failure degrades to the default threshold; the host still gets to confirm
// or override the value.
func (c *Controller) estimateThreshold(ctx context.Context) float64 {
	dbPass := c.outPath(dbPassName)
	if fi, err := os.Stat(dbPass); err != nil || fi.Size() == 0 {
		c.protoLog(domain.LevelWarn, fmt.Sprintf("Alignment database missing or empty: %s", dbPass))
		return DefaultThreshold
	}

	exec, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolRscript,
		Args: []string{c.scriptPath(estimatorScript), dbPass, c.outPath(distPlotName)},
		Dir:  c.cfg.OutputDir,
	})
	if err != nil && exec.Stdout == "" {
		c.protoLog(domain.LevelWarn, fmt.Sprintf("Distance estimator failed: %v", err))
		return DefaultThreshold
	}

	value, ok := ParseEstimatorOutput(exec.Stdout)
	if !ok {
		c.protoLog(domain.LevelWarn, fmt.Sprintf("Could not parse a threshold from estimator output, using default %g", DefaultThreshold))
		return DefaultThreshold
	}
	return value
}

func (c *Controller) stageClonality(ctx context.Context) error {
	c.progress("clonality", 50, "Running clonality analysis...")

	// Both Change-O tools derive their output names from the input (the
	// db-pass / clone-pass / germ-pass suffix chain) and write relative to
	// their working directory.
	if exec, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolDefineClones,
		Args: []string{
			"-d", dbPassName,
			"--act", "set", "--model", "ham", "--norm", "len",
			"--dist", strconv.FormatFloat(c.threshold, 'g', -1, 64),
		},
		Dir: c.cfg.OutputDir,
	}); err != nil {
		return fmt.Errorf("DefineClones: %w: %s", err, firstLine(exec.Stderr))
	}
	c.protoLog(domain.LevelInfo, "Clone definition complete")

	if exec, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolCreateGermlines,
		Args: []string{
			"-d", clonePassName,
			"-r", c.dbV, c.dbD, c.dbJ,
			"-g", "dmask", "--cloned",
		},
		Dir: c.cfg.OutputDir,
	}); err != nil {
		return fmt.Errorf("CreateGermlines: %w: %s", err, firstLine(exec.Stderr))
	}
	c.protoLog(domain.LevelInfo, "Germline creation complete")

	germPass := c.outPath(germPassName)
	if _, err := os.Stat(germPass); err != nil {
		return fmt.Errorf("germline output missing: %s", germPass)
	}
	c.result("clonality_output", germPass, nil)
	return nil
}

func (c *Controller) stageTrees(ctx context.Context) error {
	c.progress("trees", 70, "Building phylogenetic trees...")

	table, err := c.readGermPass()
	if err != nil {
		return err
	}
	if table == nil {
		c.protoLog(domain.LevelWarn, "Germline pass file not found, skipping tree building")
		return nil
	}

	topClones, topRecords := topClonesByFrequency(table, treeCloneLimit)
	if len(topClones) == 0 {
		c.protoLog(domain.LevelWarn, "No clones available for tree building")
		return nil
	}

	treesInput := c.outPath(treesInputName)
	f, err := os.Create(treesInput)
	if err != nil {
		return fmt.Errorf("writing tree input: %w", err)
	}
	if err := airr.WriteTSV(f, table.Columns, topRecords); err != nil {
		f.Close()
		return fmt.Errorf("writing tree input: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing tree input: %w", err)
	}

	if err := c.writeSequenceCounts(table, topClones); err != nil {
		c.protoLog(domain.LevelWarn, fmt.Sprintf("Failed to write sequence counts: %v", err))
	}

	// The tree builder leaves a working directory behind; a stale one from
	// an earlier run confuses it.
	os.RemoveAll(c.outPath("build-trees-input"))

	if _, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolBuildTrees,
		Args: []string{"-d", treesInputName, "--collapse", "--clean", "all"},
		Dir:  c.cfg.OutputDir,
	}); err != nil {
		c.protoLog(domain.LevelWarn, fmt.Sprintf("BuildTrees returned an error: %v", err))
	}

	treesDir := c.outPath("trees")
	if err := os.MkdirAll(treesDir, 0o755); err != nil {
		return fmt.Errorf("creating trees directory: %w", err)
	}

	if exec, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolRscript,
		Args: []string{c.scriptPath(treeScript), c.cfg.OutputDir},
		Dir:  c.cfg.OutputDir,
	}); err != nil {
		return fmt.Errorf("tree building failed: %w: %s", err, firstLine(exec.Stderr))
	}

	trees, _ := filepath.Glob(filepath.Join(treesDir, "*.newick"))
	c.protoLog(domain.LevelInfo, fmt.Sprintf("Built %d phylogenetic trees", len(trees)))
	return nil
}

func (c *Controller) stageVisualizeTrees(ctx context.Context) error {
	c.progress("visualize", 85, "Generating tree visualizations...")

	treesDir := c.outPath("trees")
	if err := os.MkdirAll(treesDir, 0o755); err != nil {
		return fmt.Errorf("creating trees directory: %w", err)
	}

	if exec, err := c.runner.Run(ctx, process.Invocation{
		Tool: process.ToolRscript,
		Args: []string{c.scriptPath(treeVizScript), c.cfg.OutputDir},
		Dir:  c.cfg.OutputDir,
	}); err != nil {
		c.protoLog(domain.LevelWarn, fmt.Sprintf("Tree visualization returned non-zero: %s", firstLine(exec.Stderr)))
	}

	images, _ := filepath.Glob(filepath.Join(treesDir, "*.png"))
	if len(images) > 0 {
		c.result("tree_images", "", map[string]any{"images": images})
		c.protoLog(domain.LevelInfo, fmt.Sprintf("Generated %d tree visualization(s)", len(images)))
	}
	return nil
}

// readGermPass loads the germ-pass table, or returns (nil, nil) when the
// clonality stage left nothing behind.
func (c *Controller) readGermPass() (*airr.CloneTable, error) {
	path := c.outPath(germPassName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return airr.ReadCloneTable(f)
}

// topClonesByFrequency ranks clones by member count (descending, first
// appearance breaking ties) and returns the IDs of the largest `limit`
// clones plus one representative record per clone in rank order.
func topClonesByFrequency(table *airr.CloneTable, limit int) ([]string, []airr.CloneRecord) {
	counts := make(map[string]int)
	var order []string
	first := make(map[string]airr.CloneRecord)
	for _, rec := range table.Records {
		if rec.CloneID == "" {
			continue
		}
		if _, seen := counts[rec.CloneID]; !seen {
			order = append(order, rec.CloneID)
			first[rec.CloneID] = rec
		}
		counts[rec.CloneID]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}

	records := make([]airr.CloneRecord, 0, len(order))
	for _, id := range order {
		records = append(records, first[id])
	}
	return order, records
}

// writeSequenceCounts records, for every member of the top clones, how many
// reads in the combined input share its exact sequence content. The tree
// builder collapses identical sequences; the counts let the plotting script
// scale node sizes back up.
func (c *Controller) writeSequenceCounts(table *airr.CloneTable, topClones []string) error {
	records, err := readFasta(c.combined)
	if err != nil {
		return err
	}
	contentByID := make(map[string]string, len(records))
	for _, rec := range records {
		contentByID[rec.ID] = normalizeSeq(rec.Seq)
	}

	top := make(map[string]struct{}, len(topClones))
	for _, id := range topClones {
		top[id] = struct{}{}
	}

	counts := make(map[string]int)
	byClone := make(map[string]map[string][]string)
	for _, rec := range table.Records {
		if _, ok := top[rec.CloneID]; !ok {
			continue
		}
		content, ok := contentByID[rec.SequenceID]
		if !ok {
			continue
		}
		group := byClone[rec.CloneID]
		if group == nil {
			group = make(map[string][]string)
			byClone[rec.CloneID] = group
		}
		group[content] = append(group[content], rec.SequenceID)
	}
	for _, group := range byClone {
		for _, ids := range group {
			for _, id := range ids {
				counts[id] = len(ids)
			}
		}
	}

	data, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return os.WriteFile(c.outPath(seqCountsName), data, 0o644)
}

// cleanName inserts _clean before the first extension: a.b.fasta ->
// a_clean.b.fasta, extensionless names get a _clean suffix.
func cleanName(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i] + "_clean" + name[i:]
	}
	return name + "_clean"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}
