package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bioseqio/clonepipe/internal/pipeline"
	"github.com/bioseqio/clonepipe/pkg/airr"
	"github.com/bioseqio/clonepipe/pkg/clonality"
)

// publicCmd runs the public-clone pass standalone, against a clone table
// produced by an earlier run.
var publicCmd = &cobra.Command{
	Use:   "public",
	Short: "Analyze public clones from an existing clone table",
	Long: `Clusters the sequences of a db-pass/clone-pass/germ-pass TSV across
patients and writes the public clone report as JSON to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, _ := cmd.Flags().GetString("input")
		mode, _ := cmd.Flags().GetString("mode")
		topN, _ := cmd.Flags().GetInt("top")

		var threshold *float64
		if cmd.Flags().Changed("threshold") {
			v, _ := cmd.Flags().GetFloat64("threshold")
			threshold = &v
		}
		var mismatches *int
		if cmd.Flags().Changed("mismatches") {
			v, _ := cmd.Flags().GetInt("mismatches")
			mismatches = &v
		}

		f, err := os.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()

		table, err := airr.ReadCloneTable(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", input, err)
		}

		sequences := pipeline.CloneTableSequences(table)
		if len(sequences) == 0 {
			return fmt.Errorf("%s contains no sequences with a CDR3 amino acid column", input)
		}

		params := clonality.ParamsForMode(mode, threshold, mismatches)
		report := clonality.BuildReport(sequences, params, topN)

		if path, _ := cmd.Flags().GetString("assignments"); path != "" {
			clones := clonality.Cluster(sequences, params)
			data, err := json.MarshalIndent(clonality.Assignment(clones), "", "  ")
			if err != nil {
				return fmt.Errorf("encoding assignments: %w", err)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing assignments: %w", err)
			}
		}

		out := json.NewEncoder(cmd.OutOrStdout())
		out.SetIndent("", "  ")
		return out.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(publicCmd)

	publicCmd.Flags().String("input", "", "Clone table TSV (germ-pass output)")
	publicCmd.Flags().String("mode", "lenient", "Clustering mode: exact, lenient, or custom")
	publicCmd.Flags().Float64("threshold", 0, "Similarity threshold for custom mode")
	publicCmd.Flags().Int("mismatches", 0, "Max CDR3 mismatches for custom mode")
	publicCmd.Flags().Int("top", 10, "Number of top clones in the report's top_x view")
	publicCmd.Flags().String("assignments", "", "Write the per-sequence clone assignment to this JSON file")
	publicCmd.MarkFlagRequired("input")
}
