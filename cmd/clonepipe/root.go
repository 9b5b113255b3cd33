package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clonepipe",
	Short: "Clonepipe is a B-cell repertoire analysis pipeline",
	Long: `Clonepipe runs IgBLAST annotation, clonal clustering, and public clone
analysis over FASTA repertoire files, reporting progress to the host process
as newline-delimited JSON.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("tools", "", "Path to a tools.yaml overriding external tool commands")
	rootCmd.PersistentFlags().String("log-level", "info", "Operator log level (debug, info, warn, error)")
}
