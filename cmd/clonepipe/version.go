package main

import (
	"fmt"
	"strings"

	"github.com/bioseqio/clonepipe"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of clonepipe",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("clonepipe version %s\n", strings.TrimSpace(clonepipe.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
