package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bioseqio/clonepipe"
	"github.com/bioseqio/clonepipe/internal/logging"
	"github.com/bioseqio/clonepipe/pkg/adapters/process"
	"github.com/bioseqio/clonepipe/pkg/adapters/redis"
	"github.com/bioseqio/clonepipe/pkg/domain"
	"github.com/bioseqio/clonepipe/pkg/protocol"
)

// runCmd represents the NDJSON pipeline session
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one analysis session over stdin/stdout",
	Long: `Reads a single {"action":"run","config":{...}} line from stdin, executes
the pipeline, and streams progress, logs, and results to stdout as NDJSON.
The exit code follows the final complete message.`,
	Run: func(cmd *cobra.Command, args []string) {
		logLevel, _ := cmd.Flags().GetString("log-level")
		toolsPath, _ := cmd.Flags().GetString("tools")
		redisAddr, _ := cmd.Flags().GetString("redis")
		runID, _ := cmd.Flags().GetString("run-id")
		timeout, _ := cmd.Flags().GetDuration("threshold-timeout")

		logger := logging.New(logging.ParseLevel(logLevel))
		enc := protocol.NewEncoder(os.Stdout)
		in := bufio.NewReader(os.Stdin)

		fatal := func(msg string) {
			enc.Complete(false, msg)
			os.Exit(1)
		}

		line, err := in.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			fatal("No configuration received")
		}
		msg := protocol.ParseHostLine(line)
		if msg.Kind != domain.HostRun {
			fatal(fmt.Sprintf("Unknown action: expected run, got %s", msg.Kind))
		}
		cfg, err := domain.DecodeRunConfig(msg.Config)
		if err != nil {
			fatal(err.Error())
		}

		opts := []clonepipe.Option{
			clonepipe.WithIO(in, os.Stdout),
			clonepipe.WithLogger(logger),
		}
		if toolsPath != "" {
			tools, err := process.LoadTools(toolsPath)
			if err != nil {
				fatal(fmt.Sprintf("Invalid tools file: %v", err))
			}
			opts = append(opts, clonepipe.WithTools(tools))
		}
		if redisAddr != "" {
			opts = append(opts, clonepipe.WithRunStore(redis.New(redisAddr), runID))
		}
		if timeout > 0 {
			opts = append(opts, clonepipe.WithThresholdTimeout(timeout))
		}

		p, err := clonepipe.New(cfg, opts...)
		if err != nil {
			fatal(err.Error())
		}
		if !p.Run(context.Background()) {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	// 'run' is also the default action when no subcommand is given (hosts
	// spawn the bare binary), so the session flags live on both commands.
	addSessionFlags(runCmd)
	addSessionFlags(rootCmd)
	rootCmd.Run = runCmd.Run
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("redis", "", "Redis address for mirroring run status (host:port)")
	cmd.Flags().String("run-id", "default", "Run identifier used for status mirroring")
	cmd.Flags().Duration("threshold-timeout", 0, "Max wait for the host's threshold response (0 waits forever)")
}
