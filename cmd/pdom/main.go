// Package main implements the pdom CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pdom/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "pdom",
	Short: "Persistent C/C++ symbol index",
	Long: `pdom maintains an on-disk index of C and C++ names, their bindings and
the files they occur in. Parser output is fed in as NDJSON.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: startSession,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return endSession(cmd, nil)
	},
}

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(namesCmd)
	rootCmd.AddCommand(bindingsCmd)
	rootCmd.AddCommand(declsCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to pdom.toml (default: search upward from the working directory)")
	flags.String("store", "", "index file, overrides [store].path")
	flags.Bool("memory", false, "use a throwaway in-memory store")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("log-format", "", "log format (text|json)")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "", "trace level (off|error|tx|file|debug)")
	flags.String("trace-mode", "", "trace storage mode (stream|ring|both)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("timings", false, "show timing information")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")
}

// run executes one command line against the given streams.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	err := rootCmd.ExecuteContext(ctx)
	// post-run hooks are skipped when a command fails
	return errors.Join(err, endSession(rootCmd, err))
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, errorColor.Sprint("error: ")+err.Error())
		os.Exit(1)
	}
}
