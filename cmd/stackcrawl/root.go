package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/stackcrawl/internal/log"
)

// NewRootCmd creates the root command for stackcrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stackcrawl",
		Short: "Detect the web technologies a site is built with",
		Long: `stackcrawl crawls a site from one or more seed URLs and fingerprints the
technologies it finds: CMSs, frameworks, JavaScript libraries, web servers
and more.

Pages are fetched over plain HTTP by default. Use --browser chrome to render
pages in headless Chrome, which also resolves script globals.
Scan results are kept in a local history database for later comparison.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// newLogger builds the secure logger writing to the command's stderr.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	verbose := getVerboseFlag(cmd)

	format, err := cmd.Flags().GetString("log-format")
	if err != nil {
		format, err = cmd.Root().PersistentFlags().GetString("log-format")
		if err != nil {
			format = "text"
		}
	}
	switch strings.ToLower(format) {
	case "", "text":
		return log.NewSecureLogger(cmd.ErrOrStderr(), verbose), nil
	case "json":
		return log.NewSecureJSONLogger(cmd.ErrOrStderr(), verbose), nil
	default:
		return nil, fmt.Errorf("unknown log format %q: must be text or json", format)
	}
}
